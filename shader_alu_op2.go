// shader_alu_op2.go - OP2 ALU instruction translation

package main

// genAluCondOp emits select(lhs <op> 0 ? trueVal : falseVal).
func (t *Transpiler) genAluCondOp(predOp IROp, lhs, trueVal, falseVal IRValue) IRValue {
	ir := t.ir
	lhsType := ir.typeOf(lhs)
	var zero IRValue
	switch lhsType {
	case IRTypeFloat:
		zero = ir.constFloat(0)
	case IRTypeUint:
		zero = ir.constUint(0)
	default:
		zero = ir.constInt(0)
	}
	pred := ir.binOp(predOp, IRTypeBool, lhs, zero)
	return ir.triOp(IROpSelect, ir.typeOf(trueVal), pred, trueVal, falseVal)
}

// genPredSetOp emits the SET/PRED_SET result (1.0/0.0 for floats,
// all-ones/zero for integers) and optionally updates the predicate and
// execute mask.
func (t *Transpiler) genPredSetOp(inst AluInst, predOp IROp, ty IRType, lhs, rhs IRValue, updatesPredicate bool) IRValue {
	ir := t.ir
	pred := ir.binOp(predOp, IRTypeBool, lhs, rhs)

	if updatesPredicate {
		t.updatePredicateAndExecuteMask(inst, pred)
	}

	var trueVal, falseVal IRValue
	switch ty {
	case IRTypeFloat:
		trueVal, falseVal = ir.constFloat(1), ir.constFloat(0)
	case IRTypeUint:
		trueVal, falseVal = ir.constUint(0xFFFFFFFF), ir.constUint(0)
	default:
		trueVal, falseVal = ir.constInt(-1), ir.constInt(0)
	}
	return ir.triOp(IROpSelect, ty, pred, trueVal, falseVal)
}

// genKillOp discards the fragment (pixel) or returns early (others)
// when the comparison holds.
func (t *Transpiler) genKillOp(predOp IROp, lhs, rhs IRValue) {
	ir := t.ir
	pred := ir.binOp(predOp, IRTypeBool, lhs, rhs)
	ir.ifBegin(pred)
	if t.stage == StagePixel {
		ir.emit(IRInst{Op: IROpDiscard})
	} else {
		ir.emit(IRInst{Op: IROpReturn})
	}
	ir.ifEnd()
}

func (t *Transpiler) translateAluOp2(cf ControlFlowInst, group *AluInstructionGroup, unit SQChan, inst AluInst) {
	ir := t.ir
	op := inst.Op2Inst()

	// Shorthands bound to this instruction.
	src := func(i uint32) IRValue { return t.readAluInstSrc(cf, group, inst, i) }
	srcT := func(i uint32, ty VarRefType) IRValue { return t.readAluInstSrc(cf, group, inst, i, ty) }
	dest := func(v IRValue) { t.writeAluOpDest(cf, group, unit, inst, v, false) }
	destAr := func(v IRValue) { t.writeAluOpDest(cf, group, unit, inst, v, true) }
	fbin := func(o IROp) { dest(ir.binOp(o, IRTypeFloat, src(0), src(1))) }
	funary := func(o IROp) { dest(ir.unaryOp(o, IRTypeFloat, src(0))) }
	ibin := func(o IROp) {
		dest(ir.binOp(o, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt)))
	}
	ubin := func(o IROp) {
		dest(ir.binOp(o, IRTypeUint, srcT(0, VarRefUint), srcT(1, VarRefUint)))
	}

	switch op {
	case OP2_INST_NOP:
		// Unused slots carry NOPs.

	case OP2_INST_ADD:
		fbin(IROpFAdd)
	case OP2_INST_MUL, OP2_INST_MUL_IEEE:
		fbin(IROpFMul)
	case OP2_INST_MAX, OP2_INST_MAX_DX10:
		fbin(IROpFMax)
	case OP2_INST_MIN, OP2_INST_MIN_DX10:
		fbin(IROpFMin)

	case OP2_INST_SETE:
		dest(t.genPredSetOp(inst, IROpFOrdEqual, IRTypeFloat, src(0), src(1), false))
	case OP2_INST_SETGT:
		dest(t.genPredSetOp(inst, IROpFOrdGreaterThan, IRTypeFloat, src(0), src(1), false))
	case OP2_INST_SETGE:
		dest(t.genPredSetOp(inst, IROpFOrdGreaterThanEqual, IRTypeFloat, src(0), src(1), false))
	case OP2_INST_SETNE:
		dest(t.genPredSetOp(inst, IROpFOrdNotEqual, IRTypeFloat, src(0), src(1), false))
	case OP2_INST_SETE_DX10:
		dest(t.genPredSetOp(inst, IROpFOrdEqual, IRTypeInt, src(0), src(1), false))
	case OP2_INST_SETGT_DX10:
		dest(t.genPredSetOp(inst, IROpFOrdGreaterThan, IRTypeInt, src(0), src(1), false))
	case OP2_INST_SETGE_DX10:
		dest(t.genPredSetOp(inst, IROpFOrdGreaterThanEqual, IRTypeInt, src(0), src(1), false))
	case OP2_INST_SETNE_DX10:
		dest(t.genPredSetOp(inst, IROpFOrdNotEqual, IRTypeInt, src(0), src(1), false))

	case OP2_INST_FRACT:
		funary(IROpFFract)
	case OP2_INST_TRUNC:
		funary(IROpFTrunc)
	case OP2_INST_CEIL:
		funary(IROpFCeil)
	case OP2_INST_RNDNE:
		funary(IROpFRoundEven)
	case OP2_INST_FLOOR:
		funary(IROpFFloor)

	case OP2_INST_MOVA_FLOOR:
		value := ir.unaryOp(IROpConvertFToS, IRTypeInt, src(0))
		clamped := ir.triOp(IROpSClamp, IRTypeInt, value, ir.constInt(-256), ir.constInt(255))
		destAr(t.bitcastTo(clamped, IRTypeUint))
	case OP2_INST_MOVA_INT:
		destAr(t.bitcastTo(srcT(0, VarRefInt), IRTypeUint))

	case OP2_INST_MOV:
		dest(src(0))

	case OP2_INST_PRED_SETE:
		dest(t.genPredSetOp(inst, IROpFOrdEqual, IRTypeFloat, src(0), src(1), true))
	case OP2_INST_PRED_SETGT:
		dest(t.genPredSetOp(inst, IROpFOrdGreaterThan, IRTypeFloat, src(0), src(1), true))
	case OP2_INST_PRED_SETGE:
		dest(t.genPredSetOp(inst, IROpFOrdGreaterThanEqual, IRTypeFloat, src(0), src(1), true))
	case OP2_INST_PRED_SETNE:
		dest(t.genPredSetOp(inst, IROpFOrdNotEqual, IRTypeFloat, src(0), src(1), true))
	case OP2_INST_PRED_SETE_INT:
		dest(t.genPredSetOp(inst, IROpIEqual, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt), true))
	case OP2_INST_PRED_SETGT_INT:
		dest(t.genPredSetOp(inst, IROpSGreaterThan, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt), true))
	case OP2_INST_PRED_SETGE_INT:
		dest(t.genPredSetOp(inst, IROpSGreaterThanEqual, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt), true))
	case OP2_INST_PRED_SETNE_INT:
		dest(t.genPredSetOp(inst, IROpINotEqual, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt), true))

	case OP2_INST_KILLE:
		t.genKillOp(IROpFOrdEqual, src(0), src(1))
	case OP2_INST_KILLGT:
		t.genKillOp(IROpFOrdGreaterThan, src(0), src(1))
	case OP2_INST_KILLGE:
		t.genKillOp(IROpFOrdGreaterThanEqual, src(0), src(1))
	case OP2_INST_KILLNE:
		t.genKillOp(IROpFOrdNotEqual, src(0), src(1))
	case OP2_INST_KILLE_INT:
		t.genKillOp(IROpIEqual, srcT(0, VarRefInt), srcT(1, VarRefInt))
	case OP2_INST_KILLGT_INT:
		t.genKillOp(IROpSGreaterThan, srcT(0, VarRefInt), srcT(1, VarRefInt))
	case OP2_INST_KILLGE_INT:
		t.genKillOp(IROpSGreaterThanEqual, srcT(0, VarRefInt), srcT(1, VarRefInt))
	case OP2_INST_KILLNE_INT:
		t.genKillOp(IROpINotEqual, srcT(0, VarRefInt), srcT(1, VarRefInt))
	case OP2_INST_KILLGT_UINT:
		t.genKillOp(IROpUGreaterThan, srcT(0, VarRefUint), srcT(1, VarRefUint))
	case OP2_INST_KILLGE_UINT:
		t.genKillOp(IROpUGreaterThanEqual, srcT(0, VarRefUint), srcT(1, VarRefUint))

	case OP2_INST_AND_INT:
		ibin(IROpIAnd)
	case OP2_INST_OR_INT:
		ibin(IROpIOr)
	case OP2_INST_XOR_INT:
		ibin(IROpIXor)
	case OP2_INST_NOT_INT:
		dest(ir.unaryOp(IROpINot, IRTypeInt, srcT(0, VarRefInt)))
	case OP2_INST_ADD_INT:
		ibin(IROpIAdd)
	case OP2_INST_SUB_INT:
		ibin(IROpISub)
	case OP2_INST_MAX_INT:
		ibin(IROpSMax)
	case OP2_INST_MIN_INT:
		ibin(IROpSMin)
	case OP2_INST_MAX_UINT:
		ubin(IROpUMax)
	case OP2_INST_MIN_UINT:
		ubin(IROpUMin)

	case OP2_INST_SETE_INT:
		dest(t.genPredSetOp(inst, IROpIEqual, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt), false))
	case OP2_INST_SETGT_INT:
		dest(t.genPredSetOp(inst, IROpSGreaterThan, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt), false))
	case OP2_INST_SETGE_INT:
		dest(t.genPredSetOp(inst, IROpSGreaterThanEqual, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt), false))
	case OP2_INST_SETNE_INT:
		dest(t.genPredSetOp(inst, IROpINotEqual, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt), false))
	case OP2_INST_SETGT_UINT:
		dest(t.genPredSetOp(inst, IROpUGreaterThan, IRTypeUint, srcT(0, VarRefUint), srcT(1, VarRefUint), false))
	case OP2_INST_SETGE_UINT:
		dest(t.genPredSetOp(inst, IROpUGreaterThanEqual, IRTypeUint, srcT(0, VarRefUint), srcT(1, VarRefUint), false))

	case OP2_INST_EXP_IEEE:
		funary(IROpFExp2)
	case OP2_INST_LOG_CLAMPED, OP2_INST_LOG_IEEE:
		funary(IROpFLog2)
	case OP2_INST_RECIP_CLAMPED, OP2_INST_RECIP_FF, OP2_INST_RECIP_IEEE:
		dest(ir.binOp(IROpFDiv, IRTypeFloat, ir.constFloat(1), src(0)))
	case OP2_INST_RECIPSQRT_CLAMPED, OP2_INST_RECIPSQRT_FF, OP2_INST_RECIPSQRT_IEEE:
		root := ir.unaryOp(IROpFSqrt, IRTypeFloat, src(0))
		dest(ir.binOp(IROpFDiv, IRTypeFloat, ir.constFloat(1), root))
	case OP2_INST_SQRT_IEEE:
		funary(IROpFSqrt)
	case OP2_INST_SIN:
		funary(IROpFSin)
	case OP2_INST_COS:
		funary(IROpFCos)

	case OP2_INST_FLT_TO_INT:
		dest(ir.unaryOp(IROpConvertFToS, IRTypeInt, src(0)))
	case OP2_INST_FLT_TO_UINT:
		dest(ir.unaryOp(IROpConvertFToU, IRTypeUint, src(0)))
	case OP2_INST_INT_TO_FLT:
		dest(ir.unaryOp(IROpConvertSToF, IRTypeFloat, srcT(0, VarRefInt)))
	case OP2_INST_UINT_TO_FLT:
		dest(ir.unaryOp(IROpConvertUToF, IRTypeFloat, srcT(0, VarRefUint)))

	case OP2_INST_ASHR_INT:
		dest(ir.binOp(IROpShiftRightArith, IRTypeInt, srcT(0, VarRefInt), srcT(1, VarRefInt)))
	case OP2_INST_LSHR_INT:
		ubin(IROpShiftRightLogical)
	case OP2_INST_LSHL_INT:
		ubin(IROpShiftLeft)
	case OP2_INST_MULLO_INT:
		ibin(IROpIMul)
	case OP2_INST_MULLO_UINT:
		ubin(IROpIMul)

	default:
		abortShader("unimplemented ALU OP2 instruction %s", aluInstInfo(inst).name)
	}
}
