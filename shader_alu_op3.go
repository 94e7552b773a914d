// shader_alu_op3.go - OP3 ALU instruction translation

package main

func (t *Transpiler) translateAluOp3(cf ControlFlowInst, group *AluInstructionGroup, unit SQChan, inst AluInst) {
	ir := t.ir

	src := func(i uint32) IRValue { return t.readAluInstSrc(cf, group, inst, i) }
	srcT := func(i uint32, ty VarRefType) IRValue { return t.readAluInstSrc(cf, group, inst, i, ty) }
	dest := func(v IRValue) { t.writeAluOpDest(cf, group, unit, inst, v, false) }

	muladd := func(scale float32, divide bool) {
		prod := ir.binOp(IROpFMul, IRTypeFloat, src(0), src(1))
		sum := ir.binOp(IROpFAdd, IRTypeFloat, prod, src(2))
		if divide {
			sum = ir.binOp(IROpFDiv, IRTypeFloat, sum, ir.constFloat(scale))
		} else if scale != 1 {
			sum = ir.binOp(IROpFMul, IRTypeFloat, sum, ir.constFloat(scale))
		}
		dest(sum)
	}

	switch inst.Op3Inst() {
	case OP3_INST_MULADD:
		muladd(1, false)
	case OP3_INST_MULADD_M2:
		muladd(2, false)
	case OP3_INST_MULADD_M4:
		muladd(4, false)
	case OP3_INST_MULADD_D2:
		muladd(2, true)

	case OP3_INST_CNDE:
		dest(t.genAluCondOp(IROpFOrdEqual, src(0), src(1), src(2)))
	case OP3_INST_CNDGT:
		dest(t.genAluCondOp(IROpFOrdGreaterThan, src(0), src(1), src(2)))
	case OP3_INST_CNDGE:
		dest(t.genAluCondOp(IROpFOrdGreaterThanEqual, src(0), src(1), src(2)))
	case OP3_INST_CNDE_INT:
		dest(t.genAluCondOp(IROpIEqual, srcT(0, VarRefInt), srcT(1, VarRefInt), srcT(2, VarRefInt)))
	case OP3_INST_CNDGT_INT:
		dest(t.genAluCondOp(IROpSGreaterThan, srcT(0, VarRefInt), srcT(1, VarRefInt), srcT(2, VarRefInt)))
	case OP3_INST_CNDGE_INT:
		dest(t.genAluCondOp(IROpSGreaterThanEqual, srcT(0, VarRefInt), srcT(1, VarRefInt), srcT(2, VarRefInt)))

	default:
		abortShader("unimplemented ALU OP3 instruction %s", aluInstInfo(inst).name)
	}
}
