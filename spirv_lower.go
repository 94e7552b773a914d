// spirv_lower.go - Per-instruction IR to SPIR-V lowering

package main

import "strconv"

// binOpTable maps directly-representable IR ops to SPIR-V opcodes.
var spvBinOps = map[IROp]uint32{
	IROpFAdd:                 spvOpFAdd,
	IROpFSub:                 spvOpFSub,
	IROpFMul:                 spvOpFMul,
	IROpFDiv:                 spvOpFDiv,
	IROpIAdd:                 spvOpIAdd,
	IROpISub:                 spvOpISub,
	IROpIMul:                 spvOpIMul,
	IROpIAnd:                 spvOpBitwiseAnd,
	IROpIOr:                  spvOpBitwiseOr,
	IROpIXor:                 spvOpBitwiseXor,
	IROpShiftLeft:            spvOpShiftLeftLogical,
	IROpShiftRightLogical:    spvOpShiftRightLogical,
	IROpShiftRightArith:      spvOpShiftRightArithmetic,
	IROpFOrdEqual:            spvOpFOrdEqual,
	IROpFOrdNotEqual:         spvOpFOrdNotEqual,
	IROpFOrdLessThan:         spvOpFOrdLessThan,
	IROpFOrdLessThanEqual:    spvOpFOrdLessThanEqual,
	IROpFOrdGreaterThan:      spvOpFOrdGreaterThan,
	IROpFOrdGreaterThanEqual: spvOpFOrdGreaterThanEqual,
	IROpIEqual:               spvOpIEqual,
	IROpINotEqual:            spvOpINotEqual,
	IROpSLessThan:            spvOpSLessThan,
	IROpSLessThanEqual:       spvOpSLessThanEqual,
	IROpSGreaterThan:         spvOpSGreaterThan,
	IROpSGreaterThanEqual:    spvOpSGreaterThanEqual,
	IROpULessThan:            spvOpULessThan,
	IROpULessThanEqual:       spvOpULessThanEqual,
	IROpUGreaterThan:         spvOpUGreaterThan,
	IROpUGreaterThanEqual:    spvOpUGreaterThanEqual,
	IROpDot4:                 spvOpDot,
}

var spvExtBinOps = map[IROp]uint32{
	IROpFMax: glslFMax,
	IROpFMin: glslFMin,
	IROpSMax: glslSMax,
	IROpSMin: glslSMin,
	IROpUMax: glslUMax,
	IROpUMin: glslUMin,
}

var spvExtUnaryOps = map[IROp]uint32{
	IROpFAbs:       glslFAbs,
	IROpFFloor:     glslFloor,
	IROpFCeil:      glslCeil,
	IROpFTrunc:     glslTrunc,
	IROpFRoundEven: glslRoundEven,
	IROpFFract:     glslFract,
	IROpFSqrt:      glslSqrt,
	IROpFExp2:      glslExp2,
	IROpFLog2:      glslLog2,
	IROpFSin:       glslSin,
	IROpFCos:       glslCos,
}

var spvUnaryOps = map[IROp]uint32{
	IROpFNeg:        spvOpFNegate,
	IROpINeg:        spvOpSNegate,
	IROpINot:        spvOpNot,
	IROpLogicalNot:  spvOpLogicalNot,
	IROpConvertFToS: spvOpConvertFToS,
	IROpConvertFToU: spvOpConvertFToU,
	IROpConvertSToF: spvOpConvertSToF,
	IROpConvertUToF: spvOpConvertUToF,
	IROpBitcast:     spvOpBitcast,
}

func (b *spvBuilder) setResult(inst *IRInst, id uint32) {
	b.values[inst.Result] = id
	b.valueTypes[inst.Result] = inst.Type
}

func (b *spvBuilder) lower(inst *IRInst) {
	ty := b.irType(inst.Type)

	if op, ok := spvBinOps[inst.Op]; ok {
		b.setResult(inst, b.emitBin(op, ty, b.value(inst.Args[0]), b.value(inst.Args[1])))
		return
	}
	if ext, ok := spvExtBinOps[inst.Op]; ok {
		b.setResult(inst, b.emitExt(ext, ty, b.value(inst.Args[0]), b.value(inst.Args[1])))
		return
	}
	if ext, ok := spvExtUnaryOps[inst.Op]; ok {
		b.setResult(inst, b.emitExt(ext, ty, b.value(inst.Args[0])))
		return
	}
	if op, ok := spvUnaryOps[inst.Op]; ok {
		id := b.id()
		b.body.inst(op, ty, id, b.value(inst.Args[0]))
		b.setResult(inst, id)
		return
	}

	switch inst.Op {
	case IROpNop:

	case IROpConstFloat:
		b.setResult(inst, b.constant(b.floatType(), inst.Bits))
	case IROpConstInt:
		b.setResult(inst, b.constant(b.intType(), inst.Bits))
	case IROpConstUint:
		b.setResult(inst, b.constant(b.uintType(), inst.Bits))
	case IROpConstBool:
		key := [2]uint32{b.boolType(), inst.Bits}
		id, ok := b.constCache[key]
		if !ok {
			id = b.id()
			b.constCache[key] = id
			if inst.Bits != 0 {
				b.types.inst(spvOpConstantTrue, b.boolType(), id)
			} else {
				b.types.inst(spvOpConstantFalse, b.boolType(), id)
			}
		}
		b.setResult(inst, id)

	case IROpFClamp:
		b.setResult(inst, b.emitExt(glslFClamp, ty,
			b.value(inst.Args[0]), b.value(inst.Args[1]), b.value(inst.Args[2])))
	case IROpSClamp:
		b.setResult(inst, b.emitExt(glslSClamp, ty,
			b.value(inst.Args[0]), b.value(inst.Args[1]), b.value(inst.Args[2])))

	case IROpSelect:
		id := b.id()
		b.body.inst(spvOpSelect, ty, id,
			b.value(inst.Args[0]), b.value(inst.Args[1]), b.value(inst.Args[2]))
		b.setResult(inst, id)

	case IROpCompositeConstruct4:
		id := b.id()
		b.body.inst(spvOpCompositeConstruct, ty, id,
			b.value(inst.Args[0]), b.value(inst.Args[1]),
			b.value(inst.Args[2]), b.value(inst.Args[3]))
		b.setResult(inst, id)
	case IROpCompositeExtract:
		id := b.id()
		b.body.inst(spvOpCompositeExtract, ty, id, b.value(inst.Args[0]), inst.A)
		b.setResult(inst, id)
	case IROpCompositeInsert:
		id := b.id()
		b.body.inst(spvOpCompositeInsert, ty, id,
			b.value(inst.Args[0]), b.value(inst.Args[1]), inst.A)
		b.setResult(inst, id)

	case IROpLoadGprChan:
		ptr := b.accessChain(spvStoragePrivate, b.floatType(), b.gprVar(),
			b.value(inst.Args[0]), b.constUint(inst.A))
		b.setResult(inst, b.load(spvStoragePrivate, b.floatType(), ptr))
	case IROpStoreGprChan:
		ptr := b.accessChain(spvStoragePrivate, b.floatType(), b.gprVar(),
			b.value(inst.Args[0]), b.constUint(inst.A))
		b.body.inst(spvOpStore, ptr, b.value(inst.Args[1]))
	case IROpLoadGprVec:
		ptr := b.accessChain(spvStoragePrivate, b.irType(IRTypeFloat4), b.gprVar(), b.value(inst.Args[0]))
		b.setResult(inst, b.load(spvStoragePrivate, b.irType(IRTypeFloat4), ptr))
	case IROpStoreGprVec:
		ptr := b.accessChain(spvStoragePrivate, b.irType(IRTypeFloat4), b.gprVar(), b.value(inst.Args[0]))
		b.body.inst(spvOpStore, ptr, b.value(inst.Args[1]))

	case IROpLoadCfileChan:
		ptr := b.accessChain(spvStoragePrivate, b.floatType(), b.cfileVar(),
			b.value(inst.Args[0]), b.constUint(inst.A))
		b.setResult(inst, b.load(spvStoragePrivate, b.floatType(), ptr))
	case IROpLoadCbufferChan:
		ptr := b.accessChain(spvStorageUniform, b.floatType(), b.cbufferVar(inst.B),
			b.constInt(0), b.value(inst.Args[0]), b.constUint(inst.A))
		b.setResult(inst, b.load(spvStorageUniform, b.floatType(), ptr))

	case IROpLoadState:
		b.setResult(inst, b.load(spvStoragePrivate, b.intType(), b.stateVar()))
	case IROpStoreState:
		b.body.inst(spvOpStore, b.stateVar(), b.value(inst.Args[0]))
	case IROpLoadStackIndex:
		b.setResult(inst, b.load(spvStoragePrivate, b.intType(), b.stackIdxVar()))
	case IROpStoreStackIndex:
		b.body.inst(spvOpStore, b.stackIdxVar(), b.value(inst.Args[0]))
	case IROpLoadStackAt:
		ptr := b.accessChain(spvStoragePrivate, b.intType(), b.stackVar(), b.value(inst.Args[0]))
		b.setResult(inst, b.load(spvStoragePrivate, b.intType(), ptr))
	case IROpStoreStackAt:
		ptr := b.accessChain(spvStoragePrivate, b.intType(), b.stackVar(), b.value(inst.Args[0]))
		b.body.inst(spvOpStore, ptr, b.value(inst.Args[1]))
	case IROpLoadPredicate:
		b.setResult(inst, b.load(spvStoragePrivate, b.boolType(), b.predicateVar()))
	case IROpStorePredicate:
		b.body.inst(spvOpStore, b.predicateVar(), b.value(inst.Args[0]))
	case IROpLoadRingOffset:
		b.setResult(inst, b.load(spvStoragePrivate, b.uintType(), b.ringOffsetVar()))
	case IROpStoreRingOffset:
		b.body.inst(spvOpStore, b.ringOffsetVar(), b.value(inst.Args[0]))

	case IROpLoadBuiltin:
		switch inst.A {
		case BuiltinVertexID:
			v := b.builtinVar("vertexID", spvStorageInput, b.intType(), spvBuiltInVertexIndex)
			b.setResult(inst, b.load(spvStorageInput, b.intType(), v))
		case BuiltinInstanceID:
			v := b.builtinVar("instanceID", spvStorageInput, b.intType(), spvBuiltInInstanceIdx)
			b.setResult(inst, b.load(spvStorageInput, b.intType(), v))
		case BuiltinFragCoord:
			v := b.builtinVar("fragCoord", spvStorageInput, b.irType(IRTypeFloat4), spvBuiltInFragCoord)
			b.setResult(inst, b.load(spvStorageInput, b.irType(IRTypeFloat4), v))
		case BuiltinFrontFacing:
			v := b.builtinVar("frontFacing", spvStorageInput, b.boolType(), spvBuiltInFrontFacing)
			b.setResult(inst, b.load(spvStorageInput, b.boolType(), v))
		default:
			b.fail("unknown builtin %d", inst.A)
		}

	case IROpLoadInputParam:
		v := b.inputParamVar(inst.A, inst.B)
		b.setResult(inst, b.load(spvStorageInput, b.irType(IRTypeFloat4), v))

	case IROpLoadPushConst:
		ptr := b.accessChain(spvStoragePushConstant, b.irType(IRTypeFloat4), b.pushConstVar(),
			b.constInt(0), b.constInt(int32(inst.A)))
		vec := b.load(spvStoragePushConstant, b.irType(IRTypeFloat4), ptr)
		if inst.Type == IRTypeUint || inst.Type == IRTypeInt {
			// Scalar push reads take lane x reinterpreted.
			lane := b.id()
			b.body.inst(spvOpCompositeExtract, b.floatType(), lane, vec, 0)
			cast := b.id()
			b.body.inst(spvOpBitcast, ty, cast, lane)
			b.setResult(inst, cast)
		} else {
			b.setResult(inst, vec)
		}

	case IROpLoadExport:
		kind := ExportKind(inst.A)
		v := b.exportVar(kind, inst.B)
		if kind == ExportKindComputedZ {
			b.fail("computed-Z readback is not defined")
			return
		}
		b.setResult(inst, b.load(spvStorageOutput, b.irType(IRTypeFloat4), v))
	case IROpStoreExport:
		kind := ExportKind(inst.A)
		v := b.exportVar(kind, inst.B)
		value := b.value(inst.Args[0])
		if kind == ExportKindComputedZ {
			depth := b.id()
			b.body.inst(spvOpCompositeExtract, b.floatType(), depth, value, 0)
			b.body.inst(spvOpStore, v, depth)
			return
		}
		b.body.inst(spvOpStore, v, value)

	case IROpMemExport:
		v := b.memExportVar(ExportKind(inst.A))
		slot := b.emitBin(spvOpIAdd, b.uintType(), b.constUint(inst.B), b.value(inst.Args[1]))
		ptr := b.accessChain(spvStorageStorageBuffer, b.irType(IRTypeFloat4), v,
			b.constInt(0), slot)
		b.body.inst(spvOpStore, ptr, b.value(inst.Args[0]))

	case IROpIfBegin:
		thenLabel := b.id()
		elseLabel := b.id()
		mergeLabel := b.id()
		b.body.inst(spvOpSelectionMerge, mergeLabel, 0)
		b.body.inst(spvOpBranchConditional, b.value(inst.Args[0]), thenLabel, elseLabel)
		b.body.inst(spvOpLabel, thenLabel)
		b.blockTerminated = false
		b.ifStack = append(b.ifStack, spvIfFrame{elseLabel: elseLabel, mergeLabel: mergeLabel})

	case IROpIfElse:
		if len(b.ifStack) == 0 {
			b.fail("else marker outside a conditional")
			return
		}
		frame := &b.ifStack[len(b.ifStack)-1]
		if !b.blockTerminated {
			b.body.inst(spvOpBranch, frame.mergeLabel)
		}
		b.body.inst(spvOpLabel, frame.elseLabel)
		b.blockTerminated = false
		frame.sawElse = true

	case IROpIfEnd:
		if len(b.ifStack) == 0 {
			b.fail("end marker outside a conditional")
			return
		}
		frame := b.ifStack[len(b.ifStack)-1]
		b.ifStack = b.ifStack[:len(b.ifStack)-1]
		if !b.blockTerminated {
			b.body.inst(spvOpBranch, frame.mergeLabel)
		}
		if !frame.sawElse {
			// The false arm is an empty block falling straight through.
			b.body.inst(spvOpLabel, frame.elseLabel)
			b.body.inst(spvOpBranch, frame.mergeLabel)
		}
		b.body.inst(spvOpLabel, frame.mergeLabel)
		b.blockTerminated = false

	case IROpDiscard:
		b.body.inst(spvOpKill)
		b.blockTerminated = true
	case IROpReturn:
		b.body.inst(spvOpReturn)
		b.blockTerminated = true

	case IROpSampleTexture:
		b.lowerSample(inst)

	case IROpBufferFetch:
		b.lowerBufferFetch(inst)

	default:
		b.fail("unimplemented IR op %d in SPIR-V lowering", inst.Op)
	}
}

func (b *spvBuilder) lowerSample(inst *IRInst) {
	textureID := inst.B >> 8
	samplerID := inst.B & 0xFF
	dim := b.module.TexDims[textureID%MaxTextures]

	texVar, imageTy := b.textureVar(textureID, dim)
	sampVar := b.samplerVar(samplerID)

	tex := b.load(spvStorageUniformConstant, imageTy, texVar)
	samplerTy := b.typeCache["samplerType"]
	samp := b.load(spvStorageUniformConstant, samplerTy, sampVar)

	sampledTy := b.typeID("sampledImage"+strconv.FormatUint(uint64(imageTy), 10), func(id uint32) {
		b.types.inst(spvOpTypeSampledImage, id, imageTy)
	})
	sampled := b.id()
	b.body.inst(spvOpSampledImage, sampledTy, sampled, tex, samp)

	coord := b.value(inst.Args[0])
	f4 := b.irType(IRTypeFloat4)
	result := b.id()

	switch inst.A {
	case SampleKindNormal:
		b.body.inst(spvOpImageSampleImplicitLod, f4, result, sampled, coord)
	case SampleKindLodZero:
		// Lod operand image operand mask = 0x2.
		zero := b.constant(b.floatType(), 0)
		b.body.inst(spvOpImageSampleExplicitLod, f4, result, sampled, coord, 0x2, zero)
	case SampleKindLod:
		// The lod rides in the coordinate's w lane.
		lod := b.id()
		b.body.inst(spvOpCompositeExtract, b.floatType(), lod, coord, 3)
		b.body.inst(spvOpImageSampleExplicitLod, f4, result, sampled, coord, 0x2, lod)
	case SampleKindBias:
		b.body.inst(spvOpImageSampleImplicitLod, f4, result, sampled, coord, 0x1, b.value(inst.Args[1]))
	case SampleKindCompare:
		ref := b.id()
		b.body.inst(spvOpCompositeExtract, b.floatType(), ref, coord, 3)
		b.body.inst(spvOpImageSampleDrefImplicitLod, b.floatType(), result, sampled, coord, ref)
		// Broadcast the scalar result across a vec4.
		vec := b.id()
		b.body.inst(spvOpCompositeConstruct, f4, vec, result, result, result, result)
		b.setResult(inst, vec)
		return
	case SampleKindCompareLodZero:
		ref := b.id()
		b.body.inst(spvOpCompositeExtract, b.floatType(), ref, coord, 3)
		zero := b.constant(b.floatType(), 0)
		b.body.inst(spvOpImageSampleDrefExplicitLod, b.floatType(), result, sampled, coord, ref, 0x2, zero)
		vec := b.id()
		b.body.inst(spvOpCompositeConstruct, f4, vec, result, result, result, result)
		b.setResult(inst, vec)
		return
	case SampleKindGather4:
		b.body.inst(spvOpImageGather, f4, result, sampled, coord, b.constUint(0))
	default:
		b.fail("unimplemented sample kind %d", inst.A)
		return
	}
	b.setResult(inst, result)
}

// lowerBufferFetch handles the 32-bit formats; packed formats bind as
// typed vertex attributes at pipeline level and never reach this path.
func (b *spvBuilder) lowerBufferFetch(inst *IRInst) {
	dataFormat := inst.A & 0xFF
	switch dataFormat {
	case FMT_32, FMT_32_FLOAT, FMT_32_32, FMT_32_32_FLOAT,
		FMT_32_32_32, FMT_32_32_32_FLOAT, FMT_32_32_32_32, FMT_32_32_32_32_FLOAT:
	default:
		b.fail("packed vertex fetch format %d must bind as a pipeline attribute", dataFormat)
		return
	}

	key := strconv.FormatUint(uint64(inst.B), 10)
	varKey := "fetchBuffer" + key
	f4 := b.irType(IRTypeFloat4)
	var bufVar uint32
	if id, ok := b.vars[varKey]; ok {
		bufVar = id
	} else {
		arr := b.arrayType(b.floatType(), 65536, "fetchArr"+key)
		structType := b.typeID(varKey+"Struct", func(id uint32) {
			b.types.inst(spvOpTypeStruct, id, arr)
			b.decorations.inst(spvOpDecorate, id, spvDecorationBlock)
			b.decorations.inst(spvOpMemberDecorate, id, 0, spvDecorationOffset, 0)
		})
		bufVar = b.variable(varKey, spvStorageStorageBuffer, structType, func(id uint32) {
			b.decorations.inst(spvOpDecorate, id, spvDecorationDescriptorSet, 0)
			b.decorations.inst(spvOpDecorate, id, spvDecorationBinding, 64+inst.B)
		})
	}

	// Element index = byte offset / 4.
	offset := b.value(inst.Args[0])
	elemIdx := b.emitBin(spvOpShiftRightLogical, b.uintType(), offset, b.constUint(2))

	var lanes [4]uint32
	elemCount := uint32(1)
	switch dataFormat {
	case FMT_32_32, FMT_32_32_FLOAT:
		elemCount = 2
	case FMT_32_32_32, FMT_32_32_32_FLOAT:
		elemCount = 3
	case FMT_32_32_32_32, FMT_32_32_32_32_FLOAT:
		elemCount = 4
	}
	for i := uint32(0); i < 4; i++ {
		if i < elemCount {
			idx := b.emitBin(spvOpIAdd, b.uintType(), elemIdx, b.constUint(i))
			ptr := b.accessChain(spvStorageStorageBuffer, b.floatType(), bufVar, b.constInt(0), idx)
			lanes[i] = b.load(spvStorageStorageBuffer, b.floatType(), ptr)
		} else if i == 3 {
			lanes[i] = b.constant(b.floatType(), 0x3F800000)
		} else {
			lanes[i] = b.constant(b.floatType(), 0)
		}
	}
	result := b.id()
	b.body.inst(spvOpCompositeConstruct, f4, result, lanes[0], lanes[1], lanes[2], lanes[3])
	b.setResult(inst, result)
}
