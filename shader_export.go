// shader_export.go - Export translation: POS/PARAM/PIXEL and memory writes

package main

// Alpha-reference compare functions carried in the low byte of the
// PushAlphaData constant.
const (
	RefFuncNever = iota
	RefFuncLess
	RefFuncEqual
	RefFuncLessEqual
	RefFuncGreater
	RefFuncNotEqual
	RefFuncGreaterEqual
	RefFuncAlways
)

// applySelMask rebuilds a vec4 from source through the swizzle mask,
// preserving dest lanes the mask leaves unchanged.
func (t *Transpiler) applySelMask(dest, source IRValue, mask [4]SQSel) IRValue {
	ir := t.ir
	if isSwizzleFullyUnmasked(mask) && mask == [4]SQSel{SelX, SelY, SelZ, SelW} {
		return source
	}
	elems := make([]IRValue, 4)
	for i := 0; i < 4; i++ {
		switch mask[i] {
		case SelX, SelY, SelZ, SelW:
			elems[i] = ir.emit(IRInst{Op: IROpCompositeExtract, Type: IRTypeFloat,
				Args: []IRValue{source}, A: uint32(mask[i])})
		case Sel0:
			elems[i] = ir.constFloat(0)
		case Sel1:
			elems[i] = ir.constFloat(1)
		case SelMask:
			elems[i] = ir.emit(IRInst{Op: IROpCompositeExtract, Type: IRTypeFloat,
				Args: []IRValue{dest}, A: uint32(i)})
		default:
			abortShader("unexpected swizzle selector %d", mask[i])
		}
	}
	return ir.emit(IRInst{Op: IROpCompositeConstruct4, Type: IRTypeFloat4, Args: elems})
}

// translateGenericExport handles EXP and EXP_DONE: read the source
// GPR, swizzle, and write the export slot, bursting over consecutive
// registers and slots.
func (t *Transpiler) translateGenericExport(cf ControlFlowInst) {
	var mask [4]SQSel
	for i := 0; i < 4; i++ {
		mask[i] = cf.ExpSel(SQChan(i))
	}

	// Fully-masked exports are elided.
	if isSwizzleFullyMasked(mask) {
		return
	}

	srcGpr, err := makeGprRef(cf.ExpRwGpr(), cf.ExpRwRel(), IndexLoop)
	if err != nil {
		abortShader("%v", err)
	}
	exportRef, err := makeExportRef(cf.ExpType(), cf.ExpArrayBase())
	if err != nil {
		abortShader("%v", err)
	}

	exportCount := cf.ExpBurstCount() + 1
	for i := uint32(0); i < exportCount; i++ {
		sourceVal := t.readGprVec(srcGpr)
		t.writeExportRef(exportRef, mask, sourceVal)
		srcGpr.Number++
		exportRef.Index++
	}
}

// writeExportRef writes one export slot with all the specialized
// behaviour each type requires: position space remap and Y flip,
// alpha-reference testing and the logic-op broadcast on pixel 0.
func (t *Transpiler) writeExportRef(ref ExportRef, mask [4]SQSel, srcId IRValue) {
	ir := t.ir

	exportVal := srcId
	if !isSwizzleFullyUnmasked(mask) {
		exportVal = ir.emit(IRInst{Op: IROpLoadExport, Type: IRTypeFloat4,
			A: uint32(ref.Kind), B: ref.Index})
	}
	exportVal = t.applySelMask(exportVal, srcId, mask)

	switch ref.Kind {
	case ExportKindPosition:
		exportVal = t.writePositionRemap(exportVal)
	case ExportKindPixel, ExportKindPixelWithFog:
		if ref.Index == 0 {
			t.writeAlphaTest(exportVal)
		}
		exportVal = t.writeLogicOpBroadcast(exportVal)
		t.ir.PixelOutUsed[ref.Index] = true
	case ExportKindParam:
		if ref.Index+1 > t.ir.NumParamExports {
			t.ir.NumParamExports = ref.Index + 1
		}
	}

	ir.emit(IRInst{Op: IROpStoreExport, Args: []IRValue{exportVal},
		A: uint32(ref.Kind), B: ref.Index})
}

// writePositionRemap applies the viewport transform constants:
// pos.xy = pos.xy*posMulAdd.xy + posMulAdd.zw, then a Y flip, then
// pos.z = (pos.z + pos.w*zSpaceMul.x) * zSpaceMul.y.
func (t *Transpiler) writePositionRemap(exportVal IRValue) IRValue {
	ir := t.ir

	posMulAdd := ir.emit(IRInst{Op: IROpLoadPushConst, Type: IRTypeFloat4, A: PushPosMulAdd})
	zSpaceMul := ir.emit(IRInst{Op: IROpLoadPushConst, Type: IRTypeFloat4, A: PushZSpaceMul})

	extract := func(vec IRValue, chan_ uint32) IRValue {
		return ir.emit(IRInst{Op: IROpCompositeExtract, Type: IRTypeFloat, Args: []IRValue{vec}, A: chan_})
	}
	insert := func(elem, vec IRValue, chan_ uint32) IRValue {
		return ir.emit(IRInst{Op: IROpCompositeInsert, Type: IRTypeFloat4, Args: []IRValue{elem, vec}, A: chan_})
	}

	x := extract(exportVal, 0)
	y := extract(exportVal, 1)
	x = ir.binOp(IROpFAdd, IRTypeFloat,
		ir.binOp(IROpFMul, IRTypeFloat, x, extract(posMulAdd, 0)), extract(posMulAdd, 2))
	y = ir.binOp(IROpFAdd, IRTypeFloat,
		ir.binOp(IROpFMul, IRTypeFloat, y, extract(posMulAdd, 1)), extract(posMulAdd, 3))
	y = ir.unaryOp(IROpFNeg, IRTypeFloat, y)
	exportVal = insert(x, exportVal, 0)
	exportVal = insert(y, exportVal, 1)

	z := extract(exportVal, 2)
	w := extract(exportVal, 3)
	zAdj := ir.binOp(IROpFAdd, IRTypeFloat, z,
		ir.binOp(IROpFMul, IRTypeFloat, w, extract(zSpaceMul, 0)))
	zFinal := ir.binOp(IROpFMul, IRTypeFloat, zAdj, extract(zSpaceMul, 1))
	return insert(zFinal, exportVal, 2)
}

// writeAlphaTest discards fragments failing the alpha-reference
// compare. The function and reference value arrive through the push
// constants; equality compares use an epsilon band.
func (t *Transpiler) writeAlphaTest(exportVal IRValue) {
	ir := t.ir

	alpha := ir.emit(IRInst{Op: IROpCompositeExtract, Type: IRTypeFloat, Args: []IRValue{exportVal}, A: 3})
	alphaData := ir.emit(IRInst{Op: IROpLoadPushConst, Type: IRTypeUint, A: PushAlphaData})
	alphaFunc := ir.binOp(IROpIAnd, IRTypeUint, alphaData, ir.constUint(0xFF))
	alphaRefVec := ir.emit(IRInst{Op: IROpLoadPushConst, Type: IRTypeFloat4, A: PushAlphaRef})
	alphaRef := ir.emit(IRInst{Op: IROpCompositeExtract, Type: IRTypeFloat, Args: []IRValue{alphaRefVec}, A: 0})

	discardUnless := func(pred IRValue) {
		notPred := ir.unaryOp(IROpLogicalNot, IRTypeBool, pred)
		ir.ifBegin(notPred)
		ir.emit(IRInst{Op: IROpDiscard})
		ir.ifEnd()
	}
	funcIs := func(fn uint32) IRValue {
		return ir.binOp(IROpIEqual, IRTypeBool, alphaFunc, ir.constUint(fn))
	}

	// NEVER discards unconditionally.
	ir.ifBegin(funcIs(RefFuncNever))
	ir.emit(IRInst{Op: IROpDiscard})
	ir.ifEnd()

	ir.ifBegin(funcIs(RefFuncLess))
	discardUnless(ir.binOp(IROpFOrdLessThan, IRTypeBool, alpha, alphaRef))
	ir.ifEnd()

	ir.ifBegin(funcIs(RefFuncLessEqual))
	discardUnless(ir.binOp(IROpFOrdLessThanEqual, IRTypeBool, alpha, alphaRef))
	ir.ifEnd()

	ir.ifBegin(funcIs(RefFuncGreater))
	discardUnless(ir.binOp(IROpFOrdGreaterThan, IRTypeBool, alpha, alphaRef))
	ir.ifEnd()

	ir.ifBegin(funcIs(RefFuncGreaterEqual))
	discardUnless(ir.binOp(IROpFOrdGreaterThanEqual, IRTypeBool, alpha, alphaRef))
	ir.ifEnd()

	epsilon := ir.constFloat(0.0001)
	diff := ir.binOp(IROpFSub, IRTypeFloat, alpha, alphaRef)
	diffAbs := ir.unaryOp(IROpFAbs, IRTypeFloat, diff)

	ir.ifBegin(funcIs(RefFuncEqual))
	ir.ifBegin(ir.binOp(IROpFOrdGreaterThan, IRTypeBool, diffAbs, epsilon))
	ir.emit(IRInst{Op: IROpDiscard})
	ir.ifEnd()
	ir.ifEnd()

	ir.ifBegin(funcIs(RefFuncNotEqual))
	ir.ifBegin(ir.binOp(IROpFOrdLessThanEqual, IRTypeBool, diffAbs, epsilon))
	ir.emit(IRInst{Op: IROpDiscard})
	ir.ifEnd()
	ir.ifEnd()
}

// writeLogicOpBroadcast implements the "set" logic op: when bit 8 of
// the alpha data constant is set the export is replaced by all-ones.
func (t *Transpiler) writeLogicOpBroadcast(exportVal IRValue) IRValue {
	ir := t.ir
	alphaData := ir.emit(IRInst{Op: IROpLoadPushConst, Type: IRTypeUint, A: PushAlphaData})
	logicOp := ir.binOp(IROpShiftRightLogical, IRTypeUint, alphaData, ir.constUint(8))
	lopSet := ir.binOp(IROpIEqual, IRTypeBool, logicOp, ir.constUint(1))

	one := ir.constFloat(1)
	ones := ir.emit(IRInst{Op: IROpCompositeConstruct4, Type: IRTypeFloat4,
		Args: []IRValue{one, one, one, one}})
	return ir.triOp(IROpSelect, IRTypeFloat4, lopSet, ones, exportVal)
}

// translateStreamExport writes a burst of registers into one of the
// four stream-out buffers.
func (t *Transpiler) translateStreamExport(cf ControlFlowInst) {
	streamIdx := uint32(cf.CfInst() - CF_INST_MEM_STREAM0)
	stride := uint32(0)
	if t.vsDesc != nil {
		stride = t.vsDesc.StreamOutStride[streamIdx]
	} else if t.gsDesc != nil {
		stride = t.gsDesc.StreamOutStride[streamIdx]
	}

	ref, err := makeMemExportRef(ExportKind(int(ExportKindStream0Write)+int(streamIdx)), cf.ExpType(),
		cf.ExpIndexGpr(), stride, cf.ExpArrayBase(), cf.ExpArraySize(), cf.ExpElemSize()+1)
	if err != nil {
		abortShader("%v", err)
	}

	t.translateMemExport(cf, ref)
	t.ir.StreamOutUsed[streamIdx] = true
}

// translateRingExport writes to the vs->gs or gs->dc ring, depending
// on the stage.
func (t *Transpiler) translateRingExport(cf ControlFlowInst) {
	kind := ExportKindVsGsRingWrite
	if t.stage == StageGeometry || t.stage == StageDataCache {
		kind = ExportKindGsDcRingWrite
	}
	ref, err := makeMemExportRef(kind, cf.ExpType(),
		cf.ExpIndexGpr(), 0, cf.ExpArrayBase(), cf.ExpArraySize(), cf.ExpElemSize()+1)
	if err != nil {
		abortShader("%v", err)
	}
	t.translateMemExport(cf, ref)
}

// translateMemExport emits the burst of memory writes for a stream or
// ring export. The component mask selects which lanes are stored.
func (t *Transpiler) translateMemExport(cf ControlFlowInst, ref ExportRef) {
	ir := t.ir
	srcGpr, err := makeGprRef(cf.ExpRwGpr(), cf.ExpRwRel(), IndexLoop)
	if err != nil {
		abortShader("%v", err)
	}

	count := cf.ExpBurstCount() + 1
	for i := uint32(0); i < count; i++ {
		value := t.readGprVec(srcGpr)
		var offset IRValue
		if ref.IndexGpr >= 0 {
			idx := t.readGprChan(GprChanRef{Gpr: GprRef{Number: uint32(ref.IndexGpr)}, Chan: ChanX})
			offset = t.bitcastTo(idx, IRTypeUint)
		} else {
			offset = ir.constUint(0)
		}
		ir.emit(IRInst{Op: IROpMemExport, Args: []IRValue{value, offset},
			A: uint32(ref.Kind), B: ref.Index + i})
	}
}
