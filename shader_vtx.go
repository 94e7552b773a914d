// shader_vtx.go - VTX clause translation

package main

func (t *Transpiler) translateCfVtx(cf ControlFlowInst) {
	t.startCfCondBlock(cf.Cond(), cf.CfConst())

	insts, err := decodeVtxClause(t.binary, cf.Addr(), cf.ClauseCount())
	if err != nil {
		abortShader("%v", err)
	}
	for _, inst := range insts {
		t.translateVtxInst(cf, inst)
		t.texVtxPC++
	}

	t.endCfCondBlock()
}

func (t *Transpiler) translateVtxInst(cf ControlFlowInst, inst VertexFetchInst) {
	switch inst.VtxInst() {
	case VTX_INST_FETCH, VTX_INST_SEMANTIC:
		t.translateVtxFetch(cf, inst)
	default:
		abortShader("unimplemented VTX instruction %d", inst.VtxInst())
	}
}

// vtxFormatDesc packs the per-fetch format controls into the buffer
// fetch op's immediate: data format, number format, signedness and
// endian swap.
func vtxFormatDesc(inst VertexFetchInst) uint32 {
	desc := inst.DataFormat()
	desc |= inst.NumFormatAll() << 8
	if inst.FormatCompAll() {
		desc |= 1 << 10
	}
	desc |= inst.EndianSwap() << 11
	return desc
}

// translateVtxFetch emits a buffer load: the fetch index comes from
// the selected channel of the source GPR, scaled by the fetch stride,
// plus the instruction's byte offset.
func (t *Transpiler) translateVtxFetch(cf ControlFlowInst, inst VertexFetchInst) {
	ir := t.ir

	srcGpr, err := makeGprRef(inst.SrcGpr(), inst.SrcRel(), IndexLoop)
	if err != nil {
		abortShader("%v", err)
	}
	if inst.SrcSelX() > SelW {
		abortShader("unexpected VTX source selector %d", inst.SrcSelX())
	}
	index := t.readGprChan(GprChanRef{Gpr: srcGpr, Chan: SQChan(inst.SrcSelX())})
	index = t.bitcastTo(index, IRTypeUint)

	// The mega-fetch count encodes the fetch stride minus one.
	stride := inst.MegaFetchCount() + 1
	scaled := ir.binOp(IROpIMul, IRTypeUint, index, ir.constUint(stride))
	offset := ir.binOp(IROpIAdd, IRTypeUint, scaled, ir.constUint(inst.Offset()))

	output := ir.emit(IRInst{
		Op:   IROpBufferFetch,
		Type: IRTypeFloat4,
		Args: []IRValue{offset},
		A:    vtxFormatDesc(inst),
		B:    inst.BufferID(),
	})

	var dstMask [4]SQSel
	for i := 0; i < 4; i++ {
		dstMask[i] = inst.DstSel(SQChan(i))
	}
	if isSwizzleFullyMasked(dstMask) {
		return
	}

	dstGpr, err := makeGprRef(inst.DstGpr(), inst.DstRel(), IndexLoop)
	if err != nil {
		abortShader("%v", err)
	}
	dest := t.readGprVec(dstGpr)
	result := t.applySelMask(dest, output, dstMask)
	t.writeGprVec(dstGpr, result)
}
