// shader_tex.go - TEX clause translation

package main

func (t *Transpiler) translateCfTex(cf ControlFlowInst) {
	t.startCfCondBlock(cf.Cond(), cf.CfConst())

	insts, err := decodeTexClause(t.binary, cf.Addr(), cf.ClauseCount())
	if err != nil {
		abortShader("%v", err)
	}
	for _, inst := range insts {
		t.translateTexInst(cf, inst)
		t.texVtxPC++
	}

	t.endCfCondBlock()
}

func (t *Transpiler) translateTexInst(cf ControlFlowInst, inst TextureFetchInst) {
	switch inst.TexInst() {
	case TEX_INST_VTX_FETCH, TEX_INST_VTX_SEMANTIC:
		// VTX-style sub-opcodes forward to the VTX path.
		vtx := VertexFetchInst{Word0: inst.Word0, Word1: inst.Word1, Word2: inst.Word2}
		t.translateVtxInst(cf, vtx)
	case TEX_INST_SET_CUBEMAP_INDEX:
		// A hint for the hardware cubemap path; nothing to emit.
	case TEX_INST_SAMPLE:
		t.translateTexSample(cf, inst, SampleKindNormal)
	case TEX_INST_SAMPLE_L:
		t.translateTexSample(cf, inst, SampleKindLod)
	case TEX_INST_SAMPLE_LB:
		t.translateTexSample(cf, inst, SampleKindBias)
	case TEX_INST_SAMPLE_LZ:
		t.translateTexSample(cf, inst, SampleKindLodZero)
	case TEX_INST_SAMPLE_C:
		t.translateTexSample(cf, inst, SampleKindCompare)
	case TEX_INST_SAMPLE_C_LZ:
		t.translateTexSample(cf, inst, SampleKindCompareLodZero)
	case TEX_INST_FETCH4:
		t.translateTexSample(cf, inst, SampleKindGather4)
	default:
		abortShader("unimplemented TEX instruction %d", inst.TexInst())
	}
}

// checkTexCoordTypes validates the per-coordinate normalized flags
// against what the texture's dimensionality requires.
func (t *Transpiler) checkTexCoordTypes(inst TextureFetchInst, dim TexDim) {
	normalized := func(isNorm bool, coord string) {
		if !isNorm {
			abortShader("TEX coordinate %s must be normalized for this texture", coord)
		}
	}
	unnormalized := func(isNorm bool, coord string) {
		if isNorm {
			abortShader("TEX coordinate %s must be unnormalized for this texture", coord)
		}
	}

	switch dim {
	case TexDim1D:
		normalized(inst.CoordTypeX(), "x")
	case TexDim1DArray:
		normalized(inst.CoordTypeX(), "x")
		unnormalized(inst.CoordTypeY(), "y")
	case TexDim2D, TexDim2DMSAA:
		// Both conventions appear in the wild.
	case TexDim3D, TexDimCubemap:
		normalized(inst.CoordTypeX(), "x")
		normalized(inst.CoordTypeY(), "y")
		normalized(inst.CoordTypeZ(), "z")
	case TexDim2DArray:
		normalized(inst.CoordTypeX(), "x")
		normalized(inst.CoordTypeY(), "y")
		unnormalized(inst.CoordTypeZ(), "z")
	default:
		abortShader("unexpected texture dimension %d", dim)
	}
}

func (t *Transpiler) translateTexSample(cf ControlFlowInst, inst TextureFetchInst, kind uint32) {
	ir := t.ir

	if inst.BcFracMode() {
		abortShader("BC_FRAC_MODE sampling is not supported")
	}

	textureID := inst.ResourceID()
	samplerID := inst.SamplerID()
	if textureID >= MaxTextures {
		abortShader("texture id %d out of range", textureID)
	}
	dim := t.desc.TexDims[textureID]
	t.checkTexCoordTypes(inst, dim)

	var srcMask, dstMask [4]SQSel
	for i := 0; i < 4; i++ {
		srcMask[i] = inst.SrcSel(SQChan(i))
		dstMask[i] = inst.DstSel(SQChan(i))
	}

	srcGpr, err := makeGprRef(inst.SrcGpr(), inst.SrcRel(), IndexLoop)
	if err != nil {
		abortShader("%v", err)
	}
	dstGpr, err := makeGprRef(inst.DstGpr(), inst.DstRel(), IndexLoop)
	if err != nil {
		abortShader("%v", err)
	}

	source := t.readGprVec(srcGpr)
	coord := t.applySelMask(source, source, srcMask)

	args := []IRValue{coord}
	if kind == SampleKindBias {
		// The seven-bit bias field is a signed 4.3 fixed-point value.
		bias := float32(int32(inst.LodBias()<<25)>>25) / 8.0
		args = append(args, ir.constFloat(bias))
	}

	t.ir.TexturesUsed[textureID] = true
	t.ir.SamplersUsed[samplerID] = true

	output := ir.emit(IRInst{
		Op:   IROpSampleTexture,
		Type: IRTypeFloat4,
		Args: args,
		A:    kind,
		B:    textureID<<8 | samplerID,
	})

	if isSwizzleFullyMasked(dstMask) {
		return
	}
	dest := t.readGprVec(dstGpr)
	result := t.applySelMask(dest, output, dstMask)
	t.writeGprVec(dstGpr, result)
}
