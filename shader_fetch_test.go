// shader_fetch_test.go - TEX and VTX clause translation

package main

import (
	"encoding/binary"
	"math"
	"testing"
)

func texSampleInst(texInst TexOpcode, textureID, samplerID, srcGpr, dstGpr uint32) TextureFetchInst {
	word0 := uint32(texInst) | textureID<<8 | srcGpr<<16
	// Normalized coordinates everywhere, identity destination swizzle.
	word1 := dstGpr | 1<<28 | 1<<29 | 1<<30 | 1<<31
	for i := uint32(0); i < 4; i++ {
		word1 |= i << (9 + i*3)
	}
	word2 := samplerID << 15
	for i := uint32(0); i < 4; i++ {
		word2 |= i << (20 + i*3)
	}
	return TextureFetchInst{Word0: word0, Word1: word1, Word2: word2}
}

func (s *shaderAsm) setTex(slot int, inst TextureFetchInst) {
	s.ensure(slot + 1)
	s.slots[slot] = [2]uint32{inst.Word0, inst.Word1}
	s.slots[slot+1] = [2]uint32{inst.Word2, inst.Pad}
}

func TestTranslateTexSample(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfClauseWord(CF_INST_TEX, 2, 1, true))
	asm.setTex(2, texSampleInst(TEX_INST_SAMPLE, 3, 5, 1, 2))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes()}
	desc.TexDims[3] = TexDim2D
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	if !module.TexturesUsed[3] || !module.SamplersUsed[5] {
		t.Fatalf("texture and sampler usage must be recorded")
	}

	eval := NewIREvaluator(module)
	eval.SetGprFloat(1, 0, 0.25)
	eval.SetGprFloat(1, 1, 0.5)
	eval.Sample = func(textureID, samplerID, kind uint32, coord [4]float32) [4]float32 {
		if textureID != 3 || samplerID != 5 {
			t.Errorf("sample bound texture %d sampler %d, want 3/5", textureID, samplerID)
		}
		if kind != SampleKindNormal {
			t.Errorf("sample kind = %d, want normal", kind)
		}
		return [4]float32{coord[0], coord[1], 0, 1}
	}
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}

	if got := eval.GprFloat(2, 0); got != 0.25 {
		t.Fatalf("sampled r2.x = %v, want 0.25", got)
	}
	if got := eval.GprFloat(2, 3); got != 1 {
		t.Fatalf("sampled r2.w = %v, want 1", got)
	}
}

func TestTranslateSetCubemapIndexIsNoOp(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfClauseWord(CF_INST_TEX, 2, 1, true))
	asm.setTex(2, texSampleInst(TEX_INST_SET_CUBEMAP_INDEX, 0, 0, 0, 0))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes()}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}
	for _, inst := range module.Insts {
		if inst.Op == IROpSampleTexture {
			t.Fatalf("SET_CUBEMAP_INDEX must not sample")
		}
	}
}

func TestTranslateTexCoordTypeMismatchAborts(t *testing.T) {
	asm := &shaderAsm{}
	inst := texSampleInst(TEX_INST_SAMPLE, 0, 0, 1, 2)
	inst.Word1 &^= 1 << 30 // unnormalized z against a 3D texture
	asm.setCf(0, cfClauseWord(CF_INST_TEX, 2, 1, true))
	asm.setTex(2, inst)

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes()}
	desc.TexDims[0] = TexDim3D
	if _, err := TranslateShader(desc); err == nil {
		t.Fatalf("a coordinate-type mismatch must abort the shader")
	}
}

// ---------------------------------------------------------------------------
// Vertex fetch
// ---------------------------------------------------------------------------

func vtxFetchInst(bufferID, srcGpr, dstGpr, stride, offset, dataFormat, numFormat uint32, signed bool) VertexFetchInst {
	word0 := uint32(VTX_INST_FETCH) | bufferID<<8 | srcGpr<<16 | (stride-1)<<26
	word1 := dstGpr | dataFormat<<22 | numFormat<<28
	if signed {
		word1 |= 1 << 30
	}
	for i := uint32(0); i < 4; i++ {
		word1 |= i << (9 + i*3)
	}
	word2 := offset
	return VertexFetchInst{Word0: word0, Word1: word1, Word2: word2}
}

func (s *shaderAsm) setVtx(slot int, inst VertexFetchInst) {
	s.ensure(slot + 1)
	s.slots[slot] = [2]uint32{inst.Word0, inst.Word1}
	s.slots[slot+1] = [2]uint32{inst.Word2, inst.Pad}
}

func TestTranslateVtxFetchFloat(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfClauseWord(CF_INST_VTX, 2, 1, true))
	asm.setVtx(2, vtxFetchInst(1, 0, 4, 16, 4, FMT_32_32_FLOAT, NUM_FORMAT_SCALED, false))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes()}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	// Vertex index 1 selects the second 16-byte element.
	eval.Gpr[0][0] = 1
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(1.5)) // 1*16+4
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(2.5))
	eval.Buffers[1] = buf
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}

	if got := eval.GprFloat(4, 0); got != 1.5 {
		t.Fatalf("fetch x = %v, want 1.5", got)
	}
	if got := eval.GprFloat(4, 1); got != 2.5 {
		t.Fatalf("fetch y = %v, want 2.5", got)
	}
	if got := eval.GprFloat(4, 3); got != 1 {
		t.Fatalf("missing lanes default w to 1, got %v", got)
	}
}

func TestTranslateVtxFetchNormalized(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfClauseWord(CF_INST_VTX, 2, 1, true))
	asm.setVtx(2, vtxFetchInst(0, 0, 5, 4, 0, FMT_8_8_8_8, NUM_FORMAT_NORM, false))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes()}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	eval.Gpr[0][0] = 0
	eval.Buffers[0] = []byte{0, 127, 255, 51}
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}

	if got := eval.GprFloat(5, 0); got != 0 {
		t.Fatalf("unorm 0 = %v, want 0", got)
	}
	if got := eval.GprFloat(5, 2); got != 1 {
		t.Fatalf("unorm 255 = %v, want 1", got)
	}
	if got := eval.GprFloat(5, 3); math.Abs(float64(got-0.2)) > 0.01 {
		t.Fatalf("unorm 51 = %v, want ~0.2", got)
	}
}
