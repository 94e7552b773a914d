// spirv_dump_test.go - SPIR-V lowering sanity

package main

import "testing"

func dumpTestModule(t *testing.T) []uint32 {
	t.Helper()

	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 4, 4))
	asm.setCf(1, cfExportWord(CF_INST_EXP_DONE, ExportPos, 60, 1, 0,
		[4]SQSel{SelX, SelY, SelZ, SelW}, true))
	asm.setAlu(4, movLiteral(1, ChanX, true))
	asm.setLiterals(5, 2.0, 0)
	asm.setAlu(6, aluBuild{
		op: OP2_INST_ADD, dstGpr: 1, dstChan: ChanY, write: true,
		src0Sel: AluSrcPV, src0Chan: ChanX,
		src1Sel: AluSrcImm1, last: true,
	}.encode())

	desc := &VertexShaderDesc{}
	desc.Binary = asm.bytes()
	desc.AluPreferVector = true
	module, err := TranslateVertexShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	words, err := DumpSPIRV(module)
	if err != nil {
		t.Fatal(err)
	}
	return words
}

func TestSpirvDumpHeader(t *testing.T) {
	words := dumpTestModule(t)

	if len(words) < 5 {
		t.Fatalf("module too short: %d words", len(words))
	}
	if words[0] != 0x07230203 {
		t.Fatalf("magic = %08X, want 07230203", words[0])
	}
	if words[1] != 0x00010300 {
		t.Fatalf("version = %08X, want 1.3", words[1])
	}
	if words[3] == 0 {
		t.Fatalf("id bound must be non-zero")
	}
}

// Every instruction's declared word count must walk the stream exactly.
func TestSpirvDumpWellFormedStream(t *testing.T) {
	words := dumpTestModule(t)

	idx := 5
	sawEntryPoint := false
	sawFunctionEnd := false
	for idx < len(words) {
		count := int(words[idx] >> 16)
		op := words[idx] & 0xFFFF
		if count == 0 {
			t.Fatalf("zero-length instruction at word %d", idx)
		}
		if idx+count > len(words) {
			t.Fatalf("instruction at word %d overruns the stream", idx)
		}
		switch op {
		case spvOpEntryPoint:
			sawEntryPoint = true
		case spvOpFunctionEnd:
			sawFunctionEnd = true
		}
		idx += count
	}
	if idx != len(words) {
		t.Fatalf("instruction stream is misaligned")
	}
	if !sawEntryPoint {
		t.Fatalf("no entry point emitted")
	}
	if !sawFunctionEnd {
		t.Fatalf("no function end emitted")
	}
}

func TestSpirvDumpStructuredConditionals(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 2, 2))
	asm.setCf(1, cfNormalWord(CF_INST_NOP, 0, true))
	asm.setAlu(2, aluBuild{
		op: OP2_INST_KILLGT, dstChan: ChanX,
		src0Sel: AluSrcLiteral, src0Chan: ChanX,
		src1Sel: AluSrcLiteral, src1Chan: ChanY,
		last: true,
	}.encode())
	asm.setLiterals(3, 1.0, 0.0)

	desc := &PixelShaderDesc{}
	desc.Binary = asm.bytes()
	module, err := TranslatePixelShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	words, err := DumpSPIRV(module)
	if err != nil {
		t.Fatal(err)
	}

	merges, branches, labels, kills := 0, 0, 0, 0
	idx := 5
	for idx < len(words) {
		count := int(words[idx] >> 16)
		switch words[idx] & 0xFFFF {
		case spvOpSelectionMerge:
			merges++
		case spvOpBranchConditional:
			branches++
		case spvOpLabel:
			labels++
		case spvOpKill:
			kills++
		}
		idx += count
	}
	if merges == 0 || branches == 0 {
		t.Fatalf("conditional lowering emitted no merge/branch structure")
	}
	if merges != branches {
		t.Fatalf("merges (%d) and conditional branches (%d) must pair up", merges, branches)
	}
	if kills != 1 {
		t.Fatalf("kill count = %d, want 1", kills)
	}
	if labels < 3 {
		t.Fatalf("conditionals need then/else/merge labels, got %d", labels)
	}
}

func TestSpirvDumpShaderFingerprintStable(t *testing.T) {
	binaryData := []byte{1, 2, 3, 4}
	a := FingerprintShader(StageVertex, binaryData)
	b := FingerprintShader(StageVertex, binaryData)
	if a != b {
		t.Fatalf("fingerprints of identical inputs must match")
	}
	if a == FingerprintShader(StagePixel, binaryData) {
		t.Fatalf("the stage must participate in the fingerprint")
	}
}
