// shader_translator_test.go - Translation and reference execution

package main

import "testing"

// ---------------------------------------------------------------------------
// Previous-value forwarding
// ---------------------------------------------------------------------------

// Group 1 writes PV.x = 2.0; group 2 computes PV.x + 1 into r2.y.
func TestTranslatePrevValueForwarding(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 2, 4))
	asm.setCf(1, cfNormalWord(CF_INST_NOP, 0, true))

	// Group 1: MOV r1.x <- literal 2.0
	asm.setAlu(2, movLiteral(1, ChanX, true))
	asm.setLiterals(3, 2.0, 0)

	// Group 2: ADD r2.y <- PV.x + literal 1.0
	asm.setAlu(4, aluBuild{
		op: OP2_INST_ADD, dstGpr: 2, dstChan: ChanY, write: true,
		src0Sel: AluSrcPV, src0Chan: ChanX,
		src1Sel: AluSrcLiteral, src1Chan: ChanX,
		last: true,
	}.encode())
	asm.setLiterals(5, 1.0, 0)

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes(), AluPreferVector: true}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}
	if got := eval.GprFloat(1, 0); got != 2.0 {
		t.Fatalf("r1.x = %v, want 2.0", got)
	}
	if got := eval.GprFloat(2, 1); got != 3.0 {
		t.Fatalf("r2.y = %v, want 3.0", got)
	}
}

// PS forwards the previous group's scalar-unit result.
func TestTranslatePrevScalarForwarding(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 2, 2))
	asm.setCf(1, cfNormalWord(CF_INST_NOP, 0, true))

	// Group 1: SIN on unit T of literal 0.0 -> PS = 0.0
	asm.setAlu(2, aluBuild{
		op: OP2_INST_SIN, dstGpr: 1, dstChan: ChanX, write: true,
		src0Sel: AluSrcImm0, last: true,
	}.encode())

	// Group 2: ADD r3.x <- PS + 1.0
	asm.setAlu(3, aluBuild{
		op: OP2_INST_ADD, dstGpr: 3, dstChan: ChanX, write: true,
		src0Sel: AluSrcPS, src1Sel: AluSrcImm1,
		last: true,
	}.encode())

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes(), AluPreferVector: true}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}
	if got := eval.GprFloat(3, 0); got != 1.0 {
		t.Fatalf("r3.x = %v, want 1.0", got)
	}
}

// Writes inside a group stay invisible until the group boundary.
func TestTranslateGprWritesStagePerGroup(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 2, 2))
	asm.setCf(1, cfNormalWord(CF_INST_NOP, 0, true))

	// One group, two units: X writes r5.x = 9.0 (literal), Y reads
	// r5.x into r6.y. The read must observe the pre-group value.
	asm.setAlu(2, aluBuild{
		op: OP2_INST_MOV, dstGpr: 5, dstChan: ChanX, write: true,
		src0Sel: AluSrcLiteral, src0Chan: ChanX,
	}.encode())
	asm.setAlu(3, aluBuild{
		op: OP2_INST_MOV, dstGpr: 6, dstChan: ChanY, write: true,
		src0Sel: 5, src0Chan: ChanX,
		last: true,
	}.encode())
	// No literal slot follows unit Y's instruction, so attach the pool
	// after the group: slots = inst, inst, literal.
	asm.setLiterals(4, 9.0, 0)
	// The clause spans 3 slots.
	asm.setCf(0, cfAluWord(CF_INST_ALU, 2, 3))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes(), AluPreferVector: true}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	eval.SetGprFloat(5, 0, 4.0) // pre-group value
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}
	if got := eval.GprFloat(6, 1); got != 4.0 {
		t.Fatalf("r6.y = %v, want the pre-group 4.0", got)
	}
	if got := eval.GprFloat(5, 0); got != 9.0 {
		t.Fatalf("r5.x = %v, want 9.0 after the flush", got)
	}
}

// ---------------------------------------------------------------------------
// Execution-mask stack
// ---------------------------------------------------------------------------

func TestTranslateExecMaskElse(t *testing.T) {
	asm := &shaderAsm{}

	// PRED_SETE(5.0, 0.0) with UPDATE_EXECUTE_MASK deactivates the
	// then-branch; ELSE reactivates because the pushed parent state is
	// Active.
	asm.setCf(0, cfAluWord(CF_INST_ALU_PUSH_BEFORE, 6, 2))
	asm.setCf(1, cfAluWord(CF_INST_ALU, 8, 2))  // then: r10.x = 7
	asm.setCf(2, cfNormalWord(CF_INST_ELSE, 0, false))
	asm.setCf(3, cfAluWord(CF_INST_ALU, 10, 2)) // else: r11.x = 9
	asm.setCf(4, cfNormalWord(CF_INST_POP, 1, true))

	asm.setAlu(6, aluBuild{
		op: OP2_INST_PRED_SETE, dstChan: ChanX,
		src0Sel: AluSrcLiteral, src0Chan: ChanX,
		src1Sel: AluSrcLiteral, src1Chan: ChanY,
		updExec: true, updPred: true, last: true,
	}.encode())
	asm.setLiterals(7, 5.0, 0.0)

	asm.setAlu(8, movLiteral(10, ChanX, true))
	asm.setLiterals(9, 7.0, 0)

	asm.setAlu(10, movLiteral(11, ChanX, true))
	asm.setLiterals(11, 9.0, 0)

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes(), AluPreferVector: true}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}
	if got := eval.GprFloat(10, 0); got != 0 {
		t.Fatalf("inactive then-branch wrote r10.x = %v", got)
	}
	if got := eval.GprFloat(11, 0); got != 9.0 {
		t.Fatalf("else-branch r11.x = %v, want 9.0", got)
	}
	if eval.State != execStateActive {
		t.Fatalf("POP must restore the Active state, got %d", eval.State)
	}
}

func TestTranslateExecMaskTakenBranchSkipsElse(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU_PUSH_BEFORE, 6, 2))
	asm.setCf(1, cfAluWord(CF_INST_ALU, 8, 2))
	asm.setCf(2, cfNormalWord(CF_INST_ELSE, 0, false))
	asm.setCf(3, cfAluWord(CF_INST_ALU, 10, 2))
	asm.setCf(4, cfNormalWord(CF_INST_POP, 1, true))

	// 5.0 == 5.0 keeps the state active.
	asm.setAlu(6, aluBuild{
		op: OP2_INST_PRED_SETE, dstChan: ChanX,
		src0Sel: AluSrcLiteral, src0Chan: ChanX,
		src1Sel: AluSrcLiteral, src1Chan: ChanY,
		updExec: true, updPred: true, last: true,
	}.encode())
	asm.setLiterals(7, 5.0, 5.0)

	asm.setAlu(8, movLiteral(10, ChanX, true))
	asm.setLiterals(9, 7.0, 0)
	asm.setAlu(10, movLiteral(11, ChanX, true))
	asm.setLiterals(11, 9.0, 0)

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes(), AluPreferVector: true}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}
	if got := eval.GprFloat(10, 0); got != 7.0 {
		t.Fatalf("then-branch r10.x = %v, want 7.0", got)
	}
	if got := eval.GprFloat(11, 0); got != 0 {
		t.Fatalf("inactive else-branch wrote r11.x = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Exports
// ---------------------------------------------------------------------------

func identityPushConsts(eval *IREvaluator) {
	eval.SetPushConstFloat(PushPosMulAdd, 1, 1, 0, 0)
	eval.SetPushConstFloat(PushZSpaceMul, 0, 1, 0, 0)
}

func TestTranslatePositionExport(t *testing.T) {
	desc := &VertexShaderDesc{}
	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 4, 3))
	asm.setCf(1, cfExportWord(CF_INST_EXP_DONE, ExportPos, 60, 1, 0,
		[4]SQSel{SelX, SelY, SelZ, SelW}, true))

	// One group writes r1.xy from the literal pool; z and w are seeded
	// directly into the evaluator below.
	asm.setAlu(4, movLiteral(1, ChanX, false))
	asm.setAlu(5, aluBuild{
		op: OP2_INST_MOV, dstGpr: 1, dstChan: ChanY, write: true,
		src0Sel: AluSrcLiteral, src0Chan: ChanY, last: true,
	}.encode())
	asm.setLiterals(6, 0.5, 0.25)

	desc.Binary = asm.bytes()
	desc.AluPreferVector = true
	module, err := TranslateVertexShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	identityPushConsts(eval)
	eval.SetGprFloat(1, 2, 0.75)
	eval.SetGprFloat(1, 3, 1.0)
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}

	pos := eval.ExportFloat4(ExportKindPosition, 0)
	if pos[0] != 0.5 {
		t.Fatalf("pos.x = %v, want 0.5", pos[0])
	}
	if pos[1] != -0.25 {
		t.Fatalf("pos.y = %v, want the Y flip of 0.25", pos[1])
	}
	if pos[2] != 0.75 {
		t.Fatalf("pos.z = %v, want 0.75 under the identity remap", pos[2])
	}
}

func TestTranslateFullyMaskedExportIsElided(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfExportWord(CF_INST_EXP_DONE, ExportParam, 0, 1, 0,
		[4]SQSel{SelMask, SelMask, SelMask, SelMask}, true))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes()}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	for _, inst := range module.Insts {
		if inst.Op == IROpStoreExport {
			t.Fatalf("a fully masked export must be elided")
		}
	}
}

func TestTranslateExportSwizzleConstants(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfExportWord(CF_INST_EXP_DONE, ExportParam, 3, 2, 0,
		[4]SQSel{SelW, Sel0, Sel1, SelX}, true))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes()}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	eval.SetGprFloat(2, 0, 10)
	eval.SetGprFloat(2, 3, 40)
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}

	param := eval.ExportFloat4(ExportKindParam, 3)
	want := [4]float32{40, 0, 1, 10}
	if param != want {
		t.Fatalf("param3 = %v, want %v", param, want)
	}
	if module.NumParamExports != 4 {
		t.Fatalf("NumParamExports = %d, want 4", module.NumParamExports)
	}
}

// ---------------------------------------------------------------------------
// Pixel stage: alpha test and kill
// ---------------------------------------------------------------------------

func pixelColorShader(alpha float32) []byte {
	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 4, 2))
	asm.setCf(1, cfExportWord(CF_INST_EXP_DONE, ExportPixel, 0, 0, 0,
		[4]SQSel{SelX, SelX, SelX, SelW}, true))

	// r0.w = alpha
	asm.setAlu(4, aluBuild{
		op: OP2_INST_MOV, dstGpr: 0, dstChan: ChanW, write: true,
		src0Sel: AluSrcLiteral, src0Chan: ChanX, last: true,
	}.encode())
	asm.setLiterals(5, alpha, 0)
	return asm.bytes()
}

func TestTranslateAlphaTestDiscards(t *testing.T) {
	desc := &PixelShaderDesc{}
	desc.Binary = pixelColorShader(0.75)
	module, err := TranslatePixelShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	run := func(alphaFunc uint32, ref float32) bool {
		eval := NewIREvaluator(module)
		eval.PushConsts[PushAlphaData] = [4]uint32{alphaFunc, 0, 0, 0}
		eval.SetPushConstFloat(PushAlphaRef, ref, 0, 0, 0)
		if err := eval.Run(); err != nil {
			t.Fatal(err)
		}
		return eval.Discarded
	}

	if run(RefFuncAlways, 0.5) {
		t.Fatalf("ALWAYS must never discard")
	}
	if !run(RefFuncNever, 0.5) {
		t.Fatalf("NEVER must always discard")
	}
	if !run(RefFuncLess, 0.5) {
		t.Fatalf("LESS with alpha 0.75 against ref 0.5 must discard")
	}
	if run(RefFuncGreater, 0.5) {
		t.Fatalf("GREATER with alpha 0.75 against ref 0.5 must keep the fragment")
	}
	if run(RefFuncEqual, 0.75) {
		t.Fatalf("EQUAL at the reference value must keep the fragment")
	}
}

func TestTranslateKillDiscardsPixel(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 2, 2))
	asm.setCf(1, cfNormalWord(CF_INST_NOP, 0, true))

	// KILLGT(1.0, 0.0) always fires.
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

	eval := NewIREvaluator(module)
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}
	if !eval.Discarded {
		t.Fatalf("KILLGT with a true condition must discard the fragment")
	}
}

// ---------------------------------------------------------------------------
// Failure semantics
// ---------------------------------------------------------------------------

func TestTranslateUnimplementedCfAborts(t *testing.T) {
	asm := &shaderAsm{}
	asm.setCf(0, cfNormalWord(CF_INST_LOOP_START, 0, true))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes()}
	if _, err := TranslateShader(desc); err == nil {
		t.Fatalf("an unimplemented CF instruction must abort the shader")
	}
}

func TestTranslateEmptyBinaryAborts(t *testing.T) {
	desc := &ShaderDesc{Stage: StageGeometry}
	if _, err := TranslateShader(desc); err == nil {
		t.Fatalf("an empty binary must abort")
	}
}

// ---------------------------------------------------------------------------
// Vertex prolog
// ---------------------------------------------------------------------------

func TestVertexPrologSeedsR0(t *testing.T) {
	desc := &VertexShaderDesc{}
	asm := &shaderAsm{}
	asm.setCf(0, cfNormalWord(CF_INST_NOP, 0, true))
	desc.Binary = asm.bytes()

	module, err := TranslateVertexShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	identityPushConsts(eval)
	eval.VertexID = 17
	eval.InstanceID = 3
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}

	if bits := eval.Gpr[0][0]; int32(bits) != 17 {
		t.Fatalf("r0.x = %d, want the vertex id 17", int32(bits))
	}
	if bits := eval.Gpr[0][1]; int32(bits) != 3 {
		t.Fatalf("r0.y = %d, want the instance id 3", int32(bits))
	}
}
