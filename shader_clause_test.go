// shader_clause_test.go - ALU group decomposition and unit assignment

package main

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Unit assignment
// ---------------------------------------------------------------------------

func TestClauseUnitAssignmentPreferred(t *testing.T) {
	slots := []AluInst{
		aluBuild{op: OP2_INST_ADD, dstChan: ChanX, write: true, src0Sel: AluSrcImm0, src1Sel: AluSrcImm1}.encode(),
		aluBuild{op: OP2_INST_ADD, dstChan: ChanZ, write: true, src0Sel: AluSrcImm0, src1Sel: AluSrcImm1, last: true}.encode(),
	}

	parser := newAluClauseParser(slots, true)
	group, err := parser.readOneGroup()
	if err != nil {
		t.Fatal(err)
	}

	if group.units[ChanX].Op2Inst() != OP2_INST_ADD {
		t.Fatalf("first instruction should land on its preferred unit X")
	}
	if group.units[ChanZ].Op2Inst() != OP2_INST_ADD {
		t.Fatalf("second instruction should land on its preferred unit Z")
	}
	if group.units[ChanY].Op2Inst() != OP2_INST_NOP {
		t.Fatalf("unused units must be NOP filled")
	}
	if !parser.isEndOfClause() {
		t.Fatalf("clause should be fully consumed")
	}
}

func TestClauseTranscendentalGoesToT(t *testing.T) {
	slots := []AluInst{
		aluBuild{op: OP2_INST_SIN, dstChan: ChanX, write: true, src0Sel: AluSrcImm0, last: true}.encode(),
	}

	parser := newAluClauseParser(slots, true)
	group, err := parser.readOneGroup()
	if err != nil {
		t.Fatal(err)
	}
	if group.units[ChanT].Op2Inst() != OP2_INST_SIN {
		t.Fatalf("transcendental-only instruction must land on unit T")
	}
	if group.units[ChanX].Op2Inst() != OP2_INST_NOP {
		t.Fatalf("the preferred unit must stay free for a transcendental op")
	}
}

func TestClauseOccupiedUnitSpillsToT(t *testing.T) {
	slots := []AluInst{
		aluBuild{op: OP2_INST_ADD, dstChan: ChanY, write: true, src0Sel: AluSrcImm0, src1Sel: AluSrcImm1}.encode(),
		aluBuild{op: OP2_INST_MUL, dstChan: ChanY, write: true, src0Sel: AluSrcImm0, src1Sel: AluSrcImm1, last: true}.encode(),
	}

	parser := newAluClauseParser(slots, true)
	group, err := parser.readOneGroup()
	if err != nil {
		t.Fatal(err)
	}
	if group.units[ChanY].Op2Inst() != OP2_INST_ADD {
		t.Fatalf("first instruction keeps the preferred unit")
	}
	if group.units[ChanT].Op2Inst() != OP2_INST_MUL {
		t.Fatalf("an occupied preferred unit must spill the instruction to T")
	}
}

func TestClauseUnitCollisionIsRejected(t *testing.T) {
	// Two transcendental-only instructions both demand unit T.
	slots := []AluInst{
		aluBuild{op: OP2_INST_SIN, dstChan: ChanX, write: true, src0Sel: AluSrcImm0}.encode(),
		aluBuild{op: OP2_INST_COS, dstChan: ChanY, write: true, src0Sel: AluSrcImm0, last: true}.encode(),
	}

	parser := newAluClauseParser(slots, true)
	if _, err := parser.readOneGroup(); err == nil {
		t.Fatalf("a unit collision must be rejected")
	}
}

// ---------------------------------------------------------------------------
// Literal pools
// ---------------------------------------------------------------------------

func TestClauseLiteralPoolSize(t *testing.T) {
	// One literal read on channel 2 needs a pool of 3 values, rounded
	// up to 2 slots of two values each.
	inst := aluBuild{
		op: OP2_INST_MOV, dstGpr: 1, dstChan: ChanX, write: true,
		src0Sel: AluSrcLiteral, src0Chan: ChanZ, last: true,
	}.encode()

	slots := []AluInst{
		inst,
		{Word0: math.Float32bits(1.0), Word1: math.Float32bits(2.0)},
		{Word0: math.Float32bits(3.0), Word1: 0},
	}

	parser := newAluClauseParser(slots, true)
	group, err := parser.readOneGroup()
	if err != nil {
		t.Fatal(err)
	}
	if len(group.literals) != 3 {
		t.Fatalf("literal pool size = %d, want 3", len(group.literals))
	}
	if math.Float32frombits(group.literals[2]) != 3.0 {
		t.Fatalf("literal[2] = %X, want bits of 3.0", group.literals[2])
	}
	if !parser.isEndOfClause() {
		t.Fatalf("literal slots must be consumed with the group")
	}
}

func TestClauseLiteralOverrunIsRejected(t *testing.T) {
	inst := aluBuild{
		op: OP2_INST_MOV, dstChan: ChanX, write: true,
		src0Sel: AluSrcLiteral, src0Chan: ChanW, last: true,
	}.encode()

	parser := newAluClauseParser([]AluInst{inst}, true)
	if _, err := parser.readOneGroup(); err == nil {
		t.Fatalf("a literal pool past the clause end must be rejected")
	}
}

// ---------------------------------------------------------------------------
// Reduction agreement (exercised through the translator)
// ---------------------------------------------------------------------------

func TestReductionGroupAgreementEnforced(t *testing.T) {
	asm := &shaderAsm{}
	// DOT4 on X/Y/Z but a mismatching MUL on W.
	mk := func(op AluOp2Opcode, chan_ SQChan, last bool) AluInst {
		return aluBuild{op: op, dstGpr: 1, dstChan: chan_, write: chan_ == ChanX,
			src0Sel: 2, src0Chan: chan_, src1Sel: 3, src1Chan: chan_, last: last}.encode()
	}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 2, 4))
	asm.setCf(1, cfNormalWord(CF_INST_NOP, 0, true))
	asm.setAlu(2, mk(OP2_INST_DOT4, ChanX, false))
	asm.setAlu(3, mk(OP2_INST_DOT4, ChanY, false))
	asm.setAlu(4, mk(OP2_INST_DOT4, ChanZ, false))
	asm.setAlu(5, mk(OP2_INST_MUL, ChanW, true))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes(), AluPreferVector: true}
	if _, err := TranslateShader(desc); err == nil {
		t.Fatalf("a mixed reduction group must abort the shader")
	}
}

func TestReductionDot4Translates(t *testing.T) {
	asm := &shaderAsm{}
	mk := func(chan_ SQChan, last bool) AluInst {
		return aluBuild{op: OP2_INST_DOT4, dstGpr: 4, dstChan: chan_, write: chan_ == ChanX,
			src0Sel: 2, src0Chan: chan_, src1Sel: 3, src1Chan: chan_, last: last}.encode()
	}
	asm.setCf(0, cfAluWord(CF_INST_ALU, 2, 4))
	asm.setCf(1, cfNormalWord(CF_INST_NOP, 0, true))
	asm.setAlu(2, mk(ChanX, false))
	asm.setAlu(3, mk(ChanY, false))
	asm.setAlu(4, mk(ChanZ, false))
	asm.setAlu(5, mk(ChanW, true))

	desc := &ShaderDesc{Stage: StageGeometry, Binary: asm.bytes(), AluPreferVector: true}
	module, err := TranslateShader(desc)
	if err != nil {
		t.Fatal(err)
	}

	eval := NewIREvaluator(module)
	for chan_ := uint32(0); chan_ < 4; chan_++ {
		eval.SetGprFloat(2, chan_, float32(chan_+1)) // (1,2,3,4)
		eval.SetGprFloat(3, chan_, 2)                // (2,2,2,2)
	}
	if err := eval.Run(); err != nil {
		t.Fatal(err)
	}
	if got := eval.GprFloat(4, 0); got != 20 {
		t.Fatalf("dot4 = %v, want 20", got)
	}
}
