// shader_alu_reduc.go - Reduction instruction translation

package main

// translateAluReduction handles the instructions that logically occupy
// all four vector units and produce one value.
func (t *Transpiler) translateAluReduction(cf ControlFlowInst, group *AluInstructionGroup) {
	ir := t.ir
	first := group.units[0]
	if first.Encoding() != AluOp2 {
		abortShader("unexpected OP3 reduction instruction")
	}

	switch first.Op2Inst() {
	case OP2_INST_DOT4, OP2_INST_DOT4_IEEE:
		src0 := t.readAluReducSrc(cf, group, 0)
		src1 := t.readAluReducSrc(cf, group, 1)
		output := ir.binOp(IROpDot4, IRTypeFloat, src0, src1)
		t.writeAluReducDest(cf, group, output)

	default:
		abortShader("unimplemented reduction instruction %s", aluInstInfo(*first).name)
	}
}
