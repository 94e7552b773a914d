// interp_condition.go - Condition register logical handlers

package main

func registerConditionInstructions() {
	crOp := func(id InstructionID, op func(a, b uint32) uint32) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			a := s.CRBit(instr.CRBA())
			b := s.CRBit(instr.CRBB())
			s.SetCRBit(instr.CRBD(), op(a, b)&1)
		})
	}

	crOp(InstrCrand, func(a, b uint32) uint32 { return a & b })
	crOp(InstrCrandc, func(a, b uint32) uint32 { return a &^ b })
	crOp(InstrCreqv, func(a, b uint32) uint32 { return ^(a ^ b) })
	crOp(InstrCrnand, func(a, b uint32) uint32 { return ^(a & b) })
	crOp(InstrCrnor, func(a, b uint32) uint32 { return ^(a | b) })
	crOp(InstrCror, func(a, b uint32) uint32 { return a | b })
	crOp(InstrCrorc, func(a, b uint32) uint32 { return a | ^b })
	crOp(InstrCrxor, func(a, b uint32) uint32 { return a ^ b })

	registerInstruction(InstrMcrf, func(core *Core, instr Instruction) {
		s := &core.state
		s.SetCRField(instr.CRFD(), s.CRField(instr.CRFS()))
	})
}
