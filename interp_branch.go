// interp_branch.go - Branch handlers

package main

import "fmt"

// BO field bits, numbered from the least significant end.
const (
	boCtrValue    = 1
	boNoCheckCtr  = 2
	boCondValue   = 3
	boNoCheckCond = 4
)

func boBit(bo, bit uint32) bool {
	return (bo>>bit)&1 != 0
}

// branchConditionMet evaluates the BO/BI condition, decrementing CTR
// when the BO field asks for a count check.
func branchConditionMet(state *ThreadState, bo, bi uint32, allowCtr bool) bool {
	ctrOK := true
	if allowCtr && !boBit(bo, boNoCheckCtr) {
		state.CTR--
		ctrOK = (state.CTR != 0) != boBit(bo, boCtrValue)
	}

	condOK := true
	if !boBit(bo, boNoCheckCond) {
		condOK = (state.CRBit(bi) != 0) == boBit(bo, boCondValue)
	}

	return ctrOK && condOK
}

func registerBranchInstructions() {
	registerInstruction(InstrB, func(core *Core, instr Instruction) {
		s := &core.state
		target := uint32(instr.LI())
		if !instr.AA() {
			target += s.CIA
		}
		if instr.LK() {
			s.LR = s.CIA + 4
		}
		s.NIA = target
	})

	registerInstruction(InstrBc, func(core *Core, instr Instruction) {
		s := &core.state
		if instr.LK() {
			s.LR = s.CIA + 4
		}
		if branchConditionMet(s, instr.BO(), instr.BI(), true) {
			target := uint32(instr.BD())
			if !instr.AA() {
				target += s.CIA
			}
			s.NIA = target
		}
	})

	registerInstruction(InstrBclr, func(core *Core, instr Instruction) {
		s := &core.state
		target := s.LR &^ 0x3
		if instr.LK() {
			s.LR = s.CIA + 4
		}
		if branchConditionMet(s, instr.BO(), instr.BI(), true) {
			s.NIA = target
		}
	})

	registerInstruction(InstrBcctr, func(core *Core, instr Instruction) {
		s := &core.state
		if instr.LK() {
			s.LR = s.CIA + 4
		}
		// bcctr never decrements CTR.
		if branchConditionMet(s, instr.BO(), instr.BI(), false) {
			s.NIA = s.CTR &^ 0x3
		}
	})

	registerInstruction(InstrSc, func(core *Core, instr Instruction) {
		// The syscall vector belongs to the kernel shim; guest images
		// built for this engine enter host services through kc.
		panic(fmt.Sprintf("sc executed with no kernel shim at %08X", core.state.CIA))
	})

	registerInstruction(InstrKc, func(core *Core, instr Instruction) {
		kc := core.engine.GetKernelCall(instr.KCN())
		if kc == nil {
			panic(fmt.Sprintf("core %d: invalid kernel call id %d at %08X", core.id, instr.KCN(), core.state.CIA))
		}
		kc.Fn(&core.state, kc.UserData)
	})
}
