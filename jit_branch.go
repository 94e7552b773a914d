// jit_branch.go - Branch emitters for translated blocks

package main

// checkInterruptStub drains the core's pending word and dispatches the
// host handler. Every branch op runs this before redirecting control,
// which bounds how long a translated loop can run without observing an
// interrupt post.
func checkInterruptStub(core *Core) {
	if flags := core.interrupt.Swap(0); flags != 0 && core.engine.interruptHandler != nil {
		core.engine.interruptHandler(core, flags)
	}
}

// branchTarget resolves a static target to a local label jump or a
// block exit.
func branchTarget(block *JitBlock, nia uint32) func() jitResult {
	if _, ok := block.labels[nia]; ok {
		return func() jitResult {
			return jitResult{kind: jitJump, jump: block.labels[nia]}
		}
	}
	return func() jitResult {
		return jitResult{kind: jitExit, nia: nia}
	}
}

func (j *JitCache) emitB(instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
	nia := uint32(instr.LI())
	if !instr.AA() {
		nia += cia
	}

	if instr.LK() {
		return func(core *Core, bus Bus32) jitResult {
			checkInterruptStub(core)
			core.state.LR = cia + 4
			return jitResult{kind: jitExit, nia: nia}
		}, true
	}

	target := branchTarget(block, nia)
	return func(core *Core, bus Bus32) jitResult {
		checkInterruptStub(core)
		return target()
	}, true
}

type bcFlags uint8

const (
	bcCheckCtr bcFlags = 1 << iota
	bcCheckCond
	bcBranchLR
	bcBranchCTR
)

func (j *JitCache) emitBcGeneric(instr Instruction, cia uint32, block *JitBlock, flags bcFlags) (jitOp, bool) {
	bo := instr.BO()
	bi := instr.BI()
	lk := instr.LK()

	var target func() jitResult
	if flags&(bcBranchLR|bcBranchCTR) == 0 {
		nia := uint32(instr.BD())
		if !instr.AA() {
			nia += cia
		}
		target = branchTarget(block, nia)
	}

	return func(core *Core, bus Bus32) jitResult {
		checkInterruptStub(core)
		state := &core.state

		if flags&bcCheckCtr != 0 && !boBit(bo, boNoCheckCtr) {
			state.CTR--
			if (state.CTR != 0) == boBit(bo, boCtrValue) {
				return jitResult{kind: jitFallThrough}
			}
		}
		if flags&bcCheckCond != 0 && !boBit(bo, boNoCheckCond) {
			if (state.CRBit(bi) != 0) != boBit(bo, boCondValue) {
				return jitResult{kind: jitFallThrough}
			}
		}

		// A bclrl branches to the link value from before its own update.
		savedLR := state.LR
		if lk {
			state.LR = cia + 4
		}

		switch {
		case flags&bcBranchCTR != 0:
			return jitResult{kind: jitExit, nia: state.CTR &^ 0x3}
		case flags&bcBranchLR != 0:
			return jitResult{kind: jitExit, nia: savedLR &^ 0x3}
		default:
			return target()
		}
	}, true
}

func (j *JitCache) emitBc(instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
	return j.emitBcGeneric(instr, cia, block, bcCheckCtr|bcCheckCond)
}

func (j *JitCache) emitBcctr(instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
	return j.emitBcGeneric(instr, cia, block, bcBranchCTR|bcCheckCond)
}

func (j *JitCache) emitBclr(instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
	return j.emitBcGeneric(instr, cia, block, bcBranchLR|bcCheckCtr|bcCheckCond)
}

func (j *JitCache) registerJitBranchInstructions() {
	// Branch instructions are handled directly within the generator.
}
