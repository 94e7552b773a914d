// jit_system.go - Specialized emitters for SPR moves and kernel calls

package main

func (j *JitCache) registerJitSystemInstructions() {
	// Ordering instructions emit nothing.
	emitNothing := func(cache *JitCache, instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
		return func(core *Core, bus Bus32) jitResult {
			return jitResult{kind: jitFallThrough}
		}, true
	}
	j.emitters[InstrEieio] = emitNothing
	j.emitters[InstrSync] = emitNothing
	j.emitters[InstrIsync] = emitNothing

	j.emitters[InstrMfspr] = emitMfspr
	j.emitters[InstrMtspr] = emitMtspr
	j.emitters[InstrKc] = emitKc
}

func emitMfspr(cache *JitCache, instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
	spr := instr.SPR()
	rd := instr.RD()

	switch {
	case spr == SPR_XER:
		return func(core *Core, bus Bus32) jitResult {
			core.state.GPR[rd] = core.state.XER
			return jitResult{kind: jitFallThrough}
		}, true
	case spr == SPR_LR:
		return func(core *Core, bus Bus32) jitResult {
			core.state.GPR[rd] = core.state.LR
			return jitResult{kind: jitFallThrough}
		}, true
	case spr == SPR_CTR:
		return func(core *Core, bus Bus32) jitResult {
			core.state.GPR[rd] = core.state.CTR
			return jitResult{kind: jitFallThrough}
		}, true
	case spr >= SPR_UGQR0 && spr <= SPR_UGQR7:
		idx := spr - SPR_UGQR0
		return func(core *Core, bus Bus32) jitResult {
			core.state.GPR[rd] = uint32(core.state.GQR[idx])
			return jitResult{kind: jitFallThrough}
		}, true
	case spr >= SPR_GQR0 && spr <= SPR_GQR7:
		idx := spr - SPR_GQR0
		return func(core *Core, bus Bus32) jitResult {
			core.state.GPR[rd] = uint32(core.state.GQR[idx])
			return jitResult{kind: jitFallThrough}
		}, true
	default:
		engineLog("invalid mfspr SPR %d at %08X", spr, cia)
		return nil, false
	}
}

func emitMtspr(cache *JitCache, instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
	spr := instr.SPR()
	rs := instr.RS()

	switch {
	case spr == SPR_XER:
		return func(core *Core, bus Bus32) jitResult {
			core.state.XER = core.state.GPR[rs]
			return jitResult{kind: jitFallThrough}
		}, true
	case spr == SPR_LR:
		return func(core *Core, bus Bus32) jitResult {
			core.state.LR = core.state.GPR[rs]
			return jitResult{kind: jitFallThrough}
		}, true
	case spr == SPR_CTR:
		return func(core *Core, bus Bus32) jitResult {
			core.state.CTR = core.state.GPR[rs]
			return jitResult{kind: jitFallThrough}
		}, true
	case spr >= SPR_UGQR0 && spr <= SPR_UGQR7:
		idx := spr - SPR_UGQR0
		return func(core *Core, bus Bus32) jitResult {
			core.state.GQR[idx] = GQR(core.state.GPR[rs])
			return jitResult{kind: jitFallThrough}
		}, true
	case spr >= SPR_GQR0 && spr <= SPR_GQR7:
		idx := spr - SPR_GQR0
		return func(core *Core, bus Bus32) jitResult {
			core.state.GQR[idx] = GQR(core.state.GPR[rs])
			return jitResult{kind: jitFallThrough}
		}, true
	default:
		engineLog("invalid mtspr SPR %d at %08X", spr, cia)
		return nil, false
	}
}

// emitKc resolves the kernel-call entry at translation time. An
// invalid id emits a trap and fails the block, which demotes it to the
// interpreter where the same id panics with a diagnostic.
func emitKc(cache *JitCache, instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
	id := instr.KCN()
	kc := cache.engine.GetKernelCall(id)
	if kc == nil {
		engineLog("encountered invalid kernel call id %d at %08X", id, cia)
		return nil, false
	}

	fn := kc.Fn
	userData := kc.UserData
	return func(core *Core, bus Bus32) jitResult {
		fn(&core.state, userData)
		return jitResult{kind: jitFallThrough}
	}, true
}
