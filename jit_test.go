// jit_test.go - Block identification, translation and execution

package main

import "testing"

func newJitTestRig() *engineTestRig {
	rig := newEngineTestRig()
	rig.engine.SetJitMode(JitEnabled)
	return rig
}

// ---------------------------------------------------------------------------
// Identification
// ---------------------------------------------------------------------------

func TestJitIdentBlockEndsAtUnconditionalReturn(t *testing.T) {
	rig := newJitTestRig()
	program := []Instruction{
		encodeDForm(14, 3, 0, 1),
		encodeDForm(14, 4, 0, 2),
		blr(),
	}
	for i, instr := range program {
		rig.bus.Write32(testProgBase+uint32(i)*4, uint32(instr))
	}

	block := &JitBlock{start: testProgBase, end: testProgBase, targets: make(map[uint32]bool)}
	if !rig.engine.jit.identBlock(block) {
		t.Fatalf("identification failed on a well-formed block")
	}
	if block.end != testProgBase+12 {
		t.Fatalf("block end = %08X, want %08X", block.end, testProgBase+12)
	}
}

func TestJitIdentBlockCollectsJumpTargets(t *testing.T) {
	rig := newJitTestRig()
	program := []Instruction{
		encodeDForm(14, 3, 0, 0),         // 0x2000
		encodeBc(12, 2, 8, false, false), // 0x2004 beq +8 -> 0x200C
		encodeDForm(14, 4, 0, 1),         // 0x2008
		encodeDForm(14, 5, 0, 2),         // 0x200C
		blr(),                            // 0x2010
	}
	for i, instr := range program {
		rig.bus.Write32(testProgBase+uint32(i)*4, uint32(instr))
	}

	block := &JitBlock{start: testProgBase, end: testProgBase, targets: make(map[uint32]bool)}
	if !rig.engine.jit.identBlock(block) {
		t.Fatalf("identification failed")
	}
	if !block.targets[testProgBase+0xC] {
		t.Fatalf("conditional branch target %08X not collected", testProgBase+0xC)
	}
}

func TestJitIdentBlockFailsOnUndecodable(t *testing.T) {
	rig := newJitTestRig()
	rig.bus.Write32(testProgBase, 0)

	block := &JitBlock{start: testProgBase, end: testProgBase, targets: make(map[uint32]bool)}
	if rig.engine.jit.identBlock(block) {
		t.Fatalf("identification must fail on an undecodable word")
	}
}

// ---------------------------------------------------------------------------
// Failure caching
// ---------------------------------------------------------------------------

func TestJitFailedBlockIsNotRetried(t *testing.T) {
	rig := newJitTestRig()
	rig.bus.Write32(testProgBase, 0)

	if rig.engine.jit.prepare(testProgBase) {
		t.Fatalf("prepare must fail for an undecodable block")
	}
	if _, recorded := rig.engine.jit.blocks[testProgBase]; !recorded {
		t.Fatalf("a failed translation must record a null entry")
	}

	// Even after the memory is fixed the entry stays failed.
	rig.bus.Write32(testProgBase, uint32(blr()))
	if rig.engine.jit.get(testProgBase) != nil {
		t.Fatalf("failed entries must not be retried")
	}

	rig.engine.jit.ClearCache()
	if !rig.engine.jit.prepare(testProgBase) {
		t.Fatalf("cache clear must allow retranslation")
	}
}

// ---------------------------------------------------------------------------
// Execution parity with the interpreter
// ---------------------------------------------------------------------------

// runBothModes executes the same program under the interpreter and the
// JIT and compares the full integer state.
func runBothModes(t *testing.T, seed func(rig *engineTestRig), program ...Instruction) {
	t.Helper()

	interp := newEngineTestRig()
	seed(interp)
	interp.loadProgram(testProgBase, program...)
	interp.run()

	jit := newJitTestRig()
	seed(jit)
	jit.loadProgram(testProgBase, program...)
	jit.run()

	for i := 0; i < 32; i++ {
		if interp.core.state.GPR[i] != jit.core.state.GPR[i] {
			t.Fatalf("r%d diverges: interpreter %08X, jit %08X",
				i, interp.core.state.GPR[i], jit.core.state.GPR[i])
		}
	}
	if interp.core.state.CR != jit.core.state.CR {
		t.Fatalf("cr diverges: interpreter %08X, jit %08X",
			interp.core.state.CR, jit.core.state.CR)
	}
	if interp.core.state.CTR != jit.core.state.CTR {
		t.Fatalf("ctr diverges: interpreter %08X, jit %08X",
			interp.core.state.CTR, jit.core.state.CTR)
	}
}

func TestJitMatchesInterpreterStraightLine(t *testing.T) {
	runBothModes(t, func(rig *engineTestRig) {},
		encodeDForm(14, 3, 0, 100),
		encodeDForm(14, 4, 3, 50),
		encodeXOForm(31, 5, 3, 4, 266, false, true),
		encodeDForm(24, 6, 5, 0xFF),
		blr(),
	)
}

func TestJitMatchesInterpreterLoop(t *testing.T) {
	runBothModes(t, func(rig *engineTestRig) {},
		encodeDForm(14, 3, 0, 0),
		encodeDForm(14, 4, 0, 10),
		encodeMtspr(SPR_CTR, 4),
		encodeDForm(14, 3, 3, 2),
		encodeBc(16, 0, -4, false, false), // bdnz
		blr(),
	)
}

func TestJitMatchesInterpreterCall(t *testing.T) {
	runBothModes(t, func(rig *engineTestRig) {},
		encodeB(12, false, true), // bl -> helper
		encodeDForm(14, 4, 0, 7),
		blr(),
		encodeDForm(14, 3, 0, 3), // helper
		blr(),
	)
}

func TestJitKernelCallEmitter(t *testing.T) {
	rig := newJitTestRig()
	id := rig.engine.RegisterKernelCall(KernelCallEntry{
		Fn: func(state *ThreadState, userData any) {
			state.GPR[3] = 0x600D
		},
	})
	rig.loadProgram(testProgBase, encodeKc(id), blr())
	rig.run()
	requireGPR(t, rig, 3, 0x600D)
}

func TestJitInvalidKernelCallFallsBack(t *testing.T) {
	rig := newJitTestRig()
	rig.loadProgram(testProgBase, encodeKc(999), blr())

	// The block fails to translate (trap emitted at translation time)
	// and the interpreter fallback panics with a diagnostic.
	defer func() {
		if recover() == nil {
			t.Fatalf("invalid kernel call id must be reported")
		}
	}()
	rig.run()
}

// ---------------------------------------------------------------------------
// Interrupt checks at branches
// ---------------------------------------------------------------------------

func TestJitBranchChecksInterrupts(t *testing.T) {
	rig := newJitTestRig()

	var got uint32
	rig.engine.SetInterruptHandler(func(core *Core, flags uint32) { got |= flags })

	rig.engine.Core(0).interrupt.Store(ALARM_INTERRUPT)
	rig.loadProgram(testProgBase,
		encodeDForm(14, 3, 0, 1),
		blr(),
	)
	rig.run()

	if got&ALARM_INTERRUPT == 0 {
		t.Fatalf("a pending interrupt must be drained at the branch")
	}
}

// ---------------------------------------------------------------------------
// Debug stepping stubs
// ---------------------------------------------------------------------------

func TestJitDebugSingleStep(t *testing.T) {
	rig := newEngineTestRig()
	rig.engine.SetJitMode(JitDebug)
	rig.loadProgram(testProgBase,
		encodeDForm(14, 3, 0, 9),
		encodeDForm(14, 4, 0, 8),
		blr(),
	)

	rig.core.StepOne()
	requireGPR(t, rig, 3, 9)
	if rig.core.state.NIA != testProgBase+4 {
		t.Fatalf("nia = %08X after one step, want %08X", rig.core.state.NIA, testProgBase+4)
	}

	if rig.engine.jit.getSingle(testProgBase) == nil {
		t.Fatalf("single-instruction stub was not cached")
	}

	rig.core.StepOne()
	requireGPR(t, rig, 4, 8)
}

func TestJitFallbackCounters(t *testing.T) {
	rig := newJitTestRig()
	rig.loadProgram(testProgBase,
		encodeDForm(14, 3, 0, 1),
		encodeDForm(14, 3, 3, 1),
		blr(),
	)
	rig.run()

	if rig.engine.jit.fallbackCalls[InstrAddi].Load() != 2 {
		t.Fatalf("addi fallback count = %d, want 2",
			rig.engine.jit.fallbackCalls[InstrAddi].Load())
	}
	report := rig.engine.jit.FallbackReport()
	if len(report) == 0 {
		t.Fatalf("fallback report is empty")
	}
}
