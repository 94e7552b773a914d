// interp_test.go - Interpreter execution tests

package main

import (
	"math"
	"testing"
)

const testProgBase = 0x2000

type engineTestRig struct {
	bus    *MachineBus
	engine *Engine
	core   *Core
}

func newEngineTestRig() *engineTestRig {
	bus := NewMachineBus()
	engine := NewEngine(bus)
	return &engineTestRig{bus: bus, engine: engine, core: engine.Core(0)}
}

// loadProgram writes instructions at base and points the core at them
// with the callback sentinel in the link register, so a final blr
// returns control to the host.
func (rig *engineTestRig) loadProgram(base uint32, instrs ...Instruction) {
	for i, instr := range instrs {
		rig.bus.Write32(base+uint32(i)*4, uint32(instr))
	}
	rig.core.state.NIA = base
	rig.core.state.LR = CALLBACK_ADDR
}

func (rig *engineTestRig) run() {
	rig.core.Resume()
}

func blr() Instruction { return encodeBclr(20, 0, false) }

func requireGPR(t *testing.T, rig *engineTestRig, reg, want uint32) {
	t.Helper()
	if got := rig.core.state.GPR[reg]; got != want {
		t.Fatalf("r%d = %08X, want %08X", reg, got, want)
	}
}

// ---------------------------------------------------------------------------
// Integer arithmetic
// ---------------------------------------------------------------------------

func TestInterpAddImmediateChain(t *testing.T) {
	rig := newEngineTestRig()
	rig.loadProgram(testProgBase,
		encodeDForm(14, 3, 0, 100),          // addi r3, 0, 100
		encodeDForm(14, 4, 3, 0x0023),       // addi r4, r3, 35
		encodeXOForm(31, 5, 3, 4, 266, false, false), // add r5, r3, r4
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 3, 100)
	requireGPR(t, rig, 4, 135)
	requireGPR(t, rig, 5, 235)
	if rig.core.state.NIA != CALLBACK_ADDR {
		t.Fatalf("resume did not stop at the callback sentinel")
	}
}

func TestInterpAddRecordsCR0(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 5
	rig.core.state.GPR[4] = 0xFFFFFFFB // -5
	rig.loadProgram(testProgBase,
		encodeXOForm(31, 5, 3, 4, 266, false, true), // add. r5, r3, r4
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 5, 0)
	if rig.core.state.CRField(0) != CR_EQ {
		t.Fatalf("cr0 = %X, want EQ", rig.core.state.CRField(0))
	}
}

func TestInterpCarryChain(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0xFFFFFFFF
	rig.core.state.GPR[4] = 1
	rig.core.state.GPR[5] = 10
	rig.core.state.GPR[6] = 20
	rig.loadProgram(testProgBase,
		encodeXOForm(31, 7, 3, 4, 10, false, false),  // addc r7, r3, r4 (carry out)
		encodeXOForm(31, 8, 5, 6, 138, false, false), // adde r8, r5, r6 (+carry)
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 7, 0)
	requireGPR(t, rig, 8, 31)
}

func TestInterpSubfAndOverflow(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 10
	rig.core.state.GPR[4] = 3
	rig.loadProgram(testProgBase,
		encodeXOForm(31, 5, 4, 3, 40, false, false), // subf r5, r4, r3 = r3-r4
		blr(),
	)
	rig.run()
	requireGPR(t, rig, 5, 7)

	rig = newEngineTestRig()
	rig.core.state.GPR[3] = 0x80000000
	rig.loadProgram(testProgBase,
		encodeXOForm(31, 4, 3, 0, 104, true, false), // nego r4, r3
		blr(),
	)
	rig.run()
	if rig.core.state.XER&XER_OV == 0 {
		t.Fatalf("neg of 0x80000000 must set overflow")
	}
}

func TestInterpMulDiv(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0xFFFFFFFE // -2
	rig.core.state.GPR[4] = 3
	rig.loadProgram(testProgBase,
		encodeXOForm(31, 5, 3, 4, 235, false, false), // mullw
		encodeXOForm(31, 6, 3, 4, 75, false, false),  // mulhw
		encodeXOForm(31, 7, 3, 4, 491, false, false), // divw
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 5, 0xFFFFFFFA) // -6
	requireGPR(t, rig, 6, 0xFFFFFFFF) // high word of -6
	requireGPR(t, rig, 7, 0)          // -2/3 truncates to 0
}

func TestInterpRotateAndShift(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0x12345678
	rig.loadProgram(testProgBase,
		encodeMForm(21, 3, 4, 8, 0, 23, false),  // rlwinm r4, r3, 8, 0, 23
		encodeXForm(31, 3, 5, 0, 824, false)|Instruction(4<<11), // srawi r5, r3, 4
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 4, 0x34567800)
	requireGPR(t, rig, 5, 0x01234567)
}

func TestInterpCompare(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 5
	rig.core.state.GPR[4] = 9
	rig.loadProgram(testProgBase,
		encodeXForm(31, 0, 3, 4, 0, false), // cmp cr0, r3, r4
		blr(),
	)
	rig.run()
	if rig.core.state.CRField(0) != CR_LT {
		t.Fatalf("cr0 = %X, want LT", rig.core.state.CRField(0))
	}
}

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

func TestInterpCountedLoop(t *testing.T) {
	rig := newEngineTestRig()
	rig.loadProgram(testProgBase,
		encodeDForm(14, 3, 0, 0),        // addi r3, 0, 0
		encodeDForm(14, 4, 0, 5),        // addi r4, 0, 5
		encodeMtspr(SPR_CTR, 4),         // mtctr r4
		encodeDForm(14, 3, 3, 1),        // loop: addi r3, r3, 1
		encodeBc(16, 0, -4, false, false), // bdnz loop
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 3, 5)
	if rig.core.state.CTR != 0 {
		t.Fatalf("ctr = %d, want 0", rig.core.state.CTR)
	}
}

func TestInterpBranchAndLink(t *testing.T) {
	rig := newEngineTestRig()
	rig.loadProgram(testProgBase,
		encodeB(12, false, true),   // bl +12 -> sub
		encodeDForm(14, 4, 0, 7),   // addi r4, 0, 7  (after return)
		blr(),                      // return to host
		encodeDForm(14, 3, 0, 3),   // sub: addi r3, 0, 3
		blr(),                      // blr back to caller
	)
	rig.run()

	requireGPR(t, rig, 3, 3)
	requireGPR(t, rig, 4, 7)
}

func TestInterpConditionalBranchTaken(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 1
	rig.core.state.GPR[4] = 1
	rig.loadProgram(testProgBase,
		encodeXForm(31, 0, 3, 4, 0, false),    // cmp cr0, r3, r4
		encodeBc(12, 2, 12, false, false),     // beq +12
		encodeDForm(14, 5, 0, 0xBAD),          // skipped
		blr(),
		encodeDForm(14, 5, 0, 1),              // target: addi r5, 0, 1
		blr(),
	)
	rig.run()
	requireGPR(t, rig, 5, 1)
}

// ---------------------------------------------------------------------------
// Load/store
// ---------------------------------------------------------------------------

func TestInterpLoadStore(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0x8000
	rig.core.state.GPR[4] = 0xDEADBEEF
	rig.loadProgram(testProgBase,
		encodeDForm(36, 4, 3, 0x10), // stw r4, 0x10(r3)
		encodeDForm(32, 5, 3, 0x10), // lwz r5, 0x10(r3)
		encodeDForm(40, 6, 3, 0x10), // lhz r6, 0x10(r3)
		encodeDForm(34, 7, 3, 0x13), // lbz r7, 0x13(r3)
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 5, 0xDEADBEEF)
	requireGPR(t, rig, 6, 0xDEAD) // big-endian high half
	requireGPR(t, rig, 7, 0xEF)
}

func TestInterpLoadStoreUpdateForms(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0x8000
	rig.core.state.GPR[4] = 0x1234
	rig.loadProgram(testProgBase,
		encodeDForm(37, 4, 3, 8), // stwu r4, 8(r3)
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 3, 0x8008)
	if got := rig.bus.Read32(0x8008); got != 0x1234 {
		t.Fatalf("memory at 0x8008 = %08X, want 00001234", got)
	}
}

func TestInterpMultipleWord(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0x9000
	rig.core.state.GPR[29] = 0x11111111
	rig.core.state.GPR[30] = 0x22222222
	rig.core.state.GPR[31] = 0x33333333
	rig.loadProgram(testProgBase,
		encodeDForm(47, 29, 3, 0), // stmw r29, 0(r3)
		encodeDForm(14, 29, 0, 0), // addi r29, 0, 0
		encodeDForm(14, 30, 0, 0),
		encodeDForm(14, 31, 0, 0),
		encodeDForm(46, 29, 3, 0), // lmw r29, 0(r3)
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 29, 0x11111111)
	requireGPR(t, rig, 30, 0x22222222)
	requireGPR(t, rig, 31, 0x33333333)
}

func TestInterpReservation(t *testing.T) {
	rig := newEngineTestRig()
	rig.bus.Write32(0xA000, 7)
	rig.core.state.GPR[3] = 0xA000
	rig.core.state.GPR[5] = 99
	rig.loadProgram(testProgBase,
		encodeXForm(31, 4, 0, 3, 20, false),  // lwarx r4, 0, r3
		encodeXForm(31, 5, 0, 3, 150, true),  // stwcx. r5, 0, r3
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 4, 7)
	if rig.bus.Read32(0xA000) != 99 {
		t.Fatalf("stwcx. with a valid reservation must store")
	}
	if rig.core.state.CRField(0)&CR_EQ == 0 {
		t.Fatalf("successful stwcx. must set CR0.EQ")
	}

	// Without a reservation the store fails.
	rig.core.state.GPR[5] = 42
	rig.loadProgram(testProgBase,
		encodeXForm(31, 5, 0, 3, 150, true),
		blr(),
	)
	rig.run()
	if rig.bus.Read32(0xA000) != 99 {
		t.Fatalf("stwcx. without a reservation must not store")
	}
	if rig.core.state.CRField(0)&CR_EQ != 0 {
		t.Fatalf("failed stwcx. must clear CR0.EQ")
	}
}

// ---------------------------------------------------------------------------
// Floating point
// ---------------------------------------------------------------------------

func TestInterpFloatArithmetic(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.FPR[1].Paired0 = 2.5
	rig.core.state.FPR[2].Paired0 = 0.5
	rig.loadProgram(testProgBase,
		encodeAForm(63, 3, 1, 2, 0, 21, false), // fadd f3, f1, f2
		encodeAForm(63, 4, 1, 0, 2, 25, false), // fmul f4, f1, f2
		encodeAForm(63, 5, 1, 2, 0, 20, false), // fsub f5, f1, f2
		blr(),
	)
	rig.run()

	if got := rig.core.state.FPR[3].Paired0; got != 3.0 {
		t.Fatalf("fadd = %v, want 3.0", got)
	}
	if got := rig.core.state.FPR[4].Paired0; got != 1.25 {
		t.Fatalf("fmul = %v, want 1.25", got)
	}
	if got := rig.core.state.FPR[5].Paired0; got != 2.0 {
		t.Fatalf("fsub = %v, want 2.0", got)
	}
}

func TestInterpFctiwzTruncates(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.FPR[1].Paired0 = -3.75
	rig.loadProgram(testProgBase,
		encodeXForm(63, 2, 0, 1, 15, false), // fctiwz f2, f1
		blr(),
	)
	rig.run()

	bits := math.Float64bits(rig.core.state.FPR[2].Paired0)
	if int32(uint32(bits)) != -3 {
		t.Fatalf("fctiwz(-3.75) = %d, want -3", int32(uint32(bits)))
	}
}

func TestInterpFloatLoadStore(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0xB000
	rig.bus.Write32(0xB000, math.Float32bits(1.5))
	rig.loadProgram(testProgBase,
		encodeDForm(48, 1, 3, 0), // lfs f1, 0(r3)
		encodeDForm(54, 1, 3, 8), // stfd f1, 8(r3)
		blr(),
	)
	rig.run()

	if got := rig.core.state.FPR[1].Paired0; got != 1.5 {
		t.Fatalf("lfs = %v, want 1.5", got)
	}
	if got := rig.core.state.FPR[1].Paired1; got != 1.5 {
		t.Fatalf("lfs must duplicate into lane 1, got %v", got)
	}
	if math.Float64frombits(rig.bus.Read64(0xB008)) != 1.5 {
		t.Fatalf("stfd round trip failed")
	}
}

func TestInterpFcmpSetsCondition(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.FPR[1].Paired0 = 1.0
	rig.core.state.FPR[2].Paired0 = 2.0
	rig.loadProgram(testProgBase,
		encodeXForm(63, 0, 1, 2, 0, false), // fcmpu cr0, f1, f2
		blr(),
	)
	rig.run()
	if rig.core.state.CRField(0) != fpccLT {
		t.Fatalf("fcmpu cr0 = %X, want LT", rig.core.state.CRField(0))
	}
}

// ---------------------------------------------------------------------------
// Paired singles
// ---------------------------------------------------------------------------

func TestInterpPairedLanewise(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.FPR[1] = FPR{1.0, 2.0}
	rig.core.state.FPR[2] = FPR{10.0, 20.0}
	rig.loadProgram(testProgBase,
		encodeAForm(4, 3, 1, 2, 0, 21, false),  // ps_add f3, f1, f2
		encodeXForm(4, 4, 1, 2, 528, false),    // ps_merge00 f4, f1, f2
		blr(),
	)
	rig.run()

	if got := rig.core.state.FPR[3]; got.Paired0 != 11 || got.Paired1 != 22 {
		t.Fatalf("ps_add = %v, want {11 22}", got)
	}
	if got := rig.core.state.FPR[4]; got.Paired0 != 1 || got.Paired1 != 10 {
		t.Fatalf("ps_merge00 = %v, want {1 10}", got)
	}
}

func TestInterpPairedSum(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.FPR[1] = FPR{1.0, 0.0}
	rig.core.state.FPR[2] = FPR{0.0, 2.0}
	rig.core.state.FPR[3] = FPR{5.0, 7.0}
	rig.loadProgram(testProgBase,
		encodeAForm(4, 4, 1, 2, 3, 10, false), // ps_sum0 f4, f1, f2, f3
		blr(),
	)
	rig.run()

	got := rig.core.state.FPR[4]
	if got.Paired0 != 3.0 || got.Paired1 != 7.0 {
		t.Fatalf("ps_sum0 = %v, want {3 7}", got)
	}
}

func TestInterpQuantizedLoadStore(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0xC000
	// GQR0: load type u8, scale 0; store type u8, scale 0.
	rig.core.state.GQR[0] = GQR(GQR_TYPE_U8<<16 | GQR_TYPE_U8)
	rig.bus.Write8(0xC000, 100)
	rig.bus.Write8(0xC001, 200)

	// psq_l f1, 0(r3), w=0, gqr=0
	psqL := Instruction(56<<26 | 1<<21 | 3<<16)
	rig.loadProgram(testProgBase, psqL, blr())
	rig.run()

	got := rig.core.state.FPR[1]
	if got.Paired0 != 100 || got.Paired1 != 200 {
		t.Fatalf("psq_l = %v, want {100 200}", got)
	}

	// Store back scaled to a different location.
	rig.core.state.FPR[1] = FPR{50, 60}
	psqSt := Instruction(60<<26 | 1<<21 | 3<<16 | 0x10)
	rig.loadProgram(testProgBase, psqSt, blr())
	rig.run()

	if rig.bus.Read8(0xC010) != 50 || rig.bus.Read8(0xC011) != 60 {
		t.Fatalf("psq_st wrote %d,%d, want 50,60",
			rig.bus.Read8(0xC010), rig.bus.Read8(0xC011))
	}
}

// ---------------------------------------------------------------------------
// System
// ---------------------------------------------------------------------------

func TestInterpSprMoves(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.GPR[3] = 0x1234
	rig.loadProgram(testProgBase,
		encodeMtspr(SPR_CTR, 3),  // mtctr r3
		encodeMfspr(4, SPR_CTR),  // mfctr r4
		encodeMtspr(SPR_XER, 3),
		encodeMfspr(5, SPR_XER),
		blr(),
	)
	rig.run()

	requireGPR(t, rig, 4, 0x1234)
	requireGPR(t, rig, 5, 0x1234)
}

func TestInterpKernelCall(t *testing.T) {
	rig := newEngineTestRig()

	called := false
	id := rig.engine.RegisterKernelCall(KernelCallEntry{
		Fn: func(state *ThreadState, userData any) {
			called = true
			state.GPR[3] = userData.(uint32)
		},
		UserData: uint32(0xCAFE),
	})

	rig.loadProgram(testProgBase,
		encodeKc(id),
		blr(),
	)
	rig.run()

	if !called {
		t.Fatalf("kernel call handler was not invoked")
	}
	requireGPR(t, rig, 3, 0xCAFE)
}

func TestInterpStepOne(t *testing.T) {
	rig := newEngineTestRig()
	rig.loadProgram(testProgBase,
		encodeDForm(14, 3, 0, 1),
		encodeDForm(14, 4, 0, 2),
		blr(),
	)

	rig.core.StepOne()
	requireGPR(t, rig, 3, 1)
	requireGPR(t, rig, 4, 0)

	rig.core.StepOne()
	requireGPR(t, rig, 4, 2)
}

func TestExecuteSubRestoresLink(t *testing.T) {
	rig := newEngineTestRig()
	rig.core.state.LR = 0x12345678
	for i, instr := range []Instruction{
		encodeDForm(14, 3, 0, 55),
		blr(),
	} {
		rig.bus.Write32(testProgBase+uint32(i)*4, uint32(instr))
	}
	rig.core.state.NIA = testProgBase

	rig.core.ExecuteSub()

	requireGPR(t, rig, 3, 55)
	if rig.core.state.LR != 0x12345678 {
		t.Fatalf("execute_sub must restore the caller's link register")
	}
}

func TestInterpUndecodableInstructionPanics(t *testing.T) {
	rig := newEngineTestRig()
	rig.loadProgram(testProgBase, Instruction(0x00000000), blr())

	defer func() {
		if recover() == nil {
			t.Fatalf("an undecodable instruction must be fatal at the core")
		}
	}()
	rig.run()
}
