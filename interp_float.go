// interp_float.go - Scalar floating point handlers

package main

import "math"

// FPSCR.FPCC values written by the compare instructions.
const (
	fpccLT = 0x8
	fpccGT = 0x4
	fpccEQ = 0x2
	fpccUN = 0x1
)

func setFPRScalar(s *ThreadState, rd uint32, value float64) {
	s.FPR[rd].Paired0 = value
	s.SetFPRF(value)
}

func setFPRSingle(s *ThreadState, rd uint32, value float64) {
	narrowed := frspRound(value, s.HostRounding)
	s.FPR[rd].Paired0 = narrowed
	s.FPR[rd].Paired1 = narrowed
	s.SetFPRF(narrowed)
}

func registerFloatInstructions() {
	scalar2 := func(id InstructionID, op func(a, b float64) float64, useB bool) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			a := s.FPR[instr.RA()].Paired0
			var b float64
			if useB {
				b = s.FPR[instr.RB()].Paired0
			} else {
				b = s.FPR[instr.RC()].Paired0
			}
			setFPRScalar(s, instr.RD(), op(a, b))
			if instr.Rc() {
				s.UpdateCR1()
			}
		})
	}
	single2 := func(id InstructionID, op func(a, b float64) float64, useB bool) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			a := s.FPR[instr.RA()].Paired0
			var b float64
			if useB {
				b = s.FPR[instr.RB()].Paired0
			} else {
				b = s.FPR[instr.RC()].Paired0
			}
			setFPRSingle(s, instr.RD(), op(a, b))
			if instr.Rc() {
				s.UpdateCR1()
			}
		})
	}

	scalar2(InstrFadd, func(a, b float64) float64 { return a + b }, true)
	scalar2(InstrFsub, func(a, b float64) float64 { return a - b }, true)
	scalar2(InstrFmul, func(a, b float64) float64 { return a * b }, false)
	scalar2(InstrFdiv, func(a, b float64) float64 { return a / b }, true)
	single2(InstrFadds, func(a, b float64) float64 { return a + b }, true)
	single2(InstrFsubs, func(a, b float64) float64 { return a - b }, true)
	single2(InstrFmuls, func(a, b float64) float64 { return a * b }, false)
	single2(InstrFdivs, func(a, b float64) float64 { return a / b }, true)

	madd := func(id InstructionID, combine func(prod, b float64) float64, single bool) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			a := s.FPR[instr.RA()].Paired0
			b := s.FPR[instr.RB()].Paired0
			c := s.FPR[instr.RC()].Paired0
			result := combine(a*c, b)
			if single {
				setFPRSingle(s, instr.RD(), result)
			} else {
				setFPRScalar(s, instr.RD(), result)
			}
			if instr.Rc() {
				s.UpdateCR1()
			}
		})
	}
	madd(InstrFmadd, func(prod, b float64) float64 { return prod + b }, false)
	madd(InstrFmsub, func(prod, b float64) float64 { return prod - b }, false)
	madd(InstrFnmadd, func(prod, b float64) float64 { return -(prod + b) }, false)
	madd(InstrFnmsub, func(prod, b float64) float64 { return -(prod - b) }, false)
	madd(InstrFmadds, func(prod, b float64) float64 { return prod + b }, true)
	madd(InstrFmsubs, func(prod, b float64) float64 { return prod - b }, true)
	madd(InstrFnmadds, func(prod, b float64) float64 { return -(prod + b) }, true)
	madd(InstrFnmsubs, func(prod, b float64) float64 { return -(prod - b) }, true)

	registerInstruction(InstrFres, func(core *Core, instr Instruction) {
		s := &core.state
		setFPRSingle(s, instr.RD(), 1.0/s.FPR[instr.RB()].Paired0)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrFrsqrte, func(core *Core, instr Instruction) {
		s := &core.state
		setFPRScalar(s, instr.RD(), 1.0/math.Sqrt(s.FPR[instr.RB()].Paired0))
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrFsel, func(core *Core, instr Instruction) {
		s := &core.state
		var result float64
		if s.FPR[instr.RA()].Paired0 >= 0 {
			result = s.FPR[instr.RC()].Paired0
		} else {
			result = s.FPR[instr.RB()].Paired0
		}
		s.FPR[instr.RD()].Paired0 = result
		if instr.Rc() {
			s.UpdateCR1()
		}
	})

	move := func(id InstructionID, op func(v float64) float64) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			s.FPR[instr.RD()].Paired0 = op(s.FPR[instr.RB()].Paired0)
			if instr.Rc() {
				s.UpdateCR1()
			}
		})
	}
	move(InstrFmr, func(v float64) float64 { return v })
	move(InstrFneg, func(v float64) float64 { return -v })
	move(InstrFabs, math.Abs)
	move(InstrFnabs, func(v float64) float64 { return -math.Abs(v) })

	registerInstruction(InstrFrsp, func(core *Core, instr Instruction) {
		s := &core.state
		narrowed := frspRound(s.FPR[instr.RB()].Paired0, s.HostRounding)
		s.FPR[instr.RD()].Paired0 = narrowed
		s.FPR[instr.RD()].Paired1 = narrowed
		s.SetFPRF(narrowed)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})

	fctiwCommon := func(core *Core, instr Instruction, rounded float64) {
		s := &core.state
		var result int32
		switch {
		case math.IsNaN(rounded):
			result = math.MinInt32
			s.FPSCR |= FPSCR_VX | FPSCR_FX
		case rounded >= math.MaxInt32:
			result = math.MaxInt32
			s.FPSCR |= FPSCR_VX | FPSCR_FX
		case rounded <= math.MinInt32:
			result = math.MinInt32
			s.FPSCR |= FPSCR_VX | FPSCR_FX
		default:
			result = int32(rounded)
		}
		// The integer lands in the low word; the high word carries the
		// canonical conversion pattern.
		s.FPR[instr.RD()].Paired0 = math.Float64frombits(0xFFF8000000000000 | uint64(uint32(result)))
		if instr.Rc() {
			s.UpdateCR1()
		}
	}
	registerInstruction(InstrFctiw, func(core *Core, instr Instruction) {
		s := &core.state
		fctiwCommon(core, instr, roundByMode(s.FPR[instr.RB()].Paired0, s.HostRounding))
	})
	registerInstruction(InstrFctiwz, func(core *Core, instr Instruction) {
		s := &core.state
		fctiwCommon(core, instr, math.Trunc(s.FPR[instr.RB()].Paired0))
	})

	fcmp := func(core *Core, instr Instruction) {
		s := &core.state
		a := s.FPR[instr.RA()].Paired0
		b := s.FPR[instr.RB()].Paired0
		var cc uint32
		switch {
		case math.IsNaN(a) || math.IsNaN(b):
			cc = fpccUN
		case a < b:
			cc = fpccLT
		case a > b:
			cc = fpccGT
		default:
			cc = fpccEQ
		}
		s.FPSCR = (s.FPSCR &^ (0xF << 12)) | (cc << 12)
		s.SetCRField(instr.CRFD(), cc)
	}
	registerInstruction(InstrFcmpu, fcmp)
	registerInstruction(InstrFcmpo, fcmp)

	registerInstruction(InstrMffs, func(core *Core, instr Instruction) {
		s := &core.state
		s.FPR[instr.RD()].Paired0 = math.Float64frombits(uint64(s.FPSCR))
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrMtfsf, func(core *Core, instr Instruction) {
		s := &core.state
		value := uint32(math.Float64bits(s.FPR[instr.RB()].Paired0))
		var mask uint32
		for i := uint32(0); i < 8; i++ {
			if instr.FM()&(1<<i) != 0 {
				mask |= 0xF << (i * 4)
			}
		}
		s.SetFPSCR((s.FPSCR &^ mask) | (value & mask))
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrMtfsb0, func(core *Core, instr Instruction) {
		s := &core.state
		s.SetFPSCR(s.FPSCR &^ (1 << (31 - instr.CRBD())))
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrMtfsb1, func(core *Core, instr Instruction) {
		s := &core.state
		s.SetFPSCR(s.FPSCR | 1<<(31-instr.CRBD()))
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrMtfsfi, func(core *Core, instr Instruction) {
		s := &core.state
		shift := (7 - instr.CRFD()) * 4
		s.SetFPSCR((s.FPSCR &^ (0xF << shift)) | (instr.IMMFS() << shift))
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrMcrfs, func(core *Core, instr Instruction) {
		s := &core.state
		s.SetCRField(instr.CRFD(), (s.FPSCR>>((7-instr.CRFS())*4))&0xF)
	})
}
