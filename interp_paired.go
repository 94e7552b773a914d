// interp_paired.go - Paired-single handlers and quantized load/store

package main

import "math"

func setPS(s *ThreadState, rd uint32, ps0, ps1 float64) {
	narrowed0 := frspRound(ps0, s.HostRounding)
	narrowed1 := frspRound(ps1, s.HostRounding)
	s.FPR[rd].Paired0 = narrowed0
	s.FPR[rd].Paired1 = narrowed1
	s.SetFPRF(narrowed0)
}

func registerPairedInstructions() {
	lanewise := func(id InstructionID, op func(a, b float64) float64, useB bool) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			a := s.FPR[instr.RA()]
			var b FPR
			if useB {
				b = s.FPR[instr.RB()]
			} else {
				b = s.FPR[instr.RC()]
			}
			setPS(s, instr.RD(), op(a.Paired0, b.Paired0), op(a.Paired1, b.Paired1))
			if instr.Rc() {
				s.UpdateCR1()
			}
		})
	}
	lanewise(InstrPsAdd, func(a, b float64) float64 { return a + b }, true)
	lanewise(InstrPsSub, func(a, b float64) float64 { return a - b }, true)
	lanewise(InstrPsMul, func(a, b float64) float64 { return a * b }, false)
	lanewise(InstrPsDiv, func(a, b float64) float64 { return a / b }, true)

	maddPS := func(id InstructionID, combine func(prod, b float64) float64) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			a := s.FPR[instr.RA()]
			b := s.FPR[instr.RB()]
			c := s.FPR[instr.RC()]
			setPS(s, instr.RD(),
				combine(a.Paired0*c.Paired0, b.Paired0),
				combine(a.Paired1*c.Paired1, b.Paired1))
			if instr.Rc() {
				s.UpdateCR1()
			}
		})
	}
	maddPS(InstrPsMadd, func(prod, b float64) float64 { return prod + b })
	maddPS(InstrPsMsub, func(prod, b float64) float64 { return prod - b })
	maddPS(InstrPsNmadd, func(prod, b float64) float64 { return -(prod + b) })
	maddPS(InstrPsNmsub, func(prod, b float64) float64 { return -(prod - b) })

	registerInstruction(InstrPsMuls0, func(core *Core, instr Instruction) {
		s := &core.state
		a := s.FPR[instr.RA()]
		c0 := s.FPR[instr.RC()].Paired0
		setPS(s, instr.RD(), a.Paired0*c0, a.Paired1*c0)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrPsMuls1, func(core *Core, instr Instruction) {
		s := &core.state
		a := s.FPR[instr.RA()]
		c1 := s.FPR[instr.RC()].Paired1
		setPS(s, instr.RD(), a.Paired0*c1, a.Paired1*c1)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrPsMadds0, func(core *Core, instr Instruction) {
		s := &core.state
		a := s.FPR[instr.RA()]
		b := s.FPR[instr.RB()]
		c0 := s.FPR[instr.RC()].Paired0
		setPS(s, instr.RD(), a.Paired0*c0+b.Paired0, a.Paired1*c0+b.Paired1)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrPsMadds1, func(core *Core, instr Instruction) {
		s := &core.state
		a := s.FPR[instr.RA()]
		b := s.FPR[instr.RB()]
		c1 := s.FPR[instr.RC()].Paired1
		setPS(s, instr.RD(), a.Paired0*c1+b.Paired0, a.Paired1*c1+b.Paired1)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})

	registerInstruction(InstrPsSum0, func(core *Core, instr Instruction) {
		s := &core.state
		setPS(s, instr.RD(),
			s.FPR[instr.RA()].Paired0+s.FPR[instr.RB()].Paired1,
			s.FPR[instr.RC()].Paired1)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrPsSum1, func(core *Core, instr Instruction) {
		s := &core.state
		setPS(s, instr.RD(),
			s.FPR[instr.RC()].Paired0,
			s.FPR[instr.RA()].Paired0+s.FPR[instr.RB()].Paired1)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})

	registerInstruction(InstrPsSel, func(core *Core, instr Instruction) {
		s := &core.state
		sel := func(test, ge, lt float64) float64 {
			if test >= 0 {
				return ge
			}
			return lt
		}
		a := s.FPR[instr.RA()]
		b := s.FPR[instr.RB()]
		c := s.FPR[instr.RC()]
		s.FPR[instr.RD()] = FPR{
			Paired0: sel(a.Paired0, c.Paired0, b.Paired0),
			Paired1: sel(a.Paired1, c.Paired1, b.Paired1),
		}
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrPsRes, func(core *Core, instr Instruction) {
		s := &core.state
		b := s.FPR[instr.RB()]
		setPS(s, instr.RD(), 1.0/b.Paired0, 1.0/b.Paired1)
		if instr.Rc() {
			s.UpdateCR1()
		}
	})
	registerInstruction(InstrPsRsqrte, func(core *Core, instr Instruction) {
		s := &core.state
		b := s.FPR[instr.RB()]
		setPS(s, instr.RD(), 1.0/math.Sqrt(b.Paired0), 1.0/math.Sqrt(b.Paired1))
		if instr.Rc() {
			s.UpdateCR1()
		}
	})

	moveLanes := func(id InstructionID, op func(b FPR) FPR) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			s.FPR[instr.RD()] = op(s.FPR[instr.RB()])
			if instr.Rc() {
				s.UpdateCR1()
			}
		})
	}
	moveLanes(InstrPsMr, func(b FPR) FPR { return b })
	moveLanes(InstrPsNeg, func(b FPR) FPR { return FPR{-b.Paired0, -b.Paired1} })
	moveLanes(InstrPsAbs, func(b FPR) FPR { return FPR{math.Abs(b.Paired0), math.Abs(b.Paired1)} })
	moveLanes(InstrPsNabs, func(b FPR) FPR { return FPR{-math.Abs(b.Paired0), -math.Abs(b.Paired1)} })

	merge := func(id InstructionID, pick func(a, b FPR) FPR) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			s.FPR[instr.RD()] = pick(s.FPR[instr.RA()], s.FPR[instr.RB()])
			if instr.Rc() {
				s.UpdateCR1()
			}
		})
	}
	merge(InstrPsMerge00, func(a, b FPR) FPR { return FPR{a.Paired0, b.Paired0} })
	merge(InstrPsMerge01, func(a, b FPR) FPR { return FPR{a.Paired0, b.Paired1} })
	merge(InstrPsMerge10, func(a, b FPR) FPR { return FPR{a.Paired1, b.Paired0} })
	merge(InstrPsMerge11, func(a, b FPR) FPR { return FPR{a.Paired1, b.Paired1} })

	cmpPS := func(id InstructionID, lane func(f FPR) float64) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			a := lane(s.FPR[instr.RA()])
			b := lane(s.FPR[instr.RB()])
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
		})
	}
	cmpPS(InstrPsCmpu0, func(f FPR) float64 { return f.Paired0 })
	cmpPS(InstrPsCmpo0, func(f FPR) float64 { return f.Paired0 })
	cmpPS(InstrPsCmpu1, func(f FPR) float64 { return f.Paired1 })
	cmpPS(InstrPsCmpo1, func(f FPR) float64 { return f.Paired1 })

	// Quantized load/store
	registerInstruction(InstrPsqL, makePsqLoad(false, false))
	registerInstruction(InstrPsqLu, makePsqLoad(true, false))
	registerInstruction(InstrPsqLx, makePsqLoad(false, true))
	registerInstruction(InstrPsqLux, makePsqLoad(true, true))
	registerInstruction(InstrPsqSt, makePsqStore(false, false))
	registerInstruction(InstrPsqStu, makePsqStore(true, false))
	registerInstruction(InstrPsqStx, makePsqStore(false, true))
	registerInstruction(InstrPsqStux, makePsqStore(true, true))

	registerInstruction(InstrDcbzL, func(core *Core, instr Instruction) {
		s := &core.state
		ea := eaXForm(s, instr) &^ 0x1F
		for i := uint32(0); i < 32; i += 4 {
			core.engine.bus.Write32(ea+i, 0)
		}
	})
}

// Quantized element sizes per GQR type.
func gqrElemSize(ty uint32) uint32 {
	switch ty {
	case GQR_TYPE_U8, GQR_TYPE_S8:
		return 1
	case GQR_TYPE_U16, GQR_TYPE_S16:
		return 2
	default:
		return 4
	}
}

// dequantScale converts the six-bit scale field into the multiplier
// applied on load; store uses the reciprocal direction.
func dequantScale(scale uint32) float64 {
	// Sign-extend the six-bit field.
	signed := int32(scale<<26) >> 26
	return math.Pow(2, float64(-signed))
}

func readQuantized(bus Bus32, addr uint32, ty uint32, scale float64) float64 {
	switch ty {
	case GQR_TYPE_U8:
		return float64(bus.Read8(addr)) * scale
	case GQR_TYPE_S8:
		return float64(int8(bus.Read8(addr))) * scale
	case GQR_TYPE_U16:
		return float64(bus.Read16(addr)) * scale
	case GQR_TYPE_S16:
		return float64(int16(bus.Read16(addr))) * scale
	default:
		return float64(math.Float32frombits(bus.Read32(addr)))
	}
}

func writeQuantized(bus Bus32, addr uint32, ty uint32, scale float64, value float64) {
	clamp := func(v, lo, hi float64) float64 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	scaled := value / scale
	switch ty {
	case GQR_TYPE_U8:
		bus.Write8(addr, uint8(clamp(scaled, 0, 255)))
	case GQR_TYPE_S8:
		bus.Write8(addr, uint8(int8(clamp(scaled, -128, 127))))
	case GQR_TYPE_U16:
		bus.Write16(addr, uint16(clamp(scaled, 0, 65535)))
	case GQR_TYPE_S16:
		bus.Write16(addr, uint16(int16(clamp(scaled, -32768, 32767))))
	default:
		bus.Write32(addr, math.Float32bits(float32(value)))
	}
}

func makePsqLoad(update, indexed bool) instrFn {
	return func(core *Core, instr Instruction) {
		s := &core.state
		var ea uint32
		var w bool
		var gqrIdx uint32
		if indexed {
			ea = eaXForm(s, instr)
			w = instr.PSWX()
			gqrIdx = instr.PSIX()
		} else {
			base := uint32(0)
			if instr.RA() != 0 {
				base = s.GPR[instr.RA()]
			}
			ea = base + uint32(instr.PSD())
			w = instr.PSW()
			gqrIdx = instr.PSI()
		}
		gqr := s.GQR[gqrIdx]
		ty := gqr.LoadType()
		scale := dequantScale(gqr.LoadScale())
		size := gqrElemSize(ty)

		ps0 := readQuantized(core.engine.bus, ea, ty, scale)
		ps1 := 1.0
		if !w {
			ps1 = readQuantized(core.engine.bus, ea+size, ty, scale)
		}
		s.FPR[instr.RD()] = FPR{ps0, ps1}
		if update {
			s.GPR[instr.RA()] = ea
		}
	}
}

func makePsqStore(update, indexed bool) instrFn {
	return func(core *Core, instr Instruction) {
		s := &core.state
		var ea uint32
		var w bool
		var gqrIdx uint32
		if indexed {
			ea = eaXForm(s, instr)
			w = instr.PSWX()
			gqrIdx = instr.PSIX()
		} else {
			base := uint32(0)
			if instr.RA() != 0 {
				base = s.GPR[instr.RA()]
			}
			ea = base + uint32(instr.PSD())
			w = instr.PSW()
			gqrIdx = instr.PSI()
		}
		gqr := s.GQR[gqrIdx]
		ty := gqr.StoreType()
		scale := dequantScale(gqr.StoreScale())
		size := gqrElemSize(ty)

		writeQuantized(core.engine.bus, ea, ty, scale, s.FPR[instr.RS()].Paired0)
		if !w {
			writeQuantized(core.engine.bus, ea+size, ty, scale, s.FPR[instr.RS()].Paired1)
		}
		if update {
			s.GPR[instr.RA()] = ea
		}
	}
}
