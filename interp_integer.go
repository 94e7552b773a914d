// interp_integer.go - Integer arithmetic, logical, rotate and compare handlers

package main

import (
	"fmt"
	"math/bits"
)

// ppcMask builds the rotate mask from bit mb to bit me inclusive,
// numbering bit 0 as the most significant.
func ppcMask(mb, me uint32) uint32 {
	begin := uint32(0xFFFFFFFF) >> mb
	end := uint32(0xFFFFFFFF) << (31 - me)
	if mb <= me {
		return begin & end
	}
	return begin | end
}

func recordCompare(state *ThreadState, field uint32, lt, gt bool) {
	var cr uint32
	switch {
	case lt:
		cr = CR_LT
	case gt:
		cr = CR_GT
	default:
		cr = CR_EQ
	}
	if state.XER&XER_SO != 0 {
		cr |= CR_SO
	}
	state.SetCRField(field, cr)
}

// addGeneric implements the add family: result = lhs + rhs + carryIn,
// with optional carry and overflow recording.
func addGeneric(state *ThreadState, instr Instruction, lhs, rhs uint32, carryIn uint32, recordCarry, recordOverflow bool) uint32 {
	sum64 := uint64(lhs) + uint64(rhs) + uint64(carryIn)
	result := uint32(sum64)

	if recordCarry {
		state.SetCarry(sum64 > 0xFFFFFFFF)
	}
	if recordOverflow && instr.OE() {
		overflow := (lhs>>31 == rhs>>31) && (result>>31 != lhs>>31)
		state.SetOverflow(overflow)
	}
	if instr.Rc() {
		state.UpdateCR0(result)
	}
	return result
}

func registerIntegerInstructions() {
	registerInstruction(InstrAdd, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RD()] = addGeneric(s, instr, s.GPR[instr.RA()], s.GPR[instr.RB()], 0, false, true)
	})
	registerInstruction(InstrAddc, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RD()] = addGeneric(s, instr, s.GPR[instr.RA()], s.GPR[instr.RB()], 0, true, true)
	})
	registerInstruction(InstrAdde, func(core *Core, instr Instruction) {
		s := &core.state
		carry := uint32(0)
		if s.Carry() {
			carry = 1
		}
		s.GPR[instr.RD()] = addGeneric(s, instr, s.GPR[instr.RA()], s.GPR[instr.RB()], carry, true, true)
	})
	registerInstruction(InstrAddme, func(core *Core, instr Instruction) {
		s := &core.state
		carry := uint32(0)
		if s.Carry() {
			carry = 1
		}
		s.GPR[instr.RD()] = addGeneric(s, instr, s.GPR[instr.RA()], 0xFFFFFFFF, carry, true, true)
	})
	registerInstruction(InstrAddze, func(core *Core, instr Instruction) {
		s := &core.state
		carry := uint32(0)
		if s.Carry() {
			carry = 1
		}
		s.GPR[instr.RD()] = addGeneric(s, instr, s.GPR[instr.RA()], 0, carry, true, true)
	})
	registerInstruction(InstrAddi, func(core *Core, instr Instruction) {
		s := &core.state
		base := uint32(0)
		if instr.RA() != 0 {
			base = s.GPR[instr.RA()]
		}
		s.GPR[instr.RD()] = base + uint32(instr.SIMM())
	})
	registerInstruction(InstrAddis, func(core *Core, instr Instruction) {
		s := &core.state
		base := uint32(0)
		if instr.RA() != 0 {
			base = s.GPR[instr.RA()]
		}
		s.GPR[instr.RD()] = base + uint32(instr.SIMM())<<16
	})
	registerInstruction(InstrAddic, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RD()] = addGeneric(s, instr, s.GPR[instr.RA()], uint32(instr.SIMM()), 0, true, false)
	})
	registerInstruction(InstrAddicx, func(core *Core, instr Instruction) {
		s := &core.state
		result := addGeneric(s, instr, s.GPR[instr.RA()], uint32(instr.SIMM()), 0, true, false)
		s.GPR[instr.RD()] = result
		s.UpdateCR0(result)
	})

	registerInstruction(InstrSubf, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RD()] = addGeneric(s, instr, ^s.GPR[instr.RA()], s.GPR[instr.RB()], 1, false, true)
	})
	registerInstruction(InstrSubfc, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RD()] = addGeneric(s, instr, ^s.GPR[instr.RA()], s.GPR[instr.RB()], 1, true, true)
	})
	registerInstruction(InstrSubfe, func(core *Core, instr Instruction) {
		s := &core.state
		carry := uint32(0)
		if s.Carry() {
			carry = 1
		}
		s.GPR[instr.RD()] = addGeneric(s, instr, ^s.GPR[instr.RA()], s.GPR[instr.RB()], carry, true, true)
	})
	registerInstruction(InstrSubfme, func(core *Core, instr Instruction) {
		s := &core.state
		carry := uint32(0)
		if s.Carry() {
			carry = 1
		}
		s.GPR[instr.RD()] = addGeneric(s, instr, ^s.GPR[instr.RA()], 0xFFFFFFFF, carry, true, true)
	})
	registerInstruction(InstrSubfze, func(core *Core, instr Instruction) {
		s := &core.state
		carry := uint32(0)
		if s.Carry() {
			carry = 1
		}
		s.GPR[instr.RD()] = addGeneric(s, instr, ^s.GPR[instr.RA()], 0, carry, true, true)
	})
	registerInstruction(InstrSubfic, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RD()] = addGeneric(s, instr, ^s.GPR[instr.RA()], uint32(instr.SIMM()), 1, true, false)
	})

	registerInstruction(InstrNeg, func(core *Core, instr Instruction) {
		s := &core.state
		value := s.GPR[instr.RA()]
		result := -value
		if instr.OE() {
			s.SetOverflow(value == 0x80000000)
		}
		s.GPR[instr.RD()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})

	registerInstruction(InstrMulli, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RD()] = uint32(int32(s.GPR[instr.RA()]) * instr.SIMM())
	})
	registerInstruction(InstrMullw, func(core *Core, instr Instruction) {
		s := &core.state
		product := int64(int32(s.GPR[instr.RA()])) * int64(int32(s.GPR[instr.RB()]))
		result := uint32(product)
		if instr.OE() {
			s.SetOverflow(product != int64(int32(product)))
		}
		s.GPR[instr.RD()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrMulhw, func(core *Core, instr Instruction) {
		s := &core.state
		product := int64(int32(s.GPR[instr.RA()])) * int64(int32(s.GPR[instr.RB()]))
		result := uint32(product >> 32)
		s.GPR[instr.RD()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrMulhwu, func(core *Core, instr Instruction) {
		s := &core.state
		product := uint64(s.GPR[instr.RA()]) * uint64(s.GPR[instr.RB()])
		result := uint32(product >> 32)
		s.GPR[instr.RD()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})

	registerInstruction(InstrDivw, func(core *Core, instr Instruction) {
		s := &core.state
		dividend := int32(s.GPR[instr.RA()])
		divisor := int32(s.GPR[instr.RB()])
		overflow := divisor == 0 || (dividend == -0x80000000 && divisor == -1)
		var result uint32
		if !overflow {
			result = uint32(dividend / divisor)
		}
		if instr.OE() {
			s.SetOverflow(overflow)
		}
		s.GPR[instr.RD()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrDivwu, func(core *Core, instr Instruction) {
		s := &core.state
		divisor := s.GPR[instr.RB()]
		overflow := divisor == 0
		var result uint32
		if !overflow {
			result = s.GPR[instr.RA()] / divisor
		}
		if instr.OE() {
			s.SetOverflow(overflow)
		}
		s.GPR[instr.RD()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})

	// Compares
	registerInstruction(InstrCmp, func(core *Core, instr Instruction) {
		s := &core.state
		a := int32(s.GPR[instr.RA()])
		b := int32(s.GPR[instr.RB()])
		recordCompare(s, instr.CRFD(), a < b, a > b)
	})
	registerInstruction(InstrCmpi, func(core *Core, instr Instruction) {
		s := &core.state
		a := int32(s.GPR[instr.RA()])
		b := instr.SIMM()
		recordCompare(s, instr.CRFD(), a < b, a > b)
	})
	registerInstruction(InstrCmpl, func(core *Core, instr Instruction) {
		s := &core.state
		a := s.GPR[instr.RA()]
		b := s.GPR[instr.RB()]
		recordCompare(s, instr.CRFD(), a < b, a > b)
	})
	registerInstruction(InstrCmpli, func(core *Core, instr Instruction) {
		s := &core.state
		a := s.GPR[instr.RA()]
		b := instr.UIMM()
		recordCompare(s, instr.CRFD(), a < b, a > b)
	})

	// Logical operations write RA from RS.
	logical := func(id InstructionID, op func(rs, rb uint32) uint32) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			result := op(s.GPR[instr.RS()], s.GPR[instr.RB()])
			s.GPR[instr.RA()] = result
			if instr.Rc() {
				s.UpdateCR0(result)
			}
		})
	}
	logical(InstrAnd, func(rs, rb uint32) uint32 { return rs & rb })
	logical(InstrAndc, func(rs, rb uint32) uint32 { return rs &^ rb })
	logical(InstrOr, func(rs, rb uint32) uint32 { return rs | rb })
	logical(InstrOrc, func(rs, rb uint32) uint32 { return rs | ^rb })
	logical(InstrXor, func(rs, rb uint32) uint32 { return rs ^ rb })
	logical(InstrNand, func(rs, rb uint32) uint32 { return ^(rs & rb) })
	logical(InstrNor, func(rs, rb uint32) uint32 { return ^(rs | rb) })
	logical(InstrEqv, func(rs, rb uint32) uint32 { return ^(rs ^ rb) })

	registerInstruction(InstrAndix, func(core *Core, instr Instruction) {
		s := &core.state
		result := s.GPR[instr.RS()] & instr.UIMM()
		s.GPR[instr.RA()] = result
		s.UpdateCR0(result)
	})
	registerInstruction(InstrAndisx, func(core *Core, instr Instruction) {
		s := &core.state
		result := s.GPR[instr.RS()] & (instr.UIMM() << 16)
		s.GPR[instr.RA()] = result
		s.UpdateCR0(result)
	})
	registerInstruction(InstrOri, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RA()] = s.GPR[instr.RS()] | instr.UIMM()
	})
	registerInstruction(InstrOris, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RA()] = s.GPR[instr.RS()] | instr.UIMM()<<16
	})
	registerInstruction(InstrXori, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RA()] = s.GPR[instr.RS()] ^ instr.UIMM()
	})
	registerInstruction(InstrXoris, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RA()] = s.GPR[instr.RS()] ^ instr.UIMM()<<16
	})

	registerInstruction(InstrCntlzw, func(core *Core, instr Instruction) {
		s := &core.state
		result := uint32(bits.LeadingZeros32(s.GPR[instr.RS()]))
		s.GPR[instr.RA()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrExtsb, func(core *Core, instr Instruction) {
		s := &core.state
		result := uint32(int32(int8(s.GPR[instr.RS()])))
		s.GPR[instr.RA()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrExtsh, func(core *Core, instr Instruction) {
		s := &core.state
		result := uint32(int32(int16(s.GPR[instr.RS()])))
		s.GPR[instr.RA()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})

	// Rotates
	registerInstruction(InstrRlwinm, func(core *Core, instr Instruction) {
		s := &core.state
		rotated := bits.RotateLeft32(s.GPR[instr.RS()], int(instr.SH()))
		result := rotated & ppcMask(instr.MB(), instr.ME())
		s.GPR[instr.RA()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrRlwimi, func(core *Core, instr Instruction) {
		s := &core.state
		rotated := bits.RotateLeft32(s.GPR[instr.RS()], int(instr.SH()))
		mask := ppcMask(instr.MB(), instr.ME())
		result := (rotated & mask) | (s.GPR[instr.RA()] &^ mask)
		s.GPR[instr.RA()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrRlwnm, func(core *Core, instr Instruction) {
		s := &core.state
		rotated := bits.RotateLeft32(s.GPR[instr.RS()], int(s.GPR[instr.RB()]&0x1F))
		result := rotated & ppcMask(instr.MB(), instr.ME())
		s.GPR[instr.RA()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})

	// Shifts
	registerInstruction(InstrSlw, func(core *Core, instr Instruction) {
		s := &core.state
		sh := s.GPR[instr.RB()] & 0x3F
		var result uint32
		if sh < 32 {
			result = s.GPR[instr.RS()] << sh
		}
		s.GPR[instr.RA()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrSrw, func(core *Core, instr Instruction) {
		s := &core.state
		sh := s.GPR[instr.RB()] & 0x3F
		var result uint32
		if sh < 32 {
			result = s.GPR[instr.RS()] >> sh
		}
		s.GPR[instr.RA()] = result
		if instr.Rc() {
			s.UpdateCR0(result)
		}
	})
	registerInstruction(InstrSraw, func(core *Core, instr Instruction) {
		s := &core.state
		value := int32(s.GPR[instr.RS()])
		sh := s.GPR[instr.RB()] & 0x3F
		var result int32
		var carry bool
		if sh >= 32 {
			result = value >> 31
			carry = value < 0
		} else {
			result = value >> sh
			carry = value < 0 && uint32(value)<<(32-sh) != 0 && sh != 0
		}
		s.SetCarry(carry)
		s.GPR[instr.RA()] = uint32(result)
		if instr.Rc() {
			s.UpdateCR0(uint32(result))
		}
	})
	registerInstruction(InstrSrawi, func(core *Core, instr Instruction) {
		s := &core.state
		value := int32(s.GPR[instr.RS()])
		sh := instr.SH()
		result := value >> sh
		carry := value < 0 && sh != 0 && uint32(value)<<(32-sh) != 0
		s.SetCarry(carry)
		s.GPR[instr.RA()] = uint32(result)
		if instr.Rc() {
			s.UpdateCR0(uint32(result))
		}
	})

	// Traps are delivered as core-fatal diagnostics when taken.
	registerInstruction(InstrTw, func(core *Core, instr Instruction) {
		s := &core.state
		trapCompare(core, instr.TO(), int32(s.GPR[instr.RA()]), int32(s.GPR[instr.RB()]))
	})
	registerInstruction(InstrTwi, func(core *Core, instr Instruction) {
		s := &core.state
		trapCompare(core, instr.TO(), int32(s.GPR[instr.RA()]), instr.SIMM())
	})
}

func trapCompare(core *Core, to uint32, a, b int32) {
	taken := (to&0x10 != 0 && a < b) ||
		(to&0x08 != 0 && a > b) ||
		(to&0x04 != 0 && a == b) ||
		(to&0x02 != 0 && uint32(a) < uint32(b)) ||
		(to&0x01 != 0 && uint32(a) > uint32(b))
	if taken {
		panic(fmt.Sprintf("trap taken at %08X", core.state.CIA))
	}
}
