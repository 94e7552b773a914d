// interp_system.go - System, SPR and cache-management handlers

package main

import (
	"fmt"
	"time"
)

// Special-purpose register numbers used by guest code.
const (
	SPR_XER   = 1
	SPR_LR    = 8
	SPR_CTR   = 9
	SPR_TBL   = 268
	SPR_TBU   = 269
	SPR_GQR0  = 912
	SPR_GQR7  = 919
	SPR_UGQR0 = 896
	SPR_UGQR7 = 903
)

// timeBase converts the monotonic clock into the guest time base.
func timeBase() uint64 {
	return uint64(time.Now().UnixNano())
}

func registerSystemInstructions() {
	nop := func(core *Core, instr Instruction) {}

	// Ordering and cache hints have no observable effect on the bus model.
	registerInstruction(InstrEieio, nop)
	registerInstruction(InstrSync, nop)
	registerInstruction(InstrIsync, nop)
	registerInstruction(InstrIcbi, nop)
	registerInstruction(InstrDcbf, nop)
	registerInstruction(InstrDcbi, nop)
	registerInstruction(InstrDcbst, nop)
	registerInstruction(InstrDcbt, nop)
	registerInstruction(InstrDcbtst, nop)

	registerInstruction(InstrDcbz, func(core *Core, instr Instruction) {
		s := &core.state
		ea := eaXForm(s, instr) &^ 0x1F
		for i := uint32(0); i < 32; i += 4 {
			core.engine.bus.Write32(ea+i, 0)
		}
	})

	registerInstruction(InstrMfspr, func(core *Core, instr Instruction) {
		s := &core.state
		spr := instr.SPR()
		switch {
		case spr == SPR_XER:
			s.GPR[instr.RD()] = s.XER
		case spr == SPR_LR:
			s.GPR[instr.RD()] = s.LR
		case spr == SPR_CTR:
			s.GPR[instr.RD()] = s.CTR
		case spr >= SPR_UGQR0 && spr <= SPR_UGQR7:
			s.GPR[instr.RD()] = uint32(s.GQR[spr-SPR_UGQR0])
		case spr >= SPR_GQR0 && spr <= SPR_GQR7:
			s.GPR[instr.RD()] = uint32(s.GQR[spr-SPR_GQR0])
		default:
			panic(fmt.Sprintf("invalid mfspr SPR %d at %08X", spr, s.CIA))
		}
	})

	registerInstruction(InstrMtspr, func(core *Core, instr Instruction) {
		s := &core.state
		value := s.GPR[instr.RS()]
		spr := instr.SPR()
		switch {
		case spr == SPR_XER:
			s.XER = value
		case spr == SPR_LR:
			s.LR = value
		case spr == SPR_CTR:
			s.CTR = value
		case spr >= SPR_UGQR0 && spr <= SPR_UGQR7:
			s.GQR[spr-SPR_UGQR0] = GQR(value)
		case spr >= SPR_GQR0 && spr <= SPR_GQR7:
			s.GQR[spr-SPR_GQR0] = GQR(value)
		default:
			panic(fmt.Sprintf("invalid mtspr SPR %d at %08X", spr, s.CIA))
		}
	})

	registerInstruction(InstrMftb, func(core *Core, instr Instruction) {
		s := &core.state
		switch instr.SPR() {
		case SPR_TBU:
			s.GPR[instr.RD()] = uint32(timeBase() >> 32)
		default:
			s.GPR[instr.RD()] = uint32(timeBase())
		}
	})

	registerInstruction(InstrMfcr, func(core *Core, instr Instruction) {
		s := &core.state
		s.GPR[instr.RD()] = s.CR
	})

	registerInstruction(InstrMtcrf, func(core *Core, instr Instruction) {
		s := &core.state
		crm := instr.CRM()
		var mask uint32
		for i := uint32(0); i < 8; i++ {
			if crm&(1<<i) != 0 {
				mask |= 0xF << (i * 4)
			}
		}
		s.CR = (s.CR &^ mask) | (s.GPR[instr.RS()] & mask)
	})

	// The engine models user state only; the MSR reads as zero and
	// writes are ignored.
	registerInstruction(InstrMfmsr, func(core *Core, instr Instruction) {
		core.state.GPR[instr.RD()] = 0
	})
	registerInstruction(InstrMtmsr, nop)
}
