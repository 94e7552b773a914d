// interp_loadstore.go - Load/store handlers

package main

import "math"

func eaDForm(s *ThreadState, instr Instruction) uint32 {
	base := uint32(0)
	if instr.RA() != 0 {
		base = s.GPR[instr.RA()]
	}
	return base + uint32(instr.SIMM())
}

func eaXForm(s *ThreadState, instr Instruction) uint32 {
	base := uint32(0)
	if instr.RA() != 0 {
		base = s.GPR[instr.RA()]
	}
	return base + s.GPR[instr.RB()]
}

func eaUpdateD(s *ThreadState, instr Instruction) uint32 {
	ea := s.GPR[instr.RA()] + uint32(instr.SIMM())
	s.GPR[instr.RA()] = ea
	return ea
}

func eaUpdateX(s *ThreadState, instr Instruction) uint32 {
	ea := s.GPR[instr.RA()] + s.GPR[instr.RB()]
	s.GPR[instr.RA()] = ea
	return ea
}

func registerLoadStoreInstructions() {
	type eaFn func(*ThreadState, Instruction) uint32

	load := func(id InstructionID, ea eaFn, read func(Bus32, uint32) uint32) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			s.GPR[instr.RD()] = read(core.engine.bus, ea(s, instr))
		})
	}
	store := func(id InstructionID, ea eaFn, write func(Bus32, uint32, uint32)) {
		registerInstruction(id, func(core *Core, instr Instruction) {
			s := &core.state
			write(core.engine.bus, ea(s, instr), s.GPR[instr.RS()])
		})
	}

	read8 := func(bus Bus32, addr uint32) uint32 { return uint32(bus.Read8(addr)) }
	read16 := func(bus Bus32, addr uint32) uint32 { return uint32(bus.Read16(addr)) }
	read16s := func(bus Bus32, addr uint32) uint32 { return uint32(int32(int16(bus.Read16(addr)))) }
	read32 := func(bus Bus32, addr uint32) uint32 { return bus.Read32(addr) }
	write8 := func(bus Bus32, addr, v uint32) { bus.Write8(addr, uint8(v)) }
	write16 := func(bus Bus32, addr, v uint32) { bus.Write16(addr, uint16(v)) }
	write32 := func(bus Bus32, addr, v uint32) { bus.Write32(addr, v) }

	load(InstrLbz, eaDForm, read8)
	load(InstrLbzu, eaUpdateD, read8)
	load(InstrLbzx, eaXForm, read8)
	load(InstrLbzux, eaUpdateX, read8)
	load(InstrLhz, eaDForm, read16)
	load(InstrLhzu, eaUpdateD, read16)
	load(InstrLhzx, eaXForm, read16)
	load(InstrLhzux, eaUpdateX, read16)
	load(InstrLha, eaDForm, read16s)
	load(InstrLhau, eaUpdateD, read16s)
	load(InstrLhax, eaXForm, read16s)
	load(InstrLhaux, eaUpdateX, read16s)
	load(InstrLwz, eaDForm, read32)
	load(InstrLwzu, eaUpdateD, read32)
	load(InstrLwzx, eaXForm, read32)
	load(InstrLwzux, eaUpdateX, read32)

	store(InstrStb, eaDForm, write8)
	store(InstrStbu, eaUpdateD, write8)
	store(InstrStbx, eaXForm, write8)
	store(InstrStbux, eaUpdateX, write8)
	store(InstrSth, eaDForm, write16)
	store(InstrSthu, eaUpdateD, write16)
	store(InstrSthx, eaXForm, write16)
	store(InstrSthux, eaUpdateX, write16)
	store(InstrStw, eaDForm, write32)
	store(InstrStwu, eaUpdateD, write32)
	store(InstrStwx, eaXForm, write32)
	store(InstrStwux, eaUpdateX, write32)

	// Byte-reversed forms
	load(InstrLwbrx, eaXForm, func(bus Bus32, addr uint32) uint32 {
		v := bus.Read32(addr)
		return v<<24 | v>>24 | (v&0xFF00)<<8 | (v>>8)&0xFF00
	})
	load(InstrLhbrx, eaXForm, func(bus Bus32, addr uint32) uint32 {
		v := uint32(bus.Read16(addr))
		return v>>8 | (v&0xFF)<<8
	})
	store(InstrStwbrx, eaXForm, func(bus Bus32, addr, v uint32) {
		bus.Write32(addr, v<<24|v>>24|(v&0xFF00)<<8|(v>>8)&0xFF00)
	})
	store(InstrSthbrx, eaXForm, func(bus Bus32, addr, v uint32) {
		bus.Write16(addr, uint16(v>>8|(v&0xFF)<<8))
	})

	// Multiple word transfer
	registerInstruction(InstrLmw, func(core *Core, instr Instruction) {
		s := &core.state
		ea := eaDForm(s, instr)
		for r := instr.RD(); r < 32; r++ {
			s.GPR[r] = core.engine.bus.Read32(ea)
			ea += 4
		}
	})
	registerInstruction(InstrStmw, func(core *Core, instr Instruction) {
		s := &core.state
		ea := eaDForm(s, instr)
		for r := instr.RS(); r < 32; r++ {
			core.engine.bus.Write32(ea, s.GPR[r])
			ea += 4
		}
	})

	// Load-linked / store-conditional reservation pair
	registerInstruction(InstrLwarx, func(core *Core, instr Instruction) {
		s := &core.state
		ea := eaXForm(s, instr)
		value := core.engine.bus.Read32(ea)
		s.Reserve = true
		s.ReserveAddress = ea
		s.ReserveData = value
		s.GPR[instr.RD()] = value
	})
	registerInstruction(InstrStwcx, func(core *Core, instr Instruction) {
		s := &core.state
		ea := eaXForm(s, instr)
		cr := uint32(0)
		if s.XER&XER_SO != 0 {
			cr |= CR_SO
		}
		if s.Reserve && s.ReserveAddress == ea &&
			core.engine.bus.Read32(ea) == s.ReserveData {
			core.engine.bus.Write32(ea, s.GPR[instr.RS()])
			cr |= CR_EQ
		}
		s.Reserve = false
		s.SetCRField(0, cr)
	})

	// Float loads duplicate the single-precision value into both paired
	// lanes, matching the hardware behaviour the paired ops rely on.
	registerInstruction(InstrLfs, makeLoadFS(eaDForm))
	registerInstruction(InstrLfsu, makeLoadFS(eaUpdateD))
	registerInstruction(InstrLfsx, makeLoadFS(eaXForm))
	registerInstruction(InstrLfsux, makeLoadFS(eaUpdateX))
	registerInstruction(InstrLfd, makeLoadFD(eaDForm))
	registerInstruction(InstrLfdu, makeLoadFD(eaUpdateD))
	registerInstruction(InstrLfdx, makeLoadFD(eaXForm))
	registerInstruction(InstrLfdux, makeLoadFD(eaUpdateX))
	registerInstruction(InstrStfs, makeStoreFS(eaDForm))
	registerInstruction(InstrStfsu, makeStoreFS(eaUpdateD))
	registerInstruction(InstrStfsx, makeStoreFS(eaXForm))
	registerInstruction(InstrStfsux, makeStoreFS(eaUpdateX))
	registerInstruction(InstrStfd, makeStoreFD(eaDForm))
	registerInstruction(InstrStfdu, makeStoreFD(eaUpdateD))
	registerInstruction(InstrStfdx, makeStoreFD(eaXForm))
	registerInstruction(InstrStfdux, makeStoreFD(eaUpdateX))

	registerInstruction(InstrStfiwx, func(core *Core, instr Instruction) {
		s := &core.state
		ea := eaXForm(s, instr)
		core.engine.bus.Write32(ea, uint32(math.Float64bits(s.FPR[instr.RS()].Paired0)))
	})
}

func makeLoadFS(ea func(*ThreadState, Instruction) uint32) instrFn {
	return func(core *Core, instr Instruction) {
		s := &core.state
		value := float64(math.Float32frombits(core.engine.bus.Read32(ea(s, instr))))
		s.FPR[instr.RD()].Paired0 = value
		s.FPR[instr.RD()].Paired1 = value
	}
}

func makeLoadFD(ea func(*ThreadState, Instruction) uint32) instrFn {
	return func(core *Core, instr Instruction) {
		s := &core.state
		s.FPR[instr.RD()].Paired0 = math.Float64frombits(core.engine.bus.Read64(ea(s, instr)))
	}
}

func makeStoreFS(ea func(*ThreadState, Instruction) uint32) instrFn {
	return func(core *Core, instr Instruction) {
		s := &core.state
		core.engine.bus.Write32(ea(s, instr), math.Float32bits(float32(s.FPR[instr.RS()].Paired0)))
	}
}

func makeStoreFD(ea func(*ThreadState, Instruction) uint32) instrFn {
	return func(core *Core, instr Instruction) {
		s := &core.state
		core.engine.bus.Write64(ea(s, instr), math.Float64bits(s.FPR[instr.RS()].Paired0))
	}
}
