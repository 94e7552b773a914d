// interp_dispatch.go - Interpreter dispatch table and execution loop

package main

import "fmt"

// instrFn executes one decoded instruction against a core.
type instrFn func(core *Core, instr Instruction)

var sInstructionMap [InstructionCount]instrFn

func initialiseInterpreter() {
	registerBranchInstructions()
	registerConditionInstructions()
	registerFloatInstructions()
	registerIntegerInstructions()
	registerLoadStoreInstructions()
	registerPairedInstructions()
	registerSystemInstructions()
}

func registerInstruction(id InstructionID, fn instrFn) {
	sInstructionMap[id] = fn
}

func getInstructionHandler(id InstructionID) instrFn {
	if id < 0 || id >= InstructionCount {
		return nil
	}
	return sInstructionMap[id]
}

func hasInstruction(id InstructionID) bool {
	return getInstructionHandler(id) != nil
}

// stepOne dispatches a single instruction on the core: drain pending
// interrupts, advance cia/nia, fetch, decode, execute, trace. Used
// directly by the debugger for stepping.
func stepOne(core *Core) {
	state := &core.state

	if flags := core.interrupt.Swap(0); flags != 0 && core.engine.interruptHandler != nil {
		core.engine.interruptHandler(core, flags)
	}

	state.CIA = state.NIA
	state.NIA = state.CIA + 4

	instr := Instruction(core.engine.bus.Read32(state.CIA))
	data := decodeInstruction(instr)
	if data == nil {
		panic(fmt.Sprintf("could not decode instruction at %08X = %08X", state.CIA, uint32(instr)))
	}

	fn := sInstructionMap[data.ID]
	if fn == nil {
		panic(fmt.Sprintf("unimplemented interpreter instruction %s at %08X", data.Name, state.CIA))
	}

	fn(core, instr)

	if core.engine.trace != nil {
		core.engine.trace(core, instr, data)
	}
}

// interpreterResume refreshes the rounding mode, then steps until the
// next instruction address reaches the callback sentinel.
func interpreterResume(core *Core) {
	updateRoundingMode(&core.state)

	for core.state.NIA != CALLBACK_ADDR {
		stepOne(core)
	}
}
