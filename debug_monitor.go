// debug_monitor.go - Engine monitor core and Lua macro scripting

package main

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
)

// EngineMonitor is the interactive debugger front end: it owns the
// focused-core selection, the output sink, and the Lua macro state.
// Breakpoints go through the engine's lock-free registry, stepping
// through the per-core step entry point.
type EngineMonitor struct {
	engine  *Engine
	focused int

	output func(line string)
}

func NewEngineMonitor(engine *Engine) *EngineMonitor {
	return &EngineMonitor{
		engine: engine,
		output: func(line string) { fmt.Println(line) },
	}
}

// SetOutput redirects monitor output, used by the console host and
// the tests.
func (mon *EngineMonitor) SetOutput(fn func(line string)) {
	mon.output = fn
}

func (mon *EngineMonitor) Printf(format string, args ...any) {
	mon.output(fmt.Sprintf(format, args...))
}

// ExecuteLine parses and runs one input line.
func (mon *EngineMonitor) ExecuteLine(line string) {
	if err := mon.Execute(ParseCommand(line)); err != nil {
		mon.Printf("error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Lua macros
// ---------------------------------------------------------------------------

// cmdScript runs a Lua macro file with the monitor API registered.
func (mon *EngineMonitor) cmdScript(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: script <file.lua>")
	}
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	return mon.RunScript(string(source))
}

// RunScript executes Lua source against the monitor API:
//
//	reg(name) -> value            read a register of the focused core
//	setreg(name, value)           write a register
//	read32(addr) -> value         guest memory read
//	write32(addr, value)          guest memory write
//	bp(addr [, once])             arm a breakpoint
//	clearbp(addr)                 clear a breakpoint
//	interrupt(core, flags)        post interrupt flags
//	step([n])                     step the focused core
//	print(...)                    monitor output
func (mon *EngineMonitor) RunScript(source string) error {
	state := lua.NewState()
	defer state.Close()

	core := func() *Core { return mon.engine.Core(mon.focused) }

	state.SetGlobal("reg", state.NewFunction(func(l *lua.LState) int {
		value, err := readNamedRegister(core().State(), l.CheckString(1))
		if err != nil {
			l.RaiseError("%v", err)
		}
		l.Push(lua.LNumber(value))
		return 1
	}))
	state.SetGlobal("setreg", state.NewFunction(func(l *lua.LState) int {
		if err := writeNamedRegister(core().State(), l.CheckString(1), uint32(l.CheckNumber(2))); err != nil {
			l.RaiseError("%v", err)
		}
		return 0
	}))
	state.SetGlobal("read32", state.NewFunction(func(l *lua.LState) int {
		l.Push(lua.LNumber(mon.engine.bus.Read32(uint32(l.CheckNumber(1)))))
		return 1
	}))
	state.SetGlobal("write32", state.NewFunction(func(l *lua.LState) int {
		mon.engine.bus.Write32(uint32(l.CheckNumber(1)), uint32(l.CheckNumber(2)))
		return 0
	}))
	state.SetGlobal("bp", state.NewFunction(func(l *lua.LState) int {
		flags := MONITOR_BPFLAG
		if lua.LVAsBool(l.Get(2)) {
			flags = SYSTEM_BPFLAG
		}
		changed, err := mon.engine.AddBreakpoint(uint32(l.CheckNumber(1)), flags)
		if err != nil {
			l.RaiseError("%v", err)
		}
		l.Push(lua.LBool(changed))
		return 1
	}))
	state.SetGlobal("clearbp", state.NewFunction(func(l *lua.LState) int {
		matched := mon.engine.RemoveBreakpoint(uint32(l.CheckNumber(1)), MONITOR_BPFLAG|SYSTEM_BPFLAG)
		l.Push(lua.LBool(matched))
		return 1
	}))
	state.SetGlobal("interrupt", state.NewFunction(func(l *lua.LState) int {
		idx := l.CheckInt(1)
		if idx < 0 || idx >= NUM_CORES {
			l.RaiseError("no such core %d", idx)
		}
		mon.engine.Interrupt(idx, uint32(l.CheckNumber(2)))
		return 0
	}))
	state.SetGlobal("step", state.NewFunction(func(l *lua.LState) int {
		count := l.OptInt(1, 1)
		for i := 0; i < count; i++ {
			core().StepOne()
		}
		return 0
	}))
	state.SetGlobal("print", state.NewFunction(func(l *lua.LState) int {
		top := l.GetTop()
		line := ""
		for i := 1; i <= top; i++ {
			if i > 1 {
				line += "\t"
			}
			line += l.ToStringMeta(l.Get(i)).String()
		}
		mon.Printf("%s", line)
		return 0
	}))

	return state.DoString(source)
}

// readNamedRegister resolves a register name against the thread state.
func readNamedRegister(state *ThreadState, name string) (uint32, error) {
	switch name {
	case "cia":
		return state.CIA, nil
	case "nia", "pc":
		return state.NIA, nil
	case "lr":
		return state.LR, nil
	case "ctr":
		return state.CTR, nil
	case "cr":
		return state.CR, nil
	case "xer":
		return state.XER, nil
	case "fpscr":
		return state.FPSCR, nil
	}
	var idx int
	if n, err := fmt.Sscanf(name, "r%d", &idx); n == 1 && err == nil && idx >= 0 && idx < 32 {
		return state.GPR[idx], nil
	}
	return 0, fmt.Errorf("unknown register %q", name)
}

func writeNamedRegister(state *ThreadState, name string, value uint32) error {
	switch name {
	case "nia", "pc":
		state.NIA = value
		return nil
	case "lr":
		state.LR = value
		return nil
	case "ctr":
		state.CTR = value
		return nil
	case "cr":
		state.CR = value
		return nil
	case "xer":
		state.XER = value
		return nil
	case "fpscr":
		state.SetFPSCR(value)
		return nil
	}
	var idx int
	if n, err := fmt.Sscanf(name, "r%d", &idx); n == 1 && err == nil && idx >= 0 && idx < 32 {
		state.GPR[idx] = value
		return nil
	}
	return fmt.Errorf("unknown register %q", name)
}
