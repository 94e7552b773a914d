// debug_commands.go - Command parser and handlers for the engine monitor

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// MonitorCommand is one parsed input line.
type MonitorCommand struct {
	Name string
	Args []string
}

// ParseCommand splits a raw input line into a command name and arguments.
func ParseCommand(input string) MonitorCommand {
	input = strings.TrimSpace(input)
	if input == "" {
		return MonitorCommand{}
	}
	parts := strings.Fields(input)
	return MonitorCommand{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// ParseAddress parses a monitor address in various formats:
// $hex, 0xhex, bare hex, #decimal
func ParseAddress(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// #decimal
	if strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 10, 32)
		return uint32(v), err == nil
	}

	// $hex
	if strings.HasPrefix(s, "$") {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		return uint32(v), err == nil
	}

	// 0x or 0X hex
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		return uint32(v), err == nil
	}

	// bare hex
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err == nil
}

// Execute dispatches one command against the monitor.
func (mon *EngineMonitor) Execute(cmd MonitorCommand) error {
	switch cmd.Name {
	case "":
		return nil
	case "help", "?":
		mon.printHelp()
		return nil
	case "core":
		return mon.cmdCore(cmd.Args)
	case "r", "regs":
		return mon.cmdRegs()
	case "s", "step":
		return mon.cmdStep(cmd.Args)
	case "m", "mem":
		return mon.cmdMem(cmd.Args)
	case "bp":
		return mon.cmdBreakpoint(cmd.Args)
	case "int":
		return mon.cmdInterrupt(cmd.Args)
	case "fallbacks":
		mon.Printf("%s", mon.engine.jit.FallbackReport())
		return nil
	case "script":
		return mon.cmdScript(cmd.Args)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd.Name)
	}
}

func (mon *EngineMonitor) printHelp() {
	mon.Printf("core <n>            focus core 0-2")
	mon.Printf("r                   dump registers of the focused core")
	mon.Printf("s [n]               step n instructions (default 1)")
	mon.Printf("m <addr> [count]    dump guest memory words")
	mon.Printf("bp set <addr>       arm a monitor breakpoint")
	mon.Printf("bp once <addr>      arm a one-shot breakpoint")
	mon.Printf("bp clear <addr>     remove the monitor flags at addr")
	mon.Printf("bp list             list armed breakpoints")
	mon.Printf("int <core> <flags>  post interrupt flags")
	mon.Printf("fallbacks           JIT fallback call counters")
	mon.Printf("script <file.lua>   run a Lua macro")
}

func (mon *EngineMonitor) cmdCore(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: core <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= NUM_CORES {
		return fmt.Errorf("no such core %q", args[0])
	}
	mon.focused = n
	mon.Printf("focused core #%d", n)
	return nil
}

func (mon *EngineMonitor) cmdRegs() error {
	state := mon.engine.Core(mon.focused).State()
	mon.Printf("core #%d  cia=%08X nia=%08X lr=%08X ctr=%08X", mon.focused,
		state.CIA, state.NIA, state.LR, state.CTR)
	mon.Printf("cr=%08X xer=%08X fpscr=%08X", state.CR, state.XER, state.FPSCR)
	for i := 0; i < 32; i += 4 {
		mon.Printf("r%-2d %08X  r%-2d %08X  r%-2d %08X  r%-2d %08X",
			i, state.GPR[i], i+1, state.GPR[i+1], i+2, state.GPR[i+2], i+3, state.GPR[i+3])
	}
	return nil
}

func (mon *EngineMonitor) cmdStep(args []string) error {
	count := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("bad step count %q", args[0])
		}
		count = n
	}
	core := mon.engine.Core(mon.focused)
	for i := 0; i < count; i++ {
		core.StepOne()
	}
	state := core.State()
	instr := Instruction(mon.engine.bus.Read32(state.NIA))
	mon.Printf("stopped at %08X: %s", state.NIA, instr)
	return nil
}

func (mon *EngineMonitor) cmdMem(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: m <addr> [count]")
	}
	addr, ok := ParseAddress(args[0])
	if !ok {
		return fmt.Errorf("bad address %q", args[0])
	}
	count := 8
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err == nil && n > 0 {
			count = n
		}
	}
	for i := 0; i < count; i += 4 {
		base := addr + uint32(i)*4
		mon.Printf("%08X: %08X %08X %08X %08X", base,
			mon.engine.bus.Read32(base), mon.engine.bus.Read32(base+4),
			mon.engine.bus.Read32(base+8), mon.engine.bus.Read32(base+12))
	}
	return nil
}

// MONITOR_BPFLAG marks breakpoints owned by the monitor so clearing
// them leaves debugger-API breakpoints alone.
const MONITOR_BPFLAG = uint32(1) << 0

func (mon *EngineMonitor) cmdBreakpoint(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: bp set|once|clear|list ...")
	}
	switch args[0] {
	case "list":
		listed := false
		mon.engine.breakpoints.walk(func(addr, flags uint32) {
			mon.Printf("  %08X flags=%08X", addr, flags)
			listed = true
		})
		if !listed {
			mon.Printf("no breakpoints armed")
		}
		return nil
	case "set", "once":
		if len(args) != 2 {
			return fmt.Errorf("usage: bp %s <addr>", args[0])
		}
		addr, ok := ParseAddress(args[1])
		if !ok {
			return fmt.Errorf("bad address %q", args[1])
		}
		flags := MONITOR_BPFLAG
		if args[0] == "once" {
			flags = SYSTEM_BPFLAG
		}
		changed, err := mon.engine.AddBreakpoint(addr, flags)
		if err != nil {
			return err
		}
		if changed {
			mon.Printf("breakpoint armed at %08X", addr)
		} else {
			mon.Printf("breakpoint already armed at %08X", addr)
		}
		return nil
	case "clear":
		if len(args) != 2 {
			return fmt.Errorf("usage: bp clear <addr>")
		}
		addr, ok := ParseAddress(args[1])
		if !ok {
			return fmt.Errorf("bad address %q", args[1])
		}
		if mon.engine.RemoveBreakpoint(addr, MONITOR_BPFLAG|SYSTEM_BPFLAG) {
			mon.Printf("breakpoint cleared at %08X", addr)
		} else {
			mon.Printf("no breakpoint at %08X", addr)
		}
		return nil
	default:
		return fmt.Errorf("unknown bp subcommand %q", args[0])
	}
}

func (mon *EngineMonitor) cmdInterrupt(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: int <core> <flags>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= NUM_CORES {
		return fmt.Errorf("no such core %q", args[0])
	}
	flags, ok := ParseAddress(args[1])
	if !ok || flags == 0 {
		return fmt.Errorf("bad flag set %q", args[1])
	}
	mon.engine.Interrupt(n, flags)
	mon.Printf("posted %08X to core #%d", flags, n)
	return nil
}
