// main.go - Engine entry point

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const guestEntryPoint = 0x02000000

func main() {
	jitMode := flag.String("jit", "disabled", "JIT mode: enabled, disabled or debug")
	monitor := flag.Bool("monitor", false, "attach the interactive monitor to stdin")
	trace := flag.Bool("trace", false, "log every retired instruction")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <guest image>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	bus := NewMachineBus()
	image, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read guest image: %v\n", err)
		os.Exit(1)
	}
	if err := bus.LoadBinary(guestEntryPoint, image); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	engine := NewEngine(bus)
	switch *jitMode {
	case "enabled":
		engine.SetJitMode(JitEnabled)
	case "debug":
		engine.SetJitMode(JitDebug)
	case "disabled":
		engine.SetJitMode(JitDisabled)
	default:
		fmt.Fprintf(os.Stderr, "unknown jit mode %q\n", *jitMode)
		os.Exit(1)
	}

	if *trace {
		engine.SetTraceHandler(func(core *Core, instr Instruction, data *InstructionData) {
			fmt.Printf("[core %d] %08X  %s\n", core.ID(), core.State().CIA, instr)
		})
	}

	engine.SetInterruptHandler(func(core *Core, flags uint32) {
		if flags&DBGBREAK_INTERRUPT != 0 {
			fmt.Printf("[core %d] debug break at %08X\n", core.ID(), core.State().NIA)
		}
	})

	// Core 1 is the application core; the others idle until woken, the
	// same split the guest kernel uses.
	engine.SetEntrypointHandler(func(core *Core) {
		if core.ID() != 1 {
			core.SetInterruptMask(ALARM_INTERRUPT | DBGBREAK_INTERRUPT)
			core.WaitForInterrupt()
			return
		}
		core.State().NIA = guestEntryPoint
		core.State().LR = CALLBACK_ADDR
		core.Resume()
	})

	if err := engine.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var host *TerminalHost
	if *monitor {
		host = NewTerminalHost(NewEngineMonitor(engine))
		if err := host.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-engine.Core(1).done:
		// Give trailing output a moment to drain.
		time.Sleep(50 * time.Millisecond)
	}

	if host != nil {
		host.Stop()
	}
	engine.Halt()
}
