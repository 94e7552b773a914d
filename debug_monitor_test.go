// debug_monitor_test.go - Monitor parsing, commands and scripting

package main

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Address parsing
// ---------------------------------------------------------------------------

func TestAddressParsing(t *testing.T) {
	tests := []struct {
		input string
		want  uint32
		ok    bool
	}{
		{"$1000", 0x1000, true},
		{"0x1000", 0x1000, true},
		{"1000", 0x1000, true},
		{"#4096", 4096, true},
		{"$DEAD", 0xDEAD, true},
		{"0XBEEF", 0xBEEF, true},
		{"FF", 0xFF, true},
		{"#0", 0, true},
		{"$0", 0, true},
		{"", 0, false},
		{"zz", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseAddress(tt.input)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseAddress(%q) = (%X, %v), want (%X, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCommandParsing(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArgs int
	}{
		{"r", "r", 0},
		{"  m  $1000  8  ", "m", 2},
		{"bp set 2000", "bp", 2},
		{"CORE 1", "core", 1},
		{"", "", 0},
	}

	for _, tt := range tests {
		cmd := ParseCommand(tt.input)
		if cmd.Name != tt.wantName || len(cmd.Args) != tt.wantArgs {
			t.Errorf("ParseCommand(%q) = %q/%d args, want %q/%d",
				tt.input, cmd.Name, len(cmd.Args), tt.wantName, tt.wantArgs)
		}
	}
}

// ---------------------------------------------------------------------------
// Commands against a live engine
// ---------------------------------------------------------------------------

func newTestMonitor() (*EngineMonitor, *engineTestRig, *[]string) {
	rig := newEngineTestRig()
	mon := NewEngineMonitor(rig.engine)
	lines := &[]string{}
	mon.SetOutput(func(line string) { *lines = append(*lines, line) })
	return mon, rig, lines
}

func TestMonitorBreakpointCommands(t *testing.T) {
	mon, rig, lines := newTestMonitor()

	mon.ExecuteLine("bp set $3000")
	if !rig.engine.HasBreakpoints() {
		t.Fatalf("bp set did not arm a breakpoint")
	}

	*lines = (*lines)[:0]
	mon.ExecuteLine("bp list")
	if len(*lines) != 1 || !strings.Contains((*lines)[0], "00003000") {
		t.Fatalf("bp list output = %v", *lines)
	}

	mon.ExecuteLine("bp clear $3000")
	if rig.engine.HasBreakpoints() {
		t.Fatalf("bp clear left the breakpoint armed")
	}
}

func TestMonitorStepCommand(t *testing.T) {
	mon, rig, _ := newTestMonitor()
	rig.loadProgram(testProgBase,
		encodeDForm(14, 3, 0, 5),
		blr(),
	)

	mon.ExecuteLine("s")
	requireGPR(t, rig, 3, 5)
}

func TestMonitorUnknownCommandReportsError(t *testing.T) {
	mon, _, lines := newTestMonitor()
	mon.ExecuteLine("frobnicate")
	if len(*lines) == 0 || !strings.Contains((*lines)[0], "unknown command") {
		t.Fatalf("unknown command output = %v", *lines)
	}
}

// ---------------------------------------------------------------------------
// Lua scripting
// ---------------------------------------------------------------------------

func TestMonitorLuaScript(t *testing.T) {
	mon, rig, lines := newTestMonitor()
	rig.core.state.GPR[3] = 40

	err := mon.RunScript(`
		setreg("r4", reg("r3") + 2)
		write32(0x5000, 0x1234)
		bp(0x6000)
		print("done", reg("r4"))
	`)
	if err != nil {
		t.Fatal(err)
	}

	requireGPR(t, rig, 4, 42)
	if rig.bus.Read32(0x5000) != 0x1234 {
		t.Fatalf("lua write32 did not reach guest memory")
	}
	if !rig.engine.PopBreakpoint(0x6000) {
		t.Fatalf("lua bp did not arm a breakpoint")
	}
	if len(*lines) == 0 || !strings.Contains((*lines)[len(*lines)-1], "done") {
		t.Fatalf("lua print output = %v", *lines)
	}
}

func TestMonitorLuaStepAndInterrupt(t *testing.T) {
	mon, rig, _ := newTestMonitor()
	rig.loadProgram(testProgBase,
		encodeDForm(14, 3, 0, 1),
		encodeDForm(14, 3, 3, 1),
		blr(),
	)

	if err := mon.RunScript(`step(2)`); err != nil {
		t.Fatal(err)
	}
	requireGPR(t, rig, 3, 2)

	if err := mon.RunScript(`interrupt(2, 2)`); err != nil {
		t.Fatal(err)
	}
	if rig.engine.Core(2).interrupt.Load()&ALARM_INTERRUPT == 0 {
		t.Fatalf("lua interrupt did not post to core 2")
	}
}
