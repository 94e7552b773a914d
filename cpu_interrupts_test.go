// cpu_interrupts_test.go - Interrupt delivery and coalescing

package main

import (
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Coalescing
// ---------------------------------------------------------------------------

func TestInterruptCoalescing(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(0)
	core.SetInterruptMask(0x3)

	var mu sync.Mutex
	var delivered []uint32
	engine.SetInterruptHandler(func(c *Core, flags uint32) {
		mu.Lock()
		delivered = append(delivered, flags)
		mu.Unlock()
	})

	var posters sync.WaitGroup
	posters.Add(2)
	go func() { defer posters.Done(); engine.Interrupt(0, 0x1) }()
	go func() { defer posters.Done(); engine.Interrupt(0, 0x2) }()
	posters.Wait()

	core.CheckInterrupts()

	if len(delivered) != 1 {
		t.Fatalf("handler invoked %d times, want exactly once", len(delivered))
	}
	if delivered[0] != 0x3 {
		t.Fatalf("delivered flags = %X, want 0x3", delivered[0])
	}
}

func TestInterruptSameBitCoalesces(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(0)
	core.SetInterruptMask(ALARM_INTERRUPT)

	count := 0
	engine.SetInterruptHandler(func(c *Core, flags uint32) {
		count++
		if flags != ALARM_INTERRUPT {
			t.Errorf("flags = %X, want ALARM only", flags)
		}
	})

	for i := 0; i < 5; i++ {
		engine.Interrupt(0, ALARM_INTERRUPT)
	}
	core.CheckInterrupts()
	core.CheckInterrupts()

	if count != 1 {
		t.Fatalf("handler invoked %d times, want 1", count)
	}
}

// ---------------------------------------------------------------------------
// Masking
// ---------------------------------------------------------------------------

func TestInterruptMaskSuppressesDelivery(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(0)
	core.SetInterruptMask(ALARM_INTERRUPT)

	var got uint32
	engine.SetInterruptHandler(func(c *Core, flags uint32) { got |= flags })

	engine.Interrupt(0, DBGBREAK_INTERRUPT)
	core.CheckInterrupts()
	if got != 0 {
		t.Fatalf("masked interrupt was delivered: %X", got)
	}

	// The masked bit stays pending for a later check with a wider mask.
	core.SetInterruptMask(ALARM_INTERRUPT | DBGBREAK_INTERRUPT)
	core.CheckInterrupts()
	if got != DBGBREAK_INTERRUPT {
		t.Fatalf("pending bit lost: got %X", got)
	}
}

func TestInterruptNonMaskableAlwaysEffective(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(0)
	core.SetInterruptMask(ALARM_INTERRUPT)

	var got uint32
	engine.SetInterruptHandler(func(c *Core, flags uint32) { got |= flags })

	engine.Interrupt(0, SRESET_INTERRUPT)
	core.CheckInterrupts()
	if got&SRESET_INTERRUPT == 0 {
		t.Fatalf("SRESET must bypass the mask, got %X", got)
	}
}

func TestSetInterruptMaskReturnsOld(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(0)

	core.SetInterruptMask(0x5)
	if old := core.SetInterruptMask(0xA); old != 0x5 {
		t.Fatalf("SetInterruptMask returned %X, want 0x5", old)
	}
	if core.InterruptMask() != 0xA {
		t.Fatalf("mask = %X, want 0xA", core.InterruptMask())
	}
}

func TestClearInterrupt(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(0)
	core.SetInterruptMask(0xF)

	engine.Interrupt(0, 0x6)
	core.ClearInterrupt(0x2)

	var got uint32
	engine.SetInterruptHandler(func(c *Core, flags uint32) { got |= flags })
	core.CheckInterrupts()
	if got != 0x4 {
		t.Fatalf("delivered %X after clearing 0x2 from 0x6, want 0x4", got)
	}
}

// ---------------------------------------------------------------------------
// Breakpoint fan-out
// ---------------------------------------------------------------------------

func TestCheckInterruptsBreakpointFanOut(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(0)
	core.SetInterruptMask(DBGBREAK_INTERRUPT)

	var got uint32
	engine.SetInterruptHandler(func(c *Core, flags uint32) { got |= flags })

	core.State().NIA = 0x1500
	engine.AddBreakpoint(0x1500, SYSTEM_BPFLAG)
	core.CheckInterrupts()

	if got&DBGBREAK_INTERRUPT == 0 {
		t.Fatalf("armed breakpoint at nia must raise DBGBREAK locally")
	}
	for i := 1; i < NUM_CORES; i++ {
		if engine.Core(i).interrupt.Load()&DBGBREAK_INTERRUPT == 0 {
			t.Errorf("core %d did not receive the DBGBREAK post", i)
		}
	}
}

// ---------------------------------------------------------------------------
// Wait loop
// ---------------------------------------------------------------------------

func TestWaitForInterruptDeliversAndExitsOnSreset(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(1)
	core.SetInterruptMask(ALARM_INTERRUPT)

	var mu sync.Mutex
	var seen []uint32
	engine.SetInterruptHandler(func(c *Core, flags uint32) {
		mu.Lock()
		seen = append(seen, flags)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		core.WaitForInterrupt()
		close(done)
	}()

	engine.Interrupt(1, ALARM_INTERRUPT)
	engine.Interrupt(1, SRESET_INTERRUPT)
	<-done

	mu.Lock()
	defer mu.Unlock()
	var all uint32
	for _, flags := range seen {
		all |= flags
	}
	if all&ALARM_INTERRUPT == 0 || all&SRESET_INTERRUPT == 0 {
		t.Fatalf("deliveries %X missing ALARM or SRESET", all)
	}
}
