// cpu_interrupts.go - Per-core interrupt delivery

package main

import "fmt"

// ClearInterrupt removes flags from the calling core's pending set.
func (c *Core) ClearInterrupt(flags uint32) {
	c.interrupt.And(^flags)
}

// InterruptMask returns the core's current mask.
func (c *Core) InterruptMask() uint32 {
	return c.interruptMask
}

// SetInterruptMask installs a new mask and returns the previous one.
// Non-maskable bits are always effective regardless of the mask.
func (c *Core) SetInterruptMask(mask uint32) uint32 {
	old := c.interruptMask
	c.interruptMask = mask
	return old
}

// CheckInterrupts drains the deliverable pending bits on the calling
// core and invokes the host interrupt handler if any fired. An armed
// breakpoint at the next instruction address raises DBGBREAK here and
// posts it to every other core.
func (c *Core) CheckInterrupts() {
	engine := c.engine

	mask := c.interruptMask | NONMASKABLE_INTERRUPTS
	flags := c.interrupt.And(^mask) & mask

	if engine.breakpoints.pop(c.state.NIA) {
		for i := range engine.cores {
			if i != c.id {
				engine.Interrupt(i, DBGBREAK_INTERRUPT)
			}
		}
		flags |= DBGBREAK_INTERRUPT
	}

	if flags&mask != 0 && engine.interruptHandler != nil {
		engine.interruptHandler(c, flags)
	}
}

// WaitForInterrupt blocks the calling core until an unmasked interrupt
// is pending, dispatching the handler outside the lock for each
// delivery. The loop exits once a delivered set included SRESET, which
// lets Halt join the worker after the handler has observed the reset.
func (c *Core) WaitForInterrupt() {
	engine := c.engine
	if c.interruptMask&^NONMASKABLE_INTERRUPTS == 0 {
		panic(fmt.Sprintf("core %d entered wait-for-interrupt with all maskable interrupts disabled", c.id))
	}

	engine.interruptMu.Lock()
	defer engine.interruptMu.Unlock()
	for {
		mask := c.interruptMask | NONMASKABLE_INTERRUPTS
		flags := c.interrupt.And(^mask) & mask
		if flags != 0 {
			engine.interruptMu.Unlock()
			if engine.interruptHandler != nil {
				engine.interruptHandler(c, flags)
			}
			engine.interruptMu.Lock()
			if flags&SRESET_INTERRUPT != 0 {
				return
			}
		} else {
			engine.interruptCond.Wait()
		}
	}
}
