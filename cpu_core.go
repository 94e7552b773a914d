// cpu_core.go - Engine lifecycle: three guest cores plus the timer thread

package main

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// JitMode selects how the cores execute guest code.
type JitMode int

const (
	JitDisabled JitMode = iota
	JitEnabled
	JitDebug
)

// Interrupt flag bits. SRESET is non-maskable.
const (
	SRESET_INTERRUPT   = 1 << 0
	ALARM_INTERRUPT    = 1 << 1
	DBGBREAK_INTERRUPT = 1 << 2

	NONMASKABLE_INTERRUPTS = SRESET_INTERRUPT
)

const NUM_CORES = 3

// timePointMax is the "no alarm" deadline sentinel.
var timePointMax = time.Unix(1<<62-1, 0)

// EntrypointHandler runs on each core worker after thread setup.
type EntrypointHandler func(core *Core)

// InterruptHandler receives the bitset of fired interrupt flags.
type InterruptHandler func(core *Core, flags uint32)

// TraceHandler observes each retired instruction when tracing is on.
type TraceHandler func(core *Core, instr Instruction, data *InstructionData)

// Engine owns the guest cores, the timer thread, the breakpoint list
// head, the kernel-call table, the JIT cache and the dispatch tables.
// Everything process-wide in the original design hangs off this value.
type Engine struct {
	bus   Bus32
	cores [NUM_CORES]*Core

	jitMode JitMode
	jit     *JitCache

	interruptMu   sync.Mutex
	interruptCond *sync.Cond

	timerMu   sync.Mutex
	timerKick chan struct{}
	timerStop chan struct{}
	timerDone chan struct{}

	entryPoint       EntrypointHandler
	interruptHandler InterruptHandler
	trace            TraceHandler

	breakpoints breakpointList
	kernelCalls kernelCallTable

	group errgroup.Group
}

// NewEngine builds the instruction table and the interpreter and JIT
// dispatch tables, returning an engine ready to start.
func NewEngine(bus Bus32) *Engine {
	engine := &Engine{
		bus:       bus,
		timerKick: make(chan struct{}, 1),
		timerStop: make(chan struct{}),
		timerDone: make(chan struct{}),
	}
	engine.interruptCond = sync.NewCond(&engine.interruptMu)

	initialiseInstructionSet()
	initialiseInterpreter()
	engine.jit = newJitCache(engine)

	for i := range engine.cores {
		engine.cores[i] = &Core{
			id:        i,
			engine:    engine,
			nextAlarm: timePointMax,
			done:      make(chan struct{}),
		}
	}
	return engine
}

func (e *Engine) Bus() Bus32 { return e.bus }

func (e *Engine) Core(idx int) *Core { return e.cores[idx] }

// SetJitMode selects enabled, disabled or debug execution.
func (e *Engine) SetJitMode(mode JitMode) { e.jitMode = mode }

func (e *Engine) SetEntrypointHandler(handler EntrypointHandler) { e.entryPoint = handler }

func (e *Engine) SetInterruptHandler(handler InterruptHandler) { e.interruptHandler = handler }

func (e *Engine) SetTraceHandler(handler TraceHandler) { e.trace = handler }

// Start spawns one worker per core plus the timer thread.
func (e *Engine) Start() error {
	if e.entryPoint == nil {
		return fmt.Errorf("no entry-point handler installed")
	}
	for _, core := range e.cores {
		core := core
		e.group.Go(func() error {
			// Worker names mirror the original thread names.
			defer close(core.done)
			setWorkerName(fmt.Sprintf("Core #%d", core.id))
			e.entryPoint(core)
			return nil
		})
	}
	go func() {
		setWorkerName("Timer Thread")
		defer close(e.timerDone)
		e.timerEntryPoint()
	}()
	return nil
}

// Halt posts SRESET to every core and joins all threads.
func (e *Engine) Halt() {
	for i := range e.cores {
		e.Interrupt(i, SRESET_INTERRUPT)
	}
	_ = e.group.Wait()
	close(e.timerStop)
	<-e.timerDone
}

// Interrupt ORs flags into the target core's pending set and wakes any
// waiter. Concurrent posts of the same bit coalesce.
func (e *Engine) Interrupt(coreIdx int, flags uint32) {
	e.interruptMu.Lock()
	e.cores[coreIdx].interrupt.Or(flags)
	e.interruptMu.Unlock()
	e.interruptCond.Broadcast()
}

// Resume executes guest code on the core until nia reaches the callback
// sentinel, in whichever mode the engine is configured for.
func (c *Core) Resume() {
	if c.engine.jitMode == JitEnabled {
		c.engine.jit.resume(c)
	} else {
		interpreterResume(c)
	}
}

// StepOne executes exactly one guest instruction. In JIT debug mode
// the single-instruction stub table runs the step through translated
// code; otherwise the interpreter dispatches directly.
func (c *Core) StepOne() {
	if c.engine.jitMode == JitDebug {
		if block := c.engine.jit.getSingle(c.state.NIA); block != nil {
			entry := c.state.NIA
			c.state.CIA = entry
			nia := c.engine.jit.run(c, block, entry)
			c.state.NIA = nia
			return
		}
	}
	stepOne(c)
}

// ExecuteSub performs a synchronous guest call: save the link register,
// install the sentinel so the guest "returns" to the host, resume, and
// restore.
func (c *Core) ExecuteSub() {
	lr := c.state.LR
	c.state.LR = CALLBACK_ADDR
	c.Resume()
	c.state.LR = lr
}

// setWorkerName tags the goroutine for debuggers and profilers.
func setWorkerName(name string) {
	// Goroutines carry no OS-visible name; pprof labels would need a
	// context plumbed through every handler. The hook stays so a
	// platform layer can map workers onto named OS threads.
	_ = name
}
