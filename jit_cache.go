// jit_cache.go - Guest basic-block translation cache

package main

import (
	"fmt"
	"sync"
)

const JIT_MAX_INST = 2048

// jitResult tells the block runner what to do after an op: fall
// through, jump to a block-local label, or leave the block with a new
// next-instruction address.
type jitResult struct {
	jump int    // label index, valid when kind == jitJump
	nia  uint32 // exit nia, valid when kind == jitExit
	kind jitResultKind
}

type jitResultKind uint8

const (
	jitFallThrough jitResultKind = iota
	jitJump
	jitExit
)

// jitOp is one translated guest instruction. Blocks pin the core and
// the guest memory base at entry; ops receive both through the runner,
// which keeps callouts consistent across blocks.
type jitOp func(core *Core, bus Bus32) jitResult

// JitBlock is a translated block identified by its start address.
type JitBlock struct {
	start uint32
	end   uint32

	ops    []jitOp
	labels map[uint32]int // guest address -> op index

	// Out-of-block jump targets discovered during identification.
	targets map[uint32]bool
}

// jitEmitter translates one guest instruction into an op, or reports
// that generation is not possible.
type jitEmitter func(cache *JitCache, instr Instruction, cia uint32, block *JitBlock) (jitOp, bool)

// JitCache owns all translated blocks. A nil entry records a failed
// translation so later resumes do not retry. Translation is
// single-threaded: a mutex covers lookup+translate+install, and the
// nil placeholder is installed before emission begins.
type JitCache struct {
	engine *Engine

	mu           sync.Mutex
	blocks       map[uint32]*JitBlock
	singleBlocks map[uint32]*JitBlock

	emitters [InstructionCount]jitEmitter

	fallbackCalls [InstructionCount]atomicCounter
}

func newJitCache(engine *Engine) *JitCache {
	cache := &JitCache{
		engine:       engine,
		blocks:       make(map[uint32]*JitBlock),
		singleBlocks: make(map[uint32]*JitBlock),
	}
	cache.registerJitBranchInstructions()
	cache.registerJitSystemInstructions()
	cache.registerJitFallbacks()
	return cache
}

// clearCache drops every translated block. The map replacement and the
// release of the compiled ops happen atomically under the lock.
func (j *JitCache) clearCache() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.blocks = make(map[uint32]*JitBlock)
	j.singleBlocks = make(map[uint32]*JitBlock)
}

func (j *JitCache) ClearCache() { j.clearCache() }

// hasJitInstruction reports whether the JIT can translate an id. The
// four branch encodings are handled inline by the generator.
func (j *JitCache) hasJitInstruction(id InstructionID) bool {
	switch id {
	case InstrB, InstrBc, InstrBcctr, InstrBclr:
		return true
	default:
		return j.emitters[id] != nil
	}
}

// identBlock scans forward from the block start, collecting jump
// targets and finding the block end. An unconditional bclr return
// terminates the block; an unknown or untranslatable instruction or
// exceeding JIT_MAX_INST aborts identification.
func (j *JitCache) identBlock(block *JitBlock) bool {
	bus := j.engine.bus
	fnStart := block.start
	fnMax := fnStart
	fnEnd := fnStart

	lclCia := fnStart
	for {
		instr := Instruction(bus.Read32(lclCia))
		data := decodeInstruction(instr)
		if data == nil {
			return false
		}
		if !j.hasJitInstruction(data.ID) {
			return false
		}

		switch data.ID {
		case InstrB:
			if instr.LK() {
				block.targets[lclCia+4] = true
			}
			nia := uint32(instr.LI())
			if !instr.AA() {
				nia += lclCia
			}
			if !instr.LK() {
				block.targets[nia] = true
				if nia > fnMax {
					fnMax = nia
				}
			}
		case InstrBc:
			if instr.LK() {
				block.targets[lclCia+4] = true
			}
			nia := uint32(instr.BD())
			if !instr.AA() {
				nia += lclCia
			}
			if !instr.LK() {
				block.targets[nia] = true
				if nia > fnMax {
					fnMax = nia
				}
			}
		case InstrBcctr:
			// Target is unknown (CTR).
			if instr.LK() {
				block.targets[lclCia+4] = true
			}
		case InstrBclr:
			// Target is unknown (LR).
			if instr.LK() {
				block.targets[lclCia+4] = true
			}
			if boBit(instr.BO(), boNoCheckCtr) && boBit(instr.BO(), boNoCheckCond) {
				if lclCia > fnMax {
					fnMax = lclCia
					fnEnd = fnMax + 4
				}
			}
		}

		if fnEnd != fnStart {
			break
		}

		lclCia += 4
		if (lclCia-fnStart)>>2 > JIT_MAX_INST {
			return false
		}
	}

	block.end = fnEnd
	return true
}

// gen emits ops for every instruction from block start to end,
// resolving in-block branch targets to local labels.
func (j *JitCache) gen(block *JitBlock) bool {
	bus := j.engine.bus
	block.labels = make(map[uint32]int)
	for target := range block.targets {
		if target >= block.start && target < block.end {
			block.labels[target] = -1
		}
	}

	for lclCia := block.start; lclCia < block.end; lclCia += 4 {
		if _, ok := block.labels[lclCia]; ok {
			block.labels[lclCia] = len(block.ops)
		}

		instr := Instruction(bus.Read32(lclCia))
		data := decodeInstruction(instr)
		if data == nil {
			return false
		}

		var op jitOp
		ok := false
		switch data.ID {
		case InstrB:
			op, ok = j.emitB(instr, lclCia, block)
		case InstrBc:
			op, ok = j.emitBc(instr, lclCia, block)
		case InstrBcctr:
			op, ok = j.emitBcctr(instr, lclCia, block)
		case InstrBclr:
			op, ok = j.emitBclr(instr, lclCia, block)
		default:
			if emitter := j.emitters[data.ID]; emitter != nil {
				op, ok = emitter(j, instr, lclCia, block)
			}
		}
		if !ok {
			return false
		}
		block.ops = append(block.ops, op)
	}

	for target, idx := range block.labels {
		if idx < 0 {
			return fail("jump target %08X was never bound", target)
		}
	}
	return true
}

func fail(format string, args ...any) bool {
	engineLog(format, args...)
	return false
}

// engineLog is the engine's logging channel.
func engineLog(format string, args ...any) {
	fmt.Printf("[engine] "+format+"\n", args...)
}

// run executes a translated block starting at the op for entry,
// returning the next guest nia once the block is left.
func (j *JitCache) run(core *Core, block *JitBlock, entry uint32) uint32 {
	bus := j.engine.bus
	idx := 0
	if entry != block.start {
		bound, ok := block.labels[entry]
		if !ok {
			return entry
		}
		idx = bound
	}

	for idx < len(block.ops) {
		result := block.ops[idx](core, bus)
		switch result.kind {
		case jitFallThrough:
			idx++
		case jitJump:
			idx = result.jump
		case jitExit:
			return result.nia
		}
	}
	return block.end
}

// get returns the translated block containing addr, translating on
// first use. A failed identification or emission installs nil so the
// attempt is never repeated.
func (j *JitCache) get(addr uint32) *JitBlock {
	j.mu.Lock()
	defer j.mu.Unlock()

	if block, ok := j.blocks[addr]; ok {
		return block
	}

	// Record the attempt before emission so a failure is permanent.
	j.blocks[addr] = nil

	block := &JitBlock{start: addr, end: addr, targets: make(map[uint32]bool)}
	if !j.identBlock(block) {
		return nil
	}
	if !j.gen(block) {
		return nil
	}

	j.blocks[block.start] = block
	for target := range block.targets {
		if _, ok := block.labels[target]; ok {
			j.blocks[target] = block
		}
	}
	return block
}

// prepare translates the block at addr and reports success.
func (j *JitCache) prepare(addr uint32) bool {
	return j.get(addr) != nil
}

func (j *JitCache) Prepare(addr uint32) bool { return j.prepare(addr) }

// getSingle returns a one-instruction stub block used for debugger
// stepping.
func (j *JitCache) getSingle(addr uint32) *JitBlock {
	j.mu.Lock()
	defer j.mu.Unlock()

	if block, ok := j.singleBlocks[addr]; ok {
		return block
	}
	j.singleBlocks[addr] = nil

	block := &JitBlock{start: addr, end: addr + 4, targets: make(map[uint32]bool)}
	if !j.gen(block) {
		return nil
	}
	j.singleBlocks[addr] = block
	return block
}

// execute runs translated code from state.nia until the callback
// sentinel. Blocks that failed translation fall back to the
// interpreter one instruction at a time.
func (j *JitCache) execute(core *Core) {
	state := &core.state
	for state.NIA != CALLBACK_ADDR {
		block := j.get(state.NIA)
		if block == nil {
			stepOne(core)
			continue
		}
		newNia := j.run(core, block, state.NIA)
		state.CIA = 0
		state.NIA = newNia
	}
}

// resume refreshes the rounding mode and executes until the sentinel.
func (j *JitCache) resume(core *Core) {
	updateRoundingMode(&core.state)
	j.execute(core)
}

// executeSub performs a synchronous subroutine call through the JIT.
func (j *JitCache) executeSub(core *Core) {
	lr := core.state.LR
	core.state.LR = CALLBACK_ADDR
	j.execute(core)
	core.state.LR = lr
}
