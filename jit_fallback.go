// jit_fallback.go - Interpreter callouts from translated code

package main

import (
	"fmt"
	"sort"
	"sync/atomic"
)

const trackFallbackCalls = true

type atomicCounter = atomic.Uint64

// registerJitFallbacks installs a callout emitter for every
// instruction the interpreter implements and the JIT has no
// specialized emitter for. The callout hands the pinned core pointer
// and the raw instruction word straight to the interpreter handler.
func (j *JitCache) registerJitFallbacks() {
	for id := InstructionID(0); id < InstructionCount; id++ {
		switch id {
		case InstrB, InstrBc, InstrBcctr, InstrBclr:
			continue
		}
		if j.emitters[id] != nil || !hasInstruction(id) {
			continue
		}
		j.emitters[id] = jitFallback
	}
}

func jitFallback(cache *JitCache, instr Instruction, cia uint32, block *JitBlock) (jitOp, bool) {
	data := decodeInstruction(instr)
	fn := getInstructionHandler(data.ID)
	if fn == nil {
		return nil, false
	}

	id := data.ID
	return func(core *Core, bus Bus32) jitResult {
		if trackFallbackCalls {
			cache.fallbackCalls[id].Add(1)
		}
		// Keep cia/nia coherent for handlers that compute
		// relative addresses or report diagnostics.
		core.state.CIA = cia
		core.state.NIA = cia + 4
		fn(core, instr)
		return jitResult{kind: jitFallThrough}
	}, true
}

// FallbackReport lists the instrumented callout counts, most frequent
// first.
func (j *JitCache) FallbackReport() string {
	type fallbackItem struct {
		id    InstructionID
		count uint64
	}
	items := make([]fallbackItem, 0, InstructionCount)
	for id := InstructionID(0); id < InstructionCount; id++ {
		items = append(items, fallbackItem{id, j.fallbackCalls[id].Load()})
	}
	sort.Slice(items, func(a, b int) bool { return items[a].count > items[b].count })

	out := "Fallback call numbers:\n"
	for _, item := range items {
		if item.count == 0 {
			continue
		}
		if data := findInstructionInfo(item.id); data != nil {
			out += fmt.Sprintf("  [%s] %d\n", data.Name, item.count)
		}
	}
	return out
}
