// cpu_breakpoints.go - Process-wide lock-free breakpoint registry

package main

import (
	"fmt"
	"sync/atomic"
)

// SYSTEM_BPFLAG marks a one-shot breakpoint consumed by pop.
const SYSTEM_BPFLAG = uint32(1) << 31

// breakpointList holds a pointer to an immutable flat array of
// (address, flags) pairs terminated by BREAKPOINT_LIST_TERM, or nil
// when no breakpoints are armed. Every mutation builds a new array and
// installs it with compare-and-swap; readers snapshot the pointer and
// walk the immutable array. The garbage collector provides the safe
// memory reclamation the snapshot-and-walk pattern requires.
type breakpointList struct {
	head atomic.Pointer[[]uint32]
}

// mutate retries fn against the current list until the CAS lands.
// fn returns the replacement array (nil for "empty list") and whether
// anything changed; returning the input slice means "no change".
func (b *breakpointList) mutate(fn func(current []uint32) ([]uint32, bool)) bool {
	for {
		currentPtr := b.head.Load()
		var current []uint32
		if currentPtr != nil {
			current = *currentPtr
		}

		next, changed := fn(current)
		if !changed {
			return false
		}

		var nextPtr *[]uint32
		if next != nil {
			nextPtr = &next
		}
		if b.head.CompareAndSwap(currentPtr, nextPtr) {
			return true
		}
	}
}

// add arms flags at address, merging with any existing entry. It
// reports whether the list changed. The terminator address and an
// empty flag set are rejected.
func (b *breakpointList) add(address, flags uint32) (bool, error) {
	if address == BREAKPOINT_LIST_TERM {
		return false, fmt.Errorf("%08X is not a valid breakpoint address", address)
	}
	if flags == 0 {
		return false, fmt.Errorf("a breakpoint needs at least one flag")
	}

	changed := b.mutate(func(current []uint32) ([]uint32, bool) {
		next := make([]uint32, 0, len(current)+3)
		newFlags := flags
		for i := 0; i < len(current) && current[i] != BREAKPOINT_LIST_TERM; i += 2 {
			if current[i] == address {
				if current[i+1]&flags == flags {
					// Already armed with every requested flag.
					return current, false
				}
				newFlags |= current[i+1]
				continue
			}
			next = append(next, current[i], current[i+1])
		}
		next = append(next, address, newFlags, BREAKPOINT_LIST_TERM)
		return next, true
	})
	return changed, nil
}

// remove subtracts flags from the entry at address, deleting the entry
// when no flags remain. It reports whether every named flag was armed.
func (b *breakpointList) remove(address, flags uint32) bool {
	matched := false
	b.mutate(func(current []uint32) ([]uint32, bool) {
		if current == nil {
			return nil, false
		}
		matched = false
		next := make([]uint32, 0, len(current))
		for i := 0; i < len(current) && current[i] != BREAKPOINT_LIST_TERM; i += 2 {
			bpFlags := current[i+1]
			if current[i] == address {
				if bpFlags&flags == 0 {
					return current, false
				}
				if bpFlags&flags == flags {
					matched = true
				}
				bpFlags &^= flags
			}
			if bpFlags != 0 {
				next = append(next, current[i], bpFlags)
			}
		}
		if len(next) == 0 {
			return nil, true
		}
		next = append(next, BREAKPOINT_LIST_TERM)
		return next, true
	})
	return matched
}

// clear strips the masked flags from every entry, dropping entries left
// without flags. It reports whether anything changed.
func (b *breakpointList) clear(flagsMask uint32) bool {
	return b.mutate(func(current []uint32) ([]uint32, bool) {
		if current == nil {
			return nil, false
		}
		changed := false
		next := make([]uint32, 0, len(current))
		for i := 0; i < len(current) && current[i] != BREAKPOINT_LIST_TERM; i += 2 {
			bpFlags := current[i+1]
			if bpFlags&flagsMask != 0 {
				bpFlags &^= flagsMask
				changed = true
			}
			if bpFlags != 0 {
				next = append(next, current[i], bpFlags)
			}
		}
		if !changed {
			return current, false
		}
		if len(next) == 0 {
			return nil, true
		}
		next = append(next, BREAKPOINT_LIST_TERM)
		return next, true
	})
}

// walk visits each armed (address, flags) pair of the current
// snapshot.
func (b *breakpointList) walk(fn func(address, flags uint32)) {
	currentPtr := b.head.Load()
	if currentPtr == nil {
		return
	}
	current := *currentPtr
	for i := 0; i < len(current) && current[i] != BREAKPOINT_LIST_TERM; i += 2 {
		fn(current[i], current[i+1])
	}
}

// any reports whether any breakpoint is armed.
func (b *breakpointList) any() bool {
	return b.head.Load() != nil
}

// pop probes address and reports whether any flag matched. A matching
// SYSTEM_BPFLAG is one-shot: the flag is removed atomically before the
// hit is reported.
func (b *breakpointList) pop(address uint32) bool {
	currentPtr := b.head.Load()
	if currentPtr == nil {
		return false
	}
	current := *currentPtr

	var foundFlags uint32
	for i := 0; i < len(current) && current[i] != BREAKPOINT_LIST_TERM; i += 2 {
		if current[i] == address {
			foundFlags = current[i+1]
			break
		}
	}

	if foundFlags == 0 {
		return false
	}
	if foundFlags&SYSTEM_BPFLAG == 0 {
		return true
	}

	// One-shot: consume the system flag. A concurrent consumer may win
	// the race, in which case remove reports false and the hit belongs
	// to the winner.
	return b.remove(address, SYSTEM_BPFLAG)
}

// ---------------------------------------------------------------------------
// Engine surface
// ---------------------------------------------------------------------------

func (e *Engine) AddBreakpoint(address, flags uint32) (bool, error) {
	return e.breakpoints.add(address, flags)
}

func (e *Engine) RemoveBreakpoint(address, flags uint32) bool {
	return e.breakpoints.remove(address, flags)
}

func (e *Engine) ClearBreakpoints(flagsMask uint32) bool {
	return e.breakpoints.clear(flagsMask)
}

func (e *Engine) HasBreakpoints() bool {
	return e.breakpoints.any()
}

func (e *Engine) PopBreakpoint(address uint32) bool {
	return e.breakpoints.pop(address)
}
