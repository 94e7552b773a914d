// cpu_timer_test.go - Alarm deadlines and timer thread ordering

package main

import (
	"sync"
	"testing"
	"time"
)

// startTimerOnly spins up just the timer thread of an engine.
func startTimerOnly(engine *Engine) {
	go func() {
		defer close(engine.timerDone)
		engine.timerEntryPoint()
	}()
}

func stopTimer(engine *Engine) {
	close(engine.timerStop)
	<-engine.timerDone
}

func TestTimerFiresAlarmOnceAndResets(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(0)

	startTimerOnly(engine)
	defer stopTimer(engine)

	deadline := time.Now().Add(30 * time.Millisecond)
	core.SetNextAlarm(deadline)

	waitFor(t, time.Second, func() bool {
		return core.interrupt.Load()&ALARM_INTERRUPT != 0
	})
	firedAt := time.Now()

	if firedAt.Before(deadline) {
		t.Fatalf("ALARM fired %v before the deadline", deadline.Sub(firedAt))
	}

	engine.timerMu.Lock()
	nextAlarm := core.nextAlarm
	engine.timerMu.Unlock()
	if !nextAlarm.Equal(timePointMax) {
		t.Fatalf("next_alarm not reset to the sentinel after firing")
	}

	// No second ALARM arrives once the flag is drained.
	core.interrupt.Store(0)
	time.Sleep(60 * time.Millisecond)
	if core.interrupt.Load()&ALARM_INTERRUPT != 0 {
		t.Fatalf("ALARM delivered more than once for a single deadline")
	}
}

func TestTimerOrdering(t *testing.T) {
	engine := newBreakpointTestEngine()

	var mu sync.Mutex
	var order []int
	recordFired := func() {
		for i := 0; i < NUM_CORES; i++ {
			if engine.Core(i).interrupt.Load()&ALARM_INTERRUPT != 0 {
				engine.Core(i).ClearInterrupt(ALARM_INTERRUPT)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}
		}
	}

	startTimerOnly(engine)
	defer stopTimer(engine)

	t1 := time.Now().Add(20 * time.Millisecond)
	t2 := time.Now().Add(80 * time.Millisecond)
	engine.Core(2).SetNextAlarm(t2)
	engine.Core(0).SetNextAlarm(t1)

	waitFor(t, time.Second, func() bool {
		recordFired()
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != 0 || order[1] != 2 {
		t.Fatalf("ALARM order = %v, want core 0 before core 2", order)
	}
	if engine.Core(1).interrupt.Load()&ALARM_INTERRUPT != 0 {
		t.Fatalf("core 1 had no deadline and must not receive ALARM")
	}
}

func TestTimerPastDeadlineFiresImmediately(t *testing.T) {
	engine := newBreakpointTestEngine()
	core := engine.Core(1)

	startTimerOnly(engine)
	defer stopTimer(engine)

	core.SetNextAlarm(time.Now().Add(-time.Second))
	waitFor(t, time.Second, func() bool {
		return core.interrupt.Load()&ALARM_INTERRUPT != 0
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
