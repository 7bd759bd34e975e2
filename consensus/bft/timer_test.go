package bft

import (
	"testing"
	"time"
)

func TestTimerFiresEarliestDeadlineFirst(t *testing.T) {
	timer := NewTimer()
	defer timer.Stop()

	timer.Arm(50*time.Millisecond, TimeoutInfo{Height: 1, Round: 0, Step: StepPrecommit})
	timer.Arm(10*time.Millisecond, TimeoutInfo{Height: 1, Round: 0, Step: StepPropose})

	select {
	case info := <-timer.Out():
		if info.Step != StepPropose {
			t.Fatalf("first fired tag = %v, want the earlier-deadline Propose entry", info.Step)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first timer to fire")
	}

	select {
	case info := <-timer.Out():
		if info.Step != StepPrecommit {
			t.Fatalf("second fired tag = %v, want Precommit", info.Step)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second timer to fire")
	}
}

func TestTimerStopHaltsProducer(t *testing.T) {
	timer := NewTimer()
	timer.Arm(5*time.Millisecond, TimeoutInfo{Height: 1})
	<-timer.Out()

	timer.Stop()
	timer.Stop() // idempotent

	timer.Arm(5*time.Millisecond, TimeoutInfo{Height: 2})
	select {
	case _, ok := <-timer.Out():
		if ok {
			t.Fatal("a stopped timer should not deliver further entries")
		}
	case <-time.After(100 * time.Millisecond):
		// No delivery within the window is also an acceptable outcome for a
		// stopped producer; either way nothing should be flowing.
	}
}
