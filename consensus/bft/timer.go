package bft

import (
	"container/heap"
	"sync"
	"time"
)

// TimeoutInfo tags an armed timer with the (height, round, step) it was
// scheduled for. The consumer compares this against the engine's current
// state and drops the tag if it no longer matches — the "stale-tag
// filtering" design used instead of heap removal on cancellation.
type TimeoutInfo struct {
	Height uint64
	Round  uint64
	Step   Step
}

type timerEntry struct {
	deadline time.Time
	info     TimeoutInfo
}

// timerHeap is a container/heap min-heap ordered by deadline. No ecosystem
// priority-queue package appears anywhere in the retrieval pack for this
// shape of problem, so this uses the standard library's heap primitive —
// see DESIGN.md.
type timerHeap []timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Timer is the monotonic priority queue described in spec §4.4: a single
// producer goroutine computes the next due deadline, sleeps until it, and
// delivers the tag on Out(). Entries are never removed on cancellation;
// the consumer is expected to check TimeoutInfo against its current state.
type Timer struct {
	mu      sync.Mutex
	entries timerHeap
	wake    chan struct{}
	out     chan TimeoutInfo
	done    chan struct{}
	once    sync.Once
}

// NewTimer constructs a Timer and starts its producer goroutine.
func NewTimer() *Timer {
	t := &Timer{
		wake: make(chan struct{}, 1),
		out:  make(chan TimeoutInfo, 64),
		done: make(chan struct{}),
	}
	heap.Init(&t.entries)
	go t.run()
	return t
}

// Out is the channel TimeoutInfo tags are delivered on. The engine selects
// on this alongside its other inbound sources.
func (t *Timer) Out() <-chan TimeoutInfo { return t.out }

// Arm schedules info to fire after d elapses from now. Monotonic (time.Now
// plus a duration is immune to wall-clock adjustments for the purpose of
// the subsequent sleep, per Go's runtime timer semantics).
func (t *Timer) Arm(d time.Duration, info TimeoutInfo) {
	t.mu.Lock()
	heap.Push(&t.entries, timerEntry{deadline: time.Now().Add(d), info: info})
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Stop shuts down the producer goroutine. Idempotent.
func (t *Timer) Stop() {
	t.once.Do(func() { close(t.done) })
}

func (t *Timer) run() {
	sleeper := time.NewTimer(time.Hour)
	sleeper.Stop()
	defer sleeper.Stop()

	for {
		t.mu.Lock()
		var nextDur time.Duration
		hasNext := t.entries.Len() > 0
		if hasNext {
			nextDur = time.Until(t.entries[0].deadline)
		}
		t.mu.Unlock()

		if !hasNext {
			select {
			case <-t.done:
				return
			case <-t.wake:
				continue
			}
		}

		if nextDur < 0 {
			nextDur = 0
		}
		if !sleeper.Stop() {
			select {
			case <-sleeper.C:
			default:
			}
		}
		sleeper.Reset(nextDur)

		select {
		case <-t.done:
			return
		case <-t.wake:
			continue
		case <-sleeper.C:
			t.mu.Lock()
			if t.entries.Len() == 0 {
				t.mu.Unlock()
				continue
			}
			entry := heap.Pop(&t.entries).(timerEntry)
			t.mu.Unlock()
			select {
			case t.out <- entry.info:
			case <-t.done:
				return
			}
		}
	}
}
