// Author: ooScott <ooscott@users.noreply.github.com>
// License: Apache-2.0

package eventloop

import (
	"container/heap"
	"time"
)

// TimerFlag mirrors the original Timer.h flags referenced by EventLoop.h.
type TimerFlag uint32

const (
	SingleShot TimerFlag = 1 << iota
	Repeat
)

// TimerCallback receives the firing timer's id.
type TimerCallback func(id uint32)

type timerRecord struct {
	when      time.Time
	id        uint32
	flags     TimerFlag
	interval  time.Duration
	cb        TimerCallback
	seq       uint64 // insertion order, breaks when-ties (spec.md §8)
	index     int    // heap.Interface bookkeeping
	cancelled bool   // set by unregister when cancelled while mid-fire (see drainDue)
}

// timerHeap orders by (when, seq) ascending: a timer registered for the same
// instant as another fires in registration order (spec.md §8: "a timer with
// when = T fires ... before any timer with when = T' > T registered at the
// same instant" — read together with the invariant, ties at equal `when`
// resolve by insertion, matching the original's std::multiset stable order).
type timerHeap []*timerRecord

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	r := x.(*timerRecord)
	r.index = len(*h)
	*h = append(*h, r)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*h = old[:n-1]
	return r
}

// timerSet is the Go analogue of EventLoop's timersByTime/timersById pair:
// a time-ordered heap plus an id-indexed map for O(1) cancel.
type timerSet struct {
	byTime  timerHeap
	byID    map[uint32]*timerRecord
	nextID  uint32
	nextSeq uint64
	// firing is the record currently inside its own callback, if any (set
	// only for the duration of drainDue's fire call). unregister consults
	// it so a timer can still cancel itself after drainDue has already
	// popped it off both indexes.
	firing *timerRecord
}

func newTimerSet() *timerSet {
	return &timerSet{byID: make(map[uint32]*timerRecord)}
}

// allocID implements spec.md §9(c): skip 0, wrap on overflow, and scan
// forward past any id still live in byID. Unreachable in practice (would
// require 2^32 simultaneously-live timers) but the scan makes the behavior
// well-defined rather than silently colliding.
func (t *timerSet) allocID() uint32 {
	for {
		t.nextID++
		if t.nextID == 0 {
			t.nextID = 1
		}
		if _, exists := t.byID[t.nextID]; !exists {
			return t.nextID
		}
	}
}

func (t *timerSet) register(now time.Time, timeout time.Duration, flags TimerFlag, cb TimerCallback) uint32 {
	id := t.allocID()
	t.nextSeq++
	r := &timerRecord{
		when:     now.Add(timeout),
		id:       id,
		flags:    flags,
		interval: timeout,
		cb:       cb,
		seq:      t.nextSeq,
	}
	t.byID[id] = r
	heap.Push(&t.byTime, r)
	return id
}

// unregister removes id from both indexes. Safe to call from within the
// timer's own callback (spec.md §79 "unregisterTimer(id): ... safe to call
// from within the timer's own callback"): drainDue has already popped the
// record off both indexes before invoking the callback, so id won't be
// found in byID at that point — unregister instead checks t.firing, the
// record drainDue is currently mid-fire for, and marks it cancelled so
// drainDue skips the Repeat reinsert once the callback returns.
func (t *timerSet) unregister(id uint32) bool {
	if r, ok := t.byID[id]; ok {
		delete(t.byID, id)
		if r.index >= 0 && r.index < len(t.byTime) && t.byTime[r.index] == r {
			heap.Remove(&t.byTime, r.index)
		}
		return true
	}
	if t.firing != nil && t.firing.id == id {
		t.firing.cancelled = true
		return true
	}
	return false
}

func (t *timerSet) nextDeadline() (time.Time, bool) {
	if len(t.byTime) == 0 {
		return time.Time{}, false
	}
	return t.byTime[0].when, true
}

// drainDue pops and fires every timer whose `when` has passed, rescheduling
// Repeat timers with when += interval unless the callback cancelled itself
// (via UnregisterTimer(selfID)) — see unregister's t.firing handling.
// Rescheduled timers go back into byID at once, so a later callback in the
// same drain can still cancel them, but into byTime only after the drain,
// so each timer fires at most once per call (a 0-interval Repeat timer
// fires once per loop iteration instead of spinning here).
func (t *timerSet) drainDue(now time.Time, fire func(cb TimerCallback, id uint32)) int {
	fired := 0
	var again []*timerRecord
	for len(t.byTime) > 0 && !t.byTime[0].when.After(now) {
		r := heap.Pop(&t.byTime).(*timerRecord)
		delete(t.byID, r.id)

		t.firing = r
		fire(r.cb, r.id)
		t.firing = nil
		fired++

		if r.flags&Repeat != 0 && !r.cancelled {
			r.when = r.when.Add(r.interval)
			t.byID[r.id] = r
			again = append(again, r)
		}
	}
	for _, r := range again {
		if t.byID[r.id] == r {
			heap.Push(&t.byTime, r)
		}
	}
	return fired
}

// RegisterTimer schedules cb to fire after timeout, returning an id usable
// with UnregisterTimer. Must be called from the loop's own goroutine.
func (l *Loop) RegisterTimer(timeout time.Duration, flags TimerFlag, cb TimerCallback) (uint32, error) {
	if err := l.requireLoopGoroutine(); err != nil {
		return 0, err
	}
	return l.timers.register(time.Now(), timeout, flags, cb), nil
}

// UnregisterTimer cancels a pending timer by id. Safe to call from within
// the timer's own callback. A no-op (returns ErrUnknownTimer) if the id is
// not live.
func (l *Loop) UnregisterTimer(id uint32) error {
	if err := l.requireLoopGoroutine(); err != nil {
		return err
	}
	if !l.timers.unregister(id) {
		return ErrUnknownTimer
	}
	return nil
}
