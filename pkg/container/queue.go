package container

import (
	"sort"
	"sync"
	"time"
)

// TriggerQueue holds triggers that have not started a pass yet, ordered by
// priority and then by arrival.
type TriggerQueue struct {
	mu        sync.Mutex
	items     []Trigger
	drained   []Trigger
	debounce  time.Duration
	lastPass  time.Time
	seq       uint64
	now       func() time.Time
	debounced uint64
}

// NewTriggerQueue creates a queue with the given debounce window.
func NewTriggerQueue(debounce time.Duration) *TriggerQueue {
	return &TriggerQueue{
		debounce: debounce,
		now:      time.Now,
	}
}

// Enqueue inserts the trigger unless it is suppressed by the debounce window.
//
// A trigger is rejected when the last pass started less than the debounce
// window ago and a trigger that is queued, or was drained by that pass,
// already has the same source and a priority at least as urgent. A more
// urgent trigger from the same source is still accepted.
func (q *TriggerQueue) Enqueue(t Trigger) bool {
	_, ok := q.enqueue(t)
	return ok
}

// enqueue is Enqueue that also returns the arrival sequence number the
// trigger was stored under.
func (q *TriggerQueue) enqueue(t Trigger) (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.withinDebounceLocked() && (supersedes(q.items, t) || supersedes(q.drained, t)) {
		q.debounced++
		return 0, false
	}

	q.seq++
	t.seq = q.seq

	idx := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Priority() > t.Priority()
	})
	q.items = append(q.items, Trigger{})
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = t
	return t.seq, true
}

// supersedes reports whether one of triggers makes t redundant.
func supersedes(triggers []Trigger, t Trigger) bool {
	for _, existing := range triggers {
		if existing.Source == t.Source && existing.Priority() <= t.Priority() {
			return true
		}
	}
	return false
}

func (q *TriggerQueue) withinDebounceLocked() bool {
	if q.debounce <= 0 || q.lastPass.IsZero() {
		return false
	}
	return q.now().Sub(q.lastPass) < q.debounce
}

// DrainHighestPriority removes the head of the queue and returns it together
// with the rest of the queue, which the caller's pass coalesces.
// The queue is empty afterwards. The drained triggers keep suppressing
// duplicates until the debounce window of the pass they start has passed.
func (q *TriggerQueue) DrainHighestPriority() (Trigger, []Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Trigger{}, nil, false
	}

	q.drained = append(q.drained[:0], q.items...)
	head := q.items[0]
	var rest []Trigger
	if len(q.items) > 1 {
		rest = make([]Trigger, len(q.items)-1)
		copy(rest, q.items[1:])
	}
	q.items = q.items[:0]
	return head, rest, true
}

// MarkPassStarted records the start of a pass; the debounce window is
// measured from this instant.
func (q *TriggerQueue) MarkPassStarted(at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastPass = at
}

// Len returns the number of queued triggers.
func (q *TriggerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the queued triggers in drain order.
func (q *TriggerQueue) Pending() []Trigger {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Trigger, len(q.items))
	copy(out, q.items)
	return out
}

// Debounced returns how many triggers were rejected so far.
func (q *TriggerQueue) Debounced() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.debounced
}

// Clear drops every queued trigger and returns them.
func (q *TriggerQueue) Clear() []Trigger {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.items
	q.items = nil
	q.drained = nil
	return dropped
}
