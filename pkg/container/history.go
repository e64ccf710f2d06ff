package container

import (
	"sync"
	"time"
)

// DefaultHistorySize is the number of consumed triggers kept for diagnostics.
const DefaultHistorySize = 50

// HistoryEntry records a trigger after it left the queue.
type HistoryEntry struct {
	Trigger    Trigger
	ConsumedAt time.Time

	// Coalesced is true when the trigger was dropped in favour of a
	// higher-priority trigger drained in the same cycle.
	Coalesced bool
}

// triggerHistory is a fixed-size ring of consumed triggers.
type triggerHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
	next    int
	full    bool
}

func newTriggerHistory(size int) *triggerHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &triggerHistory{entries: make([]HistoryEntry, size)}
}

func (h *triggerHistory) add(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = entry
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

// snapshot returns the entries oldest first.
func (h *triggerHistory) snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		out := make([]HistoryEntry, h.next)
		copy(out, h.entries[:h.next])
		return out
	}

	out := make([]HistoryEntry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	out = append(out, h.entries[:h.next]...)
	return out
}
