package scanner

import (
	"fmt"
	"sync"
	"time"
)

const DefaultHistorySize = 10

type Entry struct {
	Payload   string    `json:"payload"`
	ScannedAt time.Time `json:"scannedAt"`
}

// History keeps the most recent raw payloads, newest first. Duplicates are
// kept; nothing is persisted.
type History struct {
	mu      sync.Mutex
	limit   int
	entries []Entry
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{limit: limit}
}

func (h *History) Add(payload string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]Entry{{Payload: payload, ScannedAt: time.Now().UTC()}}, h.entries...)
	if len(h.entries) > h.limit {
		h.entries = h.entries[:h.limit]
	}
}

// Entries returns a copy, newest first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Use returns the payload at index i (0 is the newest) for reuse.
func (h *History) Use(i int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if i < 0 || i >= len(h.entries) {
		return "", fmt.Errorf("no history entry %d", i)
	}
	return h.entries[i].Payload, nil
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
