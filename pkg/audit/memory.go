package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryLogger keeps entries in process
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64
}

// NewMemoryLogger creates an empty in-memory audit sink
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (m *MemoryLogger) Log(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, copyEntry(*entry))
	return nil
}

func (m *MemoryLogger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = copyEntry(e)
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many entries have been appended
func (m *MemoryLogger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func copyEntry(e Entry) Entry {
	if e.Metadata != nil {
		md := make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}
