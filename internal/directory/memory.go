package directory

import (
	"context"
	"sync"
)

// Memory is an in-process directory for tests and local development.
type Memory struct {
	mu      sync.RWMutex
	records map[string]StaffRecord
}

// NewMemory builds a directory from the given records.
func NewMemory(records ...StaffRecord) *Memory {
	m := &Memory{records: make(map[string]StaffRecord, len(records))}
	for _, rec := range records {
		m.records[Normalize(rec.Subject)] = rec
	}
	return m
}

func (m *Memory) Lookup(ctx context.Context, subject string) (StaffRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[Normalize(subject)]
	if !ok {
		return StaffRecord{}, ErrNotFound
	}
	return rec, nil
}

// Put inserts or replaces a record.
func (m *Memory) Put(rec StaffRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[Normalize(rec.Subject)] = rec
}
