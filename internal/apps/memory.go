package apps

import (
	"context"
	"sync"
)

// Memory is an in-process registry for tests.
type Memory struct {
	mu   sync.RWMutex
	apps map[string]App
}

// NewMemory builds a registry from the given apps.
func NewMemory(list ...App) *Memory {
	m := &Memory{apps: make(map[string]App, len(list))}
	for _, a := range list {
		if a.MinLevel == 0 {
			a.MinLevel = 1
		}
		m.apps[a.ID] = a
	}
	return m
}

func (m *Memory) Find(ctx context.Context, appID string) (App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.apps[appID]
	if !ok {
		return App{}, ErrNotFound
	}
	return app, nil
}

// Put inserts or replaces an app.
func (m *Memory) Put(a App) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.MinLevel == 0 {
		a.MinLevel = 1
	}
	m.apps[a.ID] = a
}
