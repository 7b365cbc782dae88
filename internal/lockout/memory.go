package lockout

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	expires time.Time
}

// Memory is a process-local Store for single instance deployments and tests.
type Memory struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: cfg.withDefaults(), now: time.Now, entries: map[string]entry{}}
}

// WithClock replaces the time source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) current(key string) entry {
	e, ok := m.entries[key]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return entry{}
	}
	return e
}

func (m *Memory) RecordFailure(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.current(key)
	if e.count == 0 {
		e.expires = m.now().Add(m.cfg.Duration)
	}
	e.count++
	m.entries[key] = e
	return e.count, nil
}

func (m *Memory) IsLocked(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(key).count >= m.cfg.Threshold, nil
}

func (m *Memory) Clear(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}
