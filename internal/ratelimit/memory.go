package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = time.Minute

type window struct {
	count   int
	resetAt time.Time
}

// Memory keeps counters in process memory. It does not coordinate across
// server instances.
type Memory struct {
	mu        sync.Mutex
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

// NewMemory returns an empty in-process limiter.
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts one request against rule for key.
func (m *Memory) Allow(_ context.Context, key string, rule Rule) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= sweepEvery {
		m.sweepLocked(now)
	}

	b := bucket(rule, key)
	w, ok := m.windows[b]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rule.Window)}
		m.windows[b] = w
	}
	if w.count <= rule.Limit {
		w.count++
	}
	return result(w.count, rule, w.resetAt), nil
}

// Sweep drops every counter whose window has ended and returns how many
// were removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

func (m *Memory) sweepLocked(now time.Time) int {
	removed := 0
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
			removed++
		}
	}
	m.lastSweep = now
	return removed
}

// Len returns the number of live counters.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
