// Package ratelimit counts events per key in fixed time windows.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether one more event for key fits in the current window.
// Every call counts as an event.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// windowIndex numbers fixed windows since the epoch.
func windowIndex(now time.Time, window time.Duration) int64 {
	return now.UnixNano() / int64(window)
}

type memoryEntry struct {
	size   time.Duration
	window int64
	count  int
}

// Memory is a process-local Limiter.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

const memorySweepThreshold = 10000

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	idx := windowIndex(m.now(), window)
	k := key + "|" + window.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) > memorySweepThreshold {
		m.sweep()
	}
	e, ok := m.entries[k]
	if !ok || e.window != idx {
		e = &memoryEntry{size: window, window: idx}
		m.entries[k] = e
	}
	e.count++
	return e.count <= limit, nil
}

// sweep drops entries whose window has passed. Callers hold mu.
func (m *Memory) sweep() {
	now := m.now()
	for k, e := range m.entries {
		if e.window != windowIndex(now, e.size) {
			delete(m.entries, k)
		}
	}
}
