package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	maxEntries      = 10000
	cleanupInterval = time.Minute
	entryTTL        = 5 * time.Minute
)

type window struct {
	hits       []time.Time
	lastAccess time.Time
}

// Memory is a process-local sliding-window limiter used when no Redis is
// configured.
type Memory struct {
	mu          sync.Mutex
	store       map[string]*window
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		store:       make(map[string]*window),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (m *Memory) cleanup(now time.Time) {
	if now.Sub(m.lastCleanup) < cleanupInterval {
		return
	}
	m.lastCleanup = now

	for key, w := range m.store {
		if now.Sub(w.lastAccess) > entryTTL {
			delete(m.store, key)
		}
	}

	if len(m.store) > maxEntries {
		drop := len(m.store) / 5
		for key := range m.store {
			if drop == 0 {
				break
			}
			delete(m.store, key)
			drop--
		}
	}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, span time.Duration) (bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.cleanup(now)

	w, ok := m.store[key]
	if !ok {
		w = &window{}
		m.store[key] = w
	}
	w.lastAccess = now

	start := now.Add(-span)
	kept := w.hits[:0]
	for _, ts := range w.hits {
		if ts.After(start) {
			kept = append(kept, ts)
		}
	}
	w.hits = kept

	resetAt := now.Add(span)
	if len(w.hits) > 0 {
		resetAt = w.hits[0].Add(span)
	}

	if len(w.hits) >= limit {
		return false, resetAt
	}
	w.hits = append(w.hits, now)
	return true, resetAt
}
