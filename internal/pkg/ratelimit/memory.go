package ratelimit

import (
	"sync"
	"time"
)

// MemoryLimiter is the in-process sliding window used when the shared
// counter store is unavailable. It is accurate within one service instance
// only; cross-instance bursts are not visible to it.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
}

type memoryWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

// NewMemoryLimiter creates an empty fallback limiter. One instance is
// constructed per process and passed by reference, never a package global.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*memoryWindow)}
}

// Allow applies the same sliding-window semantics as the store-backed path,
// serialized per key.
func (m *MemoryLimiter) Allow(accountID uint, endpointClass string, now time.Time, limit int) Result {
	w := m.window(BurstKey(accountID, endpointClass))

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-Window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) < limit {
		w.stamps = append(w.stamps, now)
		return Result{Allowed: true, Current: len(w.stamps), Limit: limit}
	}

	retry := w.stamps[0].Add(Window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Result{Allowed: false, Current: len(w.stamps), Limit: limit, RetryAfter: retry}
}

// Cleanup drops windows that hold no in-window entries and returns how many
// were removed. Callers run it periodically to bound memory.
func (m *MemoryLimiter) Cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-Window)
	removed := 0
	for key, w := range m.windows {
		w.mu.Lock()
		empty := len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(cutoff)
		w.mu.Unlock()
		if empty {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryLimiter) window(key string) *memoryWindow {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok {
		w = &memoryWindow{}
		m.windows[key] = w
	}
	return w
}
