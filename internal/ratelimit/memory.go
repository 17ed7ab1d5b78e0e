package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// entry is one fixed-window counter. The element field back-references its
// position in the recency list so eviction stays O(1).
type entry struct {
	key           string
	count         int
	windowResetAt time.Time
	element       *list.Element
}

// MemoryLimiter implements Limiter with fixed-window counters and bounded
// memory. The first request for a key opens a window; requests inside the
// window increment the counter; the window expiring resets it. When the
// number of distinct keys exceeds maxEntries, the least recently touched
// entry is evicted before a new one is inserted. A background sweep drops
// expired windows so idle keys do not linger until eviction pressure.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	recency *list.List // front = most recently touched

	maxEntries int
	now        func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// MemoryLimiterOption configures a MemoryLimiter.
type MemoryLimiterOption func(*MemoryLimiter)

// WithClock overrides the limiter's clock. For tests.
func WithClock(now func() time.Time) MemoryLimiterOption {
	return func(m *MemoryLimiter) { m.now = now }
}

// NewMemoryLimiter creates a bounded in-memory fixed-window limiter.
// Call Close to stop the background sweep.
func NewMemoryLimiter(maxEntries int, opts ...MemoryLimiterOption) *MemoryLimiter {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	m := &MemoryLimiter{
		entries:    make(map[string]*entry),
		recency:    list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.sweep()
	return m
}

// Check reports whether a request for key would be allowed under policy
// without consuming an attempt.
func (m *MemoryLimiter) Check(_ context.Context, key string, policy Policy) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.windowResetAt) {
		return Result{Allowed: true, Remaining: policy.MaxAttempts}, nil
	}
	if e.count >= policy.MaxAttempts {
		rejectedTotal.Inc()
		return Result{Allowed: false, RetryAfter: e.windowResetAt.Sub(now)}, nil
	}
	return Result{Allowed: true, Remaining: policy.MaxAttempts - e.count}, nil
}

// Increment consumes one attempt for key, opening a fresh window if none is
// active.
func (m *MemoryLimiter) Increment(_ context.Context, key string, policy Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increment(key, policy)
	return nil
}

// Allow checks and increments in one locked step. The attempt is consumed
// even when the request is rejected, matching fixed-window counting.
func (m *MemoryLimiter) Allow(_ context.Context, key string, policy Policy) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e := m.increment(key, policy)
	if e.count > policy.MaxAttempts {
		rejectedTotal.Inc()
		return Result{Allowed: false, RetryAfter: e.windowResetAt.Sub(now)}, nil
	}
	allowedTotal.Inc()
	return Result{Allowed: true, Remaining: policy.MaxAttempts - e.count}, nil
}

// increment bumps the counter for key under an active window, resetting the
// window when expired. Must be called with m.mu held.
func (m *MemoryLimiter) increment(key string, policy Policy) *entry {
	now := m.now()
	e, ok := m.entries[key]
	if ok && now.Before(e.windowResetAt) {
		e.count++
		m.recency.MoveToFront(e.element)
		return e
	}
	if ok {
		// Window expired: reuse the entry with a fresh window.
		e.count = 1
		e.windowResetAt = now.Add(policy.Window)
		m.recency.MoveToFront(e.element)
		return e
	}

	if len(m.entries) >= m.maxEntries {
		m.evictOldest()
	}
	e = &entry{key: key, count: 1, windowResetAt: now.Add(policy.Window)}
	e.element = m.recency.PushFront(e)
	m.entries[key] = e
	return e
}

// evictOldest drops the least recently touched entry. Must be called with
// m.mu held.
func (m *MemoryLimiter) evictOldest() {
	back := m.recency.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	m.recency.Remove(back)
	delete(m.entries, e.key)
	evictedTotal.Inc()
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the background sweep. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

// sweep periodically evicts entries whose windows have expired.
func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryLimiter) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if !now.Before(e.windowResetAt) {
			m.recency.Remove(e.element)
			delete(m.entries, key)
			evictedTotal.Inc()
		}
	}
}
