package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a thread-safe in-memory store with TTL expiry checked on read.
// There is no eviction beyond expiry; the key space is bounded by distinct
// inputs. StartSweep can reclaim expired entries periodically.
type Memory struct {
	mu    sync.Mutex
	clock clockwork.Clock
	items map[string]memoryEntry
}

// NewMemory creates an in-memory store. Pass nil for a real clock.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock: clock,
		items: make(map[string]memoryEntry),
	}
}

// Get returns the value for key if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !m.clock.Now().Before(entry.expiresAt) {
		delete(m.items, key)
		return nil, false
	}
	return entry.value, true
}

// Put upserts key with expiry now+ttl.
func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryEntry{
		value:     value,
		expiresAt: m.clock.Now().Add(ttl),
	}
}

// Len returns the number of entries currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close implements Store; the memory backend holds no external resources.
func (m *Memory) Close() error { return nil }

// StartSweep deletes expired entries every interval until ctx is cancelled.
// An interval <= 0 disables sweeping.
func (m *Memory) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := m.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.sweep()
			}
		}
	}()
}

func (m *Memory) sweep() {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.items {
		if !now.Before(entry.expiresAt) {
			delete(m.items, key)
		}
	}
}
