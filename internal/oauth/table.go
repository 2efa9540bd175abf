// ABOUTME: Thread-safe TTL table whose entries can be consumed exactly once
// ABOUTME: Backs pending OAuth states and one-time exchange codes

package oauth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errTableFull is returned by Put when every slot holds a live entry.
var errTableFull = errors.New("table is full")

// tableEntry stores a value and its expiry.
type tableEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// onceTable is a TTL-bounded, size-limited map where Consume removes the entry
// it returns. Live entries are never displaced: a full table rejects new keys.
type onceTable[V any] struct {
	mu      sync.Mutex
	entries map[string]*tableEntry[V]
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func newOnceTable[V any](ttl time.Duration, maxSize int, now func() time.Time) *onceTable[V] {
	if now == nil {
		now = time.Now
	}
	return &onceTable[V]{
		entries: make(map[string]*tableEntry[V]),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
	}
}

// Put stores value under key and returns its expiry. At capacity, expired
// entries are swept first; if none were expired, Put returns errTableFull.
func (t *onceTable[V]) Put(key string, value V) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	delete(t.entries, key)
	if t.maxSize > 0 && len(t.entries) >= t.maxSize {
		if t.sweepLocked(now) == 0 {
			return time.Time{}, errTableFull
		}
	}

	e := &tableEntry[V]{value: value, expiresAt: now.Add(t.ttl)}
	t.entries[key] = e
	return e.expiresAt, nil
}

// Consume atomically removes and returns the value for key.
// Returns false if the key is unknown, already consumed, or expired.
func (t *onceTable[V]) Consume(key string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero V
	e, ok := t.entries[key]
	if !ok {
		return zero, false
	}
	delete(t.entries, key)

	if !t.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Len returns the number of entries, including expired ones not yet swept.
func (t *onceTable[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep removes all expired entries and returns how many were removed.
func (t *onceTable[V]) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked(t.now())
}

// sweepLocked must be called with mu held.
func (t *onceTable[V]) sweepLocked(now time.Time) int {
	removed := 0
	for key, e := range t.entries {
		if !now.Before(e.expiresAt) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}

// run sweeps every interval until ctx is done.
func (t *onceTable[V]) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
