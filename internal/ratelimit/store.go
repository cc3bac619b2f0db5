// store.go: Concurrency-safe keyed bucket store with idle eviction
package ratelimit

import (
	"sync"
	"time"
)

// ConsumeResult is the outcome of one atomic bucket access.
type ConsumeResult struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

// Store provides atomic access to per-key token buckets. Callers never hold a
// bucket reference; every read-modify-write goes through TryConsume.
type Store interface {
	TryConsume(key string, capacity int, refillPerSec float64, cost int) (ConsumeResult, error)
	Len() int
}

type bucketEntry struct {
	bucket     *TokenBucket
	lastAccess time.Time
}

// MemoryStore is the in-process Store. Buckets are created lazily on first
// access, seeded at full capacity, and evicted once idle for longer than
// idleTimeout. Eviction runs opportunistically on access, at most once per
// sweep interval, so unbounded key cardinality (many client IPs) cannot grow
// memory without bound and no background goroutine is needed.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]*bucketEntry
	idleTimeout time.Duration
	sweepEvery  time.Duration
	lastSweep   time.Time
	now         func() time.Time
}

// NewMemoryStore creates a store evicting buckets idle for idleTimeout.
func NewMemoryStore(idleTimeout time.Duration) *MemoryStore {
	return newMemoryStoreAt(idleTimeout, time.Now)
}

func newMemoryStoreAt(idleTimeout time.Duration, now func() time.Time) *MemoryStore {
	sweep := idleTimeout / 4
	if sweep < time.Second {
		sweep = time.Second
	}
	return &MemoryStore{
		entries:     make(map[string]*bucketEntry),
		idleTimeout: idleTimeout,
		sweepEvery:  sweep,
		lastSweep:   now(),
		now:         now,
	}
}

// TryConsume fetches or creates the bucket for key and consumes cost tokens
// from it. The store lock covers only the map access; the per-bucket mutex
// covers the token math, so traffic on distinct keys never serializes.
func (s *MemoryStore) TryConsume(key string, capacity int, refillPerSec float64, cost int) (ConsumeResult, error) {
	s.mu.Lock()
	now := s.now()
	entry, ok := s.entries[key]
	if !ok {
		entry = &bucketEntry{bucket: newTokenBucketAt(capacity, refillPerSec, s.now)}
		s.entries[key] = entry
		activeBuckets.Set(float64(len(s.entries)))
	}
	entry.lastAccess = now
	if now.Sub(s.lastSweep) >= s.sweepEvery {
		s.sweepLocked(now)
	}
	s.mu.Unlock()

	allowed, remaining, retryAfter := entry.bucket.TryConsume(cost)
	return ConsumeResult{Allowed: allowed, Remaining: remaining, RetryAfter: retryAfter}, nil
}

// sweepLocked drops entries idle for longer than idleTimeout. Caller holds s.mu.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, entry := range s.entries {
		if now.Sub(entry.lastAccess) > s.idleTimeout {
			delete(s.entries, key)
		}
	}
	s.lastSweep = now
	activeBuckets.Set(float64(len(s.entries)))
}

// Len returns the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// BucketStatus is a point-in-time view of one bucket for the admin surface.
type BucketStatus struct {
	Key        string    `json:"key"`
	Capacity   int       `json:"capacity"`
	Remaining  float64   `json:"remaining"`
	LastAccess time.Time `json:"last_access"`
}

// Snapshot returns the status of every live bucket.
func (s *MemoryStore) Snapshot() []BucketStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BucketStatus, 0, len(s.entries))
	for key, entry := range s.entries {
		out = append(out, BucketStatus{
			Key:        key,
			Capacity:   entry.bucket.Capacity(),
			Remaining:  entry.bucket.Remaining(),
			LastAccess: entry.lastAccess,
		})
	}
	return out
}
