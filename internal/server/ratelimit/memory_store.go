package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

type windowKey struct {
	scope string
	key   string
}

type memoryWindow struct {
	count    int
	start    time.Time
	duration time.Duration
}

func (w *memoryWindow) expired(now time.Time) bool {
	return !now.Before(w.start.Add(w.duration))
}

type shard struct {
	mu      sync.Mutex
	windows map[windowKey]*memoryWindow
}

// MemoryStore keeps windows in process memory. Keys are spread over 64
// shards, each with its own mutex, so unrelated keys never contend.
type MemoryStore struct {
	shards [shardCount]shard
	now    func() time.Time
}

// NewMemoryStore returns an empty MemoryStore using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock returns an empty MemoryStore reading time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := &MemoryStore{now: now}
	for i := range s.shards {
		s.shards[i].windows = make(map[windowKey]*memoryWindow)
	}
	return s
}

func (s *MemoryStore) shardFor(k windowKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.scope))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.key))
	return &s.shards[h.Sum32()%shardCount]
}

// Hit implements Store.
func (s *MemoryStore) Hit(ctx context.Context, scope, key string, max int, window time.Duration) (Window, bool, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, false, err
	}

	k := windowKey{scope: scope, key: key}
	sh := s.shardFor(k)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[k]
	if !ok || w.expired(now) {
		w = &memoryWindow{start: now, duration: window}
		sh.windows[k] = w
	}

	if w.count >= max {
		return Window{Count: w.count, Start: w.start}, false, nil
	}

	w.count++
	return Window{Count: w.count, Start: w.start}, true, nil
}

// Sweep implements Sweeper.
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, w := range sh.windows {
			if w.expired(now) {
				delete(sh.windows, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of windows currently held, live or expired.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}
