package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FixedWindow(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()
	start := clock.Now()

	for i := 1; i <= 3; i++ {
		w, ok, err := s.Hit(ctx, "login", "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, w.Count)
		assert.Equal(t, start, w.Start)
		clock.Advance(time.Second)
	}

	w, ok, err := s.Hit(ctx, "login", "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, w.Count, "refused hits must not grow the counter")

	clock.Advance(time.Minute)

	w, ok, err = s.Hit(ctx, "login", "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, clock.Now(), w.Start)
}

func TestMemoryStore_ScopesAndKeysAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, _ := s.Hit(ctx, "login", "k", 1, time.Minute)
	assert.True(t, ok)
	_, ok, _ = s.Hit(ctx, "login", "k", 1, time.Minute)
	assert.False(t, ok)

	_, ok, _ = s.Hit(ctx, "register", "k", 1, time.Minute)
	assert.True(t, ok)
	_, ok, _ = s.Hit(ctx, "login", "other", 1, time.Minute)
	assert.True(t, ok)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Hit(ctx, "global", "k", 1, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStoreWithClock(clock.Now)
	ctx := context.Background()

	_, _, _ = s.Hit(ctx, "global", "a", 10, time.Minute)
	_, _, _ = s.Hit(ctx, "global", "b", 10, time.Hour)
	require.Equal(t, 2, s.Len())

	assert.Equal(t, 0, s.Sweep(clock.Now()))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep(clock.Now()))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ConcurrentHitsNeverOverAdmit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	const max = 50

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Hit(ctx, "global", "hot-key", max, time.Minute)
			if err == nil && ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, max, admitted.Load())
}

func TestMemoryStore_TwoConcurrentAtMaxMinusOne(t *testing.T) {
	for round := 0; round < 100; round++ {
		s := NewMemoryStore()
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			_, ok, err := s.Hit(ctx, "login", "1.2.3.4", 5, time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
		}

		results := make(chan bool, 2)
		var ready sync.WaitGroup
		ready.Add(1)
		for i := 0; i < 2; i++ {
			go func() {
				ready.Wait()
				_, ok, _ := s.Hit(ctx, "login", "1.2.3.4", 5, time.Minute)
				results <- ok
			}()
		}
		ready.Done()

		a, b := <-results, <-results
		assert.True(t, a != b, "exactly one of two concurrent requests must be admitted")
	}
}
