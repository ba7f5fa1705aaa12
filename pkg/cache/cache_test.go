package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCache_GetPut(t *testing.T) {
	c := New[string](10, time.Hour)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", "alpha", 0)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	c.Put("a", "alpha-2", 0)
	v, _ = c.Get("a")
	assert.Equal(t, "alpha-2", v)
	assert.Equal(t, 1, c.Size())
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[int](10, time.Minute, WithClock(clock.Now))

	c.Put("short", 1, 10*time.Second)
	c.Put("default", 2, 0)

	clock.Advance(10*time.Second - time.Millisecond)
	_, ok := c.Get("short")
	assert.True(t, ok, "entry younger than its TTL is live")

	clock.Advance(time.Millisecond)
	_, ok = c.Get("short")
	assert.False(t, ok, "entry whose age equals its TTL misses")
	assert.Equal(t, 1, c.Size(), "expired entry is removed on read")

	clock.Advance(time.Minute)
	_, ok = c.Get("default")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestCache_EvictsOldestFifth(t *testing.T) {
	clock := newFakeClock()
	c := New[int](10, time.Hour, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%d", i), i, 0)
		clock.Advance(time.Second)
	}
	require.Equal(t, 10, c.Size())

	// 11 entries > 10: floor(11*0.2) = 2 oldest go
	c.Put("k10", 10, 0)
	assert.Equal(t, 9, c.Size())
	for _, gone := range []string{"k0", "k1"} {
		_, ok := c.Get(gone)
		assert.False(t, ok, gone)
	}
	for _, kept := range []string{"k2", "k9", "k10"} {
		_, ok := c.Get(kept)
		assert.True(t, ok, kept)
	}
}

func TestCache_EvictsAtLeastOne(t *testing.T) {
	c := New[int](2, time.Hour)
	c.Put("a", 1, 0)
	c.Put("b", 2, 0)
	c.Put("c", 3, 0)

	// floor(3*0.2) = 0, so one entry is evicted
	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_SameInstantUsesInsertionOrder(t *testing.T) {
	clock := newFakeClock() // never advances
	c := New[int](3, time.Hour, WithClock(clock.Now))
	for _, k := range []string{"a", "b", "c", "d"} {
		c.Put(k, 0, 0)
	}
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)
}

func TestCache_SizeBoundAndNewestSurvives(t *testing.T) {
	for _, maxSize := range []int{1, 2, 5, 17, 100} {
		c := New[int](maxSize, time.Hour)
		for i := 0; i < maxSize*3+7; i++ {
			key := fmt.Sprintf("k%d", i)
			c.Put(key, i, 0)
			assert.LessOrEqual(t, c.Size(), maxSize)
			_, ok := c.Get(key)
			assert.True(t, ok, "newest entry must survive eviction (max=%d, i=%d)", maxSize, i)
		}
	}
}

func TestCache_ClearAndEntries(t *testing.T) {
	clock := newFakeClock()
	c := New[string](10, time.Hour, WithClock(clock.Now))
	c.Put("first", "1", 0)
	clock.Advance(time.Second)
	c.Put("expiring", "x", time.Millisecond)
	clock.Advance(time.Second)
	c.Put("second", "2", 0)

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Key)
	assert.Equal(t, "second", entries[1].Key)

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Entries())
}

func TestEntry_Expired(t *testing.T) {
	inserted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Entry[int]{Key: "k", InsertedAt: inserted, TTL: time.Minute}

	assert.False(t, e.Expired(inserted))
	assert.False(t, e.Expired(inserted.Add(time.Minute-time.Nanosecond)))
	assert.True(t, e.Expired(inserted.Add(time.Minute)))
	assert.True(t, e.Expired(inserted.Add(time.Hour)))
}

func TestCache_Load(t *testing.T) {
	clock := newFakeClock()
	c := New[string](2, time.Hour, WithClock(clock.Now))

	now := clock.Now()
	loaded := c.Load([]Entry[string]{
		{Key: "old", Value: "o", InsertedAt: now.Add(-2 * time.Hour), TTL: time.Hour},
		{Key: "b", Value: "b", InsertedAt: now.Add(-time.Minute), TTL: time.Hour},
		{Key: "a", Value: "a", InsertedAt: now.Add(-2 * time.Minute), TTL: time.Hour},
		{Key: "c", Value: "c", InsertedAt: now, TTL: 0},
	})

	assert.Equal(t, 3, loaded, "expired snapshot entries are skipped")
	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest loaded entry evicted")
	v, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](50, time.Hour)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				c.Put(key, i, 0)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 50)
}
