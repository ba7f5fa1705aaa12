package cache

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// evictFraction of the entries, oldest first, is dropped when the cache overflows
const evictFraction = 0.2

// Entry is one cached value with its insertion time and lifetime
type Entry[V any] struct {
	Key        string
	Value      V
	InsertedAt time.Time
	TTL        time.Duration
}

// Expired reports whether the entry's age at now has reached its TTL
func (e Entry[V]) Expired(now time.Time) bool {
	return !now.Before(e.InsertedAt.Add(e.TTL))
}

type slot[V any] struct {
	Entry[V]
	seq uint64
}

// Cache is a TTL and size bounded key/value store. Expired entries are dropped lazily on read;
// there is no background sweeper.
type Cache[V any] struct {
	mu         sync.Mutex
	items      map[string]*slot[V]
	seq        uint64
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Cache
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache holding at most maxSize entries (minimum 1)
func New[V any](maxSize int, defaultTTL time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		items:      make(map[string]*slot[V]),
		maxSize:    max(maxSize, 1),
		defaultTTL: defaultTTL,
		now:        o.now,
	}
}

// Get returns the value for key. An expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	s, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if s.Expired(c.now()) {
		delete(c.items, key)
		return zero, false
	}
	return s.Value, true
}

// Put stores value under key. ttl <= 0 uses the cache default. Re-putting a key counts as a
// fresh insertion.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insert(Entry[V]{Key: key, Value: value, InsertedAt: c.now(), TTL: ttl})
}

// Load preloads entries, typically from a persisted snapshot. Expired entries are skipped and
// the size bound applies as for Put.
func (c *Cache[V]) Load(entries []Entry[V]) int {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry[V]) int { return a.InsertedAt.Compare(b.InsertedAt) })

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	loaded := 0
	for _, e := range sorted {
		if e.TTL <= 0 {
			e.TTL = c.defaultTTL
		}
		if e.Expired(now) {
			continue
		}
		c.insert(e)
		loaded++
	}
	return loaded
}

// insert must be called with mu held
func (c *Cache[V]) insert(e Entry[V]) {
	c.seq++
	c.items[e.Key] = &slot[V]{Entry: e, seq: c.seq}
	if len(c.items) > c.maxSize {
		c.evictOldest()
	}
}

// evictOldest drops max(1, floor(size*0.2)) entries in insertion order. Must be called with mu held.
func (c *Cache[V]) evictOldest() {
	n := max(1, int(float64(len(c.items))*evictFraction))

	slots := make([]*slot[V], 0, len(c.items))
	for _, s := range c.items {
		slots = append(slots, s)
	}
	slices.SortFunc(slots, compareAge[V])

	// The newest entry is last in slots and n < len(slots) whenever size > maxSize >= 1
	for _, s := range slots[:n] {
		delete(c.items, s.Key)
	}
}

func compareAge[V any](a, b *slot[V]) int {
	if c := a.InsertedAt.Compare(b.InsertedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// Clear removes all entries
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*slot[V])
}

// Size returns the number of stored entries, including expired ones not yet read
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Entries returns the unexpired entries in insertion order
func (c *Cache[V]) Entries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	slots := make([]*slot[V], 0, len(c.items))
	for _, s := range c.items {
		if !s.Expired(now) {
			slots = append(slots, s)
		}
	}
	slices.SortFunc(slots, compareAge[V])

	out := make([]Entry[V], len(slots))
	for i, s := range slots {
		out[i] = s.Entry
	}
	return out
}
