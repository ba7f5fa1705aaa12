package detect

import (
	"strings"
	"sync"
)

// SelectorCache remembers the detection result per host; pages of one documentation site
// share a framework, so detection runs once per host
type SelectorCache struct {
	mu    sync.RWMutex
	byKey map[string]DetectionResult
}

// NewSelectorCache creates an empty cache
func NewSelectorCache() *SelectorCache {
	return &SelectorCache{byKey: make(map[string]DetectionResult)}
}

// Get returns the cached result for host
func (c *SelectorCache) Get(host string) (DetectionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.byKey[strings.ToLower(host)]
	return r, ok
}

// Set stores the result for host
func (c *SelectorCache) Set(host string, r DetectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[strings.ToLower(host)] = r
}

// Size returns the number of cached hosts
func (c *SelectorCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}
