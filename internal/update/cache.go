package update

import (
	"sync"

	"github.com/chis/locksmith/internal/lock"
)

// Cache deduplicates resolutions within one synchronization run, keyed by
// image reference. The lock covers only the map access; resolution itself
// runs outside it, so two tasks missing on the same reference concurrently
// may both resolve it. That race is tolerated: both arrive at the same
// value, the second Put overwrites with an identical record, and the only
// cost is one redundant resolution.
type Cache struct {
	mu      sync.Mutex
	entries map[string]lock.VersionedImage
}

// NewCache creates an empty run-scoped cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]lock.VersionedImage)}
}

// Get returns the cached resolution for an image reference.
func (c *Cache) Get(image string) (lock.VersionedImage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[image]
	return v, ok
}

// Put stores a resolution.
func (c *Cache) Put(image string, resolved lock.VersionedImage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[image] = resolved
}
