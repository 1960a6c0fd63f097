package watch

import "sync"

// DedupCache is a bounded set of identities with FIFO eviction: once full,
// adding a new identity drops the oldest inserted one.
type DedupCache struct {
	mu    sync.Mutex
	cap   int
	order []Identity
	set   map[Identity]struct{}
}

func NewDedupCache(capacity int) *DedupCache {
	if capacity <= 0 {
		capacity = 30
	}
	return &DedupCache{
		cap:   capacity,
		order: make([]Identity, 0, capacity+1),
		set:   make(map[Identity]struct{}, capacity+1),
	}
}

func (c *DedupCache) Contains(id Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.set[id]
	return ok
}

// Add inserts id and reports whether it was new. Adding a present id does not
// refresh its position.
func (c *DedupCache) Add(id Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.set[id]; ok {
		return false
	}
	c.set[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > c.cap {
		oldest := c.order[0]
		delete(c.set, oldest)
		c.order[0] = ""
		c.order = c.order[1:]
	}
	return true
}

func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *DedupCache) Cap() int { return c.cap }

// Items returns the cached identities, oldest first.
func (c *DedupCache) Items() []Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Identity(nil), c.order...)
}
