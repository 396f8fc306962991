package pipeline

import (
	"sync"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

// DefaultCacheSize is the number of states kept by a StateCache when no size is given.
const DefaultCacheSize = 16

type cacheEntry struct {
	options Options
	state   flow.State
}

// StateCache stores computed flow states indexed by their validity intervals and by the
// request options that shape the result.  States with Pending status or an empty validity
// interval are never stored.
type StateCache struct {
	mutex    *sync.Mutex
	capacity int
	entries  []cacheEntry
}

// NewStateCache creates a cache holding at most capacity states.
func NewStateCache(capacity int) *StateCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &StateCache{
		mutex:    &sync.Mutex{},
		capacity: capacity,
	}
}

// Lookup returns a shared copy of the cached state that answers req.
func (c *StateCache) Lookup(req Request) (flow.State, bool) {
	options := req.cacheOptions()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for i := range c.entries {
		e := &c.entries[i]
		if e.options == options && e.state.Validity().Contains(req.Time()) {
			return e.state.Share(), true
		}
	}
	return flow.State{}, false
}

// Insert stores a shared copy of the state computed for req.  Entries for the same
// options whose validity overlaps the new one are replaced; the oldest entry is evicted
// when the cache is full.
func (c *StateCache) Insert(req Request, state flow.State) bool {
	if state.Status().IsPending() || state.Validity().IsEmpty() {
		return false
	}
	options := req.cacheOptions()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	kept := c.entries[:0]
	for i := range c.entries {
		e := c.entries[i]
		if e.options != options || e.state.Validity().Intersect(state.Validity()).IsEmpty() {
			kept = append(kept, e)
		} else {
			e.state.Reset()
		}
	}
	c.entries = kept

	if len(c.entries) >= c.capacity {
		c.entries[0].state.Reset()
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, cacheEntry{options: options, state: state.Share()})
	return true
}

// Invalidate restricts every cached state to the part of its validity that lies inside
// keep, dropping states that end up with an empty interval.
func (c *StateCache) Invalidate(keep anim.TimeInterval) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	kept := c.entries[:0]
	for i := range c.entries {
		e := c.entries[i]
		e.state.IntersectValidity(keep)
		if e.state.Validity().IsEmpty() {
			e.state.Reset()
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
}

// Size returns the number of cached states.
func (c *StateCache) Size() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}
