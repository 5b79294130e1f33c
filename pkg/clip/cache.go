package clip

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/teslashibe/go-motion/internal/log"
)

// Shared is the process-wide clip cache used by default.
var Shared = NewCache()

type entry struct {
	clip       *Clip
	generation uint64
	subs       atomic.Int64
	flushed    atomic.Bool
}

// Ref is a counted reference to a cached clip. The clip data stays readable
// after a forced flush; Valid reports whether the cache still serves it.
type Ref struct {
	e        *entry
	released atomic.Bool
}

// Clip returns the referenced clip.
func (r *Ref) Clip() *Clip {
	return r.e.clip
}

// Generation returns the cache generation the clip was inserted at.
func (r *Ref) Generation() uint64 {
	return r.e.generation
}

// Valid reports whether the entry has not been flushed.
func (r *Ref) Valid() bool {
	return !r.e.flushed.Load()
}

// Release drops the reference. Extra calls are ignored.
func (r *Ref) Release() {
	if r.released.CompareAndSwap(false, true) {
		r.e.subs.Dec()
	}
}

// EntryInfo describes a cache entry for diagnostics.
type EntryInfo struct {
	ID          ID      `json:"id"`
	Digest      uint64  `json:"digest"`
	Generation  uint64  `json:"generation"`
	Subscribers int64   `json:"subscribers"`
	Joints      int     `json:"joints"`
	Duration    float32 `json:"duration"`
}

// Cache maps clip ids to decoded clips. Entries are immutable once added and
// may be read concurrently without locking the clip itself.
type Cache struct {
	mu       sync.RWMutex
	entries  map[ID]*entry
	byDigest map[uint64]ID

	generation atomic.Uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries:  make(map[ID]*entry),
		byDigest: make(map[uint64]ID),
	}
}

// Acquire returns a reference to a cached clip.
func (c *Cache) Acquire(id ID) (*Ref, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	e.subs.Inc()
	return &Ref{e: e}, true
}

// Add inserts a clip and returns a reference to it. If the id is already
// cached the existing clip wins and clip is discarded.
func (c *Cache) Add(clip *Clip) *Ref {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[clip.ID]
	if !ok {
		e = &entry{clip: clip, generation: c.generation.Load()}
		c.entries[clip.ID] = e
		if clip.Digest != 0 {
			if other, dup := c.byDigest[clip.Digest]; dup && other != clip.ID {
				log.Debug("clip content duplicates another id", "clip", clip.ID, "same_as", other)
			} else {
				c.byDigest[clip.Digest] = clip.ID
			}
		}
	}
	e.subs.Inc()
	return &Ref{e: e}
}

// Flush evicts a clip. Without force it refuses while references remain;
// with force outstanding references keep their data but become invalid.
func (c *Cache) Flush(id ID, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if n := e.subs.Load(); n > 0 && !force {
		return fmt.Errorf("%w: %s has %d references", ErrInUse, id, n)
	}
	c.evict(id, e)
	return nil
}

// FlushUnused evicts every clip without references and returns how many were removed.
func (c *Cache) FlushUnused() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, e := range c.entries {
		if e.subs.Load() <= 0 {
			c.evict(id, e)
			n++
		}
	}
	return n
}

func (c *Cache) evict(id ID, e *entry) {
	e.flushed.Store(true)
	delete(c.entries, id)
	if c.byDigest[e.clip.Digest] == id {
		delete(c.byDigest, e.clip.Digest)
	}
	c.generation.Inc()
}

// Generation increments on every eviction.
func (c *Cache) Generation() uint64 {
	return c.generation.Load()
}

// Len returns the number of cached clips.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Subscribers returns the live reference count for a clip.
func (c *Cache) Subscribers(id ID) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[id]; ok {
		return e.subs.Load()
	}
	return 0
}

// List describes every cached clip, sorted by id.
func (c *Cache) List() []EntryInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]EntryInfo, 0, len(c.entries))
	for id, e := range c.entries {
		out = append(out, EntryInfo{
			ID:          id,
			Digest:      e.clip.Digest,
			Generation:  e.generation,
			Subscribers: e.subs.Load(),
			Joints:      len(e.clip.Joints),
			Duration:    e.clip.Duration,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
