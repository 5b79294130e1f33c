package motion

import (
	"fmt"
	"sort"
	"sync"

	"github.com/teslashibe/go-motion/pkg/clip"
)

// Constructor builds a new instance of a motion.
type Constructor func(id clip.ID) Motion

// Registry maps clip ids to constructors and remembers ids that failed to
// initialize. It is shared by every controller.
type Registry struct {
	mu       sync.RWMutex
	ctors    map[clip.ID]Constructor
	bad      map[clip.ID]struct{}
	fallback Constructor
}

// NewRegistry creates a registry that builds unregistered ids with fallback.
func NewRegistry(fallback Constructor) *Registry {
	return &Registry{
		ctors:    make(map[clip.ID]Constructor),
		bad:      make(map[clip.ID]struct{}),
		fallback: fallback,
	}
}

// Register binds a constructor to id.
func (r *Registry) Register(id clip.ID, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctors[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.ctors[id] = ctor
	return nil
}

// Create builds a new instance, or returns nil when id is marked bad or no
// constructor applies.
func (r *Registry) Create(id clip.ID) Motion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, bad := r.bad[id]; bad {
		return nil
	}
	if ctor, ok := r.ctors[id]; ok {
		return ctor(id)
	}
	if r.fallback == nil {
		return nil
	}
	return r.fallback(id)
}

// MarkBad stops id from ever being constructed again.
func (r *Registry) MarkBad(id clip.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bad[id] = struct{}{}
}

// IsBad reports whether id failed to initialize before.
func (r *Registry) IsBad(id clip.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, bad := r.bad[id]
	return bad
}

// Bad lists the ids marked bad, sorted.
func (r *Registry) Bad() []clip.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]clip.ID, 0, len(r.bad))
	for id := range r.bad {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
