package character

import (
	"sync"

	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// Key names a blackboard slot holding values of type T.
type Key[T any] struct {
	name string
}

// NewKey declares a typed blackboard key.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key name.
func (k Key[T]) Name() string { return k.name }

// Shared keys written and read by motions.
var (
	HandPose         = NewKey[clip.HandPose]("hand_pose")
	HandPosePriority = NewKey[skeleton.Priority]("hand_pose_priority")
	WalkSpeed        = NewKey[float32]("walk_speed")
)

// Blackboard is a per-character store for short-lived signals passed
// between motions.
type Blackboard struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewBlackboard creates an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{values: make(map[string]any)}
}

// Set stores v under k.
func Set[T any](b *Blackboard, k Key[T], v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[k.name] = v
}

// Get returns the value under k. A value stored under the same name with a
// different type reads as missing.
func Get[T any](b *Blackboard, k Key[T]) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[k.name].(T)
	return v, ok
}

// Clear removes k.
func Clear[T any](b *Blackboard, k Key[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, k.name)
}

// Len returns the number of stored values.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.values)
}
