package clip

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func cachedClip() *Clip {
	c := sampleClip()
	c.ID = uuid.New()
	return c
}

func TestCacheFlushRefusesWhileReferenced(t *testing.T) {
	cache := NewCache()
	c := cachedClip()
	ref := cache.Add(c)

	if got := cache.Subscribers(c.ID); got != 1 {
		t.Fatalf("subscribers: got %d, want 1", got)
	}
	if err := cache.Flush(c.ID, false); !errors.Is(err, ErrInUse) {
		t.Fatalf("Flush while referenced: got %v, want ErrInUse", err)
	}

	ref.Release()
	ref.Release()
	if got := cache.Subscribers(c.ID); got != 0 {
		t.Fatalf("subscribers after double release: got %d, want 0", got)
	}

	gen := cache.Generation()
	if err := cache.Flush(c.ID, false); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if cache.Generation() != gen+1 {
		t.Errorf("generation: got %d, want %d", cache.Generation(), gen+1)
	}
	if _, ok := cache.Acquire(c.ID); ok {
		t.Error("Acquire after flush succeeded")
	}
	if err := cache.Flush(c.ID, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Flush: got %v, want ErrNotFound", err)
	}
}

func TestCacheForcedFlushInvalidatesRefs(t *testing.T) {
	cache := NewCache()
	c := cachedClip()
	ref := cache.Add(c)

	if err := cache.Flush(c.ID, true); err != nil {
		t.Fatalf("forced Flush: %v", err)
	}
	if ref.Valid() {
		t.Error("ref still valid after forced flush")
	}
	if ref.Clip() != c {
		t.Error("flushed ref lost its clip data")
	}
}

func TestCacheAddKeepsExisting(t *testing.T) {
	cache := NewCache()
	first := cachedClip()
	second := *first
	second.Duration = 9

	a := cache.Add(first)
	b := cache.Add(&second)
	if b.Clip() != first {
		t.Error("second Add replaced the cached clip")
	}
	if got := cache.Subscribers(first.ID); got != 2 {
		t.Errorf("subscribers: got %d, want 2", got)
	}

	r, ok := cache.Acquire(first.ID)
	if !ok {
		t.Fatal("Acquire failed")
	}
	for _, ref := range []*Ref{a, b, r} {
		ref.Release()
	}
	if n := cache.FlushUnused(); n != 1 {
		t.Errorf("FlushUnused: got %d, want 1", n)
	}
	if cache.Len() != 0 {
		t.Errorf("Len: got %d, want 0", cache.Len())
	}
}

func TestCacheList(t *testing.T) {
	cache := NewCache()
	for i := 0; i < 3; i++ {
		cache.Add(cachedClip())
	}
	list := cache.List()
	if len(list) != 3 {
		t.Fatalf("List: got %d entries, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID.String() > list[i].ID.String() {
			t.Errorf("List not sorted at %d", i)
		}
	}
	if list[0].Subscribers != 1 || list[0].Joints != 2 {
		t.Errorf("entry: %+v", list[0])
	}
}
