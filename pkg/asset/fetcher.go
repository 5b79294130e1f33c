// Package asset retrieves raw clip bytes by id.
//
// Fetchers complete asynchronously on their own goroutines except Memory,
// which completes before Fetch returns. Callers must not assume either.
package asset

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/teslashibe/go-motion/internal/report"
	"github.com/teslashibe/go-motion/pkg/clip"
)

// Fetcher retrieves clip bytes. onComplete is called exactly once.
type Fetcher interface {
	Fetch(ctx context.Context, id clip.ID, onComplete func([]byte, error))
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id clip.ID, onComplete func([]byte, error))

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, id clip.ID, onComplete func([]byte, error)) {
	f(ctx, id, onComplete)
}

// deliver runs read and passes its result to onComplete exactly once. Read
// errors and panics both arrive as clip.ErrFetch.
func deliver(component string, onComplete func([]byte, error), read func() ([]byte, error)) {
	called := false
	defer report.RecoverTo(component, func(err error) {
		if !called {
			onComplete(nil, fmt.Errorf("%w: %v", clip.ErrFetch, err))
		}
	})
	data, err := read()
	called = true
	if err != nil {
		onComplete(nil, fmt.Errorf("%w: %v", clip.ErrFetch, err))
		return
	}
	onComplete(data, nil)
}

// Memory serves clips from an in-process map.
type Memory struct {
	mu    sync.RWMutex
	clips map[clip.ID][]byte

	fetches atomic.Int64
}

// NewMemory creates an empty in-memory fetcher.
func NewMemory() *Memory {
	return &Memory{clips: make(map[clip.ID][]byte)}
}

// Put stores encoded clip bytes under id.
func (m *Memory) Put(id clip.ID, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clips[id] = data
}

// Fetch completes synchronously.
func (m *Memory) Fetch(ctx context.Context, id clip.ID, onComplete func([]byte, error)) {
	m.fetches.Inc()
	if err := ctx.Err(); err != nil {
		onComplete(nil, fmt.Errorf("%w: %v", clip.ErrFetch, err))
		return
	}
	m.mu.RLock()
	data, ok := m.clips[id]
	m.mu.RUnlock()
	if !ok {
		onComplete(nil, fmt.Errorf("%w: %s not in memory", clip.ErrFetch, id))
		return
	}
	onComplete(data, nil)
}

// Fetches returns how many times Fetch was called.
func (m *Memory) Fetches() int64 {
	return m.fetches.Load()
}
