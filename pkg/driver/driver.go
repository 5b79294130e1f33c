// Package driver ticks the motion controllers of many characters from one
// goroutine at a fixed rate.
//
// Controllers are not safe for concurrent use. The driver owns them: the tick
// loop and every command issued through Do run under the same mutex.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v2"
	"go.uber.org/atomic"

	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/internal/report"
	"github.com/teslashibe/go-motion/pkg/controller"
)

// FrameFunc observes a character right after its controller updated. It runs
// on the tick goroutine with the driver lock held and must not block.
type FrameFunc func(id string, c *controller.Controller)

// Stats are the loop counters.
type Stats struct {
	Ticks      uint64        `json:"ticks"`
	Failures   uint64        `json:"failures"`
	Characters int           `json:"characters"`
	Rate       time.Duration `json:"rate"`
}

// Driver runs the tick loop.
type Driver struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	chars  *orderedmap.OrderedMap[string, *controller.Controller]
	frames []FrameFunc

	start time.Time
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	ticks    atomic.Uint64
	failures atomic.Uint64
}

// New creates a stopped driver.
func New(cfg Config) *Driver {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultConfig().Rate
	}
	return &Driver{
		cfg:    cfg,
		logger: log.With("component", "driver"),
		chars:  orderedmap.NewOrderedMap[string, *controller.Controller](),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

// Add hands c to the driver under id.
func (d *Driver) Add(id string, c *controller.Controller) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.chars.Get(id); ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	d.chars.Set(id, c)
	d.logger.Info("character added", "character", id)
	return nil
}

// Remove stops driving id and reports whether it was present.
func (d *Driver) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chars.Delete(id)
}

// OnFrame registers fn to run after every character update.
func (d *Driver) OnFrame(fn FrameFunc) {
	d.mu.Lock()
	d.frames = append(d.frames, fn)
	d.mu.Unlock()
}

// Characters returns the driven ids in the order they were added.
func (d *Driver) Characters() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chars.Keys()
}

// Do runs fn with the controller of id while the loop is held off.
func (d *Driver) Do(id string, fn func(c *controller.Controller) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.chars.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCharacter, id)
	}
	return fn(c)
}

// Stats returns the loop counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	n := d.chars.Len()
	d.mu.Unlock()
	return Stats{
		Ticks:      d.ticks.Load(),
		Failures:   d.failures.Load(),
		Characters: n,
		Rate:       d.cfg.Rate,
	}
}

// Running reports whether Run is active.
func (d *Driver) Running() bool {
	return d.running.Load()
}

// Run ticks every controller at the configured rate. It blocks until ctx is
// done or Stop is called.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer d.running.Store(false)

	d.start = d.now()
	ticker := time.NewTicker(d.cfg.Rate)
	defer ticker.Stop()

	d.logger.Info("driver started", "hz", 1/d.cfg.Rate.Seconds())
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("driver stopped", "ticks", d.ticks.Load())
			return ctx.Err()
		case <-d.stop:
			d.logger.Info("driver stopped", "ticks", d.ticks.Load())
			return nil
		case <-ticker.C:
			d.Step(d.now().Sub(d.start))
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// Step updates every controller to the clock reading now once.
func (d *Driver) Step(now time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for el := d.chars.Front(); el != nil; el = el.Next() {
		d.tickOne(el.Key, el.Value, now)
	}
	n := d.ticks.Inc()
	if every := d.cfg.HeartbeatEvery; every > 0 && n%every == 0 {
		d.logger.Debug("heartbeat", "ticks", n, "failures", d.failures.Load(), "characters", d.chars.Len())
	}
}

// tickOne isolates a failing character so the others keep animating.
func (d *Driver) tickOne(id string, c *controller.Controller, now time.Duration) {
	defer report.Recover("driver")
	ok := false
	defer func() {
		if !ok {
			d.failures.Inc()
			d.logger.Warn("character tick failed", "character", id)
		}
	}()

	c.Update(now)
	for _, fn := range d.frames {
		fn(id, c)
	}
	ok = true
}
