// Package controller schedules the motions playing on one character.
//
// Each Update advances controller time, polls motions that are still
// loading, evaluates active motions in activation order and hands their
// weighted poses to the blender, which writes the skeleton. A Controller is
// not safe for concurrent use; the driver serialises access.
package controller

import (
	"log/slog"
	"time"

	"github.com/chewxy/math32"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/internal/mathx"
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/motion"
	"github.com/teslashibe/go-motion/pkg/pose"
)

// Motions whose level-of-detail fade drops below this are not evaluated.
const minFadeWeight = 0.01

var never = math32.Inf(1)

// EmoteResolver maps an emote name carried by a clip to a clip id.
type EmoteResolver func(name string) (clip.ID, bool)

// ParseEmote resolves emote names that are clip ids.
func ParseEmote(name string) (clip.ID, bool) {
	id, err := uuid.Parse(name)
	return id, err == nil
}

type instances = orderedmap.OrderedMap[clip.ID, motion.Motion]

// Controller drives the motions of one character.
type Controller struct {
	cfg      Config
	ch       character.Character
	registry *motion.Registry
	sink     character.NotificationSink
	emotes   EmoteResolver
	logger   *slog.Logger

	blender *pose.Blender
	null    *motion.Null

	all     *instances
	loading *instances
	loaded  *instances
	active  *instances

	// Claimed position and rotation bits per joint for the current pass.
	sig     [2][]uint8
	lastSig []uint8
	order   int

	time     float32
	lastTime float32

	clock      float32
	timerStart float32
	timeOffset float32
	timeFactor float32
	paused     bool
	pauseTime  float32

	stepCount  int
	hasRunOnce bool
}

// New creates a controller for ch. Motions are built through reg.
func New(ch character.Character, reg *motion.Registry, cfg Config) *Controller {
	return &Controller{
		cfg:        cfg,
		ch:         ch,
		registry:   reg,
		sink:       character.NopSink{},
		emotes:     ParseEmote,
		logger:     log.With("component", "controller"),
		blender:    pose.NewBlender(ch.Skeleton()),
		null:       motion.NewNull(uuid.Nil),
		all:        orderedmap.NewOrderedMap[clip.ID, motion.Motion](),
		loading:    orderedmap.NewOrderedMap[clip.ID, motion.Motion](),
		loaded:     orderedmap.NewOrderedMap[clip.ID, motion.Motion](),
		active:     orderedmap.NewOrderedMap[clip.ID, motion.Motion](),
		timeFactor: 1,
	}
}

// SetSink sets the receiver of auto-stop notifications.
func (c *Controller) SetSink(sink character.NotificationSink) {
	if sink == nil {
		sink = character.NopSink{}
	}
	c.sink = sink
}

// SetEmoteResolver sets how emote names map to clip ids.
func (c *Controller) SetEmoteResolver(r EmoteResolver) {
	if r == nil {
		r = ParseEmote
	}
	c.emotes = r
}

// Character returns the animated character.
func (c *Controller) Character() character.Character { return c.ch }

// Time returns the current controller time in seconds.
func (c *Controller) Time() float32 { return c.time }

// Null returns the motion handed out for ids that failed to load.
func (c *Controller) Null() motion.Motion { return c.null }

// CreateMotion returns the live instance for id, creating and initializing
// one if needed. Ids that failed before, or fail now, yield the Null motion.
func (c *Controller) CreateMotion(id clip.ID) motion.Motion {
	if m, ok := c.all.Get(id); ok {
		return m
	}
	if c.registry.IsBad(id) {
		return c.null
	}
	m := c.registry.Create(id)
	if m == nil {
		c.logger.Warn("no constructor for motion", "motion", id)
		return c.null
	}

	switch m.Initialize(c.ch) {
	case motion.Failure:
		c.logger.Info("motion init failed", "motion", id)
		c.registry.MarkBad(id)
		release(m)
		return c.null
	case motion.Hold:
		c.loading.Set(id, m)
	case motion.Success:
		c.loaded.Set(id, m)
	}
	c.all.Set(id, m)
	return m
}

// StartMotion plays id, as if it had started offset seconds ago. It reports
// false when the id cannot be played.
func (c *Controller) StartMotion(id clip.ID, offset float32) bool {
	m := c.CreateMotion(id)
	if m == c.null {
		return false
	}
	if st := m.State(); st.Active && !st.Stopped {
		return true
	}
	c.logger.Debug("starting motion", "motion", id, "kind", m.Name(), "offset", offset)
	return c.activate(m, c.time-offset)
}

// StopMotionLocally stops id at the current controller time. Without
// immediate the motion eases out first. It reports false when id is not live.
func (c *Controller) StopMotionLocally(id clip.ID, immediate bool) bool {
	m, ok := c.all.Get(id)
	if !ok {
		return false
	}
	return c.stopInstance(m, immediate)
}

func (c *Controller) stopInstance(m motion.Motion, immediate bool) bool {
	st := m.State()
	if st.Active {
		if !st.Stopped {
			m.SetStopTime(c.time)
		}
		if immediate {
			c.deactivate(m)
		}
		return true
	}
	if _, ok := c.loading.Get(m.ID()); ok {
		st.Stopped = true
		return true
	}
	return false
}

func (c *Controller) activate(m motion.Motion, t float32) bool {
	id := m.ID()
	st := m.State()
	if _, ok := c.loading.Get(id); ok {
		// Starts once loaded.
		st.Stopped = false
		return true
	}

	st.Residual = m.Pose().Weight
	if d := m.Duration(); d != 0 && !m.Loop() {
		st.SendStopTime = t + max(d-m.EaseOut(), 0)
	} else {
		st.SendStopTime = never
	}

	c.active.Delete(id)
	c.active.Set(id, m)

	st.ActivationTime = t
	st.Stopped = false
	st.Active = true
	st.Phase = motion.EasingIn
	m.Activate(t)
	c.startEmote(m)
	m.Update(0, c.sig[1])
	return true
}

func (c *Controller) startEmote(m motion.Motion) {
	e, ok := m.(motion.Emoter)
	if !ok || e.Emote() == "" {
		return
	}
	id, ok := c.emotes(e.Emote())
	if !ok || id == m.ID() {
		c.logger.Debug("emote not resolved", "motion", m.ID(), "emote", e.Emote())
		return
	}
	if !c.IsMotionActive(id) {
		c.StartMotion(id, 0)
	}
}

func (c *Controller) deactivate(m motion.Motion) {
	st := m.State()
	st.Active = false
	st.Phase = motion.Deactivated
	m.Pose().Weight = 0
	m.Deactivate()
	c.active.Delete(m.ID())
}

// remove drops every trace of id.
func (c *Controller) remove(id clip.ID) {
	m, ok := c.all.Get(id)
	if !ok {
		return
	}
	c.stopInstance(m, true)
	c.loading.Delete(id)
	c.loaded.Delete(id)
	c.active.Delete(id)
	c.all.Delete(id)
	release(m)
}

func release(m motion.Motion) {
	if r, ok := m.(interface{ Release() }); ok {
		r.Release()
	}
}

// IsMotionActive reports whether id is in the active set.
func (c *Controller) IsMotionActive(id clip.ID) bool {
	m, ok := c.all.Get(id)
	return ok && m.State().Active
}

// IsMotionLoading reports whether id is waiting for its data.
func (c *Controller) IsMotionLoading(id clip.ID) bool {
	_, ok := c.loading.Get(id)
	return ok
}

// FindMotion returns the live instance for id.
func (c *Controller) FindMotion(id clip.ID) (motion.Motion, bool) {
	return c.all.Get(id)
}

// ActiveMotions returns the active motions, oldest activation first.
func (c *Controller) ActiveMotions() []motion.Motion {
	out := make([]motion.Motion, 0, c.active.Len())
	for el := c.active.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// FlushAll destroys every instance and restarts the active ones with their
// elapsed time preserved.
func (c *Controller) FlushAll() {
	type restart struct {
		id      clip.ID
		elapsed float32
	}
	var restarts []restart
	for el := c.active.Front(); el != nil; el = el.Next() {
		restarts = append(restarts, restart{el.Key, c.time - el.Value.State().ActivationTime})
	}

	for el := c.all.Front(); el != nil; el = el.Next() {
		if m := el.Value; m.State().Active {
			m.State().Active = false
			m.Pose().Weight = 0
			m.Deactivate()
		}
		release(el.Value)
	}
	c.all = orderedmap.NewOrderedMap[clip.ID, motion.Motion]()
	c.loading = orderedmap.NewOrderedMap[clip.ID, motion.Motion]()
	c.loaded = orderedmap.NewOrderedMap[clip.ID, motion.Motion]()
	c.active = orderedmap.NewOrderedMap[clip.ID, motion.Motion]()

	if bb := c.ch.Blackboard(); bb != nil {
		character.Clear(bb, character.HandPose)
	}

	c.logger.Debug("flushed motions", "restarting", len(restarts))
	for _, r := range restarts {
		c.StartMotion(r.id, r.elapsed)
	}
}

// Pause freezes controller time. Update keeps tracking the clock.
func (c *Controller) Pause() {
	if !c.paused {
		c.pauseTime = c.clock - c.timerStart
		c.paused = true
	}
}

// Unpause resumes from the time at which Pause was called.
func (c *Controller) Unpause() {
	if c.paused {
		c.timerStart = c.clock - c.pauseTime
		c.paused = false
	}
}

// IsPaused reports whether time is frozen.
func (c *Controller) IsPaused() bool { return c.paused }

// SetTimeFactor scales how fast controller time follows the clock.
func (c *Controller) SetTimeFactor(f float32) {
	elapsed := c.clock - c.timerStart
	if c.paused {
		elapsed = c.pauseTime
		c.pauseTime = 0
	}
	c.timeOffset += elapsed * c.timeFactor
	c.timerStart = c.clock
	c.timeFactor = f
}

// TimeFactor returns the playback speed.
func (c *Controller) TimeFactor() float32 { return c.timeFactor }

// SetTimeStep switches between continuous (0) and quantized updates.
// Timestamps of active motions snap down to the new grid.
func (c *Controller) SetTimeStep(step float32) {
	c.cfg.TimeStep = step
	c.stepCount = 0
	if step == 0 {
		return
	}
	snap := func(t float32) float32 { return math32.Floor(t/step) * step }
	for el := c.active.Front(); el != nil; el = el.Next() {
		m := el.Value
		st := m.State()
		st.ActivationTime = snap(st.ActivationTime)
		stopped := st.Stopped
		m.SetStopTime(snap(st.StopTime))
		st.Stopped = stopped
		st.SendStopTime = snap(st.SendStopTime)
	}
}

// TimeStep returns the quantum, 0 for continuous updates.
func (c *Controller) TimeStep() float32 { return c.cfg.TimeStep }

// Update advances the controller to the clock reading now and poses the
// skeleton.
func (c *Controller) Update(now time.Duration) {
	c.clock = float32(now.Seconds())
	if c.paused {
		return
	}

	t := c.timeOffset + (c.clock-c.timerStart)*c.timeFactor
	step := c.cfg.TimeStep
	var interp float32
	if step != 0 {
		interval := math32.Mod(t, step)
		quantum := max(0, int(math32.Floor((t-interval)/step))) + 1
		interp = interval / step
		if quantum == c.stepCount {
			c.blender.Interpolate(interp)
			return
		}
		// Land the previous quantum before computing the next.
		c.blender.Interpolate(1)
		c.stepCount = quantum
		c.lastTime = c.time
		// Animate ahead of the clock.
		c.time = float32(quantum) * step
	} else {
		c.lastTime = c.time
		c.time = t
	}
	c.blender.Clear()

	c.pollLoading()

	c.order = 0
	c.resetSignatures()
	c.updateMotions(pose.Additive)
	c.resetSignatures()
	c.updateMotions(pose.Normal)

	if step != 0 {
		c.blender.BlendAndCache(false)
		c.blender.Interpolate(interp)
	} else {
		c.blender.Apply()
	}
	c.hasRunOnce = true
	c.evict()
}

func (c *Controller) pollLoading() {
	for el := c.loading.Front(); el != nil; {
		id, m := el.Key, el.Value
		el = el.Next()

		switch m.Initialize(c.ch) {
		case motion.Success:
			c.loading.Delete(id)
			c.loaded.Set(id, m)
			if !m.State().Stopped {
				c.activate(m, c.time)
			}
		case motion.Failure:
			c.logger.Info("motion init failed", "motion", id)
			c.registry.MarkBad(id)
			c.loading.Delete(id)
			c.all.Delete(id)
			release(m)
		}
	}
}

// evict drops idle loaded instances beyond the configured limit, oldest first.
func (c *Controller) evict() {
	limit := c.cfg.MaxInstances
	if limit <= 0 || c.loaded.Len() <= limit {
		return
	}
	for el := c.loaded.Front(); el != nil && c.loaded.Len() > limit; {
		id, m := el.Key, el.Value
		el = el.Next()
		if !m.State().Active {
			c.remove(id)
		}
	}
}

func (c *Controller) resetSignatures() {
	n := c.ch.Skeleton().Len()
	for k := range c.sig {
		if len(c.sig[k]) != n {
			c.sig[k] = make([]uint8, n)
		} else {
			clear(c.sig[k])
		}
	}
	if len(c.lastSig) != n {
		c.lastSig = make([]uint8, n)
	}
}

func (c *Controller) updateMotions(mode pose.BlendMode) {
	clear(c.lastSig)
	for el := c.active.Front(); el != nil; {
		m := el.Value
		el = el.Next()
		if m.BlendMode() == mode {
			c.updateMotion(m)
		}
	}
}

// claim copies the rotation claims made so far into lastSig, then adds the
// claims of a full-weight motion. It reports whether m claimed anything new.
func (c *Controller) claim(m motion.Motion, weight float32) bool {
	copy(c.lastSig, c.sig[1])
	if weight < 1 {
		return true
	}
	sig := m.Signature()
	if !claims(sig[motion.SigPosition]) && !claims(sig[motion.SigRotation]) {
		// Nothing to cover; motions that only write the blackboard always run.
		return true
	}
	fresh := orInto(c.sig[0], sig[motion.SigPosition])
	if orInto(c.sig[1], sig[motion.SigRotation]) {
		fresh = true
	}
	return fresh
}

func claims(bits []uint8) bool {
	for _, b := range bits {
		if b != 0 {
			return true
		}
	}
	return false
}

func orInto(dst, src []uint8) bool {
	fresh := false
	for i, n := 0, min(len(dst), len(src)); i < n; i++ {
		if dst[i]|src[i] != dst[i] {
			dst[i] |= src[i]
			fresh = true
		}
	}
	return fresh
}

func (c *Controller) autoStop(m motion.Motion) {
	c.logger.Debug("motion stopped itself", "motion", m.ID(), "t", c.time)
	c.sink.OnMotionAutoStopped(m.ID())
	c.stopInstance(m, false)
}

// checkScheduledStop notifies once, on the first tick past the scheduled stop.
func (c *Controller) checkScheduledStop(m motion.Motion) {
	st := m.State()
	if c.time > st.SendStopTime && c.lastTime <= st.SendStopTime {
		c.autoStop(m)
	}
}

func (c *Controller) updateMotion(m motion.Motion) {
	st := m.State()
	p := m.Pose()
	now, last := c.time, c.lastTime
	dt := now - last

	// Fade by level of detail only once every motion has run, so the
	// character starts from a primed pose.
	if c.hasRunOnce && m.MinPixelArea() > c.ch.PixelArea() {
		st.Fade = mathx.Approach(st.Fade, 0, dt, c.cfg.FadeTimeConstant)
		if !st.Stopped {
			c.checkScheduledStop(m)
		}
		if st.Fade < minFadeWeight {
			if st.Stopped && now > st.StopTime+m.EaseOut() {
				c.deactivate(m)
			}
			return
		}
	} else {
		st.Fade = mathx.Approach(st.Fade, 1, dt, c.cfg.FadeTimeConstant)
	}

	var weight, local float32
	switch {
	case st.Stopped && now > st.StopTime+m.EaseOut():
		if last > st.StopTime {
			p.Weight = 0
			c.deactivate(m)
			return
		}
		// Skipped past the whole ease out: pose it at the stop once more,
		// drop it next tick.
		weight = st.Fade
		local = st.StopTime - st.ActivationTime

	case st.Stopped && now > st.StopTime:
		st.Phase = motion.EasingOut
		if last <= st.StopTime {
			st.Residual = p.Weight
		}
		if out := m.EaseOut(); out != 0 {
			weight = st.Fade * st.Residual * mathx.Smoothstep(1-(now-st.StopTime)/out)
		}
		local = now - st.ActivationTime

	case now > st.ActivationTime+m.EaseIn():
		st.Phase = motion.Steady
		weight = st.Fade
		c.checkScheduledStop(m)
		local = now - st.ActivationTime

	case now >= st.ActivationTime:
		st.Phase = motion.EasingIn
		if last < st.ActivationTime {
			st.Residual = p.Weight
		}
		weight = st.Fade
		if in := m.EaseIn(); in != 0 {
			weight *= st.Residual + (1-st.Residual)*mathx.Smoothstep((now-st.ActivationTime)/in)
		}
		local = now - st.ActivationTime
	}

	p.Weight = weight
	p.Mode = m.BlendMode()
	if !c.claim(m, weight) && c.cfg.SkipClaimed {
		return
	}

	if !m.Update(local, c.lastSig) {
		if !st.Stopped || st.StopTime > now {
			c.autoStop(m)
		}
	}
	// Blend one last time even when the motion asked to stop.
	c.blender.Add(p, c.order)
	c.order++
}
