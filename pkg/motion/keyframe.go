package motion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/pkg/asset"
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/constraint"
	"github.com/teslashibe/go-motion/pkg/pose"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// KeyframeMinPixelArea is the on-screen area below which keyframe motions
// fade out.
const KeyframeMinPixelArea = 40

// DefaultFetchTimeout bounds a single clip fetch.
const DefaultFetchTimeout = 30 * time.Second

// Source supplies clip data to keyframe motions.
type Source struct {
	Fetcher asset.Fetcher
	// Cache defaults to clip.Shared.
	Cache   *clip.Cache
	Timeout time.Duration
}

func (s *Source) cache() *clip.Cache {
	if s == nil || s.Cache == nil {
		return clip.Shared
	}
	return s.Cache
}

func (s *Source) timeout() time.Duration {
	if s == nil || s.Timeout <= 0 {
		return DefaultFetchTimeout
	}
	return s.Timeout
}

// Keyframe returns a constructor-compatible keyframe motion for id.
func (s *Source) Keyframe(id clip.ID) Motion { return NewKeyframe(id, s) }

// Walk returns a constructor-compatible walk motion for id.
func (s *Source) Walk(id clip.ID) Motion { return NewWalk(id, s) }

type assetStatus int

const (
	assetNeedsFetch assetStatus = iota
	assetFetching
	assetFailed
	assetLoaded
)

type fetchResult struct {
	data []byte
	err  error
}

type binding struct {
	track int
	state int
}

// Keyframe plays a clip. The clip is fetched at most once per instance and
// shared through the cache with every other instance of the same id.
type Keyframe struct {
	Base

	src    *Source
	ch     character.Character
	logger *slog.Logger

	status assetStatus
	mu     sync.Mutex
	result *fetchResult

	ref  *clip.Ref
	clip *clip.Clip

	bindings    []binding
	serial      uint32
	constraints []*constraint.Runtime

	lastLooped float32
	lastUpdate float32
}

// NewKeyframe creates an unloaded keyframe motion for id.
func NewKeyframe(id clip.ID, src *Source) *Keyframe {
	b := NewBase(id)
	b.state.Phase = NeedsFetch
	return &Keyframe{
		Base:   b,
		src:    src,
		logger: log.With("component", "motion", "clip", id),
	}
}

func (k *Keyframe) Name() string { return "keyframe" }

// Clip returns the loaded clip, or nil.
func (k *Keyframe) Clip() *clip.Clip { return k.clip }

// Constraints returns the bound constraint runtimes.
func (k *Keyframe) Constraints() []*constraint.Runtime { return k.constraints }

func (k *Keyframe) Priority() skeleton.Priority {
	if k.clip == nil {
		return skeleton.Low
	}
	return k.clip.BasePriority
}

func (k *Keyframe) BlendMode() pose.BlendMode { return pose.Normal }

func (k *Keyframe) Loop() bool {
	return k.clip != nil && k.clip.Loop
}

func (k *Keyframe) Duration() float32 {
	if k.clip == nil {
		return 0
	}
	return k.clip.Duration
}

func (k *Keyframe) EaseIn() float32 {
	if k.clip == nil {
		return 0
	}
	return k.clip.EaseIn
}

func (k *Keyframe) EaseOut() float32 {
	if k.clip == nil {
		return 0
	}
	return k.clip.EaseOut
}

func (k *Keyframe) MinPixelArea() float32 { return KeyframeMinPixelArea }

// Emote names the secondary clip to start on activation.
func (k *Keyframe) Emote() string {
	if k.clip == nil {
		return ""
	}
	return k.clip.EmoteName
}

// Initialize serves the clip from the cache or requests it from the
// fetcher. While the fetch is outstanding it returns Hold.
func (k *Keyframe) Initialize(ch character.Character) Status {
	k.ch = ch

	switch k.status {
	case assetLoaded:
		return Success
	case assetFailed:
		return Failure
	case assetFetching:
		k.mu.Lock()
		res := k.result
		k.result = nil
		k.mu.Unlock()
		if res == nil {
			return Hold
		}
		if res.err != nil {
			return k.fail(res.err)
		}
		c, err := clip.Decode(k.id, res.data)
		if err != nil {
			return k.fail(err)
		}
		k.logger.Debug("clip decoded", "bytes", len(res.data), "joints", len(c.Joints))
		k.load(k.src.cache().Add(c))
		return Success
	}

	if ref, ok := k.src.cache().Acquire(k.id); ok {
		k.load(ref)
		return Success
	}
	if k.src == nil || k.src.Fetcher == nil {
		return k.fail(fmt.Errorf("%w: no fetcher for %s", clip.ErrFetch, k.id))
	}

	k.status = assetFetching
	k.state.Phase = Holding
	k.logger.Debug("requesting clip")
	ctx, cancel := context.WithTimeout(context.Background(), k.src.timeout())
	k.src.Fetcher.Fetch(ctx, k.id, func(data []byte, err error) {
		cancel()
		k.mu.Lock()
		k.result = &fetchResult{data: data, err: err}
		k.mu.Unlock()
	})
	return Hold
}

func (k *Keyframe) fail(err error) Status {
	k.logger.Warn("clip load failed", "error", err)
	k.status = assetFailed
	k.state.Phase = Failed
	return Failure
}

func (k *Keyframe) load(ref *clip.Ref) {
	k.ref = ref
	k.clip = ref.Clip()
	k.status = assetLoaded
	k.state.Phase = Loaded
	k.bind()
}

// bind maps clip tracks onto the character's skeleton. Missing joints leave
// their track inert.
func (k *Keyframe) bind() {
	sk := k.ch.Skeleton()
	c := k.clip

	weight := k.pose.Weight
	k.pose.Reset()
	k.pose.Weight = weight
	k.pose.Mode = k.BlendMode()
	k.bindings = k.bindings[:0]
	k.sig.Reset(sk.Len())
	k.serial = sk.Serial()

	gaps := 0
	for i := range c.Joints {
		t := &c.Joints[i]
		j, ok := sk.Find(t.Name)
		if !ok {
			gaps++
			k.logger.Debug("track left unbound", "error", fmt.Errorf("%w: %s", ErrBindingGap, t.Name))
			continue
		}
		prio := c.JointPriority(t)
		bits := prio.Signature()
		var usage pose.Usage
		if t.HasPosition() {
			usage |= pose.UsePosition
			k.sig[SigPosition][j] |= bits
		}
		if t.HasRotation() {
			usage |= pose.UseRotation
			k.sig[SigRotation][j] |= bits
		}
		if t.HasScale() {
			usage |= pose.UseScale
			k.sig[SigScale][j] |= bits
		}
		idx := k.pose.Add(pose.NewJointState(j, usage, prio))
		k.bindings = append(k.bindings, binding{track: i, state: idx})
	}

	k.constraints = k.constraints[:0]
	for _, d := range c.Constraints {
		r, err := constraint.New(d, k.ch, &k.pose)
		if err != nil {
			k.logger.Warn("constraint dropped", "source", d.SourceVolume, "error", err)
			continue
		}
		k.constraints = append(k.constraints, r)
	}
	k.logger.Debug("clip bound", "serial", k.serial, "bound", len(k.bindings), "gaps", gaps, "constraints", len(k.constraints))
}

// Activate restarts the loop cursor.
func (k *Keyframe) Activate(float32) {
	k.lastLooped = 0
}

// Update evaluates every bound track at t and applies the constraints.
func (k *Keyframe) Update(t float32, mask []uint8) bool {
	c := k.clip
	if c == nil {
		return false
	}
	if k.ch.Skeleton().Serial() != k.serial {
		k.bind()
	}

	t = max(0, t)
	lt := k.loopTime(t)
	k.applyKeyframes(lt)
	for _, r := range k.constraints {
		r.Apply(lt, k.ch, &k.pose, mask, c.BasePriority)
	}
	k.lastUpdate = t
	return lt <= c.Duration
}

// loopTime maps time since activation onto clip time.
func (k *Keyframe) loopTime(t float32) float32 {
	c := k.clip
	switch {
	case !c.Loop:
		k.lastLooped = t
	case c.Duration == 0:
		k.lastLooped = 0
	case k.state.Stopped:
		// Play out the tail of the clip instead of wrapping again.
		k.lastLooped = min(c.Duration, k.lastLooped+t-k.lastUpdate)
	case t > c.LoopOut:
		if span := c.LoopOut - c.LoopIn; span == 0 {
			k.lastLooped = c.LoopOut
		} else {
			k.lastLooped = c.LoopIn + math32.Mod(t-c.LoopOut, span)
		}
	default:
		k.lastLooped = t
	}
	return k.lastLooped
}

func (k *Keyframe) applyKeyframes(lt float32) {
	c := k.clip
	for _, b := range k.bindings {
		track := &c.Joints[b.track]
		s := &k.pose.States[b.state]
		if s.Usage.Has(pose.UseRotation) {
			s.Rotation = track.Rotation.Eval(lt, c.Duration)
		}
		if s.Usage.Has(pose.UsePosition) {
			s.Position = track.Position.Eval(lt, c.Duration)
		}
		if s.Usage.Has(pose.UseScale) {
			s.Scale = track.Scale.Eval(lt, c.Duration)
		}
	}

	bb := k.ch.Blackboard()
	if bb == nil {
		return
	}
	if prio, ok := character.Get(bb, character.HandPosePriority); !ok || c.MaxPriority >= prio {
		character.Set(bb, character.HandPose, c.HandPose)
		character.Set(bb, character.HandPosePriority, c.MaxPriority)
	}
}

// SetStopTime extends the stop of a looping clip so the current loop
// finishes and the tail past the loop-out point plays before easing out.
func (k *Keyframe) SetStopTime(t float32) {
	k.Base.SetStopTime(t)
	c := k.clip
	if c == nil || !c.Loop || c.LoopOut == c.Duration {
		return
	}
	var frac float32
	if span := c.LoopOut - c.LoopIn; span != 0 {
		frac = math32.Mod(t-(k.state.ActivationTime+c.LoopIn), span)
	}
	k.state.StopTime = max(t, t-frac+(c.Duration-c.LoopIn)-c.EaseOut)
}

// Deactivate releases every constraint.
func (k *Keyframe) Deactivate() {
	for _, r := range k.constraints {
		r.Deactivate()
	}
}

// Release drops the cache reference. The motion must not be used after.
func (k *Keyframe) Release() {
	if k.ref != nil {
		k.ref.Release()
	}
}
