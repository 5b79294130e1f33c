// Package curve evaluates keyframe tracks.
//
// Curves are immutable once built and evaluation is a pure function of time,
// so one curve can be shared by every motion instance playing its clip.
package curve

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/teslashibe/go-motion/internal/mathx"
)

// Interpolation selects how values between keys are produced.
type Interpolation uint8

const (
	// Step holds the earlier key until the next key time.
	Step Interpolation = iota
	// Linear lerps vectors and nlerps rotations.
	Linear
	// Spline currently evaluates exactly like Linear.
	Spline
)

// String returns the interpolation name.
func (i Interpolation) String() string {
	switch i {
	case Step:
		return "step"
	case Linear:
		return "linear"
	case Spline:
		return "spline"
	default:
		return "unknown"
	}
}

// VectorKey is a position or scale sample.
type VectorKey struct {
	Time  float32
	Value mgl32.Vec3
}

// RotationKey is a rotation sample.
type RotationKey struct {
	Time  float32
	Value mgl32.Quat
}

// VectorCurve is a sorted sequence of vector keys.
type VectorCurve struct {
	Interp Interpolation
	Keys   []VectorKey

	// Empty is returned when the curve has no keys.
	Empty mgl32.Vec3

	// LoopIn, when set, is treated as an implicit key at the clip duration.
	LoopIn *VectorKey
}

// RotationCurve is a sorted sequence of rotation keys.
type RotationCurve struct {
	Interp Interpolation
	Keys   []RotationKey

	// LoopIn, when set, is treated as an implicit key at the clip duration.
	LoopIn *RotationKey
}

// NewVectorCurve sorts keys by time and collapses duplicate times, keeping the
// last key given for a time. It reports how many keys were dropped.
func NewVectorCurve(interp Interpolation, keys []VectorKey) (VectorCurve, int) {
	sorted := make([]VectorKey, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	out := sorted[:0]
	for _, k := range sorted {
		if n := len(out); n > 0 && out[n-1].Time == k.Time {
			out[n-1] = k
			continue
		}
		out = append(out, k)
	}
	return VectorCurve{Interp: interp, Keys: out}, len(keys) - len(out)
}

// NewRotationCurve sorts keys by time and collapses duplicate times, keeping
// the last key given for a time. It reports how many keys were dropped.
func NewRotationCurve(interp Interpolation, keys []RotationKey) (RotationCurve, int) {
	sorted := make([]RotationKey, len(keys))
	copy(sorted, keys)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	out := sorted[:0]
	for _, k := range sorted {
		if n := len(out); n > 0 && out[n-1].Time == k.Time {
			out[n-1] = k
			continue
		}
		out = append(out, k)
	}
	return RotationCurve{Interp: interp, Keys: out}, len(keys) - len(out)
}

// Len returns the number of explicit keys.
func (c *VectorCurve) Len() int {
	return len(c.Keys)
}

// Len returns the number of explicit keys.
func (c *RotationCurve) Len() int {
	return len(c.Keys)
}

// Eval returns the curve value at time t for a clip of the given duration.
func (c *VectorCurve) Eval(t, duration float32) mgl32.Vec3 {
	n := len(c.Keys)
	if n == 0 {
		return c.Empty
	}

	right := sort.Search(n, func(i int) bool { return c.Keys[i].Time >= t })
	switch {
	case right == n:
		last := c.Keys[n-1]
		if c.LoopIn == nil || last.Time >= duration {
			return last.Value
		}
		return c.interp(last, VectorKey{Time: duration, Value: c.LoopIn.Value}, t)
	case right == 0 || c.Keys[right].Time == t:
		return c.Keys[right].Value
	default:
		return c.interp(c.Keys[right-1], c.Keys[right], t)
	}
}

func (c *VectorCurve) interp(before, after VectorKey, t float32) mgl32.Vec3 {
	if after.Time <= before.Time {
		return after.Value
	}
	if c.Interp == Step {
		return before.Value
	}
	u := (t - before.Time) / (after.Time - before.Time)
	return mathx.LerpVec(before.Value, after.Value, u)
}

// Eval returns the curve rotation at time t for a clip of the given duration.
func (c *RotationCurve) Eval(t, duration float32) mgl32.Quat {
	n := len(c.Keys)
	if n == 0 {
		return mgl32.QuatIdent()
	}

	right := sort.Search(n, func(i int) bool { return c.Keys[i].Time >= t })
	switch {
	case right == n:
		last := c.Keys[n-1]
		if c.LoopIn == nil || last.Time >= duration {
			return last.Value
		}
		return c.interp(last, RotationKey{Time: duration, Value: c.LoopIn.Value}, t)
	case right == 0 || c.Keys[right].Time == t:
		return c.Keys[right].Value
	default:
		return c.interp(c.Keys[right-1], c.Keys[right], t)
	}
}

func (c *RotationCurve) interp(before, after RotationKey, t float32) mgl32.Quat {
	if after.Time <= before.Time {
		return after.Value
	}
	if c.Interp == Step {
		return before.Value
	}
	u := (t - before.Time) / (after.Time - before.Time)
	return mathx.Nlerp(before.Value, after.Value, u)
}

// WithLoopIn returns a copy of the curve whose implicit end key repeats the
// value at loopIn, so playback past the last key blends back toward the loop start.
func (c VectorCurve) WithLoopIn(loopIn, duration float32) VectorCurve {
	k := VectorKey{Time: duration, Value: c.Eval(loopIn, duration)}
	c.LoopIn = &k
	return c
}

// WithLoopIn returns a copy of the curve whose implicit end key repeats the
// rotation at loopIn.
func (c RotationCurve) WithLoopIn(loopIn, duration float32) RotationCurve {
	k := RotationKey{Time: duration, Value: c.Eval(loopIn, duration)}
	c.LoopIn = &k
	return c
}
