package motion

import (
	"github.com/chewxy/math32"
	"github.com/google/uuid"

	"github.com/teslashibe/go-motion/internal/mathx"
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/pose"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// WalkAdjustID is the well-known id of the walk speed publisher.
var WalkAdjustID = uuid.MustParse("6f1e7b2a-5c0d-4b8e-9a43-2d7f10c8e5b1")

const (
	// WalkReferenceSpeed is the ground speed, in m/s, at which gait clips
	// play at their authored rate.
	WalkReferenceSpeed = 1.0

	walkSpeedTimeConstant = 0.2
)

// WalkAdjust publishes the character's ground speed to the blackboard as a
// playback rate for Walk motions. It poses no joints.
type WalkAdjust struct {
	Base

	ch       character.Character
	speed    float32
	lastTime float32
	primed   bool
}

// NewWalkAdjust creates a walk speed publisher.
func NewWalkAdjust(id clip.ID) *WalkAdjust {
	return &WalkAdjust{Base: NewBase(id)}
}

// RegisterWalkAdjust binds WalkAdjustID to the publisher in r.
func RegisterWalkAdjust(r *Registry) error {
	return r.Register(WalkAdjustID, func(id clip.ID) Motion { return NewWalkAdjust(id) })
}

func (w *WalkAdjust) Name() string                { return "walk_adjust" }
func (w *WalkAdjust) Priority() skeleton.Priority { return skeleton.High }
func (w *WalkAdjust) BlendMode() pose.BlendMode   { return pose.Normal }
func (w *WalkAdjust) Loop() bool                  { return true }
func (w *WalkAdjust) Duration() float32           { return 0 }
func (w *WalkAdjust) EaseIn() float32             { return 0 }
func (w *WalkAdjust) EaseOut() float32            { return 0 }
func (w *WalkAdjust) MinPixelArea() float32       { return 0 }

func (w *WalkAdjust) Initialize(ch character.Character) Status {
	w.ch = ch
	w.Pose().Reset()
	w.Signature().Reset(ch.Skeleton().Len())
	return Success
}

// Activate snaps the published rate to the current speed on the next update.
func (w *WalkAdjust) Activate(float32) {
	w.primed = false
	w.lastTime = 0
}

// Update smooths the horizontal ground speed toward the published rate.
func (w *WalkAdjust) Update(t float32, _ []uint8) bool {
	if w.ch == nil {
		return true
	}
	v := w.ch.Velocity()
	target := mathx.Clamp(math32.Hypot(v.X(), v.Y())/WalkReferenceSpeed, 0, MaxWalkSpeed)
	if !w.primed {
		w.speed = target
		w.primed = true
	} else if dt := t - w.lastTime; dt > 0 {
		w.speed = mathx.Approach(w.speed, target, dt, walkSpeedTimeConstant)
	}
	w.lastTime = max(t, w.lastTime)
	if bb := w.ch.Blackboard(); bb != nil {
		character.Set(bb, character.WalkSpeed, w.speed)
	}
	return true
}

// Deactivate withdraws the published rate so walks fall back to authored speed.
func (w *WalkAdjust) Deactivate() {
	if w.ch == nil {
		return
	}
	if bb := w.ch.Blackboard(); bb != nil {
		character.Clear(bb, character.WalkSpeed)
	}
}
