package motion

import (
	"github.com/teslashibe/go-motion/internal/mathx"
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
)

// MaxWalkSpeed caps the playback rate read from the blackboard.
const MaxWalkSpeed = 10

// Walk is a keyframe motion whose playback rate follows the character's
// walk speed, so a looping gait cycle keeps the feet in step with travel.
type Walk struct {
	*Keyframe

	phase    float32
	lastTime float32
}

// NewWalk creates an unloaded walk motion for id.
func NewWalk(id clip.ID, src *Source) *Walk {
	return &Walk{Keyframe: NewKeyframe(id, src)}
}

func (w *Walk) Name() string { return "walk" }

// Phase is the gait time fed to the clip, in clip seconds.
func (w *Walk) Phase() float32 { return w.phase }

// Activate restarts the gait cycle.
func (w *Walk) Activate(t float32) {
	w.Keyframe.Activate(t)
	w.phase = 0
	w.lastTime = 0
}

// Update advances the cycle by the elapsed time scaled by the walk speed.
func (w *Walk) Update(t float32, mask []uint8) bool {
	// Time never runs the cycle backwards.
	dt := max(t-w.lastTime, 0)
	w.lastTime = max(t, w.lastTime)

	speed := float32(1)
	if w.ch != nil {
		if bb := w.ch.Blackboard(); bb != nil {
			if v, ok := character.Get(bb, character.WalkSpeed); ok {
				speed = v
			}
		}
	}
	w.phase += dt * mathx.Clamp(speed, 0, MaxWalkSpeed)
	return w.Keyframe.Update(w.phase, mask)
}
