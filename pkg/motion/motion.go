// Package motion defines the playable units a controller schedules.
//
// A Motion owns a pose (its joint states plus the weight assigned each tick)
// and exposes four lifecycle hooks. The controller owns the timing fields in
// State; variants only read them.
package motion

import (
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/pose"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// Status is the result of an Initialize call.
type Status int

const (
	// Success means the motion is ready to play.
	Success Status = iota
	// Hold means data is still arriving; call Initialize again later.
	Hold
	// Failure is terminal for the clip id.
	Failure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Hold:
		return "hold"
	default:
		return "failure"
	}
}

// Phase is a motion's position in its lifecycle.
type Phase int

const (
	NeedsFetch Phase = iota
	Holding
	Loaded
	EasingIn
	Steady
	EasingOut
	Deactivated
	Failed
)

var phaseNames = [...]string{
	"needs_fetch", "holding", "loaded", "easing_in",
	"steady", "easing_out", "deactivated", "failed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Signature records, per degree of freedom kind and per joint, the priority
// bits a motion claims. Indexed [kind][joint].
type Signature [3][]uint8

// DOF kinds indexing a Signature.
const (
	SigPosition = iota
	SigRotation
	SigScale
)

// Reset sizes every row to n joints and zeroes it.
func (s *Signature) Reset(n int) {
	for k := range s {
		if cap(s[k]) < n {
			s[k] = make([]uint8, n)
			continue
		}
		s[k] = s[k][:n]
		clear(s[k])
	}
}

// State is the scheduling bookkeeping the controller keeps per instance.
// Times are controller seconds.
type State struct {
	Phase   Phase
	Active  bool
	Stopped bool

	ActivationTime float32
	StopTime       float32
	// SendStopTime is when a non-looping motion should stop on its own.
	SendStopTime float32

	Residual float32
	Fade     float32
}

// Motion is one playable instance bound to one character.
type Motion interface {
	ID() clip.ID
	Name() string
	Priority() skeleton.Priority
	BlendMode() pose.BlendMode
	Loop() bool
	Duration() float32
	EaseIn() float32
	EaseOut() float32
	MinPixelArea() float32

	Pose() *pose.Pose
	Signature() *Signature
	State() *State

	// SetStopTime marks the motion stopped at controller time t.
	SetStopTime(t float32)

	// Initialize prepares the motion for ch. It is polled until it stops
	// returning Hold.
	Initialize(ch character.Character) Status
	// Activate runs when the controller starts the motion.
	Activate(t float32)
	// Update evaluates the motion at t seconds since activation. mask holds
	// the rotation signature claimed by earlier motions. Returning false
	// asks the controller to stop the motion.
	Update(t float32, mask []uint8) bool
	// Deactivate runs when the controller drops the motion.
	Deactivate()
}

// Emoter is implemented by motions that start a secondary clip when they
// activate.
type Emoter interface {
	Emote() string
}

// Base carries the fields every variant shares.
type Base struct {
	id    clip.ID
	pose  pose.Pose
	sig   Signature
	state State
}

// NewBase returns a stopped, inactive base for id.
func NewBase(id clip.ID) Base {
	return Base{
		id:    id,
		state: State{Stopped: true, Fade: 1},
	}
}

func (b *Base) ID() clip.ID           { return b.id }
func (b *Base) Pose() *pose.Pose      { return &b.pose }
func (b *Base) Signature() *Signature { return &b.sig }
func (b *Base) State() *State         { return &b.state }

// SetStopTime marks the motion stopped at t.
func (b *Base) SetStopTime(t float32) {
	b.state.StopTime = t
	b.state.Stopped = true
}
