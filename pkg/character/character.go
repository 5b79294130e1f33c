// Package character defines what the motion engine needs from the object it
// animates.
package character

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// Character is the animated object owning a skeleton.
type Character interface {
	Skeleton() *skeleton.Skeleton

	// Ground returns the ground point below pos and its normal.
	Ground(pos mgl32.Vec3) (point, normal mgl32.Vec3)

	Position() mgl32.Vec3
	Rotation() mgl32.Quat
	Velocity() mgl32.Vec3
	AngularVelocity() mgl32.Vec3

	// TimeDilation scales simulation time, 1 for normal speed.
	TimeDilation() float32

	// PixelArea is the on-screen area used for level-of-detail decisions.
	PixelArea() float32

	Blackboard() *Blackboard
}

// NotificationSink receives lifecycle events the embedding system must
// relay, such as telling peers a motion ended on its own.
type NotificationSink interface {
	OnMotionAutoStopped(id clip.ID)
}

// SinkFunc adapts a function to NotificationSink.
type SinkFunc func(id clip.ID)

// OnMotionAutoStopped calls f.
func (f SinkFunc) OnMotionAutoStopped(id clip.ID) { f(id) }

// NopSink discards notifications.
type NopSink struct{}

// OnMotionAutoStopped does nothing.
func (NopSink) OnMotionAutoStopped(clip.ID) {}
