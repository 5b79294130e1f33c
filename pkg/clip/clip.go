// Package clip holds immutable keyframe animation data.
//
// A Clip is decoded once per clip id and then shared read-only by every
// motion instance that plays it, across every character. Tracks are keyed by
// joint name so the same clip binds to any skeleton that has those joints.
package clip

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/teslashibe/go-motion/pkg/curve"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// ID identifies a clip asset.
type ID = uuid.UUID

// Format limits.
const (
	Version    = 1
	SubVersion = 0

	MaxDuration     = 60
	MaxJoints       = 216
	MaxConstraints  = 10
	MaxChainLength  = 4
	MaxPelvisOffset = 5

	volumeNameLen = 16
)

// GroundVolume is the target volume name that selects the ground as target.
const GroundVolume = "GROUND"

// Joint names a clip may never animate.
var reservedJoints = map[string]bool{
	"mScreen": true,
	"mRoot":   true,
}

// HandPose is the hand shape a clip requests while it plays.
type HandPose uint32

const (
	HandSpread HandPose = iota
	HandRelaxed
	HandPoint
	HandFist
	HandRelaxedLeft
	HandPointLeft
	HandFistLeft
	HandRelaxedRight
	HandPointRight
	HandFistRight
	HandSaluteRight
	HandTyping
	HandPeaceRight
	HandPalmRight
	NumHandPoses
)

var handPoseNames = [...]string{
	"spread", "relaxed", "point", "fist",
	"relaxed_l", "point_l", "fist_l",
	"relaxed_r", "point_r", "fist_r",
	"salute_r", "typing", "peace_r", "palm_r",
}

// String returns the hand pose name.
func (h HandPose) String() string {
	if int(h) < len(handPoseNames) {
		return handPoseNames[h]
	}
	return "unknown"
}

// ConstraintType selects how the chain end relates to the target.
type ConstraintType uint8

const (
	// Point pulls the source onto the target point.
	Point ConstraintType = iota
	// Plane pulls the source onto the plane through the target.
	Plane
	numConstraintTypes
)

// TargetType selects what the constraint reaches for.
type TargetType uint8

const (
	// TargetBody aims at another collision volume.
	TargetBody TargetType = iota
	// TargetGround aims at the ground below the source.
	TargetGround
)

// ConstraintDesc describes one positional constraint carried by a clip.
type ConstraintDesc struct {
	ChainLength int
	Type        ConstraintType

	SourceVolume string
	SourceOffset mgl32.Vec3

	TargetType   TargetType
	TargetVolume string
	TargetOffset mgl32.Vec3
	TargetDir    mgl32.Vec3

	EaseInStart  float32
	EaseInStop   float32
	EaseOutStart float32
	EaseOutStop  float32
}

// UsesTargetDir reports whether the descriptor carries a target direction.
func (c ConstraintDesc) UsesTargetDir() bool {
	return c.TargetDir != (mgl32.Vec3{})
}

// JointTrack holds the curves animating a single named joint.
type JointTrack struct {
	Name     string
	Priority skeleton.Priority

	Rotation curve.RotationCurve
	Position curve.VectorCurve
	Scale    curve.VectorCurve
}

// HasRotation reports whether the track drives rotation.
func (t *JointTrack) HasRotation() bool { return t.Rotation.Len() > 0 }

// HasPosition reports whether the track drives position.
func (t *JointTrack) HasPosition() bool { return t.Position.Len() > 0 }

// HasScale reports whether the track drives scale.
func (t *JointTrack) HasScale() bool { return t.Scale.Len() > 0 }

// Clip is immutable animation data shared by all instances of a clip id.
type Clip struct {
	ID ID

	BasePriority skeleton.Priority
	MaxPriority  skeleton.Priority

	Duration float32
	Loop     bool
	LoopIn   float32
	LoopOut  float32
	EaseIn   float32
	EaseOut  float32

	// EmoteName names a secondary clip started alongside this one.
	EmoteName string
	HandPose  HandPose

	Joints      []JointTrack
	Constraints []ConstraintDesc

	// Digest is the xxh3 hash of the encoded bytes, zero for clips built in memory.
	Digest uint64
}

// Finalize derives MaxPriority, fills empty-curve defaults and, for looping
// clips, attaches loop-in keys to every curve. Call it once after building a
// clip by hand; Decode and FromGLTF already do.
func (c *Clip) Finalize() {
	c.MaxPriority = c.BasePriority
	for i := range c.Joints {
		j := &c.Joints[i]
		if j.Priority != skeleton.UseMotionPriority && j.Priority > c.MaxPriority {
			c.MaxPriority = j.Priority
		}
		j.Scale.Empty = mgl32.Vec3{1, 1, 1}
		if c.Loop && c.Duration > 0 {
			if j.HasRotation() {
				j.Rotation = j.Rotation.WithLoopIn(c.LoopIn, c.Duration)
			}
			if j.HasPosition() {
				j.Position = j.Position.WithLoopIn(c.LoopIn, c.Duration)
			}
			if j.HasScale() {
				j.Scale = j.Scale.WithLoopIn(c.LoopIn, c.Duration)
			}
		}
	}
}

// JointPriority resolves a track's effective priority.
func (c *Clip) JointPriority(t *JointTrack) skeleton.Priority {
	if t.Priority == skeleton.UseMotionPriority {
		return c.BasePriority
	}
	return t.Priority
}

// Track returns the track for a joint name, or nil.
func (c *Clip) Track(name string) *JointTrack {
	for i := range c.Joints {
		if c.Joints[i].Name == name {
			return &c.Joints[i]
		}
	}
	return nil
}
