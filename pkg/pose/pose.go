// Package pose blends the joint contributions of many motions into one
// skeleton pose.
package pose

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// Usage marks which degrees of freedom a joint state drives.
type Usage uint8

const (
	UsePosition Usage = 1 << iota
	UseRotation
	UseScale
)

// Has reports whether all bits of o are set.
func (u Usage) Has(o Usage) bool { return u&o == o }

// BlendMode selects how a pose combines with the others.
type BlendMode uint8

const (
	// Normal poses are weighted into the priority accumulation.
	Normal BlendMode = iota
	// Additive poses are layered on top of the accumulated result.
	Additive
)

func (m BlendMode) String() string {
	if m == Additive {
		return "additive"
	}
	return "normal"
}

// JointState is one motion's target for one joint.
type JointState struct {
	Joint    skeleton.JointIndex
	Usage    Usage
	Priority skeleton.Priority

	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// NewJointState returns a neutral state for j.
func NewJointState(j skeleton.JointIndex, usage Usage, priority skeleton.Priority) JointState {
	return JointState{
		Joint:    j,
		Usage:    usage,
		Priority: priority,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Pose is the set of joint states owned by one motion instance plus the
// weight the controller assigned it this tick.
type Pose struct {
	States []JointState
	Weight float32
	Mode   BlendMode
}

// Add appends a state and returns its index.
func (p *Pose) Add(s JointState) int {
	p.States = append(p.States, s)
	return len(p.States) - 1
}

// Reset drops every state.
func (p *Pose) Reset() {
	p.States = p.States[:0]
	p.Weight = 0
}

// Find returns the index of the state driving j, or -1.
func (p *Pose) Find(j skeleton.JointIndex) int {
	for i := range p.States {
		if p.States[i].Joint == j {
			return i
		}
	}
	return -1
}
