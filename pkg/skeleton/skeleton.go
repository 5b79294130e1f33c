// Package skeleton stores a character's joint hierarchy as an index-addressed arena.
//
// Joints are appended parent-first and referenced everywhere else by JointIndex,
// never by pointer, so motions survive a rebuild by re-resolving their indices
// when Serial changes.
package skeleton

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// JointIndex addresses a joint inside a Skeleton.
type JointIndex int

// NoJoint marks an unresolved binding or the parent of a root joint.
const NoJoint JointIndex = -1

// Valid reports whether the index refers to a joint.
func (i JointIndex) Valid() bool {
	return i >= 0
}

// Transform is a local position/rotation/scale triple.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// Identity returns the neutral transform.
func Identity() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// At returns an identity transform translated to pos.
func At(pos mgl32.Vec3) Transform {
	t := Identity()
	t.Position = pos
	return t
}

type joint struct {
	name   string
	parent JointIndex
	bind   Transform
	local  Transform

	worldPos mgl32.Vec3
	worldRot mgl32.Quat
}

// Volume is a named reference frame attached to a joint, used as a
// constraint source or target.
type Volume struct {
	Name   string
	Joint  JointIndex
	Offset Transform
}

// Skeleton is an ordered joint tree. Parents always precede their children.
type Skeleton struct {
	joints  []joint
	byName  map[string]JointIndex
	volumes []Volume
	volName map[string]int

	serial uint32
	dirty  bool
}

// New creates an empty skeleton.
func New() *Skeleton {
	return &Skeleton{
		byName:  make(map[string]JointIndex),
		volName: make(map[string]int),
		serial:  1,
	}
}

// AddJoint appends a joint. parent must already exist or be NoJoint.
// The bind transform is also the initial local transform.
func (s *Skeleton) AddJoint(name string, parent JointIndex, bind Transform) (JointIndex, error) {
	if _, ok := s.byName[name]; ok {
		return NoJoint, fmt.Errorf("%w: %s", ErrDuplicateJoint, name)
	}
	if parent != NoJoint && (parent < 0 || int(parent) >= len(s.joints)) {
		return NoJoint, fmt.Errorf("%w: %d for %s", ErrBadParent, parent, name)
	}
	idx := JointIndex(len(s.joints))
	s.joints = append(s.joints, joint{
		name:   name,
		parent: parent,
		bind:   bind,
		local:  bind,
	})
	s.byName[name] = idx
	s.serial++
	s.dirty = true
	return idx, nil
}

// AddVolume attaches a named collision volume to a joint.
func (s *Skeleton) AddVolume(name string, j JointIndex, offset Transform) (int, error) {
	if !s.has(j) {
		return -1, fmt.Errorf("%w: %d for volume %s", ErrUnknownJoint, j, name)
	}
	if _, ok := s.volName[name]; ok {
		return -1, fmt.Errorf("%w: volume %s", ErrDuplicateJoint, name)
	}
	id := len(s.volumes)
	s.volumes = append(s.volumes, Volume{Name: name, Joint: j, Offset: offset})
	s.volName[name] = id
	s.serial++
	return id, nil
}

// Rebuild marks a structural change such as a shape change. Every binding
// made against the previous serial must be re-resolved.
func (s *Skeleton) Rebuild() {
	s.serial++
	s.dirty = true
}

// Serial changes whenever the joint or volume layout changes.
func (s *Skeleton) Serial() uint32 {
	return s.serial
}

// Len returns the number of joints.
func (s *Skeleton) Len() int {
	return len(s.joints)
}

// Find looks up a joint by name.
func (s *Skeleton) Find(name string) (JointIndex, bool) {
	idx, ok := s.byName[name]
	return idx, ok
}

// FindVolume looks up a collision volume by name.
func (s *Skeleton) FindVolume(name string) (int, bool) {
	id, ok := s.volName[name]
	return id, ok
}

// Volume returns the volume with the given id.
func (s *Skeleton) Volume(id int) Volume {
	return s.volumes[id]
}

// NumVolumes returns the number of collision volumes.
func (s *Skeleton) NumVolumes() int {
	return len(s.volumes)
}

// Name returns the joint's name.
func (s *Skeleton) Name(j JointIndex) string {
	return s.joints[j].name
}

// Parent returns the joint's parent, or NoJoint for a root.
func (s *Skeleton) Parent(j JointIndex) JointIndex {
	return s.joints[j].parent
}

// Bind returns the joint's rest transform.
func (s *Skeleton) Bind(j JointIndex) Transform {
	return s.joints[j].bind
}

// Local returns the joint's current local transform.
func (s *Skeleton) Local(j JointIndex) Transform {
	return s.joints[j].local
}

// LocalPosition returns the joint's local position.
func (s *Skeleton) LocalPosition(j JointIndex) mgl32.Vec3 {
	return s.joints[j].local.Position
}

// LocalRotation returns the joint's local rotation.
func (s *Skeleton) LocalRotation(j JointIndex) mgl32.Quat {
	return s.joints[j].local.Rotation
}

// LocalScale returns the joint's local scale.
func (s *Skeleton) LocalScale(j JointIndex) mgl32.Vec3 {
	return s.joints[j].local.Scale
}

// SetLocalPosition sets the joint's local position.
func (s *Skeleton) SetLocalPosition(j JointIndex, p mgl32.Vec3) {
	s.joints[j].local.Position = p
	s.dirty = true
}

// SetLocalRotation sets the joint's local rotation.
func (s *Skeleton) SetLocalRotation(j JointIndex, q mgl32.Quat) {
	s.joints[j].local.Rotation = q
	s.dirty = true
}

// SetLocalScale sets the joint's local scale.
func (s *Skeleton) SetLocalScale(j JointIndex, v mgl32.Vec3) {
	s.joints[j].local.Scale = v
	s.dirty = true
}

// ResetToBind restores every joint's local transform to its bind pose.
func (s *Skeleton) ResetToBind() {
	for i := range s.joints {
		s.joints[i].local = s.joints[i].bind
	}
	s.dirty = true
}

// WorldPosition returns the joint's world position.
func (s *Skeleton) WorldPosition(j JointIndex) mgl32.Vec3 {
	s.UpdateWorld()
	return s.joints[j].worldPos
}

// WorldRotation returns the joint's world rotation.
func (s *Skeleton) WorldRotation(j JointIndex) mgl32.Quat {
	s.UpdateWorld()
	return s.joints[j].worldRot
}

// ParentWorldRotation returns the world rotation of j's parent, or identity for a root.
func (s *Skeleton) ParentWorldRotation(j JointIndex) mgl32.Quat {
	p := s.joints[j].parent
	if p == NoJoint {
		return mgl32.QuatIdent()
	}
	return s.WorldRotation(p)
}

// UpdateWorld recomputes world transforms top-down if any local changed.
// Joint scale does not propagate to child positions.
func (s *Skeleton) UpdateWorld() {
	if !s.dirty {
		return
	}
	for i := range s.joints {
		j := &s.joints[i]
		if j.parent == NoJoint {
			j.worldPos = j.local.Position
			j.worldRot = j.local.Rotation.Normalize()
			continue
		}
		p := &s.joints[j.parent]
		j.worldPos = p.worldPos.Add(p.worldRot.Rotate(j.local.Position))
		j.worldRot = p.worldRot.Mul(j.local.Rotation).Normalize()
	}
	s.dirty = false
}

// VolumePosition returns the world position of offset expressed in the volume's frame.
func (s *Skeleton) VolumePosition(id int, offset mgl32.Vec3) mgl32.Vec3 {
	v := s.volumes[id]
	o := v.Offset
	scaled := mgl32.Vec3{offset[0] * o.Scale[0], offset[1] * o.Scale[1], offset[2] * o.Scale[2]}
	local := o.Position.Add(o.Rotation.Rotate(scaled))
	return s.WorldPosition(v.Joint).Add(s.WorldRotation(v.Joint).Rotate(local))
}

// VolumeRotation returns the volume's world rotation.
func (s *Skeleton) VolumeRotation(id int) mgl32.Quat {
	v := s.volumes[id]
	return s.WorldRotation(v.Joint).Mul(v.Offset.Rotation)
}

// VolumeOrigin returns the world position of the volume's center.
func (s *Skeleton) VolumeOrigin(id int) mgl32.Vec3 {
	return s.VolumePosition(id, mgl32.Vec3{})
}

func (s *Skeleton) has(j JointIndex) bool {
	return j >= 0 && int(j) < len(s.joints)
}
