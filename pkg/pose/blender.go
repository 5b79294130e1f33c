package pose

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/teslashibe/go-motion/internal/mathx"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

type entry struct {
	pose  *Pose
	order int
}

type contribution struct {
	state  *JointState
	weight float32
	order  int
}

// Blender resolves the poses added during a tick and writes the result to
// the skeleton. It is not safe for concurrent use.
type Blender struct {
	skel *skeleton.Skeleton

	poses    []entry
	perJoint [][]contribution
	additive [][]contribution

	target  []skeleton.Transform
	from    []skeleton.Transform
	scratch []skeleton.Transform
	cached  bool
	serial  uint32
}

// NewBlender creates a blender for skel.
func NewBlender(skel *skeleton.Skeleton) *Blender {
	b := &Blender{skel: skel}
	b.resize()
	return b
}

func (b *Blender) resize() {
	n := b.skel.Len()
	b.serial = b.skel.Serial()
	b.perJoint = make([][]contribution, n)
	b.additive = make([][]contribution, n)
	b.target = make([]skeleton.Transform, n)
	b.from = make([]skeleton.Transform, n)
	b.scratch = make([]skeleton.Transform, n)
	for j := range b.target {
		b.target[j] = b.skel.Bind(skeleton.JointIndex(j))
	}
	b.cached = false
}

// Clear forgets the poses added for the previous tick.
func (b *Blender) Clear() {
	if b.serial != b.skel.Serial() || len(b.target) != b.skel.Len() {
		b.resize()
	}
	b.poses = b.poses[:0]
}

// Add queues a pose. order breaks priority ties, lower first.
func (b *Blender) Add(p *Pose, order int) {
	b.poses = append(b.poses, entry{pose: p, order: order})
}

// Len returns the number of queued poses.
func (b *Blender) Len() int { return len(b.poses) }

// Target returns the last resolved transform for j.
func (b *Blender) Target(j skeleton.JointIndex) skeleton.Transform {
	return b.target[j]
}

// Apply resolves the queued poses and writes them to the skeleton.
func (b *Blender) Apply() {
	b.resolve()
	b.write(b.target)
}

// BlendAndCache resolves the queued poses without touching the skeleton.
// Interpolate then moves from the previously resolved pose toward the new
// one. reset makes the new pose its own starting point.
func (b *Blender) BlendAndCache(reset bool) {
	copy(b.from, b.target)
	b.resolve()
	if reset || !b.cached {
		copy(b.from, b.target)
	}
	b.cached = true
}

// Interpolate writes the cached pose at fraction u between the previous and
// the latest resolved pose.
func (b *Blender) Interpolate(u float32) {
	if !b.cached {
		return
	}
	u = mathx.Clamp(u, 0, 1)
	out := b.scratch
	for j := range out {
		f, t := b.from[j], b.target[j]
		out[j] = skeleton.Transform{
			Position: mathx.LerpVec(f.Position, t.Position, u),
			Rotation: mathx.Nlerp(f.Rotation, t.Rotation, u),
			Scale:    mathx.LerpVec(f.Scale, t.Scale, u),
		}
	}
	b.write(out)
}

func (b *Blender) write(xf []skeleton.Transform) {
	for j := range xf {
		idx := skeleton.JointIndex(j)
		b.skel.SetLocalPosition(idx, xf[j].Position)
		b.skel.SetLocalRotation(idx, xf[j].Rotation)
		b.skel.SetLocalScale(idx, xf[j].Scale)
	}
	b.skel.UpdateWorld()
}

func (b *Blender) resolve() {
	for j := range b.perJoint {
		b.perJoint[j] = b.perJoint[j][:0]
		b.additive[j] = b.additive[j][:0]
	}
	for _, e := range b.poses {
		if e.pose.Weight <= 0 {
			continue
		}
		for i := range e.pose.States {
			s := &e.pose.States[i]
			if !s.Joint.Valid() || int(s.Joint) >= len(b.perJoint) {
				continue
			}
			c := contribution{state: s, weight: e.pose.Weight, order: e.order}
			if e.pose.Mode == Additive {
				b.additive[s.Joint] = append(b.additive[s.Joint], c)
			} else {
				b.perJoint[s.Joint] = append(b.perJoint[s.Joint], c)
			}
		}
	}

	for j := range b.target {
		bind := b.skel.Bind(skeleton.JointIndex(j))
		cs := b.perJoint[j]
		sort.SliceStable(cs, func(a, c int) bool {
			if cs[a].state.Priority != cs[c].state.Priority {
				return cs[a].state.Priority > cs[c].state.Priority
			}
			return cs[a].order < cs[c].order
		})

		t := skeleton.Transform{
			Position: blendVec(cs, UsePosition, bind.Position, func(s *JointState) mgl32.Vec3 { return s.Position }),
			Rotation: blendRot(cs, bind.Rotation),
			Scale:    blendVec(cs, UseScale, bind.Scale, func(s *JointState) mgl32.Vec3 { return s.Scale }),
		}

		for _, c := range b.additive[j] {
			s := c.state
			if s.Usage.Has(UseRotation) {
				t.Rotation = t.Rotation.Mul(mathx.Nlerp(mgl32.QuatIdent(), s.Rotation, c.weight)).Normalize()
			}
			if s.Usage.Has(UsePosition) {
				t.Position = t.Position.Add(s.Position.Mul(c.weight))
			}
			if s.Usage.Has(UseScale) {
				k := mathx.LerpVec(mgl32.Vec3{1, 1, 1}, s.Scale, c.weight)
				t.Scale = mgl32.Vec3{t.Scale[0] * k[0], t.Scale[1] * k[1], t.Scale[2] * k[2]}
			}
		}
		b.target[j] = t
	}
}

// blendVec accumulates in priority order. Each later contribution only
// fills the weight the earlier ones left; the remainder goes to bind.
func blendVec(cs []contribution, use Usage, bind mgl32.Vec3, get func(*JointState) mgl32.Vec3) mgl32.Vec3 {
	var sum float32
	value := bind
	for _, c := range cs {
		if !c.state.Usage.Has(use) {
			continue
		}
		if sum >= 1 {
			break
		}
		if sum == 0 {
			value = get(c.state)
			sum = mathx.Clamp(c.weight, 0, 1)
			continue
		}
		next := mathx.Clamp(sum+c.weight, 0, 1)
		value = mathx.LerpVec(get(c.state), value, sum/next)
		sum = next
	}
	if sum == 0 {
		return bind
	}
	if sum < 1 {
		value = mathx.LerpVec(bind, value, sum)
	}
	return value
}

func blendRot(cs []contribution, bind mgl32.Quat) mgl32.Quat {
	var sum float32
	value := bind
	for _, c := range cs {
		if !c.state.Usage.Has(UseRotation) {
			continue
		}
		if sum >= 1 {
			break
		}
		if sum == 0 {
			value = c.state.Rotation
			sum = mathx.Clamp(c.weight, 0, 1)
			continue
		}
		next := mathx.Clamp(sum+c.weight, 0, 1)
		value = mathx.Nlerp(c.state.Rotation, value, sum/next)
		sum = next
	}
	if sum == 0 {
		return bind
	}
	if sum < 1 {
		value = mathx.Nlerp(bind, value, sum)
	}
	return value.Normalize()
}
