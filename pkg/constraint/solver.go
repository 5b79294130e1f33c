// Package constraint pulls the end of a short joint chain onto a target point
// or plane by relaxing a spring chain and converting the result back into
// local joint rotations.
package constraint

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/atomic"

	"github.com/teslashibe/go-motion/internal/mathx"
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/pose"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// Solver tuning.
const (
	MaxIterations     = 20
	MinIterations     = 1
	MinIterationCount = 2

	MaxPixelArea = 80000
	MinPixelArea = 1000

	JointLengthK           = 0.7
	VelocityDamping        = 0.7
	MinAccelerationSquared = 0.0005 * 0.0005

	reachTimeConstant   = 0.3
	releaseTimeConstant = 0.1
	minRMSDeltaTime     = 0.02
)

const maxJoints = clip.MaxChainLength + 1

var (
	maxIterations = atomic.NewInt32(MaxIterations)
	minIterations = atomic.NewInt32(MinIterations)
)

// SetIterationLimits overrides the iteration range scaled by on-screen
// area. Non-positive values restore the defaults.
func SetIterationLimits(most, least int) {
	if most <= 0 {
		most = MaxIterations
	}
	if least <= 0 {
		least = MinIterations
	}
	least = min(least, most)
	maxIterations.Store(int32(most))
	minIterations.Store(int32(least))
}

// IterationLimits returns the current iteration range.
func IterationLimits() (most, least int) {
	return int(maxIterations.Load()), int(minIterations.Load())
}

type state struct {
	valid  bool
	time   float32
	active bool
	weight float32
	rms    float32

	// Interior joint positions in pelvis space.
	positions [maxJoints]mgl32.Vec3

	groundPos  mgl32.Vec3
	groundNorm mgl32.Vec3
}

// Runtime is the per-motion-instance state of one constraint.
type Runtime struct {
	desc clip.ConstraintDesc

	chain     []skeleton.JointIndex
	states    []int
	sourceVol int
	targetVol int
	pelvis    skeleton.JointIndex
	serial    uint32

	lengths     [maxJoints]float32
	fractions   [maxJoints]float32
	totalLength float32

	// cur is the state after the latest Apply, committed the state that
	// Apply started from. Re-applying at the same time restarts from
	// committed so the output is reproducible.
	cur       state
	committed state
}

// New binds desc to ch's skeleton and to the joint states of p.
func New(desc clip.ConstraintDesc, ch character.Character, p *pose.Pose) (*Runtime, error) {
	sk := ch.Skeleton()
	r := &Runtime{desc: desc, targetVol: -1}

	src, ok := sk.FindVolume(desc.SourceVolume)
	if !ok {
		return nil, fmt.Errorf("%w: source %q", ErrMissingVolume, desc.SourceVolume)
	}
	r.sourceVol = src
	if desc.TargetType == clip.TargetBody {
		tgt, ok := sk.FindVolume(desc.TargetVolume)
		if !ok {
			return nil, fmt.Errorf("%w: target %q", ErrMissingVolume, desc.TargetVolume)
		}
		r.targetVol = tgt
	}

	j := sk.Volume(src).Joint
	for k := 0; k <= desc.ChainLength; k++ {
		if !j.Valid() {
			return nil, fmt.Errorf("%w: chain of %d runs past the root", ErrChainUnbound, desc.ChainLength)
		}
		idx := p.Find(j)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrChainUnbound, sk.Name(j))
		}
		r.chain = append(r.chain, j)
		r.states = append(r.states, idx)
		j = sk.Parent(j)
	}

	if pel, ok := sk.Find(skeleton.Pelvis); ok {
		r.pelvis = pel
	}
	r.measure(ch)
	return r, nil
}

// Desc returns the shared descriptor.
func (r *Runtime) Desc() clip.ConstraintDesc { return r.desc }

// Chain returns the chain joints, source joint first, root last.
func (r *Runtime) Chain() []skeleton.JointIndex { return r.chain }

// Active reports whether the constraint is inside its ease window.
func (r *Runtime) Active() bool { return r.cur.active }

// Weight returns the reach weight before the ease ramp.
func (r *Runtime) Weight() float32 { return r.cur.weight }

// FixupRMS returns the last root-mean-square correction speed.
func (r *Runtime) FixupRMS() float32 { return r.cur.rms }

// TotalLength returns the chain length from root to source point.
func (r *Runtime) TotalLength() float32 { return r.totalLength }

// Deactivate releases the constraint. The next Apply inside the ease window
// starts fresh.
func (r *Runtime) Deactivate() {
	r.cur.active = false
	r.committed.active = false
}

// measure records bone lengths from the current pose.
func (r *Runtime) measure(ch character.Character) {
	sk := ch.Skeleton()
	r.serial = sk.Serial()
	n := r.desc.ChainLength

	src := sk.VolumePosition(r.sourceVol, r.desc.SourceOffset)
	end := r.chain[0]
	sourceOffset := src.Sub(sk.WorldPosition(end)).Len()

	r.lengths = [maxJoints]float32{}
	r.fractions = [maxJoints]float32{}
	if p := sk.Parent(end); p.Valid() {
		r.lengths[0] = sk.WorldPosition(p).Sub(src).Len()
	}
	r.totalLength = r.lengths[0]
	for k := 1; k < n; k++ {
		j := r.chain[k]
		r.lengths[k] = sk.WorldPosition(j).Sub(sk.WorldPosition(sk.Parent(j))).Len()
		r.totalLength += r.lengths[k]
	}
	if r.totalLength > 0 {
		for k := 1; k < n; k++ {
			r.fractions[k] = r.lengths[k] / r.totalLength
		}
	}
	r.totalLength += sourceOffset
}

func (r *Runtime) toPelvis(sk *skeleton.Skeleton, world mgl32.Vec3) mgl32.Vec3 {
	return sk.WorldRotation(r.pelvis).Inverse().Rotate(world.Sub(sk.WorldPosition(r.pelvis)))
}

func (r *Runtime) fromPelvis(sk *skeleton.Skeleton, local mgl32.Vec3) mgl32.Vec3 {
	return sk.WorldRotation(r.pelvis).Rotate(local).Add(sk.WorldPosition(r.pelvis))
}

func (r *Runtime) activate(ch character.Character) {
	sk := ch.Skeleton()
	r.cur.active = true
	if r.desc.TargetType == clip.TargetGround {
		src := sk.VolumePosition(r.sourceVol, r.desc.SourceOffset)
		gp, gn := ch.Ground(src)
		r.cur.groundPos = gp.Add(r.desc.TargetOffset)
		r.cur.groundNorm = gn
	}
	for k := 1; k < r.desc.ChainLength; k++ {
		r.cur.positions[k] = r.toPelvis(sk, sk.WorldPosition(r.chain[k]))
	}
	r.cur.weight = 1
}

// Apply adjusts the chain's joint states in p for clip time t. mask holds
// the rotation signature already claimed by earlier motions; priority is
// the owning motion's priority. The skeleton's local rotations are left as
// they were found.
func (r *Runtime) Apply(t float32, ch character.Character, p *pose.Pose, mask []uint8, priority skeleton.Priority) {
	sk := ch.Skeleton()
	if sk.Serial() != r.serial {
		r.measure(ch)
	}

	if r.cur.valid && t == r.cur.time {
		r.cur = r.committed
	} else {
		r.committed = r.cur
	}
	var dt float32
	if r.committed.valid {
		dt = math32.Abs(t - r.committed.time)
	}
	r.cur.valid = true
	r.cur.time = t

	d := &r.desc
	if t < d.EaseInStart {
		return
	}
	if t > d.EaseOutStop {
		r.cur.active = false
		return
	}
	if !r.cur.active || t < d.EaseInStop {
		r.activate(ch)
	}

	sig := priority.Signature()
	for _, j := range r.chain {
		if int(j) < len(mask) && mask[j] >= sig {
			return
		}
	}

	n := d.ChainLength
	root := r.chain[n]
	rootPos := sk.WorldPosition(root)

	var old [maxJoints]mgl32.Quat
	for k, j := range r.chain {
		old[k] = sk.LocalRotation(j)
		sk.SetLocalRotation(j, p.States[r.states[k]].Rotation)
	}
	defer func() {
		for k, j := range r.chain {
			sk.SetLocalRotation(j, old[k])
		}
	}()

	src := sk.VolumePosition(r.sourceVol, d.SourceOffset)
	target := r.target(sk, src)

	if n != 0 && 0.95*rootPos.Sub(target).LenSqr() > r.totalLength*r.totalLength {
		r.cur.weight = mathx.Approach(r.cur.weight, 0, dt, releaseTimeConstant)
	} else {
		r.cur.weight = mathx.Approach(r.cur.weight, 1, dt, reachTimeConstant)
	}
	weight := r.cur.weight
	if d.EaseOutStop != 0 {
		weight *= min(
			mathx.ClampRescale(t, d.EaseInStart, d.EaseInStop, 0, 1),
			mathx.ClampRescale(t, d.EaseOutStart, d.EaseOutStop, 1, 0),
		)
	}

	toTarget := target.Sub(src)
	if n == 0 {
		s := &p.States[r.states[0]]
		if s.Usage.Has(pose.UsePosition) {
			delta := sk.ParentWorldRotation(r.chain[0]).Inverse().Rotate(toTarget.Mul(weight))
			s.Position = sk.LocalPosition(r.chain[0]).Add(delta)
		}
		return
	}

	most, least := IterationLimits()
	iterations := int(math32.Floor(mathx.ClampRescale(ch.PixelArea(), MaxPixelArea, MinPixelArea, float32(most), float32(least)) + 0.5))
	r.solve(sk, p, src, target, rootPos, toTarget, weight, dt, iterations)
}

func (r *Runtime) target(sk *skeleton.Skeleton, src mgl32.Vec3) mgl32.Vec3 {
	d := &r.desc
	var target mgl32.Vec3
	if d.TargetType == clip.TargetGround {
		target = r.cur.groundPos
	} else {
		target = sk.VolumePosition(r.targetVol, d.TargetOffset)
	}
	if d.Type != clip.Plane {
		return target
	}

	var norm mgl32.Vec3
	if d.TargetType == clip.TargetGround {
		norm = r.cur.groundNorm
	} else {
		norm = target.Sub(sk.VolumeOrigin(r.targetVol))
		if norm == (mgl32.Vec3{}) {
			norm = sk.VolumeRotation(r.sourceVol).Rotate(d.SourceOffset.Mul(-1))
		}
	}
	if l := norm.Len(); l > 0 {
		norm = norm.Mul(1 / l)
	}
	return src.Add(norm.Mul(target.Sub(src).Dot(norm)))
}

func (r *Runtime) solve(sk *skeleton.Skeleton, p *pose.Pose, src, target, rootPos, toTarget mgl32.Vec3, weight, dt float32, iterations int) {
	n := r.desc.ChainLength
	end := r.chain[0]
	endRot := sk.WorldRotation(end)

	var positions [maxJoints]mgl32.Vec3
	var velocities [maxJoints]mgl32.Vec3
	positions[0] = mathx.LerpVec(src, target, weight)
	positions[n] = rootPos

	blend := mathx.Interpolant(dt, 1/mathx.ClampRescale(r.cur.rms, 0, 0.5, 0.2, 8))
	for k := 1; k < n; k++ {
		kinematic := sk.WorldPosition(r.chain[k]).Add(toTarget.Mul(r.fractions[k]))
		stored := r.fromPelvis(sk, r.cur.positions[k])
		positions[k] = mathx.LerpVec(stored, kinematic, blend)
	}

	for it := 0; it < iterations; it++ {
		finished := 0
		for k := 1; k < n; k++ {
			toChild := positions[k-1].Sub(positions[k])
			acc := toChild.Mul((toChild.Len() - r.lengths[k-1]) * JointLengthK)
			toParent := positions[k+1].Sub(positions[k])
			acc = acc.Add(toParent.Mul((toParent.Len() - r.lengths[k]) * JointLengthK))

			if acc.LenSqr() < MinAccelerationSquared {
				finished++
			}
			velocities[k] = velocities[k].Mul(VelocityDamping)
			positions[k] = positions[k].Add(velocities[k]).Add(acc.Mul(0.5))
			velocities[k] = velocities[k].Add(acc)
		}
		if it >= MinIterationCount && finished == n-1 {
			break
		}
	}

	for k := n; k > 0; k-- {
		j := r.chain[k]
		parentRot := sk.ParentWorldRotation(j)
		curRot := sk.WorldRotation(j)

		targetAt := positions[k-1].Sub(positions[k])
		var currentAt mgl32.Vec3
		if k == 1 {
			currentAt = sk.VolumePosition(r.sourceVol, r.desc.SourceOffset).Sub(sk.WorldPosition(j))
		} else {
			currentAt = curRot.Rotate(sk.LocalPosition(r.chain[k-1]))
		}
		fix := mathx.ShortestArc(currentAt, targetAt)
		local := parentRot.Inverse().Mul(fix.Mul(curRot)).Normalize()

		s := &p.States[r.states[k]]
		if weight != 1 {
			local = mathx.Nlerp(s.Rotation, local, weight)
		}
		s.Rotation = local
		sk.SetLocalRotation(j, local)
	}

	endLocal := sk.ParentWorldRotation(end).Inverse().Mul(endRot).Normalize()
	s := &p.States[r.states[0]]
	if weight == 1 {
		s.Rotation = endLocal
	} else {
		s.Rotation = mathx.Nlerp(s.Rotation, endLocal, weight)
	}

	rmsDT := max(minRMSDeltaTime, dt)
	var sum float32
	for k := 1; k < n; k++ {
		np := r.toPelvis(sk, positions[k])
		sum += np.Sub(r.cur.positions[k]).LenSqr() / rmsDT
		r.cur.positions[k] = np
	}
	r.cur.rms = 0
	if n > 1 && r.totalLength > 0 {
		r.cur.rms = math32.Sqrt(sum / (r.totalLength * float32(n-1)))
	}
}
