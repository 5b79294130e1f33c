package clip

import (
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/teslashibe/go-motion/pkg/curve"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// ImportOptions configures glTF conversion.
type ImportOptions struct {
	ID       ID
	Priority skeleton.Priority
	Loop     bool
	EaseIn   float32
	EaseOut  float32

	// ConvertAxes maps glTF's Y-up frame onto the engine's Z-up, X-forward frame.
	ConvertAxes bool
}

// DefaultImportOptions returns sensible defaults for imported clips.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		Priority:    skeleton.Medium,
		EaseIn:      0.3,
		EaseOut:     0.3,
		ConvertAxes: true,
	}
}

// ReadGLTF decodes a self-contained glTF or GLB stream.
func ReadGLTF(r io.Reader) (*gltf.Document, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode gltf: %w", err)
	}
	return doc, nil
}

// FromGLTF converts one animation of a glTF document into a Clip. Channels
// targeting unnamed nodes or morph weights are skipped.
func FromGLTF(doc *gltf.Document, animation int, opts ImportOptions) (*Clip, error) {
	if animation < 0 || animation >= len(doc.Animations) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoAnimation, animation, len(doc.Animations))
	}
	a := doc.Animations[animation]
	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}

	c := &Clip{
		ID:           opts.ID,
		BasePriority: opts.Priority,
		Loop:         opts.Loop,
		EaseIn:       opts.EaseIn,
		EaseOut:      opts.EaseOut,
		HandPose:     HandRelaxed,
	}

	tracks := make(map[string]*JointTrack)
	var order []string
	track := func(name string) *JointTrack {
		if t, ok := tracks[name]; ok {
			return t
		}
		t := &JointTrack{Name: name, Priority: skeleton.UseMotionPriority}
		tracks[name] = t
		order = append(order, name)
		return t
	}

	for _, ch := range a.Channels {
		if ch.Target.Node == nil || ch.Sampler == nil {
			continue
		}
		node := doc.Nodes[*ch.Target.Node]
		if node.Name == "" || reservedJoints[node.Name] {
			continue
		}
		s := a.Samplers[*ch.Sampler]

		times, err := readTimes(doc, s.Input)
		if err != nil {
			return nil, err
		}
		if n := len(times); n > 0 && times[n-1] > c.Duration {
			c.Duration = times[n-1]
		}

		switch ch.Target.Path {
		case gltf.TRSRotation:
			vals, err := modeler.ReadAccessor(doc, doc.Accessors[s.Output], [][4]float32(nil))
			if err != nil {
				return nil, fmt.Errorf("failed to read rotation output: %w", err)
			}
			quats, ok := vals.([][4]float32)
			if !ok {
				return nil, fmt.Errorf("%w: rotation output for %s is not float", ErrNoAnimation, node.Name)
			}
			rc, err := rotationCurve(times, quats, s.Interpolation, opts.ConvertAxes)
			if err != nil {
				return nil, fmt.Errorf("rotation for %s: %w", node.Name, err)
			}
			track(node.Name).Rotation = rc
		case gltf.TRSTranslation, gltf.TRSScale:
			vals, err := modeler.ReadAccessor(doc, doc.Accessors[s.Output], [][3]float32(nil))
			if err != nil {
				return nil, fmt.Errorf("failed to read vector output: %w", err)
			}
			vecs, ok := vals.([][3]float32)
			if !ok {
				return nil, fmt.Errorf("%w: vector output for %s is not float", ErrNoAnimation, node.Name)
			}
			scale := ch.Target.Path == gltf.TRSScale
			vc, err := vectorCurve(times, vecs, s.Interpolation, opts.ConvertAxes, scale)
			if err != nil {
				return nil, fmt.Errorf("vector for %s: %w", node.Name, err)
			}
			if scale {
				track(node.Name).Scale = vc
			} else {
				track(node.Name).Position = vc
			}
		}
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("%w: %q has no joint channels", ErrNoAnimation, a.Name)
	}
	for _, name := range order {
		c.Joints = append(c.Joints, *tracks[name])
	}
	c.LoopOut = c.Duration
	c.Finalize()
	return c, nil
}

func readTimes(doc *gltf.Document, input uint32) ([]float32, error) {
	vals, err := modeler.ReadAccessor(doc, doc.Accessors[input], []float32(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to read sampler input: %w", err)
	}
	times, ok := vals.([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: sampler input is not float", ErrNoAnimation)
	}
	return times, nil
}

func curveInterp(i gltf.Interpolation) curve.Interpolation {
	switch i {
	case gltf.InterpolationStep:
		return curve.Step
	case gltf.InterpolationCubicSpline:
		return curve.Spline
	default:
		return curve.Linear
	}
}

// sampleIndex locates the keyed value in a sampler output. Cubic spline
// outputs store in-tangent, value, out-tangent triplets.
func sampleIndex(i gltf.Interpolation, key, n, count int) (int, error) {
	if i == gltf.InterpolationCubicSpline {
		if count != n*3 {
			return 0, fmt.Errorf("%w: spline output has %d values for %d keys", ErrNoAnimation, count, n)
		}
		return key*3 + 1, nil
	}
	if count != n {
		return 0, fmt.Errorf("%w: output has %d values for %d keys", ErrNoAnimation, count, n)
	}
	return key, nil
}

// yUpToZUp maps glTF (x left, y up, z forward) to (x forward, y left, z up).
func yUpToZUp(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{v[2], v[0], v[1]}
}

func rotationCurve(times []float32, vals [][4]float32, interp gltf.Interpolation, convert bool) (curve.RotationCurve, error) {
	keys := make([]curve.RotationKey, 0, len(times))
	for k, t := range times {
		idx, err := sampleIndex(interp, k, len(times), len(vals))
		if err != nil {
			return curve.RotationCurve{}, err
		}
		v := vals[idx]
		q := mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
		if convert {
			q.V = yUpToZUp(q.V)
		}
		keys = append(keys, curve.RotationKey{Time: t, Value: q.Normalize()})
	}
	c, _ := curve.NewRotationCurve(curveInterp(interp), keys)
	return c, nil
}

func vectorCurve(times []float32, vals [][3]float32, interp gltf.Interpolation, convert, scale bool) (curve.VectorCurve, error) {
	keys := make([]curve.VectorKey, 0, len(times))
	for k, t := range times {
		idx, err := sampleIndex(interp, k, len(times), len(vals))
		if err != nil {
			return curve.VectorCurve{}, err
		}
		v := mgl32.Vec3(vals[idx])
		if convert {
			v = yUpToZUp(v)
		}
		keys = append(keys, curve.VectorKey{Time: t, Value: v})
	}
	c, _ := curve.NewVectorCurve(curveInterp(interp), keys)
	if scale {
		c.Empty = mgl32.Vec3{1, 1, 1}
	}
	return c, nil
}
