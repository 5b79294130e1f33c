package clip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/zeebo/xxh3"

	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/internal/mathx"
	"github.com/teslashibe/go-motion/pkg/curve"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// reader unpacks little-endian fields. The first failure sticks; later reads
// return zero values so callers can check once per section.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
	}
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("truncated at %s (offset %d)", field, r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8(field string) uint8 {
	if b := r.take(1, field); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16(field string) uint16 {
	if b := r.take(2, field); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32(field string) uint32 {
	if b := r.take(4, field); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) s32(field string) int32 {
	return int32(r.u32(field))
}

func (r *reader) f32(field string) float32 {
	return math.Float32frombits(r.u32(field))
}

// finite reads a float and rejects NaN and infinities.
func (r *reader) finite(field string) float32 {
	v := r.f32(field)
	if r.err == nil && !mathx.Finite(v) {
		r.fail("%s is not finite", field)
	}
	return v
}

func (r *reader) vec3(field string) mgl32.Vec3 {
	v := mgl32.Vec3{r.f32(field), r.f32(field), r.f32(field)}
	if r.err == nil && !mathx.FiniteVec(v) {
		r.fail("%s is not finite", field)
	}
	return v
}

func (r *reader) cstring(field string) string {
	if r.err != nil {
		return ""
	}
	end := bytes.IndexByte(r.buf[r.off:], 0)
	if end < 0 {
		r.fail("unterminated %s", field)
		return ""
	}
	s := string(r.buf[r.off : r.off+end])
	r.off += end + 1
	return s
}

func (r *reader) fixedString(n int, field string) string {
	b := r.take(n, field)
	if b == nil {
		return ""
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Decode parses the binary clip format. Joint names are not checked against
// any skeleton here; unknown joints are kept and left unbound at play time.
func Decode(id ID, data []byte) (*Clip, error) {
	r := &reader{buf: data}
	c := &Clip{ID: id, Digest: xxh3.Hash(data)}

	version := r.u16("version")
	subVersion := r.u16("sub_version")
	if r.err != nil {
		return nil, r.err
	}
	legacy := version == 0 && subVersion == 1
	if !legacy && (version != Version || subVersion != SubVersion) {
		return nil, fmt.Errorf("%w: unsupported version %d.%d", ErrDecode, version, subVersion)
	}

	base := skeleton.Priority(r.s32("base_priority"))
	if r.err == nil && base < skeleton.UseMotionPriority {
		r.fail("base priority %d", base)
	}
	if base >= skeleton.Additive {
		base = skeleton.Additive - 1
	}
	c.BasePriority = base

	c.Duration = r.f32("duration")
	if r.err == nil && (!mathx.Finite(c.Duration) || c.Duration > MaxDuration || c.Duration < 0) {
		r.fail("duration %v", c.Duration)
	}

	c.EmoteName = r.cstring("emote_name")
	if r.err == nil && c.EmoteName != "" {
		if c.EmoteName == id.String() {
			r.fail("emote names the clip itself")
		}
		// Ubiquitous placeholder emote that plays nothing.
		if c.EmoteName == "Closed_Mouth" {
			c.EmoteName = ""
		}
	}

	c.LoopIn = r.finite("loop_in_point")
	c.LoopOut = r.finite("loop_out_point")
	c.Loop = r.s32("loop") != 0
	c.EaseIn = r.finite("ease_in_duration")
	c.EaseOut = r.finite("ease_out_duration")

	hand := r.u32("hand_pose")
	if r.err == nil && hand > uint32(NumHandPoses) {
		r.fail("hand pose %d", hand)
	}
	c.HandPose = HandPose(hand)

	numJoints := r.u32("num_joints")
	if r.err == nil && (numJoints == 0 || numJoints > MaxJoints) {
		r.fail("joint count %d", numJoints)
	}
	if r.err != nil {
		return nil, r.err
	}

	var rotDupes, posDupes int
	c.Joints = make([]JointTrack, 0, numJoints)
	for i := uint32(0); i < numJoints; i++ {
		track, rd, pd := decodeTrack(r, c.Duration, legacy)
		if r.err != nil {
			return nil, r.err
		}
		rotDupes += rd
		posDupes += pd
		c.Joints = append(c.Joints, track)
	}
	if rotDupes > 0 || posDupes > 0 {
		log.Debug("collapsed duplicate keys", "clip", id, "rotation", rotDupes, "position", posDupes)
	}

	numConstraints := r.s32("num_constraints")
	if r.err != nil {
		return nil, r.err
	}
	if numConstraints < 0 || numConstraints > MaxConstraints {
		log.Warn("ignoring constraints", "clip", id, "count", numConstraints)
	} else {
		for i := int32(0); i < numConstraints; i++ {
			cd := decodeConstraint(r, len(c.Joints))
			if r.err != nil {
				return nil, r.err
			}
			c.Constraints = append(c.Constraints, cd)
		}
	}

	c.Finalize()
	return c, nil
}

func decodeTrack(r *reader, duration float32, legacy bool) (JointTrack, int, int) {
	var t JointTrack
	t.Name = r.cstring("joint_name")
	if r.err == nil && reservedJoints[t.Name] {
		r.fail("reserved joint %s", t.Name)
	}
	t.Priority = skeleton.Priority(r.s32("joint_priority"))
	if r.err == nil && t.Priority < skeleton.UseMotionPriority {
		r.fail("joint %s priority %d", t.Name, t.Priority)
	}

	numRot := r.s32("num_rot_keys")
	if r.err == nil && numRot < 0 {
		r.fail("joint %s rotation key count %d", t.Name, numRot)
	}
	if r.err != nil {
		return t, 0, 0
	}
	rotKeys := make([]curve.RotationKey, 0, numRot)
	for k := int32(0); k < numRot && r.err == nil; k++ {
		var key curve.RotationKey
		if legacy {
			key.Time = r.finite("time")
			key.Value = eulerZYX(r.vec3("rot_angles"))
		} else {
			key.Time = U16ToF32(r.u16("time"), 0, duration)
			v := mgl32.Vec3{
				U16ToF32(r.u16("rot_angle_x"), -1, 1),
				U16ToF32(r.u16("rot_angle_y"), -1, 1),
				U16ToF32(r.u16("rot_angle_z"), -1, 1),
			}
			key.Value = UnpackQuat(v)
		}
		if r.err == nil && (key.Time < 0 || key.Time > duration || !mathx.FiniteQuat(key.Value)) {
			r.fail("joint %s rotation key %d", t.Name, k)
		}
		rotKeys = append(rotKeys, key)
	}

	numPos := r.s32("num_pos_keys")
	if r.err == nil && numPos < 0 {
		r.fail("joint %s position key count %d", t.Name, numPos)
	}
	if r.err != nil {
		return t, 0, 0
	}
	posKeys := make([]curve.VectorKey, 0, numPos)
	for k := int32(0); k < numPos && r.err == nil; k++ {
		var key curve.VectorKey
		if legacy {
			key.Time = r.finite("time")
			p := r.vec3("pos")
			for a := range p {
				p[a] = mathx.Clamp(p[a], -MaxPelvisOffset, MaxPelvisOffset)
			}
			key.Value = p
		} else {
			key.Time = U16ToF32(r.u16("time"), 0, duration)
			key.Value = mgl32.Vec3{
				U16ToF32(r.u16("pos_x"), -MaxPelvisOffset, MaxPelvisOffset),
				U16ToF32(r.u16("pos_y"), -MaxPelvisOffset, MaxPelvisOffset),
				U16ToF32(r.u16("pos_z"), -MaxPelvisOffset, MaxPelvisOffset),
			}
		}
		posKeys = append(posKeys, key)
	}

	var rotDupes, posDupes int
	t.Rotation, rotDupes = curve.NewRotationCurve(curve.Linear, rotKeys)
	t.Position, posDupes = curve.NewVectorCurve(curve.Linear, posKeys)
	t.Scale = curve.VectorCurve{Interp: curve.Linear}
	return t, rotDupes, posDupes
}

func decodeConstraint(r *reader, numJoints int) ConstraintDesc {
	var cd ConstraintDesc
	cd.ChainLength = int(r.u8("chain_length"))
	if r.err == nil && (cd.ChainLength > numJoints || cd.ChainLength > MaxChainLength) {
		r.fail("chain length %d", cd.ChainLength)
	}
	typ := r.u8("constraint_type")
	if r.err == nil && typ >= uint8(numConstraintTypes) {
		r.fail("constraint type %d", typ)
	}
	cd.Type = ConstraintType(typ)

	cd.SourceVolume = r.fixedString(volumeNameLen, "source_volume")
	cd.SourceOffset = r.vec3("source_offset")
	cd.TargetVolume = r.fixedString(volumeNameLen, "target_volume")
	if cd.TargetVolume == GroundVolume {
		cd.TargetType = TargetGround
	}
	cd.TargetOffset = r.vec3("target_offset")
	cd.TargetDir = r.vec3("target_dir")

	cd.EaseInStart = r.finite("ease_in_start")
	cd.EaseInStop = r.finite("ease_in_stop")
	cd.EaseOutStart = r.finite("ease_out_start")
	cd.EaseOutStop = r.finite("ease_out_stop")
	return cd
}

// writer packs little-endian fields.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8) { w.buf.WriteByte(v) }

func (w *writer) u16(v uint16) {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (w *writer) u32(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (w *writer) s32(v int32) { w.u32(uint32(v)) }

func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *writer) vec3(v mgl32.Vec3) {
	w.f32(v[0])
	w.f32(v[1])
	w.f32(v[2])
}

func (w *writer) cstring(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

func (w *writer) fixedString(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	w.buf.Write(b)
}

// Encode writes c in the current binary format. Scale curves are not part of
// the format and are dropped.
func Encode(c *Clip) ([]byte, error) {
	if len(c.Joints) == 0 || len(c.Joints) > MaxJoints {
		return nil, fmt.Errorf("%w: joint count %d", ErrEncode, len(c.Joints))
	}
	if len(c.Constraints) > MaxConstraints {
		return nil, fmt.Errorf("%w: constraint count %d", ErrEncode, len(c.Constraints))
	}

	w := &writer{}
	w.u16(Version)
	w.u16(SubVersion)
	w.s32(int32(c.BasePriority))
	w.f32(c.Duration)
	w.cstring(c.EmoteName)
	w.f32(c.LoopIn)
	w.f32(c.LoopOut)
	if c.Loop {
		w.s32(1)
	} else {
		w.s32(0)
	}
	w.f32(c.EaseIn)
	w.f32(c.EaseOut)
	w.u32(uint32(c.HandPose))

	w.u32(uint32(len(c.Joints)))
	for i := range c.Joints {
		t := &c.Joints[i]
		w.cstring(t.Name)
		w.s32(int32(t.Priority))

		w.s32(int32(len(t.Rotation.Keys)))
		for _, k := range t.Rotation.Keys {
			w.u16(F32ToU16(k.Time, 0, c.Duration))
			v := PackQuat(k.Value)
			w.u16(F32ToU16(v[0], -1, 1))
			w.u16(F32ToU16(v[1], -1, 1))
			w.u16(F32ToU16(v[2], -1, 1))
		}

		w.s32(int32(len(t.Position.Keys)))
		for _, k := range t.Position.Keys {
			w.u16(F32ToU16(k.Time, 0, c.Duration))
			w.u16(F32ToU16(k.Value[0], -MaxPelvisOffset, MaxPelvisOffset))
			w.u16(F32ToU16(k.Value[1], -MaxPelvisOffset, MaxPelvisOffset))
			w.u16(F32ToU16(k.Value[2], -MaxPelvisOffset, MaxPelvisOffset))
		}
	}

	w.s32(int32(len(c.Constraints)))
	for _, cd := range c.Constraints {
		if len(cd.SourceVolume) > volumeNameLen || len(cd.TargetVolume) > volumeNameLen {
			return nil, fmt.Errorf("%w: volume name longer than %d bytes", ErrEncode, volumeNameLen)
		}
		w.u8(uint8(cd.ChainLength))
		w.u8(uint8(cd.Type))
		w.fixedString(cd.SourceVolume, volumeNameLen)
		w.vec3(cd.SourceOffset)
		target := cd.TargetVolume
		if cd.TargetType == TargetGround {
			target = GroundVolume
		}
		w.fixedString(target, volumeNameLen)
		w.vec3(cd.TargetOffset)
		w.vec3(cd.TargetDir)
		w.f32(cd.EaseInStart)
		w.f32(cd.EaseInStop)
		w.f32(cd.EaseOutStart)
		w.f32(cd.EaseOutStop)
	}

	return w.buf.Bytes(), nil
}
