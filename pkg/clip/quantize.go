package clip

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/teslashibe/go-motion/internal/mathx"
)

const u16Max = 65535

// U16ToF32 expands a quantized value over [lower, upper]. Values within one
// quantum of zero decode to exactly zero.
func U16ToF32(v uint16, lower, upper float32) float32 {
	delta := upper - lower
	val := float32(v)/u16Max*delta + lower
	if math32.Abs(val) < delta/u16Max {
		val = 0
	}
	return val
}

// F32ToU16 quantizes v over [lower, upper], clamping out-of-range input.
func F32ToU16(v, lower, upper float32) uint16 {
	if upper <= lower {
		return 0
	}
	v = mathx.Clamp(v, lower, upper)
	v = (v - lower) / (upper - lower)
	return uint16(math32.Floor(v*u16Max + 0.5))
}

// PackQuat reduces a rotation to its vector part with a non-negative w.
func PackQuat(q mgl32.Quat) mgl32.Vec3 {
	q = q.Normalize()
	if q.W < 0 {
		return q.V.Mul(-1)
	}
	return q.V
}

// UnpackQuat rebuilds a unit rotation from a packed vector part.
func UnpackQuat(v mgl32.Vec3) mgl32.Quat {
	w2 := 1 - v.Dot(v)
	if w2 < 0 {
		w2 = 0
	}
	return mgl32.Quat{W: math32.Sqrt(w2), V: v}.Normalize()
}

// eulerZYX builds the legacy format's rotation from degrees about X, Y and Z
// in ZYX rotate order: Z is applied first.
func eulerZYX(deg mgl32.Vec3) mgl32.Quat {
	x := mgl32.QuatRotate(mgl32.DegToRad(deg[0]), mgl32.Vec3{1, 0, 0})
	y := mgl32.QuatRotate(mgl32.DegToRad(deg[1]), mgl32.Vec3{0, 1, 0})
	z := mgl32.QuatRotate(mgl32.DegToRad(deg[2]), mgl32.Vec3{0, 0, 1})
	return x.Mul(y).Mul(z).Normalize()
}
