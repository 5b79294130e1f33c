// Package mathx holds the small float32 helpers shared by the motion packages.
package mathx

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Lerp performs linear interpolation between two values.
func Lerp(a, b, t float32) float32 {
	return a + t*(b-a)
}

// LerpVec interpolates component-wise between two vectors.
func LerpVec(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Clamp restricts a value to a range.
func Clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Rescale maps x from [x1, x2] onto [y1, y2] without clamping.
func Rescale(x, x1, x2, y1, y2 float32) float32 {
	if x1 == x2 {
		return y2
	}
	return y1 + (x-x1)*(y2-y1)/(x2-x1)
}

// ClampRescale maps x from [x1, x2] onto [y1, y2], clamping to the output range.
// x1 may be larger than x2.
func ClampRescale(x, x1, x2, y1, y2 float32) float32 {
	if x1 < x2 {
		return Rescale(Clamp(x, x1, x2), x1, x2, y1, y2)
	}
	return Rescale(Clamp(x, x2, x1), x1, x2, y1, y2)
}

// Smoothstep is the cubic ease 3x²-2x³ over a clamped [0, 1] input.
func Smoothstep(x float32) float32 {
	x = Clamp(x, 0, 1)
	return x * x * (3 - 2*x)
}

// Interpolant returns the frame-rate independent blend factor for an exponential
// approach with the given half-life after dt seconds.
func Interpolant(dt, timeConstant float32) float32 {
	if timeConstant <= 0 {
		return 1
	}
	if dt <= 0 {
		return 0
	}
	return 1 - math32.Exp2(-dt/timeConstant)
}

// Approach moves a toward b by the interpolant for dt and timeConstant.
func Approach(a, b, dt, timeConstant float32) float32 {
	return Lerp(a, b, Interpolant(dt, timeConstant))
}

// Nlerp blends two rotations along the shorter arc and renormalizes.
// t=0 returns a, t=1 returns b.
func Nlerp(a, b mgl32.Quat, t float32) mgl32.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	q := mgl32.QuatNlerp(a, b, t)
	if q.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return q
}

// ShortestArc returns the rotation taking direction from onto direction to.
// Degenerate inputs yield identity.
func ShortestArc(from, to mgl32.Vec3) mgl32.Quat {
	if from.Len() < 1e-6 || to.Len() < 1e-6 {
		return mgl32.QuatIdent()
	}
	return mgl32.QuatBetweenVectors(from.Normalize(), to.Normalize())
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// FiniteVec reports whether every component of v is finite.
func FiniteVec(v mgl32.Vec3) bool {
	return Finite(v[0]) && Finite(v[1]) && Finite(v[2])
}

// FiniteQuat reports whether every component of q is finite.
func FiniteQuat(q mgl32.Quat) bool {
	return Finite(q.W) && FiniteVec(q.V)
}
