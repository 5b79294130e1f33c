package mathx

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func floatEquals(a, b float32) bool {
	return math32.Abs(a-b) < 1e-5
}

func TestClampRescale(t *testing.T) {
	tests := []struct {
		name           string
		x, x1, x2      float32
		y1, y2, expect float32
	}{
		{"above reversed range", 90000, 80000, 1000, 20, 1, 20},
		{"below reversed range", 500, 80000, 1000, 20, 1, 1},
		{"midpoint", 5, 0, 10, 0, 1, 0.5},
		{"clamped high", 20, 0, 10, 0, 1, 1},
		{"degenerate input", 3, 2, 2, 0, 7, 7},
	}
	for _, tt := range tests {
		if got := ClampRescale(tt.x, tt.x1, tt.x2, tt.y1, tt.y2); !floatEquals(got, tt.expect) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.expect)
		}
	}
}

func TestSmoothstep(t *testing.T) {
	tests := []struct{ in, want float32 }{
		{-1, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {2, 1},
	}
	for _, tt := range tests {
		if got := Smoothstep(tt.in); got != tt.want {
			t.Errorf("Smoothstep(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
	prev := float32(0)
	for x := float32(0); x <= 1; x += 0.05 {
		v := Smoothstep(x)
		if v < prev {
			t.Fatalf("Smoothstep not monotonic at %v", x)
		}
		prev = v
	}
}

func TestApproachHalfLife(t *testing.T) {
	if got := Approach(0, 1, 1, 1); got != 0.5 {
		t.Errorf("one half-life: got %v, want 0.5", got)
	}
	if got := Approach(0.3, 1, 0, 1); got != 0.3 {
		t.Errorf("zero dt: got %v, want 0.3", got)
	}
	if got := Approach(0.3, 1, 0.1, 0); !floatEquals(got, 1) {
		t.Errorf("zero time constant: got %v, want 1", got)
	}
}

func TestNlerpShortPath(t *testing.T) {
	q := mgl32.QuatRotate(0.4, mgl32.Vec3{0, 0, 1})
	neg := q.Scale(-1)
	got := Nlerp(mgl32.QuatIdent(), neg, 1)
	if !floatEquals(got.Dot(q), 1) {
		t.Errorf("Nlerp to negated quat: got %v, want %v", got, q)
	}
}

func TestShortestArc(t *testing.T) {
	q := ShortestArc(mgl32.Vec3{2, 0, 0}, mgl32.Vec3{0, 3, 0})
	got := q.Rotate(mgl32.Vec3{1, 0, 0})
	if got.Sub(mgl32.Vec3{0, 1, 0}).Len() > 1e-5 {
		t.Errorf("rotated x axis: got %v, want (0,1,0)", got)
	}
	if id := ShortestArc(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}); id != mgl32.QuatIdent() {
		t.Errorf("degenerate: got %v, want identity", id)
	}
}

func TestFinite(t *testing.T) {
	if !Finite(1) || Finite(math32.NaN()) || Finite(math32.Inf(-1)) {
		t.Error("Finite misclassified a scalar")
	}
	if FiniteQuat(mgl32.Quat{W: 1, V: mgl32.Vec3{0, math32.Inf(1), 0}}) {
		t.Error("FiniteQuat accepted an infinite component")
	}
}
