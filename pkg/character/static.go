package character

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// DefaultPixelArea is large enough for full detail.
const DefaultPixelArea = 100000

// Static is a character standing on flat ground. Fields may be changed
// between ticks.
type Static struct {
	Skel         *skeleton.Skeleton
	GroundHeight float32

	Pos      mgl32.Vec3
	Rot      mgl32.Quat
	Vel      mgl32.Vec3
	AngVel   mgl32.Vec3
	Dilation float32
	Area     float32

	Board *Blackboard
}

// NewStatic creates a character at the origin on ground height zero.
func NewStatic(skel *skeleton.Skeleton) *Static {
	return &Static{
		Skel:     skel,
		Rot:      mgl32.QuatIdent(),
		Dilation: 1,
		Area:     DefaultPixelArea,
		Board:    NewBlackboard(),
	}
}

func (s *Static) Skeleton() *skeleton.Skeleton { return s.Skel }

func (s *Static) Ground(pos mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	return mgl32.Vec3{pos.X(), pos.Y(), s.GroundHeight}, mgl32.Vec3{0, 0, 1}
}

func (s *Static) Position() mgl32.Vec3        { return s.Pos }
func (s *Static) Rotation() mgl32.Quat        { return s.Rot }
func (s *Static) Velocity() mgl32.Vec3        { return s.Vel }
func (s *Static) AngularVelocity() mgl32.Vec3 { return s.AngVel }
func (s *Static) TimeDilation() float32       { return s.Dilation }
func (s *Static) PixelArea() float32          { return s.Area }
func (s *Static) Blackboard() *Blackboard     { return s.Board }
