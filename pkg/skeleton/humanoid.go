package skeleton

import "github.com/go-gl/mathgl/mgl32"

// Standard joint names used by the humanoid layout and by clips authored for it.
const (
	Pelvis = "mPelvis"
	Torso  = "mTorso"
	Chest  = "mChest"
	Neck   = "mNeck"
	Head   = "mHead"
)

type boneDef struct {
	name   string
	parent string
	pos    mgl32.Vec3
}

type volumeDef struct {
	name  string
	joint string
	pos   mgl32.Vec3
	scale mgl32.Vec3
}

// Axes: X forward, Y left, Z up. Lengths in meters.
var humanoidBones = []boneDef{
	{Pelvis, "", mgl32.Vec3{0, 0, 1.067}},
	{Torso, Pelvis, mgl32.Vec3{0, 0, 0.084}},
	{Chest, Torso, mgl32.Vec3{-0.015, 0, 0.205}},
	{Neck, Chest, mgl32.Vec3{-0.010, 0, 0.251}},
	{Head, Neck, mgl32.Vec3{0, 0, 0.076}},
	{"mCollarLeft", Chest, mgl32.Vec3{-0.021, 0.085, 0.165}},
	{"mShoulderLeft", "mCollarLeft", mgl32.Vec3{0, 0.079, 0}},
	{"mElbowLeft", "mShoulderLeft", mgl32.Vec3{0, 0.248, 0}},
	{"mWristLeft", "mElbowLeft", mgl32.Vec3{0, 0.205, 0}},
	{"mCollarRight", Chest, mgl32.Vec3{-0.021, -0.085, 0.165}},
	{"mShoulderRight", "mCollarRight", mgl32.Vec3{0, -0.079, 0}},
	{"mElbowRight", "mShoulderRight", mgl32.Vec3{0, -0.248, 0}},
	{"mWristRight", "mElbowRight", mgl32.Vec3{0, -0.205, 0}},
	{"mHipLeft", Pelvis, mgl32.Vec3{0.034, 0.127, -0.041}},
	{"mKneeLeft", "mHipLeft", mgl32.Vec3{-0.046, -0.001, -0.491}},
	{"mAnkleLeft", "mKneeLeft", mgl32.Vec3{0.001, -0.046, -0.468}},
	{"mFootLeft", "mAnkleLeft", mgl32.Vec3{0.112, 0, -0.061}},
	{"mHipRight", Pelvis, mgl32.Vec3{0.034, -0.129, -0.041}},
	{"mKneeRight", "mHipRight", mgl32.Vec3{-0.049, 0, -0.491}},
	{"mAnkleRight", "mKneeRight", mgl32.Vec3{0, 0.045, -0.468}},
	{"mFootRight", "mAnkleRight", mgl32.Vec3{0.112, 0, -0.061}},
}

var humanoidVolumes = []volumeDef{
	{"PELVIS", Pelvis, mgl32.Vec3{-0.01, 0, -0.02}, mgl32.Vec3{0.12, 0.16, 0.17}},
	{"BELLY", Torso, mgl32.Vec3{0.028, 0, 0.04}, mgl32.Vec3{0.09, 0.13, 0.15}},
	{"CHEST", Chest, mgl32.Vec3{0.028, 0, 0.07}, mgl32.Vec3{0.11, 0.15, 0.2}},
	{"HEAD", Head, mgl32.Vec3{0.02, 0, 0.07}, mgl32.Vec3{0.11, 0.09, 0.12}},
	{"L_HAND", "mWristLeft", mgl32.Vec3{0.01, 0.05, 0}, mgl32.Vec3{0.05, 0.04, 0.03}},
	{"R_HAND", "mWristRight", mgl32.Vec3{0.01, -0.05, 0}, mgl32.Vec3{0.05, 0.04, 0.03}},
	{"L_FOOT", "mFootLeft", mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0.13, 0.05, 0.05}},
	{"R_FOOT", "mFootRight", mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0.13, 0.05, 0.05}},
}

// Humanoid builds the standard biped layout with its collision volumes.
func Humanoid() *Skeleton {
	s := New()
	for _, b := range humanoidBones {
		parent := NoJoint
		if b.parent != "" {
			parent, _ = s.Find(b.parent)
		}
		if _, err := s.AddJoint(b.name, parent, At(b.pos)); err != nil {
			panic(err)
		}
	}
	for _, v := range humanoidVolumes {
		j, _ := s.Find(v.joint)
		off := At(v.pos)
		off.Scale = v.scale
		if _, err := s.AddVolume(v.name, j, off); err != nil {
			panic(err)
		}
	}
	return s
}
