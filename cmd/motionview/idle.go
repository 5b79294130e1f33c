package main

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/curve"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// idleID names the built-in idle clip, available without any asset source.
var idleID = uuid.MustParse("5f0c7c1e-2a8d-4c39-9b61-6d3e0a4f7b21")

const (
	idleName       = "idle"
	walkAdjustName = "walk_adjust"
)

// idleClip is a slow looping head sway with a chest breath.
func idleClip() *clip.Clip {
	sway := func(axis mgl32.Vec3, angle float32) curve.RotationCurve {
		c, _ := curve.NewRotationCurve(curve.Linear, []curve.RotationKey{
			{Time: 0, Value: mgl32.QuatIdent()},
			{Time: 1, Value: mgl32.QuatRotate(angle, axis)},
			{Time: 2, Value: mgl32.QuatIdent()},
			{Time: 3, Value: mgl32.QuatRotate(-angle, axis)},
			{Time: 4, Value: mgl32.QuatIdent()},
		})
		return c
	}
	c := &clip.Clip{
		ID:           idleID,
		BasePriority: skeleton.Low,
		Duration:     4,
		Loop:         true,
		LoopOut:      4,
		EaseIn:       0.5,
		EaseOut:      0.5,
		Joints: []clip.JointTrack{
			{Name: skeleton.Head, Priority: skeleton.UseMotionPriority, Rotation: sway(mgl32.Vec3{0, 0, 1}, 0.15)},
			{Name: skeleton.Chest, Priority: skeleton.UseMotionPriority, Rotation: sway(mgl32.Vec3{0, 1, 0}, 0.03)},
		},
	}
	c.Finalize()
	return c
}
