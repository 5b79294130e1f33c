package motion

import (
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/pose"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// Null animates nothing. Controllers hand it out for ids that failed to load.
type Null struct {
	Base
}

// NewNull creates a null motion.
func NewNull(id clip.ID) *Null {
	n := &Null{Base: NewBase(id)}
	n.state.Phase = Loaded
	return n
}

func (n *Null) Name() string                          { return "null" }
func (n *Null) Priority() skeleton.Priority           { return skeleton.Low }
func (n *Null) BlendMode() pose.BlendMode             { return pose.Normal }
func (n *Null) Loop() bool                            { return true }
func (n *Null) Duration() float32                     { return 0 }
func (n *Null) EaseIn() float32                       { return 0 }
func (n *Null) EaseOut() float32                      { return 0 }
func (n *Null) MinPixelArea() float32                 { return 0 }
func (n *Null) Initialize(character.Character) Status { return Success }
func (n *Null) Activate(float32)                      {}
func (n *Null) Update(float32, []uint8) bool          { return true }
func (n *Null) Deactivate()                           {}
