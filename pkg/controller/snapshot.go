package controller

import (
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/motion"
)

// MotionInfo describes one live motion instance.
type MotionInfo struct {
	ID         clip.ID `json:"id"`
	Kind       string  `json:"kind"`
	Phase      string  `json:"phase"`
	Priority   string  `json:"priority"`
	Blend      string  `json:"blend"`
	Weight     float32 `json:"weight"`
	Fade       float32 `json:"fade"`
	Activation float32 `json:"activation"`
	StopTime   float32 `json:"stop_time,omitempty"`
	Stopped    bool    `json:"stopped"`
	Loop       bool    `json:"loop"`
	Duration   float32 `json:"duration"`
}

// Snapshot is the controller state exposed for inspection.
type Snapshot struct {
	Time       float32      `json:"time"`
	Paused     bool         `json:"paused"`
	TimeFactor float32      `json:"time_factor"`
	TimeStep   float32      `json:"time_step"`
	Instances  int          `json:"instances"`
	Active     []MotionInfo `json:"active"`
	Loading    []clip.ID    `json:"loading"`
}

func describe(m motion.Motion) MotionInfo {
	st := m.State()
	info := MotionInfo{
		ID:         m.ID(),
		Kind:       m.Name(),
		Phase:      st.Phase.String(),
		Priority:   m.Priority().String(),
		Blend:      m.BlendMode().String(),
		Weight:     m.Pose().Weight,
		Fade:       st.Fade,
		Activation: st.ActivationTime,
		Stopped:    st.Stopped,
		Loop:       m.Loop(),
		Duration:   m.Duration(),
	}
	if st.Stopped {
		info.StopTime = st.StopTime
	}
	return info
}

// Snapshot captures the current state, active motions in activation order.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Time:       c.time,
		Paused:     c.paused,
		TimeFactor: c.timeFactor,
		TimeStep:   c.cfg.TimeStep,
		Instances:  c.all.Len(),
		Active:     make([]MotionInfo, 0, c.active.Len()),
		Loading:    c.loading.Keys(),
	}
	for el := c.active.Front(); el != nil; el = el.Next() {
		s.Active = append(s.Active, describe(el.Value))
	}
	return s
}
