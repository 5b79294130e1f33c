package controller

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/teslashibe/go-motion/pkg/asset"
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/curve"
	"github.com/teslashibe/go-motion/pkg/motion"
	"github.com/teslashibe/go-motion/pkg/pose"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

func floatEquals(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// fakeMotion drives one joint's rotation with a fixed value.
type fakeMotion struct {
	motion.Base

	prio    skeleton.Priority
	mode    pose.BlendMode
	dur     float32
	loop    bool
	easeIn  float32
	easeOut float32
	minArea float32
	rot     mgl32.Quat
	joint   string

	result  bool
	updates int
}

func newFake(joint string, prio skeleton.Priority, angle float32) *fakeMotion {
	return &fakeMotion{
		Base:   motion.NewBase(uuid.New()),
		prio:   prio,
		loop:   true,
		rot:    mgl32.QuatRotate(angle, mgl32.Vec3{0, 0, 1}),
		joint:  joint,
		result: true,
	}
}

func (f *fakeMotion) Name() string                { return "fake" }
func (f *fakeMotion) Priority() skeleton.Priority { return f.prio }
func (f *fakeMotion) BlendMode() pose.BlendMode   { return f.mode }
func (f *fakeMotion) Loop() bool                  { return f.loop }
func (f *fakeMotion) Duration() float32           { return f.dur }
func (f *fakeMotion) EaseIn() float32             { return f.easeIn }
func (f *fakeMotion) EaseOut() float32            { return f.easeOut }
func (f *fakeMotion) MinPixelArea() float32       { return f.minArea }
func (f *fakeMotion) Activate(float32)            {}
func (f *fakeMotion) Deactivate()                 {}

func (f *fakeMotion) Initialize(ch character.Character) motion.Status {
	sk := ch.Skeleton()
	j, ok := sk.Find(f.joint)
	if !ok {
		return motion.Failure
	}
	f.Pose().Reset()
	s := pose.NewJointState(j, pose.UseRotation, f.prio)
	s.Rotation = f.rot
	f.Pose().Add(s)
	f.Signature().Reset(sk.Len())
	f.Signature()[motion.SigRotation][j] = f.prio.Signature()
	return motion.Success
}

func (f *fakeMotion) Update(float32, []uint8) bool {
	f.updates++
	return f.result
}

type fixture struct {
	ch    *character.Static
	cache *clip.Cache
	mem   *asset.Memory
	reg   *motion.Registry
	c     *Controller
	stops []clip.ID
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		ch:    character.NewStatic(skeleton.Humanoid()),
		cache: clip.NewCache(),
		mem:   asset.NewMemory(),
	}
	src := &motion.Source{Fetcher: f.mem, Cache: f.cache}
	f.reg = motion.NewRegistry(src.Keyframe)
	f.c = New(f.ch, f.reg, cfg)
	f.c.SetSink(character.SinkFunc(func(id clip.ID) { f.stops = append(f.stops, id) }))
	return f
}

func (f *fixture) fake(t *testing.T, m *fakeMotion) clip.ID {
	t.Helper()
	if err := f.reg.Register(m.ID(), func(clip.ID) motion.Motion { return m }); err != nil {
		t.Fatal(err)
	}
	return m.ID()
}

// headClip returns a cached clip turning the head by angle radians.
func (f *fixture) headClip(prio skeleton.Priority, angle, dur, easeIn, easeOut float32) *clip.Clip {
	q := mgl32.QuatRotate(angle, mgl32.Vec3{0, 0, 1})
	rot, _ := curve.NewRotationCurve(curve.Linear, []curve.RotationKey{
		{Time: 0, Value: q},
		{Time: dur, Value: q},
	})
	c := &clip.Clip{
		ID:           uuid.New(),
		BasePriority: prio,
		Duration:     dur,
		LoopOut:      dur,
		EaseIn:       easeIn,
		EaseOut:      easeOut,
		HandPose:     clip.HandRelaxed,
		Joints: []clip.JointTrack{
			{Name: skeleton.Head, Priority: skeleton.UseMotionPriority, Rotation: rot},
		},
	}
	c.Finalize()
	f.cache.Add(c).Release()
	return c
}

func (f *fixture) ticks(from, to, step int) {
	for t := from; t <= to; t += step {
		f.c.Update(ms(t))
	}
}

func (f *fixture) head() mgl32.Quat {
	sk := f.ch.Skeleton()
	j, _ := sk.Find(skeleton.Head)
	return sk.LocalRotation(j)
}

func TestAutoStopNotifiesOnce(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 2, 0.5, 0.5)

	if !f.c.StartMotion(c.ID, 0) {
		t.Fatal("StartMotion returned false")
	}
	f.ticks(0, 1500, 100)
	if len(f.stops) != 0 {
		t.Fatalf("notified before scheduled stop: %v", f.stops)
	}
	f.c.Update(ms(1600))
	if len(f.stops) != 1 || f.stops[0] != c.ID {
		t.Fatalf("notifications at 1.6s: got %v, want [%s]", f.stops, c.ID)
	}
	f.ticks(1700, 3000, 100)
	if len(f.stops) != 1 {
		t.Errorf("notifications: got %d, want 1", len(f.stops))
	}
	if f.c.IsMotionActive(c.ID) {
		t.Error("motion still active after ease out")
	}
}

func TestUpdateFalseStopsMotion(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	m := newFake(skeleton.Head, skeleton.Medium, 0.3)
	m.result = false
	m.easeOut = 0.2
	id := f.fake(t, m)

	f.c.StartMotion(id, 0)
	f.ticks(100, 1000, 100)
	if len(f.stops) != 1 {
		t.Errorf("notifications: got %d, want 1", len(f.stops))
	}
	if f.c.IsMotionActive(id) {
		t.Error("motion still active")
	}
}

func TestAtMostOneInstance(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 2, 0, 0)

	a := f.c.CreateMotion(c.ID)
	b := f.c.CreateMotion(c.ID)
	if a != b {
		t.Error("second CreateMotion built a new instance")
	}
	f.c.StartMotion(c.ID, 0)
	f.c.StartMotion(c.ID, 0)
	if n := len(f.c.ActiveMotions()); n != 1 {
		t.Errorf("active: got %d, want 1", n)
	}
	if s := f.c.Snapshot(); s.Instances != 1 || len(s.Active) != 1 {
		t.Errorf("snapshot: got %d instances, %d active", s.Instances, len(s.Active))
	}
}

func TestBadIDShortCircuits(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := uuid.New()

	if !f.c.StartMotion(id, 0) {
		t.Fatal("start of an unloaded id should be pending")
	}
	if !f.c.IsMotionLoading(id) {
		t.Fatal("not loading")
	}
	f.c.Update(ms(100))
	if f.c.IsMotionLoading(id) {
		t.Error("still loading after failure")
	}
	if !f.reg.IsBad(id) {
		t.Error("id not marked bad")
	}
	if m := f.c.CreateMotion(id); m != f.c.Null() {
		t.Errorf("CreateMotion: got %v, want null motion", m)
	}
	if f.c.StartMotion(id, 0) {
		t.Error("StartMotion of bad id returned true")
	}
	if f.mem.Fetches() != 1 {
		t.Errorf("fetches: got %d, want 1", f.mem.Fetches())
	}
}

func TestHoldPolling(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 2, 0, 0)
	f.cache.Flush(c.ID, true)
	data, err := clip.Encode(c)
	if err != nil {
		t.Fatal(err)
	}

	var deliver func()
	held := asset.FetcherFunc(func(ctx context.Context, id clip.ID, done func([]byte, error)) {
		deliver = func() { done(data, nil) }
	})
	src := &motion.Source{Fetcher: held, Cache: f.cache}
	f.reg = motion.NewRegistry(src.Keyframe)
	f.c = New(f.ch, f.reg, DefaultConfig())

	if !f.c.StartMotion(c.ID, 0) {
		t.Fatal("StartMotion returned false")
	}
	f.ticks(100, 500, 100)
	if !f.c.IsMotionLoading(c.ID) || f.c.IsMotionActive(c.ID) {
		t.Fatal("motion should be loading and inactive")
	}

	deliver()
	f.c.Update(ms(600))
	if !f.c.IsMotionActive(c.ID) {
		t.Fatal("motion not active after load")
	}
	m, _ := f.c.FindMotion(c.ID)
	if got := m.State().ActivationTime; !floatEquals(got, 0.6) {
		t.Errorf("activation: got %v, want 0.6", got)
	}
}

func TestStopWhileLoading(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 2, 0, 0)
	f.cache.Flush(c.ID, true)
	data, _ := clip.Encode(c)
	f.mem.Put(c.ID, data)

	f.c.StartMotion(c.ID, 0)
	if !f.c.StopMotionLocally(c.ID, false) {
		t.Fatal("StopMotionLocally on loading motion returned false")
	}
	f.c.Update(ms(100))
	if f.c.IsMotionActive(c.ID) {
		t.Error("stopped motion activated after loading")
	}
	if f.c.StopMotionLocally(uuid.New(), false) {
		t.Error("stopping an unknown id returned true")
	}
}

func TestEaseMonotonic(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 4, 1, 1)
	f.c.StartMotion(c.ID, 0)
	m, _ := f.c.FindMotion(c.ID)

	prev := float32(-1)
	for tick := 0; tick <= 1000; tick += 50 {
		f.c.Update(ms(tick))
		w := m.Pose().Weight
		if w < prev {
			t.Fatalf("ease in decreased at %dms: %v < %v", tick, w, prev)
		}
		prev = w
	}
	f.c.Update(ms(1100))
	if m.Pose().Weight != 1 {
		t.Fatalf("steady weight: got %v, want 1", m.Pose().Weight)
	}

	f.c.StopMotionLocally(c.ID, false)
	for tick := 1150; tick <= 2200; tick += 50 {
		f.c.Update(ms(tick))
		w := m.Pose().Weight
		if w > prev {
			t.Fatalf("ease out increased at %dms: %v > %v", tick, w, prev)
		}
		prev = w
	}
	if f.c.IsMotionActive(c.ID) {
		t.Error("motion active after ease out")
	}
}

func TestStopDuringEaseIn(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 4, 1, 1)
	f.c.StartMotion(c.ID, 0)
	m, _ := f.c.FindMotion(c.ID)

	f.ticks(0, 500, 50)
	prev := m.Pose().Weight
	if prev <= 0 || prev >= 1 {
		t.Fatalf("weight mid ease in: got %v, want in (0, 1)", prev)
	}

	f.c.StopMotionLocally(c.ID, false)
	for tick := 550; tick <= 1600; tick += 50 {
		f.c.Update(ms(tick))
		w := m.Pose().Weight
		if w > prev {
			t.Fatalf("weight rose after stop at %dms: %v > %v", tick, w, prev)
		}
		prev = w
	}
	if f.c.IsMotionActive(c.ID) {
		t.Error("motion active after ease out")
	}
}

func TestImmediateStop(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 4, 0, 1)
	f.c.StartMotion(c.ID, 0)
	f.c.Update(ms(100))

	if !f.c.StopMotionLocally(c.ID, true) {
		t.Fatal("StopMotionLocally returned false")
	}
	if f.c.IsMotionActive(c.ID) {
		t.Error("immediate stop left motion active")
	}
	m, _ := f.c.FindMotion(c.ID)
	if m.Pose().Weight != 0 || m.State().Phase != motion.Deactivated {
		t.Errorf("after stop: weight %v phase %v", m.Pose().Weight, m.State().Phase)
	}
}

func TestFlushAllRestoresElapsed(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 4, 0, 0)
	f.c.StartMotion(c.ID, 0.25)
	f.ticks(0, 1000, 100)
	before, _ := f.c.FindMotion(c.ID)

	f.c.FlushAll()
	after, ok := f.c.FindMotion(c.ID)
	if !ok || after == before {
		t.Fatal("flush did not rebuild the instance")
	}
	if !f.c.IsMotionActive(c.ID) {
		t.Fatal("motion not restarted")
	}
	if got := after.State().ActivationTime; !floatEquals(got, -0.25) {
		t.Errorf("activation: got %v, want -0.25", got)
	}
	if f.cache.Subscribers(c.ID) != 1 {
		t.Errorf("cache subscribers: got %d, want 1", f.cache.Subscribers(c.ID))
	}
}

func TestSetTimeStepFloorsTimestamps(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	c := f.headClip(skeleton.Medium, 0.5, 2, 0, 0.5)
	f.c.Update(ms(370))
	f.c.StartMotion(c.ID, 0)

	f.c.SetTimeStep(0.25)
	m, _ := f.c.FindMotion(c.ID)
	st := m.State()
	if !floatEquals(st.ActivationTime, 0.25) {
		t.Errorf("activation: got %v, want 0.25", st.ActivationTime)
	}
	// 0.37 + 1.5 = 1.87
	if !floatEquals(st.SendStopTime, 1.75) {
		t.Errorf("scheduled stop: got %v, want 1.75", st.SendStopTime)
	}
	if st.Stopped {
		t.Error("flooring the stop time stopped the motion")
	}
}

func TestQuantizedTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeStep = 0.25
	f := newFixture(t, cfg)

	tests := []struct {
		clock int
		want  float32
	}{
		{100, 0.25},
		{200, 0.25},
		{300, 0.5},
		{1000, 1.25},
	}
	for _, tt := range tests {
		f.c.Update(ms(tt.clock))
		if got := f.c.Time(); got != tt.want {
			t.Errorf("time at %dms: got %v, want %v", tt.clock, got, tt.want)
		}
	}
}

func TestQuantizedPoseInterpolates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeStep = 0.25
	f := newFixture(t, cfg)
	c := f.headClip(skeleton.Medium, 1.0, 4, 0, 0)

	f.c.Update(ms(0))
	f.c.StartMotion(c.ID, 0)
	f.c.Update(ms(300))
	f.c.Update(ms(500))
	target := mgl32.QuatRotate(1.0, mgl32.Vec3{0, 0, 1})
	if got := f.head(); !got.ApproxEqualThreshold(target, 1e-4) {
		t.Errorf("head at quantum boundary: got %v, want %v", got, target)
	}
}

func TestPauseFreezesTime(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.c.Update(ms(1000))
	f.c.Pause()
	f.c.Update(ms(3000))
	if f.c.Time() != 1 {
		t.Errorf("paused time: got %v, want 1", f.c.Time())
	}
	f.c.Unpause()
	f.c.Update(ms(4000))
	if f.c.Time() != 2 {
		t.Errorf("resumed time: got %v, want 2", f.c.Time())
	}
}

func TestTimeFactor(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.c.Update(ms(1000))
	f.c.SetTimeFactor(2)
	f.c.Update(ms(2000))
	if f.c.Time() != 3 {
		t.Errorf("double speed: got %v, want 3", f.c.Time())
	}
	f.c.SetTimeFactor(0)
	f.c.Update(ms(5000))
	if f.c.Time() != 3 {
		t.Errorf("zero speed: got %v, want 3", f.c.Time())
	}
}

func TestHigherPriorityWins(t *testing.T) {
	for _, highFirst := range []bool{false, true} {
		f := newFixture(t, DefaultConfig())
		low := f.headClip(skeleton.Medium, 0.5, 4, 0, 0)
		high := f.headClip(skeleton.High, 1.0, 4, 0, 0)
		if highFirst {
			f.c.StartMotion(high.ID, 0)
			f.c.StartMotion(low.ID, 0)
		} else {
			f.c.StartMotion(low.ID, 0)
			f.c.StartMotion(high.ID, 0)
		}
		f.ticks(100, 300, 100)
		want := mgl32.QuatRotate(1.0, mgl32.Vec3{0, 0, 1})
		if got := f.head(); !got.ApproxEqualThreshold(want, 1e-4) {
			t.Errorf("high first %v: head got %v, want %v", highFirst, got, want)
		}
	}
}

func TestClaimedMotionSkipped(t *testing.T) {
	for _, skip := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.SkipClaimed = skip
		f := newFixture(t, cfg)
		high := newFake(skeleton.Head, skeleton.High, 1.0)
		low := newFake(skeleton.Head, skeleton.Medium, 0.5)
		f.c.StartMotion(f.fake(t, high), 0)
		f.c.StartMotion(f.fake(t, low), 0)

		f.ticks(100, 500, 100)
		if high.updates != 6 {
			t.Errorf("skip %v: high updates got %d, want 6", skip, high.updates)
		}
		want := 6
		if skip {
			want = 1
		}
		if low.updates != want {
			t.Errorf("skip %v: low updates got %d, want %d", skip, low.updates, want)
		}
	}
}

func TestAdditiveLayersOnTop(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	base := newFake(skeleton.Head, skeleton.Medium, 0.4)
	add := newFake(skeleton.Head, skeleton.Additive, 0.3)
	add.mode = pose.Additive
	f.c.StartMotion(f.fake(t, add), 0)
	f.c.StartMotion(f.fake(t, base), 0)

	f.ticks(100, 200, 100)
	want := mgl32.QuatRotate(0.7, mgl32.Vec3{0, 0, 1})
	if got := f.head(); !got.ApproxEqualThreshold(want, 1e-4) {
		t.Errorf("head: got %v, want %v", got, want)
	}
}

func TestLevelOfDetailFade(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	m := newFake(skeleton.Head, skeleton.Medium, 0.5)
	m.minArea = 1000
	f.ch.Area = 10
	f.c.StartMotion(f.fake(t, m), 0)

	f.ticks(100, 2000, 100)
	if m.State().Fade >= minFadeWeight {
		t.Fatalf("fade: got %v, want < %v", m.State().Fade, minFadeWeight)
	}
	n := m.updates
	f.ticks(2100, 2500, 100)
	if m.updates != n {
		t.Errorf("faded motion still updated: %d -> %d", n, m.updates)
	}

	f.ch.Area = character.DefaultPixelArea
	f.ticks(2600, 4000, 100)
	if m.State().Fade < 0.99 {
		t.Errorf("fade back in: got %v", m.State().Fade)
	}
}

func TestLowDetailScheduledStop(t *testing.T) {
	tests := []struct {
		name      string
		stopFirst bool
		want      int
	}{
		{"runs to scheduled stop", false, 1},
		{"stopped locally first", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())
			m := newFake(skeleton.Head, skeleton.Medium, 0.5)
			m.loop = false
			m.dur = 2
			m.easeOut = 0.5
			m.minArea = 1000
			f.c.StartMotion(f.fake(t, m), 0)

			f.ticks(0, 1000, 100)
			f.ch.Area = 10
			if tt.stopFirst {
				f.c.StopMotionLocally(m.ID(), false)
			}
			f.ticks(1100, 2500, 100)

			if len(f.stops) != tt.want {
				t.Errorf("notifications: got %d, want %d", len(f.stops), tt.want)
			}
			if f.c.IsMotionActive(m.ID()) {
				t.Error("motion active after fading out")
			}
		})
	}
}

func TestWalkFollowsPublishedSpeed(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	if err := motion.RegisterWalkAdjust(f.reg); err != nil {
		t.Fatal(err)
	}
	src := &motion.Source{Fetcher: f.mem, Cache: f.cache}
	gait := f.headClip(skeleton.Medium, 0.3, 1, 0, 0)
	gait.Loop = true
	gait.Finalize()
	if err := f.reg.Register(gait.ID, src.Walk); err != nil {
		t.Fatal(err)
	}

	f.ch.Vel = mgl32.Vec3{2 * motion.WalkReferenceSpeed, 0, 0}
	f.c.StartMotion(motion.WalkAdjustID, 0)
	f.c.StartMotion(gait.ID, 0)
	m, ok := f.c.FindMotion(gait.ID)
	if !ok {
		t.Fatal("walk not created")
	}
	walk, ok := m.(*motion.Walk)
	if !ok {
		t.Fatalf("walk motion: got %T", m)
	}

	f.ticks(0, 1000, 100)
	if !floatEquals(walk.Phase(), 2) {
		t.Errorf("phase at twice reference speed: got %v, want 2", walk.Phase())
	}

	f.ch.Vel = mgl32.Vec3{0.5 * motion.WalkReferenceSpeed, 0, 0}
	f.ticks(1100, 4000, 100)
	before := walk.Phase()
	f.c.Update(ms(4100))
	if d := walk.Phase() - before; math.Abs(float64(d-0.05)) > 1e-3 {
		t.Errorf("phase step at half reference speed: got %v, want 0.05", d)
	}

	f.c.StopMotionLocally(motion.WalkAdjustID, true)
	if _, ok := character.Get(f.ch.Blackboard(), character.WalkSpeed); ok {
		t.Error("walk speed published after the publisher stopped")
	}
}

func TestEvictsIdleInstances(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInstances = 2
	f := newFixture(t, cfg)
	var ids []clip.ID
	for i := 0; i < 4; i++ {
		ids = append(ids, f.fake(t, newFake(skeleton.Head, skeleton.Medium, 0.1)))
		f.c.CreateMotion(ids[i])
	}
	f.c.StartMotion(ids[0], 0)
	f.c.Update(ms(100))

	for i, want := range []bool{true, false, false, true} {
		if _, ok := f.c.FindMotion(ids[i]); ok != want {
			t.Errorf("instance %d live: got %v, want %v", i, ok, want)
		}
	}
}

func TestEmoteStartsSecondaryClip(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	emote := f.headClip(skeleton.Low, 0.1, 1, 0, 0)
	main := f.headClip(skeleton.Medium, 0.5, 2, 0, 0)
	main.EmoteName = emote.ID.String()

	f.c.StartMotion(main.ID, 0)
	if !f.c.IsMotionActive(emote.ID) {
		t.Error("emote not started")
	}
}
