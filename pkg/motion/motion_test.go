package motion

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/teslashibe/go-motion/pkg/asset"
	"github.com/teslashibe/go-motion/pkg/character"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/curve"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

func floatEquals(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func testClip(id clip.ID) *clip.Clip {
	z := mgl32.Vec3{0, 0, 1}
	rot, _ := curve.NewRotationCurve(curve.Linear, []curve.RotationKey{
		{Time: 0, Value: mgl32.QuatIdent()},
		{Time: 4, Value: mgl32.QuatRotate(1.2, z)},
	})
	c := &clip.Clip{
		ID:           id,
		BasePriority: skeleton.Medium,
		Duration:     4,
		LoopOut:      4,
		EaseIn:       0.5,
		EaseOut:      0.5,
		HandPose:     clip.HandPoint,
		Joints: []clip.JointTrack{
			{Name: skeleton.Pelvis, Priority: skeleton.UseMotionPriority, Rotation: rot},
			{Name: skeleton.Head, Priority: skeleton.High, Rotation: rot},
			{Name: "mTail", Priority: skeleton.UseMotionPriority, Rotation: rot},
		},
	}
	c.Finalize()
	return c
}

func loopClip(id clip.ID) *clip.Clip {
	c := testClip(id)
	c.Loop = true
	c.LoopIn = 1
	c.LoopOut = 3
	c.Finalize()
	return c
}

// loaded returns a keyframe motion initialized from a private cache.
func loaded(t *testing.T, c *clip.Clip) (*Keyframe, *character.Static) {
	t.Helper()
	cache := clip.NewCache()
	cache.Add(c).Release()
	ch := character.NewStatic(skeleton.Humanoid())
	k := NewKeyframe(c.ID, &Source{Cache: cache})
	if st := k.Initialize(ch); st != Success {
		t.Fatalf("Initialize: got %v, want success", st)
	}
	return k, ch
}

func TestKeyframeHoldsUntilFetched(t *testing.T) {
	id := uuid.New()
	data, err := clip.Encode(testClip(id))
	if err != nil {
		t.Fatal(err)
	}
	mem := asset.NewMemory()
	mem.Put(id, data)
	cache := clip.NewCache()

	var fetched func()
	held := asset.FetcherFunc(func(ctx context.Context, id clip.ID, done func([]byte, error)) {
		fetched = func() { mem.Fetch(ctx, id, done) }
	})
	k := NewKeyframe(id, &Source{Fetcher: held, Cache: cache})
	ch := character.NewStatic(skeleton.Humanoid())

	for i := 0; i < 3; i++ {
		if st := k.Initialize(ch); st != Hold {
			t.Fatalf("poll %d: got %v, want hold", i, st)
		}
	}
	if k.State().Phase != Holding {
		t.Errorf("phase: got %v, want holding", k.State().Phase)
	}
	fetched()
	if st := k.Initialize(ch); st != Success {
		t.Fatalf("after fetch: got %v, want success", st)
	}
	if k.State().Phase != Loaded {
		t.Errorf("phase: got %v, want loaded", k.State().Phase)
	}
	if mem.Fetches() != 1 {
		t.Errorf("fetches: got %d, want 1", mem.Fetches())
	}
	if cache.Subscribers(id) != 1 {
		t.Errorf("subscribers: got %d, want 1", cache.Subscribers(id))
	}
	k.Release()
	if cache.Subscribers(id) != 0 {
		t.Errorf("subscribers after release: got %d, want 0", cache.Subscribers(id))
	}
}

func TestKeyframeFetchesOnce(t *testing.T) {
	id := uuid.New()
	mem := asset.NewMemory()
	k := NewKeyframe(id, &Source{Fetcher: mem, Cache: clip.NewCache()})
	ch := character.NewStatic(skeleton.Humanoid())

	if st := k.Initialize(ch); st != Hold {
		t.Fatalf("first: got %v, want hold", st)
	}
	if st := k.Initialize(ch); st != Failure {
		t.Fatalf("missing asset: got %v, want failure", st)
	}
	if st := k.Initialize(ch); st != Failure {
		t.Fatalf("after failure: got %v, want failure", st)
	}
	if k.State().Phase != Failed {
		t.Errorf("phase: got %v, want failed", k.State().Phase)
	}
	if mem.Fetches() != 1 {
		t.Errorf("fetches: got %d, want 1", mem.Fetches())
	}
}

func TestKeyframeRejectsBadData(t *testing.T) {
	id := uuid.New()
	mem := asset.NewMemory()
	mem.Put(id, []byte{1, 0, 0})
	k := NewKeyframe(id, &Source{Fetcher: mem, Cache: clip.NewCache()})
	ch := character.NewStatic(skeleton.Humanoid())

	k.Initialize(ch)
	if st := k.Initialize(ch); st != Failure {
		t.Errorf("got %v, want failure", st)
	}
}

func TestKeyframeServedFromCache(t *testing.T) {
	c := testClip(uuid.New())
	mem := asset.NewMemory()
	cache := clip.NewCache()
	cache.Add(c).Release()

	k := NewKeyframe(c.ID, &Source{Fetcher: mem, Cache: cache})
	if st := k.Initialize(character.NewStatic(skeleton.Humanoid())); st != Success {
		t.Fatalf("got %v, want success", st)
	}
	if mem.Fetches() != 0 {
		t.Errorf("fetches: got %d, want 0", mem.Fetches())
	}
}

func TestKeyframeBindingSkipsMissingJoints(t *testing.T) {
	k, ch := loaded(t, testClip(uuid.New()))
	sk := ch.Skeleton()

	if n := len(k.Pose().States); n != 2 {
		t.Fatalf("states: got %d, want 2", n)
	}
	pelvis, _ := sk.Find(skeleton.Pelvis)
	head, _ := sk.Find(skeleton.Head)
	sig := k.Signature()
	if got := sig[SigRotation][pelvis]; got != skeleton.Medium.Signature() {
		t.Errorf("pelvis rotation bits: got %#x, want %#x", got, skeleton.Medium.Signature())
	}
	if got := sig[SigRotation][head]; got != skeleton.High.Signature() {
		t.Errorf("head rotation bits: got %#x, want %#x", got, skeleton.High.Signature())
	}
	if got := sig[SigPosition][pelvis]; got != 0 {
		t.Errorf("pelvis position bits: got %#x, want 0", got)
	}
}

func TestKeyframeRebindsOnSkeletonChange(t *testing.T) {
	k, ch := loaded(t, testClip(uuid.New()))
	sk := ch.Skeleton()
	root, _ := sk.Find(skeleton.Pelvis)
	if _, err := sk.AddJoint("mTail", root, skeleton.Identity()); err != nil {
		t.Fatal(err)
	}
	k.Update(1, nil)
	if n := len(k.Pose().States); n != 3 {
		t.Errorf("states after rebind: got %d, want 3", n)
	}
}

func TestKeyframeEvaluatesTracks(t *testing.T) {
	c := testClip(uuid.New())
	k, _ := loaded(t, c)

	if !k.Update(2, nil) {
		t.Error("Update inside duration returned false")
	}
	want := c.Joints[0].Rotation.Eval(2, c.Duration)
	if got := k.Pose().States[0].Rotation; !got.ApproxEqualThreshold(want, 1e-5) {
		t.Errorf("rotation: got %v, want %v", got, want)
	}
	if k.Update(4.5, nil) {
		t.Error("Update past duration returned true")
	}
}

func TestKeyframeLoopWrap(t *testing.T) {
	c := loopClip(uuid.New())
	k, _ := loaded(t, c)
	k.State().Stopped = false

	tests := []struct {
		t, want float32
	}{
		{0.5, 0.5},
		{2.9, 2.9},
		{3.5, 1.5},
		{5.25, 1.25},
	}
	for _, tt := range tests {
		if !k.Update(tt.t, nil) {
			t.Errorf("Update(%v) returned false", tt.t)
		}
		if !floatEquals(k.lastLooped, tt.want) {
			t.Errorf("loop time at %v: got %v, want %v", tt.t, k.lastLooped, tt.want)
		}
	}
}

func TestKeyframeStoppedLoopPlaysTail(t *testing.T) {
	c := loopClip(uuid.New())
	k, _ := loaded(t, c)
	k.State().Stopped = false

	k.Update(3.5, nil)
	k.State().Stopped = true
	k.Update(4.0, nil)
	if !floatEquals(k.lastLooped, 2.0) {
		t.Errorf("tail: got %v, want 2.0", k.lastLooped)
	}
	k.Update(9, nil)
	if k.lastLooped != c.Duration {
		t.Errorf("tail clamp: got %v, want %v", k.lastLooped, c.Duration)
	}
}

func TestKeyframeLoopingStopTime(t *testing.T) {
	k, _ := loaded(t, loopClip(uuid.New()))

	k.SetStopTime(2.2)
	st := k.State()
	if !st.Stopped {
		t.Error("not stopped")
	}
	// Finish the current loop pass, then the 1s tail, less the ease out.
	if !floatEquals(st.StopTime, 3.5) {
		t.Errorf("stop time: got %v, want 3.5", st.StopTime)
	}
}

func TestKeyframePublishesHandPose(t *testing.T) {
	k, ch := loaded(t, testClip(uuid.New()))
	bb := ch.Blackboard()

	character.Set(bb, character.HandPose, clip.HandFist)
	character.Set(bb, character.HandPosePriority, skeleton.Highest)
	k.Update(1, nil)
	if hp, _ := character.Get(bb, character.HandPose); hp != clip.HandFist {
		t.Errorf("lower priority clip overwrote hand pose: got %v", hp)
	}

	character.Clear(bb, character.HandPosePriority)
	k.Update(1.1, nil)
	if hp, _ := character.Get(bb, character.HandPose); hp != clip.HandPoint {
		t.Errorf("hand pose: got %v, want %v", hp, clip.HandPoint)
	}
	if p, _ := character.Get(bb, character.HandPosePriority); p != skeleton.High {
		t.Errorf("hand pose priority: got %v, want %v", p, skeleton.High)
	}
}

func TestWalkFollowsSpeed(t *testing.T) {
	c := loopClip(uuid.New())
	cache := clip.NewCache()
	cache.Add(c).Release()
	ch := character.NewStatic(skeleton.Humanoid())
	w := NewWalk(c.ID, &Source{Cache: cache})
	if st := w.Initialize(ch); st != Success {
		t.Fatalf("Initialize: got %v", st)
	}
	w.State().Stopped = false
	w.Activate(0)

	character.Set(ch.Blackboard(), character.WalkSpeed, float32(2))
	w.Update(0.25, nil)
	if !floatEquals(w.phase, 0.5) {
		t.Errorf("phase: got %v, want 0.5", w.phase)
	}
	character.Set(ch.Blackboard(), character.WalkSpeed, float32(100))
	w.Update(0.35, nil)
	if !floatEquals(w.phase, 1.5) {
		t.Errorf("capped phase: got %v, want 1.5", w.phase)
	}
}

func TestWalkIgnoresBackwardTime(t *testing.T) {
	c := loopClip(uuid.New())
	cache := clip.NewCache()
	cache.Add(c).Release()
	ch := character.NewStatic(skeleton.Humanoid())
	w := NewWalk(c.ID, &Source{Cache: cache})
	if st := w.Initialize(ch); st != Success {
		t.Fatalf("Initialize: got %v", st)
	}
	w.State().Stopped = false
	w.Activate(0)

	w.Update(1, nil)
	w.Update(0.5, nil)
	if w.Phase() < 1 {
		t.Errorf("phase after earlier time: got %v, want >= 1", w.Phase())
	}
	w.Update(1.25, nil)
	if !floatEquals(w.Phase(), 1.25) {
		t.Errorf("phase after resume: got %v, want 1.25", w.Phase())
	}
}

func TestWalkAdjustPublishesGroundSpeed(t *testing.T) {
	ch := character.NewStatic(skeleton.Humanoid())
	bb := ch.Blackboard()
	w := NewWalkAdjust(WalkAdjustID)
	if st := w.Initialize(ch); st != Success {
		t.Fatalf("Initialize: got %v", st)
	}
	if n := len(w.Pose().States); n != 0 {
		t.Errorf("pose states: got %d, want 0", n)
	}

	// Vertical motion does not count toward ground speed.
	ch.Vel = mgl32.Vec3{3 * WalkReferenceSpeed, 4 * WalkReferenceSpeed, 7}
	w.Activate(0)
	w.Update(0, nil)
	if v, _ := character.Get(bb, character.WalkSpeed); !floatEquals(v, 5) {
		t.Errorf("initial speed: got %v, want 5", v)
	}

	ch.Vel = mgl32.Vec3{WalkReferenceSpeed, 0, 0}
	w.Update(walkSpeedTimeConstant, nil)
	if v, _ := character.Get(bb, character.WalkSpeed); !floatEquals(v, 3) {
		t.Errorf("smoothed speed: got %v, want 3", v)
	}

	ch.Vel = mgl32.Vec3{100 * WalkReferenceSpeed, 0, 0}
	w.Activate(0)
	w.Update(0, nil)
	if v, _ := character.Get(bb, character.WalkSpeed); v != MaxWalkSpeed {
		t.Errorf("capped speed: got %v, want %v", v, MaxWalkSpeed)
	}

	w.Deactivate()
	if _, ok := character.Get(bb, character.WalkSpeed); ok {
		t.Error("walk speed still published after Deactivate")
	}
}

func TestRegistry(t *testing.T) {
	built := 0
	r := NewRegistry(func(id clip.ID) Motion {
		built++
		return NewNull(id)
	})
	id := uuid.New()

	if m := r.Create(id); m == nil || m.ID() != id {
		t.Fatalf("fallback: got %v", m)
	}
	if err := r.Register(id, func(id clip.ID) Motion { return NewNull(id) }); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(id, nil); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate: got %v, want ErrAlreadyRegistered", err)
	}
	r.Create(id)
	if built != 1 {
		t.Errorf("fallback calls: got %d, want 1", built)
	}

	r.MarkBad(id)
	if !r.IsBad(id) || r.Create(id) != nil {
		t.Error("bad id still constructed")
	}
	if bad := r.Bad(); len(bad) != 1 || bad[0] != id {
		t.Errorf("Bad: got %v", bad)
	}
}

func TestNullMotion(t *testing.T) {
	n := NewNull(uuid.Nil)
	if st := n.Initialize(nil); st != Success {
		t.Errorf("Initialize: got %v", st)
	}
	if !n.Update(10, nil) {
		t.Error("Update returned false")
	}
	if len(n.Pose().States) != 0 {
		t.Error("null motion has joint states")
	}
	if !n.State().Stopped {
		t.Error("fresh motion not stopped")
	}
}
