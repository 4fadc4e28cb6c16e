package animator

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-skin/engine/instance"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-4

// testPopulation is a fixed Population.
type testPopulation struct {
	models    []model.Model
	instances map[model.Model][]instance.Instance
}

func newTestPopulation() *testPopulation {
	return &testPopulation{instances: make(map[model.Model][]instance.Instance)}
}

func (p *testPopulation) Models() []model.Model {
	return p.models
}

func (p *testPopulation) InstancesOf(m model.Model) []instance.Instance {
	return p.instances[m]
}

// spawn adds n enabled instances of m, each placed at (x, 0, 0) with x its position index.
func (p *testPopulation) spawn(m model.Model, n int) []instance.Instance {
	if _, ok := p.instances[m]; !ok {
		p.models = append(p.models, m)
	}
	out := make([]instance.Instance, n)
	for i := range out {
		existing := len(p.instances[m])
		out[i] = instance.NewInstance(
			instance.WithModel(m),
			instance.WithID(uint64(existing+1)),
			instance.WithPosition(float32(existing), 0, 0),
		)
		p.instances[m] = append(p.instances[m], out[i])
	}
	return out
}

func newTestRenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithWorkers(4))
	t.Cleanup(r.Release)
	return r
}

func newTestAnimator(t *testing.T, r renderer.Renderer, options ...AnimatorBuilderOption) Animator {
	t.Helper()
	a, err := NewAnimator(r, options...)
	require.NoError(t, err)
	t.Cleanup(a.Release)
	return a
}

func vec3Slice(v mgl32.Vec3) []float32 {
	return v[:]
}

func assertMat4InDelta(t *testing.T, expected, actual mgl32.Mat4, msgAndArgs ...any) {
	t.Helper()
	for i := range expected {
		assert.InDelta(t, expected[i], actual[i], epsilon, msgAndArgs...)
	}
}

func TestRunFrameRestPose(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	m := model.NewProceduralChain("chain", 3)
	pop := newTestPopulation()
	insts := pop.spawn(m, 2)

	res, err := a.RunFrame(pop)
	require.NoError(t, err)
	require.Len(t, res.Workload.Entries, 1)
	assert.Equal(t, uint32(32), res.Workload.Entries[0].PaddedInstances)
	assert.NotZero(t, res.Signal)

	// idle at time 0 is the rest pose: bone i sits at (x, i, 0)
	for j, inst := range insts {
		for bone := range uint32(3) {
			world, err := a.ReadBoneWorldMatrix(inst, bone)
			require.NoError(t, err)
			assertMat4InDelta(t, mgl32.Translate3D(float32(j), float32(bone), 0), world, "instance %d bone %d", j, bone)
		}
	}
}

func TestRunFrameBoundingSpheres(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	m := model.NewProceduralChain("chain", 3, model.WithSphereAdjustments(
		model.SphereAdjustment{RadiusScale: 0.5},
		model.SphereAdjustment{RadiusScale: 0},
		model.SphereAdjustment{RadiusScale: 1, Offset: [3]float32{0, 0.5, 0}},
	))
	pop := newTestPopulation()
	pop.spawn(m, 1)
	pop.spawn(m, 1)

	_, err := a.RunFrame(pop)
	require.NoError(t, err)

	got, err := a.ReadBoundingSpheres()
	require.NoError(t, err)
	require.Len(t, got, 2)

	for j, is := range got {
		assert.Equal(t, m, is.Model)
		require.Len(t, is.Spheres, 3)
		x := float32(j)

		assert.InDeltaSlice(t, []float32{x, 0, 0}, is.Spheres[0].Center[:], epsilon)
		assert.InDelta(t, 0.5, is.Spheres[0].Radius, epsilon)

		assert.True(t, is.Spheres[1].IsSentinel(), "radius scale 0 yields the sentinel")

		assert.InDeltaSlice(t, []float32{x, 2.5, 0}, is.Spheres[2].Center[:], epsilon)
		assert.InDelta(t, 1, is.Spheres[2].Radius, epsilon)
	}
}

func TestRunFrameSphereTuningChange(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	m := model.NewProceduralChain("chain", 2)
	pop := newTestPopulation()
	pop.spawn(m, 1)

	_, err := a.RunFrame(pop)
	require.NoError(t, err)
	got, err := a.ReadBoundingSpheres()
	require.NoError(t, err)
	assert.InDelta(t, 1, got[0].Spheres[1].Radius, epsilon)

	require.NoError(t, m.SetSphereAdjustment(1, model.SphereAdjustment{RadiusScale: 0}))
	_, err = a.RunFrame(pop)
	require.NoError(t, err)
	got, err = a.ReadBoundingSpheres()
	require.NoError(t, err)
	assert.True(t, got[0].Spheres[1].IsSentinel())
}

func TestRunFrameIdempotent(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	m := model.NewProceduralChain("chain", 4)
	pop := newTestPopulation()
	for i, inst := range pop.spawn(m, 5) {
		inst.SetAnimationTime(0.3 * float32(i))
	}

	first, err := a.RunFrame(pop)
	require.NoError(t, err)
	assert.True(t, first.Rebound, "the first frame creates every bind group")
	spheresA, err := a.ReadBoundingSpheres()
	require.NoError(t, err)

	second, err := a.RunFrame(pop)
	require.NoError(t, err)
	assert.False(t, second.Grown)
	assert.False(t, second.Rebound)
	assert.Equal(t, first.Workload, second.Workload)
	spheresB, err := a.ReadBoundingSpheres()
	require.NoError(t, err)

	require.Len(t, spheresB, len(spheresA))
	for i := range spheresA {
		assert.Equal(t, spheresA[i].Spheres, spheresB[i].Spheres)
	}
}

func TestRunFrameGrowthEquivalence(t *testing.T) {
	r := newTestRenderer(t)
	grown := newTestAnimator(t, r, WithGrowthFactor(2))
	fresh := newTestAnimator(t, newTestRenderer(t))

	chain := model.NewProceduralChain("chain", 3)
	tall := model.NewProceduralChain("tall", 5)

	small := newTestPopulation()
	small.spawn(chain, 1)
	_, err := grown.RunFrame(small)
	require.NoError(t, err)

	pop := newTestPopulation()
	for i, inst := range pop.spawn(chain, 40) {
		inst.SetAnimationTime(0.05 * float32(i))
	}
	for i, inst := range pop.spawn(tall, 10) {
		inst.SetClips(0, 1, 0.25*float32(i%4))
		inst.SetAnimationTime(0.1 * float32(i))
	}

	res, err := grown.RunFrame(pop)
	require.NoError(t, err)
	assert.True(t, res.Grown)
	assert.True(t, res.Rebound)

	_, err = fresh.RunFrame(pop)
	require.NoError(t, err)

	a, err := grown.ReadBoundingSpheres()
	require.NoError(t, err)
	b, err := fresh.ReadBoundingSpheres()
	require.NoError(t, err)
	require.Len(t, a, 50)
	require.Len(t, b, 50)
	for i := range a {
		assert.Same(t, a[i].Instance, b[i].Instance)
		assert.Equal(t, a[i].Spheres, b[i].Spheres, "instance %d", i)
	}
}

func TestRunFrameWorkloadLayout(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	ma := model.NewProceduralChain("a", 3)
	mb := model.NewProceduralChain("b", 5)
	static := model.NewModel(model.WithName("static"))
	pop := newTestPopulation()
	pop.spawn(ma, 40)
	pop.spawn(static, 3)
	disabled := pop.spawn(mb, 11)
	disabled[4].SetEnabled(false)

	res, err := a.RunFrame(pop)
	require.NoError(t, err)

	w := res.Workload
	require.Len(t, w.Entries, 2)
	assert.Equal(t, uint64(22528), w.MatrixBytes())
	assert.Equal(t, uint32(192), w.Entries[1].MatrixOffset)
	assert.Equal(t, uint32(10), w.Entries[1].InstanceCount)
	assert.Equal(t, w, a.Workload())

	_, err = a.ReadBoneWorldMatrix(disabled[4], 0)
	assert.ErrorIs(t, err, ErrInstanceNotAnimated)
	_, err = a.ReadBoneWorldMatrix(disabled[5], 5)
	assert.ErrorIs(t, err, ErrBoneOutOfRange)

	// position 5 of the model moved down to slot 4 once position 4 was disabled
	world, err := a.ReadBoneWorldMatrix(disabled[5], 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{5, 2, 0}, vec3Slice(world.Col(3).Vec3()), epsilon)
}

func TestRunFrameEmptyPopulationSubmits(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	before := r.SignalCount()
	res, err := a.RunFrame(newTestPopulation())
	require.NoError(t, err)
	assert.True(t, res.Workload.Empty())
	assert.Equal(t, before+1, r.SignalCount())

	pop := newTestPopulation()
	pop.spawn(model.NewProceduralChain("chain", 2), 3)
	_, err = a.RunFrame(pop)
	require.NoError(t, err)
	assert.Equal(t, before+2, r.SignalCount(), "populated and empty frames submit once each")

	spheres, err := a.ReadBoundingSpheres()
	require.NoError(t, err)
	assert.Len(t, spheres, 3)

	for _, inst := range pop.instances[pop.models[0]] {
		inst.SetEnabled(false)
	}
	res, err = a.RunFrame(pop)
	require.NoError(t, err)
	assert.True(t, res.Workload.Empty())
	assert.Equal(t, before+3, r.SignalCount())
	spheres, err = a.ReadBoundingSpheres()
	require.NoError(t, err)
	assert.Empty(t, spheres)
}

func TestRunFrameBlendDegradesWhenClipsMatch(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	m := model.NewProceduralChain("chain", 3)
	pop := newTestPopulation()
	insts := pop.spawn(m, 2)
	insts[0].SetClips(0, 0, 0)
	insts[1].SetClips(0, 0, 1)
	for _, inst := range insts {
		inst.SetAnimationTime(0.5)
	}

	_, err := a.RunFrame(pop)
	require.NoError(t, err)

	for bone := range uint32(3) {
		plain, err := a.ReadBoneWorldMatrix(insts[0], bone)
		require.NoError(t, err)
		blended, err := a.ReadBoneWorldMatrix(insts[1], bone)
		require.NoError(t, err)
		// the two instances differ only by their root x
		assertMat4InDelta(t, mgl32.Translate3D(1, 0, 0).Mul4(plain), blended, "bone %d", bone)
	}

	// quarter of idle bends every bone by +5 degrees
	bent, err := a.ReadBoneWorldMatrix(insts[0], 0)
	require.NoError(t, err)
	expected := mgl32.QuatRotate(mgl32.DegToRad(5), mgl32.Vec3{0, 0, 1}).Mat4()
	assertMat4InDelta(t, expected, bent)
}

func TestRunFrameHeadLook(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	m := model.NewProceduralChain("chain", 3)
	require.True(t, m.Capabilities().Has(model.CapabilityHeadMovement))
	assert.Equal(t, StageTransformHeadMove, transformFor(true))
	assert.Equal(t, StageTransform, transformFor(false))

	pop := newTestPopulation()
	insts := pop.spawn(m, 2)
	insts[1].SetHeadLook(1, 0)

	_, err := a.RunFrame(pop)
	require.NoError(t, err)

	still, err := a.ReadBoneWorldMatrix(insts[0], 2)
	require.NoError(t, err)
	assertMat4InDelta(t, mgl32.Translate3D(0, 2, 0), still)

	looking, err := a.ReadBoneWorldMatrix(insts[1], 2)
	require.NoError(t, err)
	expected := mgl32.Translate3D(1, 2, 0).Mul4(mgl32.QuatRotate(-mgl32.DegToRad(60), mgl32.Vec3{0, 1, 0}).Mat4())
	assertMat4InDelta(t, expected, looking)

	// the parent bones never move
	neck, err := a.ReadBoneWorldMatrix(insts[1], 1)
	require.NoError(t, err)
	assertMat4InDelta(t, mgl32.Translate3D(1, 1, 0), neck)
}

func TestBuildAABBLookup(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r, WithAABBSamplesPerSecond(20))

	m := model.NewProceduralChain("chain", 3)
	table, err := a.BuildAABBLookup(m)
	require.NoError(t, err)
	require.Len(t, table, m.AnimationCount())
	assert.Equal(t, table, m.AABBLookup())

	idle := table[m.GetAnimationIndex(model.ProceduralClipIdle)]
	require.True(t, idle.Valid())
	assert.Less(t, idle.Min.X(), float32(0))
	assert.Greater(t, idle.Max.X(), float32(0))
	assert.InDelta(t, 0, idle.Min.Y(), epsilon)
	assert.InDelta(t, 2, idle.Max.Y(), 0.01)

	swing := table[m.GetAnimationIndex(model.ProceduralClipSwing)]
	assert.GreaterOrEqual(t, swing.Max.X(), float32(0.5-epsilon))

	// look clips only rotate the last joint, so every joint stays on the Y axis
	look := table[m.GetAnimationIndex(model.ProceduralClipLookLeft)]
	assert.InDeltaSlice(t, []float32{0, 0, 0}, vec3Slice(look.Min), epsilon)
	assert.InDeltaSlice(t, []float32{0, 2, 0}, vec3Slice(look.Max), epsilon)
}

func TestBuildAABBLookupKeepsFrameResults(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r)

	m := model.NewProceduralChain("chain", 2)
	pop := newTestPopulation()
	insts := pop.spawn(m, 3)
	_, err := a.RunFrame(pop)
	require.NoError(t, err)
	before, err := a.ReadBoneWorldMatrix(insts[2], 1)
	require.NoError(t, err)

	_, err = a.BuildAABBLookup(m)
	require.NoError(t, err)

	after, err := a.ReadBoneWorldMatrix(insts[2], 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBuildAABBLookupRejectsStaticModel(t *testing.T) {
	a := newTestAnimator(t, newTestRenderer(t))

	_, err := a.BuildAABBLookup(model.NewModel(model.WithName("static")))
	assert.ErrorIs(t, err, ErrModelNotAnimated)
	assert.ErrorIs(t, a.RegisterModel(model.NewModel(model.WithName("static"))), ErrModelNotAnimated)
}

func TestSampleTimes(t *testing.T) {
	assert.Equal(t, []float32{0}, sampleTimes(0, 30))
	assert.Equal(t, []float32{0}, sampleTimes(-1, 30))

	times := sampleTimes(1, 4)
	require.Len(t, times, 5)
	assert.Equal(t, float32(0), times[0])
	assert.Equal(t, float32(0.5), times[2])
	assert.Less(t, times[4], float32(1))
	assert.InDelta(t, 1, times[4], epsilon)

	assert.Len(t, sampleTimes(0.01, 1), 2, "both ends are always sampled")
}

func TestRunFrameAbortsOnFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	r := newTestRenderer(t)
	a := newTestAnimator(t, r, WithLogger(logger))

	pop := newTestPopulation()
	pop.spawn(model.NewProceduralChain("chain", 2), 1)
	_, err := a.RunFrame(pop)
	require.NoError(t, err)
	// the first frame must finish before its buffer goes away
	require.NoError(t, a.Await())

	a.WorldRootBuffer().Release()
	count := r.SignalCount()

	_, err = a.RunFrame(pop)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameAborted)
	assert.ErrorIs(t, err, renderer.ErrBufferReleased)
	assert.Equal(t, count, r.SignalCount(), "an aborted frame is never submitted")
	assert.True(t, strings.Contains(logs.String(), "animator frame aborted"))
	assert.True(t, strings.Contains(err.Error(), StageNameRecord))
}

func TestUnregisterModelReleasesReference(t *testing.T) {
	a := newTestAnimator(t, newTestRenderer(t))

	m := model.NewProceduralChain("chain", 2)
	base := m.RefCount()
	require.NoError(t, a.RegisterModel(m))
	require.NoError(t, a.RegisterModel(m))
	assert.Equal(t, base+1, m.RefCount())

	a.UnregisterModel(m)
	assert.Equal(t, base, m.RefCount())
	a.UnregisterModel(m)
	assert.Equal(t, base, m.RefCount())
}

func TestReleasedAnimator(t *testing.T) {
	a, err := NewAnimator(newTestRenderer(t))
	require.NoError(t, err)
	a.Release()
	a.Release()

	_, err = a.RunFrame(newTestPopulation())
	assert.True(t, errors.Is(err, ErrReleased))
}

func TestBoundingSpheresDisabled(t *testing.T) {
	r := newTestRenderer(t)
	a := newTestAnimator(t, r, WithBoundingSpheres(false))

	pop := newTestPopulation()
	insts := pop.spawn(model.NewProceduralChain("chain", 2), 1)
	_, err := a.RunFrame(pop)
	require.NoError(t, err)

	_, err = a.ReadBoundingSpheres()
	assert.ErrorIs(t, err, ErrBoundingSpheresDisabled)

	world, err := a.ReadBoneWorldMatrix(insts[0], 1)
	require.NoError(t, err)
	assertMat4InDelta(t, mgl32.Translate3D(0, 1, 0), world)
}
