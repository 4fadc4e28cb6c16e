package instance

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceDefaults(t *testing.T) {
	inst := NewInstance()
	assert.True(t, inst.Enabled())
	assert.Equal(t, -1, inst.IndexPosition())
	assert.Nil(t, inst.Model())
	assert.Equal(t, mgl32.Vec3{1, 1, 1}, inst.Scale())
	assert.True(t, inst.WorldMatrix().ApproxEqual(mgl32.Ident4()))
}

func TestWorldMatrixComposesTRS(t *testing.T) {
	inst := NewInstance(WithPosition(1, 2, 3), WithRotation(0, 90, 0), WithScale(2, 2, 2))
	want := mgl32.Translate3D(1, 2, 3).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(90))).
		Mul4(mgl32.Scale3D(2, 2, 2))
	got := inst.WorldMatrix()
	assert.InDeltaSlice(t, want[:], got[:], 1e-5)
}

func TestAdvanceWrapsLoopingClip(t *testing.T) {
	inst := NewInstance(WithAnimation(0, true))
	durations := []float32{1}

	inst.Advance(0.75, durations)
	inst.Advance(0.5, durations)
	assert.InDelta(t, 0.25, inst.AnimationState().FirstTime, 1e-5)
}

func TestAdvanceHoldsNonLoopingClip(t *testing.T) {
	inst := NewInstance(WithAnimation(0, false))
	inst.Advance(3, []float32{2})
	assert.InDelta(t, 2, inst.AnimationState().FirstTime, 1e-6)
}

func TestAdvanceAppliesSpeed(t *testing.T) {
	inst := NewInstance(WithAnimationSpeed(2))
	inst.Advance(0.25, []float32{10})
	assert.InDelta(t, 0.5, inst.AnimationState().FirstTime, 1e-6)
}

func TestBlendToCompletesIntoFirstClip(t *testing.T) {
	inst := NewInstance()
	durations := []float32{4, 4}

	inst.BlendTo(1, 1)
	require.True(t, inst.IsBlending())

	inst.Advance(0.5, durations)
	st := inst.AnimationState()
	assert.Equal(t, uint32(0), st.FirstClip)
	assert.Equal(t, uint32(1), st.SecondClip)
	assert.InDelta(t, 0.5, st.Blend, 1e-6)
	assert.InDelta(t, 0.5, inst.BlendProgress(), 1e-6)

	inst.Advance(0.5, durations)
	st = inst.AnimationState()
	assert.False(t, inst.IsBlending())
	assert.Equal(t, uint32(1), st.FirstClip)
	assert.Equal(t, float32(0), st.Blend)
	assert.InDelta(t, 1, st.FirstTime, 1e-6, "the target clip keeps the time it played during the blend")
}

func TestBlendToWithoutDurationSwitchesImmediately(t *testing.T) {
	inst := NewInstance()
	inst.BlendTo(2, 0)
	st := inst.AnimationState()
	assert.False(t, inst.IsBlending())
	assert.Equal(t, uint32(2), st.FirstClip)
	assert.Equal(t, uint32(2), st.SecondClip)
}

func TestCancelBlend(t *testing.T) {
	inst := NewInstance()
	inst.BlendTo(1, 2)
	inst.Advance(1, []float32{4, 4})
	inst.CancelBlend()

	st := inst.AnimationState()
	assert.False(t, inst.IsBlending())
	assert.Equal(t, st.FirstClip, st.SecondClip)
	assert.Equal(t, float32(0), st.Blend)
}

func TestSetClipsAndHeadLookClamp(t *testing.T) {
	inst := NewInstance()
	inst.SetClips(1, 2, 1.5)
	inst.SetHeadLook(-3, 0.25)

	st := inst.AnimationState()
	assert.Equal(t, float32(1), st.Blend)
	assert.Equal(t, float32(-1), st.HeadLR)
	assert.Equal(t, float32(0.25), st.HeadUD)
}

func TestMovementStateCommit(t *testing.T) {
	inst := NewInstance()
	inst.SetMovementState(MovementRun)
	assert.Equal(t, MovementIdle, inst.MovementState())
	assert.True(t, inst.CommitMovementState())
	assert.Equal(t, MovementRun, inst.MovementState())
	assert.False(t, inst.CommitMovementState())
	assert.Equal(t, "run", inst.MovementState().String())
}

func TestCloneCopiesStateButNotIndex(t *testing.T) {
	inst := NewInstance(WithPosition(4, 5, 6), WithAnimation(3, true))
	inst.SetIndexPosition(7)
	inst.SetHeadLook(0.5, 0)

	c := inst.Clone()
	assert.Equal(t, -1, c.IndexPosition())
	assert.Equal(t, inst.Position(), c.Position())
	assert.Equal(t, inst.AnimationState(), c.AnimationState())

	c.SetPosition(0, 0, 0)
	assert.Equal(t, mgl32.Vec3{4, 5, 6}, inst.Position())
}
