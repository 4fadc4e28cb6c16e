package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/camera"
	"github.com/Carmen-Shannon/oxy-skin/engine/config"
	"github.com/Carmen-Shannon/oxy-skin/engine/instance"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, s scene.Scene, options ...EngineBuilderOption) Engine {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithWorkers(2))
	t.Cleanup(r.Release)
	opts := append([]EngineBuilderOption{
		WithRenderer(r),
		WithScene(s),
		WithLogger(discardLogger()),
	}, options...)
	e, err := NewEngine(opts...)
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return e
}

// still places a chain that stays in its rest pose.
func still(m model.Model, x float32) instance.Instance {
	return instance.NewInstance(
		instance.WithModel(m),
		instance.WithPosition(x, 0, 0),
		instance.WithAnimationSpeed(0),
	)
}

func TestTickRunsFrame(t *testing.T) {
	m := model.NewProceduralChain("chain", 3)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithInstances(still(m, 0), still(m, 5)))
	e := newTestEngine(t, s)

	var ticks []float32
	var frames []uint64
	e.SetTickCallback(func(dt float32) { ticks = append(ticks, dt) })
	e.SetFrameCallback(func(r FrameReport) { frames = append(frames, r.Frame) })

	report, err := e.Tick(0.016)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), report.Frame)
	assert.Equal(t, []float32{0.016}, ticks)
	assert.Equal(t, []uint64{1}, frames)
	require.Len(t, report.Result.Workload.Entries, 1, "one entry per model")
	entry := report.Result.Workload.Entries[0]
	assert.Equal(t, uint32(2), entry.InstanceCount)
	assert.Equal(t, uint32(32), entry.PaddedInstances)
	assert.Empty(t, report.Contacts, "the instances are 5 apart")

	report, err = e.Tick(0.016)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), report.Frame)
	assert.False(t, report.Result.Grown)
}

func TestTickFindsContacts(t *testing.T) {
	m := model.NewProceduralChain("chain", 2)
	a, b, far := still(m, 0), still(m, 0.5), still(m, 10)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithInstances(a, b, far))
	e := newTestEngine(t, s)

	report, err := e.Tick(0)
	require.NoError(t, err)
	require.NotEmpty(t, report.Contacts)
	for _, c := range report.Contacts {
		assert.NotEqual(t, far.ID(), c.A.ID())
		assert.NotEqual(t, far.ID(), c.B.ID())
		assert.NotEqual(t, c.A.ID(), c.B.ID())
		assert.Greater(t, c.Depth, float32(0))
	}
	assert.Equal(t, report.Contacts, e.Contacts())
}

func TestTickWithoutBoundingSpheres(t *testing.T) {
	m := model.NewProceduralChain("chain", 2)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithInstances(still(m, 0), still(m, 0)))
	e := newTestEngine(t, s, WithAnimatorOptions(animator.WithBoundingSpheres(false)))

	report, err := e.Tick(0)
	require.NoError(t, err)
	assert.Empty(t, report.Contacts)
}

func TestDeferredUnloadUnregistersModel(t *testing.T) {
	m := model.NewProceduralChain("chain", 2)
	inst := still(m, 0)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithFramesInFlight(1), scene.WithInstances(inst))
	e := newTestEngine(t, s, WithCollision(false))

	_, err := e.Tick(0)
	require.NoError(t, err)
	assert.Equal(t, 3, m.RefCount(), "scene, instance and animator")

	require.NoError(t, s.RemoveInstance(inst.ID()))
	_, err = e.Tick(0)
	require.NoError(t, err)
	assert.Equal(t, 2, m.RefCount())

	require.NoError(t, s.UnloadModel(m))
	assert.Equal(t, 1, s.PendingUnloads())

	_, err = e.Tick(0)
	require.NoError(t, err)
	assert.Zero(t, s.PendingUnloads())
	assert.Zero(t, m.RefCount(), "the animator let go when the scene did")
}

func TestTickEmptyScene(t *testing.T) {
	e := newTestEngine(t, scene.NewScene("empty", scene.WithUpdateWorkers(1)))
	before := e.Renderer().SignalCount()

	report, err := e.Tick(0.01)
	require.NoError(t, err)
	assert.Empty(t, report.Result.Workload.Entries)
	assert.Greater(t, e.Renderer().SignalCount(), before)
}

func TestFirstPersonFollowsHead(t *testing.T) {
	m := model.NewProceduralChain("chain", 3)
	inst := still(m, 3)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithInstances(inst))

	fp := camera.NewFirstPerson()
	fp.Follow(inst, 2, mgl32.Vec3{})
	cam := camera.NewCamera(camera.WithController(fp))
	e := newTestEngine(t, s, WithFirstPerson(fp), WithCamera(cam))

	_, err := e.Tick(0)
	require.NoError(t, err)
	pos := fp.Position()
	assert.InDelta(t, 3, pos.X(), 1e-4)
	assert.InDelta(t, 2, pos.Y(), 1e-4)
	assert.InDelta(t, 0, pos.Z(), 1e-4)
	assert.Equal(t, fp.ViewMatrix(), cam.ViewMatrix())

	// a followed instance leaving the scene is not a failed frame
	require.NoError(t, s.RemoveInstance(inst.ID()))
	_, err = e.Tick(0)
	assert.NoError(t, err)
	assert.Equal(t, pos, fp.Position())
}

func TestTickCullsAgainstCamera(t *testing.T) {
	m := model.NewProceduralChain("chain", 2)
	m.SetAABBLookup([]common.AABB{common.NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})})
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithInstances(still(m, 0), still(m, 500), still(m, -1)))

	orbit := camera.NewOrbitController(camera.WithTarget(mgl32.Vec3{}), camera.WithRadius(10))
	cam := camera.NewCamera(camera.WithController(orbit))
	e := newTestEngine(t, s, WithCamera(cam))

	report, err := e.Tick(0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Visible)
	assert.Equal(t, 1, report.Culled)
}

func TestTickSkipsCullingWithoutLookup(t *testing.T) {
	m := model.NewProceduralChain("chain", 2)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithInstances(still(m, 500)))
	cam := camera.NewCamera(camera.WithController(camera.NewOrbitController()))
	e := newTestEngine(t, s, WithCamera(cam))

	report, err := e.Tick(0)
	require.NoError(t, err)
	assert.Zero(t, report.Visible)
	assert.Zero(t, report.Culled)
}

func TestRunStopsAfterConsecutiveFailures(t *testing.T) {
	m := model.NewProceduralChain("chain", 2)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithInstances(still(m, 0)))

	var logs bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&syncWriter{w: &logs, mu: &mu}, nil))
	e := newTestEngine(t, s, WithLogger(logger), WithTickRate(1000), WithMaxConsecutiveFailures(3))

	// every frame after this one fails
	e.Animator().Release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.Run(ctx)
	require.ErrorIs(t, err, ErrTooManyFailures)
	assert.ErrorIs(t, err, animator.ErrReleased)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, logs.String(), "frame failed")
	assert.Contains(t, logs.String(), "consecutive=3")
}

func TestRunQuit(t *testing.T) {
	e := newTestEngine(t, scene.NewScene("empty", scene.WithUpdateWorkers(1)), WithTickRate(500))

	var ticks atomic.Int32
	e.SetTickCallback(func(float32) {
		if ticks.Add(1) == 3 {
			e.Quit()
		}
	})

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
	assert.GreaterOrEqual(t, ticks.Load(), int32(3))
	e.Quit()
}

func TestRunContextCancel(t *testing.T) {
	e := newTestEngine(t, scene.NewScene("empty", scene.WithUpdateWorkers(1)), WithTickRate(500))

	ctx, cancel := context.WithCancel(context.Background())
	e.SetFrameCallback(func(r FrameReport) {
		if r.Frame == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
}

func TestConfigTunesModels(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Backend = "software"
	cfg.Renderer.Workers = 2
	cfg.Engine.MaxConsecutiveFailures = 2
	cfg.Engine.ProfileInterval = 0
	cfg.Models = map[string]config.ModelConfig{
		"chain": {Spheres: []config.BoneSphere{{Bone: 1, RadiusScale: 0}}},
		"late":  {Spheres: []config.BoneSphere{{Bone: 0, RadiusScale: 2}}},
	}

	m := model.NewProceduralChain("chain", 2)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithModels(m))
	e, err := NewEngine(WithScene(s), WithConfig(cfg), WithLogger(discardLogger()))
	require.NoError(t, err)
	defer e.Release()

	assert.Equal(t, renderer.BackendTypeSoftware, e.Renderer().BackendType())
	assert.Equal(t, float32(0), m.SphereAdjustments()[1].RadiusScale)

	late := model.NewProceduralChain("late", 2)
	_, err = s.AddInstance(still(late, 0))
	require.NoError(t, err)
	_, err = e.Tick(0)
	require.NoError(t, err)
	assert.Equal(t, float32(2), late.SphereAdjustments()[0].RadiusScale)
}

func TestConfigFileIsWatched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	const base = "[renderer]\nbackend = \"software\"\nworkers = 2\n\n[engine]\nprofile_interval = 0.0\n"
	require.NoError(t, os.WriteFile(path, []byte(base+"tick_rate = 60.0\n"), 0o644))

	m := model.NewProceduralChain("chain", 2)
	s := scene.NewScene("test", scene.WithUpdateWorkers(1), scene.WithModels(m))
	e, err := NewEngine(WithConfigFile(path), WithScene(s), WithLogger(discardLogger()))
	require.NoError(t, err)
	defer e.Release()
	assert.Equal(t, renderer.BackendTypeSoftware, e.Renderer().BackendType())

	_, err = e.Tick(0)
	require.NoError(t, err)
	require.NotEqual(t, float32(3), m.SphereAdjustments()[1].RadiusScale)

	impl := e.(*engine)
	tickRate := func() time.Duration {
		impl.mu.Lock()
		defer impl.mu.Unlock()
		return impl.tickRate
	}
	assert.Equal(t, tickInterval(60), tickRate())

	edited := base + "tick_rate = 30.0\n\n[[models.chain.spheres]]\nbone = 1\nradius_scale = 3.0\noffset = [0.0, 0.5, 0.0]\n"
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	assert.Eventually(t, func() bool {
		if _, err := e.Tick(0); err != nil {
			return false
		}
		return tickRate() == tickInterval(30) && m.SphereAdjustments()[1].RadiusScale == 3
	}, 5*time.Second, 20*time.Millisecond, "the edited file applies on a later tick")
	assert.Equal(t, [3]float32{0, 0.5, 0}, m.SphereAdjustments()[1].Offset)
}

func TestConfigFileReleaseAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nbackend = \"software\"\n\n[engine]\nprofile_interval = 0.0\n"), 0o644))

	e, err := NewEngine(WithConfigFile(path), WithLogger(discardLogger()))
	require.NoError(t, err)
	e.Release()
	e.Release()

	_, err = NewEngine(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

type syncWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
