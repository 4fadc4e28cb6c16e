package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/camera"
	"github.com/Carmen-Shannon/oxy-skin/engine/collision"
	"github.com/Carmen-Shannon/oxy-skin/engine/config"
	"github.com/Carmen-Shannon/oxy-skin/engine/loader"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/profiler"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
)

// ErrTooManyFailures is returned by Run once the consecutive failed frame limit is reached. It
// wraps the last frame error.
var ErrTooManyFailures = errors.New("engine: too many consecutive frame failures")

// DefaultMaxConsecutiveFailures is the failed frame limit used when no option sets one.
const DefaultMaxConsecutiveFailures = 5

// FrameReport describes one frame run by Tick.
type FrameReport struct {
	// Frame counts every Tick, failed or not, starting at 1.
	Frame uint64

	Result animator.FrameResult

	// Await is the time spent on the top of frame fence wait.
	Await time.Duration

	// Contacts holds the frame's collision contacts when collision is enabled.
	Contacts []collision.Contact

	// Visible and Culled count the instances inside and outside the camera frustum. Only
	// instances of models with an AABB lookup are tested, and only when a camera is set.
	Visible int
	Culled  int
}

// engine implements the Engine interface.
type engine struct {
	mu *sync.Mutex

	logger *slog.Logger

	renderer     renderer.Renderer
	rendererOpts []renderer.RendererBuilderOption
	ownsRenderer bool
	animator     animator.Animator
	animatorOpts []animator.AnimatorBuilderOption
	scene        scene.Scene
	loader       loader.Loader

	camera      camera.Camera
	firstPerson camera.FirstPerson

	collisionEnabled bool
	contacts         []collision.Contact

	profiler         *profiler.Profiler
	profilingEnabled bool

	tickRate     time.Duration
	tickCallback func(deltaTime float32)
	frameHook    func(FrameReport)

	cfg        *config.Config
	configPath string
	tuned      map[model.Model]bool
	watcher    config.Watcher

	maxFailures int
	failures    int
	frame       uint64

	quitChannel chan struct{}
	quitOnce    sync.Once
	released    bool
}

// Engine is the headless frame driver. Each frame it waits on the previous frame's signal,
// releases models whose deferred unload has drained, advances the scene, runs the animator,
// and feeds the results to the collision pass, the first person camera and the profiler.
type Engine interface {
	// Scene returns the driven scene.
	//
	// Returns:
	//   - scene.Scene: the scene
	Scene() scene.Scene

	// Animator returns the animation pipeline.
	//
	// Returns:
	//   - animator.Animator: the animator
	Animator() animator.Animator

	// Renderer returns the compute renderer.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Loader returns the model loader. Models named with a file in the configuration are
	// already loaded and added to the scene.
	//
	// Returns:
	//   - loader.Loader: the loader
	Loader() loader.Loader

	// Camera returns the camera, nil if none was configured.
	//
	// Returns:
	//   - camera.Camera: the camera or nil
	Camera() camera.Camera

	// Contacts returns the collision contacts of the last successful frame.
	//
	// Returns:
	//   - []collision.Contact: the contacts
	Contacts() []collision.Contact

	// EnableProfiler enables frame stats output to the log.
	EnableProfiler()

	// DisableProfiler disables frame stats output.
	DisableProfiler()

	// SetTickRate sets the frame rate Run targets.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each frame before the scene advances.
	// Use this for game logic that changes instances or animation state.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called after each successful frame.
	//
	// Parameters:
	//   - callback: function receiving the frame report
	SetFrameCallback(callback func(FrameReport))

	// ApplyConfig applies the runtime settings of cfg: tick rate, failure limit, profiling and
	// the sphere tuning of every loaded model. Models added later are tuned as they first reach
	// a frame. Renderer and animator settings only apply at construction.
	//
	// Parameters:
	//   - cfg: the configuration
	ApplyConfig(cfg config.Config)

	// Tick runs one frame.
	//
	// Parameters:
	//   - dt: the frame's delta time in seconds
	//
	// Returns:
	//   - FrameReport: the frame report
	//   - error: the frame error; the frame is counted as failed
	Tick(dt float32) (FrameReport, error)

	// Run ticks at the configured rate until ctx is done, Quit is called, or the consecutive
	// failure limit is reached.
	//
	// Parameters:
	//   - ctx: cancels the loop
	//
	// Returns:
	//   - error: nil after Quit, ctx.Err() after cancellation, or an ErrTooManyFailures error
	Run(ctx context.Context) error

	// Quit stops Run. Safe to call multiple times.
	Quit()

	// Release stops the config watcher and frees the animator, and the renderer if the engine
	// created it.
	Release()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine with the provided options. Without WithRenderer a WebGPU
// renderer is created, and without WithScene an empty scene is created.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: an animator construction or config watch error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		mu:               &sync.Mutex{},
		collisionEnabled: true,
		tickRate:         time.Second / 60,
		maxFailures:      DefaultMaxConsecutiveFailures,
		tuned:            make(map[model.Model]bool),
		quitChannel:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	if e.configPath != "" {
		w, err := config.NewWatcher(e.configPath, e.reloadConfig, config.WithLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.watcher = w
		cfg := w.Current()
		e.cfg = &cfg
	}
	if e.cfg != nil {
		e.applyStartupConfig(*e.cfg)
	}

	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}
	if e.renderer == nil {
		e.renderer = renderer.NewRenderer(renderer.BackendTypeWGPU, append([]renderer.RendererBuilderOption{renderer.WithLogger(e.logger)}, e.rendererOpts...)...)
		e.ownsRenderer = true
	}
	if e.scene == nil {
		e.scene = scene.NewScene("main", scene.WithLogger(e.logger))
	}
	if e.loader == nil {
		e.loader = loader.NewLoader(loader.BackendTypeGLTF, loader.WithLogger(e.logger))
	}
	if e.cfg != nil {
		models, err := e.loader.LoadConfigured(*e.cfg)
		if err != nil {
			e.closeWatcher()
			e.releaseOwned()
			return nil, err
		}
		for _, m := range models {
			e.scene.AddModel(m)
		}
	}

	anim, err := animator.NewAnimator(e.renderer, append([]animator.AnimatorBuilderOption{animator.WithLogger(e.logger)}, e.animatorOpts...)...)
	if err != nil {
		e.closeWatcher()
		e.releaseOwned()
		return nil, err
	}
	e.animator = anim

	// models leave the animator only once the scene's deferred unload has drained
	e.scene.OnUnload(func(m model.Model) {
		e.animator.UnregisterModel(m)
		e.mu.Lock()
		delete(e.tuned, m)
		e.mu.Unlock()
	})
	e.tuneModels()
	return e, nil
}

// applyStartupConfig turns cfg into construction settings. Settings passed as explicit options
// before or after WithConfig are not overridden where they name a renderer or animator.
func (e *engine) applyStartupConfig(cfg config.Config) {
	if e.renderer == nil {
		backend := cfg.Backend()
		opts := []renderer.RendererBuilderOption{
			renderer.WithLogger(e.logger),
			renderer.WithForceFallbackAdapter(cfg.Renderer.ForceFallbackAdapter),
		}
		if cfg.Renderer.Workers > 0 {
			opts = append(opts, renderer.WithWorkers(cfg.Renderer.Workers))
		}
		e.renderer = renderer.NewRenderer(backend, append(opts, e.rendererOpts...)...)
		e.ownsRenderer = true
	}
	e.animatorOpts = append([]animator.AnimatorBuilderOption{
		animator.WithBoundingSpheres(cfg.Animator.BoundingSpheres),
		animator.WithAABBSamplesPerSecond(cfg.Animator.AABBSamplesPerSecond),
		animator.WithGrowthFactor(cfg.Animator.GrowthFactor),
	}, e.animatorOpts...)
	e.applyLiveConfig(cfg)
}

// applyLiveConfig applies the settings that may change while the engine runs.
func (e *engine) applyLiveConfig(cfg config.Config) {
	e.tickRate = tickInterval(float64(cfg.Engine.TickRate))
	if cfg.Engine.MaxConsecutiveFailures > 0 {
		e.maxFailures = cfg.Engine.MaxConsecutiveFailures
	}
	e.profilingEnabled = cfg.Engine.ProfileInterval > 0
	if e.profilingEnabled {
		interval := time.Duration(float64(cfg.Engine.ProfileInterval) * float64(time.Second))
		e.profiler = profiler.NewProfiler(profiler.WithInterval(interval), profiler.WithLogger(e.logger))
	}
	e.cfg = &cfg
	clear(e.tuned)
}

// reloadConfig is the watcher callback. Backend and animator settings need a restart, the rest
// applies on the next frame.
func (e *engine) reloadConfig(cfg config.Config) {
	e.mu.Lock()
	e.applyLiveConfig(cfg)
	e.mu.Unlock()
	e.logger.Info("config reloaded", "path", e.configPath)
}

func (e *engine) Scene() scene.Scene {
	return e.scene
}

func (e *engine) Animator() animator.Animator {
	return e.animator
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Loader() loader.Loader {
	return e.loader
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Contacts() []collision.Contact {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contacts
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

func (e *engine) SetTickRate(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickRate = tickInterval(fps)
}

// tickInterval converts a frame rate into a frame duration, defaulting to 60Hz.
func tickInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(FrameReport)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frameHook = callback
}

func (e *engine) ApplyConfig(cfg config.Config) {
	e.mu.Lock()
	e.applyLiveConfig(cfg)
	e.mu.Unlock()
	e.tuneModels()
}

// tuneModels applies the current config's sphere tuning to every model not tuned yet.
func (e *engine) tuneModels() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg == nil {
		return
	}
	for _, m := range e.scene.Models() {
		if e.tuned[m] {
			continue
		}
		e.tuned[m] = true
		if n, err := e.cfg.ApplySpheres(m); err != nil {
			e.logger.Warn("sphere tuning rejected", "model", m.Name(), "err", err)
		} else if n > 0 {
			e.logger.Debug("sphere tuning applied", "model", m.Name(), "bones", n)
		}
	}
}

func (e *engine) Tick(dt float32) (FrameReport, error) {
	e.mu.Lock()
	e.frame++
	report := FrameReport{Frame: e.frame}
	tick := e.tickCallback
	hook := e.frameHook
	profiling := e.profilingEnabled
	e.mu.Unlock()

	err := e.runFrame(dt, tick, &report)
	if profiling {
		e.profiler.Tick(profiler.Sample{
			Await:  report.Await,
			Size:   report.Result.Timings.Size,
			Grow:   report.Result.Timings.Grow,
			Rebind: report.Result.Timings.Rebind,
			Record: report.Result.Timings.Record,
			Submit: report.Result.Timings.Submit,
		}, err != nil)
	}
	if err != nil {
		return report, err
	}
	if hook != nil {
		hook(report)
	}
	return report, nil
}

func (e *engine) runFrame(dt float32, tick func(float32), report *FrameReport) error {
	// the previous frame must be done before unloads release its buffers
	start := time.Now()
	awaitErr := e.animator.Await()
	report.Await = time.Since(start)
	e.scene.AdvanceGeneration()
	if awaitErr != nil {
		return fmt.Errorf("await previous frame: %w", awaitErr)
	}

	e.tuneModels()
	if tick != nil {
		tick(dt)
	}
	e.scene.Update(dt)

	res, err := e.animator.RunFrame(e.scene)
	report.Result = res
	if err != nil {
		return err
	}

	e.mu.Lock()
	collide := e.collisionEnabled
	fp, cam := e.firstPerson, e.camera
	e.mu.Unlock()

	if collide {
		spheres, err := e.animator.ReadBoundingSpheres()
		switch {
		case errors.Is(err, animator.ErrBoundingSpheresDisabled):
		case err != nil:
			return fmt.Errorf("collision: %w", err)
		default:
			report.Contacts = collision.Detect(spheres)
		}
		e.mu.Lock()
		e.contacts = report.Contacts
		e.mu.Unlock()
	}

	if fp != nil {
		if err := fp.Update(e.animator); err != nil {
			// a followed instance that left the scene is not a frame failure
			if !errors.Is(err, animator.ErrInstanceNotAnimated) {
				return fmt.Errorf("camera: %w", err)
			}
			e.logger.Debug("first person target not animated", "err", err)
		}
	}
	if cam != nil {
		cam.Update()
		report.Visible, report.Culled = e.cull(cam.Frustum())
	}
	return nil
}

// cull tests every instance of a model with an AABB lookup against f. The box of an instance is
// the union of the boxes of the two clips it blends, moved by its world matrix.
func (e *engine) cull(f common.Frustum) (visible, culled int) {
	for _, m := range e.scene.Models() {
		lookup := m.AABBLookup()
		if len(lookup) == 0 {
			continue
		}
		for _, inst := range e.scene.InstancesOf(m) {
			st := inst.AnimationState()
			var box common.AABB
			for _, clip := range []uint32{st.FirstClip, st.SecondClip} {
				if int(clip) < len(lookup) {
					box = box.Union(lookup[clip])
				}
			}
			if f.IntersectsAABB(common.TransformAABB(inst.WorldMatrix(), box)) {
				visible++
			} else {
				culled++
			}
		}
	}
	return visible, culled
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	interval := e.tickRate
	e.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.quitChannel:
			return nil
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now

			_, err := e.Tick(dt)

			e.mu.Lock()
			if err == nil {
				e.failures = 0
			} else {
				e.failures++
			}
			failures, limit := e.failures, e.maxFailures
			if e.tickRate != interval {
				interval = e.tickRate
				ticker.Reset(interval)
			}
			e.mu.Unlock()

			if err == nil {
				continue
			}
			e.logger.Error("frame failed", "consecutive", failures, "limit", limit, "err", err)
			if failures >= limit {
				return fmt.Errorf("%w: %d in a row: %w", ErrTooManyFailures, failures, err)
			}
		}
	}
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Release() {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	w := e.watcher
	e.mu.Unlock()

	e.Quit()
	if w != nil {
		e.closeWatcher()
	}
	e.animator.Release()
	e.releaseOwned()
}

func (e *engine) closeWatcher() {
	if e.watcher == nil {
		return
	}
	if err := e.watcher.Close(); err != nil {
		e.logger.Warn("config watcher close failed", "err", err)
	}
}

func (e *engine) releaseOwned() {
	if e.ownsRenderer && e.renderer != nil {
		e.renderer.Release()
	}
}
