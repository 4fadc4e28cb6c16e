package engine

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-skin/engine/camera"
	"github.com/Carmen-Shannon/oxy-skin/engine/config"
	"github.com/Carmen-Shannon/oxy-skin/engine/loader"
	"github.com/Carmen-Shannon/oxy-skin/engine/profiler"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-skin/engine/scene"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables frame stats output.
//
// Parameters:
//   - enabled: if true, enables frame stats
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler sets the profiler frame stats are collected by.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the frame rate Run targets, in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.tickRate = tickInterval(fps)
	}
}

// WithScene sets the scene the engine drives rather than letting the engine create an empty one.
//
// Parameters:
//   - s: the scene
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}

// WithRenderer sets the renderer the animator records into. The engine does not release a
// renderer passed this way.
//
// Parameters:
//   - r: the renderer
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderer(r renderer.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
		e.ownsRenderer = false
	}
}

// WithRendererOptions adds options to the renderer the engine creates. Ignored with WithRenderer.
//
// Parameters:
//   - options: renderer options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOpts = append(e.rendererOpts, options...)
	}
}

// WithAnimatorOptions adds options to the animator the engine creates.
//
// Parameters:
//   - options: animator options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithAnimatorOptions(options ...animator.AnimatorBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.animatorOpts = append(e.animatorOpts, options...)
	}
}

// WithLogger sets the logger the engine and the parts it creates write to.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) EngineBuilderOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithMaxConsecutiveFailures sets how many frames in a row may fail before Run gives up.
// Values <= 0 are ignored.
//
// Parameters:
//   - n: the failure limit (default 5)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithMaxConsecutiveFailures(n int) EngineBuilderOption {
	return func(e *engine) {
		if n > 0 {
			e.maxFailures = n
		}
	}
}

// WithCollision enables or disables the per frame sphere collision pass. It is on by default
// and needs bounding spheres enabled on the animator.
//
// Parameters:
//   - enabled: if true, contacts are computed each frame
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCollision(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.collisionEnabled = enabled
	}
}

// WithCamera sets the camera updated at the end of each frame.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithFirstPerson sets a first person controller updated from the animator each frame.
//
// Parameters:
//   - fp: the controller
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFirstPerson(fp camera.FirstPerson) EngineBuilderOption {
	return func(e *engine) {
		e.firstPerson = fp
	}
}

// WithConfig configures the engine from cfg. A renderer is created from the renderer section
// unless WithRenderer is also given.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = &cfg
	}
}

// WithConfigFile loads the configuration from path and watches it. Runtime settings of later
// valid edits apply without a restart.
//
// Parameters:
//   - path: a .yaml, .yml or .toml file
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfigFile(path string) EngineBuilderOption {
	return func(e *engine) {
		e.configPath = path
	}
}

// WithLoader sets the loader configured models are imported with.
//
// Parameters:
//   - l: the loader
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLoader(l loader.Loader) EngineBuilderOption {
	return func(e *engine) {
		e.loader = l
	}
}
