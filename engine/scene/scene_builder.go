package scene

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-skin/engine/instance"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithModels loads models into the scene in the given order.
//
// Parameters:
//   - models: the models to load
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithModels(models ...model.Model) SceneBuilderOption {
	return func(s *scene) {
		for _, m := range models {
			s.addModelLocked(m)
		}
	}
}

// WithInstances adds initial instances to the scene.
// Instances without IDs will be assigned new IDs. Instances without a model are skipped.
//
// Parameters:
//   - instances: the instances to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithInstances(instances ...instance.Instance) SceneBuilderOption {
	return func(s *scene) {
		for _, inst := range instances {
			if err := s.addInstanceLocked(inst); err != nil {
				s.logger.Warn("skipping initial instance", "id", inst.ID(), "err", err)
			}
		}
	}
}

// WithFramesInFlight sets how many generations an unloaded model waits before its resources
// are released. Defaults to 2.
//
// Parameters:
//   - n: the number of frames that may still reference a model after it is unloaded
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithFramesInFlight(n uint64) SceneBuilderOption {
	return func(s *scene) {
		s.framesInFlight = n
	}
}

// WithUpdateWorkers sets the number of worker goroutines used by Update.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithUpdateWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.updateWorkers = n
	}
}

// WithLogger sets the structured logger used by the scene.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) SceneBuilderOption {
	return func(s *scene) {
		if logger != nil {
			s.logger = logger
		}
	}
}
