package animator

import (
	"log/slog"
)

// AnimatorBuilderOption is a functional option for configuring an Animator during construction.
type AnimatorBuilderOption func(*animator)

// WithLogger is an option builder that sets the logger frame aborts and model registration are
// reported to. Defaults to slog.Default().
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the logger option to an animator
func WithLogger(logger *slog.Logger) AnimatorBuilderOption {
	return func(a *animator) {
		a.logger = logger
	}
}

// WithBoundingSpheres is an option builder that enables or disables the bounding sphere stage.
// Enabled by default.
//
// Parameters:
//   - enabled: whether RunFrame records the bounding sphere stage
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the bounding sphere option to an animator
func WithBoundingSpheres(enabled bool) AnimatorBuilderOption {
	return func(a *animator) {
		a.boundingSpheres = enabled
	}
}

// WithGrowthFactor is an option builder that sets the growth factor of every arena and model buffer.
// Values at or below 1 fall back to the managed buffer default.
//
// Parameters:
//   - factor: the growth factor
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the growth factor option to an animator
func WithGrowthFactor(factor float64) AnimatorBuilderOption {
	return func(a *animator) {
		if factor > 1 {
			a.growth = factor
		}
	}
}

// WithAABBSamplesPerSecond is an option builder that sets how densely BuildAABBLookup samples each clip.
//
// Parameters:
//   - samples: samples per second of clip time, greater than zero
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the sampling option to an animator
func WithAABBSamplesPerSecond(samples float32) AnimatorBuilderOption {
	return func(a *animator) {
		if samples > 0 {
			a.samplesPerSecond = samples
		}
	}
}
