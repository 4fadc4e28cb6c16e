package loader

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithModel is an option builder that pre-populates the model cache with a model.
//
// Parameters:
//   - key: the cache key for the model
//   - model: the model to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the model option to a loader
func WithModel(key string, model model.Model) LoaderBuilderOption {
	return func(l *loader) {
		l.modelCache[key] = model
	}
}

// WithModelOptions is an option builder that adds options to every model the Loader builds,
// applied after the imported data.
//
// Parameters:
//   - options: the model options
//
// Returns:
//   - LoaderBuilderOption: a function that applies the model options to a loader
func WithModelOptions(options ...model.ModelBuilderOption) LoaderBuilderOption {
	return func(l *loader) {
		l.modelOptions = append(l.modelOptions, options...)
	}
}

// WithLogger is an option builder that sets the logger import summaries are written to.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *slog.Logger) LoaderBuilderOption {
	return func(l *loader) {
		l.logger = logger
	}
}
