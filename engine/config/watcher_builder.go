package config

import "log/slog"

// WatcherOption is a functional option for configuring a Watcher during construction.
type WatcherOption func(*watcher)

// WithLogger is an option builder that sets the logger reload failures are reported to.
// Defaults to slog.Default().
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - WatcherOption: a function that applies the logger option to a watcher
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *watcher) {
		w.logger = logger
	}
}
