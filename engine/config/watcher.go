package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk and hands every valid reload to a
// callback. Invalid reloads are logged and skipped, so the last good config stays in effect.
type Watcher interface {
	// Current returns the last config that loaded successfully.
	//
	// Returns:
	//   - Config: the config
	Current() Config

	// Close stops watching. The callback is not called after Close returns.
	//
	// Returns:
	//   - error: an error closing the underlying watcher
	Close() error
}

type watcher struct {
	mu *sync.Mutex

	path     string
	onChange func(Config)
	logger   *slog.Logger

	current Config
	fs      *fsnotify.Watcher
	done    chan struct{}
	closed  sync.Once
	wg      sync.WaitGroup
}

var _ Watcher = &watcher{}

// NewWatcher loads path and starts watching it. The parent directory is watched rather than the
// file, so editors that save by rename are still seen.
//
// Parameters:
//   - path: the config file
//   - onChange: called with each config that reloads successfully, from the watcher goroutine
//   - options: variadic list of WatcherOption functions to configure the Watcher
//
// Returns:
//   - Watcher: the watcher
//   - error: the initial load error, or an error creating the watch
func NewWatcher(path string, onChange func(Config), options ...WatcherOption) (Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &watcher{
		mu:       &sync.Mutex{},
		path:     abs,
		onChange: onChange,
		current:  cfg,
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	w.fs, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.fs.Add(filepath.Dir(abs)); err != nil {
		w.fs.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.watch()
	return w, nil
}

func (w *watcher) watch() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "path", w.path, "err", err)
		}
	}
}

func (w *watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}
	w.logger.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func (w *watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *watcher) Close() error {
	var err error
	w.closed.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
