package loader

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-skin/engine/config"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	logger       *slog.Logger
	modelOptions []model.ModelBuilderOption

	modelCache map[string]model.Model

	backend loaderBackend
}

// Loader imports skinned models and caches them by name. Only the rig is read from a file:
// the skeleton, the animation clips and the skinned mesh's triangle count.
type Loader interface {
	// Load imports a model file and caches it under its path. A cached model is returned as is.
	//
	// Parameters:
	//   - path: the .gltf or .glb file
	//
	// Returns:
	//   - model.Model: the model, named after the file without its extension
	//   - error: error if loading fails
	Load(path string) (model.Model, error)

	// LoadReader imports a model from a reader stream and caches it under name.
	//
	// Parameters:
	//   - name: the model name and cache key
	//   - r: the reader providing model data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - model.Model: the loaded model
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (model.Model, error)

	// LoadConfigured imports every model of cfg that names a file, cached under its config
	// name. Head movement clips and sphere tuning from cfg are applied.
	//
	// Parameters:
	//   - cfg: the configuration
	//
	// Returns:
	//   - []model.Model: the models, ordered by name
	//   - error: the first import or tuning error
	LoadConfigured(cfg config.Config) ([]model.Model, error)

	// Get retrieves a cached model by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - model.Model: the cached model or nil
	Get(name string) model.Model

	// Models returns a copy of the model cache.
	//
	// Returns:
	//   - map[string]model.Model: all cached models keyed by name
	Models() map[string]model.Model
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		modelCache: make(map[string]model.Model),
	}
	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend()
	}
	for _, option := range options {
		option(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

func (l *loader) Load(path string) (model.Model, error) {
	if m := l.Get(path); m != nil {
		return m, nil
	}
	rig, err := l.backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m, err := l.build(name, rig, config.HeadMoveClips{})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return l.store(path, m), nil
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (model.Model, error) {
	if m := l.Get(name); m != nil {
		return m, nil
	}
	rig, err := l.backend.LoadReader(r, isGLB)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	m, err := l.build(name, rig, config.HeadMoveClips{})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return l.store(name, m), nil
}

func (l *loader) LoadConfigured(cfg config.Config) ([]model.Model, error) {
	names := make([]string, 0, len(cfg.Models))
	for name, mc := range cfg.Models {
		if mc.Path != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	out := make([]model.Model, 0, len(names))
	for _, name := range names {
		mc := cfg.Models[name]
		m := l.Get(name)
		if m == nil {
			rig, err := l.backend.Load(mc.Path)
			if err != nil {
				return out, fmt.Errorf("models.%s: load %s: %w", name, mc.Path, err)
			}
			built, err := l.build(name, rig, mc.HeadMove)
			if err != nil {
				return out, fmt.Errorf("models.%s: %w", name, err)
			}
			m = l.store(name, built)
		}
		if _, err := cfg.ApplySpheres(m); err != nil {
			return out, fmt.Errorf("models.%s: %w", name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// build turns an imported rig into a model, resolving head movement clips by name.
func (l *loader) build(name string, rig *importedRig, head config.HeadMoveClips) (model.Model, error) {
	opts := []model.ModelBuilderOption{
		model.WithName(name),
		model.WithTriangleCount(rig.Triangles),
	}
	if rig.Skeleton != nil {
		opts = append(opts, model.WithSkeleton(rig.Skeleton), model.WithAnimations(rig.Clips...))
	}
	if !head.Empty() {
		mapping, err := headMoveMapping(rig.Clips, head)
		if err != nil {
			return nil, err
		}
		opts = append(opts, model.WithHeadMoveMapping(mapping))
	}

	m := model.NewModel(append(opts, l.modelOptions...)...)
	l.logger.Debug("model imported",
		"model", name,
		"bones", m.BoneCount(),
		"clips", m.AnimationCount(),
		"triangles", rig.Triangles,
		"capabilities", m.Capabilities(),
	)
	return m, nil
}

// headMoveMapping resolves the four look direction clip names to clip indices.
func headMoveMapping(clips []*model.AnimationClip, head config.HeadMoveClips) (model.HeadMoveMapping, error) {
	find := func(clip string) (int32, error) {
		i := slices.IndexFunc(clips, func(c *model.AnimationClip) bool { return c.Name == clip })
		if i < 0 {
			return model.NoClip, fmt.Errorf("head movement clip %q not found", clip)
		}
		return int32(i), nil
	}
	var mapping model.HeadMoveMapping
	var err error
	for _, dir := range []struct {
		dst  *int32
		name string
	}{
		{&mapping.Left, head.Left},
		{&mapping.Right, head.Right},
		{&mapping.Up, head.Up},
		{&mapping.Down, head.Down},
	} {
		if *dir.dst, err = find(dir.name); err != nil {
			return model.UnmappedHeadMove(), err
		}
	}
	return mapping, nil
}

// store caches m under key unless another load got there first, and returns the cached model.
func (l *loader) store(key string, m model.Model) model.Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.modelCache[key]; ok {
		return existing
	}
	l.modelCache[key] = m
	return m
}

func (l *loader) Get(name string) model.Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modelCache[name]
}

func (l *loader) Models() map[string]model.Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]model.Model, len(l.modelCache))
	for k, v := range l.modelCache {
		out[k] = v
	}
	return out
}
