package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a config file encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ErrUnknownFormat is returned for config files whose extension names no supported format.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Config is the file configuration of the engine.
type Config struct {
	Renderer RendererConfig         `yaml:"renderer" toml:"renderer"`
	Animator AnimatorConfig         `yaml:"animator" toml:"animator"`
	Engine   EngineConfig           `yaml:"engine" toml:"engine"`
	Models   map[string]ModelConfig `yaml:"models" toml:"models"`
}

type RendererConfig struct {
	// Backend is "wgpu" or "software".
	Backend              string `yaml:"backend" toml:"backend"`
	ForceFallbackAdapter bool   `yaml:"force_fallback_adapter" toml:"force_fallback_adapter"`

	// Workers sizes the software backend's pool. 0 uses one per CPU.
	Workers int `yaml:"workers" toml:"workers"`
}

type AnimatorConfig struct {
	BoundingSpheres      bool    `yaml:"bounding_spheres" toml:"bounding_spheres"`
	AABBSamplesPerSecond float32 `yaml:"aabb_samples_per_second" toml:"aabb_samples_per_second"`
	GrowthFactor         float64 `yaml:"growth_factor" toml:"growth_factor"`
}

type EngineConfig struct {
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" toml:"max_consecutive_failures"`

	// TickRate is the target frame rate of Run in frames per second.
	TickRate float32 `yaml:"tick_rate" toml:"tick_rate"`

	// ProfileInterval is how often frame stats are logged, in seconds. 0 disables them.
	ProfileInterval float32 `yaml:"profile_interval" toml:"profile_interval"`
}

// ModelConfig holds the tuning of one model, keyed by model name in Config.Models.
type ModelConfig struct {
	// Path is a .gltf or .glb file to import the model from. Relative paths resolve against
	// the config file's directory when loaded with Load.
	Path string `yaml:"path" toml:"path"`

	// HeadMove names the clips used as look directions.
	HeadMove HeadMoveClips `yaml:"head_move" toml:"head_move"`

	Spheres []BoneSphere `yaml:"spheres" toml:"spheres"`
}

// HeadMoveClips names the four look direction clips of a model. Empty names leave the model
// without head movement.
type HeadMoveClips struct {
	Left  string `yaml:"left" toml:"left"`
	Right string `yaml:"right" toml:"right"`
	Up    string `yaml:"up" toml:"up"`
	Down  string `yaml:"down" toml:"down"`
}

// Empty reports whether no direction is named.
func (h HeadMoveClips) Empty() bool {
	return h == HeadMoveClips{}
}

// BoneSphere is the sphere tuning of one bone.
type BoneSphere struct {
	Bone        int        `yaml:"bone" toml:"bone"`
	RadiusScale float32    `yaml:"radius_scale" toml:"radius_scale"`
	Offset      [3]float32 `yaml:"offset" toml:"offset"`
}

// Default returns the configuration used for every field a file leaves out.
//
// Returns:
//   - Config: the defaults
func Default() Config {
	return Config{
		Renderer: RendererConfig{Backend: "wgpu"},
		Animator: AnimatorConfig{
			BoundingSpheres:      true,
			AABBSamplesPerSecond: 30,
			GrowthFactor:         1.5,
		},
		Engine: EngineConfig{
			MaxConsecutiveFailures: 5,
			TickRate:               60,
			ProfileInterval:        5,
		},
	}
}

// FormatFromPath picks the format from a file extension: .yaml, .yml or .toml.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Format: the format
//   - error: ErrUnknownFormat for any other extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Load reads and validates a config file. Fields the file leaves out keep their Default value.
//
// Parameters:
//   - path: a .yaml, .yml or .toml file
//
// Returns:
//   - Config: the configuration
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for name, m := range cfg.Models {
		if m.Path != "" && !filepath.IsAbs(m.Path) {
			m.Path = filepath.Join(dir, m.Path)
			cfg.Models[name] = m
		}
	}
	return cfg, nil
}

// Parse decodes and validates config data. Unknown keys are rejected.
//
// Parameters:
//   - data: the encoded config
//   - format: the encoding
//
// Returns:
//   - Config: the configuration
//   - error: a decode or validation error
func Parse(data []byte, format Format) (Config, error) {
	cfg := Default()
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// an empty document decodes to io.EOF and leaves the defaults
		if err := dec.Decode(&cfg); err != nil && len(bytes.TrimSpace(data)) > 0 {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
//
// Returns:
//   - error: the first invalid field
func (c Config) Validate() error {
	if _, ok := renderer.ParseBackendType(c.Renderer.Backend); !ok {
		return fmt.Errorf("renderer.backend: unknown backend %q", c.Renderer.Backend)
	}
	if c.Renderer.Workers < 0 {
		return fmt.Errorf("renderer.workers: must not be negative, got %d", c.Renderer.Workers)
	}
	if c.Animator.AABBSamplesPerSecond <= 0 {
		return fmt.Errorf("animator.aabb_samples_per_second: must be positive, got %v", c.Animator.AABBSamplesPerSecond)
	}
	if c.Animator.GrowthFactor <= 1 {
		return fmt.Errorf("animator.growth_factor: must be greater than 1, got %v", c.Animator.GrowthFactor)
	}
	if c.Engine.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("engine.max_consecutive_failures: must be at least 1, got %d", c.Engine.MaxConsecutiveFailures)
	}
	if c.Engine.TickRate < 0 || c.Engine.ProfileInterval < 0 {
		return errors.New("engine: tick_rate and profile_interval must not be negative")
	}
	for name, m := range c.Models {
		if !m.HeadMove.Empty() && (m.HeadMove.Left == "" || m.HeadMove.Right == "" || m.HeadMove.Up == "" || m.HeadMove.Down == "") {
			return fmt.Errorf("models.%s.head_move: all four directions must be named", name)
		}
		for _, s := range m.Spheres {
			if s.Bone < 0 || s.RadiusScale < 0 {
				return fmt.Errorf("models.%s: bone %d: negative bone index or radius scale", name, s.Bone)
			}
		}
	}
	return nil
}

// Backend returns the configured renderer backend.
//
// Returns:
//   - renderer.RendererBackendType: the backend type
func (c Config) Backend() renderer.RendererBackendType {
	t, _ := renderer.ParseBackendType(c.Renderer.Backend)
	return t
}

// ApplySpheres applies the sphere tuning configured for a model, if any.
//
// Parameters:
//   - m: the model, matched by name
//
// Returns:
//   - int: the number of bones tuned
//   - error: the first bone the model does not have
func (c Config) ApplySpheres(m model.Model) (int, error) {
	mc, ok := c.Models[m.Name()]
	if !ok {
		return 0, nil
	}
	for i, s := range mc.Spheres {
		adj := model.SphereAdjustment{RadiusScale: s.RadiusScale, Offset: s.Offset}
		if err := m.SetSphereAdjustment(s.Bone, adj); err != nil {
			return i, err
		}
	}
	return len(mc.Spheres), nil
}
