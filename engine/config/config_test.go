package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/Carmen-Shannon/oxy-skin/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
renderer:
  backend: software
  workers: 2
animator:
  bounding_spheres: false
  growth_factor: 2
engine:
  max_consecutive_failures: 3
models:
  chain:
    spheres:
      - bone: 1
        radius_scale: 0
      - bone: 2
        radius_scale: 0.75
        offset: [0, 0.5, 0]
`

const testTOML = `
[renderer]
backend = "software"
workers = 2

[animator]
bounding_spheres = false
growth_factor = 2.0

[engine]
max_consecutive_failures = 3

[[models.chain.spheres]]
bone = 1
radius_scale = 0.0

[[models.chain.spheres]]
bone = 2
radius_scale = 0.75
offset = [0.0, 0.5, 0.0]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "engine.yaml", testYAML},
		{"yml", "engine.yml", testYAML},
		{"toml", "engine.toml", testTOML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, renderer.BackendTypeSoftware, cfg.Backend())
			assert.Equal(t, 2, cfg.Renderer.Workers)
			assert.False(t, cfg.Animator.BoundingSpheres)
			assert.Equal(t, 2.0, cfg.Animator.GrowthFactor)
			assert.Equal(t, 3, cfg.Engine.MaxConsecutiveFailures)

			// left out, so defaulted
			assert.Equal(t, float32(30), cfg.Animator.AABBSamplesPerSecond)
			assert.Equal(t, float32(60), cfg.Engine.TickRate)

			require.Contains(t, cfg.Models, "chain")
			assert.Equal(t, []BoneSphere{
				{Bone: 1, RadiusScale: 0},
				{Bone: 2, RadiusScale: 0.75, Offset: [3]float32{0, 0.5, 0}},
			}, cfg.Models["chain"].Spheres)
		})
	}
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatTOML} {
		cfg, err := Parse(nil, format)
		require.NoError(t, err, format.String())
		assert.Equal(t, Default(), cfg)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"unknown yaml key", "renderer:\n  colour: red\n", FormatYAML},
		{"unknown toml key", "[renderer]\ncolour = \"red\"\n", FormatTOML},
		{"bad backend", "renderer:\n  backend: metal\n", FormatYAML},
		{"growth too small", "[animator]\ngrowth_factor = 1.0\n", FormatTOML},
		{"no failures allowed", "engine:\n  max_consecutive_failures: 0\n", FormatYAML},
		{"negative bone", "models:\n  a:\n    spheres:\n      - bone: -1\n", FormatYAML},
		{"malformed", "renderer: [", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestLoadUnknownExtension(t *testing.T) {
	_, err := Load(writeFile(t, "engine.json", "{}"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestApplySpheres(t *testing.T) {
	cfg, err := Parse([]byte(testYAML), FormatYAML)
	require.NoError(t, err)

	m := model.NewProceduralChain("chain", 3)
	version := m.SphereVersion()
	n, err := cfg.ApplySpheres(m)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Greater(t, m.SphereVersion(), version)

	adj := m.SphereAdjustments()
	assert.Equal(t, float32(1), adj[0].RadiusScale)
	assert.Equal(t, float32(0), adj[1].RadiusScale)
	assert.Equal(t, model.SphereAdjustment{RadiusScale: 0.75, Offset: [3]float32{0, 0.5, 0}}, adj[2])

	n, err = cfg.ApplySpheres(model.NewProceduralChain("other", 3))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = cfg.ApplySpheres(model.NewProceduralChain("chain", 2))
	assert.Error(t, err, "bone 2 does not exist on a two bone chain")
}

func TestWatcherReloads(t *testing.T) {
	path := writeFile(t, "engine.yaml", testYAML)

	changes := make(chan Config, 64)
	w, err := NewWatcher(path, func(c Config) {
		select {
		case changes <- c:
		default:
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	assert.Equal(t, 3, w.Current().Engine.MaxConsecutiveFailures)

	// an invalid write is skipped and the last good config stays current
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_consecutive_failures: 0\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_consecutive_failures: 9\n"), 0o644))

	// a truncating write can be seen half done, so skip intermediate reloads
	timeout := time.After(5 * time.Second)
	for got := false; !got; {
		select {
		case cfg := <-changes:
			assert.NotZero(t, cfg.Engine.MaxConsecutiveFailures)
			got = cfg.Engine.MaxConsecutiveFailures == 9
		case <-timeout:
			t.Fatal("no reload within 5s")
		}
	}
	assert.Eventually(t, func() bool {
		return w.Current().Engine.MaxConsecutiveFailures == 9
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestNewWatcherRequiresValidFile(t *testing.T) {
	_, err := NewWatcher(writeFile(t, "engine.yaml", "renderer:\n  backend: metal\n"), nil)
	assert.Error(t, err)
	_, err = NewWatcher(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
}

func TestLoadResolvesModelPaths(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "elsewhere", "b.glb")
	content := "models:\n  a:\n    path: rigs/a.gltf\n    head_move: {left: l, right: r, up: u, down: d}\n  b:\n    path: " + abs + "\n"
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rigs", "a.gltf"), cfg.Models["a"].Path)
	assert.Equal(t, abs, cfg.Models["b"].Path)
	assert.Equal(t, HeadMoveClips{Left: "l", Right: "r", Up: "u", Down: "d"}, cfg.Models["a"].HeadMove)
	assert.True(t, cfg.Models["b"].HeadMove.Empty())
}

func TestPartialHeadMoveRejected(t *testing.T) {
	_, err := Parse([]byte("[models.a.head_move]\nleft = \"l\"\n"), FormatTOML)
	assert.ErrorContains(t, err, "head_move")
}
