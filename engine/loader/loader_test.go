package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-skin/common"
	"github.com/Carmen-Shannon/oxy-skin/engine/config"
	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRig builds a two joint rig: "root" at the origin and "head" one unit up. The skin lists
// the head first so import has to reorder the joints.
type testRig struct {
	bin         bytes.Buffer
	accessors   []map[string]any
	bufferViews []map[string]any
}

func (r *testRig) accessor(data any, count int, typ string, componentType int) int {
	for r.bin.Len()%4 != 0 {
		r.bin.WriteByte(0)
	}
	start := r.bin.Len()
	if err := binary.Write(&r.bin, binary.LittleEndian, data); err != nil {
		panic(err)
	}
	r.bufferViews = append(r.bufferViews, map[string]any{
		"buffer": 0, "byteOffset": start, "byteLength": r.bin.Len() - start,
	})
	r.accessors = append(r.accessors, map[string]any{
		"bufferView": len(r.bufferViews) - 1, "count": count, "type": typ, "componentType": componentType,
	})
	return len(r.accessors) - 1
}

func quat(angle float32, axis mgl32.Vec3) [4]float32 {
	return common.QuatToArray(mgl32.QuatRotate(angle, axis))
}

// document returns the glTF JSON and the binary buffer it reads.
func (r *testRig) document(embed bool) ([]byte, []byte) {
	headIBM := mgl32.Translate3D(0, -1, 0)
	rootIBM := mgl32.Ident4()
	ibm := r.accessor([][16]float32{headIBM, rootIBM}, 2, gltfAccessorTypeMat4, gltfComponentTypeFloat)
	positions := r.accessor([][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 2, 0}}, 4, gltfAccessorTypeVec3, gltfComponentTypeFloat)
	indices := r.accessor([]uint16{0, 1, 2, 1, 3, 2}, 6, gltfAccessorTypeScalar, gltfComponentTypeUnsignedShort)

	nodTimes := r.accessor([]float32{0, 1}, 2, gltfAccessorTypeScalar, gltfComponentTypeFloat)
	nodRot := r.accessor([][4]float32{{0, 0, 0, 1}, quat(mgl32.DegToRad(90), mgl32.Vec3{1, 0, 0})}, 2, gltfAccessorTypeVec4, gltfComponentTypeFloat)
	shiftTimes := r.accessor([]float32{0, 2}, 2, gltfAccessorTypeScalar, gltfComponentTypeFloat)
	shift := r.accessor([][3]float32{{0, 0, 0}, {1, 0, 0}}, 2, gltfAccessorTypeVec3, gltfComponentTypeFloat)
	zero := r.accessor([]float32{0}, 1, gltfAccessorTypeScalar, gltfComponentTypeFloat)

	look := func(name string, q [4]float32) map[string]any {
		out := r.accessor([][4]float32{q}, 1, gltfAccessorTypeVec4, gltfComponentTypeFloat)
		return map[string]any{
			"name":     name,
			"samplers": []any{map[string]any{"input": zero, "output": out}},
			"channels": []any{map[string]any{"sampler": 0, "target": map[string]any{"node": 1, "path": "rotation"}}},
		}
	}

	looks := []any{
		look("left", quat(mgl32.DegToRad(60), mgl32.Vec3{0, 1, 0})),
		look("right", quat(-mgl32.DegToRad(60), mgl32.Vec3{0, 1, 0})),
		look("up", quat(-mgl32.DegToRad(40), mgl32.Vec3{1, 0, 0})),
		look("down", quat(mgl32.DegToRad(40), mgl32.Vec3{1, 0, 0})),
	}

	buffer := map[string]any{"byteLength": r.bin.Len()}
	if embed {
		buffer["uri"] = "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(r.bin.Bytes())
	}

	doc := map[string]any{
		"asset": map[string]any{"version": "2.0"},
		"nodes": []any{
			map[string]any{"name": "root", "children": []int{1}},
			map[string]any{"name": "head", "translation": []float32{0, 1, 0}},
			map[string]any{"name": "body", "mesh": 0, "skin": 0},
			map[string]any{"name": "prop"},
		},
		"meshes": []any{map[string]any{
			"primitives": []any{map[string]any{"attributes": map[string]int{"POSITION": positions}, "indices": indices}},
		}},
		"skins": []any{map[string]any{"inverseBindMatrices": ibm, "joints": []int{1, 0}}},
		"animations": append([]any{
			map[string]any{
				"name": "nod",
				"samplers": []any{
					map[string]any{"input": nodTimes, "output": nodRot},
					map[string]any{"input": shiftTimes, "output": shift},
				},
				"channels": []any{
					map[string]any{"sampler": 0, "target": map[string]any{"node": 1, "path": "rotation"}},
					map[string]any{"sampler": 1, "target": map[string]any{"node": 0, "path": "translation"}},
				},
			},
			map[string]any{
				"name":     "prop_spin",
				"samplers": []any{map[string]any{"input": nodTimes, "output": nodRot}},
				"channels": []any{map[string]any{"sampler": 0, "target": map[string]any{"node": 3, "path": "rotation"}}},
			},
		}, looks...),
		"accessors":   r.accessors,
		"bufferViews": r.bufferViews,
		"buffers":     []any{buffer},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data, r.bin.Bytes()
}

func writeGLTF(t *testing.T) string {
	t.Helper()
	data, _ := (&testRig{}).document(true)
	path := filepath.Join(t.TempDir(), "rig.gltf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func packGLB(jsonData, bin []byte) []byte {
	pad := func(b []byte, with byte) []byte {
		for len(b)%4 != 0 {
			b = append(b, with)
		}
		return b
	}
	jsonData = pad(jsonData, ' ')
	bin = pad(bin, 0)

	var out bytes.Buffer
	total := 12 + 8 + len(jsonData) + 8 + len(bin)
	_ = binary.Write(&out, binary.LittleEndian, gltfGLBHeader{Magic: gltfGLBMagic, Version: gltfGLBVersion, Length: uint32(total)})
	_ = binary.Write(&out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(jsonData)), ChunkType: gltfGLBChunkJSON})
	out.Write(jsonData)
	_ = binary.Write(&out, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(bin)), ChunkType: gltfGLBChunkBIN})
	out.Write(bin)
	return out.Bytes()
}

func assertRig(t *testing.T, m model.Model) {
	t.Helper()
	require.Equal(t, uint32(2), m.BoneCount())
	bones := m.Skeleton().Bones
	assert.Equal(t, "root", bones[0].Name)
	assert.Equal(t, int32(-1), bones[0].ParentIndex)
	assert.Equal(t, "head", bones[1].Name)
	assert.Equal(t, int32(0), bones[1].ParentIndex)
	assert.Equal(t, mgl32.Translate3D(0, -1, 0), bones[1].OffsetMatrix)
	assert.Equal(t, [3]float32{0, 1, 0}, bones[1].LocalTransform.Translation)
	assert.Equal(t, 2, m.TriangleCount(), "two indexed triangles")

	assert.Equal(t, []string{"nod", "left", "right", "up", "down"}, m.AnimationNames(), "clips on other nodes are dropped")
	nod := m.Animations()[0]
	assert.Equal(t, float32(2), nod.Duration)
	require.Len(t, nod.Channels, 2)
	assert.Equal(t, int32(0), nod.Channels[0].BoneIndex)
	assert.Len(t, nod.Channels[0].PositionKeys, 2)
	assert.Equal(t, int32(1), nod.Channels[1].BoneIndex)
	assert.Len(t, nod.Channels[1].RotationKeys, 2)

	assert.True(t, m.Capabilities().Has(model.CapabilityAnimated))
	assert.False(t, m.Capabilities().Has(model.CapabilityHeadMovement))
}

func TestLoadGLTF(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	path := writeGLTF(t)

	m, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rig", m.Name())
	assertRig(t, m)

	again, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Same(t, m, l.Get(path))
	assert.Len(t, l.Models(), 1)
}

func TestLoadGLB(t *testing.T) {
	jsonData, bin := (&testRig{}).document(false)
	l := NewLoader(BackendTypeGLTF)

	m, err := l.LoadReader("rig", bytes.NewReader(packGLB(jsonData, bin)), true)
	require.NoError(t, err)
	assert.Equal(t, "rig", m.Name())
	assertRig(t, m)

	path := filepath.Join(t.TempDir(), "rig.glb")
	require.NoError(t, os.WriteFile(path, packGLB(jsonData, bin), 0o644))
	fromFile, err := l.Load(path)
	require.NoError(t, err)
	assertRig(t, fromFile)
}

func TestLoadConfigured(t *testing.T) {
	path := writeGLTF(t)
	cfg := config.Default()
	cfg.Models = map[string]config.ModelConfig{
		"hero": {
			Path:     path,
			HeadMove: config.HeadMoveClips{Left: "left", Right: "right", Up: "up", Down: "down"},
			Spheres:  []config.BoneSphere{{Bone: 1, RadiusScale: 0.5}},
		},
		"tuning_only": {Spheres: []config.BoneSphere{{Bone: 0}}},
	}

	l := NewLoader(BackendTypeGLTF, WithModelOptions(model.WithDefaultSphereRadiusScale(2)))
	models, err := l.LoadConfigured(cfg)
	require.NoError(t, err)
	require.Len(t, models, 1)

	hero := models[0]
	assert.Equal(t, "hero", hero.Name())
	assert.True(t, hero.Capabilities().Has(model.CapabilityHeadMovement))
	assert.Equal(t, model.HeadMoveMapping{Left: 1, Right: 2, Up: 3, Down: 4}, hero.HeadMoveMapping())
	assert.Equal(t, float32(2), hero.SphereAdjustments()[0].RadiusScale)
	assert.Equal(t, float32(0.5), hero.SphereAdjustments()[1].RadiusScale)
	assert.Same(t, hero, l.Get("hero"))

	cfg.Models["hero"] = config.ModelConfig{Path: path, HeadMove: config.HeadMoveClips{Left: "left", Right: "right", Up: "up", Down: "missing"}}
	_, err = NewLoader(BackendTypeGLTF).LoadConfigured(cfg)
	assert.ErrorContains(t, err, "missing")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		return path
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.gltf")},
		{"old version", write("old.gltf", []byte(`{"asset":{"version":"1.0"}}`))},
		{"bad json", write("bad.gltf", []byte(`{"asset":`))},
		{"bad glb magic", write("bad.glb", make([]byte, 20))},
		{"missing buffer file", write("ext.gltf", []byte(`{"asset":{"version":"2.0"},"buffers":[{"uri":"nope.bin","byteLength":4}]}`))},
		{"required extension", write("ext2.gltf", []byte(`{"asset":{"version":"2.0"},"extensionsRequired":["KHR_draco_mesh_compression"]}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(BackendTypeGLTF).Load(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestAccessorOutOfRange(t *testing.T) {
	doc := []byte(`{
		"asset": {"version": "2.0"},
		"buffers": [{"uri": "data:application/octet-stream;base64,AAAAAA==", "byteLength": 4}],
		"bufferViews": [{"buffer": 0, "byteLength": 4}],
		"accessors": [{"bufferView": 0, "count": 2, "type": "SCALAR", "componentType": 5126}]
	}`)
	p := newGLTFParser()
	require.NoError(t, p.ParseReader(bytes.NewReader(doc), false))
	_, err := p.ReadScalarAccessor(0)
	assert.ErrorIs(t, err, errAccessorRange)
	_, err = p.ReadVec3Accessor(0)
	assert.Error(t, err)
}

func TestNormalizedRotationAccessor(t *testing.T) {
	var bin bytes.Buffer
	require.NoError(t, binary.Write(&bin, binary.LittleEndian, []int16{0, 32767, -32768, 0}))
	uri := "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(bin.Bytes())
	doc, err := json.Marshal(map[string]any{
		"asset":       map[string]any{"version": "2.0"},
		"buffers":     []any{map[string]any{"uri": uri, "byteLength": bin.Len()}},
		"bufferViews": []any{map[string]any{"buffer": 0, "byteLength": bin.Len()}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "count": 1, "type": "VEC4", "componentType": gltfComponentTypeShort, "normalized": true},
			map[string]any{"bufferView": 0, "count": 1, "type": "VEC4", "componentType": gltfComponentTypeShort},
		},
	})
	require.NoError(t, err)

	p := newGLTFParser()
	require.NoError(t, p.ParseReader(bytes.NewReader(doc), false))
	got, err := p.ReadVec4Accessor(0)
	require.NoError(t, err)
	assert.Equal(t, [][4]float32{{0, 1, -1, 0}}, got)

	_, err = p.ReadVec4Accessor(1)
	assert.Error(t, err, "integer components must be normalized")
}

func TestDecomposeMatrix(t *testing.T) {
	q := mgl32.QuatRotate(mgl32.DegToRad(30), mgl32.Vec3{0, 1, 0})
	m := common.ComposeTRS(mgl32.Vec3{1, 2, 3}, q, mgl32.Vec3{2, 2, 2})

	tr := gltfDecomposeMatrix(m)
	assert.InDeltaSlice(t, []float32{1, 2, 3}, tr.Translation[:], 1e-5)
	assert.InDeltaSlice(t, []float32{2, 2, 2}, tr.Scale[:], 1e-5)
	got := common.QuatFromArray(tr.Rotation)
	assert.InDelta(t, 1, math32.Abs(got.Dot(q)), 1e-5)
}

func TestTopologicalSortBones(t *testing.T) {
	bones := []model.Bone{
		{Name: "c", ParentIndex: 2},
		{Name: "a", ParentIndex: -1},
		{Name: "b", ParentIndex: 1},
	}
	sorted, oldToNew := gltfTopologicalSortBones(bones)
	names := []string{sorted[0].Name, sorted[1].Name, sorted[2].Name}
	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, []int32{-1, 0, 1}, []int32{sorted[0].ParentIndex, sorted[1].ParentIndex, sorted[2].ParentIndex})
	assert.Equal(t, map[int32]int32{0: 2, 1: 0, 2: 1}, oldToNew)
}
