package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// gltfSkeletonExtractorImpl is the implementation of the gltfSkeletonExtractor interface.
type gltfSkeletonExtractorImpl struct {
	parser gltfParser
}

// gltfSkeletonExtractor converts glTF skins into skeletons whose bones are ordered parents
// first, the order the transform stage walks them in.
type gltfSkeletonExtractor interface {
	// ExtractSkeleton extracts the skeleton of a skin.
	//
	// Parameters:
	//   - skinIndex: the index of the skin to extract
	//
	// Returns:
	//   - *model.Skeleton: the skeleton with parents ordered before children
	//   - map[int]int32: glTF node index to bone index, for retargeting animation channels
	//   - error: error if extraction fails
	ExtractSkeleton(skinIndex int) (*model.Skeleton, map[int]int32, error)

	// FindSkinnedMesh returns the skin and mesh of the first node carrying both, or -1, -1.
	//
	// Returns:
	//   - int: the skin index or -1
	//   - int: the mesh index or -1
	FindSkinnedMesh() (int, int)
}

var _ gltfSkeletonExtractor = &gltfSkeletonExtractorImpl{}

// newGLTFSkeletonExtractor creates a new skeleton extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//
// Returns:
//   - gltfSkeletonExtractor: the skeleton extractor
func newGLTFSkeletonExtractor(parser gltfParser) gltfSkeletonExtractor {
	return &gltfSkeletonExtractorImpl{parser: parser}
}

func (e *gltfSkeletonExtractorImpl) FindSkinnedMesh() (int, int) {
	doc := e.parser.Document()
	if doc == nil {
		return -1, -1
	}
	for _, node := range doc.Nodes {
		if node.Skin != nil && node.Mesh != nil {
			return *node.Skin, *node.Mesh
		}
	}
	if len(doc.Skins) > 0 {
		return 0, -1
	}
	return -1, -1
}

func (e *gltfSkeletonExtractorImpl) ExtractSkeleton(skinIndex int) (*model.Skeleton, map[int]int32, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, nil, fmt.Errorf("no document loaded")
	}
	if skinIndex < 0 || skinIndex >= len(doc.Skins) {
		return nil, nil, fmt.Errorf("skin index %d out of range", skinIndex)
	}
	skin := &doc.Skins[skinIndex]

	var inverseBind [][16]float32
	if skin.InverseBindMatrices != nil {
		var err error
		inverseBind, err = e.parser.ReadMat4Accessor(*skin.InverseBindMatrices)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read inverse bind matrices: %w", err)
		}
	}

	parentNode := make(map[int]int, len(doc.Nodes))
	for nodeIdx, node := range doc.Nodes {
		for _, child := range node.Children {
			parentNode[child] = nodeIdx
		}
	}
	jointBone := make(map[int]int32, len(skin.Joints))
	for boneIdx, nodeIdx := range skin.Joints {
		if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) {
			return nil, nil, fmt.Errorf("joint %d: invalid node index %d", boneIdx, nodeIdx)
		}
		jointBone[nodeIdx] = int32(boneIdx)
	}

	bones := make([]model.Bone, len(skin.Joints))
	for boneIdx, nodeIdx := range skin.Joints {
		node := &doc.Nodes[nodeIdx]
		b := &bones[boneIdx]

		b.Name = node.Name
		if b.Name == "" {
			b.Name = fmt.Sprintf("bone_%d", boneIdx)
		}
		b.OffsetMatrix = mgl32.Ident4()
		if boneIdx < len(inverseBind) {
			b.OffsetMatrix = mgl32.Mat4(inverseBind[boneIdx])
		}
		b.LocalTransform = gltfNodeTransform(node)

		// the parent is the nearest ancestor that is also a joint of this skin
		b.ParentIndex = -1
		for n, ok := parentNode[nodeIdx]; ok; n, ok = parentNode[n] {
			if parent, isJoint := jointBone[n]; isJoint {
				b.ParentIndex = parent
				break
			}
		}
	}

	sorted, oldToNew := gltfTopologicalSortBones(bones)
	skeleton, err := model.NewSkeleton(sorted)
	if err != nil {
		return nil, nil, fmt.Errorf("skin %d: %w", skinIndex, err)
	}

	nodeToBone := make(map[int]int32, len(skin.Joints))
	for nodeIdx, oldIdx := range jointBone {
		nodeToBone[nodeIdx] = oldToNew[oldIdx]
	}
	return skeleton, nodeToBone, nil
}

// gltfNodeTransform returns a node's local transform, decomposing the matrix form.
func gltfNodeTransform(node *gltfNode) model.Transform {
	if node.Matrix != nil {
		return gltfDecomposeMatrix(mgl32.Mat4(*node.Matrix))
	}
	t := model.IdentityTransform()
	if node.Translation != nil {
		t.Translation = *node.Translation
	}
	if node.Rotation != nil {
		t.Rotation = *node.Rotation
	}
	if node.Scale != nil {
		t.Scale = *node.Scale
	}
	return t
}

// gltfDecomposeMatrix splits a column-major affine matrix without shear into translation,
// rotation and scale.
func gltfDecomposeMatrix(m mgl32.Mat4) model.Transform {
	var t model.Transform
	t.Translation = m.Col(3).Vec3()

	rot := mgl32.Ident4()
	for c := range 3 {
		col := m.Col(c).Vec3()
		s := col.Len()
		t.Scale[c] = s
		if s < 1e-4 {
			s = 1
		}
		rot.SetCol(c, col.Mul(1/s).Vec4(0))
	}
	q := mgl32.Mat4ToQuat(rot).Normalize()
	t.Rotation = [4]float32{q.V[0], q.V[1], q.V[2], q.W}
	return t
}

// gltfTopologicalSortBones orders bones breadth first from the roots so every parent precedes
// its children, and remaps the parent indices. Bones unreachable from a root keep their
// relative order at the end.
//
// Parameters:
//   - bones: bones in skin joint order
//
// Returns:
//   - []model.Bone: the sorted bones
//   - map[int32]int32: old bone index to new bone index
func gltfTopologicalSortBones(bones []model.Bone) ([]model.Bone, map[int32]int32) {
	children := make(map[int32][]int32)
	var queue []int32
	for i, b := range bones {
		if b.ParentIndex >= 0 {
			children[b.ParentIndex] = append(children[b.ParentIndex], int32(i))
		} else {
			queue = append(queue, int32(i))
		}
	}

	order := make([]int32, 0, len(bones))
	visited := make([]bool, len(bones))
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if visited[idx] {
			continue
		}
		visited[idx] = true
		order = append(order, idx)
		queue = append(queue, children[idx]...)
	}
	for i := range bones {
		if !visited[i] {
			order = append(order, int32(i))
		}
	}

	oldToNew := make(map[int32]int32, len(bones))
	for newIdx, oldIdx := range order {
		oldToNew[oldIdx] = int32(newIdx)
	}
	sorted := make([]model.Bone, len(bones))
	for newIdx, oldIdx := range order {
		b := bones[oldIdx]
		if b.ParentIndex >= 0 {
			b.ParentIndex = oldToNew[b.ParentIndex]
		}
		sorted[newIdx] = b
	}
	return sorted, oldToNew
}
