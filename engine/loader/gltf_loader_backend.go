package loader

import (
	"fmt"
	"io"
)

// gltfLoaderBackendImpl is the glTF/GLB implementation of loaderBackend. A parser is created
// per import so concurrent loads share nothing.
type gltfLoaderBackendImpl struct{}

var _ loaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Returns:
//   - loaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend() loaderBackend {
	return &gltfLoaderBackendImpl{}
}

func (b *gltfLoaderBackendImpl) Load(path string) (*importedRig, error) {
	p := newGLTFParser()
	if err := p.Parse(path); err != nil {
		return nil, err
	}
	return b.extract(p)
}

func (b *gltfLoaderBackendImpl) LoadReader(r io.Reader, isGLB bool) (*importedRig, error) {
	p := newGLTFParser()
	if err := p.ParseReader(r, isGLB); err != nil {
		return nil, err
	}
	return b.extract(p)
}

func (b *gltfLoaderBackendImpl) extract(p gltfParser) (*importedRig, error) {
	doc := p.Document()
	if len(doc.ExtensionsRequired) > 0 {
		return nil, fmt.Errorf("unsupported required extensions: %v", doc.ExtensionsRequired)
	}

	skins := newGLTFSkeletonExtractor(p)
	skinIdx, meshIdx := skins.FindSkinnedMesh()
	rig := &importedRig{Triangles: gltfTriangleCount(doc, meshIdx)}
	if skinIdx < 0 {
		return rig, nil
	}

	skeleton, nodeToBone, err := skins.ExtractSkeleton(skinIdx)
	if err != nil {
		return nil, err
	}
	clips, err := newGLTFAnimationExtractor(p).ExtractAnimationsForSkeleton(nodeToBone)
	if err != nil {
		return nil, err
	}
	rig.Skeleton = skeleton
	rig.Clips = clips
	return rig, nil
}

// gltfTriangleCount sums the triangles of a mesh's triangle primitives. Primitives of other
// topologies contribute nothing.
func gltfTriangleCount(doc *gltfDocument, meshIdx int) int {
	if meshIdx < 0 || meshIdx >= len(doc.Meshes) {
		return 0
	}
	total := 0
	for _, prim := range doc.Meshes[meshIdx].Primitives {
		accIdx, ok := prim.Attributes["POSITION"]
		if prim.Indices != nil {
			accIdx, ok = *prim.Indices, true
		}
		if !ok || accIdx < 0 || accIdx >= len(doc.Accessors) {
			continue
		}
		n := doc.Accessors[accIdx].Count

		mode := gltfPrimitiveModeTriangles
		if prim.Mode != nil {
			mode = *prim.Mode
		}
		switch mode {
		case gltfPrimitiveModeTriangles:
			total += n / 3
		case gltfPrimitiveModeTriangleStrip, gltfPrimitiveModeTriangleFan:
			total += max(n-2, 0)
		}
	}
	return total
}
