package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// importedRig is the animation data of one model file.
type importedRig struct {
	Skeleton *model.Skeleton
	Clips    []*model.AnimationClip

	// Triangles is the triangle count of the skinned mesh.
	Triangles int
}

// loaderBackend reads the rig of a model file in one format.
type loaderBackend interface {
	// Load imports the rig of the file at path.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *importedRig: the imported rig
	//   - error: error if loading fails
	Load(path string) (*importedRig, error)

	// LoadReader imports a rig from a reader stream.
	//
	// Parameters:
	//   - r: the reader providing model data
	//   - isGLB: true if the reader provides GLB binary data, false for text-based formats
	//
	// Returns:
	//   - *importedRig: the imported rig
	//   - error: error if loading fails
	LoadReader(r io.Reader, isGLB bool) (*importedRig, error)
}
