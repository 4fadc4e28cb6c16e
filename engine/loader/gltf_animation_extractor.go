package loader

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// gltfAnimationExtractorImpl is the implementation of the gltfAnimationExtractor interface.
type gltfAnimationExtractorImpl struct {
	parser gltfParser
}

// gltfAnimationExtractor converts glTF animations into clips targeting skeleton bones.
// Channels are retargeted through the node to bone mapping of the skeleton extractor, so
// they address the sorted bone order.
type gltfAnimationExtractor interface {
	// ExtractAnimation extracts a single animation by index.
	//
	// Parameters:
	//   - animIndex: the index of the animation in the document
	//   - nodeToBone: glTF node index to bone index
	//
	// Returns:
	//   - *model.AnimationClip: the clip
	//   - error: error if extraction fails
	ExtractAnimation(animIndex int, nodeToBone map[int]int32) (*model.AnimationClip, error)

	// ExtractAnimationsForSkeleton extracts every animation with at least one channel on a
	// bone of the skeleton, in document order.
	//
	// Parameters:
	//   - nodeToBone: glTF node index to bone index
	//
	// Returns:
	//   - []*model.AnimationClip: the clips
	//   - error: error if extraction fails
	ExtractAnimationsForSkeleton(nodeToBone map[int]int32) ([]*model.AnimationClip, error)
}

var _ gltfAnimationExtractor = &gltfAnimationExtractorImpl{}

// newGLTFAnimationExtractor creates a new animation extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//
// Returns:
//   - gltfAnimationExtractor: the animation extractor
func newGLTFAnimationExtractor(parser gltfParser) gltfAnimationExtractor {
	return &gltfAnimationExtractorImpl{parser: parser}
}

func (e *gltfAnimationExtractorImpl) ExtractAnimation(animIndex int, nodeToBone map[int]int32) (*model.AnimationClip, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	if animIndex < 0 || animIndex >= len(doc.Animations) {
		return nil, fmt.Errorf("animation index %d out of range", animIndex)
	}
	anim := &doc.Animations[animIndex]

	name := anim.Name
	if name == "" {
		name = fmt.Sprintf("animation_%d", animIndex)
	}

	// translation, rotation and scale channels of one bone merge into one AnimationChannel
	channels := make(map[int32]*model.AnimationChannel)
	var duration float32

	for i := range anim.Channels {
		ch := &anim.Channels[i]
		if ch.Target.Node == nil || ch.Target.Path == gltfAnimPathWeights {
			continue
		}
		bone, ok := nodeToBone[*ch.Target.Node]
		if !ok {
			continue
		}
		if ch.Sampler < 0 || ch.Sampler >= len(anim.Samplers) {
			return nil, fmt.Errorf("animation %q channel %d: invalid sampler index %d", name, i, ch.Sampler)
		}
		sampler := &anim.Samplers[ch.Sampler]

		times, err := e.parser.ReadScalarAccessor(sampler.Input)
		if err != nil {
			return nil, fmt.Errorf("animation %q channel %d: failed to read timestamps: %w", name, i, err)
		}
		if len(times) > 0 {
			duration = max(duration, times[len(times)-1])
		}

		out, exists := channels[bone]
		if !exists {
			out = &model.AnimationChannel{BoneIndex: bone}
			channels[bone] = out
		}

		// cubic spline samplers store in-tangent, value, out-tangent per key; keep the value
		cubic := sampler.Interpolation == gltfInterpolationCubic

		switch ch.Target.Path {
		case gltfAnimPathTranslation, gltfAnimPathScale:
			values, err := e.parser.ReadVec3Accessor(sampler.Output)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d: failed to read %s values: %w", name, i, ch.Target.Path, err)
			}
			keys := vectorKeys(times, splineValues(values, cubic))
			if ch.Target.Path == gltfAnimPathTranslation {
				out.PositionKeys = keys
			} else {
				out.ScaleKeys = keys
			}

		case gltfAnimPathRotation:
			values, err := e.parser.ReadVec4Accessor(sampler.Output)
			if err != nil {
				return nil, fmt.Errorf("animation %q channel %d: failed to read rotation values: %w", name, i, err)
			}
			values = splineValues(values, cubic)
			keys := make([]model.QuaternionKeyframe, min(len(times), len(values)))
			for j := range keys {
				keys[j] = model.QuaternionKeyframe{Time: times[j], Value: values[j]}
			}
			out.RotationKeys = keys
		}
	}

	clip := &model.AnimationClip{
		Name:     name,
		Duration: duration,
		// glTF times are in seconds
		TicksPerSecond: 1,
		Channels:       make([]model.AnimationChannel, 0, len(channels)),
	}
	for _, ch := range channels {
		clip.Channels = append(clip.Channels, *ch)
	}
	slices.SortFunc(clip.Channels, func(a, b model.AnimationChannel) int {
		return cmp.Compare(a.BoneIndex, b.BoneIndex)
	})
	return clip, nil
}

func (e *gltfAnimationExtractorImpl) ExtractAnimationsForSkeleton(nodeToBone map[int]int32) ([]*model.AnimationClip, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, fmt.Errorf("no document loaded")
	}

	var clips []*model.AnimationClip
	for animIdx := range doc.Animations {
		relevant := slices.ContainsFunc(doc.Animations[animIdx].Channels, func(ch gltfAnimChannel) bool {
			if ch.Target.Node == nil {
				return false
			}
			_, ok := nodeToBone[*ch.Target.Node]
			return ok
		})
		if !relevant {
			continue
		}
		clip, err := e.ExtractAnimation(animIdx, nodeToBone)
		if err != nil {
			return nil, fmt.Errorf("animation %d: %w", animIdx, err)
		}
		clips = append(clips, clip)
	}
	return clips, nil
}

// splineValues drops the tangents of cubic spline output, which holds three entries per key.
func splineValues[T any](values []T, cubic bool) []T {
	if !cubic {
		return values
	}
	out := make([]T, len(values)/3)
	for i := range out {
		out[i] = values[i*3+1]
	}
	return out
}

func vectorKeys(times []float32, values [][3]float32) []model.VectorKeyframe {
	keys := make([]model.VectorKeyframe, min(len(times), len(values)))
	for j := range keys {
		keys[j] = model.VectorKeyframe{Time: times[j], Value: values[j]}
	}
	return keys
}
