package model

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*model)

// WithName is an option builder that sets the name of the Model.
//
// Parameters:
//   - name: the model identifier
//
// Returns:
//   - ModelBuilderOption: a function that applies the name option to a model
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithSkeleton is an option builder that sets the bone hierarchy of the Model.
//
// Parameters:
//   - skeleton: the skeleton to set
//
// Returns:
//   - ModelBuilderOption: a function that applies the skeleton option to a model
func WithSkeleton(skeleton *Skeleton) ModelBuilderOption {
	return func(m *model) {
		m.skeleton = skeleton
	}
}

// WithBones is an option builder that builds the Model's skeleton from an ordered bone list.
// An invalid hierarchy makes NewModel panic.
//
// Parameters:
//   - bones: the ordered bones, parents first
//
// Returns:
//   - ModelBuilderOption: a function that applies the bones option to a model
func WithBones(bones ...Bone) ModelBuilderOption {
	return func(m *model) {
		m.skeleton, m.buildErr = NewSkeleton(bones)
	}
}

// WithAnimations is an option builder that sets the animation clips of the Model.
//
// Parameters:
//   - animations: the animation clips to set
//
// Returns:
//   - ModelBuilderOption: a function that applies the animations option to a model
func WithAnimations(animations ...*AnimationClip) ModelBuilderOption {
	return func(m *model) {
		m.animations = animations
	}
}

// WithTriangleCount is an option builder that sets the number of triangles of the Model's mesh.
// A model without triangles is never animated.
//
// Parameters:
//   - count: the triangle count
//
// Returns:
//   - ModelBuilderOption: a function that applies the triangle count option to a model
func WithTriangleCount(count int) ModelBuilderOption {
	return func(m *model) {
		m.triangleCount = count
	}
}

// WithHeadMoveMapping is an option builder that maps the look directions to clip indices.
//
// Parameters:
//   - mapping: the head movement mapping
//
// Returns:
//   - ModelBuilderOption: a function that applies the head movement mapping option to a model
func WithHeadMoveMapping(mapping HeadMoveMapping) ModelBuilderOption {
	return func(m *model) {
		m.headMove = mapping
	}
}

// WithSphereAdjustments is an option builder that sets the per-bone bounding sphere tuning.
// Bones beyond the provided list get the default radius scale.
//
// Parameters:
//   - adjustments: per-bone adjustments in bone order
//
// Returns:
//   - ModelBuilderOption: a function that applies the sphere adjustments option to a model
func WithSphereAdjustments(adjustments ...SphereAdjustment) ModelBuilderOption {
	return func(m *model) {
		m.sphereAdjustments = adjustments
	}
}

// WithDefaultSphereRadiusScale is an option builder that sets the radius scale used for bones
// without an explicit sphere adjustment. Defaults to 1.
//
// Parameters:
//   - scale: the default radius scale, 0 to give untuned bones no collision volume
//
// Returns:
//   - ModelBuilderOption: a function that applies the default radius scale option to a model
func WithDefaultSphereRadiusScale(scale float32) ModelBuilderOption {
	return func(m *model) {
		m.defaultRadiusScale = scale
	}
}
