package shader

// ShaderOption is a functional option used to configure a Shader during construction.
type ShaderOption func(*shader)

// WithInclude registers the WGSL source of a struct or snippet key for include and group
// annotations in this shader.
//
// Parameters:
//   - key: the struct or snippet key
//   - source: the WGSL source
//   - typeName: the WGSL struct name, empty for snippets
//
// Returns:
//   - ShaderOption: a function that registers the include
func WithInclude(key AnnotationArg, source, typeName string) ShaderOption {
	return func(s *shader) {
		s.ppOptions = append(s.ppOptions, WithRegistryEntry(key, source, typeName))
	}
}

// WithPreProcessorOptions forwards raw pre-processor options.
//
// Parameters:
//   - options: the pre-processor options
//
// Returns:
//   - ShaderOption: a function that appends the options
func WithPreProcessorOptions(options ...PreProcessorOption) ShaderOption {
	return func(s *shader) {
		s.ppOptions = append(s.ppOptions, options...)
	}
}
