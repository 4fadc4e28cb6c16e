package shader

import (
	"errors"
	"fmt"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
)

// ErrNoEntryPoint is returned when a shader source has no @compute function.
var ErrNoEntryPoint = errors.New("shader has no @compute entry point")

// shader is the implementation of the Shader interface.
// It holds all of the persistent shader data required for pipeline creation and binding resolution.
type shader struct {
	key                        string
	source                     string
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindings                   map[int]map[int]BindingInfo
	workGroupSize              [3]uint32
	entryPoint                 string
	module                     *wgpu.ShaderModuleDescriptor
	declarations               []Annotation

	ppOptions []PreProcessorOption
}

// Shader defines the interface for a loaded and parsed WGSL compute shader. It exposes the
// shader's unique key, source code, entry point, bind group layout descriptors, workgroup
// size, and pre-processor declarations needed for pipeline creation and binding resolution.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the pre-processed WGSL shader source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// BindGroupLayoutDescriptor retrieves the bind group layout descriptor for a group index.
	//
	// Parameters:
	//   - group: the group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the descriptor, or an empty descriptor if the group is unused
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors.
	// These are the CPU-side descriptors extracted from the shader source which the
	// renderer uses to create the actual bind group layouts.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// Binding retrieves the parsed details of a single binding.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - BindingInfo: the binding details
	//   - bool: true if the binding exists
	Binding(group, binding int) (BindingInfo, bool)

	// Bindings retrieves the parsed details of every binding, keyed by group and binding index.
	//
	// Returns:
	//   - map[int]map[int]BindingInfo: the binding details
	Bindings() map[int]map[int]BindingInfo

	// BindingForRole resolves the group and binding index declared for a binding role.
	//
	// Parameters:
	//   - role: the binding role (e.g. AnnotationArgRoleTRS)
	//
	// Returns:
	//   - int: the group index
	//   - int: the binding index
	//   - bool: true if an annotation declares the role
	BindingForRole(role AnnotationArg) (int, int, bool)

	// EntryPoint returns the @compute entry point name for this shader.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// WorkgroupSize returns the workgroup size dimensions. Returns [1, 1, 1] when
	// @workgroup_size is not specified.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Module returns the wgpu.ShaderModuleDescriptor for this shader.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor

	// Declarations returns the group and provider annotations parsed from the shader source,
	// including those of included snippets.
	//
	// Returns:
	//   - []Annotation: the declarations in source order
	Declarations() []Annotation

	// CompileSPIRV compiles the pre-processed source to SPIR-V words. It is used to
	// validate shaders without a GPU device.
	//
	// Returns:
	//   - []uint32: the SPIR-V module
	//   - error: the compiler error, if any
	CompileSPIRV() ([]uint32, error)
}

var _ Shader = &shader{}

// NewShader creates a new Shader from a WGSL file on disk. It panics if the file cannot be
// read or parsed, which is only expected for programming errors in bundled shaders.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and lookups
//   - sourcePath: the file path to read WGSL source from
//   - options: a variadic list of options to configure the shader
//
// Returns:
//   - Shader: a new Shader instance with the provided configuration
func NewShader(key string, sourcePath string, options ...ShaderOption) Shader {
	if sourcePath == "" {
		panic(fmt.Sprintf("shader: %s must have a valid source path", key))
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		panic(fmt.Sprintf("shader: failed to read source file %q: %v", sourcePath, err))
	}
	s, err := ParseShader(key, string(data), options...)
	if err != nil {
		panic(fmt.Sprintf("shader: %v", err))
	}
	return s
}

// ParseShader creates a new Shader from WGSL source text.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and lookups
//   - source: the raw WGSL source, which may contain @skin: annotations
//   - options: a variadic list of options to configure the shader
//
// Returns:
//   - Shader: the parsed shader
//   - error: a pre-processing error, or ErrNoEntryPoint
func ParseShader(key string, source string, options ...ShaderOption) (Shader, error) {
	s := &shader{
		key:                        key,
		bindGroupLayoutDescriptors: make(map[int]wgpu.BindGroupLayoutDescriptor),
		bindings:                   make(map[int]map[int]BindingInfo),
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.parseSource(source); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) Binding(group, binding int) (BindingInfo, bool) {
	info, ok := s.bindings[group][binding]
	return info, ok
}

func (s *shader) Bindings() map[int]map[int]BindingInfo {
	return s.bindings
}

func (s *shader) BindingForRole(role AnnotationArg) (int, int, bool) {
	for _, d := range s.declarations {
		if d.Group == nil || d.Binding == nil {
			continue
		}
		if d.Role() == role {
			return *d.Group, *d.Binding, true
		}
	}
	return -1, -1, false
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}

func (s *shader) CompileSPIRV() ([]uint32, error) {
	spirvBytes, err := naga.Compile(s.source)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", s.key, err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// parseSource pre-processes the WGSL source, builds the shader module descriptor, and
// extracts the entry point, workgroup size and bind group layouts.
func (s *shader) parseSource(raw string) error {
	pp := NewPreProcessor(s.ppOptions...)
	source, err := pp.Process(raw)
	if err != nil {
		return fmt.Errorf("failed to pre-process shader source: %w", err)
	}
	s.source = source
	s.declarations = append([]Annotation(nil), pp.Declarations()...)

	s.entryPoint = parseEntryPoint(s.source)
	if s.entryPoint == "" {
		return ErrNoEntryPoint
	}
	s.workGroupSize = parseWorkgroupSize(s.source)
	s.module = &wgpu.ShaderModuleDescriptor{
		Label: s.key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.source,
		},
	}
	s.bindGroupLayoutDescriptors, s.bindings = parseBindGroupLayouts(s.source, wgpu.ShaderStageCompute)
	return nil
}
