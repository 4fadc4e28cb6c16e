// pre_processor.go implements the WGSL shader pre-processor. It scans shader source code
// for @skin: annotations, replaces them with generated WGSL declarations or injected struct
// and snippet source, and collects a declarations list that the animator uses to resolve
// binding indices by role.
//
// The pre-processor maintains two registries:
//   - structRegistry: maps AnnotationArg keys to WGSL struct or snippet sources and their
//     resolved type names. Snippets have an empty type name and cannot be used as a group type.
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
)

// maxIncludeDepth bounds snippet nesting.
const maxIncludeDepth = 8

// registryEntry pairs a WGSL source string with the resolved WGSL type name used in
// generated @group/@binding declarations.
type registryEntry struct {
	// Source is the raw WGSL text injected by an include annotation.
	Source string

	// Type is the WGSL type name emitted in group declarations (e.g. "ModelData").
	// Empty for snippets.
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps struct and snippet keys to their WGSL source and type name.
	structRegistry map[AnnotationArg]registryEntry

	// addressSpaceRegistry maps address space argument keys to WGSL var<> syntax strings.
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates group and provider annotations during a Process call.
	// Reset at the start of each Process invocation.
	declarations []Annotation

	// included tracks the keys already injected during the current Process call.
	included map[AnnotationArg]bool
}

// PreProcessor processes raw WGSL shader source code containing @skin: annotations,
// replacing them with generated declarations or injected sources while collecting
// a declarations list for downstream binding resolution.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and pre-processes it by replacing
	// annotations with their corresponding WGSL output. Include annotations are replaced
	// with the registered source, which is itself pre-processed, and each key is injected
	// at most once. Group annotations are replaced with generated @group/@binding variable
	// declarations. Provider annotations produce no WGSL output but are recorded in the
	// declarations list.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unregistered key
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations collected during the most
	// recent call to Process, in source order (included snippets in place).
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// PreProcessorOption is a functional option used to configure a PreProcessor during construction.
type PreProcessorOption func(*preProcessor)

// WithRegistryEntry registers the WGSL source for a struct or snippet key.
// The key must be one of the known struct or snippet arguments; the source is supplied by the
// package that owns the matching Go GPU type.
//
// Parameters:
//   - key: the struct or snippet key
//   - source: the WGSL source injected by include annotations
//   - typeName: the WGSL struct name emitted in group declarations, empty for snippets
//
// Returns:
//   - PreProcessorOption: a function that registers the entry
func WithRegistryEntry(key AnnotationArg, source, typeName string) PreProcessorOption {
	return func(p *preProcessor) {
		p.structRegistry[key] = registryEntry{Source: source, Type: typeName}
	}
}

// NewPreProcessor creates a new PreProcessor with the model package's struct types and the
// address space mappings pre-populated. Further structs and snippets are registered through
// options.
//
// Parameters:
//   - options: registry entries to add or override
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(options ...PreProcessorOption) PreProcessor {
	p := &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgModelData:  {Source: model.GPUModelDataSource, Type: "ModelData"},
			AnnotationArgBoneSphere: {Source: model.GPUBoneSphereSource, Type: "BoneSphere"},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]
	p.included = make(map[AnnotationArg]bool)
	return p.process(source, 0)
}

func (p *preProcessor) process(source string, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", fmt.Errorf("includes nested deeper than %d", maxIncludeDepth)
	}

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			key := a.Args[0]
			if p.included[key] {
				continue
			}
			entry, ok := p.structRegistry[key]
			if !ok {
				return "", fmt.Errorf("line %d: no source registered for @skin:include %q", i+1, key)
			}
			p.included[key] = true
			expanded, err := p.process(entry.Source, depth+1)
			if err != nil {
				return "", fmt.Errorf("include %q: %w", key, err)
			}
			out = append(out, expanded)
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			wgslType, err := p.resolveType(string(a.Args[2]))
			if err != nil {
				return "", fmt.Errorf("line %d: %w", i+1, err)
			}
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

// resolveType maps a group annotation type key, optionally wrapped in array<>, to its WGSL type name.
func (p *preProcessor) resolveType(key string) (string, error) {
	inner, isArray := strings.CutPrefix(key, "array<")
	if isArray {
		inner = strings.TrimSuffix(inner, ">")
	}
	entry, ok := p.structRegistry[AnnotationArg(inner)]
	if !ok || entry.Type == "" {
		return "", fmt.Errorf("%q is not a registered struct type", inner)
	}
	if isArray {
		return fmt.Sprintf("array<%s>", entry.Type), nil
	}
	return entry.Type, nil
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
