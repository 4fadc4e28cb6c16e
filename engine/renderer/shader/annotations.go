// annotations.go defines the annotation types, argument constants, and parser for the
// WGSL shader pre-processor. Annotations are single-line WGSL comments prefixed with
// @skin: that drive struct and snippet injection, bind group declaration, and binding role
// registration. The parsed results are stored as Annotation values and consumed by the
// animator to resolve binding indices by role instead of by variable name.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@skin:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
// Each type corresponds to a distinct pre-processor action and produces different
// fields on the resulting Annotation struct.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct definition or
	// snippet into the shader at the annotation site. Snippets may themselves contain
	// annotations, which are processed recursively. A key is injected at most once per shader.
	//
	// Syntax: //@skin:include <struct_or_snippet>
	//
	// Example: //@skin:include arena_bindings
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// for a registered struct type and appends an Annotation to the declarations list.
	// The variable name doubles as the binding role.
	//
	// Syntax: //@skin:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@skin:group 0 3 storage_read roots array<model_data>
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider registers a provider identity and binding role for a group and
	// binding without generating any WGSL output. The WGSL binding declaration remains
	// hand-written directly below the annotation. This is used for bindings of raw WGSL types
	// (flat arrays of u32, mat4x4 or vec4) that have no registered struct.
	//
	// Syntax:
	//   //@skin:provider <group> <binding> <provider_identity>
	//   //@skin:provider <group> <binding> <provider_identity> <binding_role>
	//
	// Example: //@skin:provider 0 1 arena trs
	AnnotationTypeProvider AnnotationType = "provider"
)

// Annotation represents a single parsed @skin: annotation from a WGSL shader source line.
// Annotations of type AnnotationTypeBindingGroup and AnnotationTypeProvider are appended
// to the PreProcessor's declarations list.
type Annotation struct {
	// Type identifies which annotation was parsed (include, group, or provider).
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:  [0] = struct or snippet key (e.g. "arena_bindings")
	//   - group:    [0] = address space, [1] = var name, [2] = WGSL type key
	//   - provider: [0] = provider identity (e.g. "arena"), [1] = binding role (optional, e.g. "trs")
	Args []AnnotationArg

	// Line is the 1-based line number in the source where this annotation was found.
	// For annotations inside an included snippet it is the line within that snippet.
	Line int

	// Group is the @group index for group and provider annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group and provider annotations. Nil for include annotations.
	Binding *int
}

// Role returns the binding role this annotation declares.
// A provider annotation's role is its optional second argument; a group annotation's
// role is its variable name. Include annotations have no role.
//
// Returns:
//   - AnnotationArg: the role, or empty string if none
func (a Annotation) Role() AnnotationArg {
	switch a.Type {
	case AnnotationTypeProvider:
		if len(a.Args) > 1 {
			return a.Args[1]
		}
	case AnnotationTypeBindingGroup:
		if len(a.Args) > 1 {
			return a.Args[1]
		}
	}
	return ""
}

// AnnotationArg is a typed string constant used as an argument in annotations.
// Arguments fall into five categories: struct type keys, snippet keys, address space
// identifiers, provider identity keys, and binding roles.
type AnnotationArg string

// ── Struct type arguments ──────────────────────────────────────────────────────
// These identify registered WGSL struct types. They can appear in include annotations
// and in group annotations (as the type field, optionally wrapped in array<>).

const (
	// AnnotationArgModelData identifies the ModelData struct holding per-instance world root matrices.
	// Source: engine/model/assets/model_data.wgsl
	AnnotationArgModelData AnnotationArg = "model_data"

	// AnnotationArgBoneSphere identifies the BoneSphere struct holding per-bone sphere tuning.
	// Source: engine/model/assets/bone_sphere.wgsl
	AnnotationArgBoneSphere AnnotationArg = "bone_sphere"

	// AnnotationArgInstanceAnimation identifies the InstanceAnimation struct holding per-instance clip state.
	// Source: engine/renderer/animator/assets/instance_animation.wgsl
	AnnotationArgInstanceAnimation AnnotationArg = "instance_animation"

	// AnnotationArgDispatchParams identifies the DispatchParams uniform holding per-model workload data.
	// Source: engine/renderer/animator/assets/dispatch_params.wgsl
	AnnotationArgDispatchParams AnnotationArg = "dispatch_params"
)

// ── Snippet arguments ──────────────────────────────────────────────────────────
// Snippets are WGSL fragments (usually binding blocks) shared by several shaders so that
// their bind group layouts stay identical. They are only valid in include annotations.

const (
	// AnnotationArgArenaBindings identifies the group 0 binding block of the per-frame arena.
	// Source: engine/renderer/animator/assets/arena_bindings.wgsl
	AnnotationArgArenaBindings AnnotationArg = "arena_bindings"

	// AnnotationArgModelBindings identifies the group 1 binding block of the per-model resources.
	// Source: engine/renderer/animator/assets/model_bindings.wgsl
	AnnotationArgModelBindings AnnotationArg = "model_bindings"
)

// ── Address space arguments ────────────────────────────────────────────────────

const (
	// annotationArgStorageTypeUniform maps to var<uniform> in WGSL.
	annotationArgStorageTypeUniform AnnotationArg = "storage_uniform"

	// annotationArgStorageTypeRead maps to var<storage, read> in WGSL.
	annotationArgStorageTypeRead AnnotationArg = "storage_read"

	// annotationArgStorageTypeReadWrite maps to var<storage, read_write> in WGSL.
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// ── Provider identity arguments ────────────────────────────────────────────────

const (
	// AnnotationArgArena identifies the per-frame arena provider (instance animation state,
	// TRS scratch, bone matrices, world roots, bounding spheres).
	AnnotationArgArena AnnotationArg = "arena"

	// AnnotationArgModel identifies a per-model provider (dispatch params, packed animation
	// data, bone offsets, bone sphere tuning).
	AnnotationArgModel AnnotationArg = "model"
)

// ── Binding role arguments ─────────────────────────────────────────────────────
// These name the semantic purpose of a binding. The animator looks bindings up by role.

const (
	AnnotationArgRoleInstanceAnim AnnotationArg = "instance_anim"
	AnnotationArgRoleTRS          AnnotationArg = "trs"
	AnnotationArgRoleBones        AnnotationArg = "bones"
	AnnotationArgRoleRoots        AnnotationArg = "roots"
	AnnotationArgRoleSpheres      AnnotationArg = "spheres"
	AnnotationArgRoleParams       AnnotationArg = "params"
	AnnotationArgRoleAnimData     AnnotationArg = "anim_data"
	AnnotationArgRoleBoneOffsets  AnnotationArg = "bone_offsets"
	AnnotationArgRoleBoneSpheres  AnnotationArg = "bone_spheres"
)

// validStructTypes lists the struct type keys accepted in include and group annotations.
var validStructTypes = []AnnotationArg{
	AnnotationArgModelData,
	AnnotationArgBoneSphere,
	AnnotationArgInstanceAnimation,
	AnnotationArgDispatchParams,
}

// validSnippets lists the snippet keys accepted in include annotations.
var validSnippets = []AnnotationArg{
	AnnotationArgArenaBindings,
	AnnotationArgModelBindings,
}

// validAddressSpaces lists the address space keys accepted in group annotations.
var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// validProviderIdentities lists the provider identities accepted in provider annotations.
var validProviderIdentities = []AnnotationArg{
	AnnotationArgArena,
	AnnotationArgModel,
}

// validBindingRoles lists the binding roles accepted in provider annotations and as
// variable names of group annotations.
var validBindingRoles = []AnnotationArg{
	AnnotationArgRoleInstanceAnim,
	AnnotationArgRoleTRS,
	AnnotationArgRoleBones,
	AnnotationArgRoleRoots,
	AnnotationArgRoleSpheres,
	AnnotationArgRoleParams,
	AnnotationArgRoleAnimData,
	AnnotationArgRoleBoneOffsets,
	AnnotationArgRoleBoneSpheres,
}

// parseAnnotation attempts to parse a single line of WGSL source as a @skin: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix. Returns
// a populated Annotation for valid annotations, or an error describing the problem for
// malformed annotations with correct prefix but invalid syntax or unknown arguments.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @skin annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @skin include annotation requires exactly one argument", lineNum)
		}
		key := AnnotationArg(args[1])
		if !slices.Contains(validStructTypes, key) && !slices.Contains(validSnippets, key) {
			return nil, fmt.Errorf("line %d: unknown struct or snippet %q in @skin include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{key},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @skin group annotation requires exactly five arguments (group, binding, address space, var name, struct type)", lineNum)
		}
		groupInt, bindingInt, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @skin group annotation", lineNum, args[3])
		}
		if !slices.Contains(validBindingRoles, AnnotationArg(args[4])) {
			return nil, fmt.Errorf("line %d: variable name %q in @skin group annotation is not a binding role", lineNum, args[4])
		}
		typeArg := args[5]
		if inner, ok := strings.CutPrefix(typeArg, "array<"); ok {
			inner = strings.TrimSuffix(inner, ">")
			if !slices.Contains(validStructTypes, AnnotationArg(inner)) {
				return nil, fmt.Errorf("line %d: unknown array element type %q in @skin group annotation", lineNum, inner)
			}
		} else if !slices.Contains(validStructTypes, AnnotationArg(typeArg)) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @skin group annotation", lineNum, typeArg)
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	case string(AnnotationTypeProvider):
		if len(args) < 4 || len(args) > 5 {
			return nil, fmt.Errorf("line %d: @skin provider annotation requires three or four arguments (group, binding, provider identity[, binding role])", lineNum)
		}
		groupInt, bindingInt, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validProviderIdentities, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown provider identity %q in @skin provider annotation", lineNum, args[3])
		}
		providerArgs := []AnnotationArg{AnnotationArg(args[3])}
		if len(args) == 5 {
			if !slices.Contains(validBindingRoles, AnnotationArg(args[4])) {
				return nil, fmt.Errorf("line %d: unknown binding role %q in @skin provider annotation", lineNum, args[4])
			}
			providerArgs = append(providerArgs, AnnotationArg(args[4]))
		}
		return &Annotation{
			Type:    AnnotationTypeProvider,
			Args:    providerArgs,
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @skin annotation type %q", lineNum, args[0])
	}
}

func parseGroupBinding(group, binding string, lineNum int) (int, int, error) {
	g, err := strconv.Atoi(group)
	if err != nil || g < 0 {
		return 0, 0, fmt.Errorf("line %d: invalid group number %q in @skin annotation", lineNum, group)
	}
	b, err := strconv.Atoi(binding)
	if err != nil || b < 0 {
		return 0, 0, fmt.Errorf("line %d: invalid binding number %q in @skin annotation", lineNum, binding)
	}
	return g, b, nil
}
