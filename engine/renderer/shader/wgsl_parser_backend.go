package shader

import (
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// scalarLayouts holds the size and alignment of the WGSL scalar types. bool is not
// host-shareable; it resolves so structs used only in function scope still parse.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var scalarLayouts = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},
}

// shorthandScalars maps the suffix of predeclared aliases such as vec3f or mat4x4h.
var shorthandScalars = map[byte]string{
	'f': "f32",
	'i': "i32",
	'u': "u32",
	'h': "f16",
}

// roundUpAlign rounds value up to the next multiple of alignment, a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// splitTemplate splits a templated type such as array<T, N> into its name and arguments.
func splitTemplate(typeName string) (string, []string, bool) {
	open := strings.IndexByte(typeName, '<')
	if open < 0 || !strings.HasSuffix(typeName, ">") {
		return typeName, nil, false
	}
	args := splitAtTopLevelCommas(typeName[open+1 : len(typeName)-1])
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}
	return strings.TrimSpace(typeName[:open]), args, true
}

// vectorLayout is the layout of an n component vector of a scalar of the given size. Three
// component vectors align like four component ones.
func vectorLayout(n, scalarSize uint64) wgslTypeLayout {
	align := n
	if n == 3 {
		align = 4
	}
	return wgslTypeLayout{n * scalarSize, align * scalarSize}
}

// dimension parses a single digit vector or matrix dimension in 2..4.
func dimension(c byte) (uint64, bool) {
	if c < '2' || c > '4' {
		return 0, false
	}
	return uint64(c - '0'), true
}

// primitiveLayout resolves scalar, vector, matrix and atomic types, both the templated forms
// and the predeclared aliases.
//
// Parameters:
//   - typeName: the WGSL type, e.g. "vec3<f32>", "vec3f", "mat4x4<f32>", "atomic<u32>"
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false if typeName is not a primitive type
func primitiveLayout(typeName string) (wgslTypeLayout, bool) {
	if layout, ok := scalarLayouts[typeName]; ok {
		return layout, true
	}

	name, args, templated := splitTemplate(typeName)
	scalar := ""
	switch {
	case templated && len(args) == 1:
		scalar = args[0]
	case !templated && len(name) > 0:
		// vec3f, mat4x4f
		if s, ok := shorthandScalars[name[len(name)-1]]; ok {
			scalar, name = s, name[:len(name)-1]
		}
	}
	elem, ok := scalarLayouts[scalar]
	if !ok {
		return wgslTypeLayout{}, false
	}

	switch {
	case name == "atomic" && templated:
		if scalar != "u32" && scalar != "i32" {
			return wgslTypeLayout{}, false
		}
		return elem, true

	case len(name) == 4 && strings.HasPrefix(name, "vec"):
		n, ok := dimension(name[3])
		if !ok {
			return wgslTypeLayout{}, false
		}
		return vectorLayout(n, elem.size), true

	case len(name) == 6 && strings.HasPrefix(name, "mat") && name[4] == 'x':
		// matCxR is C column vectors of R rows
		cols, okC := dimension(name[3])
		rows, okR := dimension(name[5])
		if !okC || !okR || (scalar != "f32" && scalar != "f16") {
			return wgslTypeLayout{}, false
		}
		col := vectorLayout(rows, elem.size)
		return wgslTypeLayout{cols * roundUpAlign(col.align, col.size), col.align}, true
	}
	return wgslTypeLayout{}, false
}

// arrayType splits array<T, N> and array<T>. A count of 0 marks a runtime-sized array.
func arrayType(typeName string) (elem string, count uint64, ok bool) {
	name, args, templated := splitTemplate(typeName)
	if !templated || name != "array" || len(args) == 0 || len(args) > 2 {
		return "", 0, false
	}
	if len(args) == 2 {
		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil || n == 0 {
			return "", 0, false
		}
		count = n
	}
	return args[0], count, true
}

// resolveTypeLayout resolves a WGSL type to its size and alignment from the primitive rules
// and the struct layouts computed so far. A runtime-sized array resolves to one element, the
// smallest useful binding, so callers can scale it by element count.
//
// Parameters:
//   - typeName: the WGSL type, e.g. "f32", "DispatchParams", "array<mat4x4<f32>, 4>"
//   - knownTypes: resolved struct layouts by name
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false if the type or one of its parts is unknown
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := primitiveLayout(typeName); ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	elemType, count, ok := arrayType(typeName)
	if !ok {
		return wgslTypeLayout{}, false
	}
	elem, ok := resolveTypeLayout(elemType, knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := roundUpAlign(elem.align, elem.size)
	return wgslTypeLayout{max(count, 1) * stride, elem.align}, true
}

// computeStructLayout places each field at its next aligned offset and rounds the total up to
// the largest field alignment. A trailing runtime-sized array counts as one element. Builtin
// fields are not part of any buffer and are skipped.
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	var offset uint64
	structAlign := uint64(1)
	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		layout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		offset = roundUpAlign(layout.align, offset) + layout.size
		structAlign = max(structAlign, layout.align)
	}
	return wgslTypeLayout{roundUpAlign(structAlign, offset), structAlign}, true
}

// computeStructSizes resolves every struct layout. Structs may nest in any declaration order,
// so resolution repeats until a pass makes no progress; structs that never resolve are left out.
//
// Parameters:
//   - structs: the parsed struct blocks
//
// Returns:
//   - map[string]wgslTypeLayout: the layouts by struct name
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	pending := append([]parsedStruct(nil), structs...)
	for len(pending) > 0 {
		unresolved := pending[:0]
		for _, ps := range pending {
			layout, ok := computeStructLayout(ps, resolved)
			if !ok {
				unresolved = append(unresolved, ps)
				continue
			}
			resolved[ps.name] = layout
		}
		if len(unresolved) == len(pending) {
			break
		}
		pending = unresolved
	}
	return resolved
}

// bufferBindingType maps the address space of a var declaration to its buffer binding type.
// Declarations without a buffer address space return BufferBindingTypeUndefined.
func bufferBindingType(addressSpace string) wgpu.BufferBindingType {
	space, access, _ := strings.Cut(addressSpace, ",")
	switch strings.TrimSpace(space) {
	case "uniform":
		return wgpu.BufferBindingTypeUniform
	case "storage":
		if strings.TrimSpace(access) == "read_write" {
			return wgpu.BufferBindingTypeStorage
		}
		return wgpu.BufferBindingTypeReadOnlyStorage
	default:
		return wgpu.BufferBindingTypeUndefined
	}
}

// stripComments removes line comments and nested block comments in one pass. Newlines ending
// line comments are kept so regex matches stay on their lines.
//
// Parameters:
//   - source: raw WGSL source
//
// Returns:
//   - string: the source without comments
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		next := byte(0)
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case source[i] == '/' && next == '*':
			depth++
			i++
		case source[i] == '*' && next == '/' && depth > 0:
			depth--
			i++
		case depth > 0:
		case source[i] == '/' && next == '/':
			end := strings.IndexByte(source[i:], '\n')
			if end < 0 {
				return sb.String()
			}
			i += end - 1
		default:
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits s at commas outside angle brackets, so array<T, N> stays whole.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
