package shader

// wgslTypeLayout holds the byte size and alignment for a WGSL type under the WGSL
// host-shareable layout rules. Used to compute MinBindingSize for buffer bindings.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// BindingInfo describes one buffer binding parsed from a shader.
type BindingInfo struct {
	Group   int
	Binding int
	VarName string
	// TypeName is the WGSL type of the variable, e.g. "array<mat4x4<f32>>".
	TypeName string
	// ReadOnly is true for uniform and read-only storage bindings.
	ReadOnly bool
	// Stride is the element stride of a runtime-sized array, or the struct size otherwise.
	Stride uint64
}
