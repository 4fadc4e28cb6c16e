package model

import "strings"

// Capability is a bitset of what the compute pipeline can do with a model. It is resolved once
// when the model is built so call sites never re-derive it from bone, clip and triangle counts.
type Capability uint8

const (
	// CapabilitySkinned marks a model with at least one bone.
	CapabilitySkinned Capability = 1 << iota

	// CapabilityAnimated marks a skinned model with clips and triangles. Only animated models
	// take part in the compute stages.
	CapabilityAnimated

	// CapabilityHeadMovement marks an animated model whose head movement mapping is complete.
	// These models use the head movement transform variant.
	CapabilityHeadMovement
)

// Has reports whether every bit in c is set.
func (c Capability) Has(flags Capability) bool {
	return c&flags == flags
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c.Has(CapabilitySkinned) {
		parts = append(parts, "skinned")
	}
	if c.Has(CapabilityAnimated) {
		parts = append(parts, "animated")
	}
	if c.Has(CapabilityHeadMovement) {
		parts = append(parts, "head_movement")
	}
	return strings.Join(parts, "|")
}

// resolveCapabilities derives the capability bitset from a model's static data.
func resolveCapabilities(boneCount, clipCount, triangleCount int, head HeadMoveMapping) Capability {
	var c Capability
	if boneCount == 0 {
		return c
	}
	c |= CapabilitySkinned
	if clipCount == 0 || triangleCount == 0 {
		return c
	}
	c |= CapabilityAnimated
	if head.Complete(clipCount) {
		c |= CapabilityHeadMovement
	}
	return c
}
