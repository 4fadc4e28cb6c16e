package managed_buffer

// ManagedBufferBuilderOption is a functional option applied to a managed buffer during construction.
type ManagedBufferBuilderOption func(*managedBuffer)

// WithGrowthFactor sets the factor capacity is multiplied by on growth. Defaults to DefaultGrowthFactor.
//
// Parameters:
//   - factor: the growth factor, at least 1
//
// Returns:
//   - ManagedBufferBuilderOption: a function that applies the growth factor option
func WithGrowthFactor(factor float64) ManagedBufferBuilderOption {
	return func(b *managedBuffer) {
		if factor >= 1 {
			b.growth = factor
		}
	}
}

// WithInitialCapacity allocates the backing buffer at construction.
//
// Parameters:
//   - size: the initial capacity in bytes
//
// Returns:
//   - ManagedBufferBuilderOption: a function that applies the initial capacity option
func WithInitialCapacity(size uint64) ManagedBufferBuilderOption {
	return func(b *managedBuffer) {
		b.minCapacity = size
	}
}
