package bind_group_provider

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// Target resolves the buffer the write lands in.
//
// Returns:
//   - Buffer: the bound buffer, or nil if the provider has none at the binding
func (w BufferWrite) Target() Buffer {
	if w.Provider == nil {
		return nil
	}
	return w.Provider.Buffer(w.Binding)
}
