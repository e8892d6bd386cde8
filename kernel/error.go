package kernel

// Error describes a failure raised while building the boot address space. All
// errors must be declared as package-level pointers to Error so callers can
// compare them by identity and so that reporting a failure never depends on a
// working heap allocator.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Qualified returns the error message prefixed by its module tag.
func (e *Error) Qualified() string {
	return "[" + e.Module + "] " + e.Message
}
