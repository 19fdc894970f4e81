package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error because they may be raised before the Go allocator is
// usable (for example from inside a trap handler), so errors.New is off limits.
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
