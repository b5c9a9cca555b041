package process

// Supervisor delivers stop requests to a started process and its children.
// The concrete signals are platform specific.
type Supervisor interface {
	// RequestGracefulStop asks the process group to shut down cleanly. It
	// does not wait for the exit.
	RequestGracefulStop(h *Handle) error

	// ForceTerminate kills the process group.
	ForceTerminate(h *Handle) error
}
