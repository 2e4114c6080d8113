package lifecycle

// invalidStateError signals an operation attempted in the wrong state.
type invalidStateError struct {
	op    string
	state State
}

func (e invalidStateError) Error() string {
	return "invalid state for " + e.op + ": " + string(e.state)
}

// ErrInvalidState constructs an invalid-state error for op in state.
func ErrInvalidState(op string, state State) error {
	return invalidStateError{op: op, state: state}
}

// IsInvalidState reports whether err indicates a wrong-state rejection.
func IsInvalidState(err error) bool {
	_, ok := err.(invalidStateError)
	return ok
}

// notLoadedError signals that a service handle was requested before load.
type notLoadedError struct{}

func (notLoadedError) Error() string { return "service not loaded - call Load first" }

// ErrNotLoaded constructs a not-loaded error.
func ErrNotLoaded() error { return notLoadedError{} }

// IsNotLoaded reports whether err indicates a missing loaded service.
func IsNotLoaded(err error) bool {
	_, ok := err.(notLoadedError)
	return ok
}
