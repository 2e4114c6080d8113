package registry

import "inferd/pkg/types"

// alreadyRegisteredError signals a duplicate module or provider id.
type alreadyRegisteredError struct{ id string }

func (e alreadyRegisteredError) Error() string { return "already registered: " + e.id }

// ErrAlreadyRegistered constructs a duplicate-registration error.
func ErrAlreadyRegistered(id string) error { return alreadyRegisteredError{id: id} }

// IsAlreadyRegistered reports whether err indicates a duplicate registration.
func IsAlreadyRegistered(err error) bool {
	_, ok := err.(alreadyRegisteredError)
	return ok
}

// notFoundError signals a missing module or provider id.
type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "not found: " + e.id }

// ErrNotFound constructs a missing-id error.
func ErrNotFound(id string) error { return notFoundError{id: id} }

// IsNotFound reports whether err indicates a missing module or provider.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// noCapableProviderError signals that resolution matched nothing. This is a
// routine outcome, not a fault; callers decide whether to treat it as fatal.
type noCapableProviderError struct {
	capability types.Capability
	modelID    string
}

func (e noCapableProviderError) Error() string {
	return "no capable provider for " + string(e.capability) + " request " + e.modelID
}

// ErrNoCapableProvider constructs a failed-resolution error.
func ErrNoCapableProvider(capability types.Capability, modelID string) error {
	return noCapableProviderError{capability: capability, modelID: modelID}
}

// IsNoCapableProvider reports whether err indicates failed resolution.
func IsNoCapableProvider(err error) bool {
	_, ok := err.(noCapableProviderError)
	return ok
}
