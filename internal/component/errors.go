package component

import (
	"errors"
	"fmt"

	"inferd/pkg/types"
)

type badRequestError struct {
	reason string
}

func (e *badRequestError) Error() string { return e.reason }

// ErrBadRequest reports a structurally invalid load request.
func ErrBadRequest(reason string) error { return &badRequestError{reason: reason} }

// IsBadRequest reports whether err is a bad-request error.
func IsBadRequest(err error) bool {
	var e *badRequestError
	return errors.As(err, &e)
}

type notSupportedError struct {
	capability types.Capability
	op         string
}

func (e *notSupportedError) Error() string {
	return fmt.Sprintf("loaded %s provider does not support %s", e.capability, e.op)
}

// ErrNotSupported reports a handle that lacks the capability's operation set.
func ErrNotSupported(capability types.Capability, op string) error {
	return &notSupportedError{capability: capability, op: op}
}

// IsNotSupported reports whether err is a not-supported error.
func IsNotSupported(err error) bool {
	var e *notSupportedError
	return errors.As(err, &e)
}
