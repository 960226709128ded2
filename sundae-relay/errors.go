package sundaerelay

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every error caused by a malformed or
// unroutable event. Validation errors are never retried.
var ErrValidation = errors.New("validation failed")

var (
	ErrMissingField   = fmt.Errorf("%w: missing field", ErrValidation)
	ErrUnknownRoute   = fmt.Errorf("%w: unknown route", ErrValidation)
	ErrUnknownContent = fmt.Errorf("%w: unknown content", ErrValidation)
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// StorageError reports a failed registry operation.
type StorageError struct {
	Op           string
	ConnectionID string
	Err          error
}

func (e *StorageError) Error() string {
	if e.ConnectionID == "" {
		return fmt.Sprintf("registry %v failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("registry %v of connection %v failed: %v", e.Op, e.ConnectionID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsStorageError(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr)
}

// DeliveryError reports a failed push to a single connection. Gone is set
// when the gateway reports the connection no longer exists.
type DeliveryError struct {
	ConnectionID string
	Gone         bool
	Err          error
}

func (e *DeliveryError) Error() string {
	if e.Gone {
		return fmt.Sprintf("connection %v is gone: %v", e.ConnectionID, e.Err)
	}
	return fmt.Sprintf("failed to post to connection %v: %v", e.ConnectionID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
