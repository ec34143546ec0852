package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentInitiation is matched by every token request failure.
	ErrPaymentInitiation = errors.New("payment initiation failed")
	// ErrInvalidSignature is returned when a callback hash does not match the recomputed one.
	ErrInvalidSignature = errors.New("PAYTR notification failed: bad hash")
	// ErrSessionNotFound is returned when no payment session of the cart matches the callback.
	ErrSessionNotFound = errors.New("unable to complete payment session: the payment session was not found")
)

// InitiationError wraps a failed token request together with the upstream message.
type InitiationError struct {
	Upstream string
	Err      error
}

// Error implements the error interface.
func (e *InitiationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("An error occurred while trying to create the payment.\n%s", e.Upstream)
}

// Unwrap exposes the transport error, if any.
func (e *InitiationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports ErrPaymentInitiation for every InitiationError.
func (e *InitiationError) Is(target error) bool {
	return target == ErrPaymentInitiation
}

func initiationError(upstream string, err error) *InitiationError {
	if upstream == "" && err != nil {
		upstream = err.Error()
	}
	return &InitiationError{Upstream: upstream, Err: err}
}
