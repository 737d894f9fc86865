package credits

import (
	"errors"
	"fmt"

	"github.com/mindfulmate/mindful/pkg/chat"
)

var (
	// ErrInsufficientCredits blocks a send when no credits remain
	ErrInsufficientCredits = chat.ErrInsufficientCredits

	// ErrBusy is returned while a send or purchase is outstanding
	ErrBusy = errors.New("a request is already in progress")
)

// ValidationError is raised before any network call for bad input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TransportError wraps a network or backend failure
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PaymentInitiationError is raised when the purchase could not hand off to
// the payment processor
type PaymentInitiationError struct {
	Err error
}

func (e *PaymentInitiationError) Error() string {
	return fmt.Sprintf("payment initiation failed: %v", e.Err)
}

func (e *PaymentInitiationError) Unwrap() error {
	return e.Err
}
