package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/mindfulmate/mindful/pkg/storage"
)

// ErrUnknownPayment is returned by Settle for a pidx that no purchase
// carries
var ErrUnknownPayment = errors.New("unknown payment")

// ValidationError reports a purchase request rejected before any gateway
// call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// InitiationError wraps a gateway failure while starting a payment
type InitiationError struct {
	Err error
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("failed to initiate payment: %v", e.Err)
}

func (e *InitiationError) Unwrap() error {
	return e.Err
}

// Config holds pricing and settlement settings
type Config struct {
	// UnitPrice is the price of one credit in rupees
	UnitPrice    int64
	MaxCredits   int
	ReturnURL    string
	WebsiteURL   string
	SweepAge     time.Duration
	SweepWorkers int
	SweepBatch   int
}

// AmountPaisa returns the gateway amount for a number of credits
func (c Config) AmountPaisa(credits int) int64 {
	return int64(credits) * c.UnitPrice * 100
}

// Checkout is the result of a successful Initiate
type Checkout struct {
	PurchaseID int64
	OrderID    string
	Pidx       string
	PaymentURL string
}

// Settlement is the result of Settle
type Settlement struct {
	Purchase *storage.Purchase
	// Credited is true only for the call that granted the credits
	Credited bool
}

// SweepResult summarizes one SweepPending run
type SweepResult struct {
	Checked   int
	Completed int
	Failed    int
	Errors    int
}
