package credits

import (
	"context"
	"net/url"

	"github.com/mindfulmate/mindful/pkg/chat"
)

// DefaultCallbackParam is the query parameter the payment processor
// appends to the return URL
const DefaultCallbackParam = "pidx"

// Backend is the REST boundary the gate consumes
type Backend interface {
	ChatCount(ctx context.Context) (int, error)
	ListMessages(ctx context.Context) ([]chat.Message, error)
	SendMessage(ctx context.Context, content string) (*chat.Message, error)
	BuyMessages(ctx context.Context, req chat.BuyMessagesRequest) (*chat.BuyMessagesResponse, error)
}

// Navigator performs a full navigation away from the application
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

// Location exposes the current navigation target. Replace swaps the visible
// address without reloading.
type Location interface {
	Current() *url.URL
	Replace(u *url.URL)
}

// Session identifies the authenticated user the gate acts for
type Session struct {
	UserID int64
	Token  string
}

// Config holds gate settings
type Config struct {
	// UnitPrice is the price of one credit in rupees
	UnitPrice int64
	// CallbackParam defaults to DefaultCallbackParam
	CallbackParam string
}

// State is the gate's request state
type State int

const (
	StateIdle State = iota
	StateSending
	StatePurchasePending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StatePurchasePending:
		return "purchase_pending"
	default:
		return "unknown"
	}
}

// PurchaseIntent is the transient quote shown while a purchase is open
type PurchaseIntent struct {
	RequestedCredits int   `json:"requested_credits"`
	UnitPrice        int64 `json:"unit_price"`
	TotalPrice       int64 `json:"total_price"`
}

// AmountPaisa returns the total price in the smallest currency unit
func (p PurchaseIntent) AmountPaisa() int64 {
	return p.TotalPrice * chat.PaisaPerRupee
}

// NoticeKind classifies a user-visible notice
type NoticeKind string

const (
	NoticeValidation          NoticeKind = "validation"
	NoticeInsufficientCredits NoticeKind = "insufficient_credits"
	NoticeTransport           NoticeKind = "transport"
	NoticePayment             NoticeKind = "payment"
)

// Notice is a transient, non-fatal message for the user
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Snapshot is a copy of the gate's view state
type Snapshot struct {
	MessagesLeft int
	BalanceKnown bool
	Messages     []chat.Message
	Draft        string
	State        State
	Notice       *Notice
}
