package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mindfulmate/mindful/pkg/chat"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique key already exists
	ErrConflict = errors.New("already exists")

	// ErrAlreadySettled is returned when a purchase has already left the
	// pending state
	ErrAlreadySettled = errors.New("purchase already settled")

	// ErrInsufficientCredits is returned when a user message is attempted
	// with a zero balance
	ErrInsufficientCredits = chat.ErrInsufficientCredits
)

// Role is the authorization role of a user
type Role string

const (
	RoleUser   Role = "user"
	RoleExpert Role = "expert"
	RoleAdmin  Role = "admin"
)

// User is an account with a message credit balance
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      Role
	ChatCount int
	CreatedAt time.Time
}

// PurchaseStatus is the settlement state of a credit purchase
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// Purchase records a request to buy message credits through the payment
// gateway
type Purchase struct {
	ID            int64
	UserID        int64
	OrderID       string
	Pidx          string
	Credits       int
	AmountPaisa   int64
	Status        PurchaseStatus
	GatewayStatus string
	TransactionID string
	CreatedAt     time.Time
	SettledAt     *time.Time
}

// Store is the persistence interface used by the API and billing services
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	ChatCount(ctx context.Context, userID int64) (int, error)

	ListMessages(ctx context.Context, userID int64) ([]chat.Message, error)
	// SendUserMessage spends one credit and stores the message atomically
	SendUserMessage(ctx context.Context, userID int64, content string) (*chat.Message, error)
	// AppendExpertMessage stores an expert reply without touching the balance
	AppendExpertMessage(ctx context.Context, userID int64, content string) (*chat.Message, error)

	CreatePurchase(ctx context.Context, p *Purchase) error
	SetPurchasePidx(ctx context.Context, purchaseID int64, pidx string) error
	GetPurchaseByPidx(ctx context.Context, pidx string) (*Purchase, error)
	// CompletePurchase marks a pending purchase completed and grants its
	// credits atomically. It returns ErrAlreadySettled if the purchase is
	// not pending.
	CompletePurchase(ctx context.Context, pidx, transactionID string) (*Purchase, error)
	FailPurchase(ctx context.Context, pidx, gatewayStatus string) (*Purchase, error)
	ListPendingPurchases(ctx context.Context, createdBefore time.Time, limit int) ([]*Purchase, error)

	CreateChatRequest(ctx context.Context, userID int64, sessionDuration string) (*chat.ChatRequest, error)
	ListChatRequests(ctx context.Context) ([]*chat.ChatRequest, error)
	UpdateChatRequest(ctx context.Context, id int64, status chat.ChatRequestStatus, paid *bool) (*chat.ChatRequest, error)

	Ping(ctx context.Context) error
	Close() error
}
