package chat

import "time"

// ChatCountResponse is returned by GET /api/chat-count
type ChatCountResponse struct {
	ChatCount int `json:"chat_count"`
}

// SendMessageRequest is the body of POST /api/messages
type SendMessageRequest struct {
	Content string `json:"content"`
}

// BuyMessagesRequest is the body of POST /api/buy-messages. Amount is
// denominated in paisa.
type BuyMessagesRequest struct {
	ChatCredits int   `json:"chat_credits"`
	Amount      int64 `json:"amount"`
}

// BuyMessagesResponse carries the external redirect for a purchase
type BuyMessagesResponse struct {
	PaymentURL string `json:"payment_url"`
	Pidx       string `json:"pidx,omitempty"`
}

// ErrorResponse is the JSON error envelope used by the API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Error codes carried in ErrorResponse.Error
const (
	CodeInsufficientCredits = "insufficient_credits"
	CodeValidation          = "validation_error"
	CodeNotFound            = "not_found"
	CodePaymentFailed       = "payment_failed"
	CodeUnauthorized        = "unauthorized"
)

// ChatRequestStatus is the lifecycle state of a session booking request
type ChatRequestStatus string

const (
	ChatRequestPending  ChatRequestStatus = "pending"
	ChatRequestAccepted ChatRequestStatus = "accepted"
	ChatRequestRejected ChatRequestStatus = "rejected"
)

// CreateChatRequestRequest is the body of POST /api/chat-requests
type CreateChatRequestRequest struct {
	SessionDuration string `json:"session_duration"`
}

// UpdateChatRequestRequest is the body of PATCH /api/chat-requests/{id}
type UpdateChatRequestRequest struct {
	Status ChatRequestStatus `json:"status"`
	Paid   *bool             `json:"paid,omitempty"`
}

// Valid reports whether s is a status an expert may set
func (s ChatRequestStatus) Valid() bool {
	return s == ChatRequestAccepted || s == ChatRequestRejected
}

// ChatRequest is a user's request for a timed session with an expert
type ChatRequest struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	UserName        string            `json:"user_name,omitempty"`
	SessionDuration string            `json:"session_duration"`
	Status          ChatRequestStatus `json:"status"`
	Paid            bool              `json:"paid"`
	RequestedAt     time.Time         `json:"requested_at"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty"`
}

// ChatRequestEnvelope wraps a single chat request in create and update
// responses
type ChatRequestEnvelope struct {
	Message string       `json:"message"`
	Data    *ChatRequest `json:"data"`
}
