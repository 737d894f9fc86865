package chat

import (
	"errors"
	"strings"
	"time"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser   Sender = "user"
	SenderExpert Sender = "expert"
)

// Valid reports whether the sender is one of the known values
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderExpert
}

// Message is a single entry in a chat thread. Messages are immutable once
// created and ordered by the server.
type Message struct {
	ID        int64     `json:"id,omitempty"`
	Sender    Sender    `json:"sender_type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is the per-user view of the paid chat: remaining credits and
// the ordered message history.
type ChatSession struct {
	UserID       int64     `json:"user_id"`
	MessagesLeft int       `json:"messages_left"`
	Messages     []Message `json:"messages"`
}

// ErrEmptyContent is returned when message content is blank after trimming
var ErrEmptyContent = errors.New("message content is required")

// NormalizeContent trims surrounding whitespace and rejects blank content
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	return trimmed, nil
}

// PaisaPerRupee converts display prices to the smallest currency unit
const PaisaPerRupee = 100

// ErrInsufficientCredits is returned when a send is attempted with no
// remaining message credits, either by the local gate or by the server
var ErrInsufficientCredits = errors.New("insufficient message credits")
