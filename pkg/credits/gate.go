package credits

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/observability"
)

// Gate is the credit ledger gate for one chat screen. It is created on
// mount and discarded when the user navigates away.
type Gate struct {
	session Session
	backend Backend
	nav     Navigator
	loc     Location
	config  Config
	logger  *observability.Logger

	mu           sync.Mutex
	messagesLeft int
	balanceKnown bool
	messages     []chat.Message
	draft        string
	state        State
	notice       *Notice
	consumed     map[string]struct{}
	observers    []func(Snapshot)
}

// NewGate creates a gate bound to an explicit session
func NewGate(session Session, backend Backend, nav Navigator, loc Location, config Config) *Gate {
	if config.CallbackParam == "" {
		config.CallbackParam = DefaultCallbackParam
	}
	return &Gate{
		session:  session,
		backend:  backend,
		nav:      nav,
		loc:      loc,
		config:   config,
		logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
		consumed: make(map[string]struct{}),
	}
}

// SetLogger replaces the gate's logger
func (g *Gate) SetLogger(logger *observability.Logger) {
	if logger != nil {
		g.logger = logger.WithField("user_id", g.session.UserID)
	}
}

// Subscribe registers a callback invoked with a fresh snapshot after every
// mutation of the thread or balance
func (g *Gate) Subscribe(fn func(Snapshot)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, fn)
}

// Session returns the session the gate acts for
func (g *Gate) Session() Session {
	return g.session
}

// Snapshot returns a copy of the current view state
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Gate) snapshotLocked() Snapshot {
	msgs := make([]chat.Message, len(g.messages))
	copy(msgs, g.messages)
	var notice *Notice
	if g.notice != nil {
		n := *g.notice
		notice = &n
	}
	return Snapshot{
		MessagesLeft: g.messagesLeft,
		BalanceKnown: g.balanceKnown,
		Messages:     msgs,
		Draft:        g.draft,
		State:        g.state,
		Notice:       notice,
	}
}

// publish must be called without g.mu held
func (g *Gate) publish() {
	g.mu.Lock()
	snap := g.snapshotLocked()
	observers := make([]func(Snapshot), len(g.observers))
	copy(observers, g.observers)
	g.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (g *Gate) setNotice(kind NoticeKind, message string) {
	g.mu.Lock()
	g.notice = &Notice{Kind: kind, Message: message}
	g.mu.Unlock()
}

// ClearNotice dismisses the current notice
func (g *Gate) ClearNotice() {
	g.mu.Lock()
	g.notice = nil
	g.mu.Unlock()
}

// SetDraft records the text currently in the input field
func (g *Gate) SetDraft(text string) {
	g.mu.Lock()
	g.draft = text
	g.mu.Unlock()
}

// MessagesLeft returns the displayed credit count
func (g *Gate) MessagesLeft() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.messagesLeft
}

// CanSend reports whether the send control should be enabled
func (g *Gate) CanSend() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.messagesLeft > 0 && g.state == StateIdle
}

// Balance queries the backend for the authoritative credit count. On
// failure the displayed value is left untouched.
func (g *Gate) Balance(ctx context.Context) (int, error) {
	n, err := g.backend.ChatCount(ctx)
	if err != nil {
		g.logger.WithError(err).Warn("balance fetch failed")
		g.setNotice(NoticeTransport, "Could not load your remaining messages. Please try again.")
		g.publish()
		return g.MessagesLeft(), &TransportError{Op: "balance", Err: err}
	}
	if n < 0 {
		n = 0
	}

	g.mu.Lock()
	g.messagesLeft = n
	g.balanceKnown = true
	g.mu.Unlock()

	g.publish()
	return n, nil
}

// Refresh replaces the local history with the server's ordered history
func (g *Gate) Refresh(ctx context.Context) ([]chat.Message, error) {
	msgs, err := g.backend.ListMessages(ctx)
	if err != nil {
		g.logger.WithError(err).Warn("history fetch failed")
		g.setNotice(NoticeTransport, "Could not load messages. Please try again.")
		g.publish()
		return nil, &TransportError{Op: "history", Err: err}
	}

	g.mu.Lock()
	g.messages = append(g.messages[:0:0], msgs...)
	g.mu.Unlock()

	g.publish()
	return msgs, nil
}

// TrySend submits a message if a credit is available. Blank content and an
// empty balance are rejected without contacting the backend. The content
// stays in the draft unless the send succeeds.
func (g *Gate) TrySend(ctx context.Context, content string) (*chat.Message, error) {
	trimmed, err := chat.NormalizeContent(content)

	g.mu.Lock()
	g.draft = content
	switch {
	case err != nil:
		g.notice = &Notice{Kind: NoticeValidation, Message: "Please type a message first."}
		g.mu.Unlock()
		g.publish()
		return nil, &ValidationError{Field: "content", Message: err.Error()}
	case g.messagesLeft <= 0:
		g.notice = &Notice{Kind: NoticeInsufficientCredits, Message: "You have no messages left. Buy more to keep chatting."}
		g.mu.Unlock()
		g.publish()
		return nil, ErrInsufficientCredits
	case g.state != StateIdle:
		g.mu.Unlock()
		return nil, ErrBusy
	}
	g.state = StateSending
	g.notice = nil
	g.mu.Unlock()
	g.publish()

	msg, err := g.backend.SendMessage(ctx, trimmed)

	g.mu.Lock()
	g.state = StateIdle
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			// the server's running total wins over the local cache
			g.messagesLeft = 0
			g.notice = &Notice{Kind: NoticeInsufficientCredits, Message: "You have no messages left. Buy more to keep chatting."}
			g.mu.Unlock()
			g.publish()
			return nil, ErrInsufficientCredits
		}
		g.notice = &Notice{Kind: NoticeTransport, Message: "Message not sent. Please try again."}
		g.mu.Unlock()
		g.logger.WithError(err).Warn("send failed")
		g.publish()
		return nil, &TransportError{Op: "send", Err: err}
	}
	if msg == nil {
		msg = &chat.Message{Sender: chat.SenderUser, Content: trimmed}
	}
	g.messages = append(g.messages, *msg)
	if g.messagesLeft > 0 {
		g.messagesLeft--
	}
	g.draft = ""
	g.mu.Unlock()

	g.logger.Debug("message sent")
	g.publish()
	return msg, nil
}

// Quote validates a credit count and computes the display price
func (g *Gate) Quote(requested int) (PurchaseIntent, error) {
	if requested <= 0 {
		return PurchaseIntent{}, &ValidationError{Field: "credits", Message: "must be a positive whole number"}
	}
	return PurchaseIntent{
		RequestedCredits: requested,
		UnitPrice:        g.config.UnitPrice,
		TotalPrice:       int64(requested) * g.config.UnitPrice,
	}, nil
}

// QuoteInput parses user-typed credit input and quotes it
func (g *Gate) QuoteInput(raw string) (PurchaseIntent, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return PurchaseIntent{}, &ValidationError{Field: "credits", Message: "must be a positive whole number"}
	}
	return g.Quote(n)
}

// Purchase requests credits from the backend and navigates the full page to
// the payment processor. It returns the redirect target.
func (g *Gate) Purchase(ctx context.Context, requested int) (string, error) {
	intent, err := g.Quote(requested)
	if err != nil {
		g.setNotice(NoticeValidation, "Enter how many messages you want to buy.")
		g.publish()
		return "", err
	}
	return g.purchase(ctx, intent)
}

// PurchaseInput is Purchase for raw user input
func (g *Gate) PurchaseInput(ctx context.Context, raw string) (string, error) {
	intent, err := g.QuoteInput(raw)
	if err != nil {
		g.setNotice(NoticeValidation, "Enter how many messages you want to buy.")
		g.publish()
		return "", err
	}
	return g.purchase(ctx, intent)
}

func (g *Gate) purchase(ctx context.Context, intent PurchaseIntent) (string, error) {
	g.mu.Lock()
	if g.state != StateIdle {
		g.mu.Unlock()
		return "", ErrBusy
	}
	g.state = StatePurchasePending
	g.notice = nil
	g.mu.Unlock()
	g.publish()

	fail := func(err error) (string, error) {
		g.mu.Lock()
		g.state = StateIdle
		g.notice = &Notice{Kind: NoticePayment, Message: "Could not start the payment. Please try again."}
		g.mu.Unlock()
		g.logger.WithError(err).Warn("purchase initiation failed")
		g.publish()
		return "", &PaymentInitiationError{Err: err}
	}

	resp, err := g.backend.BuyMessages(ctx, chat.BuyMessagesRequest{
		ChatCredits: intent.RequestedCredits,
		Amount:      intent.AmountPaisa(),
	})
	if err != nil {
		return fail(err)
	}
	if resp == nil || resp.PaymentURL == "" {
		return fail(errors.New("backend returned no payment URL"))
	}
	if err := g.nav.Navigate(ctx, resp.PaymentURL); err != nil {
		return fail(err)
	}

	g.logger.WithFields(map[string]interface{}{
		"credits": intent.RequestedCredits,
		"amount":  intent.AmountPaisa(),
	}).Info("redirecting to payment processor")
	return resp.PaymentURL, nil
}
