package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/sirupsen/logrus"

	"github.com/mindfulmate/mindful/pkg/auth"
	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/client"
	"github.com/mindfulmate/mindful/pkg/credits"
	"github.com/mindfulmate/mindful/pkg/observability"
)

var errNotLoggedIn = errors.New("not logged in: run `mindful login <token>` or pass --token")

type env struct {
	io IO
}

// session is one gate bound to the configured account
type session struct {
	gate *credits.Gate
	loc  *credits.MemoryLocation
	cfg  *Config
	log  *logrus.Logger
	out  io.Writer
}

// printNavigator stands in for a browser redirect by printing the target
type printNavigator struct {
	out io.Writer
}

func (n *printNavigator) Navigate(_ context.Context, target string) error {
	_, err := fmt.Fprintf(n.out, "Open this link to pay:\n  %s\n", target)
	return err
}

func (e *env) newSession(cf *commonFlags) (*session, error) {
	cfg, err := cf.resolve()
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, errNotLoggedIn
	}
	log := cf.logger(e.io.Err)

	loc, err := credits.NewMemoryLocation(cfg.Location)
	if err != nil {
		return nil, err
	}

	sess := sessionFromToken(cfg.Token, log)
	gate := credits.NewGate(sess, client.New(cfg.BaseURL, cfg.Token), &printNavigator{out: e.io.Out}, loc,
		credits.Config{UnitPrice: cfg.UnitPrice})
	if cf.verbose {
		gate.SetLogger(observability.NewLogger(observability.DebugLevel, e.io.Err))
	}

	log.WithFields(logrus.Fields{
		"base_url": cfg.BaseURL,
		"user_id":  sess.UserID,
	}).Debug("session ready")

	return &session{gate: gate, loc: loc, cfg: cfg, log: log, out: e.io.Out}, nil
}

// sessionFromToken reads the user ID from the token payload. The server
// verifies the signature, so the CLI only decodes it.
func sessionFromToken(token string, log *logrus.Logger) credits.Session {
	sess := credits.Session{Token: token}

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		log.WithError(err).Debug("token is not a JWT")
		return sess
	}
	var claims auth.Claims
	var registered jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims, &registered); err != nil {
		log.WithError(err).Debug("token claims unreadable")
		return sess
	}
	if registered.Expiry != nil && registered.Expiry.Time().Before(time.Now()) {
		log.Warn("session token has expired; run `mindful login` with a new one")
	}
	sess.UserID = claims.UserID
	return sess
}

func formatMessage(m chat.Message) string {
	who := "you"
	if m.Sender == chat.SenderExpert {
		who = "expert"
	}
	stamp := "--:--"
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format("Jan 2 15:04")
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, who, m.Content)
}

func (s *session) printBalance() {
	fmt.Fprintf(s.out, "Messages left: %d\n", s.gate.MessagesLeft())
}

func (s *session) printHistory(msgs []chat.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(s.out, "No messages yet.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(s.out, formatMessage(m))
	}
}

// explain turns gate errors into a message for the terminal
func explain(err error) error {
	var vErr *credits.ValidationError
	var tErr *credits.TransportError
	var pErr *credits.PaymentInitiationError
	switch {
	case errors.Is(err, credits.ErrInsufficientCredits):
		return errors.New("no messages left; run `mindful buy <n>` to get more")
	case errors.As(err, &vErr):
		return vErr
	case errors.As(err, &pErr):
		return fmt.Errorf("could not start the payment: %w", pErr.Err)
	case errors.As(err, &tErr):
		return fmt.Errorf("could not reach the server: %w", tErr.Err)
	}
	return err
}
