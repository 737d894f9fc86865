package credits

import (
	"context"
	"errors"
)

// CallbackToken returns the payment callback token in the current location,
// or "" when there is none
func (g *Gate) CallbackToken() string {
	u := g.loc.Current()
	if u == nil {
		return ""
	}
	return u.Query().Get(g.config.CallbackParam)
}

// Reconcile consumes a payment callback token at most once. When a token is
// present it re-queries the balance, then strips the token from the visible
// location so a refresh cannot trigger it again. A token already consumed
// is stripped without another fetch. It reports whether a token was found.
func (g *Gate) Reconcile(ctx context.Context) (bool, error) {
	token := g.CallbackToken()
	if token == "" {
		return false, nil
	}

	g.mu.Lock()
	_, seen := g.consumed[token]
	g.consumed[token] = struct{}{}
	if g.state == StatePurchasePending {
		g.state = StateIdle
	}
	g.mu.Unlock()

	var err error
	if !seen {
		g.logger.WithField("pidx", token).Info("reconciling balance after payment return")
		_, err = g.Balance(ctx)
	}

	g.stripToken()
	return true, err
}

func (g *Gate) stripToken() {
	u := g.loc.Current()
	if u == nil {
		return
	}
	q := u.Query()
	if !q.Has(g.config.CallbackParam) {
		return
	}
	q.Del(g.config.CallbackParam)
	stripped := *u
	stripped.RawQuery = q.Encode()
	g.loc.Replace(&stripped)
}

// Mount runs the screen-mount lifecycle: reconcile a callback token if one
// is present (which fetches the balance), otherwise fetch the balance, then
// load the history. Errors are non-fatal and joined.
func (g *Gate) Mount(ctx context.Context) error {
	g.mu.Lock()
	g.state = StateIdle
	g.mu.Unlock()

	var errs []error
	reconciled, err := g.Reconcile(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	if !reconciled {
		if _, err := g.Balance(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := g.Refresh(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
