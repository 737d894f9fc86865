package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/mindfulmate/mindful/pkg/billing"
	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/httputil"
	"github.com/mindfulmate/mindful/pkg/observability"
	"github.com/mindfulmate/mindful/pkg/storage"
)

// Payment outcomes reported to the frontend on return
const (
	returnCompleted = "completed"
	returnPending   = "pending"
	returnFailed    = "failed"
	returnError     = "error"
)

// PaymentHandlers starts credit purchases and handles the gateway return
type PaymentHandlers struct {
	s *Server
}

// NewPaymentHandlers creates payment handlers
func NewPaymentHandlers(s *Server) *PaymentHandlers {
	return &PaymentHandlers{s: s}
}

// RegisterRoutes registers authenticated payment routes
func (h *PaymentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/buy-messages", h.BuyMessages).Methods("POST")
}

// RegisterPublicRoutes registers the gateway return route, which the payer's
// browser reaches from the payment page
func (h *PaymentHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/api/payments/khalti/return", h.KhaltiReturn).Methods("GET")
}

// BuyMessages starts a payment for message credits and returns the
// gateway's payment URL
func (h *PaymentHandlers) BuyMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req chat.BuyMessagesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	checkout, err := h.s.payments.Initiate(r.Context(), userID, req.ChatCredits, req.Amount)
	var vErr *billing.ValidationError
	var initErr *billing.InitiationError
	switch {
	case err == nil:
	case errors.As(err, &vErr):
		httputil.WriteBadRequest(w, vErr.Error())
		return
	case errors.As(err, &initErr):
		httputil.WriteBadGateway(w, "Could not start the payment. Please try again.")
		return
	default:
		writeStoreError(w, r, err, "User not found")
		return
	}

	httputil.WriteSuccess(w, chat.BuyMessagesResponse{
		PaymentURL: checkout.PaymentURL,
		Pidx:       checkout.Pidx,
	})
}

// KhaltiReturn settles the purchase named by the pidx query parameter and
// redirects to the frontend with pidx preserved
func (h *PaymentHandlers) KhaltiReturn(w http.ResponseWriter, r *http.Request) {
	pidx := r.URL.Query().Get("pidx")
	if pidx == "" {
		httputil.WriteBadRequest(w, "pidx is required")
		return
	}
	logger := observability.FromContext(r.Context()).WithField("pidx", pidx)

	outcome := returnPending
	settlement, err := h.s.payments.Settle(r.Context(), pidx)
	switch {
	case errors.Is(err, billing.ErrUnknownPayment):
		logger.Warn("return for unknown payment")
		outcome = returnError
	case err != nil:
		logger.WithError(err).Error("payment settlement failed")
		outcome = returnError
	case settlement.Purchase.Status == storage.PurchaseCompleted:
		outcome = returnCompleted
	case settlement.Purchase.Status == storage.PurchaseFailed:
		outcome = returnFailed
	}

	if h.s.opts.FrontendURL == "" {
		httputil.WriteSuccess(w, map[string]string{"pidx": pidx, "payment": outcome})
		return
	}

	target, err := url.Parse(h.s.opts.FrontendURL)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	q := target.Query()
	q.Set("pidx", pidx)
	q.Set("payment", outcome)
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}
