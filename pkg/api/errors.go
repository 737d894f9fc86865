package api

import (
	"errors"
	"net/http"

	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/contextkeys"
	"github.com/mindfulmate/mindful/pkg/httputil"
	"github.com/mindfulmate/mindful/pkg/observability"
	"github.com/mindfulmate/mindful/pkg/storage"
)

// callerID returns the authenticated user. The auth middleware guarantees
// it on /api routes.
func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
	}
	return userID, ok
}

// writeStoreError maps storage errors to responses
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFound(w, notFound)
	case errors.Is(err, storage.ErrInsufficientCredits):
		httputil.WriteErrorCode(w, http.StatusPaymentRequired, chat.CodeInsufficientCredits, "You have no messages left. Buy more to keep chatting.")
	case errors.Is(err, storage.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteInternalError(w, err)
	}
}
