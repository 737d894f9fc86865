package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mindfulmate/mindful/pkg/auth"
	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/httputil"
	"github.com/mindfulmate/mindful/pkg/middleware"
)

// ExpertHandlers lets experts read and answer user threads. Replies do not
// cost the user a credit.
type ExpertHandlers struct {
	s *Server
}

// NewExpertHandlers creates expert handlers
func NewExpertHandlers(s *Server) *ExpertHandlers {
	return &ExpertHandlers{s: s}
}

// RegisterRoutes registers expert routes
func (h *ExpertHandlers) RegisterRoutes(router *mux.Router) {
	expert := router.PathPrefix("/expert").Subrouter()
	expert.Use(middleware.RequireRole(auth.RoleExpert))
	expert.HandleFunc("/users/{id}/messages", h.ListThread).Methods("GET")
	expert.HandleFunc("/users/{id}/messages", h.Reply).Methods("POST")
}

// ListThread returns a user's thread
func (h *ExpertHandlers) ListThread(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.s.store.GetUser(r.Context(), userID); err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}

	msgs, err := h.s.store.ListMessages(r.Context(), userID)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	httputil.WriteSuccess(w, msgs)
}

// Reply appends an expert message to a user's thread
func (h *ExpertHandlers) Reply(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req chat.SendMessageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	content, err := chat.NormalizeContent(req.Content)
	if err != nil {
		httputil.WriteBadRequest(w, "Message content is required")
		return
	}

	msg, err := h.s.store.AppendExpertMessage(r.Context(), userID, content)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}
	h.s.metrics.MessageSent(string(chat.SenderExpert))
	httputil.WriteCreated(w, msg)
}
