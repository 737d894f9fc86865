package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/httputil"
	"github.com/mindfulmate/mindful/pkg/observability"
	"github.com/mindfulmate/mindful/pkg/storage"
)

// ChatHandlers serves the caller's credit balance and message thread
type ChatHandlers struct {
	s *Server
}

// NewChatHandlers creates chat handlers
func NewChatHandlers(s *Server) *ChatHandlers {
	return &ChatHandlers{s: s}
}

// RegisterRoutes registers chat routes
func (h *ChatHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/chat-count", h.ChatCount).Methods("GET")
	router.HandleFunc("/messages", h.ListMessages).Methods("GET")
	router.HandleFunc("/messages", h.SendMessage).Methods("POST")
}

// ChatCount returns the caller's remaining message credits
func (h *ChatHandlers) ChatCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	n, err := h.s.counter.Get(r.Context(), userID)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}
	httputil.WriteSuccess(w, chat.ChatCountResponse{ChatCount: n})
}

// ListMessages returns the caller's thread in server order
func (h *ChatHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
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

// SendMessage stores a user message and spends one credit
func (h *ChatHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req chat.SendMessageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	content, err := chat.NormalizeContent(req.Content)
	if err != nil {
		h.s.metrics.MessageRejected("empty")
		httputil.WriteBadRequest(w, "Message content is required")
		return
	}

	msg, err := h.s.store.SendUserMessage(r.Context(), userID, content)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientCredits) {
			h.s.metrics.MessageRejected("insufficient_credits")
		}
		writeStoreError(w, r, err, "User not found")
		return
	}

	h.s.counter.Invalidate(r.Context(), userID)
	h.s.metrics.MessageSent(string(chat.SenderUser))
	observability.FromContext(r.Context()).WithField("message_id", msg.ID).Debug("message sent")
	httputil.WriteCreated(w, msg)
}
