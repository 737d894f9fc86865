package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mindfulmate/mindful/pkg/auth"
	"github.com/mindfulmate/mindful/pkg/chat"
	"github.com/mindfulmate/mindful/pkg/httputil"
	"github.com/mindfulmate/mindful/pkg/middleware"
)

// ChatRequestHandlers manages requests for live sessions with an expert
type ChatRequestHandlers struct {
	s *Server
}

// NewChatRequestHandlers creates chat request handlers
func NewChatRequestHandlers(s *Server) *ChatRequestHandlers {
	return &ChatRequestHandlers{s: s}
}

// RegisterRoutes registers chat request routes
func (h *ChatRequestHandlers) RegisterRoutes(router *mux.Router) {
	expert := middleware.RequireRole(auth.RoleExpert)

	router.HandleFunc("/chat-requests", h.Create).Methods("POST")
	router.Handle("/chat-requests", expert(http.HandlerFunc(h.List))).Methods("GET")
	router.Handle("/chat-requests/{id}", expert(http.HandlerFunc(h.Update))).Methods("PATCH")
}

// Create records a pending session request for the caller
func (h *ChatRequestHandlers) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req chat.CreateChatRequestRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	duration := strings.TrimSpace(req.SessionDuration)
	if !httputil.RequireNonEmpty(w, duration, "session_duration") {
		return
	}

	cr, err := h.s.store.CreateChatRequest(r.Context(), userID, duration)
	if err != nil {
		writeStoreError(w, r, err, "User not found")
		return
	}
	httputil.WriteCreated(w, chat.ChatRequestEnvelope{Message: "Request created", Data: cr})
}

// List returns all session requests, newest first
func (h *ChatRequestHandlers) List(w http.ResponseWriter, r *http.Request) {
	requests, err := h.s.store.ListChatRequests(r.Context())
	if err != nil {
		writeStoreError(w, r, err, "")
		return
	}
	if requests == nil {
		requests = []*chat.ChatRequest{}
	}
	httputil.WriteSuccess(w, requests)
}

// Update accepts or rejects a request and optionally marks it paid
func (h *ChatRequestHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req chat.UpdateChatRequestRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		httputil.WriteBadRequest(w, "Invalid status")
		return
	}

	cr, err := h.s.store.UpdateChatRequest(r.Context(), id, req.Status, req.Paid)
	if err != nil {
		writeStoreError(w, r, err, "Request not found")
		return
	}
	httputil.WriteSuccess(w, chat.ChatRequestEnvelope{Message: "Request updated", Data: cr})
}
