package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sergiecode/gemini-chat-backend/internal/middleware"
	chatservice "github.com/sergiecode/gemini-chat-backend/internal/service/chat"
	"github.com/sergiecode/gemini-chat-backend/pkg/utils"
)

// Handler exposes the conversation REST surface.
type Handler struct {
	chatSvc *chatservice.Service
}

// New creates the chat handler.
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the chat routes. The auth middleware must already
// be applied on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/session", h.handleInitialize)
	r.Post("/chat/messages", h.handleSend)
	r.Get("/chat/messages", h.handleMessages)
	r.Delete("/chat/messages", h.handleClear)
	r.Get("/chat/ready", h.handleReady)
}

// handleInitialize starts the live history subscription for the caller.
func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.chatSvc.Initialize(r.Context(), u.UID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "subscribed"})
}

// handleSend runs one message exchange and returns the updated snapshot.
// Model failures surface with the mapped user-facing message; the error
// assistant message is already part of local state by then.
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatSvc.Send(r.Context(), u.UID, payload.Content); err != nil {
		if errors.Is(err, chatservice.ErrNotAuthenticated) {
			utils.RespondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.chatSvc.Messages(u.UID))
}

// handleMessages returns the in-memory snapshot.
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.chatSvc.Messages(u.UID))
}

// handleClear empties local state, as on sign-out. Persisted messages are
// not touched.
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	h.chatSvc.Clear(u.UID)
	w.WriteHeader(http.StatusNoContent)
}

// handleReady reports whether sends can succeed for the caller.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFrom(r.Context())
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"ready": h.chatSvc.Ready(u.UID)})
}
