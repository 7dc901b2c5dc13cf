// Package watch pushes live conversation state to clients. Two transports
// carry the same feed: Server-Sent Events and a websocket. Each event holds
// the full current message list or the assistant-responding flag.
package watch

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sergiecode/gemini-chat-backend/internal/middleware"
	chatmodel "github.com/sergiecode/gemini-chat-backend/internal/model/chat"
	chatservice "github.com/sergiecode/gemini-chat-backend/internal/service/chat"
	"github.com/sergiecode/gemini-chat-backend/pkg/utils"
)

// Handler serves the live feeds.
type Handler struct {
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
}

// New creates the watch handler.
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the watch routes; auth middleware applies upstream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/watch", h.handleSSE)
	r.Get("/chat/watch/ws", h.handleWebSocket)
}

type event struct {
	Type       string              `json:"type"`
	Messages   []chatmodel.Message `json:"messages,omitempty"`
	Responding *bool               `json:"responding,omitempty"`
	Timestamp  int64               `json:"timestamp"`
}

func messagesEvent(messages []chatmodel.Message) event {
	return event{Type: "messages", Messages: messages, Timestamp: time.Now().UnixMilli()}
}

func respondingEvent(responding bool) event {
	return event{Type: "responding", Responding: &responding, Timestamp: time.Now().UnixMilli()}
}

// handleSSE streams state changes as Server-Sent Events until the client
// disconnects.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if err := h.chatSvc.Initialize(r.Context(), u.UID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	messages, cancelMessages := h.chatSvc.SubscribeMessages(u.UID)
	defer cancelMessages()
	responding, cancelResponding := h.chatSvc.SubscribeResponding(u.UID)
	defer cancelResponding()

	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	log.Printf("[watch] sse stream opened for user=%s", u.UID)
	defer log.Printf("[watch] sse stream closed for user=%s", u.UID)

	for {
		select {
		case <-ctx.Done():
			return
		case list := <-messages:
			utils.SendSSEEvent(w, flusher, "messages", messagesEvent(list))
		case flag := <-responding:
			utils.SendSSEEvent(w, flusher, "responding", respondingEvent(flag))
		}
	}
}

// handleWebSocket streams the same feed over a websocket connection.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.chatSvc.Initialize(r.Context(), u.UID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[watch] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	messages, cancelMessages := h.chatSvc.SubscribeMessages(u.UID)
	defer cancelMessages()
	responding, cancelResponding := h.chatSvc.SubscribeResponding(u.UID)
	defer cancelResponding()

	// Reader only detects disconnects; the feed is one-way.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Printf("[watch] websocket opened for user=%s", u.UID)
	defer log.Printf("[watch] websocket closed for user=%s", u.UID)

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case list := <-messages:
			if err := conn.WriteJSON(messagesEvent(list)); err != nil {
				return
			}
		case flag := <-responding:
			if err := conn.WriteJSON(respondingEvent(flag)); err != nil {
				return
			}
		}
	}
}
