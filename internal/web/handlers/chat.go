package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/carecam/internal/chat"
	"github.com/kozaktomas/carecam/internal/database"
	"github.com/kozaktomas/carecam/internal/logger"
)

// Replier is satisfied by *chat.Assistant.
type Replier interface {
	Reply(ctx context.Context, message string) chat.Reply
}

// ChatHandler serves the chat assistant and the clock.
type ChatHandler struct {
	assistant Replier
	now       func() time.Time
	log       *logger.Logger
}

func NewChatHandler(assistant Replier, now func() time.Time, log *logger.Logger) *ChatHandler {
	if now == nil {
		now = time.Now
	}
	return &ChatHandler{assistant: assistant, now: now, log: log}
}

// Chat answers one message.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	reply := h.assistant.Reply(r.Context(), req.Message)
	h.log.Debug("chat reply", "intent", reply.Intent)
	respondJSON(w, http.StatusOK, reply)
}

// CheckTime returns the server clock and the greeting for the current hour.
func (h *ChatHandler) CheckTime(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	zone, _ := now.Zone()
	respondJSON(w, http.StatusOK, map[string]any{
		"server_time": now.Format(database.TimeLayout),
		"hour":        now.Hour(),
		"greeting":    chat.Greeting(now.Hour()),
		"timezone":    zone,
	})
}
