package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"snowboardCoach/core"
	"snowboardCoach/processors"
)

const maxChatBody = 1 << 20

// ChatHandlers 追问
type ChatHandlers struct {
	chat   Answerer
	logger zerolog.Logger
}

func NewChatHandlers(chat Answerer, logger zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{chat: chat, logger: logger}
}

// ChatHandler POST /api/chat
func (h *ChatHandlers) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		core.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ans, err := h.chat.Answer(r.Context(), req)
	if errors.Is(err, processors.ErrEmptyQuestion) {
		core.WriteError(w, http.StatusBadRequest, "Question is required", err)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("follow-up failed")
		core.WriteError(w, http.StatusInternalServerError, "Failed to generate response", err)
		return
	}

	core.WriteJSON(w, http.StatusOK, core.ChatResponse{
		Success:     true,
		Response:    ans.Text,
		SectionType: ans.Section.Title,
		Message:     "Response generated",
	})
}
