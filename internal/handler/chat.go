package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/poketrade/internal/service"
)

// ChatHandler reads and writes the messages of a trade chat. The live stream
// is served by LiveHandler.
type ChatHandler struct {
	chats  *service.ChatService
	logger *slog.Logger
}

func NewChatHandler(chats *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

// HandleHistory returns one page of older messages.
//
// HTTP: GET /api/chats/{id}/messages?before=<messageID>&limit=20
//
// Pages come back oldest first. Pass the returned cursor as ?before= to load
// the page before it; hasMore is false on the first page of the chat.
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.chats.History(r.Context(), userID(r), chi.URLParam(r, "id"), r.URL.Query().Get("before"), limit)
	if err != nil {
		fail(w, r, h.logger, "chat history", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type sendRequest struct {
	Text string `json:"text"`
}

// HandleSend posts a message to the chat.
//
// HTTP: POST /api/chats/{id}/messages
// REQUEST BODY: {"text": "Deal?"}
func (h *ChatHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.chats.Send(r.Context(), userID(r), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		fail(w, r, h.logger, "send message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
