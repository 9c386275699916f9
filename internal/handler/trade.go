package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/poketrade/internal/service"
)

// TradeHandler proposes, lists and rates trades and opens their chats.
// Answering a trade request goes through SocialHandler like friend requests.
type TradeHandler struct {
	trades *service.TradeService
	chats  *service.ChatService
	logger *slog.Logger
}

func NewTradeHandler(trades *service.TradeService, chats *service.ChatService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, chats: chats, logger: logger}
}

// HandleList returns every trade the caller takes part in.
//
// HTTP: GET /api/trades
func (h *TradeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ListTrades(r.Context(), userID(r))
	if err != nil {
		fail(w, r, h.logger, "list trades", err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// HandleCreate proposes a trade.
//
// HTTP: POST /api/trades
// REQUEST BODY:
//
//	{
//	  "targetId": "...",
//	  "targetCard": {"cardId": "sv1-120", "quantity": 1},
//	  "offered": [{"cardId": "sv1-25", "quantity": 2}]
//	}
func (h *TradeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.TradeProposal
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	trade, err := h.trades.CreateTrade(r.Context(), userID(r), req)
	if err != nil {
		fail(w, r, h.logger, "create trade", err)
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

// HandleGet returns one trade. Only its two participants may see it.
//
// HTTP: GET /api/trades/{id}
func (h *TradeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	trade, err := h.trades.GetTrade(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, "get trade", err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

type ratingRequest struct {
	Score int `json:"score"`
}

type ratingResponse struct {
	Rating float64 `json:"rating"`
}

// HandleRate rates the other participant of an accepted trade. The response
// carries their new average.
//
// HTTP: POST /api/trades/{id}/rating
// REQUEST BODY: {"score": 5}
func (h *TradeHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	rating, err := h.trades.RateTrade(r.Context(), userID(r), chi.URLParam(r, "id"), req.Score)
	if err != nil {
		fail(w, r, h.logger, "rate trade", err)
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{Rating: rating})
}

// HandleOpenChat returns the trade's chat, creating it on first use.
//
// HTTP: POST /api/trades/{id}/chat
func (h *TradeHandler) HandleOpenChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.chats.OpenForTrade(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, "open chat", err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}
