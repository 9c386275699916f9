package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/service"
)

// SocialHandler serves friends and the notification inbox, including the
// accept and decline answers to friend and trade requests.
type SocialHandler struct {
	social *service.SocialService
	logger *slog.Logger
}

func NewSocialHandler(social *service.SocialService, logger *slog.Logger) *SocialHandler {
	return &SocialHandler{social: social, logger: logger}
}

// HandleListFriends returns the caller's friends.
//
// HTTP: GET /api/friends
func (h *SocialHandler) HandleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.social.ListFriends(r.Context(), userID(r))
	if err != nil {
		fail(w, r, h.logger, "list friends", err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

// HandleSendRequest sends a friend request to the user in the path.
//
// HTTP: POST /api/friends/{id}
func (h *SocialHandler) HandleSendRequest(w http.ResponseWriter, r *http.Request) {
	n, err := h.social.SendFriendRequest(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, "send friend request", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// HandleRemoveFriend ends a friendship for both users.
//
// HTTP: DELETE /api/friends/{id}
func (h *SocialHandler) HandleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	if err := h.social.RemoveFriend(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		fail(w, r, h.logger, "remove friend", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListNotifications returns the inbox, newest first.
//
// HTTP: GET /api/notifications?unread=true&limit=50
func (h *SocialHandler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	unread, err := queryBool(r, "unread")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	notes, err := h.social.ListNotifications(r.Context(), userID(r), unread, limit)
	if err != nil {
		fail(w, r, h.logger, "list notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// HandleAccept answers a friend or trade request with yes. An accepted trade
// request also returns the trade's chat.
//
// HTTP: POST /api/notifications/{id}/accept
func (h *SocialHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, model.Accept)
}

// HandleDecline answers a friend or trade request with no.
//
// HTTP: POST /api/notifications/{id}/decline
func (h *SocialHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, model.Decline)
}

func (h *SocialHandler) respond(w http.ResponseWriter, r *http.Request, d model.Decision) {
	resp, err := h.social.Respond(r.Context(), userID(r), chi.URLParam(r, "id"), d)
	if err != nil {
		fail(w, r, h.logger, "respond to request", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleMarkRead marks one notification as read.
//
// HTTP: POST /api/notifications/{id}/read
func (h *SocialHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.social.MarkRead(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		fail(w, r, h.logger, "mark read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
