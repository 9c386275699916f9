package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/realtime"
	"github.com/sakif/poketrade/internal/repository"
)

const (
	DefaultNotificationLimit = 50
	MaxNotificationLimit     = 200
)

// SocialService runs friend and trade requests through one workflow.
//
// Both request kinds are notifications owned by the recipient. Answering one goes
// through model.Transition, and every write the answer implies (the status, both
// friendship rows, the trade status, the acknowledgement to the sender) is
// committed together by the repository.
type SocialService struct {
	users   repository.UserRepository
	notes   repository.NotificationRepository
	friends repository.FriendRepository
	trades  repository.TradeRepository
	chats   repository.ChatRepository
	broker  realtime.Broker
	logger  *slog.Logger
}

func NewSocialService(
	users repository.UserRepository,
	notes repository.NotificationRepository,
	friends repository.FriendRepository,
	trades repository.TradeRepository,
	chats repository.ChatRepository,
	broker realtime.Broker,
	logger *slog.Logger,
) *SocialService {
	return &SocialService{
		users:   users,
		notes:   notes,
		friends: friends,
		trades:  trades,
		chats:   chats,
		broker:  broker,
		logger:  logger,
	}
}

// SendFriendRequest creates a pending friend_request under toID.
func (s *SocialService) SendFriendRequest(ctx context.Context, fromID, toID string) (*model.Notification, error) {
	if err := requireUser(fromID); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, apperror.ValidationFailed("userId", "You cannot send a friend request to yourself")
	}

	sender, err := s.users.GetUserByID(ctx, fromID)
	if err != nil {
		return nil, fmt.Errorf("service/social: fetching sender %s: %w", fromID, err)
	}
	if _, err := s.users.GetUserByID(ctx, toID); err != nil {
		return nil, fmt.Errorf("service/social: fetching recipient %s: %w", toID, err)
	}

	friends, err := s.friends.AreFriends(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("service/social: %w", err)
	}
	if friends {
		return nil, apperror.ConflictMessage("You are already friends")
	}

	for _, pair := range [][2]string{{fromID, toID}, {toID, fromID}} {
		pending, err := s.notes.HasPendingRequest(ctx, model.FriendRequest, pair[0], pair[1])
		if err != nil {
			return nil, fmt.Errorf("service/social: %w", err)
		}
		if pending {
			return nil, apperror.ConflictMessage("A friend request between you is already pending")
		}
	}

	n := &model.Notification{
		RecipientID: toID,
		Type:        model.FriendRequest,
		SenderID:    fromID,
		SenderName:  sender.DisplayName,
		Message:     fmt.Sprintf("%s sent you a friend request", sender.DisplayName),
	}
	if err := s.notes.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("service/social: creating friend request: %w", err)
	}

	s.logger.Info("friend request sent",
		slog.String("from", fromID),
		slog.String("to", toID),
		slog.String("notificationID", n.ID),
	)
	publish(ctx, s.broker, s.logger, realtime.UserTopic(toID), realtime.TypeNotification, n)
	return n, nil
}

// Response is the outcome of answering a request. Chat is set when an accepted
// trade request opened the trade's conversation.
type Response struct {
	Notification *model.Notification `json:"notification"`
	Chat         *model.Chat         `json:"chat,omitempty"`
}

// Respond answers a friend or trade request on behalf of its recipient.
func (s *SocialService) Respond(ctx context.Context, recipientID, notificationID string, d model.Decision) (*Response, error) {
	if err := requireUser(recipientID); err != nil {
		return nil, err
	}

	n, err := s.notes.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("service/social: fetching notification %s: %w", notificationID, err)
	}
	if n.RecipientID != recipientID {
		return nil, apperror.Forbidden("You can only answer requests sent to you")
	}
	if !n.Type.Actionable() {
		return nil, apperror.ValidationFailed("type", "This notification cannot be accepted or declined")
	}

	status, err := model.Transition(n.Status, d)
	if err != nil {
		return nil, err
	}

	recipient, err := s.users.GetUserByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("service/social: fetching recipient %s: %w", recipientID, err)
	}

	res := repository.Resolution{
		NotificationID: n.ID,
		RecipientID:    recipientID,
		Status:         status,
	}
	ack := &model.Notification{
		RecipientID: n.SenderID,
		SenderID:    recipientID,
		SenderName:  recipient.DisplayName,
	}

	switch n.Type {
	case model.FriendRequest:
		if status == model.StatusAccepted {
			res.Befriend = []string{n.SenderID, recipientID}
			ack.Type = model.FriendRequestAccepted
			ack.Message = fmt.Sprintf("%s accepted your friend request", recipient.DisplayName)
		} else {
			ack.Type = model.FriendRequestDeclined
			ack.Message = fmt.Sprintf("%s declined your friend request", recipient.DisplayName)
		}
	case model.TradeRequest:
		res.TradeID = n.RefID
		res.TradeStatus = model.TradeStatusFor(status)
		ack.RefID = n.RefID
		if status == model.StatusAccepted {
			ack.Type = model.TradeRequestAccepted
			ack.Message = fmt.Sprintf("%s accepted your trade offer", recipient.DisplayName)
		} else {
			ack.Type = model.TradeRequestDeclined
			ack.Message = fmt.Sprintf("%s declined your trade offer", recipient.DisplayName)
		}
	}
	res.Ack = ack

	if err := s.notes.ResolveRequest(ctx, res); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("resolving request failed",
				slog.String("notificationID", n.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("service/social: resolving %s: %w", n.ID, err)
	}
	n.Status = status
	n.Read = true

	s.logger.Info("request answered",
		slog.String("notificationID", n.ID),
		slog.String("type", string(n.Type)),
		slog.String("status", string(status)),
	)
	publish(ctx, s.broker, s.logger, realtime.UserTopic(ack.RecipientID), realtime.TypeNotification, ack)

	out := &Response{Notification: n}
	if n.Type == model.TradeRequest && status == model.StatusAccepted {
		trade, err := s.trades.GetTrade(ctx, n.RefID)
		if err != nil {
			return nil, fmt.Errorf("service/social: fetching trade %s: %w", n.RefID, err)
		}
		chat, err := s.chats.GetOrCreateChat(ctx, trade.ID, []string{trade.InitiatorID, trade.TargetID})
		if err != nil {
			return nil, fmt.Errorf("service/social: opening chat for trade %s: %w", trade.ID, err)
		}
		out.Chat = chat
	}
	return out, nil
}

// RemoveFriend ends a friendship in both directions.
func (s *SocialService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.friends.RemoveFriendship(ctx, userID, friendID); err != nil {
		return fmt.Errorf("service/social: removing friend %s: %w", friendID, err)
	}
	s.logger.Info("friend removed", slog.String("userID", userID), slog.String("friendID", friendID))
	return nil
}

// ListFriends returns the public profiles of userID's friends.
func (s *SocialService) ListFriends(ctx context.Context, userID string) ([]model.User, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	friends, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/social: listing friends: %w", err)
	}
	for i := range friends {
		friends[i] = friends[i].Public()
	}
	return friends, nil
}

// ListNotifications returns the caller's notifications, newest first.
func (s *SocialService) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}
	notes, err := s.notes.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("service/social: listing notifications: %w", err)
	}
	return notes, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *SocialService) MarkRead(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.notes.MarkNotificationRead(ctx, userID, id); err != nil {
		return fmt.Errorf("service/social: marking %s read: %w", id, err)
	}
	return nil
}

// LiveNotifications subscribes to the caller's notification stream and returns
// the current notifications as the first frame. The subscription is taken before
// the read, so a notification created in between shows up in both; clients key
// notifications by id.
func (s *SocialService) LiveNotifications(ctx context.Context, userID string) (*realtime.Subscription, []model.Notification, error) {
	if err := requireUser(userID); err != nil {
		return nil, nil, err
	}
	sub := s.broker.Subscribe(realtime.UserTopic(userID))
	notes, err := s.ListNotifications(ctx, userID, false, DefaultNotificationLimit)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	return sub, notes, nil
}
