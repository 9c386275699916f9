package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/realtime"
	"github.com/sakif/poketrade/internal/repository"
)

const (
	MaxMessageLength = 2000
	HistoryPageSize  = 20
	MaxHistoryPage   = 100

	previewLength = 80
)

// ChatService runs the conversation attached to each trade.
type ChatService struct {
	users  repository.UserRepository
	trades repository.TradeRepository
	chats  repository.ChatRepository
	notes  repository.NotificationRepository
	broker realtime.Broker
	logger *slog.Logger
}

func NewChatService(
	users repository.UserRepository,
	trades repository.TradeRepository,
	chats repository.ChatRepository,
	notes repository.NotificationRepository,
	broker realtime.Broker,
	logger *slog.Logger,
) *ChatService {
	return &ChatService{
		users:  users,
		trades: trades,
		chats:  chats,
		notes:  notes,
		broker: broker,
		logger: logger,
	}
}

// OpenForTrade returns the trade's chat, creating it on first access.
func (s *ChatService) OpenForTrade(ctx context.Context, userID, tradeID string) (*model.Chat, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	trade, err := s.trades.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: fetching trade %s: %w", tradeID, err)
	}
	if !trade.Participant(userID) {
		return nil, apperror.Forbidden("You are not part of this trade")
	}
	chat, err := s.chats.GetOrCreateChat(ctx, trade.ID, []string{trade.InitiatorID, trade.TargetID})
	if err != nil {
		return nil, fmt.Errorf("service/chat: opening chat for trade %s: %w", trade.ID, err)
	}
	return chat, nil
}

// Chat returns a chat to one of its participants.
func (s *ChatService) Chat(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: fetching chat %s: %w", chatID, err)
	}
	if !chat.HasParticipant(userID) {
		return nil, apperror.Forbidden("You are not part of this chat")
	}
	return chat, nil
}

// Send appends a message, publishes it to the chat's live subscribers and pings
// the other participant.
func (s *ChatService) Send(ctx context.Context, userID, chatID, text string) (*model.Message, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "Message cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, apperror.ValidationFailed("text",
			fmt.Sprintf("Message must be %d characters or less", MaxMessageLength))
	}

	chat, err := s.Chat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	sender, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: fetching sender %s: %w", userID, err)
	}

	msg := &model.Message{
		ChatID:     chat.ID,
		SenderID:   userID,
		SenderName: sender.DisplayName,
		Text:       text,
	}
	if err := s.chats.AppendMessage(ctx, msg); err != nil {
		s.logger.Error("appending message failed",
			slog.String("chatID", chat.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/chat: appending message: %w", err)
	}
	publish(ctx, s.broker, s.logger, realtime.ChatTopic(chat.ID), realtime.TypeMessage, msg)

	for _, p := range chat.Participants {
		if p == userID {
			continue
		}
		s.ping(ctx, p, msg)
	}
	return msg, nil
}

// ping leaves a message notification for recipientID. The message is already
// stored, so a failure here is only logged.
func (s *ChatService) ping(ctx context.Context, recipientID string, msg *model.Message) {
	n := &model.Notification{
		RecipientID: recipientID,
		Type:        model.MessageNotification,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		Message:     preview(msg.Text),
		RefID:       msg.ChatID,
	}
	if err := s.notes.CreateNotification(ctx, n); err != nil {
		s.logger.Warn("creating message notification failed",
			slog.String("chatID", msg.ChatID),
			slog.String("recipientID", recipientID),
			slog.String("error", err.Error()),
		)
		return
	}
	publish(ctx, s.broker, s.logger, realtime.UserTopic(recipientID), realtime.TypeNotification, n)
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	return string([]rune(text)[:previewLength]) + "…"
}

// History walks a chat backwards: it returns up to limit messages older than
// the message before (the newest page when before is empty), oldest first.
func (s *ChatService) History(ctx context.Context, userID, chatID, before string, limit int) (*model.MessagePage, error) {
	if _, err := s.Chat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = HistoryPageSize
	}
	if limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}

	msgs, more, err := s.chats.ListMessagesBefore(ctx, chatID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("service/chat: loading history of %s: %w", chatID, err)
	}
	page := &model.MessagePage{Messages: msgs, HasMore: more}
	if len(msgs) > 0 {
		page.Cursor = msgs[0].ID
	}
	return page, nil
}

// All returns the whole chat, oldest first.
func (s *ChatService) All(ctx context.Context, userID, chatID string) ([]model.Message, error) {
	if _, err := s.Chat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.chats.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("service/chat: loading messages of %s: %w", chatID, err)
	}
	return msgs, nil
}

// Subscribe opens a live subscription to the chat and returns the full ordered
// message list as its first frame. The subscription is taken before the read,
// so nothing sent in between is lost; it may arrive twice and clients key
// messages by id.
func (s *ChatService) Subscribe(ctx context.Context, userID, chatID string) (*realtime.Subscription, []model.Message, error) {
	if _, err := s.Chat(ctx, userID, chatID); err != nil {
		return nil, nil, err
	}
	sub := s.broker.Subscribe(realtime.ChatTopic(chatID))
	msgs, err := s.chats.ListMessages(ctx, chatID)
	if err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("service/chat: loading messages of %s: %w", chatID, err)
	}
	return sub, msgs, nil
}
