// Package repository defines the storage interfaces the services depend on.
// internal/repository/sqlite implements all of them on one database.
package repository

import (
	"context"

	"github.com/sakif/poketrade/internal/collection"
	"github.com/sakif/poketrade/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGoogleSub(ctx context.Context, sub string) (*model.User, error)
	LinkGoogleAccount(ctx context.Context, userID, sub string) error
	FriendCodeTaken(ctx context.Context, code string) (bool, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	UpdateAvatar(ctx context.Context, userID, ref string) error
	SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]model.User, error)
}

type CollectionRepository interface {
	// GetCollection returns the entries and version. A user with no entries gets
	// an empty collection at version 0.
	GetCollection(ctx context.Context, ownerID string, kind model.CollectionKind) (*model.Collection, error)
	// ApplyPlan writes plan if the stored version still equals expectedVersion,
	// and returns the new version. A mismatch is apperror.ErrConflict.
	ApplyPlan(ctx context.Context, ownerID string, kind model.CollectionKind, expectedVersion int64, plan collection.Plan) (int64, error)
}

// Resolution is everything that changes when a recipient answers a request.
// It is committed as one unit.
type Resolution struct {
	NotificationID string
	RecipientID    string
	Status         model.RequestStatus

	Befriend    []string // two user ids to link both ways, or nil
	TradeID     string   // trade to move to TradeStatus, or ""
	TradeStatus model.TradeStatus
	Ack         *model.Notification // acknowledgement for the sender, or nil
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID, id string) error
	HasPendingRequest(ctx context.Context, typ model.NotificationType, senderID, recipientID string) (bool, error)
	// ResolveRequest fails with apperror.ErrConflict if the request is no longer pending.
	ResolveRequest(ctx context.Context, res Resolution) error
}

type FriendRepository interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
	ListFriends(ctx context.Context, userID string) ([]model.User, error)
	CountFriends(ctx context.Context, userID string) (int, error)
	RemoveFriendship(ctx context.Context, a, b string) error
}

type TradeRepository interface {
	// CreateTrade stores the trade and the recipient's trade_request notification together.
	CreateTrade(ctx context.Context, trade *model.Trade, request *model.Notification) error
	GetTrade(ctx context.Context, id string) (*model.Trade, error)
	ListTrades(ctx context.Context, userID string) ([]model.Trade, error)
	CountAcceptedTrades(ctx context.Context, userID string) (int, error)
	// RateTrade records a score and returns the ratee's new average.
	RateTrade(ctx context.Context, tradeID, raterID, rateeID string, score int) (float64, error)
}

type ChatRepository interface {
	GetOrCreateChat(ctx context.Context, tradeID string, participants []string) (*model.Chat, error)
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	// AppendMessage assigns ID and CreatedAt and updates the chat's last message.
	AppendMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
	// ListMessagesBefore returns up to limit messages older than beforeID (newest page
	// when beforeID is empty), oldest first, and whether older ones remain.
	ListMessagesBefore(ctx context.Context, chatID, beforeID string, limit int) ([]model.Message, bool, error)
}
