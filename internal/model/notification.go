package model

import (
	"fmt"
	"time"

	"github.com/sakif/poketrade/internal/apperror"
)

// NotificationType tags what a notification is about.
type NotificationType string

const (
	FriendRequest         NotificationType = "friend_request"
	TradeRequest          NotificationType = "trade_request"
	FriendRequestAccepted NotificationType = "friend_request_accepted"
	FriendRequestDeclined NotificationType = "friend_request_declined"
	TradeRequestAccepted  NotificationType = "trade_request_accepted"
	TradeRequestDeclined  NotificationType = "trade_request_declined"
	MessageNotification   NotificationType = "message"
)

// Actionable reports whether the recipient can accept or decline this type.
func (t NotificationType) Actionable() bool {
	return t == FriendRequest || t == TradeRequest
}

// RequestStatus is the lifecycle state of an actionable notification.
// The empty value is read as pending.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusDeclined RequestStatus = "declined"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// Decision is the recipient's answer to a request.
type Decision string

const (
	Accept  Decision = "accept"
	Decline Decision = "decline"
)

// Transition is the single state machine for friend and trade requests:
// pending (or unset) moves to accepted or declined, and both of those are final.
func Transition(current RequestStatus, d Decision) (RequestStatus, error) {
	if current.Terminal() {
		return current, apperror.ConflictMessage(fmt.Sprintf("request has already been %s", current))
	}
	if current != "" && current != StatusPending {
		return current, fmt.Errorf("model: unknown request status %q", current)
	}
	switch d {
	case Accept:
		return StatusAccepted, nil
	case Decline:
		return StatusDeclined, nil
	default:
		return current, apperror.ValidationFailed("decision", "decision must be accept or decline")
	}
}

// Notification is a record owned by its recipient. Friend and trade requests are
// notifications with a status; acknowledgements and chat pings are informational.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipientId"`
	Type        NotificationType `json:"type"`
	SenderID    string           `json:"senderId"`
	SenderName  string           `json:"senderName"`
	Message     string           `json:"message"`
	RefID       string           `json:"refId,omitempty"` // trade id or chat id
	Status      RequestStatus    `json:"status,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Pending reports whether the notification still awaits a decision.
func (n *Notification) Pending() bool {
	return n.Type.Actionable() && !n.Status.Terminal()
}
