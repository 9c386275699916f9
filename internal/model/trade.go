package model

import "time"

// TradeStatus follows the trade request: there is no completed state, accepting a
// trade opens its chat and moves no cards.
type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeAccepted TradeStatus = "accepted"
	TradeDeclined TradeStatus = "declined"
)

// TradeCard is a card and quantity on one side of a trade.
type TradeCard struct {
	CardID   string `json:"cardId"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	Quantity int    `json:"quantity"`
}

// Trade is a proposed exchange between two users. It is shared by both of them.
type Trade struct {
	ID          string      `json:"id"`
	InitiatorID string      `json:"initiatorId"`
	TargetID    string      `json:"targetId"`
	TargetCard  TradeCard   `json:"targetCard"`
	Offered     []TradeCard `json:"offered"`
	Status      TradeStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Participant reports whether userID is either side of the trade.
func (t *Trade) Participant(userID string) bool {
	return userID != "" && (t.InitiatorID == userID || t.TargetID == userID)
}

// Counterparty returns the other participant.
func (t *Trade) Counterparty(userID string) string {
	if t.InitiatorID == userID {
		return t.TargetID
	}
	return t.InitiatorID
}

// TradeStatusFor maps a resolved request status onto the trade.
func TradeStatusFor(s RequestStatus) TradeStatus {
	switch s {
	case StatusAccepted:
		return TradeAccepted
	case StatusDeclined:
		return TradeDeclined
	default:
		return TradePending
	}
}
