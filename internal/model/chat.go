package model

import "time"

// Chat is the conversation attached to a trade. There is exactly one per trade.
type Chat struct {
	ID           string          `json:"id"`
	TradeID      string          `json:"tradeId"`
	Participants []string        `json:"participants"`
	LastMessage  *MessagePreview `json:"lastMessage"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// MessagePreview is the denormalized last message shown in chat lists.
type MessagePreview struct {
	Text     string    `json:"text"`
	SenderID string    `json:"senderId"`
	SentAt   time.Time `json:"sentAt"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is an append-only chat entry. Messages are never edited or deleted.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MessagePage is one page of history, oldest first.
// Cursor is the id of the oldest message in the page; pass it back to load the page before it.
type MessagePage struct {
	Messages []Message `json:"messages"`
	Cursor   string    `json:"cursor,omitempty"`
	HasMore  bool      `json:"hasMore"`
}
