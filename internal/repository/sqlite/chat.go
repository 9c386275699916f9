package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/repository"
)

var _ repository.ChatRepository = (*DB)(nil)

const chatColumns = `id, trade_id, participant_a, participant_b, last_text, last_sender_id, last_at, created_at`

func scanChat(row rowScanner) (*model.Chat, error) {
	var c model.Chat
	var a, b, lastText, lastSender string
	var lastAt sql.NullTime
	if err := row.Scan(&c.ID, &c.TradeID, &a, &b, &lastText, &lastSender, &lastAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Participants = []string{a, b}
	if lastAt.Valid {
		c.LastMessage = &model.MessagePreview{Text: lastText, SenderID: lastSender, SentAt: lastAt.Time}
	}
	return &c, nil
}

// GetOrCreateChat returns the chat for tradeID, creating it on first access.
// trade_id is UNIQUE, so concurrent callers racing to create it end up with the same row.
func (db *DB) GetOrCreateChat(ctx context.Context, tradeID string, participants []string) (*model.Chat, error) {
	if len(participants) != 2 {
		return nil, fmt.Errorf("sqlite: chat needs exactly two participants, got %d", len(participants))
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO chats (id, trade_id, participant_a, participant_b, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		xid.New().String(), tradeID, participants[0], participants[1], time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating chat for trade %s: %w", tradeID, err)
	}

	c, err := scanChat(db.conn.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE trade_id = ?`, tradeID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading chat for trade %s: %w", tradeID, err)
	}
	return c, nil
}

func (db *DB) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	c, err := scanChat(db.conn.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("chat", id)
		}
		return nil, fmt.Errorf("sqlite: getting chat %s: %w", id, err)
	}
	return c, nil
}

// AppendMessage adds a message and updates the chat preview in one transaction.
//
// The timestamp is clamped to the previous message's, so a clock step backwards
// can never put a message before one that was stored earlier.
func (db *DB) AppendMessage(ctx context.Context, msg *model.Message) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var lastAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT last_at FROM chats WHERE id = ?`, msg.ChatID).Scan(&lastAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("chat", msg.ChatID)
			}
			return fmt.Errorf("sqlite: reading chat %s: %w", msg.ChatID, err)
		}

		now := time.Now().UTC()
		if lastAt.Valid && now.Before(lastAt.Time) {
			now = lastAt.Time
		}
		msg.ID = xid.New().String()
		msg.CreatedAt = now

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, chat_id, sender_id, sender_name, text, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ChatID, msg.SenderID, msg.SenderName, msg.Text, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: inserting message: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE chats SET last_text = ?, last_sender_id = ?, last_at = ? WHERE id = ?`,
			msg.Text, msg.SenderID, msg.CreatedAt, msg.ChatID,
		); err != nil {
			return fmt.Errorf("sqlite: updating chat preview: %w", err)
		}
		return nil
	})
}

// ListMessages returns the whole chat, oldest first.
func (db *DB) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, chat_id, sender_id, sender_name, text, created_at
		 FROM messages WHERE chat_id = ? ORDER BY seq ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages of %s: %w", chatID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListMessagesBefore walks history backwards: it reads the limit messages just
// before beforeID (or the newest ones) in descending order and returns them
// reversed, oldest first.
func (db *DB) ListMessagesBefore(ctx context.Context, chatID, beforeID string, limit int) ([]model.Message, bool, error) {
	var rows *sql.Rows
	var err error
	if beforeID == "" {
		rows, err = db.conn.QueryContext(ctx,
			`SELECT id, chat_id, sender_id, sender_name, text, created_at
			 FROM messages WHERE chat_id = ?
			 ORDER BY seq DESC LIMIT ?`,
			chatID, limit+1)
	} else {
		var cursor int64
		err = db.conn.QueryRowContext(ctx,
			`SELECT seq FROM messages WHERE id = ? AND chat_id = ?`, beforeID, chatID,
		).Scan(&cursor)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, apperror.NotFound("message", beforeID)
			}
			return nil, false, fmt.Errorf("sqlite: resolving cursor %s: %w", beforeID, err)
		}
		rows, err = db.conn.QueryContext(ctx,
			`SELECT id, chat_id, sender_id, sender_name, text, created_at
			 FROM messages WHERE chat_id = ? AND seq < ?
			 ORDER BY seq DESC LIMIT ?`,
			chatID, cursor, limit+1)
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: paging messages of %s: %w", chatID, err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, hasMore, nil
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}
	return msgs, nil
}
