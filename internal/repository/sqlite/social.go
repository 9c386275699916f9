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

var (
	_ repository.NotificationRepository = (*DB)(nil)
	_ repository.FriendRepository       = (*DB)(nil)
)

const notificationColumns = `id, recipient_id, type, sender_id, sender_name, message, ref_id, status, read, created_at`

func scanNotification(row rowScanner) (*model.Notification, error) {
	var n model.Notification
	var typ, status string
	var read int
	if err := row.Scan(&n.ID, &n.RecipientID, &typ, &n.SenderID, &n.SenderName,
		&n.Message, &n.RefID, &status, &read, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Type = model.NotificationType(typ)
	n.Status = model.RequestStatus(status)
	n.Read = read == 1
	return &n, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNotification(ctx context.Context, ex execer, n *model.Notification) error {
	n.ID = xid.New().String()
	n.CreatedAt = time.Now().UTC()
	if n.Type.Actionable() && n.Status == "" {
		n.Status = model.StatusPending
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, string(n.Type), n.SenderID, n.SenderName,
		n.Message, n.RefID, string(n.Status), boolToInt(n.Read), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting %s notification for %s: %w", n.Type, n.RecipientID, err)
	}
	return nil
}

// CreateNotification stores a notification under its recipient.
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	return insertNotification(ctx, db.conn, n)
}

func (db *DB) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	n, err := scanNotification(db.conn.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("notification", id)
		}
		return nil, fmt.Errorf("sqlite: getting notification %s: %w", id, err)
	}
	return n, nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for %s: %w", recipientID, err)
	}
	defer rows.Close()

	list := []model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification: %w", err)
		}
		list = append(list, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notifications: %w", err)
	}
	return list, nil
}

// MarkNotificationRead only touches notifications owned by recipientID.
func (db *DB) MarkNotificationRead(ctx context.Context, recipientID, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ? AND recipient_id = ?`, id, recipientID)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	return requireAffected(res, "notification", id)
}

// HasPendingRequest reports whether senderID already has an unanswered request of
// type typ waiting for recipientID.
func (db *DB) HasPendingRequest(ctx context.Context, typ model.NotificationType, senderID, recipientID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications
		 WHERE type = ? AND sender_id = ? AND recipient_id = ? AND status IN ('', 'pending')`,
		string(typ), senderID, recipientID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking pending %s: %w", typ, err)
	}
	return n > 0, nil
}

// ResolveRequest applies a recipient's answer atomically.
//
// The status update is conditional on the request still being pending, so two
// sessions answering the same request cannot both succeed: the loser sees zero
// affected rows and gets a conflict, and none of its other writes are kept.
func (db *DB) ResolveRequest(ctx context.Context, res repository.Resolution) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx,
			`UPDATE notifications SET status = ?, read = 1
			 WHERE id = ? AND recipient_id = ? AND status IN ('', 'pending')`,
			string(res.Status), res.NotificationID, res.RecipientID)
		if err != nil {
			return fmt.Errorf("sqlite: resolving notification %s: %w", res.NotificationID, err)
		}
		if n, err := r.RowsAffected(); err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		} else if n == 0 {
			return apperror.ConflictMessage("this request has already been answered")
		}

		if len(res.Befriend) == 2 {
			if err := insertFriendship(ctx, tx, res.Befriend[0], res.Befriend[1]); err != nil {
				return err
			}
		}

		if res.TradeID != "" {
			r, err := tx.ExecContext(ctx,
				`UPDATE trades SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
				string(res.TradeStatus), time.Now().UTC(), res.TradeID, string(model.TradePending))
			if err != nil {
				return fmt.Errorf("sqlite: updating trade %s: %w", res.TradeID, err)
			}
			if n, err := r.RowsAffected(); err != nil {
				return fmt.Errorf("sqlite: checking rows affected: %w", err)
			} else if n == 0 {
				return apperror.ConflictMessage("this trade is no longer pending")
			}
		}

		if res.Ack != nil {
			if err := insertNotification(ctx, tx, res.Ack); err != nil {
				return err
			}
		}
		return nil
	})
}

// insertFriendship writes both directions. INSERT OR IGNORE keeps it idempotent
// when a half-written pair exists from before transactions were used.
func insertFriendship(ctx context.Context, tx *sql.Tx, a, b string) error {
	now := time.Now().UTC()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO friendships (user_id, friend_id, created_at) VALUES (?, ?, ?)`,
			pair[0], pair[1], now,
		); err != nil {
			return fmt.Errorf("sqlite: inserting friendship %s -> %s: %w", pair[0], pair[1], err)
		}
	}
	return nil
}

func (db *DB) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friendships WHERE user_id = ? AND friend_id = ?`, a, b,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking friendship: %w", err)
	}
	return n > 0, nil
}

// ListFriends returns the users userID is friends with, by display name.
func (db *DB) ListFriends(ctx context.Context, userID string) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.email, u.google_sub, u.password_hash, u.display_name, u.photo_url, u.bio,
			u.age, u.friend_code, u.location, u.favorite_pokemon, u.favorite_card, u.rating,
			u.rating_count, u.created_at, u.updated_at
		 FROM friendships f JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = ?
		 ORDER BY u.display_name, u.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friends of %s: %w", userID, err)
	}
	defer rows.Close()

	friends := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning friend: %w", err)
		}
		friends = append(friends, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating friends: %w", err)
	}
	return friends, nil
}

func (db *DB) CountFriends(ctx context.Context, userID string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friendships WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting friends of %s: %w", userID, err)
	}
	return n, nil
}

// RemoveFriendship deletes both directions together.
// Returns apperror.ErrNotFound if the users were not friends.
func (db *DB) RemoveFriendship(ctx context.Context, a, b string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM friendships
			 WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
			a, b, b, a)
		if err != nil {
			return fmt.Errorf("sqlite: removing friendship %s <-> %s: %w", a, b, err)
		}
		return requireAffected(res, "friendship", b)
	})
}
