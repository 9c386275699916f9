package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/repository"
)

var _ repository.TradeRepository = (*DB)(nil)

const tradeColumns = `id, initiator_id, target_id, target_card_id, target_card_name, target_card_image,
	target_quantity, status, created_at, updated_at`

func scanTrade(row rowScanner) (*model.Trade, error) {
	var t model.Trade
	var status string
	if err := row.Scan(&t.ID, &t.InitiatorID, &t.TargetID, &t.TargetCard.CardID,
		&t.TargetCard.Name, &t.TargetCard.Image, &t.TargetCard.Quantity,
		&status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TradeStatus(status)
	t.Offered = []model.TradeCard{}
	return &t, nil
}

// CreateTrade stores the trade, its offered cards and the target's trade_request
// notification in one transaction. request.RefID is set to the new trade id.
func (db *DB) CreateTrade(ctx context.Context, trade *model.Trade, request *model.Notification) error {
	now := time.Now().UTC()
	trade.ID = xid.New().String()
	trade.Status = model.TradePending
	trade.CreatedAt = now
	trade.UpdatedAt = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trades (`+tradeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trade.ID, trade.InitiatorID, trade.TargetID, trade.TargetCard.CardID,
			trade.TargetCard.Name, trade.TargetCard.Image, trade.TargetCard.Quantity,
			string(trade.Status), trade.CreatedAt, trade.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting trade: %w", err)
		}

		for i, c := range trade.Offered {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO trade_offers (trade_id, position, card_id, name, image, quantity)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				trade.ID, i, c.CardID, c.Name, c.Image, c.Quantity)
			if err != nil {
				return fmt.Errorf("sqlite: inserting offered card %s: %w", c.CardID, err)
			}
		}

		if request != nil {
			request.RefID = trade.ID
			if err := insertNotification(ctx, tx, request); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	t, err := scanTrade(db.conn.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("trade", id)
		}
		return nil, fmt.Errorf("sqlite: getting trade %s: %w", id, err)
	}

	offers, err := db.tradeOffers(ctx, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Offered = append(t.Offered, offers[t.ID]...)
	return t, nil
}

// ListTrades returns every trade userID takes part in, newest first.
func (db *DB) ListTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE initiator_id = ? OR target_id = ?
		 ORDER BY created_at DESC, id DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing trades for %s: %w", userID, err)
	}

	trades := []model.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning trade: %w", err)
		}
		trades = append(trades, *t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlite: iterating trades: %w", err)
	}

	// rows must be closed before the next query: the pool has one connection.
	ids := make([]string, len(trades))
	for i := range trades {
		ids[i] = trades[i].ID
	}
	offers, err := db.tradeOffers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range trades {
		trades[i].Offered = append(trades[i].Offered, offers[trades[i].ID]...)
	}
	return trades, nil
}

func (db *DB) tradeOffers(ctx context.Context, tradeIDs []string) (map[string][]model.TradeCard, error) {
	out := make(map[string][]model.TradeCard, len(tradeIDs))
	if len(tradeIDs) == 0 {
		return out, nil
	}

	query := `SELECT trade_id, card_id, name, image, quantity FROM trade_offers WHERE trade_id IN (?` +
		repeatPlaceholder(len(tradeIDs)-1) + `) ORDER BY trade_id, position`
	args := make([]any, len(tradeIDs))
	for i, id := range tradeIDs {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing offered cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tradeID string
		var c model.TradeCard
		if err := rows.Scan(&tradeID, &c.CardID, &c.Name, &c.Image, &c.Quantity); err != nil {
			return nil, fmt.Errorf("sqlite: scanning offered card: %w", err)
		}
		out[tradeID] = append(out[tradeID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating offered cards: %w", err)
	}
	return out, nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

func (db *DB) CountAcceptedTrades(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE (initiator_id = ? OR target_id = ?) AND status = ?`,
		userID, userID, string(model.TradeAccepted),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting trades of %s: %w", userID, err)
	}
	return n, nil
}

// RateTrade records raterID's score for the trade and recomputes the ratee's
// rating as the average of every score they have received, to one decimal.
func (db *DB) RateTrade(ctx context.Context, tradeID, raterID, rateeID string, score int) (float64, error) {
	var rating float64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM trade_ratings WHERE trade_id = ? AND rater_id = ?`,
			tradeID, raterID).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: checking rating: %w", err)
		}
		if exists > 0 {
			return apperror.ConflictMessage("you have already rated this trade")
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trade_ratings (trade_id, rater_id, ratee_id, score, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			tradeID, raterID, rateeID, score, time.Now().UTC()); err != nil {
			return fmt.Errorf("sqlite: inserting rating: %w", err)
		}

		var avg float64
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT AVG(score), COUNT(*) FROM trade_ratings WHERE ratee_id = ?`,
			rateeID).Scan(&avg, &count); err != nil {
			return fmt.Errorf("sqlite: averaging ratings: %w", err)
		}
		rating = math.Round(avg*10) / 10

		res, err := tx.ExecContext(ctx,
			`UPDATE users SET rating = ?, rating_count = ?, updated_at = ? WHERE id = ?`,
			rating, count, time.Now().UTC(), rateeID)
		if err != nil {
			return fmt.Errorf("sqlite: updating rating of %s: %w", rateeID, err)
		}
		return requireAffected(res, "user", rateeID)
	})
	if err != nil {
		return 0, err
	}
	return rating, nil
}
