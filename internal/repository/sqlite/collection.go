package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/collection"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/repository"
)

var _ repository.CollectionRepository = (*DB)(nil)

// GetCollection reads the entries and version of one collection.
func (db *DB) GetCollection(ctx context.Context, ownerID string, kind model.CollectionKind) (*model.Collection, error) {
	c := &model.Collection{OwnerID: ownerID, Kind: kind, Entries: []model.CollectionEntry{}}

	err := db.conn.QueryRowContext(ctx,
		`SELECT version FROM collection_versions WHERE user_id = ? AND kind = ?`,
		ownerID, string(kind),
	).Scan(&c.Version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: reading %s version for %s: %w", kind, ownerID, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT card_id, name, image, quantity, set_id, set_name, favorite, updated_at
		 FROM collection_entries
		 WHERE user_id = ? AND kind = ?
		 ORDER BY set_id, card_id`,
		ownerID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s for %s: %w", kind, ownerID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e model.CollectionEntry
		var fav int
		if err := rows.Scan(&e.CardID, &e.Name, &e.Image, &e.Quantity, &e.SetID, &e.SetName, &fav, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s entry: %w", kind, err)
		}
		e.Favorite = fav == 1
		c.Entries = append(c.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s: %w", kind, err)
	}
	return c, nil
}

// ApplyPlan writes a reconciliation plan entry by entry.
//
// OPTIMISTIC CONCURRENCY:
// The version row is compared with expectedVersion inside the transaction. If
// another session applied a plan since the caller read its snapshot, nothing is
// written and the caller gets a conflict instead of silently overwriting it.
func (db *DB) ApplyPlan(ctx context.Context, ownerID string, kind model.CollectionKind, expectedVersion int64, plan collection.Plan) (int64, error) {
	var next int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM collection_versions WHERE user_id = ? AND kind = ?`,
			ownerID, string(kind),
		).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: reading %s version: %w", kind, err)
		}
		if current != expectedVersion {
			return apperror.ConflictMessage("your collection was changed in another session, reload and try again")
		}

		now := time.Now().UTC()
		for _, e := range plan.Upserts {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO collection_entries
					(user_id, kind, card_id, name, image, quantity, set_id, set_name, favorite, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (user_id, kind, card_id) DO UPDATE SET
					name = excluded.name,
					image = excluded.image,
					quantity = excluded.quantity,
					set_id = excluded.set_id,
					set_name = excluded.set_name,
					favorite = excluded.favorite,
					updated_at = excluded.updated_at`,
				ownerID, string(kind), e.CardID, e.Name, e.Image, e.Quantity,
				e.SetID, e.SetName, boolToInt(e.Favorite), now,
			)
			if err != nil {
				return fmt.Errorf("sqlite: upserting %s entry %s: %w", kind, e.CardID, err)
			}
		}
		for _, cardID := range plan.Deletes {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM collection_entries WHERE user_id = ? AND kind = ? AND card_id = ?`,
				ownerID, string(kind), cardID,
			); err != nil {
				return fmt.Errorf("sqlite: deleting %s entry %s: %w", kind, cardID, err)
			}
		}

		next = current + 1
		_, err = tx.ExecContext(ctx,
			`INSERT INTO collection_versions (user_id, kind, version) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, kind) DO UPDATE SET version = excluded.version`,
			ownerID, string(kind), next)
		if err != nil {
			return fmt.Errorf("sqlite: bumping %s version: %w", kind, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
