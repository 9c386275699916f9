package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/collection"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/repository"
)

// CollectionService edits inventories and wishlists.
//
// Each edit reads a snapshot, lets package collection turn the operation into a
// plan of keyed upserts and deletes, and applies the plan guarded by the version
// the snapshot was read at. Writes never replace the whole list.
type CollectionService struct {
	repo   repository.CollectionRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewCollectionService(repo repository.CollectionRepository, users repository.UserRepository, logger *slog.Logger) *CollectionService {
	return &CollectionService{
		repo:   repo,
		users:  users,
		logger: logger,
	}
}

func checkKind(kind model.CollectionKind) error {
	if !kind.Valid() {
		return apperror.ValidationFailed("kind", "collection must be inventory or wishlist")
	}
	return nil
}

// Get returns ownerID's collection. Any signed-in user may read any collection.
func (s *CollectionService) Get(ctx context.Context, viewerID, ownerID string, kind model.CollectionKind) (*model.Collection, error) {
	if err := requireUser(viewerID); err != nil {
		return nil, err
	}
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if ownerID != viewerID {
		if _, err := s.users.GetUserByID(ctx, ownerID); err != nil {
			return nil, fmt.Errorf("service/collection: fetching owner %s: %w", ownerID, err)
		}
	}
	c, err := s.repo.GetCollection(ctx, ownerID, kind)
	if err != nil {
		return nil, fmt.Errorf("service/collection: reading %s of %s: %w", kind, ownerID, err)
	}
	return c, nil
}

// AddCard puts qty copies of card into the collection, replacing an existing
// entry for the same card.
func (s *CollectionService) AddCard(ctx context.Context, userID string, kind model.CollectionKind, card model.Card, qty int) (*model.Collection, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, apperror.ValidationFailed("quantity", "Please select a quantity")
	}
	if qty > model.MaxQuantity {
		return nil, apperror.ValidationFailed("quantity",
			fmt.Sprintf("You can keep at most %d copies of a card", model.MaxQuantity))
	}

	c, err := s.apply(ctx, userID, kind, 0, func(snap collection.Snapshot) (collection.Plan, error) {
		return collection.Add(snap, card.Entry(qty))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("card added",
		slog.String("userID", userID),
		slog.String("kind", string(kind)),
		slog.String("cardID", card.ID),
		slog.Int("quantity", qty),
	)
	return c, nil
}

// ApplyDeltas confirms an edit session's pending quantity changes. version is
// the collection version the session started from; 0 applies on top of whatever
// is current.
func (s *CollectionService) ApplyDeltas(ctx context.Context, userID string, kind model.CollectionKind, version int64, deltas map[string]int) (*model.Collection, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, kind, version, func(snap collection.Snapshot) (collection.Plan, error) {
		return collection.ApplyDeltas(snap, deltas)
	})
}

// RemoveCard deletes a card whatever its quantity.
func (s *CollectionService) RemoveCard(ctx context.Context, userID string, kind model.CollectionKind, cardID string) (*model.Collection, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, kind, 0, func(snap collection.Snapshot) (collection.Plan, error) {
		return collection.Remove(snap, cardID)
	})
}

// SetFavorite flags or unflags a wishlist card.
func (s *CollectionService) SetFavorite(ctx context.Context, userID, cardID string, favorite bool) (*model.Collection, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.apply(ctx, userID, model.Wishlist, 0, func(snap collection.Snapshot) (collection.Plan, error) {
		return collection.SetFavorite(snap, cardID, favorite)
	})
}

func (s *CollectionService) apply(
	ctx context.Context,
	userID string,
	kind model.CollectionKind,
	version int64,
	op func(collection.Snapshot) (collection.Plan, error),
) (*model.Collection, error) {
	c, err := s.repo.GetCollection(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("service/collection: reading %s of %s: %w", kind, userID, err)
	}
	if version > 0 && version != c.Version {
		return nil, apperror.ConflictMessage("your collection was changed in another session, reload and try again")
	}

	plan, err := op(collection.Index(c.Entries))
	if err != nil {
		return nil, err
	}
	if plan.Empty() {
		return c, nil
	}

	next, err := s.repo.ApplyPlan(ctx, userID, kind, c.Version, plan)
	if err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("applying collection plan failed",
				slog.String("userID", userID),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("service/collection: writing %s of %s: %w", kind, userID, err)
	}

	c.Entries = collection.Apply(c.Entries, plan)
	c.Version = next
	return c, nil
}
