// Package collection reconciles edits to an inventory or wishlist.
//
// Every operation takes a snapshot of the stored entries and returns a Plan:
// the keyed upserts and deletes needed to reach the new state. Entries the
// operation does not touch never appear in the plan, so they are never rewritten.
// The repository applies a plan in one transaction guarded by the collection version.
package collection

import (
	"fmt"
	"sort"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
)

// Plan is the set of per-entry writes produced by an operation.
type Plan struct {
	Upserts []model.CollectionEntry
	Deletes []string // card ids
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Upserts) == 0 && len(p.Deletes) == 0
}

// Snapshot indexes a collection's entries by card id.
type Snapshot map[string]model.CollectionEntry

// Index builds a Snapshot. A later duplicate overwrites an earlier one.
func Index(entries []model.CollectionEntry) Snapshot {
	snap := make(Snapshot, len(entries))
	for _, e := range entries {
		snap[e.CardID] = e
	}
	return snap
}

// Add puts qty copies of a card into the collection.
//
// It replaces any existing entry for the same card id: adding 3 twice leaves 3,
// not 6. A wishlist favorite flag on the replaced entry is kept.
func Add(snap Snapshot, entry model.CollectionEntry) (Plan, error) {
	if entry.Quantity <= 0 {
		return Plan{}, apperror.ValidationFailed("quantity", "Please select a quantity")
	}
	if entry.Quantity > model.MaxQuantity {
		return Plan{}, apperror.ValidationFailed("quantity",
			fmt.Sprintf("You can keep at most %d copies of a card", model.MaxQuantity))
	}
	if entry.CardID == "" {
		return Plan{}, apperror.ValidationFailed("cardId", "card id is required")
	}
	if prev, ok := snap[entry.CardID]; ok {
		entry.Favorite = prev.Favorite
	}
	return Plan{Upserts: []model.CollectionEntry{entry}}, nil
}

// ApplyDeltas adjusts quantities by the pending deltas of an edit session.
//
// The new quantity is max(0, current+delta) and entries reaching 0 are deleted.
// A delta that would take a card past model.MaxQuantity is rejected.
// A positive delta for a card that is not in the collection is rejected because
// there are no card details to store; use Add for new cards. Zero deltas and
// negative deltas for absent cards are no-ops.
func ApplyDeltas(snap Snapshot, deltas map[string]int) (Plan, error) {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var plan Plan
	for _, id := range ids {
		delta := deltas[id]
		if delta == 0 {
			continue
		}
		cur, ok := snap[id]
		if !ok {
			if delta > 0 {
				return Plan{}, apperror.ValidationFailed("deltas",
					fmt.Sprintf("card %s is not in this collection", id))
			}
			continue
		}
		if delta > model.MaxQuantity-cur.Quantity {
			return Plan{}, apperror.ValidationFailed("deltas",
				fmt.Sprintf("You can keep at most %d copies of %s", model.MaxQuantity, cur.Name))
		}
		qty := cur.Quantity + delta
		if qty <= 0 {
			plan.Deletes = append(plan.Deletes, id)
			continue
		}
		cur.Quantity = qty
		plan.Upserts = append(plan.Upserts, cur)
	}
	return plan, nil
}

// Remove deletes a card from the collection regardless of its quantity.
func Remove(snap Snapshot, cardID string) (Plan, error) {
	if _, ok := snap[cardID]; !ok {
		return Plan{}, apperror.NotFound("card", cardID)
	}
	return Plan{Deletes: []string{cardID}}, nil
}

// SetFavorite flags or unflags a wishlist entry. Favorites are a subset of the
// wishlist and are capped at model.MaxFavorites.
func SetFavorite(snap Snapshot, cardID string, favorite bool) (Plan, error) {
	cur, ok := snap[cardID]
	if !ok {
		return Plan{}, apperror.ValidationFailed("cardId", "only cards in your wishlist can be favorites")
	}
	if cur.Favorite == favorite {
		return Plan{}, nil
	}
	if favorite && countFavorites(snap) >= model.MaxFavorites {
		return Plan{}, apperror.ValidationFailed("favorite",
			fmt.Sprintf("you can have at most %d favorites", model.MaxFavorites))
	}
	cur.Favorite = favorite
	return Plan{Upserts: []model.CollectionEntry{cur}}, nil
}

func countFavorites(snap Snapshot) int {
	n := 0
	for _, e := range snap {
		if e.Favorite {
			n++
		}
	}
	return n
}

// Apply returns the entries after plan, ordered by set then card id.
// The repository does the same thing in SQL; this is the in-memory equivalent.
func Apply(entries []model.CollectionEntry, plan Plan) []model.CollectionEntry {
	snap := Index(entries)
	for _, e := range plan.Upserts {
		snap[e.CardID] = e
	}
	for _, id := range plan.Deletes {
		delete(snap, id)
	}
	return Sorted(snap)
}

// Sorted returns the snapshot's entries ordered by set then card id.
func Sorted(snap Snapshot) []model.CollectionEntry {
	out := make([]model.CollectionEntry, 0, len(snap))
	for _, e := range snap {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SetID != out[j].SetID {
			return out[i].SetID < out[j].SetID
		}
		return out[i].CardID < out[j].CardID
	})
	return out
}
