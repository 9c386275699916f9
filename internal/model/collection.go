package model

import "time"

// CollectionKind names one of the two card lists every user owns.
type CollectionKind string

const (
	Inventory CollectionKind = "inventory"
	Wishlist  CollectionKind = "wishlist"
)

// MaxFavorites caps the number of wishlist entries flagged as favorite.
const MaxFavorites = 3

// MaxQuantity caps the copies of one card in a collection.
const MaxQuantity = 9999

// Valid reports whether k is a known collection kind.
func (k CollectionKind) Valid() bool {
	return k == Inventory || k == Wishlist
}

// CollectionEntry is one card in an inventory or wishlist.
// At most one entry exists per CardID per collection and Quantity is always > 0.
type CollectionEntry struct {
	CardID    string    `json:"cardId"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Quantity  int       `json:"quantity"`
	SetID     string    `json:"setId"`
	SetName   string    `json:"setName"`
	Favorite  bool      `json:"favorite,omitempty"` // wishlist only
	UpdatedAt time.Time `json:"updatedAt"`
}

// Collection is a snapshot of a user's list together with the version it was read at.
type Collection struct {
	OwnerID string            `json:"ownerId"`
	Kind    CollectionKind    `json:"kind"`
	Version int64             `json:"version"`
	Entries []CollectionEntry `json:"entries"`
}

// Favorites returns the entries flagged as favorite.
func (c *Collection) Favorites() []CollectionEntry {
	favs := []CollectionEntry{}
	for _, e := range c.Entries {
		if e.Favorite {
			favs = append(favs, e)
		}
	}
	return favs
}

// Find returns the entry for cardID, if present.
func (c *Collection) Find(cardID string) (CollectionEntry, bool) {
	for _, e := range c.Entries {
		if e.CardID == cardID {
			return e, true
		}
	}
	return CollectionEntry{}, false
}
