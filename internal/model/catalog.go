package model

// Mode selects the card source: the physical trading card game or the digital pocket game.
type Mode string

const (
	Physical Mode = "physical"
	Digital  Mode = "digital"
)

// ParseMode returns the mode named by s, falling back to Physical.
func ParseMode(s string) Mode {
	if Mode(s) == Digital {
		return Digital
	}
	return Physical
}

// SetImages holds the artwork of a set.
type SetImages struct {
	Logo   string `json:"logo"`
	Symbol string `json:"symbol,omitempty"`
}

// Set is a card set in the shape shared by both sources.
type Set struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Series       string    `json:"series"`
	Images       SetImages `json:"images"`
	PrintedTotal int       `json:"printedTotal"`
	ReleaseDate  string    `json:"releaseDate,omitempty"`
	Cards        []Card    `json:"cards,omitempty"`
}

// Card is a single card in the shape shared by both sources.
type Card struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Rarity  string `json:"rarity"`
	SetID   string `json:"setId"`
	SetName string `json:"setName"`
}

// Entry builds a collection entry for qty copies of the card.
func (c Card) Entry(qty int) CollectionEntry {
	return CollectionEntry{
		CardID:   c.ID,
		Name:     c.Name,
		Image:    c.Image,
		Quantity: qty,
		SetID:    c.SetID,
		SetName:  c.SetName,
	}
}
