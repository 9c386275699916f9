package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
)

// PhysicalClient reads the pokemontcg.io v2 API.
//
// Endpoints used:
//
//	GET {base}/sets
//	GET {base}/sets/{id}
//	GET {base}/cards?q=set.id:"{id}"
//	GET {base}/cards?q=name:"*X*"
//
// Every request carries the X-Api-Key header when a key is configured.
type PhysicalClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

var _ Source = (*PhysicalClient)(nil)

// Set ids are short slugs like "sv1" or "swsh12pt5". Anything else never reaches
// the upstream query language.
var setIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// NewPhysicalClient creates a client for baseURL (e.g. https://api.pokemontcg.io/v2).
func NewPhysicalClient(baseURL, apiKey string, client *http.Client, logger *slog.Logger) *PhysicalClient {
	return &PhysicalClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    client,
		logger:  logger,
	}
}

// Upstream JSON shapes. Only the fields the app shows are decoded.
type tcgSet struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Series       string `json:"series"`
	PrintedTotal int    `json:"printedTotal"`
	ReleaseDate  string `json:"releaseDate"`
	Images       struct {
		Symbol string `json:"symbol"`
		Logo   string `json:"logo"`
	} `json:"images"`
}

type tcgCard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rarity string `json:"rarity"`
	Set    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"set"`
	Images struct {
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"images"`
}

func (s tcgSet) toModel() model.Set {
	return model.Set{
		ID:           s.ID,
		Name:         s.Name,
		Series:       s.Series,
		Images:       model.SetImages{Logo: s.Images.Logo, Symbol: s.Images.Symbol},
		PrintedTotal: s.PrintedTotal,
		ReleaseDate:  s.ReleaseDate,
	}
}

func (c tcgCard) toModel() model.Card {
	img := c.Images.Small
	if img == "" {
		img = c.Images.Large
	}
	return model.Card{
		ID:      c.ID,
		Name:    c.Name,
		Image:   img,
		Rarity:  c.Rarity,
		SetID:   c.Set.ID,
		SetName: c.Set.Name,
	}
}

func (p *PhysicalClient) ListSets(ctx context.Context) ([]model.Set, error) {
	var body struct {
		Data []tcgSet `json:"data"`
	}
	if err := p.get(ctx, "/sets", nil, &body); err != nil {
		return nil, p.fail("list sets", err)
	}

	sets := make([]model.Set, 0, len(body.Data))
	for _, s := range body.Data {
		sets = append(sets, s.toModel())
	}
	return sets, nil
}

// GetSet fetches the set and then its cards. An unknown set id is NotFound.
func (p *PhysicalClient) GetSet(ctx context.Context, id string) (*model.Set, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "Set id is required")
	}
	if !setIDPattern.MatchString(id) {
		return nil, apperror.ValidationFailed("id", "Set id may only contain letters, digits, dots, dashes and underscores")
	}

	var setBody struct {
		Data tcgSet `json:"data"`
	}
	if err := p.get(ctx, "/sets/"+url.PathEscape(id), nil, &setBody); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return nil, apperror.NotFound("set", id)
		}
		return nil, p.fail("get set", err)
	}

	cards, err := p.cards(ctx, `set.id:"`+id+`"`)
	if err != nil {
		return nil, p.fail("list set cards", err)
	}

	set := setBody.Data.toModel()
	set.Cards = cards
	return &set, nil
}

// SearchCards runs a wildcard name query. The name sits inside a quoted phrase,
// so field separators and operators in it are literal ("Type: Null"); only the
// characters that still mean something inside quotes are stripped.
func (p *PhysicalClient) SearchCards(ctx context.Context, name string) ([]model.Card, error) {
	name = strings.TrimSpace(phraseSafe(name))
	if name == "" {
		return []model.Card{}, nil
	}

	cards, err := p.cards(ctx, `name:"*`+name+`*"`)
	if err != nil {
		return nil, p.fail("search cards", err)
	}
	return cards, nil
}

func phraseSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '*', '?':
			return -1
		}
		return r
	}, s)
}

func (p *PhysicalClient) cards(ctx context.Context, q string) ([]model.Card, error) {
	var body struct {
		Data []tcgCard `json:"data"`
	}
	if err := p.get(ctx, "/cards", url.Values{"q": {q}}, &body); err != nil {
		return nil, err
	}

	cards := make([]model.Card, 0, len(body.Data))
	for _, c := range body.Data {
		cards = append(cards, c.toModel())
	}
	return cards, nil
}

func (p *PhysicalClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	header := http.Header{}
	if p.apiKey != "" {
		header.Set("X-Api-Key", p.apiKey)
	}
	return getJSON(ctx, p.http, u, header, out)
}

// fail logs the underlying error and returns the user-facing one.
func (p *PhysicalClient) fail(op string, err error) error {
	p.logger.Error("physical catalog request failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return loadFailed()
}
