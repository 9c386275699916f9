// Package catalog adapts the two remote card sources (the physical trading card
// game REST API and the digital pocket game feed) to one Set/Card shape.
//
// Both sources are read-only and uncached upstream, so every failure maps to the
// same user-visible message and there are no retries.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
)

// LoadFailedMessage is shown to the user whenever a card source cannot be read.
const LoadFailedMessage = "Could not load cards. Please try again."

// maxResponseBytes bounds upstream bodies. The full digital feed is a few MB.
const maxResponseBytes = 64 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Source is one card source.
type Source interface {
	// ListSets returns every set, without cards.
	ListSets(ctx context.Context) ([]model.Set, error)
	// GetSet returns one set with its cards, or apperror.ErrNotFound.
	GetSet(ctx context.Context, id string) (*model.Set, error)
	// SearchCards matches card names case-insensitively.
	SearchCards(ctx context.Context, name string) ([]model.Card, error)
}

// Catalog dispatches to the source selected by a mode.
type Catalog struct {
	physical Source
	digital  Source
}

// New creates a Catalog. Either source may be nil when it is not configured;
// requests for it then fail with the upstream error.
func New(physical, digital Source) *Catalog {
	return &Catalog{physical: physical, digital: digital}
}

// Source returns the source for mode.
func (c *Catalog) Source(mode model.Mode) Source {
	var s Source
	if mode == model.Digital {
		s = c.digital
	} else {
		s = c.physical
	}
	if s == nil {
		return unavailable{}
	}
	return s
}

func (c *Catalog) ListSets(ctx context.Context, mode model.Mode) ([]model.Set, error) {
	return c.Source(mode).ListSets(ctx)
}

func (c *Catalog) GetSet(ctx context.Context, mode model.Mode, id string) (*model.Set, error) {
	return c.Source(mode).GetSet(ctx, id)
}

func (c *Catalog) SearchCards(ctx context.Context, mode model.Mode, name string) ([]model.Card, error) {
	return c.Source(mode).SearchCards(ctx, name)
}

// unavailable stands in for a source that was not configured.
type unavailable struct{}

func (unavailable) ListSets(context.Context) ([]model.Set, error) {
	return nil, loadFailed()
}

func (unavailable) GetSet(context.Context, string) (*model.Set, error) {
	return nil, loadFailed()
}

func (unavailable) SearchCards(context.Context, string) ([]model.Card, error) {
	return nil, loadFailed()
}

func loadFailed() error {
	return apperror.Upstream(LoadFailedMessage)
}

// statusError carries a non-2xx upstream status so callers can special-case 404.
type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog: GET %s returned status %d", e.url, e.status)
}

// getJSON performs a GET and decodes the body into out.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("catalog: building request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &statusError{url: url, status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("catalog: decoding %s: %w", url, err)
	}
	return nil
}
