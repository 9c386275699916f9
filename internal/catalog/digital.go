package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gosimple/slug"
	"golang.org/x/text/cases"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
)

// DigitalSeries is the series name given to every digital set.
const DigitalSeries = "Pocket"

// DigitalPacks is the allow-list of packs shown as digital sets, in display order.
// Feed packs outside this list are ignored.
var DigitalPacks = []string{
	"Genetic Apex",
	"Mythical Island",
	"Space-Time Smackdown",
	"Triumphant Light",
	"Shining Revelry",
	"Celestial Guardians",
	"Extradimensional Crisis",
	"Promo V1",
}

// UnwrapPack turns a raw pack name such as "Shared(Promo V1)" into its display
// name "Promo V1". Other names are returned trimmed.
func UnwrapPack(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "Shared(") && strings.HasSuffix(s, ")") {
		return strings.TrimSpace(s[len("Shared(") : len(s)-1])
	}
	return s
}

// WrapPack is the inverse of UnwrapPack.
func WrapPack(name string) string {
	return "Shared(" + UnwrapPack(name) + ")"
}

// PackID is the set id of a pack: the slug of its display name, so that
// "Shared(Promo V1)", "Promo V1" and "promo-v1" all name the same set.
func PackID(raw string) string {
	return slug.Make(UnwrapPack(raw))
}

// feedCard is one element of the digital feed array.
type feedCard struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rarity string `json:"rarity"`
	Pack   string `json:"pack"`
	Image  string `json:"image"`
}

// digitalSnapshot is the feed grouped into the allow-listed sets.
type digitalSnapshot struct {
	sets []model.Set // with cards, in DigitalPacks order
	byID map[string]int
}

// DigitalClient serves the digital catalog from a single JSON feed.
//
// With a refresh interval of zero the whole feed is downloaded on every call.
// With a positive interval the last good snapshot is served and Schedule
// registers a job that replaces it periodically; a failed refresh keeps the
// previous snapshot.
type DigitalClient struct {
	feedURL  string
	http     *http.Client
	logger   *slog.Logger
	interval time.Duration
	snap     atomic.Pointer[digitalSnapshot]
}

var _ Source = (*DigitalClient)(nil)

func NewDigitalClient(feedURL string, refresh time.Duration, client *http.Client, logger *slog.Logger) *DigitalClient {
	return &DigitalClient{
		feedURL:  feedURL,
		http:     client,
		logger:   logger,
		interval: refresh,
	}
}

// Schedule registers the periodic refresh on s. It is a no-op when caching is off.
// The first run happens immediately so the cache is warm before the first request.
func (d *DigitalClient) Schedule(s gocron.Scheduler) error {
	if d.interval <= 0 {
		return nil
	}
	_, err := s.NewJob(
		gocron.DurationJob(d.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := d.Refresh(ctx); err != nil {
				d.logger.Warn("digital feed refresh failed, keeping previous snapshot",
					slog.String("error", err.Error()),
				)
			}
		}),
		gocron.WithName("digital-feed-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	return err
}

// Refresh downloads the feed and replaces the cached snapshot.
func (d *DigitalClient) Refresh(ctx context.Context) error {
	snap, err := d.fetch(ctx)
	if err != nil {
		return err
	}
	d.snap.Store(snap)
	d.logger.Info("digital feed refreshed", slog.Int("sets", len(snap.sets)))
	return nil
}

func (d *DigitalClient) ListSets(ctx context.Context) ([]model.Set, error) {
	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	sets := make([]model.Set, 0, len(snap.sets))
	for _, s := range snap.sets {
		s.Cards = nil
		sets = append(sets, s)
	}
	return sets, nil
}

// GetSet accepts the set id or either form of the pack name.
func (d *DigitalClient) GetSet(ctx context.Context, id string) (*model.Set, error) {
	key := PackID(id)
	if key == "" {
		return nil, apperror.ValidationFailed("id", "Set id is required")
	}

	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	i, ok := snap.byID[key]
	if !ok {
		return nil, apperror.NotFound("set", id)
	}
	set := snap.sets[i]
	set.Cards = make([]model.Card, len(set.Cards))
	copy(set.Cards, snap.sets[i].Cards)
	return &set, nil
}

// SearchCards matches a case-folded substring of the card name across the
// allow-listed packs.
func (d *DigitalClient) SearchCards(ctx context.Context, name string) ([]model.Card, error) {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(name))
	if needle == "" {
		return []model.Card{}, nil
	}

	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := []model.Card{}
	for _, s := range snap.sets {
		for _, c := range s.Cards {
			if strings.Contains(fold.String(c.Name), needle) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (d *DigitalClient) snapshot(ctx context.Context) (*digitalSnapshot, error) {
	if d.interval > 0 {
		if snap := d.snap.Load(); snap != nil {
			return snap, nil
		}
	}

	snap, err := d.fetch(ctx)
	if err != nil {
		d.logger.Error("digital catalog request failed", slog.String("error", err.Error()))
		return nil, loadFailed()
	}
	if d.interval > 0 {
		d.snap.Store(snap)
	}
	return snap, nil
}

var errNoFeed = errors.New("catalog: digital feed URL is not configured")

func (d *DigitalClient) fetch(ctx context.Context) (*digitalSnapshot, error) {
	if d.feedURL == "" {
		return nil, errNoFeed
	}

	var feed []feedCard
	if err := getJSON(ctx, d.http, d.feedURL, nil, &feed); err != nil {
		return nil, err
	}
	return groupFeed(feed), nil
}

// groupFeed groups feed cards by unwrapped pack name and keeps only the
// allow-listed packs. Packs with no cards in the feed are still listed.
func groupFeed(feed []feedCard) *digitalSnapshot {
	snap := &digitalSnapshot{
		sets: make([]model.Set, 0, len(DigitalPacks)),
		byID: make(map[string]int, len(DigitalPacks)),
	}
	for _, name := range DigitalPacks {
		id := PackID(name)
		snap.byID[id] = len(snap.sets)
		snap.sets = append(snap.sets, model.Set{
			ID:     id,
			Name:   name,
			Series: DigitalSeries,
			Cards:  []model.Card{},
		})
	}

	for _, fc := range feed {
		i, ok := snap.byID[PackID(fc.Pack)]
		if !ok || fc.ID == "" {
			continue
		}
		set := &snap.sets[i]
		set.Cards = append(set.Cards, model.Card{
			ID:      fc.ID,
			Name:    fc.Name,
			Image:   fc.Image,
			Rarity:  fc.Rarity,
			SetID:   set.ID,
			SetName: set.Name,
		})
	}

	for i := range snap.sets {
		set := &snap.sets[i]
		set.PrintedTotal = len(set.Cards)
		if len(set.Cards) > 0 {
			set.Images.Logo = set.Cards[0].Image
		}
	}
	return snap
}
