// Package refresher re-triggers metadata refreshes for recently added
// collection members so provisional ratings and artwork settle quickly.
package refresher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/emby"
)

// Store is the subset of the collection server the refresher needs.
type Store interface {
	ItemsInCollection(ctx context.Context, collectionID string, fields []string) ([]emby.Item, error)
	RefreshItem(ctx context.Context, itemID string) error
	Item(ctx context.Context, itemID string) (*emby.Item, error)
}

// Refresher refreshes items that are both recently added and recently
// premiered. Each item is refreshed at most once per process lifetime; the
// server-side refresh is expensive and collections overlap.
type Refresher struct {
	store     Store
	cfg       config.RefreshConfig
	logger    zerolog.Logger
	processed map[string]struct{}
	now       func() time.Time
}

// New creates a refresher.
func New(store Store, cfg config.RefreshConfig, logger zerolog.Logger) *Refresher {
	return &Refresher{
		store:     store,
		cfg:       cfg,
		logger:    logger.With().Str("component", "refresher").Logger(),
		processed: map[string]struct{}{},
		now:       time.Now,
	}
}

// eligible reports whether an item falls inside both recency windows. Ages
// are truncated to whole elapsed days, so an item added 10.9 days ago still
// counts as 10 days old. An item without a premiere date counts as
// premiering now, keeping unreleased and undated titles inside the window.
func (r *Refresher) eligible(item emby.Item) bool {
	now := r.now()

	if item.DateCreated.IsZero() {
		return false
	}
	if daysBetween(item.DateCreated, now) > r.cfg.MaxDaysSinceAdded {
		return false
	}

	premiered := item.PremiereDate
	if premiered.IsZero() {
		premiered = now
	}
	return daysBetween(premiered, now) <= r.cfg.MaxDaysSincePremiered
}

// daysBetween returns the whole days elapsed from from to to.
func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// ProcessCollection refreshes the eligible members of a collection. Refresh
// failures are logged and skipped; one bad item must not stall the rest.
// Returns the number of items refreshed.
func (r *Refresher) ProcessCollection(ctx context.Context, collectionID, collectionName string) (int, error) {
	if !r.cfg.Enabled {
		return 0, nil
	}

	items, err := r.store.ItemsInCollection(ctx, collectionID,
		[]string{"DateCreated", "PremiereDate", "CommunityRating"})
	if err != nil {
		return 0, fmt.Errorf("failed to list collection members: %w", err)
	}

	refreshed := 0
	for _, item := range items {
		if _, done := r.processed[item.ID]; done {
			continue
		}
		if !r.eligible(item) {
			continue
		}
		r.processed[item.ID] = struct{}{}

		if err := r.refreshOne(ctx, item); err != nil {
			r.logger.Warn().Err(err).
				Str("item", item.Name).
				Str("collection", collectionName).
				Msg("Metadata refresh failed")
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		r.logger.Info().
			Str("collection", collectionName).
			Int("refreshed", refreshed).
			Msg("Refreshed recent items")
	}
	return refreshed, nil
}

func (r *Refresher) refreshOne(ctx context.Context, item emby.Item) error {
	if err := r.store.RefreshItem(ctx, item.ID); err != nil {
		return err
	}

	if !r.cfg.ShowRatingChange {
		return nil
	}

	after, err := r.store.Item(ctx, item.ID)
	if err != nil {
		r.logger.Debug().Err(err).Str("item", item.Name).Msg("Could not re-read item after refresh")
		return nil
	}
	if after.CommunityRating != item.CommunityRating {
		r.logger.Info().
			Str("item", item.Name).
			Float64("before", item.CommunityRating).
			Float64("after", after.CommunityRating).
			Msg("Community rating changed after refresh")
	}
	return nil
}
