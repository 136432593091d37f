// Package sorting maintains forced sort names that surface recently added
// collection members at the top of sort-by-name views.
package sorting

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/collectarr/collectarr/internal/emby"
)

const (
	// TagPrefix and TagSuffix delimit the recency tag injected into an
	// item's sort name, e.g. "!!![38812345]alien".
	TagPrefix = "!!!["
	TagSuffix = "]"
)

var tagPattern = regexp.MustCompile(`!!!\[\d+\]`)

// anchor is the far-future reference point recency values count down to.
// Newer items yield smaller values and therefore sort first.
var anchor = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// MinutesUntil2100 returns the whole minutes between t and the anchor date.
// A zero t is treated as now, which puts undated items ahead of everything.
func MinutesUntil2100(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return int64(anchor.Sub(t).Minutes())
}

// HasTag reports whether a sort name carries a recency tag.
func HasTag(sortName string) bool {
	return tagPattern.MatchString(sortName)
}

// StripTag removes all recency tags from a sort name.
func StripTag(sortName string) string {
	return tagPattern.ReplaceAllString(sortName, "")
}

// Tag builds a tagged sort name from an item's creation time and its
// untagged sort name.
func Tag(created time.Time, sortName string) string {
	return fmt.Sprintf("%s%d%s%s", TagPrefix, MinutesUntil2100(created), TagSuffix, StripTag(sortName))
}

// Store is the subset of the collection server the tagger needs.
type Store interface {
	ItemsInCollection(ctx context.Context, collectionID string, fields []string) ([]emby.Item, error)
	ItemsStartingWithSortName(ctx context.Context, prefix string) ([]emby.Item, error)
	SetItemProperty(ctx context.Context, itemID, name string, value interface{}) error
}

// Tagger applies recency tags to members of sort-managed collections and,
// once all collections have been processed, reverts tags on items that no
// longer belong to any of them. The managed set accumulates across
// ProcessCollection calls and is consumed by ResetUnmanaged.
type Tagger struct {
	store   Store
	logger  zerolog.Logger
	managed map[string]struct{}
}

// NewTagger creates a tagger for one reconciliation pass.
func NewTagger(store Store, logger zerolog.Logger) *Tagger {
	return &Tagger{
		store:   store,
		logger:  logger.With().Str("component", "sorting").Logger(),
		managed: map[string]struct{}{},
	}
}

// ProcessCollection switches the collection to sort-name display order and
// tags every member that is not already tagged. All members, tagged here or
// previously, are recorded as managed so the later sweep leaves them alone.
func (t *Tagger) ProcessCollection(ctx context.Context, collectionID string) error {
	if err := t.store.SetItemProperty(ctx, collectionID, "DisplayOrder", "SortName"); err != nil {
		return fmt.Errorf("failed to set collection display order: %w", err)
	}

	items, err := t.store.ItemsInCollection(ctx, collectionID, []string{"SortName", "DateCreated"})
	if err != nil {
		return fmt.Errorf("failed to list collection members: %w", err)
	}

	tagged := 0
	for _, item := range items {
		t.managed[item.ID] = struct{}{}

		if HasTag(item.SortName) {
			continue
		}

		newSortName := Tag(item.DateCreated, item.SortName)
		if err := t.store.SetItemProperty(ctx, item.ID, "ForcedSortName", newSortName); err != nil {
			t.logger.Warn().Err(err).Str("item", item.Name).Msg("Failed to tag sort name")
			continue
		}
		tagged++
	}

	t.logger.Debug().
		Str("collectionId", collectionID).
		Int("members", len(items)).
		Int("tagged", tagged).
		Msg("Tagged collection members")
	return nil
}

// ResetUnmanaged scans the library for tagged items and reverts those that
// were not seen in any processed collection this pass. The managed set is
// cleared afterwards.
func (t *Tagger) ResetUnmanaged(ctx context.Context) error {
	items, err := t.store.ItemsStartingWithSortName(ctx, TagPrefix)
	if err != nil {
		return fmt.Errorf("failed to scan tagged items: %w", err)
	}

	reverted := 0
	for _, item := range items {
		if _, ok := t.managed[item.ID]; ok {
			continue
		}
		if err := t.store.SetItemProperty(ctx, item.ID, "ForcedSortName", StripTag(item.SortName)); err != nil {
			t.logger.Warn().Err(err).Str("item", item.Name).Msg("Failed to revert sort name")
			continue
		}
		reverted++
	}

	t.logger.Debug().
		Int("tagged", len(items)).
		Int("reverted", reverted).
		Msg("Reverted sort names outside managed collections")

	t.managed = map[string]struct{}{}
	return nil
}
