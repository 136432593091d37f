// Package reconciler drives collections toward their MDBList sources: it
// resolves each configured list to a desired id set, diffs it against the
// collection's current members and applies the difference.
package reconciler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/emby"
	"github.com/collectarr/collectarr/internal/mdblist"
	"github.com/collectarr/collectarr/internal/period"
	"github.com/collectarr/collectarr/internal/sorting"
)

// ListSource resolves a list spec to the external ids it currently contains.
type ListSource interface {
	Resolve(ctx context.Context, spec config.ListSpec) (*mdblist.ResolvedList, error)
}

// CollectionStore is the subset of the collection server the reconciler
// mutates.
type CollectionStore interface {
	CollectionID(ctx context.Context, name string) (string, error)
	ItemsInCollection(ctx context.Context, collectionID string, fields []string) ([]emby.Item, error)
	ItemsWithProviderIDs(ctx context.Context, imdbIDs []string, mediaTypes []string) ([]string, error)
	CreateCollection(ctx context.Context, name string, seedIDs []string) (string, error)
	AddToCollection(ctx context.Context, collectionID string, itemIDs []string) (int, error)
	RemoveFromCollection(ctx context.Context, collectionID string, itemIDs []string) (int, error)
	SetItemProperty(ctx context.Context, itemID, name string, value interface{}) error
	SetImage(ctx context.Context, itemID, source string) error
}

// StateStore persists per-collection state between passes.
type StateStore interface {
	PosterPath(ctx context.Context, collectionID string) (string, error)
	SetPosterPath(ctx context.Context, collectionID, path string) error
}

// Result summarizes one list's reconciliation.
type Result struct {
	Collection   string
	CollectionID string
	Added        int
	Removed      int
	Created      bool
	// Skipped is set when frequency sampling passed over the list this pass.
	Skipped bool
	// Deactivated is set when the list is outside its active period and the
	// collection was emptied.
	Deactivated bool
}

// Reconciler reconciles one collection per ProcessList call.
type Reconciler struct {
	source ListSource
	store  CollectionStore
	state  StateStore
	cfg    config.SyncConfig
	logger zerolog.Logger
	// randInt samples frequency; swapped out in tests.
	randInt func(n int) int
}

// New creates a reconciler.
func New(source ListSource, store CollectionStore, state StateStore, cfg config.SyncConfig, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		source:  source,
		store:   store,
		state:   state,
		cfg:     cfg,
		logger:  logger.With().Str("component", "reconciler").Logger(),
		randInt: rand.IntN,
	}
}

// ProcessList reconciles one collection against its source list. Errors are
// per-list: the caller logs them and moves on to the next list. A Result is
// returned alongside batch errors so partial progress is still counted.
func (r *Reconciler) ProcessList(ctx context.Context, spec config.ListSpec) (*Result, error) {
	result := &Result{Collection: spec.Name}
	logger := r.logger.With().Str("collection", spec.Name).Logger()

	collectionID, err := r.store.CollectionID(ctx, spec.Name)
	if err != nil {
		return result, fmt.Errorf("failed to look up collection: %w", err)
	}
	result.CollectionID = collectionID

	if spec.ActivePeriod != "" && !period.Inside(spec.ActivePeriod) {
		result.Deactivated = true
		if collectionID == "" {
			return result, nil
		}
		removed, err := r.emptyCollection(ctx, collectionID)
		result.Removed = removed
		if err != nil {
			return result, err
		}
		logger.Info().Int("removed", removed).Msg("Collection outside active period, emptied")
		return result, nil
	}

	if !r.sampled(spec, collectionID) {
		result.Skipped = true
		logger.Debug().Msg("Skipped by frequency sampling")
		return result, nil
	}

	resolved, err := r.source.Resolve(ctx, spec)
	if err != nil {
		return result, fmt.Errorf("failed to resolve list: %w", err)
	}

	desired := dedupe(resolved.IMDBIDs)
	logger.Debug().Int("listItems", len(desired)).Msg("Resolved source list")

	var missing []string
	var extraneous []string

	if collectionID == "" {
		missing = desired
	} else {
		members, err := r.store.ItemsInCollection(ctx, collectionID, []string{"ProviderIds"})
		if err != nil {
			return result, fmt.Errorf("failed to list collection members: %w", err)
		}

		memberIMDB := map[string]struct{}{}
		for _, m := range members {
			if m.IMDB != "" {
				memberIMDB[m.IMDB] = struct{}{}
			}
		}
		desiredSet := map[string]struct{}{}
		for _, id := range desired {
			desiredSet[id] = struct{}{}
		}

		for _, id := range desired {
			if _, ok := memberIMDB[id]; !ok {
				missing = append(missing, id)
			}
		}
		// Walk the member list itself so duplicate members sharing an
		// external id are all removed. Members without a known external id
		// are never removed; they may be manual additions.
		for _, m := range members {
			if m.IMDB == "" {
				continue
			}
			if _, ok := desiredSet[m.IMDB]; !ok {
				extraneous = append(extraneous, m.ID)
			}
		}
	}

	var toAdd []string
	if len(missing) > 0 {
		toAdd, err = r.store.ItemsWithProviderIDs(ctx, missing, resolved.MediaTypes)
		if err != nil {
			return result, fmt.Errorf("failed to match list items against library: %w", err)
		}
	}

	if collectionID == "" {
		if len(toAdd) == 0 {
			logger.Warn().Msg("No list items found in library, collection not created")
			return result, nil
		}
		collectionID, err = r.store.CreateCollection(ctx, spec.Name, toAdd[:1])
		if err != nil {
			return result, fmt.Errorf("failed to create collection: %w", err)
		}
		result.CollectionID = collectionID
		result.Created = true
		result.Added = 1
		toAdd = toAdd[1:]
	}

	if len(toAdd) > 0 {
		added, err := r.store.AddToCollection(ctx, collectionID, toAdd)
		result.Added += added
		if err != nil {
			return result, fmt.Errorf("failed to add items: %w", err)
		}
	}
	if len(extraneous) > 0 {
		removed, err := r.store.RemoveFromCollection(ctx, collectionID, extraneous)
		result.Removed += removed
		if err != nil {
			return result, fmt.Errorf("failed to remove items: %w", err)
		}
	}

	if err := r.applyProperties(ctx, spec, resolved, collectionID, result); err != nil {
		return result, err
	}

	logger.Info().
		Int("added", result.Added).
		Int("removed", result.Removed).
		Bool("created", result.Created).
		Msg("Reconciled collection")
	return result, nil
}

// nowTime is swapped out in tests that assert the computed sort name.
var nowTime = time.Now

// dedupe removes duplicate ids, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sampled reports whether frequency sampling selects the list this pass. A
// collection that does not exist yet is always selected so it gets created.
// An unset frequency means every pass; an explicit 0 means never.
func (r *Reconciler) sampled(spec config.ListSpec, collectionID string) bool {
	if collectionID == "" {
		return true
	}
	frequency := 100
	if spec.Frequency != nil {
		frequency = *spec.Frequency
	}
	if frequency >= 100 {
		return true
	}
	return r.randInt(100) < frequency
}

func (r *Reconciler) emptyCollection(ctx context.Context, collectionID string) (int, error) {
	members, err := r.store.ItemsInCollection(ctx, collectionID, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list collection members: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	removed, err := r.store.RemoveFromCollection(ctx, collectionID, ids)
	if err != nil {
		return removed, fmt.Errorf("failed to empty collection: %w", err)
	}
	return removed, nil
}

// applyProperties sets the collection's sort name, overview and poster.
// Explicit per-list settings always win over computed and provider values.
func (r *Reconciler) applyProperties(ctx context.Context, spec config.ListSpec, resolved *mdblist.ResolvedList, collectionID string, result *Result) error {
	switch {
	case spec.SortName != "":
		if err := r.store.SetItemProperty(ctx, collectionID, "ForcedSortName", spec.SortName); err != nil {
			return fmt.Errorf("failed to set collection sort name: %w", err)
		}
	case r.cfg.UpdateCollectionSortName && result.Added > 0:
		// Collections with fresh additions sort first under a countdown
		// prefix, same scheme as item recency tags.
		computed := fmt.Sprintf("!%d %s", sorting.MinutesUntil2100(nowTime()), spec.Name)
		if err := r.store.SetItemProperty(ctx, collectionID, "ForcedSortName", computed); err != nil {
			return fmt.Errorf("failed to set collection sort name: %w", err)
		}
	}

	description := spec.Description
	if description == "" && r.cfg.UseListDescriptions {
		description = resolved.Description
	}
	if description != "" {
		if err := r.store.SetItemProperty(ctx, collectionID, "Overview", description); err != nil {
			return fmt.Errorf("failed to set collection overview: %w", err)
		}
	}

	if spec.Poster != "" {
		last, err := r.state.PosterPath(ctx, collectionID)
		if err != nil {
			return fmt.Errorf("failed to read poster state: %w", err)
		}
		if last != spec.Poster {
			if err := r.store.SetImage(ctx, collectionID, spec.Poster); err != nil {
				return fmt.Errorf("failed to set collection poster: %w", err)
			}
			if err := r.state.SetPosterPath(ctx, collectionID, spec.Poster); err != nil {
				return fmt.Errorf("failed to store poster state: %w", err)
			}
		}
	}

	return nil
}
