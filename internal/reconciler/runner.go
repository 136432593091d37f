package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/mdblist"
)

// Source extends ListSource with discovery of the account's own lists and
// the provider's most liked public ones.
type Source interface {
	ListSource
	MyLists(ctx context.Context) ([]mdblist.ListInfo, error)
	TopLists(ctx context.Context) ([]mdblist.ListInfo, error)
}

// Tagger maintains item sort names across managed collections.
type Tagger interface {
	ProcessCollection(ctx context.Context, collectionID string) error
	ResetUnmanaged(ctx context.Context) error
}

// Refresher re-fetches metadata for recent collection members.
type Refresher interface {
	ProcessCollection(ctx context.Context, collectionID, collectionName string) (int, error)
}

// Summary aggregates one full pass over all configured lists.
type Summary struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Lists     int           `json:"lists"`
	Added     int           `json:"added"`
	Removed   int           `json:"removed"`
	Created   int           `json:"created"`
	Skipped   int           `json:"skipped"`
	Refreshed int           `json:"refreshed"`
	Errors    int           `json:"errors"`
}

// Runner executes complete reconciliation passes: every configured list, then
// sort-name maintenance, then metadata refreshes.
type Runner struct {
	cfg        *config.Config
	source     Source
	reconciler *Reconciler
	tagger     Tagger
	refresher  Refresher
	logger     zerolog.Logger
}

// NewRunner creates a pass runner.
func NewRunner(cfg *config.Config, source Source, rec *Reconciler, tagger Tagger, refresher Refresher, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		source:     source,
		reconciler: rec,
		tagger:     tagger,
		refresher:  refresher,
		logger:     logger.With().Str("component", "runner").Logger(),
	}
}

// specs assembles the lists to process this pass: the manually configured
// ones, then every list owned by the MDBList account, then the provider's
// top lists, as enabled. Discovered lists use provider defaults for
// everything but name and id, and a name already seen this pass wins.
func (r *Runner) specs(ctx context.Context) []config.ListSpec {
	var specs []config.ListSpec

	if r.cfg.Sync.DownloadManualLists {
		specs = append(specs, r.cfg.Lists...)
	}

	if r.cfg.Sync.DownloadMyLists {
		mine, err := r.source.MyLists(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Failed to fetch account lists")
		} else {
			specs = appendDiscovered(specs, mine)
		}
	}

	if r.cfg.Sync.DownloadTopLists {
		top, err := r.source.TopLists(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Failed to fetch top lists")
		} else {
			specs = appendDiscovered(specs, top)
		}
	}

	return specs
}

// appendDiscovered adds provider-discovered lists, skipping names that are
// already scheduled this pass.
func appendDiscovered(specs []config.ListSpec, discovered []mdblist.ListInfo) []config.ListSpec {
	seen := map[string]struct{}{}
	for _, s := range specs {
		seen[s.Name] = struct{}{}
	}
	for _, info := range discovered {
		if _, dup := seen[info.Name]; dup {
			continue
		}
		seen[info.Name] = struct{}{}
		specs = append(specs, config.ListSpec{Name: info.Name, ID: info.ID})
	}
	return specs
}

// Run executes one pass and returns its summary. Per-list failures are
// logged and counted, never fatal to the pass.
func (r *Runner) Run(ctx context.Context) Summary {
	summary := Summary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	logger := r.logger.With().Str("runId", summary.RunID).Logger()
	logger.Info().Msg("Starting reconciliation pass")

	specs := r.specs(ctx)
	summary.Lists = len(specs)

	var done []processedList

	for _, spec := range specs {
		if ctx.Err() != nil {
			logger.Warn().Msg("Pass cancelled")
			break
		}

		result, err := r.reconciler.ProcessList(ctx, spec)
		if err != nil {
			summary.Errors++
			logger.Error().Err(err).Str("collection", spec.Name).Msg("List failed, continuing with next")
		}
		if result == nil {
			continue
		}

		summary.Added += result.Added
		summary.Removed += result.Removed
		if result.Created {
			summary.Created++
		}
		if result.Skipped {
			summary.Skipped++
		}
		if err == nil && result.CollectionID != "" && !result.Skipped && !result.Deactivated {
			done = append(done, processedList{spec: spec, result: result})
		}
	}

	r.maintainSortNames(ctx, &summary, done, logger)

	for _, p := range done {
		refreshed, err := r.refresher.ProcessCollection(ctx, p.result.CollectionID, p.spec.Name)
		summary.Refreshed += refreshed
		if err != nil {
			summary.Errors++
			logger.Warn().Err(err).Str("collection", p.spec.Name).Msg("Metadata refresh pass failed")
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	logger.Info().
		Int("lists", summary.Lists).
		Int("added", summary.Added).
		Int("removed", summary.Removed).
		Int("created", summary.Created).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Dur("duration", summary.Duration).
		Msg("Reconciliation pass finished")
	return summary
}

// processedList pairs a spec with its reconciliation result for the
// post-reconcile phases.
type processedList struct {
	spec   config.ListSpec
	result *Result
}

// maintainSortNames tags members of every sort-managed collection, then
// reverts tags on items that fell out of all of them. The revert sweep scans
// the whole library in sort order, so it only runs when the feature is in
// use anywhere in the configuration.
func (r *Runner) maintainSortNames(ctx context.Context, summary *Summary, done []processedList, logger zerolog.Logger) {
	inUse := r.cfg.Sync.UpdateItemsSortNamesDefault
	for _, spec := range r.cfg.Lists {
		if spec.UpdateItemsSortNames != nil {
			inUse = true
		}
	}
	if !inUse {
		return
	}

	for _, p := range done {
		if !p.spec.SortManaged(r.cfg.Sync.UpdateItemsSortNamesDefault) {
			continue
		}
		if err := r.tagger.ProcessCollection(ctx, p.result.CollectionID); err != nil {
			summary.Errors++
			logger.Warn().Err(err).Str("collection", p.spec.Name).Msg("Sort-name tagging failed")
		}
	}

	if err := r.tagger.ResetUnmanaged(ctx); err != nil {
		summary.Errors++
		logger.Warn().Err(err).Msg("Sort-name revert sweep failed")
	}
}
