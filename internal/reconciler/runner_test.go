package reconciler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/emby"
	"github.com/collectarr/collectarr/internal/mdblist"
)

type fakeTagger struct {
	processed []string
	resets    int
}

func (f *fakeTagger) ProcessCollection(_ context.Context, collectionID string) error {
	f.processed = append(f.processed, collectionID)
	return nil
}

func (f *fakeTagger) ResetUnmanaged(_ context.Context) error {
	f.resets++
	return nil
}

type fakeRefresher struct {
	collections []string
}

func (f *fakeRefresher) ProcessCollection(_ context.Context, collectionID, _ string) (int, error) {
	f.collections = append(f.collections, collectionID)
	return 1, nil
}

func TestRunnerProcessesManualAndAccountLists(t *testing.T) {
	source := &fakeSource{
		resolved: map[string]*mdblist.ResolvedList{
			"Horror":    {IMDBIDs: []string{"tt1"}},
			"Watchlist": {IMDBIDs: []string{"tt2"}},
		},
		myLists: []mdblist.ListInfo{
			{ID: 7, Name: "Watchlist"},
			// Account list matching a configured name is not processed twice.
			{ID: 8, Name: "Horror"},
		},
	}
	store := newFakeCollections()
	store.addLibraryItem("tt1", "101", "Alien")
	store.addLibraryItem("tt2", "102", "The Thing")
	store.addCollection("Horror", "col1")
	store.addCollection("Watchlist", "col2")

	cfg := &config.Config{
		Sync: config.SyncConfig{
			DownloadManualLists: true,
			DownloadMyLists:     true,
		},
		Lists: []config.ListSpec{{Name: "Horror", ID: 42}},
	}

	rec := newReconciler(source, store, &fakeState{}, cfg.Sync)
	tagger := &fakeTagger{}
	refresher := &fakeRefresher{}

	runner := NewRunner(cfg, source, rec, tagger, refresher, zerolog.Nop())
	summary := runner.Run(context.Background())

	assert.Equal(t, 2, summary.Lists)
	assert.Equal(t, 2, summary.Added)
	assert.Zero(t, summary.Errors)
	assert.NotEmpty(t, summary.RunID)

	// Refresher sees both collections.
	assert.ElementsMatch(t, []string{"col1", "col2"}, refresher.collections)
	assert.Equal(t, 2, summary.Refreshed)

	// Sort-name maintenance is off: no tagging, no sweep.
	assert.Empty(t, tagger.processed)
	assert.Zero(t, tagger.resets)
}

func TestRunnerProcessesTopLists(t *testing.T) {
	source := &fakeSource{
		resolved: map[string]*mdblist.ResolvedList{
			"Horror":  {IMDBIDs: []string{"tt1"}},
			"Top 100": {IMDBIDs: []string{"tt2"}},
		},
		topLists: []mdblist.ListInfo{
			{ID: 9, Name: "Top 100"},
			// A top list matching a configured name is not processed twice.
			{ID: 10, Name: "Horror"},
		},
	}
	store := newFakeCollections()
	store.addLibraryItem("tt1", "101", "Alien")
	store.addLibraryItem("tt2", "102", "The Thing")
	store.addCollection("Horror", "col1")
	store.addCollection("Top 100", "col2")

	cfg := &config.Config{
		Sync: config.SyncConfig{
			DownloadManualLists: true,
			DownloadTopLists:    true,
		},
		Lists: []config.ListSpec{{Name: "Horror", ID: 42}},
	}

	rec := newReconciler(source, store, &fakeState{}, cfg.Sync)
	runner := NewRunner(cfg, source, rec, &fakeTagger{}, &fakeRefresher{}, zerolog.Nop())
	summary := runner.Run(context.Background())

	assert.Equal(t, 2, summary.Lists)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, []string{"102"}, store.added["col2"])
}

func TestRunnerSortNameMaintenance(t *testing.T) {
	managed := true
	unmanaged := false

	source := &fakeSource{resolved: map[string]*mdblist.ResolvedList{
		"Horror": {IMDBIDs: []string{"tt1"}},
		"Drama":  {IMDBIDs: []string{"tt2"}},
	}}
	store := newFakeCollections()
	store.addLibraryItem("tt1", "101", "Alien")
	store.addLibraryItem("tt2", "102", "Magnolia")
	store.addCollection("Horror", "col1")
	store.addCollection("Drama", "col2")

	cfg := &config.Config{
		Sync: config.SyncConfig{DownloadManualLists: true},
		Lists: []config.ListSpec{
			{Name: "Horror", ID: 42, UpdateItemsSortNames: &managed},
			{Name: "Drama", ID: 43, UpdateItemsSortNames: &unmanaged},
		},
	}

	rec := newReconciler(source, store, &fakeState{}, cfg.Sync)
	tagger := &fakeTagger{}

	runner := NewRunner(cfg, source, rec, tagger, &fakeRefresher{}, zerolog.Nop())
	summary := runner.Run(context.Background())
	require.Zero(t, summary.Errors)

	assert.Equal(t, []string{"col1"}, tagger.processed)
	assert.Equal(t, 1, tagger.resets)
}

func TestRunnerContinuesAfterListFailure(t *testing.T) {
	source := &fakeSource{resolved: map[string]*mdblist.ResolvedList{
		// "Broken" is absent and resolves with an error.
		"Horror": {IMDBIDs: []string{"tt1"}},
	}}
	store := newFakeCollections()
	store.addLibraryItem("tt1", "101", "Alien")
	store.addCollection("Horror", "col1")
	store.addCollection("Broken", "col9")

	cfg := &config.Config{
		Sync: config.SyncConfig{DownloadManualLists: true},
		Lists: []config.ListSpec{
			{Name: "Broken", ID: 1},
			{Name: "Horror", ID: 42},
		},
	}

	rec := newReconciler(source, store, &fakeState{}, cfg.Sync)
	runner := NewRunner(cfg, source, rec, &fakeTagger{}, &fakeRefresher{}, zerolog.Nop())

	summary := runner.Run(context.Background())
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, []string{"101"}, store.added["col1"])
}

func TestRunnerEndToEndScenario(t *testing.T) {
	// A collection drifts: one member left the list, two list entries are
	// new, of which one exists in the library.
	source := &fakeSource{resolved: map[string]*mdblist.ResolvedList{
		"Horror": {IMDBIDs: []string{"tt0078748", "tt0084787", "tt0387564"}},
	}}
	store := newFakeCollections()
	store.addLibraryItem("tt0078748", "101", "Alien")
	store.addLibraryItem("tt0084787", "102", "The Thing")
	store.addCollection("Horror", "col1",
		emby.Item{ID: "102", Name: "The Thing", IMDB: "tt0084787"},
		emby.Item{ID: "105", Name: "Scream", IMDB: "tt0117571"},
	)

	cfg := &config.Config{
		Sync:  config.SyncConfig{DownloadManualLists: true},
		Lists: []config.ListSpec{{Name: "Horror", ID: 42}},
	}

	rec := newReconciler(source, store, &fakeState{}, cfg.Sync)
	runner := NewRunner(cfg, source, rec, &fakeTagger{}, &fakeRefresher{}, zerolog.Nop())

	summary := runner.Run(context.Background())

	assert.Equal(t, 1, summary.Lists)
	assert.Equal(t, 1, summary.Added)
	assert.Equal(t, 1, summary.Removed)
	assert.Equal(t, []string{"101"}, store.added["col1"])
	assert.Equal(t, []string{"105"}, store.removed["col1"])
}
