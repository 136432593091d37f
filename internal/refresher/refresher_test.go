package refresher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/emby"
)

type fakeStore struct {
	items     []emby.Item
	refreshed []string
	failIDs   map[string]bool
}

func (f *fakeStore) ItemsInCollection(_ context.Context, _ string, _ []string) ([]emby.Item, error) {
	return f.items, nil
}

func (f *fakeStore) RefreshItem(_ context.Context, itemID string) error {
	if f.failIDs[itemID] {
		return errors.New("refresh failed")
	}
	f.refreshed = append(f.refreshed, itemID)
	return nil
}

func (f *fakeStore) Item(_ context.Context, itemID string) (*emby.Item, error) {
	for _, it := range f.items {
		if it.ID == itemID {
			return &it, nil
		}
	}
	return nil, errors.New("not found")
}

func newRefresher(store Store) *Refresher {
	r := New(store, config.RefreshConfig{
		Enabled:               true,
		MaxDaysSinceAdded:     7,
		MaxDaysSincePremiered: 30,
	}, zerolog.Nop())
	r.now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestProcessCollectionWindows(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{items: []emby.Item{
		// Inside both windows.
		{ID: "1", DateCreated: now.AddDate(0, 0, -2), PremiereDate: now.AddDate(0, 0, -10)},
		// Added too long ago.
		{ID: "2", DateCreated: now.AddDate(0, 0, -20), PremiereDate: now.AddDate(0, 0, -10)},
		// Premiered too long ago.
		{ID: "3", DateCreated: now.AddDate(0, 0, -2), PremiereDate: now.AddDate(0, -6, 0)},
		// No premiere date counts as premiering now.
		{ID: "4", DateCreated: now.AddDate(0, 0, -2)},
		// No creation date is never refreshed.
		{ID: "5", PremiereDate: now.AddDate(0, 0, -1)},
	}}

	r := newRefresher(store)
	refreshed, err := r.ProcessCollection(context.Background(), "col1", "Horror")
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)
	assert.Equal(t, []string{"1", "4"}, store.refreshed)
}

func TestEligibleTruncatesToWholeDays(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{items: []emby.Item{
		// 7 days and 6 hours ago truncates to 7 days, still inside the
		// added window.
		{ID: "1", DateCreated: now.Add(-7*24*time.Hour - 6*time.Hour), PremiereDate: now},
		// 8 full days ago is outside.
		{ID: "2", DateCreated: now.Add(-8 * 24 * time.Hour), PremiereDate: now},
		// Same boundary on the premiere window: 30 days 23 hours is
		// still 30 days.
		{ID: "3", DateCreated: now, PremiereDate: now.Add(-30*24*time.Hour - 23*time.Hour)},
		{ID: "4", DateCreated: now, PremiereDate: now.Add(-31 * 24 * time.Hour)},
	}}

	r := newRefresher(store)
	refreshed, err := r.ProcessCollection(context.Background(), "col1", "Horror")
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)
	assert.Equal(t, []string{"1", "3"}, store.refreshed)
}

func TestProcessCollectionOncePerLifetime(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{items: []emby.Item{
		{ID: "1", DateCreated: now.AddDate(0, 0, -1), PremiereDate: now.AddDate(0, 0, -1)},
	}}

	r := newRefresher(store)

	refreshed, err := r.ProcessCollection(context.Background(), "col1", "Horror")
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	// The same item in an overlapping collection is not refreshed again.
	refreshed, err = r.ProcessCollection(context.Background(), "col2", "Classics")
	require.NoError(t, err)
	assert.Zero(t, refreshed)
}

func TestProcessCollectionSkipsFailedItems(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{
		items: []emby.Item{
			{ID: "1", DateCreated: now.AddDate(0, 0, -1), PremiereDate: now},
			{ID: "2", DateCreated: now.AddDate(0, 0, -1), PremiereDate: now},
		},
		failIDs: map[string]bool{"1": true},
	}

	r := newRefresher(store)
	refreshed, err := r.ProcessCollection(context.Background(), "col1", "Horror")
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, []string{"2"}, store.refreshed)
}

func TestDisabledRefresherDoesNothing(t *testing.T) {
	store := &fakeStore{}
	r := New(store, config.RefreshConfig{Enabled: false}, zerolog.Nop())

	refreshed, err := r.ProcessCollection(context.Background(), "col1", "Horror")
	require.NoError(t, err)
	assert.Zero(t, refreshed)
}
