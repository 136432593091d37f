// Package backup exports per-user watched and favorite state to JSON files
// and replays them back onto a server, typically around a library rebuild.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/collectarr/collectarr/internal/emby"
)

// Filters that can be snapshotted and replayed.
const (
	FilterPlayed   = "IsPlayed"
	FilterFavorite = "IsFavorite"
)

// providerKeys are the external id namespaces worth persisting; anything
// else is too server-specific to survive a rebuild.
var providerKeys = []string{"Imdb", "IMDB", "Tmdb", "Tvdb"}

// Server is the subset of the Emby client backup needs.
type Server interface {
	Users(ctx context.Context) ([]emby.User, error)
	Items(ctx context.Context, q emby.ItemsQuery) ([]emby.Item, error)
	SetPlayed(ctx context.Context, userID, itemID string) error
	SetFavorite(ctx context.Context, userID, itemID string) error
}

// Snapshot is one user's state for one filter.
type Snapshot struct {
	UserName string         `json:"user_name"`
	UserID   string         `json:"user_id"`
	Filter   string         `json:"filter"`
	TakenAt  time.Time      `json:"taken_at"`
	Items    []SnapshotItem `json:"items"`
}

// SnapshotItem carries enough identity to find the item again on a server
// whose internal ids have changed. The id is informational only; restore
// matches by provider ids.
type SnapshotItem struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type,omitempty"`
	ProviderIDs map[string]string `json:"provider_ids,omitempty"`
}

// Backup exports and restores user item state.
type Backup struct {
	server Server
	logger zerolog.Logger
}

// New creates a backup helper.
func New(server Server, logger zerolog.Logger) *Backup {
	return &Backup{
		server: server,
		logger: logger.With().Str("component", "backup").Logger(),
	}
}

// Export writes one snapshot file per user and filter into dir. File names
// follow "<filter>_<user>.json".
func (b *Backup) Export(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	users, err := b.server.Users(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	for _, user := range users {
		for _, filter := range []string{FilterPlayed, FilterFavorite} {
			if err := b.exportOne(ctx, dir, user, filter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Backup) exportOne(ctx context.Context, dir string, user emby.User, filter string) error {
	items, err := b.server.Items(ctx, emby.ItemsQuery{
		UserID:           user.ID,
		Fields:           []string{"ProviderIds"},
		IncludeItemTypes: []string{"Movie", "Series", "Episode"},
		Filters:          []string{filter},
		All:              true,
	})
	if err != nil {
		return fmt.Errorf("failed to list %s items for %s: %w", filter, user.Name, err)
	}

	snapshot := Snapshot{
		UserName: user.Name,
		UserID:   user.ID,
		Filter:   filter,
		TakenAt:  time.Now().UTC(),
		Items:    make([]SnapshotItem, 0, len(items)),
	}
	for _, item := range items {
		snapshot.Items = append(snapshot.Items, SnapshotItem{
			ID:          item.ID,
			Name:        item.Name,
			Type:        item.Type,
			ProviderIDs: filterProviderIDs(item.ProviderIDs),
		})
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", filter, sanitize(user.Name)))
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	b.logger.Info().
		Str("user", user.Name).
		Str("filter", filter).
		Int("items", len(snapshot.Items)).
		Str("file", path).
		Msg("Exported user state")
	return nil
}

// Restore replays a snapshot file. Items are located by their persisted
// provider ids; entries with no surviving match are logged and skipped.
func (b *Backup) Restore(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	var apply func(ctx context.Context, userID, itemID string) error
	switch snapshot.Filter {
	case FilterPlayed:
		apply = b.server.SetPlayed
	case FilterFavorite:
		apply = b.server.SetFavorite
	default:
		return fmt.Errorf("unknown snapshot filter %q", snapshot.Filter)
	}

	restored, missing := 0, 0
	for _, entry := range snapshot.Items {
		itemID, err := b.findItem(ctx, snapshot.UserID, entry)
		if err != nil {
			return err
		}
		if itemID == "" {
			missing++
			b.logger.Warn().Str("item", entry.Name).Msg("No library match for snapshot entry")
			continue
		}
		if err := apply(ctx, snapshot.UserID, itemID); err != nil {
			b.logger.Warn().Err(err).Str("item", entry.Name).Msg("Failed to restore item state")
			continue
		}
		restored++
	}

	b.logger.Info().
		Str("user", snapshot.UserName).
		Str("filter", snapshot.Filter).
		Int("restored", restored).
		Int("missing", missing).
		Msg("Restored user state")
	return nil
}

func (b *Backup) findItem(ctx context.Context, userID string, entry SnapshotItem) (string, error) {
	query := providerQuery(entry.ProviderIDs)
	if len(query) == 0 {
		return "", nil
	}

	items, err := b.server.Items(ctx, emby.ItemsQuery{
		UserID:              userID,
		AnyProviderIDEquals: query,
		Limit:               1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up %q: %w", entry.Name, err)
	}
	if len(items) == 0 {
		return "", nil
	}
	return items[0].ID, nil
}

// providerQuery builds AnyProviderIdEquals terms from a provider id map.
func providerQuery(providerIDs map[string]string) []string {
	var terms []string
	for key, value := range providerIDs {
		if value == "" {
			continue
		}
		terms = append(terms, strings.ToLower(key)+"."+value)
	}
	return terms
}

func filterProviderIDs(providerIDs map[string]string) map[string]string {
	kept := map[string]string{}
	for _, key := range providerKeys {
		if v, ok := providerIDs[key]; ok && v != "" {
			kept[key] = v
		}
	}
	return kept
}

func sanitize(name string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_")
	return replacer.Replace(name)
}
