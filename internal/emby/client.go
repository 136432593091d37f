// Package emby is a client for the Emby server REST API, wrapping the
// collection, library lookup and item update endpoints the reconciler needs.
package emby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/collectarr/collectarr/internal/config"
)

var (
	// ErrEmptyInput means a collection create was attempted with no seed
	// items; the server requires at least one member at creation.
	ErrEmptyInput = errors.New("cannot create collection without items")
	// ErrBatchFailed means a mutating batch call returned a non-success
	// status. Batches already applied are kept.
	ErrBatchFailed = errors.New("collection batch operation failed")
	ErrAPIError    = errors.New("Emby API error")
)

// Client is an Emby API client. All mutating calls are batched to a fixed
// size and paced by a fixed delay, purely to stay inside the server's
// informal rate tolerance.
type Client struct {
	httpClient *http.Client
	cfg        config.EmbyConfig
	logger     zerolog.Logger
	batchSize  int
	delay      time.Duration
}

// NewClient creates a new Emby client.
func NewClient(cfg config.EmbyConfig, logger zerolog.Logger) *Client {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		cfg:       cfg,
		logger:    logger.With().Str("component", "emby").Logger(),
		batchSize: batchSize,
		delay:     time.Duration(cfg.RequestDelaySeconds) * time.Second,
	}
}

// SystemInfo fetches server info. Used as a startup connectivity check.
func (c *Client) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.getJSON(ctx, c.cfg.ServerURL+"/emby/System/Info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Users lists all user accounts.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.getJSON(ctx, c.cfg.ServerURL+"/emby/Users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ItemsQuery describes a library items query. Zero values are omitted from
// the request.
type ItemsQuery struct {
	UserID              string // defaults to the configured user
	ParentID            string
	Fields              []string
	IncludeItemTypes    []string
	Filters             []string
	SortBy              string
	AnyProviderIDEquals []string
	Limit               int
	StartIndex          int
	// All pages through the results until the server runs out; otherwise a
	// single page is fetched.
	All bool
}

// Items runs a library items query, paginating until exhaustion when q.All
// is set.
func (c *Client) Items(ctx context.Context, q ItemsQuery) ([]Item, error) {
	userID := q.UserID
	if userID == "" {
		userID = c.cfg.UserID
	}
	limit := q.Limit
	if limit <= 0 {
		limit = c.batchSize
	}

	params := url.Values{}
	params.Set("Recursive", "true")
	params.Set("Limit", fmt.Sprintf("%d", limit))
	if len(q.Fields) > 0 {
		params.Set("Fields", strings.Join(q.Fields, ","))
	}
	if len(q.IncludeItemTypes) > 0 {
		params.Set("IncludeItemTypes", strings.Join(q.IncludeItemTypes, ","))
	}
	if len(q.Filters) > 0 {
		params.Set("Filters", strings.Join(q.Filters, ","))
	}
	if q.SortBy != "" {
		params.Set("SortBy", q.SortBy)
	}
	if q.ParentID != "" {
		params.Set("ParentId", q.ParentID)
	}
	if len(q.AnyProviderIDEquals) > 0 {
		params.Set("AnyProviderIdEquals", strings.Join(q.AnyProviderIDEquals, ","))
	}

	endpoint := fmt.Sprintf("%s/emby/Users/%s/Items", c.cfg.ServerURL, userID)

	var all []Item
	startIndex := q.StartIndex
	for {
		params.Set("StartIndex", fmt.Sprintf("%d", startIndex))

		var page itemsPage
		if err := c.getJSON(ctx, endpoint+"?"+params.Encode(), &page); err != nil {
			return nil, err
		}

		for i := range page.Items {
			page.Items[i].IMDB = normalizeIMDB(page.Items[i].ProviderIDs)
		}
		all = append(all, page.Items...)

		if !q.All || len(page.Items) < limit {
			break
		}
		startIndex += limit
		c.pause(ctx)
	}

	return all, nil
}

// Collections lists all collections on the server.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	items, err := c.Items(ctx, ItemsQuery{
		Fields:           []string{"ChildCount", "RecursiveItemCount"},
		IncludeItemTypes: []string{"boxset"},
		All:              true,
	})
	if err != nil {
		return nil, err
	}

	collections := make([]Collection, 0, len(items))
	for _, it := range items {
		collections = append(collections, Collection{ID: it.ID, Name: it.Name})
	}
	return collections, nil
}

// CollectionID finds a collection by exact name. The server does not enforce
// unique names; the first match is authoritative. Returns "" when absent.
func (c *Client) CollectionID(ctx context.Context, name string) (string, error) {
	collections, err := c.Collections(ctx)
	if err != nil {
		return "", err
	}
	for _, col := range collections {
		if col.Name == name {
			return col.ID, nil
		}
	}
	return "", nil
}

// ItemsInCollection lists the members of a collection with the requested
// fields populated. IMDB ids are normalized from the provider-id map.
func (c *Client) ItemsInCollection(ctx context.Context, collectionID string, fields []string) ([]Item, error) {
	return c.Items(ctx, ItemsQuery{
		ParentID: collectionID,
		Fields:   fields,
		All:      true,
	})
}

// CreateCollection creates a locked collection seeded with the given items.
// The server rejects empty collections, so at least one seed id is required.
func (c *Client) CreateCollection(ctx context.Context, name string, seedIDs []string) (string, error) {
	if len(seedIDs) == 0 {
		return "", ErrEmptyInput
	}

	params := url.Values{}
	params.Set("api_key", c.cfg.APIKey)
	params.Set("IsLocked", "true")
	params.Set("Name", name)
	params.Set("Ids", strings.Join(seedIDs, ","))

	endpoint := fmt.Sprintf("%s/Collections?%s", c.cfg.ServerURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: create collection %q returned status %d", ErrAPIError, name, resp.StatusCode)
	}

	var created createCollectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}

	c.logger.Info().Str("collection", name).Str("id", created.ID).Msg("Created collection")
	return created.ID, nil
}

// AddToCollection adds items to a collection in batches. Returns the number
// of items actually added; on a failed batch the remaining batches are
// abandoned and the applied count is returned with ErrBatchFailed.
func (c *Client) AddToCollection(ctx context.Context, collectionID string, itemIDs []string) (int, error) {
	return c.mutateCollection(ctx, collectionID, itemIDs, http.MethodPost)
}

// RemoveFromCollection removes items from a collection in batches, with the
// same partial-progress semantics as AddToCollection.
func (c *Client) RemoveFromCollection(ctx context.Context, collectionID string, itemIDs []string) (int, error) {
	return c.mutateCollection(ctx, collectionID, itemIDs, http.MethodDelete)
}

func (c *Client) mutateCollection(ctx context.Context, collectionID string, itemIDs []string, method string) (int, error) {
	if len(itemIDs) == 0 || collectionID == "" {
		return 0, nil
	}

	affected := 0
	batches := (len(itemIDs) + c.batchSize - 1) / c.batchSize

	c.logger.Debug().
		Str("collectionId", collectionID).
		Str("method", method).
		Int("items", len(itemIDs)).
		Int("batches", batches).
		Msg("Mutating collection membership")

	for i := 0; i < len(itemIDs); i += c.batchSize {
		end := i + c.batchSize
		if end > len(itemIDs) {
			end = len(itemIDs)
		}
		batch := itemIDs[i:end]

		params := url.Values{}
		params.Set("api_key", c.cfg.APIKey)
		params.Set("Ids", strings.Join(batch, ","))
		endpoint := fmt.Sprintf("%s/Collections/%s/Items?%s", c.cfg.ServerURL, collectionID, params.Encode())

		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return affected, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return affected, fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			return affected, fmt.Errorf("%w: status %d after %d of %d items", ErrBatchFailed, resp.StatusCode, affected, len(itemIDs))
		}

		affected += len(batch)
		c.pause(ctx)
	}

	return affected, nil
}

// ItemsWithProviderIDs resolves external IMDB ids to internal item ids via
// batched provider-id equality lookups. Results are de-duplicated by item
// name, not id, so the same title matched under different keys is added only
// once. Ids with no library match are dropped.
func (c *Client) ItemsWithProviderIDs(ctx context.Context, imdbIDs []string, mediaTypes []string) ([]string, error) {
	itemTypes := mapMediaTypes(mediaTypes)

	var resolved []string
	seenNames := map[string]struct{}{}

	for i := 0; i < len(imdbIDs); i += c.batchSize {
		end := i + c.batchSize
		if end > len(imdbIDs) {
			end = len(imdbIDs)
		}

		providerIDs := make([]string, 0, end-i)
		for _, id := range imdbIDs[i:end] {
			if id != "" {
				providerIDs = append(providerIDs, "imdb."+id)
			}
		}
		if len(providerIDs) == 0 {
			continue
		}

		items, err := c.Items(ctx, ItemsQuery{
			Fields:              []string{"ChildCount", "RecursiveItemCount"},
			IncludeItemTypes:    itemTypes,
			AnyProviderIDEquals: providerIDs,
			Limit:               c.batchSize,
		})
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if _, seen := seenNames[item.Name]; seen {
				continue
			}
			seenNames[item.Name] = struct{}{}
			resolved = append(resolved, item.ID)
		}

		c.pause(ctx)
	}

	return resolved, nil
}

// mapMediaTypes converts MDBList media types to Emby item types.
func mapMediaTypes(mediaTypes []string) []string {
	if len(mediaTypes) == 0 {
		return []string{"Movie", "Series"}
	}
	mapped := make([]string, 0, len(mediaTypes))
	for _, mt := range mediaTypes {
		switch strings.ToLower(mt) {
		case "tv", "show":
			mapped = append(mapped, "Series")
		case "movie":
			mapped = append(mapped, "Movie")
		case "episode":
			mapped = append(mapped, "Episode")
		default:
			mapped = append(mapped, mt)
		}
	}
	return mapped
}

// Item fetches a single item for the configured user.
func (c *Client) Item(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	endpoint := fmt.Sprintf("%s/emby/Users/%s/Items/%s", c.cfg.ServerURL, c.cfg.UserID, itemID)
	if err := c.getJSON(ctx, endpoint, &item); err != nil {
		return nil, err
	}
	item.IMDB = normalizeIMDB(item.ProviderIDs)
	return &item, nil
}

// SetItemProperty updates a single field of an item. The server's update
// endpoint replaces the whole item, so this is a read-modify-write of the raw
// representation. Setting ForcedSortName requires "SortName" in the item's
// LockedFields list or the server ignores the forced value.
func (c *Client) SetItemProperty(ctx context.Context, itemID, name string, value interface{}) error {
	endpoint := fmt.Sprintf("%s/emby/Users/%s/Items/%s", c.cfg.ServerURL, c.cfg.UserID, itemID)

	var raw map[string]interface{}
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return fmt.Errorf("failed to fetch item %s: %w", itemID, err)
	}

	raw[name] = value
	if name == "ForcedSortName" {
		raw["LockedFields"] = ensureLockedField(raw["LockedFields"], "SortName")
	}

	updateURL := fmt.Sprintf("%s/emby/Items/%s?api_key=%s", c.cfg.ServerURL, itemID, url.QueryEscape(c.cfg.APIKey))

	body, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, updateURL, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Emby-Token", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: update item %s returned status %d", ErrAPIError, itemID, resp.StatusCode)
	}

	c.logger.Debug().Str("itemId", itemID).Str("property", name).Msg("Updated item property")
	c.pause(ctx)
	return nil
}

// ensureLockedField appends field to the raw LockedFields list if missing.
func ensureLockedField(current interface{}, field string) []interface{} {
	locked, _ := current.([]interface{})
	for _, f := range locked {
		if s, ok := f.(string); ok && s == field {
			return locked
		}
	}
	return append(locked, field)
}

// ItemsStartingWithSortName scans movies and series in sort-name order and
// returns those whose sort name begins with prefix. The server cannot filter
// on sort name directly, so this pages through the sorted listing and stops
// at the first item past the prefix range.
func (c *Client) ItemsStartingWithSortName(ctx context.Context, prefix string) ([]Item, error) {
	var matched []Item
	startIndex := 0

	for {
		items, err := c.Items(ctx, ItemsQuery{
			Fields:           []string{"SortName"},
			IncludeItemTypes: []string{"Movie", "Series"},
			SortBy:           "SortName",
			Limit:            c.batchSize,
			StartIndex:       startIndex,
		})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return matched, nil
		}

		for _, item := range items {
			if !strings.HasPrefix(item.SortName, prefix) {
				// Sorted listing: once past the prefix nothing further
				// matches.
				return matched, nil
			}
			matched = append(matched, item)
		}

		startIndex += c.batchSize
		c.pause(ctx)
	}
}

// RefreshItem re-triggers a full metadata refresh for an item.
func (c *Client) RefreshItem(ctx context.Context, itemID string) error {
	endpoint := fmt.Sprintf("%s/emby/Items/%s/Refresh?api_key=%s&Recursive=true&MetadataRefreshMode=FullRefresh&ReplaceAllMetadata=true",
		c.cfg.ServerURL, itemID, url.QueryEscape(c.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	resp.Body.Close()

	c.pause(ctx)

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: refresh item %s returned status %d", ErrAPIError, itemID, resp.StatusCode)
	}
	return nil
}

// SetPlayed marks an item as played for a user.
func (c *Client) SetPlayed(ctx context.Context, userID, itemID string) error {
	return c.postUserItemState(ctx, userID, "PlayedItems", itemID)
}

// SetFavorite marks an item as a favorite for a user.
func (c *Client) SetFavorite(ctx context.Context, userID, itemID string) error {
	return c.postUserItemState(ctx, userID, "FavoriteItems", itemID)
}

func (c *Client) postUserItemState(ctx context.Context, userID, kind, itemID string) error {
	endpoint := fmt.Sprintf("%s/emby/Users/%s/%s/%s", c.cfg.ServerURL, userID, kind, itemID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Emby-Token", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: %s for item %s returned status %d", ErrAPIError, kind, itemID, resp.StatusCode)
	}
	return nil
}

// pause sleeps the configured inter-request delay, returning early if the
// context is cancelled.
func (c *Client) pause(ctx context.Context) {
	if c.delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.delay):
	}
}

func (c *Client) getJSON(ctx context.Context, reqURL string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Emby-Token", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", reqURL).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
