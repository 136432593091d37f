// Package mdblist is a client for the MDBList API, the list provider whose
// lists drive collection membership.
package mdblist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/collectarr/collectarr/internal/config"
)

var (
	ErrAPIKeyMissing = errors.New("MDBList API key is not configured")
	// ErrNoResponse means the provider returned an empty body; the caller
	// should skip the list rather than abort the pass.
	ErrNoResponse = errors.New("no response from MDBList")
	// ErrEmptyList means resolution produced zero external ids.
	ErrEmptyList = errors.New("list contains no items")
	// ErrNotFound means a name/owner lookup matched nothing.
	ErrNotFound = errors.New("list not found")
	ErrAPIError = errors.New("MDBList API error")
)

// Client is an MDBList API client.
type Client struct {
	httpClient *http.Client
	cfg        config.MDBListConfig
	logger     zerolog.Logger
}

// NewClient creates a new MDBList client.
func NewClient(cfg config.MDBListConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		cfg:    cfg,
		logger: logger.With().Str("component", "mdblist").Logger(),
	}
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.cfg.APIKey != ""
}

// UserInfo fetches the account limits for the configured key. Used as a
// startup connectivity check.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	var info UserInfo
	if err := c.get(ctx, c.endpoint("/user"), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MyLists returns every list owned by the account, in provider order.
func (c *Client) MyLists(ctx context.Context) ([]ListInfo, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	var lists []ListInfo
	if err := c.get(ctx, c.endpoint("/lists/user/"), &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// TopLists returns the provider's most liked public lists.
func (c *Client) TopLists(ctx context.Context) ([]ListInfo, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	var lists []ListInfo
	if err := c.get(ctx, c.endpoint("/lists/top"), &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// SearchLists searches public lists by title.
func (c *Client) SearchLists(ctx context.Context, query string) ([]ListInfo, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := c.endpoint("/lists/search")
	endpoint += "&query=" + url.QueryEscape(query)

	var lists []ListInfo
	if err := c.get(ctx, endpoint, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// FindListID resolves a public list by title and owner. The owner match is
// case-insensitive and exact; when several lists remain the first one wins
// with a warning.
func (c *Client) FindListID(ctx context.Context, listName, userName string) (int, error) {
	lists, err := c.SearchLists(ctx, listName)
	if err != nil {
		return 0, err
	}

	var matches []ListInfo
	for _, l := range lists {
		if strings.EqualFold(l.UserName, userName) {
			matches = append(matches, l)
		}
	}

	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: %q by user %q", ErrNotFound, listName, userName)
	}
	if len(matches) > 1 {
		c.logger.Warn().
			Str("list", listName).
			Str("user", userName).
			Int("matches", len(matches)).
			Msg("Multiple lists matched, using the first one")
	}
	return matches[0].ID, nil
}

// ListInfoByID fetches list metadata by id.
func (c *Client) ListInfoByID(ctx context.Context, listID int) (*ListInfo, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	var lists []ListInfo
	if err := c.get(ctx, c.endpoint("/lists/"+strconv.Itoa(listID)), &lists); err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("%w: list id %d", ErrNotFound, listID)
	}
	return &lists[0], nil
}

// ListInfoByURL fetches list metadata for a public list URL of the form
// https://mdblist.com/lists/{username}/{slug}.
func (c *Client) ListInfoByURL(ctx context.Context, listURL string) (*ListInfo, error) {
	trimmed := strings.TrimPrefix(listURL, "https://mdblist.com/lists/")
	trimmed = strings.TrimSuffix(trimmed, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: URL %q is not a public list URL", ErrNotFound, listURL)
	}

	var lists []ListInfo
	endpoint := c.endpoint("/lists/" + url.PathEscape(parts[0]) + "/" + url.PathEscape(parts[1]))
	if err := c.get(ctx, endpoint, &lists); err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("%w: URL %q", ErrNotFound, listURL)
	}
	return &lists[0], nil
}

// ListItems fetches every item of a list by id, page by page until the
// provider signals no further pages via the X-Has-More header.
func (c *Client) ListItems(ctx context.Context, listID int) ([]ListItem, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var all []ListItem
	offset := 0
	for {
		endpoint := fmt.Sprintf("%s&limit=%d&offset=%d",
			c.endpoint("/lists/"+strconv.Itoa(listID)+"/items/"), pageSize, offset)

		var page itemsResponse
		hasMore, err := c.getPage(ctx, endpoint, &page)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Movies...)
		all = append(all, page.Shows...)

		if !hasMore {
			break
		}
		offset += pageSize
	}

	c.logger.Debug().Int("listId", listID).Int("items", len(all)).Msg("Fetched list items")
	return all, nil
}

// ListItemsByURL fetches a public list by its URL, using the provider's
// convention that appending /json yields the machine-readable form.
func (c *Client) ListItemsByURL(ctx context.Context, listURL string) ([]ListItem, error) {
	normalized := NormalizeListURL(listURL)

	var items []ListItem
	if err := c.get(ctx, normalized, &items); err != nil {
		return nil, err
	}

	// An empty or private list comes back as a single error entry.
	if len(items) == 1 && items[0].Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyList, items[0].Error)
	}

	return items, nil
}

// NormalizeListURL converts a public list URL to its machine-readable form:
// any trailing slash or existing /json suffix is stripped before /json is
// appended.
func NormalizeListURL(listURL string) string {
	listURL = strings.TrimSuffix(listURL, "/json")
	listURL = strings.TrimSuffix(listURL, "/")
	return listURL + "/json"
}

// SplitSourceURLs reconstructs individual URLs from a comma-joined source
// field. The field is split on ",http" and the stripped prefix is restored,
// since the URLs themselves may contain commas.
func SplitSourceURLs(source string) []string {
	source = strings.ReplaceAll(source, " ", "")
	if source == "" {
		return nil
	}
	parts := strings.Split(source, ",http")
	urls := make([]string, 0, len(parts))
	urls = append(urls, parts[0])
	for _, p := range parts[1:] {
		urls = append(urls, "http"+p)
	}
	return urls
}

// Resolve fetches the desired external id set for a list spec, dispatching on
// its addressing mode. The returned ids are as provided, duplicates included;
// callers apply set semantics.
func (c *Client) Resolve(ctx context.Context, spec config.ListSpec) (*ResolvedList, error) {
	mode, err := spec.Mode()
	if err != nil {
		return nil, err
	}

	switch mode {
	case config.ModeListID:
		return c.resolveByID(ctx, spec.ID)

	case config.ModeNameUser:
		listID, err := c.FindListID(ctx, spec.ListName, spec.UserName)
		if err != nil {
			return nil, err
		}
		return c.resolveByID(ctx, listID)

	case config.ModeSourceURL:
		return c.resolveByURLs(ctx, SplitSourceURLs(spec.Source))

	default:
		return nil, config.ErrNoAddressingMode
	}
}

func (c *Client) resolveByID(ctx context.Context, listID int) (*ResolvedList, error) {
	items, err := c.ListItems(ctx, listID)
	if err != nil {
		return nil, err
	}

	resolved := &ResolvedList{ListID: listID}
	collectItems(resolved, items)

	if len(resolved.IMDBIDs) == 0 {
		return nil, fmt.Errorf("%w: list id %d", ErrEmptyList, listID)
	}

	// The list description is cosmetic; failing to fetch it does not fail
	// resolution.
	if info, err := c.ListInfoByID(ctx, listID); err == nil {
		resolved.Description = info.Description
	}

	return resolved, nil
}

func (c *Client) resolveByURLs(ctx context.Context, urls []string) (*ResolvedList, error) {
	resolved := &ResolvedList{}
	for _, u := range urls {
		items, err := c.ListItemsByURL(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", u, err)
		}
		collectItems(resolved, items)
	}

	if len(resolved.IMDBIDs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyList, strings.Join(urls, ", "))
	}

	if len(urls) > 0 {
		if info, err := c.ListInfoByURL(ctx, urls[0]); err == nil {
			resolved.ListID = info.ID
			resolved.Description = info.Description
		}
	}

	return resolved, nil
}

func collectItems(resolved *ResolvedList, items []ListItem) {
	for _, item := range items {
		if item.ImdbID == "" {
			continue
		}
		resolved.IMDBIDs = append(resolved.IMDBIDs, item.ImdbID)
		if item.MediaType != "" && !contains(resolved.MediaTypes, item.MediaType) {
			resolved.MediaTypes = append(resolved.MediaTypes, item.MediaType)
		}
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// endpoint builds an API URL with the key appended, ready for further
// query parameters joined with "&".
func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s%s?apikey=%s", c.cfg.BaseURL, path, url.QueryEscape(c.cfg.APIKey))
}

func (c *Client) get(ctx context.Context, reqURL string, result interface{}) error {
	_, err := c.getPage(ctx, reqURL, result)
	return err
}

// getPage performs one GET and reports whether the provider signalled more
// pages via X-Has-More.
func (c *Client) getPage(ctx context.Context, reqURL string, result interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", reqURL).Msg("HTTP request failed")
		return false, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return false, ErrNoResponse
	}

	if err := json.Unmarshal(body, result); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	hasMore := strings.EqualFold(resp.Header.Get("X-Has-More"), "true")
	return hasMore, nil
}
