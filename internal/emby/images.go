package emby

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// imageExtensions are the local file types accepted as primary images.
var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tbn":  "image/jpeg",
}

// SetImage sets the primary image of an item. Source may be an http(s) URL,
// which the server downloads itself, or a local file path uploaded as base64.
func (c *Client) SetImage(ctx context.Context, itemID, source string) error {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return c.setImageFromURL(ctx, itemID, source)
	}
	return c.setImageFromFile(ctx, itemID, source)
}

func (c *Client) setImageFromURL(ctx context.Context, itemID, imageURL string) error {
	endpoint := fmt.Sprintf("%s/emby/Items/%s/RemoteImages/Download?api_key=%s",
		c.cfg.ServerURL, itemID, url.QueryEscape(c.cfg.APIKey))

	payload, err := json.Marshal(map[string]string{
		"Type":         "Primary",
		"ProviderName": "",
		"ImageUrl":     imageURL,
	})
	if err != nil {
		return fmt.Errorf("failed to encode image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: remote image download for item %s returned status %d", ErrAPIError, itemID, resp.StatusCode)
	}

	c.logger.Debug().Str("itemId", itemID).Str("url", imageURL).Msg("Set remote image")
	return nil
}

func (c *Client) setImageFromFile(ctx context.Context, itemID, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	contentType, ok := imageExtensions[ext]
	if !ok {
		return fmt.Errorf("%w: unsupported image type %q", ErrAPIError, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)

	endpoint := fmt.Sprintf("%s/emby/Items/%s/Images/Primary?api_key=%s",
		c.cfg.ServerURL, itemID, url.QueryEscape(c.cfg.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: image upload for item %s returned status %d", ErrAPIError, itemID, resp.StatusCode)
	}

	c.logger.Debug().Str("itemId", itemID).Str("path", path).Msg("Uploaded local image")
	return nil
}
