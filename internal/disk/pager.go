package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Entry is one item of a directory listing.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "file" or "dir"
}

// Page is one bounded slice of the base directory listing. HasMore is
// an approximation: true iff the page came back full. The provider
// gives no exact remaining count, so a trailing full page yields one
// extra (empty) fetch, so callers must tolerate empty pages mid-walk.
type Page struct {
	Items   []Entry
	HasMore bool
}

// FetchPage lists one page of the base directory. Non-200 responses
// and malformed bodies yield ErrNotFound for the page; connection
// failures after retries surface as *IntegrationError.
func (c *Client) FetchPage(ctx context.Context, offset, limit int) (*Page, error) {
	if !c.Configured() {
		return nil, ErrNotFound
	}

	u := fmt.Sprintf("%s/resources?path=%s&limit=%d&offset=%d",
		c.baseURL, url.QueryEscape(strings.TrimSuffix(c.basePath, "/")), limit, offset)

	log.Debug().Int("offset", offset).Int("limit", limit).Msg("fetching directory page")

	resp, err := c.getWithRetry(ctx, u, true)
	if err != nil {
		log.Warn().Err(err).Int("offset", offset).Msg("directory page request failed")
		return nil, &IntegrationError{Op: "list", Offset: offset, Limit: limit, Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		log.Warn().Int("status", resp.StatusCode).Int("offset", offset).Str("body", string(body)).Msg("unexpected directory listing status")
		return nil, ErrNotFound
	}

	var listing struct {
		Embedded *struct {
			Items []Entry `json:"items"`
		} `json:"_embedded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		log.Warn().Err(err).Int("offset", offset).Msg("malformed directory listing")
		return nil, ErrNotFound
	}
	if listing.Embedded == nil {
		log.Warn().Int("offset", offset).Msg("directory listing without _embedded")
		return nil, ErrNotFound
	}

	items := listing.Embedded.Items

	// Full page means there may be more. This is deliberately
	// approximate: the API does not report a remaining count.
	hasMore := len(items) >= limit

	return &Page{Items: items, HasMore: hasMore}, nil
}
