// Package disk implements a client for a remote disk-style object
// store exposing a REST resource API. Recordings are located by
// probing heuristically generated filename candidates and, failing
// that, by walking the base directory page by page. Downloads go
// through a two-step protocol: request a short-lived signed link,
// then fetch the content from it.
package disk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the production resource API endpoint.
	DefaultBaseURL = "https://cloud-api.yandex.net/v1/disk"

	// DefaultBasePath is the directory that holds call recordings.
	DefaultBasePath = "/mango_data/"

	// transportAttempts bounds retries of connection-level failures
	// before an error is surfaced.
	transportAttempts = 3

	retryBackoff = 100 * time.Millisecond
)

// Config holds the configuration for the store client.
type Config struct {
	BaseURL         string         // API endpoint (defaults to DefaultBaseURL, override for testing)
	BasePath        string         // recordings directory (defaults to DefaultBasePath)
	OAuthToken      string         // preferred credential
	Login           string         // Basic auth fallback
	Password        string
	Location        *time.Location // time zone for timestamped candidates (defaults to UTC)
	Timeout         time.Duration  // HTTP timeout (defaults to 120s)
	MaxDownloadSize int64          // reject larger payloads; 0 = unlimited
	SearchPageLimit int            // fallback search page size (defaults to 500)
}

// Recording is a downloaded call recording. It is request-scoped and
// never persisted.
type Recording struct {
	Filename    string
	Content     []byte
	ContentType string
	Path        string // resolved remote path
}

// Client talks to the remote store. All operations are read-only.
type Client struct {
	baseURL    string
	basePath   string
	authHeader string
	loc        *time.Location
	maxSize    int64
	pageLimit  int
	client     *http.Client
}

// New creates a store client. Credentials may be absent; the client is
// then unconfigured and every lookup fails fast with ErrNotFound.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SearchPageLimit == 0 {
		cfg.SearchPageLimit = defaultSearchPageLimit
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		basePath:   normalizePath(cfg.BasePath),
		authHeader: buildAuthHeader(cfg),
		loc:        cfg.Location,
		maxSize:    cfg.MaxDownloadSize,
		pageLimit:  cfg.SearchPageLimit,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// normalizePath ensures the base path has the "/dir/" shape.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}

func buildAuthHeader(cfg Config) string {
	if cfg.OAuthToken != "" {
		return "OAuth " + cfg.OAuthToken
	}
	if cfg.Login != "" && cfg.Password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(cfg.Login + ":" + cfg.Password))
		return "Basic " + token
	}
	return ""
}

// Configured reports whether any access credential is present.
func (c *Client) Configured() bool {
	return c.authHeader != ""
}

// BasePath returns the normalized recordings directory.
func (c *Client) BasePath() string {
	return c.basePath
}

func (c *Client) fullPath(filename string) string {
	return strings.TrimSuffix(c.basePath, "/") + "/" + filename
}

// DownloadByPath fetches a recording at a known remote path, skipping
// candidate probing. Used after cache hits.
func (c *Client) DownloadByPath(ctx context.Context, path string) (*Recording, error) {
	filename := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		filename = path[i+1:]
	}
	return c.downloadFile(ctx, filename, path)
}

// downloadFile runs the two-step download protocol for one filename.
// An empty explicitPath means the file is expected directly under the
// base path. A 404 on the link step is a normal miss (ErrNotFound);
// connection-level failures surface as *IntegrationError.
func (c *Client) downloadFile(ctx context.Context, filename, explicitPath string) (*Recording, error) {
	path := explicitPath
	if path == "" {
		path = c.fullPath(filename)
	}

	href, err := c.requestDownloadLink(ctx, path)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("file", filename).Msg("download link acquired, fetching content")

	resp, err := c.getWithRetry(ctx, href, false)
	if err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("content fetch failed")
		return nil, &IntegrationError{Op: "download", Path: path, Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("file", filename).Msg("unexpected status fetching content")
		return nil, ErrNotFound
	}

	content, err := c.readBody(resp.Body)
	if err != nil {
		if err == errTooLarge {
			log.Warn().Str("file", filename).Int64("max_bytes", c.maxSize).Msg("recording exceeds download size cap")
			return nil, ErrNotFound
		}
		return nil, &IntegrationError{Op: "download", Path: path, Retryable: true, Err: err}
	}

	return &Recording{
		Filename:    filename,
		Content:     content,
		ContentType: resp.Header.Get("Content-Type"),
		Path:        path,
	}, nil
}

var errTooLarge = fmt.Errorf("response exceeds size cap")

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.maxSize <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, c.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxSize {
		return nil, errTooLarge
	}
	return body, nil
}

// requestDownloadLink asks the store for a short-lived signed URL for
// path. 404 means the file does not exist and maps to ErrNotFound.
func (c *Client) requestDownloadLink(ctx context.Context, path string) (string, error) {
	u := c.baseURL + "/resources/download?path=" + url.QueryEscape(path)

	resp, err := c.getWithRetry(ctx, u, true)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("download-link request failed")
		return "", &IntegrationError{Op: "download-link", Path: path, Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var link struct {
			Href string `json:"href"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
			return "", &IntegrationError{Op: "download-link", Path: path, Err: fmt.Errorf("decode response: %w", err)}
		}
		if link.Href == "" {
			log.Warn().Str("path", path).Msg("download-link response without href")
			return "", ErrNotFound
		}
		return link.Href, nil

	case http.StatusNotFound:
		log.Debug().Str("path", path).Msg("file not found (404)")
		return "", ErrNotFound

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		log.Warn().Int("status", resp.StatusCode).Str("path", path).Str("body", string(body)).Msg("unexpected download-link status")
		return "", ErrNotFound
	}
}

// getWithRetry performs a GET, retrying connection-level failures up
// to transportAttempts times with a short backoff. HTTP error statuses
// are returned to the caller untouched.
func (c *Client) getWithRetry(ctx context.Context, rawURL string, withAuth bool) (*http.Response, error) {
	backoff := retryBackoff
	var lastErr error

	for attempt := 1; attempt <= transportAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if withAuth && c.authHeader != "" {
			req.Header.Set("Authorization", c.authHeader)
		}

		resp, err := c.client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == transportAttempts {
			break
		}

		log.Debug().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", transportAttempts).
			Msg("transport error, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("after %d attempts: %w", transportAttempts, lastErr)
}
