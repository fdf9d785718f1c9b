package disk

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/callvault/callvault/internal/metrics"
)

// defaultSearchPageLimit is the page size for the fallback directory
// search and index walks.
const defaultSearchPageLimit = 500

// ResolveOptions carries the optional metadata hints for a lookup.
// Both fields may be empty; they only improve candidate quality.
type ResolveOptions struct {
	CallTime time.Time
	Phones   []string
}

// Resolve locates and downloads the recording named by id. Filename
// candidates are probed first, cheapest guess first; when all of them
// miss, the base directory is searched page by page for a name or
// path containing id.
//
// Transient errors while probing candidates are swallowed and probing
// continues: a cheap guess must not abort the whole lookup. The
// fallback search is the last resort, so its transport failures
// propagate as *IntegrationError.
func (c *Client) Resolve(ctx context.Context, id string, opts ResolveOptions) (*Recording, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	if !c.Configured() {
		log.Warn().Msg("storage credentials not configured, lookup skipped")
		return nil, ErrNotFound
	}

	candidates := c.Candidates(id, opts.CallTime, opts.Phones)
	log.Debug().Str("id", id).Strs("candidates", candidates).Msg("probing filename candidates")

	for _, name := range candidates {
		rec, err := c.downloadFile(ctx, name, "")
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				metrics.LinkMisses.Inc()
				continue
			}
			if ctx.Err() != nil {
				return nil, err
			}
			metrics.ProbeErrors.Inc()
			log.Warn().Err(err).Str("candidate", name).Msg("transient error probing candidate, trying next")
			continue
		}
		log.Info().Str("id", id).Str("file", name).Msg("recording found by candidate")
		metrics.ResolvedByCandidate.Inc()
		return rec, nil
	}

	log.Debug().Str("id", id).Msg("candidate probing exhausted, falling back to directory search")

	path, err := c.searchPath(ctx, id)
	if err != nil {
		return nil, err
	}
	if path == "" {
		log.Warn().Str("id", id).Str("dir", c.basePath).Msg("recording not found")
		metrics.ResolveNotFound.Inc()
		return nil, ErrNotFound
	}

	filename := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		filename = path[i+1:]
	}
	log.Info().Str("id", id).Str("file", filename).Msg("recording found by directory search")

	rec, err := c.downloadFile(ctx, filename, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.ResolveNotFound.Inc()
		}
		return nil, err
	}
	metrics.ResolvedBySearch.Inc()
	return rec, nil
}

// searchPath walks the base directory looking for a file whose raw or
// percent-decoded name or path contains id. The first match by page
// order wins. A page-level failure ends the walk empty-handed; only
// transport failures propagate.
func (c *Client) searchPath(ctx context.Context, id string) (string, error) {
	offset := 0

	for {
		page, err := c.FetchPage(ctx, offset, c.pageLimit)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", nil
			}
			return "", err
		}
		if len(page.Items) == 0 {
			log.Debug().Str("dir", c.basePath).Int("offset", offset).Msg("empty directory page")
		}

		for _, item := range page.Items {
			if item.Type != "file" {
				continue
			}
			if !matchesID(item, id) {
				continue
			}

			log.Debug().Str("file", item.Name).Str("id", id).Int("offset", offset).Msg("directory search hit")

			full := percentDecode(item.Path)
			if full == "" {
				full = item.Path
			}
			if full == "" {
				full = c.fullPath(item.Name)
			}
			return full, nil
		}

		if !page.HasMore {
			return "", nil
		}
		offset += c.pageLimit
	}
}

func matchesID(item Entry, id string) bool {
	if id == "" {
		return false
	}
	return strings.Contains(item.Name, id) ||
		strings.Contains(percentDecode(item.Name), id) ||
		strings.Contains(item.Path, id) ||
		strings.Contains(percentDecode(item.Path), id)
}

// percentDecode unescapes s, falling back to the raw string when the
// escaping is invalid.
func percentDecode(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
