package cache

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/callvault/callvault/internal/disk"
	"github.com/callvault/callvault/internal/metrics"
)

// DefaultIndexPageLimit is the directory page size for index refresh
// walks.
const DefaultIndexPageLimit = 500

// indexJobKey is the task-guard key that serializes reindex walks.
const indexJobKey = "refresh-index"

// PageFetcher lists one directory page. *disk.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, offset, limit int) (*disk.Page, error)
}

// RefreshIndex rebuilds the identifier→path mapping by walking the
// whole recordings directory. At most one walk runs per process: a
// call that finds a walk already active returns 0 immediately with
// zero writes instead of queueing.
//
// Pages are fetched and written strictly sequentially. Each page's
// writes go into one atomic batch; a failed batch stops the walk and
// the count accumulated strictly before that page is returned.
func (c *Cache) RefreshIndex(ctx context.Context, client PageFetcher, limit int) int {
	if c.db == nil {
		log.Warn().Msg("cache backend not configured, index refresh skipped")
		return 0
	}
	if client == nil {
		log.Warn().Msg("no storage client, index refresh impossible")
		return 0
	}
	if limit <= 0 {
		limit = DefaultIndexPageLimit
	}

	if !c.jobs.Acquire(indexJobKey) {
		log.Warn().Msg("index refresh already running, skipping duplicate run")
		metrics.ReindexSkipped.Inc()
		return 0
	}
	defer c.jobs.Release(indexJobKey)

	runID := uuid.NewString()
	log.Info().Str("run_id", runID).Int("limit", limit).Msg("index refresh started")
	metrics.ReindexInFlight.Set(1)
	defer metrics.ReindexInFlight.Set(0)

	offset := 0
	total := 0

	for {
		page, err := client.FetchPage(ctx, offset, limit)
		if err != nil {
			// Both a bad page and a transport failure end the
			// walk; housekeeping must not take the process down.
			log.Warn().Err(err).Str("run_id", runID).Int("offset", offset).Msg("index refresh stopped at failed page")
			break
		}

		if len(page.Items) == 0 {
			if !page.HasMore {
				break
			}
			offset += limit
			continue
		}

		added, err := c.writePage(page.Items)
		if err != nil {
			log.Warn().Err(err).Str("run_id", runID).Int("offset", offset).Msg("index refresh stopped at failed batch write")
			break
		}
		total += added

		if !page.HasMore {
			break
		}
		offset += limit
	}

	log.Info().Str("run_id", runID).Int("entries", total).Msg("index refresh finished")
	metrics.ReindexRuns.Inc()
	metrics.ReindexEntries.Add(float64(total))
	return total
}

// writePage stores one page's id→path pairs in a single write batch.
func (c *Cache) writePage(items []disk.Entry) (int, error) {
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	added := 0
	for _, item := range items {
		if item.Type != "file" {
			continue
		}
		id := ExtractRecordingID(item.Name)
		if id == "" || item.Path == "" {
			continue
		}
		if err := wb.Set([]byte(pathKey(id)), []byte(item.Path)); err != nil {
			metrics.CacheBackendErrors.Inc()
			return 0, err
		}
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := wb.Flush(); err != nil {
		metrics.CacheBackendErrors.Inc()
		return 0, err
	}
	return added, nil
}

// ExtractRecordingID derives the recording identifier from an
// exported filename: the extension is stripped and the token after
// the last underscore is the id. Returns "" when nothing is left.
func ExtractRecordingID(filename string) string {
	if filename == "" {
		return ""
	}
	base := filename
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	if i := strings.LastIndex(base, "_"); i >= 0 {
		base = base[i+1:]
	}
	return base
}
