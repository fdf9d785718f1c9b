// Package cache stores identifier→remote-path and identifier→external
// reference mappings in an embedded BadgerDB. The cache is strictly an
// optimization: with no backend configured every operation is a no-op,
// and backend failures degrade to misses with a logged warning. They
// never reach callers.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/callvault/callvault/internal/guard"
	"github.com/callvault/callvault/internal/metrics"
)

const (
	pathKeyPrefix = "rec:path:"
	refKeyPrefix  = "rec:ref:"
)

// Config holds configuration for the cache backend.
type Config struct {
	// Dir is the BadgerDB directory. Empty means the cache is
	// disabled (unless InMemory is set).
	Dir string

	// InMemory opens a non-persistent backend. Used in tests.
	InMemory bool

	// RefTTL is the expiry for reference entries. Zero means no
	// expiry. Path entries never expire: remote paths are stable.
	RefTTL time.Duration
}

// Cache is the path/reference cache. The zero-value-like disabled
// form (no backend) is valid and fully functional as a no-op.
type Cache struct {
	db     *badger.DB
	refTTL time.Duration

	jobs *guard.Guard // single-flight for the reindex walk
}

// Open creates a cache. An empty Dir with InMemory unset yields a
// disabled cache where every operation is a miss/no-op.
func Open(cfg Config) (*Cache, error) {
	c := &Cache{
		refTTL: cfg.RefTTL,
		jobs:   guard.New(),
	}

	if cfg.Dir == "" && !cfg.InMemory {
		log.Debug().Msg("cache backend not configured, running without cache")
		return c, nil
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache backend: %w", err)
	}
	c.db = db
	return c, nil
}

// Enabled reports whether a backend is configured.
func (c *Cache) Enabled() bool {
	return c.db != nil
}

// Close releases the backend. Safe on a disabled cache.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func pathKey(id string) string { return pathKeyPrefix + id }
func refKey(id string) string  { return refKeyPrefix + id }

// GetPath returns the cached remote path for id, or "" on a miss.
func (c *Cache) GetPath(id string) string {
	return c.get("path", pathKey(id))
}

// SavePath stores the remote path for id. Path entries do not expire.
func (c *Cache) SavePath(id, path string) {
	c.set("path", pathKey(id), path, 0)
}

// DeletePath evicts the cached path for id.
func (c *Cache) DeletePath(id string) {
	c.delete("path", pathKey(id))
}

// GetRef returns the cached external reference for id, or "" on a
// miss (including an expired entry).
func (c *Cache) GetRef(id string) string {
	return c.get("ref", refKey(id))
}

// SaveRef stores the external reference for id, with the TTL fixed at
// construction time.
func (c *Cache) SaveRef(id, ref string) {
	c.set("ref", refKey(id), ref, c.refTTL)
}

// DeleteRef evicts the cached reference for id.
func (c *Cache) DeleteRef(id string) {
	c.delete("ref", refKey(id))
}

// get reads one key best-effort: a missing key, a disabled backend
// and a backend failure all come back as "".
func (c *Cache) get(keyspace, key string) string {
	if c.db == nil {
		return ""
	}

	var value string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = string(v)
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			metrics.CacheMisses.WithLabelValues(keyspace).Inc()
			return ""
		}
		metrics.CacheBackendErrors.Inc()
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		return ""
	}

	metrics.CacheHits.WithLabelValues(keyspace).Inc()
	return value
}

func (c *Cache) set(keyspace, key, value string, ttl time.Duration) {
	if c.db == nil {
		return
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(value))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		metrics.CacheBackendErrors.Inc()
		log.Warn().Err(err).Str("key", key).Str("keyspace", keyspace).Msg("cache write failed, skipping")
	}
}

func (c *Cache) delete(keyspace, key string) {
	if c.db == nil {
		return
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		metrics.CacheBackendErrors.Inc()
		log.Warn().Err(err).Str("key", key).Str("keyspace", keyspace).Msg("cache delete failed, skipping")
	}
}
