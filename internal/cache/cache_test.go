package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	cfg.InMemory = true
	c, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPathRoundTrip(t *testing.T) {
	c := newTestCache(t, Config{})

	assert.Empty(t, c.GetPath("rec42"), "cold cache must miss")

	c.SavePath("rec42", "/p")
	assert.Equal(t, "/p", c.GetPath("rec42"))

	c.DeletePath("rec42")
	assert.Empty(t, c.GetPath("rec42"))
}

func TestRefRoundTrip(t *testing.T) {
	c := newTestCache(t, Config{})

	c.SaveRef("rec42", "msg-1001")
	assert.Equal(t, "msg-1001", c.GetRef("rec42"))

	c.DeleteRef("rec42")
	assert.Empty(t, c.GetRef("rec42"))
}

func TestKeyspacesAreIndependent(t *testing.T) {
	c := newTestCache(t, Config{})

	c.SavePath("rec42", "/p")
	assert.Empty(t, c.GetRef("rec42"))

	c.SaveRef("rec42", "msg-1001")
	c.DeletePath("rec42")
	assert.Equal(t, "msg-1001", c.GetRef("rec42"))
}

func TestRefExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("TTL expiry needs wall-clock time")
	}

	c := newTestCache(t, Config{RefTTL: time.Second})

	c.SaveRef("rec42", "msg-1001")
	c.SavePath("rec42", "/p")

	require.Equal(t, "msg-1001", c.GetRef("rec42"))

	time.Sleep(2100 * time.Millisecond)

	assert.Empty(t, c.GetRef("rec42"), "reference entry must expire")
	assert.Equal(t, "/p", c.GetPath("rec42"), "path entries never expire")
}

func TestDisabledCacheIsNoop(t *testing.T) {
	c, err := Open(Config{})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.False(t, c.Enabled())

	// Every operation must work without a backend.
	c.SavePath("rec42", "/p")
	assert.Empty(t, c.GetPath("rec42"))
	c.DeletePath("rec42")

	c.SaveRef("rec42", "msg")
	assert.Empty(t, c.GetRef("rec42"))
	c.DeleteRef("rec42")
}

func TestCloseIdempotentOnDisabled(t *testing.T) {
	c, err := Open(Config{})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
