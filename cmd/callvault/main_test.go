package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callvault/callvault/internal/cache"
	"github.com/callvault/callvault/internal/disk"
)

// testStore is a minimal remote store: a set of full paths with
// content, served through the download-link protocol.
type testStore struct {
	mu        sync.Mutex
	files     map[string][]byte
	linkCalls int
	srv       *httptest.Server
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	s := &testStore{files: map[string][]byte{}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/resources/download":
			s.mu.Lock()
			s.linkCalls++
			_, ok := s.files[r.URL.Query().Get("path")]
			s.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"href": s.srv.URL + "/content?path=" + r.URL.Query().Get("path"),
			})
		case "/content":
			s.mu.Lock()
			content, ok := s.files[r.URL.Query().Get("path")]
			s.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(content)
		case "/resources":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"_embedded": map[string]any{"items": []any{}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *testStore) client() *disk.Client {
	return disk.New(disk.Config{BaseURL: s.srv.URL, OAuthToken: "t"})
}

func newMemCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(cache.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLookupUsesCachedPath(t *testing.T) {
	store := newTestStore(t)
	store.files["/mango_data/deep/x_rec42.mp3"] = []byte("cached-hit")

	c := newMemCache(t)
	c.SavePath("rec42", "/mango_data/deep/x_rec42.mp3")

	rec, err := lookupRecording(context.Background(), store.client(), c, "rec42", disk.ResolveOptions{}, false)
	require.NoError(t, err)

	assert.Equal(t, []byte("cached-hit"), rec.Content)
	assert.Equal(t, 1, store.linkCalls, "cached path skips candidate probing")
}

func TestLookupEvictsStalePath(t *testing.T) {
	store := newTestStore(t)
	store.files["/mango_data/rec42.mp3"] = []byte("fresh")

	c := newMemCache(t)
	c.SavePath("rec42", "/mango_data/old-location.mp3")

	rec, err := lookupRecording(context.Background(), store.client(), c, "rec42", disk.ResolveOptions{}, false)
	require.NoError(t, err)

	assert.Equal(t, []byte("fresh"), rec.Content)
	assert.Equal(t, "/mango_data/rec42.mp3", c.GetPath("rec42"), "stale entry replaced by the resolved path")
}

func TestLookupSavesResolvedPath(t *testing.T) {
	store := newTestStore(t)
	store.files["/mango_data/rec42.ogg"] = []byte("audio")

	c := newMemCache(t)

	rec, err := lookupRecording(context.Background(), store.client(), c, "rec42", disk.ResolveOptions{}, false)
	require.NoError(t, err)

	assert.Equal(t, "rec42.ogg", rec.Filename)
	assert.Equal(t, "/mango_data/rec42.ogg", c.GetPath("rec42"))
}

func TestLookupNotFound(t *testing.T) {
	store := newTestStore(t)
	c := newMemCache(t)

	_, err := lookupRecording(context.Background(), store.client(), c, "nothing", disk.ResolveOptions{}, false)
	require.ErrorIs(t, err, disk.ErrNotFound)
	assert.Empty(t, c.GetPath("nothing"))
}

func TestLookupSkipCache(t *testing.T) {
	store := newTestStore(t)
	store.files["/mango_data/rec42.mp3"] = []byte("direct")

	c := newMemCache(t)
	c.SavePath("rec42", "/mango_data/poisoned.mp3")

	rec, err := lookupRecording(context.Background(), store.client(), c, "rec42", disk.ResolveOptions{}, true)
	require.NoError(t, err)

	assert.Equal(t, []byte("direct"), rec.Content)
	assert.Equal(t, "/mango_data/poisoned.mp3", c.GetPath("rec42"), "skip-cache leaves the cache untouched")
}
