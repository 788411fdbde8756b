package offline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	server    *httptest.Server
	base      *http.Transport
	transport *Transport
	client    *http.Client
	hits      atomic.Int32
}

func newTestEnv(t *testing.T, cache Cache) *testEnv {
	t.Helper()
	env := &testEnv{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>root</html>")
	})
	mux.HandleFunc("/api/manifest", func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		w.Header().Set("Content-Type", "application/manifest+json")
		_, _ = io.WriteString(w, `{"name":"TourCompanion"}`)
	})
	mux.HandleFunc("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		env.hits.Add(1)
		_, _ = io.WriteString(w, r.Method)
	})
	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)

	env.base = &http.Transport{}
	env.transport = NewTransport(env.base, cache, zaptest.NewLogger(t))
	env.client = &http.Client{Transport: env.transport}
	return env
}

func (e *testEnv) goOffline() {
	e.server.Close()
	e.base.CloseIdleConnections()
}

func get(t *testing.T, client *http.Client, url, accept string) (*http.Response, string, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body), nil
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body, err := get(t, env.client, env.server.URL+"/api/manifest", "")
	require.NoError(t, err)
	assert.False(t, FromCache(resp))
	assert.JSONEq(t, `{"name":"TourCompanion"}`, body)

	_, _, err = get(t, env.client, env.server.URL+"/api/manifest", "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, env.hits.Load())

	env.goOffline()

	resp, body, err = get(t, env.client, env.server.URL+"/api/manifest", "")
	require.NoError(t, err)
	assert.True(t, FromCache(resp))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"TourCompanion"}`, body)
}

func TestNavigationFallsBackToRootPage(t *testing.T) {
	env := newTestEnv(t, NewMemoryCache())
	require.NoError(t, env.transport.Precache(context.Background(), env.server.URL, PrecacheURLs))
	env.goOffline()

	resp, body, err := get(t, env.client, env.server.URL+"/client/abc", "text/html,application/xhtml+xml")
	require.NoError(t, err)
	assert.True(t, FromCache(resp))
	assert.Equal(t, "<html>root</html>", body)

	_, _, err = get(t, env.client, env.server.URL+"/api/unknown", "application/json")
	assert.Error(t, err)
}

func TestCacheIsScopedToCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	fetch := func(token string) (*http.Response, error) {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/manifest", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := env.client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return resp, err
	}

	_, err := fetch("alice")
	require.NoError(t, err)
	env.goOffline()

	resp, err := fetch("alice")
	require.NoError(t, err)
	assert.True(t, FromCache(resp))

	_, err = fetch("bob")
	assert.Error(t, err, "another token must not see alice's cached copy")
	_, err = fetch("")
	assert.Error(t, err)
}

func TestFailedResponsesAreNotCached(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _, err := get(t, env.client, env.server.URL+"/missing", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.goOffline()
	_, _, err = get(t, env.client, env.server.URL+"/missing", "")
	assert.Error(t, err)
}

func TestNonGetPassesThrough(t *testing.T) {
	cache := NewMemoryCache()
	env := newTestEnv(t, cache)

	resp, err := env.client.Post(env.server.URL+"/api/echo", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()

	_, ok := cache.Get(cacheKey(resp.Request))
	assert.False(t, ok)
}

func TestPrecacheReportsFailures(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.transport.Precache(context.Background(), env.server.URL, []string{"/", "/nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nope")
}

func TestDirCachePersists(t *testing.T) {
	dir := t.TempDir()
	first, err := NewDirCache(dir)
	require.NoError(t, err)
	require.NoError(t, first.Put("k", []byte("v1")))
	require.NoError(t, first.Put("k", []byte("v2")))

	second, err := NewDirCache(dir)
	require.NoError(t, err)
	raw, ok := second.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", string(raw))

	_, ok = second.Get("other")
	assert.False(t, ok)
}
