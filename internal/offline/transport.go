// Package offline gives HTTP clients service-worker style caching: GETs go to
// the network first, successful responses are kept, and failures fall back to
// the cached copy or, for page navigations, to the cached root page.
package offline

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const CacheName = "tourcompanion-v1"

// PrecacheURLs are warmed by Precache.
var PrecacheURLs = []string{"/", "/api/manifest"}

const cacheHeader = "X-Offline-Cache"

type Transport struct {
	Base   http.RoundTripper
	Cache  Cache
	Logger *zap.Logger
}

func NewTransport(base http.RoundTripper, cache Cache, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{Base: base, Cache: cache, Logger: logger}
}

func urlKey(u *url.URL) string {
	clean := *u
	clean.Fragment = ""
	return CacheName + " " + clean.String()
}

// cacheKey scopes entries to the request's credentials so one token's
// responses are never replayed to another.
func cacheKey(req *http.Request) string {
	key := urlKey(req.URL)
	if authz := req.Header.Get("Authorization"); authz != "" {
		sum := sha256.Sum256([]byte(authz))
		key += " " + hex.EncodeToString(sum[:8])
	}
	return key
}

// rootKey is the public app shell, shared by every session.
func rootKey(u *url.URL) string {
	return urlKey(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"})
}

func isNavigation(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func isStream(req *http.Request, resp *http.Response) bool {
	if strings.Contains(req.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	return resp != nil && strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.Base.RoundTrip(req)
	}

	resp, err := t.Base.RoundTrip(req)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 && !isStream(req, resp) {
			t.store(req, resp)
		}
		return resp, nil
	}
	if isStream(req, nil) {
		return nil, err
	}

	if cached, ok := t.lookup(cacheKey(req), req); ok {
		t.Logger.Debug("serving cached response", zap.String("url", req.URL.String()), zap.Error(err))
		return cached, nil
	}
	if isNavigation(req) {
		if cached, ok := t.lookup(rootKey(req.URL), req); ok {
			t.Logger.Debug("serving cached root page", zap.String("url", req.URL.String()))
			return cached, nil
		}
	}
	return nil, err
}

func (t *Transport) store(req *http.Request, resp *http.Response) {
	raw, err := httputil.DumpResponse(resp, true)
	if err != nil {
		t.Logger.Warn("could not buffer response for cache", zap.String("url", req.URL.String()), zap.Error(err))
		return
	}
	if err := t.Cache.Put(cacheKey(req), raw); err != nil {
		t.Logger.Warn("cache write failed", zap.String("url", req.URL.String()), zap.Error(err))
	}
}

func (t *Transport) lookup(key string, req *http.Request) (*http.Response, bool) {
	raw, ok := t.Cache.Get(key)
	if !ok {
		return nil, false
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), req)
	if err != nil {
		t.Logger.Warn("discarding unreadable cache entry", zap.Error(err))
		return nil, false
	}
	resp.Header.Set(cacheHeader, "hit")
	return resp, true
}

// FromCache reports whether resp was served from the offline cache.
func FromCache(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(cacheHeader) == "hit"
}

// Precache fetches each path relative to baseURL so it is available offline.
func (t *Transport) Precache(ctx context.Context, baseURL string, paths []string) error {
	base, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	client := &http.Client{Transport: t}

	var errs []error
	for _, path := range paths {
		target := base.ResolveReference(&url.URL{Path: path})
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			errs = append(errs, fmt.Errorf("precache %s: %w", path, err))
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			errs = append(errs, fmt.Errorf("precache %s: status %d", path, resp.StatusCode))
		}
	}
	return errors.Join(errs...)
}
