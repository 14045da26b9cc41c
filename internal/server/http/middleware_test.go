package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCORSMiddlewareProduction(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORSMiddleware("production", []string{"https://fidelity.example.com"})(next)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://fidelity.example.com")
	handler.ServeHTTP(rec, req)
	require.Equal(t, "https://fidelity.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	handler.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewareDevAllowsAnyOrigin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORSMiddleware("development", nil)(next)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	handler.ServeHTTP(rec, req)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	handler := CORSMiddleware("development", nil)(next)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/batch/start", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, called)
}

func TestListingCacheTTL(t *testing.T) {
	cache, err := NewListingCache(4, 20*time.Millisecond)
	require.NoError(t, err)

	cache.Put("blob://products/reference/", []string{"a", "b"})

	uris, ok := cache.Get("blob://products/reference/")
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, uris)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.Get("blob://products/reference/")
	require.False(t, ok)
}

func TestListingCacheInvalidate(t *testing.T) {
	cache, err := NewListingCache(4, time.Minute)
	require.NoError(t, err)

	cache.Put("p1", []string{"a"})
	cache.Invalidate()
	_, ok := cache.Get("p1")
	require.False(t, ok)
}
