package locsearch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safezone-api-server/config"
	"safezone-api-server/pkg/e"
)

const kandyResponse = `[
  {"display_name":"Kandy, Central Province, Sri Lanka","lat":"7.2906","lon":"80.6337","type":"city",
   "address":{"city":"Kandy","state_district":"Kandy District","state":"Central Province"}},
  {"display_name":"broken","lat":"n/a","lon":"80","type":"x","address":{}}
]`

func newClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(config.LocationSearchConfig{
		BaseURL:      srv.URL,
		UserAgent:    "test-agent",
		CountryCodes: "lk",
		CacheSize:    2,
		CacheTTL:     time.Hour,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return c, &calls
}

func TestSearch_ParsesAndCaches(t *testing.T) {
	c, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "kandy", r.URL.Query().Get("q"))
		assert.Equal(t, "lk", r.URL.Query().Get("countrycodes"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(kandyResponse))
	})
	ctx := context.Background()

	places, err := c.Search(ctx, "  Kandy ")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Kandy", places[0].City)
	assert.Equal(t, "Kandy", places[0].District)
	assert.Equal(t, "Central Province", places[0].Province)
	assert.InDelta(t, 7.2906, places[0].Lat, 1e-9)

	_, err = c.Search(ctx, "KANDY")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestSearch_CallersCannotCorruptCache(t *testing.T) {
	c, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(kandyResponse))
	})
	ctx := context.Background()

	first, err := c.Search(ctx, "kandy")
	require.NoError(t, err)
	first[0].DisplayName = "tampered"

	second, err := c.Search(ctx, "kandy")
	require.NoError(t, err)
	assert.Equal(t, "Kandy, Central Province, Sri Lanka", second[0].DisplayName)
	second[0].Lat = 0

	third, err := c.Search(ctx, "kandy")
	require.NoError(t, err)
	assert.InDelta(t, 7.2906, third[0].Lat, 1e-9)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestSearch_CacheIsBounded(t *testing.T) {
	c, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	ctx := context.Background()

	for _, q := range []string{"galle", "matara", "jaffna", "galle"} {
		_, err := c.Search(ctx, q)
		require.NoError(t, err)
	}
	// galle was evicted by jaffna, so it is fetched twice.
	assert.EqualValues(t, 4, atomic.LoadInt32(calls))
	assert.Equal(t, 2, c.cache.Len())
}

func TestSearch_Errors(t *testing.T) {
	c, calls := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	ctx := context.Background()

	_, err := c.Search(ctx, "x")
	assert.True(t, errors.Is(err, e.ErrInvalidArgument))
	assert.EqualValues(t, 0, atomic.LoadInt32(calls))

	_, err = c.Search(ctx, "colombo")
	assert.True(t, errors.Is(err, e.ErrStorageUnavailable))

	// Failures are not cached.
	_, _ = c.Search(ctx, "colombo")
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}
