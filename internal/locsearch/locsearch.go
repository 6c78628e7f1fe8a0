// Package locsearch resolves place names in Sri Lanka to coordinates through
// a Nominatim compatible geocoder. Answers are kept in a bounded TTL cache.
package locsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"safezone-api-server/config"
	"safezone-api-server/internal/cache"
	"safezone-api-server/internal/metrics"
	"safezone-api-server/pkg/e"
)

const maxResults = 5

type Place struct {
	DisplayName string  `json:"displayName"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Type        string  `json:"type"`
	City        string  `json:"city,omitempty"`
	District    string  `json:"district,omitempty"`
	Province    string  `json:"province,omitempty"`
}

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Type        string `json:"type"`
	Address     struct {
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		StateDistrict string `json:"state_district"`
		County        string `json:"county"`
		State         string `json:"state"`
	} `json:"address"`
}

func (n nominatimPlace) toPlace() (Place, error) {
	lat, err := strconv.ParseFloat(n.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("lat %q: %w", n.Lat, err)
	}
	lng, err := strconv.ParseFloat(n.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("lon %q: %w", n.Lon, err)
	}
	p := Place{
		DisplayName: n.DisplayName,
		Lat:         lat,
		Lng:         lng,
		Type:        n.Type,
		City:        firstNonEmpty(n.Address.City, n.Address.Town, n.Address.Village),
		District:    strings.TrimSuffix(firstNonEmpty(n.Address.StateDistrict, n.Address.County), " District"),
		Province:    n.Address.State,
	}
	return p, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type Client struct {
	http         *http.Client
	baseURL      string
	userAgent    string
	countryCodes string
	cache        *cache.Bounded[[]Place]
	logger       *slog.Logger
}

func New(cfg config.LocationSearchConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:         &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		countryCodes: cfg.CountryCodes,
		cache:        cache.NewBounded[[]Place](cfg.CacheSize, cfg.CacheTTL),
		logger:       logger,
	}
}

// Search returns up to five places matching q. Upstream failures surface as
// e.ErrStorageUnavailable.
func (c *Client) Search(ctx context.Context, q string) ([]Place, error) {
	const op = "locsearch.Client.Search"
	key := strings.ToLower(strings.Join(strings.Fields(q), " "))
	if len(key) < 2 {
		return nil, e.InvalidArgument(op, "query must be at least 2 characters")
	}

	// The cache owns its slices; callers always get their own copy.
	if places, ok := c.cache.Get(key); ok {
		metrics.LocationCacheHitsTotal.Inc()
		return slices.Clone(places), nil
	}

	places, err := c.fetch(ctx, key)
	if err != nil {
		metrics.GeocoderRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Error("geocoder request failed", slog.String("op", op), slog.String("q", key), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %v: %w", op, err, e.ErrStorageUnavailable)
	}
	metrics.GeocoderRequestsTotal.WithLabelValues("ok").Inc()

	c.cache.Set(key, slices.Clone(places))
	return places, nil
}

func (c *Client) fetch(ctx context.Context, q string) ([]Place, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(maxResults))
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned %s", resp.Status)
	}

	var raw []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode geocoder response: %w", err)
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		p, err := r.toPlace()
		if err != nil {
			c.logger.Debug("skipping geocoder result", slog.Any("error", err))
			continue
		}
		places = append(places, p)
	}
	return places, nil
}
