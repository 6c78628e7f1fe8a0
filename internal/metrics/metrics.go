package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safezone_http_requests_total",
		Help: "Total HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})
	HTTPRequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safezone_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	SearchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safezone_search_duration_ms",
		Help:    "Query engine duration in milliseconds by kind (radius, all, nearest)",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"kind"})
	SearchResultsTotal = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "safezone_search_results",
		Help:    "Filtered result set size per search",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})
	StatusTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safezone_status_transitions_total",
		Help: "Status changes caused by occupancy updates",
	}, []string{"from", "to"})
	StatsCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "safezone_stats_cache_hits_total",
		Help: "Total stats cache hits",
	})
	StatsCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "safezone_stats_cache_misses_total",
		Help: "Total stats cache misses",
	})
	LocationCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "safezone_location_cache_hits_total",
		Help: "Total location search cache hits",
	})
	GeocoderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safezone_geocoder_requests_total",
		Help: "Upstream geocoder requests by outcome",
	}, []string{"outcome"})
	EventPublishFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "safezone_event_publish_failures_total",
		Help: "Change events that could not be delivered to at least one sink",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDurationMs)
	prometheus.MustRegister(SearchDurationMs)
	prometheus.MustRegister(SearchResultsTotal)
	prometheus.MustRegister(StatusTransitionsTotal)
	prometheus.MustRegister(StatsCacheHitsTotal)
	prometheus.MustRegister(StatsCacheMissesTotal)
	prometheus.MustRegister(LocationCacheHitsTotal)
	prometheus.MustRegister(GeocoderRequestsTotal)
	prometheus.MustRegister(EventPublishFailuresTotal)
}

// Handler exposes the registered collectors for scraping at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
