// Package geo wraps the external geocoding and route-optimization provider
// (an OpenRouteService-compatible API). It holds no persistent state of its
// own; geocode results are cached in redis to spare repeated lookups.
package geo

import (
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Resolver is the client for the geocoding and optimization endpoints.
type Resolver struct {
	httpClient       *http.Client
	baseURL          string
	apiKey           string
	cache            *GeocodeCache
	optimizerTimeout time.Duration
	// maxDistanceKm is the default reach for FindDeliverableBranches when
	// the caller does not supply one.
	maxDistanceKm float64
}

// NewResolver creates a resolver against the given provider base URL.
// redisClient may be nil, in which case geocoding is uncached.
func NewResolver(baseURL, apiKey string, redisClient *redis.Client, optimizerTimeout time.Duration, maxDistanceKm float64) *Resolver {
	var cache *GeocodeCache
	if redisClient != nil {
		cache = NewGeocodeCache(redisClient)
	}
	return &Resolver{
		httpClient:       &http.Client{Timeout: 60 * time.Second},
		baseURL:          baseURL,
		apiKey:           apiKey,
		cache:            cache,
		optimizerTimeout: optimizerTimeout,
		maxDistanceKm:    maxDistanceKm,
	}
}
