package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"charity-delivery/internal/models"

	"github.com/redis/go-redis/v9"
)

const geocodeCacheTTL = 24 * time.Hour

// GeocodeCache stores resolved coordinates in redis keyed by normalized
// location text. Addresses rarely move; a day of caching spares most
// provider calls during batching.
type GeocodeCache struct {
	client *redis.Client
}

// NewGeocodeCache creates a cache backed by the given redis client.
func NewGeocodeCache(client *redis.Client) *GeocodeCache {
	return &GeocodeCache{client: client}
}

// Get returns the cached coordinates for the location, if present.
func (c *GeocodeCache) Get(ctx context.Context, location string) (models.Coordinates, bool, error) {
	key := fmt.Sprintf("geocode:%s", location)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Coordinates{}, false, nil
		}
		return models.Coordinates{}, false, err
	}

	var coords models.Coordinates
	if err := json.Unmarshal(data, &coords); err != nil {
		return models.Coordinates{}, false, err
	}
	return coords, true, nil
}

// Set stores the coordinates for the location.
func (c *GeocodeCache) Set(ctx context.Context, location string, coords models.Coordinates) error {
	key := fmt.Sprintf("geocode:%s", location)
	data, err := json.Marshal(coords)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, geocodeCacheTTL).Err()
}
