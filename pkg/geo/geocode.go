package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"charity-delivery/internal/models"
)

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// ResolveCoordinates geocodes a free-form location string to [lon, lat].
// Unresolvable text yields models.ErrGeocode.
func (r *Resolver) ResolveCoordinates(ctx context.Context, location string) (models.Coordinates, error) {
	norm := normalizeLocation(location)
	if norm == "" {
		return models.Coordinates{}, models.ErrGeocode
	}

	if r.cache != nil {
		if coords, ok, err := r.cache.Get(ctx, norm); err == nil && ok {
			return coords, nil
		}
	}

	endpoint := r.baseURL + "/geocode/search"
	resp, err := r.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := r.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("text", norm)
		q.Set("size", "1")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("geo.ResolveCoordinates: %w: %w", models.ErrGeocode, err)
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return models.Coordinates{}, fmt.Errorf("geo.ResolveCoordinates decode: %w", err)
	}
	if len(decoded.Features) == 0 || len(decoded.Features[0].Geometry.Coordinates) != 2 {
		return models.Coordinates{}, fmt.Errorf("geo.ResolveCoordinates %q: %w", location, models.ErrGeocode)
	}

	c := decoded.Features[0].Geometry.Coordinates
	coords := models.Coordinates{c[0], c[1]}

	if r.cache != nil {
		if err := r.cache.Set(ctx, norm, coords); err != nil {
			// Cache failures are not fatal to the lookup.
			log.Printf("geo: cache geocode result for %q: %v", norm, err)
		}
	}
	return coords, nil
}

func normalizeLocation(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FindDeliverableBranches ranks the candidate branches by distance from the
// origin location and keeps those reachable within maxDistanceKm (the
// configured default when <= 0). Inactive branches are skipped.
func (r *Resolver) FindDeliverableBranches(ctx context.Context, origin string, candidates []models.Branch, maxDistanceKm float64) (*models.DeliverableBranches, error) {
	if maxDistanceKm <= 0 {
		maxDistanceKm = r.maxDistanceKm
	}

	coords, err := r.ResolveCoordinates(ctx, origin)
	if err != nil {
		return nil, err
	}

	var ranked []models.RankedBranch
	for _, b := range candidates {
		if !b.IsActive {
			continue
		}
		d := HaversineKm(coords.Lat(), coords.Lon(), b.Latitude, b.Longitude)
		if d > maxDistanceKm {
			continue
		}
		ranked = append(ranked, models.RankedBranch{Branch: b, DistanceKm: d})
	}

	sortRankedBranches(ranked)

	out := &models.DeliverableBranches{NearbyBranches: ranked}
	if len(ranked) > 0 {
		out.NearestBranch = &ranked[0]
	}
	return out, nil
}
