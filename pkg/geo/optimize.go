package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"charity-delivery/internal/models"
)

type optimizationRequest struct {
	Vehicles  []models.Vehicle  `json:"vehicles"`
	Shipments []models.Shipment `json:"shipments"`
}

// OptimizeRoute asks the vehicle-routing optimizer for an ordered step
// sequence covering the given shipments. The call carries a bounded timeout;
// on failure or timeout models.ErrOptimization is returned and the caller
// must not persist any partial route.
func (r *Resolver) OptimizeRoute(ctx context.Context, vehicles []models.Vehicle, shipments []models.Shipment) (*models.OptimizationResult, error) {
	if len(vehicles) == 0 || len(shipments) == 0 {
		return nil, fmt.Errorf("geo.OptimizeRoute: empty problem: %w", models.ErrOptimization)
	}

	ctx, cancel := context.WithTimeout(ctx, r.optimizerTimeout)
	defer cancel()

	payload, err := json.Marshal(optimizationRequest{Vehicles: vehicles, Shipments: shipments})
	if err != nil {
		return nil, fmt.Errorf("geo.OptimizeRoute marshal: %w", err)
	}

	endpoint := r.baseURL + "/optimization"
	resp, err := r.doWithRetry(ctx, func() (*http.Request, error) {
		return r.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("geo.OptimizeRoute: %w: %w", models.ErrOptimization, err)
	}
	defer resp.Body.Close()

	var result models.OptimizationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("geo.OptimizeRoute decode: %w: %w", models.ErrOptimization, err)
	}
	if len(result.Routes) == 0 && len(result.Unassigned) == 0 {
		return nil, fmt.Errorf("geo.OptimizeRoute: empty solution: %w", models.ErrOptimization)
	}
	return &result, nil
}
