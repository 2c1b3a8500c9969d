// Package batching groups pending delivery requests into scheduled routes.
// Requests sharing a branch and delivery direction whose time windows overlap
// the batching horizon are partitioned into capacity-bounded sub-batches;
// each sub-batch is sequenced by the external route optimizer and persisted
// as one pending route. Optimization failures leave the requests pending for
// the next cycle; no partial route is ever written.
package batching

import (
	"context"
	"fmt"
	"log"
	"time"

	"charity-delivery/internal/models"
	"charity-delivery/internal/modules/branch"
	"charity-delivery/internal/modules/delivery"
	"charity-delivery/internal/modules/route"

	"github.com/google/uuid"
)

// OptimizerInterface is the slice of the geospatial resolver this module
// needs: ordering a sub-batch's stops.
type OptimizerInterface interface {
	OptimizeRoute(ctx context.Context, vehicles []models.Vehicle, shipments []models.Shipment) (*models.OptimizationResult, error)
}

// ServiceInterface defines the batching operations.
type ServiceInterface interface {
	// BatchPendingDeliveryRequests runs one batching cycle and returns the
	// number of routes created. Running it again without new eligible
	// requests creates nothing.
	BatchPendingDeliveryRequests(ctx context.Context) (int, error)
}

// Service implements the route batching engine.
type Service struct {
	deliveryRepo  delivery.RepositoryInterface
	routeRepo     route.RepositoryInterface
	branchRepo    branch.RepositoryInterface
	optimizer     OptimizerInterface
	horizon       time.Duration
	capacityUnits int
}

// NewService creates a new batching service.
func NewService(
	deliveryRepo delivery.RepositoryInterface,
	routeRepo route.RepositoryInterface,
	branchRepo branch.RepositoryInterface,
	optimizer OptimizerInterface,
	horizon time.Duration,
	capacityUnits int,
) *Service {
	return &Service{
		deliveryRepo:  deliveryRepo,
		routeRepo:     routeRepo,
		branchRepo:    branchRepo,
		optimizer:     optimizer,
		horizon:       horizon,
		capacityUnits: capacityUnits,
	}
}

type groupKey struct {
	branchID string
	kind     string
}

// BatchPendingDeliveryRequests implements one batching cycle.
func (s *Service) BatchPendingDeliveryRequests(ctx context.Context) (int, error) {
	now := time.Now()
	windowEnd := now.Add(s.horizon)

	pending, err := s.deliveryRepo.ListBatchable(ctx, now, windowEnd)
	if err != nil {
		return 0, fmt.Errorf("batching.BatchPendingDeliveryRequests: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// ListBatchable orders by creation time then id, so iteration order and
	// the resulting grouping are deterministic.
	groups := make(map[groupKey][]*models.DeliveryRequest)
	var keys []groupKey
	for _, d := range pending {
		k := groupKey{branchID: d.BranchID, kind: d.Kind}
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], d)
	}

	created := 0
	for _, k := range keys {
		for _, chunk := range s.partition(groups[k]) {
			ok, err := s.buildRoute(ctx, k, chunk, now, windowEnd)
			if err != nil {
				// The chunk's requests stay pending for the next cycle.
				log.Printf("batching: branch %s kind %s: %v", k.branchID, k.kind, err)
				continue
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

// partition splits a group into sub-batches whose summed item quantity stays
// within the per-route capacity. An oversized single request still gets its
// own route; a route always carries at least one request.
func (s *Service) partition(reqs []*models.DeliveryRequest) [][]*models.DeliveryRequest {
	var chunks [][]*models.DeliveryRequest
	var current []*models.DeliveryRequest
	load := 0
	for _, d := range reqs {
		q := d.TotalQuantity()
		if len(current) > 0 && load+q > s.capacityUnits {
			chunks = append(chunks, current)
			current, load = nil, 0
		}
		current = append(current, d)
		load += q
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func (s *Service) buildRoute(ctx context.Context, k groupKey, chunk []*models.DeliveryRequest, now, windowEnd time.Time) (bool, error) {
	br, err := s.branchRepo.FindByID(ctx, k.branchID)
	if err != nil {
		return false, fmt.Errorf("find branch: %w", err)
	}
	branchLoc := models.Coordinates{br.Longitude, br.Latitude}

	vehicle := models.Vehicle{
		ID:       1,
		Start:    branchLoc,
		End:      branchLoc,
		Capacity: []int{s.capacityUnits},
	}

	// Shipment ids are 1-based positions within the chunk.
	shipments := make([]models.Shipment, 0, len(chunk))
	byShipmentID := make(map[int]*models.DeliveryRequest, len(chunk))
	for i, d := range chunk {
		id := i + 1
		byShipmentID[id] = d
		reqLoc := models.Coordinates{d.Longitude, d.Latitude}

		pickup, dropoff := branchLoc, reqLoc
		if d.Kind == models.KindDonorToBranch {
			pickup, dropoff = reqLoc, branchLoc
		}
		shipments = append(shipments, models.Shipment{
			Amount:   []int{d.TotalQuantity()},
			Pickup:   models.ShipmentPoint{ID: id, Location: pickup},
			Delivery: models.ShipmentPoint{ID: id, Location: dropoff},
		})
	}

	result, err := s.optimizer.OptimizeRoute(ctx, []models.Vehicle{vehicle}, shipments)
	if err != nil {
		return false, err
	}
	if len(result.Routes) == 0 {
		return false, fmt.Errorf("no vehicle route in solution: %w", models.ErrOptimization)
	}

	unassigned := make(map[int]bool, len(result.Unassigned))
	for _, u := range result.Unassigned {
		unassigned[u.ID] = true
	}

	members, currentTimes := s.buildMembers(result.Routes[0].Steps, byShipmentID, unassigned, now, windowEnd)
	if len(members) == 0 {
		return false, fmt.Errorf("all shipments unassigned: %w", models.ErrOptimization)
	}

	startsAt, endsAt := routeWindow(currentTimes, now, windowEnd)
	rt := &models.ScheduledRoute{
		ID:       uuid.New().String(),
		BranchID: k.branchID,
		Kind:     k.kind,
		Status:   models.RouteStatusPending,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Members:  members,
	}
	if err := s.routeRepo.CreateWithMembers(ctx, rt, currentTimes); err != nil {
		return false, fmt.Errorf("persist route: %w", err)
	}
	return true, nil
}

// buildMembers walks the optimizer's step sequence and emits one membership
// per delivery step, ordered as visited, with per-leg travel metrics taken
// from the cumulative step deltas.
func (s *Service) buildMembers(
	steps []models.OptimizationStep,
	byShipmentID map[int]*models.DeliveryRequest,
	unassigned map[int]bool,
	now, windowEnd time.Time,
) ([]models.ScheduledRouteDeliveryRequest, map[string]models.ScheduledTime) {
	var members []models.ScheduledRouteDeliveryRequest
	currentTimes := make(map[string]models.ScheduledTime)

	order := 0
	for i, step := range steps {
		if step.Type != "delivery" || unassigned[step.ID] {
			continue
		}
		d, ok := byShipmentID[step.ID]
		if !ok {
			continue
		}
		order++

		travelTime, travelDistance := 0, 0
		for j := i + 1; j < len(steps); j++ {
			next := steps[j]
			if next.Type == "delivery" || next.Type == "end" {
				travelTime = int(next.Duration - step.Duration)
				travelDistance = int(next.Distance - step.Distance)
				break
			}
		}

		members = append(members, models.ScheduledRouteDeliveryRequest{
			DeliveryRequestID:    d.ID,
			Status:               models.DeliveryStatusPending,
			Order:                order,
			TravelTimeSeconds:    travelTime,
			TravelDistanceMeters: travelDistance,
		})

		for _, st := range d.ScheduledTimes {
			if st.Overlaps(now, windowEnd) {
				currentTimes[d.ID] = st
				break
			}
		}
	}
	return members, currentTimes
}

// routeWindow derives the route's scheduled window from the members' active
// time windows, clamped to the batching horizon.
func routeWindow(currentTimes map[string]models.ScheduledTime, now, windowEnd time.Time) (time.Time, time.Time) {
	startsAt, endsAt := windowEnd, now
	for _, st := range currentTimes {
		if s := st.Start(); s.Before(startsAt) {
			startsAt = s
		}
		if e := st.End(); e.After(endsAt) {
			endsAt = e
		}
	}
	if startsAt.Before(now) {
		startsAt = now
	}
	if !endsAt.After(startsAt) {
		endsAt = windowEnd
	}
	return startsAt, endsAt
}
