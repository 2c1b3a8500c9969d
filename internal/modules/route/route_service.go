package route

import (
	"context"
	"fmt"
	"log"
	"time"

	"charity-delivery/internal/models"
	"charity-delivery/pkg/notify"

	"github.com/google/uuid"
)

// StockRecorderInterface records the item handoffs at route start (export
// from the branch) and finish (import at the destination).
type StockRecorderInterface interface {
	RecordMovements(ctx context.Context, movements []models.StockMovement) error
}

// AssignmentEmailerInterface sends the route-assigned mail to a contributor.
// Sends are fire-and-forget; the implementation logs its own failures.
type AssignmentEmailerInterface interface {
	SendRouteAssigned(to, routeID string, stopCount int)
}

// ServiceInterface defines the scheduled route lifecycle operations.
type ServiceInterface interface {
	GetScheduledRoute(ctx context.Context, id, userID, role string) (*models.ScheduledRoute, error)
	GetScheduledRoutesForUser(ctx context.Context, userID string, filter models.RouteFilter, page, limit int) ([]*models.ScheduledRoute, int, error)
	GetScheduledRoutesForAdmin(ctx context.Context, filter models.RouteFilter, page, limit int) ([]*models.ScheduledRoute, int, error)
	AcceptScheduledRoute(ctx context.Context, routeID, userID, userEmail string) (*models.ScheduledRoute, error)
	StartScheduledRoute(ctx context.Context, routeID, userID string) (*models.ScheduledRoute, error)
	UpdateNextStatusOfDeliveryRequestsOfScheduledRoute(ctx context.Context, routeID, userID string) (*models.ScheduledRoute, error)
	GiveItemsToStartScheduledRoute(ctx context.Context, routeID, userID string, req models.GiveItemsRequest) error
	ReceiveItemsToFinishScheduledRoute(ctx context.Context, routeID, userID string, req models.ReceiveItemsRequest) (*models.ScheduledRoute, error)
	CancelScheduledRoute(ctx context.Context, routeID, userID, role string) error

	// AutoUpdateAvailableAndLateScheduledRoute re-queues pending routes
	// whose offer window closed and flags overdue routes late. Idempotent.
	AutoUpdateAvailableAndLateScheduledRoute(ctx context.Context) (requeued, late int, err error)
}

// Service implements the scheduled route lifecycle.
type Service struct {
	repo        RepositoryInterface
	stock       StockRecorderInterface
	events      notify.Publisher
	emailer     AssignmentEmailerInterface
	offerWindow time.Duration
}

// NewService creates a new scheduled route service. emailer may be nil when
// outbound mail is not configured.
func NewService(repo RepositoryInterface, stock StockRecorderInterface, events notify.Publisher, emailer AssignmentEmailerInterface, offerWindow time.Duration) *Service {
	return &Service{
		repo:        repo,
		stock:       stock,
		events:      events,
		emailer:     emailer,
		offerWindow: offerWindow,
	}
}

// GetScheduledRoute retrieves one route. Contributors see pending offers and
// their own routes; admins see everything.
func (s *Service) GetScheduledRoute(ctx context.Context, id, userID, role string) (*models.ScheduledRoute, error) {
	rt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.GetScheduledRoute: %w", err)
	}
	if role == models.RoleAdmin || role == models.RoleBranchAdmin {
		return rt, nil
	}
	if rt.Status == models.RouteStatusPending || (rt.UserID.Valid && rt.UserID.String == userID) {
		return rt, nil
	}
	return nil, models.ErrNotFound
}

// GetScheduledRoutesForUser lists the contributor's routes and open offers.
func (s *Service) GetScheduledRoutesForUser(ctx context.Context, userID string, filter models.RouteFilter, page, limit int) ([]*models.ScheduledRoute, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.ListForUser(ctx, userID, filter, page, limit)
}

// GetScheduledRoutesForAdmin lists every route matching the filter.
func (s *Service) GetScheduledRoutesForAdmin(ctx context.Context, filter models.RouteFilter, page, limit int) ([]*models.ScheduledRoute, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return s.repo.ListAll(ctx, filter, page, limit)
}

// AcceptScheduledRoute assigns the route to the contributor. Exactly one
// concurrent acceptance succeeds; the loser receives ErrAlreadyAccepted.
func (s *Service) AcceptScheduledRoute(ctx context.Context, routeID, userID, userEmail string) (*models.ScheduledRoute, error) {
	if err := s.repo.Accept(ctx, routeID, userID); err != nil {
		return nil, err
	}

	rt, err := s.repo.FindByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("service.AcceptScheduledRoute: %w", err)
	}

	if s.emailer != nil && userEmail != "" {
		s.emailer.SendRouteAssigned(userEmail, routeID, len(rt.Members))
	}
	s.events.Publish(userID, notify.Event{
		Type:    "scheduled_route_status",
		RouteID: routeID,
		Status:  models.RouteStatusAccepted,
	})
	return rt, nil
}

// StartScheduledRoute begins execution: the route moves to processing and
// its first stop to shipping. Only the assigned contributor may start.
func (s *Service) StartScheduledRoute(ctx context.Context, routeID, userID string) (*models.ScheduledRoute, error) {
	if err := s.repo.Start(ctx, routeID, userID); err != nil {
		return nil, err
	}

	rt, err := s.repo.FindByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("service.StartScheduledRoute: %w", err)
	}
	s.events.Publish(userID, notify.Event{
		Type:    "scheduled_route_status",
		RouteID: routeID,
		Status:  models.RouteStatusProcessing,
	})
	return rt, nil
}

// UpdateNextStatusOfDeliveryRequestsOfScheduledRoute advances the current
// stop's delivery request one step. When a stop reaches delivered, the next
// stop (if any) moves to shipping so the contributor always has exactly one
// active stop.
func (s *Service) UpdateNextStatusOfDeliveryRequestsOfScheduledRoute(ctx context.Context, routeID, userID string) (*models.ScheduledRoute, error) {
	rt, err := s.repo.FindByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateNextStatusOfDeliveryRequestsOfScheduledRoute: %w", err)
	}
	if !rt.UserID.Valid || rt.UserID.String != userID {
		return nil, models.ErrNotFound
	}
	if rt.Status != models.RouteStatusProcessing && rt.Status != models.RouteStatusLate {
		return nil, models.ErrInvalidStateTransition
	}

	stop := rt.CurrentStop()
	if stop == nil {
		return nil, models.ErrInvalidStateTransition
	}

	next, err := models.NextDeliveryStatus(stop.Status)
	if err != nil {
		return nil, err
	}
	if next == models.DeliveryStatusFinished {
		// The last step to finished happens only through receive-items.
		return nil, models.ErrInvalidStateTransition
	}

	if err := s.repo.AdvanceMember(ctx, routeID, stop.DeliveryRequestID, stop.Status, next); err != nil {
		return nil, fmt.Errorf("service.UpdateNextStatusOfDeliveryRequestsOfScheduledRoute: %w", err)
	}

	if next == models.DeliveryStatusDelivered {
		for i := range rt.Members {
			m := &rt.Members[i]
			if m.DeliveryRequestID != stop.DeliveryRequestID && m.Status == models.DeliveryStatusAccepted {
				if err := s.repo.AdvanceMember(ctx, routeID, m.DeliveryRequestID, m.Status, models.DeliveryStatusShipping); err != nil {
					return nil, fmt.Errorf("service.UpdateNextStatusOfDeliveryRequestsOfScheduledRoute next stop: %w", err)
				}
				break
			}
		}
	}

	rt, err = s.repo.FindByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateNextStatusOfDeliveryRequestsOfScheduledRoute reload: %w", err)
	}
	s.events.Publish(userID, notify.Event{
		Type:              "delivery_request_status",
		RouteID:           routeID,
		DeliveryRequestID: stop.DeliveryRequestID,
		Status:            next,
	})
	return rt, nil
}

// GiveItemsToStartScheduledRoute records the stock exported from the branch
// when the contributor picks the items up.
func (s *Service) GiveItemsToStartScheduledRoute(ctx context.Context, routeID, userID string, req models.GiveItemsRequest) error {
	rt, err := s.repo.FindByID(ctx, routeID)
	if err != nil {
		return fmt.Errorf("service.GiveItemsToStartScheduledRoute: %w", err)
	}
	if !rt.UserID.Valid || rt.UserID.String != userID {
		return models.ErrNotFound
	}
	if rt.Status != models.RouteStatusProcessing && rt.Status != models.RouteStatusLate {
		return models.ErrInvalidStateTransition
	}

	movements := s.buildMovements(rt, req.Items, models.StockMovementExport)
	if err := s.stock.RecordMovements(ctx, movements); err != nil {
		return fmt.Errorf("service.GiveItemsToStartScheduledRoute: %w", err)
	}
	return nil
}

// ReceiveItemsToFinishScheduledRoute confirms the received quantities,
// records the stock import and finishes the route. A shortfall against the
// requested quantities is recorded, never rejected. Every member must have
// reached delivered (or a terminal side state) first.
func (s *Service) ReceiveItemsToFinishScheduledRoute(ctx context.Context, routeID, userID string, req models.ReceiveItemsRequest) (*models.ScheduledRoute, error) {
	rt, err := s.repo.FindByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("service.ReceiveItemsToFinishScheduledRoute: %w", err)
	}
	if !rt.UserID.Valid || rt.UserID.String != userID {
		return nil, models.ErrNotFound
	}
	if rt.CurrentStop() != nil {
		return nil, models.ErrInvalidStateTransition
	}

	if err := s.repo.Finish(ctx, routeID, userID, req.Items, req.ProofImage); err != nil {
		return nil, err
	}

	movements := s.buildMovements(rt, req.Items, models.StockMovementImport)
	if err := s.stock.RecordMovements(ctx, movements); err != nil {
		// The route is finished; a stock bookkeeping failure is logged, not
		// surfaced as a lifecycle error.
		log.Printf("record import movements for route %s: %v", routeID, err)
	}

	rt, err = s.repo.FindByID(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("service.ReceiveItemsToFinishScheduledRoute reload: %w", err)
	}
	s.events.Publish(userID, notify.Event{
		Type:    "scheduled_route_status",
		RouteID: routeID,
		Status:  models.RouteStatusFinished,
	})
	return rt, nil
}

func (s *Service) buildMovements(rt *models.ScheduledRoute, items []models.ReceivedQuantityInput, direction string) []models.StockMovement {
	movements := make([]models.StockMovement, 0, len(items))
	for _, it := range items {
		movements = append(movements, models.StockMovement{
			ID:             uuid.New().String(),
			BranchID:       rt.BranchID,
			RouteID:        rt.ID,
			DeliveryItemID: it.DeliveryItemID,
			Direction:      direction,
			Quantity:       it.ReceivedQuantity,
		})
	}
	return movements
}

// CancelScheduledRoute cancels a pending/accepted route; its member requests
// revert to pending and are picked up by the next batching cycle.
func (s *Service) CancelScheduledRoute(ctx context.Context, routeID, userID, role string) error {
	rt, err := s.repo.FindByID(ctx, routeID)
	if err != nil {
		return fmt.Errorf("service.CancelScheduledRoute: %w", err)
	}
	if role != models.RoleAdmin && role != models.RoleBranchAdmin {
		if !rt.UserID.Valid || rt.UserID.String != userID {
			return models.ErrNotFound
		}
	}
	if !models.IsRouteCancelable(rt.Status) {
		return models.ErrInvalidStateTransition
	}

	if err := s.repo.Requeue(ctx, routeID); err != nil {
		return err
	}

	if rt.UserID.Valid {
		s.events.Publish(rt.UserID.String, notify.Event{
			Type:    "scheduled_route_status",
			RouteID: routeID,
			Status:  models.RouteStatusCanceled,
		})
	}
	return nil
}

// AutoUpdateAvailableAndLateScheduledRoute is the daily sweep: pending
// routes past their offer window are canceled and their requests re-queued;
// accepted/processing routes past their scheduled end are flagged late.
// Each route is handled independently; one failure never aborts the sweep.
func (s *Service) AutoUpdateAvailableAndLateScheduledRoute(ctx context.Context) (int, int, error) {
	now := time.Now()

	staleIDs, err := s.repo.ListStalePendingIDs(ctx, now.Add(-s.offerWindow))
	if err != nil {
		return 0, 0, fmt.Errorf("service.AutoUpdateAvailableAndLateScheduledRoute stale: %w", err)
	}
	requeued := 0
	for _, id := range staleIDs {
		if err := s.repo.Requeue(ctx, id); err != nil {
			log.Printf("requeue stale route %s: %v", id, err)
			continue
		}
		requeued++
	}

	overdueIDs, err := s.repo.ListOverdueIDs(ctx, now)
	if err != nil {
		return requeued, 0, fmt.Errorf("service.AutoUpdateAvailableAndLateScheduledRoute overdue: %w", err)
	}
	late := 0
	for _, id := range overdueIDs {
		if err := s.repo.MarkLate(ctx, id); err != nil {
			log.Printf("mark route %s late: %v", id, err)
			continue
		}
		late++
	}
	return requeued, late, nil
}
