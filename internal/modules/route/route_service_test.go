package route

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"charity-delivery/internal/models"
	"charity-delivery/pkg/notify"
)

type fakePublisher struct {
	events []notify.Event
}

func (f *fakePublisher) Publish(_ string, ev notify.Event) {
	f.events = append(f.events, ev)
}

type fakeStockRecorder struct {
	movements []models.StockMovement
	err       error
}

func (f *fakeStockRecorder) RecordMovements(_ context.Context, movements []models.StockMovement) error {
	if f.err != nil {
		return f.err
	}
	f.movements = append(f.movements, movements...)
	return nil
}

type fakeEmailer struct {
	sentTo []string
}

func (f *fakeEmailer) SendRouteAssigned(to, _ string, _ int) {
	f.sentTo = append(f.sentTo, to)
}

// fakeRouteRepository keeps routes in memory with the same status-guard
// semantics as the real repository.
type fakeRouteRepository struct {
	routes map[string]*models.ScheduledRoute

	stalePending []string
	overdue      []string
	requeued     []string
	markLateErrs map[string]error
}

func newFakeRouteRepository() *fakeRouteRepository {
	return &fakeRouteRepository{
		routes:       make(map[string]*models.ScheduledRoute),
		markLateErrs: make(map[string]error),
	}
}

func (f *fakeRouteRepository) CreateWithMembers(_ context.Context, rt *models.ScheduledRoute, _ map[string]models.ScheduledTime) error {
	f.routes[rt.ID] = rt
	return nil
}

func (f *fakeRouteRepository) FindByID(_ context.Context, id string) (*models.ScheduledRoute, error) {
	rt, ok := f.routes[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rt, nil
}

func (f *fakeRouteRepository) ListForUser(_ context.Context, _ string, _ models.RouteFilter, _, _ int) ([]*models.ScheduledRoute, int, error) {
	return nil, 0, nil
}

func (f *fakeRouteRepository) ListAll(_ context.Context, _ models.RouteFilter, _, _ int) ([]*models.ScheduledRoute, int, error) {
	return nil, 0, nil
}

func (f *fakeRouteRepository) Accept(_ context.Context, routeID, userID string) error {
	rt, ok := f.routes[routeID]
	if !ok {
		return models.ErrNotFound
	}
	if rt.Status != models.RouteStatusPending {
		return models.ErrAlreadyAccepted
	}
	rt.Status = models.RouteStatusAccepted
	rt.UserID = sql.NullString{String: userID, Valid: true}
	for i := range rt.Members {
		if rt.Members[i].Status == models.DeliveryStatusPending {
			rt.Members[i].Status = models.DeliveryStatusAccepted
		}
	}
	return nil
}

func (f *fakeRouteRepository) Start(_ context.Context, routeID, userID string) error {
	rt, ok := f.routes[routeID]
	if !ok {
		return models.ErrNotFound
	}
	if rt.Status != models.RouteStatusAccepted || !rt.UserID.Valid || rt.UserID.String != userID {
		return models.ErrConflict
	}
	rt.Status = models.RouteStatusProcessing
	if len(rt.Members) > 0 {
		rt.Members[0].Status = models.DeliveryStatusShipping
	}
	return nil
}

func (f *fakeRouteRepository) AdvanceMember(_ context.Context, routeID, deliveryRequestID, expected, next string) error {
	rt, ok := f.routes[routeID]
	if !ok {
		return models.ErrNotFound
	}
	for i := range rt.Members {
		m := &rt.Members[i]
		if m.DeliveryRequestID != deliveryRequestID {
			continue
		}
		if m.Status != expected {
			return models.ErrConflict
		}
		m.Status = next
		return nil
	}
	return models.ErrNotFound
}

func (f *fakeRouteRepository) Finish(_ context.Context, routeID, userID string, _ []models.ReceivedQuantityInput, _ string) error {
	rt, ok := f.routes[routeID]
	if !ok {
		return models.ErrNotFound
	}
	if !rt.UserID.Valid || rt.UserID.String != userID {
		return models.ErrNotFound
	}
	if rt.Status != models.RouteStatusProcessing && rt.Status != models.RouteStatusLate {
		return models.ErrInvalidStateTransition
	}
	rt.Status = models.RouteStatusFinished
	for i := range rt.Members {
		if rt.Members[i].Status == models.DeliveryStatusDelivered {
			rt.Members[i].Status = models.DeliveryStatusFinished
		}
	}
	return nil
}

func (f *fakeRouteRepository) Requeue(_ context.Context, routeID string) error {
	rt, ok := f.routes[routeID]
	if !ok {
		return models.ErrNotFound
	}
	rt.Status = models.RouteStatusCanceled
	for i := range rt.Members {
		if !models.IsDeliveryTerminal(rt.Members[i].Status) {
			rt.Members[i].Status = models.DeliveryStatusPending
		}
	}
	f.requeued = append(f.requeued, routeID)
	return nil
}

func (f *fakeRouteRepository) ListStalePendingIDs(_ context.Context, _ time.Time) ([]string, error) {
	return f.stalePending, nil
}

func (f *fakeRouteRepository) ListOverdueIDs(_ context.Context, _ time.Time) ([]string, error) {
	return f.overdue, nil
}

func (f *fakeRouteRepository) MarkLate(_ context.Context, routeID string) error {
	if err := f.markLateErrs[routeID]; err != nil {
		return err
	}
	rt, ok := f.routes[routeID]
	if !ok {
		return models.ErrNotFound
	}
	rt.Status = models.RouteStatusLate
	return nil
}

func seedRoute(repo *fakeRouteRepository, id string, memberIDs ...string) *models.ScheduledRoute {
	rt := &models.ScheduledRoute{
		ID:       id,
		BranchID: "branch-1",
		Kind:     models.KindBranchToRecipient,
		Status:   models.RouteStatusPending,
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(4 * time.Hour),
	}
	for i, mid := range memberIDs {
		rt.Members = append(rt.Members, models.ScheduledRouteDeliveryRequest{
			RouteID:           id,
			DeliveryRequestID: mid,
			Status:            models.DeliveryStatusPending,
			Order:             i + 1,
		})
	}
	repo.routes[id] = rt
	return rt
}

func newTestRouteService(repo *fakeRouteRepository) (*Service, *fakeStockRecorder, *fakePublisher, *fakeEmailer) {
	stock := &fakeStockRecorder{}
	events := &fakePublisher{}
	emailer := &fakeEmailer{}
	return NewService(repo, stock, events, emailer, 24*time.Hour), stock, events, emailer
}

func TestAcceptScheduledRouteCascadesAndNotifies(t *testing.T) {
	repo := newFakeRouteRepository()
	svc, _, events, emailer := newTestRouteService(repo)
	seedRoute(repo, "rt-1", "dr-1", "dr-2")

	rt, err := svc.AcceptScheduledRoute(context.Background(), "rt-1", "contrib-1", "contrib@example.org")
	if err != nil {
		t.Fatalf("AcceptScheduledRoute: %v", err)
	}
	if rt.Status != models.RouteStatusAccepted {
		t.Errorf("route status = %q, want accepted", rt.Status)
	}
	for _, m := range rt.Members {
		if m.Status != models.DeliveryStatusAccepted {
			t.Errorf("member %s status = %q, want accepted", m.DeliveryRequestID, m.Status)
		}
	}
	if len(emailer.sentTo) != 1 || emailer.sentTo[0] != "contrib@example.org" {
		t.Errorf("assignment email sentTo = %v", emailer.sentTo)
	}
	if len(events.events) != 1 || events.events[0].Status != models.RouteStatusAccepted {
		t.Errorf("events = %v", events.events)
	}
}

func TestAcceptScheduledRouteSecondContributorLoses(t *testing.T) {
	repo := newFakeRouteRepository()
	svc, _, _, _ := newTestRouteService(repo)
	seedRoute(repo, "rt-1", "dr-1")

	if _, err := svc.AcceptScheduledRoute(context.Background(), "rt-1", "contrib-1", ""); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := svc.AcceptScheduledRoute(context.Background(), "rt-1", "contrib-2", "")
	if !errors.Is(err, models.ErrAlreadyAccepted) {
		t.Fatalf("second accept err = %v, want ErrAlreadyAccepted", err)
	}
	if got := repo.routes["rt-1"].UserID.String; got != "contrib-1" {
		t.Errorf("route assigned to %q, want contrib-1", got)
	}
}

func TestRouteLifecycleToFinished(t *testing.T) {
	repo := newFakeRouteRepository()
	svc, stock, _, _ := newTestRouteService(repo)
	seedRoute(repo, "rt-1", "dr-1", "dr-2")
	ctx := context.Background()

	if _, err := svc.AcceptScheduledRoute(ctx, "rt-1", "contrib-1", ""); err != nil {
		t.Fatalf("accept: %v", err)
	}
	rt, err := svc.StartScheduledRoute(ctx, "rt-1", "contrib-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if rt.Status != models.RouteStatusProcessing {
		t.Fatalf("route status = %q, want processing", rt.Status)
	}
	if rt.Members[0].Status != models.DeliveryStatusShipping {
		t.Fatalf("first stop = %q, want shipping", rt.Members[0].Status)
	}

	give := models.GiveItemsRequest{Items: []models.ReceivedQuantityInput{{DeliveryItemID: "item-1", ReceivedQuantity: 5}}}
	if err := svc.GiveItemsToStartScheduledRoute(ctx, "rt-1", "contrib-1", give); err != nil {
		t.Fatalf("give items: %v", err)
	}
	if len(stock.movements) != 1 || stock.movements[0].Direction != models.StockMovementExport {
		t.Fatalf("export movements = %+v", stock.movements)
	}

	// Walk stop 1: shipping -> ... -> delivered. Stop 2 then starts shipping.
	for i := 0; i < 4; i++ {
		if _, err := svc.UpdateNextStatusOfDeliveryRequestsOfScheduledRoute(ctx, "rt-1", "contrib-1"); err != nil {
			t.Fatalf("advance stop 1 step %d: %v", i, err)
		}
	}
	rt = repo.routes["rt-1"]
	if rt.Members[0].Status != models.DeliveryStatusDelivered {
		t.Fatalf("stop 1 = %q, want delivered", rt.Members[0].Status)
	}
	if rt.Members[1].Status != models.DeliveryStatusShipping {
		t.Fatalf("stop 2 = %q, want shipping after stop 1 delivered", rt.Members[1].Status)
	}

	// Receiving items with a stop still open must fail.
	receive := models.ReceiveItemsRequest{Items: []models.ReceivedQuantityInput{{DeliveryItemID: "item-1", ReceivedQuantity: 5}}}
	if _, err := svc.ReceiveItemsToFinishScheduledRoute(ctx, "rt-1", "contrib-1", receive); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("early receive err = %v, want ErrInvalidStateTransition", err)
	}

	for i := 0; i < 4; i++ {
		if _, err := svc.UpdateNextStatusOfDeliveryRequestsOfScheduledRoute(ctx, "rt-1", "contrib-1"); err != nil {
			t.Fatalf("advance stop 2 step %d: %v", i, err)
		}
	}

	rt, err = svc.ReceiveItemsToFinishScheduledRoute(ctx, "rt-1", "contrib-1", receive)
	if err != nil {
		t.Fatalf("receive items: %v", err)
	}
	if rt.Status != models.RouteStatusFinished {
		t.Errorf("route status = %q, want finished", rt.Status)
	}
	for _, m := range rt.Members {
		if m.Status != models.DeliveryStatusFinished {
			t.Errorf("member %s = %q, want finished", m.DeliveryRequestID, m.Status)
		}
	}
	if len(stock.movements) != 2 {
		t.Errorf("movements = %d, want export + import", len(stock.movements))
	}
}

func TestUpdateNextStatusNeverFinishesDirectly(t *testing.T) {
	repo := newFakeRouteRepository()
	svc, _, _, _ := newTestRouteService(repo)
	rt := seedRoute(repo, "rt-1", "dr-1")
	rt.Status = models.RouteStatusProcessing
	rt.UserID = sql.NullString{String: "contrib-1", Valid: true}
	rt.Members[0].Status = models.DeliveryStatusDelivered

	_, err := svc.UpdateNextStatusOfDeliveryRequestsOfScheduledRoute(context.Background(), "rt-1", "contrib-1")
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition (finish goes through receive-items)", err)
	}
}

func TestCancelScheduledRouteRequeuesMembers(t *testing.T) {
	repo := newFakeRouteRepository()
	svc, _, _, _ := newTestRouteService(repo)
	rt := seedRoute(repo, "rt-1", "dr-1", "dr-2")
	rt.Status = models.RouteStatusAccepted
	rt.UserID = sql.NullString{String: "contrib-1", Valid: true}
	rt.Members[0].Status = models.DeliveryStatusAccepted
	rt.Members[1].Status = models.DeliveryStatusAccepted

	if err := svc.CancelScheduledRoute(context.Background(), "rt-1", "someone-else", models.RoleContributor); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("stranger cancel err = %v, want ErrNotFound", err)
	}

	if err := svc.CancelScheduledRoute(context.Background(), "rt-1", "contrib-1", models.RoleContributor); err != nil {
		t.Fatalf("CancelScheduledRoute: %v", err)
	}
	if rt.Status != models.RouteStatusCanceled {
		t.Errorf("route status = %q, want canceled", rt.Status)
	}
	for _, m := range rt.Members {
		if m.Status != models.DeliveryStatusPending {
			t.Errorf("member %s = %q, want pending for re-batching", m.DeliveryRequestID, m.Status)
		}
	}
}

func TestCancelScheduledRouteInExecutionRejected(t *testing.T) {
	repo := newFakeRouteRepository()
	svc, _, _, _ := newTestRouteService(repo)
	rt := seedRoute(repo, "rt-1", "dr-1")
	rt.Status = models.RouteStatusProcessing
	rt.UserID = sql.NullString{String: "contrib-1", Valid: true}

	err := svc.CancelScheduledRoute(context.Background(), "rt-1", "contrib-1", models.RoleContributor)
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestAutoUpdateSweepHandlesEachRouteIndependently(t *testing.T) {
	repo := newFakeRouteRepository()
	svc, _, _, _ := newTestRouteService(repo)
	seedRoute(repo, "rt-stale", "dr-1")
	late1 := seedRoute(repo, "rt-late-1", "dr-2")
	late1.Status = models.RouteStatusProcessing
	late2 := seedRoute(repo, "rt-late-2", "dr-3")
	late2.Status = models.RouteStatusAccepted

	repo.stalePending = []string{"rt-stale"}
	repo.overdue = []string{"rt-late-1", "rt-late-2"}
	repo.markLateErrs["rt-late-1"] = models.ErrConflict

	requeued, late, err := svc.AutoUpdateAvailableAndLateScheduledRoute(context.Background())
	if err != nil {
		t.Fatalf("AutoUpdateAvailableAndLateScheduledRoute: %v", err)
	}
	if requeued != 1 {
		t.Errorf("requeued = %d, want 1", requeued)
	}
	if late != 1 {
		t.Errorf("late = %d, want 1", late)
	}
	if repo.routes["rt-stale"].Status != models.RouteStatusCanceled {
		t.Error("stale pending route should be canceled")
	}
	if late2.Status != models.RouteStatusLate {
		t.Errorf("rt-late-2 status = %q, want late", late2.Status)
	}
	if late1.Status != models.RouteStatusProcessing {
		t.Errorf("rt-late-1 status = %q, conflicting route should be untouched", late1.Status)
	}
}
