package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"charity-delivery/internal/models"
	"charity-delivery/pkg/notify"
)

type fakeGeocoder struct {
	coords models.Coordinates
	err    error
}

func (f *fakeGeocoder) ResolveCoordinates(_ context.Context, _ string) (models.Coordinates, error) {
	return f.coords, f.err
}

type fakePublisher struct {
	events []notify.Event
}

func (f *fakePublisher) Publish(_ string, ev notify.Event) {
	f.events = append(f.events, ev)
}

type fakeReportEmailer struct {
	resolvedTo []string
}

func (f *fakeReportEmailer) SendReportResolved(to, _, _ string) {
	f.resolvedTo = append(f.resolvedTo, to)
}

// fakeRepository keeps delivery requests in memory and records the route
// mutations the service triggers. Route memberships carry their stop order so
// the renormalization contract can be asserted above the SQL layer.
type fakeRepository struct {
	requests map[string]*models.DeliveryRequest
	// membership of requests on an active route, keyed by request id.
	membership map[string]membership
	// ordered members per route id.
	routeMembers map[string][]*models.ScheduledRouteDeliveryRequest

	created        []*models.DeliveryRequest
	removedFrom    []string
	requeuedRoutes []string
	reports        []*models.Report
	received       map[string][]models.ReceivedQuantityInput
	reporterEmail  string
	expireErrs     map[string]error
	expirable      []string
}

type membership struct {
	routeID     string
	routeStatus string
	routeUserID string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		requests:     make(map[string]*models.DeliveryRequest),
		membership:   make(map[string]membership),
		routeMembers: make(map[string][]*models.ScheduledRouteDeliveryRequest),
		received:     make(map[string][]models.ReceivedQuantityInput),
		expireErrs:   make(map[string]error),
	}
}

func (f *fakeRepository) CreateBatch(_ context.Context, reqs []*models.DeliveryRequest) error {
	for _, d := range reqs {
		f.requests[d.ID] = d
	}
	f.created = append(f.created, reqs...)
	return nil
}

func (f *fakeRepository) FindByID(_ context.Context, id string) (*models.DeliveryRequest, error) {
	d, ok := f.requests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return d, nil
}

func (f *fakeRepository) List(_ context.Context, _ models.DeliveryRequestFilter, _, _ int) ([]*models.DeliveryRequest, int, error) {
	var out []*models.DeliveryRequest
	for _, d := range f.requests {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (f *fakeRepository) ListBatchable(_ context.Context, _, _ time.Time) ([]*models.DeliveryRequest, error) {
	return nil, nil
}

func (f *fakeRepository) AdvanceStatus(_ context.Context, id, expected, next string) error {
	d, ok := f.requests[id]
	if !ok {
		return models.ErrNotFound
	}
	if d.Status != expected {
		return models.ErrConflict
	}
	d.Status = next
	return nil
}

func (f *fakeRepository) Cancel(_ context.Context, id, reason string) error {
	d, ok := f.requests[id]
	if !ok {
		return models.ErrNotFound
	}
	d.Status = models.DeliveryStatusCanceled
	d.CancelReason.String, d.CancelReason.Valid = reason, true
	return nil
}

func (f *fakeRepository) FindActiveMembership(_ context.Context, id string) (string, string, string, error) {
	m, ok := f.membership[id]
	if !ok {
		return "", "", "", models.ErrNotFound
	}
	return m.routeID, m.routeStatus, m.routeUserID, nil
}

func (f *fakeRepository) RemoveFromPendingRoute(_ context.Context, routeID, deliveryRequestID string) error {
	f.removedFrom = append(f.removedFrom, routeID)

	var kept []*models.ScheduledRouteDeliveryRequest
	for _, m := range f.routeMembers[routeID] {
		if m.DeliveryRequestID != deliveryRequestID {
			kept = append(kept, m)
		}
	}
	for i, m := range kept {
		m.Order = i + 1
	}
	f.routeMembers[routeID] = kept
	delete(f.membership, deliveryRequestID)
	return nil
}

func (f *fakeRepository) RequeueRouteMembers(_ context.Context, routeID, _ string) error {
	f.requeuedRoutes = append(f.requeuedRoutes, routeID)
	return nil
}

func (f *fakeRepository) FileReport(_ context.Context, report *models.Report, fromStatus string) error {
	d, ok := f.requests[report.DeliveryRequestID]
	if !ok {
		return models.ErrNotFound
	}
	d.ReportedFrom.String, d.ReportedFrom.Valid = fromStatus, true
	d.Status = models.DeliveryStatusReported
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeRepository) ResolveReport(_ context.Context, id, targetStatus, _ string) (string, error) {
	d, ok := f.requests[id]
	if !ok {
		return "", models.ErrNotFound
	}
	d.Status = targetStatus
	return f.reporterEmail, nil
}

func (f *fakeRepository) SetReceivedQuantities(_ context.Context, id string, items []models.ReceivedQuantityInput) error {
	if _, ok := f.requests[id]; !ok {
		return models.ErrNotFound
	}
	f.received[id] = items
	return nil
}

func (f *fakeRepository) ListExpirable(_ context.Context, _ string, _ time.Time) ([]string, error) {
	return f.expirable, nil
}

func (f *fakeRepository) Expire(_ context.Context, id string) error {
	if err := f.expireErrs[id]; err != nil {
		return err
	}
	d, ok := f.requests[id]
	if !ok {
		return models.ErrNotFound
	}
	d.Status = models.DeliveryStatusExpired
	return nil
}

func newTestService(repo *fakeRepository) (*Service, *fakePublisher, *fakeReportEmailer) {
	events := &fakePublisher{}
	emailer := &fakeReportEmailer{}
	return NewService(repo, &fakeGeocoder{coords: models.Coordinates{-122.27, 37.80}}, events, emailer), events, emailer
}

func seedRequest(repo *fakeRepository, id, requester, status string) *models.DeliveryRequest {
	d := &models.DeliveryRequest{
		ID:          id,
		BranchID:    "branch-1",
		Kind:        models.KindBranchToRecipient,
		Status:      status,
		RequesterID: requester,
		Address:     "1234 Grand Avenue, Oakland",
	}
	repo.requests[id] = d
	return d
}

func TestCreateDeliveryRequestsRejectsAmbiguousSource(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)

	req := models.CreateDeliveryRequestsRequest{
		Requests: []models.CreateDeliveryRequestInput{{
			BranchID:         "branch-1",
			DonatedRequestID: "don-1",
			AidRequestID:     "aid-1",
			Kind:             models.KindDonorToBranch,
			Address:          "1234 Grand Avenue, Oakland",
			ScheduledTimes:   []models.ScheduledTimeInput{{Day: "2025-06-10", StartTime: "09:00", EndTime: "12:00"}},
			Items:            []models.DeliveryItemInput{{DonatedItemID: "item-1", Quantity: 2}},
		}},
	}
	if _, err := svc.CreateDeliveryRequests(context.Background(), "user-1", req); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}
	if len(repo.created) != 0 {
		t.Fatal("nothing should be persisted when validation fails")
	}
}

func TestCreateDeliveryRequestsGeocodesAndStoresPending(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)

	req := models.CreateDeliveryRequestsRequest{
		Requests: []models.CreateDeliveryRequestInput{{
			BranchID:       "branch-1",
			AidRequestID:   "aid-1",
			Kind:           models.KindBranchToRecipient,
			Address:        "1234 Grand Avenue, Oakland",
			ScheduledTimes: []models.ScheduledTimeInput{{Day: "2025-06-10", StartTime: "09:00", EndTime: "12:00"}},
			Items:          []models.DeliveryItemInput{{AidItemID: "item-1", Quantity: 3}},
		}},
	}
	created, err := svc.CreateDeliveryRequests(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("CreateDeliveryRequests: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d requests, want 1", len(created))
	}

	d := created[0]
	if d.Status != models.DeliveryStatusPending {
		t.Errorf("status = %q, want pending", d.Status)
	}
	if d.Latitude != 37.80 || d.Longitude != -122.27 {
		t.Errorf("coordinates = (%v, %v), want geocoded values", d.Latitude, d.Longitude)
	}
	if !d.AidRequestID.Valid || d.AidRequestID.String != "aid-1" {
		t.Errorf("aid request id not carried over: %+v", d.AidRequestID)
	}
	if d.TotalQuantity() != 3 {
		t.Errorf("TotalQuantity() = %d, want 3", d.TotalQuantity())
	}
}

func TestGetDeliveryRequestVisibility(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusShipping)
	repo.membership["dr-1"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusProcessing, routeUserID: "contrib-1"}

	if _, err := svc.GetDeliveryRequest(context.Background(), "dr-1", "user-1", models.RoleUser); err != nil {
		t.Errorf("requester should see their own request: %v", err)
	}
	if _, err := svc.GetDeliveryRequest(context.Background(), "dr-1", "contrib-1", models.RoleContributor); err != nil {
		t.Errorf("assigned contributor should see the request: %v", err)
	}
	if _, err := svc.GetDeliveryRequest(context.Background(), "dr-1", "stranger", models.RoleUser); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("stranger err = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetDeliveryRequest(context.Background(), "dr-1", "anyone", models.RoleBranchAdmin); err != nil {
		t.Errorf("branch admin should see everything: %v", err)
	}
}

func TestCancelDeliveryRequestReasonTooShort(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusPending)

	err := svc.CancelDeliveryRequest(context.Background(), "dr-1", "user-1", models.RoleUser, "   too short   ")
	if !errors.Is(err, models.ErrCancelReasonTooShort) {
		t.Fatalf("err = %v, want ErrCancelReasonTooShort", err)
	}
}

func TestCancelDeliveryRequestShrinksPendingRoute(t *testing.T) {
	repo := newFakeRepository()
	svc, events, _ := newTestService(repo)
	seedRequest(repo, "dr-0", "user-0", models.DeliveryStatusPending)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusPending)
	seedRequest(repo, "dr-2", "user-2", models.DeliveryStatusPending)
	repo.membership["dr-1"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusPending}
	repo.routeMembers["rt-1"] = []*models.ScheduledRouteDeliveryRequest{
		{RouteID: "rt-1", DeliveryRequestID: "dr-0", Order: 1},
		{RouteID: "rt-1", DeliveryRequestID: "dr-1", Order: 2},
		{RouteID: "rt-1", DeliveryRequestID: "dr-2", Order: 3},
	}

	reason := strings.Repeat("no longer needed ", 3)
	if err := svc.CancelDeliveryRequest(context.Background(), "dr-1", "user-1", models.RoleUser, reason); err != nil {
		t.Fatalf("CancelDeliveryRequest: %v", err)
	}

	if repo.requests["dr-1"].Status != models.DeliveryStatusCanceled {
		t.Error("request should be canceled")
	}
	if len(repo.removedFrom) != 1 || repo.removedFrom[0] != "rt-1" {
		t.Errorf("pending route should shrink, removedFrom = %v", repo.removedFrom)
	}
	kept := repo.routeMembers["rt-1"]
	if len(kept) != 2 {
		t.Fatalf("route has %d members, want 2", len(kept))
	}
	for i, m := range kept {
		if m.DeliveryRequestID == "dr-1" {
			t.Fatal("canceled request still on the route")
		}
		if m.Order != i+1 {
			t.Errorf("member %s order = %d, want %d (stop orders must stay contiguous)", m.DeliveryRequestID, m.Order, i+1)
		}
	}
	if len(repo.requeuedRoutes) != 0 {
		t.Errorf("pending route must not be requeued, got %v", repo.requeuedRoutes)
	}
	if len(events.events) != 1 || events.events[0].Status != models.DeliveryStatusCanceled {
		t.Errorf("requester should be notified of cancellation, events = %v", events.events)
	}
}

func TestCancelDeliveryRequestRequeuesAcceptedRoute(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusAccepted)
	repo.membership["dr-1"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusAccepted, routeUserID: "contrib-1"}

	reason := "recipient moved out of the area last weekend"
	if err := svc.CancelDeliveryRequest(context.Background(), "dr-1", "user-1", models.RoleUser, reason); err != nil {
		t.Fatalf("CancelDeliveryRequest: %v", err)
	}
	if len(repo.requeuedRoutes) != 1 || repo.requeuedRoutes[0] != "rt-1" {
		t.Errorf("accepted route should be requeued, got %v", repo.requeuedRoutes)
	}
}

func TestCancelDeliveryRequestInTransitRejected(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusShipping)

	reason := "changed my mind about this donation entirely"
	err := svc.CancelDeliveryRequest(context.Background(), "dr-1", "user-1", models.RoleUser, reason)
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestUpdateNextStatusRequiresAssignedContributor(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusShipping)
	repo.membership["dr-1"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusProcessing, routeUserID: "contrib-1"}

	if _, err := svc.UpdateNextStatus(context.Background(), "dr-1", "someone-else", models.RoleContributor); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unassigned contributor err = %v, want ErrNotFound", err)
	}

	d, err := svc.UpdateNextStatus(context.Background(), "dr-1", "contrib-1", models.RoleContributor)
	if err != nil {
		t.Fatalf("UpdateNextStatus: %v", err)
	}
	if d.Status != models.DeliveryStatusArrivedPickup {
		t.Errorf("status = %q, want arrived_pickup", d.Status)
	}
}

func TestUpdateNextStatusNeverFinishes(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusDelivered)
	repo.membership["dr-1"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusProcessing, routeUserID: "contrib-1"}

	if _, err := svc.UpdateNextStatus(context.Background(), "dr-1", "contrib-1", models.RoleContributor); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}
	if repo.requests["dr-1"].Status != models.DeliveryStatusDelivered {
		t.Errorf("status = %q, want delivered untouched", repo.requests["dr-1"].Status)
	}
}

func TestFinishDeliveryRequestConfirmsQuantities(t *testing.T) {
	repo := newFakeRepository()
	svc, events, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusDelivered)

	items := []models.ReceivedQuantityInput{
		{DeliveryItemID: "it-1", ReceivedQuantity: 3},
		{DeliveryItemID: "it-2", ReceivedQuantity: 0},
	}
	d, err := svc.FinishDeliveryRequest(context.Background(), "dr-1", "user-1", models.RoleUser, items)
	if err != nil {
		t.Fatalf("FinishDeliveryRequest: %v", err)
	}
	if d.Status != models.DeliveryStatusFinished {
		t.Errorf("status = %q, want finished", d.Status)
	}
	if len(repo.received["dr-1"]) != 2 {
		t.Errorf("received quantities not recorded: %v", repo.received["dr-1"])
	}
	if len(events.events) != 1 || events.events[0].Status != models.DeliveryStatusFinished {
		t.Errorf("requester should be notified, events = %v", events.events)
	}
}

func TestFinishDeliveryRequestGuards(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusDelivered)
	seedRequest(repo, "dr-2", "user-1", models.DeliveryStatusShipping)

	items := []models.ReceivedQuantityInput{{DeliveryItemID: "it-1", ReceivedQuantity: 1}}

	if _, err := svc.FinishDeliveryRequest(context.Background(), "dr-1", "stranger", models.RoleUser, items); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("stranger err = %v, want ErrNotFound", err)
	}
	if _, err := svc.FinishDeliveryRequest(context.Background(), "dr-2", "user-1", models.RoleUser, items); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Errorf("shipping err = %v, want ErrInvalidStateTransition", err)
	}
	if repo.requests["dr-1"].Status != models.DeliveryStatusDelivered {
		t.Error("rejected confirmations must not change status")
	}
}

func TestSendReportDirections(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusCollected)
	repo.membership["dr-1"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusProcessing, routeUserID: "contrib-1"}

	req := models.SendReportRequest{Content: "recipient refused the entire parcel"}

	report, err := svc.SendReport(context.Background(), "dr-1", "contrib-1", models.RoleContributor, req)
	if err != nil {
		t.Fatalf("contributor SendReport: %v", err)
	}
	if report.Direction != models.ReportDirectionOutbound {
		t.Errorf("contributor report direction = %q, want outbound", report.Direction)
	}
	if !repo.requests["dr-1"].ReportedFrom.Valid || repo.requests["dr-1"].ReportedFrom.String != models.DeliveryStatusCollected {
		t.Errorf("pre-report status not remembered: %+v", repo.requests["dr-1"].ReportedFrom)
	}

	// Reset and report as the requester.
	seedRequest(repo, "dr-2", "user-1", models.DeliveryStatusShipping)
	repo.membership["dr-2"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusProcessing, routeUserID: "contrib-1"}
	report, err = svc.SendReport(context.Background(), "dr-2", "user-1", models.RoleUser, req)
	if err != nil {
		t.Fatalf("requester SendReport: %v", err)
	}
	if report.Direction != models.ReportDirectionInbound {
		t.Errorf("requester report direction = %q, want inbound", report.Direction)
	}

	seedRequest(repo, "dr-3", "user-1", models.DeliveryStatusShipping)
	repo.membership["dr-3"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusProcessing, routeUserID: "contrib-1"}
	if _, err := svc.SendReport(context.Background(), "dr-3", "bystander", models.RoleUser, req); !errors.Is(err, models.ErrReportNotAllowed) {
		t.Errorf("bystander err = %v, want ErrReportNotAllowed", err)
	}
}

func TestSendReportOutsideTransitWindow(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusPending)

	_, err := svc.SendReport(context.Background(), "dr-1", "user-1", models.RoleUser, models.SendReportRequest{Content: "driver never showed up at all"})
	if !errors.Is(err, models.ErrReportNotAllowed) {
		t.Fatalf("err = %v, want ErrReportNotAllowed", err)
	}
}

func TestHandleReportedDeliveryRequestRestores(t *testing.T) {
	repo := newFakeRepository()
	svc, _, emailer := newTestService(repo)
	repo.reporterEmail = "reporter@example.org"
	d := seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusReported)
	d.ReportedFrom.String, d.ReportedFrom.Valid = models.DeliveryStatusCollected, true

	if err := svc.HandleReportedDeliveryRequest(context.Background(), "dr-1", models.DeliveryStatusShipping); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("arbitrary target err = %v, want ErrInvalidStateTransition", err)
	}
	if len(emailer.resolvedTo) != 0 {
		t.Error("no mail should go out on a rejected resolution")
	}

	if err := svc.HandleReportedDeliveryRequest(context.Background(), "dr-1", models.DeliveryStatusCollected); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if d.Status != models.DeliveryStatusCollected {
		t.Errorf("status = %q, want collected", d.Status)
	}
	if len(emailer.resolvedTo) != 1 || emailer.resolvedTo[0] != "reporter@example.org" {
		t.Errorf("reporter should be mailed on resolution, got %v", emailer.resolvedTo)
	}
}

func TestHandleReportedDeliveryRequestCancelRequeuesSiblings(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	d := seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusReported)
	d.ReportedFrom.String, d.ReportedFrom.Valid = models.DeliveryStatusShipping, true
	repo.membership["dr-1"] = membership{routeID: "rt-1", routeStatus: models.RouteStatusProcessing, routeUserID: "contrib-1"}

	if err := svc.HandleReportedDeliveryRequest(context.Background(), "dr-1", models.DeliveryStatusCanceled); err != nil {
		t.Fatalf("cancel resolution: %v", err)
	}
	if d.Status != models.DeliveryStatusCanceled {
		t.Errorf("status = %q, want canceled", d.Status)
	}
	if len(repo.requeuedRoutes) != 1 || repo.requeuedRoutes[0] != "rt-1" {
		t.Errorf("sibling members should be requeued, got %v", repo.requeuedRoutes)
	}
}

func TestExpireSweepSkipsFailures(t *testing.T) {
	repo := newFakeRepository()
	svc, _, _ := newTestService(repo)
	seedRequest(repo, "dr-1", "user-1", models.DeliveryStatusPending)
	seedRequest(repo, "dr-2", "user-2", models.DeliveryStatusPending)
	seedRequest(repo, "dr-3", "user-3", models.DeliveryStatusPending)
	repo.expirable = []string{"dr-1", "dr-2", "dr-3"}
	repo.expireErrs["dr-2"] = models.ErrConflict

	expired, err := svc.UpdateOutDateAidRequests(context.Background())
	if err != nil {
		t.Fatalf("UpdateOutDateAidRequests: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expired = %d, want 2", expired)
	}
	if repo.requests["dr-2"].Status != models.DeliveryStatusPending {
		t.Error("conflicting request should be left untouched")
	}
	if repo.requests["dr-1"].Status != models.DeliveryStatusExpired || repo.requests["dr-3"].Status != models.DeliveryStatusExpired {
		t.Error("remaining requests should be expired")
	}
}
