package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"charity-delivery/internal/models"
	"charity-delivery/pkg/notify"

	"github.com/google/uuid"
)

// GeocoderInterface is the slice of the geospatial resolver this module
// needs: turning the request's address into coordinates at creation time.
type GeocoderInterface interface {
	ResolveCoordinates(ctx context.Context, location string) (models.Coordinates, error)
}

// ReportEmailerInterface notifies a reporter that their report was resolved.
// Sends are fire-and-forget; the implementation logs its own failures.
type ReportEmailerInterface interface {
	SendReportResolved(to, deliveryRequestID, resolution string)
}

// ServiceInterface defines the delivery request lifecycle operations.
type ServiceInterface interface {
	CreateDeliveryRequests(ctx context.Context, requesterID string, req models.CreateDeliveryRequestsRequest) ([]*models.DeliveryRequest, error)
	GetDeliveryRequest(ctx context.Context, id, userID, role string) (*models.DeliveryRequest, error)
	ListDeliveryRequests(ctx context.Context, filter models.DeliveryRequestFilter, page, limit int) ([]*models.DeliveryRequest, int, error)
	UpdateNextStatus(ctx context.Context, id, userID, role string) (*models.DeliveryRequest, error)
	// FinishDeliveryRequest is the only path from delivered to finished:
	// the requester (or an admin) confirms the received quantities.
	FinishDeliveryRequest(ctx context.Context, id, userID, role string, items []models.ReceivedQuantityInput) (*models.DeliveryRequest, error)
	CancelDeliveryRequest(ctx context.Context, id, userID, role, reason string) error
	SendReport(ctx context.Context, id, reporterID, role string, req models.SendReportRequest) (*models.Report, error)
	HandleReportedDeliveryRequest(ctx context.Context, id, targetStatus string) error

	// Background sweeps; each returns the number of requests expired.
	UpdateOutDateAidRequests(ctx context.Context) (int, error)
	UpdateOutDateDonatedRequests(ctx context.Context) (int, error)
}

// Service implements the delivery request lifecycle.
type Service struct {
	repo     RepositoryInterface
	geocoder GeocoderInterface
	events   notify.Publisher
	emailer  ReportEmailerInterface
}

// NewService creates a new delivery request service. emailer may be nil when
// outbound mail is not configured.
func NewService(repo RepositoryInterface, geocoder GeocoderInterface, events notify.Publisher, emailer ReportEmailerInterface) *Service {
	return &Service{repo: repo, geocoder: geocoder, events: events, emailer: emailer}
}

// CreateDeliveryRequests validates and stores a batch of new requests in
// pending state. Nothing is persisted if any input is invalid or cannot be
// geocoded.
func (s *Service) CreateDeliveryRequests(ctx context.Context, requesterID string, req models.CreateDeliveryRequestsRequest) ([]*models.DeliveryRequest, error) {
	now := time.Now()
	out := make([]*models.DeliveryRequest, 0, len(req.Requests))

	for _, in := range req.Requests {
		if (in.DonatedRequestID == "") == (in.AidRequestID == "") {
			return nil, fmt.Errorf("exactly one of donated_request_id and aid_request_id must be set: %w", models.ErrInvalidStateTransition)
		}
		for _, it := range in.Items {
			if (it.DonatedItemID == "") == (it.AidItemID == "") {
				return nil, fmt.Errorf("each item needs exactly one of donated_item_id and aid_item_id: %w", models.ErrInvalidStateTransition)
			}
		}

		coords, err := s.geocoder.ResolveCoordinates(ctx, in.Address)
		if err != nil {
			return nil, fmt.Errorf("service.CreateDeliveryRequests: %w", err)
		}

		d := &models.DeliveryRequest{
			ID:          uuid.New().String(),
			BranchID:    in.BranchID,
			Kind:        in.Kind,
			Status:      models.DeliveryStatusPending,
			RequesterID: requesterID,
			Address:     in.Address,
			Latitude:    coords.Lat(),
			Longitude:   coords.Lon(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if in.DonatedRequestID != "" {
			d.DonatedRequestID.String, d.DonatedRequestID.Valid = in.DonatedRequestID, true
		}
		if in.AidRequestID != "" {
			d.AidRequestID.String, d.AidRequestID.Valid = in.AidRequestID, true
		}
		for _, st := range in.ScheduledTimes {
			day, err := time.Parse("2006-01-02", st.Day)
			if err != nil {
				return nil, fmt.Errorf("service.CreateDeliveryRequests day: %w", err)
			}
			d.ScheduledTimes = append(d.ScheduledTimes, models.ScheduledTime{
				Day: day, StartTime: st.StartTime, EndTime: st.EndTime,
			})
		}
		for _, it := range in.Items {
			item := models.DeliveryItem{
				ID:                uuid.New().String(),
				DeliveryRequestID: d.ID,
				Quantity:          it.Quantity,
			}
			if it.AidItemID != "" {
				item.AidItemID.String, item.AidItemID.Valid = it.AidItemID, true
			}
			if it.DonatedItemID != "" {
				item.DonatedItemID.String, item.DonatedItemID.Valid = it.DonatedItemID, true
			}
			d.Items = append(d.Items, item)
		}
		out = append(out, d)
	}

	if err := s.repo.CreateBatch(ctx, out); err != nil {
		return nil, fmt.Errorf("service.CreateDeliveryRequests: %w", err)
	}
	return out, nil
}

// GetDeliveryRequest retrieves one request, enforcing visibility: requesters
// see their own, the assigned contributor sees route members, admins see all.
func (s *Service) GetDeliveryRequest(ctx context.Context, id, userID, role string) (*models.DeliveryRequest, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.GetDeliveryRequest: %w", err)
	}
	if err := s.checkVisibility(ctx, d, userID, role); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) checkVisibility(ctx context.Context, d *models.DeliveryRequest, userID, role string) error {
	switch role {
	case models.RoleAdmin, models.RoleBranchAdmin:
		return nil
	}
	if d.RequesterID == userID {
		return nil
	}
	_, _, routeUserID, err := s.repo.FindActiveMembership(ctx, d.ID)
	if err == nil && routeUserID == userID {
		return nil
	}
	// Return NotFound to avoid leaking information.
	return models.ErrNotFound
}

// ListDeliveryRequests lists requests matching the filter.
func (s *Service) ListDeliveryRequests(ctx context.Context, filter models.DeliveryRequestFilter, page, limit int) ([]*models.DeliveryRequest, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, filter, page, limit)
}

// UpdateNextStatus advances the request exactly one step along the forward
// chain. Only the contributor assigned to the request's route (or an admin)
// may advance it.
func (s *Service) UpdateNextStatus(ctx context.Context, id, userID, role string) (*models.DeliveryRequest, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateNextStatus: %w", err)
	}

	next, err := models.NextDeliveryStatus(d.Status)
	if err != nil {
		return nil, err
	}
	if next == models.DeliveryStatusFinished {
		// The last step requires received-quantity confirmation and goes
		// through FinishDeliveryRequest (or the route's receive-items).
		return nil, models.ErrInvalidStateTransition
	}

	if role != models.RoleAdmin {
		_, _, routeUserID, err := s.repo.FindActiveMembership(ctx, id)
		if err != nil || routeUserID != userID {
			return nil, models.ErrNotFound
		}
	}

	if err := s.repo.AdvanceStatus(ctx, id, d.Status, next); err != nil {
		return nil, fmt.Errorf("service.UpdateNextStatus: %w", err)
	}
	d.Status = next

	s.events.Publish(d.RequesterID, notify.Event{
		Type:              "delivery_request_status",
		DeliveryRequestID: d.ID,
		Status:            next,
	})
	return d, nil
}

// FinishDeliveryRequest confirms the received quantities for a delivered
// request and moves it to finished. A shortfall against the requested
// quantities is recorded, never rejected. Only the requester awaiting the
// goods (or an admin) may confirm.
func (s *Service) FinishDeliveryRequest(ctx context.Context, id, userID, role string, items []models.ReceivedQuantityInput) (*models.DeliveryRequest, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.FinishDeliveryRequest: %w", err)
	}
	if role != models.RoleAdmin && role != models.RoleBranchAdmin && d.RequesterID != userID {
		return nil, models.ErrNotFound
	}
	if d.Status != models.DeliveryStatusDelivered {
		return nil, models.ErrInvalidStateTransition
	}

	if err := s.repo.SetReceivedQuantities(ctx, id, items); err != nil {
		return nil, fmt.Errorf("service.FinishDeliveryRequest: %w", err)
	}
	if err := s.repo.AdvanceStatus(ctx, id, models.DeliveryStatusDelivered, models.DeliveryStatusFinished); err != nil {
		return nil, fmt.Errorf("service.FinishDeliveryRequest: %w", err)
	}

	d, err = s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.FinishDeliveryRequest reload: %w", err)
	}
	s.events.Publish(d.RequesterID, notify.Event{
		Type:              "delivery_request_status",
		DeliveryRequestID: id,
		Status:            models.DeliveryStatusFinished,
	})
	return d, nil
}

// CancelDeliveryRequest terminates a pending/accepted request. A canceled
// route member triggers re-batching of the remaining members: pending routes
// shrink and renormalize, accepted routes are canceled and re-queued.
func (s *Service) CancelDeliveryRequest(ctx context.Context, id, userID, role, reason string) error {
	if len(strings.TrimSpace(reason)) < 25 {
		return models.ErrCancelReasonTooShort
	}

	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.CancelDeliveryRequest: %w", err)
	}
	if role != models.RoleAdmin && role != models.RoleBranchAdmin && d.RequesterID != userID {
		return models.ErrNotFound
	}
	if !models.IsDeliveryCancelable(d.Status) {
		return models.ErrInvalidStateTransition
	}

	routeID, routeStatus, _, err := s.repo.FindActiveMembership(ctx, id)
	hasRoute := err == nil
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("service.CancelDeliveryRequest: %w", err)
	}

	if err := s.repo.Cancel(ctx, id, reason); err != nil {
		return fmt.Errorf("service.CancelDeliveryRequest: %w", err)
	}

	if hasRoute {
		switch routeStatus {
		case models.RouteStatusPending:
			if err := s.repo.RemoveFromPendingRoute(ctx, routeID, id); err != nil {
				return fmt.Errorf("service.CancelDeliveryRequest: %w", err)
			}
		default:
			if err := s.repo.RequeueRouteMembers(ctx, routeID, id); err != nil {
				return fmt.Errorf("service.CancelDeliveryRequest: %w", err)
			}
		}
	}

	s.events.Publish(d.RequesterID, notify.Event{
		Type:              "delivery_request_status",
		DeliveryRequestID: id,
		Status:            models.DeliveryStatusCanceled,
		Message:           reason,
	})
	return nil
}

// SendReport files a complaint against an in-transit request. The assigned
// contributor files outbound, the requester files inbound; nobody else may.
func (s *Service) SendReport(ctx context.Context, id, reporterID, role string, req models.SendReportRequest) (*models.Report, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.SendReport: %w", err)
	}
	if !models.IsDeliveryReportable(d.Status) {
		return nil, models.ErrReportNotAllowed
	}

	routeID, _, routeUserID, err := s.repo.FindActiveMembership(ctx, id)
	if err != nil {
		return nil, models.ErrReportNotAllowed
	}

	var direction string
	switch {
	case reporterID == routeUserID:
		direction = models.ReportDirectionOutbound
	case reporterID == d.RequesterID:
		direction = models.ReportDirectionInbound
	default:
		return nil, models.ErrReportNotAllowed
	}

	report := &models.Report{
		ID:                uuid.New().String(),
		RouteID:           routeID,
		DeliveryRequestID: id,
		ReporterID:        reporterID,
		Direction:         direction,
		Content:           req.Content,
	}
	if err := s.repo.FileReport(ctx, report, d.Status); err != nil {
		return nil, fmt.Errorf("service.SendReport: %w", err)
	}

	s.events.Publish(d.RequesterID, notify.Event{
		Type:              "delivery_request_status",
		DeliveryRequestID: id,
		Status:            models.DeliveryStatusReported,
	})
	return report, nil
}

// HandleReportedDeliveryRequest is the administrative resolution of a
// reported request: restore the pre-report status, or cancel it, in which
// case the sibling route members are re-queued for batching.
func (s *Service) HandleReportedDeliveryRequest(ctx context.Context, id, targetStatus string) error {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.HandleReportedDeliveryRequest: %w", err)
	}
	if d.Status != models.DeliveryStatusReported {
		return models.ErrInvalidStateTransition
	}

	restorable := d.ReportedFrom.Valid && targetStatus == d.ReportedFrom.String
	if !restorable && targetStatus != models.DeliveryStatusCanceled {
		return models.ErrInvalidStateTransition
	}

	resolution := "restored to " + targetStatus
	if targetStatus == models.DeliveryStatusCanceled {
		resolution = "delivery request canceled"
	}

	reporterEmail, err := s.repo.ResolveReport(ctx, id, targetStatus, resolution)
	if err != nil {
		return fmt.Errorf("service.HandleReportedDeliveryRequest: %w", err)
	}
	if s.emailer != nil && reporterEmail != "" {
		s.emailer.SendReportResolved(reporterEmail, id, resolution)
	}

	if targetStatus == models.DeliveryStatusCanceled {
		routeID, _, _, err := s.repo.FindActiveMembership(ctx, id)
		if err == nil {
			if err := s.repo.RequeueRouteMembers(ctx, routeID, id); err != nil {
				return fmt.Errorf("service.HandleReportedDeliveryRequest: %w", err)
			}
		}
	}

	s.events.Publish(d.RequesterID, notify.Event{
		Type:              "delivery_request_status",
		DeliveryRequestID: id,
		Status:            targetStatus,
		Message:           resolution,
	})
	return nil
}

// UpdateOutDateAidRequests expires pending aid-sourced requests whose
// scheduled windows have all elapsed. Failures on single requests are logged
// and skipped; the sweep never aborts as a whole.
func (s *Service) UpdateOutDateAidRequests(ctx context.Context) (int, error) {
	return s.expireOutdated(ctx, "aid")
}

// UpdateOutDateDonatedRequests is the donated-request counterpart.
func (s *Service) UpdateOutDateDonatedRequests(ctx context.Context) (int, error) {
	return s.expireOutdated(ctx, "donated")
}

func (s *Service) expireOutdated(ctx context.Context, source string) (int, error) {
	ids, err := s.repo.ListExpirable(ctx, source, time.Now())
	if err != nil {
		return 0, fmt.Errorf("service.expireOutdated(%s): %w", source, err)
	}

	expired := 0
	for _, id := range ids {
		if err := s.repo.Expire(ctx, id); err != nil {
			log.Printf("expire %s delivery request %s: %v", source, id, err)
			continue
		}
		expired++
	}
	return expired, nil
}
