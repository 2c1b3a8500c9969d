package models

import (
	"database/sql"
	"time"
)

// ScheduledTime is a day plus a start/end window during which a party is
// available for pickup or delivery.
type ScheduledTime struct {
	Day       time.Time `json:"day"`
	StartTime string    `json:"start_time"` // "HH:MM"
	EndTime   string    `json:"end_time"`   // "HH:MM"
}

// Start returns the absolute start instant of the window.
func (st ScheduledTime) Start() time.Time {
	return combine(st.Day, st.StartTime)
}

// End returns the absolute end instant of the window.
func (st ScheduledTime) End() time.Time {
	return combine(st.Day, st.EndTime)
}

// Overlaps reports whether the window intersects [from, to).
func (st ScheduledTime) Overlaps(from, to time.Time) bool {
	return st.Start().Before(to) && st.End().After(from)
}

func combine(day time.Time, hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
}

// DeliveryItem is one line item of a delivery request. Exactly one of
// AidItemID/DonatedItemID is set, matching the owning request's source.
type DeliveryItem struct {
	ID                string         `json:"id"`
	DeliveryRequestID string         `json:"delivery_request_id"`
	AidItemID         sql.NullString `json:"aid_item_id,omitempty"`
	DonatedItemID     sql.NullString `json:"donated_item_id,omitempty"`
	Quantity          int            `json:"quantity"`
	ReceivedQuantity  sql.NullInt32  `json:"received_quantity,omitempty"`
}

// DeliveryRequest is a unit of transportation work moving items between a
// donor/branch/recipient pair. Exactly one of DonatedRequestID/AidRequestID
// is set.
type DeliveryRequest struct {
	ID              string         `json:"id"`
	BranchID        string         `json:"branch_id"`
	DonatedRequestID sql.NullString `json:"donated_request_id,omitempty"`
	AidRequestID    sql.NullString `json:"aid_request_id,omitempty"`
	Kind            string         `json:"kind"`
	Status          string         `json:"status"`
	// ReportedFrom keeps the state held before a report was filed so an
	// admin resolution can restore it.
	ReportedFrom sql.NullString `json:"reported_from,omitempty"`
	// RequesterID is the user who will be notified of status changes.
	RequesterID string `json:"requester_id"`
	// Address and its resolved coordinates of the non-branch endpoint
	// (donor for donor_to_branch, recipient otherwise; destination branch
	// for branch_to_branch).
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	ScheduledTimes       []ScheduledTime `json:"scheduled_times"`
	CurrentScheduledTime *ScheduledTime  `json:"current_scheduled_time,omitempty"`

	Items []DeliveryItem `json:"items"`

	ProofImage   sql.NullString `json:"proof_image,omitempty"`
	CancelReason sql.NullString `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TotalQuantity is the summed demand of all line items, used as the
// shipment volume during batching.
func (d *DeliveryRequest) TotalQuantity() int {
	total := 0
	for _, it := range d.Items {
		total += it.Quantity
	}
	return total
}

// --- Request/response DTOs ---

// ScheduledTimeInput is the wire form of a scheduled time window.
type ScheduledTimeInput struct {
	Day       string `json:"day" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
}

// DeliveryItemInput is one line item of a create request.
type DeliveryItemInput struct {
	AidItemID     string `json:"aid_item_id,omitempty"`
	DonatedItemID string `json:"donated_item_id,omitempty"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
}

// CreateDeliveryRequestInput describes one delivery request to create.
type CreateDeliveryRequestInput struct {
	BranchID         string               `json:"branch_id" validate:"required"`
	DonatedRequestID string               `json:"donated_request_id,omitempty"`
	AidRequestID     string               `json:"aid_request_id,omitempty"`
	Kind             string               `json:"kind" validate:"required,oneof=donor_to_branch branch_to_recipient branch_to_branch"`
	Address          string               `json:"address" validate:"required,min=10"`
	ScheduledTimes   []ScheduledTimeInput `json:"scheduled_times" validate:"required,min=1,dive"`
	Items            []DeliveryItemInput  `json:"items" validate:"required,min=1,dive"`
}

// CreateDeliveryRequestsRequest is the bulk creation payload.
type CreateDeliveryRequestsRequest struct {
	Requests []CreateDeliveryRequestInput `json:"requests" validate:"required,min=1,dive"`
}

// CancelDeliveryRequestRequest carries the mandatory cancellation reason.
type CancelDeliveryRequestRequest struct {
	Reason string `json:"reason" validate:"required,min=25"`
}

// DeliveryRequestFilter narrows list queries.
type DeliveryRequestFilter struct {
	Status   string `query:"status"`
	BranchID string `query:"branch_id"`
	Kind     string `query:"kind"`
}

// HandleReportRequest is the admin resolution of a reported delivery request:
// either restore the pre-report status or cancel it outright.
type HandleReportRequest struct {
	TargetStatus string `json:"target_status" validate:"required"`
}

// FinishDeliveryRequestRequest confirms the quantities received for a
// delivered request. Shortfalls are recorded, not rejected.
type FinishDeliveryRequestRequest struct {
	Items []ReceivedQuantityInput `json:"items" validate:"required,min=1,dive"`
}

// ReceivedQuantityInput records how much of a line item actually arrived.
type ReceivedQuantityInput struct {
	DeliveryItemID   string `json:"delivery_item_id" validate:"required"`
	ReceivedQuantity int    `json:"received_quantity" validate:"gte=0"`
}
