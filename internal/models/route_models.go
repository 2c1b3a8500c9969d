package models

import (
	"database/sql"
	"time"
)

// ScheduledRouteDeliveryRequest is the membership/ordering record linking a
// route to one of its delivery requests. Order values within a route form a
// contiguous sequence starting at 1. Its status moves in lockstep with the
// delivery request's own status.
type ScheduledRouteDeliveryRequest struct {
	RouteID           string         `json:"route_id"`
	DeliveryRequestID string         `json:"delivery_request_id"`
	ReportID          sql.NullString `json:"report_id,omitempty"`
	Status            string         `json:"status"`
	Order             int            `json:"order"`
	// Travel metrics to the next stop, from the optimizer's step sequence.
	TravelTimeSeconds    int `json:"travel_time_seconds"`
	TravelDistanceMeters int `json:"travel_distance_meters"`
}

// ScheduledRoute is a batch of delivery requests assigned to a single
// contributor for sequential fulfillment.
type ScheduledRoute struct {
	ID         string         `json:"id"`
	BranchID   string         `json:"branch_id"`
	Kind       string         `json:"kind"`
	Status     string         `json:"status"`
	UserID     sql.NullString `json:"user_id,omitempty"`
	AcceptedAt sql.NullTime   `json:"accepted_at,omitempty"`
	StartedAt  sql.NullTime   `json:"started_at,omitempty"`
	FinishedAt sql.NullTime   `json:"finished_at,omitempty"`
	// Scheduled window the route must complete within; past EndsAt an
	// accepted/processing route is flagged late.
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Members []ScheduledRouteDeliveryRequest `json:"members"`
}

// CurrentStop returns the member at the lowest order whose delivery request
// has not yet reached delivered or a terminal side state, or nil when every
// stop is done.
func (r *ScheduledRoute) CurrentStop() *ScheduledRouteDeliveryRequest {
	for i := range r.Members {
		m := &r.Members[i]
		switch m.Status {
		case DeliveryStatusDelivered, DeliveryStatusFinished, DeliveryStatusCanceled:
			continue
		}
		return m
	}
	return nil
}

// --- Request/response DTOs ---

// RouteActionRequest carries the contributor's reported location for
// accept/start actions.
type RouteActionRequest struct {
	Latitude  float64 `json:"latitude" validate:"required"`
	Longitude float64 `json:"longitude" validate:"required"`
}

// GiveItemsRequest records the stock handed over at route start.
type GiveItemsRequest struct {
	Items []ReceivedQuantityInput `json:"items" validate:"required,min=1,dive"`
}

// ReceiveItemsRequest records the quantities confirmed at route finish.
// Shortfalls against the requested quantities are recorded, not rejected.
type ReceiveItemsRequest struct {
	Items      []ReceivedQuantityInput `json:"items" validate:"required,min=1,dive"`
	ProofImage string                  `json:"proof_image,omitempty"`
}

// RouteFilter narrows scheduled-route list queries.
type RouteFilter struct {
	Status   string `query:"status"`
	BranchID string `query:"branch_id"`
}
