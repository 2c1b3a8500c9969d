package models

import "errors"

var (
	// ErrNotFound is returned when a requested resource is not found
	// or is not visible to the caller's role.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidStateTransition is returned when an operation does not match
	// the entity's current lifecycle state (e.g. starting a route that has
	// not been accepted, or skipping a delivery status).
	ErrInvalidStateTransition = errors.New("operation not valid in current state")

	// ErrAlreadyAccepted is returned to the loser of a concurrent route
	// acceptance; exactly one contributor can own a route.
	ErrAlreadyAccepted = errors.New("scheduled route has already been accepted")

	// ErrCancelReasonTooShort is returned when a cancellation reason does not
	// meet the minimum length requirement.
	ErrCancelReasonTooShort = errors.New("cancellation reason must be at least 25 characters")

	// ErrReportNotAllowed is returned when a report is filed outside the
	// shipping..delivered window or by a party with no stake in the request.
	ErrReportNotAllowed = errors.New("report not allowed for this delivery request")

	// ErrGeocode is returned when a location string cannot be resolved
	// to coordinates.
	ErrGeocode = errors.New("location could not be geocoded")

	// ErrOptimization is returned when the route optimization provider fails
	// or times out. No partial route is persisted in that case.
	ErrOptimization = errors.New("route optimization failed")

	// ErrConflict is returned when a write loses a race with a concurrent
	// mutation of the same entity (status changed under us).
	ErrConflict = errors.New("conflicting concurrent update")
)

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}
