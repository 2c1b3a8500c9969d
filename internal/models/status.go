package models

// Delivery request lifecycle states.
const (
	DeliveryStatusPending         = "pending"
	DeliveryStatusAccepted        = "accepted"
	DeliveryStatusShipping        = "shipping"
	DeliveryStatusArrivedPickup   = "arrived_pickup"
	DeliveryStatusCollected       = "collected"
	DeliveryStatusArrivedDelivery = "arrived_delivery"
	DeliveryStatusDelivered       = "delivered"
	DeliveryStatusFinished        = "finished"
	DeliveryStatusReported        = "reported"
	DeliveryStatusExpired         = "expired"
	DeliveryStatusCanceled        = "canceled"
)

// Scheduled route lifecycle states.
const (
	RouteStatusPending    = "pending"
	RouteStatusAccepted   = "accepted"
	RouteStatusProcessing = "processing"
	RouteStatusFinished   = "finished"
	RouteStatusLate       = "late"
	RouteStatusCanceled   = "canceled"
)

// Delivery directions. One batching algorithm handles all three, parameterized
// by where the pickup and delivery points of each shipment resolve to.
const (
	KindDonorToBranch     = "donor_to_branch"
	KindBranchToRecipient = "branch_to_recipient"
	KindBranchToBranch    = "branch_to_branch"
)

// deliveryChain is the forward path of the delivery request lifecycle.
// Transitions are single-step only; reported/expired/canceled are side exits.
var deliveryChain = []string{
	DeliveryStatusPending,
	DeliveryStatusAccepted,
	DeliveryStatusShipping,
	DeliveryStatusArrivedPickup,
	DeliveryStatusCollected,
	DeliveryStatusArrivedDelivery,
	DeliveryStatusDelivered,
	DeliveryStatusFinished,
}

// NextDeliveryStatus returns the next state on the forward chain.
// It returns ErrInvalidStateTransition when the current state is terminal
// or off the main chain (reported, expired, canceled).
func NextDeliveryStatus(current string) (string, error) {
	for i, s := range deliveryChain {
		if s != current {
			continue
		}
		if i == len(deliveryChain)-1 {
			return "", ErrInvalidStateTransition
		}
		return deliveryChain[i+1], nil
	}
	return "", ErrInvalidStateTransition
}

// IsValidDeliveryStep reports whether from -> to is one forward step on the chain.
func IsValidDeliveryStep(from, to string) bool {
	next, err := NextDeliveryStatus(from)
	return err == nil && next == to
}

// IsDeliveryCancelable reports whether a delivery request may still be canceled
// by its requester or a branch admin.
func IsDeliveryCancelable(status string) bool {
	return status == DeliveryStatusPending || status == DeliveryStatusAccepted
}

// IsDeliveryReportable reports whether a report may be filed in the given
// state. Reports are limited to the in-transit window, shipping through delivered.
func IsDeliveryReportable(status string) bool {
	switch status {
	case DeliveryStatusShipping, DeliveryStatusArrivedPickup, DeliveryStatusCollected,
		DeliveryStatusArrivedDelivery, DeliveryStatusDelivered:
		return true
	}
	return false
}

// IsDeliveryTerminal reports whether the state admits no further transitions.
func IsDeliveryTerminal(status string) bool {
	return status == DeliveryStatusFinished || status == DeliveryStatusExpired ||
		status == DeliveryStatusCanceled
}

// IsRouteCancelable reports whether a scheduled route may still be canceled.
func IsRouteCancelable(status string) bool {
	return status == RouteStatusPending || status == RouteStatusAccepted
}

// IsRouteActive reports whether a route still holds its member delivery
// requests (i.e. they must not be picked up by a new batching cycle).
func IsRouteActive(status string) bool {
	switch status {
	case RouteStatusPending, RouteStatusAccepted, RouteStatusProcessing, RouteStatusLate:
		return true
	}
	return false
}
