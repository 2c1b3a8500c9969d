package models

import "time"

// Stock movement directions. Exports happen when a contributor picks items
// up at the branch; imports when delivered goods are confirmed received.
const (
	StockMovementExport = "export"
	StockMovementImport = "import"
)

// StockLot is a batch of a single item held at a branch with an expiration.
type StockLot struct {
	ID        string    `json:"id"`
	BranchID  string    `json:"branch_id"`
	ItemID    string    `json:"item_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
	IsExpired bool      `json:"is_expired"`
	CreatedAt time.Time `json:"created_at"`
}

// StockMovement records items entering or leaving a branch as part of a
// scheduled route's item handoff.
type StockMovement struct {
	ID                string    `json:"id"`
	BranchID          string    `json:"branch_id"`
	RouteID           string    `json:"route_id"`
	DeliveryRequestID string    `json:"delivery_request_id"`
	DeliveryItemID    string    `json:"delivery_item_id"`
	Direction         string    `json:"direction"`
	Quantity          int       `json:"quantity"`
	CreatedAt         time.Time `json:"created_at"`
}
