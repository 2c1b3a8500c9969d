package models

import "time"

// Branch is a physical warehouse/distribution point of the charity network.
type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// RankedBranch is a branch annotated with its distance from an origin point.
type RankedBranch struct {
	Branch     Branch  `json:"branch"`
	DistanceKm float64 `json:"distance_km"`
}

// DeliverableBranches is the result of ranking candidate branches by
// distance from a pickup/delivery origin.
type DeliverableBranches struct {
	NearestBranch  *RankedBranch  `json:"nearest_branch"`
	NearbyBranches []RankedBranch `json:"nearby_branches"`
}
