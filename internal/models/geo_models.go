package models

// Coordinates is a [longitude, latitude] pair, the order used by the
// optimization provider's wire format.
type Coordinates [2]float64

func (c Coordinates) Lon() float64 { return c[0] }
func (c Coordinates) Lat() float64 { return c[1] }

// Vehicle describes one collaborator's capacity for an optimization call.
type Vehicle struct {
	ID         int         `json:"id"`
	Start      Coordinates `json:"start"`
	End        Coordinates `json:"end"`
	Capacity   []int       `json:"capacity"`
	Skills     []int       `json:"skills,omitempty"`
	TimeWindow []int64     `json:"time_window,omitempty"`
}

// ShipmentPoint is the pickup or delivery half of a shipment.
type ShipmentPoint struct {
	ID       int         `json:"id"`
	Service  int         `json:"service,omitempty"`
	Location Coordinates `json:"location"`
}

// Shipment models one delivery request as a pickup+delivery pair with demand.
type Shipment struct {
	Amount   []int         `json:"amount"`
	Pickup   ShipmentPoint `json:"pickup"`
	Delivery ShipmentPoint `json:"delivery"`
	Skills   []int         `json:"skills,omitempty"`
}

// OptimizationStep is one stop in a vehicle's ordered step sequence.
type OptimizationStep struct {
	Type     string      `json:"type"` // start, pickup, delivery, end
	ID       int         `json:"id,omitempty"`
	Location Coordinates `json:"location"`
	Arrival  int64       `json:"arrival"`  // cumulative seconds
	Duration int64       `json:"duration"` // cumulative travel seconds
	Distance int64       `json:"distance"` // cumulative meters
	Load     []int       `json:"load,omitempty"`
}

// OptimizedRoute is the ordered step sequence produced for one vehicle.
type OptimizedRoute struct {
	Vehicle int                `json:"vehicle"`
	Cost    int64              `json:"cost"`
	Steps   []OptimizationStep `json:"steps"`
}

// UnassignedShipment identifies a shipment the optimizer could not place.
type UnassignedShipment struct {
	ID int `json:"id"`
}

// OptimizationResult is the provider's answer for one optimization call.
type OptimizationResult struct {
	Routes     []OptimizedRoute     `json:"routes"`
	Unassigned []UnassignedShipment `json:"unassigned"`
}
