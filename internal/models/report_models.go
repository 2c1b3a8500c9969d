package models

import (
	"database/sql"
	"time"
)

// Report directions: outbound is filed by the assigned contributor,
// inbound by the receiving user or charity unit.
const (
	ReportDirectionOutbound = "outbound"
	ReportDirectionInbound  = "inbound"
)

// Report is a complaint attached to a route-membership record. Once filed,
// the delivery request and its membership move to reported and need an
// administrative resolution before further progress.
type Report struct {
	ID                string         `json:"id"`
	RouteID           string         `json:"route_id"`
	DeliveryRequestID string         `json:"delivery_request_id"`
	ReporterID        string         `json:"reporter_id"`
	Direction         string         `json:"direction"`
	Content           string         `json:"content"`
	Resolution        sql.NullString `json:"resolution,omitempty"`
	ResolvedAt        sql.NullTime   `json:"resolved_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// SendReportRequest is the payload for filing a report.
type SendReportRequest struct {
	Content string `json:"content" validate:"required,min=10"`
}
