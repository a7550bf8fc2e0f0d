package api

import (
	"github.com/soilwatch/soilwatch/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"` // ok | degraded
	Database    string `json:"database"`
	SensorCount int    `json:"sensor_count"`
	GeneratedAt string `json:"generated_at"` // RFC3339
}

// SensorResponse is one sensor entry in GET /api/v1/sensors or
// GET /api/v1/sensors/{id}/reading.
type SensorResponse struct {
	SensorID    string             `json:"sensor_id"`
	Parameters  map[string]float64 `json:"parameters"`
	Timestamp   string             `json:"timestamp"`   // RFC3339, sensor clock
	ReceivedAt  string             `json:"received_at"` // RFC3339, server clock
	Diagnostics []DiagnosticHint   `json:"diagnostics"`
}

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Alerts []types.AlertRecord `json:"alerts"`
	Count  int                 `json:"count"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
