package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status    string          `json:"status"` // "running" or "idle"
	Version   string          `json:"version,omitempty"`
	Progress  ProgressStatus  `json:"progress"`
	Telemetry TelemetryStatus `json:"telemetry"`
}

// ProgressStatus counts the units started by the current or last run.
type ProgressStatus struct {
	Jobs      int64 `json:"jobs"`
	DataFlows int64 `json:"data_flows"`
	Steps     int64 `json:"steps"`
	Actions   int64 `json:"actions"`
}

// TelemetryStatus reports the state of the OpenTelemetry exporters.
type TelemetryStatus struct {
	Exporting bool `json:"exporting"`
	Degraded  bool `json:"degraded"`
}
