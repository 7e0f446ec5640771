package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual backing service.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// CustomerMetrics is returned by GET /metrics/customers.
type CustomerMetrics struct {
	Registrations    int64   `json:"registrations"`
	Conflicts        int64   `json:"conflicts"`
	LoginsSucceeded  int64   `json:"loginsSucceeded"`
	LoginsFailed     int64   `json:"loginsFailed"`
	LoginFailureRate float64 `json:"loginFailureRate"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	Period           string  `json:"period"`
}
