package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// LedgerMetrics is returned by GET /v1/metrics/ledger.
type LedgerMetrics struct {
	TotalOperations    int64   `json:"totalOperations"`
	AppliedOperations  int64   `json:"appliedOperations"`
	RejectedOperations int64   `json:"rejectedOperations"`
	RejectionRate      float64 `json:"rejectionRate"`
	StoreErrors        int64   `json:"storeErrors"`
	IdempotentReplays  int64   `json:"idempotentReplays"`
	Period             string  `json:"period"`
}

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}
