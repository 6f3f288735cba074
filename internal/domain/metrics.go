package domain

// LedgerMetrics is the aggregate snapshot served by GET /v1/metrics/ledger,
// meant for admin dashboards rather than Prometheus scraping.
type LedgerMetrics struct {
	TotalConsumptions   int64   `json:"totalConsumptions"`
	AppliedConsumptions int64   `json:"appliedConsumptions"`
	DeniedConsumptions  int64   `json:"deniedConsumptions"`
	FailedConsumptions  int64   `json:"failedConsumptions"`
	CreditsConsumed     int64   `json:"creditsConsumed"`
	DenialRate          float64 `json:"denialRate"`
	GatewayFailureRate  float64 `json:"gatewayFailureRate"`
	SubscriptionEvents  int64   `json:"subscriptionEvents"`
	CacheHitRate        float64 `json:"cacheHitRate"`
	Period              string  `json:"period"`
}
