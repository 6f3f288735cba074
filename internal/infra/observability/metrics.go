package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the credit ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	consumptionsTotal  *prometheus.CounterVec
	creditsConsumed    *prometheus.CounterVec
	gatewayErrors      *prometheus.CounterVec
	transactionsTotal  *prometheus.CounterVec
	subscriptionEvents *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		consumptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_consumptions_total",
				Help: "Consumption attempts by outcome.",
			},
			[]string{"outcome"},
		),
		creditsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_credits_consumed_total",
				Help: "Credits debited, by action.",
			},
			[]string{"action"},
		),
		gatewayErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_gateway_errors_total",
				Help: "Payment gateway failures by operation.",
			},
			[]string{"operation"},
		),
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Ledger entries appended, by type.",
			},
			[]string{"type"},
		),
		subscriptionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_subscription_events_total",
				Help: "Subscription lifecycle events.",
			},
			[]string{"event"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrConsumption counts one consumption attempt with its outcome
// (applied, denied, failed).
func (m *Metrics) IncrConsumption(outcome string) {
	m.consumptionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCreditsConsumed adds debited credits for an action.
func (m *Metrics) RecordCreditsConsumed(action string, credits int64) {
	m.creditsConsumed.WithLabelValues(action).Add(float64(credits))
}

// IncrGatewayError counts a payment gateway failure.
func (m *Metrics) IncrGatewayError(operation string) {
	m.gatewayErrors.WithLabelValues(operation).Inc()
}

// IncrTransaction counts an appended ledger entry.
func (m *Metrics) IncrTransaction(txType string) {
	m.transactionsTotal.WithLabelValues(txType).Inc()
}

// IncrSubscriptionEvent counts a lifecycle event (purchase, upgrade,
// cancel, reactivate, expire).
func (m *Metrics) IncrSubscriptionEvent(event string) {
	m.subscriptionEvents.WithLabelValues(event).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetLedgerSnapshot returns a snapshot of ledger metrics suitable for the
// GET /v1/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	applied := getCounterValue(m.consumptionsTotal, "applied")
	denied := getCounterValue(m.consumptionsTotal, "denied")
	failed := getCounterValue(m.consumptionsTotal, "failed")
	total := applied + denied + failed

	var credits float64
	for action := range domain.Actions() {
		credits += getCounterValue(m.creditsConsumed, action)
	}
	credits += getCounterValue(m.creditsConsumed, "custom")

	var subEvents float64
	for _, ev := range []string{"purchase", "upgrade", "cancel", "reactivate", "expire"} {
		subEvents += getCounterValue(m.subscriptionEvents, ev)
	}

	hits := getCounterValue(m.cacheHits, "balance")
	misses := getCounterValue(m.cacheMisses, "balance")

	denialRate := float64(0)
	failureRate := float64(0)
	if total > 0 {
		denialRate = denied / total
		failureRate = failed / total
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.LedgerMetrics{
		TotalConsumptions:   int64(total),
		AppliedConsumptions: int64(applied),
		DeniedConsumptions:  int64(denied),
		FailedConsumptions:  int64(failed),
		CreditsConsumed:     int64(credits),
		DenialRate:          denialRate,
		GatewayFailureRate:  failureRate,
		SubscriptionEvents:  int64(subEvents),
		CacheHitRate:        cacheHitRate,
		Period:              "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
