package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
	"github.com/rpironato1/credit-ledger-go/internal/infra/observability"
	"github.com/rpironato1/credit-ledger-go/internal/infra/resilience"
	"github.com/rpironato1/credit-ledger-go/internal/infra/store"
)

// stubGateway is a hand-rolled port.PaymentGateway for service tests.
// The real latency/failure simulator is tested in its own package.
type stubGateway struct {
	consumeErr   error
	paymentErr   error
	consumeCalls atomic.Int64
	paymentCalls atomic.Int64
}

func (g *stubGateway) ConfirmConsumption(ctx context.Context, userID string, cost int64) error {
	g.consumeCalls.Add(1)
	return g.consumeErr
}

func (g *stubGateway) ConfirmPayment(ctx context.Context, userID, planID string, amountCents int64) error {
	g.paymentCalls.Add(1)
	return g.paymentErr
}

type testStack struct {
	store      *store.FileStore
	gateway    *stubGateway
	ledger     *LedgerService
	authorizer *AuthorizerService
	subs       *SubscriptionService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	st, err := store.NewFileStore("", false, logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	gw := &stubGateway{}
	cb := resilience.NewCircuitBreaker("test-gateway")

	ledger := NewLedgerService(st, metrics, logger)
	return &testStack{
		store:      st,
		gateway:    gw,
		ledger:     ledger,
		authorizer: NewAuthorizerService(ledger, gw, cb, metrics, logger),
		subs:       NewSubscriptionService(ledger, gw, cb, metrics, logger),
	}
}

// freezeClock pins the ledger's clock and returns a function to advance it.
func (ts *testStack) freezeClock(start time.Time) func(d time.Duration) {
	now := start
	ts.ledger.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

// mustPurchase buys a plan or fails the test.
func (ts *testStack) mustPurchase(t *testing.T, userID, planID string) *domain.SubscriptionResult {
	t.Helper()
	res, err := ts.subs.Purchase(context.Background(), userID, &domain.PurchaseRequest{PlanID: planID})
	if err != nil {
		t.Fatalf("purchase %s for %s failed: %v", planID, userID, err)
	}
	return res
}

// replayCheck asserts the replay-from-zero property for a user.
func (ts *testStack) replayCheck(t *testing.T, userID string) {
	t.Helper()
	report, err := ts.ledger.Audit(context.Background(), userID)
	if err != nil {
		t.Fatalf("audit failed for %s: %v", userID, err)
	}
	if !report.Consistent {
		t.Errorf("ledger replay mismatch for %s: replayed=%d stored=%d over %d entries",
			userID, report.ReplayedBalance, report.StoredBalance, report.Entries)
	}
}
