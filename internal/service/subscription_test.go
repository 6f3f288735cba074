package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
)

func TestPurchaseFreshUser(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()

	res := ts.mustPurchase(t, "u1", domain.PlanInicial)

	if res.Subscription.Status != domain.SubActive || res.Subscription.PlanID != domain.PlanInicial {
		t.Errorf("unexpected subscription: %+v", res.Subscription)
	}
	if res.Balance.Current != 100 || res.Balance.Monthly != 100 || res.Balance.Bonus != 0 {
		t.Errorf("unexpected balance: %+v", res.Balance)
	}

	txs, _ := ts.ledger.ListTransactions(ctx, "u1", 10)
	if len(txs) != 1 || txs[0].Type != domain.TxSubscription || txs[0].Amount != 100 {
		t.Fatalf("expected one +100 subscription entry, got %+v", txs)
	}
	ts.replayCheck(t, "u1")
}

func TestPurchaseInvalidPlan(t *testing.T) {
	ts := newTestStack(t)

	_, err := ts.subs.Purchase(context.Background(), "u1", &domain.PurchaseRequest{PlanID: "enterprise"})
	var invalidPlan *domain.ErrInvalidPlan
	if !errors.As(err, &invalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
	if got := ts.gateway.paymentCalls.Load(); got != 0 {
		t.Errorf("invalid plan reached the gateway %d times", got)
	}
}

func TestRepurchaseActivePlanTopsUpWithoutNewSubscription(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()

	first := ts.mustPurchase(t, "u1", domain.PlanInicial)
	if _, err := ts.authorizer.Consume(ctx, "u1", &domain.ConsumeRequest{Cost: 53, Reason: "bulk session"}); err != nil {
		t.Fatalf("consume failed: %v", err)
	}

	second := ts.mustPurchase(t, "u1", domain.PlanInicial)

	if second.Subscription.ID != first.Subscription.ID {
		t.Errorf("re-purchase created a new subscription: %s -> %s",
			first.Subscription.ID, second.Subscription.ID)
	}
	if second.Balance.Current != 100 {
		t.Errorf("expected allowance topped back to 100, got %+v", second.Balance)
	}

	// The renewal entry must carry the actual delta (+53), not +100.
	txs, _ := ts.ledger.ListTransactions(ctx, "u1", 10)
	if txs[0].Type != domain.TxSubscription || txs[0].Amount != 53 {
		t.Errorf("expected +53 renewal entry, got %+v", txs[0])
	}
	ts.replayCheck(t, "u1")
}

func TestPurchaseGatewayFailureIsNoOp(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	ts.gateway.paymentErr = &domain.ErrTransient{Operation: "payment", Err: errors.New("card declined upstream")}

	_, err := ts.subs.Purchase(ctx, "u1", &domain.PurchaseRequest{PlanID: domain.PlanInicial})
	var transient *domain.ErrTransient
	if !errors.As(err, &transient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}

	if _, err := ts.subs.Get(ctx, "u1"); !isNotFound(err) {
		t.Errorf("subscription should not exist after failed payment, got %v", err)
	}
	balance, _ := ts.ledger.GetBalance(ctx, "u1")
	if balance.Total() != 0 {
		t.Errorf("balance should be untouched, got %+v", balance)
	}
	txs, _ := ts.ledger.ListTransactions(ctx, "u1", 10)
	if len(txs) != 0 {
		t.Errorf("failed purchase appended %d entries", len(txs))
	}
}

func TestUpgradeGrantsProratedBonus(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	advance := ts.freezeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ts.mustPurchase(t, "u1", domain.PlanInicial) // 100 credits / 30 days
	advance(15 * 24 * time.Hour)                 // half the period left

	res, err := ts.subs.ChangePlan(ctx, "u1", &domain.ChangePlanRequest{PlanID: domain.PlanProfissional})
	if err != nil {
		t.Fatalf("ChangePlan failed: %v", err)
	}

	// floor(15/30 * (800-100)) = 350
	if res.BonusGranted != 350 {
		t.Errorf("expected prorated bonus 350, got %d", res.BonusGranted)
	}
	if res.Subscription.PlanID != domain.PlanProfissional {
		t.Errorf("plan not changed: %+v", res.Subscription)
	}
	if res.Balance.Monthly != 800 || res.Balance.Total() != 450 {
		t.Errorf("unexpected balance after upgrade: %+v", res.Balance)
	}

	txs, _ := ts.ledger.ListTransactions(ctx, "u1", 10)
	if txs[0].Type != domain.TxSubscription || txs[0].Amount != 350 {
		t.Errorf("expected +350 upgrade entry, got %+v", txs[0])
	}
	ts.replayCheck(t, "u1")
}

func TestDowngradeSpillsAllowanceIntoBonus(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	ts.mustPurchase(t, "u1", domain.PlanProfissional) // 800 credits

	res, err := ts.subs.ChangePlan(ctx, "u1", &domain.ChangePlanRequest{PlanID: domain.PlanInicial})
	if err != nil {
		t.Fatalf("ChangePlan failed: %v", err)
	}
	if res.BonusGranted != 0 {
		t.Errorf("downgrade granted a bonus: %d", res.BonusGranted)
	}
	if res.Balance.Current != 100 || res.Balance.Bonus != 700 || res.Balance.Monthly != 100 {
		t.Errorf("expected 100 current + 700 bonus, got %+v", res.Balance)
	}
	ts.replayCheck(t, "u1")
}

func TestChangePlanToSamePlanIsIdempotent(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	ts.mustPurchase(t, "u1", domain.PlanIntermediario)
	calls := ts.gateway.paymentCalls.Load()

	res, err := ts.subs.ChangePlan(ctx, "u1", &domain.ChangePlanRequest{PlanID: domain.PlanIntermediario})
	if err != nil {
		t.Fatalf("ChangePlan failed: %v", err)
	}
	if res.Balance.Current != 300 || res.BonusGranted != 0 {
		t.Errorf("same-plan change mutated state: %+v", res)
	}
	if ts.gateway.paymentCalls.Load() != calls {
		t.Errorf("same-plan change charged the gateway")
	}
}

func TestCancelKeepsCreditsUsableUntilPeriodEnd(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	ts.mustPurchase(t, "u1", domain.PlanInicial)

	sub, err := ts.subs.Cancel(ctx, "u1")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if sub.Status != domain.SubCancelled || !sub.CancelAtPeriodEnd || sub.CancelledAt == nil {
		t.Errorf("unexpected subscription after cancel: %+v", sub)
	}

	// Credits remain spendable within the period.
	res, err := ts.authorizer.Consume(ctx, "u1", &domain.ConsumeRequest{Action: "content_generation"})
	if err != nil {
		t.Fatalf("consume after cancel failed: %v", err)
	}
	if res.Remaining != 98 {
		t.Errorf("expected 98 remaining, got %d", res.Remaining)
	}

	txs, _ := ts.ledger.ListTransactions(ctx, "u1", 10)
	for _, tx := range txs {
		if tx.Type == domain.TxSubscription && tx.Amount < 0 {
			t.Errorf("cancel wrote a ledger entry: %+v", tx)
		}
	}
	ts.replayCheck(t, "u1")
}

func TestReactivateRestoresActiveWithoutCreditChange(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	ts.mustPurchase(t, "u1", domain.PlanInicial)
	before, _ := ts.ledger.GetBalance(ctx, "u1")

	if _, err := ts.subs.Cancel(ctx, "u1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	sub, err := ts.subs.Reactivate(ctx, "u1")
	if err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	if sub.Status != domain.SubActive || sub.CancelAtPeriodEnd || sub.CancelledAt != nil {
		t.Errorf("unexpected subscription after reactivate: %+v", sub)
	}

	after, _ := ts.ledger.GetBalance(ctx, "u1")
	if after.Current != before.Current || after.Bonus != before.Bonus {
		t.Errorf("reactivate changed the balance: before=%+v after=%+v", before, after)
	}
}

func TestLifecycleStateErrors(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()

	// No subscription at all.
	if _, err := ts.subs.Cancel(ctx, "u1"); !isNotFound(err) {
		t.Errorf("cancel without subscription: expected ErrNotFound, got %v", err)
	}
	if _, err := ts.subs.Reactivate(ctx, "u1"); !isNotFound(err) {
		t.Errorf("reactivate without subscription: expected ErrNotFound, got %v", err)
	}

	ts.mustPurchase(t, "u1", domain.PlanInicial)

	// Reactivating an active subscription is invalid.
	_, err := ts.subs.Reactivate(ctx, "u1")
	var invalidState *domain.ErrInvalidState
	if !errors.As(err, &invalidState) {
		t.Errorf("reactivate active: expected ErrInvalidState, got %v", err)
	}

	// Double cancel is invalid.
	if _, err := ts.subs.Cancel(ctx, "u1"); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	if _, err := ts.subs.Cancel(ctx, "u1"); !errors.As(err, &invalidState) {
		t.Errorf("double cancel: expected ErrInvalidState, got %v", err)
	}
}

func TestLapsedPeriodExpiresLazily(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	advance := ts.freezeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ts.mustPurchase(t, "u1", domain.PlanInicial)
	if _, err := ts.ledger.AddCredits(ctx, "u1", 200, "promo"); err != nil {
		t.Fatalf("AddCredits failed: %v", err)
	}
	if _, err := ts.authorizer.Consume(ctx, "u1", &domain.ConsumeRequest{Cost: 6, Reason: "sessions"}); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	// current=94, bonus=200 (allowance full, promo went to bonus).

	advance(31 * 24 * time.Hour)

	balance, err := ts.ledger.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Current != 0 || balance.Monthly != 0 {
		t.Errorf("allowance should be zeroed after expiry, got %+v", balance)
	}
	if balance.Bonus != 200 {
		t.Errorf("bonus credits must survive expiry, got %+v", balance)
	}

	sub, err := ts.subs.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get subscription failed: %v", err)
	}
	if sub.Status != domain.SubExpired {
		t.Errorf("expected expired subscription, got %s", sub.Status)
	}

	// The forfeiture is a ledger entry, keeping replay exact.
	txs, _ := ts.ledger.ListTransactions(ctx, "u1", 10)
	if txs[0].Type != domain.TxSubscription || txs[0].Amount != -94 {
		t.Errorf("expected -94 expiry entry, got %+v", txs[0])
	}
	ts.replayCheck(t, "u1")

	// Bonus credits still spendable, allowance-backed actions denied once drained.
	if _, err := ts.authorizer.Consume(ctx, "u1", &domain.ConsumeRequest{Action: "export"}); err != nil {
		t.Errorf("bonus spend after expiry failed: %v", err)
	}

	// A fresh purchase restores service.
	res := ts.mustPurchase(t, "u1", domain.PlanIntermediario)
	if res.Subscription.Status != domain.SubActive || res.Balance.Current != 300 {
		t.Errorf("re-purchase after expiry: %+v", res)
	}
	ts.replayCheck(t, "u1")
}

func isNotFound(err error) bool {
	var notFound *domain.ErrNotFound
	return errors.As(err, &notFound)
}
