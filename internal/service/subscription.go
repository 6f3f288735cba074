package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
	"github.com/rpironato1/credit-ledger-go/internal/infra/observability"
	"github.com/rpironato1/credit-ledger-go/internal/port"
)

var subscriptionTracer = otel.Tracer("service/subscription")

// SubscriptionService reconciles the subscription lifecycle with the credit
// balance: purchase, plan change, cancel, reactivate. Like the authorizer it
// holds the user's lock across gateway confirmation and apply, and it always
// records the actual combined balance delta in the ledger entry.
type SubscriptionService struct {
	ledger  *LedgerService
	gateway port.PaymentGateway
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewSubscriptionService creates the subscription reconciler.
func NewSubscriptionService(ledger *LedgerService, gateway port.PaymentGateway, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		ledger:  ledger,
		gateway: gateway,
		cb:      cb,
		metrics: metrics,
		logger:  logger,
	}
}

// Get returns the user's subscription after applying lazy expiry.
func (s *SubscriptionService) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	ctx, span := subscriptionTracer.Start(ctx, "SubscriptionService.Get")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("get_subscription", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}

	unlock := s.ledger.lockUser(userID)
	defer unlock()

	_, sub, err := s.ledger.syncedStateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, &domain.ErrNotFound{Resource: "subscription", ID: userID}
	}
	out := *sub
	return &out, nil
}

// Purchase starts or renews a subscription. The monthly allowance is reset
// to the plan's credits (a full reset, not additive); bonus credits are
// untouched. Re-purchasing the currently active plan renews the period and
// tops the allowance back up without creating a second subscription.
func (s *SubscriptionService) Purchase(ctx context.Context, userID string, req *domain.PurchaseRequest) (*domain.SubscriptionResult, error) {
	ctx, span := subscriptionTracer.Start(ctx, "SubscriptionService.Purchase")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("purchase", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}
	if req == nil || req.PlanID == "" {
		return nil, &domain.ErrValidation{Field: "planId", Message: "must not be empty"}
	}
	plan, err := domain.LookupPlan(req.PlanID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("plan.id", plan.ID))

	unlock := s.ledger.lockUser(userID)
	defer unlock()

	balance, sub, err := s.ledger.syncedStateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.confirmPayment(ctx, userID, plan.ID, plan.PriceCents, "purchase"); err != nil {
		return nil, err
	}

	now := s.ledger.now().UTC()
	periodEnd := now.AddDate(0, 0, plan.PeriodDays)

	if sub == nil {
		sub = &domain.Subscription{
			ID:        "sub_" + uuid.NewString(),
			UserID:    userID,
			CreatedAt: now,
		}
	}
	sub.PlanID = plan.ID
	sub.Status = domain.SubActive
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = periodEnd
	sub.NextBillingDate = periodEnd
	sub.CancelAtPeriodEnd = false
	sub.CancelledAt = nil
	sub.UpdatedAt = now

	delta := balance.ResetTo(plan.Credits)

	if err := s.ledger.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if delta != 0 {
		tx := &domain.Transaction{
			UserID:      userID,
			Type:        domain.TxSubscription,
			Amount:      delta,
			Description: fmt.Sprintf("plan %s activated", plan.ID),
			Metadata:    map[string]string{"planId": plan.ID, "event": "purchase"},
		}
		if err := s.ledger.applyLocked(ctx, balance, tx); err != nil {
			return nil, err
		}
	} else if err := s.ledger.store.SaveBalance(ctx, balance); err != nil {
		return nil, err
	}

	s.metrics.IncrSubscriptionEvent("purchase")
	s.logger.Info("subscription purchased",
		zap.String("user_id", userID),
		zap.String("plan_id", plan.ID),
		zap.Int64("delta", delta))

	return s.result(sub, balance, 0), nil
}

// ChangePlan moves an active subscription to another plan mid-period.
// Upgrades grant a prorated bonus of floor(remaining/period * credit
// difference); downgrades grant nothing, and allowance credits beyond the
// new monthly cap spill into the bonus pool instead of vanishing.
func (s *SubscriptionService) ChangePlan(ctx context.Context, userID string, req *domain.ChangePlanRequest) (*domain.SubscriptionResult, error) {
	ctx, span := subscriptionTracer.Start(ctx, "SubscriptionService.ChangePlan")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("change_plan", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}
	if req == nil || req.PlanID == "" {
		return nil, &domain.ErrValidation{Field: "planId", Message: "must not be empty"}
	}
	newPlan, err := domain.LookupPlan(req.PlanID)
	if err != nil {
		return nil, err
	}

	unlock := s.ledger.lockUser(userID)
	defer unlock()

	balance, sub, err := s.ledger.syncedStateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, &domain.ErrNotFound{Resource: "subscription", ID: userID}
	}
	if sub.Status != domain.SubActive {
		return nil, &domain.ErrInvalidState{Operation: "change plan of", Status: string(sub.Status)}
	}
	if sub.PlanID == newPlan.ID {
		// Same plan: nothing to do, report current state.
		return s.result(sub, balance, 0), nil
	}

	oldPlan, err := domain.LookupPlan(sub.PlanID)
	if err != nil {
		return nil, err
	}

	if err := s.confirmPayment(ctx, userID, newPlan.ID, newPlan.PriceCents, "upgrade"); err != nil {
		return nil, err
	}

	now := s.ledger.now().UTC()
	var bonus int64
	if diff := newPlan.Credits - oldPlan.Credits; diff > 0 {
		remaining := int64(sub.RemainingDays(now))
		bonus = remaining * diff / int64(oldPlan.PeriodDays)
	}

	sub.PlanID = newPlan.ID
	sub.UpdatedAt = now
	balance.Monthly = newPlan.Credits
	balance.Clamp()
	if bonus > 0 {
		if err := balance.Credit(bonus); err != nil {
			return nil, err
		}
	}

	if err := s.ledger.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if bonus > 0 {
		tx := &domain.Transaction{
			UserID:      userID,
			Type:        domain.TxSubscription,
			Amount:      bonus,
			Description: fmt.Sprintf("plan change %s -> %s, prorated bonus", oldPlan.ID, newPlan.ID),
			Metadata: map[string]string{
				"fromPlanId": oldPlan.ID,
				"toPlanId":   newPlan.ID,
				"event":      "upgrade",
			},
		}
		if err := s.ledger.applyLocked(ctx, balance, tx); err != nil {
			return nil, err
		}
	} else if err := s.ledger.store.SaveBalance(ctx, balance); err != nil {
		return nil, err
	}

	s.metrics.IncrSubscriptionEvent("upgrade")
	s.logger.Info("subscription plan changed",
		zap.String("user_id", userID),
		zap.String("from", oldPlan.ID),
		zap.String("to", newPlan.ID),
		zap.Int64("bonus", bonus))

	return s.result(sub, balance, bonus), nil
}

// Cancel marks the subscription to end at the period boundary. Credits stay
// usable until then, so no ledger entry is written.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) (*domain.Subscription, error) {
	ctx, span := subscriptionTracer.Start(ctx, "SubscriptionService.Cancel")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("cancel", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}

	unlock := s.ledger.lockUser(userID)
	defer unlock()

	_, sub, err := s.ledger.syncedStateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, &domain.ErrNotFound{Resource: "subscription", ID: userID}
	}
	if sub.Status != domain.SubActive && sub.Status != domain.SubPastDue {
		return nil, &domain.ErrInvalidState{Operation: "cancel", Status: string(sub.Status)}
	}

	now := s.ledger.now().UTC()
	sub.Status = domain.SubCancelled
	sub.CancelAtPeriodEnd = true
	sub.CancelledAt = &now
	sub.UpdatedAt = now

	if err := s.ledger.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	s.metrics.IncrSubscriptionEvent("cancel")
	s.logger.Info("subscription cancelled",
		zap.String("user_id", userID),
		zap.String("plan_id", sub.PlanID),
		zap.Time("period_end", sub.CurrentPeriodEnd))

	out := *sub
	return &out, nil
}

// Reactivate undoes a cancellation before the period ends. The balance is
// untouched, the user never lost access to their credits.
func (s *SubscriptionService) Reactivate(ctx context.Context, userID string) (*domain.Subscription, error) {
	ctx, span := subscriptionTracer.Start(ctx, "SubscriptionService.Reactivate")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("reactivate", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}

	unlock := s.ledger.lockUser(userID)
	defer unlock()

	_, sub, err := s.ledger.syncedStateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, &domain.ErrNotFound{Resource: "subscription", ID: userID}
	}
	if sub.Status != domain.SubCancelled {
		return nil, &domain.ErrInvalidState{Operation: "reactivate", Status: string(sub.Status)}
	}

	now := s.ledger.now().UTC()
	sub.Status = domain.SubActive
	sub.CancelAtPeriodEnd = false
	sub.CancelledAt = nil
	sub.UpdatedAt = now

	if err := s.ledger.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	s.metrics.IncrSubscriptionEvent("reactivate")
	s.logger.Info("subscription reactivated",
		zap.String("user_id", userID),
		zap.String("plan_id", sub.PlanID))

	out := *sub
	return &out, nil
}

func (s *SubscriptionService) confirmPayment(ctx context.Context, userID, planID string, amountCents int64, operation string) error {
	if _, err := s.cb.Execute(func() (any, error) {
		return nil, s.gateway.ConfirmPayment(ctx, userID, planID, amountCents)
	}); err != nil {
		s.metrics.IncrGatewayError("payment")
		s.logger.Warn("payment confirmation failed",
			zap.String("user_id", userID),
			zap.String("plan_id", planID),
			zap.String("operation", operation),
			zap.Error(err))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.ErrCircuitOpen{Service: "payment-gateway"}
		}
		return err
	}
	return nil
}

func (s *SubscriptionService) result(sub *domain.Subscription, balance *domain.Balance, bonus int64) *domain.SubscriptionResult {
	return &domain.SubscriptionResult{
		Subscription: *sub,
		Balance:      *balance,
		BonusGranted: bonus,
	}
}
