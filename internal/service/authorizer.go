package service

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
	"github.com/rpironato1/credit-ledger-go/internal/infra/observability"
	"github.com/rpironato1/credit-ledger-go/internal/port"
)

var authorizerTracer = otel.Tracer("service/authorizer")

// AuthorizerService decides whether a billable action may consume credits
// and applies the debit atomically with its ledger entry.
//
// The sequence check -> gateway confirm -> debit runs entirely under the
// user's lock, so two concurrent requests can never both pass the
// affordability check against the same balance. A denial or a gateway
// failure leaves balance and log untouched, and a gateway failure is never
// retried here: retrying an ambiguous confirmation could charge twice.
type AuthorizerService struct {
	ledger  *LedgerService
	gateway port.PaymentGateway
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAuthorizerService creates the consumption authorizer.
func NewAuthorizerService(ledger *LedgerService, gateway port.PaymentGateway, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) *AuthorizerService {
	return &AuthorizerService{
		ledger:  ledger,
		gateway: gateway,
		cb:      cb,
		metrics: metrics,
		logger:  logger,
	}
}

// Consume authorizes and applies one credit debit. All-or-nothing: on any
// error the user's ledger is exactly as it was.
func (s *AuthorizerService) Consume(ctx context.Context, userID string, req *domain.ConsumeRequest) (*domain.ConsumeResult, error) {
	ctx, span := authorizerTracer.Start(ctx, "AuthorizerService.Consume")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("consume", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}
	cost, action, err := resolveCost(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("consume.action", action),
		attribute.Int64("consume.cost", cost),
	)

	unlock := s.ledger.lockUser(userID)
	defer unlock()

	balance, _, err := s.ledger.syncedStateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	if balance.Total() < cost {
		s.metrics.IncrConsumption("denied")
		s.logger.Info("consumption denied",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Int64("cost", cost),
			zap.Int64("available", balance.Total()))
		return nil, &domain.ErrInsufficientCredits{Available: balance.Total(), Required: cost}
	}

	if _, err := s.cb.Execute(func() (any, error) {
		return nil, s.gateway.ConfirmConsumption(ctx, userID, cost)
	}); err != nil {
		s.metrics.IncrConsumption("failed")
		s.metrics.IncrGatewayError("consumption")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ErrCircuitOpen{Service: "payment-gateway"}
		}
		return nil, err
	}

	if err := balance.Spend(cost); err != nil {
		s.metrics.IncrConsumption("denied")
		return nil, err
	}

	description := req.Reason
	if description == "" {
		description = action
	}
	tx := &domain.Transaction{
		UserID:         userID,
		Type:           domain.TxDebit,
		Amount:         -cost,
		Description:    description,
		RelatedService: req.Service,
		Metadata:       req.Metadata,
	}
	if err := s.ledger.applyLocked(ctx, balance, tx); err != nil {
		s.metrics.IncrConsumption("failed")
		return nil, err
	}

	s.metrics.IncrConsumption("applied")
	s.metrics.RecordCreditsConsumed(action, cost)
	s.logger.Debug("consumption applied",
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.Int64("cost", cost),
		zap.Int64("remaining", balance.Total()))

	b := *balance
	return &domain.ConsumeResult{
		Applied:       true,
		Cost:          cost,
		Remaining:     b.Total(),
		Balance:       b,
		TransactionID: tx.ID,
		Transaction:   *tx,
	}, nil
}

// resolveCost maps the request onto the canonical cost table. Named actions
// carry their fixed cost; an explicit cost is only accepted without an
// action name (callers with variable per-assistant pricing resolve it
// themselves).
func resolveCost(req *domain.ConsumeRequest) (int64, string, error) {
	switch {
	case req == nil:
		return 0, "", &domain.ErrValidation{Field: "body", Message: "must not be empty"}
	case req.Action != "" && req.Cost != 0:
		return 0, "", &domain.ErrValidation{Field: "cost", Message: "cost and action are mutually exclusive"}
	case req.Action != "":
		cost, err := domain.LookupActionCost(req.Action)
		if err != nil {
			return 0, "", err
		}
		return cost, req.Action, nil
	case req.Cost > 0:
		return req.Cost, "custom", nil
	default:
		return 0, "", &domain.ErrValidation{Field: "cost", Message: "must be positive"}
	}
}
