// Package gateway contains the payment gateway simulator used in place of
// a real processor. It reproduces the latency and failure profile of a
// remote provider so the ledger's error paths stay exercised.
package gateway

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
)

var tracer = otel.Tracer("gateway/simulator")

var errProviderUnavailable = errors.New("provider temporarily unavailable")

// Config tunes the simulator. A non-zero Seed pins the random source so a
// run (or a test) is reproducible.
type Config struct {
	MinLatency             time.Duration
	MaxLatency             time.Duration
	Timeout                time.Duration
	ConsumptionFailureRate float64
	PaymentFailureRate     float64
	Seed                   int64
}

// Simulator implements port.PaymentGateway with configurable latency and
// failure injection.
type Simulator struct {
	cfg    Config
	logger *zap.Logger

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

// NewSimulator builds a simulator. Seed zero means a time-based seed.
func NewSimulator(cfg Config, logger *zap.Logger) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// ConfirmConsumption authorizes a credit debit.
func (s *Simulator) ConfirmConsumption(ctx context.Context, userID string, cost int64) error {
	ctx, span := tracer.Start(ctx, "Gateway.ConfirmConsumption")
	defer span.End()

	err := s.confirm(ctx, "consumption", s.cfg.ConsumptionFailureRate)
	if err != nil {
		s.logger.Debug("consumption confirmation failed",
			zap.String("user_id", userID),
			zap.Int64("cost", cost),
			zap.Error(err))
	}
	return err
}

// ConfirmPayment charges for a plan purchase or upgrade.
func (s *Simulator) ConfirmPayment(ctx context.Context, userID, planID string, amountCents int64) error {
	ctx, span := tracer.Start(ctx, "Gateway.ConfirmPayment")
	defer span.End()

	err := s.confirm(ctx, "payment", s.cfg.PaymentFailureRate)
	if err != nil {
		s.logger.Debug("payment confirmation failed",
			zap.String("user_id", userID),
			zap.String("plan_id", planID),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err))
	}
	return err
}

func (s *Simulator) confirm(ctx context.Context, operation string, failureRate float64) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	// Draw latency and outcome up front so the decision is a single
	// consumption of the seeded stream regardless of scheduling.
	s.mu.Lock()
	delay := s.cfg.MinLatency
	if band := s.cfg.MaxLatency - s.cfg.MinLatency; band > 0 {
		delay += time.Duration(s.rng.Int63n(int64(band)))
	}
	fail := s.rng.Float64() < failureRate
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &domain.ErrTimeout{Operation: operation}
		}
		return ctx.Err()
	case <-time.After(delay):
	}

	if fail {
		return &domain.ErrTransient{Operation: operation, Err: errProviderUnavailable}
	}
	return nil
}
