package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
)

func TestConfirmNeverFailsAtZeroRate(t *testing.T) {
	s := NewSimulator(Config{
		MaxLatency:             time.Millisecond,
		ConsumptionFailureRate: 0,
		PaymentFailureRate:     0,
		Seed:                   1,
	}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := s.ConfirmConsumption(ctx, "u1", 1); err != nil {
			t.Fatalf("attempt %d: unexpected failure: %v", i, err)
		}
		if err := s.ConfirmPayment(ctx, "u1", domain.PlanInicial, 2990); err != nil {
			t.Fatalf("attempt %d: unexpected payment failure: %v", i, err)
		}
	}
}

func TestConfirmAlwaysFailsAtFullRate(t *testing.T) {
	s := NewSimulator(Config{
		MaxLatency:             time.Millisecond,
		ConsumptionFailureRate: 1,
		Seed:                   1,
	}, zap.NewNop())

	for i := 0; i < 20; i++ {
		err := s.ConfirmConsumption(context.Background(), "u1", 1)
		var transient *domain.ErrTransient
		if !errors.As(err, &transient) {
			t.Fatalf("attempt %d: expected ErrTransient, got %v", i, err)
		}
		if transient.Operation != "consumption" {
			t.Errorf("unexpected operation: %q", transient.Operation)
		}
	}
}

func TestSeededOutcomesAreReproducible(t *testing.T) {
	cfg := Config{
		MaxLatency:             time.Millisecond,
		ConsumptionFailureRate: 0.5,
		Seed:                   99,
	}
	ctx := context.Background()

	run := func() []bool {
		s := NewSimulator(cfg, zap.NewNop())
		outcomes := make([]bool, 0, 40)
		for i := 0; i < 40; i++ {
			outcomes = append(outcomes, s.ConfirmConsumption(ctx, "u1", 1) == nil)
		}
		return outcomes
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("outcome %d diverged between seeded runs", i)
		}
	}

	var failures int
	for _, ok := range first {
		if !ok {
			failures++
		}
	}
	if failures == 0 || failures == len(first) {
		t.Errorf("0.5 failure rate produced %d/%d failures", failures, len(first))
	}
}

func TestLatencyTimeout(t *testing.T) {
	s := NewSimulator(Config{
		MinLatency: 200 * time.Millisecond,
		MaxLatency: 400 * time.Millisecond,
		Timeout:    10 * time.Millisecond,
		Seed:       1,
	}, zap.NewNop())

	err := s.ConfirmPayment(context.Background(), "u1", domain.PlanInicial, 2990)
	var timeout *domain.ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if timeout.Operation != "payment" {
		t.Errorf("unexpected operation: %q", timeout.Operation)
	}
}

func TestCallerCancellation(t *testing.T) {
	s := NewSimulator(Config{
		MinLatency: 200 * time.Millisecond,
		MaxLatency: 400 * time.Millisecond,
		Seed:       1,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.ConfirmConsumption(ctx, "u1", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLatencyStaysWithinBounds(t *testing.T) {
	s := NewSimulator(Config{
		MinLatency: 20 * time.Millisecond,
		MaxLatency: 40 * time.Millisecond,
		Seed:       7,
	}, zap.NewNop())

	for i := 0; i < 5; i++ {
		start := time.Now()
		if err := s.ConfirmConsumption(context.Background(), "u1", 1); err != nil {
			t.Fatalf("unexpected failure: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("call %d returned in %v, below the latency floor", i, elapsed)
		}
	}
}
