// Package service implements the credit ledger's business logic: balance
// bookkeeping, consumption authorization and the subscription lifecycle.
package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
	"github.com/rpironato1/credit-ledger-go/internal/infra/observability"
	"github.com/rpironato1/credit-ledger-go/internal/port"
)

var ledgerTracer = otel.Tracer("service/ledger")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 50
)

// LedgerService owns balances and the append-only transaction log. Every
// mutation to a user's ledger goes through this service under that user's
// lock; sibling services (authorizer, subscriptions) borrow the lock via
// lockUser and commit through applyLocked.
type LedgerService struct {
	store   port.LedgerStore
	metrics *observability.Metrics
	logger  *zap.Logger

	locks  *userLocks
	flight singleflight.Group
	now    func() time.Time
}

// NewLedgerService creates the ledger service.
func NewLedgerService(store port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:   store,
		metrics: metrics,
		logger:  logger,
		locks:   newUserLocks(),
		now:     time.Now,
	}
}

// lockUser acquires the per-user mutex and returns its unlock function.
func (s *LedgerService) lockUser(userID string) func() {
	return s.locks.Lock(userID)
}

// GetBalance returns the user's balance, lazily initialising a zero balance
// for users the ledger has never seen. Concurrent reads for the same user
// are coalesced.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (*domain.Balance, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetBalance")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("get_balance", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}

	v, err, shared := s.flight.Do("balance:"+userID, func() (any, error) {
		unlock := s.lockUser(userID)
		defer unlock()

		balance, _, err := s.syncedStateLocked(ctx, userID)
		if err != nil {
			return nil, err
		}
		// Copy: callers outside the lock must not alias ledger state.
		b := *balance
		return &b, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.metrics.IncrCacheHit("balance")
	} else {
		s.metrics.IncrCacheMiss("balance")
	}
	return v.(*domain.Balance), nil
}

// ListTransactions returns the most recent entries, newest first.
// A non-positive limit means the default page size.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListTransactions")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("list_transactions", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	txs, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

// Audit replays the user's full transaction log from zero and compares the
// result against the stored combined balance.
func (s *LedgerService) Audit(ctx context.Context, userID string) (*domain.AuditReport, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Audit")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("audit", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}

	unlock := s.lockUser(userID)
	defer unlock()

	balance, _, err := s.syncedStateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	log, err := s.store.AllTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	replayed := domain.ReplayBalance(log)
	stored := balance.Total()

	report := &domain.AuditReport{
		UserID:          userID,
		Entries:         len(log),
		ReplayedBalance: replayed,
		StoredBalance:   stored,
		Consistent:      replayed == stored,
		CheckedAt:       s.now().UTC(),
	}
	if !report.Consistent {
		s.logger.Error("ledger replay mismatch",
			zap.String("user_id", userID),
			zap.Int64("replayed", replayed),
			zap.Int64("stored", stored),
			zap.Int("entries", len(log)))
	}
	return report, nil
}

// AddCredits grants credits outside the subscription cycle (promotions,
// support adjustments, dev seeding). The grant lands in the bonus pool once
// the monthly allowance is full.
func (s *LedgerService) AddCredits(ctx context.Context, userID string, amount int64, reason string) (*domain.Balance, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.AddCredits")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("add_credits", time.Since(start)) }()

	if userID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "must not be empty"}
	}
	if reason == "" {
		reason = "manual credit grant"
	}

	unlock := s.lockUser(userID)
	defer unlock()

	balance, _, err := s.syncedStateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := balance.Credit(amount); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		UserID:      userID,
		Type:        domain.TxCredit,
		Amount:      amount,
		Description: reason,
	}
	if err := s.applyLocked(ctx, balance, tx); err != nil {
		return nil, err
	}

	b := *balance
	return &b, nil
}

// syncedStateLocked loads the user's balance and subscription and applies
// lazy expiry: a lapsed billing period zeroes the monthly allowance (bonus
// survives) and records a compensating ledger entry. Callers must hold the
// user's lock. The returned subscription is nil for users without one.
func (s *LedgerService) syncedStateLocked(ctx context.Context, userID string) (*domain.Balance, *domain.Subscription, error) {
	balance, err := s.loadBalanceLocked(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		if _, ok := err.(*domain.ErrNotFound); ok {
			return balance, nil, nil
		}
		return nil, nil, err
	}

	if !sub.ExpiredAt(s.now()) {
		return balance, sub, nil
	}

	// Period lapsed: expire in place, exactly once.
	delta := -balance.Current
	balance.Current = 0
	balance.Monthly = 0
	sub.Status = domain.SubExpired
	sub.UpdatedAt = s.now().UTC()

	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return nil, nil, err
	}

	if delta != 0 {
		tx := &domain.Transaction{
			UserID:      userID,
			Type:        domain.TxSubscription,
			Amount:      delta,
			Description: fmt.Sprintf("subscription expired (%s)", sub.PlanID),
			Metadata:    map[string]string{"planId": sub.PlanID, "event": "expire"},
		}
		if err := s.applyLocked(ctx, balance, tx); err != nil {
			return nil, nil, err
		}
	} else if err := s.store.SaveBalance(ctx, balance); err != nil {
		return nil, nil, err
	}

	s.metrics.IncrSubscriptionEvent("expire")
	s.logger.Info("subscription expired",
		zap.String("user_id", userID),
		zap.String("plan_id", sub.PlanID),
		zap.Int64("forfeited", -delta))
	return balance, sub, nil
}

func (s *LedgerService) loadBalanceLocked(ctx context.Context, userID string) (*domain.Balance, error) {
	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		if _, ok := err.(*domain.ErrNotFound); ok {
			return &domain.Balance{UserID: userID, LastUpdated: s.now().UTC()}, nil
		}
		return nil, err
	}
	return balance, nil
}

// applyLocked commits a balance mutation together with its ledger entry.
// Callers must hold the user's lock and have already mutated the balance.
// The entry's Amount must equal the combined balance delta it describes,
// that is what keeps replay-from-zero equal to the stored balance.
func (s *LedgerService) applyLocked(ctx context.Context, balance *domain.Balance, tx *domain.Transaction) error {
	if !domain.ValidTransactionType(tx.Type) {
		return &domain.ErrValidation{Field: "type", Message: "unknown transaction type: " + string(tx.Type)}
	}
	if balance.Current < 0 || balance.Bonus < 0 {
		// Should be unreachable: Spend refuses overdrafts. Guard anyway.
		return &domain.ErrInsufficientCredits{Available: balance.Total(), Required: 0}
	}

	now := s.now()
	balance.LastUpdated = now.UTC()
	if tx.ID == "" {
		tx.ID = domain.NewTransactionID(now)
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = now.UTC()
	}

	if err := s.store.SaveBalance(ctx, balance); err != nil {
		return err
	}
	if err := s.store.AppendTransaction(ctx, tx); err != nil {
		// Balance saved but entry lost would break replay. Loud log so the
		// audit endpoint's mismatch has a trail.
		s.logger.Error("ledger entry append failed after balance save",
			zap.String("user_id", tx.UserID),
			zap.String("tx_id", tx.ID),
			zap.Int64("amount", tx.Amount),
			zap.Error(err))
		return err
	}

	s.metrics.IncrTransaction(string(tx.Type))
	return nil
}
