// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
)

// LedgerStore defines all persistence operations for balances, transaction
// logs and subscriptions. Implemented by the file/in-memory store and by the
// Supabase adapter. Stores are dumb repositories: serialization of writes to
// a given user is the ledger service's job, not theirs.
type LedgerStore interface {
	// Balances
	GetBalance(ctx context.Context, userID string) (*domain.Balance, error)
	SaveBalance(ctx context.Context, balance *domain.Balance) error

	// Transaction log (append-only)
	AppendTransaction(ctx context.Context, tx *domain.Transaction) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
	AllTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)

	// Subscriptions
	GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
	SaveSubscription(ctx context.Context, sub *domain.Subscription) error
}

// PaymentGateway confirms operations with the remote payment/authorization
// provider. Implemented by the latency-and-failure simulator in this repo;
// swappable for a real processor client.
type PaymentGateway interface {
	// ConfirmConsumption authorizes a credit debit before it is applied.
	ConfirmConsumption(ctx context.Context, userID string, cost int64) error
	// ConfirmPayment charges for a plan purchase or upgrade.
	ConfirmPayment(ctx context.Context, userID, planID string, amountCents int64) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// KV is the small key/value surface the idempotency middleware needs.
// Backed by Redis when configured, by an in-process TTL cache otherwise.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
