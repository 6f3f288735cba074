// Package store implements the ledger store on a JSON key/value snapshot,
// either purely in memory or backed by a file on disk.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
)

var tracer = otel.Tracer("store/file")

// FileStore keeps the whole ledger as a key/value map of JSON documents:
//
//	balance:<userId>      -> domain.Balance
//	transactions:<userId> -> []domain.Transaction (append order)
//	subscription:<userId> -> domain.Subscription
//
// With a path configured every mutation can be flushed to disk via an
// atomic write-to-temp-then-rename. With an empty path it is a pure
// in-memory store, which is what the tests use.
type FileStore struct {
	path         string
	flushOnWrite bool
	logger       *zap.Logger

	mu   sync.RWMutex
	data map[string]json.RawMessage
}

// NewFileStore creates the store and loads an existing snapshot when the
// file is present. A missing file is a fresh ledger, not an error.
func NewFileStore(path string, flushOnWrite bool, logger *zap.Logger) (*FileStore, error) {
	s := &FileStore{
		path:         path,
		flushOnWrite: flushOnWrite,
		logger:       logger,
		data:         make(map[string]json.RawMessage),
	}

	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger snapshot: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("decode ledger snapshot: %w", err)
		}
	}
	logger.Info("ledger snapshot loaded",
		zap.String("path", path),
		zap.Int("keys", len(s.data)))
	return s, nil
}

func balanceKey(userID string) string      { return "balance:" + userID }
func transactionsKey(userID string) string { return "transactions:" + userID }
func subscriptionKey(userID string) string { return "subscription:" + userID }

// --- Balances ---

func (s *FileStore) GetBalance(ctx context.Context, userID string) (*domain.Balance, error) {
	_, span := tracer.Start(ctx, "FileStore.GetBalance")
	defer span.End()

	s.mu.RLock()
	raw, ok := s.data[balanceKey(userID)]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "balance", ID: userID}
	}

	var b domain.Balance
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode balance %s: %w", userID, err)
	}
	return &b, nil
}

func (s *FileStore) SaveBalance(ctx context.Context, balance *domain.Balance) error {
	_, span := tracer.Start(ctx, "FileStore.SaveBalance")
	defer span.End()

	raw, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("encode balance %s: %w", balance.UserID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[balanceKey(balance.UserID)] = raw
	return s.maybeFlushLocked()
}

// --- Transaction log ---

func (s *FileStore) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	_, span := tracer.Start(ctx, "FileStore.AppendTransaction")
	defer span.End()

	if tx.ID == "" {
		tx.ID = domain.NewTransactionID(time.Now())
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.decodeLogLocked(tx.UserID)
	if err != nil {
		return err
	}
	log = append(log, *tx)

	raw, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode transactions %s: %w", tx.UserID, err)
	}
	s.data[transactionsKey(tx.UserID)] = raw
	return s.maybeFlushLocked()
}

func (s *FileStore) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	_, span := tracer.Start(ctx, "FileStore.ListTransactions")
	defer span.End()

	s.mu.RLock()
	log, err := s.decodeLogLocked(userID)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	// Most recent first.
	out := make([]domain.Transaction, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		out = append(out, log[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *FileStore) AllTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	_, span := tracer.Start(ctx, "FileStore.AllTransactions")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decodeLogLocked(userID)
}

func (s *FileStore) decodeLogLocked(userID string) ([]domain.Transaction, error) {
	raw, ok := s.data[transactionsKey(userID)]
	if !ok {
		return nil, nil
	}
	var log []domain.Transaction
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("decode transactions %s: %w", userID, err)
	}
	return log, nil
}

// --- Subscriptions ---

func (s *FileStore) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	_, span := tracer.Start(ctx, "FileStore.GetSubscription")
	defer span.End()

	s.mu.RLock()
	raw, ok := s.data[subscriptionKey(userID)]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "subscription", ID: userID}
	}

	var sub domain.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription %s: %w", userID, err)
	}
	return &sub, nil
}

func (s *FileStore) SaveSubscription(ctx context.Context, sub *domain.Subscription) error {
	_, span := tracer.Start(ctx, "FileStore.SaveSubscription")
	defer span.End()

	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode subscription %s: %w", sub.UserID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[subscriptionKey(sub.UserID)] = raw
	return s.maybeFlushLocked()
}

// --- Persistence ---

// Flush writes the snapshot to disk. Safe to call with no path configured.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *FileStore) maybeFlushLocked() error {
	if !s.flushOnWrite {
		return nil
	}
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	if s.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger snapshot: %w", err)
	}

	// Write-then-rename keeps a crash from truncating the snapshot.
	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write ledger snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace ledger snapshot: %w", err)
	}
	return nil
}
