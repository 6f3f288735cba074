package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
)

func newMemStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore("", false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return s
}

func TestGetBalanceMissingUser(t *testing.T) {
	s := newMemStore(t)

	_, err := s.GetBalance(context.Background(), "ghost")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if notFound.Resource != "balance" || notFound.ID != "ghost" {
		t.Errorf("unexpected detail: %+v", notFound)
	}
}

func TestBalanceRoundTrip(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	in := &domain.Balance{
		UserID:      "u1",
		Current:     47,
		Monthly:     100,
		Bonus:       12,
		LastUpdated: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := s.SaveBalance(ctx, in); err != nil {
		t.Fatalf("SaveBalance failed: %v", err)
	}

	out, err := s.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if *out != *in {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestAppendAndListOrdering(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	for i, amount := range []int64{100, -3, -1, 20} {
		tx := &domain.Transaction{
			UserID: "u1",
			Type:   domain.TxCredit,
			Amount: amount,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		if tx.ID == "" || tx.Timestamp.IsZero() {
			t.Errorf("append %d left ID/timestamp unset: %+v", i, tx)
		}
	}

	all, err := s.AllTransactions(ctx, "u1")
	if err != nil {
		t.Fatalf("AllTransactions failed: %v", err)
	}
	if len(all) != 4 || all[0].Amount != 100 || all[3].Amount != 20 {
		t.Errorf("AllTransactions should be append order, got %+v", all)
	}

	recent, err := s.ListTransactions(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Amount != 20 || recent[1].Amount != -1 {
		t.Errorf("ListTransactions should be newest first, got %+v", recent)
	}

	// Limit 0 returns everything.
	everything, err := s.ListTransactions(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(everything) != 4 {
		t.Errorf("expected 4 entries with no limit, got %d", len(everything))
	}
}

func TestSubscriptionRoundTrip(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	in := &domain.Subscription{
		ID:     "sub_abc",
		UserID: "u1",
		PlanID: domain.PlanIntermediario,
		Status: domain.SubActive,
	}
	if err := s.SaveSubscription(ctx, in); err != nil {
		t.Fatalf("SaveSubscription failed: %v", err)
	}

	out, err := s.GetSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if out.ID != in.ID || out.PlanID != in.PlanID || out.Status != in.Status {
		t.Errorf("round trip mismatch: %+v != %+v", out, in)
	}

	var notFound *domain.ErrNotFound
	if _, err := s.GetSubscription(ctx, "other"); !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()
	logger := zap.NewNop()

	s, err := NewFileStore(path, true, logger)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := s.SaveBalance(ctx, &domain.Balance{UserID: "u1", Current: 80, Monthly: 100}); err != nil {
		t.Fatalf("SaveBalance failed: %v", err)
	}
	if err := s.AppendTransaction(ctx, &domain.Transaction{UserID: "u1", Type: domain.TxDebit, Amount: -20}); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}

	// flushOnWrite means the snapshot is already on disk.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	reloaded, err := NewFileStore(path, true, logger)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	balance, err := reloaded.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance after reload failed: %v", err)
	}
	if balance.Current != 80 {
		t.Errorf("unexpected reloaded balance: %+v", balance)
	}
	txs, err := reloaded.AllTransactions(ctx, "u1")
	if err != nil {
		t.Fatalf("AllTransactions after reload failed: %v", err)
	}
	if len(txs) != 1 || txs[0].Amount != -20 {
		t.Errorf("unexpected reloaded log: %+v", txs)
	}

	// No stray temp file left behind.
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if _, err := os.Stat(tmp); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp snapshot left behind: %v", err)
	}
}

func TestExplicitFlushWithoutFlushOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()

	s, err := NewFileStore(path, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := s.SaveBalance(ctx, &domain.Balance{UserID: "u1", Current: 5, Monthly: 100}); err != nil {
		t.Fatalf("SaveBalance failed: %v", err)
	}

	// Nothing on disk until Flush is called.
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("snapshot written before Flush: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot missing after Flush: %v", err)
	}
}
