package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TransactionType classifies ledger entries.
type TransactionType string

const (
	TxDebit        TransactionType = "debit"        // credit consumption
	TxCredit       TransactionType = "credit"       // manual or promotional grant
	TxSubscription TransactionType = "subscription" // plan purchase, renewal, upgrade, expiry
	TxBonus        TransactionType = "bonus"        // bonus-pool grant
	TxRefund       TransactionType = "refund"       // reversal of a prior debit
)

// ValidTransactionType reports whether t is one of the canonical entry types.
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TxDebit, TxCredit, TxSubscription, TxBonus, TxRefund:
		return true
	}
	return false
}

// Transaction is one append-only ledger entry. Amount is the exact signed
// delta the entry applied to the combined balance (current + bonus), so
// replaying a user's log from zero reproduces their combined balance.
type Transaction struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	Type           TransactionType   `json:"type"`
	Amount         int64             `json:"amount"`
	Description    string            `json:"description"`
	Timestamp      time.Time         `json:"timestamp"`
	RelatedService string            `json:"relatedService,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

var txSeq atomic.Uint64

// NewTransactionID returns a unique, roughly time-ordered entry identifier.
// The sequence suffix disambiguates entries minted in the same millisecond.
func NewTransactionID(now time.Time) string {
	return fmt.Sprintf("txn_%d_%d", now.UnixMilli(), txSeq.Add(1))
}

// ReplayBalance folds a transaction log oldest-first from zero and returns
// the resulting combined balance. Entries are assumed to be in append order.
func ReplayBalance(log []Transaction) int64 {
	var sum int64
	for _, tx := range log {
		sum += tx.Amount
	}
	return sum
}
