package domain

import "time"

// Request and response shapes for the HTTP surface.

// ConsumeRequest asks to debit credits for one billable action. Either
// Action (resolved against the canonical cost table) or an explicit Cost
// must be set, not both.
type ConsumeRequest struct {
	Action   string            `json:"action,omitempty"`
	Cost     int64             `json:"cost,omitempty"`
	Reason   string            `json:"reason"`
	Service  string            `json:"service,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ConsumeResult reports an applied consumption.
type ConsumeResult struct {
	Applied       bool        `json:"applied"`
	Cost          int64       `json:"cost"`
	Remaining     int64       `json:"remaining"`
	Balance       Balance     `json:"balance"`
	TransactionID string      `json:"transactionId"`
	Transaction   Transaction `json:"transaction"`
}

// PurchaseRequest starts or renews a subscription.
type PurchaseRequest struct {
	PlanID        string `json:"planId"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}

// ChangePlanRequest moves an active subscription to another plan.
type ChangePlanRequest struct {
	PlanID string `json:"planId"`
}

// SubscriptionResult bundles the subscription with the balance it produced.
type SubscriptionResult struct {
	Subscription Subscription `json:"subscription"`
	Balance      Balance      `json:"balance"`
	BonusGranted int64        `json:"bonusGranted,omitempty"`
}

// AuditReport is the outcome of replaying a user's transaction log against
// their stored balance.
type AuditReport struct {
	UserID          string    `json:"userId"`
	Entries         int       `json:"entries"`
	ReplayedBalance int64     `json:"replayedBalance"`
	StoredBalance   int64     `json:"storedBalance"`
	Consistent      bool      `json:"consistent"`
	CheckedAt       time.Time `json:"checkedAt"`
}

// AddCreditsRequest is the developer grant endpoint payload.
type AddCreditsRequest struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// GenerateTransactionsRequest seeds a user with synthetic ledger history.
type GenerateTransactionsRequest struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
	Seed   int64  `json:"seed,omitempty"`
}

// AddCreditsResponse reports a developer credit grant.
type AddCreditsResponse struct {
	Success bool    `json:"success"`
	Balance Balance `json:"balance"`
	Message string  `json:"message"`
}

// GenerateTransactionsResponse reports synthetic ledger seeding.
type GenerateTransactionsResponse struct {
	Success   bool    `json:"success"`
	Generated int     `json:"generated"`
	NetImpact int64   `json:"netImpact"`
	Balance   Balance `json:"balance"`
	Message   string  `json:"message"`
}
