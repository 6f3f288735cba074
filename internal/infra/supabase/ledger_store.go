package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
	"github.com/rpironato1/credit-ledger-go/internal/infra/resilience"
)

// Ledger tables:
//
//	credit_balances     (user_id PK)
//	credit_transactions (id PK, indexed by user_id, timestamp)
//	subscriptions       (user_id unique)
//
// The client implements port.LedgerStore. Reads go through the circuit
// breaker plus retry; appends go through the breaker only, a blind retry
// of an insert could duplicate a ledger entry.

type balanceRow struct {
	UserID      string `json:"user_id"`
	Current     int64  `json:"current"`
	Monthly     int64  `json:"monthly"`
	Bonus       int64  `json:"bonus"`
	LastUpdated string `json:"last_updated"`
}

type transactionRow struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Type           string          `json:"type"`
	Amount         int64           `json:"amount"`
	Description    string          `json:"description"`
	Timestamp      string          `json:"timestamp"`
	RelatedService string          `json:"related_service"`
	Metadata       json.RawMessage `json:"metadata"`
}

type subscriptionRow struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"user_id"`
	PlanID             string  `json:"plan_id"`
	Status             string  `json:"status"`
	CurrentPeriodStart string  `json:"current_period_start"`
	CurrentPeriodEnd   string  `json:"current_period_end"`
	NextBillingDate    string  `json:"next_billing_date"`
	CancelAtPeriodEnd  bool    `json:"cancel_at_period_end"`
	CancelledAt        *string `json:"cancelled_at"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// --- Balances ---

func (c *Client) GetBalance(ctx context.Context, userID string) (*domain.Balance, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBalance")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var balance *domain.Balance

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("credit_balances?user_id=eq.%s&limit=1", userID)
			body, err := c.doGet(ctx, path)
			if err != nil {
				return err
			}
			// A miss is a successful read: don't retry it and don't feed
			// it to the breaker.
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []balanceRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode balance: %w", err)
			}
			if len(rows) == 0 {
				return nil
			}

			r := rows[0]
			balance = &domain.Balance{
				UserID:      r.UserID,
				Current:     r.Current,
				Monthly:     r.Monthly,
				Bonus:       r.Bonus,
				LastUpdated: parseTime(r.LastUpdated),
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/balances", Err: err}
	}
	if balance == nil {
		return nil, &domain.ErrNotFound{Resource: "balance", ID: userID}
	}
	return balance, nil
}

func (c *Client) SaveBalance(ctx context.Context, balance *domain.Balance) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveBalance")
	defer span.End()

	row := map[string]any{
		"user_id":      balance.UserID,
		"current":      balance.Current,
		"monthly":      balance.Monthly,
		"bonus":        balance.Bonus,
		"last_updated": balance.LastUpdated.Format(time.RFC3339),
	}

	// Upserts are idempotent, retry is safe here.
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, err := c.doUpsert(ctx, "credit_balances", row)
			return err
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/balances", Err: err}
	}
	return nil
}

// --- Transaction log ---

func (c *Client) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Supabase.AppendTransaction")
	defer span.End()

	if tx.ID == "" {
		tx.ID = domain.NewTransactionID(time.Now())
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	var meta json.RawMessage
	if len(tx.Metadata) > 0 {
		meta, _ = json.Marshal(tx.Metadata)
	}

	row := map[string]any{
		"id":              tx.ID,
		"user_id":         tx.UserID,
		"type":            string(tx.Type),
		"amount":          tx.Amount,
		"description":     tx.Description,
		"timestamp":       tx.Timestamp.Format(time.RFC3339),
		"related_service": tx.RelatedService,
		"metadata":        meta,
	}

	_, err := c.cb.Execute(func() (any, error) {
		_, err := c.doPost(ctx, "credit_transactions", row)
		return nil, err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return nil
}

func (c *Client) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("credit_transactions?user_id=eq.%s&order=timestamp.desc,id.desc", userID)
	if limit > 0 {
		path = fmt.Sprintf("%s&limit=%d", path, limit)
	}
	return c.fetchTransactions(ctx, path)
}

func (c *Client) AllTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AllTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("credit_transactions?user_id=eq.%s&order=timestamp.asc,id.asc", userID)
	return c.fetchTransactions(ctx, path)
}

func (c *Client) fetchTransactions(ctx context.Context, path string) ([]domain.Transaction, error) {
	var transactions []domain.Transaction

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.doGet(ctx, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				transactions = nil
				return nil
			}

			var rows []transactionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode transactions: %w", err)
			}

			transactions = make([]domain.Transaction, 0, len(rows))
			for _, r := range rows {
				var meta map[string]string
				if len(r.Metadata) > 0 {
					_ = json.Unmarshal(r.Metadata, &meta)
				}
				transactions = append(transactions, domain.Transaction{
					ID:             r.ID,
					UserID:         r.UserID,
					Type:           domain.TransactionType(r.Type),
					Amount:         r.Amount,
					Description:    r.Description,
					Timestamp:      parseTime(r.Timestamp),
					RelatedService: r.RelatedService,
					Metadata:       meta,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/transactions", Err: err}
	}
	return transactions, nil
}

// --- Subscriptions ---

func (c *Client) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSubscription")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var sub *domain.Subscription

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("subscriptions?user_id=eq.%s&limit=1", userID)
			body, err := c.doGet(ctx, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []subscriptionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode subscription: %w", err)
			}
			if len(rows) == 0 {
				return nil
			}

			r := rows[0]
			sub = &domain.Subscription{
				ID:                 r.ID,
				UserID:             r.UserID,
				PlanID:             r.PlanID,
				Status:             domain.SubscriptionStatus(r.Status),
				CurrentPeriodStart: parseTime(r.CurrentPeriodStart),
				CurrentPeriodEnd:   parseTime(r.CurrentPeriodEnd),
				NextBillingDate:    parseTime(r.NextBillingDate),
				CancelAtPeriodEnd:  r.CancelAtPeriodEnd,
				CreatedAt:          parseTime(r.CreatedAt),
				UpdatedAt:          parseTime(r.UpdatedAt),
			}
			if r.CancelledAt != nil {
				t := parseTime(*r.CancelledAt)
				sub.CancelledAt = &t
			}
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/subscriptions", Err: err}
	}
	if sub == nil {
		return nil, &domain.ErrNotFound{Resource: "subscription", ID: userID}
	}
	return sub, nil
}

func (c *Client) SaveSubscription(ctx context.Context, sub *domain.Subscription) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveSubscription")
	defer span.End()

	row := map[string]any{
		"id":                   sub.ID,
		"user_id":              sub.UserID,
		"plan_id":              sub.PlanID,
		"status":               string(sub.Status),
		"current_period_start": sub.CurrentPeriodStart.Format(time.RFC3339),
		"current_period_end":   sub.CurrentPeriodEnd.Format(time.RFC3339),
		"next_billing_date":    sub.NextBillingDate.Format(time.RFC3339),
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"created_at":           sub.CreatedAt.Format(time.RFC3339),
		"updated_at":           sub.UpdatedAt.Format(time.RFC3339),
	}
	if sub.CancelledAt != nil {
		row["cancelled_at"] = sub.CancelledAt.Format(time.RFC3339)
	} else {
		row["cancelled_at"] = nil
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, err := c.doUpsert(ctx, "subscriptions", row)
			return err
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/subscriptions", Err: err}
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02", s)
	}
	return t
}
