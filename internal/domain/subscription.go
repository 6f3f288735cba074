package domain

import "time"

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubActive    SubscriptionStatus = "active"
	SubCancelled SubscriptionStatus = "cancelled"
	SubPending   SubscriptionStatus = "pending"
	SubPastDue   SubscriptionStatus = "past_due"
	SubExpired   SubscriptionStatus = "expired"
)

// Subscription binds a user to a plan for a billing period.
type Subscription struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	PlanID             string             `json:"planId"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	NextBillingDate    time.Time          `json:"nextBillingDate"`
	CancelAtPeriodEnd  bool               `json:"cancelAtPeriodEnd"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// ExpiredAt reports whether the subscription's period has lapsed at the
// given instant. Cancelled subscriptions keep their credits until period
// end, so they expire on the same schedule as active ones.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case SubActive, SubCancelled, SubPastDue:
		return now.After(s.CurrentPeriodEnd)
	}
	return false
}

// RemainingDays returns whole days left in the current period, never
// negative. Used for upgrade proration.
func (s *Subscription) RemainingDays(now time.Time) int {
	if s == nil || !now.Before(s.CurrentPeriodEnd) {
		return 0
	}
	d := int(s.CurrentPeriodEnd.Sub(now).Hours() / 24)
	if d < 0 {
		d = 0
	}
	return d
}
