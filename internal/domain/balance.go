package domain

import "time"

// Balance is the per-user credit position.
//
// Invariant: 0 <= Current <= Monthly. Credits granted beyond the monthly
// allowance (proration, refunds, manual grants) accumulate in Bonus, which
// is unbounded and survives plan renewals and expiry.
type Balance struct {
	UserID      string    `json:"userId"`
	Current     int64     `json:"current"`
	Monthly     int64     `json:"monthly"`
	Bonus       int64     `json:"bonus"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Total is the amount available for consumption.
func (b *Balance) Total() int64 {
	return b.Current + b.Bonus
}

// Spend debits cost credits, draining Current before Bonus. It returns
// ErrInsufficientCredits and leaves the balance untouched when the combined
// balance cannot cover the cost.
func (b *Balance) Spend(cost int64) error {
	if cost <= 0 {
		return &ErrValidation{Field: "cost", Message: "must be positive"}
	}
	if b.Total() < cost {
		return &ErrInsufficientCredits{Available: b.Total(), Required: cost}
	}
	fromCurrent := cost
	if fromCurrent > b.Current {
		fromCurrent = b.Current
	}
	b.Current -= fromCurrent
	b.Bonus -= cost - fromCurrent
	return nil
}

// Credit adds amount credits, filling Current up to the monthly allowance
// and overflowing the remainder into Bonus.
func (b *Balance) Credit(amount int64) error {
	if amount <= 0 {
		return &ErrValidation{Field: "amount", Message: "must be positive"}
	}
	headroom := b.Monthly - b.Current
	if headroom < 0 {
		headroom = 0
	}
	toCurrent := amount
	if toCurrent > headroom {
		toCurrent = headroom
	}
	b.Current += toCurrent
	b.Bonus += amount - toCurrent
	return nil
}

// ResetTo sets the monthly allowance and fills Current to it, as happens on
// plan purchase and renewal. It returns the combined balance delta so the
// caller can record an accurate ledger entry. Bonus is preserved.
func (b *Balance) ResetTo(monthly int64) int64 {
	delta := monthly - b.Current
	b.Monthly = monthly
	b.Current = monthly
	return delta
}

// Clamp enforces the Current <= Monthly invariant after the allowance
// shrinks (downgrade, expiry), moving any excess into Bonus. The combined
// balance is unchanged.
func (b *Balance) Clamp() {
	if b.Current > b.Monthly {
		b.Bonus += b.Current - b.Monthly
		b.Current = b.Monthly
	}
}
