package domain

import (
	"errors"
	"testing"
)

func TestSpendDrainsCurrentBeforeBonus(t *testing.T) {
	b := &Balance{UserID: "u1", Current: 10, Monthly: 100, Bonus: 5}

	if err := b.Spend(8); err != nil {
		t.Fatalf("Spend(8) returned error: %v", err)
	}
	if b.Current != 2 || b.Bonus != 5 {
		t.Errorf("expected current=2 bonus=5, got current=%d bonus=%d", b.Current, b.Bonus)
	}

	if err := b.Spend(4); err != nil {
		t.Fatalf("Spend(4) returned error: %v", err)
	}
	if b.Current != 0 || b.Bonus != 3 {
		t.Errorf("expected current=0 bonus=3, got current=%d bonus=%d", b.Current, b.Bonus)
	}
}

func TestSpendRefusesOverdraft(t *testing.T) {
	b := &Balance{UserID: "u1", Current: 2, Monthly: 100, Bonus: 1}

	err := b.Spend(4)
	var insufficient *ErrInsufficientCredits
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if insufficient.Available != 3 || insufficient.Required != 4 {
		t.Errorf("expected available=3 required=4, got %+v", insufficient)
	}
	if b.Current != 2 || b.Bonus != 1 {
		t.Errorf("balance mutated on refused spend: %+v", b)
	}
}

func TestSpendRejectsNonPositiveCost(t *testing.T) {
	b := &Balance{Current: 10, Monthly: 100}
	for _, cost := range []int64{0, -3} {
		var validation *ErrValidation
		if err := b.Spend(cost); !errors.As(err, &validation) {
			t.Errorf("Spend(%d): expected ErrValidation, got %v", cost, err)
		}
	}
}

func TestCreditOverflowsIntoBonus(t *testing.T) {
	b := &Balance{UserID: "u1", Current: 90, Monthly: 100, Bonus: 0}

	if err := b.Credit(25); err != nil {
		t.Fatalf("Credit(25) returned error: %v", err)
	}
	if b.Current != 100 || b.Bonus != 15 {
		t.Errorf("expected current=100 bonus=15, got current=%d bonus=%d", b.Current, b.Bonus)
	}
}

func TestCreditWithoutAllowanceGoesToBonus(t *testing.T) {
	b := &Balance{UserID: "u1", Current: 0, Monthly: 0, Bonus: 2}

	if err := b.Credit(10); err != nil {
		t.Fatalf("Credit(10) returned error: %v", err)
	}
	if b.Current != 0 || b.Bonus != 12 {
		t.Errorf("expected current=0 bonus=12, got current=%d bonus=%d", b.Current, b.Bonus)
	}
}

func TestResetToReturnsCombinedDelta(t *testing.T) {
	b := &Balance{UserID: "u1", Current: 47, Monthly: 100, Bonus: 3}

	delta := b.ResetTo(100)
	if delta != 53 {
		t.Errorf("expected delta 53, got %d", delta)
	}
	if b.Current != 100 || b.Monthly != 100 || b.Bonus != 3 {
		t.Errorf("unexpected balance after reset: %+v", b)
	}

	fresh := &Balance{UserID: "u2"}
	if delta := fresh.ResetTo(100); delta != 100 {
		t.Errorf("fresh user: expected delta 100, got %d", delta)
	}
}

func TestClampSpillsExcessIntoBonus(t *testing.T) {
	b := &Balance{UserID: "u1", Current: 250, Monthly: 100, Bonus: 10}
	total := b.Total()

	b.Clamp()
	if b.Current != 100 || b.Bonus != 160 {
		t.Errorf("expected current=100 bonus=160, got current=%d bonus=%d", b.Current, b.Bonus)
	}
	if b.Total() != total {
		t.Errorf("Clamp changed the combined balance: %d != %d", b.Total(), total)
	}
}

func TestReplayBalance(t *testing.T) {
	log := []Transaction{
		{Type: TxSubscription, Amount: 100},
		{Type: TxDebit, Amount: -3},
		{Type: TxDebit, Amount: -1},
		{Type: TxBonus, Amount: 20},
		{Type: TxSubscription, Amount: -96},
	}
	if got := ReplayBalance(log); got != 20 {
		t.Errorf("expected replayed balance 20, got %d", got)
	}
	if got := ReplayBalance(nil); got != 0 {
		t.Errorf("empty log should replay to 0, got %d", got)
	}
}
