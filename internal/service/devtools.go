package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/rpironato1/credit-ledger-go/internal/domain"
)

// ============================================================
// Dev Tools
// ============================================================

// DevAddCredits grants credits to a user for testing.
func (s *LedgerService) DevAddCredits(ctx context.Context, req *domain.AddCreditsRequest) (*domain.AddCreditsResponse, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DevAddCredits")
	defer span.End()

	if req.UserID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "required"}
	}
	if req.Amount <= 0 {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}

	reason := req.Reason
	if reason == "" {
		reason = "DevTools credit grant"
	}

	balance, err := s.AddCredits(ctx, req.UserID, req.Amount, reason)
	if err != nil {
		return nil, err
	}

	s.logger.Info("DEV: credits granted",
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.Int64("total", balance.Total()),
	)

	return &domain.AddCreditsResponse{
		Success: true,
		Balance: *balance,
		Message: fmt.Sprintf("%d credits added", req.Amount),
	}, nil
}

// DevGenerateTransactions seeds a user's ledger with random grant and debit
// entries. Every generated entry goes through the normal commit path and
// adjusts the balance, so the replay property holds for seeded users too.
func (s *LedgerService) DevGenerateTransactions(ctx context.Context, req *domain.GenerateTransactionsRequest) (*domain.GenerateTransactionsResponse, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DevGenerateTransactions")
	defer span.End()

	if req.UserID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "required"}
	}
	if req.Count <= 0 || req.Count > 100 {
		return nil, &domain.ErrValidation{Field: "count", Message: "must be between 1 and 100"}
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	grants := []string{
		"Créditos promocionais",
		"Bônus de indicação",
		"Ajuste de suporte",
	}
	debits := []struct {
		Action string
		Desc   string
	}{
		{"ai_chat_message", "Mensagem para o tutor de IA"},
		{"content_generation", "Geração de resumo de estudo"},
		{"analysis", "Análise de redação"},
		{"export", "Exportação de material"},
	}

	unlock := s.lockUser(req.UserID)
	defer unlock()

	balance, _, err := s.syncedStateLocked(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	generated := 0
	var netImpact int64

	for i := 0; i < req.Count; i++ {
		var tx *domain.Transaction

		if rng.Intn(3) == 0 || balance.Total() < 3 {
			amount := int64(rng.Intn(46) + 5) // 5..50 credits
			if err := balance.Credit(amount); err != nil {
				continue
			}
			tx = &domain.Transaction{
				UserID:      req.UserID,
				Type:        domain.TxBonus,
				Amount:      amount,
				Description: grants[rng.Intn(len(grants))],
				Metadata:    map[string]string{"source": "devtools"},
			}
		} else {
			d := debits[rng.Intn(len(debits))]
			cost, _ := domain.LookupActionCost(d.Action)
			if err := balance.Spend(cost); err != nil {
				continue
			}
			tx = &domain.Transaction{
				UserID:         req.UserID,
				Type:           domain.TxDebit,
				Amount:         -cost,
				Description:    d.Desc,
				RelatedService: d.Action,
				Metadata:       map[string]string{"source": "devtools"},
			}
		}

		if err := s.applyLocked(ctx, balance, tx); err != nil {
			s.logger.Warn("DEV: failed to append generated entry",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		generated++
		netImpact += tx.Amount
	}

	s.logger.Info("DEV: transactions generated",
		zap.String("user_id", req.UserID),
		zap.Int("generated", generated),
		zap.Int64("net_impact", netImpact),
	)

	b := *balance
	return &domain.GenerateTransactionsResponse{
		Success:   true,
		Generated: generated,
		NetImpact: netImpact,
		Balance:   b,
		Message:   fmt.Sprintf("%d entries generated", generated),
	}, nil
}
