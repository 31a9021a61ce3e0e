// internal/service/referral/benefits.go
package referral

import (
	"context"
	"database/sql"
	"fmt"

	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/domain/referral"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApplyReferralBenefits consumes every pending transaction in which customerID is the referred
// party. Each transaction is applied at most once, so a repeat call returns zero.
func (s *ReferralService) ApplyReferralBenefits(ctx context.Context, customerID int64, billingAmount decimal.Decimal) (*referral.AppliedBenefits, error) {
	var out *referral.AppliedBenefits
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.ApplyReferralBenefitsWithTx(ctx, tx, customerID, billingAmount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyReferralBenefitsWithTx is ApplyReferralBenefits inside the caller's transaction.
func (s *ReferralService) ApplyReferralBenefitsWithTx(ctx context.Context, tx pgx.Tx, customerID int64, billingAmount decimal.Decimal) (*referral.AppliedBenefits, error) {
	if billingAmount.IsNegative() {
		return nil, xerrors.NewValidation("amount", "must not be negative")
	}

	pending, err := s.transactions.ListPendingByReferredWithTx(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}

	out := &referral.AppliedBenefits{Amount: decimal.Zero, TransactionIDs: []int64{}}
	now := s.now()
	for _, t := range pending {
		ok, err := s.transactions.MarkAppliedWithTx(ctx, tx, t.ID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if err := s.ledger.CreateWithTx(ctx, tx, &ledger.Entry{
			Category:    ledger.CategoryReferralBenefit,
			EntryType:   ledger.EntryExpense,
			Amount:      t.BenefitAmount,
			Description: fmt.Sprintf("Referral %s benefit applied to billing", t.BenefitType),
			Reference:   fmt.Sprintf("REF-TXN-%d", t.ID),
			CustomerID:  sql.NullInt64{Int64: customerID, Valid: true},
		}); err != nil {
			return nil, err
		}

		out.Amount = out.Amount.Add(t.BenefitAmount)
		out.TransactionIDs = append(out.TransactionIDs, t.ID)
	}

	if len(out.TransactionIDs) > 0 {
		s.logger.Info("referral benefits applied",
			zap.Int64("customer_id", customerID),
			zap.Int("transactions", len(out.TransactionIDs)),
			zap.String("amount", out.Amount.StringFixed(2)),
		)
	}
	return out, nil
}

// LinkBenefitsToInvoice records which invoice consumed the given transactions
func (s *ReferralService) LinkBenefitsToInvoice(ctx context.Context, tx pgx.Tx, ids []int64, invoiceID int64) error {
	return s.transactions.LinkInvoiceWithTx(ctx, tx, ids, invoiceID)
}

// AppliedCreditForInvoice returns the referral credit an invoice has already consumed
func (s *ReferralService) AppliedCreditForInvoice(ctx context.Context, invoiceID int64) (*referral.AppliedBenefits, error) {
	amount, ids, err := s.transactions.SumAppliedForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return &referral.AppliedBenefits{Amount: amount, TransactionIDs: ids}, nil
}
