// internal/service/discount/bulk.go
package discount

import (
	"context"
	"database/sql"
	"fmt"

	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApplyDiscountToExistingInvoices applies an active discount to every unpaid invoice that
// matches its target and window and does not carry it yet. All invoices are updated in one
// transaction together with their application rows. Returns the number of invoices updated.
func (s *DiscountService) ApplyDiscountToExistingInvoices(ctx context.Context, discountID int64) (int, error) {
	d, err := s.discounts.FindByID(ctx, discountID)
	if err != nil {
		return 0, err
	}
	if !d.IsActive() {
		return 0, xerrors.NewConflict("status", fmt.Sprintf("discount is %s, only active discounts can be applied", d.Status))
	}

	var updated []int64
	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		updated = updated[:0]

		targets, err := s.invoices.FindUnpaidForTargetWithTx(ctx, tx, invoice.TargetQuery{
			DiscountID: d.ID,
			TargetType: string(d.TargetType),
			TargetIDs:  d.TargetIDs,
			From:       d.StartDate,
			To:         d.EndDate,
		})
		if err != nil {
			return err
		}

		note := "Discount: " + d.Name
		for _, inv := range targets {
			amount := CalculateDiscount(d, inv.Amount)
			applied := decimal.Min(amount, inv.FinalAmount)
			if !applied.IsPositive() {
				continue
			}

			app := &discount.Application{
				DiscountID:     d.ID,
				CustomerID:     inv.CustomerID,
				InvoiceID:      inv.ID,
				OriginalAmount: inv.FinalAmount,
				DiscountAmount: applied,
				FinalAmount:    money.NonNegative(inv.FinalAmount.Sub(applied)),
				Notes:          sql.NullString{String: "applied to existing invoice", Valid: true},
			}
			if err := s.applications.CreateWithTx(ctx, tx, app); err != nil {
				return err
			}
			if err := s.invoices.AddDiscountWithTx(ctx, tx, inv.ID, applied, note); err != nil {
				return err
			}
			if err := s.ledger.CreateWithTx(ctx, tx, &ledger.Entry{
				Category:    ledger.CategoryCompensationDiscount,
				EntryType:   ledger.EntryExpense,
				Amount:      applied,
				Description: fmt.Sprintf("%s on invoice %s", note, inv.InvoiceNumber),
				Reference:   fmt.Sprintf("DISC-%d-INV-%d", d.ID, inv.ID),
				CustomerID:  sql.NullInt64{Int64: inv.CustomerID, Valid: true},
			}); err != nil {
				return err
			}
			updated = append(updated, inv.ID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to apply discount to existing invoices",
			zap.Int64("discount_id", discountID),
			zap.Error(err),
		)
		return 0, err
	}

	s.logger.Info("discount applied to existing invoices",
		zap.Int64("discount_id", discountID),
		zap.Int("invoices", len(updated)),
	)
	if len(updated) > 0 {
		s.events.Publish(ctx, events.KindDiscountApplied, events.DiscountApplied{
			DiscountID: discountID,
			InvoiceIDs: updated,
		})
	}
	return len(updated), nil
}
