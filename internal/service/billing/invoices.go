// internal/service/billing/invoices.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"isp-billing-service/internal/domain/billing"
	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateInvoiceWithDiscounts inserts an invoice with its discounts applied. A failure of the
// discount calculation does not block billing: the invoice is created without discounts and
// the failure is logged. Everything else commits in one transaction.
func (s *BillingService) CreateInvoiceWithDiscounts(ctx context.Context, req *invoice.CreateInvoiceRequest) (*billing.InvoiceWithDiscounts, error) {
	if req.Amount.IsNegative() {
		return nil, xerrors.NewValidation("amount", "must not be negative")
	}
	if _, err := s.customers.FindByID(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	amount := money.Round(req.Amount)
	inv := &invoice.Invoice{
		CustomerID:    req.CustomerID,
		InvoiceNumber: req.InvoiceNumber,
		Amount:        amount,
		Status:        invoice.StatusUnpaid,
		PeriodStart:   nullTime(req.PeriodStart),
		PeriodEnd:     nullTime(req.PeriodEnd),
		DueDate:       nullTime(req.DueDate),
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = "INV-" + ulid.Make().String()
	}

	var result *billing.DiscountResult
	var apps []discount.Application
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		apps = apps[:0]
		result = s.calculateFailOpen(ctx, tx, req.CustomerID, amount)

		inv.DiscountAmount = appliedTotal(result)
		inv.FinalAmount = result.FinalAmount
		inv.DiscountNotes = nullString(discountNotes(result, req.Notes))
		if err := s.invoices.CreateWithTx(ctx, tx, inv); err != nil {
			return err
		}

		if comp := result.Compensation(); comp != nil {
			app, err := s.recordCompensation(ctx, tx, inv, comp)
			if err != nil {
				return err
			}
			apps = append(apps, *app)
			if err := s.ledger.CreateWithTx(ctx, tx, compensationEntry(inv, comp.Amount, ledger.EntryExpense)); err != nil {
				return err
			}
		}

		return s.referrals.LinkBenefitsToInvoice(ctx, tx, result.ReferralTransactionIDs(), inv.ID)
	})
	if err != nil {
		s.logger.Error("failed to create invoice", zap.Int64("customer_id", req.CustomerID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("invoice created",
		zap.Int64("invoice_id", inv.ID),
		zap.Int64("customer_id", inv.CustomerID),
		zap.String("amount", inv.Amount.StringFixed(2)),
		zap.String("total_discount", result.TotalDiscount.StringFixed(2)),
		zap.String("final_amount", inv.FinalAmount.StringFixed(2)),
	)
	s.events.Publish(ctx, events.KindInvoiceCreated, invoiceEvent(inv, result))

	return &billing.InvoiceWithDiscounts{Invoice: inv, Applications: apps, Result: result}, nil
}

// calculateFailOpen runs the calculation inside a savepoint. On failure the savepoint is rolled
// back and a zero discount is returned.
func (s *BillingService) calculateFailOpen(ctx context.Context, tx pgx.Tx, customerID int64, amount decimal.Decimal) *billing.DiscountResult {
	result, err := s.calculateInSavepoint(ctx, tx, customerID, amount)
	if err != nil {
		s.logger.Error("discount calculation failed, invoicing without discounts",
			zap.Bool("discount_engine_fail_open", true),
			zap.Int64("customer_id", customerID),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		return zeroResult(amount)
	}
	return result
}

func (s *BillingService) calculateInSavepoint(ctx context.Context, tx pgx.Tx, customerID int64, amount decimal.Decimal) (*billing.DiscountResult, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.calculate(ctx, sp, customerID, amount, billing.InvoiceContext{})
	if err != nil {
		_ = sp.Rollback(ctx)
		return nil, err
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateInvoiceDiscounts recalculates an unpaid invoice from the current catalog, replacing its
// application rows.
func (s *BillingService) UpdateInvoiceDiscounts(ctx context.Context, invoiceID int64) (*billing.InvoiceWithDiscounts, error) {
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := ensureMutable(inv); err != nil {
		return nil, err
	}

	var result *billing.DiscountResult
	var apps []discount.Application
	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		apps = apps[:0]

		locked, err := s.invoices.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := ensureMutable(locked); err != nil {
			return err
		}
		inv = locked

		// Read under the row lock so concurrent recalculations book the delta once.
		previous, err := s.applications.ListByInvoiceWithTx(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		previousComp := decimal.Zero
		for _, a := range previous {
			previousComp = previousComp.Add(a.DiscountAmount)
		}

		result, err = s.calculate(ctx, tx, inv.CustomerID, inv.Amount, billing.InvoiceContext{InvoiceID: &inv.ID})
		if err != nil {
			return err
		}

		if _, err := s.applications.DeleteByInvoiceWithTx(ctx, tx, inv.ID); err != nil {
			return err
		}

		currentComp := decimal.Zero
		if comp := result.Compensation(); comp != nil {
			app, err := s.recordCompensation(ctx, tx, inv, comp)
			if err != nil {
				return err
			}
			apps = append(apps, *app)
			currentComp = comp.Amount
		}

		inv.DiscountAmount = appliedTotal(result)
		inv.FinalAmount = result.FinalAmount
		inv.DiscountNotes = nullString(discountNotes(result, ""))
		if err := s.invoices.SetDiscountsWithTx(ctx, tx, inv.ID, inv.DiscountAmount, inv.FinalAmount, inv.DiscountNotes.String); err != nil {
			return err
		}

		if err := s.referrals.LinkBenefitsToInvoice(ctx, tx, result.ReferralTransactionIDs(), inv.ID); err != nil {
			return err
		}

		// Book only the change in compensation so repeated recalculation stays balanced.
		delta := currentComp.Sub(previousComp)
		switch {
		case delta.IsPositive():
			return s.ledger.CreateWithTx(ctx, tx, compensationEntry(inv, delta, ledger.EntryExpense))
		case delta.IsNegative():
			return s.ledger.CreateWithTx(ctx, tx, compensationEntry(inv, delta.Neg(), ledger.EntryIncome))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to recalculate invoice discounts", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("invoice discounts recalculated",
		zap.Int64("invoice_id", inv.ID),
		zap.String("total_discount", result.TotalDiscount.StringFixed(2)),
		zap.String("final_amount", inv.FinalAmount.StringFixed(2)),
	)
	s.events.Publish(ctx, events.KindInvoiceRecalculated, invoiceEvent(inv, result))

	return &billing.InvoiceWithDiscounts{Invoice: inv, Applications: apps, Result: result}, nil
}

// ApplyDiscountsToUnpaidInvoices recalculates every unpaid invoice, optionally for one customer.
// Invoices are processed independently: a failure is recorded and the batch moves on.
func (s *BillingService) ApplyDiscountsToUnpaidInvoices(ctx context.Context, customerID *int64) (*billing.BatchResult, error) {
	unpaid, err := s.invoices.ListUnpaid(ctx, customerID)
	if err != nil {
		return nil, err
	}

	batch := &billing.BatchResult{
		BatchID: ulid.Make().String(),
		Results: make([]billing.InvoiceResult, 0, len(unpaid)),
	}
	log := s.logger.With(zap.String("batch_id", batch.BatchID))

	for _, inv := range unpaid {
		batch.Processed++

		updated, err := s.UpdateInvoiceDiscounts(ctx, inv.ID)
		if err != nil {
			batch.Failed++
			batch.Results = append(batch.Results, billing.InvoiceResult{
				InvoiceID: inv.ID,
				Error:     err.Error(),
			})
			log.Warn("invoice skipped in reconciliation", zap.Int64("invoice_id", inv.ID), zap.Error(err))
			continue
		}

		batch.Updated++
		batch.Results = append(batch.Results, billing.InvoiceResult{
			InvoiceID:     inv.ID,
			Success:       true,
			TotalDiscount: updated.Result.TotalDiscount,
			FinalAmount:   updated.Result.FinalAmount,
		})
	}

	log.Info("discount reconciliation finished",
		zap.Int("processed", batch.Processed),
		zap.Int("updated", batch.Updated),
		zap.Int("failed", batch.Failed),
	)
	return batch, nil
}

// GetInvoiceDiscounts returns an invoice together with its application rows
func (s *BillingService) GetInvoiceDiscounts(ctx context.Context, invoiceID int64) (*billing.InvoiceWithDiscounts, error) {
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	apps, err := s.applications.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []discount.Application{}
	}
	return &billing.InvoiceWithDiscounts{Invoice: inv, Applications: apps}, nil
}

func (s *BillingService) recordCompensation(ctx context.Context, tx pgx.Tx, inv *invoice.Invoice, comp *billing.AppliedDiscount) (*discount.Application, error) {
	app := &discount.Application{
		DiscountID:     *comp.DiscountID,
		CustomerID:     inv.CustomerID,
		InvoiceID:      inv.ID,
		OriginalAmount: inv.Amount,
		DiscountAmount: comp.Amount,
		FinalAmount:    money.NonNegative(inv.Amount.Sub(comp.Amount)),
		Notes:          nullString(comp.Name),
	}
	if err := s.applications.CreateWithTx(ctx, tx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func ensureMutable(inv *invoice.Invoice) error {
	switch inv.Status {
	case invoice.StatusPaid:
		return xerrors.NewConflict("status", fmt.Sprintf("invoice %d is paid, discounts cannot change", inv.ID))
	case invoice.StatusCancelled:
		return xerrors.NewConflict("status", fmt.Sprintf("invoice %d is cancelled", inv.ID))
	}
	return nil
}

func compensationEntry(inv *invoice.Invoice, amount decimal.Decimal, entryType ledger.EntryType) *ledger.Entry {
	return &ledger.Entry{
		Category:    ledger.CategoryCompensationDiscount,
		EntryType:   entryType,
		Amount:      amount,
		Description: fmt.Sprintf("Compensation discount on invoice %s", inv.InvoiceNumber),
		Reference:   fmt.Sprintf("INV-%d-COMP", inv.ID),
		CustomerID:  sql.NullInt64{Int64: inv.CustomerID, Valid: true},
	}
}

func invoiceEvent(inv *invoice.Invoice, r *billing.DiscountResult) events.InvoiceDiscounts {
	return events.InvoiceDiscounts{
		InvoiceID:     inv.ID,
		CustomerID:    inv.CustomerID,
		TotalDiscount: r.TotalDiscount.StringFixed(2),
		FinalAmount:   r.FinalAmount.StringFixed(2),
	}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
