// internal/service/billing/billing.go
package billing

import (
	"context"
	"fmt"
	"strings"

	"isp-billing-service/internal/domain/billing"
	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/domain/referral"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/money"
	"isp-billing-service/internal/repository/postgres"
	discountsvc "isp-billing-service/internal/service/discount"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReferralLedger is the part of the referral service billing depends on.
type ReferralLedger interface {
	ApplyReferralBenefitsWithTx(ctx context.Context, tx pgx.Tx, customerID int64, billingAmount decimal.Decimal) (*referral.AppliedBenefits, error)
	AppliedCreditForInvoice(ctx context.Context, invoiceID int64) (*referral.AppliedBenefits, error)
	LinkBenefitsToInvoice(ctx context.Context, tx pgx.Tx, ids []int64, invoiceID int64) error
}

// DiscountResolver finds the compensation discounts that apply to a customer.
type DiscountResolver interface {
	GetApplicableDiscounts(ctx context.Context, customerID int64, invoiceAmount decimal.Decimal) ([]discount.Applicable, error)
}

const referralDiscountName = "Referral credit"

// BillingService merges referral credit and compensation discounts into invoice totals.
type BillingService struct {
	referrals    ReferralLedger
	resolver     DiscountResolver
	invoices     invoice.Repository
	applications discount.ApplicationRepository
	customers    customer.Repository
	ledger       ledger.Repository
	tx           postgres.Transactor
	events       events.Publisher
	logger       *zap.Logger
}

func NewBillingService(
	referrals ReferralLedger,
	resolver DiscountResolver,
	invoices invoice.Repository,
	applications discount.ApplicationRepository,
	customers customer.Repository,
	ledgerRepo ledger.Repository,
	tx postgres.Transactor,
	publisher events.Publisher,
	logger *zap.Logger,
) *BillingService {
	return &BillingService{
		referrals:    referrals,
		resolver:     resolver,
		invoices:     invoices,
		applications: applications,
		customers:    customers,
		ledger:       ledgerRepo,
		tx:           tx,
		events:       publisher,
		logger:       logger,
	}
}

// CalculateInvoiceDiscounts combines pending referral credit with the single best compensation
// discount. Consuming referral credit is the only side effect, and the consumed transactions are
// linked to ic.InvoiceID when one is given; compensation is selected here and persisted by the
// invoice write paths. A given invoice must belong to customerID and still be open.
func (s *BillingService) CalculateInvoiceDiscounts(ctx context.Context, customerID int64, originalAmount decimal.Decimal, ic billing.InvoiceContext) (*billing.DiscountResult, error) {
	var result *billing.DiscountResult
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if ic.InvoiceID != nil {
			if err := s.lockInvoiceFor(ctx, tx, *ic.InvoiceID, customerID); err != nil {
				return err
			}
		}

		var err error
		result, err = s.calculate(ctx, tx, customerID, originalAmount, ic)
		if err != nil {
			return err
		}
		if ic.InvoiceID == nil {
			return nil
		}
		return s.referrals.LinkBenefitsToInvoice(ctx, tx, result.ReferralTransactionIDs(), *ic.InvoiceID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// lockInvoiceFor holds the invoice row lock and checks the invoice can take credit for customerID.
func (s *BillingService) lockInvoiceFor(ctx context.Context, tx pgx.Tx, invoiceID, customerID int64) error {
	inv, err := s.invoices.FindByIDForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	if inv.CustomerID != customerID {
		return xerrors.NewConflict("invoice_id", fmt.Sprintf("invoice %d does not belong to customer %d", invoiceID, customerID))
	}
	return ensureMutable(inv)
}

func (s *BillingService) calculate(ctx context.Context, tx pgx.Tx, customerID int64, originalAmount decimal.Decimal, ic billing.InvoiceContext) (*billing.DiscountResult, error) {
	if originalAmount.IsNegative() {
		return nil, xerrors.NewValidation("original_amount", "must not be negative")
	}

	// Resolve compensation first: it has no side effects, so a failure here never strands
	// consumed referral credit.
	applicable, err := s.resolver.GetApplicableDiscounts(ctx, customerID, originalAmount)
	if err != nil {
		return nil, err
	}

	benefits, err := s.referrals.ApplyReferralBenefitsWithTx(ctx, tx, customerID, originalAmount)
	if err != nil {
		return nil, err
	}
	referralAmount := benefits.Amount
	referralIDs := append([]int64{}, benefits.TransactionIDs...)

	if ic.InvoiceID != nil {
		prior, err := s.referrals.AppliedCreditForInvoice(ctx, *ic.InvoiceID)
		if err != nil {
			return nil, err
		}
		referralAmount = referralAmount.Add(prior.Amount)
		referralIDs = append(referralIDs, prior.TransactionIDs...)
	}

	return Combine(originalAmount, referralAmount, referralIDs, applicable), nil
}

// Combine builds the result for an invoice. Compensation discounts never stack with each other,
// only the largest is kept; referral credit is added on top of it.
func Combine(originalAmount, referralAmount decimal.Decimal, referralIDs []int64, applicable []discount.Applicable) *billing.DiscountResult {
	result := &billing.DiscountResult{
		OriginalAmount:   originalAmount,
		TotalDiscount:    decimal.Zero,
		AppliedDiscounts: []billing.AppliedDiscount{},
	}

	referralAmount = money.NonNegative(money.Round(referralAmount))
	if referralAmount.IsPositive() {
		result.AppliedDiscounts = append(result.AppliedDiscounts, billing.AppliedDiscount{
			Source:         billing.SourceReferral,
			Name:           referralDiscountName,
			Amount:         referralAmount,
			TransactionIDs: referralIDs,
		})
		result.TotalDiscount = result.TotalDiscount.Add(referralAmount)
	}

	if best, ok := discountsvc.BestDiscount(applicable); ok && best.CalculatedDiscount.IsPositive() {
		id := best.ID
		result.AppliedDiscounts = append(result.AppliedDiscounts, billing.AppliedDiscount{
			Source:     billing.SourceCompensation,
			DiscountID: &id,
			Name:       best.Name,
			Amount:     best.CalculatedDiscount,
		})
		result.TotalDiscount = result.TotalDiscount.Add(best.CalculatedDiscount)
	}

	result.FinalAmount = money.NonNegative(originalAmount.Sub(result.TotalDiscount))
	result.DiscountPercentage = money.Ratio(originalAmount.Sub(result.FinalAmount), originalAmount)
	return result
}

// zeroResult is used when invoice creation proceeds without discounts.
func zeroResult(originalAmount decimal.Decimal) *billing.DiscountResult {
	return &billing.DiscountResult{
		OriginalAmount:     originalAmount,
		TotalDiscount:      decimal.Zero,
		FinalAmount:        originalAmount,
		AppliedDiscounts:   []billing.AppliedDiscount{},
		DiscountPercentage: decimal.Zero,
	}
}

// appliedTotal is what the invoice records as discount_amount. It never exceeds the amount.
func appliedTotal(r *billing.DiscountResult) decimal.Decimal {
	return r.OriginalAmount.Sub(r.FinalAmount)
}

func discountNotes(r *billing.DiscountResult, extra string) string {
	parts := make([]string, 0, len(r.AppliedDiscounts)+1)
	for _, d := range r.AppliedDiscounts {
		switch d.Source {
		case billing.SourceReferral:
			parts = append(parts, fmt.Sprintf("%s: %s", d.Name, d.Amount.StringFixed(2)))
		default:
			parts = append(parts, fmt.Sprintf("Discount: %s (%s)", d.Name, d.Amount.StringFixed(2)))
		}
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		parts = append(parts, extra)
	}
	return strings.Join(parts, "; ")
}
