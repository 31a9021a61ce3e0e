// internal/domain/billing/entity.go
package billing

import (
	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"

	"github.com/shopspring/decimal"
)

type DiscountSource string

const (
	SourceReferral     DiscountSource = "referral"
	SourceCompensation DiscountSource = "compensation"
)

// InvoiceContext describes the invoice a calculation is made for. InvoiceID is nil while the
// invoice has not been inserted yet.
type InvoiceContext struct {
	InvoiceID *int64 `json:"invoice_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type AppliedDiscount struct {
	Source     DiscountSource  `json:"source"`
	DiscountID *int64          `json:"discount_id,omitempty"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`

	// Referral transactions credited by this calculation.
	TransactionIDs []int64 `json:"transaction_ids,omitempty"`
}

type DiscountResult struct {
	OriginalAmount     decimal.Decimal   `json:"original_amount"`
	TotalDiscount      decimal.Decimal   `json:"total_discount"`
	FinalAmount        decimal.Decimal   `json:"final_amount"`
	AppliedDiscounts   []AppliedDiscount `json:"applied_discounts"`
	DiscountPercentage decimal.Decimal   `json:"discount_percentage"`
}

// Compensation returns the compensation entry, if any.
func (r *DiscountResult) Compensation() *AppliedDiscount {
	for i := range r.AppliedDiscounts {
		if r.AppliedDiscounts[i].Source == SourceCompensation {
			return &r.AppliedDiscounts[i]
		}
	}
	return nil
}

// ReferralTransactionIDs returns the referral transactions credited by the calculation.
func (r *DiscountResult) ReferralTransactionIDs() []int64 {
	var ids []int64
	for _, d := range r.AppliedDiscounts {
		if d.Source == SourceReferral {
			ids = append(ids, d.TransactionIDs...)
		}
	}
	return ids
}

type CalculateRequest struct {
	CustomerID     int64           `json:"customer_id" binding:"required"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	InvoiceID      *int64          `json:"invoice_id"`
}

type InvoiceWithDiscounts struct {
	Invoice      *invoice.Invoice       `json:"invoice"`
	Applications []discount.Application `json:"applications"`
	Result       *DiscountResult        `json:"result,omitempty"`
}

type InvoiceResult struct {
	InvoiceID     int64           `json:"invoice_id"`
	Success       bool            `json:"success"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	Error         string          `json:"error,omitempty"`
}

type BatchResult struct {
	BatchID   string          `json:"batch_id"`
	Processed int             `json:"processed"`
	Updated   int             `json:"updated"`
	Failed    int             `json:"failed"`
	Results   []InvoiceResult `json:"results"`
}
