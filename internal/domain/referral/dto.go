// internal/domain/referral/dto.go
package referral

import "github.com/shopspring/decimal"

type CreateCodeRequest struct {
	CustomerID int64 `json:"customer_id" binding:"required"`
	MaxUses    int   `json:"max_uses" binding:"omitempty,min=1"`
	ExpiryDays int   `json:"expiry_days" binding:"omitempty,min=1"`
}

type ValidateCodeRequest struct {
	Code          string `json:"code" binding:"required"`
	NewCustomerID *int64 `json:"new_customer_id"`
}

type ApplyReferralRequest struct {
	Code               string      `json:"code" binding:"required"`
	ReferredCustomerID int64       `json:"referred_customer_id" binding:"required"`
	BenefitTypeHint    BenefitType `json:"benefit_type"`
}

type ApplyReferralResponse struct {
	Transaction        *Transaction    `json:"transaction"`
	Benefit            Benefit         `json:"benefit"`
	InstallationCredit decimal.Decimal `json:"installation_credit"`
	ReferrerName       string          `json:"referrer_name,omitempty"`
}

type CreateMarketingReferralRequest struct {
	MarketerName  string           `json:"marketer_name" binding:"required,max=255"`
	MarketerPhone string           `json:"marketer_phone"`
	MarketerEmail string           `json:"marketer_email" binding:"omitempty,email"`
	CustomerID    *int64           `json:"customer_id"`
	FeeAmount     *decimal.Decimal `json:"fee_amount"`
	MaxUses       int              `json:"max_uses" binding:"omitempty,min=1"`
	ExpiryDays    int              `json:"expiry_days" binding:"omitempty,min=1"`
}

type CreateMarketingReferralResponse struct {
	Code      *ReferralCode      `json:"code"`
	Marketing *MarketingReferral `json:"marketing_referral"`
}

// CodeOptions overrides the configured defaults for a new code.
type CodeOptions struct {
	MaxUses    int
	ExpiryDays int
}

type HistoryFilters struct {
	ReferrerID *int64             `form:"referrer_id"`
	ReferredID *int64             `form:"referred_id"`
	Status     *TransactionStatus `form:"status"`
	Page       int                `form:"page"`
	PageSize   int                `form:"page_size"`
}

type HistoryResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int64         `json:"total"`
	Page         int           `json:"page"`
	PageSize     int           `json:"page_size"`
	TotalPages   int           `json:"total_pages"`
}

type ApplyBenefitsRequest struct {
	CustomerID    int64           `json:"customer_id" binding:"required"`
	BillingAmount decimal.Decimal `json:"billing_amount"`
}
