// internal/domain/referral/entity.go
package referral

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type BenefitType string

const (
	BenefitCash     BenefitType = "cash"
	BenefitDiscount BenefitType = "discount"
)

type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionApplied TransactionStatus = "applied"
)

type MarketingStatus string

const (
	MarketingUnpaid MarketingStatus = "unpaid"
	MarketingPaid   MarketingStatus = "paid"
)

// Rejection reasons reported by code validation.
const (
	ReasonNotFound           = "not found"
	ReasonInactive           = "inactive"
	ReasonExpiredOrExhausted = "expired or exhausted"
	ReasonSelfReferral       = "self referral"
)

// ReferralCode is either a personal code (CustomerID set) or a fixed marketing code.
type ReferralCode struct {
	ID         int64         `json:"id" db:"id"`
	CustomerID sql.NullInt64 `json:"customer_id,omitempty" db:"customer_id"`
	Code       string        `json:"code" db:"code"`
	MaxUses    int           `json:"max_uses" db:"max_uses"`
	UsageCount int           `json:"usage_count" db:"usage_count"`
	ExpiresAt  time.Time     `json:"expires_at" db:"expires_at"`
	IsActive   bool          `json:"is_active" db:"is_active"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

func (c *ReferralCode) IsFixed() bool {
	return !c.CustomerID.Valid
}

func (c *ReferralCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *ReferralCode) IsExhausted() bool {
	return c.UsageCount >= c.MaxUses
}

func (c *ReferralCode) RemainingUses() int {
	if c.IsExhausted() {
		return 0
	}
	return c.MaxUses - c.UsageCount
}

type Transaction struct {
	ID             int64             `json:"id" db:"id"`
	ReferrerID     sql.NullInt64     `json:"referrer_id,omitempty" db:"referrer_id"`
	ReferredID     int64             `json:"referred_id" db:"referred_id"`
	ReferralCodeID int64             `json:"referral_code_id" db:"referral_code_id"`
	BenefitType    BenefitType       `json:"benefit_type" db:"benefit_type"`
	BenefitAmount  decimal.Decimal   `json:"benefit_amount" db:"benefit_amount"`
	Status         TransactionStatus `json:"status" db:"status"`
	AppliedDate    sql.NullTime      `json:"applied_date,omitempty" db:"applied_date"`
	InvoiceID      sql.NullInt64     `json:"invoice_id,omitempty" db:"invoice_id"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}

type MarketingReferral struct {
	ID            int64           `json:"id" db:"id"`
	MarketerName  string          `json:"marketer_name" db:"marketer_name"`
	MarketerPhone sql.NullString  `json:"marketer_phone,omitempty" db:"marketer_phone"`
	MarketerEmail sql.NullString  `json:"marketer_email,omitempty" db:"marketer_email"`
	ReferralCode  string          `json:"referral_code" db:"referral_code"`
	CustomerID    sql.NullInt64   `json:"customer_id,omitempty" db:"customer_id"`
	FeeAmount     decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	Status        MarketingStatus `json:"status" db:"status"`
	PaidAt        sql.NullTime    `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Benefit is the outcome decided for one redemption.
type Benefit struct {
	Type   BenefitType     `json:"benefit_type"`
	Amount decimal.Decimal `json:"benefit_amount"`
}

// AppliedBenefits is what one billing cycle consumed from the pending ledger.
type AppliedBenefits struct {
	Amount         decimal.Decimal `json:"amount"`
	TransactionIDs []int64         `json:"transaction_ids"`
}

type ValidationResult struct {
	Valid        bool          `json:"valid"`
	Reason       string        `json:"reason,omitempty"`
	ReferrerName string        `json:"referrer_name,omitempty"`
	Code         *ReferralCode `json:"code,omitempty"`
}

type ReferralStats struct {
	TotalCodes           int64           `json:"total_codes"`
	ActiveCodes          int64           `json:"active_codes"`
	TotalRedemptions     int64           `json:"total_redemptions"`
	PendingTransactions  int64           `json:"pending_transactions"`
	AppliedTransactions  int64           `json:"applied_transactions"`
	TotalCashBenefit     decimal.Decimal `json:"total_cash_benefit"`
	TotalDiscountBenefit decimal.Decimal `json:"total_discount_benefit"`
	UnpaidMarketingFees  decimal.Decimal `json:"unpaid_marketing_fees"`
}
