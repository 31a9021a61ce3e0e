// internal/domain/discount/dto.go
package discount

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateDiscountRequest struct {
	Name                    string           `json:"name" binding:"required,max=255"`
	Description             string           `json:"description"`
	DiscountType            DiscountType     `json:"discount_type" binding:"required"`
	DiscountValue           decimal.Decimal  `json:"discount_value"`
	TargetType              TargetType       `json:"target_type" binding:"required"`
	TargetIDs               []string         `json:"target_ids"`
	CompensationReason      string           `json:"compensation_reason"`
	StartDate               time.Time        `json:"start_date" binding:"required"`
	EndDate                 time.Time        `json:"end_date" binding:"required"`
	MaxDiscountAmount       *decimal.Decimal `json:"max_discount_amount"`
	ApplyToExistingInvoices bool             `json:"apply_to_existing_invoices"`

	// Draft creates the discount without activating it.
	Draft bool `json:"draft"`
}

type UpdateDiscountRequest struct {
	Name               *string          `json:"name" binding:"omitempty,max=255"`
	Description        *string          `json:"description"`
	DiscountType       *DiscountType    `json:"discount_type"`
	DiscountValue      *decimal.Decimal `json:"discount_value"`
	TargetType         *TargetType      `json:"target_type"`
	TargetIDs          []string         `json:"target_ids"`
	CompensationReason *string          `json:"compensation_reason"`
	StartDate          *time.Time       `json:"start_date"`
	EndDate            *time.Time       `json:"end_date"`
	MaxDiscountAmount  *decimal.Decimal `json:"max_discount_amount"`
	ClearMaxDiscount   bool             `json:"clear_max_discount"`
}

type CreateDiscountResponse struct {
	Discount        *Discount `json:"discount"`
	AppliedInvoices int       `json:"applied_invoices"`

	// ApplyError is set when the discount was saved but the bulk apply failed.
	ApplyError string `json:"apply_error,omitempty"`
}

type DeleteDiscountResult struct {
	ID      int64 `json:"id"`
	Retired bool  `json:"retired"`
	Deleted bool  `json:"deleted"`
}

type DiscountListFilters struct {
	Status     *Status     `form:"status"`
	TargetType *TargetType `form:"target_type"`
	Search     string      `form:"search"`
	Page       int         `form:"page"`
	PageSize   int         `form:"page_size"`
}

type DiscountListResponse struct {
	Discounts  []Discount `json:"discounts"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}
