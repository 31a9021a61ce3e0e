// internal/domain/discount/entity.go
package discount

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

func (t DiscountType) Valid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

type TargetType string

const (
	TargetAll      TargetType = "all"
	TargetArea     TargetType = "area"
	TargetPackage  TargetType = "package"
	TargetCustomer TargetType = "customer"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetAll, TargetArea, TargetPackage, TargetCustomer:
		return true
	}
	return false
}

// RequiresIDs reports whether the target type needs a non-empty target list.
func (t TargetType) RequiresIDs() bool {
	return t != TargetAll
}

// Status is the discount lifecycle state. Retired is terminal.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
)

var transitions = map[Status][]Status{
	StatusDraft:   {StatusActive, StatusRetired},
	StatusActive:  {StatusDraft, StatusRetired},
	StatusRetired: nil,
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Discount struct {
	ID                      int64               `json:"id" db:"id"`
	Name                    string              `json:"name" db:"name"`
	Description             sql.NullString      `json:"description,omitempty" db:"description"`
	DiscountType            DiscountType        `json:"discount_type" db:"discount_type"`
	DiscountValue           decimal.Decimal     `json:"discount_value" db:"discount_value"`
	TargetType              TargetType          `json:"target_type" db:"target_type"`
	TargetIDs               pq.StringArray      `json:"target_ids" db:"target_ids"`
	CompensationReason      sql.NullString      `json:"compensation_reason,omitempty" db:"compensation_reason"`
	StartDate               time.Time           `json:"start_date" db:"start_date"`
	EndDate                 time.Time           `json:"end_date" db:"end_date"`
	MaxDiscountAmount       decimal.NullDecimal `json:"max_discount_amount,omitempty" db:"max_discount_amount"`
	Status                  Status              `json:"status" db:"status"`
	ApplyToExistingInvoices bool                `json:"apply_to_existing_invoices" db:"apply_to_existing_invoices"`
	CreatedAt               time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time           `json:"updated_at" db:"updated_at"`
}

func (d *Discount) IsActive() bool {
	return d.Status == StatusActive
}

// InWindow reports whether t falls on a day between StartDate and EndDate, both inclusive.
func (d *Discount) InWindow(t time.Time) bool {
	day := truncateDay(t)
	return !day.Before(truncateDay(d.StartDate)) && !day.After(truncateDay(d.EndDate))
}

func truncateDay(t time.Time) time.Time {
	y, m, dd := t.UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

// Application is the audit row linking one discount to one invoice.
type Application struct {
	ID             int64           `json:"id" db:"id"`
	DiscountID     int64           `json:"discount_id" db:"discount_id"`
	CustomerID     int64           `json:"customer_id" db:"customer_id"`
	InvoiceID      int64           `json:"invoice_id" db:"invoice_id"`
	OriginalAmount decimal.Decimal `json:"original_amount" db:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount" db:"final_amount"`
	Notes          sql.NullString  `json:"notes,omitempty" db:"notes"`
	AppliedAt      time.Time       `json:"applied_at" db:"applied_at"`
}

// Applicable is a matching discount together with the amount it yields for one invoice.
type Applicable struct {
	Discount
	CalculatedDiscount decimal.Decimal `json:"calculated_discount"`
}

type DiscountStats struct {
	TotalDiscounts     int64           `json:"total_discounts"`
	ActiveDiscounts    int64           `json:"active_discounts"`
	RetiredDiscounts   int64           `json:"retired_discounts"`
	TotalApplications  int64           `json:"total_applications"`
	TotalDiscountGiven decimal.Decimal `json:"total_discount_given"`
}
