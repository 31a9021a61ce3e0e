// internal/domain/invoice/entity.go
package invoice

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUnpaid    Status = "unpaid"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

type Invoice struct {
	ID             int64           `json:"id" db:"id"`
	CustomerID     int64           `json:"customer_id" db:"customer_id"`
	InvoiceNumber  string          `json:"invoice_number" db:"invoice_number"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount" db:"final_amount"`
	DiscountNotes  sql.NullString  `json:"discount_notes,omitempty" db:"discount_notes"`
	Status         Status          `json:"status" db:"status"`
	PeriodStart    sql.NullTime    `json:"period_start,omitempty" db:"period_start"`
	PeriodEnd      sql.NullTime    `json:"period_end,omitempty" db:"period_end"`
	DueDate        sql.NullTime    `json:"due_date,omitempty" db:"due_date"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

func (i *Invoice) IsPaid() bool {
	return i.Status == StatusPaid
}

type CreateInvoiceRequest struct {
	CustomerID    int64           `json:"customer_id" binding:"required"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	PeriodStart   *time.Time      `json:"period_start"`
	PeriodEnd     *time.Time      `json:"period_end"`
	DueDate       *time.Time      `json:"due_date"`
	Notes         string          `json:"notes"`
}
