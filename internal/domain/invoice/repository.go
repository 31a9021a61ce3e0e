// internal/domain/invoice/repository.go
package invoice

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TargetQuery selects unpaid invoices for a bulk discount application.
type TargetQuery struct {
	DiscountID int64
	TargetType string
	TargetIDs  []string
	From       time.Time
	To         time.Time
}

type Repository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, inv *Invoice) error
	FindByID(ctx context.Context, id int64) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*Invoice, error)
	ListUnpaid(ctx context.Context, customerID *int64) ([]Invoice, error)

	// FindUnpaidForTargetWithTx returns unpaid invoices matching the target rule, created
	// within the window, that carry no application row for q.DiscountID.
	FindUnpaidForTargetWithTx(ctx context.Context, tx pgx.Tx, q TargetQuery) ([]Invoice, error)

	// SetDiscountsWithTx overwrites the discount fields of an invoice.
	SetDiscountsWithTx(ctx context.Context, tx pgx.Tx, id int64, discountAmount, finalAmount decimal.Decimal, notes string) error

	// AddDiscountWithTx adds amount to the existing discount, keeping final_amount >= 0.
	AddDiscountWithTx(ctx context.Context, tx pgx.Tx, id int64, amount decimal.Decimal, note string) error
}
