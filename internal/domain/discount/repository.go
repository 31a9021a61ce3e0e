// internal/domain/discount/repository.go
package discount

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	Create(ctx context.Context, d *Discount) error
	FindByID(ctx context.Context, id int64) (*Discount, error)
	Update(ctx context.Context, d *Discount) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filters *DiscountListFilters) ([]Discount, int64, error)

	// FindActiveAt returns active discounts whose window contains at, newest first.
	FindActiveAt(ctx context.Context, at time.Time) ([]Discount, error)
	GetStats(ctx context.Context) (*DiscountStats, error)
}

type ApplicationRepository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, a *Application) error
	DeleteByInvoiceWithTx(ctx context.Context, tx pgx.Tx, invoiceID int64) (int64, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]Application, error)
	ListByInvoiceWithTx(ctx context.Context, tx pgx.Tx, invoiceID int64) ([]Application, error)
	ListByDiscount(ctx context.Context, discountID int64) ([]Application, error)
	CountByDiscount(ctx context.Context, discountID int64) (int64, error)
}
