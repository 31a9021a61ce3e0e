// internal/repository/postgres/discount_application_repo.go
package postgres

import (
	"context"
	"fmt"

	"isp-billing-service/internal/domain/discount"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DiscountApplicationRepository struct {
	db *pgxpool.Pool
}

func NewDiscountApplicationRepository(db *pgxpool.Pool) *DiscountApplicationRepository {
	return &DiscountApplicationRepository{db: db}
}

// CreateWithTx inserts an application row. The (discount_id, invoice_id) unique index turns a
// duplicate into a ConflictError.
func (r *DiscountApplicationRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, a *discount.Application) error {
	query := `
		INSERT INTO discount_applications (
			discount_id, customer_id, invoice_id, original_amount,
			discount_amount, final_amount, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, applied_at
	`

	err := on(r.db, tx).QueryRow(
		ctx, query,
		a.DiscountID, a.CustomerID, a.InvoiceID, a.OriginalAmount,
		a.DiscountAmount, a.FinalAmount, a.Notes,
	).Scan(&a.ID, &a.AppliedAt)
	if isUniqueViolation(err) {
		return xerrors.NewConflict("discount_id", fmt.Sprintf("discount %d already applied to invoice %d", a.DiscountID, a.InvoiceID))
	}
	if err != nil {
		return xerrors.Persistence("create discount application", err)
	}
	return nil
}

// DeleteByInvoiceWithTx removes every application row of an invoice
func (r *DiscountApplicationRepository) DeleteByInvoiceWithTx(ctx context.Context, tx pgx.Tx, invoiceID int64) (int64, error) {
	tag, err := on(r.db, tx).Exec(ctx, `DELETE FROM discount_applications WHERE invoice_id = $1`, invoiceID)
	if err != nil {
		return 0, xerrors.Persistence("delete discount applications", err)
	}
	return tag.RowsAffected(), nil
}

func (r *DiscountApplicationRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]discount.Application, error) {
	return r.list(ctx, nil, `WHERE invoice_id = $1`, invoiceID)
}

// ListByInvoiceWithTx reads the rows on tx, after the caller has locked the invoice
func (r *DiscountApplicationRepository) ListByInvoiceWithTx(ctx context.Context, tx pgx.Tx, invoiceID int64) ([]discount.Application, error) {
	return r.list(ctx, tx, `WHERE invoice_id = $1`, invoiceID)
}

func (r *DiscountApplicationRepository) ListByDiscount(ctx context.Context, discountID int64) ([]discount.Application, error) {
	return r.list(ctx, nil, `WHERE discount_id = $1`, discountID)
}

func (r *DiscountApplicationRepository) CountByDiscount(ctx context.Context, discountID int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM discount_applications WHERE discount_id = $1`, discountID).Scan(&n)
	if err != nil {
		return 0, xerrors.Persistence("count discount applications", err)
	}
	return n, nil
}

func (r *DiscountApplicationRepository) list(ctx context.Context, tx pgx.Tx, where string, arg int64) ([]discount.Application, error) {
	query := `
		SELECT id, discount_id, customer_id, invoice_id, original_amount,
		       discount_amount, final_amount, notes, applied_at
		FROM discount_applications ` + where + `
		ORDER BY applied_at DESC, id DESC`

	rows, err := on(r.db, tx).Query(ctx, query, arg)
	if err != nil {
		return nil, xerrors.Persistence("list discount applications", err)
	}
	defer rows.Close()

	var out []discount.Application
	for rows.Next() {
		var a discount.Application
		if err := rows.Scan(
			&a.ID, &a.DiscountID, &a.CustomerID, &a.InvoiceID, &a.OriginalAmount,
			&a.DiscountAmount, &a.FinalAmount, &a.Notes, &a.AppliedAt,
		); err != nil {
			return nil, xerrors.Persistence("scan discount application", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Persistence("list discount applications", err)
	}
	return out, nil
}
