// internal/repository/postgres/invoice_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `
	i.id, i.customer_id, i.invoice_number, i.amount, i.discount_amount, i.final_amount,
	i.discount_notes, i.status, i.period_start, i.period_end, i.due_date,
	i.created_at, i.updated_at`

// Unpaid invoices in the window that this discount has not touched yet.
const unpaidForDiscountBase = `SELECT ` + invoiceColumns + `
	FROM invoices i
	JOIN customers c ON c.id = i.customer_id
	WHERE i.status = 'unpaid'
	  AND i.created_at::date >= $2::date
	  AND i.created_at::date <= $3::date
	  AND NOT EXISTS (
		SELECT 1 FROM discount_applications da
		WHERE da.invoice_id = i.id AND da.discount_id = $1
	  )`

// One fixed statement per target type.
var unpaidForTargetQueries = map[discount.TargetType]string{
	discount.TargetAll: unpaidForDiscountBase + `
	ORDER BY i.id
	FOR UPDATE OF i`,
	discount.TargetCustomer: unpaidForDiscountBase + `
	  AND i.customer_id::text = ANY($4::text[])
	ORDER BY i.id
	FOR UPDATE OF i`,
	discount.TargetPackage: unpaidForDiscountBase + `
	  AND c.package_id::text = ANY($4::text[])
	ORDER BY i.id
	FOR UPDATE OF i`,
	discount.TargetArea: unpaidForDiscountBase + `
	  AND EXISTS (
		SELECT 1 FROM unnest($4::text[]) AS area
		WHERE btrim(area) <> '' AND strpos(lower(c.address), lower(btrim(area))) > 0
	  )
	ORDER BY i.id
	FOR UPDATE OF i`,
}

type InvoiceRepository struct {
	db *pgxpool.Pool
}

func NewInvoiceRepository(db *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := row.Scan(
		&inv.ID, &inv.CustomerID, &inv.InvoiceNumber, &inv.Amount, &inv.DiscountAmount, &inv.FinalAmount,
		&inv.DiscountNotes, &inv.Status, &inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func collectInvoices(rows pgx.Rows) ([]invoice.Invoice, error) {
	defer rows.Close()

	var out []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// CreateWithTx inserts an invoice together with its discount totals
func (r *InvoiceRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (
			customer_id, invoice_number, amount, discount_amount, final_amount,
			discount_notes, status, period_start, period_end, due_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := on(r.db, tx).QueryRow(
		ctx, query,
		inv.CustomerID, inv.InvoiceNumber, inv.Amount, inv.DiscountAmount, inv.FinalAmount,
		inv.DiscountNotes, inv.Status, inv.PeriodStart, inv.PeriodEnd, inv.DueDate,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if isUniqueViolation(err) {
		return xerrors.NewConflict("invoice_number", "invoice number already exists")
	}
	if err != nil {
		return xerrors.Persistence("create invoice", err)
	}
	return nil
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id int64) (*invoice.Invoice, error) {
	return r.find(ctx, r.db, `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id = $1`, id)
}

// FindByIDForUpdate reads the invoice and holds its row lock until tx ends
func (r *InvoiceRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*invoice.Invoice, error) {
	return r.find(ctx, on(r.db, tx), `SELECT `+invoiceColumns+` FROM invoices i WHERE i.id = $1 FOR UPDATE`, id)
}

func (r *InvoiceRepository) find(ctx context.Context, q Querier, query string, id int64) (*invoice.Invoice, error) {
	inv, err := scanInvoice(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.NewNotFound("invoice", id)
	}
	if err != nil {
		return nil, xerrors.Persistence("find invoice", err)
	}
	return inv, nil
}

// ListUnpaid returns unpaid invoices, optionally for one customer
func (r *InvoiceRepository) ListUnpaid(ctx context.Context, customerID *int64) ([]invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices i
		WHERE i.status = 'unpaid'
		  AND ($1::bigint IS NULL OR i.customer_id = $1)
		ORDER BY i.id`

	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, xerrors.Persistence("list unpaid invoices", err)
	}
	out, err := collectInvoices(rows)
	if err != nil {
		return nil, xerrors.Persistence("list unpaid invoices", err)
	}
	return out, nil
}

func (r *InvoiceRepository) FindUnpaidForTargetWithTx(ctx context.Context, tx pgx.Tx, q invoice.TargetQuery) ([]invoice.Invoice, error) {
	tt := discount.TargetType(q.TargetType)
	query, ok := unpaidForTargetQueries[tt]
	if !ok {
		return nil, xerrors.NewValidation("target_type", fmt.Sprintf("unsupported target type %q", q.TargetType))
	}

	args := []any{q.DiscountID, q.From, q.To}
	if tt != discount.TargetAll {
		args = append(args, q.TargetIDs)
	}

	rows, err := on(r.db, tx).Query(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Persistence("find target invoices", err)
	}
	out, err := collectInvoices(rows)
	if err != nil {
		return nil, xerrors.Persistence("find target invoices", err)
	}
	return out, nil
}

func (r *InvoiceRepository) SetDiscountsWithTx(ctx context.Context, tx pgx.Tx, id int64, discountAmount, finalAmount decimal.Decimal, notes string) error {
	query := `
		UPDATE invoices
		SET discount_amount = $1, final_amount = $2, discount_notes = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $4
	`

	tag, err := on(r.db, tx).Exec(ctx, query, discountAmount, finalAmount, notes, id)
	if err != nil {
		return xerrors.Persistence("update invoice discounts", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.NewNotFound("invoice", id)
	}
	return nil
}

// AddDiscountWithTx adds on top of existing discounts. The recorded discount never exceeds
// what was left to pay.
func (r *InvoiceRepository) AddDiscountWithTx(ctx context.Context, tx pgx.Tx, id int64, amount decimal.Decimal, note string) error {
	query := `
		UPDATE invoices
		SET discount_amount = discount_amount + LEAST($1, final_amount),
		    final_amount = GREATEST(final_amount - $1, 0),
		    discount_notes = concat_ws('; ', discount_notes, NULLIF($2, '')),
		    updated_at = NOW()
		WHERE id = $3
	`

	tag, err := on(r.db, tx).Exec(ctx, query, amount, note, id)
	if err != nil {
		return xerrors.Persistence("add invoice discount", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.NewNotFound("invoice", id)
	}
	return nil
}
