// internal/repository/postgres/discount_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"isp-billing-service/internal/domain/discount"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/pagination"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const discountColumns = `
	id, name, description, discount_type, discount_value, target_type, target_ids,
	compensation_reason, start_date, end_date, max_discount_amount, status,
	apply_to_existing_invoices, created_at, updated_at`

type DiscountRepository struct {
	db *pgxpool.Pool
}

func NewDiscountRepository(db *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{db: db}
}

func scanDiscount(row pgx.Row) (*discount.Discount, error) {
	var d discount.Discount
	err := row.Scan(
		&d.ID, &d.Name, &d.Description, &d.DiscountType, &d.DiscountValue, &d.TargetType, &d.TargetIDs,
		&d.CompensationReason, &d.StartDate, &d.EndDate, &d.MaxDiscountAmount, &d.Status,
		&d.ApplyToExistingInvoices, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDiscounts(rows pgx.Rows) ([]discount.Discount, error) {
	defer rows.Close()

	var out []discount.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discount: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Create inserts a new discount definition
func (r *DiscountRepository) Create(ctx context.Context, d *discount.Discount) error {
	query := `
		INSERT INTO discounts (
			name, description, discount_type, discount_value, target_type, target_ids,
			compensation_reason, start_date, end_date, max_discount_amount, status,
			apply_to_existing_invoices
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		d.Name, d.Description, d.DiscountType, d.DiscountValue, d.TargetType, d.TargetIDs,
		d.CompensationReason, d.StartDate, d.EndDate, d.MaxDiscountAmount, d.Status,
		d.ApplyToExistingInvoices,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return xerrors.Persistence("create discount", err)
	}
	return nil
}

// FindByID retrieves a discount by ID
func (r *DiscountRepository) FindByID(ctx context.Context, id int64) (*discount.Discount, error) {
	query := `SELECT ` + discountColumns + ` FROM discounts WHERE id = $1`

	d, err := scanDiscount(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.NewNotFound("discount", id)
	}
	if err != nil {
		return nil, xerrors.Persistence("find discount", err)
	}
	return d, nil
}

// Update writes every mutable field of d
func (r *DiscountRepository) Update(ctx context.Context, d *discount.Discount) error {
	query := `
		UPDATE discounts
		SET name = $1, description = $2, discount_type = $3, discount_value = $4,
		    target_type = $5, target_ids = $6, compensation_reason = $7,
		    start_date = $8, end_date = $9, max_discount_amount = $10,
		    updated_at = NOW()
		WHERE id = $11
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		d.Name, d.Description, d.DiscountType, d.DiscountValue,
		d.TargetType, d.TargetIDs, d.CompensationReason,
		d.StartDate, d.EndDate, d.MaxDiscountAmount,
		d.ID,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return xerrors.NewNotFound("discount", d.ID)
	}
	if err != nil {
		return xerrors.Persistence("update discount", err)
	}
	return nil
}

// UpdateStatus moves a discount to a new lifecycle state
func (r *DiscountRepository) UpdateStatus(ctx context.Context, id int64, status discount.Status) error {
	query := `UPDATE discounts SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return xerrors.Persistence("update discount status", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.NewNotFound("discount", id)
	}
	return nil
}

// Delete hard-deletes a discount
func (r *DiscountRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM discounts WHERE id = $1`, id)
	if err != nil {
		return xerrors.Persistence("delete discount", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.NewNotFound("discount", id)
	}
	return nil
}

// List retrieves discounts with optional filters. Absent filters are passed as NULL so the
// statement text never changes.
func (r *DiscountRepository) List(ctx context.Context, filters *discount.DiscountListFilters) ([]discount.Discount, int64, error) {
	var status, target, search *string
	if filters.Status != nil {
		s := string(*filters.Status)
		status = &s
	}
	if filters.TargetType != nil {
		t := string(*filters.TargetType)
		target = &t
	}
	if filters.Search != "" {
		s := "%" + filters.Search + "%"
		search = &s
	}

	where := `
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR target_type = $2)
		  AND ($3::text IS NULL OR name ILIKE $3 OR description ILIKE $3 OR compensation_reason ILIKE $3)`

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM discounts`+where, status, target, search).Scan(&total); err != nil {
		return nil, 0, xerrors.Persistence("count discounts", err)
	}

	page, pageSize := pagination.Normalize(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = page, pageSize

	query := `SELECT ` + discountColumns + ` FROM discounts` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5`

	rows, err := r.db.Query(ctx, query, status, target, search, pageSize, pagination.Offset(page, pageSize))
	if err != nil {
		return nil, 0, xerrors.Persistence("list discounts", err)
	}
	out, err := collectDiscounts(rows)
	if err != nil {
		return nil, 0, xerrors.Persistence("list discounts", err)
	}
	return out, total, nil
}

// FindActiveAt returns active discounts whose validity window covers the day of at
func (r *DiscountRepository) FindActiveAt(ctx context.Context, at time.Time) ([]discount.Discount, error) {
	query := `SELECT ` + discountColumns + `
		FROM discounts
		WHERE status = 'active'
		  AND start_date::date <= $1::date
		  AND end_date::date >= $1::date
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, at)
	if err != nil {
		return nil, xerrors.Persistence("find active discounts", err)
	}
	out, err := collectDiscounts(rows)
	if err != nil {
		return nil, xerrors.Persistence("find active discounts", err)
	}
	return out, nil
}

// GetStats aggregates catalog and application totals
func (r *DiscountRepository) GetStats(ctx context.Context) (*discount.DiscountStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM discounts),
			(SELECT COUNT(*) FROM discounts WHERE status = 'active'),
			(SELECT COUNT(*) FROM discounts WHERE status = 'retired'),
			(SELECT COUNT(*) FROM discount_applications),
			(SELECT COALESCE(SUM(discount_amount), 0) FROM discount_applications)
	`

	var s discount.DiscountStats
	err := r.db.QueryRow(ctx, query).Scan(
		&s.TotalDiscounts, &s.ActiveDiscounts, &s.RetiredDiscounts,
		&s.TotalApplications, &s.TotalDiscountGiven,
	)
	if err != nil {
		return nil, xerrors.Persistence("discount stats", err)
	}
	return &s, nil
}
