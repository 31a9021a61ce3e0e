// internal/repository/postgres/customer_repo.go
package postgres

import (
	"context"
	"errors"

	"isp-billing-service/internal/domain/customer"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CustomerRepository reads the customers table owned by the CRM module.
type CustomerRepository struct {
	db *pgxpool.Pool
}

func NewCustomerRepository(db *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) FindByID(ctx context.Context, id int64) (*customer.Customer, error) {
	query := `
		SELECT id, name, phone, status, address, package_id,
		       referred_by, referral_code_used, created_at
		FROM customers
		WHERE id = $1
	`

	var c customer.Customer
	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Phone, &c.Status, &c.Address, &c.PackageID,
		&c.ReferredBy, &c.ReferralCodeUsed, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.NewNotFound("customer", id)
	}
	if err != nil {
		return nil, xerrors.Persistence("find customer", err)
	}
	return &c, nil
}

func (r *CustomerRepository) SetReferralWithTx(ctx context.Context, tx pgx.Tx, id int64, referrerID *int64, code string) (bool, error) {
	query := `
		UPDATE customers
		SET referred_by = $1, referral_code_used = $2
		WHERE id = $3 AND referred_by IS NULL AND referral_code_used IS NULL
	`

	tag, err := on(r.db, tx).Exec(ctx, query, referrerID, code, id)
	if err != nil {
		return false, xerrors.Persistence("stamp customer referral", err)
	}
	return tag.RowsAffected() == 1, nil
}
