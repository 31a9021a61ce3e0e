// internal/repository/postgres/referral_code_repo.go
package postgres

import (
	"context"
	"errors"
	"time"

	"isp-billing-service/internal/domain/referral"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const referralCodeColumns = `id, customer_id, code, max_uses, usage_count, expires_at, is_active, created_at`

type ReferralCodeRepository struct {
	db *pgxpool.Pool
}

func NewReferralCodeRepository(db *pgxpool.Pool) *ReferralCodeRepository {
	return &ReferralCodeRepository{db: db}
}

// CreateWithTx inserts a code. Both the code and the one-active-code-per-customer partial
// index are unique, so a violation is reported as a conflict.
func (r *ReferralCodeRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, c *referral.ReferralCode) error {
	query := `
		INSERT INTO referral_codes (customer_id, code, max_uses, usage_count, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := on(r.db, tx).QueryRow(
		ctx, query,
		c.CustomerID, c.Code, c.MaxUses, c.UsageCount, c.ExpiresAt, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt)
	if isUniqueViolation(err) {
		return xerrors.NewConflict("code", "referral code already exists")
	}
	if err != nil {
		return xerrors.Persistence("create referral code", err)
	}
	return nil
}

func (r *ReferralCodeRepository) FindByID(ctx context.Context, id int64) (*referral.ReferralCode, error) {
	return r.findOne(ctx, `WHERE id = $1`, id, id)
}

func (r *ReferralCodeRepository) FindByCode(ctx context.Context, code string) (*referral.ReferralCode, error) {
	return r.findOne(ctx, `WHERE code = $1`, code, code)
}

// FindActiveByCustomer returns the customer's active code, or NotFound
func (r *ReferralCodeRepository) FindActiveByCustomer(ctx context.Context, customerID int64) (*referral.ReferralCode, error) {
	return r.findOne(ctx, `WHERE customer_id = $1 AND is_active ORDER BY created_at DESC LIMIT 1`, customerID, customerID)
}

func (r *ReferralCodeRepository) findOne(ctx context.Context, where string, arg, id any) (*referral.ReferralCode, error) {
	var c referral.ReferralCode
	err := r.db.QueryRow(ctx, `SELECT `+referralCodeColumns+` FROM referral_codes `+where, arg).Scan(
		&c.ID, &c.CustomerID, &c.Code, &c.MaxUses, &c.UsageCount, &c.ExpiresAt, &c.IsActive, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.NewNotFound("referral code", id)
	}
	if err != nil {
		return nil, xerrors.Persistence("find referral code", err)
	}
	return &c, nil
}

func (r *ReferralCodeRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM referral_codes WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, xerrors.Persistence("check referral code", err)
	}
	return exists, nil
}

func (r *ReferralCodeRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE referral_codes SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return xerrors.Persistence("deactivate referral code", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.NewNotFound("referral code", id)
	}
	return nil
}

func (r *ReferralCodeRepository) IncrementUsageWithTx(ctx context.Context, tx pgx.Tx, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE referral_codes
		SET usage_count = usage_count + 1
		WHERE id = $1
		  AND is_active
		  AND usage_count < max_uses
		  AND expires_at >= $2
	`

	tag, err := on(r.db, tx).Exec(ctx, query, id, now)
	if err != nil {
		return false, xerrors.Persistence("increment referral code usage", err)
	}
	return tag.RowsAffected() == 1, nil
}
