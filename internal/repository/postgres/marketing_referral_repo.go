// internal/repository/postgres/marketing_referral_repo.go
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

const marketingReferralColumns = `
	id, marketer_name, marketer_phone, marketer_email, referral_code, customer_id,
	fee_amount, status, paid_at, created_at`

type MarketingReferralRepository struct {
	db *pgxpool.Pool
}

func NewMarketingReferralRepository(db *pgxpool.Pool) *MarketingReferralRepository {
	return &MarketingReferralRepository{db: db}
}

func (r *MarketingReferralRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, m *referral.MarketingReferral) error {
	query := `
		INSERT INTO marketing_referrals (
			marketer_name, marketer_phone, marketer_email, referral_code,
			customer_id, fee_amount, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := on(r.db, tx).QueryRow(
		ctx, query,
		m.MarketerName, m.MarketerPhone, m.MarketerEmail, m.ReferralCode,
		m.CustomerID, m.FeeAmount, m.Status,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return xerrors.Persistence("create marketing referral", err)
	}
	return nil
}

func (r *MarketingReferralRepository) FindByID(ctx context.Context, id int64) (*referral.MarketingReferral, error) {
	return r.findOne(ctx, `WHERE id = $1`, id, id)
}

func (r *MarketingReferralRepository) FindByCode(ctx context.Context, code string) (*referral.MarketingReferral, error) {
	return r.findOne(ctx, `WHERE referral_code = $1 ORDER BY id DESC LIMIT 1`, code, code)
}

func (r *MarketingReferralRepository) findOne(ctx context.Context, where string, arg, id any) (*referral.MarketingReferral, error) {
	var m referral.MarketingReferral
	err := r.db.QueryRow(ctx, `SELECT `+marketingReferralColumns+` FROM marketing_referrals `+where, arg).Scan(
		&m.ID, &m.MarketerName, &m.MarketerPhone, &m.MarketerEmail, &m.ReferralCode, &m.CustomerID,
		&m.FeeAmount, &m.Status, &m.PaidAt, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.NewNotFound("marketing referral", id)
	}
	if err != nil {
		return nil, xerrors.Persistence("find marketing referral", err)
	}
	return &m, nil
}

func (r *MarketingReferralRepository) MarkPaidWithTx(ctx context.Context, tx pgx.Tx, id int64, at time.Time) (bool, error) {
	query := `UPDATE marketing_referrals SET status = 'paid', paid_at = $1 WHERE id = $2 AND status = 'unpaid'`

	tag, err := on(r.db, tx).Exec(ctx, query, at, id)
	if err != nil {
		return false, xerrors.Persistence("mark marketing referral paid", err)
	}
	return tag.RowsAffected() == 1, nil
}
