// internal/repository/postgres/referral_transaction_repo.go
package postgres

import (
	"context"
	"time"

	"isp-billing-service/internal/domain/referral"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/pagination"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const referralTransactionColumns = `
	id, referrer_id, referred_id, referral_code_id, benefit_type, benefit_amount,
	status, applied_date, invoice_id, created_at`

type ReferralTransactionRepository struct {
	db *pgxpool.Pool
}

func NewReferralTransactionRepository(db *pgxpool.Pool) *ReferralTransactionRepository {
	return &ReferralTransactionRepository{db: db}
}

func scanReferralTransactions(rows pgx.Rows) ([]referral.Transaction, error) {
	defer rows.Close()

	var out []referral.Transaction
	for rows.Next() {
		var t referral.Transaction
		if err := rows.Scan(
			&t.ID, &t.ReferrerID, &t.ReferredID, &t.ReferralCodeID, &t.BenefitType, &t.BenefitAmount,
			&t.Status, &t.AppliedDate, &t.InvoiceID, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ReferralTransactionRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, t *referral.Transaction) error {
	query := `
		INSERT INTO referral_transactions (
			referrer_id, referred_id, referral_code_id, benefit_type, benefit_amount, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := on(r.db, tx).QueryRow(
		ctx, query,
		t.ReferrerID, t.ReferredID, t.ReferralCodeID, t.BenefitType, t.BenefitAmount, t.Status,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return xerrors.Persistence("create referral transaction", err)
	}
	return nil
}

// ListPendingByReferredWithTx locks the customer's pending transactions so two billing runs
// cannot consume them twice.
func (r *ReferralTransactionRepository) ListPendingByReferredWithTx(ctx context.Context, tx pgx.Tx, referredID int64) ([]referral.Transaction, error) {
	query := `SELECT ` + referralTransactionColumns + `
		FROM referral_transactions
		WHERE referred_id = $1 AND status = 'pending'
		ORDER BY id
		FOR UPDATE`

	rows, err := on(r.db, tx).Query(ctx, query, referredID)
	if err != nil {
		return nil, xerrors.Persistence("list pending referral transactions", err)
	}
	out, err := scanReferralTransactions(rows)
	if err != nil {
		return nil, xerrors.Persistence("list pending referral transactions", err)
	}
	return out, nil
}

func (r *ReferralTransactionRepository) MarkAppliedWithTx(ctx context.Context, tx pgx.Tx, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE referral_transactions
		SET status = 'applied', applied_date = $1
		WHERE id = $2 AND status = 'pending'
	`

	tag, err := on(r.db, tx).Exec(ctx, query, at, id)
	if err != nil {
		return false, xerrors.Persistence("mark referral transaction applied", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReferralTransactionRepository) LinkInvoiceWithTx(ctx context.Context, tx pgx.Tx, ids []int64, invoiceID int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE referral_transactions SET invoice_id = $1 WHERE id = ANY($2::bigint[]) AND invoice_id IS NULL`

	if _, err := on(r.db, tx).Exec(ctx, query, invoiceID, ids); err != nil {
		return xerrors.Persistence("link referral transactions", err)
	}
	return nil
}

// SumAppliedForInvoice returns the referral credit already consumed by an invoice
func (r *ReferralTransactionRepository) SumAppliedForInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, []int64, error) {
	query := `
		SELECT COALESCE(SUM(benefit_amount), 0),
		       COALESCE(array_agg(id ORDER BY id), '{}'::bigint[])
		FROM referral_transactions
		WHERE invoice_id = $1 AND status = 'applied'
	`

	var total decimal.Decimal
	var ids []int64
	if err := r.db.QueryRow(ctx, query, invoiceID).Scan(&total, &ids); err != nil {
		return decimal.Zero, nil, xerrors.Persistence("sum invoice referral credit", err)
	}
	return total, ids, nil
}

func (r *ReferralTransactionRepository) List(ctx context.Context, filters *referral.HistoryFilters) ([]referral.Transaction, int64, error) {
	var status *string
	if filters.Status != nil {
		s := string(*filters.Status)
		status = &s
	}

	where := `
		WHERE ($1::bigint IS NULL OR referrer_id = $1)
		  AND ($2::bigint IS NULL OR referred_id = $2)
		  AND ($3::text IS NULL OR status = $3)`

	var total int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM referral_transactions`+where,
		filters.ReferrerID, filters.ReferredID, status).Scan(&total)
	if err != nil {
		return nil, 0, xerrors.Persistence("count referral transactions", err)
	}

	page, pageSize := pagination.Normalize(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = page, pageSize

	query := `SELECT ` + referralTransactionColumns + ` FROM referral_transactions` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5`

	rows, err := r.db.Query(ctx, query,
		filters.ReferrerID, filters.ReferredID, status, pageSize, pagination.Offset(page, pageSize))
	if err != nil {
		return nil, 0, xerrors.Persistence("list referral transactions", err)
	}
	out, err := scanReferralTransactions(rows)
	if err != nil {
		return nil, 0, xerrors.Persistence("list referral transactions", err)
	}
	return out, total, nil
}

func (r *ReferralTransactionRepository) GetStats(ctx context.Context) (*referral.ReferralStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM referral_codes),
			(SELECT COUNT(*) FROM referral_codes WHERE is_active),
			(SELECT COUNT(*) FROM referral_transactions),
			(SELECT COUNT(*) FROM referral_transactions WHERE status = 'pending'),
			(SELECT COUNT(*) FROM referral_transactions WHERE status = 'applied'),
			(SELECT COALESCE(SUM(benefit_amount), 0) FROM referral_transactions WHERE benefit_type = 'cash'),
			(SELECT COALESCE(SUM(benefit_amount), 0) FROM referral_transactions WHERE benefit_type = 'discount'),
			(SELECT COALESCE(SUM(fee_amount), 0) FROM marketing_referrals WHERE status = 'unpaid')
	`

	var s referral.ReferralStats
	err := r.db.QueryRow(ctx, query).Scan(
		&s.TotalCodes, &s.ActiveCodes, &s.TotalRedemptions,
		&s.PendingTransactions, &s.AppliedTransactions,
		&s.TotalCashBenefit, &s.TotalDiscountBenefit, &s.UnpaidMarketingFees,
	)
	if err != nil {
		return nil, xerrors.Persistence("referral stats", err)
	}
	return &s, nil
}
