// internal/domain/referral/repository.go
package referral

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type CodeRepository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, c *ReferralCode) error
	FindByID(ctx context.Context, id int64) (*ReferralCode, error)
	FindByCode(ctx context.Context, code string) (*ReferralCode, error)
	FindActiveByCustomer(ctx context.Context, customerID int64) (*ReferralCode, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Deactivate(ctx context.Context, id int64) error

	// IncrementUsageWithTx bumps usage_count only while the code is active, unexpired and
	// under max_uses. It reports false when no row qualified.
	IncrementUsageWithTx(ctx context.Context, tx pgx.Tx, id int64, now time.Time) (bool, error)
}

type TransactionRepository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, t *Transaction) error
	ListPendingByReferredWithTx(ctx context.Context, tx pgx.Tx, referredID int64) ([]Transaction, error)

	// MarkAppliedWithTx moves a pending transaction to applied. It reports false when the
	// transaction was no longer pending.
	MarkAppliedWithTx(ctx context.Context, tx pgx.Tx, id int64, at time.Time) (bool, error)
	LinkInvoiceWithTx(ctx context.Context, tx pgx.Tx, ids []int64, invoiceID int64) error
	SumAppliedForInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, []int64, error)
	List(ctx context.Context, filters *HistoryFilters) ([]Transaction, int64, error)
	GetStats(ctx context.Context) (*ReferralStats, error)
}

type MarketingRepository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, m *MarketingReferral) error
	FindByID(ctx context.Context, id int64) (*MarketingReferral, error)
	FindByCode(ctx context.Context, code string) (*MarketingReferral, error)

	// MarkPaidWithTx moves an unpaid referral to paid. It reports false when already paid.
	MarkPaidWithTx(ctx context.Context, tx pgx.Tx, id int64, at time.Time) (bool, error)
}
