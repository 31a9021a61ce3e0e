// internal/repository/postgres/ledger_repo.go
package postgres

import (
	"context"

	"isp-billing-service/internal/domain/ledger"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, e *ledger.Entry) error {
	query := `
		INSERT INTO accounting_entries (category, entry_type, amount, description, reference, customer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := on(r.db, tx).QueryRow(
		ctx, query,
		e.Category, e.EntryType, e.Amount, e.Description, e.Reference, e.CustomerID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return xerrors.Persistence("create ledger entry", err)
	}
	return nil
}
