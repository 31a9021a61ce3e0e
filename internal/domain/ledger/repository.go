// internal/domain/ledger/repository.go
package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, e *Entry) error
}
