// internal/domain/settings/repository.go
package settings

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	GetByKeys(ctx context.Context, keys []string) ([]Setting, error)
	UpsertWithTx(ctx context.Context, tx pgx.Tx, rows []Setting) error
}
