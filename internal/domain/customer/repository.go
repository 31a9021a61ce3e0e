// internal/domain/customer/repository.go
package customer

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	FindByID(ctx context.Context, id int64) (*Customer, error)

	// SetReferralWithTx stamps the attribution columns. It reports false when the customer
	// was already referred.
	SetReferralWithTx(ctx context.Context, tx pgx.Tx, id int64, referrerID *int64, code string) (bool, error)
}
