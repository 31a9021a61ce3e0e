// internal/repository/postgres/settings_repo.go
package postgres

import (
	"context"

	"isp-billing-service/internal/domain/settings"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) GetByKeys(ctx context.Context, keys []string) ([]settings.Setting, error) {
	query := `SELECT key, value, updated_at FROM settings WHERE key = ANY($1::text[]) ORDER BY key`

	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		return nil, xerrors.Persistence("get settings", err)
	}
	defer rows.Close()

	var out []settings.Setting
	for rows.Next() {
		var s settings.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, xerrors.Persistence("scan setting", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Persistence("get settings", err)
	}
	return out, nil
}

func (r *SettingsRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, rows []settings.Setting) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, s := range rows {
		batch.Queue(query, s.Key, s.Value)
	}

	var br pgx.BatchResults
	if tx != nil {
		br = tx.SendBatch(ctx, batch)
	} else {
		br = r.db.SendBatch(ctx, batch)
	}
	defer br.Close()

	for _, s := range rows {
		if _, err := br.Exec(); err != nil {
			return xerrors.Persistence("upsert setting "+s.Key, err)
		}
	}
	return nil
}
