package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// GetSetting reads one operator setting, (nil, nil) when unset.
func (s *PostgresStore) GetSetting(ctx context.Context, key string) (map[string]any, error) {
	var value map[string]any
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// PutSetting upserts one operator setting.
func (s *PostgresStore) PutSetting(ctx context.Context, key string, value map[string]any) error {
	sql := `
		INSERT INTO settings_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, sql, key, value)
	return err
}

// ListSettings returns every stored setting.
func (s *PostgresStore) ListSettings(ctx context.Context) (map[string]map[string]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings_store ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string]any)
	for rows.Next() {
		var key string
		var value map[string]any
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}
