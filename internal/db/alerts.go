package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rawblock/titan-engine/pkg/models"
)

// InsertAlert appends one alert row.
func (s *PostgresStore) InsertAlert(ctx context.Context, a *models.Alert) error {
	sql := `
		INSERT INTO alerts (id, chain, wallet_address, token_address, alert_type, tss, conviction, reasons, narrative, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, sql, a.ID, a.Chain, a.WalletAddress, a.TokenAddress,
		a.AlertType, a.TSS, a.Conviction, a.Reasons, a.Narrative, a.CreatedAt)
	return err
}

// HasRecentAlert reports whether an equivalent alert already exists within
// the cooldown window. A nil token matches alerts with no token.
func (s *PostgresStore) HasRecentAlert(ctx context.Context, chain, wallet string, token *string, alertType string, window time.Duration) (bool, error) {
	sql := `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE chain = $1 AND wallet_address = $2
				AND token_address IS NOT DISTINCT FROM $3
				AND alert_type = $4
				AND created_at > NOW() - $5::interval
		)
	`
	var exists bool
	err := s.pool.QueryRow(ctx, sql, chain, wallet, token, alertType, window.String()).Scan(&exists)
	return exists, err
}

// GetAlert loads one alert by id, (nil, nil) when absent.
func (s *PostgresStore) GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	sql := `
		SELECT id, chain, wallet_address, token_address, alert_type, tss, conviction, reasons, narrative, created_at
		FROM alerts WHERE id = $1
	`
	var a models.Alert
	err := s.pool.QueryRow(ctx, sql, id).Scan(&a.ID, &a.Chain, &a.WalletAddress, &a.TokenAddress,
		&a.AlertType, &a.TSS, &a.Conviction, &a.Reasons, &a.Narrative, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAlerts pages alerts newest first with an optional chain filter.
func (s *PostgresStore) ListAlerts(ctx context.Context, chain string, page, limit int) ([]models.Alert, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := ""
	args := []any{}
	if chain != "" {
		where = "WHERE chain = $1"
		args = append(args, chain)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM alerts "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := fmt.Sprintf(`
		SELECT id, chain, wallet_address, token_address, alert_type, tss, conviction, reasons, narrative, created_at
		FROM alerts %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.Chain, &a.WalletAddress, &a.TokenAddress, &a.AlertType,
			&a.TSS, &a.Conviction, &a.Reasons, &a.Narrative, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, a)
	}
	return alerts, total, rows.Err()
}

// ListAlertsNeedingOutcome returns trade_conviction and pool_activity alerts
// older than the horizon that have no outcome row at that horizon yet.
func (s *PostgresStore) ListAlertsNeedingOutcome(ctx context.Context, horizonMinutes, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 200
	}
	sql := `
		SELECT a.id, a.chain, a.wallet_address, a.token_address, a.alert_type,
			a.tss, a.conviction, a.reasons, a.narrative, a.created_at
		FROM alerts a
		LEFT JOIN signal_outcomes o
			ON o.alert_id = a.id AND o.horizon_minutes = $1
		WHERE o.id IS NULL
			AND a.alert_type IN ('trade_conviction', 'pool_activity')
			AND a.token_address IS NOT NULL
			AND a.created_at <= NOW() - ($1 * INTERVAL '1 minute')
		ORDER BY a.created_at
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, horizonMinutes, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.Chain, &a.WalletAddress, &a.TokenAddress, &a.AlertType,
			&a.TSS, &a.Conviction, &a.Reasons, &a.Narrative, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
