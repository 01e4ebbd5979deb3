package db

import (
	"context"

	"github.com/rawblock/titan-engine/pkg/models"
)

// SaveProfileRefresh persists one full profiler pass in a single
// transaction: positions and wallet metrics together, so a crash never
// leaves metrics ahead of positions.
func (s *PostgresStore) SaveProfileRefresh(ctx context.Context, positions []models.Position, metrics []models.WalletMetric) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	positionSQL := `
		INSERT INTO positions (chain, wallet_address, token_address, quantity, average_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (chain, wallet_address, token_address) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			updated_at = NOW()
	`
	for _, p := range positions {
		if _, err := tx.Exec(ctx, positionSQL, p.Chain, p.WalletAddress, p.TokenAddress, p.Quantity, p.AveragePrice); err != nil {
			return err
		}
	}

	metricSQL := `
		INSERT INTO wallet_metrics (chain, wallet_address, total_value, pnl, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (chain, wallet_address) DO UPDATE SET
			total_value = EXCLUDED.total_value,
			pnl = EXCLUDED.pnl,
			updated_at = NOW()
	`
	for _, m := range metrics {
		if _, err := tx.Exec(ctx, metricSQL, m.Chain, m.WalletAddress, m.TotalValue, m.PnL); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListPositions returns a wallet's non-zero positions.
func (s *PostgresStore) ListPositions(ctx context.Context, chain, wallet string) ([]models.Position, error) {
	sql := `
		SELECT chain, wallet_address, token_address, quantity, average_price, updated_at
		FROM positions
		WHERE chain = $1 AND wallet_address = $2 AND quantity > 0
		ORDER BY token_address
	`
	rows, err := s.pool.Query(ctx, sql, chain, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make([]models.Position, 0)
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.Chain, &p.WalletAddress, &p.TokenAddress, &p.Quantity, &p.AveragePrice, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
