package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rawblock/titan-engine/pkg/models"
)

// RecordGasObservation stores one realized gas cost and refreshes the
// chain's rolling 1h estimate in the same transaction.
func (s *PostgresStore) RecordGasObservation(ctx context.Context, chain, txHash string, gasCostUsd decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertSQL := `
		INSERT INTO gas_cost_observations (chain, tx_hash, gas_cost_usd)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain, tx_hash) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertSQL, chain, txHash, gasCostUsd); err != nil {
		return err
	}

	refreshSQL := `
		INSERT INTO chain_gas_estimates (chain, avg_gas_usd_1h, p95_gas_usd_1h, samples_1h, updated_at)
		SELECT $1,
			AVG(gas_cost_usd)::float8,
			PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY gas_cost_usd)::float8,
			COUNT(*),
			NOW()
		FROM gas_cost_observations
		WHERE chain = $1 AND observed_at > NOW() - INTERVAL '1 hour'
		ON CONFLICT (chain) DO UPDATE SET
			avg_gas_usd_1h = EXCLUDED.avg_gas_usd_1h,
			p95_gas_usd_1h = EXCLUDED.p95_gas_usd_1h,
			samples_1h = EXCLUDED.samples_1h,
			updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, refreshSQL, chain); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetGasEstimate loads the rolling 1h estimate, (nil, nil) when absent.
func (s *PostgresStore) GetGasEstimate(ctx context.Context, chain string) (*models.ChainGasEstimate, error) {
	sql := `
		SELECT chain, avg_gas_usd_1h, p95_gas_usd_1h, samples_1h, updated_at
		FROM chain_gas_estimates WHERE chain = $1
	`
	var e models.ChainGasEstimate
	err := s.pool.QueryRow(ctx, sql, chain).Scan(&e.Chain, &e.AvgGasUsd1h, &e.P95GasUsd1h, &e.Samples1h, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
