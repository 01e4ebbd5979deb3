package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/rawblock/titan-engine/pkg/models"
)

// UpsertTokenRisk writes the risk worker's composite for one token.
func (s *PostgresStore) UpsertTokenRisk(ctx context.Context, r *models.TokenRisk) error {
	sql := `
		INSERT INTO token_risk (chain, address, score, tss, flags, components, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (chain, address) DO UPDATE SET
			score = EXCLUDED.score,
			tss = EXCLUDED.tss,
			flags = EXCLUDED.flags,
			components = EXCLUDED.components,
			updated_at = NOW()
	`
	flags := r.Flags
	if flags == nil {
		flags = []string{}
	}
	_, err := s.pool.Exec(ctx, sql, r.Chain, r.Address, r.Score, r.TSS, flags, r.Components)
	return err
}

// GetTokenRisk loads the current risk row, (nil, nil) when absent.
func (s *PostgresStore) GetTokenRisk(ctx context.Context, chain, address string) (*models.TokenRisk, error) {
	sql := `
		SELECT chain, address, score, tss, flags, components, updated_at
		FROM token_risk WHERE chain = $1 AND address = $2
	`
	var r models.TokenRisk
	err := s.pool.QueryRow(ctx, sql, chain, address).Scan(
		&r.Chain, &r.Address, &r.Score, &r.TSS, &r.Flags, &r.Components, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
