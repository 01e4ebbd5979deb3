package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rawblock/titan-engine/pkg/models"
)

// GetWallet loads one wallet row, returning (nil, nil) when absent.
func (s *PostgresStore) GetWallet(ctx context.Context, chain, address string) (*models.Wallet, error) {
	sql := `
		SELECT chain, address, source, prior_weight, merit_score, tier, tier_reason, ignore_reason, created_at
		FROM wallets WHERE chain = $1 AND address = $2
	`
	var w models.Wallet
	err := s.pool.QueryRow(ctx, sql, chain, address).Scan(
		&w.Chain, &w.Address, &w.Source, &w.PriorWeight, &w.MeritScore,
		&w.Tier, &w.TierReason, &w.IgnoreReason, &w.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// EnsureWallet inserts a wallet if it does not exist yet. Existing rows are
// untouched so seed and manual provenance survive autopilot observation.
func (s *PostgresStore) EnsureWallet(ctx context.Context, chain, address, source string) error {
	sql := `
		INSERT INTO wallets (chain, address, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain, address) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, sql, chain, address, source)
	return err
}

// UpsertSeedWallet installs a seed-pack wallet at the shadow tier. Wallets
// already on the ignore tier keep their tier and reason.
func (s *PostgresStore) UpsertSeedWallet(ctx context.Context, chain, address string, priorWeight decimal.Decimal) error {
	sql := `
		INSERT INTO wallets (chain, address, source, prior_weight, tier)
		VALUES ($1, $2, 'seed_pack', $3, 'shadow')
		ON CONFLICT (chain, address) DO UPDATE SET
			source = 'seed_pack',
			prior_weight = EXCLUDED.prior_weight,
			tier = CASE WHEN wallets.tier = 'ignore' THEN wallets.tier ELSE 'shadow' END
	`
	_, err := s.pool.Exec(ctx, sql, chain, address, priorWeight)
	return err
}

// IgnoreWallet marks a wallet as ignored with a reason.
func (s *PostgresStore) IgnoreWallet(ctx context.Context, chain, address, reason string) error {
	sql := `
		INSERT INTO wallets (chain, address, source, tier, ignore_reason)
		VALUES ($1, $2, 'seed_pack', 'ignore', $3)
		ON CONFLICT (chain, address) DO UPDATE SET
			tier = 'ignore',
			ignore_reason = EXCLUDED.ignore_reason
	`
	_, err := s.pool.Exec(ctx, sql, chain, address, reason)
	return err
}

// UpdateWalletScore persists the merit engine's per-cycle result.
func (s *PostgresStore) UpdateWalletScore(ctx context.Context, chain, address string, merit decimal.Decimal, tier *string, tierReason map[string]any) error {
	sql := `
		UPDATE wallets SET merit_score = $3, tier = $4, tier_reason = $5
		WHERE chain = $1 AND address = $2
	`
	_, err := s.pool.Exec(ctx, sql, chain, address, merit, tier, tierReason)
	return err
}

// SetWalletTier updates only the tier, used by the profiler's value tiers.
func (s *PostgresStore) SetWalletTier(ctx context.Context, chain, address, tier string) error {
	sql := `UPDATE wallets SET tier = $3 WHERE chain = $1 AND address = $2`
	_, err := s.pool.Exec(ctx, sql, chain, address, tier)
	return err
}

// ListWallets pages wallets, optionally filtered by tier, ordered by merit.
func (s *PostgresStore) ListWallets(ctx context.Context, tier string, page, limit int) ([]models.Wallet, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := ""
	args := []any{}
	if tier != "" {
		where = "WHERE tier = $1"
		args = append(args, tier)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM wallets "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := fmt.Sprintf(`
		SELECT chain, address, source, prior_weight, merit_score, tier, tier_reason, ignore_reason, created_at
		FROM wallets %s
		ORDER BY merit_score DESC, created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	wallets := make([]models.Wallet, 0)
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.Chain, &w.Address, &w.Source, &w.PriorWeight, &w.MeritScore,
			&w.Tier, &w.TierReason, &w.IgnoreReason, &w.CreatedAt); err != nil {
			return nil, 0, err
		}
		wallets = append(wallets, w)
	}
	return wallets, total, rows.Err()
}

// ListWalletsForMerit returns every wallet that has at least one alert with
// an evaluated outcome, plus all seed-pack wallets. These are the candidates
// for a merit cycle.
func (s *PostgresStore) ListWalletsForMerit(ctx context.Context) ([]models.Wallet, error) {
	sql := `
		SELECT DISTINCT w.chain, w.address, w.source, w.prior_weight, w.merit_score,
			w.tier, w.tier_reason, w.ignore_reason, w.created_at
		FROM wallets w
		LEFT JOIN alerts a ON a.chain = w.chain AND a.wallet_address = w.address
		LEFT JOIN signal_outcomes o ON o.alert_id = a.id
		WHERE w.tier IS DISTINCT FROM 'ignore'
			AND (o.id IS NOT NULL OR w.source = 'seed_pack')
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := make([]models.Wallet, 0)
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.Chain, &w.Address, &w.Source, &w.PriorWeight, &w.MeritScore,
			&w.Tier, &w.TierReason, &w.IgnoreReason, &w.CreatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// GetWalletMetric loads a wallet's profiler valuation, (nil, nil) when absent.
func (s *PostgresStore) GetWalletMetric(ctx context.Context, chain, address string) (*models.WalletMetric, error) {
	sql := `
		SELECT chain, wallet_address, total_value, pnl, updated_at
		FROM wallet_metrics WHERE chain = $1 AND wallet_address = $2
	`
	var m models.WalletMetric
	err := s.pool.QueryRow(ctx, sql, chain, address).Scan(
		&m.Chain, &m.WalletAddress, &m.TotalValue, &m.PnL, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
