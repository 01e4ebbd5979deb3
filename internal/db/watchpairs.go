package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rawblock/titan-engine/pkg/models"
)

// UpsertWatchPair writes an autopilot observation. An existing seed_pack row
// keeps its source and its longer expiry; everything else is refreshed.
func (s *PostgresStore) UpsertWatchPair(ctx context.Context, p *models.WatchPair) error {
	sql := `
		INSERT INTO watch_pairs
			(chain, pair_address, dex, token0_symbol, token0_address,
			 token1_symbol, token1_address, source, priority, score, reason,
			 expires_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (chain, pair_address) DO UPDATE SET
			dex = EXCLUDED.dex,
			token0_symbol = COALESCE(EXCLUDED.token0_symbol, watch_pairs.token0_symbol),
			token0_address = COALESCE(EXCLUDED.token0_address, watch_pairs.token0_address),
			token1_symbol = COALESCE(EXCLUDED.token1_symbol, watch_pairs.token1_symbol),
			token1_address = COALESCE(EXCLUDED.token1_address, watch_pairs.token1_address),
			source = CASE WHEN watch_pairs.source = 'seed_pack' THEN 'seed_pack' ELSE EXCLUDED.source END,
			priority = CASE WHEN watch_pairs.source = 'seed_pack' THEN GREATEST(watch_pairs.priority, EXCLUDED.priority) ELSE EXCLUDED.priority END,
			score = EXCLUDED.score,
			reason = EXCLUDED.reason,
			expires_at = CASE WHEN watch_pairs.source = 'seed_pack' THEN GREATEST(watch_pairs.expires_at, EXCLUDED.expires_at) ELSE EXCLUDED.expires_at END,
			last_seen = EXCLUDED.last_seen
	`
	_, err := s.pool.Exec(ctx, sql,
		p.Chain, p.PairAddress, p.Dex, p.Token0Symbol, p.Token0Address,
		p.Token1Symbol, p.Token1Address, p.Source, p.Priority, p.Score,
		p.Reason, p.ExpiresAt, p.LastSeen,
	)
	return err
}

// GetActiveWatchPair returns the pair when it is under observation right now,
// (nil, nil) otherwise.
func (s *PostgresStore) GetActiveWatchPair(ctx context.Context, chain, pairAddress string) (*models.WatchPair, error) {
	sql := `
		SELECT chain, pair_address, dex, token0_symbol, token0_address,
			token1_symbol, token1_address, source, priority, score, reason,
			expires_at, last_seen
		FROM watch_pairs
		WHERE chain = $1 AND pair_address = $2 AND expires_at > NOW()
	`
	var p models.WatchPair
	err := s.pool.QueryRow(ctx, sql, chain, pairAddress).Scan(
		&p.Chain, &p.PairAddress, &p.Dex, &p.Token0Symbol, &p.Token0Address,
		&p.Token1Symbol, &p.Token1Address, &p.Source, &p.Priority, &p.Score,
		&p.Reason, &p.ExpiresAt, &p.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActiveWatchPairs returns active pairs for one chain ordered by
// priority desc, score desc, last_seen desc nulls last, capped. seed_pack
// pairs are always included even when expired.
func (s *PostgresStore) ListActiveWatchPairs(ctx context.Context, chain string, cap int) ([]models.WatchPair, error) {
	if cap <= 0 {
		cap = 200
	}
	sql := `
		SELECT chain, pair_address, dex, token0_symbol, token0_address,
			token1_symbol, token1_address, source, priority, score, reason,
			expires_at, last_seen
		FROM watch_pairs
		WHERE chain = $1 AND (expires_at > NOW() OR source = 'seed_pack')
		ORDER BY priority DESC, score DESC, last_seen DESC NULLS LAST
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, chain, cap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make([]models.WatchPair, 0)
	for rows.Next() {
		var p models.WatchPair
		if err := rows.Scan(&p.Chain, &p.PairAddress, &p.Dex, &p.Token0Symbol, &p.Token0Address,
			&p.Token1Symbol, &p.Token1Address, &p.Source, &p.Priority, &p.Score,
			&p.Reason, &p.ExpiresAt, &p.LastSeen); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// ChurnWatchPairs expires every active non-seed pair beyond the per-chain
// cap. Survivors are chosen by the same ordering the snapshot uses. Returns
// the number of pairs expired.
func (s *PostgresStore) ChurnWatchPairs(ctx context.Context, chain string, maxPairs int) (int, error) {
	sql := `
		WITH ranked AS (
			SELECT pair_address,
				ROW_NUMBER() OVER (ORDER BY priority DESC, score DESC, last_seen DESC NULLS LAST) AS rn
			FROM watch_pairs
			WHERE chain = $1 AND expires_at > NOW()
		)
		UPDATE watch_pairs w
		SET expires_at = NOW(), priority = 0
		FROM ranked r
		WHERE w.chain = $1 AND w.pair_address = r.pair_address
			AND r.rn > $2 AND w.source <> 'seed_pack'
	`
	tag, err := s.pool.Exec(ctx, sql, chain, maxPairs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// UpsertSeedPair installs a seed-pack watch pair with a long expiry.
func (s *PostgresStore) UpsertSeedPair(ctx context.Context, chain, pairAddress, dex string, token0, token1 *string, expiresAt time.Time) error {
	sql := `
		INSERT INTO watch_pairs (chain, pair_address, dex, token0_address, token1_address, source, priority, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'seed_pack', 100, $6)
		ON CONFLICT (chain, pair_address) DO UPDATE SET
			source = 'seed_pack',
			priority = GREATEST(watch_pairs.priority, 100),
			expires_at = GREATEST(watch_pairs.expires_at, EXCLUDED.expires_at)
	`
	_, err := s.pool.Exec(ctx, sql, chain, pairAddress, dex, token0, token1, expiresAt)
	return err
}
