package db

import (
	"context"
	"time"

	"github.com/rawblock/titan-engine/pkg/models"
)

// UpsertTrade inserts a trade, treating re-delivery of the same
// (chain, tx_hash, log_index) as a no-op. Returns whether a row was written.
func (s *PostgresStore) UpsertTrade(ctx context.Context, t *models.Trade) (bool, error) {
	sql := `
		INSERT INTO trades
			(chain, tx_hash, log_index, wallet_address, token_address, side,
			 amount, price, usd_value, block_number, block_time, dex,
			 pair_address, decode_confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (chain, tx_hash, log_index) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, sql,
		t.Chain, t.TxHash, t.LogIndex, t.WalletAddress, t.TokenAddress, t.Side,
		t.Amount, t.Price, t.UsdValue, t.BlockNumber, t.BlockTime, t.Dex,
		t.PairAddress, t.DecodeConfidence,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertToken refreshes the token metadata cache.
func (s *PostgresStore) UpsertToken(ctx context.Context, chain, address string, symbol, name *string, decimals *int) error {
	sql := `
		INSERT INTO tokens (chain, address, symbol, name, decimals)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain, address) DO UPDATE SET
			symbol = COALESCE(EXCLUDED.symbol, tokens.symbol),
			name = COALESCE(EXCLUDED.name, tokens.name),
			decimals = COALESCE(EXCLUDED.decimals, tokens.decimals),
			updated_at = NOW()
	`
	_, err := s.pool.Exec(ctx, sql, chain, address, symbol, name, decimals)
	return err
}

// ListAttributedTrades streams every trade with a wallet in deterministic
// fold order for the profiler's full refresh.
func (s *PostgresStore) ListAttributedTrades(ctx context.Context) ([]models.Trade, error) {
	sql := `
		SELECT chain, tx_hash, log_index, wallet_address, token_address, side,
			amount, price, usd_value, block_number, block_time, dex,
			pair_address, decode_confidence, created_at
		FROM trades
		WHERE wallet_address IS NOT NULL
		ORDER BY block_time NULLS LAST, created_at, tx_hash, log_index
	`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]models.Trade, 0)
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.Chain, &t.TxHash, &t.LogIndex, &t.WalletAddress, &t.TokenAddress,
			&t.Side, &t.Amount, &t.Price, &t.UsdValue, &t.BlockNumber, &t.BlockTime,
			&t.Dex, &t.PairAddress, &t.DecodeConfidence, &t.CreatedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListRecentBuys returns buys created after the cutoff, newest first. The
// alerts worker scans these each cycle.
func (s *PostgresStore) ListRecentBuys(ctx context.Context, since time.Time, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = 500
	}
	sql := `
		SELECT chain, tx_hash, log_index, wallet_address, token_address, side,
			amount, price, usd_value, block_number, block_time, dex,
			pair_address, decode_confidence, created_at
		FROM trades
		WHERE side = 'buy' AND created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]models.Trade, 0)
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.Chain, &t.TxHash, &t.LogIndex, &t.WalletAddress, &t.TokenAddress,
			&t.Side, &t.Amount, &t.Price, &t.UsdValue, &t.BlockNumber, &t.BlockTime,
			&t.Dex, &t.PairAddress, &t.DecodeConfidence, &t.CreatedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// PricePoint is one (time, price) sample reconstructed from trades.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// ListTokenPrices builds the in-window price series for the outcome
// evaluator from confidently decoded trades, narrowed to one pair when known.
func (s *PostgresStore) ListTokenPrices(ctx context.Context, chain, token, pair string, from, to time.Time) ([]PricePoint, error) {
	sql := `
		SELECT COALESCE(block_time, created_at) AS ts, price, amount, usd_value
		FROM trades
		WHERE chain = $1 AND token_address = $2
			AND decode_confidence >= 0.6
			AND COALESCE(block_time, created_at) BETWEEN $3 AND $4
			AND ($5 = '' OR pair_address = $5)
		ORDER BY ts
	`
	rows, err := s.pool.Query(ctx, sql, chain, token, from, to, pair)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]PricePoint, 0)
	for rows.Next() {
		var ts time.Time
		var price, amount, usd *float64
		if err := rows.Scan(&ts, &price, &amount, &usd); err != nil {
			return nil, err
		}
		p := 0.0
		switch {
		case price != nil && *price > 0:
			p = *price
		case amount != nil && *amount > 0 && usd != nil && *usd > 0:
			p = *usd / *amount
		default:
			continue
		}
		points = append(points, PricePoint{Time: ts, Price: p})
	}
	return points, rows.Err()
}
