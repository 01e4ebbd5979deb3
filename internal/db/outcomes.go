package db

import (
	"context"
	"time"

	"github.com/rawblock/titan-engine/pkg/models"
)

// InsertOutcome writes one evaluation, treating a duplicate
// (alert_id, horizon_minutes) as a no-op. Returns whether a row was written.
func (s *PostgresStore) InsertOutcome(ctx context.Context, o *models.SignalOutcome) (bool, error) {
	sql := `
		INSERT INTO signal_outcomes
			(alert_id, horizon_minutes, was_sellable_entire_window,
			 min_exit_slippage_1k, max_exit_slippage_1k, tradeable_peak_gain,
			 exit_feasible_peak_gain, exit_feasible_peak_time,
			 tradeable_drawdown, net_tradeable_return_est, trap_flag, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (alert_id, horizon_minutes) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, sql, o.AlertID, o.HorizonMinutes, o.WasSellableEntireWindow,
		o.MinExitSlippage1k, o.MaxExitSlippage1k, o.TradeablePeakGain,
		o.ExitFeasiblePeakGain, o.ExitFeasiblePeakTime,
		o.TradeableDrawdown, o.NetTradeableReturnEst, o.TrapFlag)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListValidNetReturns returns the net returns of valid outcomes for a token.
// The NetEV gate averages these to derive the expected move.
func (s *PostgresStore) ListValidNetReturns(ctx context.Context, chain, token string) ([]float64, error) {
	sql := `
		SELECT o.net_tradeable_return_est::float8
		FROM signal_outcomes o
		JOIN alerts a ON a.id = o.alert_id
		WHERE a.chain = $1 AND a.token_address = $2
			AND o.was_sellable_entire_window = TRUE
			AND COALESCE(o.trap_flag, FALSE) = FALSE
			AND o.net_tradeable_return_est IS NOT NULL
	`
	rows, err := s.pool.Query(ctx, sql, chain, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nets := make([]float64, 0)
	for rows.Next() {
		var n float64
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}
	return nets, rows.Err()
}

// OutcomeEvent is one evaluated alert of a wallet, joined for the merit
// engine's contribution weighting.
type OutcomeEvent struct {
	Chain        string
	TokenAddress string
	AlertTime    time.Time
	NetReturn    *float64
	Sellable     *bool
	Trap         *bool
}

// Valid mirrors models.SignalOutcome.Valid over the joined row.
func (e *OutcomeEvent) Valid() bool {
	if e.NetReturn == nil || e.Sellable == nil || !*e.Sellable {
		return false
	}
	return e.Trap == nil || !*e.Trap
}

// ListWalletOutcomeEvents returns every evaluated trade_conviction alert of
// one wallet, oldest first.
func (s *PostgresStore) ListWalletOutcomeEvents(ctx context.Context, chain, wallet string) ([]OutcomeEvent, error) {
	sql := `
		SELECT a.chain, a.token_address, a.created_at,
			o.net_tradeable_return_est::float8, o.was_sellable_entire_window, o.trap_flag
		FROM alerts a
		JOIN signal_outcomes o ON o.alert_id = a.id
		WHERE a.chain = $1 AND a.wallet_address = $2
			AND a.alert_type = 'trade_conviction'
			AND a.token_address IS NOT NULL
		ORDER BY a.created_at
	`
	rows, err := s.pool.Query(ctx, sql, chain, wallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]OutcomeEvent, 0)
	for rows.Next() {
		var e OutcomeEvent
		if err := rows.Scan(&e.Chain, &e.TokenAddress, &e.AlertTime, &e.NetReturn, &e.Sellable, &e.Trap); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// TokenAlertTime is the first trade_conviction alert of one wallet on one
// token, restricted to high-merit wallets for earliness and crowding.
type TokenAlertTime struct {
	WalletAddress string
	FirstSeen     time.Time
}

// ListHighMeritTokenAlerts returns, per high-merit wallet, the first alert
// time on the token. High merit means tier shadow/titan or merit at or above
// the promotion threshold.
func (s *PostgresStore) ListHighMeritTokenAlerts(ctx context.Context, chain, token string, meritThreshold float64) ([]TokenAlertTime, error) {
	sql := `
		SELECT a.wallet_address, MIN(a.created_at) AS first_seen
		FROM alerts a
		JOIN wallets w ON w.chain = a.chain AND w.address = a.wallet_address
		WHERE a.chain = $1 AND a.token_address = $2
			AND a.alert_type = 'trade_conviction'
			AND (w.tier IN ('shadow', 'titan') OR w.merit_score >= $3)
		GROUP BY a.wallet_address
		ORDER BY first_seen
	`
	rows, err := s.pool.Query(ctx, sql, chain, token, meritThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	times := make([]TokenAlertTime, 0)
	for rows.Next() {
		var t TokenAlertTime
		if err := rows.Scan(&t.WalletAddress, &t.FirstSeen); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// CountDistinctWalletsOnToken counts distinct wallets alerting on the token
// inside [center-delta, center+delta]. The merit engine uses a tight window
// for copycat detection.
func (s *PostgresStore) CountDistinctWalletsOnToken(ctx context.Context, chain, token string, center time.Time, delta time.Duration) (int, error) {
	sql := `
		SELECT COUNT(DISTINCT wallet_address)
		FROM alerts
		WHERE chain = $1 AND token_address = $2
			AND alert_type = 'trade_conviction'
			AND created_at BETWEEN $3 AND $4
	`
	var n int
	err := s.pool.QueryRow(ctx, sql, chain, token, center.Add(-delta), center.Add(delta)).Scan(&n)
	return n, err
}
