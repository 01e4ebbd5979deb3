package db

import (
	"context"
	"time"
)

// OpsMetrics is the aggregate snapshot served by the ops endpoint.
type OpsMetrics struct {
	AlertsByType       map[string]int        `json:"alertsByType"`
	TrapRate           *float64              `json:"trapRate"`
	AvgNetByHorizon    map[int]float64       `json:"avgNetByHorizon"`
	TopWalletsByMerit  []WalletMeritSummary  `json:"topWalletsByMerit"`
	TopPairsByTrades   []PairActivitySummary `json:"topPairsByTrades"`
	GeneratedAt        time.Time             `json:"generatedAt"`
	WindowHours        int                   `json:"windowHours"`
}

type WalletMeritSummary struct {
	Chain      string  `json:"chain"`
	Address    string  `json:"address"`
	MeritScore float64 `json:"meritScore"`
	Tier       *string `json:"tier"`
}

type PairActivitySummary struct {
	Chain       string `json:"chain"`
	PairAddress string `json:"pairAddress"`
	TradeCount  int    `json:"tradeCount"`
}

// CollectOpsMetrics aggregates the operator dashboard numbers over the
// trailing window.
func (s *PostgresStore) CollectOpsMetrics(ctx context.Context, windowHours int) (*OpsMetrics, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)

	m := &OpsMetrics{
		AlertsByType:    make(map[string]int),
		AvgNetByHorizon: make(map[int]float64),
		GeneratedAt:     time.Now().UTC(),
		WindowHours:     windowHours,
	}

	rows, err := s.pool.Query(ctx,
		`SELECT alert_type, COUNT(*) FROM alerts WHERE created_at >= $1 GROUP BY alert_type`, cutoff)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			rows.Close()
			return nil, err
		}
		m.AlertsByType[typ] = n
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	err = s.pool.QueryRow(ctx, `
		SELECT AVG(CASE WHEN trap_flag THEN 1.0 ELSE 0.0 END)::float8
		FROM signal_outcomes WHERE evaluated_at >= $1 AND trap_flag IS NOT NULL
	`, cutoff).Scan(&m.TrapRate)
	if err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT horizon_minutes, AVG(net_tradeable_return_est)::float8
		FROM signal_outcomes
		WHERE evaluated_at >= $1 AND net_tradeable_return_est IS NOT NULL
		GROUP BY horizon_minutes
	`, cutoff)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var horizon int
		var avg float64
		if err := rows.Scan(&horizon, &avg); err != nil {
			rows.Close()
			return nil, err
		}
		m.AvgNetByHorizon[horizon] = avg
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	rows, err = s.pool.Query(ctx, `
		SELECT chain, address, merit_score::float8, tier
		FROM wallets
		WHERE tier IS DISTINCT FROM 'ignore'
		ORDER BY merit_score DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var w WalletMeritSummary
		if err := rows.Scan(&w.Chain, &w.Address, &w.MeritScore, &w.Tier); err != nil {
			rows.Close()
			return nil, err
		}
		m.TopWalletsByMerit = append(m.TopWalletsByMerit, w)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	rows, err = s.pool.Query(ctx, `
		SELECT chain, pair_address, COUNT(*)
		FROM trades
		WHERE pair_address IS NOT NULL AND created_at >= $1
		GROUP BY chain, pair_address
		ORDER BY COUNT(*) DESC
		LIMIT 10
	`, cutoff)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p PairActivitySummary
		if err := rows.Scan(&p.Chain, &p.PairAddress, &p.TradeCount); err != nil {
			rows.Close()
			return nil, err
		}
		m.TopPairsByTrades = append(m.TopPairsByTrades, p)
	}
	rows.Close()
	return m, rows.Err()
}
