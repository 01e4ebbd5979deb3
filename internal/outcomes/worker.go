package outcomes

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/market"
	"github.com/rawblock/titan-engine/pkg/models"
)

// Worker evaluates due alerts against each configured horizon.
type Worker struct {
	cfg         *config.Config
	store       *db.PostgresStore
	dexscreener *market.DexScreenerClient
	log         zerolog.Logger
}

// New wires the outcome evaluator.
func New(cfg *config.Config, store *db.PostgresStore, ds *market.DexScreenerClient, logger zerolog.Logger) *Worker {
	return &Worker{cfg: cfg, store: store, dexscreener: ds, log: logger}
}

// Run evaluates on the configured interval until cancelled.
func (w *Worker) Run(ctx context.Context) error {
	interval := time.Duration(w.cfg.OutcomeIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.runOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("outcome pass failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	for _, horizon := range w.cfg.OutcomeHorizonsMinutes {
		alerts, err := w.store.ListAlertsNeedingOutcome(ctx, horizon, w.cfg.OutcomeBatchPerHorizon)
		if err != nil {
			return err
		}
		for i := range alerts {
			if ctx.Err() != nil {
				return nil
			}
			if err := w.evaluate(ctx, &alerts[i], horizon); err != nil {
				w.log.Warn().Err(err).Str("alert", alerts[i].ID.String()).
					Int("horizon", horizon).Msg("outcome evaluation failed")
			}
		}
	}
	return nil
}

func (w *Worker) evaluate(ctx context.Context, a *models.Alert, horizonMinutes int) error {
	horizon := time.Duration(horizonMinutes) * time.Minute
	token := *a.TokenAddress

	risk, err := w.store.GetTokenRisk(ctx, a.Chain, token)
	if err != nil {
		return err
	}
	var snapshots []RiskSnapshot
	if risk != nil {
		snapshots = parseHistory(risk.Components)
	}

	prices, err := w.priceSeries(ctx, a, token, horizon)
	if err != nil {
		return err
	}

	entry := 0.0
	if v, ok := a.Reasons["entry_price"].(float64); ok {
		entry = v
	}

	result := EvaluateWindow(a.CreatedAt, horizon, entry, snapshots, prices)
	if result.Insufficient {
		w.log.Debug().Str("alert", a.ID.String()).Int("horizon", horizonMinutes).
			Int("snapshots", len(snapshots)).Int("prices", len(prices)).
			Msg("insufficient data, recording empty outcome")
	}

	outcome := &models.SignalOutcome{
		AlertID:                 a.ID,
		HorizonMinutes:          horizonMinutes,
		WasSellableEntireWindow: result.Sellable,
		MinExitSlippage1k:       models.DecimalPtr(result.MinExitSlippage1k),
		MaxExitSlippage1k:       models.DecimalPtr(result.MaxExitSlippage1k),
		TradeablePeakGain:       models.DecimalPtr(result.TradeablePeak),
		ExitFeasiblePeakGain:    models.DecimalPtr(result.ExitFeasiblePeak),
		ExitFeasiblePeakTime:    result.ExitFeasibleTime,
		TradeableDrawdown:       models.DecimalPtr(result.Drawdown),
		NetTradeableReturnEst:   models.DecimalPtr(result.NetReturn),
		TrapFlag:                result.Trap,
		EvaluatedAt:             time.Now().UTC(),
	}

	inserted, err := w.store.InsertOutcome(ctx, outcome)
	if err != nil {
		return err
	}
	if inserted && !result.Insufficient {
		w.log.Info().Str("alert", a.ID.String()).Int("horizon", horizonMinutes).
			Float64("net", deref(result.NetReturn)).Bool("trap", deref(result.Trap)).
			Msg("outcome recorded")
	}
	return nil
}

// priceSeries reads window trades and augments thin series with a
// DexScreener quote anchored at the window end.
func (w *Worker) priceSeries(ctx context.Context, a *models.Alert, token string, horizon time.Duration) ([]PriceSample, error) {
	pair := ""
	if v, ok := a.Reasons["pair_address"].(string); ok {
		pair = v
	}
	end := a.CreatedAt.Add(horizon)

	points, err := w.store.ListTokenPrices(ctx, a.Chain, token, pair, a.CreatedAt, end)
	if err != nil {
		return nil, err
	}
	samples := make([]PriceSample, 0, len(points)+1)
	for _, p := range points {
		samples = append(samples, PriceSample{Time: p.Time, Price: p.Price})
	}

	return augment(samples, end, func() (float64, bool) {
		return w.livePrice(ctx, a.Chain, token)
	}), nil
}

// augment appends a quote at the window end when the stored series is too
// thin to judge on its own.
func augment(samples []PriceSample, end time.Time, quote func() (float64, bool)) []PriceSample {
	if len(samples) >= minPrices {
		return samples
	}
	price, ok := quote()
	if !ok {
		return samples
	}
	return append(samples, PriceSample{Time: end, Price: price})
}

func (w *Worker) livePrice(ctx context.Context, chain, token string) (float64, bool) {
	pairs, err := w.dexscreener.TokenPairs(ctx, chain, token)
	if err != nil || len(pairs) == 0 {
		return 0, false
	}
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.Liquidity.Usd > best.Liquidity.Usd {
			best = p
		}
	}
	price, err := strconv.ParseFloat(best.PriceUsd, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// parseHistory decodes components.history entries written by the risk worker.
func parseHistory(components map[string]any) []RiskSnapshot {
	raw, _ := components["history"].([]any)
	out := make([]RiskSnapshot, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ts, ok := m["updated_at"].(string)
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		snap := RiskSnapshot{Time: at}
		snap.Sellable, _ = m["sellable"].(bool)
		snap.MaxSizeUsd, _ = m["max_suggested_size_usd"].(float64)
		if flags, ok := m["flags"].([]any); ok {
			for _, f := range flags {
				if s, ok := f.(string); ok {
					snap.Flags = append(snap.Flags, s)
				}
			}
		}
		if sl, ok := m["slippage"].(map[string]any); ok {
			snap.Slippage1k, _ = sl["exit_slippage_1k"].(float64)
		}
		out = append(out, snap)
	}
	return out
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
