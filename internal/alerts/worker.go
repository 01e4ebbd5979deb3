package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/streams"
	"github.com/rawblock/titan-engine/pkg/models"
)

// Narrator turns a reasons payload into a short operator note.
type Narrator interface {
	Narrate(ctx context.Context, reasons map[string]any) string
}

// Worker is the periodic alert scanner.
type Worker struct {
	cfg      *config.Config
	store    *db.PostgresStore
	redis    *streams.Client
	gas      *GasModel
	narrator Narrator
	log      zerolog.Logger

	// Per-chain threshold overrides from the settings store, refreshed
	// each scan.
	overrides map[string]any
}

// New wires the alerts worker.
func New(cfg *config.Config, store *db.PostgresStore, redis *streams.Client, gas *GasModel, narrator Narrator, logger zerolog.Logger) *Worker {
	return &Worker{cfg: cfg, store: store, redis: redis, gas: gas, narrator: narrator, log: logger}
}

// Run scans on the configured interval until cancelled.
func (w *Worker) Run(ctx context.Context) error {
	interval := time.Duration(w.cfg.AlertIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.scan(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("alert scan failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) scan(ctx context.Context) error {
	// Operator overrides are re-read once per scan.
	overrides, err := w.store.GetSetting(ctx, "netev_overrides")
	if err != nil {
		w.log.Warn().Err(err).Msg("settings read failed, using configured thresholds")
		overrides = nil
	}
	w.overrides = overrides

	since := time.Now().UTC().Add(-time.Duration(w.cfg.AlertLookbackHours) * time.Hour)
	trades, err := w.store.ListRecentBuys(ctx, since, 500)
	if err != nil {
		return err
	}

	for i := range trades {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.consider(ctx, &trades[i]); err != nil {
			w.log.Warn().Err(err).Str("tx", trades[i].TxHash).Msg("trade evaluation failed")
		}
	}
	return nil
}

// consider applies the alert decision tree to one buy.
func (w *Worker) consider(ctx context.Context, t *models.Trade) error {
	if t.TokenAddress == nil || t.WalletAddress == nil {
		return nil
	}
	token := *t.TokenAddress
	wallet := *t.WalletAddress

	risk, err := w.store.GetTokenRisk(ctx, t.Chain, token)
	if err != nil {
		return err
	}
	if risk == nil {
		w.log.Debug().Str("token", token).Msg("no token risk yet, skipping")
		return nil
	}
	tss := 0.0
	if risk.TSS != nil {
		tss = *risk.TSS
	}

	// Watchlist pool with no trade valuation: pool_activity path.
	if t.PairAddress != nil && (t.UsdValue == nil || *t.UsdValue <= 0) {
		pair, err := w.store.GetActiveWatchPair(ctx, t.Chain, *t.PairAddress)
		if err != nil {
			return err
		}
		if pair != nil {
			return w.emitPoolActivity(ctx, t, pair, tss)
		}
	}

	wm, err := w.store.GetWalletMetric(ctx, t.Chain, wallet)
	if err != nil {
		return err
	}
	if wm == nil {
		w.log.Debug().Str("wallet", wallet).Msg("no wallet metric yet, skipping")
		return nil
	}
	wrow, err := w.store.GetWallet(ctx, t.Chain, wallet)
	if err != nil {
		return err
	}
	if wrow == nil || wrow.IsIgnored() {
		return nil
	}

	cooldown := time.Duration(w.cfg.AlertCooldownMinutes) * time.Minute
	recent, err := w.store.HasRecentAlert(ctx, t.Chain, wallet, &token, models.AlertTradeConviction, cooldown)
	if err != nil {
		return err
	}
	if recent {
		return nil
	}

	return w.gate(ctx, t, wrow, wm, risk, tss)
}

// gate runs the NetEV decision and emits a trade_conviction alert on pass.
func (w *Worker) gate(ctx context.Context, t *models.Trade, wrow *models.Wallet, wm *models.WalletMetric, risk *models.TokenRisk, tss float64) error {
	params := ApplyOverrides(w.cfg.Params(t.Chain), w.overrides, t.Chain)
	token := *t.TokenAddress
	wallet := *t.WalletAddress

	sizeUsd := 0.0
	if t.UsdValue != nil {
		sizeUsd = *t.UsdValue
	}

	nets, err := w.store.ListValidNetReturns(ctx, t.Chain, token)
	if err != nil {
		return err
	}
	expectedMove, derived := ExpectedMove(nets, params.DefaultExpectedMove)

	slippage := defaultSlippage
	if v, ok := risk.Components["estimated_slippage"].(float64); ok && v > 0 {
		slippage = v
	}

	in := GateInput{
		SizeUsd:             sizeUsd,
		ExpectedMove:        expectedMove,
		DerivedFromOutcomes: derived,
		Slippage:            slippage,
		MinUsdProfit:        params.MinUsdProfit,
		MinRoiAfterCosts:    params.MinRoiAfterCosts,
	}
	if sizeUsd > 0 {
		gas := w.gas.EstimateTradeGasCost(ctx, t)
		in.GasCostUsd = gas.CostUsd
		in.GasCostSource = gas.Source
		in.NativePriceUsd = gas.NativePriceUsd
		in.GasUsed = gas.GasUsed
		in.EffectiveGasPrice = gas.EffectiveGasPrice
		in.AvgGasUsd1h = gas.AvgGasUsd1h
		in.P95GasUsd1h = gas.P95GasUsd1h
	}

	result := EvaluateGate(in)
	if !result.Passed {
		payload, _ := json.Marshal(result.Payload)
		w.log.Debug().Str("wallet", wallet).Str("token", token).
			RawJSON("gate", payload).Msg("netev gate rejected trade")
		return nil
	}

	totalValue := 0.0
	if wm.TotalValue != nil {
		totalValue = *wm.TotalValue
	}
	conviction := WalletConviction(tss, totalValue, w.cfg.TitanThreshold)

	reasons := map[string]any{
		"netev":        result.Payload,
		"tss":          tss,
		"wallet_tier":  wrow.TierOrEmpty(),
		"total_value":  totalValue,
		"trade_usd":    sizeUsd,
		"side":         "buy",
		"pair_address": deref(t.PairAddress),
		"dex":          deref(t.Dex),
	}
	if price, ok := t.EffectivePrice(); ok {
		reasons["entry_price"] = price
	}

	alert := &models.Alert{
		ID:            uuid.New(),
		Chain:         t.Chain,
		WalletAddress: wallet,
		TokenAddress:  &token,
		AlertType:     models.AlertTradeConviction,
		TSS:           &tss,
		Conviction:    &conviction,
		Reasons:       reasons,
		CreatedAt:     time.Now().UTC(),
	}
	if w.narrator != nil {
		if n := w.narrator.Narrate(ctx, reasons); n != "" {
			alert.Narrative = &n
		}
	}

	if err := w.store.InsertAlert(ctx, alert); err != nil {
		return err
	}
	w.log.Info().Str("wallet", wallet).Str("token", token).
		Float64("netev_usd", result.NetevUsd).Float64("conviction", conviction).
		Msg("trade conviction alert")
	return w.fanOut(ctx, alert)
}

func (w *Worker) emitPoolActivity(ctx context.Context, t *models.Trade, pair *models.WatchPair, tss float64) error {
	token := *t.TokenAddress
	wallet := *t.WalletAddress

	cooldown := time.Duration(w.cfg.AlertCooldownMinutes) * time.Minute
	recent, err := w.store.HasRecentAlert(ctx, t.Chain, wallet, &token, models.AlertPoolActivity, cooldown)
	if err != nil {
		return err
	}
	if recent {
		return nil
	}

	// An ignored wallet never alerts, watchlist pair or not.
	wrow, err := w.store.GetWallet(ctx, t.Chain, wallet)
	if err != nil {
		return err
	}
	if wrow.IsIgnored() {
		return nil
	}

	sizeUsd := 0.0
	if t.UsdValue != nil {
		sizeUsd = *t.UsdValue
	}
	conviction := PoolConviction(tss, sizeUsd)

	reasons := map[string]any{
		"pair_address": pair.PairAddress,
		"dex":          pair.Dex,
		"pair_source":  pair.Source,
		"tss":          tss,
		"side":         "buy",
	}
	if price, ok := t.EffectivePrice(); ok {
		reasons["entry_price"] = price
	}

	alert := &models.Alert{
		ID:            uuid.New(),
		Chain:         t.Chain,
		WalletAddress: wallet,
		TokenAddress:  &token,
		AlertType:     models.AlertPoolActivity,
		TSS:           &tss,
		Conviction:    &conviction,
		Reasons:       reasons,
		CreatedAt:     time.Now().UTC(),
	}
	if w.narrator != nil {
		if n := w.narrator.Narrate(ctx, reasons); n != "" {
			alert.Narrative = &n
		}
	}

	if err := w.store.InsertAlert(ctx, alert); err != nil {
		return err
	}
	w.log.Info().Str("pair", pair.PairAddress).Str("wallet", wallet).Msg("pool activity alert")
	return w.fanOut(ctx, alert)
}

// fanOut publishes the alert for the API websocket hub.
func (w *Worker) fanOut(ctx context.Context, a *models.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return w.redis.Publish(ctx, streams.StreamAlertJobs, map[string]string{
		"alert_id": a.ID.String(),
		"payload":  string(body),
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
