package profiler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/streams"
	"github.com/rawblock/titan-engine/pkg/models"
)

const (
	consumerGroup   = "profilers"
	refreshInterval = 2 * time.Minute
	tierAlertWindow = time.Hour
	readBlock       = time.Second
	readBatch       = 64
)

// MeritUpdater runs one merit cycle after each accounting pass.
type MeritUpdater interface {
	RunCycle(ctx context.Context) error
}

// Worker runs the full-refresh profiler.
type Worker struct {
	cfg      *config.Config
	store    *db.PostgresStore
	redis    *streams.Client
	merit    MeritUpdater
	consumer string
	log      zerolog.Logger
}

// New wires a profiler worker. merit may be nil when a standalone merit
// worker owns the scoring cadence.
func New(cfg *config.Config, store *db.PostgresStore, redis *streams.Client, merit MeritUpdater, consumer string, logger zerolog.Logger) *Worker {
	return &Worker{cfg: cfg, store: store, redis: redis, merit: merit, consumer: consumer, log: logger}
}

// Run refreshes on profile_jobs messages, with a timer as a backstop.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.redis.EnsureGroup(ctx, streams.StreamProfileJobs, consumerGroup); err != nil {
		return err
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		msgs, err := w.redis.ReadGroup(ctx, streams.StreamProfileJobs, consumerGroup, w.consumer, readBatch, readBlock)
		if err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("profile job read failed")
			time.Sleep(time.Second)
			continue
		}

		triggered := len(msgs) > 0
		select {
		case <-ticker.C:
			triggered = true
		default:
		}

		if triggered {
			if err := w.Refresh(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("profile refresh failed")
			}
		}
		// Jobs are only triggers; one refresh covers the whole batch.
		for _, msg := range msgs {
			if err := w.redis.Ack(ctx, streams.StreamProfileJobs, consumerGroup, msg.ID); err != nil {
				w.log.Warn().Err(err).Str("id", msg.ID).Msg("ack failed")
			}
		}
	}
	return nil
}

// Refresh replays all attributed trades, persists positions and metrics,
// reclassifies tiers and then runs one merit cycle.
func (w *Worker) Refresh(ctx context.Context) error {
	trades, err := w.store.ListAttributedTrades(ctx)
	if err != nil {
		return err
	}

	// Drop trades of ignored wallets before accounting.
	ignored := make(map[WalletKey]bool)
	kept := trades[:0]
	for i := range trades {
		t := &trades[i]
		wk := WalletKey{Chain: t.Chain, Wallet: *t.WalletAddress}
		skip, seen := ignored[wk]
		if !seen {
			wallet, err := w.store.GetWallet(ctx, t.Chain, *t.WalletAddress)
			if err != nil {
				return err
			}
			skip = wallet.IsIgnored()
			ignored[wk] = skip
		}
		if !skip {
			kept = append(kept, *t)
		}
	}

	folded := Fold(kept)
	totals := WalletTotals(folded)

	positions := make([]models.Position, 0, len(folded))
	for key, pos := range folded {
		positions = append(positions, models.Position{
			Chain:         key.Chain,
			WalletAddress: key.Wallet,
			TokenAddress:  key.Token,
			Quantity:      pos.Quantity,
			AveragePrice:  pos.AvgPrice,
		})
	}
	metrics := make([]models.WalletMetric, 0, len(totals))
	for wk, total := range totals {
		t := total
		metrics = append(metrics, models.WalletMetric{
			Chain:         wk.Chain,
			WalletAddress: wk.Wallet,
			TotalValue:    &t,
		})
	}

	if err := w.store.SaveProfileRefresh(ctx, positions, metrics); err != nil {
		return err
	}

	if err := w.reclassify(ctx, totals); err != nil {
		return err
	}

	if w.merit != nil {
		if err := w.merit.RunCycle(ctx); err != nil {
			w.log.Warn().Err(err).Msg("merit cycle failed")
		}
	}
	return nil
}

// reclassify applies value tiers and emits wallet_tier alerts on change,
// suppressed to one per wallet per hour.
func (w *Worker) reclassify(ctx context.Context, totals map[WalletKey]float64) error {
	for wk, total := range totals {
		wallet, err := w.store.GetWallet(ctx, wk.Chain, wk.Wallet)
		if err != nil {
			return err
		}
		if wallet == nil || wallet.IsIgnored() {
			continue
		}

		tier := TierForValue(total, w.cfg.OceanThreshold, w.cfg.ShadowThreshold, w.cfg.TitanThreshold)
		// Seed-pack wallets keep their provenance tier; only the merit
		// engine's seed-decay rule may demote them.
		if tier == models.TierIgnore && wallet.Source == models.SourceSeedPack {
			continue
		}
		if wallet.TierOrEmpty() == tier {
			continue
		}

		if err := w.store.SetWalletTier(ctx, wk.Chain, wk.Wallet, tier); err != nil {
			return err
		}

		recent, err := w.store.HasRecentAlert(ctx, wk.Chain, wk.Wallet, nil, models.AlertWalletTier, tierAlertWindow)
		if err != nil {
			return err
		}
		if recent || tier == models.TierIgnore {
			continue
		}

		alert := &models.Alert{
			ID:            uuid.New(),
			Chain:         wk.Chain,
			WalletAddress: wk.Wallet,
			AlertType:     models.AlertWalletTier,
			Reasons: map[string]any{
				"previous_tier": wallet.TierOrEmpty(),
				"new_tier":      tier,
				"total_value":   total,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := w.store.InsertAlert(ctx, alert); err != nil {
			return err
		}
		w.log.Info().Str("wallet", wk.Wallet).Str("tier", tier).Msg("wallet tier changed")
	}
	return nil
}
