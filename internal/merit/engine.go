package merit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/pkg/models"
)

// Engine runs merit cycles over the persisted outcome history.
type Engine struct {
	cfg   *config.Config
	store *db.PostgresStore
	log   zerolog.Logger
}

// NewEngine wires the merit engine.
func NewEngine(cfg *config.Config, store *db.PostgresStore, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, store: store, log: logger}
}

// Run executes merit cycles on a timer when the engine runs as its own
// worker rather than piggybacked on the profiler.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.RunCycle(ctx); err != nil && ctx.Err() == nil {
				e.log.Error().Err(err).Msg("merit cycle failed")
			}
		}
	}
}

// RunCycle re-scores every candidate wallet once.
func (e *Engine) RunCycle(ctx context.Context) error {
	wallets, err := e.store.ListWalletsForMerit(ctx)
	if err != nil {
		return err
	}
	for i := range wallets {
		if ctx.Err() != nil {
			return nil
		}
		if err := e.updateWallet(ctx, &wallets[i]); err != nil {
			e.log.Warn().Err(err).Str("wallet", wallets[i].Address).Msg("wallet merit update failed")
		}
	}
	return nil
}

func (e *Engine) updateWallet(ctx context.Context, w *models.Wallet) error {
	rows, err := e.store.ListWalletOutcomeEvents(ctx, w.Chain, w.Address)
	if err != nil {
		return err
	}

	mp := e.cfg.Merit
	var contributions []float64
	positives := 0
	var lastSummary string

	for _, row := range rows {
		if !row.Valid() {
			continue
		}
		peers, err := e.store.ListHighMeritTokenAlerts(ctx, row.Chain, row.TokenAddress, mp.ShadowToTitanThreshold)
		if err != nil {
			return err
		}
		distinct, err := e.store.CountDistinctWalletsOnToken(ctx, row.Chain, row.TokenAddress, row.AlertTime, copycatWindow)
		if err != nil {
			return err
		}

		earliness := EarlinessFactor(w.Address, toPeerAlerts(peers))
		crowding := CrowdingPenalty(toPeerAlerts(peers), row.AlertTime)
		copycat := CopycatPenalty(w.TierReason, distinct)
		c := Contribution(*row.NetReturn, earliness, crowding, copycat)
		contributions = append(contributions, c)
		if *row.NetReturn > 0 {
			positives++
		}
		lastSummary = fmt.Sprintf("token %s net %.4f earliness %.1f crowding %.2f copycat %.2f",
			row.TokenAddress, *row.NetReturn, earliness, crowding, copycat)
	}

	current, _ := w.MeritScore.Float64()
	prior, _ := w.PriorWeight.Float64()
	newMerit := UpdateScore(current, prior, mp.PriorConstant, mp.Decay, mp.ClampMin, mp.ClampMax, contributions)

	stats := CycleStats{
		SampleSize:       len(contributions),
		PositiveOutcomes: positives,
		Merit:            newMerit,
		IntegrityScore:   integrityFrom(w.TierReason),
		BotSuspect:       boolFrom(w.TierReason, "bot_suspect"),
		CopycatDominant:  boolFrom(w.TierReason, "copycat_dominant"),
	}
	if stats.SampleSize > 0 {
		sum := 0.0
		for _, c := range contributions {
			sum += c
		}
		stats.AvgContribution = sum / float64(stats.SampleSize)
	}

	rules := TierRules{
		OceanToShadowPositives: mp.OceanToShadowPositives,
		ShadowToTitanSamples:   mp.ShadowToTitanSamples,
		ShadowToTitanMerit:     mp.ShadowToTitanThreshold,
		ShadowToTitanIntegrity: mp.ShadowToTitanIntegrity,
		SeedDecaySamples:       mp.SeedDecaySamples,
		SeedDecayThreshold:     mp.SeedDecayThreshold,
		SeedDecayTargetTier:    mp.SeedDecayTargetTier,
	}

	tier := w.Tier
	reason := copyReason(w.TierReason)
	reason["sample_size"] = stats.SampleSize
	reason["positive_outcomes"] = stats.PositiveOutcomes
	reason["avg_contribution"] = stats.AvgContribution
	reason["merit_score"] = newMerit
	reason["last_contribution_summary"] = lastSummary
	reason["evaluated_at"] = time.Now().UTC().Format(time.RFC3339)

	if newTier, rationale := Transition(w.TierOrEmpty(), w.Source, stats, rules); newTier != "" {
		tier = &newTier
		if newTier == models.TierTitan || newTier == models.TierShadow {
			reason["last_promotion"] = rationale
		} else {
			reason["last_demotion"] = rationale
		}
		reason["rule"] = rationale
		e.log.Info().Str("wallet", w.Address).Str("tier", newTier).Str("why", rationale).Msg("tier transition")
	} else {
		reason["rule"] = "no_change"
	}

	return e.store.UpdateWalletScore(ctx, w.Chain, w.Address, models.DecimalFromFloat(newMerit), tier, reason)
}

func toPeerAlerts(rows []db.TokenAlertTime) []PeerAlert {
	peers := make([]PeerAlert, 0, len(rows))
	for _, r := range rows {
		peers = append(peers, PeerAlert{Wallet: r.WalletAddress, FirstSeen: r.FirstSeen})
	}
	return peers
}

func copyReason(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+8)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func integrityFrom(tierReason map[string]any) float64 {
	if tierReason != nil {
		if v, ok := tierReason["integrity_score"].(float64); ok {
			return v
		}
	}
	return 1.0
}

func boolFrom(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}
