// Package autopilot discovers fresh DEX pairs worth watching and keeps the
// watchlist pruned to its per-chain cap.
package autopilot

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/market"
	"github.com/rawblock/titan-engine/pkg/models"
)

// Search queries run per cycle against DexScreener.
var searchQueries = []string{"WETH", "USDC", "WBNB", "USDT"}

const maxPriority = 10_000

// Worker is the watchlist autopilot.
type Worker struct {
	cfg         *config.Config
	store       *db.PostgresStore
	dexscreener *market.DexScreenerClient
	goplus      *market.GoPlusClient
	log         zerolog.Logger
}

// New wires the autopilot. goplus may be nil to skip security screening.
func New(cfg *config.Config, store *db.PostgresStore, ds *market.DexScreenerClient, gp *market.GoPlusClient, logger zerolog.Logger) *Worker {
	return &Worker{cfg: cfg, store: store, dexscreener: ds, goplus: gp, log: logger}
}

// Run cycles with randomized sleeps so scrapes do not look periodic.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.cycle(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("autopilot cycle failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.sleep()):
		}
	}
}

func (w *Worker) sleep() time.Duration {
	min := w.cfg.Autopilot.MinSleepSeconds
	max := w.cfg.Autopilot.MaxSleepSeconds
	if max <= min {
		return time.Duration(min) * time.Second
	}
	return time.Duration(min+rand.Intn(max-min)) * time.Second
}

func (w *Worker) cycle(ctx context.Context) error {
	now := time.Now().UTC()
	for _, chain := range []string{models.ChainEthereum, models.ChainBSC} {
		added := 0
		seen := map[string]bool{}

		for _, query := range searchQueries {
			pairs, err := w.dexscreener.Search(ctx, chain, query)
			if err != nil {
				w.log.Warn().Err(err).Str("chain", chain).Str("query", query).Msg("pair search failed")
				continue
			}
			for i := range pairs {
				p := &pairs[i]
				key := strings.ToLower(p.PairAddress)
				if seen[key] {
					continue
				}
				seen[key] = true

				if !Qualifies(p, w.cfg.Params(chain), w.cfg.Autopilot, now) {
					continue
				}
				if w.flaggedBySecurity(ctx, chain, p.BaseToken.Address) {
					continue
				}
				if err := w.adopt(ctx, chain, p, now); err != nil {
					w.log.Warn().Err(err).Str("pair", p.PairAddress).Msg("watch pair upsert failed")
					continue
				}
				added++
			}
		}

		dropped, err := w.store.ChurnWatchPairs(ctx, chain, w.cfg.Autopilot.MaxPairsPerChain)
		if err != nil {
			return err
		}
		w.log.Info().Str("chain", chain).Int("added", added).Int("expired", dropped).Msg("autopilot cycle")
	}
	return nil
}

// Qualifies applies the liquidity, volume and age filters. Pairs with an
// unknown creation time must clear both floors at the fallback multiplier.
func Qualifies(p *market.Pair, params config.ChainParams, ap config.AutopilotParams, now time.Time) bool {
	liqFloor := params.LiquidityFloorUsd
	volFloor := params.VolumeFloorUsd

	age := p.AgeHours(now)
	if age < 0 {
		liqFloor *= ap.AgeFallbackMultiplier
		volFloor *= ap.AgeFallbackMultiplier
	} else if age < ap.MinPairAgeHours {
		return false
	}

	return p.Liquidity.Usd >= liqFloor && p.Volume.H24 >= volFloor
}

// Priority ranks a candidate by depth and turnover, capped.
func Priority(liquidityUsd, volume24hUsd float64) int {
	p := liquidityUsd/1000 + volume24hUsd/500
	if p > maxPriority {
		return maxPriority
	}
	return int(math.Floor(p))
}

func (w *Worker) flaggedBySecurity(ctx context.Context, chain, token string) bool {
	if w.goplus == nil || token == "" {
		return false
	}
	sec, err := w.goplus.TokenSecurity(ctx, chain, token)
	if err != nil || sec == nil {
		// Unavailable screening does not block adoption.
		return false
	}
	return sec.Honeypot() || sec.Blacklisted()
}

func (w *Worker) adopt(ctx context.Context, chain string, p *market.Pair, now time.Time) error {
	ttl := time.Duration(w.cfg.Autopilot.PairTTLHours) * time.Hour
	return w.store.UpsertWatchPair(ctx, buildWatchPair(chain, p, now, ttl))
}

// buildWatchPair assembles the row for a qualified pair. last_seen always
// moves to now so the snapshot and churn orderings stay fresh.
func buildWatchPair(chain string, p *market.Pair, now time.Time, ttl time.Duration) *models.WatchPair {
	return &models.WatchPair{
		Chain:         chain,
		PairAddress:   strings.ToLower(p.PairAddress),
		Dex:           normalizeDex(p.DexID),
		Token0Symbol:  models.StringPtr(p.BaseToken.Symbol),
		Token0Address: models.StringPtr(strings.ToLower(p.BaseToken.Address)),
		Token1Symbol:  models.StringPtr(p.QuoteToken.Symbol),
		Token1Address: models.StringPtr(strings.ToLower(p.QuoteToken.Address)),
		Source:        models.SourceAutopilot,
		Priority:      Priority(p.Liquidity.Usd, p.Volume.H24),
		Score:         p.Liquidity.Usd,
		Reason: map[string]any{
			"liquidity_usd": p.Liquidity.Usd,
			"volume_24h":    p.Volume.H24,
			"age_hours":     p.AgeHours(now),
			"dex_id":        p.DexID,
		},
		ExpiresAt: now.Add(ttl),
		LastSeen:  &now,
	}
}

// normalizeDex maps DexScreener dex ids onto the registry venue names.
func normalizeDex(dexID string) string {
	switch strings.ToLower(dexID) {
	case "uniswap":
		return "uniswap_v2"
	case "pancakeswap":
		return "pancakeswap_v2"
	default:
		return strings.ToLower(dexID)
	}
}
