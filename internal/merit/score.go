// Package merit maintains the per-wallet decayed score of weighted outcome
// contributions and the tier promotion/demotion rules built on it.
package merit

import (
	"fmt"
	"time"

	"github.com/rawblock/titan-engine/pkg/models"
)

const (
	crowdingWindow    = 10 * time.Minute
	copycatWindow     = 5 * time.Second
	crowdingPerWallet = 0.15
	copycatPerWallet  = 0.12
)

// Event is one valid outcome of a wallet: an alert on a token whose window
// was sellable, not a trap, and produced a net return estimate.
type Event struct {
	Token string
	At    time.Time
	Net   float64
}

// PeerAlert is the first alert time of one high-merit wallet on a token.
type PeerAlert struct {
	Wallet    string
	FirstSeen time.Time
}

// EarlinessFactor ranks the wallet among high-merit wallets on the same
// token by first-seen order: first 1.0, second 0.7, later 0.5. A wallet
// absent from the peer list counts as late.
func EarlinessFactor(wallet string, peers []PeerAlert) float64 {
	for rank, p := range peers {
		if p.Wallet == wallet {
			switch rank {
			case 0:
				return 1.0
			case 1:
				return 0.7
			default:
				return 0.5
			}
		}
	}
	return 0.5
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// CrowdingPenalty grows with the count of distinct high-merit wallets
// alerting on the token within ±10 min.
func CrowdingPenalty(peers []PeerAlert, at time.Time) float64 {
	k := 0
	for _, p := range peers {
		d := p.FirstSeen.Sub(at)
		if d < 0 {
			d = -d
		}
		if d <= crowdingWindow {
			k++
		}
	}
	if k <= 1 {
		return 0
	}
	return clamp01(float64(k-1) * crowdingPerWallet)
}

// CopycatPenalty prefers the burst score the merit engine stored on the
// wallet earlier, deriving one from the ±5 s distinct-wallet count
// otherwise.
func CopycatPenalty(tierReason map[string]any, distinctIn5s int) float64 {
	if tierReason != nil {
		if v, ok := tierReason["copycat_burst_score"].(float64); ok {
			return clamp01(v)
		}
	}
	d := distinctIn5s - 1
	if d < 0 {
		d = 0
	}
	return clamp01(float64(d) * copycatPerWallet)
}

// Contribution weights one event's net return.
func Contribution(net, earliness, crowding, copycat float64) float64 {
	return net * earliness * (1 - crowding) * (1 - copycat)
}

// UpdateScore applies one merit cycle: a pull toward the prior, then a pull
// toward the clamped average contribution when samples exist.
func UpdateScore(current, priorWeight, priorConst, decay, clampMin, clampMax float64, contributions []float64) float64 {
	merit := current*decay + priorWeight*priorConst*(1-decay)
	if len(contributions) == 0 {
		return merit
	}
	sum := 0.0
	for _, c := range contributions {
		sum += c
	}
	obs := sum / float64(len(contributions))
	if obs < clampMin {
		obs = clampMin
	}
	if obs > clampMax {
		obs = clampMax
	}
	return merit*decay + obs*(1-decay)
}

// CycleStats summarizes a wallet's outcome history for the tier rules.
type CycleStats struct {
	SampleSize       int
	PositiveOutcomes int
	AvgContribution  float64
	Merit            float64
	IntegrityScore   float64
	BotSuspect       bool
	CopycatDominant  bool
}

// TierRules carries the configured thresholds.
type TierRules struct {
	OceanToShadowPositives int
	ShadowToTitanSamples   int
	ShadowToTitanMerit     float64
	ShadowToTitanIntegrity float64
	SeedDecaySamples       int
	SeedDecayThreshold     float64
	SeedDecayTargetTier    string
}

// Transition decides at most one tier change per cycle, first match wins.
// It returns the new tier and a human-readable rationale, or ("", "") when
// no rule fires.
func Transition(tier, source string, stats CycleStats, rules TierRules) (string, string) {
	if tier == models.TierOcean &&
		stats.PositiveOutcomes >= rules.OceanToShadowPositives &&
		!stats.BotSuspect && !stats.CopycatDominant {
		return models.TierShadow, fmt.Sprintf("promoted: %d positive outcomes", stats.PositiveOutcomes)
	}
	if tier == models.TierShadow &&
		stats.SampleSize >= rules.ShadowToTitanSamples &&
		stats.Merit >= rules.ShadowToTitanMerit &&
		stats.IntegrityScore >= rules.ShadowToTitanIntegrity {
		return models.TierTitan, fmt.Sprintf("promoted: merit %.4f over %d samples", stats.Merit, stats.SampleSize)
	}
	if source == models.SourceSeedPack &&
		stats.SampleSize >= rules.SeedDecaySamples &&
		stats.Merit <= rules.SeedDecayThreshold &&
		tier != rules.SeedDecayTargetTier {
		return rules.SeedDecayTargetTier, fmt.Sprintf("seed decay: merit %.4f over %d samples", stats.Merit, stats.SampleSize)
	}
	return "", ""
}
