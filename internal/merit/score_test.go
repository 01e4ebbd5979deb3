package merit

import (
	"testing"
	"time"

	"github.com/rawblock/titan-engine/pkg/models"
)

func TestEarlinessFactor(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	peers := []PeerAlert{
		{Wallet: "0xa", FirstSeen: t0},
		{Wallet: "0xb", FirstSeen: t0.Add(2 * time.Minute)},
		{Wallet: "0xc", FirstSeen: t0.Add(4 * time.Minute)},
	}

	tests := []struct {
		wallet string
		want   float64
	}{
		{"0xa", 1.0},
		{"0xb", 0.7},
		{"0xc", 0.5},
		{"0xunknown", 0.5},
	}
	for _, tt := range tests {
		if got := EarlinessFactor(tt.wallet, peers); got != tt.want {
			t.Errorf("EarlinessFactor(%q) = %v, want %v", tt.wallet, got, tt.want)
		}
	}
}

// Three wallets with identical valid outcomes on the same token end up
// strictly ordered by earliness after one cycle.
func TestEarlinessOrdersIdenticalOutcomes(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	peers := []PeerAlert{
		{Wallet: "0xa", FirstSeen: t0},
		{Wallet: "0xb", FirstSeen: t0.Add(2 * time.Minute)},
		{Wallet: "0xc", FirstSeen: t0.Add(4 * time.Minute)},
	}

	score := func(wallet string, at time.Time) float64 {
		earliness := EarlinessFactor(wallet, peers)
		crowding := CrowdingPenalty(peers, at)
		copycat := CopycatPenalty(nil, 1)
		c := Contribution(0.20, earliness, crowding, copycat)
		return UpdateScore(0, 0, 0.05, 0.85, -0.5, 0.5, []float64{c})
	}

	a := score("0xa", t0)
	b := score("0xb", t0.Add(2*time.Minute))
	c := score("0xc", t0.Add(4*time.Minute))

	if !(a > b && b > c) {
		t.Errorf("expected merit(a) > merit(b) > merit(c), got %v, %v, %v", a, b, c)
	}
}

func TestCrowdingPenalty(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	solo := []PeerAlert{{Wallet: "0xa", FirstSeen: t0}}
	if got := CrowdingPenalty(solo, t0); got != 0 {
		t.Errorf("solo crowding = %v, want 0", got)
	}

	three := []PeerAlert{
		{Wallet: "0xa", FirstSeen: t0},
		{Wallet: "0xb", FirstSeen: t0.Add(5 * time.Minute)},
		{Wallet: "0xc", FirstSeen: t0.Add(9 * time.Minute)},
	}
	if got := CrowdingPenalty(three, t0); got-0.30 > 1e-9 || got-0.30 < -1e-9 {
		t.Errorf("crowding with 3 in window = %v, want 0.30", got)
	}

	// A peer outside the ±10 min window does not count.
	spread := []PeerAlert{
		{Wallet: "0xa", FirstSeen: t0},
		{Wallet: "0xb", FirstSeen: t0.Add(30 * time.Minute)},
	}
	if got := CrowdingPenalty(spread, t0); got != 0 {
		t.Errorf("crowding with distant peer = %v, want 0", got)
	}
}

func TestCopycatPenalty(t *testing.T) {
	// Stored burst score wins.
	reason := map[string]any{"copycat_burst_score": 0.4}
	if got := CopycatPenalty(reason, 9); got != 0.4 {
		t.Errorf("stored burst score = %v, want 0.4", got)
	}

	// Derived from the ±5 s distinct wallet count otherwise.
	if got := CopycatPenalty(nil, 1); got != 0 {
		t.Errorf("single wallet copycat = %v, want 0", got)
	}
	if got := CopycatPenalty(nil, 4); got-0.36 > 1e-9 || got-0.36 < -1e-9 {
		t.Errorf("copycat(4 wallets) = %v, want 0.36", got)
	}
	// Clamped to 1.
	if got := CopycatPenalty(nil, 100); got != 1 {
		t.Errorf("copycat(100 wallets) = %v, want 1", got)
	}
}

func TestUpdateScoreMonotoneInContribution(t *testing.T) {
	base := UpdateScore(0.05, 0.3, 0.05, 0.85, -0.5, 0.5, []float64{0.01})
	better := UpdateScore(0.05, 0.3, 0.05, 0.85, -0.5, 0.5, []float64{0.10})
	if better < base {
		t.Errorf("more positive contribution must not lower merit: %v < %v", better, base)
	}
}

func TestUpdateScoreNoSamplesOnlyPriorPull(t *testing.T) {
	got := UpdateScore(0.10, 0.3, 0.05, 0.85, -0.5, 0.5, nil)
	want := 0.10*0.85 + 0.3*0.05*0.15
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("UpdateScore() = %v, want %v", got, want)
	}
}

func TestUpdateScoreClampsObservation(t *testing.T) {
	unclamped := UpdateScore(0, 0, 0.05, 0.85, -0.5, 0.5, []float64{10.0})
	// The observation is clamped to 0.5, so the second pull adds at most
	// 0.5 * (1-decay).
	max := 0.5 * 0.15
	if unclamped > max+1e-12 {
		t.Errorf("UpdateScore() = %v, exceeds clamped maximum %v", unclamped, max)
	}
}

func TestTransitionFirstMatchWins(t *testing.T) {
	rules := TierRules{
		OceanToShadowPositives: 3,
		ShadowToTitanSamples:   20,
		ShadowToTitanMerit:     0.08,
		ShadowToTitanIntegrity: 0.8,
		SeedDecaySamples:       12,
		SeedDecayThreshold:     -0.02,
		SeedDecayTargetTier:    models.TierOcean,
	}

	tests := []struct {
		name   string
		tier   string
		source string
		stats  CycleStats
		want   string
	}{
		{
			name:  "ocean promotes to shadow",
			tier:  models.TierOcean,
			stats: CycleStats{PositiveOutcomes: 3, IntegrityScore: 1},
			want:  models.TierShadow,
		},
		{
			name:  "bot suspect blocks promotion",
			tier:  models.TierOcean,
			stats: CycleStats{PositiveOutcomes: 5, BotSuspect: true},
			want:  "",
		},
		{
			name:  "shadow promotes to titan",
			tier:  models.TierShadow,
			stats: CycleStats{SampleSize: 20, Merit: 0.09, IntegrityScore: 0.9},
			want:  models.TierTitan,
		},
		{
			name:  "low integrity blocks titan",
			tier:  models.TierShadow,
			stats: CycleStats{SampleSize: 25, Merit: 0.2, IntegrityScore: 0.5},
			want:  "",
		},
		{
			name:   "seed pack decays",
			tier:   models.TierShadow,
			source: models.SourceSeedPack,
			stats:  CycleStats{SampleSize: 12, Merit: -0.05, IntegrityScore: 1},
			want:   models.TierOcean,
		},
		{
			name:   "seed pack above threshold holds",
			tier:   models.TierShadow,
			source: models.SourceSeedPack,
			stats:  CycleStats{SampleSize: 12, Merit: 0.01, IntegrityScore: 1},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Transition(tt.tier, tt.source, tt.stats, rules)
			if got != tt.want {
				t.Errorf("Transition() = %q, want %q", got, tt.want)
			}
		})
	}
}
