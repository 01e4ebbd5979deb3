package autopilot

import (
	"testing"
	"time"

	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/market"
)

var (
	ethParams = config.ChainParams{LiquidityFloorUsd: 50_000, VolumeFloorUsd: 25_000}
	apParams  = config.AutopilotParams{MinPairAgeHours: 6, AgeFallbackMultiplier: 2.0}
)

func candidate(liq, vol float64, ageHours float64, now time.Time) *market.Pair {
	p := &market.Pair{}
	p.Liquidity.Usd = liq
	p.Volume.H24 = vol
	if ageHours >= 0 {
		p.PairCreatedAt = now.Add(-time.Duration(ageHours * float64(time.Hour))).UnixMilli()
	}
	return p
}

func TestQualifies(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		liq  float64
		vol  float64
		age  float64
		want bool
	}{
		{"clears both floors", 60_000, 30_000, 12, true},
		{"liquidity below floor", 40_000, 30_000, 12, false},
		{"volume below floor", 60_000, 20_000, 12, false},
		{"too young", 60_000, 30_000, 2, false},
		{"unknown age needs double floors", 60_000, 30_000, -1, false},
		{"unknown age clears double floors", 120_000, 60_000, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := candidate(tt.liq, tt.vol, tt.age, now)
			if got := Qualifies(p, ethParams, apParams, now); got != tt.want {
				t.Errorf("Qualifies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriority(t *testing.T) {
	tests := []struct {
		liq  float64
		vol  float64
		want int
	}{
		{50_000, 25_000, 100},
		{100_000, 0, 100},
		{0, 0, 0},
		{100_000_000, 100_000_000, maxPriority},
	}
	for _, tt := range tests {
		if got := Priority(tt.liq, tt.vol); got != tt.want {
			t.Errorf("Priority(%v, %v) = %d, want %d", tt.liq, tt.vol, got, tt.want)
		}
	}
}

func TestBuildWatchPairStampsLastSeen(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := candidate(120_000, 60_000, 12, now)
	p.PairAddress = "0xPAIR"
	p.DexID = "uniswap"

	wp := buildWatchPair("ethereum", p, now, 6*time.Hour)
	if wp.LastSeen == nil || !wp.LastSeen.Equal(now) {
		t.Errorf("last seen = %v, want %v", wp.LastSeen, now)
	}
	if !wp.ExpiresAt.Equal(now.Add(6 * time.Hour)) {
		t.Errorf("expires at = %v, want %v", wp.ExpiresAt, now.Add(6*time.Hour))
	}
	if wp.PairAddress != "0xpair" || wp.Dex != "uniswap_v2" {
		t.Errorf("pair = %q dex = %q", wp.PairAddress, wp.Dex)
	}
	if wp.Priority != 240 {
		t.Errorf("priority = %d, want 240", wp.Priority)
	}
}

func TestNormalizeDex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"uniswap", "uniswap_v2"},
		{"pancakeswap", "pancakeswap_v2"},
		{"Sushiswap", "sushiswap"},
	}
	for _, tt := range tests {
		if got := normalizeDex(tt.in); got != tt.want {
			t.Errorf("normalizeDex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
