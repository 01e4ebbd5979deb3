package risk

import (
	"testing"
	"time"

	"github.com/rawblock/titan-engine/internal/market"
)

func pairWithLiquidity(usd float64) market.Pair {
	var p market.Pair
	p.Liquidity.Usd = usd
	return p
}

func TestEvaluateTSS(t *testing.T) {
	now := time.Now()
	clean := &market.TokenSecurity{}
	honeypot := &market.TokenSecurity{IsHoneypot: "1"}
	everything := &market.TokenSecurity{IsHoneypot: "1", IsBlacklisted: "1", IsProxy: "1", IsMintable: "1"}

	tests := []struct {
		name      string
		pairs     []market.Pair
		sec       *market.TokenSecurity
		wantTSS   float64
		wantFlags int
	}{
		{
			name:    "clean liquid token",
			pairs:   []market.Pair{pairWithLiquidity(500_000)},
			sec:     clean,
			wantTSS: 100,
		},
		{
			name:      "no pairs",
			pairs:     nil,
			sec:       clean,
			wantTSS:   70,
			wantFlags: 0,
		},
		{
			name:      "honeypot",
			pairs:     []market.Pair{pairWithLiquidity(500_000)},
			sec:       honeypot,
			wantTSS:   85,
			wantFlags: 1,
		},
		{
			name:      "low liquidity",
			pairs:     []market.Pair{pairWithLiquidity(5_000)},
			sec:       clean,
			wantTSS:   85,
			wantFlags: 1,
		},
		{
			name:      "no pairs plus every goplus flag",
			pairs:     nil,
			sec:       everything,
			wantTSS:   10,
			wantFlags: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Evaluate(tt.pairs, tt.sec, now)
			if ev.TSS != tt.wantTSS {
				t.Errorf("TSS = %v, want %v", ev.TSS, tt.wantTSS)
			}
			if len(ev.Flags) != tt.wantFlags {
				t.Errorf("flags = %v, want %d entries", ev.Flags, tt.wantFlags)
			}
		})
	}
}

func TestEvaluateNeverNegative(t *testing.T) {
	// No pairs (-30) plus four flags plus low liquidity cannot go below 0.
	sec := &market.TokenSecurity{IsHoneypot: "1", IsBlacklisted: "1", IsProxy: "1", IsMintable: "1"}
	ev := Evaluate([]market.Pair{pairWithLiquidity(100)}, sec, time.Now())
	if ev.TSS < 0 {
		t.Errorf("TSS = %v, must be floored at 0", ev.TSS)
	}
}

func TestHoneypotNotSellable(t *testing.T) {
	ev := Evaluate([]market.Pair{pairWithLiquidity(500_000)}, &market.TokenSecurity{IsHoneypot: "1"}, time.Now())
	if ev.Sellable {
		t.Error("honeypot token must not be sellable")
	}
	if ev.MaxSizeUsd != 10_000 {
		t.Errorf("maxSize = %v, want 2%% of liquidity", ev.MaxSizeUsd)
	}
}

func TestSlippageForSize(t *testing.T) {
	tests := []struct {
		size float64
		want float64
	}{
		{0, 0.40},
		{10, 0.40},      // 2.0 clamped to 0.40
		{1_000, 0.02},   // 0.02*1000/1000
		{100_000, 0.0025}, // 0.0002 clamped up
	}
	for _, tt := range tests {
		if got := SlippageForSize(tt.size); got != tt.want {
			t.Errorf("SlippageForSize(%v) = %v, want %v", tt.size, got, tt.want)
		}
	}
}

func TestAppendHistoryBounded(t *testing.T) {
	ev := Evaluate([]market.Pair{pairWithLiquidity(100_000)}, &market.TokenSecurity{}, time.Now())
	var history []any
	for i := 0; i < maxHistoryEntries+10; i++ {
		history = AppendHistory(history, ev, time.Now())
	}
	if len(history) != maxHistoryEntries {
		t.Errorf("history length = %d, want %d", len(history), maxHistoryEntries)
	}
}
