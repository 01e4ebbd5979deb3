package outcomes

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func TestEvaluateWindowInsufficientData(t *testing.T) {
	res := EvaluateWindow(t0, 6*time.Hour, 1.0,
		[]RiskSnapshot{{Time: t0, Sellable: true}},
		[]PriceSample{{Time: t0, Price: 1}, {Time: t0.Add(time.Hour), Price: 1.1}})
	if !res.Insufficient {
		t.Error("one snapshot should be insufficient")
	}
	if res.Sellable != nil || res.NetReturn != nil {
		t.Error("insufficient windows must not carry verdicts")
	}
}

// A pump whose liquidity thins out mid-window: the raw peak is untouchable
// because only the first snapshot supports a real exit, and a window that
// was only partly exitable never counts as fully sellable.
func TestEvaluateWindowExitFeasiblePeak(t *testing.T) {
	snapshots := []RiskSnapshot{
		{Time: t0, Sellable: true, MaxSizeUsd: 4000, Slippage1k: 0.005},
		{Time: t0.Add(60 * time.Minute), Sellable: true, MaxSizeUsd: 500, Slippage1k: 0.04},
	}
	prices := []PriceSample{
		{Time: t0.Add(30 * time.Minute), Price: 1.05},
		{Time: t0.Add(90 * time.Minute), Price: 1.60},
		{Time: t0.Add(120 * time.Minute), Price: 1.80},
		{Time: t0.Add(300 * time.Minute), Price: 1.20},
	}

	res := EvaluateWindow(t0, 6*time.Hour, 1.0, snapshots, prices)
	if res.Insufficient {
		t.Fatal("window unexpectedly insufficient")
	}
	if res.Sellable == nil || *res.Sellable {
		t.Error("a window with a shallow snapshot counted as fully sellable")
	}
	if res.Trap == nil || *res.Trap {
		t.Error("thinning liquidity alone is not a trap")
	}
	if math.Abs(*res.TradeablePeak-0.80) > 1e-9 {
		t.Errorf("raw peak = %v, want 0.80", *res.TradeablePeak)
	}
	if res.ExitFeasiblePeak == nil || math.Abs(*res.ExitFeasiblePeak-0.05) > 1e-9 {
		t.Errorf("exit feasible peak = %v, want 0.05", res.ExitFeasiblePeak)
	}
	if res.ExitFeasibleTime == nil || !res.ExitFeasibleTime.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("exit feasible time = %v", res.ExitFeasibleTime)
	}
	// Not fully sellable, so the raw-peak net is capped.
	if math.Abs(*res.NetReturn-trapNetCap) > 1e-9 {
		t.Errorf("net return = %v, want %v", *res.NetReturn, trapNetCap)
	}
}

// A window that stays deep and sellable nets out from the raw peak.
func TestEvaluateWindowFullySellableNetFromRawPeak(t *testing.T) {
	snapshots := []RiskSnapshot{
		{Time: t0, Sellable: true, MaxSizeUsd: 4000, Slippage1k: 0.005},
		{Time: t0.Add(60 * time.Minute), Sellable: true, MaxSizeUsd: 2000, Slippage1k: 0.01},
	}
	prices := []PriceSample{
		{Time: t0.Add(30 * time.Minute), Price: 1.05},
		{Time: t0.Add(90 * time.Minute), Price: 1.60},
	}

	res := EvaluateWindow(t0, 6*time.Hour, 1.0, snapshots, prices)
	if res.Sellable == nil || !*res.Sellable {
		t.Fatal("deep sellable window not marked fully sellable")
	}
	// net = 0.60 - 0.006 fees - 0.01 worst exit slippage.
	if math.Abs(*res.NetReturn-0.584) > 1e-9 {
		t.Errorf("net return = %v, want 0.584", *res.NetReturn)
	}
	if math.Abs(*res.ExitFeasiblePeak-0.60) > 1e-9 {
		t.Errorf("exit feasible peak = %v, want 0.60", *res.ExitFeasiblePeak)
	}
}

func TestEvaluateWindowHoneypotIsTrap(t *testing.T) {
	snapshots := []RiskSnapshot{
		{Time: t0, Sellable: true, MaxSizeUsd: 5000},
		{Time: t0.Add(time.Hour), Sellable: false, MaxSizeUsd: 5000, Flags: []string{"honeypot"}},
	}
	prices := []PriceSample{
		{Time: t0.Add(10 * time.Minute), Price: 1.5},
		{Time: t0.Add(2 * time.Hour), Price: 3.0},
	}

	res := EvaluateWindow(t0, 6*time.Hour, 1.0, snapshots, prices)
	if res.Trap == nil || !*res.Trap {
		t.Fatal("honeypot flag must mark a trap")
	}
	if *res.Sellable {
		t.Error("traps are never sellable")
	}
	if *res.NetReturn > trapNetCap {
		t.Errorf("trap net return = %v, must be capped at %v", *res.NetReturn, trapNetCap)
	}
}

func TestEvaluateWindowLiquidityPull(t *testing.T) {
	snapshots := []RiskSnapshot{
		{Time: t0, Sellable: true, MaxSizeUsd: 50_000},
		{Time: t0.Add(time.Hour), Sellable: false, MaxSizeUsd: 200, Flags: []string{"liquidity_pull"}},
	}
	prices := []PriceSample{
		{Time: t0.Add(10 * time.Minute), Price: 1.1},
		{Time: t0.Add(2 * time.Hour), Price: 0.1},
	}

	res := EvaluateWindow(t0, 6*time.Hour, 1.0, snapshots, prices)
	if res.Trap == nil || !*res.Trap {
		t.Error("a flagged pull is a trap")
	}
}

func TestEvaluateWindowNoFeasibleExit(t *testing.T) {
	snapshots := []RiskSnapshot{
		{Time: t0, Sellable: true, MaxSizeUsd: 100},
		{Time: t0.Add(time.Hour), Sellable: true, MaxSizeUsd: 100},
	}
	prices := []PriceSample{
		{Time: t0.Add(10 * time.Minute), Price: 1.2},
		{Time: t0.Add(2 * time.Hour), Price: 0.8},
	}

	res := EvaluateWindow(t0, 6*time.Hour, 1.0, snapshots, prices)
	if res.ExitFeasiblePeak != nil {
		t.Error("no snapshot supports a $1k exit")
	}
	if *res.Sellable {
		t.Error("a window with no feasible exit is not sellable")
	}
	// Without a single exitable sample the peak and net stay unknown.
	if res.TradeablePeak != nil {
		t.Errorf("raw peak = %v, want nil", *res.TradeablePeak)
	}
	if res.NetReturn != nil {
		t.Errorf("net return = %v, want nil", *res.NetReturn)
	}
	if res.Drawdown == nil || math.Abs(*res.Drawdown-(-0.2)) > 1e-9 {
		t.Errorf("drawdown = %v, want -0.2", res.Drawdown)
	}
}

func TestEvaluateWindowEntryFromFirstSample(t *testing.T) {
	snapshots := []RiskSnapshot{
		{Time: t0, Sellable: true, MaxSizeUsd: 5000},
		{Time: t0.Add(time.Hour), Sellable: true, MaxSizeUsd: 5000},
	}
	prices := []PriceSample{
		{Time: t0.Add(10 * time.Minute), Price: 2.0},
		{Time: t0.Add(time.Hour), Price: 3.0},
	}

	res := EvaluateWindow(t0, 6*time.Hour, 0, snapshots, prices)
	if math.Abs(*res.TradeablePeak-0.5) > 1e-9 {
		t.Errorf("peak from inferred entry = %v, want 0.5", *res.TradeablePeak)
	}
	if res.Sellable == nil || !*res.Sellable {
		t.Error("deep window with inferred entry should stay sellable")
	}
}
