// Package outcomes replays risk snapshots and price history over an alert
// window to decide whether the signal was actually tradeable.
package outcomes

import (
	"sort"
	"time"
)

// Critical flags: any appearance inside the window marks the signal a trap.
var criticalFlags = map[string]bool{
	"honeypot":               true,
	"cannot_sell":            true,
	"liquidity_floor_breach": true,
	"liquidity_pull":         true,
}

const (
	// Fixed round-trip fee assumption (DEX fee both legs).
	roundTripFee = 0.006

	// A snapshot must support at least this much size for a price sample
	// to count as exit feasible.
	feasibleSizeFloorUsd = 1000.0

	// Net return cap applied to traps and windows that lost sellability.
	trapNetCap = -0.15

	minSnapshots = 2
	minPrices    = 2
)

// RiskSnapshot is one parsed token_risk history entry.
type RiskSnapshot struct {
	Time       time.Time
	Sellable   bool
	MaxSizeUsd float64
	Flags      []string
	Slippage1k float64
}

// PriceSample is one observed token price inside the window.
type PriceSample struct {
	Time  time.Time
	Price float64
}

// WindowResult mirrors the signal_outcomes row for one horizon. Nil fields
// mean the data was insufficient to judge.
type WindowResult struct {
	Sellable          *bool
	Trap              *bool
	MinExitSlippage1k *float64
	MaxExitSlippage1k *float64
	TradeablePeak     *float64
	ExitFeasiblePeak  *float64
	ExitFeasibleTime  *time.Time
	Drawdown          *float64
	NetReturn         *float64
	Insufficient      bool
}

// EvaluateWindow judges one alert over [alertTime, alertTime+horizon].
// entryPrice 0 means use the first price sample.
func EvaluateWindow(alertTime time.Time, horizon time.Duration, entryPrice float64, snapshots []RiskSnapshot, prices []PriceSample) WindowResult {
	end := alertTime.Add(horizon)
	snaps := filterSnapshots(snapshots, alertTime, end)
	samples := filterPrices(prices, alertTime, end)

	if len(snaps) < minSnapshots || len(samples) < minPrices {
		return WindowResult{Insufficient: true}
	}

	// Full sellability requires every snapshot to both allow selling and
	// support a real-size exit.
	sellable := true
	trap := false
	minSlip, maxSlip := snaps[0].slippage(), snaps[0].slippage()

	for _, s := range snaps {
		if !s.Sellable || s.MaxSizeUsd < feasibleSizeFloorUsd {
			sellable = false
		}
		for _, f := range s.Flags {
			if criticalFlags[f] {
				trap = true
			}
		}
		if sl := s.slippage(); sl < minSlip {
			minSlip = sl
		} else if sl > maxSlip {
			maxSlip = sl
		}
	}
	if trap {
		sellable = false
	}

	entry := entryPrice
	if entry <= 0 {
		entry = samples[0].Price
	}
	if entry <= 0 {
		return WindowResult{Insufficient: true}
	}

	peak, drawdown := 0.0, 0.0
	var exitPeak *float64
	var exitTime *time.Time
	for _, p := range samples {
		ret := p.Price/entry - 1
		if ret > peak {
			peak = ret
		}
		if ret < drawdown {
			drawdown = ret
		}
		snap := nearestPriorSnapshot(snaps, p.Time)
		if snap != nil && snap.Sellable && snap.MaxSizeUsd >= feasibleSizeFloorUsd {
			if exitPeak == nil || ret > *exitPeak {
				r, tm := ret, p.Time
				exitPeak = &r
				exitTime = &tm
			}
		}
	}

	// No sample was exitable at size: the window never offered a real way
	// out, and both peaks and the net stay unknown.
	if exitPeak == nil {
		sellable = false
	}

	res := WindowResult{
		Sellable:          &sellable,
		Trap:              &trap,
		MinExitSlippage1k: &minSlip,
		MaxExitSlippage1k: &maxSlip,
		ExitFeasiblePeak:  exitPeak,
		ExitFeasibleTime:  exitTime,
		Drawdown:          &drawdown,
	}
	if exitPeak != nil {
		res.TradeablePeak = &peak
		net := peak - roundTripFee - maxSlip
		if (trap || !sellable) && net > trapNetCap {
			net = trapNetCap
		}
		res.NetReturn = &net
	}
	return res
}

func (s RiskSnapshot) slippage() float64 {
	if s.Slippage1k > 0 {
		return s.Slippage1k
	}
	if s.MaxSizeUsd > 0 {
		sl := 0.02 * 1000 / s.MaxSizeUsd
		if sl < 0.0025 {
			return 0.0025
		}
		if sl > 0.40 {
			return 0.40
		}
		return sl
	}
	return 0.40
}

func filterSnapshots(in []RiskSnapshot, from, to time.Time) []RiskSnapshot {
	out := make([]RiskSnapshot, 0, len(in))
	for _, s := range in {
		if !s.Time.Before(from) && !s.Time.After(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func filterPrices(in []PriceSample, from, to time.Time) []PriceSample {
	out := make([]PriceSample, 0, len(in))
	for _, p := range in {
		if p.Price > 0 && !p.Time.Before(from) && !p.Time.After(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// nearestPriorSnapshot returns the latest snapshot at or before t, falling
// back to the first one for samples preceding all snapshots.
func nearestPriorSnapshot(snaps []RiskSnapshot, t time.Time) *RiskSnapshot {
	var best *RiskSnapshot
	for i := range snaps {
		if snaps[i].Time.After(t) {
			break
		}
		best = &snaps[i]
	}
	if best == nil && len(snaps) > 0 {
		best = &snaps[0]
	}
	return best
}
