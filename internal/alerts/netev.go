// Package alerts scans recent buys, applies the cost-aware NetEV gate and
// emits operator alerts.
package alerts

import (
	"math"

	"github.com/rawblock/titan-engine/internal/config"
)

// Gate failure reasons recorded in the debug payload.
const (
	FailMissingSize    = "missing_trade_size_usd"
	FailBelowThreshold = "netev_below_threshold"
)

// Gas cost provenance.
const (
	GasSourceReceipt      = "receipt"
	GasSourceRollingP95   = "p95_1h"
	GasSourceChainDefault = "chain_default"
)

const (
	expectedMoveClampMin = 0.0
	expectedMoveClampMax = 0.2
	defaultSlippage      = 0.02
)

// GateInput is everything the NetEV decision needs.
type GateInput struct {
	SizeUsd             float64
	ExpectedMove        float64
	DerivedFromOutcomes bool
	Slippage            float64
	GasCostUsd          float64
	GasCostSource       string
	MinUsdProfit        float64
	MinRoiAfterCosts    float64

	// Optional provenance carried into the payload.
	NativePriceUsd    *float64
	GasUsed           *int64
	EffectiveGasPrice *string
	AvgGasUsd1h       *float64
	P95GasUsd1h       *float64
}

// GateResult is the decision plus the structured payload stored in
// reasons.netev (or logged at debug on rejection).
type GateResult struct {
	Passed        bool
	FailureReason string
	NetevUsd      float64
	NetevRoi      float64
	Payload       map[string]any
}

// EvaluateGate computes net expected value after gas and slippage.
func EvaluateGate(in GateInput) GateResult {
	payload := map[string]any{
		"expected_move":         in.ExpectedMove,
		"derived_from_outcomes": in.DerivedFromOutcomes,
		"size_usd":              in.SizeUsd,
		"gas_cost_usd":          in.GasCostUsd,
		"gas_cost_source":       in.GasCostSource,
		"slippage":              in.Slippage,
		"min_usd_profit":        in.MinUsdProfit,
		"min_roi_after_costs":   in.MinRoiAfterCosts,
	}
	if in.NativePriceUsd != nil {
		payload["native_price_usd"] = *in.NativePriceUsd
	}
	if in.GasUsed != nil {
		payload["gas_used"] = *in.GasUsed
	}
	if in.EffectiveGasPrice != nil {
		payload["effective_gas_price_wei"] = *in.EffectiveGasPrice
	}
	if in.AvgGasUsd1h != nil {
		payload["avg_gas_usd_1h"] = *in.AvgGasUsd1h
	}
	if in.P95GasUsd1h != nil {
		payload["p95_gas_usd_1h"] = *in.P95GasUsd1h
	}

	if in.SizeUsd <= 0 {
		payload["passed"] = false
		payload["gate_failure_reason"] = FailMissingSize
		return GateResult{FailureReason: FailMissingSize, Payload: payload}
	}

	gross := in.SizeUsd * in.ExpectedMove
	slippageCost := in.SizeUsd * in.Slippage
	netev := gross - in.GasCostUsd - slippageCost
	roi := netev / in.SizeUsd

	payload["gross_profit_usd"] = gross
	payload["slippage_cost_usd"] = slippageCost
	payload["netev_usd"] = netev
	payload["netev_roi"] = roi

	res := GateResult{NetevUsd: netev, NetevRoi: roi, Payload: payload}
	if netev >= in.MinUsdProfit && roi >= in.MinRoiAfterCosts {
		res.Passed = true
		payload["passed"] = true
	} else {
		res.FailureReason = FailBelowThreshold
		payload["passed"] = false
		payload["gate_failure_reason"] = FailBelowThreshold
	}
	return res
}

// ApplyOverrides layers per-chain operator overrides from the settings
// store over the configured gate thresholds. The expected shape is
// {"ethereum": {"min_usd_profit": 15, "min_roi_after_costs": 0.04,
// "default_expected_move": 0.1}, "bsc": {...}}; unknown keys are ignored.
func ApplyOverrides(params config.ChainParams, overrides map[string]any, chain string) config.ChainParams {
	if overrides == nil {
		return params
	}
	chainOverrides, ok := overrides[chain].(map[string]any)
	if !ok {
		return params
	}
	if v, ok := chainOverrides["min_usd_profit"].(float64); ok && v > 0 {
		params.MinUsdProfit = v
	}
	if v, ok := chainOverrides["min_roi_after_costs"].(float64); ok && v > 0 {
		params.MinRoiAfterCosts = v
	}
	if v, ok := chainOverrides["default_expected_move"].(float64); ok && v > 0 {
		params.DefaultExpectedMove = v
	}
	if v, ok := chainOverrides["default_gas_cost_usd"].(float64); ok && v > 0 {
		params.DefaultGasCostUsd = v
	}
	return params
}

// ExpectedMove averages the valid outcome net returns for the token,
// clamped to [0, 0.2], falling back to the chain default. The second return
// reports whether outcomes drove the number.
func ExpectedMove(nets []float64, chainDefault float64) (float64, bool) {
	if len(nets) == 0 {
		return chainDefault, false
	}
	sum := 0.0
	for _, n := range nets {
		sum += n
	}
	avg := sum / float64(len(nets))
	return math.Min(math.Max(avg, expectedMoveClampMin), expectedMoveClampMax), true
}

// WalletConviction scores a trade_conviction alert from token safety and
// wallet capital.
func WalletConviction(tss, totalValue, titanThreshold float64) float64 {
	capital := totalValue / titanThreshold
	if capital > 1 {
		capital = 1
	}
	return round2(tss/100*60 + capital*40)
}

// PoolConviction scores a pool_activity alert from token safety and trade
// size.
func PoolConviction(tss, sizeUsd float64) float64 {
	size := sizeUsd / 100_000
	if size > 1 {
		size = 1
	}
	if size < 0 {
		size = 0
	}
	return round2(tss/100*50 + size*50)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
