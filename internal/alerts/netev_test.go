package alerts

import (
	"math"
	"testing"

	"github.com/rawblock/titan-engine/internal/config"
)

func TestEvaluateGateRejectsExpensiveGas(t *testing.T) {
	// $500 buy, 8% expected move, 2% slippage, $80 gas:
	// netev = 40 - 80 - 10 = -50.
	res := EvaluateGate(GateInput{
		SizeUsd:          500,
		ExpectedMove:     0.08,
		Slippage:         0.02,
		GasCostUsd:       80,
		GasCostSource:    GasSourceReceipt,
		MinUsdProfit:     20,
		MinRoiAfterCosts: 0.05,
	})

	if res.Passed {
		t.Fatal("gate passed a negative netev trade")
	}
	if res.FailureReason != FailBelowThreshold {
		t.Errorf("failure reason = %q, want %q", res.FailureReason, FailBelowThreshold)
	}
	if math.Abs(res.NetevUsd-(-50)) > 1e-9 {
		t.Errorf("netev_usd = %v, want -50", res.NetevUsd)
	}
	if res.Payload["gate_failure_reason"] != FailBelowThreshold {
		t.Errorf("payload failure reason = %v", res.Payload["gate_failure_reason"])
	}
}

func TestEvaluateGatePassesCheapGas(t *testing.T) {
	// Same trade with $5 gas: netev = 40 - 5 - 10 = 25, roi = 0.05.
	res := EvaluateGate(GateInput{
		SizeUsd:          500,
		ExpectedMove:     0.08,
		Slippage:         0.02,
		GasCostUsd:       5,
		GasCostSource:    GasSourceRollingP95,
		MinUsdProfit:     20,
		MinRoiAfterCosts: 0.05,
	})

	if !res.Passed {
		t.Fatalf("gate rejected a profitable trade: %v", res.Payload)
	}
	if math.Abs(res.NetevUsd-25) > 1e-9 {
		t.Errorf("netev_usd = %v, want 25", res.NetevUsd)
	}
	if math.Abs(res.NetevRoi-0.05) > 1e-9 {
		t.Errorf("netev_roi = %v, want 0.05", res.NetevRoi)
	}
	if res.Payload["gas_cost_source"] != GasSourceRollingP95 {
		t.Errorf("gas_cost_source = %v, want %q", res.Payload["gas_cost_source"], GasSourceRollingP95)
	}
}

func TestEvaluateGateMissingSize(t *testing.T) {
	res := EvaluateGate(GateInput{ExpectedMove: 0.08, MinUsdProfit: 20})
	if res.Passed {
		t.Fatal("gate passed with no trade size")
	}
	if res.FailureReason != FailMissingSize {
		t.Errorf("failure reason = %q, want %q", res.FailureReason, FailMissingSize)
	}
}

func TestExpectedMove(t *testing.T) {
	tests := []struct {
		name        string
		nets        []float64
		chainDef    float64
		want        float64
		wantDerived bool
	}{
		{"no outcomes falls back", nil, 0.08, 0.08, false},
		{"average of outcomes", []float64{0.10, 0.02}, 0.08, 0.06, true},
		{"negative average clamps to zero", []float64{-0.2, -0.4}, 0.05, 0, true},
		{"large average clamps to 0.2", []float64{0.9, 0.7}, 0.05, 0.2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, derived := ExpectedMove(tt.nets, tt.chainDef)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ExpectedMove() = %v, want %v", got, tt.want)
			}
			if derived != tt.wantDerived {
				t.Errorf("derived = %v, want %v", derived, tt.wantDerived)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	base := config.ChainParams{MinUsdProfit: 20, MinRoiAfterCosts: 0.05, DefaultExpectedMove: 0.08}

	got := ApplyOverrides(base, map[string]any{
		"ethereum": map[string]any{"min_usd_profit": 15.0, "default_expected_move": 0.1},
	}, "ethereum")
	if got.MinUsdProfit != 15 || got.DefaultExpectedMove != 0.1 {
		t.Errorf("overrides not applied: %+v", got)
	}
	if got.MinRoiAfterCosts != 0.05 {
		t.Errorf("untouched field changed: %v", got.MinRoiAfterCosts)
	}

	// Other chains and nil overrides leave the config alone.
	if got := ApplyOverrides(base, map[string]any{"bsc": map[string]any{"min_usd_profit": 1.0}}, "ethereum"); got != base {
		t.Errorf("cross-chain override leaked: %+v", got)
	}
	if got := ApplyOverrides(base, nil, "ethereum"); got != base {
		t.Errorf("nil overrides changed params: %+v", got)
	}
}

func TestWalletConviction(t *testing.T) {
	// Clean token and capital at the titan threshold hits the maximum.
	if got := WalletConviction(100, 10_000, 10_000); got != 100 {
		t.Errorf("max conviction = %v, want 100", got)
	}
	// Capital past the threshold does not push above 100.
	if got := WalletConviction(100, 1_000_000, 10_000); got != 100 {
		t.Errorf("capped conviction = %v, want 100", got)
	}
	if got := WalletConviction(50, 5_000, 10_000); got != 50 {
		t.Errorf("mid conviction = %v, want 50", got)
	}
}

func TestPoolConviction(t *testing.T) {
	if got := PoolConviction(100, 100_000); got != 100 {
		t.Errorf("max pool conviction = %v, want 100", got)
	}
	if got := PoolConviction(80, 0); got != 40 {
		t.Errorf("sizeless pool conviction = %v, want 40", got)
	}
	if got := PoolConviction(60, 50_000); got != 55 {
		t.Errorf("pool conviction = %v, want 55", got)
	}
}
