package profiler

import (
	"testing"
	"time"

	"github.com/rawblock/titan-engine/pkg/models"
)

func trade(wallet, token, side string, amount, price float64, at time.Time) models.Trade {
	t := models.Trade{
		Chain:     "ethereum",
		TxHash:    "0x" + wallet + token + side,
		CreatedAt: at,
		BlockTime: &at,
	}
	t.WalletAddress = &wallet
	t.TokenAddress = &token
	t.Side = &side
	t.Amount = &amount
	if price > 0 {
		t.Price = &price
	}
	return t
}

func TestFoldWeightedAverageBuy(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		trade("0xa", "0xt", "buy", 10, 1.0, t0),
		trade("0xa", "0xt", "buy", 10, 3.0, t0.Add(time.Minute)),
	}
	positions := Fold(trades)

	pos := positions[PositionKey{Chain: "ethereum", Wallet: "0xa", Token: "0xt"}]
	if pos == nil {
		t.Fatal("position missing")
	}
	if pos.Quantity != 20 {
		t.Errorf("quantity = %v, want 20", pos.Quantity)
	}
	if pos.AvgPrice == nil || *pos.AvgPrice != 2.0 {
		t.Errorf("avgPrice = %v, want 2.0", pos.AvgPrice)
	}
}

func TestFoldSellClampsAndClearsAverage(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		trade("0xa", "0xt", "buy", 5, 2.0, t0),
		trade("0xa", "0xt", "sell", 8, 2.5, t0.Add(time.Minute)),
	}
	positions := Fold(trades)

	pos := positions[PositionKey{Chain: "ethereum", Wallet: "0xa", Token: "0xt"}]
	if pos.Quantity != 0 {
		t.Errorf("quantity = %v, want 0 (oversell clamps)", pos.Quantity)
	}
	if pos.AvgPrice != nil {
		t.Errorf("avgPrice = %v, want nil on closed position", *pos.AvgPrice)
	}
}

func TestFoldOrderIndependentInput(t *testing.T) {
	// The fold sorts internally, so input order must not matter.
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := trade("0xa", "0xt", "buy", 10, 1.0, t0)
	b := trade("0xa", "0xt", "sell", 4, 1.5, t0.Add(time.Hour))

	p1 := Fold([]models.Trade{a, b})
	p2 := Fold([]models.Trade{b, a})

	key := PositionKey{Chain: "ethereum", Wallet: "0xa", Token: "0xt"}
	if p1[key].Quantity != p2[key].Quantity || p1[key].Quantity != 6 {
		t.Errorf("quantities differ: %v vs %v", p1[key].Quantity, p2[key].Quantity)
	}
}

func TestFoldIdempotent(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		trade("0xa", "0xt", "buy", 10, 1.0, t0),
		trade("0xa", "0xt", "buy", 5, 4.0, t0.Add(time.Minute)),
		trade("0xa", "0xt", "sell", 3, 5.0, t0.Add(2*time.Minute)),
	}

	first := Fold(trades)
	second := Fold(trades)

	key := PositionKey{Chain: "ethereum", Wallet: "0xa", Token: "0xt"}
	if first[key].Quantity != second[key].Quantity {
		t.Error("re-running the fold changed quantity")
	}
	if *first[key].AvgPrice != *second[key].AvgPrice {
		t.Error("re-running the fold changed average price")
	}
}

func TestWalletTotals(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		trade("0xa", "0xt1", "buy", 10, 2.0, t0),
		trade("0xa", "0xt2", "buy", 5, 10.0, t0),
		trade("0xb", "0xt1", "buy", 1, 100.0, t0),
	}
	totals := WalletTotals(Fold(trades))

	if got := totals[WalletKey{Chain: "ethereum", Wallet: "0xa"}]; got != 70 {
		t.Errorf("wallet a total = %v, want 70", got)
	}
	if got := totals[WalletKey{Chain: "ethereum", Wallet: "0xb"}]; got != 100 {
		t.Errorf("wallet b total = %v, want 100", got)
	}
}

func TestTierForValue(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{2_000_000, models.TierOcean},
		{1_000_000, models.TierOcean},
		{500_000, models.TierShadow},
		{50_000, models.TierTitan},
		{500, models.TierIgnore},
	}
	for _, tt := range tests {
		if got := TierForValue(tt.value, 1e6, 1e5, 1e4); got != tt.want {
			t.Errorf("TierForValue(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}
