package decoder

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/rawblock/titan-engine/internal/dex"
	"github.com/rawblock/titan-engine/pkg/models"
)

const (
	token0 = "0x1111111111111111111111111111111111111111"
	token1 = "0xdac17f958d2ee523a2206206994597c13d831ec7" // USDT (6 decimals)
	sender = "0x000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	recip  = "0x000000000000000000000000bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func word(v *big.Int) string {
	return fmt.Sprintf("%064x", v)
}

func v2Data(a0In, a1In, a0Out, a1Out *big.Int) string {
	return "0x" + word(a0In) + word(a1In) + word(a0Out) + word(a1Out)
}

func topics() []string {
	return []string{dex.TopicSwapV2, sender, recip}
}

func TestDecodeV2BuyFromAmount0Out(t *testing.T) {
	oneToken := new(big.Int)
	oneToken.SetString("1000000000000000000", 10) // 1e18
	data := v2Data(big.NewInt(0), big.NewInt(0), oneToken, big.NewInt(0))

	s, err := decodeV2("ethereum", topics(), data, token0, token1)
	if err != nil {
		t.Fatalf("decodeV2() error = %v", err)
	}
	if s.Side != models.SideBuy {
		t.Errorf("side = %q, want buy", s.Side)
	}
	if s.TokenAddress != token0 {
		t.Errorf("token = %q, want token0", s.TokenAddress)
	}
	if s.Amount != 1.0 {
		t.Errorf("amount = %v, want 1.0", s.Amount)
	}
	if s.WalletAddress != "0x"+strings.Repeat("a", 40) {
		t.Errorf("wallet = %q, want sender from topic1", s.WalletAddress)
	}
}

func TestDecodeV2SellWithStableCounterLeg(t *testing.T) {
	twoTokens := new(big.Int)
	twoTokens.SetString("2000000000000000000", 10) // 2e18
	usdtOut := big.NewInt(3_000_000)               // 3 USDT at 6 decimals
	data := v2Data(twoTokens, big.NewInt(0), big.NewInt(0), usdtOut)

	s, err := decodeV2("ethereum", topics(), data, token0, token1)
	if err != nil {
		t.Fatalf("decodeV2() error = %v", err)
	}
	if s.Side != models.SideSell {
		t.Errorf("side = %q, want sell", s.Side)
	}
	if s.UsdValue == nil || *s.UsdValue != 3.0 {
		t.Errorf("usdValue = %v, want 3.0", s.UsdValue)
	}
	if s.Price == nil || *s.Price != 1.5 {
		t.Errorf("price = %v, want 1.5", s.Price)
	}
}

func TestDecodeV2AllZeroAmounts(t *testing.T) {
	data := v2Data(big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0))
	if _, err := decodeV2("ethereum", topics(), data, token0, token1); err == nil {
		t.Fatal("expected error for all-zero amounts")
	}
}

func TestDecodeV3SignConvention(t *testing.T) {
	oneToken := new(big.Int)
	oneToken.SetString("1000000000000000000", 10)

	// amount0 = -1e18 (wallet received token0), amount1 = +4e6 into pool.
	neg := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), oneToken)
	data := "0x" + word(neg) + word(big.NewInt(4_000_000))

	s, err := decodeV3("ethereum", []string{dex.TopicSwapV3, sender, recip}, data, token0, token1)
	if err != nil {
		t.Fatalf("decodeV3() error = %v", err)
	}
	if s.Side != models.SideBuy {
		t.Errorf("side = %q, want buy for negative amount0", s.Side)
	}
	if s.Amount != 1.0 {
		t.Errorf("amount = %v, want 1.0", s.Amount)
	}
	if s.UsdValue == nil || *s.UsdValue != 4.0 {
		t.Errorf("usdValue = %v, want 4.0 from USDT leg", s.UsdValue)
	}

	// Positive amount0 flows into the pool: a sell.
	data = "0x" + word(oneToken) + word(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(4_000_000)))
	s, err = decodeV3("ethereum", []string{dex.TopicSwapV3, sender, recip}, data, token0, token1)
	if err != nil {
		t.Fatalf("decodeV3() error = %v", err)
	}
	if s.Side != models.SideSell {
		t.Errorf("side = %q, want sell for positive amount0", s.Side)
	}
}

func TestWalletFallbackToRecipient(t *testing.T) {
	oneToken := new(big.Int)
	oneToken.SetString("1000000000000000000", 10)
	data := v2Data(big.NewInt(0), big.NewInt(0), oneToken, big.NewInt(0))

	// topic1 malformed, topic2 usable.
	s, err := decodeV2("ethereum", []string{dex.TopicSwapV2, "0xnothex", recip}, data, token0, token1)
	if err != nil {
		t.Fatalf("decodeV2() error = %v", err)
	}
	if s.WalletAddress != "0x"+strings.Repeat("b", 40) {
		t.Errorf("wallet = %q, want recipient fallback", s.WalletAddress)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name      string
		resolved  int
		payloadOK bool
		want      float64
	}{
		{"registry only", 0, false, 0.5},
		{"one token", 1, false, 0.6},
		{"both tokens", 2, false, 0.7},
		{"payload only", 0, true, 0.7},
		{"full decode", 2, true, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.resolved, tt.payloadOK)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Confidence(%d, %v) = %v, want %v", tt.resolved, tt.payloadOK, got, tt.want)
			}
			if tt.name == "full decode" && got < RepublishThreshold {
				t.Error("full decode must clear the republish threshold")
			}
		})
	}
}
