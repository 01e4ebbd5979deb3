package narrator

import (
	"strings"
	"testing"
)

func TestAcceptable(t *testing.T) {
	source := `{"trade_usd":500,"tss":85,"netev":{"netev_usd":25}}`

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"one sentence", "A shadow wallet bought for $500.", false},
		{"clean two sentences", "A shadow wallet bought for $500. Safety is 85.", true},
		{"hallucinated number", "A wallet bought for $500. Expected profit is $9000.", false},
		{"no numbers at all", "A wallet bought a token. The safety looks fine.", true},
		{"decimal present in source", "Netev is 25. Size is 500.", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Acceptable(tt.text, source); got != tt.want {
				t.Errorf("Acceptable(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTemplateWalletAlert(t *testing.T) {
	got := Template(map[string]any{
		"wallet_tier": "shadow",
		"trade_usd":   500.0,
		"tss":         85.0,
		"netev":       map[string]any{"netev_usd": 25.0},
	})

	for _, want := range []string{"shadow wallet", "$500", "85/100", "$25"} {
		if !strings.Contains(got, want) {
			t.Errorf("template %q missing %q", got, want)
		}
	}
}

func TestTemplatePoolAlert(t *testing.T) {
	got := Template(map[string]any{
		"pair_address": "0xabc",
		"tss":          70.0,
	})
	if !strings.Contains(got, "watched pool") {
		t.Errorf("template %q should mention the watched pool", got)
	}
}
