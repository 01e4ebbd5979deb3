package dex

import "testing"

// The hard-coded expectations pin the keccak-256 of the canonical event
// signatures; a drift here would silently stop all decoding.
func TestEventTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "v2 swap",
			got:  TopicSwapV2,
			want: "0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822",
		},
		{
			name: "v2 sync",
			got:  TopicSyncV2,
			want: "0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1",
		},
		{
			name: "v3 swap",
			got:  TopicSwapV3,
			want: "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Lookup("ethereum", "0xB4E16D0168E52D35CACD2C6185B44281EC28C9DC"); !ok {
		t.Error("builtin pool lookup should be case-insensitive")
	}
	if _, ok := r.Lookup("ethereum", "0xdeadbeef00000000000000000000000000000000"); ok {
		t.Error("unknown pool should not resolve")
	}

	r.Register("bsc", "0xABC0000000000000000000000000000000000abc", "pancakeswap_v2")
	v, ok := r.Lookup("bsc", "0xabc0000000000000000000000000000000000abc")
	if !ok || v.Strategy != StrategyV2 {
		t.Errorf("registered pool = %+v, ok=%v", v, ok)
	}

	// Unknown venue names are not registered.
	r.Register("bsc", "0x1", "mystery_dex")
	if _, ok := r.Lookup("bsc", "0x1"); ok {
		t.Error("unknown venue must not enter the registry")
	}
}

func TestStrategyForDex(t *testing.T) {
	tests := []struct {
		dex  string
		want string
	}{
		{"uniswap_v2", StrategyV2},
		{"uniswap_v3", StrategyV3},
		{"pancakeswap_v2", StrategyV2},
		{"pancakeswap_v3", StrategyV3},
		{"sushiswap", StrategyV2},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := StrategyForDex(tt.dex); got != tt.want {
			t.Errorf("StrategyForDex(%q) = %q, want %q", tt.dex, got, tt.want)
		}
	}
}
