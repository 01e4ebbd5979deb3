package dex

import (
	"strings"
	"sync"
)

// Decode strategies.
const (
	StrategyV2 = "v2"
	StrategyV3 = "v3"
)

// Venue names the DEX a pool belongs to and the payload layout to decode
// with.
type Venue struct {
	Dex      string
	Strategy string
}

// Registry maps (chain, pool_address) to its venue. It starts from a
// built-in table of known pools and grows as the autopilot discovers pairs.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]Venue
}

func key(chain, pool string) string {
	return strings.ToLower(chain) + "|" + strings.ToLower(pool)
}

// NewRegistry builds a registry seeded with the built-in venues.
func NewRegistry() *Registry {
	r := &Registry{pools: make(map[string]Venue, len(builtinPools))}
	for k, v := range builtinPools {
		r.pools[k] = v
	}
	return r
}

// Lookup resolves a pool, reporting whether it is known.
func (r *Registry) Lookup(chain, pool string) (Venue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.pools[key(chain, pool)]
	return v, ok
}

// Register adds or refreshes a pool entry.
func (r *Registry) Register(chain, pool, dexName string) {
	strategy := StrategyForDex(dexName)
	if strategy == "" {
		return
	}
	r.mu.Lock()
	r.pools[key(chain, pool)] = Venue{Dex: dexName, Strategy: strategy}
	r.mu.Unlock()
}

// StrategyForDex infers the payload layout from a dex identifier, "" when
// the venue is unknown.
func StrategyForDex(dexName string) string {
	d := strings.ToLower(dexName)
	switch {
	case strings.Contains(d, "v3"):
		return StrategyV3
	case strings.Contains(d, "v2") || strings.Contains(d, "sushiswap") || strings.Contains(d, "pancakeswap"):
		return StrategyV2
	default:
		return ""
	}
}

// builtinPools are the liquid pools the engine understands before the
// autopilot has populated anything.
var builtinPools = map[string]Venue{
	// Ethereum, Uniswap v2.
	key("ethereum", "0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc"): {Dex: "uniswap_v2", Strategy: StrategyV2}, // USDC/WETH
	key("ethereum", "0x0d4a11d5eeaac28ec3f61d100daf4d40471f1852"): {Dex: "uniswap_v2", Strategy: StrategyV2}, // WETH/USDT
	key("ethereum", "0xa478c2975ab1ea89e8196811f51a7b7ade33eb11"): {Dex: "uniswap_v2", Strategy: StrategyV2}, // DAI/WETH
	key("ethereum", "0xbb2b8038a1640196fbe3e38816f3e67cba72d940"): {Dex: "uniswap_v2", Strategy: StrategyV2}, // WBTC/WETH
	// Ethereum, Uniswap v3.
	key("ethereum", "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"): {Dex: "uniswap_v3", Strategy: StrategyV3}, // USDC/WETH 0.05%
	key("ethereum", "0x8ad599c3a0ff1de082011efddc58f1908eb6e6d8"): {Dex: "uniswap_v3", Strategy: StrategyV3}, // USDC/WETH 0.3%
	key("ethereum", "0x4e68ccd3e89f51c3074ca5072bbac773960dfa36"): {Dex: "uniswap_v3", Strategy: StrategyV3}, // WETH/USDT 0.3%
	// Ethereum, SushiSwap (v2 layout).
	key("ethereum", "0x397ff1542f962076d0bfe58ea045ffa2d347aca0"): {Dex: "sushiswap", Strategy: StrategyV2}, // USDC/WETH
	// BSC, PancakeSwap v2.
	key("bsc", "0x0ed7e52944161450477ee417de9cd3a859b14fd0"): {Dex: "pancakeswap_v2", Strategy: StrategyV2}, // CAKE/WBNB
	key("bsc", "0x58f876857a02d6762e0101bb5c46a8c1ed44dc16"): {Dex: "pancakeswap_v2", Strategy: StrategyV2}, // WBNB/BUSD
	key("bsc", "0x16b9a82891338f9ba80e2d6970fdda79d1eb0dae"): {Dex: "pancakeswap_v2", Strategy: StrategyV2}, // WBNB/USDT
	// BSC, PancakeSwap v3.
	key("bsc", "0x36696169c63e42cd08ce11f5deebbcebae652050"): {Dex: "pancakeswap_v3", Strategy: StrategyV3}, // WBNB/USDT
}
