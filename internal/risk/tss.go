// Package risk composites DexScreener and GoPlus signals into a per-token
// security score and maintains the snapshot history the outcome evaluator
// reads back.
package risk

import (
	"time"

	"github.com/rawblock/titan-engine/internal/market"
)

// Flag names, also the strings stored in token_risk.flags.
const (
	FlagHoneypot        = "honeypot"
	FlagBlacklisted     = "blacklisted"
	FlagProxy           = "proxy"
	FlagMintable        = "mintable"
	FlagLowLiquidity    = "low_liquidity"
	FlagDataUnavailable = "data_unavailable"
)

const (
	lowLiquidityFloorUsd = 10_000.0
	noPairsPenalty       = 30.0
	flagPenalty          = 15.0

	// Suggested position size is 2% of the deepest pair's liquidity.
	sizeFractionOfLiquidity = 0.02

	maxHistoryEntries = 48
)

// Evaluation is the computed risk composite for one token.
type Evaluation struct {
	TSS        float64
	Flags      []string
	Sellable   bool
	MaxSizeUsd float64
	Slippage1k float64
	Components map[string]any
}

// Evaluate computes TSS from the fetched signals. Either source may be nil
// when its fetch failed; a nil pairs slice means DexScreener reported no
// pairs.
func Evaluate(pairs []market.Pair, sec *market.TokenSecurity, now time.Time) *Evaluation {
	tss := 100.0
	flags := make([]string, 0, 4)

	maxLiquidity := 0.0
	for _, p := range pairs {
		if p.Liquidity.Usd > maxLiquidity {
			maxLiquidity = p.Liquidity.Usd
		}
	}

	if len(pairs) == 0 {
		tss -= noPairsPenalty
	}
	if sec != nil {
		if sec.Honeypot() {
			flags = append(flags, FlagHoneypot)
		}
		if sec.Blacklisted() {
			flags = append(flags, FlagBlacklisted)
		}
		if sec.Proxy() {
			flags = append(flags, FlagProxy)
		}
		if sec.Mintable() {
			flags = append(flags, FlagMintable)
		}
	}
	if len(pairs) > 0 && maxLiquidity < lowLiquidityFloorUsd {
		flags = append(flags, FlagLowLiquidity)
	}
	tss -= flagPenalty * float64(len(flags))
	if tss < 0 {
		tss = 0
	}

	maxSize := maxLiquidity * sizeFractionOfLiquidity
	sellable := maxSize > 0
	for _, f := range flags {
		if f == FlagHoneypot {
			sellable = false
		}
	}

	ev := &Evaluation{
		TSS:        tss,
		Flags:      flags,
		Sellable:   sellable,
		MaxSizeUsd: maxSize,
		Slippage1k: SlippageForSize(maxSize),
	}

	goplus := map[string]any{"available": sec != nil}
	if sec != nil {
		goplus["honeypot"] = sec.Honeypot()
		goplus["blacklisted"] = sec.Blacklisted()
		goplus["proxy"] = sec.Proxy()
		goplus["mintable"] = sec.Mintable()
	}
	ev.Components = map[string]any{
		"tss": map[string]any{
			"dexscreener": map[string]any{
				"pair_count":        len(pairs),
				"max_liquidity_usd": maxLiquidity,
			},
			"goplus": goplus,
		},
		"flags":                  flags,
		"sellable":               ev.Sellable,
		"max_suggested_size_usd": maxSize,
		"estimated_slippage":     ev.Slippage1k,
		"updated_at":             now.UTC().Format(time.RFC3339),
	}
	return ev
}

// SlippageForSize estimates the exit slippage of a $1k sale against a
// maximum suggested size, clamped to [0.25%, 40%].
func SlippageForSize(maxSizeUsd float64) float64 {
	if maxSizeUsd <= 0 {
		return 0.40
	}
	s := 0.02 * 1000 / maxSizeUsd
	if s < 0.0025 {
		return 0.0025
	}
	if s > 0.40 {
		return 0.40
	}
	return s
}

// Snapshot is one history entry inside token_risk.components.history.
type Snapshot struct {
	UpdatedAt  string         `json:"updated_at"`
	Sellable   bool           `json:"sellable"`
	MaxSizeUsd float64        `json:"max_suggested_size_usd"`
	Flags      []string       `json:"flags"`
	Slippage   map[string]any `json:"slippage"`
}

// AppendHistory folds a new snapshot onto an existing components.history
// list, keeping the most recent entries bounded.
func AppendHistory(prev []any, ev *Evaluation, now time.Time) []any {
	entry := map[string]any{
		"updated_at":             now.UTC().Format(time.RFC3339),
		"sellable":               ev.Sellable,
		"max_suggested_size_usd": ev.MaxSizeUsd,
		"flags":                  ev.Flags,
		"slippage":               map[string]any{"exit_slippage_1k": ev.Slippage1k},
	}
	history := append(prev, entry)
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	return history
}
