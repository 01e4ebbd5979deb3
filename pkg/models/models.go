package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Chain identifiers. Only the two configured EVM networks are supported;
// everything else is rejected at config validation.
const (
	ChainEthereum = "ethereum"
	ChainBSC      = "bsc"
)

// Wallet tiers, ordered by demonstrated capital/skill.
const (
	TierOcean  = "ocean"
	TierShadow = "shadow"
	TierTitan  = "titan"
	TierIgnore = "ignore"
)

// Wallet provenance.
const (
	SourceAutopilot = "autopilot"
	SourceSeedPack  = "seed_pack"
	SourceManual    = "manual"
)

// Alert types.
const (
	AlertTradeConviction = "trade_conviction"
	AlertPoolActivity    = "pool_activity"
	AlertWalletTier      = "wallet_tier"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Wallet is an observed address on one chain. Wallets are never deleted;
// tier=ignore wallets are skipped by the decoder, profiler and alerts.
type Wallet struct {
	Chain        string          `json:"chain"`
	Address      string          `json:"address"`
	Source       string          `json:"source"`
	PriorWeight  decimal.Decimal `json:"priorWeight"`
	MeritScore   decimal.Decimal `json:"meritScore"`
	Tier         *string         `json:"tier"`
	TierReason   map[string]any  `json:"tierReason"`
	IgnoreReason *string         `json:"ignoreReason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// IsIgnored reports whether the wallet is on the ignore tier.
func (w *Wallet) IsIgnored() bool {
	return w != nil && w.Tier != nil && *w.Tier == TierIgnore
}

// TierOrEmpty returns the tier string, or "" when unset.
func (w *Wallet) TierOrEmpty() string {
	if w == nil || w.Tier == nil {
		return ""
	}
	return *w.Tier
}

// Token caches symbol/name/decimals for a token contract.
type Token struct {
	Chain     string    `json:"chain"`
	Address   string    `json:"address"`
	Symbol    *string   `json:"symbol"`
	Name      *string   `json:"name"`
	Decimals  *int      `json:"decimals"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WatchPair is a DEX pool under observation. A pair is active while
// expires_at is in the future; seed_pack pairs are never evicted by
// autopilot churn.
type WatchPair struct {
	Chain         string         `json:"chain"`
	PairAddress   string         `json:"pairAddress"`
	Dex           string         `json:"dex"`
	Token0Symbol  *string        `json:"token0Symbol"`
	Token0Address *string        `json:"token0Address"`
	Token1Symbol  *string        `json:"token1Symbol"`
	Token1Address *string        `json:"token1Address"`
	Source        string         `json:"source"`
	Priority      int            `json:"priority"`
	Score         float64        `json:"score"`
	Reason        map[string]any `json:"reason"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	LastSeen      *time.Time     `json:"lastSeen"`
}

// Active reports whether the pair should still be watched at the given time.
func (p *WatchPair) Active(now time.Time) bool {
	return p.ExpiresAt.After(now)
}

// Trade is one decoded swap log. Immutable once inserted; the natural key
// (chain, tx_hash, log_index) makes duplicate inserts no-ops.
type Trade struct {
	Chain            string     `json:"chain"`
	TxHash           string     `json:"txHash"`
	LogIndex         int        `json:"logIndex"`
	WalletAddress    *string    `json:"walletAddress"`
	TokenAddress     *string    `json:"tokenAddress"`
	Side             *string    `json:"side"`
	Amount           *float64   `json:"amount"`
	Price            *float64   `json:"price"`
	UsdValue         *float64   `json:"usdValue"`
	BlockNumber      *int64     `json:"blockNumber"`
	BlockTime        *time.Time `json:"blockTime"`
	Dex              *string    `json:"dex"`
	PairAddress      *string    `json:"pairAddress"`
	DecodeConfidence float64    `json:"decodeConfidence"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// EffectivePrice returns the trade price, falling back to usd_value/amount.
func (t *Trade) EffectivePrice() (float64, bool) {
	if t.Price != nil && *t.Price > 0 {
		return *t.Price, true
	}
	if t.Amount != nil && *t.Amount > 0 && t.UsdValue != nil && *t.UsdValue > 0 {
		return *t.UsdValue / *t.Amount, true
	}
	return 0, false
}

// Position is the profiler's folded holding for (chain, wallet, token).
// quantity==0 implies average_price==nil.
type Position struct {
	Chain         string    `json:"chain"`
	WalletAddress string    `json:"walletAddress"`
	TokenAddress  string    `json:"tokenAddress"`
	Quantity      float64   `json:"quantity"`
	AveragePrice  *float64  `json:"averagePrice"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// WalletMetric carries the profiler-derived wallet valuation.
type WalletMetric struct {
	Chain         string    `json:"chain"`
	WalletAddress string    `json:"walletAddress"`
	TotalValue    *float64  `json:"totalValue"`
	PnL           *float64  `json:"pnl"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TokenRisk is the risk worker's composite for one token. Components is a
// duck-typed JSONB payload carrying the TSS breakdown, a bounded history of
// risk snapshots, max_suggested_size_usd and sellability.
type TokenRisk struct {
	Chain      string         `json:"chain"`
	Address    string         `json:"address"`
	Score      *float64       `json:"score"`
	TSS        *float64       `json:"tss"`
	Flags      []string       `json:"flags"`
	Components map[string]any `json:"components"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Alert is append-only operator output.
type Alert struct {
	ID            uuid.UUID      `json:"id"`
	Chain         string         `json:"chain"`
	WalletAddress string         `json:"walletAddress"`
	TokenAddress  *string        `json:"tokenAddress"`
	AlertType     string         `json:"alertType"`
	TSS           *float64       `json:"tss"`
	Conviction    *float64       `json:"conviction"`
	Reasons       map[string]any `json:"reasons"`
	Narrative     *string        `json:"narrative"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// SignalOutcome is the exit-feasibility evaluation of one alert at one
// horizon. Unique per (alert_id, horizon_minutes); sole writer is the
// outcome evaluator. Peak gains are 1.0-based fractions (1.0 = 100%).
type SignalOutcome struct {
	ID                      int64            `json:"id"`
	AlertID                 uuid.UUID        `json:"alertId"`
	HorizonMinutes          int              `json:"horizonMinutes"`
	WasSellableEntireWindow *bool            `json:"wasSellableEntireWindow"`
	MinExitSlippage1k       *decimal.Decimal `json:"minExitSlippage1k"`
	MaxExitSlippage1k       *decimal.Decimal `json:"maxExitSlippage1k"`
	TradeablePeakGain       *decimal.Decimal `json:"tradeablePeakGain"`
	ExitFeasiblePeakGain    *decimal.Decimal `json:"exitFeasiblePeakGain"`
	ExitFeasiblePeakTime    *time.Time       `json:"exitFeasiblePeakTime"`
	TradeableDrawdown       *decimal.Decimal `json:"tradeableDrawdown"`
	NetTradeableReturnEst   *decimal.Decimal `json:"netTradeableReturnEst"`
	TrapFlag                *bool            `json:"trapFlag"`
	EvaluatedAt             time.Time        `json:"evaluatedAt"`
}

/// Valid reports whether the outcome counts for merit learning: sellable the
// whole window, not a trap, and with a net return estimate.
func (o *SignalOutcome) Valid() bool {
	if o == nil || o.NetTradeableReturnEst == nil {
		return false
	}
	if o.WasSellableEntireWindow == nil || !*o.WasSellableEntireWindow {
		return false
	}
	if o.TrapFlag != nil && *o.TrapFlag {
		return false
	}
	return true
}

// GasCostObservation records one realized swap gas cost in USD.
type GasCostObservation struct {
	Chain      string          `json:"chain"`
	TxHash     string          `json:"txHash"`
	GasCostUsd decimal.Decimal `json:"gasCostUsd"`
	ObservedAt time.Time       `json:"observedAt"`
}

// ChainGasEstimate is the rolling 1h gas cost summary per chain.
type ChainGasEstimate struct {
	Chain       string    `json:"chain"`
	AvgGasUsd1h *float64  `json:"avgGasUsd1h"`
	P95GasUsd1h *float64  `json:"p95GasUsd1h"`
	Samples1h   int       `json:"samples1h"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RawLogEvent is the listener's published record of one chain log.
type RawLogEvent struct {
	Chain       string   `json:"chain"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"txHash"`
	LogIndex    string   `json:"logIndex"`
}

// DecimalFromFloat rounds a float into the persisted NUMERIC shape
// (8 fractional digits).
func DecimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(8)
}

// DecimalPtr is DecimalFromFloat over an optional value.
func DecimalPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := DecimalFromFloat(*v)
	return &d
}

// Float64 unwraps an optional decimal to float64, defaulting to 0.
func Float64(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }
