package alerts

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/chain"
	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/market"
	"github.com/rawblock/titan-engine/pkg/models"
)

// Wrapped native tokens used for the USD conversion of gas costs.
var wrappedNative = map[string]string{
	"ethereum": "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", // WETH
	"bsc":      "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c", // WBNB
}

// GasEstimate carries the chosen gas cost and its provenance for the gate
// payload.
type GasEstimate struct {
	CostUsd           float64
	Source            string
	NativePriceUsd    *float64
	GasUsed           *int64
	EffectiveGasPrice *string
	AvgGasUsd1h       *float64
	P95GasUsd1h       *float64
}

// GasModel resolves trade gas costs: receipt first, rolling p95 second,
// chain default last. Receipt hits feed the rolling estimate.
type GasModel struct {
	cfg         *config.Config
	store       *db.PostgresStore
	rpc         map[string]*chain.RPCClient
	dexscreener *market.DexScreenerClient
	log         zerolog.Logger
}

// NewGasModel wires the estimator.
func NewGasModel(cfg *config.Config, store *db.PostgresStore, rpc map[string]*chain.RPCClient, ds *market.DexScreenerClient, logger zerolog.Logger) *GasModel {
	return &GasModel{cfg: cfg, store: store, rpc: rpc, dexscreener: ds, log: logger}
}

// EstimateTradeGasCost resolves the gas cost for one trade.
func (g *GasModel) EstimateTradeGasCost(ctx context.Context, t *models.Trade) GasEstimate {
	if est, ok := g.fromReceipt(ctx, t); ok {
		return est
	}
	if est, ok := g.fromRollingEstimate(ctx, t.Chain); ok {
		return est
	}
	return GasEstimate{
		CostUsd: g.cfg.Params(t.Chain).DefaultGasCostUsd,
		Source:  GasSourceChainDefault,
	}
}

func (g *GasModel) fromReceipt(ctx context.Context, t *models.Trade) (GasEstimate, bool) {
	rpc, ok := g.rpc[t.Chain]
	if !ok {
		return GasEstimate{}, false
	}
	receipt, err := rpc.TransactionReceipt(ctx, t.TxHash)
	if err != nil || receipt == nil {
		if err != nil {
			g.log.Debug().Err(err).Str("tx", t.TxHash).Msg("receipt fetch failed")
		}
		return GasEstimate{}, false
	}
	costWei, err := receipt.GasCostWei()
	if err != nil {
		return GasEstimate{}, false
	}
	price, ok := g.nativePriceUsd(ctx, t.Chain)
	if !ok {
		return GasEstimate{}, false
	}

	costUsd := chain.WeiToNative(costWei) * price
	if err := g.store.RecordGasObservation(ctx, t.Chain, t.TxHash, models.DecimalFromFloat(costUsd)); err != nil {
		g.log.Warn().Err(err).Str("tx", t.TxHash).Msg("gas observation write failed")
	}

	est := GasEstimate{
		CostUsd:           costUsd,
		Source:            GasSourceReceipt,
		NativePriceUsd:    &price,
		EffectiveGasPrice: &receipt.EffectiveGasPrice,
	}
	if gasUsed, err := chain.ParseHexBig(receipt.GasUsed); err == nil {
		n := gasUsed.Int64()
		est.GasUsed = &n
	}
	if rolling, err := g.store.GetGasEstimate(ctx, t.Chain); err == nil && rolling != nil {
		est.AvgGasUsd1h = rolling.AvgGasUsd1h
		est.P95GasUsd1h = rolling.P95GasUsd1h
	}
	return est, true
}

func (g *GasModel) fromRollingEstimate(ctx context.Context, chainName string) (GasEstimate, bool) {
	rolling, err := g.store.GetGasEstimate(ctx, chainName)
	if err != nil || rolling == nil || rolling.P95GasUsd1h == nil {
		return GasEstimate{}, false
	}
	return GasEstimate{
		CostUsd:     *rolling.P95GasUsd1h,
		Source:      GasSourceRollingP95,
		AvgGasUsd1h: rolling.AvgGasUsd1h,
		P95GasUsd1h: rolling.P95GasUsd1h,
	}, true
}

// nativePriceUsd looks up the wrapped native token's USD price from its
// deepest DexScreener pair.
func (g *GasModel) nativePriceUsd(ctx context.Context, chainName string) (float64, bool) {
	native, ok := wrappedNative[chainName]
	if !ok {
		return 0, false
	}
	pairs, err := g.dexscreener.TokenPairs(ctx, chainName, native)
	if err != nil || len(pairs) == 0 {
		return 0, false
	}
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.Liquidity.Usd > best.Liquidity.Usd {
			best = p
		}
	}
	price, err := strconv.ParseFloat(best.PriceUsd, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}
