// Package profiler folds the trade history into positions, wallet values
// and value tiers.
package profiler

import (
	"sort"
	"time"

	"github.com/rawblock/titan-engine/pkg/models"
)

// PositionKey identifies one holding.
type PositionKey struct {
	Chain  string
	Wallet string
	Token  string
}

// PositionState is the running weighted-average accumulator for a holding.
type PositionState struct {
	Quantity float64
	AvgPrice *float64
}

// WalletKey identifies one wallet across the fold output.
type WalletKey struct {
	Chain  string
	Wallet string
}

// Fold replays the trade history in (block_time, created_at, tx_hash,
// log_index) order. Buys move the weighted average; sells decrement
// quantity, clearing the average when the position closes. The fold is
// deterministic, so re-running it over the same trades is idempotent.
func Fold(trades []models.Trade) map[PositionKey]*PositionState {
	ordered := make([]models.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := &ordered[i], &ordered[j]
		at, bt := tradeTime(a), tradeTime(b)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		return a.LogIndex < b.LogIndex
	})

	positions := make(map[PositionKey]*PositionState)
	for i := range ordered {
		t := &ordered[i]
		if t.WalletAddress == nil || t.TokenAddress == nil || t.Side == nil || t.Amount == nil || *t.Amount <= 0 {
			continue
		}
		key := PositionKey{Chain: t.Chain, Wallet: *t.WalletAddress, Token: *t.TokenAddress}
		pos := positions[key]
		if pos == nil {
			pos = &PositionState{}
			positions[key] = pos
		}

		switch *t.Side {
		case models.SideBuy:
			price, ok := t.EffectivePrice()
			if !ok {
				// A buy without a price still moves quantity; the average
				// carries forward unchanged.
				pos.Quantity += *t.Amount
				continue
			}
			prevAvg := 0.0
			if pos.AvgPrice != nil {
				prevAvg = *pos.AvgPrice
			}
			newQty := pos.Quantity + *t.Amount
			avg := (prevAvg*pos.Quantity + *t.Amount*price) / newQty
			pos.Quantity = newQty
			pos.AvgPrice = &avg
		case models.SideSell:
			sold := *t.Amount
			if sold > pos.Quantity {
				sold = pos.Quantity
			}
			pos.Quantity -= sold
			if pos.Quantity == 0 {
				pos.AvgPrice = nil
			}
		}
	}
	return positions
}

func tradeTime(t *models.Trade) time.Time {
	if t.BlockTime != nil {
		return *t.BlockTime
	}
	return t.CreatedAt
}

// WalletTotals sums quantity * average price per wallet.
func WalletTotals(positions map[PositionKey]*PositionState) map[WalletKey]float64 {
	totals := make(map[WalletKey]float64)
	for key, pos := range positions {
		wk := WalletKey{Chain: key.Chain, Wallet: key.Wallet}
		if _, ok := totals[wk]; !ok {
			totals[wk] = 0
		}
		if pos.AvgPrice != nil {
			totals[wk] += pos.Quantity * *pos.AvgPrice
		}
	}
	return totals
}

// TierForValue maps a wallet's total value to its value tier.
func TierForValue(totalValue, oceanMin, shadowMin, titanMin float64) string {
	switch {
	case totalValue >= oceanMin:
		return models.TierOcean
	case totalValue >= shadowMin:
		return models.TierShadow
	case totalValue >= titanMin:
		return models.TierTitan
	default:
		return models.TierIgnore
	}
}
