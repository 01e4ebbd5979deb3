package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/rawblock/titan-engine/internal/chain"
	"github.com/rawblock/titan-engine/internal/dex"
	"github.com/rawblock/titan-engine/pkg/models"
)

// Confidence contributions. A trade is only republished downstream at 0.6
// or better, which requires at least one resolved token on top of the
// registry match plus a clean payload decode.
const (
	confidenceBase      = 0.5
	confidenceBothToken = 0.2
	confidenceOneToken  = 0.1
	confidencePayload   = 0.2
)

// RepublishThreshold gates publication to decoded_trades.
const RepublishThreshold = 0.6

// Known stablecoins per chain with their on-chain decimals, used to value
// the counter leg of a swap in USD.
var stablecoins = map[string]map[string]int{
	"ethereum": {
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": 6,  // USDC
		"0xdac17f958d2ee523a2206206994597c13d831ec7": 6,  // USDT
		"0x6b175474e89094c44da98b954eedeac495271d0f": 18, // DAI
	},
	"bsc": {
		"0xe9e7cea3dedca5984780bafc599bd69add087d56": 18, // BUSD
		"0x55d398326f99059ff775485246999027b3197955": 18, // USDT
		"0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d": 18, // USDC
	},
}

// Swap is the protocol-independent result of decoding one swap log.
type Swap struct {
	TokenAddress  string
	Side          string
	Amount        float64
	Price         *float64
	UsdValue      *float64
	WalletAddress string
}

// decodeWords splits ABI-encoded data into 32-byte words.
func decodeWords(data string, want int) ([]*big.Int, error) {
	h := strings.TrimPrefix(strings.ToLower(data), "0x")
	if len(h) < want*64 {
		return nil, fmt.Errorf("payload has %d hex chars, want at least %d", len(h), want*64)
	}
	words := make([]*big.Int, want)
	for i := 0; i < want; i++ {
		w, ok := new(big.Int).SetString(h[i*64:(i+1)*64], 16)
		if !ok {
			return nil, fmt.Errorf("word %d is not hex", i)
		}
		words[i] = w
	}
	return words, nil
}

// toSigned reinterprets a 256-bit word as a two's-complement int256.
func toSigned(w *big.Int) *big.Int {
	if w.Bit(255) == 0 {
		return w
	}
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Sub(w, max)
}

// tokenUnits converts a raw amount using 18 decimals, the overwhelmingly
// common ERC-20 default. Exact decimals are refined later by the token
// metadata cache.
func tokenUnits(raw *big.Int) float64 {
	f := new(big.Float).SetInt(raw)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}

func unitsWithDecimals(raw *big.Int, decimals int) float64 {
	f := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetFloat64(1)
	ten := big.NewFloat(10)
	for i := 0; i < decimals; i++ {
		scale.Mul(scale, ten)
	}
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

// walletFromTopics picks the initiating wallet: sender (topic1) with the
// recipient (topic2) as a fallback.
func walletFromTopics(topics []string) string {
	for _, i := range []int{1, 2} {
		if len(topics) > i {
			if addr, err := chain.AddressFromWord(topics[i]); err == nil {
				return addr
			}
		}
	}
	return ""
}

// decodeV2 interprets a v2 Swap payload
// (amount0In, amount1In, amount0Out, amount1Out). The side is taken from
// the non-zero quadrant relative to token0: receiving token0 is a buy,
// paying token0 in is a sell.
func decodeV2(chainName string, topics []string, data, token0, token1 string) (*Swap, error) {
	words, err := decodeWords(data, 4)
	if err != nil {
		return nil, err
	}
	amount0In, amount1In, amount0Out, amount1Out := words[0], words[1], words[2], words[3]
	zero := new(big.Int)

	s := &Swap{WalletAddress: walletFromTopics(topics)}

	switch {
	case amount0Out.Cmp(zero) > 0:
		s.TokenAddress = token0
		s.Side = models.SideBuy
		s.Amount = tokenUnits(amount0Out)
		s.fillCounter(chainName, token1, amount1In)
	case amount1Out.Cmp(zero) > 0:
		s.TokenAddress = token1
		s.Side = models.SideBuy
		s.Amount = tokenUnits(amount1Out)
		s.fillCounter(chainName, token0, amount0In)
	case amount0In.Cmp(zero) > 0:
		s.TokenAddress = token0
		s.Side = models.SideSell
		s.Amount = tokenUnits(amount0In)
		s.fillCounter(chainName, token1, amount1Out)
	case amount1In.Cmp(zero) > 0:
		s.TokenAddress = token1
		s.Side = models.SideSell
		s.Amount = tokenUnits(amount1In)
		s.fillCounter(chainName, token0, amount0Out)
	default:
		return nil, fmt.Errorf("all swap amounts are zero")
	}
	return s, nil
}

// decodeV3 interprets a v3 Swap payload (amount0, amount1, ...) where
// positive amounts flow into the pool. A negative amount0 means the wallet
// received token0.
func decodeV3(chainName string, topics []string, data, token0, token1 string) (*Swap, error) {
	words, err := decodeWords(data, 2)
	if err != nil {
		return nil, err
	}
	amount0 := toSigned(words[0])
	amount1 := toSigned(words[1])
	zero := new(big.Int)
	if amount0.Cmp(zero) == 0 && amount1.Cmp(zero) == 0 {
		return nil, fmt.Errorf("all swap amounts are zero")
	}

	s := &Swap{WalletAddress: walletFromTopics(topics)}
	if amount0.Sign() < 0 {
		s.TokenAddress = token0
		s.Side = models.SideBuy
		s.Amount = tokenUnits(new(big.Int).Neg(amount0))
		s.fillCounter(chainName, token1, amount1)
	} else {
		s.TokenAddress = token0
		s.Side = models.SideSell
		s.Amount = tokenUnits(amount0)
		s.fillCounter(chainName, token1, new(big.Int).Neg(amount1))
	}
	return s, nil
}

// fillCounter derives price and, when the counter leg is a stablecoin, the
// USD value of the trade.
func (s *Swap) fillCounter(chainName, counterToken string, counterRaw *big.Int) {
	if counterRaw == nil || counterRaw.Sign() <= 0 || s.Amount <= 0 {
		return
	}
	if decimals, ok := stablecoins[chainName][strings.ToLower(counterToken)]; ok {
		usd := unitsWithDecimals(counterRaw, decimals)
		if usd > 0 {
			price := usd / s.Amount
			s.UsdValue = &usd
			s.Price = &price
		}
		return
	}
	counter := tokenUnits(counterRaw)
	if counter > 0 {
		price := counter / s.Amount
		s.Price = &price
	}
}

// DecodeSwap dispatches on the venue strategy.
func DecodeSwap(venue dex.Venue, chainName string, topics []string, data, token0, token1 string) (*Swap, error) {
	switch venue.Strategy {
	case dex.StrategyV2:
		return decodeV2(chainName, topics, data, token0, token1)
	case dex.StrategyV3:
		return decodeV3(chainName, topics, data, token0, token1)
	default:
		return nil, fmt.Errorf("unknown strategy %q", venue.Strategy)
	}
}

// Confidence composes the decode confidence from its three contributions.
func Confidence(tokensResolved int, payloadOK bool) float64 {
	c := confidenceBase
	switch tokensResolved {
	case 2:
		c += confidenceBothToken
	case 1:
		c += confidenceOneToken
	}
	if payloadOK {
		c += confidencePayload
	}
	return c
}
