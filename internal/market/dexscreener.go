// Package market wraps the external token data sources: DexScreener for
// pair liquidity/price and GoPlus for security flags. Both are cached
// in-process because the risk worker hits the same tokens in bursts.
package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rawblock/titan-engine/internal/httpx"
)

const (
	dexScreenerBase = "https://api.dexscreener.com"
	dexScreenerTTL  = 60 * time.Second
)

// DexScreener chain identifiers differ from ours only for bsc.
var dexScreenerChainIDs = map[string]string{
	"ethereum": "ethereum",
	"bsc":      "bsc",
}

// Pair is one DexScreener pair entry.
type Pair struct {
	ChainID       string  `json:"chainId"`
	PairAddress   string  `json:"pairAddress"`
	DexID         string  `json:"dexId"`
	PriceUsd      string  `json:"priceUsd"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
	BaseToken     TokenID `json:"baseToken"`
	QuoteToken    TokenID `json:"quoteToken"`
	Liquidity     struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
}

// TokenID identifies a token inside a pair payload.
type TokenID struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
}

// AgeHours returns the pair age, or -1 when creation time is unknown.
func (p *Pair) AgeHours(now time.Time) float64 {
	if p.PairCreatedAt <= 0 {
		return -1
	}
	created := time.UnixMilli(p.PairCreatedAt)
	return now.Sub(created).Hours()
}

type pairsResponse struct {
	Pairs []Pair `json:"pairs"`
}

type dsCacheEntry struct {
	pairs   []Pair
	fetched time.Time
}

// DexScreenerClient fetches and caches pair data.
type DexScreenerClient struct {
	http *httpx.Client
	base string

	mu    sync.Mutex
	cache map[string]dsCacheEntry
	now   func() time.Time
}

// NewDexScreener builds the client. baseURL overrides are for tests; pass
// "" for production.
func NewDexScreener(http *httpx.Client, baseURL string) *DexScreenerClient {
	if baseURL == "" {
		baseURL = dexScreenerBase
	}
	return &DexScreenerClient{
		http:  http,
		base:  baseURL,
		cache: make(map[string]dsCacheEntry),
		now:   time.Now,
	}
}

// TokenPairs returns every pair DexScreener knows for a token, filtered to
// the given chain.
func (c *DexScreenerClient) TokenPairs(ctx context.Context, chain, token string) ([]Pair, error) {
	cacheKey := "tokens|" + chain + "|" + strings.ToLower(token)
	if pairs, ok := c.cached(cacheKey); ok {
		return pairs, nil
	}

	var resp pairsResponse
	u := fmt.Sprintf("%s/latest/dex/tokens/%s", c.base, url.PathEscape(token))
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	pairs := filterChain(resp.Pairs, chain)
	c.store(cacheKey, pairs)
	return pairs, nil
}

// Search runs the pair search endpoint, filtered to the given chain.
func (c *DexScreenerClient) Search(ctx context.Context, chain, query string) ([]Pair, error) {
	cacheKey := "search|" + chain + "|" + query
	if pairs, ok := c.cached(cacheKey); ok {
		return pairs, nil
	}

	var resp pairsResponse
	u := fmt.Sprintf("%s/latest/dex/search?q=%s", c.base, url.QueryEscape(query))
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	pairs := filterChain(resp.Pairs, chain)
	c.store(cacheKey, pairs)
	return pairs, nil
}

func filterChain(pairs []Pair, chain string) []Pair {
	want := dexScreenerChainIDs[chain]
	if want == "" {
		want = chain
	}
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if strings.EqualFold(p.ChainID, want) {
			out = append(out, p)
		}
	}
	return out
}

func (c *DexScreenerClient) cached(key string) ([]Pair, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok || c.now().Sub(e.fetched) > dexScreenerTTL {
		return nil, false
	}
	return e.pairs, true
}

func (c *DexScreenerClient) store(key string, pairs []Pair) {
	c.mu.Lock()
	c.cache[key] = dsCacheEntry{pairs: pairs, fetched: c.now()}
	c.mu.Unlock()
}
