package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rawblock/titan-engine/internal/httpx"
)

const (
	goPlusBase = "https://api.gopluslabs.io"
	goPlusTTL  = 300 * time.Second
)

var goPlusChainIDs = map[string]string{
	"ethereum": "1",
	"bsc":      "56",
}

// TokenSecurity is the subset of the GoPlus token_security payload the risk
// worker reads. GoPlus encodes booleans as "0"/"1" strings.
type TokenSecurity struct {
	IsHoneypot    string `json:"is_honeypot"`
	IsBlacklisted string `json:"is_blacklisted"`
	IsProxy       string `json:"is_proxy"`
	IsMintable    string `json:"is_mintable"`
	CannotSellAll string `json:"cannot_sell_all"`
}

func flag(v string) bool {
	return v == "1"
}

// Honeypot reports the honeypot flag, treating cannot_sell_all as
// equivalent.
func (t *TokenSecurity) Honeypot() bool {
	return flag(t.IsHoneypot) || flag(t.CannotSellAll)
}

func (t *TokenSecurity) Blacklisted() bool { return flag(t.IsBlacklisted) }
func (t *TokenSecurity) Proxy() bool       { return flag(t.IsProxy) }
func (t *TokenSecurity) Mintable() bool    { return flag(t.IsMintable) }

type goPlusResponse struct {
	Code   int                        `json:"code"`
	Result map[string]json.RawMessage `json:"result"`
}

type gpCacheEntry struct {
	sec     *TokenSecurity
	fetched time.Time
}

// GoPlusClient fetches and caches token security reports.
type GoPlusClient struct {
	http *httpx.Client
	base string

	mu    sync.Mutex
	cache map[string]gpCacheEntry
	now   func() time.Time
}

// NewGoPlus builds the client; pass "" for the production base URL.
func NewGoPlus(http *httpx.Client, baseURL string) *GoPlusClient {
	if baseURL == "" {
		baseURL = goPlusBase
	}
	return &GoPlusClient{
		http:  http,
		base:  baseURL,
		cache: make(map[string]gpCacheEntry),
		now:   time.Now,
	}
}

// TokenSecurity fetches the security report for one token, (nil, nil) when
// GoPlus has no data for it.
func (c *GoPlusClient) TokenSecurity(ctx context.Context, chain, token string) (*TokenSecurity, error) {
	chainID, ok := goPlusChainIDs[chain]
	if !ok {
		return nil, fmt.Errorf("no goplus chain id for %q", chain)
	}
	token = strings.ToLower(token)

	cacheKey := chainID + "|" + token
	c.mu.Lock()
	if e, ok := c.cache[cacheKey]; ok && c.now().Sub(e.fetched) <= goPlusTTL {
		c.mu.Unlock()
		return e.sec, nil
	}
	c.mu.Unlock()

	var resp goPlusResponse
	u := fmt.Sprintf("%s/api/v1/token_security/%s?contract_addresses=%s", c.base, chainID, token)
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	var sec *TokenSecurity
	for addr, raw := range resp.Result {
		if strings.EqualFold(addr, token) {
			var t TokenSecurity
			if err := json.Unmarshal(raw, &t); err == nil {
				sec = &t
			}
			break
		}
	}

	c.mu.Lock()
	c.cache[cacheKey] = gpCacheEntry{sec: sec, fetched: c.now()}
	c.mu.Unlock()
	return sec, nil
}
