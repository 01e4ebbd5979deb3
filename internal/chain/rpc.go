// Package chain talks JSON-RPC to the configured EVM nodes: eth_call for
// pool token lookups, receipts for realized gas, and the websocket log
// subscription used by the listener.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rawblock/titan-engine/internal/httpx"
)

// ERC-20 / pair function selectors used by the decoder.
const (
	SelectorToken0 = "0x0dfe1681"
	SelectorToken1 = "0xd21220a7"
)

// RPCClient issues JSON-RPC calls over the shared HTTP client.
type RPCClient struct {
	http     *httpx.Client
	endpoint string
	seq      atomic.Int64
}

// NewRPCClient builds a client for one chain's HTTP endpoint.
func NewRPCClient(http *httpx.Client, endpoint string) *RPCClient {
	return &RPCClient{http: http, endpoint: endpoint}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call performs one JSON-RPC request and unmarshals the result.
func (c *RPCClient) Call(ctx context.Context, method string, result any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	req := rpcRequest{JSONRPC: "2.0", ID: c.seq.Add(1), Method: method, Params: params}
	var resp rpcResponse
	if err := c.http.PostJSON(ctx, c.endpoint, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(resp.Result, result)
}

// EthCall issues eth_call against a contract with raw calldata, returning
// the hex result.
func (c *RPCClient) EthCall(ctx context.Context, to, data string) (string, error) {
	var result string
	err := c.Call(ctx, "eth_call", &result, map[string]string{"to": to, "data": data}, "latest")
	return result, err
}

// TokenAddress calls token0/token1 on a pair and decodes the returned
// address, lowercased.
func (c *RPCClient) TokenAddress(ctx context.Context, pair, selector string) (string, error) {
	result, err := c.EthCall(ctx, pair, selector)
	if err != nil {
		return "", err
	}
	return AddressFromWord(result)
}

// AddressFromWord extracts the address from a 32-byte ABI word.
func AddressFromWord(word string) (string, error) {
	w := strings.TrimPrefix(strings.ToLower(word), "0x")
	if len(w) < 40 {
		return "", fmt.Errorf("abi word too short: %q", word)
	}
	addr := "0x" + w[len(w)-40:]
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("not an address: %q", word)
	}
	return addr, nil
}

// Receipt is the subset of the transaction receipt the gas model needs.
type Receipt struct {
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`
	Status            string `json:"status"`
}

// TransactionReceipt fetches the receipt, (nil, nil) when the node does not
// know the transaction yet.
func (c *RPCClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var r *Receipt
	if err := c.Call(ctx, "eth_getTransactionReceipt", &r, txHash); err != nil {
		return nil, err
	}
	return r, nil
}

// GasCostWei returns gasUsed * effectiveGasPrice in wei.
func (r *Receipt) GasCostWei() (*big.Int, error) {
	gasUsed, err := ParseHexBig(r.GasUsed)
	if err != nil {
		return nil, fmt.Errorf("bad gasUsed: %w", err)
	}
	price, err := ParseHexBig(r.EffectiveGasPrice)
	if err != nil {
		return nil, fmt.Errorf("bad effectiveGasPrice: %w", err)
	}
	return new(big.Int).Mul(gasUsed, price), nil
}

// ParseHexBig parses a 0x-prefixed quantity.
func ParseHexBig(s string) (*big.Int, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("empty quantity")
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return n, nil
}

// WeiToNative converts wei to the native coin unit.
func WeiToNative(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}
