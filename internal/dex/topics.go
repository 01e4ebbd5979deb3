// Package dex holds the protocol knowledge the decoder dispatches on: the
// canonical swap event topics and the pool registry.
package dex

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// Canonical event signatures.
const (
	SigSwapV2 = "Swap(address,uint256,uint256,uint256,uint256,address)"
	SigSyncV2 = "Sync(uint112,uint112)"
	SigSwapV3 = "Swap(address,address,int256,int256,uint160,uint128,int24)"
)

// Event topics, keccak-256 of the signatures, computed once at startup.
var (
	TopicSwapV2 = crypto.Keccak256Hash([]byte(SigSwapV2)).Hex()
	TopicSyncV2 = crypto.Keccak256Hash([]byte(SigSyncV2)).Hex()
	TopicSwapV3 = crypto.Keccak256Hash([]byte(SigSwapV3)).Hex()
)
