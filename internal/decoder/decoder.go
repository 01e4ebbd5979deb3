// Package decoder consumes raw chain logs and reconstructs trade semantics
// for registered pools.
package decoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/chain"
	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/dex"
	"github.com/rawblock/titan-engine/internal/streams"
	"github.com/rawblock/titan-engine/pkg/models"
)

const (
	consumerGroup = "decoders"
	tokenCacheTTL = 6 * time.Hour
	readBlock     = time.Second
	readBatch     = 32
)

// Worker is the raw_events consumer.
type Worker struct {
	cfg      *config.Config
	store    *db.PostgresStore
	redis    *streams.Client
	registry *dex.Registry
	rpc      map[string]*chain.RPCClient
	consumer string
	log      zerolog.Logger
}

// New wires a decoder worker. rpc maps chain name to its HTTP client.
func New(cfg *config.Config, store *db.PostgresStore, redis *streams.Client, registry *dex.Registry, rpc map[string]*chain.RPCClient, consumer string, logger zerolog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		store:    store,
		redis:    redis,
		registry: registry,
		rpc:      rpc,
		consumer: consumer,
		log:      logger,
	}
}

// Run consumes raw_events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.redis.EnsureGroup(ctx, streams.StreamRawEvents, consumerGroup); err != nil {
		return err
	}

	for ctx.Err() == nil {
		msgs, err := w.redis.ReadGroup(ctx, streams.StreamRawEvents, consumerGroup, w.consumer, readBatch, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn().Err(err).Msg("stream read failed")
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			if err := w.handle(ctx, msg); err != nil {
				if dlErr := w.redis.RetryOrDeadLetter(ctx, msg, consumerGroup, err); dlErr != nil {
					w.log.Error().Err(dlErr).Str("id", msg.ID).Msg("retry/dead-letter failed")
				}
				continue
			}
			if err := w.redis.Ack(ctx, streams.StreamRawEvents, consumerGroup, msg.ID); err != nil {
				w.log.Warn().Err(err).Str("id", msg.ID).Msg("ack failed")
			}
		}
	}
	return nil
}

// handle decodes one raw event. A nil return acks the message; an error
// routes it through retry_or_dead_letter.
func (w *Worker) handle(ctx context.Context, msg streams.Message) error {
	chainName := msg.GetString("chain")
	txHash := strings.ToLower(msg.GetString("txHash"))
	address := strings.ToLower(msg.GetString("address"))
	if chainName == "" || txHash == "" {
		return fmt.Errorf("malformed raw event: missing chain or txHash")
	}

	logIndex, err := parseHexOrDecInt(msg.GetString("logIndex"))
	if err != nil {
		return fmt.Errorf("malformed logIndex: %w", err)
	}

	var topics []string
	if raw := msg.GetString("topics"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &topics); err != nil {
			return fmt.Errorf("malformed topics: %w", err)
		}
	}
	if len(topics) == 0 {
		return nil
	}

	topic0 := strings.ToLower(topics[0])
	if topic0 == strings.ToLower(dex.TopicSyncV2) {
		// Reserve updates carry no trade semantics.
		return nil
	}
	if topic0 != strings.ToLower(dex.TopicSwapV2) && topic0 != strings.ToLower(dex.TopicSwapV3) {
		return nil
	}

	venue, ok := w.registry.Lookup(chainName, address)
	if !ok {
		// Unregistered pool: learn it from the watch pair if one exists.
		if pair, err := w.store.GetActiveWatchPair(ctx, chainName, address); err == nil && pair != nil && pair.Dex != "" {
			w.registry.Register(chainName, address, pair.Dex)
			venue, ok = w.registry.Lookup(chainName, address)
		}
		if !ok {
			return nil
		}
	}

	token0 := w.resolveToken(ctx, chainName, address, chain.SelectorToken0)
	token1 := w.resolveToken(ctx, chainName, address, chain.SelectorToken1)
	resolved := 0
	if token0 != "" {
		resolved++
	}
	if token1 != "" {
		resolved++
	}

	swap, decodeErr := DecodeSwap(venue, chainName, topics, msg.GetString("data"), token0, token1)
	confidence := Confidence(resolved, decodeErr == nil)

	trade := &models.Trade{
		Chain:            chainName,
		TxHash:           txHash,
		LogIndex:         logIndex,
		Dex:              models.StringPtr(venue.Dex),
		PairAddress:      models.StringPtr(address),
		DecodeConfidence: confidence,
	}
	if bn, err := chain.ParseHexBig(msg.GetString("blockNumber")); err == nil {
		n := bn.Int64()
		trade.BlockNumber = &n
	}
	now := time.Now().UTC()
	trade.BlockTime = &now

	if decodeErr == nil {
		trade.TokenAddress = models.StringPtr(swap.TokenAddress)
		trade.Side = models.StringPtr(swap.Side)
		trade.Amount = models.FloatPtr(swap.Amount)
		trade.Price = swap.Price
		trade.UsdValue = swap.UsdValue
		trade.WalletAddress = models.StringPtr(swap.WalletAddress)
	} else {
		w.log.Debug().Err(decodeErr).Str("tx", txHash).Msg("payload decode failed")
	}

	if trade.WalletAddress != nil {
		if err := w.store.EnsureWallet(ctx, chainName, *trade.WalletAddress, models.SourceAutopilot); err != nil {
			return err
		}
		wallet, err := w.store.GetWallet(ctx, chainName, *trade.WalletAddress)
		if err != nil {
			return err
		}
		if wallet.IsIgnored() {
			w.log.Debug().Str("wallet", *trade.WalletAddress).Msg("dropping trade from ignored wallet")
			return nil
		}
	}

	if _, err := w.store.UpsertTrade(ctx, trade); err != nil {
		return err
	}

	if confidence >= RepublishThreshold {
		if err := w.republish(ctx, trade); err != nil {
			return err
		}
		if trade.WalletAddress != nil {
			return w.redis.Publish(ctx, streams.StreamProfileJobs, map[string]string{
				"chain":          trade.Chain,
				"wallet_address": *trade.WalletAddress,
			})
		}
	}
	return nil
}

func (w *Worker) republish(ctx context.Context, t *models.Trade) error {
	values := map[string]string{
		"chain":             t.Chain,
		"tx_hash":           t.TxHash,
		"log_index":         strconv.Itoa(t.LogIndex),
		"decode_confidence": strconv.FormatFloat(t.DecodeConfidence, 'f', 2, 64),
	}
	if t.WalletAddress != nil {
		values["wallet_address"] = *t.WalletAddress
	}
	if t.TokenAddress != nil {
		values["token_address"] = *t.TokenAddress
	}
	if t.Side != nil {
		values["side"] = *t.Side
	}
	if t.PairAddress != nil {
		values["pair_address"] = *t.PairAddress
	}
	if t.Dex != nil {
		values["dex"] = *t.Dex
	}
	if t.UsdValue != nil {
		values["usd_value"] = strconv.FormatFloat(*t.UsdValue, 'f', 8, 64)
	}
	return w.redis.Publish(ctx, streams.StreamDecodedTrades, values)
}

// resolveToken answers token0/token1 for a pool through the Redis cache,
// degrading to "" on RPC failure.
func (w *Worker) resolveToken(ctx context.Context, chainName, pool, selector string) string {
	cacheKey := fmt.Sprintf("decode:token_lookup:%s:%s:%s", chainName, pool, selector)
	if cached, found, err := w.redis.GetCachedString(ctx, cacheKey); err == nil && found {
		return cached
	}

	rpc, ok := w.rpc[chainName]
	if !ok {
		return ""
	}
	addr, err := rpc.TokenAddress(ctx, pool, selector)
	if err != nil {
		w.log.Debug().Err(err).Str("pool", pool).Str("selector", selector).Msg("token lookup failed")
		return ""
	}
	if err := w.redis.SetCachedString(ctx, cacheKey, addr, tokenCacheTTL); err != nil {
		w.log.Debug().Err(err).Msg("token cache write failed")
	}
	return addr
}

func parseHexOrDecInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		n, err := chain.ParseHexBig(s)
		if err != nil {
			return 0, err
		}
		return int(n.Int64()), nil
	}
	return strconv.Atoi(s)
}
