// Package listener maintains one websocket log subscription per chain and
// fans first-sight events into the raw_events stream.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/chain"
	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/streams"
	"github.com/rawblock/titan-engine/internal/watchpairs"
)

const (
	dedupeTTL      = time.Hour
	readTimeout    = time.Second
	backoffBase    = time.Second
	backoffCap     = 30 * time.Second
	addressRefresh = 60 * time.Second
)

// Listener runs the per-chain subscription loops.
type Listener struct {
	cfg      *config.Config
	redis    *streams.Client
	snapshot *watchpairs.Service
	log      zerolog.Logger
}

// New wires a listener.
func New(cfg *config.Config, redis *streams.Client, snapshot *watchpairs.Service, logger zerolog.Logger) *Listener {
	return &Listener{cfg: cfg, redis: redis, snapshot: snapshot, log: logger}
}

// Run starts one goroutine per configured chain and blocks until the
// context is cancelled. A chain without a websocket endpoint is a fatal
// configuration error surfaced before any goroutine starts.
func (l *Listener) Run(ctx context.Context) error {
	for name, ep := range l.cfg.Chains {
		if ep.RPCWS == "" {
			return fmt.Errorf("chain %q has no rpc_ws endpoint", name)
		}
	}

	done := make(chan struct{})
	for name, ep := range l.cfg.Chains {
		go func(chainName, wsURL string) {
			l.chainLoop(ctx, chainName, wsURL)
			done <- struct{}{}
		}(name, ep.RPCWS)
	}
	for range l.cfg.Chains {
		<-done
	}
	return nil
}

// chainLoop owns one chain: subscribe, drain, reconnect with backoff.
func (l *Listener) chainLoop(ctx context.Context, chainName, wsURL string) {
	logger := l.log.With().Str("chain", chainName).Logger()
	backoff := backoffBase

	for ctx.Err() == nil {
		addrs, err := l.watchedAddresses(ctx, chainName)
		if err != nil {
			logger.Warn().Err(err).Msg("watched address refresh failed")
		}

		sub, err := chain.SubscribeLogs(ctx, wsURL, addrs)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Dur("backoff", backoff).Msg("subscribe failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		logger.Info().Int("addresses", len(addrs)).Msg("subscribed to logs")

		if l.drain(ctx, chainName, sub, logger) {
			backoff = backoffBase
		}
		sub.Close()

		if ctx.Err() == nil {
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
		}
	}
}

// drain reads the subscription until error or address refresh, reporting
// whether at least one message arrived.
func (l *Listener) drain(ctx context.Context, chainName string, sub *chain.Subscription, logger zerolog.Logger) bool {
	gotMessage := false
	refreshAt := time.Now().Add(addressRefresh)

	for ctx.Err() == nil {
		if time.Now().After(refreshAt) {
			// Resubscribe so new watch pairs enter the filter.
			return gotMessage
		}

		ev, err := sub.Next(readTimeout)
		if errors.Is(err, chain.ErrReadTimeout) {
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Msg("subscription read failed")
			return gotMessage
		}
		if ev == nil || ev.Removed {
			continue
		}
		gotMessage = true

		if err := l.publish(ctx, chainName, ev); err != nil {
			logger.Warn().Err(err).Str("tx", ev.TxHash).Msg("raw event publish failed")
		}
	}
	return gotMessage
}

func (l *Listener) publish(ctx context.Context, chainName string, ev *chain.LogEvent) error {
	if ev.TxHash == "" || ev.LogIndex == "" {
		l.log.Debug().Str("chain", chainName).Msg("dropping malformed log event")
		return nil
	}

	dedupeKey := chainName + "|" + strings.ToLower(ev.TxHash) + "|" + strings.ToLower(ev.LogIndex)
	first, err := l.redis.DedupeOnce(ctx, streams.KeyRawEventDedupe, dedupeKey, dedupeTTL)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	topics, err := json.Marshal(ev.Topics)
	if err != nil {
		return err
	}
	return l.redis.Publish(ctx, streams.StreamRawEvents, map[string]string{
		"chain":       chainName,
		"address":     strings.ToLower(ev.Address),
		"topics":      string(topics),
		"data":        ev.Data,
		"blockNumber": ev.BlockNumber,
		"txHash":      strings.ToLower(ev.TxHash),
		"logIndex":    ev.LogIndex,
	})
}

// watchedAddresses is the union of operator-configured addresses and the
// active watch-pair snapshot for the chain.
func (l *Listener) watchedAddresses(ctx context.Context, chainName string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		addr = strings.ToLower(addr)
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, a := range l.cfg.WatchedAddresses[chainName] {
		add(a)
	}
	pairAddrs, err := l.snapshot.Addresses(ctx, chainName)
	if err != nil {
		return out, err
	}
	for _, a := range pairAddrs {
		add(a)
	}
	return out, nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
