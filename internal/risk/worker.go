package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/market"
	"github.com/rawblock/titan-engine/internal/streams"
	"github.com/rawblock/titan-engine/pkg/models"
)

const (
	enqueueGroup = "risk-enqueue"
	workGroup    = "risk-workers"

	jobDedupeTTL = 60 * time.Second
	readBlock    = time.Second
	readBatch    = 16
)

// Worker runs the two risk loops: job enqueue from decoded trades and job
// execution against the external sources.
type Worker struct {
	store       *db.PostgresStore
	redis       *streams.Client
	dexscreener *market.DexScreenerClient
	goplus      *market.GoPlusClient
	consumer    string
	log         zerolog.Logger
}

// New wires the risk worker.
func New(store *db.PostgresStore, redis *streams.Client, ds *market.DexScreenerClient, gp *market.GoPlusClient, consumer string, logger zerolog.Logger) *Worker {
	return &Worker{store: store, redis: redis, dexscreener: ds, goplus: gp, consumer: consumer, log: logger}
}

// Run starts both loops and blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.redis.EnsureGroup(ctx, streams.StreamDecodedTrades, enqueueGroup); err != nil {
		return err
	}
	if err := w.redis.EnsureGroup(ctx, streams.StreamRiskJobs, workGroup); err != nil {
		return err
	}

	done := make(chan struct{}, 2)
	go func() { w.enqueueLoop(ctx); done <- struct{}{} }()
	go func() { w.jobLoop(ctx); done <- struct{}{} }()
	<-done
	<-done
	return nil
}

// enqueueLoop turns decoded trades into deduped per-token risk jobs.
func (w *Worker) enqueueLoop(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := w.redis.ReadGroup(ctx, streams.StreamDecodedTrades, enqueueGroup, w.consumer, readBatch, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn().Err(err).Msg("decoded trade read failed")
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			if err := w.enqueue(ctx, msg); err != nil {
				if dlErr := w.redis.RetryOrDeadLetter(ctx, msg, enqueueGroup, err); dlErr != nil {
					w.log.Error().Err(dlErr).Str("id", msg.ID).Msg("retry/dead-letter failed")
				}
				continue
			}
			if err := w.redis.Ack(ctx, streams.StreamDecodedTrades, enqueueGroup, msg.ID); err != nil {
				w.log.Warn().Err(err).Str("id", msg.ID).Msg("ack failed")
			}
		}
	}
}

func (w *Worker) enqueue(ctx context.Context, msg streams.Message) error {
	chain := msg.GetString("chain")
	token := strings.ToLower(msg.GetString("token_address"))
	if chain == "" || token == "" {
		return nil
	}

	first, err := w.redis.DedupeOnce(ctx, streams.KeyRiskJobDedupe, chain+":"+token, jobDedupeTTL)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	return w.redis.Publish(ctx, streams.StreamRiskJobs, map[string]string{
		"chain":         chain,
		"token_address": token,
	})
}

// jobLoop executes risk jobs.
func (w *Worker) jobLoop(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := w.redis.ReadGroup(ctx, streams.StreamRiskJobs, workGroup, w.consumer, readBatch, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn().Err(err).Msg("risk job read failed")
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			if err := w.evaluate(ctx, msg); err != nil {
				if dlErr := w.redis.RetryOrDeadLetter(ctx, msg, workGroup, err); dlErr != nil {
					w.log.Error().Err(dlErr).Str("id", msg.ID).Msg("retry/dead-letter failed")
				}
				continue
			}
			if err := w.redis.Ack(ctx, streams.StreamRiskJobs, workGroup, msg.ID); err != nil {
				w.log.Warn().Err(err).Str("id", msg.ID).Msg("ack failed")
			}
		}
	}
}

// evaluate fetches both sources and writes the composite. Fetch failures
// degrade to a minimal row instead of losing the token.
func (w *Worker) evaluate(ctx context.Context, msg streams.Message) error {
	chain := msg.GetString("chain")
	token := strings.ToLower(msg.GetString("token_address"))
	if chain == "" || token == "" {
		return fmt.Errorf("malformed risk job")
	}
	now := time.Now().UTC()

	pairs, dsErr := w.dexscreener.TokenPairs(ctx, chain, token)
	sec, gpErr := w.goplus.TokenSecurity(ctx, chain, token)

	if dsErr != nil && gpErr != nil {
		w.log.Warn().Err(dsErr).Str("token", token).Msg("all risk sources unavailable")
		return w.store.UpsertTokenRisk(ctx, &models.TokenRisk{
			Chain:   chain,
			Address: token,
			Score:   models.FloatPtr(0),
			TSS:     models.FloatPtr(0),
			Flags:   []string{FlagDataUnavailable},
			Components: map[string]any{
				"error":      "data_unavailable",
				"updated_at": now.Format(time.RFC3339),
			},
		})
	}
	if dsErr != nil {
		w.log.Debug().Err(dsErr).Str("token", token).Msg("dexscreener fetch failed")
	}
	if gpErr != nil {
		w.log.Debug().Err(gpErr).Str("token", token).Msg("goplus fetch failed")
	}

	ev := Evaluate(pairs, sec, now)

	// Carry the snapshot history forward from the previous row.
	var prevHistory []any
	if prev, err := w.store.GetTokenRisk(ctx, chain, token); err == nil && prev != nil {
		if h, ok := prev.Components["history"].([]any); ok {
			prevHistory = h
		}
	}
	ev.Components["history"] = AppendHistory(prevHistory, ev, now)

	return w.store.UpsertTokenRisk(ctx, &models.TokenRisk{
		Chain:      chain,
		Address:    token,
		Score:      models.FloatPtr(ev.TSS),
		TSS:        models.FloatPtr(ev.TSS),
		Flags:      ev.Flags,
		Components: ev.Components,
	})
}
