// Package watchpairs maintains the Redis snapshot of active watch pairs the
// listener subscribes to. The snapshot is rebuilt lazily from Postgres and
// expires after a minute so churn propagates quickly.
package watchpairs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/streams"
)

const snapshotTTL = 60 * time.Second

// SnapshotEntry is one pair in the Redis snapshot.
type SnapshotEntry struct {
	Chain       string `json:"chain"`
	PairAddress string `json:"pair_address"`
	Dex         string `json:"dex"`
	Priority    int    `json:"priority"`
	Source      string `json:"source"`
}

// Snapshot is the cached set of pairs per chain.
type Snapshot struct {
	Pairs       map[string][]SnapshotEntry `json:"pairs"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// Service rebuilds and serves the snapshot.
type Service struct {
	store       *db.PostgresStore
	redis       *streams.Client
	capPerChain int
	chains      []string
	log         zerolog.Logger
}

// NewService wires the snapshot service.
func NewService(store *db.PostgresStore, redis *streams.Client, chains []string, capPerChain int, logger zerolog.Logger) *Service {
	return &Service{store: store, redis: redis, chains: chains, capPerChain: capPerChain, log: logger}
}

// Get returns the current snapshot, rebuilding it from Postgres when the
// Redis key has expired.
func (s *Service) Get(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	found, err := s.redis.GetJSON(ctx, streams.KeyWatchSnapshot, &snap)
	if err != nil {
		return nil, err
	}
	if found && snap.Pairs != nil {
		return &snap, nil
	}
	return s.Rebuild(ctx)
}

// Rebuild queries the ordered active pairs per chain, including every
// seed_pack anchor, and writes the snapshot back to Redis.
func (s *Service) Rebuild(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Pairs:       make(map[string][]SnapshotEntry, len(s.chains)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, chain := range s.chains {
		pairs, err := s.store.ListActiveWatchPairs(ctx, chain, s.capPerChain)
		if err != nil {
			return nil, err
		}
		entries := make([]SnapshotEntry, 0, len(pairs))
		for _, p := range pairs {
			entries = append(entries, SnapshotEntry{
				Chain:       p.Chain,
				PairAddress: p.PairAddress,
				Dex:         p.Dex,
				Priority:    p.Priority,
				Source:      p.Source,
			})
		}
		snap.Pairs[chain] = entries
	}

	if err := s.redis.SetJSON(ctx, streams.KeyWatchSnapshot, snap, snapshotTTL); err != nil {
		s.log.Warn().Err(err).Msg("watch pair snapshot write failed")
	}
	return snap, nil
}

// Addresses returns the pair addresses under observation for one chain.
func (s *Service) Addresses(ctx context.Context, chain string) ([]string, error) {
	snap, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	entries := snap.Pairs[chain]
	addrs := make([]string, 0, len(entries))
	for _, e := range entries {
		addrs = append(addrs, e.PairAddress)
	}
	return addrs, nil
}
