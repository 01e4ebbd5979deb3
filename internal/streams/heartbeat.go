package streams

import (
	"context"
	"time"
)

const (
	heartbeatInterval = 15 * time.Second
	heartbeatTTL      = 60 * time.Second
)

// RunHeartbeat writes titan:hb:{worker} every 15 s with a 60 s TTL until
// the context is cancelled. Callers start it as a goroutine alongside the
// worker loop.
func (c *Client) RunHeartbeat(ctx context.Context, worker string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	c.writeHeartbeat(ctx, worker)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeHeartbeat(ctx, worker)
		}
	}
}

func (c *Client) writeHeartbeat(ctx context.Context, worker string) {
	ts := time.Now().UTC().Format(time.RFC3339)
	if err := c.rdb.Set(ctx, heartbeatKeyPrefix+worker, ts, heartbeatTTL).Err(); err != nil && ctx.Err() == nil {
		c.log.Warn().Str("worker", worker).Err(err).Msg("heartbeat write failed")
	}
}

// HeartbeatAges returns, for each named worker, the seconds since its last
// heartbeat, with -1 meaning no live heartbeat.
func (c *Client) HeartbeatAges(ctx context.Context, workers []string) (map[string]float64, error) {
	ages := make(map[string]float64, len(workers))
	now := time.Now().UTC()
	for _, w := range workers {
		v, found, err := c.GetCachedString(ctx, heartbeatKeyPrefix+w)
		if err != nil {
			return nil, err
		}
		if !found {
			ages[w] = -1
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			ages[w] = -1
			continue
		}
		ages[w] = now.Sub(ts).Seconds()
	}
	return ages, nil
}
