// Package httpx provides the shared outbound HTTP client: pooled transport,
// per-request timeout, exponential retry and a circuit breaker so one dead
// collaborator cannot stall every worker.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	maxAttempts      = 3
	breakerThreshold = 4
	breakerOpenFor   = 30 * time.Second
)

// ErrCircuitOpen is returned without touching the network while the breaker
// for a host is open.
var ErrCircuitOpen = fmt.Errorf("circuit breaker open")

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

// Client wraps http.Client with retry and per-host circuit breaking.
type Client struct {
	http *http.Client

	mu       sync.Mutex
	breakers map[string]*breakerState
	now      func() time.Time

	backoffBase time.Duration
}

// New builds the shared client.
func New() *Client {
	return &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breakers:    make(map[string]*breakerState),
		now:         time.Now,
		backoffBase: time.Second,
	}
}

// Do executes the request with up to three attempts and exponential backoff.
// 5xx responses and transport errors count as failures; 4xx responses are
// returned to the caller without retry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	if err := c.checkBreaker(host); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * c.backoffBase
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.recordFailure(host)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", resp.Status)
			resp.Body.Close()
			c.recordFailure(host)
			continue
		}
		c.recordSuccess(host)
		return resp, nil
	}
	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", host, maxAttempts, lastErr)
}

// GetJSON fetches a URL and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// PostJSON posts a JSON body and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) checkBreaker(host string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		return nil
	}
	if c.now().Before(b.openUntil) {
		return fmt.Errorf("%w for host %s", ErrCircuitOpen, host)
	}
	return nil
}

func (c *Client) recordFailure(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		b = &breakerState{}
		c.breakers[host] = b
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= breakerThreshold {
		b.openUntil = c.now().Add(breakerOpenFor)
		b.consecutiveFailures = 0
	}
}

func (c *Client) recordSuccess(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		b.consecutiveFailures = 0
	}
}
