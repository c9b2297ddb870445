// File: internal/gossip/gossip.go

// Package gossip replicates signals between agent processes. The model is
// best-effort and coordinator-free: each tick pulls every peer's channel
// snapshot, and each emission is pushed to every peer. Failed peers are
// skipped silently; dedup by signal id makes the final set identical
// after quiescence regardless of arrival order.
package gossip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// strictJSON rejects unknown fields at the process edge; a peer speaking
// a different schema is treated as a transient RPC failure.
var strictJSON = jsoniter.Config{DisallowUnknownFields: true}.Froze()

// Client talks to a fixed set of peer agents.
type Client struct {
	peers      []string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds the gossip client. Peer URLs are base URLs without a
// trailing slash.
func NewClient(peers []string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		peers:   peers,
		timeout: timeout,
		// The overall client timeout stays unset: each request carries
		// its own deadline via context.
		httpClient: &http.Client{},
		logger:     logger.Named("gossip"),
	}
}

// Peers returns the configured peer URLs.
func (c *Client) Peers() []string { return c.peers }

// PullAll fetches every peer's channel snapshot concurrently, each with
// its own deadline, and returns the merged (possibly duplicated) list.
// Settled semantics: peer failures are logged at debug and ignored.
func (c *Client) PullAll(ctx context.Context) []schemas.Signal {
	var (
		mu     sync.Mutex
		merged []schemas.Signal
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, peer := range c.peers {
		g.Go(func() error {
			signals, err := c.pull(ctx, peer)
			if err != nil {
				c.logger.Debug("Peer pull failed", zap.String("peer", peer), zap.Error(err))
				return nil
			}
			mu.Lock()
			merged = append(merged, signals...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return merged
}

// PushAll posts one signal to every peer concurrently. Failures are
// logged and ignored.
func (c *Client) PushAll(ctx context.Context, s schemas.Signal) {
	g, ctx := errgroup.WithContext(ctx)
	for _, peer := range c.peers {
		g.Go(func() error {
			if err := c.push(ctx, peer, s); err != nil {
				c.logger.Debug("Peer push failed", zap.String("peer", peer), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Client) pull(ctx context.Context, peer string) ([]schemas.Signal, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, peer+"/pheromones", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read pull response: %w", err)
	}

	var signals []schemas.Signal
	if err := strictJSON.Unmarshal(body, &signals); err != nil {
		return nil, fmt.Errorf("failed to decode peer snapshot: %w", err)
	}
	return signals, nil
}

func (c *Client) push(ctx context.Context, peer string, s schemas.Signal) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, peer+"/pheromone", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return nil
}

// DecodeSignal strictly decodes one inbound signal, rejecting unknown
// fields. Shared by the agent POST handler and the aggregator.
func DecodeSignal(r io.Reader) (schemas.Signal, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return schemas.Signal{}, fmt.Errorf("failed to read signal body: %w", err)
	}
	var s schemas.Signal
	if err := strictJSON.Unmarshal(body, &s); err != nil {
		return schemas.Signal{}, fmt.Errorf("failed to decode signal: %w", err)
	}
	if s.ID == "" {
		return schemas.Signal{}, fmt.Errorf("signal is missing an id")
	}
	return s, nil
}
