// File: internal/da/disperser.go

// Package da sends signal payloads to a data-availability proxy and
// collects the resulting commitments. Dispersal is strictly fire and
// forget: a bounded queue absorbs bursts, overflow drops silently, and
// no caller ever blocks on the proxy.
package da

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

	"github.com/owizdom/swarm-mindv2/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CommitmentFunc receives the commitment for a dispersed signal. The agent
// always wires its commitment handler here; the channel write-back inside
// that handler is what the da.update_local knob gates.
type CommitmentFunc func(signalID, commitment string)

type job struct {
	signalID string
	blob     []byte
}

// Disperser drains a queue of blobs to the DA proxy on one worker
// goroutine.
type Disperser struct {
	proxyURL   string
	timeout    time.Duration
	queue      chan job
	onCommit   CommitmentFunc
	httpClient *http.Client
	logger     *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

type disperseResponse struct {
	Commitment string `json:"commitment"`
}

// New creates a disperser. A nil CommitmentFunc is replaced by a no-op.
func New(cfg config.DAConfig, onCommit CommitmentFunc, logger *zap.Logger) *Disperser {
	if onCommit == nil {
		onCommit = func(string, string) {}
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Disperser{
		proxyURL:   cfg.ProxyURL,
		timeout:    cfg.Timeout,
		queue:      make(chan job, queueSize),
		onCommit:   onCommit,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("da"),
		done:       make(chan struct{}),
	}
}

// Enabled reports whether a proxy URL was configured.
func (d *Disperser) Enabled() bool { return d.proxyURL != "" }

// Start launches the worker. Safe to call more than once.
func (d *Disperser) Start(ctx context.Context) {
	if !d.Enabled() {
		return
	}
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// Enqueue queues a blob for dispersal. Never blocks; when the queue is
// full the blob is dropped.
func (d *Disperser) Enqueue(signalID string, blob []byte) {
	if !d.Enabled() {
		return
	}
	select {
	case d.queue <- job{signalID: signalID, blob: blob}:
	default:
		d.logger.Debug("DA queue full, dropping blob", zap.String("signal_id", signalID))
	}
}

// Stop signals the worker to exit after the current job.
func (d *Disperser) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

func (d *Disperser) run(ctx context.Context) {
	for {
		select {
		case j := <-d.queue:
			commitment, err := d.disperse(ctx, j.blob)
			if err != nil {
				d.logger.Debug("DA dispersal failed", zap.String("signal_id", j.signalID), zap.Error(err))
				continue
			}
			d.onCommit(j.signalID, commitment)
		case <-d.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Disperser) disperse(ctx context.Context, blob []byte) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, d.proxyURL, bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("failed to create dispersal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("dispersal request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read dispersal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("DA proxy error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var parsed disperseResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Commitment == "" {
		// Some proxies answer with the bare commitment string.
		return string(bytes.TrimSpace(body)), nil
	}
	return parsed.Commitment, nil
}
