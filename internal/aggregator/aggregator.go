// File: internal/aggregator/aggregator.go

// Package aggregator is the optional read-only presentation service. It
// fans every request out to all configured agents with short deadlines,
// merges the replies, and de-duplicates by id. It holds no state of its
// own and never recomputes swarm metrics: each agent's own view is the
// truth it reports.
package aggregator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the aggregator HTTP host.
type Server struct {
	cfg        config.AggregatorConfig
	logger     *zap.Logger
	httpClient *http.Client
	httpServer *http.Server
}

// injectRequest is the /api/inject payload.
type injectRequest struct {
	Topic   string `json:"topic,omitempty"`
	Content string `json:"content,omitempty"`
}

// New builds the aggregator.
func New(cfg config.AggregatorConfig, logger *zap.Logger) *Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger.Named("aggregator"),
		httpClient: &http.Client{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/state", s.fanOutHandler("/state", false))
	r.Get("/api/agents", s.fanOutHandler("/state", false))
	r.Get("/api/pheromones", s.fanOutHandler("/pheromones", true))
	r.Get("/api/thoughts", s.fanOutHandler("/thoughts", true))
	r.Get("/api/collective", s.fanOutHandler("/collective", true))
	r.Get("/api/report", s.handleReport)
	r.Get("/api/attestations", s.fanOutHandler("/attestation", false))
	r.Get("/api/identities", s.fanOutHandler("/identity", false))
	r.Post("/api/inject", s.handleInject)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Serve blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Aggregator listening",
			zap.String("addr", s.httpServer.Addr),
			zap.Int("agents", len(s.cfg.AgentURLs)))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("aggregator server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Aggregator shutdown error", zap.Error(err))
	}
	return nil
}

// fanOutHandler builds a handler that queries path on every agent.
// flatten=true merges list responses into one de-duplicated list;
// flatten=false returns a per-agent object keyed by URL.
func (s *Server) fanOutHandler(path string, flatten bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := s.fanOut(r.Context(), path)
		if !flatten {
			writeJSON(w, http.StatusOK, results)
			return
		}

		merged := make([]map[string]any, 0)
		seen := make(map[string]bool)
		for _, raw := range results {
			var items []map[string]any
			if err := json.Unmarshal(raw, &items); err != nil {
				continue
			}
			for _, item := range items {
				if id, ok := item["id"].(string); ok {
					if seen[id] {
						continue
					}
					seen[id] = true
				}
				merged = append(merged, item)
			}
		}
		writeJSON(w, http.StatusOK, merged)
	}
}

// handleReport summarizes the swarm: per-agent state plus aggregate
// counters derived from whatever subset of agents answered.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	states := s.fanOut(r.Context(), "/state")

	agents := make([]map[string]any, 0, len(states))
	var transitioned, synchronized int
	for url, raw := range states {
		var st map[string]any
		if err := json.Unmarshal(raw, &st); err != nil {
			continue
		}
		st["url"] = url
		agents = append(agents, st)
		if b, ok := st["phaseTransitionOccurred"].(bool); ok && b {
			transitioned++
		}
		if b, ok := st["synchronized"].(bool); ok && b {
			synchronized++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agents":       agents,
		"reachable":    len(agents),
		"configured":   len(s.cfg.AgentURLs),
		"transitioned": transitioned,
		"synchronized": synchronized,
		"generatedAt":  time.Now().UnixMilli(),
	})
}

// handleInject synthesizes a human-produced signal and broadcasts it to
// every agent.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err == nil && len(body) > 0 {
		if decodeErr := json.Unmarshal(body, &req); decodeErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "malformed inject payload"})
			return
		}
	}

	content := req.Content
	if content == "" {
		content = "Operator guidance: focus the swarm on " + req.Topic
	}
	domain := req.Topic
	if domain == "" {
		domain = "guidance"
	}

	now := time.Now().UnixMilli()
	signal := schemas.Signal{
		ID:          uuid.New().String(),
		ProducerID:  "human",
		Content:     content,
		Domain:      domain,
		Confidence:  0.9,
		Strength:    0.9,
		Connections: []string{},
		Timestamp:   now,
	}

	payload, err := json.Marshal(signal)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false})
		return
	}

	delivered := s.broadcast(r.Context(), payload)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"signalId":  signal.ID,
		"delivered": delivered,
	})
}

// fanOut queries path on every agent concurrently with per-request
// deadlines. Unreachable agents are simply absent from the result.
func (s *Server) fanOut(ctx context.Context, path string) map[string]jsoniter.RawMessage {
	var mu sync.Mutex
	results := make(map[string]jsoniter.RawMessage)

	g, ctx := errgroup.WithContext(ctx)
	for _, agentURL := range s.cfg.AgentURLs {
		g.Go(func() error {
			raw, err := s.get(ctx, agentURL+path)
			if err != nil {
				s.logger.Debug("Agent fan-out failed", zap.String("agent", agentURL), zap.Error(err))
				return nil
			}
			mu.Lock()
			results[agentURL] = raw
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Server) get(ctx context.Context, url string) (jsoniter.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// broadcast POSTs the signal payload to every agent's /pheromone and
// returns how many accepted it.
func (s *Server) broadcast(ctx context.Context, payload []byte) int {
	var (
		mu        sync.Mutex
		delivered int
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, agentURL := range s.cfg.AgentURLs {
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, s.timeout())
			defer cancel()

			req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, agentURL+"/pheromone", bytes.NewReader(payload))
			if err != nil {
				return nil
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.httpClient.Do(req)
			if err != nil {
				s.logger.Debug("Inject delivery failed", zap.String("agent", agentURL), zap.Error(err))
				return nil
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)
			if resp.StatusCode == http.StatusOK {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return delivered
}

func (s *Server) timeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return 3 * time.Second
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Debug("Failed to encode response", zap.Error(err))
	}
}
