// File: internal/server/server.go

// Package server exposes one agent's read-only introspection surface plus
// the inbound gossip deposit endpoint. Handlers only ever read snapshots;
// the snapshot a reader gets may be up to one tick stale.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/agent"
	"github.com/owizdom/swarm-mindv2/internal/config"
	"github.com/owizdom/swarm-mindv2/internal/gossip"
	"github.com/owizdom/swarm-mindv2/internal/identity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server hosts the per-agent HTTP surface.
type Server struct {
	cfg        *config.Config
	agent      *agent.Agent
	logger     *zap.Logger
	httpServer *http.Server
}

// New builds the server around a running agent.
func New(cfg *config.Config, a *agent.Agent, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		agent:  a,
		logger: logger.Named("server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/state", s.handleState)
	r.Get("/pheromones", s.handlePheromones)
	r.Post("/pheromone", s.handleDeposit)
	r.Get("/thoughts", s.handleThoughts)
	r.Get("/identity", s.handleIdentity)
	r.Get("/attestation", s.handleAttestation)
	r.Get("/collective", s.handleCollective)
	r.Get("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Agent.Port),
		Handler: r,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Serve blocks until the context is cancelled, then shuts down
// gracefully. A bind failure is fatal and returned to the caller.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Agent HTTP surface listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.agent.Snapshot()
	channel := s.agent.Channel()

	var latestThought any
	if len(snap.Thoughts) > 0 {
		latestThought = snap.Thoughts[len(snap.Thoughts)-1]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":                      snap.ID,
		"name":                    snap.Name,
		"specialization":          snap.Specialization,
		"step":                    snap.StepCount,
		"position":                snap.Position,
		"energy":                  snap.Energy,
		"density":                 channel.Density(),
		"criticalThreshold":       channel.CriticalThreshold(),
		"phaseTransitionOccurred": channel.TransitionOccurred(),
		"synchronized":            snap.Synchronized,
		"absorbedCount":           len(snap.Absorbed),
		"discoveries":             snap.Discoveries,
		"tokensUsed":              snap.TokensUsed,
		"tokenBudget":             snap.TokenBudget,
		"thoughtCount":            len(snap.Thoughts),
		"latestThought":           latestThought,
		"topicsStudied":           snap.TopicsStudied,
		"credits":                 s.agent.Credits(),
		"identity": map[string]any{
			"publicKey":   s.agent.Identity().PublicKeyHex(),
			"fingerprint": s.agent.Identity().Fingerprint(),
		},
	})
}

func (s *Server) handlePheromones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Channel().Snapshot())
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	signal, err := gossip.DecodeSignal(r.Body)
	if err != nil {
		s.logger.Debug("Rejected inbound signal", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.agent.Deposit(signal)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleThoughts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.RecentThoughts(50))
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	id := s.agent.Identity()
	writeJSON(w, http.StatusOK, map[string]any{
		"agentId":     s.agent.ID(),
		"name":        s.agent.Name(),
		"publicKey":   id.PublicKeyHex(),
		"fingerprint": id.Fingerprint(),
		"createdAt":   id.CreatedAt.UnixMilli(),
		"teeMode":     false,
	})
}

func (s *Server) handleAttestation(w http.ResponseWriter, r *http.Request) {
	id := s.agent.Identity()
	resp := map[string]any{
		"agentId":     s.agent.ID(),
		"publicKey":   id.PublicKeyHex(),
		"fingerprint": id.Fingerprint(),
		"compute": map[string]any{
			"tokensUsed":  s.agent.Snapshot().TokensUsed,
			"tokenBudget": s.agent.Snapshot().TokenBudget,
			"credits":     s.agent.Credits(),
		},
		"da": map[string]any{
			"proxyConfigured": s.cfg.DA.ProxyURL != "",
			"updateLocal":     s.cfg.DA.UpdateLocal,
		},
	}
	if latest := s.agent.LatestSignal(); latest != nil {
		resp["latestSignal"] = latest
		resp["verification"] = identity.VerifySignal(*latest)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCollective(w http.ResponseWriter, r *http.Request) {
	memories := s.agent.CollectiveMemories()
	if memories == nil {
		memories = []schemas.CollectiveMemory{}
	}
	writeJSON(w, http.StatusOK, memories)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"agent": s.agent.ID(),
		"step":  s.agent.StepCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Debug("Failed to encode response", zap.Error(err))
	}
}

// corsMiddleware allows the dashboard to read every endpoint cross-origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
