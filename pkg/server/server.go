// Package server exposes the pipeline over HTTP: generation, quota
// snapshots, audit queries, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/froth-ops/froth/pkg/cache"
	"github.com/froth-ops/froth/pkg/engine"
	"github.com/froth-ops/froth/pkg/models"
	"github.com/froth-ops/froth/pkg/quota"
)

// Server is the HTTP front of the generation pipeline.
type Server struct {
	listen string
	engine *engine.Engine
	store  *cache.Store
	mux    *http.ServeMux
}

// New creates a Server wired with all dependencies. The Prometheus gatherer
// may be nil to disable the /metrics endpoint.
func New(listen string, eng *engine.Engine, store *cache.Store, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		listen: listen,
		engine: eng,
		store:  store,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/generate", s.handleGenerate)
	s.mux.HandleFunc("/v1/quota", s.handleQuota)
	s.mux.HandleFunc("/v1/audit/recent", s.handleAuditRecent)
	s.mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", s.listen).Msg("froth server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

type generateRequest struct {
	UserID      string `json:"user_id"`
	Requirement string `json:"requirement"`
}

type generateResponse struct {
	RequestID       string          `json:"request_id"`
	Source          models.Source   `json:"source"`
	Artifact        json.RawMessage `json:"artifact,omitempty"`
	TokensIn        int             `json:"tokens_in"`
	TokensOut       int             `json:"tokens_out"`
	TokensCharged   int             `json:"tokens_charged"`
	CostUSD         float64         `json:"cost_usd"`
	SimilarityScore float64         `json:"similarity_score,omitempty"`
	LatencyMs       int64           `json:"latency_ms"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	r.Body.Close()

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Requirement) == "" {
		writeJSONError(w, http.StatusBadRequest, "requirement is required")
		return
	}

	result, err := s.engine.Handle(r.Context(), req.UserID, req.Requirement)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrDailyLimit), errors.Is(err, quota.ErrMonthlyLimit):
			writeJSONError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeJSONError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		RequestID:       result.RequestID,
		Source:          result.Source,
		Artifact:        rawArtifact(result.Artifact),
		TokensIn:        result.TokensIn,
		TokensOut:       result.TokensOut,
		TokensCharged:   result.TokensCharged,
		CostUSD:         result.CostUSD,
		SimilarityScore: result.SimilarityScore,
		LatencyMs:       result.LatencyMs,
	})
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}
	snap, err := s.engine.Stats(r.Context(), userID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "quota lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	n := 20
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	entries, err := s.engine.RecentAudit(r.Context(), n)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.store.Stats()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "cache stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// rawArtifact passes a valid JSON artifact through untouched and wraps
// anything else as a JSON string.
func rawArtifact(artifact []byte) json.RawMessage {
	if len(artifact) == 0 {
		return nil
	}
	if json.Valid(artifact) {
		return artifact
	}
	quoted, err := json.Marshal(string(artifact))
	if err != nil {
		return nil
	}
	return quoted
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response failed")
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"code":%d}}`+"\n", message, code)
}
