// Package httpapi implements the gateway's wire layer: POST /validate,
// GET /health, GET /metrics, plus Prometheus exposition. Grounded on the
// OCX backend's internal/api.APIServer — a gorilla/mux router, CORS
// middleware, and a struct of handler dependencies — generalized here
// to the gateway's single validation endpoint and wired to google/uuid
// for request-ID assignment.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocx/trustgate/internal/gateway/clock"
	gwmetrics "github.com/ocx/trustgate/internal/gateway/metrics"
	"github.com/ocx/trustgate/internal/gateway/models"
	"github.com/ocx/trustgate/internal/gateway/replay"
)

// Validator is the capability the HTTP layer needs from the pipeline
// orchestrator.
type Validator interface {
	Validate(ctx context.Context, credential, requestID string) models.Response
}

// Server wires the gateway's HTTP surface. Every field is resolved once
// at construction (the "AppState injected into the handler" shape), with
// no module-level mutable state.
type Server struct {
	router     *mux.Router
	validator  Validator
	metrics    *gwmetrics.Counters
	suppressor *replay.Suppressor
	clock      clock.Clock
	logger     *slog.Logger

	appName    string
	appVersion string
	startedAt  int64
}

// Config carries the identifying fields the /health response surfaces.
type Config struct {
	AppName    string
	AppVersion string
}

// New constructs a Server and registers its routes.
func New(cfg Config, validator Validator, m *gwmetrics.Counters, suppressor *replay.Suppressor, c clock.Clock, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		validator:  validator,
		metrics:    m,
		suppressor: suppressor,
		clock:      c,
		logger:     logger,
		appName:    cfg.AppName,
		appVersion: cfg.AppVersion,
		startedAt:  c.Now(),
	}
	s.router = mux.NewRouter()
	s.router.Use(corsMiddleware)
	s.router.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetricsSnapshot).Methods(http.MethodGet)
	s.router.Handle("/metrics/prometheus", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

// Router exposes the underlying mux.Router, e.g. for http.Server.Handler
// or for tests driving requests through httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Decision  models.Verdict `json:"decision"`
	Reason    *string        `json:"reason"`
	RequestID string         `json:"request_id"`
	Timestamp string         `json:"timestamp"`
	Score     *int           `json:"score"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	w.Header().Set("X-Request-ID", reqID)

	var body validateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":      "missing or malformed token",
			"request_id": reqID,
		})
		return
	}

	resp := s.validator.Validate(r.Context(), body.Token, reqID)

	out := validateResponse{
		Decision:  resp.Verdict,
		RequestID: resp.RequestID,
		Timestamp: resp.Timestamp.Format(time.RFC3339),
	}
	if resp.HasReason {
		reason := string(resp.Reason)
		out.Reason = &reason
	}
	if resp.HasScore {
		score := resp.Score
		out.Score = &score
	}
	writeJSON(w, http.StatusOK, out)
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	ReplayCacheSize int    `json:"replay_cache_size"`
	Timestamp       string `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "ok",
		Version:         s.appVersion,
		UptimeSeconds:   s.clock.Now() - s.startedAt,
		ReplayCacheSize: s.suppressor.Size(),
		Timestamp:       time.Unix(s.clock.Now(), 0).UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
