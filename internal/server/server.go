// Package server exposes stored credit scores over HTTP and pushes
// completed runs to websocket subscribers.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"wallet-credit-lab/internal/observability"
	"wallet-credit-lab/internal/reporting"
	"wallet-credit-lab/internal/storage"
)

// Server serves the latest scores.
type Server struct {
	scores   storage.ScoreStore
	hub      *Hub      // optional
	rescorer *Rescorer // optional
	started  time.Time
	log      zerolog.Logger
}

// Options configures a Server.
type Options struct {
	Scores   storage.ScoreStore
	Hub      *Hub
	Rescorer *Rescorer
	Logger   zerolog.Logger
}

// New creates a server.
func New(opts Options) *Server {
	return &Server{
		scores:   opts.Scores,
		hub:      opts.Hub,
		rescorer: opts.Rescorer,
		started:  time.Now().UTC(),
		log:      opts.Logger.With().Str("component", "http").Logger(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /scores", s.instrument("/scores", s.handleScores))
	mux.Handle("GET /scores/{wallet}", s.instrument("/scores/{wallet}", s.handleWalletScore))
	mux.Handle("GET /healthz", s.instrument("/healthz", s.handleHealth))
	mux.Handle("GET /metrics", observability.Handler())
	if s.hub != nil {
		// Not instrumented: the upgrade needs the raw ResponseWriter.
		mux.Handle("GET /ws", s.hub)
	}
	return mux
}

// ScoresResponse is the body of GET /scores.
type ScoresResponse struct {
	RunID     string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	Scores    map[string]int `json:"scores"`
}

// WalletScoreResponse is the body of GET /scores/{wallet}.
type WalletScoreResponse struct {
	Wallet    string    `json:"wallet"`
	Score     int       `json:"score"`
	RiskBand  string    `json:"risk_band"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status      string  `json:"status"`
	Uptime      string  `json:"uptime"`
	Subscribers int     `json:"subscribers"`
	Rescorer    *Status `json:"rescorer,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) int {
	run, err := s.scores.LatestRun(r.Context())
	if err != nil {
		return s.storeError(w, err, "no scoring run stored yet")
	}
	return writeJSON(w, http.StatusOK, ScoresResponse{
		RunID:     run.RunID,
		CreatedAt: time.UnixMilli(run.CreatedAt).UTC(),
		Scores:    run.Scores,
	})
}

func (s *Server) handleWalletScore(w http.ResponseWriter, r *http.Request) int {
	wallet := r.PathValue("wallet")
	score, err := s.scores.GetLatest(r.Context(), wallet)
	if err != nil {
		return s.storeError(w, err, "wallet not scored")
	}
	return writeJSON(w, http.StatusOK, WalletScoreResponse{
		Wallet:    score.Wallet,
		Score:     score.Score,
		RiskBand:  string(reporting.BandFor(score.Score)),
		RunID:     score.RunID,
		CreatedAt: time.UnixMilli(score.CreatedAt).UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) int {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.ClientCount()
	}
	if s.rescorer != nil {
		st := s.rescorer.Status()
		resp.Rescorer = &st
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storeError(w http.ResponseWriter, err error, notFound string) int {
	if errors.Is(err, storage.ErrNotFound) {
		return writeJSON(w, http.StatusNotFound, errorResponse{Error: notFound})
	}
	s.log.Error().Err(err).Msg("score store query failed")
	return writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// instrument adapts a handler that returns its status code and counts requests per route.
func (s *Server) instrument(route string, h func(http.ResponseWriter, *http.Request) int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := h(w, r)
		observability.RecordHTTPRequest(route, code)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
	return code
}
