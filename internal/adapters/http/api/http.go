// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/hiscore/internal/domain/dedupe"
	"github.com/okian/hiscore/internal/domain/leaderboard"
	"github.com/okian/hiscore/internal/domain/model"
)

// Default paging limits.
const (
	DefaultPageSize    = 10
	DefaultMaxPageSize = 100
)

// Leaderboards is the read side of the leaderboard store.
type Leaderboards interface {
	ListCount() int
	ReadPage(list, pageNumber int, set leaderboard.IdentitySet, page []leaderboard.Entry) (n, total int)
	FillPageAround(list int, identity string, page []leaderboard.Entry) (rank, pageNumber, total int)
	FillFilteredPageAround(list int, identity string, set leaderboard.IdentitySet, page []leaderboard.Entry) (rank, pageNumber, total int)
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	dedupe.Deduper
	Leaderboards

	// Enqueue pushes a submission for async merging. Returns false on backpressure.
	Enqueue(ctx context.Context, s model.Submission) bool
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxPageSize int
}

// WithMaxPageSize caps the page size a client may request.
func WithMaxPageSize(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxPageSize = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{maxPageSize: DefaultMaxPageSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		scoresHandler:      NewScoresHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxPageSize),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /scores", MetricsMiddleware(s.scoresHandler.HandlePostScore, "scores"))
	mux.HandleFunc("GET /leaderboards/{list}", MetricsMiddleware(s.leaderboardHandler.HandleGetPage, "leaderboard_page"))
	mux.HandleFunc("GET /leaderboards/{list}/around/{identity}", MetricsMiddleware(s.leaderboardHandler.HandleGetAround, "leaderboard_around"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
