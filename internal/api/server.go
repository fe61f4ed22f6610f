package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"options-mm/internal/engine"
	"options-mm/internal/runner"
)

// snapshotTimeout 状态读取需要经过引擎队列。
const snapshotTimeout = 2 * time.Second

// StatusSource 提供引擎状态，runner.Runner 实现该接口。
type StatusSource interface {
	SessionID() string
	State() engine.EngineState
	Snapshot(ctx context.Context) (engine.Snapshot, error)
}

// StatusResponse /api/v1/status 返回内容。
type StatusResponse struct {
	SessionID string `json:"sessionId"`
	engine.Snapshot
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Server 只读状态接口。
type Server struct {
	source  StatusSource
	metrics http.Handler
	router  *mux.Router
	origins []string
	log     *zap.Logger
}

// NewServer metrics 为 nil 时不挂载 /metrics。
func NewServer(source StatusSource, metrics http.Handler, origins []string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		source:  source,
		metrics: metrics,
		router:  mux.NewRouter(),
		origins: origins,
		log:     log.Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// Handler 带 CORS 的根 handler。
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// handleHealth 引擎故障或已停止时返回 503。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.source.State()
	status := http.StatusOK
	if state == engine.StateFaulted || state == engine.StateStopped {
		status = http.StatusServiceUnavailable
	}
	respondStatus(w, status, map[string]string{
		"state":     state.String(),
		"sessionId": s.source.SessionID(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	snap, err := s.source.Snapshot(ctx)
	switch {
	case err == nil:
		respondStatus(w, http.StatusOK, StatusResponse{SessionID: s.source.SessionID(), Snapshot: snap})
	case errors.Is(err, runner.ErrNotStarted):
		respondError(w, http.StatusServiceUnavailable, "not started", err.Error())
	case errors.Is(err, engine.ErrStopped):
		respondError(w, http.StatusServiceUnavailable, "stopped", err.Error())
	default:
		s.log.Warn("status snapshot failed", zap.Error(err))
		respondError(w, http.StatusGatewayTimeout, "snapshot unavailable", err.Error())
	}
}

func respondStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg, detail string) {
	respondStatus(w, status, ErrorResponse{Error: msg, Message: detail})
}
