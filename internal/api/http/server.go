package apihttp

import (
	"context"
	"log/slog"
	"net/http"

	"mediastream/internal/domain"
	"mediastream/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type StartPlaybackUseCase interface {
	Execute(ctx context.Context, in usecase.StartPlaybackInput) (usecase.StartPlaybackResult, error)
}

type StopPlaybackUseCase interface {
	Execute(ctx context.Context, token string) error
}

// SessionLister exposes the registry's live session snapshot.
type SessionLister interface {
	Sessions() []domain.SessionState
}

type WatchHistoryStore interface {
	Upsert(ctx context.Context, pos domain.WatchPosition) error
	Get(ctx context.Context, id domain.FileID) (domain.WatchPosition, error)
	List(ctx context.Context, limit int64) ([]domain.WatchPosition, error)
	Delete(ctx context.Context, id domain.FileID) error
}

// Server is the control API: playback lifecycle, session status, watch
// history and operational endpoints. Video bytes are served by the
// StreamRegistry's own listener, not here.
type Server struct {
	startPlayback  StartPlaybackUseCase
	stopPlayback   StopPlaybackUseCase
	sessions       SessionLister
	watchHistory   WatchHistoryStore
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithStopPlayback(uc StopPlaybackUseCase) ServerOption {
	return func(s *Server) {
		s.stopPlayback = uc
	}
}

func WithSessions(lister SessionLister) ServerOption {
	return func(s *Server) {
		s.sessions = lister
	}
}

func WithWatchHistory(store WatchHistoryStore) ServerOption {
	return func(s *Server) {
		s.watchHistory = store
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(start StartPlaybackUseCase, opts ...ServerOption) *Server {
	s := &Server{
		startPlayback: start,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/playback", s.handlePlayback)
	mux.HandleFunc("/playback/", s.handlePlaybackByToken)
	mux.HandleFunc("/watch-history", s.handleWatchHistory)
	mux.HandleFunc("/watch-history/", s.handleWatchHistoryByID)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "mediastream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastSessions pushes the current session snapshot to all WebSocket
// clients. Called periodically by the app wiring.
func (s *Server) BroadcastSessions() {
	if s.wsHub == nil || s.sessions == nil {
		return
	}
	s.wsHub.BroadcastStates(s.sessions.Sessions())
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
