package apihttp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/metrics"
)

const (
	defaultStreamListenAddr = "127.0.0.1:0"
	defaultMaxChunkBytes    = 16 << 20
	janitorInterval         = 30 * time.Second
)

// stateReporter is implemented by providers that expose download progress.
// The registry uses it for session status and cache pinning; providers
// without it still stream fine.
type stateReporter interface {
	State() domain.DownloadState
	Speed() float64
}

type streamSession struct {
	file     domain.MediaFile
	provider ports.DataProvider

	mu         sync.Mutex
	lastAccess time.Time
}

func (s *streamSession) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *streamSession) accessedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

type RegistryConfig struct {
	// ListenAddr for the media HTTP server. The default binds a loopback
	// port chosen by the OS.
	ListenAddr string
	// MaxChunkBytes caps the promised length of a single range response.
	MaxChunkBytes int64
	// RetryDelay is the sleep between starved body reads.
	RetryDelay time.Duration
	// ReadWait bounds how long one body read may stay starved.
	ReadWait time.Duration
	// IdleTimeout evicts sessions with no request for this long. Zero
	// disables eviction; sessions then live until Unregister.
	IdleTimeout time.Duration
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = defaultStreamListenAddr
	}
	if c.MaxChunkBytes <= 0 {
		c.MaxChunkBytes = defaultMaxChunkBytes
	}
	return c
}

// StreamRegistry maps opaque tokens to live data providers and serves
// them over a local HTTP server with byte-range semantics. The listener
// starts lazily on the first Register so an idle client costs nothing.
type StreamRegistry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*streamSession
	listener net.Listener
	server   *http.Server
	baseURL  string
	closed   bool

	janitorOnce sync.Once
	done        chan struct{}
}

func NewStreamRegistry(cfg RegistryConfig, logger *slog.Logger) *StreamRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamRegistry{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		sessions: make(map[string]*streamSession),
		done:     make(chan struct{}),
	}
}

// Register adds a session and returns its token and playback URL.
func (reg *StreamRegistry) Register(file domain.MediaFile, provider ports.DataProvider) (string, string, error) {
	if err := file.Validate(); err != nil {
		return "", "", err
	}
	if provider == nil {
		return "", "", errors.New("provider is required")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed {
		return "", "", domain.ErrClosed
	}
	if err := reg.ensureServerLocked(); err != nil {
		return "", "", err
	}

	token := uuid.NewString()
	reg.sessions[token] = &streamSession{
		file:       file,
		provider:   provider,
		lastAccess: time.Now(),
	}
	metrics.ActiveStreams.Set(float64(len(reg.sessions)))

	url := reg.baseURL + "/video/" + token
	reg.logger.Info("stream registered",
		slog.String("token", token),
		slog.String("file_id", string(file.ID)),
		slog.Int64("size", file.Size))
	return token, url, nil
}

// Unregister removes a session and closes its provider.
func (reg *StreamRegistry) Unregister(token string) error {
	reg.mu.Lock()
	session, ok := reg.sessions[token]
	if ok {
		delete(reg.sessions, token)
		metrics.ActiveStreams.Set(float64(len(reg.sessions)))
	}
	reg.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}
	if err := session.provider.Close(); err != nil {
		reg.logger.Warn("provider close failed",
			slog.String("token", token),
			slog.Any("error", err))
	}
	reg.logger.Info("stream unregistered", slog.String("token", token))
	return nil
}

func (reg *StreamRegistry) lookup(token string) (*streamSession, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	session, ok := reg.sessions[token]
	return session, ok
}

// Sessions returns a status snapshot of every registered stream.
func (reg *StreamRegistry) Sessions() []domain.SessionState {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]domain.SessionState, 0, len(reg.sessions))
	for token, session := range reg.sessions {
		state := domain.SessionState{
			Token:      token,
			FileID:     session.file.ID,
			Size:       session.file.Size,
			MIME:       session.file.MIME,
			LastAccess: session.accessedAt(),
		}
		if reporter, ok := session.provider.(stateReporter); ok {
			st := reporter.State()
			state.Offset = st.Offset
			state.PrefixSize = st.PrefixSize
			state.Completed = st.Completed
			state.DownloadSpeed = int64(reporter.Speed())
		}
		out = append(out, state)
	}
	return out
}

// InUse reports whether path currently backs a registered stream. Wired
// into the cache evictor so active files survive sweeps.
func (reg *StreamRegistry) InUse(path string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, session := range reg.sessions {
		if reporter, ok := session.provider.(stateReporter); ok {
			if reporter.State().LocalPath == path {
				return true
			}
		}
	}
	return false
}

// BaseURL returns the media server address, empty before the first Register.
func (reg *StreamRegistry) BaseURL() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.baseURL
}

// ensureServerLocked binds the listener and starts serving on first use.
// Caller must hold reg.mu.
func (reg *StreamRegistry) ensureServerLocked() error {
	if reg.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", reg.cfg.ListenAddr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/video/", reg.handleVideo)
	server := &http.Server{
		Handler: corsMiddleware(nil, loggingMiddleware(reg.logger, mux)),
	}

	reg.listener = listener
	reg.server = server
	reg.baseURL = "http://" + listener.Addr().String()
	reg.logger.Info("media server listening", slog.String("addr", listener.Addr().String()))

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			reg.logger.Error("media server stopped", slog.Any("error", err))
		}
	}()

	if reg.cfg.IdleTimeout > 0 {
		reg.janitorOnce.Do(func() { go reg.janitor() })
	}
	return nil
}

// janitor evicts sessions whose last request is older than the idle timeout.
func (reg *StreamRegistry) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-reg.done:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-reg.cfg.IdleTimeout)
		var stale []string
		reg.mu.Lock()
		for token, session := range reg.sessions {
			if session.accessedAt().Before(cutoff) {
				stale = append(stale, token)
			}
		}
		reg.mu.Unlock()

		for _, token := range stale {
			reg.logger.Info("evicting idle stream", slog.String("token", token))
			_ = reg.Unregister(token)
		}
	}
}

// Close shuts down the media server and every registered session.
func (reg *StreamRegistry) Close(ctx context.Context) error {
	reg.mu.Lock()
	if reg.closed {
		reg.mu.Unlock()
		return nil
	}
	reg.closed = true
	close(reg.done)
	sessions := reg.sessions
	reg.sessions = make(map[string]*streamSession)
	server := reg.server
	reg.mu.Unlock()

	metrics.ActiveStreams.Set(0)
	for _, session := range sessions {
		_ = session.provider.Close()
	}
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}
