package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
	"mediastream/internal/metrics"
)

const (
	defaultPollInterval  = 50 * time.Millisecond
	defaultInitialBuffer = 2 << 20
	defaultSeekWindow    = 4 << 20
	defaultFetchTimeout  = 25 * time.Second
)

type Config struct {
	PollInterval       time.Duration
	InitialBufferBytes int64
	SeekWindowBytes    int64
	FetchTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.InitialBufferBytes <= 0 {
		c.InitialBufferBytes = defaultInitialBuffer
	}
	if c.SeekWindowBytes <= 0 {
		c.SeekWindowBytes = defaultSeekWindow
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	return c
}

// pendingFetch tracks one in-flight high-priority range request. ready is
// closed by the poll loop once the window is fully inside the downloaded
// prefix, waking every read that piggybacked on this fetch.
type pendingFetch struct {
	win    domain.Range
	ready  chan struct{}
	issued time.Time
}

// Provider serves byte ranges of a file that a remote download agent is
// still pulling in. Reads inside the downloaded prefix hit the local file
// directly; reads past it redirect the agent to the requested offset and
// block until the data lands.
type Provider struct {
	file   domain.MediaFile
	remote ports.RemoteClient
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   domain.DownloadState
	pending map[int64]*pendingFetch // keyed by window offset
	speed   float64                 // bytes/sec, EMA over poll samples
	closed  bool

	fileMu    sync.Mutex
	local     *os.File
	localPath string

	done      chan struct{}
	closeOnce sync.Once

	lastPoll   time.Time
	lastPrefix int64
}

func NewProvider(file domain.MediaFile, remote ports.RemoteClient, cfg Config, logger *slog.Logger) (*Provider, error) {
	if err := file.Validate(); err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		file:    file,
		remote:  remote,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(slog.String("file_id", string(file.ID))),
		pending: make(map[int64]*pendingFetch),
		done:    make(chan struct{}),
	}

	// Kick the sequential download from the start of the file. A failure
	// here is not fatal: the poll loop retries on every status error.
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.FetchTimeout)
	defer cancel()
	if err := p.remote.StartDownload(ctx, file.ID, 0, 0, domain.PriorityNormal); err != nil {
		p.logger.Warn("initial download request failed", slog.Any("error", err))
	}

	go p.pollLoop()
	return p, nil
}

// pollLoop refreshes the download state from the agent and resolves
// pending fetches whose windows have been covered.
func (p *Provider) pollLoop() {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var lastErr time.Time
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PollInterval*10)
		st, err := p.remote.FileStatus(ctx, p.file.ID)
		cancel()
		if err != nil {
			// Throttle the log: at a 50ms poll a dead agent would flood it.
			if time.Since(lastErr) > 5*time.Second {
				p.logger.Warn("file status poll failed", slog.Any("error", err))
				lastErr = time.Now()
			}
			continue
		}

		p.mu.Lock()
		p.state = st
		p.updateSpeedLocked(st)
		p.resolvePendingLocked(st)
		p.mu.Unlock()
	}
}

// updateSpeedLocked derives a smoothed download speed from prefix growth
// between polls. Caller must hold p.mu.
func (p *Provider) updateSpeedLocked(st domain.DownloadState) {
	now := time.Now()
	if !p.lastPoll.IsZero() {
		elapsed := now.Sub(p.lastPoll).Seconds()
		grown := st.PrefixSize - p.lastPrefix
		if elapsed > 0 && grown >= 0 {
			instant := float64(grown) / elapsed
			if p.speed <= 0 {
				p.speed = instant
			} else {
				p.speed = 0.7*p.speed + 0.3*instant
			}
		}
	}
	p.lastPoll = now
	p.lastPrefix = st.PrefixSize
}

// resolvePendingLocked closes the ready channel of every pending fetch
// whose window is now readable. Caller must hold p.mu.
func (p *Provider) resolvePendingLocked(st domain.DownloadState) {
	for off, pf := range p.pending {
		if st.Available(pf.win.Off, p.file.Size) >= pf.win.Length {
			close(pf.ready)
			delete(p.pending, off)
		}
	}
}

// AvailableLength reports how many contiguous bytes starting at off can be
// served without waiting on the agent.
func (p *Provider) AvailableLength(off int64) int64 {
	if off < 0 || off >= p.file.Size {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Available(off, p.file.Size)
}

// ReadBytes returns exactly length bytes at off, waiting for the agent to
// deliver missing data. Reads past the end of the downloaded prefix issue
// a high-priority fetch so the agent jumps to the requested offset.
func (p *Provider) ReadBytes(ctx context.Context, off, length int64) ([]byte, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("negative read: off=%d length=%d", off, length)
	}
	if off >= p.file.Size {
		return nil, io.EOF
	}
	if remaining := p.file.Size - off; length > remaining {
		length = remaining
	}
	if length == 0 {
		return []byte{}, nil
	}

	deadline := time.NewTimer(p.cfg.FetchTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, domain.ErrClosed
		}
		st := p.state
		if st.Available(off, p.file.Size) >= length {
			p.mu.Unlock()
			return p.readLocal(st.LocalPath, off, length)
		}
		ready := p.ensureFetchLocked(off, length)
		p.mu.Unlock()

		select {
		case <-ready:
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.done:
			return nil, domain.ErrClosed
		case <-deadline.C:
			metrics.FetchTimeoutsTotal.Inc()
			return nil, fmt.Errorf("range [%d,%d): %w", off, off+length, domain.ErrUnavailable)
		}
	}
}

// ensureFetchLocked registers a high-priority fetch covering [off,off+length)
// unless a pending window already covers it. Concurrent reads into the same
// region share one agent request. Caller must hold p.mu.
func (p *Provider) ensureFetchLocked(off, length int64) <-chan struct{} {
	for key, pf := range p.pending {
		if !pf.win.Contains(off, length) {
			continue
		}
		// A window that has not landed within FetchTimeout is stale:
		// the agent request was likely lost. Drop it and issue a fresh
		// one instead of parking every later seek on a dead channel.
		if time.Since(pf.issued) >= p.cfg.FetchTimeout {
			delete(p.pending, key)
			close(pf.ready)
			continue
		}
		return pf.ready
	}

	winLen := p.cfg.SeekWindowBytes
	if winLen < length {
		winLen = length
	}
	if off+winLen > p.file.Size {
		winLen = p.file.Size - off
	}
	pf := &pendingFetch{
		win:    domain.Range{Off: off, Length: winLen},
		ready:  make(chan struct{}),
		issued: time.Now(),
	}
	p.pending[off] = pf

	metrics.PriorityFetchesTotal.Inc()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.FetchTimeout)
		defer cancel()
		if err := p.remote.StartDownload(ctx, p.file.ID, pf.win.Off, pf.win.Length, domain.PriorityHigh); err != nil {
			p.logger.Warn("priority fetch request failed",
				slog.Int64("offset", pf.win.Off),
				slog.Int64("length", pf.win.Length),
				slog.Any("error", err))
			p.dropPendingFetch(off, pf)
		}
	}()
	return pf.ready
}

// dropPendingFetch removes a fetch whose agent request failed so the next
// read into the window issues a new one. Waiters are woken to retry.
func (p *Provider) dropPendingFetch(key int64, pf *pendingFetch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending[key] == pf {
		delete(p.pending, key)
		close(pf.ready)
	}
}

// readLocal reads from the partially downloaded file on disk. The handle is
// opened lazily and reopened if the agent moves the file.
func (p *Provider) readLocal(path string, off, length int64) ([]byte, error) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	if p.local == nil || p.localPath != path {
		if p.local != nil {
			p.local.Close()
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open local file: %w", err)
		}
		p.local = f
		p.localPath = path
	}

	buf := make([]byte, length)
	if _, err := p.local.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read local file at %d: %w", off, err)
	}
	return buf, nil
}

// WaitForInitialBuffer blocks until enough of the file head is on disk for
// playback to start without an immediate stall.
func (p *Provider) WaitForInitialBuffer(ctx context.Context) error {
	threshold := p.cfg.InitialBufferBytes
	if threshold > p.file.Size {
		threshold = p.file.Size
	}

	started := time.Now()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		st := p.state
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return domain.ErrClosed
		}
		if st.Completed || (st.Offset == 0 && st.PrefixSize >= threshold) {
			metrics.InitialBufferWaitSeconds.Observe(time.Since(started).Seconds())
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return domain.ErrClosed
		}
	}
}

// State returns the last polled download state.
func (p *Provider) State() domain.DownloadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Speed returns the smoothed download speed in bytes per second.
func (p *Provider) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// File returns the media file this provider serves.
func (p *Provider) File() domain.MediaFile {
	return p.file
}

// Close stops the poll loop, tells the agent to stop the transfer and
// unblocks every waiting read.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.remote.CancelDownload(ctx, p.file.ID); err != nil {
			p.logger.Debug("cancel download failed", slog.Any("error", err))
		}

		p.fileMu.Lock()
		if p.local != nil {
			p.local.Close()
			p.local = nil
		}
		p.fileMu.Unlock()
	})
	return nil
}

var _ ports.DataProvider = (*Provider)(nil)
