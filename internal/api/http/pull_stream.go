package apihttp

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
)

const (
	pullStreamChunk   = 256 * 1024
	defaultRetryDelay = 50 * time.Millisecond
	defaultMaxWait    = 30 * time.Second
)

// pullStream adapts a ports.DataProvider into an io.ReadCloser bounded to
// one byte range. Reads past the downloaded prefix retry with a short sleep
// instead of surfacing transient gaps to the HTTP copy loop; a read that
// stays starved beyond maxWait ends the body early with EOF so the player
// reconnects with a fresh range.
type pullStream struct {
	provider  ports.DataProvider
	offset    int64
	remaining int64

	retryDelay time.Duration
	maxWait    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func newPullStream(provider ports.DataProvider, off, length int64, retryDelay, maxWait time.Duration) *pullStream {
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pullStream{
		provider:   provider,
		offset:     off,
		remaining:  length,
		retryDelay: retryDelay,
		maxWait:    maxWait,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (ps *pullStream) Read(p []byte) (int, error) {
	if ps.remaining <= 0 {
		return 0, io.EOF
	}

	want := int64(len(p))
	if want > ps.remaining {
		want = ps.remaining
	}
	if want > pullStreamChunk {
		want = pullStreamChunk
	}

	deadline := time.Now().Add(ps.maxWait)
	for {
		data, err := ps.provider.ReadBytes(ps.ctx, ps.offset, want)
		if err == nil {
			n := copy(p, data)
			ps.offset += int64(n)
			ps.remaining -= int64(n)
			return n, nil
		}

		switch {
		case errors.Is(err, io.EOF):
			ps.remaining = 0
			return 0, io.EOF
		case errors.Is(err, domain.ErrUnavailable):
			// Transient gap: the provider's own fetch timeout already
			// bounds each attempt, so only retry while inside maxWait.
			if time.Now().After(deadline) {
				return 0, io.EOF
			}
			select {
			case <-time.After(ps.retryDelay):
			case <-ps.ctx.Done():
				return 0, io.EOF
			}
		default:
			// Closed provider, cancelled stream or a real read failure:
			// end the body, the client decides whether to reconnect.
			return 0, io.EOF
		}
	}
}

// Close unblocks any in-flight provider read. The provider itself stays
// open; it belongs to the session, not to one request.
func (ps *pullStream) Close() error {
	ps.closeOnce.Do(ps.cancel)
	return nil
}

var _ io.ReadCloser = (*pullStream)(nil)
