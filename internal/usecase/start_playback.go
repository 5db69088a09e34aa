package usecase

import (
	"context"
	"errors"
	"time"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
)

const defaultBufferTimeout = 30 * time.Second

// StreamProvider is what StartPlayback needs from a data provider beyond
// the plain read contract: the startup gate and the last known download
// state for the direct-play decision.
type StreamProvider interface {
	ports.DataProvider
	WaitForInitialBuffer(ctx context.Context) error
	State() domain.DownloadState
}

// Registry hands out local streaming URLs for registered providers.
type Registry interface {
	Register(file domain.MediaFile, provider ports.DataProvider) (token, url string, err error)
	Unregister(token string) error
}

type StartPlaybackInput struct {
	File domain.MediaFile
	// AllowDirect lets playback bypass the local HTTP server when the
	// file is already fully on disk.
	AllowDirect bool
}

type StartPlaybackResult struct {
	Token string
	URL   string

	// Direct playback: the player opens LocalPath itself, no session is
	// registered and Token/URL are empty.
	Direct    bool
	LocalPath string
}

type StartPlayback struct {
	Registry      Registry
	NewProvider   func(file domain.MediaFile) (StreamProvider, error)
	BufferTimeout time.Duration
}

func (uc *StartPlayback) Execute(ctx context.Context, in StartPlaybackInput) (StartPlaybackResult, error) {
	if uc.Registry == nil || uc.NewProvider == nil {
		return StartPlaybackResult{}, errors.New("playback not configured")
	}
	if err := in.File.Validate(); err != nil {
		return StartPlaybackResult{}, err
	}

	provider, err := uc.NewProvider(in.File)
	if err != nil {
		return StartPlaybackResult{}, wrapProvider(err)
	}

	timeout := uc.BufferTimeout
	if timeout <= 0 {
		timeout = defaultBufferTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	err = provider.WaitForInitialBuffer(waitCtx)
	cancel()
	if err != nil {
		_ = provider.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return StartPlaybackResult{}, ErrBufferTimeout
		}
		return StartPlaybackResult{}, wrapProvider(err)
	}

	// A fully downloaded file needs no streaming session at all.
	if in.AllowDirect {
		if st := provider.State(); st.Completed && st.LocalPath != "" {
			_ = provider.Close()
			return StartPlaybackResult{Direct: true, LocalPath: st.LocalPath}, nil
		}
	}

	token, url, err := uc.Registry.Register(in.File, provider)
	if err != nil {
		_ = provider.Close()
		return StartPlaybackResult{}, wrapProvider(err)
	}
	return StartPlaybackResult{Token: token, URL: url}, nil
}
