package usecase

import (
	"context"
	"errors"

	"mediastream/internal/domain"
)

// Sweeper triggers a cache eviction pass. Stopping a stream is the natural
// moment to reclaim disk.
type Sweeper interface {
	TriggerSweep()
}

type StopPlayback struct {
	Registry Registry
	Sweeper  Sweeper
}

func (uc *StopPlayback) Execute(_ context.Context, token string) error {
	if uc.Registry == nil {
		return errors.New("playback not configured")
	}
	if err := uc.Registry.Unregister(token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return wrapProvider(err)
	}
	if uc.Sweeper != nil {
		uc.Sweeper.TriggerSweep()
	}
	return nil
}
