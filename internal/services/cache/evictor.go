package cache

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mediastream/internal/metrics"
)

const defaultSweepInterval = 30 * time.Second

// Evictor keeps the media cache directory under a byte budget by deleting
// the least recently touched files. Files still backing an active stream
// are never removed. A minimum-free-space floor triggers eviction even
// under budget when the disk itself runs low.
type Evictor struct {
	dir          string
	maxBytes     int64 // 0 = unlimited
	minFreeBytes int64 // 0 = no disk floor
	logger       *slog.Logger

	// inUse reports whether a cached file currently backs a stream.
	inUse func(path string) bool

	mu       sync.Mutex
	sweeping bool
}

type Config struct {
	Dir string
	// MaxBytes caps the total size of the cache directory. Zero disables
	// the budget.
	MaxBytes int64
	// MinFreeBytes forces eviction whenever free space on the cache
	// filesystem drops below this floor. Zero disables the check.
	MinFreeBytes int64
	// InUse reports whether a cached file currently backs a stream.
	InUse func(path string) bool
}

func NewEvictor(cfg Config, logger *slog.Logger) *Evictor {
	if logger == nil {
		logger = slog.Default()
	}
	inUse := cfg.InUse
	if inUse == nil {
		inUse = func(string) bool { return false }
	}
	return &Evictor{
		dir:          cfg.Dir,
		maxBytes:     cfg.MaxBytes,
		minFreeBytes: cfg.MinFreeBytes,
		logger:       logger,
		inUse:        inUse,
	}
}

func (e *Evictor) enabled() bool {
	return e.maxBytes > 0 || e.minFreeBytes > 0
}

// TriggerSweep starts a sweep in the background. Concurrent triggers while
// a sweep is running are dropped rather than queued.
func (e *Evictor) TriggerSweep() {
	if !e.enabled() {
		return
	}
	e.mu.Lock()
	if e.sweeping {
		e.mu.Unlock()
		return
	}
	e.sweeping = true
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			e.sweeping = false
			e.mu.Unlock()
		}()
		e.Sweep()
	}()
}

// Run sweeps periodically until ctx is cancelled. Streams keep the disk
// filling between explicit stops, so the low-space floor needs a clock,
// not only stop events.
func (e *Evictor) Run(ctx context.Context, interval time.Duration) {
	if !e.enabled() {
		return
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.TriggerSweep()
		}
	}
}

type cacheEntry struct {
	path  string
	size  int64
	mtime time.Time
}

// Sweep deletes oldest files until the directory fits the budget and the
// disk floor is honored. It runs synchronously; use TriggerSweep from
// request paths.
func (e *Evictor) Sweep() {
	if !e.enabled() {
		return
	}

	var entries []cacheEntry
	var total int64
	err := filepath.WalkDir(e.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, cacheEntry{path: path, size: info.Size(), mtime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if err != nil {
		e.logger.Warn("cache sweep walk failed", slog.Any("error", err))
		return
	}

	metrics.CacheSweepsTotal.Inc()

	var target int64
	if e.maxBytes > 0 && total > e.maxBytes {
		target = total - e.maxBytes
	}
	if e.minFreeBytes > 0 {
		free, err := diskFreeBytes(e.dir)
		if err != nil {
			e.logger.Warn("disk space check failed",
				slog.String("path", e.dir),
				slog.Any("error", err))
		} else if deficit := e.minFreeBytes - free; deficit > target {
			e.logger.Warn("low disk space, forcing cache eviction",
				slog.Int64("free_bytes", free),
				slog.Int64("min_free_bytes", e.minFreeBytes))
			target = deficit
		}
	}
	if target <= 0 {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].mtime.Before(entries[j].mtime)
	})

	var freed int64
	var removed int
	for _, entry := range entries {
		if freed >= target {
			break
		}
		if e.inUse(entry.path) {
			continue
		}
		if err := os.Remove(entry.path); err != nil {
			e.logger.Warn("cache eviction failed",
				slog.String("path", entry.path),
				slog.Any("error", err))
			continue
		}
		total -= entry.size
		freed += entry.size
		removed++
	}

	if removed > 0 {
		metrics.CacheEvictedBytesTotal.Add(float64(freed))
		e.logger.Info("cache sweep evicted files",
			slog.Int("files", removed),
			slog.Int64("freed_bytes", freed),
			slog.Int64("remaining_bytes", total))
	}
}
