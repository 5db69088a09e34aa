package ports

import (
	"context"

	"mediastream/internal/domain"
)

// RemoteClient talks to the download agent that owns the actual file
// transfer. It is the only way the streaming side influences download
// order.
type RemoteClient interface {
	// StartDownload asks the agent to (re)start downloading the file from
	// offset. limit of zero means "to the end of the file". High priority
	// requests preempt the sequential background download.
	StartDownload(ctx context.Context, id domain.FileID, offset, limit int64, prio domain.Priority) error

	// CancelDownload stops any active transfer for the file. Already
	// downloaded data stays on disk.
	CancelDownload(ctx context.Context, id domain.FileID) error

	// FileStatus reports the current download state of the file.
	FileStatus(ctx context.Context, id domain.FileID) (domain.DownloadState, error)
}
