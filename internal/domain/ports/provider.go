package ports

import "context"

// DataProvider serves byte ranges of a media file whose backing data may
// still be arriving. ReadBytes blocks until the requested range is fully
// available or the context is done.
type DataProvider interface {
	// ReadBytes returns exactly length bytes starting at off. It never
	// returns a short read: callers either get the full slice or an error.
	// Returns io.EOF when off is at or past the end of the file.
	ReadBytes(ctx context.Context, off, length int64) ([]byte, error)

	// AvailableLength reports how many contiguous bytes starting at off
	// can be read without waiting. Zero means a read at off would block.
	AvailableLength(off int64) int64

	Close() error
}
