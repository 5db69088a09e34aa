package domain

import "errors"

type FileID string

// MediaFile identifies one remote file. The total size is known up front
// from the platform's metadata. Immutable once created.
type MediaFile struct {
	ID   FileID `json:"id"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
}

// Validate checks domain invariants for MediaFile.
func (f MediaFile) Validate() error {
	if f.ID == "" {
		return errors.New("file id is required")
	}
	if f.Size <= 0 {
		return errors.New("size must be positive")
	}
	return nil
}

type Range struct {
	Off    int64
	Length int64
}

// End returns the first offset past the range.
func (r Range) End() int64 { return r.Off + r.Length }

// Contains reports whether [off, off+length) lies entirely inside r.
func (r Range) Contains(off, length int64) bool {
	return off >= r.Off && off+length <= r.End()
}
