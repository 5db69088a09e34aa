package domain

// DownloadState is a snapshot of the remote client's progress on one file.
// Invariant: the contiguous region [Offset, Offset+PrefixSize) is fully
// present and byte-correct at LocalPath; bytes outside it are undefined
// until explicitly fetched. The on-disk file may be pre-allocated or
// sparse, so PrefixSize — not the file size on disk — is authoritative.
type DownloadState struct {
	Offset     int64  `json:"offset"`
	PrefixSize int64  `json:"prefixSize"`
	LocalPath  string `json:"localPath,omitempty"`
	Completed  bool   `json:"completed"`
}

// Available returns the length of the contiguous run of downloaded bytes
// starting at off, given the total file size.
func (s DownloadState) Available(off, size int64) int64 {
	if off < 0 || off >= size {
		return 0
	}
	if s.Completed {
		return size - off
	}
	end := s.Offset + s.PrefixSize
	if off >= s.Offset && off < end {
		return end - off
	}
	return 0
}

type Priority int

const (
	// PriorityNormal is the sequential background prefix fetch.
	PriorityNormal Priority = iota
	// PriorityHigh is an out-of-sequence fetch servicing a seek.
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}
