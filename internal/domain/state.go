package domain

import "time"

// SessionState describes one registered streaming session for status
// endpoints and WebSocket broadcasts.
type SessionState struct {
	Token         string    `json:"token"`
	FileID        FileID    `json:"fileId"`
	Size          int64     `json:"size"`
	MIME          string    `json:"mime"`
	Offset        int64     `json:"offset"`
	PrefixSize    int64     `json:"prefixSize"`
	Completed     bool      `json:"completed"`
	DownloadSpeed int64     `json:"downloadSpeed"`
	LastAccess    time.Time `json:"lastAccess"`
}

// Progress returns the downloaded fraction in [0,1].
func (s SessionState) Progress() float64 {
	if s.Completed {
		return 1
	}
	if s.Size <= 0 {
		return 0
	}
	p := float64(s.PrefixSize) / float64(s.Size)
	if p > 1 {
		return 1
	}
	return p
}
