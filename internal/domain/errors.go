package domain

import "errors"

var ErrNotFound = errors.New("not found")

// ErrUnavailable means the requested bytes are not backed by downloaded data
// and did not become available within the bounded wait.
var ErrUnavailable = errors.New("data unavailable")

// ErrClosed is returned by operations on a closed provider or stream.
var ErrClosed = errors.New("closed")
