//go:build !linux && !darwin

package cache

import "errors"

// diskFreeBytes is a stub for platforms without Statfs. The production
// Docker image runs on Linux where the real implementation is used.
func diskFreeBytes(path string) (int64, error) {
	return 0, errors.New("disk space check not supported on this platform")
}
