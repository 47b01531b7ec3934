//go:build !linux

package storage

import (
	"os"
	"time"
)

// fileAccessTime has no portable implementation outside Linux; the
// LastAccess fallback chain treats the zero value as "unavailable" and
// falls through to in-memory tracking, then mtime.
func fileAccessTime(info os.FileInfo) time.Time {
	return time.Time{}
}
