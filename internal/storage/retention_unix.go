//go:build linux

package storage

import (
	"os"
	"syscall"
	"time"
)

// fileAccessTime extracts the filesystem-reported atime from a stat
// result. Returns the zero time if the platform's FileInfo.Sys() doesn't
// expose one, which callers treat as "unavailable" in the LastAccess
// fallback chain.
func fileAccessTime(info os.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}
	}
	return time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
}
