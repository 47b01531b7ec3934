package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimeMatch selects which file timestamp a RetentionPolicy evaluates
// against when deciding whether a file is eligible for cleanup.
type TimeMatch int

const (
	// TimeMatchLastAccess prefers filesystem atime, falling back to
	// in-memory access tracking, then to mtime.
	TimeMatchLastAccess TimeMatch = iota
	// TimeMatchModified uses mtime.
	TimeMatchModified
	// TimeMatchCreated uses the file's creation time, where the platform
	// exposes one (birth time is unavailable on some filesystems, in
	// which case mtime is used as a stand-in).
	TimeMatchCreated
)

// RetentionPolicy controls automatic cleanup of files within a sandbox
// category: how long to keep them and which timestamp decides.
type RetentionPolicy struct {
	// Duration is how long a file is kept before it becomes eligible for
	// cleanup.
	Duration time.Duration
	// TimeMatch selects the timestamp cleanup decisions are based on.
	TimeMatch TimeMatch
	// Enabled turns cleanup on or off without discarding the rest of the
	// policy.
	Enabled bool
}

// DefaultRetentionPolicy keeps files for 24 hours based on last access.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		Duration:  24 * time.Hour,
		TimeMatch: TimeMatchLastAccess,
		Enabled:   true,
	}
}

// DisabledRetentionPolicy never cleans up.
func DisabledRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{Enabled: false}
}

// RecommendedCleanupInterval picks how often to sweep for a given
// retention duration: shorter retention windows are checked more often so
// the worst-case drift past the retention deadline stays proportionate.
func RecommendedCleanupInterval(retention time.Duration) time.Duration {
	switch {
	case retention <= time.Hour:
		return time.Minute
	case retention <= 24*time.Hour:
		return 10 * time.Minute
	case retention <= 7*24*time.Hour:
		return time.Hour
	case retention <= 30*24*time.Hour:
		return 4 * time.Hour
	default:
		return 12 * time.Hour
	}
}

// shouldCleanup reports whether a file with the given timestamps is past
// the policy's retention window. filesystemAccess is the OS-reported
// access time if available (zero value if unknown); inMemoryAccess is the
// sandbox's own tracked last-touch time (zero value if never tracked).
func (p RetentionPolicy) shouldCleanup(now time.Time, filesystemAccess, inMemoryAccess, modified, created time.Time) bool {
	if !p.Enabled {
		return false
	}

	cutoff := now.Add(-p.Duration)

	var timestamp time.Time
	switch p.TimeMatch {
	case TimeMatchModified:
		timestamp = modified
	case TimeMatchCreated:
		if created.IsZero() {
			timestamp = modified
		} else {
			timestamp = created
		}
	default: // TimeMatchLastAccess
		switch {
		case !filesystemAccess.IsZero():
			timestamp = filesystemAccess
		case !inMemoryAccess.IsZero():
			timestamp = inMemoryAccess
		default:
			timestamp = modified
		}
	}

	return timestamp.Before(cutoff)
}

// accessTracker records the last time a sandbox-relative path was touched
// through this process, used as the middle fallback in the LastAccess
// chain when the filesystem's atime is unreliable (e.g. a `noatime` mount
// reports the epoch).
type accessTracker struct {
	mu      sync.Mutex
	touched map[string]time.Time
}

func newAccessTracker() *accessTracker {
	return &accessTracker{touched: make(map[string]time.Time)}
}

func (a *accessTracker) touch(relativePath string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touched[relativePath] = at
}

func (a *accessTracker) get(relativePath string) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.touched[relativePath]
}

func (a *accessTracker) forget(relativePath string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.touched, relativePath)
}

// CategoryPolicy pairs a sandbox subdirectory with the retention policy
// and cleanup cadence that apply to everything stored under it.
type CategoryPolicy struct {
	// Subdirectory is the category's storage directory, relative to the
	// sandbox base directory.
	Subdirectory string
	// Retention governs when files in this category are eligible for
	// cleanup.
	Retention RetentionPolicy
	// Interval overrides RecommendedCleanupInterval(Retention.Duration)
	// when non-zero.
	Interval time.Duration
}

func (c CategoryPolicy) cleanupInterval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return RecommendedCleanupInterval(c.Retention.Duration)
}

// Touch records relativePath as freshly accessed for LastAccess-based
// retention decisions. Callers that read or serve a sandboxed file should
// call this so cleanup doesn't reclaim files the filesystem's own atime
// tracking misses (common with `noatime` mounts or on platforms where Go
// doesn't surface atime at all).
func (s *Sandbox) Touch(relativePath string) {
	s.accessOnce.Do(func() { s.access = newAccessTracker() })
	s.access.touch(filepath.Clean(relativePath), time.Now())
}

// StartCategoryCleanup launches a background goroutine that periodically
// sweeps subdirectory for files past policy's retention window, removing
// them. It stops when ctx is cancelled. The returned channel is closed
// once the goroutine has exited, so callers can wait for it during
// shutdown.
func (s *Sandbox) StartCategoryCleanup(ctx context.Context, policy CategoryPolicy, logger *slog.Logger) <-chan struct{} {
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})

	if !policy.Retention.Enabled {
		close(done)
		return done
	}

	interval := policy.cleanupInterval()
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.sweepCategory(policy)
				if err != nil {
					logger.Error("category cleanup sweep failed",
						slog.String("subdirectory", policy.Subdirectory),
						slog.Any("error", err))
					continue
				}
				if removed > 0 {
					logger.Info("category cleanup removed files",
						slog.String("subdirectory", policy.Subdirectory),
						slog.Int("removed", removed))
				}
			}
		}
	}()

	return done
}

// sweepCategory removes every file under policy.Subdirectory whose
// effective timestamp is past the retention window. It returns the number
// of files removed.
func (s *Sandbox) sweepCategory(policy CategoryPolicy) (int, error) {
	root, err := s.ResolvePath(policy.Subdirectory)
	if err != nil {
		return 0, err
	}

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return 0, nil
	}

	now := time.Now()
	removed := 0

	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(s.baseDir, path)
		if relErr != nil {
			relPath = path
		}

		fsAccess := fileAccessTime(info)
		var inMemory time.Time
		if s.access != nil {
			inMemory = s.access.get(filepath.Clean(relPath))
		}

		if policy.Retention.shouldCleanup(now, fsAccess, inMemory, info.ModTime(), time.Time{}) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing %s: %w", relPath, err)
			}
			if s.access != nil {
				s.access.forget(filepath.Clean(relPath))
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("walking %s: %w", policy.Subdirectory, err)
	}

	return removed, nil
}

// FileTypeConfig controls which MIME types ValidateFileType accepts.
// A nil or empty Allowed set allows every type DetectContentType or a
// custom matcher resolves to.
type FileTypeConfig struct {
	Allowed map[string]struct{}
	// CustomMatchers are tried, in order, before falling back to
	// net/http.DetectContentType's magic-byte sniffing. The first one to
	// return a non-empty MIME type wins.
	CustomMatchers []FileTypeMatcher
}

// FileTypeMatcher inspects the first bytes of a file and reports the MIME
// type it recognizes, or "" if it doesn't recognize the content.
type FileTypeMatcher func(header []byte) string

// AllowMimeTypes returns a FileTypeConfig restricted to the given MIME
// types, preserving any custom matchers already set.
func (c FileTypeConfig) AllowMimeTypes(mimeTypes ...string) FileTypeConfig {
	allowed := make(map[string]struct{}, len(mimeTypes))
	for _, mt := range mimeTypes {
		allowed[mt] = struct{}{}
	}
	c.Allowed = allowed
	return c
}

// WithCustomMatcher appends a matcher tried before magic-byte sniffing.
func (c FileTypeConfig) WithCustomMatcher(m FileTypeMatcher) FileTypeConfig {
	c.CustomMatchers = append(c.CustomMatchers, m)
	return c
}

// M3UMatcher recognizes the `#EXTM3U` header M3U playlists start with,
// the way a container-sniffing library would register a custom matcher
// for a format magic bytes alone can't identify.
func M3UMatcher(header []byte) string {
	const magic = "#EXTM3U"
	if len(header) >= len(magic) && string(header[:len(magic)]) == magic {
		return "application/vnd.apple.mpegurl"
	}
	return ""
}

// DetectedFileType is the result of a successful ValidateFileType call.
type DetectedFileType struct {
	MIMEType  string
	Extension string
}

// ErrUnsupportedFileType is returned by ValidateFileType when the
// detected MIME type isn't in the configured allowlist.
type ErrUnsupportedFileType struct {
	Detected string
}

func (e *ErrUnsupportedFileType) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Detected)
}

// ValidateFileType sniffs relativePath's content by magic bytes (custom
// matchers first, then net/http.DetectContentType) and checks the result
// against cfg's allowlist. An empty cfg.Allowed permits anything that was
// successfully sniffed.
func (s *Sandbox) ValidateFileType(relativePath string, cfg FileTypeConfig) (*DetectedFileType, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}
	return DetectFileType(path, cfg)
}

// DetectFileType sniffs an absolute path's content by magic bytes (custom
// matchers first, then net/http.DetectContentType) and checks the result
// against cfg's allowlist. An empty cfg.Allowed permits anything that was
// successfully sniffed. Unlike Sandbox.ValidateFileType, this does not
// require the path to live inside any sandbox, for callers validating
// files still in a staging location (e.g. before they're published into
// one).
func DetectFileType(absPath string, cfg FileTypeConfig) (*DetectedFileType, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("opening file for type detection: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	buf = buf[:n]

	mimeType := ""
	for _, matcher := range cfg.CustomMatchers {
		if detected := matcher(buf); detected != "" {
			mimeType = detected
			break
		}
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(buf)
	}

	if len(cfg.Allowed) > 0 {
		if _, ok := cfg.Allowed[mimeType]; !ok {
			return nil, &ErrUnsupportedFileType{Detected: mimeType}
		}
	}

	return &DetectedFileType{
		MIMEType:  mimeType,
		Extension: filepath.Ext(absPath),
	}, nil
}
