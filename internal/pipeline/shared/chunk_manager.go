package shared

import (
	"log/slog"
	"sync"
)

// DefaultChunkSize is the chunk size a stage gets before it ever calls
// RequestChunkSize.
const DefaultChunkSize = 1500

// DefaultMaxChunkSize is the safety ceiling every requested chunk size is
// clamped to.
const DefaultMaxChunkSize = 50000

// stageDependencies is the fixed dependency graph cascades walk: requesting
// a larger chunk for a stage grows the buffer of every stage it depends on,
// since a downstream stage can't consume faster than its upstream feeds it.
var stageDependencies = map[string][]string{
	"source_loading":        {},
	"data_mapping":          {"source_loading"},
	"filtering":             {"source_loading", "data_mapping"},
	"logo_prefetch":         {"source_loading", "data_mapping", "filtering"},
	"program_logo_prefetch": {"source_loading", "data_mapping", "filtering"},
	"channel_numbering":     {"source_loading", "data_mapping", "filtering", "logo_prefetch"},
	"m3u_generation":        {"source_loading", "data_mapping", "filtering", "logo_prefetch", "channel_numbering"},
	"epg_processing":        {"source_loading", "data_mapping", "filtering", "program_logo_prefetch"},
}

// ChunkSizeManager tracks the chunk size each pipeline stage has requested
// and cascades buffer growth to every stage it depends on, so a stage that
// needs large batches doesn't starve behind an upstream buffer sized for
// small ones.
type ChunkSizeManager struct {
	mu sync.Mutex

	defaultChunkSize int
	maxChunkSize     int
	minBufferSize    int

	maxRequested map[string]int
	bufferSizes  map[string]int

	logger *slog.Logger
}

// NewChunkSizeManager creates a manager with the given default and maximum
// chunk sizes. The minimum buffer size is the default chunk size, floored at
// 100 items.
func NewChunkSizeManager(defaultChunkSize, maxChunkSize int) *ChunkSizeManager {
	if defaultChunkSize <= 0 {
		defaultChunkSize = DefaultChunkSize
	}
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	minBuffer := defaultChunkSize
	if minBuffer < 100 {
		minBuffer = 100
	}
	return &ChunkSizeManager{
		defaultChunkSize: defaultChunkSize,
		maxChunkSize:     maxChunkSize,
		minBufferSize:    minBuffer,
		maxRequested:     make(map[string]int),
		bufferSizes:      make(map[string]int),
	}
}

// NewDefaultChunkSizeManager creates a manager using DefaultChunkSize and
// DefaultMaxChunkSize.
func NewDefaultChunkSizeManager() *ChunkSizeManager {
	return NewChunkSizeManager(DefaultChunkSize, DefaultMaxChunkSize)
}

// WithLogger attaches a logger used to warn about out-of-range requests.
func (m *ChunkSizeManager) WithLogger(logger *slog.Logger) *ChunkSizeManager {
	m.logger = logger
	return m
}

func clamp(size, min, max int) int {
	if size < min {
		return min
	}
	if size > max {
		return max
	}
	return size
}

// RequestChunkSize records stage's request for a chunk of the given size,
// clamps it to [1, maxChunkSize], and — if it raises the stage's running
// maximum — grows the stage's buffer to at least 2x the new chunk size and
// cascades that buffer size to every stage it depends on. It returns the
// clamped size actually granted.
func (m *ChunkSizeManager) RequestChunkSize(stage string, requestedSize int) int {
	clamped := clamp(requestedSize, 1, m.maxChunkSize)
	if clamped != requestedSize && m.logger != nil {
		m.logger.Warn("chunk size clamped",
			slog.String("stage", stage),
			slog.Int("requested", requestedSize),
			slog.Int("clamped", clamped))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	currentMax, ok := m.maxRequested[stage]
	if !ok {
		currentMax = m.defaultChunkSize
	}
	newMax := currentMax
	if clamped > newMax {
		newMax = clamped
	}
	if newMax <= currentMax {
		return clamped
	}

	m.maxRequested[stage] = newMax
	newBufferSize := newMax * 2
	if newBufferSize < m.minBufferSize {
		newBufferSize = m.minBufferSize
	}
	m.bufferSizes[stage] = newBufferSize

	for _, upstream := range stageDependencies[stage] {
		upstreamBuffer, ok := m.bufferSizes[upstream]
		if !ok {
			upstreamBuffer = m.minBufferSize
		}
		if newBufferSize > upstreamBuffer {
			m.bufferSizes[upstream] = newBufferSize
			m.maxRequested[upstream] = newMax
		}
	}

	return clamped
}

// ChunkSize returns the largest chunk size requested for stage so far, or
// the manager's default if none has been requested.
func (m *ChunkSizeManager) ChunkSize(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size, ok := m.maxRequested[stage]; ok {
		return size
	}
	return m.defaultChunkSize
}

// BufferSize returns the current buffer allocation for stage, or the
// minimum buffer size if none has been set.
func (m *ChunkSizeManager) BufferSize(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size, ok := m.bufferSizes[stage]; ok {
		return size
	}
	return m.minBufferSize
}

// SetBufferSize directly sets a stage's buffer size, clamped to
// [minBufferSize, 4*maxChunkSize]. Unlike RequestChunkSize this does not
// cascade to upstream stages.
func (m *ChunkSizeManager) SetBufferSize(stage string, bufferSize int) {
	clamped := clamp(bufferSize, m.minBufferSize, m.maxChunkSize*4)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bufferSizes[stage] = clamped
}

// ChunkSizeStats is a point-in-time snapshot of chunk/buffer allocation
// across every stage that has made a request.
type ChunkSizeStats struct {
	TotalStages       int
	MaxChunkSize      int
	TotalBufferMemory int
	Stages            map[string]StageChunkStats
}

// StageChunkStats is the chunk and buffer size for a single stage.
type StageChunkStats struct {
	ChunkSize  int
	BufferSize int
}

// Stats returns a snapshot of chunk and buffer sizes for every stage that
// has called RequestChunkSize.
func (m *ChunkSizeManager) Stats() ChunkSizeStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ChunkSizeStats{
		TotalStages:  len(m.maxRequested),
		MaxChunkSize: m.defaultChunkSize,
		Stages:       make(map[string]StageChunkStats, len(m.maxRequested)),
	}

	for stage, chunkSize := range m.maxRequested {
		if chunkSize > stats.MaxChunkSize {
			stats.MaxChunkSize = chunkSize
		}
		bufferSize, ok := m.bufferSizes[stage]
		if !ok {
			bufferSize = m.minBufferSize
		}
		stats.TotalBufferMemory += bufferSize
		stats.Stages[stage] = StageChunkStats{ChunkSize: chunkSize, BufferSize: bufferSize}
	}

	return stats
}

// Reset clears every recorded chunk and buffer size, returning the manager
// to its defaults.
func (m *ChunkSizeManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxRequested = make(map[string]int)
	m.bufferSizes = make(map[string]int)
}
