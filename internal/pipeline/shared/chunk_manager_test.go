package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkSizeManager_RequestAndCascade(t *testing.T) {
	m := NewChunkSizeManager(100, 10000)

	granted := m.RequestChunkSize("filtering", 2000)
	assert.Equal(t, 2000, granted)

	assert.GreaterOrEqual(t, m.BufferSize("source_loading"), 4000)
	assert.GreaterOrEqual(t, m.BufferSize("data_mapping"), 4000)

	stats := m.Stats()
	assert.GreaterOrEqual(t, stats.MaxChunkSize, 2000)
	assert.Positive(t, stats.TotalBufferMemory)
}

func TestChunkSizeManager_Clamping(t *testing.T) {
	m := NewChunkSizeManager(100, 1000)

	assert.Equal(t, 1000, m.RequestChunkSize("filtering", 5000))
	assert.Equal(t, 1, m.RequestChunkSize("filtering", 0))
}

func TestChunkSizeManager_DoesNotShrinkOnSmallerRequest(t *testing.T) {
	m := NewChunkSizeManager(100, 10000)

	m.RequestChunkSize("m3u_generation", 3000)
	granted := m.RequestChunkSize("m3u_generation", 500)

	assert.Equal(t, 500, granted)
	assert.Equal(t, 3000, m.ChunkSize("m3u_generation"))
}

func TestChunkSizeManager_CascadeOnlyGrowsUpstream(t *testing.T) {
	m := NewChunkSizeManager(100, 10000)

	m.SetBufferSize("source_loading", 9000)
	// Small enough that the cascaded buffer (400) is below source_loading's
	// existing 9000, so it must not be shrunk.
	m.RequestChunkSize("filtering", 200)

	assert.Equal(t, 9000, m.BufferSize("source_loading"))
}

func TestChunkSizeManager_DefaultsBeforeAnyRequest(t *testing.T) {
	m := NewDefaultChunkSizeManager()

	assert.Equal(t, DefaultChunkSize, m.ChunkSize("unused_stage"))
	assert.Equal(t, DefaultChunkSize, m.BufferSize("unused_stage"))

	stats := m.Stats()
	assert.Equal(t, 0, stats.TotalStages)
}

func TestChunkSizeManager_Reset(t *testing.T) {
	m := NewChunkSizeManager(100, 10000)
	m.RequestChunkSize("filtering", 2000)

	m.Reset()

	assert.Equal(t, 100, m.ChunkSize("filtering"))
	assert.Equal(t, 0, m.Stats().TotalStages)
}
