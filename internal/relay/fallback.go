// Package relay provides the runtime connection-limiting and error-fallback
// machinery that sits between a proxy's stream sources and its clients.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FallbackFrameRate is the fixed cadence at which the fallback generator
// writes placeholder transport-stream chunks into the cyclic buffer.
const FallbackFrameRate = 25

// mpegtsPacketSize is the fixed size of an MPEG-TS packet; chunks are built
// from whole packets so downstream demuxers never see a torn packet.
const mpegtsPacketSize = 188

// mpegtsSyncByte starts every MPEG-TS packet.
const mpegtsSyncByte = 0x47

// mpegtsNullPID is the reserved PID for null packets; players and demuxers
// discard them instead of treating them as a content discontinuity.
const mpegtsNullPID = 0x1FFF

// packetsPerChunk sets each written chunk to roughly 1316 bytes, a
// conventional MPEG-TS-over-UDP payload size.
const packetsPerChunk = 7

// ErrFallbackAlreadyRunning is returned by Start when a fallback task for
// this generator is already active.
var ErrFallbackAlreadyRunning = errors.New("relay: fallback generator already running")

// FallbackGenerator writes a placeholder transport-stream feed into a shared
// CyclicBuffer at a fixed frame rate while an upstream source is Failed or
// Fallback. Clients keep reading from the same cyclic buffer the live
// stream writes to, so the switch between live and fallback content is
// invisible at the HTTP body boundary. When the source recovers, Stop
// cancels the task and live bytes resume.
type FallbackGenerator struct {
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool

	chunksWritten uint64
	startedAt     time.Time
}

// NewFallbackGenerator creates a generator that logs through logger, or
// slog.Default() if logger is nil.
func NewFallbackGenerator(logger *slog.Logger) *FallbackGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackGenerator{logger: logger}
}

// Start launches the fallback task, writing placeholder chunks into buf at
// FallbackFrameRate, until ctx is cancelled or Stop is called. It returns
// ErrFallbackAlreadyRunning if a task is already active on this generator.
func (f *FallbackGenerator) Start(ctx context.Context, buf *CyclicBuffer) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return ErrFallbackAlreadyRunning
	}
	taskCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.running = true
	f.startedAt = time.Now()
	f.chunksWritten = 0
	f.mu.Unlock()

	go f.run(taskCtx, buf)
	return nil
}

// Stop cancels the running fallback task, if any; safe to call when no task
// is running.
func (f *FallbackGenerator) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// IsRunning reports whether a fallback task is currently active.
func (f *FallbackGenerator) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// ChunksWritten returns the number of placeholder chunks written by the most
// recent (or current) run.
func (f *FallbackGenerator) ChunksWritten() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunksWritten
}

func (f *FallbackGenerator) run(ctx context.Context, buf *CyclicBuffer) {
	defer func() {
		f.mu.Lock()
		f.running = false
		f.cancel = nil
		f.mu.Unlock()
	}()

	limiter := rate.NewLimiter(rate.Limit(FallbackFrameRate), 1)
	var continuity uint16

	f.logger.InfoContext(ctx, "fallback generator started", slog.Int("frame_rate", FallbackFrameRate))

	for {
		if err := limiter.Wait(ctx); err != nil {
			f.logger.InfoContext(context.Background(), "fallback generator stopped",
				slog.Uint64("chunks_written", f.ChunksWritten()))
			return
		}

		var chunk []byte
		chunk, continuity = placeholderChunk(continuity)

		if err := buf.WriteChunk(chunk); err != nil {
			if errors.Is(err, ErrBufferClosed) {
				f.logger.InfoContext(context.Background(), "fallback generator: buffer closed, stopping")
				return
			}
			f.logger.WarnContext(ctx, "fallback generator: write chunk failed", slog.String("error", err.Error()))
			continue
		}

		f.mu.Lock()
		f.chunksWritten++
		f.mu.Unlock()
	}
}

// placeholderChunk builds a minimal, synthetic MPEG-TS chunk of null packets:
// no real audio/video payload, just structurally valid transport-stream
// packets (sync byte, null PID, continuity counter) so clients keep reading
// a continuous body while the upstream source is down. counter is the
// rolling continuity-counter seed; the returned value is the next seed so
// successive chunks carry an incrementing counter.
func placeholderChunk(counter uint16) ([]byte, uint16) {
	chunk := make([]byte, packetsPerChunk*mpegtsPacketSize)
	for i := 0; i < packetsPerChunk; i++ {
		p := chunk[i*mpegtsPacketSize : (i+1)*mpegtsPacketSize]
		p[0] = mpegtsSyncByte
		p[1] = byte(mpegtsNullPID >> 8 & 0x1F)
		p[2] = byte(mpegtsNullPID & 0xFF)
		p[3] = byte(0x10 | (counter & 0x0F)) // no scrambling, payload only, continuity counter low nibble
		counter++
	}
	return chunk, counter
}
