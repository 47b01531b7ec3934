package relay

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestFallbackGenerator_WritesChunksAtFrameRate(t *testing.T) {
	buf := NewCyclicBuffer(DefaultCyclicBufferConfig())
	defer buf.Close()

	gen := NewFallbackGenerator(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require := func(cond bool, msg string) {
		if !cond {
			t.Fatal(msg)
		}
	}

	if err := gen.Start(ctx, buf); err != nil {
		t.Fatalf("Start: %v", err)
	}
	require(gen.IsRunning(), "expected generator to be running after Start")

	// At 25fps, half a second should produce roughly 12 chunks; allow slack
	// for scheduling jitter.
	time.Sleep(500 * time.Millisecond)

	written := gen.ChunksWritten()
	if written < 5 {
		t.Fatalf("expected at least 5 chunks written in 500ms at %dfps, got %d", FallbackFrameRate, written)
	}

	stats := buf.Stats()
	if stats.TotalChunks == 0 {
		t.Fatalf("expected cyclic buffer to have received chunks, got %+v", stats)
	}

	gen.Stop()
	// Give the run goroutine a moment to observe cancellation.
	time.Sleep(100 * time.Millisecond)
	if gen.IsRunning() {
		t.Fatal("expected generator to stop running after Stop")
	}
}

func TestFallbackGenerator_StartTwiceRejected(t *testing.T) {
	buf := NewCyclicBuffer(DefaultCyclicBufferConfig())
	defer buf.Close()

	gen := NewFallbackGenerator(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gen.Start(ctx, buf); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer gen.Stop()

	if err := gen.Start(ctx, buf); err != ErrFallbackAlreadyRunning {
		t.Fatalf("expected ErrFallbackAlreadyRunning, got %v", err)
	}
}

func TestFallbackGenerator_ParentContextCancelStops(t *testing.T) {
	buf := NewCyclicBuffer(DefaultCyclicBufferConfig())
	defer buf.Close()

	gen := NewFallbackGenerator(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	if err := gen.Start(ctx, buf); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	if gen.IsRunning() {
		t.Fatal("expected generator to stop when parent context is cancelled")
	}
}

func TestPlaceholderChunk_StructurallyValidTS(t *testing.T) {
	chunk, next := placeholderChunk(0)

	if len(chunk) != packetsPerChunk*mpegtsPacketSize {
		t.Fatalf("expected chunk length %d, got %d", packetsPerChunk*mpegtsPacketSize, len(chunk))
	}

	for i := 0; i < packetsPerChunk; i++ {
		p := chunk[i*mpegtsPacketSize : (i+1)*mpegtsPacketSize]
		if p[0] != mpegtsSyncByte {
			t.Fatalf("packet %d: expected sync byte 0x%02x, got 0x%02x", i, mpegtsSyncByte, p[0])
		}
		pid := (int(p[1]&0x1F) << 8) | int(p[2])
		if pid != mpegtsNullPID {
			t.Fatalf("packet %d: expected null PID 0x%04x, got 0x%04x", i, mpegtsNullPID, pid)
		}
	}

	if next != uint16(packetsPerChunk) {
		t.Fatalf("expected continuity counter to advance by %d, got %d", packetsPerChunk, next)
	}
}
