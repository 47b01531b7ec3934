package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jmylchreest/tvproxy/internal/ffmpeg"
	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/jmylchreest/tvproxy/internal/relay"
	"github.com/jmylchreest/tvproxy/internal/repository"
	"github.com/jmylchreest/tvproxy/internal/services"
)

// ErrChannelNotFound is returned when a channel is not found.
var ErrChannelNotFound = errors.New("channel not found")

// ErrProxyNotFound is returned when a stream proxy is not found.
var ErrProxyNotFound = errors.New("stream proxy not found")

// channelFeed bundles the cyclic buffer and fallback generator backing one
// channel's runtime stream output. A feed is created lazily the first time a
// client registers against a proxy/channel pair and lives for the process
// lifetime of the server.
type channelFeed struct {
	buffer   *relay.CyclicBuffer
	fallback *relay.FallbackGenerator
}

// RelayService resolves proxy/channel streaming targets, enforces the
// per-proxy/per-channel connection caps (§4.9), and manages the error
// fallback feed (§4.10) used while an upstream source is unhealthy.
type RelayService struct {
	lastKnownCodecRepo repository.LastKnownCodecRepository
	channelRepo        repository.ChannelRepository
	streamProxyRepo    repository.StreamProxyRepository
	ffmpegDetector     *ffmpeg.BinaryDetector
	hardwareDetector   *services.HardwareDetector
	prober             *ffmpeg.Prober
	logger             *slog.Logger
	httpClient         *http.Client

	connLimiter *relay.ConnectionLimiter

	mu    sync.Mutex
	feeds map[string]*channelFeed
}

// NewRelayService creates a relay service. limiterCfg configures the
// connection limiter's per-proxy/per-channel caps.
func NewRelayService(
	lastKnownCodecRepo repository.LastKnownCodecRepository,
	channelRepo repository.ChannelRepository,
	streamProxyRepo repository.StreamProxyRepository,
	limiterCfg relay.ConnectionLimiterConfig,
) *RelayService {
	ffmpegDetector := ffmpeg.NewBinaryDetector()

	var hardwareDetector *services.HardwareDetector
	if binInfo, err := ffmpegDetector.Detect(context.Background()); err == nil {
		hardwareDetector = services.NewHardwareDetector(binInfo.FFmpegPath)
	}

	return &RelayService{
		lastKnownCodecRepo: lastKnownCodecRepo,
		channelRepo:        channelRepo,
		streamProxyRepo:    streamProxyRepo,
		ffmpegDetector:     ffmpegDetector,
		hardwareDetector:   hardwareDetector,
		logger:             slog.Default(),
		httpClient:         http.DefaultClient,
		connLimiter:        relay.NewConnectionLimiter(limiterCfg),
		feeds:              make(map[string]*channelFeed),
	}
}

// WithLogger sets the logger for the service.
func (s *RelayService) WithLogger(logger *slog.Logger) *RelayService {
	s.logger = logger
	return s
}

// WithHTTPClient sets the HTTP client used to reach upstream sources.
func (s *RelayService) WithHTTPClient(client *http.Client) *RelayService {
	s.httpClient = client
	return s
}

// GetHTTPClient returns the HTTP client used to reach upstream sources.
func (s *RelayService) GetHTTPClient() *http.Client {
	if s.httpClient != nil {
		return s.httpClient
	}
	return http.DefaultClient
}

// Close stops every channel's fallback task and closes its cyclic buffer.
func (s *RelayService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.feeds {
		f.fallback.Stop()
		f.buffer.Close()
	}
	s.feeds = make(map[string]*channelFeed)
}

// Codec cache operations.

// GetLastKnownCodec returns the cached codec info for a stream URL.
func (s *RelayService) GetLastKnownCodec(ctx context.Context, streamURL string) (*models.LastKnownCodec, error) {
	return s.lastKnownCodecRepo.GetByStreamURL(ctx, streamURL)
}

// ProbeStream probes a stream URL for codec information.
func (s *RelayService) ProbeStream(ctx context.Context, streamURL string) (*models.LastKnownCodec, error) {
	binInfo, err := s.ffmpegDetector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting FFmpeg: %w", err)
	}

	if s.prober == nil {
		s.prober = ffmpeg.NewProber(binInfo.FFprobePath)
	}

	streamInfo, err := s.prober.QuickProbe(ctx, streamURL)
	if err != nil {
		return nil, fmt.Errorf("probing stream: %w", err)
	}

	codec := &models.LastKnownCodec{
		StreamURL:       streamURL,
		VideoCodec:      streamInfo.VideoCodec,
		VideoProfile:    streamInfo.VideoProfile,
		VideoLevel:      streamInfo.VideoLevel,
		VideoWidth:      streamInfo.VideoWidth,
		VideoHeight:     streamInfo.VideoHeight,
		VideoFramerate:  streamInfo.VideoFramerate,
		VideoBitrate:    streamInfo.VideoBitrate,
		VideoPixFmt:     streamInfo.VideoPixFmt,
		AudioCodec:      streamInfo.AudioCodec,
		AudioSampleRate: streamInfo.AudioSampleRate,
		AudioChannels:   streamInfo.AudioChannels,
		AudioBitrate:    streamInfo.AudioBitrate,
		ContainerFormat: streamInfo.ContainerFormat,
		Duration:        streamInfo.Duration,
		IsLiveStream:    streamInfo.IsLiveStream,
		HasSubtitles:    streamInfo.HasSubtitles,
		StreamCount:     streamInfo.StreamCount,
		Title:           streamInfo.Title,
		ProbedAt:        models.Now(),
	}

	if err := s.lastKnownCodecRepo.Upsert(ctx, codec); err != nil {
		s.logger.Warn("failed to cache codec info", "url", streamURL, "error", err)
	}

	return codec, nil
}

// GetCodecCacheStats returns statistics about the codec cache.
func (s *RelayService) GetCodecCacheStats(ctx context.Context) (*repository.CodecCacheStats, error) {
	return s.lastKnownCodecRepo.GetStats(ctx)
}

// CleanupExpiredCodecs removes expired codec cache entries.
func (s *RelayService) CleanupExpiredCodecs(ctx context.Context) (int64, error) {
	return s.lastKnownCodecRepo.DeleteExpired(ctx)
}

// ClearCodecCache clears the codec cache for a specific stream URL.
func (s *RelayService) ClearCodecCache(ctx context.Context, streamURL string) error {
	return s.lastKnownCodecRepo.DeleteByStreamURL(ctx, streamURL)
}

// ClearAllCodecCache clears all codec cache entries.
func (s *RelayService) ClearAllCodecCache(ctx context.Context) (int64, error) {
	return s.lastKnownCodecRepo.DeleteAll(ctx)
}

// GetFFmpegInfo returns information about the detected FFmpeg installation,
// used for stream probing only (no transcoding is performed).
func (s *RelayService) GetFFmpegInfo(ctx context.Context) (*ffmpeg.BinaryInfo, error) {
	return s.ffmpegDetector.Detect(ctx)
}

// GetHardwareCapabilities returns cached hardware capabilities, detecting if not already cached.
func (s *RelayService) GetHardwareCapabilities(ctx context.Context) (*services.HardwareCapabilities, error) {
	if s.hardwareDetector == nil {
		binInfo, err := s.ffmpegDetector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("FFmpeg not detected: %w", err)
		}
		s.hardwareDetector = services.NewHardwareDetector(binInfo.FFmpegPath)
	}
	if caps := s.hardwareDetector.GetCapabilities(); caps != nil {
		return caps, nil
	}
	return s.hardwareDetector.Detect(ctx)
}

// RefreshHardwareCapabilities re-detects hardware capabilities.
func (s *RelayService) RefreshHardwareCapabilities(ctx context.Context) (*services.HardwareCapabilities, error) {
	if s.hardwareDetector == nil {
		binInfo, err := s.ffmpegDetector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("FFmpeg not detected: %w", err)
		}
		s.hardwareDetector = services.NewHardwareDetector(binInfo.FFmpegPath)
	}
	return s.hardwareDetector.Refresh(ctx)
}

// Connection limiting and fallback.

// RegisterConnection registers a client connection against the configured
// per-proxy/per-channel caps, returning a handle the caller must Release
// when the client disconnects. Returns a *relay.CapExceededError on a cap
// rejection.
func (s *RelayService) RegisterConnection(proxyID, channelID models.ULID) (*relay.ConnectionHandle, error) {
	return s.connLimiter.Register(proxyID.String(), channelID.String())
}

func feedKey(proxyID, channelID models.ULID) string {
	return proxyID.String() + "/" + channelID.String()
}

func (s *RelayService) getOrCreateFeed(proxyID, channelID models.ULID) *channelFeed {
	key := feedKey(proxyID, channelID)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[key]
	if !ok {
		f = &channelFeed{
			buffer:   relay.NewCyclicBuffer(relay.DefaultCyclicBufferConfig()),
			fallback: relay.NewFallbackGenerator(s.logger.With("proxy_id", proxyID, "channel_id", channelID)),
		}
		s.feeds[key] = f
	}
	return f
}

// ChannelBuffer returns the cyclic buffer backing a channel's runtime feed,
// creating it if this is the first time the channel has been accessed.
func (s *RelayService) ChannelBuffer(proxyID, channelID models.ULID) *relay.CyclicBuffer {
	return s.getOrCreateFeed(proxyID, channelID).buffer
}

// StartFallback begins writing the placeholder transport-stream feed into
// the channel's cyclic buffer. It is a no-op if already running.
func (s *RelayService) StartFallback(ctx context.Context, proxyID, channelID models.ULID) error {
	f := s.getOrCreateFeed(proxyID, channelID)
	err := f.fallback.Start(ctx, f.buffer)
	if errors.Is(err, relay.ErrFallbackAlreadyRunning) {
		return nil
	}
	return err
}

// StopFallback cancels the channel's placeholder feed so live bytes resume.
func (s *RelayService) StopFallback(proxyID, channelID models.ULID) {
	key := feedKey(proxyID, channelID)

	s.mu.Lock()
	f, ok := s.feeds[key]
	s.mu.Unlock()

	if ok {
		f.fallback.Stop()
	}
}

// IsFallbackActive reports whether the channel is currently being served
// from the placeholder feed rather than live upstream bytes.
func (s *RelayService) IsFallbackActive(proxyID, channelID models.ULID) bool {
	key := feedKey(proxyID, channelID)

	s.mu.Lock()
	f, ok := s.feeds[key]
	s.mu.Unlock()

	return ok && f.fallback.IsRunning()
}

// StreamInfo contains the information needed to stream a channel through a proxy.
type StreamInfo struct {
	Proxy   *models.StreamProxy
	Channel *models.Channel
}

// GetStreamInfo retrieves the proxy and channel needed to resolve a runtime
// stream request.
func (s *RelayService) GetStreamInfo(ctx context.Context, proxyID, channelID models.ULID) (*StreamInfo, error) {
	proxy, err := s.streamProxyRepo.GetByID(ctx, proxyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyNotFound, err)
	}
	if proxy == nil {
		return nil, ErrProxyNotFound
	}

	channel, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelNotFound, err)
	}
	if channel == nil {
		return nil, ErrChannelNotFound
	}

	return &StreamInfo{Proxy: proxy, Channel: channel}, nil
}

// GetProxy returns a stream proxy by ID.
func (s *RelayService) GetProxy(ctx context.Context, id models.ULID) (*models.StreamProxy, error) {
	proxy, err := s.streamProxyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyNotFound, err)
	}
	if proxy == nil {
		return nil, ErrProxyNotFound
	}
	return proxy, nil
}

// GetChannel returns a channel by ID.
func (s *RelayService) GetChannel(ctx context.Context, id models.ULID) (*models.Channel, error) {
	channel, err := s.channelRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelNotFound, err)
	}
	if channel == nil {
		return nil, ErrChannelNotFound
	}
	return channel, nil
}
