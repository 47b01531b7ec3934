package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/jmylchreest/tvproxy/internal/relay"
	"github.com/jmylchreest/tvproxy/internal/service"
	"github.com/jmylchreest/tvproxy/internal/version"
)

// RelayStreamHandler handles stream relay API endpoints: connection-limited
// client streaming, the error-fallback feed, and the codec-cache surface.
type RelayStreamHandler struct {
	relayService *service.RelayService
	logger       *slog.Logger
}

// NewRelayStreamHandler creates a new relay stream handler.
func NewRelayStreamHandler(relayService *service.RelayService) *RelayStreamHandler {
	return &RelayStreamHandler{
		relayService: relayService,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *RelayStreamHandler) WithLogger(logger *slog.Logger) *RelayStreamHandler {
	h.logger = logger
	return h
}

// setStreamHeaders sets the X-Stream-* and X-Tvarr-Version headers on the response.
func setStreamHeaders(w http.ResponseWriter, mode, decision string) {
	w.Header().Set("X-Stream-Mode", mode)
	w.Header().Set("X-Stream-Decision", decision)
	w.Header().Set("X-Tvarr-Version", version.Version)
}

// setCORSHeaders sets the CORS headers for cross-origin streaming.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Range")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
}

// Register registers the relay API routes on the router.
func (h *RelayStreamHandler) Register(router chi.Router) {
	router.Post("/api/v1/relay/probe", h.ProbeStream)
	router.Get("/api/v1/relay/lastknowncodecs", h.GetCodecCacheStats)
	router.Delete("/api/v1/relay/lastknowncodecs", h.ClearCodecCache)
}

// RegisterChiRoutes registers the streaming endpoint that needs raw control
// over the response body (CORS preflight, connection-limiter rejection
// status codes, unbounded chunked writes).
func (h *RelayStreamHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/proxy/{proxyId}/{channelId}", h.handleStream)
	router.Options("/proxy/{proxyId}/{channelId}", h.handleStreamOptions)
}

func (h *RelayStreamHandler) handleStreamOptions(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleStream resolves the proxy/channel's upstream URL, registers the
// client against the connection limiter, and streams bytes to the client.
// If the upstream source is currently unreachable it falls back to the
// channel's placeholder feed instead of failing the request outright.
func (h *RelayStreamHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	proxyID, err := models.ParseULID(chi.URLParam(r, "proxyId"))
	if err != nil {
		http.Error(w, "invalid proxy ID format", http.StatusBadRequest)
		return
	}
	channelID, err := models.ParseULID(chi.URLParam(r, "channelId"))
	if err != nil {
		http.Error(w, "invalid channel ID format", http.StatusBadRequest)
		return
	}

	streamInfo, err := h.relayService.GetStreamInfo(ctx, proxyID, channelID)
	if err != nil {
		h.logger.Warn("stream lookup failed", "proxy_id", proxyID, "channel_id", channelID, "error", err)
		http.Error(w, "stream not found", http.StatusNotFound)
		return
	}

	handle, err := h.relayService.RegisterConnection(proxyID, channelID)
	if err != nil {
		var capErr *relay.CapExceededError
		if errors.As(err, &capErr) {
			h.logger.Info("connection rejected: cap exceeded",
				"proxy_id", proxyID, "channel_id", channelID, "cap", capErr.Kind.String(), "limit", capErr.Limit)
			http.Error(w, capErr.Error(), http.StatusTooManyRequests)
			return
		}
		http.Error(w, "connection rejected", http.StatusServiceUnavailable)
		return
	}
	defer handle.Release()

	setCORSHeaders(w)

	if h.relayService.IsFallbackActive(proxyID, channelID) {
		h.serveFallback(w, r, proxyID, channelID)
		return
	}

	if h.serveUpstream(w, r, streamInfo) {
		return
	}

	// Upstream is unreachable: switch this channel to the placeholder feed
	// so every client connected to it keeps receiving a continuous body.
	if err := h.relayService.StartFallback(ctx, proxyID, channelID); err != nil {
		h.logger.Error("failed to start fallback feed", "proxy_id", proxyID, "channel_id", channelID, "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	h.serveFallback(w, r, proxyID, channelID)
}

// serveUpstream proxies the channel's source stream directly to the client.
// It returns true if the upstream connection was established and the
// response has been (at least partially) written; false means the caller
// should fall back to the placeholder feed instead.
func (h *RelayStreamHandler) serveUpstream(w http.ResponseWriter, r *http.Request, info *service.StreamInfo) bool {
	streamURL := info.Channel.StreamURL

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, streamURL, nil)
	if err != nil {
		h.logger.Error("failed to build upstream request", "channel_id", info.Channel.ID, "error", err)
		return false
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := h.relayService.GetHTTPClient().Do(req)
	if err != nil {
		h.logger.Warn("upstream request failed", "channel_id", info.Channel.ID, "stream_url", streamURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		h.logger.Warn("upstream returned server error", "channel_id", info.Channel.ID, "status", resp.StatusCode)
		return false
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp2t"
	}
	w.Header().Set("Content-Type", contentType)
	setStreamHeaders(w, "proxy", "passthrough")

	if resp.StatusCode == http.StatusPartialContent {
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			w.Header().Set("Content-Range", cr)
		}
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Cache-Control", "no-cache, no-store")
		w.WriteHeader(http.StatusOK)
	}

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				h.logger.Debug("client disconnected during proxy write", "channel_id", info.Channel.ID, "error", writeErr)
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				h.logger.Debug("upstream read error", "channel_id", info.Channel.ID, "error", readErr)
			}
			break
		}
	}
	return true
}

// serveFallback streams the channel's placeholder feed to the client until
// the client disconnects.
func (h *RelayStreamHandler) serveFallback(w http.ResponseWriter, r *http.Request, proxyID, channelID models.ULID) {
	buf := h.relayService.ChannelBuffer(proxyID, channelID)

	client, err := buf.AddClient(r.UserAgent(), r.RemoteAddr)
	if err != nil {
		http.Error(w, "fallback feed unavailable", http.StatusServiceUnavailable)
		return
	}
	defer buf.RemoveClient(client.ID)

	w.Header().Set("Content-Type", "video/mp2t")
	setStreamHeaders(w, "fallback", "placeholder")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	reader := relay.NewStreamReader(buf, client)
	chunk := make([]byte, 32*1024)
	for {
		n, err := reader.ReadContext(r.Context(), chunk)
		if n > 0 {
			if _, writeErr := w.Write(chunk[:n]); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// probeStreamRequest is the request body for probing a stream.
type probeStreamRequest struct {
	URL       string `json:"url,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

// probeStreamResponse is the response body for probing a stream.
type probeStreamResponse struct {
	ChannelID       string  `json:"channel_id,omitempty"`
	StreamURL       string  `json:"stream_url"`
	VideoCodec      string  `json:"video_codec,omitempty"`
	VideoWidth      int     `json:"video_width,omitempty"`
	VideoHeight     int     `json:"video_height,omitempty"`
	VideoFramerate  float64 `json:"video_framerate,omitempty"`
	VideoBitrate    int     `json:"video_bitrate,omitempty"`
	AudioCodec      string  `json:"audio_codec,omitempty"`
	AudioSampleRate int     `json:"audio_sample_rate,omitempty"`
	AudioChannels   int     `json:"audio_channels,omitempty"`
	AudioBitrate    int     `json:"audio_bitrate,omitempty"`
	ContainerFormat string  `json:"container_format,omitempty"`
	IsLiveStream    bool    `json:"is_live_stream"`
	HasSubtitles    bool    `json:"has_subtitles"`
	StreamCount     int     `json:"stream_count"`
}

// ProbeStream probes a stream URL for codec information. Accepts either a
// URL directly or a channel_id to look up the URL from the database.
func (h *RelayStreamHandler) ProbeStream(w http.ResponseWriter, r *http.Request) {
	var body probeStreamRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	var streamURL, channelIDStr string

	if body.ChannelID != "" {
		channelID, err := models.ParseULID(body.ChannelID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid channel_id format")
			return
		}
		channel, err := h.relayService.GetChannel(ctx, channelID)
		if err != nil {
			writeError(w, http.StatusNotFound, "channel not found")
			return
		}
		streamURL = channel.StreamURL
		channelIDStr = body.ChannelID
	} else if body.URL != "" {
		streamURL = body.URL
	} else {
		writeError(w, http.StatusBadRequest, "either url or channel_id must be provided")
		return
	}

	codecInfo, err := h.relayService.ProbeStream(ctx, streamURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to probe stream: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, probeStreamResponse{
		ChannelID:       channelIDStr,
		StreamURL:       streamURL,
		VideoCodec:      codecInfo.VideoCodec,
		VideoWidth:      codecInfo.VideoWidth,
		VideoHeight:     codecInfo.VideoHeight,
		VideoFramerate:  codecInfo.VideoFramerate,
		VideoBitrate:    codecInfo.VideoBitrate,
		AudioCodec:      codecInfo.AudioCodec,
		AudioSampleRate: codecInfo.AudioSampleRate,
		AudioChannels:   codecInfo.AudioChannels,
		AudioBitrate:    codecInfo.AudioBitrate,
		ContainerFormat: codecInfo.ContainerFormat,
		IsLiveStream:    codecInfo.IsLiveStream,
		HasSubtitles:    codecInfo.HasSubtitles,
		StreamCount:     codecInfo.StreamCount,
	})
}

// GetCodecCacheStats returns statistics about the codec cache.
func (h *RelayStreamHandler) GetCodecCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.relayService.GetCodecCacheStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get codec cache stats: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		TotalEntries   int64 `json:"total_entries"`
		ValidEntries   int64 `json:"valid_entries"`
		ExpiredEntries int64 `json:"expired_entries"`
		ErrorEntries   int64 `json:"error_entries"`
		TotalHits      int64 `json:"total_hits"`
	}{
		TotalEntries:   stats.TotalEntries,
		ValidEntries:   stats.ValidEntries,
		ExpiredEntries: stats.ExpiredEntries,
		ErrorEntries:   stats.ErrorEntries,
		TotalHits:      stats.TotalHits,
	})
}

// ClearCodecCache clears all codec cache entries.
func (h *RelayStreamHandler) ClearCodecCache(w http.ResponseWriter, r *http.Request) {
	count, err := h.relayService.ClearAllCodecCache(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear codec cache: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		DeletedCount int64  `json:"deleted_count"`
		Message      string `json:"message"`
	}{
		DeletedCount: count,
		Message:      "Codec cache cleared successfully. Streams will be re-probed on next request.",
	})
}
