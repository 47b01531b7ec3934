package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/jmylchreest/tvproxy/internal/service"
	"github.com/jmylchreest/tvproxy/internal/urlutil"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// StreamProxyHandler handles stream proxy API endpoints.
type StreamProxyHandler struct {
	proxyService *service.ProxyService
	baseURL      string
	logger       *slog.Logger
}

// buildOrderMapFromIDs creates an order map from array indices.
// The order is derived from the position in the array (index 0 = order 0, etc.).
func buildOrderMapFromIDs(ids []models.ULID) map[models.ULID]int {
	if len(ids) == 0 {
		return nil
	}
	orders := make(map[models.ULID]int, len(ids))
	for i, id := range ids {
		orders[id] = i
	}
	return orders
}

// buildFilterMaps converts ProxyFilterAssignmentRequest slice to the maps needed by SetFilters.
// Returns: filterIDs slice, orders map (by priority_order), isActive map.
func buildFilterMaps(filters []ProxyFilterAssignmentRequest) ([]models.ULID, map[models.ULID]int, map[models.ULID]bool) {
	if len(filters) == 0 {
		return nil, nil, nil
	}
	filterIDs := make([]models.ULID, len(filters))
	orders := make(map[models.ULID]int, len(filters))
	isActive := make(map[models.ULID]bool, len(filters))

	for i, f := range filters {
		filterIDs[i] = f.FilterID
		orders[f.FilterID] = f.PriorityOrder
		isActive[f.FilterID] = f.IsActive
	}
	return filterIDs, orders, isActive
}

// NewStreamProxyHandler creates a new stream proxy handler.
func NewStreamProxyHandler(proxyService *service.ProxyService) *StreamProxyHandler {
	// Compute base URL from viper config (same logic as serve.go)
	baseURL := urlutil.NormalizeBaseURL(viper.GetString("server.base_url"))
	if baseURL == "" {
		serverHost := viper.GetString("server.host")
		serverPort := viper.GetInt("server.port")
		if serverHost == "0.0.0.0" || serverHost == "" {
			baseURL = fmt.Sprintf("http://localhost:%d", serverPort)
		} else {
			baseURL = fmt.Sprintf("http://%s:%d", serverHost, serverPort)
		}
	}

	return &StreamProxyHandler{
		proxyService: proxyService,
		baseURL:      baseURL,
		logger:       slog.Default(),
	}
}

// Register registers the stream proxy routes on the router.
func (h *StreamProxyHandler) Register(router chi.Router) {
	router.Get("/api/v1/proxies", h.List)
	router.Get("/api/v1/proxies/{id}", h.GetByID)
	router.Post("/api/v1/proxies", h.Create)
	router.Put("/api/v1/proxies/{id}", h.Update)
	router.Delete("/api/v1/proxies/{id}", h.Delete)
	router.Put("/api/v1/proxies/{id}/sources", h.SetSources)
	router.Put("/api/v1/proxies/{id}/epg-sources", h.SetEpgSources)
	router.Post("/api/v1/proxies/{id}/regenerate", h.Generate)
}

// List returns all stream proxies.
func (h *StreamProxyHandler) List(w http.ResponseWriter, r *http.Request) {
	proxies, err := h.proxyService.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list proxies: "+err.Error())
		return
	}

	resp := make([]StreamProxyResponse, 0, len(proxies))
	for _, p := range proxies {
		resp = append(resp, StreamProxyFromModel(p, h.baseURL))
	}

	writeJSON(w, http.StatusOK, struct {
		Proxies []StreamProxyResponse `json:"proxies"`
	}{Proxies: resp})
}

// GetByID returns a stream proxy by ID with its sources.
func (h *StreamProxyHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := models.ParseULID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	proxy, err := h.proxyService.GetByIDWithRelations(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("stream proxy %s not found", rawID))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get proxy: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StreamProxyDetailFromModel(proxy, h.baseURL))
}

// Create creates a new stream proxy.
func (h *StreamProxyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateStreamProxyRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	proxy := body.ToModel()

	if err := h.proxyService.Create(ctx, proxy); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create proxy: "+err.Error())
		return
	}

	// Set sources if provided (order derived from array index)
	if len(body.SourceIDs) > 0 {
		priorities := buildOrderMapFromIDs(body.SourceIDs)
		if err := h.proxyService.SetSources(ctx, proxy.ID, body.SourceIDs, priorities); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set sources: "+err.Error())
			return
		}
	}

	// Set EPG sources if provided (order derived from array index)
	if len(body.EpgSourceIDs) > 0 {
		priorities := buildOrderMapFromIDs(body.EpgSourceIDs)
		if err := h.proxyService.SetEpgSources(ctx, proxy.ID, body.EpgSourceIDs, priorities); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set EPG sources: "+err.Error())
			return
		}
	}

	// Set filters if provided
	if len(body.Filters) > 0 {
		filterIDs, orders, isActive := buildFilterMaps(body.Filters)
		if err := h.proxyService.SetFilters(ctx, proxy.ID, filterIDs, orders, isActive); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set filters: "+err.Error())
			return
		}
	} else if len(body.FilterIDs) > 0 {
		// Backward compatibility: support legacy FilterIDs field (all active by default)
		orders := buildOrderMapFromIDs(body.FilterIDs)
		if err := h.proxyService.SetFilters(ctx, proxy.ID, body.FilterIDs, orders, nil); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set filters: "+err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, StreamProxyFromModel(proxy, h.baseURL))
}

// Update updates an existing stream proxy.
func (h *StreamProxyHandler) Update(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := models.ParseULID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	var body UpdateStreamProxyRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	proxy, err := h.proxyService.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("stream proxy %s not found", rawID))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get proxy: "+err.Error())
		return
	}

	body.ApplyToModel(proxy)

	if err := h.proxyService.Update(ctx, proxy); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update proxy: "+err.Error())
		return
	}

	// Set sources if provided (order derived from array index)
	if body.SourceIDs != nil {
		priorities := buildOrderMapFromIDs(body.SourceIDs)
		if err := h.proxyService.SetSources(ctx, id, body.SourceIDs, priorities); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set sources: "+err.Error())
			return
		}
	}

	// Set EPG sources if provided (order derived from array index)
	if body.EpgSourceIDs != nil {
		priorities := buildOrderMapFromIDs(body.EpgSourceIDs)
		if err := h.proxyService.SetEpgSources(ctx, id, body.EpgSourceIDs, priorities); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set EPG sources: "+err.Error())
			return
		}
	}

	// Set filters if provided
	if len(body.Filters) > 0 {
		filterIDs, orders, isActive := buildFilterMaps(body.Filters)
		if err := h.proxyService.SetFilters(ctx, id, filterIDs, orders, isActive); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set filters: "+err.Error())
			return
		}
	} else if body.FilterIDs != nil {
		// Backward compatibility: support legacy FilterIDs field (all active by default)
		orders := buildOrderMapFromIDs(body.FilterIDs)
		if err := h.proxyService.SetFilters(ctx, id, body.FilterIDs, orders, nil); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to set filters: "+err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, StreamProxyFromModel(proxy, h.baseURL))
}

// Delete deletes a stream proxy.
func (h *StreamProxyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := models.ParseULID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	if err := h.proxyService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("stream proxy %s not found", rawID))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete proxy: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetSources sets the stream sources for a proxy.
func (h *StreamProxyHandler) SetSources(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := models.ParseULID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	var body SetProxySourcesRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.proxyService.SetSources(r.Context(), id, body.SourceIDs, body.Priorities); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set sources: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
	}{Message: fmt.Sprintf("sources updated for proxy %s", rawID)})
}

// SetEpgSources sets the EPG sources for a proxy.
func (h *StreamProxyHandler) SetEpgSources(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := models.ParseULID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	var body SetProxyEpgSourcesRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.proxyService.SetEpgSources(r.Context(), id, body.EpgSourceIDs, body.Priorities); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set EPG sources: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
	}{Message: fmt.Sprintf("EPG sources updated for proxy %s", rawID)})
}

// Generate triggers generation for a stream proxy.
// This is an async operation - it starts generation in the background and returns immediately.
// Progress is tracked via the SSE /api/v1/progress endpoint.
func (h *StreamProxyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, err := models.ParseULID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	// Check if proxy exists first
	proxy, err := h.proxyService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("stream proxy %s not found", rawID))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get proxy: "+err.Error())
		return
	}

	// Capture proxy name for goroutine (avoid closure issues)
	proxyName := proxy.Name

	// Start generation in a goroutine - this is async.
	// Progress is tracked via the progress service SSE endpoint, not this request.
	go func() {
		// Use background context to avoid HTTP request cancellation
		_, err := h.proxyService.Generate(context.Background(), id)
		if err != nil {
			// Error is logged by the service layer and tracked in progress
			h.logger.Error("proxy generation failed",
				"proxy_id", id.String(),
				"proxy_name", proxyName,
				"error", err,
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, struct {
		Message      string `json:"message"`
		ChannelCount int    `json:"channel_count"`
		ProgramCount int    `json:"program_count"`
		Duration     string `json:"duration"`
	}{
		Message:      fmt.Sprintf("generation started for proxy %s", rawID),
		ChannelCount: 0, // Will be updated via SSE progress
		ProgramCount: 0,
		Duration:     "in progress",
	})
}
