package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/jmylchreest/tvproxy/internal/service"
	"gorm.io/gorm"
)

// ScheduleSyncer is called when cron schedules are changed via API.
// This allows the scheduler to immediately pick up changes without waiting for the sync interval.
type ScheduleSyncer interface {
	// ForceSync triggers an immediate sync of schedules from the database.
	ForceSync(ctx context.Context) error
}

// ProxyUsageChecker checks if entities are in use by proxies.
type ProxyUsageChecker interface {
	// GetProxyNamesByStreamSourceID returns names of proxies using a stream source.
	GetProxyNamesByStreamSourceID(ctx context.Context, sourceID models.ULID) ([]string, error)
	// GetProxyNamesByEpgSourceID returns names of proxies using an EPG source.
	GetProxyNamesByEpgSourceID(ctx context.Context, epgSourceID models.ULID) ([]string, error)
	// GetProxyNamesByFilterID returns names of proxies using a filter.
	GetProxyNamesByFilterID(ctx context.Context, filterID models.ULID) ([]string, error)
	// GetProxyNamesByEncodingProfileID returns names of proxies using an encoding profile.
	GetProxyNamesByEncodingProfileID(ctx context.Context, profileID models.ULID) ([]string, error)
}

// StreamSourceHandler handles stream source API endpoints.
type StreamSourceHandler struct {
	sourceService     *service.SourceService
	scheduleSyncer    ScheduleSyncer
	proxyUsageChecker ProxyUsageChecker
}

// NewStreamSourceHandler creates a new stream source handler.
func NewStreamSourceHandler(sourceService *service.SourceService) *StreamSourceHandler {
	return &StreamSourceHandler{
		sourceService: sourceService,
	}
}

// WithScheduleSyncer sets the schedule syncer for immediate schedule updates.
func (h *StreamSourceHandler) WithScheduleSyncer(syncer ScheduleSyncer) *StreamSourceHandler {
	h.scheduleSyncer = syncer
	return h
}

// WithProxyUsageChecker sets the proxy usage checker for delete validation.
func (h *StreamSourceHandler) WithProxyUsageChecker(checker ProxyUsageChecker) *StreamSourceHandler {
	h.proxyUsageChecker = checker
	return h
}

// syncSchedules triggers an immediate sync if a syncer is configured.
func (h *StreamSourceHandler) syncSchedules(ctx context.Context) {
	if h.scheduleSyncer != nil {
		// Fire and forget - don't block on sync errors
		go func() {
			_ = h.scheduleSyncer.ForceSync(ctx)
		}()
	}
}

// Register registers the stream source routes on the router.
func (h *StreamSourceHandler) Register(router chi.Router) {
	router.Get("/api/v1/sources/stream", h.List)
	router.Get("/api/v1/sources/stream/{id}", h.GetByID)
	router.Post("/api/v1/sources/stream", h.Create)
	router.Put("/api/v1/sources/stream/{id}", h.Update)
	router.Delete("/api/v1/sources/stream/{id}", h.Delete)
	router.Post("/api/v1/sources/stream/{id}/ingest", h.Ingest)
}

// List returns all stream sources.
func (h *StreamSourceHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sourceService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}

	resp := make([]StreamSourceResponse, 0, len(sources))
	for _, s := range sources {
		resp = append(resp, StreamSourceFromModel(s))
	}

	writeJSON(w, http.StatusOK, struct {
		Sources []StreamSourceResponse `json:"sources"`
	}{Sources: resp})
}

// GetByID returns a stream source by ID.
func (h *StreamSourceHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	source, err := h.sourceService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("stream source %s not found", idParam))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get source")
		return
	}

	writeJSON(w, http.StatusOK, StreamSourceFromModel(source))
}

// Create creates a new stream source.
func (h *StreamSourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateStreamSourceRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := body.ToModel()

	if err := h.sourceService.Create(r.Context(), source); err != nil {
		if errors.Is(err, models.ErrNameRequired) ||
			errors.Is(err, models.ErrURLRequired) ||
			errors.Is(err, models.ErrInvalidURL) ||
			errors.Is(err, models.ErrInvalidSourceType) ||
			errors.Is(err, models.ErrXtreamCredentialsRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		errStr := err.Error()
		if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key") {
			writeError(w, http.StatusConflict, "a stream source with this name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create source")
		return
	}

	if source.CronSchedule != "" {
		h.syncSchedules(r.Context())
	}

	writeJSON(w, http.StatusCreated, StreamSourceFromModel(source))
}

// Update updates an existing stream source.
func (h *StreamSourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	source, err := h.sourceService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("stream source %s not found", idParam))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get source")
		return
	}

	var body UpdateStreamSourceRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.ApplyToModel(source)

	if err := h.sourceService.Update(r.Context(), source); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update source")
		return
	}

	h.syncSchedules(r.Context())

	writeJSON(w, http.StatusOK, StreamSourceFromModel(source))
}

// Delete deletes a stream source.
func (h *StreamSourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	if h.proxyUsageChecker != nil {
		proxyNames, err := h.proxyUsageChecker.GetProxyNamesByStreamSourceID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check proxy usage")
			return
		}
		if len(proxyNames) > 0 {
			writeError(w, http.StatusConflict, fmt.Sprintf(
				"cannot delete stream source: in use by %d proxy(s): %s. Remove it from these proxies first.",
				len(proxyNames), strings.Join(proxyNames, ", ")))
			return
		}
	}

	if err := h.sourceService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("stream source %s not found", idParam))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete source")
		return
	}

	h.syncSchedules(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// Ingest triggers ingestion for a stream source.
func (h *StreamSourceHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	if err := h.sourceService.IngestAsync(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start ingestion")
		return
	}

	writeJSON(w, http.StatusAccepted, struct {
		Message string `json:"message"`
	}{Message: fmt.Sprintf("ingestion started for source %s", idParam)})
}
