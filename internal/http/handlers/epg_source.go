package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/jmylchreest/tvproxy/internal/service"
	"gorm.io/gorm"
)

// EpgSourceHandler handles EPG source API endpoints.
type EpgSourceHandler struct {
	epgService *service.EpgService
}

// NewEpgSourceHandler creates a new EPG source handler.
func NewEpgSourceHandler(epgService *service.EpgService) *EpgSourceHandler {
	return &EpgSourceHandler{
		epgService: epgService,
	}
}

// Register registers the EPG source routes on the router.
func (h *EpgSourceHandler) Register(router chi.Router) {
	router.Get("/api/v1/sources/epg", h.List)
	router.Get("/api/v1/sources/epg/{id}", h.GetByID)
	router.Post("/api/v1/sources/epg", h.Create)
	router.Put("/api/v1/sources/epg/{id}", h.Update)
	router.Delete("/api/v1/sources/epg/{id}", h.Delete)
	router.Post("/api/v1/sources/epg/{id}/ingest", h.Ingest)
}

// List returns all EPG sources.
func (h *EpgSourceHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.epgService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list EPG sources")
		return
	}

	resp := make([]EpgSourceResponse, 0, len(sources))
	for _, s := range sources {
		resp = append(resp, EpgSourceFromModel(s))
	}

	writeJSON(w, http.StatusOK, struct {
		Sources []EpgSourceResponse `json:"sources"`
	}{Sources: resp})
}

// GetByID returns an EPG source by ID.
func (h *EpgSourceHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	source, err := h.epgService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("EPG source %s not found", idParam))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get EPG source")
		return
	}

	writeJSON(w, http.StatusOK, EpgSourceFromModel(source))
}

// Create creates a new EPG source.
func (h *EpgSourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateEpgSourceRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := body.ToModel()

	if err := h.epgService.Create(r.Context(), source); err != nil {
		if errors.Is(err, models.ErrNameRequired) ||
			errors.Is(err, models.ErrURLRequired) ||
			errors.Is(err, models.ErrInvalidURL) ||
			errors.Is(err, models.ErrInvalidEpgSourceType) ||
			errors.Is(err, models.ErrXtreamCredentialsRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		errStr := err.Error()
		if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key") {
			writeError(w, http.StatusConflict, "an EPG source with this name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create EPG source")
		return
	}

	writeJSON(w, http.StatusCreated, EpgSourceFromModel(source))
}

// Update updates an existing EPG source.
func (h *EpgSourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	source, err := h.epgService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("EPG source %s not found", idParam))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get EPG source")
		return
	}

	var body UpdateEpgSourceRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.ApplyToModel(source)

	if err := h.epgService.Update(r.Context(), source); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update EPG source")
		return
	}

	writeJSON(w, http.StatusOK, EpgSourceFromModel(source))
}

// Delete deletes an EPG source.
func (h *EpgSourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	if err := h.epgService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("EPG source %s not found", idParam))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete EPG source")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Ingest triggers ingestion for an EPG source.
func (h *EpgSourceHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := models.ParseULID(idParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	if err := h.epgService.IngestAsync(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start EPG ingestion")
		return
	}

	writeJSON(w, http.StatusAccepted, struct {
		Message string `json:"message"`
	}{Message: fmt.Sprintf("EPG ingestion started for source %s", idParam)})
}
