package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/jmylchreest/tvproxy/internal/repository"
)

// FilterHandler handles filter API endpoints.
type FilterHandler struct {
	repo repository.FilterRepository
}

// NewFilterHandler creates a new filter handler.
func NewFilterHandler(repo repository.FilterRepository) *FilterHandler {
	return &FilterHandler{repo: repo}
}

// Register registers the filter routes on the router.
func (h *FilterHandler) Register(router chi.Router) {
	router.Get("/api/v1/filters", h.List)
	router.Get("/api/v1/filters/{id}", h.GetByID)
	router.Post("/api/v1/filters", h.Create)
	router.Put("/api/v1/filters/{id}", h.Update)
	router.Delete("/api/v1/filters/{id}", h.Delete)
}

// FilterResponse represents a filter in API responses.
type FilterResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SourceType  string  `json:"source_type"`
	Action      string  `json:"action"`
	Expression  string  `json:"expression"`
	IsEnabled   bool    `json:"is_enabled"`
	IsSystem    bool    `json:"is_system"`
	SourceID    *string `json:"source_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// FilterFromModel converts a models.Filter to FilterResponse.
func FilterFromModel(f *models.Filter) FilterResponse {
	resp := FilterResponse{
		ID:          f.ID.String(),
		Name:        f.Name,
		Description: f.Description,
		SourceType:  string(f.SourceType),
		Action:      string(f.Action),
		Expression:  f.Expression,
		IsEnabled:   f.IsEnabled,
		IsSystem:    f.IsSystem,
		CreatedAt:   f.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   f.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if f.SourceID != nil {
		s := f.SourceID.String()
		resp.SourceID = &s
	}
	return resp
}

// listFiltersResponse is the response for listing filters.
type listFiltersResponse struct {
	Filters []FilterResponse `json:"filters"`
	Count   int              `json:"count"`
}

// List returns all filters.
func (h *FilterHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	sourceType := query.Get("source_type")
	enabled := query.Get("enabled")

	var filters []*models.Filter
	var err error

	hasEnabledFilter := enabled != ""
	enabledFilter := enabled == "true"

	if hasEnabledFilter && enabledFilter {
		if sourceType != "" {
			filters, err = h.repo.GetEnabledForSourceType(ctx, models.FilterSourceType(sourceType), nil)
		} else {
			filters, err = h.repo.GetEnabled(ctx)
		}
	} else if sourceType != "" {
		filters, err = h.repo.GetBySourceType(ctx, models.FilterSourceType(sourceType))
	} else {
		filters, err = h.repo.GetAll(ctx)
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list filters: "+err.Error())
		return
	}

	resp := listFiltersResponse{
		Filters: make([]FilterResponse, 0, len(filters)),
		Count:   len(filters),
	}
	for _, f := range filters {
		resp.Filters = append(resp.Filters, FilterFromModel(f))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetByID returns a filter by ID.
func (h *FilterHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := models.ParseULID(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	filter, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get filter: "+err.Error())
		return
	}
	if filter == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("filter %s not found", idStr))
		return
	}

	writeJSON(w, http.StatusOK, FilterFromModel(filter))
}

// createFilterRequest is the request body for creating a filter.
type createFilterRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SourceType  string  `json:"source_type"`
	Action      string  `json:"action"`
	Expression  string  `json:"expression"`
	IsEnabled   *bool   `json:"is_enabled,omitempty"`
	SourceID    *string `json:"source_id,omitempty"`
}

// Create creates a new filter.
func (h *FilterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createFilterRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	filter := &models.Filter{
		Name:        body.Name,
		Description: body.Description,
		SourceType:  models.FilterSourceType(body.SourceType),
		Action:      models.FilterAction(body.Action),
		Expression:  body.Expression,
		IsEnabled:   true,
	}

	if body.IsEnabled != nil {
		filter.IsEnabled = *body.IsEnabled
	}

	if body.SourceID != nil && *body.SourceID != "" {
		id, err := models.ParseULID(*body.SourceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid source_id format")
			return
		}
		filter.SourceID = &id
	}

	if err := h.repo.Create(r.Context(), filter); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create filter: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, FilterFromModel(filter))
}

// updateFilterRequest is the request body for updating a filter.
type updateFilterRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	SourceType  *string `json:"source_type,omitempty"`
	Action      *string `json:"action,omitempty"`
	Expression  *string `json:"expression,omitempty"`
	IsEnabled   *bool   `json:"is_enabled,omitempty"`
	SourceID    *string `json:"source_id,omitempty"`
}

// Update updates an existing filter.
func (h *FilterHandler) Update(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := models.ParseULID(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	var body updateFilterRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	filter, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get filter: "+err.Error())
		return
	}
	if filter == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("filter %s not found", idStr))
		return
	}

	// System defaults can only have is_enabled toggled
	if filter.IsSystem {
		if body.Name != nil || body.Description != nil ||
			body.SourceType != nil || body.Action != nil ||
			body.Expression != nil || body.SourceID != nil {
			writeError(w, http.StatusForbidden, "system filters can only have is_enabled toggled")
			return
		}
		// Only allow is_enabled update
		if body.IsEnabled != nil {
			filter.IsEnabled = *body.IsEnabled
		}
	} else {
		// Apply updates for non-system filters
		if body.Name != nil {
			filter.Name = *body.Name
		}
		if body.Description != nil {
			filter.Description = *body.Description
		}
		if body.SourceType != nil {
			filter.SourceType = models.FilterSourceType(*body.SourceType)
		}
		if body.Action != nil {
			filter.Action = models.FilterAction(*body.Action)
		}
		if body.Expression != nil {
			filter.Expression = *body.Expression
		}
		if body.IsEnabled != nil {
			filter.IsEnabled = *body.IsEnabled
		}
		if body.SourceID != nil {
			if *body.SourceID == "" {
				filter.SourceID = nil
			} else {
				sourceID, err := models.ParseULID(*body.SourceID)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid source_id format")
					return
				}
				filter.SourceID = &sourceID
			}
		}
	}

	if err := h.repo.Update(r.Context(), filter); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update filter: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, FilterFromModel(filter))
}

// Delete deletes a filter.
func (h *FilterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := models.ParseULID(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	filter, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get filter: "+err.Error())
		return
	}
	if filter == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("filter %s not found", idStr))
		return
	}

	// Prevent deletion of system filters
	if filter.IsSystem {
		writeError(w, http.StatusForbidden, "system filters cannot be deleted")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete filter: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
