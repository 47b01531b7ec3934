package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/jmylchreest/tvproxy/internal/repository"
)

// DataMappingRuleHandler handles data mapping rule API endpoints.
type DataMappingRuleHandler struct {
	repo repository.DataMappingRuleRepository
}

// NewDataMappingRuleHandler creates a new data mapping rule handler.
func NewDataMappingRuleHandler(repo repository.DataMappingRuleRepository) *DataMappingRuleHandler {
	return &DataMappingRuleHandler{repo: repo}
}

// Register registers the data mapping rule routes on the router.
func (h *DataMappingRuleHandler) Register(router chi.Router) {
	router.Get("/api/v1/data-mapping-rules", h.List)
	router.Get("/api/v1/data-mapping-rules/{id}", h.GetByID)
	router.Post("/api/v1/data-mapping-rules", h.Create)
	router.Put("/api/v1/data-mapping-rules/{id}", h.Update)
	router.Delete("/api/v1/data-mapping-rules/{id}", h.Delete)
}

// DataMappingRuleResponse represents a data mapping rule in API responses.
type DataMappingRuleResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SourceType  string  `json:"source_type"`
	Expression  string  `json:"expression"`
	Priority    int     `json:"priority"`
	StopOnMatch bool    `json:"stop_on_match"`
	IsEnabled   bool    `json:"is_enabled"`
	SourceID    *string `json:"source_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// DataMappingRuleFromModel converts a models.DataMappingRule to DataMappingRuleResponse.
func DataMappingRuleFromModel(r *models.DataMappingRule) DataMappingRuleResponse {
	resp := DataMappingRuleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		SourceType:  string(r.SourceType),
		Expression:  r.Expression,
		Priority:    r.Priority,
		StopOnMatch: r.StopOnMatch,
		IsEnabled:   r.IsEnabled,
		CreatedAt:   r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   r.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if r.SourceID != nil {
		s := r.SourceID.String()
		resp.SourceID = &s
	}
	return resp
}

// listDataMappingRulesResponse is the response for listing data mapping rules.
type listDataMappingRulesResponse struct {
	Rules []DataMappingRuleResponse `json:"rules"`
	Count int                       `json:"count"`
}

// List returns all data mapping rules.
func (h *DataMappingRuleHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	sourceType := query.Get("source_type")
	enabled := query.Get("enabled")

	var rules []*models.DataMappingRule
	var err error

	hasEnabledFilter := enabled != ""
	enabledFilter := enabled == "true"

	if hasEnabledFilter && enabledFilter {
		if sourceType != "" {
			rules, err = h.repo.GetEnabledForSourceType(ctx, models.DataMappingRuleSourceType(sourceType), nil)
		} else {
			rules, err = h.repo.GetEnabled(ctx)
		}
	} else if sourceType != "" {
		rules, err = h.repo.GetBySourceType(ctx, models.DataMappingRuleSourceType(sourceType))
	} else {
		rules, err = h.repo.GetAll(ctx)
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list data mapping rules: "+err.Error())
		return
	}

	resp := listDataMappingRulesResponse{
		Rules: make([]DataMappingRuleResponse, 0, len(rules)),
		Count: len(rules),
	}
	for _, rule := range rules {
		resp.Rules = append(resp.Rules, DataMappingRuleFromModel(rule))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetByID returns a data mapping rule by ID.
func (h *DataMappingRuleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := models.ParseULID(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	rule, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get data mapping rule: "+err.Error())
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("data mapping rule %s not found", idStr))
		return
	}

	writeJSON(w, http.StatusOK, DataMappingRuleFromModel(rule))
}

// createDataMappingRuleRequest is the request body for creating a data mapping rule.
type createDataMappingRuleRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SourceType  string  `json:"source_type"`
	Expression  string  `json:"expression"`
	Priority    int     `json:"priority"`
	StopOnMatch *bool   `json:"stop_on_match,omitempty"`
	IsEnabled   *bool   `json:"is_enabled,omitempty"`
	SourceID    *string `json:"source_id,omitempty"`
}

// Create creates a new data mapping rule.
func (h *DataMappingRuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createDataMappingRuleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule := &models.DataMappingRule{
		Name:        body.Name,
		Description: body.Description,
		SourceType:  models.DataMappingRuleSourceType(body.SourceType),
		Expression:  body.Expression,
		Priority:    body.Priority,
		StopOnMatch: false,
		IsEnabled:   true,
	}

	if body.StopOnMatch != nil {
		rule.StopOnMatch = *body.StopOnMatch
	}

	if body.IsEnabled != nil {
		rule.IsEnabled = *body.IsEnabled
	}

	if body.SourceID != nil && *body.SourceID != "" {
		id, err := models.ParseULID(*body.SourceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid source_id format")
			return
		}
		rule.SourceID = &id
	}

	if err := h.repo.Create(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create data mapping rule: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, DataMappingRuleFromModel(rule))
}

// updateDataMappingRuleRequest is the request body for updating a data mapping rule.
type updateDataMappingRuleRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	SourceType  *string `json:"source_type,omitempty"`
	Expression  *string `json:"expression,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	StopOnMatch *bool   `json:"stop_on_match,omitempty"`
	IsEnabled   *bool   `json:"is_enabled,omitempty"`
	SourceID    *string `json:"source_id,omitempty"`
}

// Update updates an existing data mapping rule.
func (h *DataMappingRuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := models.ParseULID(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	var body updateDataMappingRuleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get data mapping rule: "+err.Error())
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("data mapping rule %s not found", idStr))
		return
	}

	if body.Name != nil {
		rule.Name = *body.Name
	}
	if body.Description != nil {
		rule.Description = *body.Description
	}
	if body.SourceType != nil {
		rule.SourceType = models.DataMappingRuleSourceType(*body.SourceType)
	}
	if body.Expression != nil {
		rule.Expression = *body.Expression
	}
	if body.Priority != nil {
		rule.Priority = *body.Priority
	}
	if body.StopOnMatch != nil {
		rule.StopOnMatch = *body.StopOnMatch
	}
	if body.IsEnabled != nil {
		rule.IsEnabled = *body.IsEnabled
	}
	if body.SourceID != nil {
		if *body.SourceID == "" {
			rule.SourceID = nil
		} else {
			sourceID, err := models.ParseULID(*body.SourceID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid source_id format")
				return
			}
			rule.SourceID = &sourceID
		}
	}

	if err := h.repo.Update(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update data mapping rule: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, DataMappingRuleFromModel(rule))
}

// Delete deletes a data mapping rule.
func (h *DataMappingRuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := models.ParseULID(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ID format")
		return
	}

	rule, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get data mapping rule: "+err.Error())
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("data mapping rule %s not found", idStr))
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete data mapping rule: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
