package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/expression"
	"github.com/jmylchreest/tvproxy/internal/models"
	"github.com/jmylchreest/tvproxy/internal/repository"
)

// ExpressionHandler handles expression-related API endpoints.
type ExpressionHandler struct {
	validator      *expression.Validator
	channelRepo    repository.ChannelRepository
	epgProgramRepo repository.EpgProgramRepository
}

// NewExpressionHandler creates a new expression handler.
func NewExpressionHandler(channelRepo repository.ChannelRepository, epgProgramRepo repository.EpgProgramRepository) *ExpressionHandler {
	return &ExpressionHandler{
		validator:      expression.NewValidator(nil), // Uses global registry
		channelRepo:    channelRepo,
		epgProgramRepo: epgProgramRepo,
	}
}

// Register registers the expression routes on the router.
func (h *ExpressionHandler) Register(router chi.Router) {
	router.Get("/api/v1/filters/fields/stream", h.GetFilterFieldsStream)
	router.Get("/api/v1/filters/fields/epg", h.GetFilterFieldsEPG)
	router.Get("/api/v1/data-mapping/fields/stream", h.GetDataMappingFieldsStream)
	router.Get("/api/v1/data-mapping/fields/epg", h.GetDataMappingFieldsEPG)
	router.Get("/api/v1/data-mapping/helpers", h.GetDataMappingHelpers)
	router.Get("/api/v1/client-detection/fields", h.GetClientDetectionFields)
	router.Get("/api/v1/autocomplete/channel-values", h.AutocompleteChannelValues)
	router.Post("/api/v1/expressions/validate", h.Validate)
	router.Post("/api/v1/filters/test", h.TestFilterExpression)
	router.Post("/api/v1/data-mapping/test", h.TestDataMappingExpression)
}

// validateExpressionRequest is the request body for expression validation.
type validateExpressionRequest struct {
	Expression string `json:"expression"`
}

// ValidateExpressionResponse is the response body for expression validation.
type ValidateExpressionResponse struct {
	IsValid             bool                        `json:"is_valid"`
	CanonicalExpression string                      `json:"canonical_expression,omitempty"`
	Errors              []ExpressionValidationError `json:"errors"`
	ExpressionTree      map[string]any              `json:"expression_tree,omitempty"`
}

// ExpressionValidationError represents a single validation error.
type ExpressionValidationError struct {
	Category   string `json:"category"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Position   *int   `json:"position,omitempty"`
	Context    string `json:"context,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Validate validates an expression.
func (h *ExpressionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var body validateExpressionRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Parse domain parameter
	var domains []expression.ExpressionDomain
	domainParam := r.URL.Query().Get("domain")
	if domainParam != "" {
		for _, part := range strings.Split(domainParam, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if domain, ok := expression.ParseExpressionDomain(part); ok {
				domains = append(domains, domain)
			}
		}
	}

	result := h.validator.Validate(body.Expression, domains...)

	resp := ValidateExpressionResponse{
		IsValid:             result.IsValid,
		CanonicalExpression: result.CanonicalExpression,
		Errors:              make([]ExpressionValidationError, 0, len(result.Errors)),
	}

	for _, err := range result.Errors {
		resp.Errors = append(resp.Errors, ExpressionValidationError{
			Category:   string(err.Category),
			ErrorType:  err.ErrorType,
			Message:    err.Message,
			Details:    err.Details,
			Position:   err.Position,
			Context:    err.Context,
			Suggestion: err.Suggestion,
		})
	}

	if result.ExpressionTree != nil {
		var tree map[string]any
		if err := json.Unmarshal(result.ExpressionTree, &tree); err == nil {
			resp.ExpressionTree = tree
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// FieldResponse represents a field in the API response.
type FieldResponse struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases,omitempty"`
	ReadOnly    bool     `json:"read_only"`
	SourceType  string   `json:"source_type"`
}

// getFieldsForDomain returns fields for a given domain.
func (h *ExpressionHandler) getFieldsForDomain(domain expression.FieldDomain, sourceType string) []FieldResponse {
	registry := expression.DefaultRegistry()
	fields := registry.ListByDomain(domain)

	resp := make([]FieldResponse, 0, len(fields))
	for _, field := range fields {
		resp = append(resp, FieldResponse{
			Name:        field.Name,
			Type:        string(field.Type),
			Description: field.Description,
			Aliases:     field.Aliases,
			ReadOnly:    field.ReadOnly,
			SourceType:  sourceType,
		})
	}

	return resp
}

// GetFilterFieldsStream returns fields available for stream filtering.
func (h *ExpressionHandler) GetFilterFieldsStream(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.getFieldsForDomain(expression.DomainStream, "stream"))
}

// GetFilterFieldsEPG returns fields available for EPG filtering.
func (h *ExpressionHandler) GetFilterFieldsEPG(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.getFieldsForDomain(expression.DomainEPG, "epg"))
}

// GetDataMappingFieldsStream returns fields available for stream data mapping.
func (h *ExpressionHandler) GetDataMappingFieldsStream(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.getFieldsForDomain(expression.DomainStream, "stream"))
}

// GetDataMappingFieldsEPG returns fields available for EPG data mapping.
func (h *ExpressionHandler) GetDataMappingFieldsEPG(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.getFieldsForDomain(expression.DomainEPG, "epg"))
}

// HelperCompletionOption represents a static completion option.
type HelperCompletionOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// HelperCompletion represents the completion configuration for a helper.
type HelperCompletion struct {
	Type         string                   `json:"type"`
	Endpoint     string                   `json:"endpoint,omitempty"`
	QueryParam   string                   `json:"query_param,omitempty"`
	DisplayField string                   `json:"display_field,omitempty"`
	ValueField   string                   `json:"value_field,omitempty"`
	PreviewField string                   `json:"preview_field,omitempty"`
	MinChars     int                      `json:"min_chars,omitempty"`
	DebounceMs   int                      `json:"debounce_ms,omitempty"`
	MaxResults   int                      `json:"max_results,omitempty"`
	Placeholder  string                   `json:"placeholder,omitempty"`
	EmptyMessage string                   `json:"empty_message,omitempty"`
	Options      []HelperCompletionOption `json:"options,omitempty"`
}

// HelperResponse represents a helper in the API response.
type HelperResponse struct {
	Name        string            `json:"name"`
	Prefix      string            `json:"prefix"`
	Description string            `json:"description"`
	Example     string            `json:"example"`
	Completion  *HelperCompletion `json:"completion,omitempty"`
}

// getDataMappingHelpersResponse is the response for the helpers listing endpoint.
type getDataMappingHelpersResponse struct {
	Helpers []HelperResponse `json:"helpers"`
}

// GetDataMappingHelpers returns available helper functions for data mapping expressions.
func (h *ExpressionHandler) GetDataMappingHelpers(w http.ResponseWriter, r *http.Request) {
	helpers := []HelperResponse{
		{
			Name:        "time",
			Prefix:      "@time:",
			Description: "Time-related operations for date/time manipulation",
			Example:     "@time:now",
			Completion: &HelperCompletion{
				Type: "static",
				Options: []HelperCompletionOption{
					{Label: "now", Value: "now", Description: "Current time in RFC3339 format"},
					{Label: "parse", Value: "parse", Description: "Parse a time string (input|format)"},
					{Label: "format", Value: "format", Description: "Format a time (input|output_format)"},
					{Label: "add", Value: "add", Description: "Add duration to time (base_time|duration)"},
				},
			},
		},
		{
			Name:        "logo",
			Prefix:      "@logo:",
			Description: "Logo lookup by ULID - resolves to logo URL (uploaded logos only)",
			Example:     "@logo:01ARZ3NDEKTSV4RRFFQ69G5FAV",
			Completion: &HelperCompletion{
				Type:         "search",
				Endpoint:     "/api/v1/logos?include_cached=false",
				QueryParam:   "search",
				DisplayField: "name",
				ValueField:   "id",
				PreviewField: "url",
				MinChars:     2,
				DebounceMs:   300,
				MaxResults:   10,
				Placeholder:  "Search logos...",
				EmptyMessage: "No logos found",
			},
		},
		{
			Name:        "group",
			Prefix:      "@group:",
			Description: "Autocomplete group_title values from your channel data",
			Example:     "@group:Sports → \"Sports\"",
			Completion: &HelperCompletion{
				Type:         "search",
				Endpoint:     "/api/v1/autocomplete/channel-values?field=group_title&quote=true",
				QueryParam:   "q",
				DisplayField: "value",
				ValueField:   "value",
				MinChars:     1,
				DebounceMs:   200,
				MaxResults:   20,
				Placeholder:  "Search groups...",
				EmptyMessage: "No groups found",
			},
		},
		{
			Name:        "channel",
			Prefix:      "@channel:",
			Description: "Autocomplete channel_name values from your channel data",
			Example:     "@channel:ESPN → \"ESPN HD\"",
			Completion: &HelperCompletion{
				Type:         "search",
				Endpoint:     "/api/v1/autocomplete/channel-values?field=channel_name&quote=true",
				QueryParam:   "q",
				DisplayField: "value",
				ValueField:   "value",
				MinChars:     2,
				DebounceMs:   200,
				MaxResults:   20,
				Placeholder:  "Search channels...",
				EmptyMessage: "No channels found",
			},
		},
	}

	writeJSON(w, http.StatusOK, getDataMappingHelpersResponse{Helpers: helpers})
}

// GetClientDetectionFields returns fields available for client detection expressions.
func (h *ExpressionHandler) GetClientDetectionFields(w http.ResponseWriter, r *http.Request) {
	fields := []FieldResponse{
		{Name: "user_agent", Type: "string", Description: "HTTP User-Agent header", SourceType: "client"},
		{Name: "client_ip", Type: "string", Description: "Client IP address", SourceType: "client"},
		{Name: "request_path", Type: "string", Description: "Request URL path", SourceType: "client"},
		{Name: "request_url", Type: "string", Description: "Full request URL", SourceType: "client"},
		{Name: "query_params", Type: "string", Description: "Raw query string", SourceType: "client"},
		{Name: "x_forwarded_for", Type: "string", Description: "X-Forwarded-For header", SourceType: "client"},
		{Name: "x_real_ip", Type: "string", Description: "X-Real-IP header", SourceType: "client"},
		{Name: "accept", Type: "string", Description: "Accept header", SourceType: "client"},
		{Name: "accept_language", Type: "string", Description: "Accept-Language header", SourceType: "client"},
		{Name: "host", Type: "string", Description: "Host header", SourceType: "client"},
		{Name: "referer", Type: "string", Description: "Referer header", SourceType: "client"},
	}

	writeJSON(w, http.StatusOK, fields)
}

// AutocompleteValueResponse represents a single autocomplete suggestion.
type AutocompleteValueResponse struct {
	Value       string `json:"value"`
	Count       int64  `json:"count"`
	Description string `json:"description,omitempty"`
}

// AutocompleteChannelValues returns distinct values for a channel field with occurrence counts.
func (h *ExpressionHandler) AutocompleteChannelValues(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	field := query.Get("field")
	if field == "" {
		writeError(w, http.StatusBadRequest, "field query parameter is required")
		return
	}
	search := query.Get("q")
	limit := queryInt(query, "limit", 20)
	if limit <= 0 {
		limit = 20
	}
	quote := query.Get("quote") == "true"

	results, err := h.channelRepo.GetDistinctFieldValues(r.Context(), field, search, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := make([]AutocompleteValueResponse, 0, len(results))
	for _, res := range results {
		value := res.Value
		if quote {
			value = `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
		}
		resp = append(resp, AutocompleteValueResponse{
			Value:       value,
			Count:       res.Count,
			Description: fmt.Sprintf("%d channels", res.Count),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// testFilterExpressionRequest is the request body for testing a filter expression.
type testFilterExpressionRequest struct {
	SourceID         string `json:"source_id"`
	SourceType       string `json:"source_type"`
	FilterExpression string `json:"filter_expression"`
	IsInverse        bool   `json:"is_inverse"`
}

// testFilterExpressionResponse is the response for testing a filter expression.
type testFilterExpressionResponse struct {
	Success       bool   `json:"success"`
	MatchedCount  int    `json:"matched_count"`
	TotalChannels int    `json:"total_channels"`
	Error         string `json:"error,omitempty"`
}

// TestFilterExpression tests a filter expression against a source.
func (h *ExpressionHandler) TestFilterExpression(w http.ResponseWriter, r *http.Request) {
	var body testFilterExpressionRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	resp := testFilterExpressionResponse{}

	sourceID, err := models.ParseULID(body.SourceID)
	if err != nil {
		resp.Error = "invalid source_id format"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	parsed, err := expression.PreprocessAndParse(body.FilterExpression)
	if err != nil {
		resp.Error = "invalid expression: " + err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	evaluator := expression.NewEvaluator()
	evaluator.SetCaseSensitive(false)

	var matchCount, totalCount int

	if body.SourceType == "stream" {
		err = h.channelRepo.GetBySourceID(ctx, sourceID, func(ch *models.Channel) error {
			totalCount++
			fields := map[string]string{
				"channel_name": ch.ChannelName,
				"tvg_id":       ch.TvgID,
				"tvg_name":     ch.TvgName,
				"tvg_logo":     ch.TvgLogo,
				"group_title":  ch.GroupTitle,
				"stream_url":   ch.StreamURL,
			}
			evalCtx := expression.NewChannelEvalContext(fields)

			result, evalErr := evaluator.Evaluate(parsed, evalCtx)
			if evalErr != nil {
				return nil
			}

			matches := result.Matches
			if body.IsInverse {
				matches = !matches
			}
			if matches {
				matchCount++
			}
			return nil
		})
		if err != nil {
			resp.Error = "failed to read channels: " + err.Error()
			writeJSON(w, http.StatusOK, resp)
			return
		}
	} else {
		err = h.epgProgramRepo.GetBySourceID(ctx, sourceID, func(prog *models.EpgProgram) error {
			totalCount++
			fields := map[string]string{
				"programme_title":       prog.Title,
				"programme_description": prog.Description,
				"programme_category":    prog.Category,
			}
			if !prog.Start.IsZero() {
				fields["programme_start"] = prog.Start.Format("2006-01-02T15:04:05Z07:00")
			}
			if !prog.Stop.IsZero() {
				fields["programme_stop"] = prog.Stop.Format("2006-01-02T15:04:05Z07:00")
			}
			evalCtx := expression.NewProgramEvalContext(fields)

			result, evalErr := evaluator.Evaluate(parsed, evalCtx)
			if evalErr != nil {
				return nil
			}

			matches := result.Matches
			if body.IsInverse {
				matches = !matches
			}
			if matches {
				matchCount++
			}
			return nil
		})
		if err != nil {
			resp.Error = "failed to read programs: " + err.Error()
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	resp.Success = true
	resp.MatchedCount = matchCount
	resp.TotalChannels = totalCount

	writeJSON(w, http.StatusOK, resp)
}

// testDataMappingExpressionRequest is the request body for testing a data mapping expression.
type testDataMappingExpressionRequest struct {
	SourceIDs  []string `json:"source_ids"`
	SourceType string   `json:"source_type"`
	Expression string   `json:"expression"`
}

// testDataMappingExpressionResponse is the response for testing a data mapping expression.
type testDataMappingExpressionResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	AffectedChannels int    `json:"affected_channels"`
	TotalChannels    int    `json:"total_channels"`
}

// TestDataMappingExpression tests a data mapping expression against sources.
func (h *ExpressionHandler) TestDataMappingExpression(w http.ResponseWriter, r *http.Request) {
	var body testDataMappingExpressionRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	resp := testDataMappingExpressionResponse{}

	parsed, err := expression.PreprocessAndParse(body.Expression)
	if err != nil {
		resp.Message = "invalid expression: " + err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	evaluator := expression.NewEvaluator()
	evaluator.SetCaseSensitive(false)

	var affectedCount, totalCount int

	for _, sourceIDStr := range body.SourceIDs {
		sourceID, err := models.ParseULID(sourceIDStr)
		if err != nil {
			continue
		}

		if body.SourceType == "stream" {
			err = h.channelRepo.GetBySourceID(ctx, sourceID, func(ch *models.Channel) error {
				totalCount++
				fields := map[string]string{
					"channel_name": ch.ChannelName,
					"tvg_id":       ch.TvgID,
					"tvg_name":     ch.TvgName,
					"tvg_logo":     ch.TvgLogo,
					"group_title":  ch.GroupTitle,
					"stream_url":   ch.StreamURL,
				}
				evalCtx := expression.NewChannelEvalContext(fields)

				result, evalErr := evaluator.Evaluate(parsed, evalCtx)
				if evalErr != nil {
					return nil
				}
				if result.Matches {
					affectedCount++
				}
				return nil
			})
			if err != nil {
				continue
			}
		} else {
			err = h.epgProgramRepo.GetBySourceID(ctx, sourceID, func(prog *models.EpgProgram) error {
				totalCount++
				fields := map[string]string{
					"programme_title":       prog.Title,
					"programme_description": prog.Description,
					"programme_category":    prog.Category,
				}
				if !prog.Start.IsZero() {
					fields["programme_start"] = prog.Start.Format("2006-01-02T15:04:05Z07:00")
				}
				if !prog.Stop.IsZero() {
					fields["programme_stop"] = prog.Stop.Format("2006-01-02T15:04:05Z07:00")
				}
				evalCtx := expression.NewProgramEvalContext(fields)

				result, evalErr := evaluator.Evaluate(parsed, evalCtx)
				if evalErr != nil {
					return nil
				}
				if result.Matches {
					affectedCount++
				}
				return nil
			})
			if err != nil {
				continue
			}
		}
	}

	resp.Success = true
	resp.AffectedChannels = affectedCount
	resp.TotalChannels = totalCount
	if totalCount > 0 {
		resp.Message = fmt.Sprintf("Expression would affect %d of %d records", affectedCount, totalCount)
	}

	writeJSON(w, http.StatusOK, resp)
}
