package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// FeatureHandler handles feature flags API endpoints.
// Feature state is held in memory and reset on restart.
type FeatureHandler struct {
	mu     sync.RWMutex
	flags  map[string]bool
	config map[string]map[string]interface{}
}

// NewFeatureHandler creates a new feature handler with default flags.
func NewFeatureHandler() *FeatureHandler {
	return &FeatureHandler{
		flags: map[string]bool{
			"debug-frontend": false, // Controls frontend debug logging
			"feature-cache":  false, // Controls whether feature flags are cached by frontend
		},
		config: map[string]map[string]interface{}{
			// Cache configuration (only used when feature-cache is true)
			"feature-cache": {
				"cache-duration": 300000, // 5 minutes in milliseconds
			},
		},
	}
}

// Register registers the feature routes on the router.
func (h *FeatureHandler) Register(router chi.Router) {
	router.Get("/api/v1/features", h.GetFeatures)
	router.Put("/api/v1/features", h.UpdateFeatures)
}

// FeaturesData represents the feature flags data.
type FeaturesData struct {
	Flags     map[string]bool                   `json:"flags"`
	Config    map[string]map[string]interface{} `json:"config"`
	Timestamp string                             `json:"timestamp"`
}

// getFeaturesResponse is the response for getting feature flags.
type getFeaturesResponse struct {
	Success bool         `json:"success"`
	Data    FeaturesData `json:"data"`
}

// GetFeatures returns current feature flags.
func (h *FeatureHandler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Copy current state to avoid data races
	flags := make(map[string]bool, len(h.flags))
	for k, v := range h.flags {
		flags[k] = v
	}

	config := make(map[string]map[string]interface{}, len(h.config))
	for k, v := range h.config {
		configCopy := make(map[string]interface{}, len(v))
		for ck, cv := range v {
			configCopy[ck] = cv
		}
		config[k] = configCopy
	}

	writeJSON(w, http.StatusOK, getFeaturesResponse{
		Success: true,
		Data: FeaturesData{
			Flags:     flags,
			Config:    config,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// updateFeaturesRequest is the request body for updating feature flags.
type updateFeaturesRequest struct {
	Flags  map[string]bool                   `json:"flags"`
	Config map[string]map[string]interface{} `json:"config"`
}

// updateFeaturesResponse is the response for updating feature flags.
type updateFeaturesResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	FlagsUpdated   int    `json:"flags_updated"`
	ConfigsUpdated int    `json:"configs_updated"`
	Timestamp      string `json:"timestamp"`
}

// UpdateFeatures updates feature flags at runtime.
// Changes are held in memory and reset on restart.
func (h *FeatureHandler) UpdateFeatures(w http.ResponseWriter, r *http.Request) {
	var body updateFeaturesRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	flagsUpdated := 0
	configsUpdated := 0

	// Update flags
	for key, value := range body.Flags {
		h.flags[key] = value
		flagsUpdated++
	}

	// Update config
	for key, value := range body.Config {
		if h.config[key] == nil {
			h.config[key] = make(map[string]interface{})
		}
		for ck, cv := range value {
			h.config[key][ck] = cv
		}
		configsUpdated++
	}

	writeJSON(w, http.StatusOK, updateFeaturesResponse{
		Success:        true,
		Message:        "Feature flags updated (changes are held in memory, reset on restart)",
		FlagsUpdated:   flagsUpdated,
		ConfigsUpdated: configsUpdated,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}
