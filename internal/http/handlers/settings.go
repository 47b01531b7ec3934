package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/observability"
	"github.com/spf13/viper"
)

// SettingsHandler handles settings API endpoints.
type SettingsHandler struct{}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler() *SettingsHandler {
	return &SettingsHandler{}
}

// Register registers the settings routes on the router.
func (h *SettingsHandler) Register(router chi.Router) {
	router.Get("/api/v1/settings", h.GetSettings)
	router.Put("/api/v1/settings", h.UpdateSettings)
	router.Get("/api/v1/settings/info", h.GetSettingsInfo)
	router.Get("/api/v1/settings/startup", h.GetStartupConfig)
}

// RuntimeSettings represents the runtime settings data.
type RuntimeSettings struct {
	LogLevel             string `json:"log_level"`
	EnableRequestLogging bool   `json:"enable_request_logging"`
}

// settingsResponse is the shared response shape for get/update settings.
type settingsResponse struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	Settings       RuntimeSettings `json:"settings"`
	AppliedChanges []string        `json:"applied_changes"`
}

// GetSettings returns current runtime settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse{
		Success: true,
		Message: "Settings retrieved",
		Settings: RuntimeSettings{
			LogLevel:             observability.GetLogLevel(),
			EnableRequestLogging: observability.IsRequestLoggingEnabled(),
		},
		AppliedChanges: []string{},
	})
}

// updateSettingsRequest is the request body for updating settings.
type updateSettingsRequest struct {
	LogLevel             *string `json:"log_level,omitempty"`
	EnableRequestLogging *bool   `json:"enable_request_logging,omitempty"`
}

// UpdateSettings updates runtime settings.
// Log level changes take effect immediately for all loggers using GlobalLogLevel.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body updateSettingsRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	appliedChanges := []string{}

	if body.LogLevel != nil {
		observability.SetLogLevel(*body.LogLevel)
		appliedChanges = append(appliedChanges, "log_level")
	}

	if body.EnableRequestLogging != nil {
		observability.SetRequestLogging(*body.EnableRequestLogging)
		appliedChanges = append(appliedChanges, "enable_request_logging")
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		Success: true,
		Message: "Settings updated successfully",
		Settings: RuntimeSettings{
			LogLevel:             observability.GetLogLevel(),
			EnableRequestLogging: observability.IsRequestLoggingEnabled(),
		},
		AppliedChanges: appliedChanges,
	})
}

// SettingOption represents an option for a setting field.
type SettingOption struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// SettingField represents metadata about a setting field.
type SettingField struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Default     any             `json:"default"`
	Options     []SettingOption `json:"options,omitempty"`
}

// settingsInfoResponse is the response for settings metadata.
type settingsInfoResponse struct {
	Fields    []SettingField `json:"fields"`
	Version   string         `json:"version"`
	Timestamp string         `json:"timestamp"`
}

// GetSettingsInfo returns metadata about available settings.
func (h *SettingsHandler) GetSettingsInfo(w http.ResponseWriter, r *http.Request) {
	resp := settingsInfoResponse{}
	resp.Fields = []SettingField{
		{
			Name:        "log_level",
			Type:        "select",
			Description: "Logging verbosity level",
			Default:     "info",
			Options: []SettingOption{
				{Value: "trace", Label: "Trace", Description: "Most verbose logging"},
				{Value: "debug", Label: "Debug", Description: "Debug level logging"},
				{Value: "info", Label: "Info", Description: "Standard logging"},
				{Value: "warn", Label: "Warning", Description: "Warnings and errors only"},
				{Value: "error", Label: "Error", Description: "Errors only"},
			},
		},
		{
			Name:        "enable_request_logging",
			Type:        "boolean",
			Description: "Enable logging of HTTP requests",
			Default:     false,
		},
	}
	resp.Version = "1.0.0"
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, resp)
}

// StartupConfigSection represents a section of startup configuration.
type StartupConfigSection struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Settings    []StartupConfigSetting `json:"settings"`
}

// StartupConfigSetting represents a single startup configuration setting.
type StartupConfigSetting struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// startupConfigResponse is the response for the startup configuration endpoint.
type startupConfigResponse struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Sections  []StartupConfigSection `json:"sections"`
	Timestamp string                 `json:"timestamp"`
}

// GetStartupConfig returns read-only startup configuration.
// These settings require a restart to change.
func (h *SettingsHandler) GetStartupConfig(w http.ResponseWriter, r *http.Request) {
	resp := startupConfigResponse{}
	resp.Success = true
	resp.Message = "Startup configuration retrieved (read-only, requires restart to change)"
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	// Pipeline/Logo settings
	pipelineSection := StartupConfigSection{
		Name:        "Pipeline",
		Description: "Logo caching and pipeline processing configuration",
		Settings: []StartupConfigSetting{
			{
				Key:         "pipeline.logo_concurrency",
				Value:       viper.GetInt("pipeline.logo_concurrency"),
				Type:        "integer",
				Description: "Number of concurrent logo downloads",
			},
			{
				Key:         "pipeline.logo_timeout",
				Value:       viper.GetDuration("pipeline.logo_timeout").String(),
				Type:        "duration",
				Description: "Timeout for individual logo downloads",
			},
			{
				Key:         "pipeline.logo_retry_attempts",
				Value:       viper.GetInt("pipeline.logo_retry_attempts"),
				Type:        "integer",
				Description: "Number of retry attempts for failed logo downloads",
			},
			{
				Key:         "pipeline.logo_circuit_breaker",
				Value:       viper.GetString("pipeline.logo_circuit_breaker"),
				Type:        "string",
				Description: "Circuit breaker namespace for logo downloads",
			},
			{
				Key:         "pipeline.logo_batch_size",
				Value:       viper.GetInt("pipeline.logo_batch_size"),
				Type:        "integer",
				Description: "Number of logos to process per batch",
			},
			{
				Key:         "pipeline.stream_batch_size",
				Value:       viper.GetInt("pipeline.stream_batch_size"),
				Type:        "integer",
				Description: "Number of streams to process per batch",
			},
		},
	}

	// Relay settings
	relaySection := StartupConfigSection{
		Name:        "Relay",
		Description: "Stream relay configuration",
		Settings: []StartupConfigSetting{
			{
				Key:         "relay.enabled",
				Value:       viper.GetBool("relay.enabled"),
				Type:        "boolean",
				Description: "Enable stream relay functionality",
			},
			{
				Key:         "relay.max_concurrent_streams",
				Value:       viper.GetInt("relay.max_concurrent_streams"),
				Type:        "integer",
				Description: "Maximum number of concurrent relay streams",
			},
			{
				Key:         "relay.circuit_breaker_threshold",
				Value:       viper.GetInt("relay.circuit_breaker_threshold"),
				Type:        "integer",
				Description: "Failures before circuit breaker opens",
			},
			{
				Key:         "relay.circuit_breaker_timeout",
				Value:       viper.GetDuration("relay.circuit_breaker_timeout").String(),
				Type:        "duration",
				Description: "Circuit breaker reset timeout",
			},
			{
				Key:         "relay.stream_timeout",
				Value:       viper.GetDuration("relay.stream_timeout").String(),
				Type:        "duration",
				Description: "Timeout for individual stream connections",
			},
		},
	}

	// Ingestion settings
	ingestionSection := StartupConfigSection{
		Name:        "Ingestion",
		Description: "Source ingestion configuration",
		Settings: []StartupConfigSetting{
			{
				Key:         "ingestion.http_timeout",
				Value:       viper.GetDuration("ingestion.http_timeout").String(),
				Type:        "duration",
				Description: "HTTP timeout for source fetching",
			},
			{
				Key:         "ingestion.max_concurrent",
				Value:       viper.GetInt("ingestion.max_concurrent"),
				Type:        "integer",
				Description: "Maximum concurrent ingestion operations",
			},
			{
				Key:         "ingestion.retry_attempts",
				Value:       viper.GetInt("ingestion.retry_attempts"),
				Type:        "integer",
				Description: "Number of retry attempts for failed ingestion",
			},
			{
				Key:         "ingestion.retry_delay",
				Value:       viper.GetDuration("ingestion.retry_delay").String(),
				Type:        "duration",
				Description: "Delay between retry attempts",
			},
		},
	}

	// Server settings
	serverSection := StartupConfigSection{
		Name:        "Server",
		Description: "HTTP server configuration",
		Settings: []StartupConfigSetting{
			{
				Key:         "server.host",
				Value:       viper.GetString("server.host"),
				Type:        "string",
				Description: "Server bind address",
			},
			{
				Key:         "server.port",
				Value:       viper.GetInt("server.port"),
				Type:        "integer",
				Description: "Server listen port",
			},
			{
				Key:         "server.read_timeout",
				Value:       viper.GetDuration("server.read_timeout").String(),
				Type:        "duration",
				Description: "HTTP read timeout",
			},
			{
				Key:         "server.write_timeout",
				Value:       viper.GetDuration("server.write_timeout").String(),
				Type:        "duration",
				Description: "HTTP write timeout",
			},
		},
	}

	// Storage settings
	storageSection := StartupConfigSection{
		Name:        "Storage",
		Description: "File storage configuration",
		Settings: []StartupConfigSetting{
			{
				Key:         "storage.base_dir",
				Value:       viper.GetString("storage.base_dir"),
				Type:        "string",
				Description: "Base directory for file storage",
			},
			{
				Key:         "storage.logo_retention",
				Value:       viper.GetDuration("storage.logo_retention").String(),
				Type:        "duration",
				Description: "Logo file retention period",
			},
			{
				Key:         "storage.max_logo_size",
				Value:       viper.GetInt64("storage.max_logo_size"),
				Type:        "integer",
				Description: "Maximum logo file size in bytes",
			},
		},
	}

	resp.Sections = []StartupConfigSection{
		pipelineSection,
		relaySection,
		ingestionSection,
		serverSection,
		storageSection,
	}

	writeJSON(w, http.StatusOK, resp)
}
