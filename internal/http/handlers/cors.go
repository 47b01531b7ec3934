package handlers

import "net/http"

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	AllowOrigin   string
	AllowMethods  string
	AllowHeaders  string
	ExposeHeaders string
}

// DefaultCORSConfig returns the default CORS configuration for streaming endpoints.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:   "*",
		AllowMethods:  "GET, OPTIONS",
		AllowHeaders:  "Content-Type, Accept, Range",
		ExposeHeaders: "Content-Length, Content-Range",
	}
}

// SetCORSHeaders sets CORS headers on a response for streaming endpoints.
func SetCORSHeaders(w http.ResponseWriter, config CORSConfig) {
	w.Header().Set("Access-Control-Allow-Origin", config.AllowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", config.AllowMethods)
	w.Header().Set("Access-Control-Allow-Headers", config.AllowHeaders)
	if config.ExposeHeaders != "" {
		w.Header().Set("Access-Control-Expose-Headers", config.ExposeHeaders)
	}
}

// SetDefaultCORSHeaders sets the default CORS headers for streaming endpoints.
func SetDefaultCORSHeaders(w http.ResponseWriter) {
	SetCORSHeaders(w, DefaultCORSConfig())
}
