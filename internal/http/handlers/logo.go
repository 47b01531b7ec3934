package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/viper"

	"github.com/jmylchreest/tvproxy/internal/service"
	"github.com/jmylchreest/tvproxy/internal/storage"
	"github.com/jmylchreest/tvproxy/internal/urlutil"
)

// LogoHandler handles logo API endpoints.
type LogoHandler struct {
	logoService *service.LogoService
}

// NewLogoHandler creates a new logo handler.
func NewLogoHandler(logoService *service.LogoService) *LogoHandler {
	return &LogoHandler{logoService: logoService}
}

// getBaseURL returns the configured base URL or constructs one from server config.
func getBaseURL() string {
	baseURL := urlutil.NormalizeBaseURL(viper.GetString("server.base_url"))
	if baseURL == "" {
		// Fall back to constructing from host:port
		host := viper.GetString("server.host")
		port := viper.GetInt("server.port")
		if host == "0.0.0.0" || host == "" {
			baseURL = fmt.Sprintf("http://localhost:%d", port)
		} else {
			baseURL = fmt.Sprintf("http://%s:%d", host, port)
		}
	}
	return baseURL
}

// maxUploadedLogoBytes bounds the in-memory multipart parse for logo uploads.
const maxUploadedLogoBytes = 32 << 20

// Register registers the logo routes on the router.
func (h *LogoHandler) Register(router chi.Router) {
	router.Get("/api/v1/logos", h.GetLogos)
	router.Get("/api/v1/logos/stats", h.GetLogoStats)
	router.Post("/api/v1/logos/rescan", h.RescanLogoCache)
	router.Delete("/api/v1/logos/clear-cache", h.ClearLogoCache)
	router.Get("/api/v1/logos/{id}", h.GetLogo)
	router.Delete("/api/v1/logos/{id}", h.DeleteLogo)
	router.Patch("/api/v1/logos/{id}", h.UpdateLogo)
	router.Post("/api/v1/logos/upload", h.UploadLogo)
	router.Put("/api/v1/logos/{id}/replace", h.ReplaceLogo)
}

// RegisterFileServer registers a file server route to serve logo images.
// This serves files at /logos/{filename} from the logo cache.
func (h *LogoHandler) RegisterFileServer(router chi.Router) {
	router.Get("/logos/{filename}", h.ServeLogoFile)
	router.Head("/logos/{filename}", h.ServeLogoFile) // Support HEAD requests for browsers
}

// ServeLogoFile serves a logo image file by filename.
func (h *LogoHandler) ServeLogoFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		http.Error(w, "filename required", http.StatusBadRequest)
		return
	}

	// Extract ID from filename (remove extension)
	id := strings.TrimSuffix(filename, filepath.Ext(filename))

	// Look up the logo metadata
	meta := h.logoService.GetLogoByID(id)
	if meta == nil {
		http.Error(w, "logo not found", http.StatusNotFound)
		return
	}

	// Get the file
	file, err := h.logoService.GetLogoFile(meta)
	if err != nil {
		http.Error(w, "failed to read logo file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	// Set content type
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)

	// Set cache headers (logos are immutable once cached)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	// Copy the file to the response
	io.Copy(w, file)
}

// LogoAsset represents a logo asset in API responses.
type LogoAsset struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	FileName   string  `json:"file_name"`
	FilePath   string  `json:"file_path"`
	FileSize   int64   `json:"file_size"`
	MimeType   string  `json:"mime_type"`
	AssetType  string  `json:"asset_type"` // 'uploaded' | 'cached'
	SourceURL  *string `json:"source_url,omitempty"`
	SourceHint string  `json:"source_hint,omitempty"`
	Width      *int    `json:"width,omitempty"`
	Height     *int    `json:"height,omitempty"`
	FormatType string  `json:"format_type"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	URL        string  `json:"url"`
}

// logoMetadataToAsset converts storage.CachedLogoMetadata to LogoAsset.
func logoMetadataToAsset(meta *storage.CachedLogoMetadata) LogoAsset {
	// Determine asset type
	assetType := "cached"
	if meta.GetSource() == storage.LogoSourceUploaded {
		assetType = "uploaded"
	}

	// Extract format from content type
	formatType := "unknown"
	if meta.ContentType != "" {
		parts := strings.Split(meta.ContentType, "/")
		if len(parts) > 1 {
			formatType = parts[1]
		}
	}

	// Source URL (may be empty for uploaded logos)
	var sourceURL *string
	if meta.OriginalURL != "" {
		sourceURL = &meta.OriginalURL
	}

	// Use relative path for serving
	relPath := meta.RelativeImagePath()

	// Get base URL for constructing full URLs
	baseURL := getBaseURL()

	// Width and height pointers
	var width, height *int
	if meta.Width > 0 {
		width = &meta.Width
	}
	if meta.Height > 0 {
		height = &meta.Height
	}

	name := extractNameFromURL(meta.OriginalURL, meta.GetID())

	return LogoAsset{
		ID:         meta.GetID(),
		Name:       name,
		FileName:   filepath.Base(relPath),
		FilePath:   relPath,
		FileSize:   meta.FileSize,
		MimeType:   meta.ContentType,
		AssetType:  assetType,
		SourceURL:  sourceURL,
		SourceHint: meta.SourceHint,
		Width:      width,
		Height:     height,
		FormatType: formatType,
		CreatedAt:  meta.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  meta.LastSeenAt.Format(time.RFC3339),
		URL:        baseURL + "/logos/" + filepath.Base(relPath),
	}
}

// extractNameFromURL extracts a readable name from a URL or uses the ID.
func extractNameFromURL(url, fallbackID string) string {
	if url == "" {
		return fallbackID
	}
	// Try to extract filename from URL
	parts := strings.Split(url, "/")
	if len(parts) > 0 {
		lastPart := parts[len(parts)-1]
		// Remove query parameters
		if idx := strings.Index(lastPart, "?"); idx != -1 {
			lastPart = lastPart[:idx]
		}
		if lastPart != "" {
			return lastPart
		}
	}
	return fallbackID
}

// GetLogos returns paginated list of logo assets.
func (h *LogoHandler) GetLogos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q, "page", 1)
	limit := queryInt(q, "limit", 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	includeCached := true
	if v := q.Get("include_cached"); v != "" {
		includeCached = v != "false" && v != "0"
	}
	search := q.Get("search")

	allLogos := h.logoService.GetAllLogos()

	// Filter by type and search
	var filtered []*storage.CachedLogoMetadata
	for _, meta := range allLogos {
		// Filter by cached/uploaded
		if !includeCached && meta.GetSource() == storage.LogoSourceCached {
			continue
		}

		// Search filter - search name (derived from URL), URL, source hint, and ID
		if search != "" {
			searchLower := strings.ToLower(search)
			name := extractNameFromURL(meta.OriginalURL, meta.GetID())
			matchesName := strings.Contains(strings.ToLower(name), searchLower)
			matchesHint := strings.Contains(strings.ToLower(meta.SourceHint), searchLower)
			matchesURL := strings.Contains(strings.ToLower(meta.OriginalURL), searchLower)
			matchesID := strings.Contains(strings.ToLower(meta.GetID()), searchLower)
			if !matchesName && !matchesHint && !matchesURL && !matchesID {
				continue
			}
		}

		filtered = append(filtered, meta)
	}

	// Sort: uploaded logos first, then alphabetically by name
	sort.Slice(filtered, func(i, j int) bool {
		// Uploaded logos come first
		iUploaded := filtered[i].GetSource() == storage.LogoSourceUploaded
		jUploaded := filtered[j].GetSource() == storage.LogoSourceUploaded
		if iUploaded != jUploaded {
			return iUploaded // uploaded (true) comes before cached (false)
		}
		// Within same type, sort by name (or ID if no name)
		iName := extractNameFromURL(filtered[i].OriginalURL, filtered[i].GetID())
		jName := extractNameFromURL(filtered[j].OriginalURL, filtered[j].GetID())
		return strings.ToLower(iName) < strings.ToLower(jName)
	})

	// Calculate pagination
	totalCount := len(filtered)
	totalPages := totalCount / limit
	if totalCount%limit > 0 {
		totalPages++
	}

	// Apply pagination
	start := (page - 1) * limit
	end := start + limit
	if start > totalCount {
		start = totalCount
	}
	if end > totalCount {
		end = totalCount
	}

	// Convert to response format
	assets := make([]LogoAsset, 0, end-start)
	for _, meta := range filtered[start:end] {
		assets = append(assets, logoMetadataToAsset(meta))
	}

	writeJSON(w, http.StatusOK, struct {
		Assets     []LogoAsset `json:"assets"`
		TotalCount int         `json:"total_count"`
		Page       int         `json:"page"`
		Limit      int         `json:"limit"`
		TotalPages int         `json:"total_pages"`
	}{
		Assets:     assets,
		TotalCount: totalCount,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	})
}

// queryInt parses an int query parameter, falling back to def on error or absence.
func queryInt(q interface{ Get(string) string }, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// LogoStats represents logo cache statistics.
type LogoStats struct {
	TotalCachedLogos        int      `json:"total_cached_logos"`
	TotalUploadedLogos      int      `json:"total_uploaded_logos"`
	TotalStorageUsed        int64    `json:"total_storage_used"`
	TotalLinkedAssets       int      `json:"total_linked_assets"`
	CacheHitRate            *float64 `json:"cache_hit_rate,omitempty"`
	FilesystemCachedLogos   int      `json:"filesystem_cached_logos"`
	FilesystemCachedStorage int64    `json:"filesystem_cached_storage"`
}

// GetLogoStats returns logo cache statistics.
func (h *LogoHandler) GetLogoStats(w http.ResponseWriter, r *http.Request) {
	stats := h.logoService.GetStats()

	writeJSON(w, http.StatusOK, LogoStats{
		TotalCachedLogos:        stats.CachedLogos,
		TotalUploadedLogos:      stats.UploadedLogos,
		TotalStorageUsed:        stats.TotalSize,
		TotalLinkedAssets:       stats.TotalLogos,
		CacheHitRate:            nil, // Not tracked yet
		FilesystemCachedLogos:   stats.CachedLogos,
		FilesystemCachedStorage: stats.CachedSize,
	})
}

// RescanLogoCache triggers a rescan of the logo cache.
func (h *LogoHandler) RescanLogoCache(w http.ResponseWriter, r *http.Request) {
	// Get count before rescan
	statsBefore := h.logoService.GetStats()

	// Reload index from disk
	if err := h.logoService.LoadIndex(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to rescan logo cache: "+err.Error())
		return
	}

	// Get count after
	statsAfter := h.logoService.GetStats()

	writeJSON(w, http.StatusOK, struct {
		Success       bool   `json:"success"`
		Message       string `json:"message"`
		LogosScanned  int    `json:"logos_scanned"`
		NewLogosFound int    `json:"new_logos_found"`
		Timestamp     string `json:"timestamp"`
	}{
		Success:       true,
		Message:       "Logo cache rescanned",
		LogosScanned:  statsAfter.TotalLogos,
		NewLogosFound: statsAfter.TotalLogos - statsBefore.TotalLogos,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// ClearLogoCache clears all cached logos (not uploaded logos).
func (h *LogoHandler) ClearLogoCache(w http.ResponseWriter, r *http.Request) {
	// Get stats before clearing
	statsBefore := h.logoService.GetStats()

	// Delete only cached (URL-sourced) logos
	allLogos := h.logoService.GetAllLogos()
	cleared := 0
	spaceFreed := int64(0)

	for _, meta := range allLogos {
		if meta.GetSource() == storage.LogoSourceCached {
			spaceFreed += meta.FileSize
			if err := h.logoService.DeleteLogo(meta.GetID()); err == nil {
				cleared++
			}
		}
	}

	message := "Cached logos cleared"
	if cleared == 0 && statsBefore.CachedLogos > 0 {
		message = "Some logos could not be cleared"
	}

	writeJSON(w, http.StatusOK, struct {
		Success      bool   `json:"success"`
		Message      string `json:"message"`
		LogosCleared int    `json:"logos_cleared"`
		SpaceFreed   int64  `json:"space_freed"`
		Timestamp    string `json:"timestamp"`
	}{
		Success:      true,
		Message:      message,
		LogosCleared: cleared,
		SpaceFreed:   spaceFreed,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetLogo returns a specific logo asset.
func (h *LogoHandler) GetLogo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta := h.logoService.GetLogoByID(id)
	if meta == nil {
		writeError(w, http.StatusNotFound, "Logo not found")
		return
	}

	writeJSON(w, http.StatusOK, logoMetadataToAsset(meta))
}

// DeleteLogo deletes a logo asset.
func (h *LogoHandler) DeleteLogo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta := h.logoService.GetLogoByID(id)
	if meta == nil {
		writeError(w, http.StatusNotFound, "Logo not found")
		return
	}

	if err := h.logoService.DeleteLogo(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete logo: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{Success: true, Message: "Logo deleted"})
}

// updateLogoRequest is the request body for updating logo metadata.
type updateLogoRequest struct {
	SourceHint *string `json:"source_hint,omitempty"`
}

// UpdateLogo updates logo metadata without replacing the image.
func (h *LogoHandler) UpdateLogo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta := h.logoService.GetLogoByID(id)
	if meta == nil {
		writeError(w, http.StatusNotFound, "Logo not found")
		return
	}

	var body updateLogoRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.SourceHint != nil {
		meta.SourceHint = *body.SourceHint
	}

	// Persist the updated metadata
	if err := h.logoService.TouchLogo(meta); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update logo: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, logoMetadataToAsset(meta))
}

// uploadedLogoFile extracts a single image file plus an optional display name
// from a multipart logo upload request.
func uploadedLogoFile(r *http.Request) (content []byte, contentType, name string, err error) {
	if err = r.ParseMultipartForm(maxUploadedLogoBytes); err != nil {
		return nil, "", "", fmt.Errorf("failed to parse multipart form: %w", err)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		return nil, "", "", fmt.Errorf("no file provided: %w", err)
	}
	defer file.Close()

	content, err = io.ReadAll(file)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to read uploaded file: %w", err)
	}

	contentType = fileHeader.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detectImageContentType(content)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", "", fmt.Errorf("invalid file type: must be an image")
	}

	name = fileHeader.Filename
	if v := r.FormValue("name"); v != "" {
		name = v
	}

	return content, contentType, name, nil
}

// UploadLogo handles logo file upload.
func (h *LogoHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	content, contentType, name, err := uploadedLogoFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := h.logoService.UploadLogo(r.Context(), name, contentType, bytes.NewReader(content))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upload logo: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, logoMetadataToAsset(meta))
}

// detectImageContentType detects the content type from image magic bytes.
func detectImageContentType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}

	// Check magic bytes
	switch {
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46:
		return "image/gif"
	case data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46:
		// Could be WEBP
		if len(data) >= 12 && data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
			return "image/webp"
		}
		return "application/octet-stream"
	case data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01 && data[3] == 0x00:
		return "image/x-icon"
	default:
		// Check for SVG (text-based)
		if bytes.Contains(data[:min(len(data), 256)], []byte("<svg")) {
			return "image/svg+xml"
		}
		return "application/octet-stream"
	}
}

// ReplaceLogo handles logo image replacement.
func (h *LogoHandler) ReplaceLogo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	content, contentType, name, err := uploadedLogoFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta, err := h.logoService.ReplaceLogo(r.Context(), id, name, contentType, bytes.NewReader(content))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "Logo not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to replace logo: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, logoMetadataToAsset(meta))
}
