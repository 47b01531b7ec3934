package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/tvproxy/internal/models"
	"gorm.io/gorm"
)

// ChannelHandler handles channel browsing API endpoints.
type ChannelHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(db *gorm.DB) *ChannelHandler {
	return &ChannelHandler{
		db:     db,
		logger: slog.Default(),
	}
}

// getCodecMapForStreamURLs retrieves codec info for multiple stream URLs efficiently.
// Returns a map of stream_url -> LastKnownCodec for easy lookup.
func (h *ChannelHandler) getCodecMapForStreamURLs(ctx context.Context, streamURLs []string) map[string]*models.LastKnownCodec {
	codecMap := make(map[string]*models.LastKnownCodec)
	if len(streamURLs) == 0 {
		return codecMap
	}

	var codecs []models.LastKnownCodec
	if err := h.db.WithContext(ctx).
		Where("stream_url IN ?", streamURLs).
		Find(&codecs).Error; err != nil {
		h.logger.Warn("Failed to fetch codec info for channels", "error", err)
		return codecMap
	}

	for i := range codecs {
		codecMap[codecs[i].StreamURL] = &codecs[i]
	}
	return codecMap
}

// WithLogger sets the logger for the handler.
func (h *ChannelHandler) WithLogger(logger *slog.Logger) *ChannelHandler {
	h.logger = logger
	return h
}

// Register registers the channel routes on the router.
func (h *ChannelHandler) Register(router chi.Router) {
	router.Get("/api/v1/channels", h.ListChannels)
	router.Get("/api/v1/channels/groups", h.GetGroups)
	router.Get("/api/v1/channels/{id}", h.GetChannel)
}

// listChannelsResponse is the response for listing channels.
type listChannelsResponse struct {
	Success    bool              `json:"success"`
	Items      []ChannelResponse `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PerPage    int               `json:"per_page"`
	TotalPages int               `json:"total_pages"`
	HasNext    bool              `json:"has_next"`
	HasPrev    bool              `json:"has_previous"`
}

// ListChannels returns paginated list of channels.
func (h *ChannelHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := queryInt(query, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(query, "limit", 50)
	if limit < 1 {
		limit = 1
	} else if limit > 500 {
		limit = 500
	}
	search := query.Get("search")
	sourceID := query.Get("source_id")
	group := query.Get("group")
	sortBy := query.Get("sort_by")
	if sortBy == "" {
		sortBy = "channel_name"
	}
	sortOrder := query.Get("sort_order")
	if sortOrder == "" {
		sortOrder = "asc"
	}

	var channels []models.Channel
	var total int64

	ctx := r.Context()
	dbQuery := h.db.WithContext(ctx).Model(&models.Channel{})

	// Apply filters — source_id supports comma-separated values for multi-source filtering
	if sourceID != "" {
		ids := strings.Split(sourceID, ",")
		trimmed := make([]string, 0, len(ids))
		for _, id := range ids {
			if s := strings.TrimSpace(id); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) == 1 {
			dbQuery = dbQuery.Where("source_id = ?", trimmed[0])
		} else if len(trimmed) > 1 {
			dbQuery = dbQuery.Where("source_id IN ?", trimmed)
		}
	}
	if group != "" {
		dbQuery = dbQuery.Where("group_title = ?", group)
	}
	if search != "" {
		searchPattern := "%" + search + "%"
		dbQuery = dbQuery.Where("channel_name LIKE ? OR tvg_name LIKE ? OR tvg_id LIKE ?",
			searchPattern, searchPattern, searchPattern)
	}

	// Get total count
	if err := dbQuery.Count(&total).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count channels")
		return
	}

	// Apply sorting
	sortColumn := "channel_name"
	switch sortBy {
	case "channel_number":
		sortColumn = "channel_number"
	case "group_title":
		sortColumn = "group_title"
	case "updated_at":
		sortColumn = "updated_at"
	case "created_at":
		sortColumn = "created_at"
	}
	sortDirection := "ASC"
	if sortOrder == "desc" {
		sortDirection = "DESC"
	}
	dbQuery = dbQuery.Order(sortColumn + " " + sortDirection)

	// Apply pagination
	offset := (page - 1) * limit
	if err := dbQuery.Offset(offset).Limit(limit).Find(&channels).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch channels")
		return
	}

	// Collect stream URLs for batch codec lookup
	streamURLs := make([]string, len(channels))
	for i := range channels {
		streamURLs[i] = channels[i].StreamURL
	}

	// Batch fetch codec info for all channels
	codecMap := h.getCodecMapForStreamURLs(ctx, streamURLs)

	// Convert to response format using shared type
	items := make([]ChannelResponse, len(channels))
	for i := range channels {
		items[i] = ChannelFromModel(&channels[i])
		// Populate codec info if available
		if codec, ok := codecMap[channels[i].StreamURL]; ok {
			items[i].PopulateCodecInfo(codec)
		}
	}

	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, listChannelsResponse{
		Success:    true,
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	})
}

// getChannelResponse is the response for getting a channel.
type getChannelResponse struct {
	Success bool            `json:"success"`
	Data    ChannelResponse `json:"data"`
}

// GetChannel returns a specific channel by ID.
func (h *ChannelHandler) GetChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var channel models.Channel
	if err := h.db.WithContext(r.Context()).Where("id = ?", id).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "channel not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch channel")
		return
	}

	resp := getChannelResponse{
		Success: true,
		Data:    ChannelFromModel(&channel),
	}

	// Look up codec info for this channel
	var codec models.LastKnownCodec
	if err := h.db.WithContext(r.Context()).Where("stream_url = ?", channel.StreamURL).First(&codec).Error; err == nil {
		resp.Data.PopulateCodecInfo(&codec)
	}

	writeJSON(w, http.StatusOK, resp)
}

// getGroupsResponse is the response for getting channel groups.
type getGroupsResponse struct {
	Success bool     `json:"success"`
	Groups  []string `json:"groups"`
	Count   int      `json:"count"`
}

// GetGroups returns distinct channel groups.
func (h *ChannelHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	var groups []string

	if err := h.db.WithContext(r.Context()).
		Model(&models.Channel{}).
		Distinct("group_title").
		Where("group_title != ''").
		Order("group_title ASC").
		Pluck("group_title", &groups).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch groups")
		return
	}

	writeJSON(w, http.StatusOK, getGroupsResponse{
		Success: true,
		Groups:  groups,
		Count:   len(groups),
	})
}
