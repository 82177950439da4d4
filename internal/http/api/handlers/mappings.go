package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gl-apps/glsync/internal/mapping"
	"github.com/gl-apps/glsync/internal/models"
	"github.com/gl-apps/glsync/internal/sync"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MappingHandler manages CRUD endpoints for table mappings, plus the retry
// entry point.
type MappingHandler struct {
	db    *gorm.DB               // Database handle for mapping records.
	retry *sync.RetryCoordinator // Gate for retry requests.
}

// NewMappingHandler constructs a mapping handler.
func NewMappingHandler(db *gorm.DB, retry *sync.RetryCoordinator) *MappingHandler {
	return &MappingHandler{db: db, retry: retry}
}

// validDirections enumerates accepted sync_direction values. Only to_supabase
// executes; the others are stored and rejected at run time.
var validDirections = map[string]bool{
	models.SyncDirectionToSupabase: true,
	models.SyncDirectionToGlide:    true,
	models.SyncDirectionBoth:       true,
}

// mappingRequest captures the payload for creating or updating a mapping.
type mappingRequest struct {
	ConnectionID          string            `json:"connection_id"`
	GlideTable            string            `json:"glide_table"`
	GlideTableDisplayName string            `json:"glide_table_display_name"`
	SupabaseTable         string            `json:"supabase_table"`
	ColumnMappings        mapping.ColumnMap `json:"column_mappings"`
	SyncDirection         string            `json:"sync_direction"`
	Enabled               *bool             `json:"enabled"`
}

// Create validates input, synthesizes the reserved row-id entry, and inserts
// a new mapping. Validation failure blocks the insert.
func (h *MappingHandler) Create(c *gin.Context) {
	var body mappingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if strings.TrimSpace(body.ConnectionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connection_id is required"})
		return
	}
	if strings.TrimSpace(body.GlideTable) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "glide_table is required"})
		return
	}
	if strings.TrimSpace(body.SupabaseTable) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "supabase_table is required"})
		return
	}

	direction := strings.TrimSpace(body.SyncDirection)
	if direction == "" {
		direction = models.SyncDirectionToSupabase
	}
	if !validDirections[direction] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sync_direction"})
		return
	}

	cm := mapping.EnsureRowIDMapping(body.ColumnMappings)
	if errValidate := mapping.Validate(cm); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}
	raw, errEncode := cm.ToJSON()
	if errEncode != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errEncode.Error()})
		return
	}

	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	now := time.Now().UTC()
	m := models.Mapping{
		ID:                    uuid.NewString(),
		ConnectionID:          strings.TrimSpace(body.ConnectionID),
		GlideTable:            strings.TrimSpace(body.GlideTable),
		GlideTableDisplayName: strings.TrimSpace(body.GlideTableDisplayName),
		SupabaseTable:         strings.TrimSpace(body.SupabaseTable),
		ColumnMappings:        raw,
		SyncDirection:         direction,
		Enabled:               enabled,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&m).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create mapping failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatMapping(&m))
}

// List returns mappings, optionally filtered by connection.
func (h *MappingHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Mapping{}).Order("created_at DESC")
	if connectionID := strings.TrimSpace(c.Query("connection_id")); connectionID != "" {
		q = q.Where("connection_id = ?", connectionID)
	}

	var rows []models.Mapping
	if errFind := q.Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list mappings failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.formatMapping(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"mappings": out})
}

// Get returns one mapping by id.
func (h *MappingHandler) Get(c *gin.Context) {
	var row models.Mapping
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load mapping failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatMapping(&row))
}

// Update validates and replaces a mapping's mutable fields. The column map is
// re-validated as a whole; a failed validation leaves the stored mapping
// untouched.
func (h *MappingHandler) Update(c *gin.Context) {
	var body mappingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var existing models.Mapping
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).First(&existing).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load mapping failed"})
		return
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if strings.TrimSpace(body.ConnectionID) != "" {
		updates["connection_id"] = strings.TrimSpace(body.ConnectionID)
	}
	if strings.TrimSpace(body.GlideTable) != "" {
		updates["glide_table"] = strings.TrimSpace(body.GlideTable)
	}
	if strings.TrimSpace(body.GlideTableDisplayName) != "" {
		updates["glide_table_display_name"] = strings.TrimSpace(body.GlideTableDisplayName)
	}
	if strings.TrimSpace(body.SupabaseTable) != "" {
		updates["supabase_table"] = strings.TrimSpace(body.SupabaseTable)
	}
	if direction := strings.TrimSpace(body.SyncDirection); direction != "" {
		if !validDirections[direction] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sync_direction"})
			return
		}
		updates["sync_direction"] = direction
	}
	if body.Enabled != nil {
		updates["enabled"] = *body.Enabled
	}
	if body.ColumnMappings != nil {
		cm := mapping.EnsureRowIDMapping(body.ColumnMappings)
		if errValidate := mapping.Validate(cm); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}
		raw, errEncode := cm.ToJSON()
		if errEncode != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errEncode.Error()})
			return
		}
		updates["column_mappings"] = raw
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Mapping{}).Where("id = ?", existing.ID).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update mapping failed"})
		return
	}

	var row models.Mapping
	if errReload := h.db.WithContext(c.Request.Context()).Where("id = ?", existing.ID).First(&row).Error; errReload != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load mapping failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatMapping(&row))
}

// formatMapping shapes a mapping for API responses. The stored column map is
// emitted as-is.
func (h *MappingHandler) formatMapping(m *models.Mapping) gin.H {
	return gin.H{
		"id":                       m.ID,
		"connection_id":            m.ConnectionID,
		"glide_table":              m.GlideTable,
		"glide_table_display_name": m.GlideTableDisplayName,
		"supabase_table":           m.SupabaseTable,
		"column_mappings":          m.ColumnMappings,
		"sync_direction":           m.SyncDirection,
		"enabled":                  m.Enabled,
		"created_at":               m.CreatedAt,
		"updated_at":               m.UpdatedAt,
	}
}

// Delete removes a mapping. Its sync logs and errors are kept as history.
func (h *MappingHandler) Delete(c *gin.Context) {
	res := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).Delete(&models.Mapping{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete mapping failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Retry validates the mapping is retryable and opens a retry log entry. The
// caller follows up by triggering syncData; the retry is a full re-run.
func (h *MappingHandler) Retry(c *gin.Context) {
	logID, errRetry := h.retry.RetryFailedSync(c.Request.Context(), c.Param("id"))
	if errors.Is(errRetry, sync.ErrRetryNotAllowed) {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": errRetry.Error()})
		return
	}
	if errRetry != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "retry setup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "log_id": logID})
}
