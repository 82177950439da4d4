package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gl-apps/glsync/internal/models"
	"github.com/gl-apps/glsync/internal/sync"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConnectionHandler manages CRUD endpoints for Glide connections.
type ConnectionHandler struct {
	db      *gorm.DB                // Database handle for connection records.
	manager *sync.ConnectionManager // Probe used by the test endpoint.
}

// NewConnectionHandler constructs a connection handler.
func NewConnectionHandler(db *gorm.DB, manager *sync.ConnectionManager) *ConnectionHandler {
	return &ConnectionHandler{db: db, manager: manager}
}

// createConnectionRequest captures the payload for creating a connection.
type createConnectionRequest struct {
	AppID   string `json:"app_id"`   // Glide app identifier.
	APIKey  string `json:"api_key"`  // Glide API access token.
	AppName string `json:"app_name"` // Optional display name.
}

// Create validates input and inserts a new connection.
func (h *ConnectionHandler) Create(c *gin.Context) {
	var body createConnectionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if strings.TrimSpace(body.AppID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "app_id is required"})
		return
	}
	if strings.TrimSpace(body.APIKey) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}

	now := time.Now().UTC()
	conn := models.Connection{
		ID:        uuid.NewString(),
		AppID:     strings.TrimSpace(body.AppID),
		APIKey:    strings.TrimSpace(body.APIKey),
		AppName:   strings.TrimSpace(body.AppName),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&conn).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create connection failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatConnection(&conn))
}

// List returns all connections.
func (h *ConnectionHandler) List(c *gin.Context) {
	var rows []models.Connection
	if errFind := h.db.WithContext(c.Request.Context()).Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list connections failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.formatConnection(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"connections": out})
}

// Get returns one connection by id.
func (h *ConnectionHandler) Get(c *gin.Context) {
	var row models.Connection
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load connection failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatConnection(&row))
}

// updateConnectionRequest captures the mutable connection fields.
type updateConnectionRequest struct {
	AppID   *string `json:"app_id"`
	APIKey  *string `json:"api_key"`
	AppName *string `json:"app_name"`
}

// Update mutates a connection's credentials or name. Status and last_sync are
// owned by the probe and the orchestrator and cannot be set here.
func (h *ConnectionHandler) Update(c *gin.Context) {
	var body updateConnectionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.AppID != nil {
		if strings.TrimSpace(*body.AppID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "app_id cannot be empty"})
			return
		}
		updates["app_id"] = strings.TrimSpace(*body.AppID)
	}
	if body.APIKey != nil {
		if strings.TrimSpace(*body.APIKey) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "api_key cannot be empty"})
			return
		}
		updates["api_key"] = strings.TrimSpace(*body.APIKey)
	}
	if body.AppName != nil {
		updates["app_name"] = strings.TrimSpace(*body.AppName)
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Connection{}).Where("id = ?", c.Param("id")).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update connection failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}

	var row models.Connection
	if errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).First(&row).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load connection failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatConnection(&row))
}

// Delete removes a connection. Dependent mappings are not cascaded; cleaning
// them up is the caller's responsibility.
func (h *ConnectionHandler) Delete(c *gin.Context) {
	res := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).Delete(&models.Connection{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete connection failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// formatConnection shapes a connection for API responses.
func (h *ConnectionHandler) formatConnection(conn *models.Connection) gin.H {
	return gin.H{
		"id":         conn.ID,
		"app_id":     conn.AppID,
		"api_key":    conn.APIKey,
		"app_name":   conn.AppName,
		"status":     conn.Status,
		"last_sync":  conn.LastSync,
		"created_at": conn.CreatedAt,
		"updated_at": conn.UpdatedAt,
	}
}

// Test probes the connection and reports the outcome in the sync envelope.
func (h *ConnectionHandler) Test(c *gin.Context) {
	ok, message := h.manager.TestConnection(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}
