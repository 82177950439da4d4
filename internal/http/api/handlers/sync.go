package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gl-apps/glsync/internal/glide"
	"github.com/gl-apps/glsync/internal/models"
	"github.com/gl-apps/glsync/internal/sync"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GlideAPI is the Glide client surface the dispatch handler needs. The
// concrete glide.Client satisfies it.
type GlideAPI interface {
	glide.RowFetcher
	TableColumns(ctx context.Context, creds glide.Credentials, tableName string) ([]glide.Column, error)
}

// SyncHandler dispatches the action-envelope sync trigger. Every response
// shares the {success, ...} envelope and action-level failures still return
// HTTP 200 so the calling UI can render the message; callers must check the
// success field, not the transport status.
type SyncHandler struct {
	db           *gorm.DB
	orchestrator *sync.Orchestrator
	connections  *sync.ConnectionManager
	resolver     sync.RelationshipResolver
	glide        GlideAPI
}

// NewSyncHandler constructs the sync dispatch handler.
func NewSyncHandler(db *gorm.DB, orchestrator *sync.Orchestrator, connections *sync.ConnectionManager, resolver sync.RelationshipResolver, api GlideAPI) *SyncHandler {
	return &SyncHandler{
		db:           db,
		orchestrator: orchestrator,
		connections:  connections,
		resolver:     resolver,
		glide:        api,
	}
}

// syncRequest is the action envelope accepted by the dispatch endpoint.
type syncRequest struct {
	Action       string `json:"action"`
	ConnectionID string `json:"connectionId"`
	MappingID    string `json:"mappingId"`
	TableID      string `json:"tableId"`
}

// Dispatch routes an action envelope to its implementation.
func (h *SyncHandler) Dispatch(c *gin.Context) {
	var body syncRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}

	action := strings.TrimSpace(body.Action)
	if action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "action is required"})
		return
	}

	log.WithField("action", action).WithField("connection_id", body.ConnectionID).Info("glsync: processing action")

	switch action {
	case "testConnection":
		h.testConnection(c, body)
	case "getTableNames":
		h.getTableNames(c)
	case "getColumnMappings":
		h.getColumnMappings(c, body)
	case "syncData":
		h.syncData(c, body.ConnectionID, body.MappingID)
	case "syncMapping":
		h.syncMapping(c, body)
	case "mapRelationships":
		h.mapRelationships(c, body)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown action: " + action})
	}
}

// testConnection probes a connection's credentials.
func (h *SyncHandler) testConnection(c *gin.Context, body syncRequest) {
	if strings.TrimSpace(body.ConnectionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "connection id is required"})
		return
	}
	ok, message := h.connections.TestConnection(c.Request.Context(), body.ConnectionID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// getTableNames lists the distinct Glide tables already referenced by
// mappings.
func (h *SyncHandler) getTableNames(c *gin.Context) {
	var rows []models.Mapping
	errFind := h.db.WithContext(c.Request.Context()).
		Select("glide_table", "glide_table_display_name").
		Order("glide_table_display_name ASC").
		Find(&rows).Error
	if errFind != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "list tables failed"})
		return
	}

	seen := map[string]bool{}
	tables := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		if seen[row.GlideTable] {
			continue
		}
		seen[row.GlideTable] = true
		tables = append(tables, gin.H{"id": row.GlideTable, "display_name": row.GlideTableDisplayName})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tables": tables})
}

// getColumnMappings samples a Glide table and returns candidate columns.
func (h *SyncHandler) getColumnMappings(c *gin.Context, body syncRequest) {
	if strings.TrimSpace(body.ConnectionID) == "" || strings.TrimSpace(body.TableID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "connection id and table id are required"})
		return
	}

	var conn models.Connection
	if errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", body.ConnectionID).First(&conn).Error; errFind != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "connection not found"})
		return
	}

	columns, errColumns := h.glide.TableColumns(c.Request.Context(), glide.Credentials{AppID: conn.AppID, APIKey: conn.APIKey}, body.TableID)
	if errColumns != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": errColumns.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "columns": columns})
}

// syncData runs the orchestrator for a connection/mapping pair.
func (h *SyncHandler) syncData(c *gin.Context, connectionID, mappingID string) {
	if strings.TrimSpace(connectionID) == "" || strings.TrimSpace(mappingID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "connection id and mapping id are required"})
		return
	}

	result, errSync := h.orchestrator.SyncData(c.Request.Context(), connectionID, mappingID)
	if errors.Is(errSync, sync.ErrSyncLogCreate) {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "failed to create sync log entry"})
		return
	}
	if errSync != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": errSync.Error()})
		return
	}

	response := gin.H{
		"success":          true,
		"recordsProcessed": result.RecordsProcessed,
		"failedRecords":    result.FailedRecords,
	}
	if len(result.Errors) > 0 {
		response["errors"] = result.Errors
	}
	c.JSON(http.StatusOK, response)
}

// syncMapping resolves the owning connection from the mapping, then syncs.
func (h *SyncHandler) syncMapping(c *gin.Context, body syncRequest) {
	if strings.TrimSpace(body.MappingID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "mapping id is required"})
		return
	}

	var m models.Mapping
	if errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", body.MappingID).First(&m).Error; errFind != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "mapping not found"})
		return
	}
	h.syncData(c, m.ConnectionID, m.ID)
}

// mapRelationships invokes the relationship resolver for a mapping's
// destination table on demand.
func (h *SyncHandler) mapRelationships(c *gin.Context, body syncRequest) {
	if strings.TrimSpace(body.MappingID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing mappingId parameter"})
		return
	}

	var m models.Mapping
	if errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", body.MappingID).First(&m).Error; errFind != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "mapping not found"})
		return
	}

	if errResolve := h.resolver.MapRelationships(c.Request.Context(), m.SupabaseTable); errResolve != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": errResolve.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Relationships mapped for table " + m.SupabaseTable})
}
