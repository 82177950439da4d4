package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gl-apps/glsync/internal/ledger"
	"github.com/gl-apps/glsync/internal/models"
)

// LogHandler exposes the sync log and the error ledger.
type LogHandler struct {
	ledger *ledger.Ledger
}

// NewLogHandler constructs a log handler.
func NewLogHandler(led *ledger.Ledger) *LogHandler {
	return &LogHandler{ledger: led}
}

// ListLogs returns recent sync runs, optionally filtered by mapping.
func (h *LogHandler) ListLogs(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 20)
	rows, errList := h.ledger.ListLogs(c.Request.Context(), strings.TrimSpace(c.Query("mapping_id")), limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sync logs failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatSyncLog(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}

// ListErrors returns ledger entries, unresolved by default. An optional field
// query narrows the listing to errors recorded against one destination column.
func (h *LogHandler) ListErrors(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 100)
	includeResolved := c.Query("include_resolved") == "true" || c.Query("include_resolved") == "1"

	rows, errList := h.ledger.ListErrors(c.Request.Context(), strings.TrimSpace(c.Query("mapping_id")), strings.TrimSpace(c.Query("field")), limit, includeResolved)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sync errors failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatSyncError(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"errors": out})
}

// resolveErrorRequest captures operator resolution notes.
type resolveErrorRequest struct {
	Notes string `json:"notes"`
}

// ResolveError marks one ledger entry resolved. Entries are never deleted.
func (h *LogHandler) ResolveError(c *gin.Context) {
	var body resolveErrorRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	errResolve := h.ledger.Resolve(c.Request.Context(), c.Param("id"), body.Notes)
	if errors.Is(errResolve, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "sync error not found"})
		return
	}
	if errors.Is(errResolve, ledger.ErrAlreadyResolved) {
		c.JSON(http.StatusConflict, gin.H{"error": "sync error already resolved"})
		return
	}
	if errResolve != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve sync error failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

// formatSyncLog shapes a sync log row for API responses.
func formatSyncLog(row *models.SyncLog) gin.H {
	return gin.H{
		"id":                row.ID,
		"mapping_id":        row.MappingID,
		"status":            row.Status,
		"message":           row.Message,
		"records_processed": row.RecordsProcessed,
		"started_at":        row.StartedAt,
		"completed_at":      row.CompletedAt,
	}
}

// formatSyncError shapes an error ledger row for API responses.
func formatSyncError(row *models.SyncError) gin.H {
	return gin.H{
		"id":               row.ID,
		"mapping_id":       row.MappingID,
		"error_type":       row.ErrorType,
		"error_message":    row.ErrorMessage,
		"record_data":      row.RecordData,
		"retryable":        row.Retryable,
		"created_at":       row.CreatedAt,
		"resolved_at":      row.ResolvedAt,
		"resolution_notes": row.ResolutionNotes,
	}
}

// parseLimit parses a limit query value with a default.
func parseLimit(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	limit, errParse := strconv.Atoi(raw)
	if errParse != nil || limit <= 0 {
		return fallback
	}
	return limit
}
