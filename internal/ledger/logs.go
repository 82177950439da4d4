package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gl-apps/glsync/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateLog opens a new sync log row in the started state and returns its id.
func (l *Ledger) CreateLog(ctx context.Context, mappingID, message string) (string, error) {
	if l == nil || l.db == nil {
		return "", fmt.Errorf("ledger: not initialized")
	}

	row := models.SyncLog{
		ID:        uuid.NewString(),
		MappingID: mappingID,
		Status:    models.SyncStatusStarted,
		Message:   message,
		StartedAt: l.now().UTC(),
	}
	if errCreate := l.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return "", fmt.Errorf("ledger: create sync log: %w", errCreate)
	}
	return row.ID, nil
}

// UpdateLog mutates a running log's status, message, or progress counter.
// Nil fields are left untouched so progress updates stay monotonic.
func (l *Ledger) UpdateLog(ctx context.Context, logID string, status, message string, recordsProcessed *int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger: not initialized")
	}

	updates := map[string]any{}
	if strings.TrimSpace(status) != "" {
		updates["status"] = status
	}
	if strings.TrimSpace(message) != "" {
		updates["message"] = message
	}
	if recordsProcessed != nil {
		updates["records_processed"] = *recordsProcessed
	}
	if len(updates) == 0 {
		return nil
	}

	if errUpdate := l.db.WithContext(ctx).Model(&models.SyncLog{}).Where("id = ?", logID).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("ledger: update sync log: %w", errUpdate)
	}
	return nil
}

// CompleteLog stamps a terminal status and completion time on a log row. The
// row is immutable afterwards by convention.
func (l *Ledger) CompleteLog(ctx context.Context, logID, status, message string, recordsProcessed int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger: not initialized")
	}

	completedAt := l.now().UTC()
	updates := map[string]any{
		"status":            status,
		"message":           message,
		"records_processed": recordsProcessed,
		"completed_at":      completedAt,
	}
	if errUpdate := l.db.WithContext(ctx).Model(&models.SyncLog{}).Where("id = ?", logID).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("ledger: complete sync log: %w", errUpdate)
	}
	return nil
}

// LastLog returns the most recent log row for a mapping, or ErrNotFound when
// the mapping has never run.
func (l *Ledger) LastLog(ctx context.Context, mappingID string) (*models.SyncLog, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger: not initialized")
	}

	var row models.SyncLog
	errFind := l.db.WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("started_at DESC").
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if errFind != nil {
		return nil, fmt.Errorf("ledger: load last log: %w", errFind)
	}
	return &row, nil
}

// ListLogs returns recent log rows, newest first, optionally filtered by
// mapping.
func (l *Ledger) ListLogs(ctx context.Context, mappingID string, limit int) ([]models.SyncLog, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger: not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	q := l.db.WithContext(ctx).Model(&models.SyncLog{}).Order("started_at DESC").Limit(limit)
	if strings.TrimSpace(mappingID) != "" {
		q = q.Where("mapping_id = ?", mappingID)
	}

	var rows []models.SyncLog
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: list sync logs: %w", errFind)
	}
	return rows, nil
}
