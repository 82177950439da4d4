package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gl-apps/glsync/internal/db"
	"github.com/gl-apps/glsync/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound indicates a missing ledger row.
var ErrNotFound = errors.New("ledger: not found")

// ErrAlreadyResolved indicates a resolution attempt on a resolved error.
var ErrAlreadyResolved = errors.New("ledger: error already resolved")

// Ledger is the append/update-only store for sync logs and sync errors.
// Nothing here ever deletes a row.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// New constructs a Ledger backed by the given database.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// RecordError appends one error row and returns its id. The record snapshot is
// stored as JSON; a snapshot that fails to serialize is replaced with a note
// rather than dropped.
func (l *Ledger) RecordError(ctx context.Context, mappingID, errType, message string, record map[string]any, retryable bool) (string, error) {
	if l == nil || l.db == nil {
		return "", fmt.Errorf("ledger: not initialized")
	}

	var snapshot datatypes.JSON
	if record != nil {
		raw, errMarshal := json.Marshal(record)
		if errMarshal != nil {
			raw = []byte(fmt.Sprintf(`{"snapshot_error":%q}`, errMarshal.Error()))
		}
		snapshot = datatypes.JSON(raw)
	}

	row := models.SyncError{
		ID:           uuid.NewString(),
		MappingID:    mappingID,
		ErrorType:    errType,
		ErrorMessage: message,
		RecordData:   snapshot,
		Retryable:    retryable,
		CreatedAt:    l.now().UTC(),
	}
	if errCreate := l.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return "", fmt.Errorf("ledger: record error: %w", errCreate)
	}
	return row.ID, nil
}

// Resolve marks an error resolved with operator notes. Only manual tooling
// calls this; the orchestrator never does.
func (l *Ledger) Resolve(ctx context.Context, errorID, notes string) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger: not initialized")
	}

	var row models.SyncError
	errFind := l.db.WithContext(ctx).Where("id = ?", errorID).First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errFind != nil {
		return fmt.Errorf("ledger: load error row: %w", errFind)
	}
	if row.ResolvedAt != nil {
		return ErrAlreadyResolved
	}

	resolvedAt := l.now().UTC()
	updates := map[string]any{
		"resolved_at":      resolvedAt,
		"resolution_notes": strings.TrimSpace(notes),
	}
	if errUpdate := l.db.WithContext(ctx).Model(&models.SyncError{}).Where("id = ?", errorID).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("ledger: resolve error: %w", errUpdate)
	}
	return nil
}

// ListErrors returns recent errors for a mapping, newest first. Resolved rows
// are excluded unless requested. A non-empty field narrows the listing to
// errors whose record snapshot names that destination column; rows without a
// snapshot never match.
func (l *Ledger) ListErrors(ctx context.Context, mappingID, field string, limit int, includeResolved bool) ([]models.SyncError, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger: not initialized")
	}
	if limit <= 0 {
		limit = 100
	}

	q := l.db.WithContext(ctx).Model(&models.SyncError{}).Order("created_at DESC").Limit(limit)
	if strings.TrimSpace(mappingID) != "" {
		q = q.Where("mapping_id = ?", mappingID)
	}
	if field = strings.TrimSpace(field); field != "" {
		q = q.Where(db.JSONExtractTextExpr(l.db, "record_data", "field")+" = ?", field)
	}
	if !includeResolved {
		q = q.Where("resolved_at IS NULL")
	}

	var rows []models.SyncError
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: list errors: %w", errFind)
	}
	return rows, nil
}
