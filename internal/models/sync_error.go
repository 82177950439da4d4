package models

import (
	"time"

	"gorm.io/datatypes"
)

// Sync error taxonomy.
const (
	ErrorTypeTransform    = "TRANSFORM_ERROR"
	ErrorTypeValidation   = "VALIDATION_ERROR"
	ErrorTypeDatabase     = "DATABASE_ERROR"
	ErrorTypeRelationship = "RELATIONSHIP_MAPPING_ERROR"
)

// SyncError is one row- or batch-level failure captured during a run. Rows are
// never deleted; an operator marks them resolved.
type SyncError struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	MappingID string `gorm:"type:varchar(36);not null;index"` // Mapping the error belongs to.

	ErrorType    string         `gorm:"type:varchar(64);not null"` // Taxonomy value.
	ErrorMessage string         `gorm:"type:text;not null"`        // Failure description.
	RecordData   datatypes.JSON // Offending record or batch snapshot.
	Retryable    bool           `gorm:"not null;default:false"` // Whether a re-run can clear the error.

	CreatedAt       time.Time  `gorm:"not null;autoCreateTime;index"` // When the error was captured.
	ResolvedAt      *time.Time // Set only by manual operator resolution.
	ResolutionNotes string     `gorm:"type:text"` // Operator notes recorded on resolution.
}

// TableName overrides the default table name.
func (SyncError) TableName() string {
	return "gl_sync_errors"
}
