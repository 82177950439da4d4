package models

import "time"

// Sync run lifecycle states. A log row moves started -> processing -> one of the
// terminal states and is immutable afterwards.
const (
	SyncStatusStarted             = "started"
	SyncStatusProcessing          = "processing"
	SyncStatusCompleted           = "completed"
	SyncStatusCompletedWithErrors = "completed_with_errors"
	SyncStatusFailed              = "failed"
)

// SyncLog records one execution attempt of a mapping.
type SyncLog struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	MappingID string `gorm:"type:varchar(36);not null;index"` // Mapping the run executed.

	Status           string `gorm:"type:varchar(32);not null;index"` // State machine value.
	Message          string `gorm:"type:text"`                       // Human-readable progress message.
	RecordsProcessed int    `gorm:"not null;default:0"`              // Rows written so far. Monotonic within a run.

	StartedAt   time.Time  `gorm:"not null;index"` // Run start timestamp.
	CompletedAt *time.Time // Set when a terminal status is reached.
}

// TableName overrides the default table name.
func (SyncLog) TableName() string {
	return "gl_sync_logs"
}
