package db

import (
	"fmt"

	"github.com/gl-apps/glsync/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations for the sync control tables. Destination
// tables are owned by the application schema and are never created here.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Connection{},
		&models.Mapping{},
		&models.SyncLog{},
		&models.SyncError{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errIndex := ensureSyncLogIndexes(conn); errIndex != nil {
		return errIndex
	}
	return nil
}

// ensureSyncLogIndexes adds the composite index used by status lookups, which
// AutoMigrate cannot express across both dialects.
func ensureSyncLogIndexes(conn *gorm.DB) error {
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_gl_sync_logs_mapping_started
		ON gl_sync_logs (mapping_id, started_at DESC)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create sync log index: %w", errIndex)
	}
	return nil
}
