package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/gl-apps/glsync/internal/glide"
	"github.com/gl-apps/glsync/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ConnectionManager stores and probes Glide connection credentials.
type ConnectionManager struct {
	db      *gorm.DB
	fetcher glide.RowFetcher
}

// NewConnectionManager constructs a ConnectionManager.
func NewConnectionManager(conn *gorm.DB, fetcher glide.RowFetcher) *ConnectionManager {
	return &ConnectionManager{db: conn, fetcher: fetcher}
}

// TestConnection probes the Glide endpoint for a connection and records the
// outcome on the connection row. It reports success and a human message; it
// never escalates a failure to the caller as an error. A failure to persist
// the status itself is logged and swallowed.
func (m *ConnectionManager) TestConnection(ctx context.Context, connectionID string) (bool, string) {
	if m == nil || m.db == nil || m.fetcher == nil {
		return false, "connection manager not initialized"
	}

	var conn models.Connection
	if errFind := m.db.WithContext(ctx).Where("id = ?", connectionID).First(&conn).Error; errFind != nil {
		m.setStatus(ctx, connectionID, models.ConnectionStatusError)
		return false, fmt.Sprintf("connection not found: %v", errFind)
	}

	if errProbe := m.fetcher.Probe(ctx, glide.Credentials{AppID: conn.AppID, APIKey: conn.APIKey}); errProbe != nil {
		m.setStatus(ctx, connectionID, models.ConnectionStatusError)
		return false, errProbe.Error()
	}

	m.setStatus(ctx, connectionID, models.ConnectionStatusActive)
	return true, "Connection successful"
}

// setStatus best-effort updates a connection's health status.
func (m *ConnectionManager) setStatus(ctx context.Context, connectionID, status string) {
	errUpdate := m.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", connectionID).
		Update("status", status).Error
	if errUpdate != nil {
		log.WithError(errUpdate).WithField("connection_id", connectionID).Warn("sync: update connection status failed")
	}
}

// touchLastSync best-effort stamps a connection's last successful sync time.
func touchLastSync(ctx context.Context, conn *gorm.DB, connectionID string, at time.Time) {
	errUpdate := conn.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", connectionID).
		Update("last_sync", at.UTC()).Error
	if errUpdate != nil {
		log.WithError(errUpdate).WithField("connection_id", connectionID).Warn("sync: update last_sync failed")
	}
}
