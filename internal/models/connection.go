package models

import "time"

// Connection status values written by the connection manager and orchestrator.
const (
	// ConnectionStatusActive marks a connection whose last probe succeeded.
	ConnectionStatusActive = "active"
	// ConnectionStatusError marks a connection whose last probe failed.
	ConnectionStatusError = "error"
)

// Connection identifies one Glide app instance and its credentials.
type Connection struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	AppID   string `gorm:"type:varchar(255);not null"` // Glide app identifier.
	APIKey  string `gorm:"type:varchar(255);not null"` // Glide API access token.
	AppName string `gorm:"type:varchar(255)"`          // Human-readable name.

	// Status is empty until the first probe or sync touches the connection.
	Status   string     `gorm:"type:varchar(32);index"` // active, error, or empty.
	LastSync *time.Time // Timestamp of the last successful sync run.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Connection) TableName() string {
	return "gl_connections"
}
