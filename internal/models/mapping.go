package models

import (
	"time"

	"gorm.io/datatypes"
)

// Sync direction values. Only SyncDirectionToSupabase has execution logic; the
// others are accepted at rest and rejected by the orchestrator at run time.
const (
	SyncDirectionToSupabase = "to_supabase"
	SyncDirectionToGlide    = "to_glide"
	SyncDirectionBoth       = "both"
)

// Mapping binds one Glide table to one destination table via a column map.
type Mapping struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID primary key.

	ConnectionID string `gorm:"type:varchar(36);not null;index"` // Owning connection. Weak reference, no FK constraint.

	GlideTable            string `gorm:"type:varchar(255);not null"` // Glide table identifier.
	GlideTableDisplayName string `gorm:"type:varchar(255)"`          // Glide table display name.
	SupabaseTable         string `gorm:"type:varchar(255);not null"` // Destination table name.

	// ColumnMappings holds the JSON column map keyed by Glide column id:
	// {"<glideColumnId>": {"glide_column_name", "supabase_column_name", "data_type"}}.
	ColumnMappings datatypes.JSON `gorm:"not null;default:'{}'"`

	SyncDirection string `gorm:"type:varchar(32);not null;default:'to_supabase'"` // to_supabase, to_glide, or both.

	// Enabled controls whether the mapping may run. No column default: gorm
	// omits zero-value fields that carry one, which would turn an explicit
	// false into true on insert. The create handler supplies the default.
	Enabled bool `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Mapping) TableName() string {
	return "gl_mappings"
}
