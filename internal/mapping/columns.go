package mapping

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gl-apps/glsync/internal/glide"
	"gorm.io/datatypes"
)

// RowIDColumn is the destination column every mapping must populate with the
// Glide stable row identifier. It is the upsert conflict key.
const RowIDColumn = "glide_row_id"

// Recognized mapping data types.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeDate    = "date-time"
	TypeImage   = "image-uri"
	TypeEmail   = "email-address"
)

// validTypes enumerates the declared data types a mapping entry may carry.
var validTypes = map[string]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeBoolean: true,
	TypeDate:    true,
	TypeImage:   true,
	TypeEmail:   true,
}

// ColumnMapping is one entry of a column map: a Glide column bound to a
// destination column with a declared data type.
type ColumnMapping struct {
	GlideColumnName    string `json:"glide_column_name"`
	SupabaseColumnName string `json:"supabase_column_name"`
	DataType           string `json:"data_type"`
}

// ColumnMap associates Glide column ids with their mapping entries.
type ColumnMap map[string]ColumnMapping

// Parse decodes a stored column_mappings JSON document.
func Parse(raw datatypes.JSON) (ColumnMap, error) {
	if len(raw) == 0 {
		return ColumnMap{}, nil
	}
	var cm ColumnMap
	if err := json.Unmarshal(raw, &cm); err != nil {
		return nil, fmt.Errorf("mapping: parse column mappings: %w", err)
	}
	if cm == nil {
		cm = ColumnMap{}
	}
	return cm, nil
}

// ToJSON encodes a column map for storage.
func (cm ColumnMap) ToJSON() (datatypes.JSON, error) {
	if cm == nil {
		cm = ColumnMap{}
	}
	raw, err := json.Marshal(cm)
	if err != nil {
		return nil, fmt.Errorf("mapping: encode column mappings: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// EnsureRowIDMapping returns a copy of cm guaranteed to contain the reserved
// row identifier entry. The entry is synthesized when absent.
func EnsureRowIDMapping(cm ColumnMap) ColumnMap {
	out := make(ColumnMap, len(cm)+1)
	for id, entry := range cm {
		out[id] = entry
	}
	if _, ok := out[glide.RowIDField]; !ok {
		out[glide.RowIDField] = ColumnMapping{
			GlideColumnName:    glide.RowIDField,
			SupabaseColumnName: RowIDColumn,
			DataType:           TypeString,
		}
	}
	return out
}

// Validate checks a column map before a mapping is created or updated. A
// failure blocks the mutation.
func Validate(cm ColumnMap) error {
	if len(cm) == 0 {
		return fmt.Errorf("mapping: column mappings must contain at least one entry")
	}

	seen := make(map[string]string, len(cm))
	for id, entry := range cm {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("mapping: empty glide column id")
		}
		if strings.TrimSpace(entry.GlideColumnName) == "" {
			return fmt.Errorf("mapping: entry %s: missing glide column name", id)
		}
		dest := strings.TrimSpace(entry.SupabaseColumnName)
		if dest == "" {
			return fmt.Errorf("mapping: entry %s: missing supabase column name", id)
		}
		if !validTypes[entry.DataType] {
			return fmt.Errorf("mapping: entry %s: unrecognized data type %q", id, entry.DataType)
		}
		if prev, dup := seen[dest]; dup {
			return fmt.Errorf("mapping: duplicate supabase column %q (entries %s and %s)", dest, prev, id)
		}
		seen[dest] = id
	}

	if entry, ok := cm[glide.RowIDField]; ok {
		if entry.SupabaseColumnName != RowIDColumn {
			return fmt.Errorf("mapping: %s must map to %s", glide.RowIDField, RowIDColumn)
		}
		if entry.DataType != TypeString {
			return fmt.Errorf("mapping: %s must be declared as string", glide.RowIDField)
		}
	}
	return nil
}
