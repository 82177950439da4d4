package transform

import (
	"fmt"
	"math"
	"time"

	"github.com/gl-apps/glsync/internal/glide"
	"github.com/gl-apps/glsync/internal/ledger"
	"github.com/gl-apps/glsync/internal/mapping"
	"github.com/gl-apps/glsync/internal/models"
)

// TransformRecord applies a column map to one Glide row and returns the
// destination row candidate plus any per-field transform errors. A field that
// fails never aborts the rest of the record; fields absent from the source row
// are skipped entirely so upserts preserve pre-existing destination values.
func TransformRecord(row map[string]any, cm mapping.ColumnMap) (map[string]any, []ledger.ErrorEntry) {
	dest := map[string]any{}
	var errs []ledger.ErrorEntry

	// The row identifier is taken from the reserved field regardless of what
	// the column map declares.
	if rowID, ok := row[glide.RowIDField]; ok {
		if s, isString := rowID.(string); isString && s != "" {
			dest[mapping.RowIDColumn] = s
		}
	}

	for glideColumnID, entry := range cm {
		if glideColumnID == glide.RowIDField {
			continue
		}
		raw, present := row[glideColumnID]
		if !present {
			raw, present = row[entry.GlideColumnName]
		}
		if !present {
			continue
		}

		value, errField := transformField(raw, entry.DataType)
		if errField != nil {
			errs = append(errs, ledger.ErrorEntry{
				Type:    models.ErrorTypeTransform,
				Message: fmt.Sprintf("transform %s -> %s: %v", entry.GlideColumnName, entry.SupabaseColumnName, errField),
				Record: map[string]any{
					"glide_column": entry.GlideColumnName,
					"value":        raw,
				},
				Timestamp: time.Now().UTC(),
				Retryable: false,
			})
			continue
		}
		dest[entry.SupabaseColumnName] = value
	}

	return dest, errs
}

// transformField isolates one field conversion so a panic becomes a captured
// error instead of tearing down the record.
func transformField(raw any, dataType string) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return TransformValue(raw, dataType), nil
}

// ValidateRecord runs post-transform structural checks on a destination row.
// A missing row identifier is fatal for the row; the caller must exclude it
// from the upsert batch. Malformed numbers and dates in declared fields are
// flagged but the row still ships, matching upsert partial-update semantics.
func ValidateRecord(dest map[string]any, cm mapping.ColumnMap) []ledger.ErrorEntry {
	var errs []ledger.ErrorEntry
	now := time.Now().UTC()

	rowID, _ := dest[mapping.RowIDColumn].(string)
	if rowID == "" {
		errs = append(errs, ledger.ErrorEntry{
			Type:      models.ErrorTypeValidation,
			Message:   "missing required field: glide_row_id",
			Record:    dest,
			Timestamp: now,
			Retryable: false,
		})
	}

	for glideColumnID, entry := range cm {
		if glideColumnID == glide.RowIDField {
			continue
		}
		value, present := dest[entry.SupabaseColumnName]
		if !present || value == nil {
			continue
		}

		switch entry.DataType {
		case mapping.TypeNumber:
			if f, ok := value.(float64); !ok || math.IsNaN(f) {
				// Stringified so the snapshot stays JSON-encodable even for NaN.
				errs = append(errs, ledger.ErrorEntry{
					Type:      models.ErrorTypeValidation,
					Message:   fmt.Sprintf("invalid %s value: must be a number", entry.SupabaseColumnName),
					Record:    map[string]any{"field": entry.SupabaseColumnName, "value": fmt.Sprintf("%v", value)},
					Timestamp: now,
					Retryable: false,
				})
			}
		case mapping.TypeDate:
			s, ok := value.(string)
			if !ok {
				errs = append(errs, ledger.ErrorEntry{
					Type:      models.ErrorTypeValidation,
					Message:   fmt.Sprintf("invalid %s value: must be a valid date", entry.SupabaseColumnName),
					Record:    map[string]any{"field": entry.SupabaseColumnName, "value": value},
					Timestamp: now,
					Retryable: false,
				})
				continue
			}
			if _, errParse := time.Parse(time.RFC3339, s); errParse != nil {
				errs = append(errs, ledger.ErrorEntry{
					Type:      models.ErrorTypeValidation,
					Message:   fmt.Sprintf("invalid %s value: must be a valid date", entry.SupabaseColumnName),
					Record:    map[string]any{"field": entry.SupabaseColumnName, "value": value},
					Timestamp: now,
					Retryable: false,
				})
			}
		}
	}

	return errs
}

// HasRowID reports whether a transformed row carries the upsert key.
func HasRowID(dest map[string]any) bool {
	rowID, _ := dest[mapping.RowIDColumn].(string)
	return rowID != ""
}
