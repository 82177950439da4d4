package transform

import (
	"math"
	"testing"

	"github.com/gl-apps/glsync/internal/mapping"
	"github.com/gl-apps/glsync/internal/models"
)

func testColumnMap() mapping.ColumnMap {
	return mapping.EnsureRowIDMapping(mapping.ColumnMap{
		"colName": {GlideColumnName: "Name", SupabaseColumnName: "name", DataType: mapping.TypeString},
		"colCost": {GlideColumnName: "Cost", SupabaseColumnName: "cost", DataType: mapping.TypeNumber},
		"colDate": {GlideColumnName: "Purchased", SupabaseColumnName: "purchase_date", DataType: mapping.TypeDate},
	})
}

func TestTransformRecord_RowIDAlwaysFromReservedField(t *testing.T) {
	row := map[string]any{
		"$rowID":  "row-1",
		"colName": "Widget",
	}
	dest, errs := TransformRecord(row, testColumnMap())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if dest["glide_row_id"] != "row-1" {
		t.Fatalf("glide_row_id = %v, want row-1", dest["glide_row_id"])
	}
	if dest["name"] != "Widget" {
		t.Fatalf("name = %v", dest["name"])
	}
}

func TestTransformRecord_AbsentFieldsAreSkipped(t *testing.T) {
	row := map[string]any{"$rowID": "row-2"}
	dest, errs := TransformRecord(row, testColumnMap())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, present := dest["cost"]; present {
		t.Fatal("absent source field must not set a destination field")
	}
	if _, present := dest["purchase_date"]; present {
		t.Fatal("absent source field must not set a destination field")
	}
}

func TestTransformRecord_LooksUpByColumnName(t *testing.T) {
	// Rows keyed by display name instead of column id still map.
	row := map[string]any{"$rowID": "row-3", "Cost": "19.99"}
	dest, _ := TransformRecord(row, testColumnMap())
	if dest["cost"] != float64(19.99) {
		t.Fatalf("cost = %v", dest["cost"])
	}
}

func TestValidateRecord_MissingRowID(t *testing.T) {
	dest, _ := TransformRecord(map[string]any{"colName": "NoID"}, testColumnMap())
	if HasRowID(dest) {
		t.Fatal("row without $rowID must not carry an identifier")
	}
	errs := ValidateRecord(dest, testColumnMap())
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if errs[0].Type != models.ErrorTypeValidation {
		t.Fatalf("error type = %s", errs[0].Type)
	}
	if errs[0].Retryable {
		t.Fatal("validation errors are not retryable")
	}
}

func TestValidateRecord_FlagsNaNNumber(t *testing.T) {
	row := map[string]any{"$rowID": "row-4", "colCost": "not-a-number"}
	dest, transformErrs := TransformRecord(row, testColumnMap())
	if len(transformErrs) != 0 {
		t.Fatalf("transform must tolerate bad numbers: %v", transformErrs)
	}
	f, ok := dest["cost"].(float64)
	if !ok || !math.IsNaN(f) {
		t.Fatalf("cost = %v, want NaN", dest["cost"])
	}

	errs := ValidateRecord(dest, testColumnMap())
	if len(errs) != 1 || errs[0].Type != models.ErrorTypeValidation {
		t.Fatalf("errors = %v", errs)
	}
}

func TestValidateRecord_ValidRowPasses(t *testing.T) {
	row := map[string]any{
		"$rowID":  "row-5",
		"colCost": "12.50",
		"colDate": "2024-03-15",
	}
	dest, _ := TransformRecord(row, testColumnMap())
	if errs := ValidateRecord(dest, testColumnMap()); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}
