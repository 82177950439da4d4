package transform

import (
	"math"
	"testing"
	"time"

	"github.com/gl-apps/glsync/internal/mapping"
)

func TestTransformValue_NilStaysNil(t *testing.T) {
	for _, dataType := range []string{
		mapping.TypeString, mapping.TypeNumber, mapping.TypeBoolean,
		mapping.TypeDate, mapping.TypeImage, mapping.TypeEmail,
	} {
		if got := TransformValue(nil, dataType); got != nil {
			t.Fatalf("TransformValue(nil, %s) = %v, want nil", dataType, got)
		}
	}
}

func TestTransformValue_Number(t *testing.T) {
	if got := TransformValue(float64(12.5), mapping.TypeNumber); got != float64(12.5) {
		t.Fatalf("numeric passthrough: got %v", got)
	}
	if got := TransformValue("42.25", mapping.TypeNumber); got != float64(42.25) {
		t.Fatalf("string parse: got %v", got)
	}

	got := TransformValue("abc", mapping.TypeNumber)
	f, ok := got.(float64)
	if !ok || !math.IsNaN(f) {
		t.Fatalf("unparseable number: got %v, want NaN", got)
	}
}

func TestTransformValue_Boolean(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{"Yes", true},
		{"TRUE", true},
		{"1", true},
		{"no", false},
		{"False", false},
		{"0", false},
		{float64(42), true},
		{float64(0), false},
		{"anything else", true},
		{"", false},
	}
	for _, tc := range cases {
		if got := TransformValue(tc.in, mapping.TypeBoolean); got != tc.want {
			t.Fatalf("TransformValue(%v, boolean) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTransformValue_DateTime(t *testing.T) {
	at := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	if got := TransformValue(at, mapping.TypeDate); got != "2024-03-15T10:30:00Z" {
		t.Fatalf("time.Time input: got %v", got)
	}

	if got := TransformValue("2024-03-15T10:30:00Z", mapping.TypeDate); got != "2024-03-15T10:30:00Z" {
		t.Fatalf("RFC3339 string: got %v", got)
	}

	if got := TransformValue("2024-03-15", mapping.TypeDate); got != "2024-03-15T00:00:00Z" {
		t.Fatalf("date-only string: got %v", got)
	}

	// Epoch milliseconds.
	millis := float64(at.UnixMilli())
	if got := TransformValue(millis, mapping.TypeDate); got != "2024-03-15T10:30:00Z" {
		t.Fatalf("epoch millis: got %v", got)
	}

	// Invalid calendar date must come back nil, not panic.
	if got := TransformValue("2024-02-30", mapping.TypeDate); got != nil {
		t.Fatalf("invalid calendar date: got %v, want nil", got)
	}

	if got := TransformValue("not a date", mapping.TypeDate); got != nil {
		t.Fatalf("garbage date: got %v, want nil", got)
	}
}

func TestTransformValue_Stringish(t *testing.T) {
	if got := TransformValue("hello", mapping.TypeString); got != "hello" {
		t.Fatalf("string passthrough: got %v", got)
	}
	if got := TransformValue(float64(7), mapping.TypeString); got != "7" {
		t.Fatalf("number to string: got %v", got)
	}
	if got := TransformValue("https://img.example/x.png", mapping.TypeImage); got != "https://img.example/x.png" {
		t.Fatalf("image-uri: got %v", got)
	}
	if got := TransformValue("a@b.co", mapping.TypeEmail); got != "a@b.co" {
		t.Fatalf("email-address: got %v", got)
	}
}

func TestTransformValue_UnknownTypeStringifies(t *testing.T) {
	if got := TransformValue(float64(3), "mystery"); got != "3" {
		t.Fatalf("unknown type: got %v", got)
	}
}
