package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gl-apps/glsync/internal/mapping"
	log "github.com/sirupsen/logrus"
)

// dateLayouts are tried in order when parsing declared date-time strings.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// TransformValue normalizes a raw Glide value for its declared data type. It
// is tolerant: nil stays nil, unparseable numbers come back as NaN for the
// validator to flag, unparseable dates come back as nil. It never returns an
// error and never panics out; an internal panic is logged and yields nil so a
// single bad value cannot abort a batch.
func TransformValue(value any, dataType string) (result any) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("data_type", dataType).Warnf("transform: recovered from panic: %v", r)
			result = nil
		}
	}()

	if value == nil {
		return nil
	}

	switch dataType {
	case mapping.TypeNumber:
		return toNumber(value)
	case mapping.TypeBoolean:
		return toBoolean(value)
	case mapping.TypeDate:
		return toDateTime(value)
	case mapping.TypeString, mapping.TypeImage, mapping.TypeEmail:
		return stringify(value)
	default:
		return stringify(value)
	}
}

// toNumber passes numerics through and parses strings. Anything unparseable
// becomes NaN rather than an error; validation flags it downstream.
func toNumber(value any) any {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return float64(1)
		}
		return float64(0)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return math.NaN()
		}
		return parsed
	default:
		return math.NaN()
	}
}

// truthWords maps the accepted boolean spellings, case-insensitive.
var truthWords = map[string]bool{
	"true": true, "yes": true, "1": true,
	"false": false, "no": false, "0": false,
}

// toBoolean applies the truth-word table for strings, then falls back to
// truthiness coercion matching the source platform's semantics.
func toBoolean(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, ok := truthWords[strings.ToLower(strings.TrimSpace(v))]; ok {
			return b
		}
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return value != nil
	}
}

// toDateTime serializes to RFC 3339 UTC. Numbers are epoch milliseconds.
// Unparseable input yields nil, never an error.
func toDateTime(value any) any {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.UTC().Format(time.RFC3339)
			}
		}
		return nil
	case float64:
		return time.UnixMilli(int64(v)).UTC().Format(time.RFC3339)
	case int64:
		return time.UnixMilli(v).UTC().Format(time.RFC3339)
	case int:
		return time.UnixMilli(int64(v)).UTC().Format(time.RFC3339)
	default:
		return nil
	}
}

// stringify renders a value the way the source platform would.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
