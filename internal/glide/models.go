package glide

import "time"

// RowIDField is the reserved Glide field carrying the stable row identifier.
// It is assigned by Glide, never regenerated, and becomes the upsert key on
// the destination side.
const RowIDField = "$rowID"

// Column describes one Glide table column discovered by sampling.
type Column struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// guessType maps a sampled JSON value to a mapping data type.
func guessType(value any) string {
	switch v := value.(type) {
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		if _, err := time.Parse(time.RFC3339, v); err == nil {
			return "date-time"
		}
		return "string"
	default:
		return "string"
	}
}
