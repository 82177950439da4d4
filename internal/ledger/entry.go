package ledger

import "time"

// ErrorEntry is the transient error summary accumulated during a run and
// returned to the sync caller. The persistent audit trail lives in
// gl_sync_errors; this value mirrors its shape.
type ErrorEntry struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Record    map[string]any `json:"record,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
}
