package resilience

import "time"

// DLQEntry records one platform delivery that exhausted its retries. The
// operation itself stays terminal-failed for that platform; the entry exists
// for later inspection and manual replay.
type DLQEntry struct {
	ID           string    `json:"id"`
	Domain       string    `json:"domain"`
	OperationID  string    `json:"operation_id"`
	Platform     string    `json:"platform"`
	TargetKind   string    `json:"target_kind"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	RetryCount   int       `json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	Domain    string `json:"domain,omitempty"`
	Platform  string `json:"platform,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}
