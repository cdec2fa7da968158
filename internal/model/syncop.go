package model

import "time"

// ChangeKind is the CRUD verb of a sync operation.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// PlatformState is the delivery state machine for one platform:
// pending → in_progress → {completed | failed}. Skipped is terminal for
// platforms excluded from an operation.
type PlatformState string

const (
	PlatformPending    PlatformState = "pending"
	PlatformInProgress PlatformState = "in_progress"
	PlatformCompleted  PlatformState = "completed"
	PlatformFailed     PlatformState = "failed"
	PlatformSkipped    PlatformState = "skipped"
)

// Terminal reports whether the state is an end state.
func (s PlatformState) Terminal() bool {
	return s == PlatformCompleted || s == PlatformFailed || s == PlatformSkipped
}

// PlatformSyncStatus tracks delivery of one operation to one platform.
// RetryCount reflects failed attempts, not total attempts.
type PlatformSyncStatus struct {
	State      PlatformState `json:"state"`
	RetryCount int           `json:"retry_count"`
	LastError  string        `json:"last_error,omitempty"`
	LatencyMs  int64         `json:"latency_ms,omitempty"`
}

// SyncOperation is one discrete change queued for delivery to all configured
// external platforms. It completes once every platform status is terminal;
// partial delivery is an accepted, observable, transient state.
type SyncOperation struct {
	ID          string                         `json:"id"`
	Kind        ChangeKind                     `json:"kind"`
	TargetKind  TargetKind                     `json:"target_kind"`
	TargetID    string                         `json:"target_id,omitempty"`
	Domain      string                         `json:"domain"`
	Before      any                            `json:"before,omitempty"`
	After       any                            `json:"after,omitempty"`
	Platforms   map[string]*PlatformSyncStatus `json:"platforms"`
	CreatedAt   time.Time                      `json:"created_at"`
	CompletedAt *time.Time                     `json:"completed_at,omitempty"`
}

// Succeeded reports whether every platform delivery completed. An operation
// counts as successful only if all platforms reached completed.
func (op *SyncOperation) Succeeded() bool {
	if len(op.Platforms) == 0 {
		return false
	}
	for _, ps := range op.Platforms {
		if ps.State != PlatformCompleted {
			return false
		}
	}
	return true
}
