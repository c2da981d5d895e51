package models

import "time"

// RunStatus is the lifecycle state of a reconciliation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one reconciliation pass over a source's pending units. The counts
// partition every processed unit; CursorStart and CursorEnd bound the slice
// of the staging sequence the run covered.
type Run struct {
	ID          string     `json:"id" db:"id"`
	SourceID    string     `json:"source_id" db:"source_id"`
	Status      RunStatus  `json:"status" db:"status"`
	Processed   int        `json:"processed" db:"processed"`
	Matched     int        `json:"matched" db:"matched"`
	Ambiguous   int        `json:"ambiguous" db:"ambiguous"`
	Unmatched   int        `json:"unmatched" db:"unmatched"`
	Conflicts   int        `json:"conflicts" db:"conflicts"`
	CursorStart int64      `json:"cursor_start" db:"cursor_start"`
	CursorEnd   int64      `json:"cursor_end" db:"cursor_end"`
	Error       *string    `json:"error,omitempty" db:"error"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// RunListResponse is the response for listing runs
type RunListResponse struct {
	Items      []Run `json:"items"`
	TotalCount int   `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
}
