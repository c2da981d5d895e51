package models

import "time"

// Cursor marks how far reconciliation has progressed through a source's
// staged units. Position only moves forward, and only when a whole batch
// has committed.
type Cursor struct {
	SourceID  string    `json:"source_id" db:"source_id"`
	Position  int64     `json:"position" db:"position"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
