package models

import (
	"encoding/json"
	"time"
)

// UnresolvedStatus is the review state of a parked unit.
type UnresolvedStatus string

const (
	UnresolvedStatusPending   UnresolvedStatus = "pending"
	UnresolvedStatusResolved  UnresolvedStatus = "resolved"
	UnresolvedStatusDismissed UnresolvedStatus = "dismissed"
)

// UnresolvedEntry parks a raw unit that could not be linked, together with
// why and with the candidates that were considered. Entries stay queryable
// until an operator resolves or dismisses them.
type UnresolvedEntry struct {
	ID                string           `json:"id" db:"id"`
	SourceID          string           `json:"source_id" db:"source_id"`
	UnitID            string           `json:"unit_id" db:"unit_id"`
	RunID             string           `json:"run_id" db:"run_id"`
	Reason            string           `json:"reason" db:"reason"`
	Detail            string           `json:"detail" db:"detail"`
	Payload           json.RawMessage  `json:"payload" db:"payload"`
	Candidates        json.RawMessage  `json:"candidates,omitempty" db:"candidates"`
	Status            UnresolvedStatus `json:"status" db:"status"`
	ResolvedFighterID *string          `json:"resolved_fighter_id,omitempty" db:"resolved_fighter_id"`
	ResolvedAt        *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// ResolveUnresolvedRequest picks the fighter an ambiguous or unmatched name
// should resolve to. The pick is recorded as an alias so future runs match
// the spelling directly.
type ResolveUnresolvedRequest struct {
	FighterID string `json:"fighter_id" validate:"required"`
}

// UnresolvedListResponse is the response for listing unresolved entries
type UnresolvedListResponse struct {
	Items      []UnresolvedEntry `json:"items"`
	TotalCount int               `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
}
