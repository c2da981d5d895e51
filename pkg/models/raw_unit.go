package models

import (
	"encoding/json"
	"time"
)

// RawUnitKind tells the pipeline which extractor applies to a staged unit.
type RawUnitKind string

const (
	RawUnitKindOdds    RawUnitKind = "odds"
	RawUnitKindFight   RawUnitKind = "fight"
	RawUnitKindFighter RawUnitKind = "fighter"
)

// RawUnit is a staged scrape payload awaiting reconciliation. Sequence is
// assigned by the staging table per source and is the ordering the cursor
// walks; it never goes backwards.
type RawUnit struct {
	ID          string          `json:"id" db:"id"`
	SourceID    string          `json:"source_id" db:"source_id"`
	Sequence    int64           `json:"sequence" db:"sequence"`
	Kind        RawUnitKind     `json:"kind" db:"kind"`
	SourceKey   string          `json:"source_key" db:"source_key"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Fingerprint string          `json:"fingerprint" db:"fingerprint"`
	ReceivedAt  time.Time       `json:"received_at" db:"received_at"`
	ConsumedAt  *time.Time      `json:"consumed_at,omitempty" db:"consumed_at"`
}

// StageRawUnitRequest is the request for staging a raw unit directly
type StageRawUnitRequest struct {
	SourceID  string          `json:"source_id" validate:"required"`
	Kind      RawUnitKind     `json:"kind" validate:"required"`
	SourceKey string          `json:"source_key" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}
