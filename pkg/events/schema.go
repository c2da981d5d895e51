package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType defines the type of event
type EventType string

const (
	// Record events
	EventTypeRecordLinked     EventType = "record.linked"
	EventTypeRecordUnresolved EventType = "record.unresolved"

	// Run events
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunFailed    EventType = "run.failed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	SourceID      string    `json:"source_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// RecordLinkedEvent is emitted when an odds record is joined to a fight.
// Decimal quotes additionally carry each corner's implied win chance.
type RecordLinkedEvent struct {
	BaseEvent
	RecordID   string           `json:"record_id"`
	FightID    string           `json:"fight_id"`
	Sportsbook string           `json:"sportsbook"`
	OddsType   string           `json:"odds_type"`
	Kind       string           `json:"kind"`
	Confidence float64          `json:"confidence"`
	ImpliedOne *decimal.Decimal `json:"implied_probability_one,omitempty"`
	ImpliedTwo *decimal.Decimal `json:"implied_probability_two,omitempty"`
	RunID      string           `json:"run_id"`
	Data       json.RawMessage  `json:"data"`
}

// RecordUnresolvedEvent is emitted when a unit is parked for review
type RecordUnresolvedEvent struct {
	BaseEvent
	EntryID    string          `json:"entry_id"`
	UnitID     string          `json:"unit_id"`
	Reason     string          `json:"reason"`
	Detail     string          `json:"detail,omitempty"`
	RunID      string          `json:"run_id"`
	Candidates json.RawMessage `json:"candidates,omitempty"`
}

// RunCompletedEvent is emitted when a reconciliation run finishes
type RunCompletedEvent struct {
	BaseEvent
	RunID       string `json:"run_id"`
	Processed   int    `json:"processed"`
	Matched     int    `json:"matched"`
	Ambiguous   int    `json:"ambiguous"`
	Unmatched   int    `json:"unmatched"`
	Conflicts   int    `json:"conflicts"`
	CursorStart int64  `json:"cursor_start"`
	CursorEnd   int64  `json:"cursor_end"`
	DurationMS  int64  `json:"duration_ms"`
}

// RunFailedEvent is emitted when a reconciliation run aborts
type RunFailedEvent struct {
	BaseEvent
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, sourceID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		SourceID:      sourceID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
