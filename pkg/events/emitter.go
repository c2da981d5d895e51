// Package events handles event emission for reconciliation outcomes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/balaustrada/ufcscraper/pkg/tracing"

	"github.com/balaustrada/ufcscraper/pkg/kafka"
	"github.com/balaustrada/ufcscraper/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes reconciliation outcomes to the output topic
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitRecordsLinked emits a record.linked event for each newly joined odds record
func (e *Emitter) EmitRecordsLinked(ctx context.Context, records []models.LinkedOdds) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordsLinked")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	keyed := make(map[string]any, len(records))
	for _, record := range records {
		event, err := newRecordLinkedEvent(record)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).Error("Failed to marshal linked record")
			continue
		}
		keyed[record.MergeKey()] = event
	}

	if err := e.producer.PublishBatch(ctx, string(EventTypeRecordLinked), keyed); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit record.linked events")
		return err
	}

	return nil
}

// newRecordLinkedEvent builds the outbound view of one linked record. For
// decimal quotes it also derives each corner's implied win chance, so
// downstream consumers need no odds math of their own.
func newRecordLinkedEvent(record models.LinkedOdds) (*RecordLinkedEvent, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	event := &RecordLinkedEvent{
		BaseEvent:  NewBaseEvent(EventTypeRecordLinked, record.SourceID),
		RecordID:   record.ID,
		FightID:    record.FightID,
		Sportsbook: record.Sportsbook,
		OddsType:   record.OddsType,
		Kind:       string(record.Kind),
		Confidence: record.Confidence,
		RunID:      record.RunID,
		Data:       data,
	}

	if record.Kind == models.OddsKindDecimal {
		if record.FighterOneDecimal != nil {
			implied := models.ImpliedProbability(*record.FighterOneDecimal)
			event.ImpliedOne = &implied
		}
		if record.FighterTwoDecimal != nil {
			implied := models.ImpliedProbability(*record.FighterTwoDecimal)
			event.ImpliedTwo = &implied
		}
	}

	return event, nil
}

// EmitRecordsUnresolved emits a record.unresolved event for each parked entry
func (e *Emitter) EmitRecordsUnresolved(ctx context.Context, entries []models.UnresolvedEntry) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecordsUnresolved")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	keyed := make(map[string]any, len(entries))
	for _, entry := range entries {
		event := &RecordUnresolvedEvent{
			BaseEvent:  NewBaseEvent(EventTypeRecordUnresolved, entry.SourceID),
			EntryID:    entry.ID,
			UnitID:     entry.UnitID,
			Reason:     entry.Reason,
			Detail:     entry.Detail,
			RunID:      entry.RunID,
			Candidates: entry.Candidates,
		}
		keyed[entry.UnitID+"|"+entry.Reason] = event
	}

	if err := e.producer.PublishBatch(ctx, string(EventTypeRecordUnresolved), keyed); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit record.unresolved events")
		return err
	}

	return nil
}

// EmitRunCompleted emits a run.completed event with the run's counters
func (e *Emitter) EmitRunCompleted(ctx context.Context, run *models.Run) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunCompleted")
	defer span.End()

	var durationMS int64
	if run.FinishedAt != nil {
		durationMS = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	} else {
		durationMS = time.Since(run.StartedAt).Milliseconds()
	}

	event := &RunCompletedEvent{
		BaseEvent:   NewBaseEvent(EventTypeRunCompleted, run.SourceID),
		RunID:       run.ID,
		Processed:   run.Processed,
		Matched:     run.Matched,
		Ambiguous:   run.Ambiguous,
		Unmatched:   run.Unmatched,
		Conflicts:   run.Conflicts,
		CursorStart: run.CursorStart,
		CursorEnd:   run.CursorEnd,
		DurationMS:  durationMS,
	}

	if err := e.producer.Publish(ctx, run.ID, string(EventTypeRunCompleted), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit run.completed event")
		return err
	}

	return nil
}

// EmitRunFailed emits a run.failed event
func (e *Emitter) EmitRunFailed(ctx context.Context, run *models.Run, cause error) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunFailed")
	defer span.End()

	event := &RunFailedEvent{
		BaseEvent: NewBaseEvent(EventTypeRunFailed, run.SourceID),
		RunID:     run.ID,
		Error:     cause.Error(),
	}

	if err := e.producer.Publish(ctx, run.ID, string(EventTypeRunFailed), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit run.failed event")
		return err
	}

	return nil
}
