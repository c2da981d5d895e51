// Package tracker walks each source's staged units behind a monotonic
// cursor. The cursor only advances after a whole batch commits, so a crashed
// run replays its batch instead of skipping it.
package tracker

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// CursorStore persists per-source cursor positions. Advance is optimistic:
// it must fail when the stored position no longer equals expected.
type CursorStore interface {
	Get(ctx context.Context, sourceID string) (models.Cursor, error)
	Advance(ctx context.Context, sourceID string, expected int64, position int64) error
}

// Tracker selects the units a reconciliation run should process and commits
// the cursor once the run has persisted its results.
type Tracker struct {
	logger  ectologger.Logger
	cursors CursorStore
}

// NewTracker creates a new scrape tracker
func NewTracker(logger ectologger.Logger, cursors CursorStore) *Tracker {
	return &Tracker{
		logger:  logger,
		cursors: cursors,
	}
}

// Position returns the committed cursor for a source. Sources that have
// never committed sit at position 0.
func (t *Tracker) Position(ctx context.Context, sourceID string) (models.Cursor, error) {
	ctx, span := tracing.StartSpan(ctx, "tracker.Tracker.Position")
	defer span.End()

	return t.cursors.Get(ctx, sourceID)
}

// Pending returns the cursor and the staged units past it, oldest first.
// When every available unit sits behind the cursor the staging table has
// been rewound or another run advanced past us; that is a stale cursor and
// the run must abort.
func (t *Tracker) Pending(ctx context.Context, sourceID string, available []models.RawUnit) (models.Cursor, []models.RawUnit, error) {
	ctx, span := tracing.StartSpan(ctx, "tracker.Tracker.Pending")
	defer span.End()

	cursor, err := t.cursors.Get(ctx, sourceID)
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).WithField("source_id", sourceID).Error("Failed to load cursor")
		return models.Cursor{}, nil, err
	}

	maxSeq := int64(0)
	pending := make([]models.RawUnit, 0, len(available))
	for _, unit := range available {
		if unit.Sequence > maxSeq {
			maxSeq = unit.Sequence
		}
		if unit.Sequence > cursor.Position {
			pending = append(pending, unit)
		}
	}

	if len(available) > 0 && maxSeq < cursor.Position {
		return models.Cursor{}, nil, errors.NewStaleCursorError(sourceID, cursor.Position, maxSeq)
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Sequence < pending[j].Sequence
	})

	t.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id": sourceID,
		"position":  cursor.Position,
		"pending":   len(pending),
	}).Info("Selected pending units")

	return cursor, pending, nil
}

// Commit advances the cursor to the highest processed sequence. The advance
// is conditional on the position the run started from; if another run moved
// the cursor in the meantime the advance fails with a stale cursor error and
// nothing is recorded. An empty batch is a no-op.
func (t *Tracker) Commit(ctx context.Context, cursor models.Cursor, processed []models.RawUnit) error {
	ctx, span := tracing.StartSpan(ctx, "tracker.Tracker.Commit")
	defer span.End()

	if len(processed) == 0 {
		return nil
	}

	position := cursor.Position
	for _, unit := range processed {
		if unit.Sequence > position {
			position = unit.Sequence
		}
	}
	if position == cursor.Position {
		return nil
	}

	if err := t.cursors.Advance(ctx, cursor.SourceID, cursor.Position, position); err != nil {
		t.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_id": cursor.SourceID,
			"expected":  cursor.Position,
			"position":  position,
		}).Error("Failed to advance cursor")
		return err
	}

	t.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id": cursor.SourceID,
		"from":      cursor.Position,
		"to":        position,
	}).Info("Advanced cursor")

	return nil
}
