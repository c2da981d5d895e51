package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/balaustrada/ufcscraper/pkg/database"
	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/metrics"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/names"
	"github.com/balaustrada/ufcscraper/pkg/schema"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// projectedFight pairs a committed fight with its event for graph projection.
type projectedFight struct {
	fight models.Fight
	event models.Event
}

// ReconcilePrimary runs one pass over the primary stats source. Primary
// units define the canonical dataset directly: fighter units upsert fighter
// rows, fight units upsert the event, both corners and the fight itself.
// Identity fields of existing rows are never rewritten; only result and
// profile fields refresh.
func (r *Reconciler) ReconcilePrimary(ctx context.Context, sourceID string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Reconciler.ReconcilePrimary")
	defer span.End()

	source, ok := r.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", sourceID)
	}
	if source.Role != models.SourceRolePrimary {
		return nil, fmt.Errorf("source %q is not the primary source", sourceID)
	}

	var run *models.Run
	err := r.withRunLock(ctx, sourceID, func() error {
		var err error
		run, err = r.reconcilePrimary(ctx, source)
		return err
	})
	return run, err
}

func (r *Reconciler) reconcilePrimary(ctx context.Context, source models.SourceDefinition) (*models.Run, error) {
	started := time.Now()
	log := r.logger.WithContext(ctx).WithField("source_id", source.ID)

	cursor, pending, err := r.pendingUnits(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		log.Debug("Nothing pending, skipping run")
		return &models.Run{
			SourceID:    source.ID,
			Status:      models.RunStatusCompleted,
			CursorStart: cursor.Position,
			CursorEnd:   cursor.Position,
			StartedAt:   started,
		}, nil
	}

	run, err := r.runs.Start(ctx, source.ID, cursor.Position)
	if err != nil {
		return nil, err
	}
	log = log.WithField("run_id", run.ID)

	txCtx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return run, r.failRun(ctx, run, err)
	}

	var (
		parked    []models.UnresolvedEntry
		upserted  []models.Fighter
		projected []projectedFight
		matched   int
	)

	apply := func() error {
		for _, unit := range pending {
			run.Processed++

			entry, parkEntry, err := r.applyPrimaryUnit(txCtx, source, unit, run.ID)
			if err != nil {
				return err
			}
			if parkEntry != nil {
				parked = append(parked, *parkEntry)
				continue
			}
			if entry == nil {
				// Out of coverage; consumed without effect.
				continue
			}
			matched++
			if entry.fighter != nil {
				upserted = append(upserted, *entry.fighter)
			}
			if entry.fight != nil {
				projected = append(projected, *entry.fight)
			}
		}

		run.Matched = matched
		run.Unmatched = len(parked)
		run.CursorEnd = maxSequence(pending)

		if err := r.unresolved.InsertBatch(txCtx, parked); err != nil {
			return err
		}
		if err := r.units.MarkConsumed(txCtx, unitIDs(pending)); err != nil {
			return err
		}
		if err := r.tracker.Commit(txCtx, cursor, pending); err != nil {
			return err
		}
		run.Status = models.RunStatusCompleted
		return r.runs.Complete(txCtx, run)
	}

	if err := apply(); err != nil {
		if rbErr := tx.Rollback(txCtx); rbErr != nil {
			log.WithError(rbErr).Error("Failed to roll back run transaction")
		}
		return run, r.failRun(ctx, run, err)
	}
	if err := tx.Commit(txCtx); err != nil {
		return run, r.failRun(ctx, run, err)
	}

	metrics.RecordRun(source.ID, string(models.RunStatusCompleted), time.Since(started).Seconds())
	metrics.RecordUnitOutcome(source.ID, "matched", run.Matched)
	metrics.RecordUnitOutcome(source.ID, "bad_input", len(parked))
	metrics.SetCursorPosition(source.ID, run.CursorEnd)

	r.projectPrimary(ctx, upserted, projected)

	if r.emitter != nil {
		if err := r.emitter.EmitRecordsUnresolved(ctx, parked); err != nil {
			log.WithError(err).Warn("Failed to emit record.unresolved events")
		}
		if err := r.emitter.EmitRunCompleted(ctx, run); err != nil {
			log.WithError(err).Warn("Failed to emit run.completed event")
		}
	}

	log.WithFields(map[string]any{
		"processed":  run.Processed,
		"matched":    run.Matched,
		"bad_input":  len(parked),
		"cursor_end": run.CursorEnd,
	}).Info("Primary reconciliation run completed")

	return run, nil
}

// appliedUnit is the committed outcome of one primary unit.
type appliedUnit struct {
	fighter *models.Fighter
	fight   *projectedFight
}

// applyPrimaryUnit upserts what one unit describes. A returned park entry
// retires the unit as bad input; a nil, nil, nil return means the unit was
// skipped as out of coverage. Store failures return an error and abort the
// transaction: the batch must replay, not half-apply.
func (r *Reconciler) applyPrimaryUnit(ctx context.Context, source models.SourceDefinition, unit models.RawUnit, runID string) (*appliedUnit, *models.UnresolvedEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Reconciler.applyPrimaryUnit")
	defer span.End()

	result, err := r.schema.ValidatePayload(ctx, source.ID, unit.Payload)
	if err != nil {
		return nil, parkUnit(unit, runID, errors.ReasonBadInput, err.Error()), nil
	}
	if !result.Valid {
		return nil, parkUnit(unit, runID, errors.ReasonBadInput, schema.Describe(result)), nil
	}

	switch unit.Kind {
	case models.RawUnitKindFighter:
		return r.applyFighterUnit(ctx, source, unit, runID)
	case models.RawUnitKindFight:
		return r.applyFightUnit(ctx, source, unit, runID)
	default:
		return nil, parkUnit(unit, runID, errors.ReasonBadInput, fmt.Sprintf("primary source cannot carry %q units", unit.Kind)), nil
	}
}

func (r *Reconciler) applyFighterUnit(ctx context.Context, source models.SourceDefinition, unit models.RawUnit, runID string) (*appliedUnit, *models.UnresolvedEntry, error) {
	entry, err := r.extractor.FighterEntry(source, unit.Payload)
	if err != nil {
		return nil, parkUnit(unit, runID, errors.ReasonBadInput, err.Error()), nil
	}

	normalized, err := names.Normalize(entry.Name)
	if err != nil {
		return nil, parkUnit(unit, runID, errors.ReasonBadInput, err.Error()), nil
	}

	fighter, err := r.fighters.Upsert(ctx, &models.Fighter{
		ID:             uuid.New().String(),
		Name:           entry.Name,
		NormalizedName: normalized.Key,
		Suffix:         normalized.Suffix,
		Nickname:       entry.Nickname,
		WeightClass:    entry.WeightClass,
		DOB:            entry.DOB,
		HeightCM:       entry.HeightCM,
		ReachCM:        entry.ReachCM,
		Stance:         entry.Stance,
	})
	if err != nil {
		return nil, nil, err
	}

	return &appliedUnit{fighter: fighter}, nil, nil
}

func (r *Reconciler) applyFightUnit(ctx context.Context, source models.SourceDefinition, unit models.RawUnit, runID string) (*appliedUnit, *models.UnresolvedEntry, error) {
	entry, err := r.extractor.FightEntry(source, unit.Payload)
	if err != nil {
		return nil, parkUnit(unit, runID, errors.ReasonBadInput, err.Error()), nil
	}
	if entry.EventDate.Before(r.config.MinEventDate) {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"event":      entry.EventName,
			"event_date": entry.EventDate.Format("2006-01-02"),
		}).Debug("Skipping fight before coverage start")
		return nil, nil, nil
	}

	one, err := r.upsertCornerFighter(ctx, entry.FighterRaw)
	if err != nil {
		if errors.IsNormalizationError(err) {
			return nil, parkUnit(unit, runID, errors.ReasonBadInput, err.Error()), nil
		}
		return nil, nil, err
	}
	two, err := r.upsertCornerFighter(ctx, entry.OpponentRaw)
	if err != nil {
		if errors.IsNormalizationError(err) {
			return nil, parkUnit(unit, runID, errors.ReasonBadInput, err.Error()), nil
		}
		return nil, nil, err
	}

	// A fight's two corners are always distinct fighters. Corner spellings
	// that resolve to one identity cannot produce a valid fight row.
	if one.ID == two.ID {
		detail := fmt.Sprintf("both corners %q and %q resolve to the same fighter", entry.FighterRaw, entry.OpponentRaw)
		return nil, parkUnit(unit, runID, errors.ReasonBadInput, detail), nil
	}

	event, err := r.events.Upsert(ctx, &models.Event{
		ID:             uuid.New().String(),
		Name:           entry.EventName,
		NormalizedName: names.Key(entry.EventName),
		Date:           entry.EventDate,
		Location:       entry.Location,
		SourceKey:      eventSourceKey(entry.EventName, entry.EventDate),
	})
	if err != nil {
		return nil, nil, err
	}

	fight, err := r.fights.Upsert(ctx, &models.Fight{
		ID:              uuid.New().String(),
		EventID:         event.ID,
		FighterOneID:    one.ID,
		FighterTwoID:    two.ID,
		WeightClass:     entry.WeightClass,
		TitleFight:      entry.TitleFight,
		ScheduledRounds: entry.ScheduledRounds,
		Gender:          entry.Gender,
		WinnerID:        winnerID(entry.WinnerRaw, one, two),
		Result:          entry.Result,
		ResultDetails:   entry.ResultDetails,
		DecisionRound:   entry.DecisionRound,
		DecisionTime:    entry.DecisionTime,
		SourceKey:       unit.SourceKey,
	})
	if err != nil {
		return nil, nil, err
	}

	return &appliedUnit{fight: &projectedFight{fight: *fight, event: *event}}, nil, nil
}

// upsertCornerFighter registers a fighter seen only as a corner name on a
// fight. Profile fields stay empty until a fighter unit fills them.
func (r *Reconciler) upsertCornerFighter(ctx context.Context, raw string) (*models.Fighter, error) {
	normalized, err := names.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return r.fighters.Upsert(ctx, &models.Fighter{
		ID:             uuid.New().String(),
		Name:           raw,
		NormalizedName: normalized.Key,
		Suffix:         normalized.Suffix,
	})
}

// projectPrimary mirrors the committed fighters and fights into the graph.
func (r *Reconciler) projectPrimary(ctx context.Context, fighters []models.Fighter, fights []projectedFight) {
	if r.graph == nil {
		return
	}
	if err := r.graph.ProjectFighters(ctx, fighters); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to project fighters into graph")
	}
	for _, p := range fights {
		if err := r.graph.ProjectFight(ctx, p.fight, p.event); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("fight_id", p.fight.ID).Warn("Failed to project fight into graph")
		}
	}
}

// winnerID resolves the reported winner name against the two corners.
// Comparison is on (key, suffix) so a suffixed corner like "Frank Mir Jr"
// resolves and a namesake corner is never credited with the other's win.
// A winner that matches neither corner stays nil; the result string still
// records what the source said.
func winnerID(winnerRaw *string, one, two *models.Fighter) *string {
	if winnerRaw == nil {
		return nil
	}
	winner, err := names.Normalize(*winnerRaw)
	if err != nil {
		return nil
	}
	if winner.Key == one.NormalizedName && winner.Suffix == one.Suffix {
		return &one.ID
	}
	if winner.Key == two.NormalizedName && winner.Suffix == two.Suffix {
		return &two.ID
	}
	return nil
}

func eventSourceKey(name string, date time.Time) string {
	return names.Key(name) + "|" + date.UTC().Format("2006-01-02")
}

func parkUnit(unit models.RawUnit, runID string, reason errors.ReasonCode, detail string) *models.UnresolvedEntry {
	candidates, _ := json.Marshal(map[string]any{})
	return &models.UnresolvedEntry{
		ID:         uuid.New().String(),
		SourceID:   unit.SourceID,
		UnitID:     unit.ID,
		RunID:      runID,
		Reason:     string(reason),
		Detail:     detail,
		Payload:    unit.Payload,
		Candidates: candidates,
		Status:     models.UnresolvedStatusPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}
