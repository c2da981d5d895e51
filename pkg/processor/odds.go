package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/balaustrada/ufcscraper/pkg/database"
	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/linking"
	"github.com/balaustrada/ufcscraper/pkg/matching"
	"github.com/balaustrada/ufcscraper/pkg/metrics"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/schema"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// ReconcileOdds runs one reconciliation pass over an odds source: every
// staged unit past the cursor is validated, resolved against the canonical
// fighters, linked to a fight and merged. The merge, the consumed marks and
// the cursor advance commit in one transaction; a failure anywhere leaves
// the cursor where it was so the next run replays the batch.
func (r *Reconciler) ReconcileOdds(ctx context.Context, sourceID string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Reconciler.ReconcileOdds")
	defer span.End()

	source, ok := r.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", sourceID)
	}
	if source.Role != models.SourceRoleOdds {
		return nil, fmt.Errorf("source %q is not an odds source", sourceID)
	}

	var run *models.Run
	err := r.withRunLock(ctx, sourceID, func() error {
		var err error
		run, err = r.reconcileOdds(ctx, source)
		return err
	})
	return run, err
}

func (r *Reconciler) reconcileOdds(ctx context.Context, source models.SourceDefinition) (*models.Run, error) {
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

	candidates, err := r.matchCandidates(ctx)
	if err != nil {
		return run, r.failRun(ctx, run, err)
	}

	linker := r.linkerFor(source)
	links := make([]models.LinkResult, 0, len(pending))
	fightIDs := make(map[string]bool)
	for _, unit := range pending {
		link, err := r.resolveOddsUnit(ctx, source, unit, candidates, linker, run.ID)
		if err != nil {
			return run, r.failRun(ctx, run, err)
		}
		if link.Linked() {
			fightIDs[link.FightID] = true
		}
		links = append(links, link)
	}

	existing, err := r.odds.ListByFights(ctx, keys(fightIDs))
	if err != nil {
		return run, r.failRun(ctx, run, err)
	}

	joined, parked, counts := r.assembler.Assemble(ctx, links, existing)
	for i := range parked {
		parked[i].RunID = run.ID
	}

	run.Processed = counts.Total()
	run.Matched = counts.Matched
	run.Ambiguous = counts.Ambiguous
	run.Unmatched = counts.Unmatched + counts.BadInput
	run.Conflicts = counts.Conflicts
	run.CursorEnd = maxSequence(pending)

	if err := r.commitRun(ctx, run, cursor, pending, joined, parked); err != nil {
		return run, r.failRun(ctx, run, err)
	}

	metrics.RecordRun(source.ID, string(models.RunStatusCompleted), time.Since(started).Seconds())
	metrics.RecordUnitOutcome(source.ID, "matched", counts.Matched)
	metrics.RecordUnitOutcome(source.ID, "ambiguous", counts.Ambiguous)
	metrics.RecordUnitOutcome(source.ID, "unmatched", counts.Unmatched)
	metrics.RecordUnitOutcome(source.ID, "conflict", counts.Conflicts)
	metrics.RecordUnitOutcome(source.ID, "bad_input", counts.BadInput)
	metrics.SetCursorPosition(source.ID, run.CursorEnd)

	r.publishResults(ctx, run, joined, parked)

	if r.graph != nil && len(joined) > 0 {
		if err := r.graph.ProjectOdds(ctx, joined); err != nil {
			log.WithError(err).Warn("Failed to project odds into graph")
		}
	}

	log.WithFields(map[string]any{
		"processed":  run.Processed,
		"counts":     counts.String(),
		"cursor_end": run.CursorEnd,
	}).Info("Reconciliation run completed")

	return run, nil
}

// resolveOddsUnit turns one staged unit into a link result. Resolution
// failures map to parked entries rather than errors: bad payloads, unknown
// names and near-ties are outcomes of the run, not reasons to abort it.
// Store failures do abort, so a broken batch replays instead of consuming
// its units.
func (r *Reconciler) resolveOddsUnit(ctx context.Context, source models.SourceDefinition, unit models.RawUnit, candidates []matching.Candidate, linker *linking.Linker, runID string) (models.LinkResult, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Reconciler.resolveOddsUnit")
	defer span.End()

	result, err := r.schema.ValidatePayload(ctx, source.ID, unit.Payload)
	if err != nil {
		return badInput(unit, err.Error()), nil
	}
	if !result.Valid {
		return badInput(unit, schema.Describe(result)), nil
	}

	entry, err := r.extractor.OddsEntry(source, unit.Payload)
	if err != nil {
		return badInput(unit, err.Error()), nil
	}
	if entry.EventDate.Before(r.config.MinEventDate) {
		return badInput(unit, fmt.Sprintf("event date %s precedes coverage start", entry.EventDate.Format("2006-01-02"))), nil
	}

	outcome, err := r.matcher.Match(ctx, entry.FighterRaw, candidates, matching.AuxSignals{
		WeightClass: entry.WeightClass,
		BirthYear:   entry.BirthYear,
	})
	if err != nil {
		return badInput(unit, err.Error()), nil
	}

	var fights []models.Fight
	var events map[string]models.Event
	if outcome.Matched() {
		fights, err = r.fights.ListByFighter(ctx, outcome.FighterID)
		if err != nil {
			return models.LinkResult{}, err
		}
		events, err = r.events.MapByID(ctx, eventIDs(fights))
		if err != nil {
			return models.LinkResult{}, err
		}
	}

	link := linker.Link(ctx, entry, outcome, fights, events)
	link.Unit = unit
	if link.Linked() {
		link.Odds = buildRecords(entry, link, unit, runID)
	}
	return link, nil
}

// buildRecords materializes the joined rows for a linked entry. The entry
// quotes the matched fighter's corner first; when the fight stores the
// corners the other way round the values swap so fighter_one always refers
// to the fight's first corner.
func buildRecords(entry models.RawOddsEntry, link models.LinkResult, unit models.RawUnit, runID string) []models.LinkedOdds {
	fighterML := []*int64{entry.FighterOpen, entry.FighterCloseMin, entry.FighterCloseMax}
	opponentML := []*int64{entry.OpponentOpen, entry.OpponentCloseMin, entry.OpponentCloseMax}
	mlTypes := []string{models.OddsTypeMoneylineOpen, models.OddsTypeMoneylineCloseMin, models.OddsTypeMoneylineCloseMax}

	base := func(oddsType string) models.LinkedOdds {
		return models.LinkedOdds{
			ID:         uuid.New().String(),
			FightID:    link.FightID,
			Sportsbook: entry.Sportsbook,
			OddsType:   oddsType,
			Kind:       entry.Kind,
			Confidence: link.Confidence,
			Provenance: pq.StringArray(link.Provenance),
			SourceID:   unit.SourceID,
			UnitID:     unit.ID,
			RunID:      runID,
			CreatedAt:  time.Now().UTC(),
		}
	}

	var records []models.LinkedOdds
	switch entry.Kind {
	case models.OddsKindMoneyline:
		for i, oddsType := range mlTypes {
			one, two := fighterML[i], opponentML[i]
			if link.Swapped {
				one, two = two, one
			}
			if one == nil && two == nil {
				continue
			}
			record := base(oddsType)
			record.FighterOneMoneyline = one
			record.FighterTwoMoneyline = two
			records = append(records, record)
		}
	case models.OddsKindDecimal:
		pairs := []struct {
			oddsType string
			one, two *decimal.Decimal
		}{
			{models.OddsTypeDecimalOpen, entry.FighterDecimalOpen, entry.OpponentDecimalOpen},
			{models.OddsTypeDecimalClose, entry.FighterDecimalClose, entry.OpponentDecimalClose},
		}
		for _, pair := range pairs {
			one, two := pair.one, pair.two
			if link.Swapped {
				one, two = two, one
			}
			if one == nil && two == nil {
				continue
			}
			record := base(pair.oddsType)
			record.FighterOneDecimal = one
			record.FighterTwoDecimal = two
			records = append(records, record)
		}
	}
	return records
}

// commitRun persists one run's results atomically: joined rows, parked
// entries, consumed marks, the cursor advance and the run record itself.
func (r *Reconciler) commitRun(ctx context.Context, run *models.Run, cursor models.Cursor, pending []models.RawUnit, joined []models.LinkedOdds, parked []models.UnresolvedEntry) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Reconciler.commitRun")
	defer span.End()

	txCtx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return err
	}

	commit := func() error {
		if err := r.odds.InsertBatch(txCtx, joined); err != nil {
			return err
		}
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

	if err := commit(); err != nil {
		if rbErr := tx.Rollback(txCtx); rbErr != nil {
			r.logger.WithContext(ctx).WithError(rbErr).Error("Failed to roll back run transaction")
		}
		return err
	}
	return tx.Commit(txCtx)
}

// failRun marks the run failed and reports it. The original cause is always
// returned so callers see why the run aborted.
func (r *Reconciler) failRun(ctx context.Context, run *models.Run, cause error) error {
	r.logger.WithContext(ctx).WithError(cause).WithField("run_id", run.ID).Error("Reconciliation run failed")
	metrics.RecordRun(run.SourceID, string(models.RunStatusFailed), 0)

	if err := r.runs.Fail(ctx, run.ID, cause); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark run failed")
	}
	if r.emitter != nil {
		if err := r.emitter.EmitRunFailed(ctx, run, cause); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit run.failed event")
		}
	}
	return cause
}

// publishResults emits downstream events after a committed run. Emission is
// best-effort: the run already committed, so failures only log.
func (r *Reconciler) publishResults(ctx context.Context, run *models.Run, joined []models.LinkedOdds, parked []models.UnresolvedEntry) {
	if r.emitter == nil {
		return
	}
	if err := r.emitter.EmitRecordsLinked(ctx, joined); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit record.linked events")
	}
	if err := r.emitter.EmitRecordsUnresolved(ctx, parked); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit record.unresolved events")
	}
	if err := r.emitter.EmitRunCompleted(ctx, run); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to emit run.completed event")
	}
}

// pendingUnits loads the batch behind the source's cursor. A staging table
// whose highest sequence sits behind the cursor has been rewound; the run
// must abort rather than guess.
func (r *Reconciler) pendingUnits(ctx context.Context, sourceID string) (models.Cursor, []models.RawUnit, error) {
	cursor, err := r.tracker.Position(ctx, sourceID)
	if err != nil {
		return models.Cursor{}, nil, err
	}

	maxSeq, err := r.units.MaxSequence(ctx, sourceID)
	if err != nil {
		return models.Cursor{}, nil, err
	}
	if maxSeq > 0 && maxSeq < cursor.Position {
		return models.Cursor{}, nil, errors.NewStaleCursorError(sourceID, cursor.Position, maxSeq)
	}

	available, err := r.units.ListBySource(ctx, sourceID, cursor.Position, r.config.BatchSize)
	if err != nil {
		return models.Cursor{}, nil, err
	}

	return r.tracker.Pending(ctx, sourceID, available)
}

// matchCandidates loads the full canonical fighter corpus with aliases.
func (r *Reconciler) matchCandidates(ctx context.Context) ([]matching.Candidate, error) {
	fighters, err := r.fighters.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := r.fighters.ListAliases(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]matching.Candidate, 0, len(fighters))
	for _, fighter := range fighters {
		candidates = append(candidates, matching.Candidate{
			Fighter: fighter,
			Aliases: aliases[fighter.ID],
		})
	}
	return candidates, nil
}

func badInput(unit models.RawUnit, detail string) models.LinkResult {
	return models.LinkResult{
		Status: models.LinkStatusUnmatched,
		Reason: string(errors.ReasonBadInput),
		Detail: detail,
		Unit:   unit,
	}
}

func unitIDs(units []models.RawUnit) []string {
	return ectolinq.Map(units, func(unit models.RawUnit) string { return unit.ID })
}

func maxSequence(units []models.RawUnit) int64 {
	var max int64
	for _, unit := range units {
		if unit.Sequence > max {
			max = unit.Sequence
		}
	}
	return max
}

func eventIDs(fights []models.Fight) []string {
	seen := make(map[string]bool, len(fights))
	ids := make([]string, 0, len(fights))
	for _, fight := range fights {
		if !seen[fight.EventID] {
			seen[fight.EventID] = true
			ids = append(ids, fight.EventID)
		}
	}
	return ids
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
