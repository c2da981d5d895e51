// Package assembler merges link results into the joined dataset and parks
// everything that could not or must not be merged.
package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// Counts partitions the units of one assembled batch.
type Counts struct {
	Matched   int `json:"matched"`
	Ambiguous int `json:"ambiguous"`
	Unmatched int `json:"unmatched"`
	Conflicts int `json:"conflicts"`
	BadInput  int `json:"bad_input"`
}

// Assembler folds a batch of link results into joined records plus
// unresolved entries. The merge is idempotent: a record that already exists
// with the same value is a no-op, and a record that already exists with a
// different value is a conflict routed to unresolved, never an overwrite.
type Assembler struct {
	logger ectologger.Logger
}

// NewAssembler creates a new dataset assembler
func NewAssembler(logger ectologger.Logger) *Assembler {
	return &Assembler{logger: logger}
}

// Assemble merges the batch. existing carries the already-persisted records
// for the fights this batch touches, so replays of committed units collapse
// into no-ops. Both return slices are produced every run; unresolved
// entries are never dropped.
func (a *Assembler) Assemble(ctx context.Context, links []models.LinkResult, existing []models.LinkedOdds) ([]models.LinkedOdds, []models.UnresolvedEntry, Counts) {
	ctx, span := tracing.StartSpan(ctx, "assembler.Assembler.Assemble")
	defer span.End()

	byKey := make(map[string]models.LinkedOdds, len(existing))
	for _, record := range existing {
		byKey[record.MergeKey()] = record
	}

	var (
		joined     []models.LinkedOdds
		unresolved []models.UnresolvedEntry
		counts     Counts
	)

	for _, link := range links {
		switch link.Status {
		case models.LinkStatusAmbiguous:
			counts.Ambiguous++
			unresolved = append(unresolved, a.park(link))
			continue
		case models.LinkStatusUnmatched:
			if link.Reason == string(errors.ReasonBadInput) {
				counts.BadInput++
			} else {
				counts.Unmatched++
			}
			unresolved = append(unresolved, a.park(link))
			continue
		}

		counts.Matched++
		conflicted := false
		for _, record := range link.Odds {
			key := record.MergeKey()
			prior, seen := byKey[key]
			if !seen {
				byKey[key] = record
				joined = append(joined, record)
				continue
			}
			if prior.SameValue(record) {
				// Replay of an already-merged value; idempotent no-op.
				continue
			}

			conflicted = true
			unresolved = append(unresolved, a.parkConflict(link, prior, record))
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"fight_id":   record.FightID,
				"sportsbook": record.Sportsbook,
				"odds_type":  record.OddsType,
			}).Warn("Conflicting odds value routed to unresolved")
		}
		if conflicted {
			counts.Matched--
			counts.Conflicts++
		}
	}

	return joined, unresolved, counts
}

// park turns a non-linked result into a persisted unresolved entry.
func (a *Assembler) park(link models.LinkResult) models.UnresolvedEntry {
	candidates, _ := json.Marshal(map[string]any{
		"fighters": link.Fighter.Candidates,
		"fights":   link.Candidates,
	})

	return models.UnresolvedEntry{
		ID:         uuid.New().String(),
		SourceID:   link.Unit.SourceID,
		UnitID:     link.Unit.ID,
		Reason:     link.Reason,
		Detail:     link.Detail,
		Payload:    link.Unit.Payload,
		Candidates: candidates,
		Status:     models.UnresolvedStatusPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// parkConflict records a duplicate-link conflict: the kept value, the
// rejected value, and the merge key they collided on.
func (a *Assembler) parkConflict(link models.LinkResult, kept, rejected models.LinkedOdds) models.UnresolvedEntry {
	conflictErr := errors.NewDuplicateLinkError(rejected.FightID, rejected.Sportsbook, rejected.OddsType).
		AddValues(kept.ValueString(), rejected.ValueString())

	candidates, _ := json.Marshal(map[string]any{
		"kept":     kept.ValueString(),
		"rejected": rejected.ValueString(),
	})

	return models.UnresolvedEntry{
		ID:         uuid.New().String(),
		SourceID:   link.Unit.SourceID,
		UnitID:     link.Unit.ID,
		Reason:     string(errors.ReasonConflict),
		Detail:     conflictErr.Error(),
		Payload:    link.Unit.Payload,
		Candidates: candidates,
		Status:     models.UnresolvedStatusPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// String renders the partition for run logs.
func (c Counts) String() string {
	return fmt.Sprintf("matched=%d ambiguous=%d unmatched=%d conflicts=%d bad_input=%d", c.Matched, c.Ambiguous, c.Unmatched, c.Conflicts, c.BadInput)
}

// Total is the number of units the batch covered.
func (c Counts) Total() int {
	return c.Matched + c.Ambiguous + c.Unmatched + c.Conflicts + c.BadInput
}
