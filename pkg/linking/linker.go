// Package linking attaches raw odds entries to canonical fight records.
package linking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/names"
	"github.com/balaustrada/ufcscraper/pkg/similarity"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// Provenance tags recorded on linked rows so a reviewer can see which
// signals carried the decision.
const (
	ProvenanceFighterMatch = "fighter:matched"
	ProvenanceFighterAlias = "fighter:alias"
	ProvenanceEventDate    = "event:date"
	ProvenanceEventName    = "event:name"
)

// Config contains the linking thresholds. All of them come from service
// configuration.
type Config struct {
	AcceptThreshold float64       // minimum combined score to link
	MarginThreshold float64       // minimum gap over the runner-up fight
	DateWindow      time.Duration // how far a quoted date may drift from the card date
}

// Linker scores candidate fights for a raw odds entry and picks the unique
// best one, or reports why it could not. Pure; no storage access.
type Linker struct {
	logger ectologger.Logger
	scorer *similarity.Scorer
	config Config
}

// NewLinker creates a new fight linker
func NewLinker(logger ectologger.Logger, scorer *similarity.Scorer, config Config) *Linker {
	return &Linker{
		logger: logger,
		scorer: scorer,
		config: config,
	}
}

// Link attaches the entry to one of the candidate fights. The fighter
// outcome gates everything: an ambiguous fighter makes the link ambiguous
// no matter how the fight side scores, and an unmatched fighter can never
// link. Candidates are filtered to fights involving the matched fighter
// whose event date sits inside the window, then scored on date proximity
// blended with event-name similarity.
func (l *Linker) Link(ctx context.Context, entry models.RawOddsEntry, fighter models.MatchOutcome, fights []models.Fight, events map[string]models.Event) models.LinkResult {
	ctx, span := tracing.StartSpan(ctx, "linking.Linker.Link")
	defer span.End()

	switch fighter.Status {
	case models.MatchStatusAmbiguous:
		// Ambiguity propagates; the fight side must not resolve it.
		return models.LinkResult{
			Status:  models.LinkStatusAmbiguous,
			Fighter: fighter,
			Reason:  string(errors.ReasonAmbiguous),
			Detail:  fmt.Sprintf("fighter %q matched %d candidates", entry.FighterRaw, len(fighter.Candidates)),
		}
	case models.MatchStatusUnmatched:
		return models.LinkResult{
			Status:  models.LinkStatusUnmatched,
			Fighter: fighter,
			Reason:  string(errors.ReasonNoMatch),
			Detail:  fmt.Sprintf("no fighter matched %q", entry.FighterRaw),
		}
	}

	scored := l.scoreCandidates(entry, fighter.FighterID, fights, events)
	if len(scored) == 0 {
		return models.LinkResult{
			Status:  models.LinkStatusUnmatched,
			Fighter: fighter,
			Reason:  string(errors.ReasonNoMatch),
			Detail:  fmt.Sprintf("no fight for fighter %s within %s of %s", fighter.FighterID, l.config.DateWindow, entry.EventDate.Format("2006-01-02")),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].candidate.Score > scored[j].candidate.Score
	})

	top := scored[0]
	if top.candidate.Score < l.config.AcceptThreshold {
		return models.LinkResult{
			Status:     models.LinkStatusUnmatched,
			Fighter:    fighter,
			Candidates: candidates(scored),
			Reason:     string(errors.ReasonNoMatch),
			Detail:     fmt.Sprintf("best fight scored %.3f, below threshold", top.candidate.Score),
		}
	}

	if len(scored) > 1 && top.candidate.Score-scored[1].candidate.Score < l.config.MarginThreshold {
		l.logger.WithContext(ctx).WithFields(map[string]any{
			"fighter_id": fighter.FighterID,
			"event_date": entry.EventDate.Format("2006-01-02"),
			"top_score":  top.candidate.Score,
		}).Debug("Fight link is a near-tie")
		return models.LinkResult{
			Status:     models.LinkStatusAmbiguous,
			Fighter:    fighter,
			Candidates: candidates(scored),
			Reason:     string(errors.ReasonAmbiguous),
			Detail:     fmt.Sprintf("%d fights within margin of %.3f", len(scored), top.candidate.Score),
		}
	}

	return models.LinkResult{
		Status:     models.LinkStatusLinked,
		FightID:    top.candidate.FightID,
		Swapped:    top.swapped,
		Confidence: combineConfidence(fighter.Score, top.candidate.Score),
		Provenance: provenance(fighter, top),
		Fighter:    fighter,
		Candidates: candidates(scored),
	}
}

type scoredFight struct {
	candidate models.FightCandidate
	swapped   bool
	dateScore float64
	nameScore float64
}

// scoreCandidates filters to in-window fights involving the fighter and
// scores each. Date proximity dominates: two cards for the same fighter
// inside one window cannot happen, so when the date lines up the event name
// only needs to corroborate. In-window dates score between 1.0 (exact) and
// 0.5 (at the window edge).
func (l *Linker) scoreCandidates(entry models.RawOddsEntry, fighterID string, fights []models.Fight, events map[string]models.Event) []scoredFight {
	var scored []scoredFight
	eventName := names.FromKey(names.Key(entry.EventName), "")

	for _, fight := range fights {
		if !fight.HasFighter(fighterID) {
			continue
		}
		event, ok := events[fight.EventID]
		if !ok {
			continue
		}

		diff := event.Date.Sub(entry.EventDate)
		if diff < 0 {
			diff = -diff
		}
		if diff > l.config.DateWindow {
			continue
		}

		dateScore := 1.0 - 0.5*float64(diff)/float64(l.config.DateWindow)
		nameScore := l.scorer.Score(eventName, names.FromKey(event.NormalizedName, ""))
		combined := 0.7*dateScore + 0.3*nameScore

		scored = append(scored, scoredFight{
			candidate: models.FightCandidate{
				FightID: fight.ID,
				EventID: fight.EventID,
				Score:   combined,
			},
			swapped:   fight.FighterTwoID == fighterID,
			dateScore: dateScore,
			nameScore: nameScore,
		})
	}

	return scored
}

// combineConfidence folds the fighter-match score and the fight-link score
// into the confidence persisted on the linked record.
func combineConfidence(fighterScore, linkScore float64) float64 {
	return fighterScore * linkScore
}

func provenance(fighter models.MatchOutcome, top scoredFight) []string {
	tags := []string{ProvenanceFighterMatch}
	if len(fighter.Candidates) > 0 && fighter.Candidates[0].Via != "canonical" {
		tags = append(tags, ProvenanceFighterAlias)
	}
	if top.dateScore >= 1.0 {
		tags = append(tags, ProvenanceEventDate)
	}
	if top.nameScore >= 0.8 {
		tags = append(tags, ProvenanceEventName)
	}
	return tags
}

func candidates(scored []scoredFight) []models.FightCandidate {
	out := make([]models.FightCandidate, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.candidate)
	}
	return out
}
