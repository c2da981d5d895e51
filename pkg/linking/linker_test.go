package linking

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"

	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/names"
	"github.com/balaustrada/ufcscraper/pkg/similarity"
)

var cardDate = time.Date(2024, 4, 13, 0, 0, 0, 0, time.UTC)

func newTestLinker() *Linker {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewLinker(logger, similarity.NewScorer(), Config{
		AcceptThreshold: 0.65,
		MarginThreshold: 0.10,
		DateWindow:      36 * time.Hour,
	})
}

func matchedFighter(id string) models.MatchOutcome {
	return models.MatchOutcome{
		Status:    models.MatchStatusMatched,
		FighterID: id,
		Score:     0.95,
		Candidates: []models.MatchCandidate{
			{FighterID: id, Score: 0.95, Via: "canonical"},
		},
	}
}

func testFixture() ([]models.Fight, map[string]models.Event) {
	fights := []models.Fight{
		{ID: "fight-1", EventID: "event-1", FighterOneID: "f1", FighterTwoID: "f2"},
		{ID: "fight-2", EventID: "event-2", FighterOneID: "f3", FighterTwoID: "f1"},
	}
	events := map[string]models.Event{
		"event-1": {ID: "event-1", Name: "UFC 300: Pereira vs. Hill", NormalizedName: names.Key("UFC 300: Pereira vs. Hill"), Date: cardDate},
		"event-2": {ID: "event-2", Name: "UFC Fight Night: Allen vs. Curtis", NormalizedName: names.Key("UFC Fight Night: Allen vs. Curtis"), Date: cardDate.AddDate(0, 0, 8)},
	}
	return fights, events
}

func TestLink_UniqueFightInWindow(t *testing.T) {
	linker := newTestLinker()
	fights, events := testFixture()

	entry := models.RawOddsEntry{
		FighterRaw:  "Alex Pereira",
		OpponentRaw: "Jamahal Hill",
		EventName:   "UFC 300",
		EventDate:   cardDate,
		Sportsbook:  "DraftKings",
	}

	result := linker.Link(context.Background(), entry, matchedFighter("f1"), fights, events)
	assert.Equal(t, models.LinkStatusLinked, result.Status)
	assert.Equal(t, "fight-1", result.FightID)
	assert.False(t, result.Swapped)
	assert.Greater(t, result.Confidence, 0.0)
	assert.Contains(t, result.Provenance, ProvenanceFighterMatch)
	assert.Contains(t, result.Provenance, ProvenanceEventDate)
}

func TestLink_QuotedDateDriftInsideWindow(t *testing.T) {
	linker := newTestLinker()
	fights, events := testFixture()

	// Odds source quotes the previous calendar day.
	entry := models.RawOddsEntry{
		FighterRaw: "Alex Pereira",
		EventName:  "UFC 300: Pereira vs Hill",
		EventDate:  cardDate.Add(-24 * time.Hour),
	}

	result := linker.Link(context.Background(), entry, matchedFighter("f1"), fights, events)
	assert.Equal(t, models.LinkStatusLinked, result.Status)
	assert.Equal(t, "fight-1", result.FightID)
}

func TestLink_SwappedCorner(t *testing.T) {
	linker := newTestLinker()
	fights, events := testFixture()

	entry := models.RawOddsEntry{
		FighterRaw: "Jamahal Hill",
		EventName:  "UFC 300",
		EventDate:  cardDate,
	}

	result := linker.Link(context.Background(), entry, matchedFighter("f2"), fights, events)
	assert.Equal(t, models.LinkStatusLinked, result.Status)
	assert.Equal(t, "fight-1", result.FightID)
	assert.True(t, result.Swapped)
}

func TestLink_OutsideWindowIsUnmatched(t *testing.T) {
	linker := newTestLinker()
	fights, events := testFixture()

	// Unique, high-confidence fighter match, but the quoted date is days
	// away from every card the fighter is on.
	entry := models.RawOddsEntry{
		FighterRaw: "Alex Pereira",
		EventName:  "UFC 300",
		EventDate:  cardDate.AddDate(0, 0, 4),
	}

	result := linker.Link(context.Background(), entry, matchedFighter("f1"), fights, events)
	assert.Equal(t, models.LinkStatusUnmatched, result.Status)
	assert.Equal(t, string(errors.ReasonNoMatch), result.Reason)
	assert.Empty(t, result.FightID)
}

func TestLink_AmbiguousFighterPropagates(t *testing.T) {
	linker := newTestLinker()
	fights, events := testFixture()

	fighter := models.MatchOutcome{
		Status: models.MatchStatusAmbiguous,
		Candidates: []models.MatchCandidate{
			{FighterID: "f1", Score: 0.91},
			{FighterID: "f3", Score: 0.90},
		},
	}

	entry := models.RawOddsEntry{
		FighterRaw: "A. Pereira",
		EventName:  "UFC 300",
		EventDate:  cardDate,
	}

	// Fight-side scoring would be unambiguous, but the fighter is not.
	result := linker.Link(context.Background(), entry, fighter, fights, events)
	assert.Equal(t, models.LinkStatusAmbiguous, result.Status)
	assert.Equal(t, string(errors.ReasonAmbiguous), result.Reason)
	assert.Empty(t, result.FightID)
}

func TestLink_UnmatchedFighterPropagates(t *testing.T) {
	linker := newTestLinker()
	fights, events := testFixture()

	entry := models.RawOddsEntry{
		FighterRaw: "Unknown Fighter",
		EventName:  "UFC 300",
		EventDate:  cardDate,
	}

	result := linker.Link(context.Background(), entry, models.MatchOutcome{Status: models.MatchStatusUnmatched}, fights, events)
	assert.Equal(t, models.LinkStatusUnmatched, result.Status)
	assert.Equal(t, string(errors.ReasonNoMatch), result.Reason)
}

func TestLink_NearTiedFightsAreAmbiguous(t *testing.T) {
	linker := newTestLinker()

	// Two snapshots of the same card on the same date. Scores tie exactly.
	fights := []models.Fight{
		{ID: "fight-1", EventID: "event-1", FighterOneID: "f1", FighterTwoID: "f2"},
		{ID: "fight-1b", EventID: "event-1b", FighterOneID: "f1", FighterTwoID: "f2"},
	}
	events := map[string]models.Event{
		"event-1":  {ID: "event-1", NormalizedName: names.Key("UFC 300"), Date: cardDate},
		"event-1b": {ID: "event-1b", NormalizedName: names.Key("UFC 300"), Date: cardDate},
	}

	entry := models.RawOddsEntry{
		FighterRaw: "Alex Pereira",
		EventName:  "UFC 300",
		EventDate:  cardDate,
	}

	result := linker.Link(context.Background(), entry, matchedFighter("f1"), fights, events)
	assert.Equal(t, models.LinkStatusAmbiguous, result.Status)
	assert.Len(t, result.Candidates, 2)
}
