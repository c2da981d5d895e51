package extractor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/models"
)

func moneylineSource() models.SourceDefinition {
	return models.SourceDefinition{
		ID:         "bfo",
		Name:       "Best Fight Odds",
		Role:       models.SourceRoleOdds,
		OddsKind:   models.OddsKindMoneyline,
		Sportsbook: "bestfightodds",
		Extract: models.ExtractPaths{
			FighterName:      "fighter.name",
			OpponentName:     "opponent.name",
			EventName:        "event.name",
			EventDate:        "event.date",
			WeightClass:      "fight.weight_class",
			FighterOpen:      "odds.fighter.open",
			FighterCloseMin:  "odds.fighter.close_min",
			FighterCloseMax:  "odds.fighter.close_max",
			OpponentOpen:     "odds.opponent.open",
			OpponentCloseMin: "odds.opponent.close_min",
			OpponentCloseMax: "odds.opponent.close_max",
		},
	}
}

func TestOddsEntry(t *testing.T) {
	t.Run("extracts a moneyline entry", func(t *testing.T) {
		e := New()

		payload := json.RawMessage(`{
			"fighter": {"name": "Jon Jones"},
			"opponent": {"name": "Stipe Miocic"},
			"event": {"name": "UFC 309", "date": "2024-11-16"},
			"fight": {"weight_class": "Heavyweight"},
			"odds": {
				"fighter": {"open": -450, "close_min": -625, "close_max": -425},
				"opponent": {"open": "+360", "close_min": 330, "close_max": 470}
			}
		}`)

		entry, err := e.OddsEntry(moneylineSource(), payload)

		require.NoError(t, err)
		assert.Equal(t, "Jon Jones", entry.FighterRaw)
		assert.Equal(t, "Stipe Miocic", entry.OpponentRaw)
		assert.Equal(t, "UFC 309", entry.EventName)
		assert.Equal(t, time.Date(2024, 11, 16, 0, 0, 0, 0, time.UTC), entry.EventDate)
		assert.Equal(t, "bestfightodds", entry.Sportsbook)
		require.NotNil(t, entry.WeightClass)
		assert.Equal(t, "Heavyweight", *entry.WeightClass)
		require.NotNil(t, entry.FighterOpen)
		assert.Equal(t, int64(-450), *entry.FighterOpen)
		require.NotNil(t, entry.OpponentOpen)
		assert.Equal(t, int64(360), *entry.OpponentOpen)
		assert.Equal(t, models.OddsKindMoneyline, entry.Kind)
	})

	t.Run("extracts a decimal entry", func(t *testing.T) {
		e := New()

		source := models.SourceDefinition{
			ID:         "op",
			Role:       models.SourceRoleOdds,
			OddsKind:   models.OddsKindDecimal,
			Sportsbook: "oddsportal",
			Extract: models.ExtractPaths{
				FighterName:   "home",
				OpponentName:  "away",
				EventName:     "tournament",
				EventDate:     "starts_at",
				FighterOpen:   "prices.home_open",
				FighterClose:  "prices.home_close",
				OpponentOpen:  "prices.away_open",
				OpponentClose: "prices.away_close",
			},
		}

		payload := json.RawMessage(`{
			"home": "Alex Pereira",
			"away": "Khalil Rountree",
			"tournament": "UFC 307",
			"starts_at": "2024-10-05T22:00:00Z",
			"prices": {"home_open": "1.28", "home_close": 1.22, "away_open": "3.95", "away_close": "4.50"}
		}`)

		entry, err := e.OddsEntry(source, payload)

		require.NoError(t, err)
		require.NotNil(t, entry.FighterDecimalOpen)
		assert.Equal(t, "1.28", entry.FighterDecimalOpen.String())
		require.NotNil(t, entry.OpponentDecimalClose)
		assert.True(t, entry.OpponentDecimalClose.Equal(decimal.RequireFromString("4.5")))
	})

	t.Run("missing fighter name is bad input", func(t *testing.T) {
		e := New()

		payload := json.RawMessage(`{
			"opponent": {"name": "Stipe Miocic"},
			"event": {"name": "UFC 309", "date": "2024-11-16"}
		}`)

		_, err := e.OddsEntry(moneylineSource(), payload)

		require.Error(t, err)
		assert.True(t, errors.IsNormalizationError(err))
	})

	t.Run("unparseable date is bad input", func(t *testing.T) {
		e := New()

		payload := json.RawMessage(`{
			"fighter": {"name": "Jon Jones"},
			"opponent": {"name": "Stipe Miocic"},
			"event": {"name": "UFC 309", "date": "someday soon"}
		}`)

		_, err := e.OddsEntry(moneylineSource(), payload)

		require.Error(t, err)
		assert.True(t, errors.IsNormalizationError(err))
	})

	t.Run("non-object payload is bad input", func(t *testing.T) {
		e := New()

		_, err := e.OddsEntry(moneylineSource(), json.RawMessage(`[1, 2, 3]`))

		require.Error(t, err)
		assert.True(t, errors.IsNormalizationError(err))
	})

	t.Run("human readable dates parse", func(t *testing.T) {
		e := New()

		payload := json.RawMessage(`{
			"fighter": {"name": "Jon Jones"},
			"opponent": {"name": "Stipe Miocic"},
			"event": {"name": "UFC 309", "date": "November 16, 2024"}
		}`)

		entry, err := e.OddsEntry(moneylineSource(), payload)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 11, 16, 0, 0, 0, 0, time.UTC), entry.EventDate)
	})
}

func TestFighterEntry(t *testing.T) {
	e := New()

	source := models.SourceDefinition{
		ID:   "ufcstats",
		Role: models.SourceRolePrimary,
		Extract: models.ExtractPaths{
			FighterName: "name",
			Nickname:    "nickname",
			WeightClass: "weight_class",
			DOB:         "dob",
			HeightCM:    "height_cm",
			ReachCM:     "reach_cm",
			Stance:      "stance",
		},
	}

	payload := json.RawMessage(`{
		"name": "Jon Jones",
		"nickname": "Bones",
		"weight_class": "Heavyweight",
		"dob": "1987-07-19",
		"height_cm": 193.0,
		"reach_cm": "215",
		"stance": "Orthodox"
	}`)

	entry, err := e.FighterEntry(source, payload)

	require.NoError(t, err)
	assert.Equal(t, "Jon Jones", entry.Name)
	require.NotNil(t, entry.Nickname)
	assert.Equal(t, "Bones", *entry.Nickname)
	require.NotNil(t, entry.DOB)
	assert.Equal(t, 1987, entry.DOB.Year())
	require.NotNil(t, entry.ReachCM)
	assert.Equal(t, 215.0, *entry.ReachCM)
}

func TestFightEntry(t *testing.T) {
	e := New()

	source := models.SourceDefinition{
		ID:   "ufcstats",
		Role: models.SourceRolePrimary,
		Extract: models.ExtractPaths{
			FighterName:     "red_corner",
			OpponentName:    "blue_corner",
			EventName:       "event",
			EventDate:       "date",
			Location:        "location",
			WeightClass:     "weight_class",
			TitleFight:      "title_fight",
			ScheduledRounds: "rounds",
			Gender:          "gender",
			WinnerName:      "winner",
			Result:          "result",
			DecisionRound:   "end_round",
			DecisionTime:    "end_time",
		},
	}

	payload := json.RawMessage(`{
		"red_corner": "Alex Pereira",
		"blue_corner": "Jiri Prochazka",
		"event": "UFC 303",
		"date": "2024-06-29",
		"location": "Las Vegas, Nevada",
		"weight_class": "Light Heavyweight",
		"title_fight": true,
		"rounds": 5,
		"gender": "Male",
		"winner": "Alex Pereira",
		"result": "KO/TKO",
		"end_round": 2,
		"end_time": "0:13"
	}`)

	entry, err := e.FightEntry(source, payload)

	require.NoError(t, err)
	assert.Equal(t, "Alex Pereira", entry.FighterRaw)
	assert.True(t, entry.TitleFight)
	assert.Equal(t, 5, entry.ScheduledRounds)
	assert.Equal(t, "male", entry.Gender)
	require.NotNil(t, entry.WinnerRaw)
	assert.Equal(t, "Alex Pereira", *entry.WinnerRaw)
	require.NotNil(t, entry.DecisionRound)
	assert.Equal(t, 2, *entry.DecisionRound)
}

func TestExtractDefaults(t *testing.T) {
	e := New()

	t.Run("empty path yields nil", func(t *testing.T) {
		value, err := e.Extract(map[string]any{"a": 1}, "")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("missing rounds defaults to three", func(t *testing.T) {
		source := models.SourceDefinition{
			Extract: models.ExtractPaths{
				FighterName:  "a",
				OpponentName: "b",
				EventName:    "e",
				EventDate:    "d",
			},
		}

		entry, err := e.FightEntry(source, json.RawMessage(`{"a": "X Y", "b": "Z W", "e": "UFC", "d": "2024-01-20"}`))

		require.NoError(t, err)
		assert.Equal(t, 3, entry.ScheduledRounds)
		assert.Equal(t, "male", entry.Gender)
	})
}
