package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balaustrada/ufcscraper/internal/repositories/cursor"
	"github.com/balaustrada/ufcscraper/internal/repositories/event"
	"github.com/balaustrada/ufcscraper/internal/repositories/fight"
	"github.com/balaustrada/ufcscraper/internal/repositories/fighter"
	"github.com/balaustrada/ufcscraper/internal/repositories/linkedodds"
	"github.com/balaustrada/ufcscraper/internal/repositories/rawunit"
	"github.com/balaustrada/ufcscraper/internal/repositories/run"
	"github.com/balaustrada/ufcscraper/internal/repositories/unresolved"
	"github.com/balaustrada/ufcscraper/pkg/database"
	"github.com/balaustrada/ufcscraper/pkg/linking"
	"github.com/balaustrada/ufcscraper/pkg/matching"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/names"
	"github.com/balaustrada/ufcscraper/pkg/processor"
	"github.com/balaustrada/ufcscraper/pkg/schema"
	"github.com/balaustrada/ufcscraper/pkg/similarity"
	"github.com/balaustrada/ufcscraper/pkg/tracker"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// getTestDB connects to the test database. The schema must already be
// migrated; tests share tables and keep their data disjoint through
// generated names.
func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "ufcscraper"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func pipelineSources() map[string]models.SourceDefinition {
	stringProp := models.PropertyDefinition{Type: "string"}
	return map[string]models.SourceDefinition{
		"ufcstats": {
			ID:   "ufcstats",
			Name: "UFC Stats",
			Role: models.SourceRolePrimary,
			Extract: models.ExtractPaths{
				FighterName:  "fighter",
				OpponentName: "opponent",
				EventName:    "event",
				EventDate:    "date",
				Location:     "location",
				WinnerName:   "winner",
				Result:       "result",
				WeightClass:  "weight_class",
			},
			Schema: models.SourceSchema{
				Properties: map[string]models.PropertyDefinition{"fighter": stringProp},
				Required:   []string{"fighter"},
			},
		},
		"bestfightodds": {
			ID:         "bestfightodds",
			Name:       "Best Fight Odds",
			Role:       models.SourceRoleOdds,
			OddsKind:   models.OddsKindMoneyline,
			Sportsbook: "bestfightodds",
			Extract: models.ExtractPaths{
				FighterName:      "fighter",
				OpponentName:     "opponent",
				EventName:        "event",
				EventDate:        "date",
				FighterOpen:      "f_open",
				FighterCloseMin:  "f_close_min",
				FighterCloseMax:  "f_close_max",
				OpponentOpen:     "o_open",
				OpponentCloseMin: "o_close_min",
				OpponentCloseMax: "o_close_max",
			},
			Schema: models.SourceSchema{
				Properties: map[string]models.PropertyDefinition{
					"fighter":  stringProp,
					"opponent": stringProp,
					"event":    stringProp,
					"date":     stringProp,
				},
				Required: []string{"fighter", "opponent", "event", "date"},
			},
		},
	}
}

func newPipelineReconciler(db database.DB) *processor.Reconciler {
	logger := getTestLogger()
	sources := pipelineSources()

	engine := matching.NewEngine(logger, similarity.NewScorer(), matching.EngineConfig{
		AcceptThreshold: 0.90,
		MarginThreshold: 0.05,
	})

	return processor.NewReconciler(
		logger,
		db,
		sources,
		schema.NewService(sources, logger),
		engine,
		tracker.NewTracker(logger, cursor.NewRepository(db, logger)),
		processor.Stores{
			Fighters:   fighter.NewRepository(db, logger),
			Events:     event.NewRepository(db, logger),
			Fights:     fight.NewRepository(db, logger),
			Units:      rawunit.NewRepository(db, logger),
			Odds:       linkedodds.NewRepository(db, logger),
			Unresolved: unresolved.NewRepository(db, logger),
			Runs:       run.NewRepository(db, logger),
		},
		processor.Config{
			BatchSize:    500,
			LockTTL:      time.Minute,
			MinEventDate: time.Date(2008, 8, 1, 0, 0, 0, 0, time.UTC),
			Link: linking.Config{
				AcceptThreshold: 0.65,
				MarginThreshold: 0.10,
				DateWindow:      48 * time.Hour,
			},
		},
		nil,
		nil,
		nil,
	)
}

func stageUnit(t *testing.T, db database.DB, sourceID string, kind models.RawUnitKind, payload string) {
	t.Helper()
	units := rawunit.NewRepository(db, getTestLogger())
	staged, err := units.StageBatch(context.Background(), []*models.RawUnit{{
		ID:          uuid.New().String(),
		SourceID:    sourceID,
		Kind:        kind,
		SourceKey:   uuid.New().String(),
		Payload:     json.RawMessage(payload),
		Fingerprint: uuid.New().String(),
		ReceivedAt:  time.Now().UTC(),
	}})
	require.NoError(t, err)
	require.Equal(t, 1, staged)
}

func TestReconciliationPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	ctx := context.Background()
	logger := getTestLogger()
	reconciler := newPipelineReconciler(db)

	// Generated names keep this run's rows apart from earlier runs against
	// the same database.
	tag := uuid.New().String()[:8]
	fighterOne := fmt.Sprintf("Jon Jones %s", tag)
	fighterTwo := fmt.Sprintf("Stipe Miocic %s", tag)
	eventName := fmt.Sprintf("UFC 309 %s", tag)
	eventDate := "2024-11-16"

	fightPayload := fmt.Sprintf(
		`{"fighter": %q, "opponent": %q, "event": %q, "date": %q, "location": "New York", "winner": %q, "result": "KO/TKO", "weight_class": "Heavyweight"}`,
		fighterOne, fighterTwo, eventName, eventDate, fighterOne)

	stageUnit(t, db, "ufcstats", models.RawUnitKindFight, fightPayload)

	primaryRun, err := reconciler.ReconcilePrimary(ctx, "ufcstats")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, primaryRun.Status)

	// The fight and both corners are now canonical.
	fighters := fighter.NewRepository(db, logger)
	found, _, err := fighters.List(ctx, names.Key(fighterOne), 1, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	fighterOneID := found[0].ID

	fights := fight.NewRepository(db, logger)
	cards, err := fights.ListByFighter(ctx, fighterOneID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	fightID := cards[0].ID
	require.NotNil(t, cards[0].WinnerID)
	assert.Equal(t, fighterOneID, *cards[0].WinnerID)

	oddsPayload := fmt.Sprintf(
		`{"fighter": %q, "opponent": %q, "event": %q, "date": %q, "f_open": -450, "f_close_min": -500, "f_close_max": -400, "o_open": 350, "o_close_min": 300, "o_close_max": 380}`,
		fighterOne, fighterTwo, eventName, eventDate)

	stageUnit(t, db, "bestfightodds", models.RawUnitKindOdds, oddsPayload)

	oddsRun, err := reconciler.ReconcileOdds(ctx, "bestfightodds")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, oddsRun.Status)

	odds := linkedodds.NewRepository(db, logger)
	records, err := odds.ListByFight(ctx, fightID)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byType := make(map[string]models.LinkedOdds, len(records))
	for _, record := range records {
		byType[record.OddsType] = record
	}
	open, ok := byType[models.OddsTypeMoneylineOpen]
	require.True(t, ok)
	require.NotNil(t, open.FighterOneMoneyline)
	assert.Equal(t, int64(-450), *open.FighterOneMoneyline)
	require.NotNil(t, open.FighterTwoMoneyline)
	assert.Equal(t, int64(350), *open.FighterTwoMoneyline)

	t.Run("replayed identical values stay a no-op", func(t *testing.T) {
		stageUnit(t, db, "bestfightodds", models.RawUnitKindOdds, oddsPayload)

		replayRun, err := reconciler.ReconcileOdds(ctx, "bestfightodds")
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, replayRun.Status)

		records, err := odds.ListByFight(ctx, fightID)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("conflicting values park and keep the first", func(t *testing.T) {
		conflictPayload := fmt.Sprintf(
			`{"fighter": %q, "opponent": %q, "event": %q, "date": %q, "f_open": -300, "o_open": 350}`,
			fighterOne, fighterTwo, eventName, eventDate)

		stageUnit(t, db, "bestfightodds", models.RawUnitKindOdds, conflictPayload)

		conflictRun, err := reconciler.ReconcileOdds(ctx, "bestfightodds")
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusCompleted, conflictRun.Status)

		records, err := odds.ListByFight(ctx, fightID)
		require.NoError(t, err)
		require.Len(t, records, 3)

		byType := make(map[string]models.LinkedOdds, len(records))
		for _, record := range records {
			byType[record.OddsType] = record
		}
		open := byType[models.OddsTypeMoneylineOpen]
		require.NotNil(t, open.FighterOneMoneyline)
		assert.Equal(t, int64(-450), *open.FighterOneMoneyline, "first value wins")

		entries, _, err := unresolved.NewRepository(db, logger).List(ctx, string(models.UnresolvedStatusPending), "conflict", 1, 100)
		require.NoError(t, err)

		parked := false
		for _, entry := range entries {
			if entry.RunID == conflictRun.ID {
				parked = true
			}
		}
		assert.True(t, parked, "conflict entry recorded for the run")
	})

	t.Run("cursor advanced past the processed units", func(t *testing.T) {
		cursors := cursor.NewRepository(db, logger)
		position, err := cursors.Get(ctx, "bestfightodds")
		require.NoError(t, err)
		assert.Greater(t, position.Position, int64(0))
	})

	t.Run("runs are listed for the source", func(t *testing.T) {
		runs := run.NewRepository(db, logger)
		listed, total, err := runs.List(ctx, "bestfightodds", 1, 10)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, 1)
		require.NotEmpty(t, listed)
		assert.Equal(t, "bestfightodds", listed[0].SourceID)
	})
}
