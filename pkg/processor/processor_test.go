package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balaustrada/ufcscraper/pkg/database"
	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/kafka"
	"github.com/balaustrada/ufcscraper/pkg/linking"
	"github.com/balaustrada/ufcscraper/pkg/matching"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/names"
	"github.com/balaustrada/ufcscraper/pkg/schema"
	"github.com/balaustrada/ufcscraper/pkg/similarity"
	"github.com/balaustrada/ufcscraper/pkg/tracker"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// newTestDB backs the reconciler's transactions with sqlmock. The store
// fakes ignore the transaction context, so only Begin/Commit/Rollback ever
// reach the driver.
func newTestDB(t *testing.T) database.DB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 8; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}

	return database.NewDatabaseInstance(sqlx.NewDb(mockDB, "sqlmock"), newTestLogger())
}

func testSources() map[string]models.SourceDefinition {
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
				Nickname:     "nickname",
				DOB:          "dob",
				HeightCM:     "height_cm",
				ReachCM:      "reach_cm",
				Stance:       "stance",
				WeightClass:  "weight_class",
			},
			Schema: models.SourceSchema{
				Properties: map[string]models.PropertyDefinition{"fighter": stringProp},
				Required:   []string{"fighter"},
			},
		},
		"bfo": {
			ID:         "bfo",
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

type fakeCursorStore struct {
	cursors map[string]models.Cursor
}

func (f *fakeCursorStore) Get(_ context.Context, sourceID string) (models.Cursor, error) {
	cursor, ok := f.cursors[sourceID]
	if !ok {
		return models.Cursor{SourceID: sourceID}, nil
	}
	return cursor, nil
}

func (f *fakeCursorStore) Advance(_ context.Context, sourceID string, expected int64, position int64) error {
	if f.cursors[sourceID].Position != expected {
		return errors.NewStaleCursorError(sourceID, expected, f.cursors[sourceID].Position)
	}
	f.cursors[sourceID] = models.Cursor{SourceID: sourceID, Position: position, UpdatedAt: time.Now().UTC()}
	return nil
}

type fakeFighterStore struct {
	fighters []*models.Fighter
	aliases  map[string][]models.FighterAlias
}

func (f *fakeFighterStore) Upsert(_ context.Context, fighter *models.Fighter) (*models.Fighter, error) {
	for _, existing := range f.fighters {
		if existing.NormalizedName == fighter.NormalizedName && existing.Suffix == fighter.Suffix {
			if fighter.Nickname != nil {
				existing.Nickname = fighter.Nickname
			}
			if fighter.WeightClass != nil {
				existing.WeightClass = fighter.WeightClass
			}
			if fighter.DOB != nil {
				existing.DOB = fighter.DOB
			}
			if fighter.HeightCM != nil {
				existing.HeightCM = fighter.HeightCM
			}
			if fighter.ReachCM != nil {
				existing.ReachCM = fighter.ReachCM
			}
			if fighter.Stance != nil {
				existing.Stance = fighter.Stance
			}
			return existing, nil
		}
	}
	clone := *fighter
	f.fighters = append(f.fighters, &clone)
	return &clone, nil
}

func (f *fakeFighterStore) ListAll(_ context.Context) ([]models.Fighter, error) {
	out := make([]models.Fighter, 0, len(f.fighters))
	for _, fighter := range f.fighters {
		out = append(out, *fighter)
	}
	return out, nil
}

func (f *fakeFighterStore) ListAliases(_ context.Context) (map[string][]models.FighterAlias, error) {
	return f.aliases, nil
}

func (f *fakeFighterStore) byName(normalized string) *models.Fighter {
	for _, fighter := range f.fighters {
		if fighter.NormalizedName == normalized {
			return fighter
		}
	}
	return nil
}

type fakeEventStore struct {
	events []*models.Event
}

func (f *fakeEventStore) Upsert(_ context.Context, event *models.Event) (*models.Event, error) {
	for _, existing := range f.events {
		if existing.SourceKey == event.SourceKey {
			return existing, nil
		}
	}
	clone := *event
	f.events = append(f.events, &clone)
	return &clone, nil
}

func (f *fakeEventStore) MapByID(_ context.Context, ids []string) (map[string]models.Event, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[string]models.Event)
	for _, event := range f.events {
		if wanted[event.ID] {
			out[event.ID] = *event
		}
	}
	return out, nil
}

type fakeFightStore struct {
	fights []*models.Fight
}

func (f *fakeFightStore) Upsert(_ context.Context, fight *models.Fight) (*models.Fight, error) {
	for _, existing := range f.fights {
		if existing.SourceKey == fight.SourceKey {
			existing.WinnerID = fight.WinnerID
			existing.Result = fight.Result
			existing.ResultDetails = fight.ResultDetails
			return existing, nil
		}
	}
	clone := *fight
	f.fights = append(f.fights, &clone)
	return &clone, nil
}

func (f *fakeFightStore) ListByFighter(_ context.Context, fighterID string) ([]models.Fight, error) {
	var out []models.Fight
	for _, fight := range f.fights {
		if fight.FighterOneID == fighterID || fight.FighterTwoID == fighterID {
			out = append(out, *fight)
		}
	}
	return out, nil
}

type fakeUnitStore struct {
	seq      int64
	units    []*models.RawUnit
	stageErr error
}

func (f *fakeUnitStore) StageBatch(_ context.Context, units []*models.RawUnit) (int, error) {
	if f.stageErr != nil {
		return 0, f.stageErr
	}
	staged := 0
	for _, unit := range units {
		if f.hasFingerprint(unit.SourceID, unit.Fingerprint) {
			continue
		}
		f.seq++
		clone := *unit
		clone.Sequence = f.seq
		f.units = append(f.units, &clone)
		staged++
	}
	return staged, nil
}

func (f *fakeUnitStore) ListBySource(_ context.Context, sourceID string, afterSequence int64, limit int) ([]models.RawUnit, error) {
	var out []models.RawUnit
	for _, unit := range f.units {
		if unit.SourceID != sourceID || unit.Sequence <= afterSequence {
			continue
		}
		out = append(out, *unit)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeUnitStore) MaxSequence(_ context.Context, sourceID string) (int64, error) {
	var max int64
	for _, unit := range f.units {
		if unit.SourceID == sourceID && unit.Sequence > max {
			max = unit.Sequence
		}
	}
	return max, nil
}

func (f *fakeUnitStore) MarkConsumed(_ context.Context, ids []string) error {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	now := time.Now().UTC()
	for _, unit := range f.units {
		if wanted[unit.ID] {
			unit.ConsumedAt = &now
		}
	}
	return nil
}

func (f *fakeUnitStore) hasFingerprint(sourceID string, fingerprint string) bool {
	for _, unit := range f.units {
		if unit.SourceID == sourceID && unit.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

func (f *fakeUnitStore) consumedCount() int {
	count := 0
	for _, unit := range f.units {
		if unit.ConsumedAt != nil {
			count++
		}
	}
	return count
}

type fakeOddsStore struct {
	records   []models.LinkedOdds
	insertErr error
}

func (f *fakeOddsStore) InsertBatch(_ context.Context, records []models.LinkedOdds) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeOddsStore) ListByFights(_ context.Context, fightIDs []string) ([]models.LinkedOdds, error) {
	wanted := make(map[string]bool, len(fightIDs))
	for _, id := range fightIDs {
		wanted[id] = true
	}
	var out []models.LinkedOdds
	for _, record := range f.records {
		if wanted[record.FightID] {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeOddsStore) byType(oddsType string) *models.LinkedOdds {
	for i := range f.records {
		if f.records[i].OddsType == oddsType {
			return &f.records[i]
		}
	}
	return nil
}

type fakeUnresolvedStore struct {
	entries []models.UnresolvedEntry
}

func (f *fakeUnresolvedStore) InsertBatch(_ context.Context, entries []models.UnresolvedEntry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeUnresolvedStore) byReason(reason errors.ReasonCode) []models.UnresolvedEntry {
	var out []models.UnresolvedEntry
	for _, entry := range f.entries {
		if entry.Reason == string(reason) {
			out = append(out, entry)
		}
	}
	return out
}

type fakeRunStore struct {
	started int
	runs    map[string]*models.Run
}

func (f *fakeRunStore) Start(_ context.Context, sourceID string, cursorStart int64) (*models.Run, error) {
	f.started++
	run := &models.Run{
		ID:          fmt.Sprintf("run-%d", f.started),
		SourceID:    sourceID,
		Status:      models.RunStatusRunning,
		CursorStart: cursorStart,
		StartedAt:   time.Now().UTC(),
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeRunStore) Complete(_ context.Context, run *models.Run) error {
	now := time.Now().UTC()
	clone := *run
	clone.FinishedAt = &now
	f.runs[run.ID] = &clone
	return nil
}

func (f *fakeRunStore) Fail(_ context.Context, runID string, cause error) error {
	if run, ok := f.runs[runID]; ok {
		run.Status = models.RunStatusFailed
		msg := cause.Error()
		run.Error = &msg
	}
	return nil
}

type fixture struct {
	reconciler *Reconciler
	fighters   *fakeFighterStore
	events     *fakeEventStore
	fights     *fakeFightStore
	units      *fakeUnitStore
	odds       *fakeOddsStore
	unresolved *fakeUnresolvedStore
	runs       *fakeRunStore
	cursors    *fakeCursorStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := newTestLogger()
	sources := testSources()

	fx := &fixture{
		fighters:   &fakeFighterStore{aliases: map[string][]models.FighterAlias{}},
		events:     &fakeEventStore{},
		fights:     &fakeFightStore{},
		units:      &fakeUnitStore{},
		odds:       &fakeOddsStore{},
		unresolved: &fakeUnresolvedStore{},
		runs:       &fakeRunStore{runs: map[string]*models.Run{}},
		cursors:    &fakeCursorStore{cursors: map[string]models.Cursor{}},
	}

	engine := matching.NewEngine(logger, similarity.NewScorer(), matching.EngineConfig{
		AcceptThreshold: 0.90,
		MarginThreshold: 0.05,
	})

	fx.reconciler = NewReconciler(
		logger,
		newTestDB(t),
		sources,
		schema.NewService(sources, logger),
		engine,
		tracker.NewTracker(logger, fx.cursors),
		Stores{
			Fighters:   fx.fighters,
			Events:     fx.events,
			Fights:     fx.fights,
			Units:      fx.units,
			Odds:       fx.odds,
			Unresolved: fx.unresolved,
			Runs:       fx.runs,
		},
		Config{
			BatchSize:    100,
			LockTTL:      time.Minute,
			MinEventDate: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
			Link: linking.Config{
				AcceptThreshold: 0.65,
				MarginThreshold: 0.10,
				DateWindow:      48 * time.Hour,
			},
		},
		nil, nil, nil,
	)
	return fx
}

func (fx *fixture) seedFighter(t *testing.T, name string) *models.Fighter {
	t.Helper()
	normalized, err := names.Normalize(name)
	require.NoError(t, err)
	fighter, err := fx.fighters.Upsert(context.Background(), &models.Fighter{
		ID:             uuid.New().String(),
		Name:           name,
		NormalizedName: normalized.Key,
		Suffix:         normalized.Suffix,
	})
	require.NoError(t, err)
	return fighter
}

func (fx *fixture) seedFight(t *testing.T, one, two *models.Fighter, eventName string, date string) *models.Fight {
	t.Helper()
	eventDate, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)

	event, err := fx.events.Upsert(context.Background(), &models.Event{
		ID:             uuid.New().String(),
		Name:           eventName,
		NormalizedName: names.Key(eventName),
		Date:           eventDate,
		SourceKey:      names.Key(eventName) + "|" + date,
	})
	require.NoError(t, err)

	fight, err := fx.fights.Upsert(context.Background(), &models.Fight{
		ID:           uuid.New().String(),
		EventID:      event.ID,
		FighterOneID: one.ID,
		FighterTwoID: two.ID,
		SourceKey:    "fight|" + one.NormalizedName + "|" + two.NormalizedName + "|" + date,
	})
	require.NoError(t, err)
	return fight
}

func (fx *fixture) stage(sourceID string, kind models.RawUnitKind, payload string) models.RawUnit {
	fx.units.seq++
	unit := &models.RawUnit{
		ID:          uuid.New().String(),
		SourceID:    sourceID,
		Sequence:    fx.units.seq,
		Kind:        kind,
		SourceKey:   fmt.Sprintf("key-%d", fx.units.seq),
		Payload:     json.RawMessage(payload),
		Fingerprint: fmt.Sprintf("fp-%d", fx.units.seq),
		ReceivedAt:  time.Now().UTC(),
	}
	fx.units.units = append(fx.units.units, unit)
	return *unit
}

const jonesOddsPayload = `{
	"fighter": "Jon Jones", "opponent": "Stipe Miocic",
	"event": "UFC 309", "date": "2024-11-16",
	"f_open": -450, "f_close_min": -500, "f_close_max": -400,
	"o_open": 350, "o_close_min": 300, "o_close_max": 380
}`

func TestReconcileOdds(t *testing.T) {
	ctx := context.Background()

	t.Run("links a clean batch and advances the cursor", func(t *testing.T) {
		fx := newFixture(t)
		jones := fx.seedFighter(t, "Jon Jones")
		miocic := fx.seedFighter(t, "Stipe Miocic")
		fight := fx.seedFight(t, jones, miocic, "UFC 309", "2024-11-16")
		unit := fx.stage("bfo", models.RawUnitKindOdds, jonesOddsPayload)

		run, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)
		require.NotNil(t, run)

		assert.Equal(t, models.RunStatusCompleted, run.Status)
		assert.Equal(t, 1, run.Processed)
		assert.Equal(t, 1, run.Matched)
		assert.Equal(t, 0, run.Ambiguous)
		assert.Equal(t, 0, run.Unmatched)
		assert.Equal(t, int64(0), run.CursorStart)
		assert.Equal(t, unit.Sequence, run.CursorEnd)

		require.Len(t, fx.odds.records, 3)
		open := fx.odds.byType(models.OddsTypeMoneylineOpen)
		require.NotNil(t, open)
		assert.Equal(t, fight.ID, open.FightID)
		assert.Equal(t, "bestfightodds", open.Sportsbook)
		require.NotNil(t, open.FighterOneMoneyline)
		require.NotNil(t, open.FighterTwoMoneyline)
		assert.Equal(t, int64(-450), *open.FighterOneMoneyline)
		assert.Equal(t, int64(350), *open.FighterTwoMoneyline)
		assert.Greater(t, open.Confidence, 0.9)

		assert.Equal(t, unit.Sequence, fx.cursors.cursors["bfo"].Position)
		assert.Equal(t, 1, fx.units.consumedCount())
		assert.Empty(t, fx.unresolved.entries)
	})

	t.Run("swaps corner values when the entry quotes the second corner", func(t *testing.T) {
		fx := newFixture(t)
		jones := fx.seedFighter(t, "Jon Jones")
		miocic := fx.seedFighter(t, "Stipe Miocic")
		fx.seedFight(t, miocic, jones, "UFC 309", "2024-11-16")
		fx.stage("bfo", models.RawUnitKindOdds, jonesOddsPayload)

		_, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)

		open := fx.odds.byType(models.OddsTypeMoneylineOpen)
		require.NotNil(t, open)
		require.NotNil(t, open.FighterOneMoneyline)
		assert.Equal(t, int64(350), *open.FighterOneMoneyline)
		assert.Equal(t, int64(-450), *open.FighterTwoMoneyline)
	})

	t.Run("replays an identically valued unit as a no-op", func(t *testing.T) {
		fx := newFixture(t)
		jones := fx.seedFighter(t, "Jon Jones")
		miocic := fx.seedFighter(t, "Stipe Miocic")
		fx.seedFight(t, jones, miocic, "UFC 309", "2024-11-16")
		fx.stage("bfo", models.RawUnitKindOdds, jonesOddsPayload)

		_, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)
		require.Len(t, fx.odds.records, 3)

		second := fx.stage("bfo", models.RawUnitKindOdds, jonesOddsPayload)
		run, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)

		assert.Equal(t, 1, run.Matched)
		assert.Equal(t, 0, run.Conflicts)
		assert.Equal(t, second.Sequence, run.CursorEnd)
		assert.Len(t, fx.odds.records, 3)
		assert.Empty(t, fx.unresolved.entries)
	})

	t.Run("parks a conflicting value and keeps the first", func(t *testing.T) {
		fx := newFixture(t)
		jones := fx.seedFighter(t, "Jon Jones")
		miocic := fx.seedFighter(t, "Stipe Miocic")
		fx.seedFight(t, jones, miocic, "UFC 309", "2024-11-16")
		fx.stage("bfo", models.RawUnitKindOdds, jonesOddsPayload)

		_, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)

		conflicting := `{
			"fighter": "Jon Jones", "opponent": "Stipe Miocic",
			"event": "UFC 309", "date": "2024-11-16",
			"f_open": -300, "f_close_min": -500, "f_close_max": -400,
			"o_open": 350, "o_close_min": 300, "o_close_max": 380
		}`
		fx.stage("bfo", models.RawUnitKindOdds, conflicting)

		run, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)

		assert.Equal(t, 1, run.Conflicts)
		assert.Equal(t, 0, run.Matched)

		open := fx.odds.byType(models.OddsTypeMoneylineOpen)
		require.NotNil(t, open)
		assert.Equal(t, int64(-450), *open.FighterOneMoneyline)

		conflicts := fx.unresolved.byReason(errors.ReasonConflict)
		require.Len(t, conflicts, 1)
		assert.Equal(t, run.ID, conflicts[0].RunID)
	})

	t.Run("parks an ambiguous fighter without linking", func(t *testing.T) {
		fx := newFixture(t)
		silva := fx.seedFighter(t, "Anderson Silva")
		other := fx.seedFighter(t, "Anderson Sylveira")
		fx.fighters.aliases[other.ID] = []models.FighterAlias{{
			ID:             uuid.New().String(),
			FighterID:      other.ID,
			SourceID:       "bfo",
			Name:           "Anderson Silva",
			NormalizedName: names.Key("Anderson Silva"),
		}}
		opponent := fx.seedFighter(t, "Chris Weidman")
		fx.seedFight(t, silva, opponent, "UFC 162", "2013-07-06")

		fx.stage("bfo", models.RawUnitKindOdds, `{
			"fighter": "Anderson Silva", "opponent": "Chris Weidman",
			"event": "UFC 162", "date": "2013-07-06",
			"f_open": -230, "o_open": 190
		}`)

		run, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)

		assert.Equal(t, 1, run.Ambiguous)
		assert.Equal(t, 0, run.Matched)
		assert.Empty(t, fx.odds.records)

		parked := fx.unresolved.byReason(errors.ReasonAmbiguous)
		require.Len(t, parked, 1)
		assert.Equal(t, models.UnresolvedStatusPending, parked[0].Status)

		assert.Equal(t, run.CursorEnd, fx.cursors.cursors["bfo"].Position)
	})

	t.Run("parks malformed payloads as bad input", func(t *testing.T) {
		fx := newFixture(t)
		fx.seedFighter(t, "Jon Jones")
		fx.stage("bfo", models.RawUnitKindOdds, `{"fighter": "Jon Jones"}`)

		run, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)

		assert.Equal(t, 1, run.Unmatched)
		require.Len(t, fx.unresolved.byReason(errors.ReasonBadInput), 1)
		assert.Equal(t, 1, fx.units.consumedCount())
	})

	t.Run("aborts without consuming when the store fails, then replays", func(t *testing.T) {
		fx := newFixture(t)
		jones := fx.seedFighter(t, "Jon Jones")
		miocic := fx.seedFighter(t, "Stipe Miocic")
		fx.seedFight(t, jones, miocic, "UFC 309", "2024-11-16")
		unit := fx.stage("bfo", models.RawUnitKindOdds, jonesOddsPayload)

		fx.odds.insertErr = fmt.Errorf("connection reset")
		_, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.Error(t, err)

		assert.Equal(t, int64(0), fx.cursors.cursors["bfo"].Position)
		assert.Equal(t, 0, fx.units.consumedCount())
		assert.Empty(t, fx.odds.records)
		assert.Equal(t, models.RunStatusFailed, fx.runs.runs["run-1"].Status)

		fx.odds.insertErr = nil
		run, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)

		assert.Equal(t, models.RunStatusCompleted, run.Status)
		assert.Equal(t, unit.Sequence, fx.cursors.cursors["bfo"].Position)
		assert.Len(t, fx.odds.records, 3)
		assert.Equal(t, 1, fx.units.consumedCount())
	})

	t.Run("aborts on a stale cursor", func(t *testing.T) {
		fx := newFixture(t)
		fx.cursors.cursors["bfo"] = models.Cursor{SourceID: "bfo", Position: 10}
		fx.stage("bfo", models.RawUnitKindOdds, jonesOddsPayload)

		_, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.Error(t, err)
		assert.True(t, errors.IsStaleCursorError(err))
		assert.Equal(t, 0, fx.runs.started)
	})

	t.Run("completes without persisting a run when nothing is pending", func(t *testing.T) {
		fx := newFixture(t)

		run, err := fx.reconciler.ReconcileOdds(ctx, "bfo")
		require.NoError(t, err)

		assert.Equal(t, models.RunStatusCompleted, run.Status)
		assert.Equal(t, run.CursorStart, run.CursorEnd)
		assert.Equal(t, 0, fx.runs.started)
	})

	t.Run("rejects unknown and non-odds sources", func(t *testing.T) {
		fx := newFixture(t)

		_, err := fx.reconciler.ReconcileOdds(ctx, "nope")
		assert.Error(t, err)

		_, err = fx.reconciler.ReconcileOdds(ctx, "ufcstats")
		assert.Error(t, err)
	})
}

func TestReconcilePrimary(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts fighters, events and fights", func(t *testing.T) {
		fx := newFixture(t)
		fx.stage("ufcstats", models.RawUnitKindFighter, `{
			"fighter": "Jon Jones", "nickname": "Bones",
			"dob": "1987-07-19", "height_cm": 193, "reach_cm": 215, "stance": "Orthodox"
		}`)
		fx.stage("ufcstats", models.RawUnitKindFight, `{
			"fighter": "Jon Jones", "opponent": "Stipe Miocic",
			"event": "UFC 309", "date": "2024-11-16", "location": "New York, USA",
			"winner": "Jon Jones", "result": "KO/TKO"
		}`)

		run, err := fx.reconciler.ReconcilePrimary(ctx, "ufcstats")
		require.NoError(t, err)

		assert.Equal(t, models.RunStatusCompleted, run.Status)
		assert.Equal(t, 2, run.Processed)
		assert.Equal(t, 2, run.Matched)
		assert.Equal(t, 0, run.Unmatched)

		jones := fx.fighters.byName("jon jones")
		require.NotNil(t, jones)
		require.NotNil(t, jones.Nickname)
		assert.Equal(t, "Bones", *jones.Nickname)
		require.NotNil(t, fx.fighters.byName("stipe miocic"))

		require.Len(t, fx.events.events, 1)
		assert.Equal(t, "UFC 309", fx.events.events[0].Name)

		require.Len(t, fx.fights.fights, 1)
		fight := fx.fights.fights[0]
		assert.Equal(t, jones.ID, fight.FighterOneID)
		require.NotNil(t, fight.WinnerID)
		assert.Equal(t, jones.ID, *fight.WinnerID)
		require.NotNil(t, fight.Result)
		assert.Equal(t, "KO/TKO", *fight.Result)

		assert.Equal(t, run.CursorEnd, fx.cursors.cursors["ufcstats"].Position)
		assert.Equal(t, 2, fx.units.consumedCount())
	})

	t.Run("reuses the canonical fighter when a corner name repeats", func(t *testing.T) {
		fx := newFixture(t)
		jones := fx.seedFighter(t, "Jon Jones")
		fx.stage("ufcstats", models.RawUnitKindFight, `{
			"fighter": "Jon Jones", "opponent": "Ciryl Gane",
			"event": "UFC 285", "date": "2023-03-04"
		}`)

		_, err := fx.reconciler.ReconcilePrimary(ctx, "ufcstats")
		require.NoError(t, err)

		require.Len(t, fx.fights.fights, 1)
		assert.Equal(t, jones.ID, fx.fights.fights[0].FighterOneID)
	})

	t.Run("parks a fight whose corners resolve to one fighter", func(t *testing.T) {
		fx := newFixture(t)
		fx.stage("ufcstats", models.RawUnitKindFight, `{
			"fighter": "Jon Jones", "opponent": "Jon Jones",
			"event": "UFC 309", "date": "2024-11-16"
		}`)

		run, err := fx.reconciler.ReconcilePrimary(ctx, "ufcstats")
		require.NoError(t, err)

		assert.Equal(t, 1, run.Processed)
		assert.Equal(t, 0, run.Matched)
		assert.Equal(t, 1, run.Unmatched)
		assert.Empty(t, fx.fights.fights)
		require.Len(t, fx.unresolved.byReason(errors.ReasonBadInput), 1)
		assert.Equal(t, 1, fx.units.consumedCount())
	})

	t.Run("resolves a suffixed winner to the right corner", func(t *testing.T) {
		fx := newFixture(t)
		fx.stage("ufcstats", models.RawUnitKindFight, `{
			"fighter": "Frank Mir Jr", "opponent": "Brock Lesnar",
			"event": "UFC 100", "date": "2024-07-11",
			"winner": "Frank Mir Jr", "result": "Submission"
		}`)

		_, err := fx.reconciler.ReconcilePrimary(ctx, "ufcstats")
		require.NoError(t, err)

		require.Len(t, fx.fights.fights, 1)
		fight := fx.fights.fights[0]
		require.NotNil(t, fight.WinnerID)
		assert.Equal(t, fight.FighterOneID, *fight.WinnerID)
	})

	t.Run("never credits a namesake corner with the other's win", func(t *testing.T) {
		fx := newFixture(t)
		fx.stage("ufcstats", models.RawUnitKindFight, `{
			"fighter": "Antonio Rogerio Nogueira II", "opponent": "Antonio Rogerio Nogueira",
			"event": "Rizin 48", "date": "2024-12-31",
			"winner": "Antonio Rogerio Nogueira"
		}`)

		_, err := fx.reconciler.ReconcilePrimary(ctx, "ufcstats")
		require.NoError(t, err)

		require.Len(t, fx.fights.fights, 1)
		fight := fx.fights.fights[0]
		require.NotNil(t, fight.WinnerID)
		assert.Equal(t, fight.FighterTwoID, *fight.WinnerID)
	})

	t.Run("parks malformed units and keeps going", func(t *testing.T) {
		fx := newFixture(t)
		fx.stage("ufcstats", models.RawUnitKindFighter, `{"nope": "missing name"}`)
		fx.stage("ufcstats", models.RawUnitKindFighter, `{"fighter": "Alex Pereira"}`)

		run, err := fx.reconciler.ReconcilePrimary(ctx, "ufcstats")
		require.NoError(t, err)

		assert.Equal(t, 2, run.Processed)
		assert.Equal(t, 1, run.Matched)
		assert.Equal(t, 1, run.Unmatched)
		require.Len(t, fx.unresolved.byReason(errors.ReasonBadInput), 1)
		require.NotNil(t, fx.fighters.byName("alex pereira"))
		assert.Equal(t, 2, fx.units.consumedCount())
	})

	t.Run("skips fights before coverage start", func(t *testing.T) {
		fx := newFixture(t)
		fx.stage("ufcstats", models.RawUnitKindFight, `{
			"fighter": "Royce Gracie", "opponent": "Gerard Gordeau",
			"event": "UFC 1", "date": "1993-11-12"
		}`)

		run, err := fx.reconciler.ReconcilePrimary(ctx, "ufcstats")
		require.NoError(t, err)

		assert.Equal(t, 1, run.Processed)
		assert.Equal(t, 0, run.Matched)
		assert.Equal(t, 0, run.Unmatched)
		assert.Empty(t, fx.fights.fights)
		assert.Empty(t, fx.unresolved.entries)
		assert.Equal(t, 1, fx.units.consumedCount())
	})

	t.Run("rejects odds sources", func(t *testing.T) {
		fx := newFixture(t)

		_, err := fx.reconciler.ReconcilePrimary(ctx, "bfo")
		assert.Error(t, err)
	})
}

func TestIntakeHandleMessage(t *testing.T) {
	ctx := context.Background()

	newIntake := func(units *fakeUnitStore) *Intake {
		return NewIntake(newTestLogger(), testSources(), units)
	}

	envelope := func(sourceID string, units ...kafka.RawUnitPayload) *kafka.IncomingMessage {
		return &kafka.IncomingMessage{
			Envelope: &kafka.RawUnitEnvelope{
				SourceID:  sourceID,
				ScrapedAt: time.Now().UTC(),
				Units:     units,
			},
		}
	}

	t.Run("stages every unit in the envelope", func(t *testing.T) {
		units := &fakeUnitStore{}
		intake := newIntake(units)

		err := intake.HandleMessage(ctx, envelope("bfo",
			kafka.RawUnitPayload{Kind: models.RawUnitKindOdds, SourceKey: "a", Payload: json.RawMessage(`{"fighter": "Jon Jones"}`)},
			kafka.RawUnitPayload{Kind: models.RawUnitKindOdds, SourceKey: "b", Payload: json.RawMessage(`{"fighter": "Stipe Miocic"}`)},
		))
		require.NoError(t, err)

		require.Len(t, units.units, 2)
		assert.Equal(t, "bfo", units.units[0].SourceID)
		assert.NotEmpty(t, units.units[0].Fingerprint)
		assert.NotEmpty(t, units.units[0].ID)
		assert.Equal(t, int64(1), units.units[0].Sequence)
		assert.Equal(t, int64(2), units.units[1].Sequence)
	})

	t.Run("collapses duplicate payloads on the fingerprint", func(t *testing.T) {
		units := &fakeUnitStore{}
		intake := newIntake(units)

		payload := json.RawMessage(`{"fighter": "Jon Jones"}`)
		msg := envelope("bfo",
			kafka.RawUnitPayload{Kind: models.RawUnitKindOdds, SourceKey: "a", Payload: payload},
		)

		require.NoError(t, intake.HandleMessage(ctx, msg))
		require.NoError(t, intake.HandleMessage(ctx, msg))

		assert.Len(t, units.units, 1)
	})

	t.Run("drops units without a source key", func(t *testing.T) {
		units := &fakeUnitStore{}
		intake := newIntake(units)

		err := intake.HandleMessage(ctx, envelope("bfo",
			kafka.RawUnitPayload{Kind: models.RawUnitKindOdds, SourceKey: "", Payload: json.RawMessage(`{}`)},
		))
		require.NoError(t, err)
		assert.Empty(t, units.units)
	})

	t.Run("commits envelopes from unknown sources without staging", func(t *testing.T) {
		units := &fakeUnitStore{}
		intake := newIntake(units)

		err := intake.HandleMessage(ctx, envelope("nope",
			kafka.RawUnitPayload{Kind: models.RawUnitKindOdds, SourceKey: "a", Payload: json.RawMessage(`{}`)},
		))
		require.NoError(t, err)
		assert.Empty(t, units.units)
	})

	t.Run("propagates staging failures so the message redelivers", func(t *testing.T) {
		units := &fakeUnitStore{stageErr: fmt.Errorf("connection reset")}
		intake := newIntake(units)

		err := intake.HandleMessage(ctx, envelope("bfo",
			kafka.RawUnitPayload{Kind: models.RawUnitKindOdds, SourceKey: "a", Payload: json.RawMessage(`{}`)},
		))
		assert.Error(t, err)
	})
}
