// Package processor drives the reconciliation pipeline: it pulls staged raw
// units from behind each source's cursor, resolves their identities and
// merges the outcome into the canonical dataset in a single transaction.
package processor

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/balaustrada/ufcscraper/pkg/assembler"
	"github.com/balaustrada/ufcscraper/pkg/database"
	"github.com/balaustrada/ufcscraper/pkg/extractor"
	"github.com/balaustrada/ufcscraper/pkg/linking"
	"github.com/balaustrada/ufcscraper/pkg/matching"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/schema"
	"github.com/balaustrada/ufcscraper/pkg/similarity"
	"github.com/balaustrada/ufcscraper/pkg/tracker"
)

// FighterStore is the fighter persistence the reconciler needs.
type FighterStore interface {
	Upsert(ctx context.Context, fighter *models.Fighter) (*models.Fighter, error)
	ListAll(ctx context.Context) ([]models.Fighter, error)
	ListAliases(ctx context.Context) (map[string][]models.FighterAlias, error)
}

// EventStore is the event persistence the reconciler needs.
type EventStore interface {
	Upsert(ctx context.Context, event *models.Event) (*models.Event, error)
	MapByID(ctx context.Context, ids []string) (map[string]models.Event, error)
}

// FightStore is the fight persistence the reconciler needs.
type FightStore interface {
	Upsert(ctx context.Context, fight *models.Fight) (*models.Fight, error)
	ListByFighter(ctx context.Context, fighterID string) ([]models.Fight, error)
}

// UnitStore reads and retires staged raw units.
type UnitStore interface {
	StageBatch(ctx context.Context, units []*models.RawUnit) (int, error)
	ListBySource(ctx context.Context, sourceID string, afterSequence int64, limit int) ([]models.RawUnit, error)
	MaxSequence(ctx context.Context, sourceID string) (int64, error)
	MarkConsumed(ctx context.Context, ids []string) error
}

// OddsStore persists joined odds records.
type OddsStore interface {
	InsertBatch(ctx context.Context, records []models.LinkedOdds) error
	ListByFights(ctx context.Context, fightIDs []string) ([]models.LinkedOdds, error)
}

// UnresolvedStore persists parked entries.
type UnresolvedStore interface {
	InsertBatch(ctx context.Context, entries []models.UnresolvedEntry) error
}

// RunStore persists run lifecycle records.
type RunStore interface {
	Start(ctx context.Context, sourceID string, cursorStart int64) (*models.Run, error)
	Complete(ctx context.Context, run *models.Run) error
	Fail(ctx context.Context, runID string, cause error) error
}

// Locker serializes runs per source. Reconciliation is single-writer by
// design: two concurrent runs over the same cursor would double-process.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// EventSink publishes reconciliation outcomes downstream.
type EventSink interface {
	EmitRecordsLinked(ctx context.Context, records []models.LinkedOdds) error
	EmitRecordsUnresolved(ctx context.Context, entries []models.UnresolvedEntry) error
	EmitRunCompleted(ctx context.Context, run *models.Run) error
	EmitRunFailed(ctx context.Context, run *models.Run, cause error) error
}

// Projector mirrors reconciled records into the graph store.
type Projector interface {
	ProjectFighters(ctx context.Context, fighters []models.Fighter) error
	ProjectFight(ctx context.Context, fight models.Fight, event models.Event) error
	ProjectOdds(ctx context.Context, records []models.LinkedOdds) error
}

// Config holds the reconciler's tunables.
type Config struct {
	BatchSize    int
	LockTTL      time.Duration
	MinEventDate time.Time
	Link         linking.Config
}

// Reconciler owns the full reconciliation pipeline for every configured
// source. One Reconciler serves both the primary stats source and the odds
// sources; the per-source role decides which path a run takes.
type Reconciler struct {
	logger    ectologger.Logger
	db        database.DB
	sources   map[string]models.SourceDefinition
	schema    *schema.Service
	extractor *extractor.Extractor
	matcher   *matching.Engine
	scorer    *similarity.Scorer
	assembler *assembler.Assembler
	tracker   *tracker.Tracker
	config    Config

	fighters   FighterStore
	events     EventStore
	fights     FightStore
	units      UnitStore
	odds       OddsStore
	unresolved UnresolvedStore
	runs       RunStore

	locker  Locker
	emitter EventSink
	graph   Projector
}

// Stores bundles the persistence dependencies of a Reconciler.
type Stores struct {
	Fighters   FighterStore
	Events     EventStore
	Fights     FightStore
	Units      UnitStore
	Odds       OddsStore
	Unresolved UnresolvedStore
	Runs       RunStore
}

// NewReconciler creates a reconciler. locker, emitter and graph are
// optional; passing nil disables run locking, event emission or graph
// projection respectively.
func NewReconciler(
	logger ectologger.Logger,
	db database.DB,
	sources map[string]models.SourceDefinition,
	schemaService *schema.Service,
	matcher *matching.Engine,
	trk *tracker.Tracker,
	stores Stores,
	config Config,
	locker Locker,
	emitter EventSink,
	graph Projector,
) *Reconciler {
	return &Reconciler{
		logger:     logger,
		db:         db,
		sources:    sources,
		schema:     schemaService,
		extractor:  extractor.New(),
		matcher:    matcher,
		scorer:     similarity.NewScorer(),
		assembler:  assembler.NewAssembler(logger),
		tracker:    trk,
		config:     config,
		fighters:   stores.Fighters,
		events:     stores.Events,
		fights:     stores.Fights,
		units:      stores.Units,
		odds:       stores.Odds,
		unresolved: stores.Unresolved,
		runs:       stores.Runs,
		locker:     locker,
		emitter:    emitter,
		graph:      graph,
	}
}

// linkerFor builds a linker with the source's date window when it declares
// one, falling back to the service-wide window.
func (r *Reconciler) linkerFor(source models.SourceDefinition) *linking.Linker {
	cfg := r.config.Link
	if source.DateWindowHours > 0 {
		cfg.DateWindow = time.Duration(source.DateWindowHours) * time.Hour
	}
	return linking.NewLinker(r.logger, r.scorer, cfg)
}

// withRunLock serializes reconciliation per source when a locker is wired.
func (r *Reconciler) withRunLock(ctx context.Context, sourceID string, fn func() error) error {
	if r.locker == nil {
		return fn()
	}
	return r.locker.WithLock(ctx, "reconcile:"+sourceID, r.config.LockTTL, fn)
}
