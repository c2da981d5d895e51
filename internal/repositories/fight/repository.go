package fight

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/balaustrada/ufcscraper/pkg/database"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

const fightColumns = "id, event_id, fighter_one_id, fighter_two_id, weight_class, title_fight, scheduled_rounds, gender, winner_id, result, result_details, decision_round, decision_time, source_key, created_at, updated_at"

// Repository handles fight persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new fight repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts a fight keyed on its source key. Identity fields are never
// rewritten on conflict; only the result fields refresh, so a fight keeps its
// id and corners across re-scrapes.
func (r *Repository) Upsert(ctx context.Context, fight *models.Fight) (*models.Fight, error) {
	ctx, span := tracing.StartSpan(ctx, "fight.Repository.Upsert")
	defer span.End()

	if fight.ID == "" {
		fight.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO fights (id, event_id, fighter_one_id, fighter_two_id, weight_class, title_fight, scheduled_rounds, gender, winner_id, result, result_details, decision_round, decision_time, source_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		ON CONFLICT (source_key) DO UPDATE SET
			weight_class = COALESCE(EXCLUDED.weight_class, fights.weight_class),
			title_fight = EXCLUDED.title_fight,
			scheduled_rounds = EXCLUDED.scheduled_rounds,
			winner_id = COALESCE(EXCLUDED.winner_id, fights.winner_id),
			result = COALESCE(EXCLUDED.result, fights.result),
			result_details = COALESCE(EXCLUDED.result_details, fights.result_details),
			decision_round = COALESCE(EXCLUDED.decision_round, fights.decision_round),
			decision_time = COALESCE(EXCLUDED.decision_time, fights.decision_time),
			updated_at = EXCLUDED.updated_at
		RETURNING %s
	`, fightColumns)

	var result models.Fight
	err := database.FromContext(ctx, r.db).GetContext(ctx, &result, query,
		fight.ID, fight.EventID, fight.FighterOneID, fight.FighterTwoID, fight.WeightClass,
		fight.TitleFight, fight.ScheduledRounds, fight.Gender, fight.WinnerID, fight.Result,
		fight.ResultDetails, fight.DecisionRound, fight.DecisionTime, fight.SourceKey, now)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_key": fight.SourceKey}).Error("Failed to upsert fight")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert fight")
	}

	return &result, nil
}

// Get retrieves a fight by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Fight, error) {
	ctx, span := tracing.StartSpan(ctx, "fight.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(fightColumns)
	sb.From("fights")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var fight models.Fight
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &fight, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("fight %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get fight")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get fight")
	}

	return &fight, nil
}

// ListByFighter retrieves every fight with the fighter in either corner
func (r *Repository) ListByFighter(ctx context.Context, fighterID string) ([]models.Fight, error) {
	ctx, span := tracing.StartSpan(ctx, "fight.Repository.ListByFighter")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s
		FROM fights
		WHERE fighter_one_id = $1 OR fighter_two_id = $1
		ORDER BY created_at ASC
	`, fightColumns)

	var fights []models.Fight
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &fights, query, fighterID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list fights by fighter")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fights")
	}

	return fights, nil
}

// ListByEvent retrieves the fights on one card
func (r *Repository) ListByEvent(ctx context.Context, eventID string) ([]models.Fight, error) {
	ctx, span := tracing.StartSpan(ctx, "fight.Repository.ListByEvent")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(fightColumns)
	sb.From("fights")
	sb.Where(sb.Equal("event_id", eventID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var fights []models.Fight
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &fights, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list fights by event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fights")
	}

	return fights, nil
}
