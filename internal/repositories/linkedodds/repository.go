package linkedodds

import (
	"context"
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

const oddsColumns = "id, fight_id, sportsbook, odds_type, kind, fighter_one_moneyline, fighter_two_moneyline, fighter_one_decimal, fighter_two_decimal, confidence, provenance, source_id, unit_id, run_id, created_at"

// Repository handles linked odds persistence. The merge identity is
// (fight_id, sportsbook, odds_type); inserts never overwrite an existing
// slot, the assembler routes differing values to unresolved instead.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new linked odds repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertBatch persists the merged records of one run. Slots that already
// hold a value are left untouched.
func (r *Repository) InsertBatch(ctx context.Context, records []models.LinkedOdds) error {
	ctx, span := tracing.StartSpan(ctx, "linkedodds.Repository.InsertBatch")
	defer span.End()

	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("linked_odds")
	sb.Cols("id", "fight_id", "sportsbook", "odds_type", "kind", "fighter_one_moneyline", "fighter_two_moneyline", "fighter_one_decimal", "fighter_two_decimal", "confidence", "provenance", "source_id", "unit_id", "run_id", "created_at")

	for i := range records {
		record := &records[i]
		if record.ID == "" {
			record.ID = uuid.New().String()
		}
		record.CreatedAt = now
		sb.Values(record.ID, record.FightID, record.Sportsbook, record.OddsType, record.Kind,
			record.FighterOneMoneyline, record.FighterTwoMoneyline, record.FighterOneDecimal, record.FighterTwoDecimal,
			record.Confidence, record.Provenance, record.SourceID, record.UnitID, record.RunID, record.CreatedAt)
	}

	query, args := sb.Build()
	query += " ON CONFLICT (fight_id, sportsbook, odds_type) DO NOTHING"

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert linked odds batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert linked odds")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(records)}).Debug("Inserted linked odds batch")
	return nil
}

// ListByFight retrieves the odds attached to one fight
func (r *Repository) ListByFight(ctx context.Context, fightID string) ([]models.LinkedOdds, error) {
	ctx, span := tracing.StartSpan(ctx, "linkedodds.Repository.ListByFight")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(oddsColumns)
	sb.From("linked_odds")
	sb.Where(sb.Equal("fight_id", fightID))
	sb.OrderBy("sportsbook ASC", "odds_type ASC")

	query, args := sb.Build()
	var records []models.LinkedOdds
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list linked odds by fight")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list linked odds")
	}

	return records, nil
}

// ListByFights retrieves the persisted records for a set of fights, used by
// the assembler to detect replays and conflicts across runs.
func (r *Repository) ListByFights(ctx context.Context, fightIDs []string) ([]models.LinkedOdds, error) {
	ctx, span := tracing.StartSpan(ctx, "linkedodds.Repository.ListByFights")
	defer span.End()

	if len(fightIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(oddsColumns)
	sb.From("linked_odds")
	sb.Where(sb.In("fight_id", idsToAny(fightIDs)...))

	query, args := sb.Build()
	var records []models.LinkedOdds
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list linked odds by fights")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list linked odds")
	}

	return records, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
