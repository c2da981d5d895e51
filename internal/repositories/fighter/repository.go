package fighter

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

const fighterColumns = "id, name, normalized_name, suffix, nickname, weight_class, dob, height_cm, reach_cm, stance, created_at, updated_at"

// Repository handles fighter and fighter alias persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new fighter repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new fighter
func (r *Repository) Create(ctx context.Context, fighter *models.Fighter) (*models.Fighter, error) {
	ctx, span := tracing.StartSpan(ctx, "fighter.Repository.Create")
	defer span.End()

	if fighter.ID == "" {
		fighter.ID = uuid.New().String()
	}
	fighter.CreatedAt = time.Now().UTC()
	fighter.UpdatedAt = fighter.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("fighters")
	sb.Cols("id", "name", "normalized_name", "suffix", "nickname", "weight_class", "dob", "height_cm", "reach_cm", "stance", "created_at", "updated_at")
	sb.Values(fighter.ID, fighter.Name, fighter.NormalizedName, fighter.Suffix, fighter.Nickname, fighter.WeightClass, fighter.DOB, fighter.HeightCM, fighter.ReachCM, fighter.Stance, fighter.CreatedAt, fighter.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fighter_id": fighter.ID}).Error("Failed to create fighter")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create fighter")
	}

	return fighter, nil
}

// Upsert inserts a fighter keyed on its normalized name and suffix, updating
// the profile fields when the fighter already exists. The id of the existing
// row wins, so links made through earlier runs stay valid.
func (r *Repository) Upsert(ctx context.Context, fighter *models.Fighter) (*models.Fighter, error) {
	ctx, span := tracing.StartSpan(ctx, "fighter.Repository.Upsert")
	defer span.End()

	if fighter.ID == "" {
		fighter.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO fighters (id, name, normalized_name, suffix, nickname, weight_class, dob, height_cm, reach_cm, stance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (normalized_name, suffix) DO UPDATE SET
			name = EXCLUDED.name,
			nickname = COALESCE(EXCLUDED.nickname, fighters.nickname),
			weight_class = COALESCE(EXCLUDED.weight_class, fighters.weight_class),
			dob = COALESCE(EXCLUDED.dob, fighters.dob),
			height_cm = COALESCE(EXCLUDED.height_cm, fighters.height_cm),
			reach_cm = COALESCE(EXCLUDED.reach_cm, fighters.reach_cm),
			stance = COALESCE(EXCLUDED.stance, fighters.stance),
			updated_at = EXCLUDED.updated_at
		RETURNING %s
	`, fighterColumns)

	var result models.Fighter
	err := database.FromContext(ctx, r.db).GetContext(ctx, &result, query,
		fighter.ID, fighter.Name, fighter.NormalizedName, fighter.Suffix, fighter.Nickname,
		fighter.WeightClass, fighter.DOB, fighter.HeightCM, fighter.ReachCM, fighter.Stance, now)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"normalized_name": fighter.NormalizedName}).Error("Failed to upsert fighter")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert fighter")
	}

	return &result, nil
}

// Get retrieves a fighter by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Fighter, error) {
	ctx, span := tracing.StartSpan(ctx, "fighter.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(fighterColumns)
	sb.From("fighters")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var fighter models.Fighter
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &fighter, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("fighter %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get fighter")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get fighter")
	}

	return &fighter, nil
}

// List retrieves fighters with optional name search, paged
func (r *Repository) List(ctx context.Context, search string, page int, pageSize int) ([]models.Fighter, int, error) {
	ctx, span := tracing.StartSpan(ctx, "fighter.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(fighterColumns)
	sb.From("fighters")
	if search != "" {
		sb.Where(sb.Like("normalized_name", "%"+search+"%"))
	}
	sb.OrderBy("normalized_name ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var fighters []models.Fighter
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &fighters, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list fighters")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fighters")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("fighters")
	if search != "" {
		cb.Where(cb.Like("normalized_name", "%"+search+"%"))
	}

	countQuery, countArgs := cb.Build()
	var total int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count fighters")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count fighters")
	}

	return fighters, total, nil
}

// ListAll retrieves the full candidate pool for matching
func (r *Repository) ListAll(ctx context.Context) ([]models.Fighter, error) {
	ctx, span := tracing.StartSpan(ctx, "fighter.Repository.ListAll")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(fighterColumns)
	sb.From("fighters")
	sb.OrderBy("normalized_name ASC")

	query, args := sb.Build()
	var fighters []models.Fighter
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &fighters, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list all fighters")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fighters")
	}

	return fighters, nil
}

// CreateAlias records a confirmed source spelling for a fighter. Duplicate
// spellings for the same fighter and source are ignored.
func (r *Repository) CreateAlias(ctx context.Context, alias *models.FighterAlias) (*models.FighterAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "fighter.Repository.CreateAlias")
	defer span.End()

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	alias.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("fighter_aliases")
	sb.Cols("id", "fighter_id", "source_id", "name", "normalized_name", "source_key", "created_at")
	sb.Values(alias.ID, alias.FighterID, alias.SourceID, alias.Name, alias.NormalizedName, alias.SourceKey, alias.CreatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (fighter_id, source_id, normalized_name) DO NOTHING"

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"fighter_id": alias.FighterID}).Error("Failed to create fighter alias")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create fighter alias")
	}

	return alias, nil
}

// ListAliases retrieves every alias grouped by fighter
func (r *Repository) ListAliases(ctx context.Context) (map[string][]models.FighterAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "fighter.Repository.ListAliases")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "fighter_id", "source_id", "name", "normalized_name", "source_key", "created_at")
	sb.From("fighter_aliases")

	query, args := sb.Build()
	var aliases []models.FighterAlias
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list fighter aliases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fighter aliases")
	}

	grouped := make(map[string][]models.FighterAlias, len(aliases))
	for _, alias := range aliases {
		grouped[alias.FighterID] = append(grouped[alias.FighterID], alias)
	}

	return grouped, nil
}

// ListAliasesByFighter retrieves the aliases recorded for one fighter
func (r *Repository) ListAliasesByFighter(ctx context.Context, fighterID string) ([]models.FighterAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "fighter.Repository.ListAliasesByFighter")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "fighter_id", "source_id", "name", "normalized_name", "source_key", "created_at")
	sb.From("fighter_aliases")
	sb.Where(sb.Equal("fighter_id", fighterID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var aliases []models.FighterAlias
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list aliases for fighter")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list fighter aliases")
	}

	return aliases, nil
}
