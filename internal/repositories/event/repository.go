package event

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

const eventColumns = "id, name, normalized_name, date, location, source_key, created_at, updated_at"

// Repository handles event persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new event repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts an event keyed on its source key, refreshing the mutable
// fields when the card already exists.
func (r *Repository) Upsert(ctx context.Context, event *models.Event) (*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.Upsert")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO events (id, name, normalized_name, date, location, source_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (source_key) DO UPDATE SET
			name = EXCLUDED.name,
			normalized_name = EXCLUDED.normalized_name,
			date = EXCLUDED.date,
			location = COALESCE(EXCLUDED.location, events.location),
			updated_at = EXCLUDED.updated_at
		RETURNING %s
	`, eventColumns)

	var result models.Event
	err := database.FromContext(ctx, r.db).GetContext(ctx, &result, query,
		event.ID, event.Name, event.NormalizedName, event.Date, event.Location, event.SourceKey, now)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_key": event.SourceKey}).Error("Failed to upsert event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert event")
	}

	return &result, nil
}

// Get retrieves an event by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns)
	sb.From("events")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var event models.Event
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &event, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("event %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get event")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get event")
	}

	return &event, nil
}

// ListByDateRange retrieves events whose date falls inside the window,
// inclusive on both ends.
func (r *Repository) ListByDateRange(ctx context.Context, from time.Time, to time.Time) ([]models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.ListByDateRange")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns)
	sb.From("events")
	sb.Where(
		sb.GreaterEqualThan("date", from),
		sb.LessEqualThan("date", to),
	)
	sb.OrderBy("date ASC")

	query, args := sb.Build()
	var events []models.Event
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list events by date range")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list events")
	}

	return events, nil
}

// MapByID retrieves the given events keyed by id
func (r *Repository) MapByID(ctx context.Context, ids []string) (map[string]models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "event.Repository.MapByID")
	defer span.End()

	if len(ids) == 0 {
		return map[string]models.Event{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(eventColumns)
	sb.From("events")
	sb.Where(sb.In("id", idsToAny(ids)...))

	query, args := sb.Build()
	var events []models.Event
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to map events by id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list events")
	}

	mapped := make(map[string]models.Event, len(events))
	for _, event := range events {
		mapped[event.ID] = event
	}

	return mapped, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
