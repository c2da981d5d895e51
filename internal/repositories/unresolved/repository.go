package unresolved

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

const unresolvedColumns = "id, source_id, unit_id, run_id, reason, detail, payload, candidates, status, resolved_fighter_id, resolved_at, created_at, updated_at"

// Repository handles unresolved entry persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new unresolved entry repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertBatch persists the parked entries of one run
func (r *Repository) InsertBatch(ctx context.Context, entries []models.UnresolvedEntry) error {
	ctx, span := tracing.StartSpan(ctx, "unresolved.Repository.InsertBatch")
	defer span.End()

	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("unresolved_entries")
	sb.Cols("id", "source_id", "unit_id", "run_id", "reason", "detail", "payload", "candidates", "status", "created_at", "updated_at")

	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		if entry.Status == "" {
			entry.Status = models.UnresolvedStatusPending
		}
		entry.CreatedAt = now
		entry.UpdatedAt = now
		sb.Values(entry.ID, entry.SourceID, entry.UnitID, entry.RunID, entry.Reason, entry.Detail,
			entry.Payload, entry.Candidates, entry.Status, entry.CreatedAt, entry.UpdatedAt)
	}

	query, args := sb.Build()
	query += " ON CONFLICT (unit_id, reason) DO NOTHING"

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert unresolved entries")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert unresolved entries")
	}

	return nil
}

// Get retrieves an unresolved entry by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.UnresolvedEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "unresolved.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(unresolvedColumns)
	sb.From("unresolved_entries")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entry models.UnresolvedEntry
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unresolved entry %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get unresolved entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get unresolved entry")
	}

	return &entry, nil
}

// List retrieves unresolved entries filtered by status and reason, paged
func (r *Repository) List(ctx context.Context, status string, reason string, page int, pageSize int) ([]models.UnresolvedEntry, int, error) {
	ctx, span := tracing.StartSpan(ctx, "unresolved.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	filters := func(sb *sqlbuilder.SelectBuilder) []string {
		var where []string
		if status != "" {
			where = append(where, sb.Equal("status", status))
		}
		if reason != "" {
			where = append(where, sb.Equal("reason", reason))
		}
		return where
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(unresolvedColumns)
	sb.From("unresolved_entries")
	if where := filters(sb); len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var entries []models.UnresolvedEntry
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unresolved entries")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unresolved entries")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("unresolved_entries")
	if where := filters(cb); len(where) > 0 {
		cb.Where(where...)
	}

	countQuery, countArgs := cb.Build()
	var total int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count unresolved entries")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count unresolved entries")
	}

	return entries, total, nil
}

// Resolve marks a pending entry resolved to the chosen fighter
func (r *Repository) Resolve(ctx context.Context, id string, fighterID string) error {
	ctx, span := tracing.StartSpan(ctx, "unresolved.Repository.Resolve")
	defer span.End()

	return r.close(ctx, id, models.UnresolvedStatusResolved, &fighterID)
}

// Dismiss marks a pending entry dismissed
func (r *Repository) Dismiss(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "unresolved.Repository.Dismiss")
	defer span.End()

	return r.close(ctx, id, models.UnresolvedStatusDismissed, nil)
}

func (r *Repository) close(ctx context.Context, id string, status models.UnresolvedStatus, fighterID *string) error {
	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("unresolved_entries")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_fighter_id", fighterID),
		sb.Assign("resolved_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.UnresolvedStatusPending),
	)

	query, args := sb.Build()
	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update unresolved entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update unresolved entry")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("pending unresolved entry %s not found", id))
	}

	return nil
}
