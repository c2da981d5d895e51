package run

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

const runColumns = "id, source_id, status, processed, matched, ambiguous, unmatched, conflicts, cursor_start, cursor_end, error, started_at, finished_at"

// Repository handles reconciliation run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Start records the beginning of a run
func (r *Repository) Start(ctx context.Context, sourceID string, cursorStart int64) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Start")
	defer span.End()

	run := &models.Run{
		ID:          uuid.New().String(),
		SourceID:    sourceID,
		Status:      models.RunStatusRunning,
		CursorStart: cursorStart,
		StartedAt:   time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("runs")
	sb.Cols("id", "source_id", "status", "cursor_start", "cursor_end", "started_at")
	sb.Values(run.ID, run.SourceID, run.Status, run.CursorStart, run.CursorStart, run.StartedAt)

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": sourceID}).Error("Failed to start run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start run")
	}

	return run, nil
}

// Complete records a finished run with its final counts
func (r *Repository) Complete(ctx context.Context, run *models.Run) error {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Complete")
	defer span.End()

	now := time.Now().UTC()
	run.FinishedAt = &now
	if run.Status == models.RunStatusRunning {
		run.Status = models.RunStatusCompleted
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("runs")
	sb.Set(
		sb.Assign("status", run.Status),
		sb.Assign("processed", run.Processed),
		sb.Assign("matched", run.Matched),
		sb.Assign("ambiguous", run.Ambiguous),
		sb.Assign("unmatched", run.Unmatched),
		sb.Assign("conflicts", run.Conflicts),
		sb.Assign("cursor_end", run.CursorEnd),
		sb.Assign("error", run.Error),
		sb.Assign("finished_at", run.FinishedAt),
	)
	sb.Where(sb.Equal("id", run.ID))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to complete run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete run")
	}

	return nil
}

// Fail records a run that aborted before committing
func (r *Repository) Fail(ctx context.Context, runID string, cause error) error {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Fail")
	defer span.End()

	now := time.Now().UTC()
	message := cause.Error()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("runs")
	sb.Set(
		sb.Assign("status", models.RunStatusFailed),
		sb.Assign("error", message),
		sb.Assign("finished_at", now),
	)
	sb.Where(sb.Equal("id", runID))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to mark run failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark run failed")
	}

	return nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Run, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns)
	sb.From("runs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run models.Run
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get run")
	}

	return &run, nil
}

// List retrieves runs, newest first, optionally filtered by source
func (r *Repository) List(ctx context.Context, sourceID string, page int, pageSize int) ([]models.Run, int, error) {
	ctx, span := tracing.StartSpan(ctx, "run.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns)
	sb.From("runs")
	if sourceID != "" {
		sb.Where(sb.Equal("source_id", sourceID))
	}
	sb.OrderBy("started_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var runs []models.Run
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list runs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("runs")
	if sourceID != "" {
		cb.Where(cb.Equal("source_id", sourceID))
	}

	countQuery, countArgs := cb.Build()
	var total int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count runs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count runs")
	}

	return runs, total, nil
}
