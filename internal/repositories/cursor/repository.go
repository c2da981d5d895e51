package cursor

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/balaustrada/ufcscraper/pkg/database"
	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// Repository persists per-source scrape cursors. Advance is guarded by the
// expected position, so two racing reconcilers cannot both move the cursor.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new cursor repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a source's cursor, position zero when none exists yet
func (r *Repository) Get(ctx context.Context, sourceID string) (models.Cursor, error) {
	ctx, span := tracing.StartSpan(ctx, "cursor.Repository.Get")
	defer span.End()

	query := `SELECT source_id, position, updated_at FROM cursors WHERE source_id = $1`

	var cursor models.Cursor
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &cursor, query, sourceID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return models.Cursor{SourceID: sourceID, Position: 0}, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("source_id", sourceID).Error("Failed to get cursor")
		return models.Cursor{}, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get cursor")
	}

	return cursor, nil
}

// Advance moves the cursor from expected to position. A mismatch on the
// stored position means another run advanced first; the caller gets a stale
// cursor error and must not record its batch.
func (r *Repository) Advance(ctx context.Context, sourceID string, expected int64, position int64) error {
	ctx, span := tracing.StartSpan(ctx, "cursor.Repository.Advance")
	defer span.End()

	now := time.Now().UTC()

	query := `
		INSERT INTO cursors (source_id, position, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id) DO UPDATE SET
			position = EXCLUDED.position,
			updated_at = EXCLUDED.updated_at
		WHERE cursors.position = $4
	`

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, sourceID, position, now, expected)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source_id", sourceID).Error("Failed to advance cursor")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to advance cursor")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		current, getErr := r.Get(ctx, sourceID)
		if getErr != nil {
			return getErr
		}
		return errors.NewStaleCursorError(sourceID, expected, current.Position)
	}

	return nil
}

// List retrieves every source cursor
func (r *Repository) List(ctx context.Context) ([]models.Cursor, error) {
	ctx, span := tracing.StartSpan(ctx, "cursor.Repository.List")
	defer span.End()

	query := `SELECT source_id, position, updated_at FROM cursors ORDER BY source_id ASC`

	var cursors []models.Cursor
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &cursors, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list cursors")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list cursors")
	}

	return cursors, nil
}
