package rawunit

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

const rawUnitColumns = "id, source_id, sequence, kind, source_key, payload, fingerprint, received_at, consumed_at"

// Repository handles staged raw unit persistence. Sequence is assigned by
// the staging table; the fingerprint dedupes byte-identical payloads so a
// re-delivered scrape does not stage twice.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new raw unit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Stage inserts one raw unit. A unit whose fingerprint is already staged for
// the source is dropped and (nil, nil) is returned.
func (r *Repository) Stage(ctx context.Context, unit *models.RawUnit) (*models.RawUnit, error) {
	ctx, span := tracing.StartSpan(ctx, "rawunit.Repository.Stage")
	defer span.End()

	if unit.ID == "" {
		unit.ID = uuid.New().String()
	}
	unit.ReceivedAt = time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO raw_units (id, source_id, kind, source_key, payload, fingerprint, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id, fingerprint) DO NOTHING
		RETURNING %s
	`, rawUnitColumns)

	var staged models.RawUnit
	err := database.FromContext(ctx, r.db).GetContext(ctx, &staged, query,
		unit.ID, unit.SourceID, unit.Kind, unit.SourceKey, unit.Payload, unit.Fingerprint, unit.ReceivedAt)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			r.logger.WithContext(ctx).WithFields(map[string]any{"source_id": unit.SourceID, "fingerprint": unit.Fingerprint}).Debug("Skipped already staged unit")
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": unit.SourceID}).Error("Failed to stage raw unit")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to stage raw unit")
	}

	return &staged, nil
}

// StageBatch stages multiple units, returning how many were new
func (r *Repository) StageBatch(ctx context.Context, units []*models.RawUnit) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "rawunit.Repository.StageBatch")
	defer span.End()

	staged := 0
	for _, unit := range units {
		result, err := r.Stage(ctx, unit)
		if err != nil {
			return staged, err
		}
		if result != nil {
			staged++
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"received": len(units), "staged": staged}).Debug("Staged raw unit batch")
	return staged, nil
}

// ListBySource retrieves the staged units for a source, oldest first. The
// limit bounds one reconciliation batch.
func (r *Repository) ListBySource(ctx context.Context, sourceID string, afterSequence int64, limit int) ([]models.RawUnit, error) {
	ctx, span := tracing.StartSpan(ctx, "rawunit.Repository.ListBySource")
	defer span.End()

	if limit < 1 || limit > 5000 {
		limit = 1000
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(rawUnitColumns)
	sb.From("raw_units")
	sb.Where(
		sb.Equal("source_id", sourceID),
		sb.GreaterThan("sequence", afterSequence),
	)
	sb.OrderBy("sequence ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var units []models.RawUnit
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &units, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list raw units")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list raw units")
	}

	return units, nil
}

// MaxSequence returns the highest staged sequence for a source, zero when
// nothing is staged.
func (r *Repository) MaxSequence(ctx context.Context, sourceID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "rawunit.Repository.MaxSequence")
	defer span.End()

	query := `SELECT COALESCE(MAX(sequence), 0) FROM raw_units WHERE source_id = $1`

	var max int64
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &max, query, sourceID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get max sequence")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get max sequence")
	}

	return max, nil
}

// MarkConsumed stamps the given units as processed
func (r *Repository) MarkConsumed(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "rawunit.Repository.MarkConsumed")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("raw_units")
	sb.Set(sb.Assign("consumed_at", time.Now().UTC()))
	sb.Where(sb.In("id", idsToAny(ids)...))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark raw units consumed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark raw units consumed")
	}

	return nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
