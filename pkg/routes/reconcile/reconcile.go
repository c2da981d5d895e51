// Package reconcile triggers reconciliation runs over staged units.
package reconcile

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/processor"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// Handler serves reconciliation trigger routes
type Handler struct {
	reconciler *processor.Reconciler
	sources    map[string]models.SourceDefinition
	logger     ectologger.Logger
}

// NewHandler creates a new reconcile handler
func NewHandler(reconciler *processor.Reconciler, sources map[string]models.SourceDefinition, logger ectologger.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		sources:    sources,
		logger:     logger,
	}
}

// RegisterRoutes registers reconcile routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/:source", h.Trigger)
}

// Trigger runs one reconciliation batch for the named source and returns
// the run record. The source's role picks the pipeline.
func (h *Handler) Trigger(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "reconcile.Handler.Trigger")
	defer span.End()

	sourceID := c.Param("source")
	source, ok := h.sources[sourceID]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown source %s", sourceID)
	}

	var (
		runRecord *models.Run
		err       error
	)
	switch source.Role {
	case models.SourceRolePrimary:
		runRecord, err = h.reconciler.ReconcilePrimary(ctx, sourceID)
	case models.SourceRoleOdds:
		runRecord, err = h.reconciler.ReconcileOdds(ctx, sourceID)
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "source %s has unsupported role %s", sourceID, source.Role)
	}
	if err != nil {
		if conv, ok := err.(interface{ ToHTTPError() *httperror.HTTPError }); ok {
			return conv.ToHTTPError()
		}
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"source_id": sourceID,
		"run_id":    runRecord.ID,
		"matched":   runRecord.Matched,
		"unmatched": runRecord.Unmatched,
	}).Info("Reconciliation run finished")

	return c.JSON(http.StatusOK, runRecord)
}
