// Package unresolved serves the review queue: entries the reconciler parked
// and the resolve/dismiss decisions a reviewer makes about them.
package unresolved

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/balaustrada/ufcscraper/internal/repositories/fighter"
	"github.com/balaustrada/ufcscraper/internal/repositories/unresolved"
	"github.com/balaustrada/ufcscraper/pkg/extractor"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/names"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

var validate = validator.New()

// Handler serves unresolved entry routes
type Handler struct {
	entries   *unresolved.Repository
	fighters  *fighter.Repository
	sources   map[string]models.SourceDefinition
	extractor *extractor.Extractor
	logger    ectologger.Logger
}

// NewHandler creates a new unresolved entry handler
func NewHandler(
	entries *unresolved.Repository,
	fighters *fighter.Repository,
	sources map[string]models.SourceDefinition,
	logger ectologger.Logger,
) *Handler {
	return &Handler{
		entries:   entries,
		fighters:  fighters,
		sources:   sources,
		extractor: extractor.New(),
		logger:    logger,
	}
}

// RegisterRoutes registers unresolved entry routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/resolve", h.Resolve)
	g.POST("/:id/dismiss", h.Dismiss)
}

// List returns parked entries filtered by status and reason
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "unresolved.Handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	items, totalCount, err := h.entries.List(ctx, c.QueryParam("status"), c.QueryParam("reason"), page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.UnresolvedListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns one parked entry
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "unresolved.Handler.Get")
	defer span.End()

	entry, err := h.entries.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entry)
}

// Resolve assigns a fighter to a parked entry. The source spelling becomes
// an alias, so every later run matches it without review.
func (h *Handler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "unresolved.Handler.Resolve")
	defer span.End()

	id := c.Param("id")

	var req models.ResolveUnresolvedRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	entry, err := h.entries.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := h.fighters.Get(ctx, req.FighterID); err != nil {
		return err
	}

	h.recordAlias(ctx, entry, req.FighterID)

	if err := h.entries.Resolve(ctx, id, req.FighterID); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"entry_id":   id,
		"fighter_id": req.FighterID,
	}).Info("Resolved parked entry")

	return c.NoContent(http.StatusNoContent)
}

// Dismiss closes a parked entry without resolution
func (h *Handler) Dismiss(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "unresolved.Handler.Dismiss")
	defer span.End()

	id := c.Param("id")
	if err := h.entries.Dismiss(ctx, id); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithField("entry_id", id).Info("Dismissed parked entry")

	return c.NoContent(http.StatusNoContent)
}

// recordAlias pulls the raw spelling out of the parked payload and stores it
// as an alias of the chosen fighter. Best-effort: a payload the extractor
// cannot read resolves the entry without one.
func (h *Handler) recordAlias(ctx context.Context, entry *models.UnresolvedEntry, fighterID string) {
	log := h.logger.WithContext(ctx).WithField("entry_id", entry.ID)

	source, ok := h.sources[entry.SourceID]
	if !ok {
		log.WithField("source_id", entry.SourceID).Warn("Parked entry references an unknown source, skipping alias")
		return
	}

	var payload any
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		log.WithError(err).Warn("Failed to decode parked payload, skipping alias")
		return
	}

	name, err := h.extractor.String(payload, source.Extract.FighterName)
	if err != nil || name == nil {
		log.Warn("Parked payload carries no fighter name, skipping alias")
		return
	}

	normalized, err := names.Normalize(*name)
	if err != nil {
		log.WithError(err).Warn("Failed to normalize parked fighter name, skipping alias")
		return
	}

	if _, err := h.fighters.CreateAlias(ctx, &models.FighterAlias{
		FighterID:      fighterID,
		SourceID:       entry.SourceID,
		Name:           *name,
		NormalizedName: normalized.Key,
	}); err != nil {
		log.WithError(err).Warn("Failed to record alias for resolved entry")
	}
}
