// Package fighters serves the canonical fighter registry: lookups, search,
// and manual alias registration.
package fighters

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/balaustrada/ufcscraper/internal/repositories/fighter"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/names"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

var validate = validator.New()

// Handler serves fighter routes
type Handler struct {
	fighters *fighter.Repository
	logger   ectologger.Logger
}

// NewHandler creates a new fighter handler
func NewHandler(fighters *fighter.Repository, logger ectologger.Logger) *Handler {
	return &Handler{
		fighters: fighters,
		logger:   logger,
	}
}

// RegisterRoutes registers fighter routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.GET("/:id/aliases", h.ListAliases)
	g.POST("/:id/aliases", h.CreateAlias)
}

// List returns fighters, optionally filtered by a search term
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "fighters.Handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	items, totalCount, err := h.fighters.List(ctx, c.QueryParam("search"), page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.FighterListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns one fighter by id
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "fighters.Handler.Get")
	defer span.End()

	found, err := h.fighters.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, found)
}

// Create registers a fighter directly, outside any reconciliation run
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "fighters.Handler.Create")
	defer span.End()

	var req models.CreateFighterRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	normalized, err := names.Normalize(req.Name)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid fighter name: %s", err.Error())
	}

	created, err := h.fighters.Create(ctx, &models.Fighter{
		Name:           req.Name,
		NormalizedName: normalized.Key,
		Suffix:         normalized.Suffix,
		Nickname:       req.Nickname,
		WeightClass:    req.WeightClass,
		DOB:            req.DOB,
		HeightCM:       req.HeightCM,
		ReachCM:        req.ReachCM,
		Stance:         req.Stance,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// ListAliases returns the recorded source spellings for a fighter
func (h *Handler) ListAliases(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "fighters.Handler.ListAliases")
	defer span.End()

	aliases, err := h.fighters.ListAliasesByFighter(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, aliases)
}

// CreateAlias records a confirmed source spelling so future runs match it
// exactly.
func (h *Handler) CreateAlias(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "fighters.Handler.CreateAlias")
	defer span.End()

	fighterID := c.Param("id")

	var req models.CreateAliasRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := h.fighters.Get(ctx, fighterID); err != nil {
		return err
	}

	normalized, err := names.Normalize(req.Name)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid alias name: %s", err.Error())
	}

	alias, err := h.fighters.CreateAlias(ctx, &models.FighterAlias{
		FighterID:      fighterID,
		SourceID:       req.SourceID,
		Name:           req.Name,
		NormalizedName: normalized.Key,
		SourceKey:      req.SourceKey,
	})
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"fighter_id": fighterID,
		"source_id":  req.SourceID,
	}).Info("Registered fighter alias")

	return c.JSON(http.StatusCreated, alias)
}
