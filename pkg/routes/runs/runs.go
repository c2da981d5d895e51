// Package runs exposes the reconciliation run ledger.
package runs

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/balaustrada/ufcscraper/internal/repositories/run"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

// Handler serves reconciliation run routes
type Handler struct {
	runs   *run.Repository
	logger ectologger.Logger
}

// NewHandler creates a new run handler
func NewHandler(runs *run.Repository, logger ectologger.Logger) *Handler {
	return &Handler{
		runs:   runs,
		logger: logger,
	}
}

// RegisterRoutes registers run routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// List returns runs, newest first, optionally filtered by source
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "runs.Handler.List")
	defer span.End()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	items, totalCount, err := h.runs.List(ctx, c.QueryParam("source_id"), page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.RunListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns one run with its counters
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "runs.Handler.Get")
	defer span.End()

	runRecord, err := h.runs.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runRecord)
}
