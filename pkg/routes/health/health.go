// Package health exposes the liveness, readiness and dependency probes.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/balaustrada/ufcscraper/pkg/database"
)

// Checker probes the service's backing stores. Readiness flips on only
// after startup finishes and off again during shutdown, so the load
// balancer drains before connections close.
type Checker struct {
	probes    []probe
	version   string
	startTime time.Time
	ready     atomic.Bool
}

type probe struct {
	name  string
	check func(ctx context.Context) error
}

func NewChecker(db database.DB, redis interface{ Ping(ctx context.Context) error }, version string) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
	}

	c.probes = append(c.probes, probe{name: "database", check: func(ctx context.Context) error {
		return db.PingContext(ctx)
	}})
	if redis != nil {
		c.probes = append(c.probes, probe{name: "redis", check: redis.Ping})
	}
	return c
}

func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health runs every probe and reports 503 if any fails.
func (c *Checker) Health(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult, len(c.probes)),
		ReportedAt: time.Now(),
	}

	for _, p := range c.probes {
		start := time.Now()
		if err := p.check(reqCtx); err != nil {
			status.Status = "unhealthy"
			status.Checks[p.name] = &CheckResult{Status: "unhealthy", Message: err.Error()}
			continue
		}
		status.Checks[p.name] = &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, status)
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
