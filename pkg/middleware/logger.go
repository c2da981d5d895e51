package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/balaustrada/ufcscraper/pkg/context"
)

// Logger logs one line per request. Probe and scrape endpoints are skipped;
// they fire every few seconds and carry no signal.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			if req.URL.Path == "/metrics" || strings.HasPrefix(req.URL.Path, "/api/v1/health") {
				return next(c)
			}

			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			res := c.Response()
			ctx := c.Request().Context()

			log := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id": context.GetRequestID(ctx),
				"method":     req.Method,
				"route":      c.Path(),
				"uri":        req.RequestURI,
				"status":     res.Status,
				"remote_ip":  c.RealIP(),
				"latency_ms": time.Since(start).Milliseconds(),
				"bytes_out":  res.Size,
			})

			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("Request failed")
			case res.Status >= http.StatusBadRequest:
				log.Warn("Request rejected")
			default:
				log.Info("Request")
			}

			return nil
		}
	}
}
