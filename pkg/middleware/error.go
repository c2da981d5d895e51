package middleware

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/balaustrada/ufcscraper/pkg/context"
	"github.com/balaustrada/ufcscraper/pkg/errors"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	Reason    string         `json:"reason,omitempty"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error renders every handler error as a JSON body carrying the request and
// trace ids. Resolution errors keep their reason code and carry their own
// status via ToHTTPError; anything else is an opaque 500.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ctx := c.Request().Context()

		reason := ""
		if rc := errors.ReasonOf(err); rc != errors.ReasonInternal {
			reason = string(rc)
		}
		if conv, ok := err.(interface{ ToHTTPError() *httperror.HTTPError }); ok {
			err = conv.ToHTTPError()
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		switch {
		case httperror.IsHTTPError(err):
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			meta = httperr.Meta
		default:
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
				if msg, ok := he.Message.(string); ok {
					message = msg
				}
			}
		}

		log := logger.WithContext(ctx).WithError(err).WithField("status", code)
		if code >= http.StatusInternalServerError {
			log.Error("Request errored")
		} else {
			log.Warn("Request rejected")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			Reason:    reason,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
