package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one structured line per request. The line's level follows the
// response status: server errors log at error, client errors at warn,
// everything else at info.
func Logger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			// When the handler returns an error the response is not committed
			// yet, so the status has to come from the error itself.
			status := c.Response().Status
			if httpErr, ok := err.(*echo.HTTPError); ok {
				status = httpErr.Code
			}

			var entry *zerolog.Event
			switch {
			case status >= 500:
				entry = log.Error()
			case status >= 400:
				entry = log.Warn()
			default:
				entry = log.Info()
			}
			if err != nil {
				entry = entry.Err(err)
			}

			rid, _ := c.Get("request_id").(string)
			entry.
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("elapsed", time.Since(start)).
				Str("remote", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
