package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/pkg/fmtt"
)

// AccessLog records each request after it was handled. Errors attached with
// c.Error are joined into the entry. In debug mode their chain is logged as
// well, and 5xx entries carry a field-level dump. Level follows the status class.
func AccessLog(log *zap.Logger, debug bool) gin.HandlerFunc {
	log = log.Named("access")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joined := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", GetRequestID(c)),
		}
		if joined != nil {
			fields = append(fields, zap.Error(joined))
			if debug {
				fields = append(fields, zap.Strings("err_chain", fmtt.ErrChain(joined)))
				if status >= http.StatusInternalServerError {
					var dump strings.Builder
					for _, err := range errs {
						fmtt.DumpErrChain(&dump, err)
					}
					fields = append(fields, zap.String("err_dump", dump.String()))
				}
			}
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// BodyLimit caps request bodies at n bytes. Reads past the cap fail, which
// handlers surface as 400.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
