package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Keys read from and written to the gin context. They mirror the values set
// by the HTTP middleware package, which depends on this one.
const (
	ginLoggerKey    = "logger"
	ginRequestIDKey = "request_id"
	ginErrorCodeKey = "error_code"
	customerIDParam = "customer_id"
)

// GinMiddleware logs one line per request and makes the request logger
// available to handlers, through GetGinLogger and through L on the request
// context. The line is written at warn for 4xx and at error for 5xx.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := base.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)

		ctx := WithContext(c.Request.Context(), reqLog)
		if id := c.GetString(ginRequestIDKey); id != "" {
			ctx, _ = WithRequestID(ctx, reqLog, id)
		}
		if customerID := c.Param(customerIDParam); customerID != "" {
			ctx, _ = WithCustomerID(ctx, reqLog, customerID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(ginLoggerKey, WithLogger(ctx, reqLog).Zap())

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, zap.String("route", route))
		}
		if code := c.GetString(ginErrorCodeKey); code != "" {
			fields = append(fields, zap.String("error_code", code))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		// the request context now also carries the server span
		log := WithLogger(c.Request.Context(), reqLog)
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("HTTP Request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("HTTP Request", fields...)
		default:
			log.Info("HTTP Request", fields...)
		}
	}
}

// Recovery turns a panicking handler into a 500 and logs the stack
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			base.Error("Panic recovered",
				zap.String("request_id", c.GetString(ginRequestIDKey)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("error", rec),
				zap.Stack("stacktrace"),
			)
			c.AbortWithStatus(http.StatusInternalServerError)
		}()
		c.Next()
	}
}

// GetGinLogger returns the request logger set by GinMiddleware, or a no-op logger
func GetGinLogger(c *gin.Context) *zap.Logger {
	if l, ok := c.Get(ginLoggerKey); ok {
		if zl, ok := l.(*zap.Logger); ok {
			return zl
		}
	}
	return zap.NewNop()
}
