package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/otkinlife/go_tools/logger_tools"
)

// LoggerContextKey is the gin context key holding the request's logger
// context.
const LoggerContextKey = "logger_ctx"

// LoggerMiddleware 日志记录中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 创建日志上下文
		ctx := logger_tools.NewContext(c.Request.Context())
		ctx = logger_tools.WithFields(ctx, map[string]any{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"ip":     c.ClientIP(),
		})

		c.Set(LoggerContextKey, ctx)
		c.Request = c.Request.WithContext(ctx)

		logger_tools.Info(ctx, "Request started")

		c.Next()

		ctx = logger_tools.WithFields(ctx, map[string]any{
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			ctx = logger_tools.WithFields(ctx, map[string]any{"errors": c.Errors.String()})
		}

		if c.Writer.Status() >= 500 {
			logger_tools.Error(ctx, "Request completed with error")
		} else if c.Writer.Status() >= 400 {
			logger_tools.Warn(ctx, "Request rejected")
		} else {
			logger_tools.Info(ctx, "Request completed successfully")
		}
	}
}

// LogContext returns the logger context stored by LoggerMiddleware, or the
// request context when the middleware is not installed.
func LogContext(c *gin.Context) context.Context {
	if v, ok := c.Get(LoggerContextKey); ok {
		if ctx, ok := v.(context.Context); ok {
			return ctx
		}
	}
	return c.Request.Context()
}
