// Package http assembles the echo server of agentui.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/agentui/internal/logger"
	v1 "github.com/xiaot623/agentui/internal/transport/http/v1"
	"github.com/xiaot623/agentui/internal/transport/ws"
)

// NewServer creates the echo server serving the REST API and the push endpoint.
func NewServer(api *v1.Handler, push *ws.Server, log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(requestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register Routes
	api.RegisterRoutes(e)
	push.RegisterRoutes(e)

	return e
}

// requestLogger writes one access log line per request; server errors at error level.
func requestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.String("route", v.RoutePath),
				zap.Int("status", v.Status),
				zap.Int64("duration_ms", v.Latency.Milliseconds()),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			if v.Status >= 500 {
				log.Error("http", fields...)
			} else {
				log.Debug("http", fields...)
			}
			return nil
		},
	})
}
