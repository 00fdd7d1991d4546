// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/chat"
	commonerrors "github.com/sbgadvisor/WellNavigator2/internal/common/errors"
	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Address         string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Server exposes chat sessions over HTTP and WebSocket.
type Server struct {
	config     *Config
	echo       *echo.Echo
	pipeline   *chat.Pipeline
	registry   *chat.Registry
	errHandler *commonerrors.ErrorHandler
	upgrader   websocket.Upgrader
	logger     logger.Logger
}

func NewServer(config *Config, pipeline *chat.Pipeline, registry *chat.Registry, log logger.Logger) *Server {
	if config == nil {
		config = &Config{Address: ":8080"}
	}
	log = log.With(map[string]interface{}{"component": "api"})

	s := &Server{
		config:     config,
		pipeline:   pipeline,
		registry:   registry,
		errHandler: commonerrors.NewErrorHandler(log),
		logger:     log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.origins(),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request", map[string]interface{}{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latencyMs": v.Latency.Milliseconds(),
			})
			return nil
		},
	}))
	s.echo = e
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes registers session, turn and probe routes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)
	e.GET("/ready", s.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.GET("/prompts", s.ListPrompts)
	v1.GET("/models", s.ListModels)
	v1.POST("/sessions", s.CreateSession)
	v1.GET("/sessions/:id", s.GetSession)
	v1.DELETE("/sessions/:id", s.DeleteSession)
	v1.PUT("/sessions/:id/settings", s.UpdateSettings)
	v1.GET("/sessions/:id/usage", s.GetUsage)
	v1.POST("/sessions/:id/clear", s.ClearSession)
	v1.POST("/sessions/:id/turns", s.CreateTurn)
	v1.GET("/sessions/:id/stream", s.StreamTurns)
}

// Handler is the root http.Handler, used by tests and embedding servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("api listening", map[string]interface{}{
		"address": s.config.Address,
	})
	if err := s.echo.Start(s.config.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.echo.Shutdown(ctx)
}

// Health handles GET /health.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. Missing optional backends degrade turns but
// never make the service unready.
func (s *Server) Ready(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":       "ready",
		"time":         time.Now().Format(time.RFC3339),
		"sessions":     s.registry.Len(),
		"capabilities": s.pipeline.Capabilities(c.Request().Context()),
	})
}

func (s *Server) origins() []string {
	if len(s.config.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.config.AllowedOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// fail writes err as a structured API error with its mapped status.
func (s *Server) fail(c echo.Context, sessionID string, err error) error {
	apiErr := s.errHandler.HandleTurnError(sessionID, err)
	return c.JSON(apiErr.Status, apiErr)
}

func (s *Server) invalid(c echo.Context, sessionID string, details string) error {
	return s.fail(c, sessionID, commonerrors.NewInvalidInputError(details))
}
