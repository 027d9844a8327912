// Package web exposes command and query Invokers over HTTP
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/kode4food/dispatch"
)

type (
	// Config names the Invokers a Server routes to. A nil Invoker leaves
	// its routes unregistered
	Config struct {
		Commands *dispatch.Invoker
		Queries  *dispatch.Invoker
		Logger   *zap.Logger
	}

	// Server is an echo application routing POST /commands/:name and
	// POST /queries/:name to their Invokers
	Server struct {
		echo   *echo.Echo
		logger *zap.Logger
	}
)

const (
	ParamName = "name"

	CommandsPath = "/commands/:" + ParamName
	QueriesPath  = "/queries/:" + ParamName
	HealthPath   = "/healthz"

	ShutdownTimeout = 10 * time.Second
)

// New creates a Server with its routes registered
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	Register(e, cfg.Commands, cfg.Queries, logger)
	return &Server{echo: e, logger: logger}
}

// Register wires the dispatch routes onto an existing echo instance
func Register(
	e *echo.Echo, commands, queries *dispatch.Invoker, logger *zap.Logger,
) {
	if commands != nil {
		e.POST(CommandsPath, invoke(commands, logger))
	}
	if queries != nil {
		e.POST(QueriesPath, invoke(queries, logger))
	}
	e.GET(HealthPath, healthz)
}

// Handler returns the Server as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves HTTP on addr until ctx is canceled, then shuts down
// gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("Serving HTTP", zap.String("addr", addr))
		errs <- s.echo.Start(addr)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), ShutdownTimeout,
	)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func invoke(inv *dispatch.Invoker, logger *zap.Logger) echo.HandlerFunc {
	kind := inv.Registrar().Kind()
	return func(c echo.Context) error {
		name := c.Param(ParamName)
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest,
				dispatch.FromError(fmt.Sprintf("unreadable request body: %s", err)),
			)
		}
		if len(body) == 0 {
			body = []byte("null")
		}

		res, err := inv.Invoke(c.Request().Context(), name, json.RawMessage(body))
		if err != nil {
			logger.Error("Request failed",
				zap.String("kind", string(kind)),
				zap.String("name", name),
				zap.Error(err),
			)
			return c.JSON(http.StatusInternalServerError,
				dispatch.FromError(failureMessage(kind, name)),
			)
		}
		if !res.OK() {
			return c.JSON(http.StatusBadRequest, res)
		}
		return c.JSON(http.StatusOK, res)
	}
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func failureMessage(kind dispatch.Kind, name string) string {
	return fmt.Sprintf(
		"The server failed to process %s '%s'. Try again later.", kind, name,
	)
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Debug("Handled request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}
