package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/congo-pay/fxwallet/internal/engine"
	"github.com/congo-pay/fxwallet/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app  *fiber.App
	addr string
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup. Metrics
// from gatherer are served on /metrics when it is non-nil.
func New(deps routes.Deps, gatherer prometheus.Gatherer) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      deps.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler(deps.Logger),
	})

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, addr: deps.Cfg.Address()}, nil
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// ErrorHandler renders every error as {"error": {"kind", "message"}}. Fiber errors keep
// their status; anything else is classified by the wallet error taxonomy.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			status  int
			kind    string
			message string
		)
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status, kind, message = fe.Code, kindForStatus(fe.Code), fe.Message
		} else {
			status, kind, message = engine.StatusOf(err), engine.KindOf(err), engine.Message(err)
		}
		if status >= http.StatusInternalServerError && logger != nil {
			logger.ErrorContext(c.UserContext(), "request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Any("error", err))
		}
		return c.Status(status).JSON(fiber.Map{
			"error": fiber.Map{"kind": kind, "message": message},
		})
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return engine.KindValidation
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return engine.KindConflict
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status >= http.StatusInternalServerError {
		return engine.KindOperationFailed
	}
	return "error"
}
