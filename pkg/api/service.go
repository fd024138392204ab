package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/sirupsen/logrus"
)

// StatusProvider supplies the data behind /api/v1/status
type StatusProvider interface {
	// Ready reports whether runs can be scheduled
	Ready() bool
	// Snapshot returns a JSON-serialisable status document
	Snapshot(ctx context.Context) (any, error)
}

// Service defines the API service interface
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	app      *fiber.App
	server   *http.Server
	config   *Config
	provider StatusProvider
	log      logrus.FieldLogger
}

// NewService creates a new status API service
func NewService(cfg *Config, provider StatusProvider, log logrus.FieldLogger) Service {
	s := &service{
		config:   cfg,
		provider: provider,
		log:      log.WithField("service", "api"),
	}

	s.app = s.newApp()

	return s
}

func (s *service) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "civicpulse",
	})

	app.Use(recover.New())

	app.Get("/health", func(c fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/ready", func(c fiber.Ctx) error {
		if !s.provider.Ready() {
			return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
		}

		return c.SendString("READY")
	})

	app.Get("/api/v1/status", func(c fiber.Ctx) error {
		snap, err := s.provider.Snapshot(c.Context())
		if err != nil {
			s.log.WithError(err).Warn("Failed to build status snapshot")
			return fiber.NewError(fiber.StatusServiceUnavailable, "status unavailable")
		}

		return c.JSON(snap)
	})

	return app
}

// Start serves the API in the background
func (s *service) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API service is disabled")
		return nil
	}

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           adaptor.FiberApp(s.app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.config.Addr).Info("Starting status API")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Status API failed")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.shutdownTimeout())
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// errorHandler provides consistent error responses
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fiberErr *fiber.Error
	if ok := errors.As(err, &fiberErr); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
