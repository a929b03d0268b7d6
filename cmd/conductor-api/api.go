// Package main provides the Conductor API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/medallionhq/conductor/pkg/cascade"
	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/queue"
	"github.com/medallionhq/conductor/pkg/services"
	"github.com/medallionhq/conductor/pkg/web"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	queue       queue.Queue
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	validate    *validator.Validate
}

// NewAPI wires the HTTP surface. eventBus may be nil, in which case trigger
// and dataset events are not published.
func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	queue queue.Queue,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		queue:       queue,
		eventBus:    eventBus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) publisher() eventbus.EventPublisher {
	if a.eventBus == nil {
		return nil
	}

	return a.eventBus
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(web.Services{
		Pipelines:  services.NewPipeline(a.persistence, a.logger),
		Triggers:   services.NewTrigger(a.persistence, a.publisher(), a.logger),
		Executions: services.NewExecution(a.persistence),
		Catalog:    services.NewCatalog(a.persistence, a.publisher(), a.logger),
		Watermarks: services.NewWatermark(a.persistence, a.logger),
		Dispatcher: cascade.NewDispatcher(a.persistence, a.queue, a.tracer, a.logger),
		Queue:      a.queue,
	}, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Conductor API")
	})

	handlers.Register(app)

	return app
}

// Start serves the API until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
