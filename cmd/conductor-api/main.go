package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/medallionhq/conductor/pkg/cascade"
	"github.com/medallionhq/conductor/pkg/cmd"
	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/log"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultPort = 9091

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newCommand().Run(ctx, os.Args)

	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "conductor-api",
		Usage:                 "Manage pipelines, triggers, the dataset catalog and watermarks",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file://dir or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel); events are not published when empty",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses",
				Value:   []string{"localhost:9092"},
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "dispatch-queue-url",
				Usage:   "Dispatch queue (memory, redis://..., postgres)",
				Value:   "memory",
				Sources: cli.EnvVars("DISPATCH_QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:    "launcher",
				Usage:   "How downstream executions are started (eventbus, http)",
				Value:   "eventbus",
				Sources: cli.EnvVars("LAUNCHER"),
			},
			&cli.StringFlag{
				Name:    "launch-url",
				Usage:   "Base URL of the execution engine for the http launcher",
				Sources: cli.EnvVars("LAUNCH_URL"),
			},
			&cli.BoolFlag{
				Name:    "embedded-worker",
				Usage:   "Run the dispatch worker inside the API process",
				Value:   true,
				Sources: cli.EnvVars("EMBEDDED_WORKER"),
			},
			&cli.DurationFlag{
				Name:    "dispatch-poll-interval",
				Usage:   "How often the dispatch worker looks for due dispatches",
				Value:   cascade.DefaultPollInterval,
				Sources: cli.EnvVars("DISPATCH_POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "dispatch-max-attempts",
				Usage:   "Launch attempts before a dispatch is dropped",
				Value:   cascade.DefaultMaxAttempts,
				Sources: cli.EnvVars("DISPATCH_MAX_ATTEMPTS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Conductor API")

	tracer, err := cmd.NewTracer(ctx, "conductor-api")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	var bus eventbus.EventBus

	if provider := command.String("event-bus"); provider != "" {
		bus, err = cmd.NewEventBus(provider, command.StringSlice("kafka-brokers"), "conductor-api", logger)
		if err != nil {
			return err
		}

		defer func() {
			if err := bus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()
	}

	dispatchQueue, err := cmd.NewQueue(command.String("dispatch-queue-url"), persistence)
	if err != nil {
		return err
	}

	defer func() {
		if err := dispatchQueue.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close dispatch queue", "error", err)
		}
	}()

	api := NewAPI(logger, persistence, dispatchQueue, bus, tracer)

	g, ctx := errgroup.WithContext(ctx)

	if command.Bool("embedded-worker") {
		worker, err := newWorker(command, api, tracer)

		switch {
		case errors.Is(err, cmd.ErrMissingEventBus):
			logger.WarnContext(ctx, "Embedded dispatch worker disabled, the eventbus launcher needs EVENT_BUS_TYPE; queued dispatches wait for a dispatcher",
				"launcher", command.String("launcher"))
		case err != nil:
			return err
		default:
			g.Go(func() error {
				return worker.Run(ctx)
			})
		}
	}

	g.Go(func() error {
		return api.Start(ctx, command.Int("port"))
	})

	return g.Wait()
}

func newWorker(command *cli.Command, api *API, tracer trace.Tracer) (*cascade.Worker, error) {
	var publisher eventbus.EventPublisher
	if api.eventBus != nil {
		publisher = api.eventBus
	}

	launch, err := cmd.NewLauncher(command.String("launcher"), command.String("launch-url"), publisher)
	if err != nil {
		return nil, err
	}

	return cascade.NewWorker(api.queue, launch, api.persistence, tracer, slog.Default(), cascade.WorkerConfig{
		ID:           "api-embedded",
		PollInterval: command.Duration("dispatch-poll-interval"),
		MaxAttempts:  command.Int("dispatch-max-attempts"),
	}), nil
}
