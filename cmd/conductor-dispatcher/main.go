package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/cascade"
	"github.com/medallionhq/conductor/pkg/cmd"
	"github.com/medallionhq/conductor/pkg/log"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	command := &cli.Command{
		Name:                  "conductor-dispatcher",
		Usage:                 "Cascade finished executions to dependent pipelines",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dispatcher-id",
				Aliases: []string{"id"},
				Usage:   "Custom dispatcher ID (auto-generated if not provided)",
				Sources: cli.EnvVars("DISPATCHER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file://dir or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := command.Run(ctx, os.Args)

	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	dispatcherID := command.String("dispatcher-id")
	if dispatcherID == "" {
		dispatcherID = "dispatcher-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("conductor-dispatcher").With("dispatcher_id", dispatcherID)
	logger.InfoContext(ctx, "Initializing Conductor Dispatcher")

	tracer, err := cmd.NewTracer(ctx, "conductor-dispatcher")
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

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), "conductor-dispatcher", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	dispatchQueue, err := cmd.NewQueue(command.String("dispatch-queue-url"), persistence)
	if err != nil {
		return err
	}

	defer func() {
		if err := dispatchQueue.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close dispatch queue", "error", err)
		}
	}()

	launch, err := cmd.NewLauncher(command.String("launcher"), command.String("launch-url"), bus)
	if err != nil {
		return err
	}

	dispatcher := cascade.NewDispatcher(persistence, dispatchQueue, tracer, logger)
	if err := dispatcher.Register(bus); err != nil {
		return fmt.Errorf("failed to register execution finished handler: %w", err)
	}

	worker := cascade.NewWorker(dispatchQueue, launch, persistence, tracer, slog.Default(), cascade.WorkerConfig{
		ID:           dispatcherID,
		PollInterval: command.Duration("dispatch-poll-interval"),
		MaxAttempts:  command.Int("dispatch-max-attempts"),
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := bus.Subscribe(ctx); err != nil {
			return fmt.Errorf("failed to subscribe to events: %w", err)
		}

		logger.InfoContext(ctx, "Listening for execution finished events")
		<-ctx.Done()

		return nil
	})

	g.Go(func() error {
		return worker.Run(ctx)
	})

	return g.Wait()
}
