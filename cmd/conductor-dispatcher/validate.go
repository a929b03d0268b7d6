package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/medallionhq/conductor/pkg/cmd"
	"github.com/medallionhq/conductor/pkg/graph"
	"github.com/medallionhq/conductor/pkg/log"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/schedule"
	"github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate persisted triggers and check the dependency graph for cycles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("conductor-dispatcher").With("action", "validate")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			report, err := validateTriggers(ctx, persistence)
			if err != nil {
				return err
			}

			report.print(command.Root().Writer)

			if report.failed() {
				return fmt.Errorf("found %d invalid triggers and %d cycles", report.Invalid, len(report.Cycles))
			}

			return nil
		},
	}
}

type validationReport struct {
	Pipelines int
	Valid     int
	Invalid   int
	Problems  []string
	Cycles    [][]string
}

func (r *validationReport) failed() bool {
	return r.Invalid > 0 || len(r.Cycles) > 0
}

func (r *validationReport) print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Trigger Validation Results:")
	_, _ = fmt.Fprintln(w, "===========================")

	for _, problem := range r.Problems {
		_, _ = fmt.Fprintf(w, "  ❌ %s\n", problem)
	}

	for _, cycle := range r.Cycles {
		_, _ = fmt.Fprintf(w, "  ❌ cycle: %s\n", strings.Join(cycle, " → "))
	}

	_, _ = fmt.Fprintf(w, "\nValidation Summary:\n")
	_, _ = fmt.Fprintf(w, "  Pipelines: %d\n", r.Pipelines)
	_, _ = fmt.Fprintf(w, "  Valid triggers: %d\n", r.Valid)
	_, _ = fmt.Fprintf(w, "  Invalid triggers: %d\n", r.Invalid)
	_, _ = fmt.Fprintf(w, "  Cycles: %d\n", len(r.Cycles))

	if !r.failed() {
		_, _ = fmt.Fprintln(w, "All triggers are valid and the dependency graph is acyclic ✅")
	}
}

// validateTriggers re-checks every stored trigger and walks the complete
// dependency graph, disabled edges included, looking for loops that slipped
// past the write-time guard.
func validateTriggers(ctx context.Context, p persistence.Persistence) (*validationReport, error) {
	pipelines, err := p.PipelineRepository().List(ctx, persistence.ListPipelinesOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pipelines: %w", err)
	}

	known := make(map[string]string, len(pipelines))
	for _, pipeline := range pipelines {
		known[pipeline.ID] = pipeline.Name
	}

	report := &validationReport{Pipelines: len(pipelines)}
	resolver := schedule.NewResolver()

	for _, pipeline := range pipelines {
		triggers, err := p.TriggerRepository().ListByPipeline(ctx, pipeline.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch triggers of pipeline %s: %w", pipeline.ID, err)
		}

		for _, trigger := range triggers {
			if problem := checkTrigger(resolver, known, trigger); problem != "" {
				report.Invalid++
				report.Problems = append(report.Problems,
					fmt.Sprintf("%s / trigger %s: %s", pipeline.Name, trigger.ID, problem))

				continue
			}

			report.Valid++
		}
	}

	edges, err := p.TriggerRepository().DependencyEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dependency edges: %w", err)
	}

	for _, cycle := range graph.FromEdges(edges).FindCycles() {
		named := make([]string, len(cycle))
		for i, id := range cycle {
			named[i] = id
			if name, ok := known[id]; ok {
				named[i] = name
			}
		}

		report.Cycles = append(report.Cycles, named)
	}

	return report, nil
}

func checkTrigger(resolver *schedule.Resolver, known map[string]string, trigger *models.Trigger) string {
	switch trigger.TriggerType {
	case models.TriggerTypeScheduled:
		if err := resolver.Validate(trigger.CronExpression, trigger.Timezone); err != nil {
			return err.Error()
		}
	case models.TriggerTypeDependency:
		if trigger.DependsOnPipelineID == trigger.PipelineID {
			return "pipeline depends on itself"
		}

		if _, ok := known[trigger.DependsOnPipelineID]; !ok {
			return fmt.Sprintf("upstream pipeline %s does not exist", trigger.DependsOnPipelineID)
		}

		if !trigger.DependencyCondition.IsValid() {
			return fmt.Sprintf("unknown dependency condition %q", trigger.DependencyCondition)
		}
	case models.TriggerTypeManual, models.TriggerTypeEvent:
	default:
		return fmt.Sprintf("unknown trigger type %q", trigger.TriggerType)
	}

	return ""
}
