// Package schedule resolves cron expressions to concrete fire instants.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidScheduleExpression is returned for cron expressions that cannot be parsed
	// or that never fire.
	ErrInvalidScheduleExpression = errors.New("invalid schedule expression")

	// ErrInvalidTimezone is returned for names missing from the IANA database.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// MaxPreview bounds the number of instants returned by Preview.
const MaxPreview = 20

// Resolver computes next execution instants. It is stateless and safe for
// concurrent use.
type Resolver struct {
	parser cron.Parser
}

// NewResolver returns a resolver accepting the standard 5-field format
// (minute hour day month weekday) and descriptors such as @daily.
func NewResolver() *Resolver {
	return &Resolver{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

var defaultResolver = NewResolver()

// Next is NewResolver().Next.
func Next(expression, timezone string, after time.Time) (time.Time, error) {
	return defaultResolver.Next(expression, timezone, after)
}

// Next returns the first instant strictly after `after` at which the
// expression fires in the given timezone. The result is in UTC.
func (r *Resolver) Next(expression, timezone string, after time.Time) (time.Time, error) {
	sched, loc, err := r.parse(expression, timezone)
	if err != nil {
		return time.Time{}, err
	}

	next := sched.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires", ErrInvalidScheduleExpression, expression)
	}

	return next.UTC(), nil
}

// Preview returns the next count fire instants after `after`, capped at MaxPreview.
func (r *Resolver) Preview(expression, timezone string, after time.Time, count int) ([]time.Time, error) {
	if count <= 0 {
		count = 1
	}

	if count > MaxPreview {
		count = MaxPreview
	}

	runs := make([]time.Time, 0, count)
	cursor := after

	for range count {
		next, err := r.Next(expression, timezone, cursor)
		if err != nil {
			return nil, err
		}

		runs = append(runs, next)
		cursor = next
	}

	return runs, nil
}

// Validate checks both the expression and the timezone.
func (r *Resolver) Validate(expression, timezone string) error {
	_, _, err := r.parse(expression, timezone)

	return err
}

func (r *Resolver) parse(expression, timezone string) (cron.Schedule, *time.Location, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil, fmt.Errorf("%w: empty expression", ErrInvalidScheduleExpression)
	}

	// Timezones come from the trigger, not from the expression.
	if strings.HasPrefix(expression, "CRON_TZ=") || strings.HasPrefix(expression, "TZ=") {
		return nil, nil, fmt.Errorf("%w: timezone prefixes are not supported, use the timezone field", ErrInvalidScheduleExpression)
	}

	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, nil, err
	}

	sched, err := r.parser.Parse(expression)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidScheduleExpression, err.Error())
	}

	return sched, loc, nil
}

// LoadLocation resolves an IANA timezone name; the empty name is UTC.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}

	return loc, nil
}

// Describe renders a short human description for the common presets.
func Describe(expression string) string {
	switch strings.TrimSpace(expression) {
	case "0 * * * *", "@hourly":
		return "Every hour"
	case "0 2 * * *":
		return "Daily at 02:00"
	case "0 0 * * *", "@daily", "@midnight":
		return "Daily at midnight"
	case "0 2 * * 1":
		return "Weekly on Monday at 02:00"
	case "0 2 1 * *":
		return "Monthly on day 1 at 02:00"
	case "@weekly":
		return "Weekly on Sunday at midnight"
	case "@monthly":
		return "Monthly on day 1 at midnight"
	default:
		return "Custom schedule: " + expression
	}
}
