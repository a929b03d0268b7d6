package schedule

import (
	"time"

	"github.com/medallionhq/conductor/pkg/models"
)

// Refresh recomputes the cached next run of a scheduled trigger when it is
// missing or not after now. It reports whether the trigger changed so the
// caller can rewrite its cache.
func (r *Resolver) Refresh(trigger *models.Trigger, now time.Time) (bool, error) {
	if !trigger.IsScheduled() {
		return false, nil
	}

	if trigger.NextRunAt != nil && trigger.NextRunAt.After(now) {
		return false, nil
	}

	next, err := r.Next(trigger.CronExpression, trigger.Timezone, now)
	if err != nil {
		return false, err
	}

	trigger.NextRunAt = &next

	return true, nil
}

// EarliestRun returns the minimum cached next run across enabled scheduled
// triggers, or nil when none is scheduled.
func EarliestRun(triggers []*models.Trigger) *time.Time {
	var earliest *time.Time

	for _, trigger := range triggers {
		if !trigger.Enabled || !trigger.IsScheduled() || trigger.NextRunAt == nil {
			continue
		}

		if earliest == nil || trigger.NextRunAt.Before(*earliest) {
			next := *trigger.NextRunAt
			earliest = &next
		}
	}

	return earliest
}
