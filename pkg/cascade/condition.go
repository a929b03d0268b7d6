// Package cascade fires downstream pipelines when an upstream execution
// finishes and launches the resulting dispatches once they are due.
package cascade

import "github.com/medallionhq/conductor/pkg/models"

// ShouldFire evaluates a dependency condition against the final status of the
// upstream execution. known is false for conditions outside the closed set;
// such triggers never fire.
func ShouldFire(condition models.DependencyCondition, status models.ExecutionStatus) (fire bool, known bool) {
	switch condition {
	case models.ConditionOnSuccess:
		return status == models.ExecutionStatusCompleted, true
	case models.ConditionOnFailure:
		return status == models.ExecutionStatusFailed, true
	case models.ConditionOnCompletion:
		return true, true
	default:
		return false, false
	}
}
