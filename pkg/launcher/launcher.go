// Package launcher starts downstream pipeline executions on the external
// execution engine.
package launcher

import (
	"context"

	"github.com/medallionhq/conductor/pkg/models"
)

// Launcher hands a due dispatch to the execution engine. Errors wrapped with
// backoff.Permanent are not retried.
type Launcher interface {
	Launch(ctx context.Context, dispatch *models.Dispatch) error
}
