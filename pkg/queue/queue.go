// Package queue holds the durable delayed-dispatch queue that sits between
// the cascade dispatcher and the launch worker.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
)

// ErrDispatchNotFound is returned when acking or retrying an unknown dispatch.
var ErrDispatchNotFound = errors.New("dispatch not found")

// Queue stores dispatches until their FireAt passes.
//
// Claim leases due dispatches: a claimed dispatch is invisible to other
// claimers for the lease duration and becomes due again if it is neither
// acknowledged nor retried before the lease expires.
type Queue interface {
	Enqueue(ctx context.Context, dispatch *models.Dispatch) error
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Dispatch, error)
	Ack(ctx context.Context, id string) error
	// Retry stores the dispatch's attempt bookkeeping and makes it due at fireAt.
	Retry(ctx context.Context, dispatch *models.Dispatch, fireAt time.Time) error
	// Pending counts stored dispatches, leased or not.
	Pending(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
