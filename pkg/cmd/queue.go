package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/persistence/postgresql"
	"github.com/medallionhq/conductor/pkg/queue"
	"github.com/medallionhq/conductor/pkg/queue/redis"
)

var ErrQueueNeedsPostgres = errors.New("the postgres dispatch queue requires a PostgreSQL DATABASE_URL")

// NewQueue selects the dispatch queue: "memory" (the default), a
// redis:// URL, or "postgres" to keep dispatches in the store's outbox table.
func NewQueue(queueURL string, store persistence.Persistence) (queue.Queue, error) {
	switch {
	case queueURL == "" || queueURL == "memory":
		return queue.NewMemoryQueue(), nil
	case strings.HasPrefix(queueURL, "redis://"), strings.HasPrefix(queueURL, "rediss://"):
		return redis.NewQueue(queueURL)
	case queueURL == "postgres":
		pg, ok := store.(*postgresql.Persistence)
		if !ok {
			return nil, ErrQueueNeedsPostgres
		}

		return pg.DispatchQueue(), nil
	default:
		return nil, fmt.Errorf("unsupported dispatch queue: %s", queueURL)
	}
}
