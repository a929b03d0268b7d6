package queue

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/medallionhq/conductor/pkg/models"
)

type memoryItem struct {
	dispatch models.Dispatch
	visible  time.Time
}

// MemoryQueue is a process-local Queue for development and tests.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string]*memoryItem
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[string]*memoryItem)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, dispatch *models.Dispatch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items[dispatch.ID] = &memoryItem{dispatch: *dispatch, visible: dispatch.FireAt}

	return nil
}

func (q *MemoryQueue) Claim(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Dispatch, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]*memoryItem, 0)

	for _, item := range q.items {
		if !item.visible.After(now) {
			due = append(due, item)
		}
	}

	slices.SortFunc(due, func(a, b *memoryItem) int {
		if c := a.visible.Compare(b.visible); c != 0 {
			return c
		}

		return strings.Compare(a.dispatch.ID, b.dispatch.ID)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.Dispatch, 0, len(due))

	for _, item := range due {
		item.visible = now.Add(lease)
		dispatch := item.dispatch
		claimed = append(claimed, &dispatch)
	}

	return claimed, nil
}

func (q *MemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[id]; !ok {
		return ErrDispatchNotFound
	}

	delete(q.items, id)

	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, dispatch *models.Dispatch, fireAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[dispatch.ID]; !ok {
		return ErrDispatchNotFound
	}

	stored := *dispatch
	stored.FireAt = fireAt
	q.items[dispatch.ID] = &memoryItem{dispatch: stored, visible: fireAt}

	return nil
}

func (q *MemoryQueue) Pending(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items), nil
}

func (q *MemoryQueue) HealthCheck(_ context.Context) error {
	return nil
}

func (q *MemoryQueue) Close() error {
	return nil
}
