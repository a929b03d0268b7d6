package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

// CatalogRepository handles dataset catalog file operations.
type CatalogRepository struct {
	mu      *sync.RWMutex
	entries entityDir[models.CatalogEntry]
}

func (r *CatalogRepository) Upsert(_ context.Context, entry *models.CatalogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.entries.all()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry.CreatedAt = now

	for _, existing := range all {
		if existing.Key() == entry.Key() {
			entry.ID = existing.ID
			entry.CreatedAt = existing.CreatedAt

			break
		}
	}

	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate catalog entry ID: %w", err)
		}

		entry.ID = id.String()
	}

	entry.UpdatedAt = now

	return r.entries.write(entry.ID, entry)
}

func (r *CatalogRepository) GetByID(_ context.Context, id string) (*models.CatalogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, err := r.entries.read(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("GetByID", "dataset", id, persistence.ErrDatasetNotFound)
	}

	return entry, err
}

func (r *CatalogRepository) FindByName(ctx context.Context, tableName string, filter persistence.CatalogFilter) ([]*models.CatalogEntry, error) {
	entries, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(entries, func(entry *models.CatalogEntry) bool {
		return entry.TableName != tableName
	}), nil
}

// List returns entries inside the filter ordered by layer then table name.
func (r *CatalogRepository) List(_ context.Context, filter persistence.CatalogFilter) ([]*models.CatalogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.entries.all()
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(filter.Search)

	entries := slices.DeleteFunc(all, func(entry *models.CatalogEntry) bool {
		switch {
		case filter.Environment != "" && entry.Environment != filter.Environment:
			return true
		case filter.Layer != "" && entry.Layer != filter.Layer:
			return true
		case filter.State != "" && entry.Status.State() != filter.State:
			return true
		case search != "" && !strings.Contains(strings.ToLower(entry.TableName), search):
			return true
		}

		return false
	})

	slices.SortFunc(entries, func(a, b *models.CatalogEntry) int {
		if c := strings.Compare(string(a.Layer), string(b.Layer)); c != 0 {
			return c
		}

		if c := strings.Compare(a.TableName, b.TableName); c != 0 {
			return c
		}

		return strings.Compare(string(a.Environment), string(b.Environment))
	})

	return entries, nil
}

func (r *CatalogRepository) UpdateStatus(_ context.Context, id string, update models.DatasetStatusUpdate) (*models.CatalogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.entries.read(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewEntityError("UpdateStatus", "dataset", id, persistence.ErrDatasetNotFound)
		}

		return nil, err
	}

	update.Apply(entry, time.Now().UTC())

	if err := r.entries.write(id, entry); err != nil {
		return nil, err
	}

	return entry, nil
}
