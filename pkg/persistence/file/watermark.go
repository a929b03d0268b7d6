package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

// WatermarkRepository stores one document per source, named by the escaped source id.
type WatermarkRepository struct {
	mu         *sync.RWMutex
	watermarks entityDir[models.Watermark]
}

func watermarkKey(sourceID string) string {
	return url.PathEscape(sourceID)
}

func (r *WatermarkRepository) Get(_ context.Context, sourceID string) (*models.Watermark, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	watermark, err := r.watermarks.read(watermarkKey(sourceID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewEntityError("Get", "watermark", sourceID, persistence.ErrWatermarkNotFound)
	}

	return watermark, err
}

func (r *WatermarkRepository) Advance(_ context.Context, adv models.WatermarkAdvance) (*models.Watermark, *models.Watermark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := watermarkKey(adv.SourceID)

	previous, err := r.watermarks.read(key)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}

	id := ""
	if previous == nil {
		generated, err := uuid.NewV7()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate watermark ID: %w", err)
		}

		id = generated.String()
	}

	current := previous.Advance(id, adv, time.Now().UTC())

	if err := r.watermarks.write(key, current); err != nil {
		return nil, nil, err
	}

	return previous, current, nil
}

func (r *WatermarkRepository) Delete(_ context.Context, sourceID string) (*models.Watermark, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := watermarkKey(sourceID)

	watermark, err := r.watermarks.read(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewEntityError("Delete", "watermark", sourceID, persistence.ErrWatermarkNotFound)
		}

		return nil, err
	}

	if _, err := r.watermarks.remove(key); err != nil {
		return nil, err
	}

	return watermark, nil
}
