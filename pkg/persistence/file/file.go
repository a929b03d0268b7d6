// Package file provides a file-based persistence implementation storing one
// JSON document per entity. It is meant for development and tests.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string

	// mu serializes every write; guarded trigger saves rely on it to run the
	// edge check and the insert as one unit.
	mu sync.RWMutex

	pipelineRepo  *PipelineRepository
	triggerRepo   *TriggerRepository
	executionRepo *ExecutionRepository
	catalogRepo   *CatalogRepository
	watermarkRepo *WatermarkRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	fp := &Persistence{root: cleanRoot}
	fp.pipelineRepo = &PipelineRepository{mu: &fp.mu, pipelines: newEntityDir[models.Pipeline](cleanRoot, "pipelines")}
	fp.triggerRepo = &TriggerRepository{mu: &fp.mu, triggers: newEntityDir[models.Trigger](cleanRoot, "triggers")}
	fp.executionRepo = &ExecutionRepository{mu: &fp.mu, executions: newEntityDir[models.Execution](cleanRoot, "executions")}
	fp.catalogRepo = &CatalogRepository{mu: &fp.mu, entries: newEntityDir[models.CatalogEntry](cleanRoot, "catalog")}
	fp.watermarkRepo = &WatermarkRepository{mu: &fp.mu, watermarks: newEntityDir[models.Watermark](cleanRoot, "watermarks")}

	return fp
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) PipelineRepository() persistence.PipelineRepository {
	return fp.pipelineRepo
}

func (fp *Persistence) TriggerRepository() persistence.TriggerRepository {
	return fp.triggerRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) CatalogRepository() persistence.CatalogRepository {
	return fp.catalogRepo
}

func (fp *Persistence) WatermarkRepository() persistence.WatermarkRepository {
	return fp.watermarkRepo
}
