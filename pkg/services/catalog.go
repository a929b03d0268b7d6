package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/medallionhq/conductor/pkg/eventbus"
	"github.com/medallionhq/conductor/pkg/events"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

// DefaultResolveEnvironment scopes readiness resolution when the caller gives none.
const DefaultResolveEnvironment = models.EnvironmentProd

type Catalog struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewCatalog creates a new catalog service. publisher may be nil.
func NewCatalog(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Catalog {
	return &Catalog{
		persistence: p,
		publisher:   publisher,
		logger:      logger.With("module", "catalog_service"),
	}
}

// Registration is a producer announcing the physical output of a layer write.
type Registration struct {
	Layer       models.Layer
	TableName   string
	Environment models.Environment
	Status      *models.DatasetState
	ExecutionID string
	FilePath    string
	Schema      []models.ColumnDescriptor
	RowCount    int64
	FileSize    int64
}

// Register upserts the entry of (layer, tableName, environment). New entries
// start pending unless a status is given; existing entries keep theirs.
func (s *Catalog) Register(ctx context.Context, reg Registration) (*models.CatalogEntry, bool, error) {
	reg.TableName = strings.TrimSpace(reg.TableName)

	if reg.TableName == "" {
		return nil, false, NewValidationError("Register", "MISSING_TABLE_NAME", "tableName is required")
	}

	if !reg.Layer.IsValid() {
		return nil, false, NewValidationError("Register", "INVALID_LAYER", fmt.Sprintf("invalid layer %q", reg.Layer))
	}

	if !reg.Environment.IsValid() {
		return nil, false, NewValidationError("Register", "INVALID_ENVIRONMENT", fmt.Sprintf("invalid environment %q", reg.Environment))
	}

	if reg.Status != nil && !reg.Status.IsValid() {
		return nil, false, invalidDatasetState("Register", *reg.Status)
	}

	if reg.RowCount < 0 || reg.FileSize < 0 {
		return nil, false, NewValidationError("Register", "INVALID_SIZE", "rowCount and fileSize must not be negative")
	}

	existing, err := s.persistence.CatalogRepository().FindByName(ctx, reg.TableName, persistence.CatalogFilter{
		Environment: reg.Environment,
		Layer:       reg.Layer,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up catalog entry: %w", err)
	}

	entry := &models.CatalogEntry{
		Layer:           reg.Layer,
		TableName:       reg.TableName,
		Environment:     reg.Environment,
		Status:          models.KnownStatus(models.DatasetStatePending),
		LastExecutionID: reg.ExecutionID,
		FilePath:        reg.FilePath,
		Schema:          reg.Schema,
		RowCount:        reg.RowCount,
		FileSize:        reg.FileSize,
	}

	created := len(existing) == 0
	if !created {
		entry.Status = existing[0].Status
	}

	if reg.Status != nil {
		entry.Status = models.KnownStatus(*reg.Status)
	}

	if entry.Schema == nil {
		entry.Schema = []models.ColumnDescriptor{}
	}

	if err := s.persistence.CatalogRepository().Upsert(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("failed to register dataset: %w", err)
	}

	if created || reg.Status != nil {
		s.publish(ctx, entry)
	}

	return entry, created, nil
}

// Scope narrows name lookups. Empty fields match every value.
type Scope struct {
	Environment models.Environment
	Layer       models.Layer
}

func (sc Scope) validate(op string) error {
	if sc.Environment != "" && !sc.Environment.IsValid() {
		return NewValidationError(op, "INVALID_ENVIRONMENT", fmt.Sprintf("invalid environment %q", sc.Environment))
	}

	if sc.Layer != "" && !sc.Layer.IsValid() {
		return NewValidationError(op, "INVALID_LAYER", fmt.Sprintf("invalid layer %q", sc.Layer))
	}

	return nil
}

// DatasetStatusView is the readiness answer for one catalog entry.
type DatasetStatusView struct {
	ID              string              `json:"id"`
	TableName       string              `json:"tableName"`
	Layer           models.Layer        `json:"layer"`
	Environment     models.Environment  `json:"environment"`
	Status          models.DatasetState `json:"status"`
	IsReady         bool                `json:"isReady"`
	IsLegacy        bool                `json:"isLegacy"`
	LastExecutionID string              `json:"lastExecutionId,omitempty"`
	FilePath        string              `json:"filePath,omitempty"`
	RowCount        int64               `json:"rowCount"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func NewDatasetStatusView(entry *models.CatalogEntry) *DatasetStatusView {
	return &DatasetStatusView{
		ID:              entry.ID,
		TableName:       entry.TableName,
		Layer:           entry.Layer,
		Environment:     entry.Environment,
		Status:          entry.Status.State(),
		IsReady:         entry.Status.IsReady(),
		IsLegacy:        entry.Status.IsLegacy(),
		LastExecutionID: entry.LastExecutionID,
		FilePath:        entry.FilePath,
		RowCount:        entry.RowCount,
		UpdatedAt:       entry.UpdatedAt,
	}
}

// Status looks a dataset up by catalog id or table name.
func (s *Catalog) Status(ctx context.Context, idOrName string, scope Scope) (*DatasetStatusView, error) {
	entry, err := s.lookup(ctx, "Status", idOrName, scope)
	if err != nil {
		return nil, err
	}

	return NewDatasetStatusView(entry), nil
}

// UpdateStatus is the producer-side write of dataset status fields.
func (s *Catalog) UpdateStatus(ctx context.Context, idOrName string, scope Scope, update models.DatasetStatusUpdate) (*DatasetStatusView, error) {
	if update.IsEmpty() {
		return nil, NewValidationError("UpdateStatus", "NO_FIELDS", "no valid fields to update")
	}

	if update.Status != nil && !update.Status.IsValid() {
		return nil, invalidDatasetState("UpdateStatus", *update.Status)
	}

	if update.RowCount != nil && *update.RowCount < 0 {
		return nil, NewValidationError("UpdateStatus", "INVALID_ROW_COUNT", "rowCount must not be negative")
	}

	entry, err := s.lookup(ctx, "UpdateStatus", idOrName, scope)
	if err != nil {
		return nil, err
	}

	updated, err := s.persistence.CatalogRepository().UpdateStatus(ctx, entry.ID, update)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "dataset status updated",
		"dataset_id", updated.ID, "table", updated.TableName, "layer", updated.Layer,
		"environment", updated.Environment, "status", updated.Status.String())

	if update.Status != nil {
		s.publish(ctx, updated)
	}

	return NewDatasetStatusView(updated), nil
}

func (s *Catalog) lookup(ctx context.Context, op, idOrName string, scope Scope) (*models.CatalogEntry, error) {
	idOrName = strings.TrimSpace(idOrName)
	if idOrName == "" {
		return nil, NewValidationError(op, "MISSING_DATASET", "dataset id or name is required")
	}

	if err := scope.validate(op); err != nil {
		return nil, err
	}

	entry, err := s.persistence.CatalogRepository().GetByID(ctx, idOrName)
	if err == nil {
		return entry, nil
	}

	if !errors.Is(err, persistence.ErrDatasetNotFound) {
		return nil, err
	}

	matches, err := s.persistence.CatalogRepository().FindByName(ctx, idOrName, persistence.CatalogFilter{
		Environment: scope.Environment,
		Layer:       scope.Layer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up dataset: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, persistence.NewEntityError(op, "dataset", idOrName, persistence.ErrDatasetNotFound)
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, len(matches))
		for i, match := range matches {
			candidates[i] = fmt.Sprintf("%s/%s (%s)", match.Layer, match.Environment, match.ID)
		}

		return nil, fmt.Errorf("%w: %q matches %s, narrow it with environment or layer",
			ErrAmbiguousDataset, idOrName, strings.Join(candidates, ", "))
	}
}

// ResolveRequest asks whether a transform's declared inputs may be read.
type ResolveRequest struct {
	Datasets     []string
	Environment  models.Environment
	Layer        models.Layer
	RequireReady bool
}

// ResolvedDataset is the physical artifact behind a requested name.
type ResolvedDataset struct {
	Name        string                    `json:"name"`
	CatalogID   string                    `json:"catalogId"`
	Layer       models.Layer              `json:"layer"`
	Environment models.Environment        `json:"environment"`
	Path        string                    `json:"path,omitempty"`
	Schema      []models.ColumnDescriptor `json:"schema"`
	RowCount    int64                     `json:"rowCount"`
	FileSize    int64                     `json:"fileSize"`
	Status      models.DatasetState       `json:"status"`
	IsReady     bool                      `json:"isReady"`
	UpdatedAt   time.Time                 `json:"updatedAt"`
}

// Resolution partitions requested names. A missing name never appears in
// Resolved; a resolved but unready name appears in Resolved and NotReady.
type Resolution struct {
	Environment models.Environment `json:"environment"`
	Resolved    []ResolvedDataset  `json:"resolved"`
	NotFound    []string           `json:"notFound"`
	NotReady    []string           `json:"notReady"`
	AllReady    bool               `json:"allReady"`
}

// Err reports the readiness failure of the resolution, or nil.
func (r *Resolution) Err() error {
	if len(r.NotFound) == 0 && len(r.NotReady) == 0 {
		return nil
	}

	return &ReadinessError{NotFound: r.NotFound, NotReady: r.NotReady}
}

// Resolve maps dataset names to catalog entries in request order. It only
// reads, so calling it repeatedly is safe.
func (s *Catalog) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if len(req.Datasets) == 0 {
		return nil, NewValidationError("Resolve", "MISSING_DATASETS", "datasets array is required and must not be empty")
	}

	if req.Environment == "" {
		req.Environment = DefaultResolveEnvironment
	}

	if err := (Scope{Environment: req.Environment, Layer: req.Layer}).validate("Resolve"); err != nil {
		return nil, err
	}

	result := &Resolution{
		Environment: req.Environment,
		Resolved:    []ResolvedDataset{},
		NotFound:    []string{},
		NotReady:    []string{},
	}

	for _, name := range req.Datasets {
		name = strings.TrimSpace(name)
		if name == "" {
			result.NotFound = append(result.NotFound, name)

			continue
		}

		matches, err := s.persistence.CatalogRepository().FindByName(ctx, name, persistence.CatalogFilter{
			Environment: req.Environment,
			Layer:       req.Layer,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve dataset %s: %w", name, err)
		}

		if len(matches) == 0 {
			result.NotFound = append(result.NotFound, name)

			continue
		}

		entry := mostRefined(matches)
		result.Resolved = append(result.Resolved, toResolved(entry))

		if req.RequireReady && !entry.Status.IsReady() {
			result.NotReady = append(result.NotReady, name)
		}
	}

	result.AllReady = len(result.NotFound) == 0 && !slices.ContainsFunc(result.Resolved, func(d ResolvedDataset) bool {
		return !d.IsReady
	})

	return result, nil
}

// Discovery is the catalog listing offered to dataset job authors.
type Discovery struct {
	Datasets []ResolvedDataset                  `json:"datasets"`
	ByLayer  map[models.Layer][]ResolvedDataset `json:"byLayer"`
	Count    int                                `json:"count"`
}

// Discover lists catalog entries for input selection, grouped by layer.
func (s *Catalog) Discover(ctx context.Context, filter persistence.CatalogFilter) (*Discovery, error) {
	if filter.Environment == "" {
		filter.Environment = DefaultResolveEnvironment
	}

	if err := (Scope{Environment: filter.Environment, Layer: filter.Layer}).validate("Discover"); err != nil {
		return nil, err
	}

	if filter.State != "" && !filter.State.IsValid() {
		return nil, invalidDatasetState("Discover", filter.State)
	}

	entries, err := s.persistence.CatalogRepository().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}

	result := &Discovery{
		Datasets: make([]ResolvedDataset, 0, len(entries)),
		ByLayer:  make(map[models.Layer][]ResolvedDataset, len(models.Layers)),
		Count:    len(entries),
	}

	for _, layer := range models.Layers {
		result.ByLayer[layer] = []ResolvedDataset{}
	}

	for _, entry := range entries {
		dataset := toResolved(entry)
		result.Datasets = append(result.Datasets, dataset)
		result.ByLayer[entry.Layer] = append(result.ByLayer[entry.Layer], dataset)
	}

	return result, nil
}

func (s *Catalog) publish(ctx context.Context, entry *models.CatalogEntry) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, entry.TableName, events.NewDatasetStatusChanged(entry)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish dataset status", "dataset_id", entry.ID, "error", err)
	}
}

// mostRefined picks the latest layer in promotion order among entries that
// share a name, so an unscoped lookup prefers gold over silver over bronze.
func mostRefined(entries []*models.CatalogEntry) *models.CatalogEntry {
	return slices.MaxFunc(entries, func(a, b *models.CatalogEntry) int {
		return slices.Index(models.Layers, a.Layer) - slices.Index(models.Layers, b.Layer)
	})
}

func toResolved(entry *models.CatalogEntry) ResolvedDataset {
	schema := entry.Schema
	if schema == nil {
		schema = []models.ColumnDescriptor{}
	}

	return ResolvedDataset{
		Name:        entry.TableName,
		CatalogID:   entry.ID,
		Layer:       entry.Layer,
		Environment: entry.Environment,
		Path:        entry.FilePath,
		Schema:      schema,
		RowCount:    entry.RowCount,
		FileSize:    entry.FileSize,
		Status:      entry.Status.State(),
		IsReady:     entry.Status.IsReady(),
		UpdatedAt:   entry.UpdatedAt,
	}
}

func invalidDatasetState(op string, state models.DatasetState) error {
	return NewValidationError(op, "INVALID_STATUS",
		fmt.Sprintf("invalid status %q, must be one of: pending, running, ready, failed", state))
}
