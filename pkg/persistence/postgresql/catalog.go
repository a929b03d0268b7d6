package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/medallionhq/conductor/pkg/models"
	"github.com/medallionhq/conductor/pkg/persistence"
)

const catalogColumns = `
			id
		  , layer
		  , table_name
		  , environment
		  , dataset_status
		  , last_execution_id
		  , file_path
		  , schema
		  , row_count
		  , file_size
		  , created_at
		  , updated_at`

// CatalogRepository handles dataset catalog database operations.
type CatalogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Upsert writes the entry keyed on (layer, table_name, environment) and
// reloads the stored id and creation time.
func (r *CatalogRepository) Upsert(ctx context.Context, entry *models.CatalogEntry) error {
	now := time.Now().UTC()

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate catalog entry ID: %w", err)
	}

	schema, err := json.Marshal(entry.Schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	if entry.Schema == nil {
		schema = []byte("[]")
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO catalog_entries (`+catalogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (layer, table_name, environment) DO UPDATE SET
			dataset_status = EXCLUDED.dataset_status,
			last_execution_id = EXCLUDED.last_execution_id,
			file_path = EXCLUDED.file_path,
			schema = EXCLUDED.schema,
			row_count = EXCLUDED.row_count,
			file_size = EXCLUDED.file_size,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`,
		id.String(),
		entry.Layer,
		entry.TableName,
		entry.Environment,
		entry.Status,
		nullString(entry.LastExecutionID),
		nullString(entry.FilePath),
		string(schema),
		entry.RowCount,
		entry.FileSize,
		now,
	)

	err = row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert catalog entry: %w", err)
	}

	return nil
}

func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+catalogColumns+` FROM catalog_entries WHERE id = $1`, id)

	entry, err := scanCatalogEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "dataset", id, persistence.ErrDatasetNotFound)
		}

		return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
	}

	return entry, nil
}

func (r *CatalogRepository) FindByName(ctx context.Context, tableName string, filter persistence.CatalogFilter) ([]*models.CatalogEntry, error) {
	return r.query(ctx, tableName, filter)
}

func (r *CatalogRepository) List(ctx context.Context, filter persistence.CatalogFilter) ([]*models.CatalogEntry, error) {
	return r.query(ctx, "", filter)
}

// UpdateStatus writes only the fields carried by the update in one statement.
func (r *CatalogRepository) UpdateStatus(ctx context.Context, id string, update models.DatasetStatusUpdate) (*models.CatalogEntry, error) {
	var status, executionID, filePath sql.NullString

	var rowCount sql.NullInt64

	if update.Status != nil {
		status = sql.NullString{String: string(*update.Status), Valid: true}
	}

	if update.ExecutionID != nil {
		executionID = sql.NullString{String: *update.ExecutionID, Valid: true}
	}

	if update.FilePath != nil {
		filePath = sql.NullString{String: *update.FilePath, Valid: true}
	}

	if update.RowCount != nil {
		rowCount = sql.NullInt64{Int64: *update.RowCount, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE catalog_entries SET
			dataset_status = COALESCE($2, dataset_status),
			last_execution_id = COALESCE($3, last_execution_id),
			row_count = COALESCE($4, row_count),
			file_path = COALESCE($5, file_path),
			updated_at = $6
		WHERE id = $1
		RETURNING`+catalogColumns,
		id, status, executionID, rowCount, filePath, time.Now().UTC(),
	)

	entry, err := scanCatalogEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("UpdateStatus", "dataset", id, persistence.ErrDatasetNotFound)
		}

		return nil, fmt.Errorf("failed to update dataset status: %w", err)
	}

	return entry, nil
}

func (r *CatalogRepository) query(ctx context.Context, tableName string, filter persistence.CatalogFilter) ([]*models.CatalogEntry, error) {
	query := `SELECT` + catalogColumns + `
		FROM catalog_entries
		WHERE ($1 = '' OR table_name = $1)
		  AND ($2 = '' OR environment = $2)
		  AND ($3 = '' OR layer = $3)
		  AND ($4 = '' OR COALESCE(dataset_status, 'ready') = $4)
		  AND ($5 = '' OR table_name ILIKE '%' || $5 || '%')
		ORDER BY layer, table_name, environment
	`

	rows, err := r.db.QueryContext(ctx, query,
		tableName,
		string(filter.Environment),
		string(filter.Layer),
		string(filter.State),
		filter.Search,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog entries: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.CatalogEntry, 0)

	for rows.Next() {
		entry, err := scanCatalogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating catalog entries: %w", err)
	}

	return entries, nil
}

func scanCatalogEntry(row scanner) (*models.CatalogEntry, error) {
	var (
		entry                     models.CatalogEntry
		lastExecutionID, filePath sql.NullString
		schema                    []byte
	)

	err := row.Scan(
		&entry.ID,
		&entry.Layer,
		&entry.TableName,
		&entry.Environment,
		&entry.Status,
		&lastExecutionID,
		&filePath,
		&schema,
		&entry.RowCount,
		&entry.FileSize,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.LastExecutionID = lastExecutionID.String
	entry.FilePath = filePath.String

	if len(schema) > 0 {
		err := json.Unmarshal(schema, &entry.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
		}
	}

	return &entry, nil
}
