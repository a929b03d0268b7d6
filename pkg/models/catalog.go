package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DatasetState is a lifecycle state pushed by the job producing a dataset.
type DatasetState string

const (
	DatasetStatePending DatasetState = "pending"
	DatasetStateRunning DatasetState = "running"
	DatasetStateReady   DatasetState = "ready"
	DatasetStateFailed  DatasetState = "failed"
)

// IsValid reports whether s is a known dataset state.
func (s DatasetState) IsValid() bool {
	switch s {
	case DatasetStatePending, DatasetStateRunning, DatasetStateReady, DatasetStateFailed:
		return true
	default:
		return false
	}
}

// DatasetStatus is either a known state or the legacy marker of rows
// registered before dataset statuses existed. Legacy rows count as ready.
// The zero value is the legacy marker.
type DatasetStatus struct {
	state DatasetState
	known bool
}

// KnownStatus wraps an explicit dataset state.
func KnownStatus(state DatasetState) DatasetStatus {
	return DatasetStatus{state: state, known: true}
}

// LegacyReadyStatus is the status of a row without a recorded state.
func LegacyReadyStatus() DatasetStatus {
	return DatasetStatus{}
}

// IsLegacy reports whether the row has no recorded state.
func (s DatasetStatus) IsLegacy() bool {
	return !s.known
}

// State returns the effective state; legacy rows resolve to ready.
func (s DatasetStatus) State() DatasetState {
	if !s.known {
		return DatasetStateReady
	}

	return s.state
}

// IsReady reports whether consumers may read the dataset.
func (s DatasetStatus) IsReady() bool {
	return s.State() == DatasetStateReady
}

func (s DatasetStatus) String() string {
	if !s.known {
		return "legacy(ready)"
	}

	return string(s.state)
}

// MarshalJSON encodes legacy rows as null so they survive a round trip.
func (s DatasetStatus) MarshalJSON() ([]byte, error) {
	if !s.known {
		return []byte("null"), nil
	}

	return json.Marshal(string(s.state))
}

func (s *DatasetStatus) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw == nil || *raw == "" {
		*s = LegacyReadyStatus()

		return nil
	}

	state := DatasetState(*raw)
	if !state.IsValid() {
		return fmt.Errorf("invalid dataset status %q", *raw)
	}

	*s = KnownStatus(state)

	return nil
}

// Value stores legacy rows as NULL.
func (s DatasetStatus) Value() (driver.Value, error) {
	if !s.known {
		return nil, nil
	}

	return string(s.state), nil
}

func (s *DatasetStatus) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = LegacyReadyStatus()
	case string:
		return s.scanString(v)
	case []byte:
		return s.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DatasetStatus", src)
	}

	return nil
}

func (s *DatasetStatus) scanString(v string) error {
	if v == "" {
		*s = LegacyReadyStatus()

		return nil
	}

	state := DatasetState(v)
	if !state.IsValid() {
		return fmt.Errorf("invalid dataset status %q", v)
	}

	*s = KnownStatus(state)

	return nil
}

// ColumnDescriptor describes one column of a dataset schema.
type ColumnDescriptor struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// CatalogEntry is a physical dataset registered for one (layer, table, environment).
type CatalogEntry struct {
	ID              string             `json:"id"`
	Layer           Layer              `json:"layer"`
	TableName       string             `json:"tableName"`
	Environment     Environment        `json:"environment"`
	Status          DatasetStatus      `json:"datasetStatus"`
	LastExecutionID string             `json:"lastExecutionId,omitempty"`
	FilePath        string             `json:"filePath,omitempty"`
	Schema          []ColumnDescriptor `json:"schema"`
	RowCount        int64              `json:"rowCount"`
	FileSize        int64              `json:"fileSize"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// Key returns the uniqueness key of the entry.
func (c *CatalogEntry) Key() CatalogKey {
	return CatalogKey{Layer: c.Layer, TableName: c.TableName, Environment: c.Environment}
}

// CatalogKey is the uniqueness granularity of catalog entries.
type CatalogKey struct {
	Layer       Layer
	TableName   string
	Environment Environment
}

// DatasetStatusUpdate is the producer-side write into a catalog entry.
// Nil fields are left untouched.
type DatasetStatusUpdate struct {
	Status      *DatasetState
	ExecutionID *string
	RowCount    *int64
	FilePath    *string
}

// IsEmpty reports whether the update carries no field.
func (u DatasetStatusUpdate) IsEmpty() bool {
	return u.Status == nil && u.ExecutionID == nil && u.RowCount == nil && u.FilePath == nil
}

// Apply mutates entry with the non-nil fields of the update.
func (u DatasetStatusUpdate) Apply(entry *CatalogEntry, now time.Time) {
	if u.Status != nil {
		entry.Status = KnownStatus(*u.Status)
	}

	if u.ExecutionID != nil {
		entry.LastExecutionID = *u.ExecutionID
	}

	if u.RowCount != nil {
		entry.RowCount = *u.RowCount
	}

	if u.FilePath != nil {
		entry.FilePath = *u.FilePath
	}

	entry.UpdatedAt = now
}
