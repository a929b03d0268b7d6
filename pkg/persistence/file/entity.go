package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// entityDir stores one JSON document per entity under root/name.
type entityDir[T any] struct {
	root string
	name string
}

func newEntityDir[T any](root, name string) entityDir[T] {
	return entityDir[T]{root: root, name: name}
}

func (d entityDir[T]) dir() string {
	return filepath.Join(d.root, d.name)
}

// validateID rejects ids that would escape the entity directory.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("id %q contains invalid characters", id)
	}

	return nil
}

func (d entityDir[T]) path(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}

	return filepath.Join(d.dir(), id+".json"), nil
}

// read returns fs.ErrNotExist when the document is missing. An id that
// could never be written is reported as missing.
func (d entityDir[T]) read(id string) (*T, error) {
	filePath, err := d.path(id)
	if err != nil {
		return nil, fs.ErrNotExist
	}

	body, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fs.ErrNotExist
		}

		return nil, fmt.Errorf("failed to read %s %s: %w", d.name, id, err)
	}

	var entity T

	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %s: %w", d.name, id, err)
	}

	return &entity, nil
}

func (d entityDir[T]) write(id string, entity *T) error {
	filePath, err := d.path(id)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", d.name, err)
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", d.name, id, err)
	}

	// Write then rename so readers never observe a torn document.
	tmp := filePath + ".tmp"

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", d.name, id, err)
	}

	if err := os.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("failed to commit %s %s: %w", d.name, id, err)
	}

	return nil
}

// remove reports whether a document was deleted.
func (d entityDir[T]) remove(id string) (bool, error) {
	filePath, err := d.path(id)
	if err != nil {
		return false, err
	}

	err = os.Remove(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to delete %s %s: %w", d.name, id, err)
	}

	return true, nil
}

func (d entityDir[T]) all() ([]*T, error) {
	root := os.DirFS(d.dir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", d.name, err)
	}

	entities := make([]*T, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		entity, err := d.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, err
		}

		entities = append(entities, entity)
	}

	return entities, nil
}
