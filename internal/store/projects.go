package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/brainstorm/brainstorm/internal/models"
)

// BadgerProjectStore implements ProjectStore on BadgerDB. Each project's item
// collection is one value, so a write replaces the collection atomically at
// the key level — which is exactly the row-level atomicity the reconciler's
// read-modify-write contract assumes. Two concurrent reconciliations still
// race at the application level (last writer wins).
type BadgerProjectStore struct {
	db *badger.DB
}

// NewBadgerProjectStore opens (or creates) the Badger database at path.
func NewBadgerProjectStore(path string) (*BadgerProjectStore, error) {
	opts := badger.DefaultOptions(expandPath(path)).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerProjectStore{db: db}, nil
}

func projectKey(projectID string) []byte {
	return []byte("project:items:" + projectID)
}

// ReadItems returns the full item collection for a project. A missing project
// reads as an empty collection.
func (s *BadgerProjectStore) ReadItems(ctx context.Context, projectID string) ([]models.ProjectItem, error) {
	var items []models.ProjectItem

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(projectKey(projectID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &items)
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	return items, nil
}

// WriteItems replaces the project's item collection wholesale.
func (s *BadgerProjectStore) WriteItems(ctx context.Context, projectID string, items []models.ProjectItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal items: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(projectKey(projectID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write items: %w", err)
	}
	return nil
}

// Close closes the Badger database.
func (s *BadgerProjectStore) Close() error {
	return s.db.Close()
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
