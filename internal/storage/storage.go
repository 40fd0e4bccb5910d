// Package storage opens the embedded BoltDB file shared by the sandbox and
// the rate limiter.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Open opens (creating if needed) the database at path
func Open(path string) (*bolt.DB, error) {
	return open(path, false)
}

// OpenReadOnly opens an existing database without taking the write lock,
// for CLI inspection while the server holds it.
func OpenReadOnly(path string) (*bolt.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return open(path, true)
}

func open(path string, readOnly bool) (*bolt.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path is empty")
	}

	if !readOnly {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:  5 * time.Second,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
