package backend

import (
	"context"

	"ledger/internal/ledger"
)

// BackendType names a ledger store implementation.
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (t BackendType) String() string {
	return string(t)
}

// IsValid reports whether t is a known backend.
func (t BackendType) IsValid() bool {
	switch t {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store and the function that releases it.
type BackendResult struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens the store described by config, migrating it when
	// the backend has a schema.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string

	// DataDirectory holds optional memory seed files.
	DataDirectory string
}
