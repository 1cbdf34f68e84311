// Package kvstore provides the durable key/value byte store that backs the
// scan queue and the results collection.
package kvstore

import (
	"context"
	"errors"
	"log/slog"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("kvstore: store is closed")

// Store is a durable key/value byte store keyed by string.
// Values are replaced as a whole on every Set.
type Store interface {
	// Get returns the value for key; found is false when the key was never set.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// DriverMemory selects the process-local store
const DriverMemory = "memory"

// Open returns the store selected by config.Driver
func Open(config *Config, logger *slog.Logger) (Store, error) {
	if config.Driver == DriverMemory {
		logger.Warn("Using in-memory store; scans are lost on restart")
		return NewMemory(), nil
	}
	store, err := NewSQLStore(config, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}
