package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds SQL store connection configuration
type Config struct {
	Driver string

	// SQLite
	Path string

	// PostgreSQL
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SQLStore is a Store persisted in a single kv_store table
type SQLStore struct {
	db     *sqlx.DB
	config *Config
	logger *slog.Logger
}

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS kv_store (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)
`

// NewSQLStore opens the database, applies the schema and verifies the connection
func NewSQLStore(config *Config, logger *slog.Logger) (*SQLStore, error) {
	dsn, err := config.dsn()
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to key/value store",
		slog.String("driver", config.Driver),
		slog.String("target", config.target()),
	)

	db, err := sqlx.Connect(config.Driver, dsn)
	if err != nil {
		logger.Error("Failed to connect to key/value store",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Driver, err)
	}

	if config.Driver == DriverSQLite {
		// SQLite allows a single writer; serialize through one connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, createTableQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Key/value store ready",
		slog.String("driver", config.Driver),
	)

	return &SQLStore{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

func (c *Config) dsn() (string, error) {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		return c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	case DriverPostgres:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host,
			c.Port,
			c.User,
			c.Password,
			c.Database,
			c.SSLMode,
		), nil
	default:
		return "", fmt.Errorf("unsupported store driver: %q", c.Driver)
	}
}

func (c *Config) target() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Database)
}

// Get returns the stored value for key
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.db.Rebind(`SELECT value FROM kv_store WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Error("Failed to read key",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return nil, false, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return []byte(value), true, nil
}

// Set upserts the whole value for key
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	query := s.db.Rebind(`
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE
		SET value = excluded.value,
		    updated_at = excluded.updated_at
	`)

	if _, err := s.db.ExecContext(ctx, query, key, string(value), time.Now().UTC()); err != nil {
		s.logger.Error("Failed to write key",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics
func (s *SQLStore) Stats() string {
	stats := s.db.Stats()
	return fmt.Sprintf(
		"MaxOpenConns: %d, OpenConns: %d, InUse: %d, Idle: %d, WaitCount: %d, WaitDuration: %s",
		stats.MaxOpenConnections,
		stats.OpenConnections,
		stats.InUse,
		stats.Idle,
		stats.WaitCount,
		stats.WaitDuration,
	)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	s.logger.Info("Closing key/value store")

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close key/value store",
			slog.Any("error", err),
		)
		return err
	}
	return nil
}
