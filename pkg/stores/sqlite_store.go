package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/confmod/confmod/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.Store using SQLite. Config objects are
// stored as JSON blobs with a version counter bumped on every write.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// GetObject retrieves a config object by name.
func (s *SQLiteStore) GetObject(ctx context.Context, name string) (engine.ConfigTree, error) {
	query := `SELECT tree FROM config_objects WHERE name = ?`

	var blob string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, engine.NewPermanentError("config object not found", nil).
			WithCode(engine.ErrCodeNotFound).WithObject(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config object: %w", err)
	}

	return decodeTree(blob)
}

// PutObject writes a whole config object in one durable write, inserting or
// replacing and bumping the version counter.
func (s *SQLiteStore) PutObject(ctx context.Context, name string, tree engine.ConfigTree) error {
	blob, err := encodeTree(tree)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO config_objects (name, tree, version, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			tree = excluded.tree,
			version = config_objects.version + 1,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, name, blob, now, now); err != nil {
		return fmt.Errorf("failed to put config object: %w", err)
	}
	return nil
}

// DeleteObject removes a config object. Missing objects are not an error.
func (s *SQLiteStore) DeleteObject(ctx context.Context, name string) error {
	query := `DELETE FROM config_objects WHERE name = ?`

	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to delete config object: %w", err)
	}
	return nil
}

// ListObjectNames returns the names of all stored config objects.
func (s *SQLiteStore) ListObjectNames(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM config_objects ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list config objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan config object name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate config objects: %w", err)
	}

	return names, nil
}

// HasObject reports whether a config object exists.
func (s *SQLiteStore) HasObject(ctx context.Context, name string) (bool, error) {
	query := `SELECT 1 FROM config_objects WHERE name = ?`

	var one int
	err := s.db.QueryRowContext(ctx, query, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check config object: %w", err)
	}
	return true, nil
}

// UpdateObject applies fn to the current value of the object (nil map if
// absent) and persists the result within a single serializable transaction.
func (s *SQLiteStore) UpdateObject(ctx context.Context, name string, fn func(engine.ConfigTree) (engine.ConfigTree, error)) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current engine.ConfigTree
	var blob string
	err = tx.QueryRowContext(ctx, `SELECT tree FROM config_objects WHERE name = ?`, name).Scan(&blob)
	switch {
	case err == sql.ErrNoRows:
		// fn sees nil for an absent object
	case err != nil:
		return fmt.Errorf("failed to read config object: %w", err)
	default:
		if current, err = decodeTree(blob); err != nil {
			return err
		}
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}

	encoded, err := encodeTree(updated)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO config_objects (name, tree, version, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			tree = excluded.tree,
			version = config_objects.version + 1,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	if _, err := tx.ExecContext(ctx, query, name, encoded, now, now); err != nil {
		return fmt.Errorf("failed to update config object: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit config object update: %w", err)
	}
	return nil
}

// RecordCycle persists a cycle summary for status reporting.
func (s *SQLiteStore) RecordCycle(ctx context.Context, result *engine.CycleResult) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode cycle result: %w", err)
	}

	query := `
		INSERT INTO cycles (id, trigger_component, result, started_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		result.ID,
		result.Trigger.Component,
		string(blob),
		result.Trigger.Time,
		time.Now(),
	); err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}
	return nil
}

// ListCycles returns the most recent cycle summaries, newest first.
func (s *SQLiteStore) ListCycles(ctx context.Context, limit int) ([]*engine.CycleResult, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT result FROM cycles ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*engine.CycleResult
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		result := &engine.CycleResult{}
		if err := json.Unmarshal([]byte(blob), result); err != nil {
			return nil, fmt.Errorf("failed to decode cycle result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycles: %w", err)
	}

	return results, nil
}

func encodeTree(tree engine.ConfigTree) (string, error) {
	blob, err := json.Marshal(tree)
	if err != nil {
		return "", fmt.Errorf("failed to encode config object: %w", err)
	}
	return string(blob), nil
}

func decodeTree(blob string) (engine.ConfigTree, error) {
	var tree engine.ConfigTree
	if err := json.Unmarshal([]byte(blob), &tree); err != nil {
		return nil, fmt.Errorf("failed to decode config object: %w", err)
	}
	return tree, nil
}
