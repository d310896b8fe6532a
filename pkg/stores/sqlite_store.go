package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/veriflow/veriflow/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore is a SQLite-backed artifact store. Messages are stored as JSON;
// write-once is enforced by the primary key on (run_id, artifact_id).
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// SQLiteConfig holds SQLite store configuration.
type SQLiteConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance. Call Init before use.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate runs the embedded schema migrations.
func (s *SQLiteStore) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Save persists a message under (runID, artifactID), enforcing write-once.
func (s *SQLiteStore) Save(ctx context.Context, runID, artifactID string, msg engine.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, artifact_id, message, created_at) VALUES (?, ?, ?, ?)`,
		runID, artifactID, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("artifact %q already written for run %q", artifactID, runID)
		}
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// Get retrieves the message stored under (runID, artifactID).
func (s *SQLiteStore) Get(ctx context.Context, runID, artifactID string) (engine.Message, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT message FROM artifacts WHERE run_id = ? AND artifact_id = ?`,
		runID, artifactID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Message{}, fmt.Errorf("artifact %q not found for run %q", artifactID, runID)
	}
	if err != nil {
		return engine.Message{}, fmt.Errorf("failed to load artifact: %w", err)
	}

	var msg engine.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return engine.Message{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return msg, nil
}

// List returns the artifact IDs stored for a run in insertion order.
func (s *SQLiteStore) List(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_id FROM artifacts WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan artifact ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isUniqueViolation reports whether the error is a SQLite unique constraint
// failure. modernc.org/sqlite surfaces these as plain errors, so the check is
// by message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
