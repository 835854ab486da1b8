package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/selfieapp/selfie/internal/recurrence"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	// ErrNotFound is the engine's not-found sentinel so callers can match either.
	ErrNotFound     = recurrence.ErrNotFound
	ErrDatabaseInit = errors.New("database initialization failed")
)

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
	"secure_delete(ON)",
	"synchronous(NORMAL)",
}

// DB represents the database connection.
type DB struct {
	conn   *sql.DB
	logger *logrus.Logger
}

// New opens the database at dbPath, creating its directory if needed, and
// applies pending schema migrations.
func New(dbPath string, logger *logrus.Logger) (*DB, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %w", ErrDatabaseInit, err)
	}

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseInit, err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to connect: %w", ErrDatabaseInit, err)
	}

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	// the file may not exist yet in WAL mode
	if err := os.Chmod(dbPath, 0600); err != nil {
		logger.WithError(err).Debug("Could not restrict database file permissions")
	}

	return db, nil
}

func dsn(path string) string {
	params := make([]string, 0, len(pragmas)+1)
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_time_format=sqlite")
	return "file:" + path + "?" + strings.Join(params, "&")
}

// migrate applies the embedded migrations.
func (db *DB) migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("%w: failed to load migrations: %w", ErrDatabaseInit, err)
	}
	defer src.Close()

	driver, err := sqlite.WithInstance(db.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("%w: failed to create migration driver: %w", ErrDatabaseInit, err)
	}

	// m.Close would close the shared connection, so it is left open
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("%w: failed to create migration instance: %w", ErrDatabaseInit, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: migration failed: %w", ErrDatabaseInit, err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		db.logger.WithFields(logrus.Fields{
			"version": version,
			"dirty":   dirty,
		}).Info("Database migrations completed")
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Events returns the event store backed by this database.
func (db *DB) Events() *EventStore {
	return &EventStore{q: db.conn, db: db.conn}
}
