package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"natrip-payments/internal/config"
)

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// DB exposes the pool for repositories.
	DB() *sql.DB

	// Dialect reports which SQL flavour the pool speaks.
	Dialect() Dialect

	// Migrate creates the tables this service owns if they are missing.
	Migrate(ctx context.Context) error

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error
}

type service struct {
	db      *sql.DB
	dialect Dialect
	name    string
	log     logrus.FieldLogger
}

// New opens PostgreSQL when DATABASE_URL is set and a local SQLite file
// otherwise.
func New(cfg *config.Config, log logrus.FieldLogger) (Service, error) {
	if cfg.DatabaseURL != "" {
		db, err := OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("database mode: PostgreSQL")
		return Wrap(db, Postgres, "postgres", log), nil
	}

	db, err := OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	log.WithField("path", cfg.SQLitePath).Info("database mode: SQLite")
	return Wrap(db, SQLite, cfg.SQLitePath, log), nil
}

func Wrap(db *sql.DB, dialect Dialect, name string, log logrus.FieldLogger) Service {
	return &service{db: db, dialect: dialect, name: name, log: log}
}

func OpenPostgres(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// OpenSQLite opens the database file at path, creating its directory.
// SQLite allows one writer at a time, so the pool is a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	return openSQLite(fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path))
}

// OpenSQLiteMemory opens a private in-memory database named name.
func OpenSQLiteMemory(name string) (*sql.DB, error) {
	return openSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name))
}

func openSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) Dialect() Dialect {
	return s.dialect
}

func (s *service) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Health checks the health of the database connection by pinging the database.
// It returns a map with keys indicating various health statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)
	stats["dialect"] = string(s.dialect)

	// Ping the database
	err := s.db.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		s.log.WithError(err).Error("database ping failed")
		return stats
	}

	// Database is up, add more statistics
	stats["status"] = "up"
	stats["message"] = "It's healthy"

	// Get database stats (like open connections, in use, idle, etc.)
	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()
	stats["max_idle_closed"] = strconv.FormatInt(dbStats.MaxIdleClosed, 10)
	stats["max_lifetime_closed"] = strconv.FormatInt(dbStats.MaxLifetimeClosed, 10)

	// Evaluate stats to provide a health message
	if dbStats.OpenConnections > 8 {
		stats["message"] = "The database is experiencing heavy load."
	}

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	s.log.WithField("database", s.name).Info("disconnected from database")
	return s.db.Close()
}

// IsUniqueViolation reports whether err is a unique constraint failure from
// either driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
