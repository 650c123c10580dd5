package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// SQLStore implements Store on top of sqlx. It runs against SQLite
// (modernc) or PostgreSQL (pgx); queries are written with ? placeholders
// and rebound for the active driver.
type SQLStore struct {
	db     *sqlx.DB
	sealer Sealer
	now    func() time.Time
}

// Option configures a SQLStore.
type Option func(*SQLStore)

// WithSealer seals account credentials before they are written.
func WithSealer(s Sealer) Option {
	return func(st *SQLStore) { st.sealer = s }
}

// Open connects to the database and runs any pending migrations.
func Open(driver, dsn string, opts ...Option) (*SQLStore, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	if driver == DriverSQLite {
		// One connection: SQLite has a single writer, and an in-memory
		// database lives only as long as its connection.
		db.SetMaxOpenConns(1)

		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	s := &SQLStore{db: db, sealer: plainSealer{}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.runMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLStore, error) {
	return Open(DriverSQLite, dbPath, opts...)
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// runMigrations applies outstanding migrations in order, each in its
// own transaction.
func (s *SQLStore) runMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.GetContext(ctx, &current,
		"SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLStore) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"),
		m.version, s.now().UTC(),
	); err != nil {
		return fmt.Errorf("recording migration v%d: %w", m.version, err)
	}

	return tx.Commit()
}

// q rebinds a ?-placeholder query for the active driver.
func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

// isUniqueViolation reports whether err is a uniqueness constraint
// failure from either supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
