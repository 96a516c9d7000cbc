package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedded embed.FS

// Dialect captures the SQL differences the migrator cares about
type Dialect struct {
	Name         string
	AppliedAtSQL string
	placeholders [2]string
}

// Known dialects
var (
	SQLite = Dialect{
		Name:         DriverSQLite,
		AppliedAtSQL: "DATETIME DEFAULT CURRENT_TIMESTAMP",
		placeholders: [2]string{"?", "?"},
	}
	Postgres = Dialect{
		Name:         DriverPostgres,
		AppliedAtSQL: "TIMESTAMPTZ DEFAULT NOW()",
		placeholders: [2]string{"$1", "$2"},
	}
)

// EmbeddedMigrations returns the bundled schema for a driver
func EmbeddedMigrations(driver string) (fs.FS, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return fs.Sub(embedded, path.Join("migrations", driver))
}

// Migration is one versioned schema file
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies schema files in version order and records them in schema_migrations
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// RunMigrations applies every migration in fsys that is not yet recorded
func (m *Migrator) RunMigrations(fsys fs.FS) error {
	log := m.logger.With(zap.String("dialect", m.db.Dialect.Name))

	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	done, err := m.appliedVersions()
	if err != nil {
		return err
	}

	pending := 0
	for _, mig := range migrations {
		if slices.Contains(done, mig.Version) {
			continue
		}
		log.Info("Applying migration", zap.Int("version", mig.Version), zap.String("name", mig.Name))
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		pending++
	}

	log.Info("Schema up to date", zap.Int("applied", pending), zap.Int("known", len(migrations)))
	return nil
}

// appliedVersions ensures the bookkeeping table exists and lists recorded versions
func (m *Migrator) appliedVersions() ([]int, error) {
	ddl := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at ` + m.db.Dialect.AppliedAtSQL + `
	)`
	if _, err := m.db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (m *Migrator) apply(mig Migration) error {
	record := fmt.Sprintf("INSERT INTO schema_migrations (version, name) VALUES (%s, %s)",
		m.db.Dialect.placeholders[0], m.db.Dialect.placeholders[1])

	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mig.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(record, mig.Version, mig.Name)
		return err
	})
}

// LoadMigrations reads "<version>_<name>.sql" files from the root of fsys, sorted by version
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	migrations := make([]Migration, 0, len(files))
	for _, file := range files {
		prefix, rest, _ := strings.Cut(strings.TrimSuffix(file, ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: file name must start with a version number", file)
		}
		if slices.ContainsFunc(migrations, func(o Migration) bool { return o.Version == version }) {
			return nil, fmt.Errorf("migration %s: version %d defined twice", file, version)
		}

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: rest, SQL: string(body)})
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}
