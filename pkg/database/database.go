package database

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/property"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens or creates a SQLite database and initializes the schema
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The pragmas below are per connection, so keep exactly one
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	// WAL allows multiple readers while one writer is active
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to 5 seconds
	// If database is locked, retry for up to 5 seconds before failing
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create schema
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	// Run migrations for existing databases
	db := &DB{conn: conn, now: time.Now}
	if err := db.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateTest creates a test holding the given property definitions
func (db *DB) CreateTest(test *model.Test, defs []*property.Descriptor) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := db.now().UTC().Truncate(time.Second)
	id := uuid.NewString()
	_, err = tx.Exec(`
		INSERT INTO tests (id, name, description, release, schema_version, version, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, test.Name, test.Description, test.Release, test.Schema, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: test '%s'", apierr.ErrAlreadyExists, test.Name)
		}
		return fmt.Errorf("failed to create test: %w", err)
	}

	for _, d := range defs {
		origin := property.OriginDefaults
		if d.Value.IsDefined() && !d.Value.IsNull() {
			origin = property.OriginTest
		}
		if err := insertProperty(tx, testPropertyTable, id, d, d.Value, origin); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit test: %w", err)
	}

	test.ID = id
	test.Version = 0
	test.CreatedAt = now
	test.ModifiedAt = now
	test.Properties, err = db.listProperties(testPropertyTable, id)
	return err
}

// CopyTest creates a new test with the properties of src. srcVersion must
// match the current version of src.
func (db *DB) CopyTest(src string, srcVersion int, name, description string) (*model.Test, error) {
	orig, err := db.GetTest(src)
	if err != nil {
		return nil, err
	}
	if orig.Version != srcVersion {
		return nil, fmt.Errorf("%w: test '%s' is at version %d", apierr.ErrConflict, src, orig.Version)
	}

	copied := &model.Test{Name: name, Description: description, Release: orig.Release, Schema: orig.Schema}
	if err := db.CreateTest(copied, orig.Properties); err != nil {
		return nil, err
	}
	return copied, nil
}

// GetTest retrieves a test and its properties by name
func (db *DB) GetTest(name string) (*model.Test, error) {
	test, err := db.getTestRow(name)
	if err != nil {
		return nil, err
	}
	test.Properties, err = db.listProperties(testPropertyTable, test.ID)
	if err != nil {
		return nil, err
	}
	return test, nil
}

func (db *DB) getTestRow(name string) (*model.Test, error) {
	var test model.Test
	var createdAt, modifiedAt string

	err := db.conn.QueryRow(`
		SELECT id, name, description, release, schema_version, version, created_at, modified_at
		FROM tests WHERE name = ?`, name,
	).Scan(
		&test.ID, &test.Name, &test.Description, &test.Release, &test.Schema, &test.Version,
		&createdAt, &modifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: test '%s'", apierr.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	test.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	test.ModifiedAt, _ = time.Parse(time.RFC3339, modifiedAt)
	return &test, nil
}

// ListTests lists tests whose name starts with prefix ("" = all), without
// their properties
func (db *DB) ListTests(prefix string) ([]*model.Test, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, description, release, schema_version, version, created_at, modified_at
		FROM tests ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var tests []*model.Test
	for rows.Next() {
		var test model.Test
		var createdAt, modifiedAt string

		err := rows.Scan(
			&test.ID, &test.Name, &test.Description, &test.Release, &test.Schema, &test.Version,
			&createdAt, &modifiedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}

		test.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		test.ModifiedAt, _ = time.Parse(time.RFC3339, modifiedAt)
		tests = append(tests, &test)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	return lo.Filter(tests, func(t *model.Test, _ int) bool {
		return strings.HasPrefix(t.Name, prefix)
	}), nil
}

// UpdateTest renames and redescribes a test. version must match the
// current version, which is then incremented.
func (db *DB) UpdateTest(oldName string, version int, name, description string) (*model.Test, error) {
	result, err := db.conn.Exec(`
		UPDATE tests
		SET name = ?, description = ?, version = ?, modified_at = ?
		WHERE name = ? AND version = ?`,
		name, description, nextVersion(version), formatTime(db.now()), oldName, version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: test '%s'", apierr.ErrAlreadyExists, name)
		}
		return nil, fmt.Errorf("failed to update test: %w", err)
	}
	if err := db.checkUpdated(result, func() error { _, err := db.getTestRow(oldName); return err }); err != nil {
		return nil, err
	}
	return db.GetTest(name)
}

// DeleteTest deletes a test together with its runs, properties and logs
func (db *DB) DeleteTest(name string) error {
	result, err := db.conn.Exec(`DELETE FROM tests WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: test '%s'", apierr.ErrNotFound, name)
	}
	return nil
}

// checkUpdated turns a versioned update that touched no row into a
// not-found or conflict error, using exists to tell them apart.
func (db *DB) checkUpdated(result sql.Result, exists func() error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := exists(); err != nil {
		return err
	}
	return apierr.ErrConflict
}

// runMigrations applies database schema migrations for existing databases
func (db *DB) runMigrations() error {
	migrations := []struct {
		table, column, decl string
	}{
		{"test_runs", "progress", "REAL NOT NULL DEFAULT 0"},
		{"test_runs", "results_success", "INTEGER NOT NULL DEFAULT 0"},
		{"test_runs", "results_fail", "INTEGER NOT NULL DEFAULT 0"},
	}

	for _, m := range migrations {
		var exists bool
		err := db.conn.QueryRow(`
			SELECT COUNT(*) > 0
			FROM pragma_table_info(?)
			WHERE name = ?
		`, m.table, m.column).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check for %s column: %w", m.column, err)
		}

		if !exists {
			_, err := db.conn.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, m.table, m.column, m.decl))
			if err != nil {
				return fmt.Errorf("failed to add %s column: %w", m.column, err)
			}
		}
	}

	return nil
}

// nextVersion increments a version, wrapping to 1 past the 16-bit range
func nextVersion(version int) int {
	if version >= math.MaxInt16 {
		return 1
	}
	return version + 1
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, _ := time.Parse(time.RFC3339, *s)
	return &t
}
