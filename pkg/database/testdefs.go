package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/property"
)

// WriteTestDef registers the property definitions of a release and schema.
// A pair is written once; a schema older than one already registered for
// the release is refused.
func (db *DB) WriteTestDef(def *model.TestDef) error {
	var latest sql.NullInt64
	err := db.conn.QueryRow(`SELECT MAX(schema_version) FROM test_defs WHERE release = ?`, def.Release).Scan(&latest)
	if err != nil {
		return fmt.Errorf("failed to look up test definitions: %w", err)
	}
	if latest.Valid && int64(def.Schema) < latest.Int64 {
		return fmt.Errorf("%w: schema %d of release '%s' is older than the registered schema %d",
			apierr.ErrInvalid, def.Schema, def.Release, latest.Int64)
	}

	defs := make([]*property.Descriptor, len(def.Properties))
	for i, d := range def.Properties {
		defs[i] = definitionOnly(d)
	}
	data, err := json.Marshal(defs)
	if err != nil {
		return fmt.Errorf("failed to encode test definition: %w", err)
	}

	now := db.now().UTC().Truncate(time.Second)
	_, err = db.conn.Exec(`
		INSERT INTO test_defs (release, schema_version, description, properties, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		def.Release, def.Schema, def.Description, string(data), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: test definition '%s' schema %d", apierr.ErrAlreadyExists, def.Release, def.Schema)
		}
		return fmt.Errorf("failed to write test definition: %w", err)
	}
	def.CreatedAt = now
	return nil
}

// GetTestDef returns a registered test definition with its properties
func (db *DB) GetTestDef(release string, schema int) (*model.TestDef, error) {
	var def model.TestDef
	var props, createdAt string
	err := db.conn.QueryRow(`
		SELECT release, schema_version, description, properties, created_at
		FROM test_defs WHERE release = ? AND schema_version = ?`, release, schema,
	).Scan(&def.Release, &def.Schema, &def.Description, &props, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: test definition '%s' schema %d", apierr.ErrNotFound, release, schema)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test definition: %w", err)
	}

	if err := json.Unmarshal([]byte(props), &def.Properties); err != nil {
		return nil, fmt.Errorf("failed to decode test definition: %w", err)
	}
	for _, d := range def.Properties {
		d.Origin = property.OriginDefaults
	}
	def.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &def, nil
}

// ListTestDefs lists test definitions without their properties, ordered by
// release and schema. activeOnly keeps those with an active driver; a
// count of zero or less means no limit.
func (db *DB) ListTestDefs(activeOnly bool, skip, count int) ([]*model.TestDef, error) {
	query := `SELECT td.release, td.schema_version, td.description, td.created_at FROM test_defs td`
	var args []interface{}
	if activeOnly {
		query += ` WHERE EXISTS (
			SELECT 1 FROM drivers d
			WHERE d.release = td.release AND d.schema_version = td.schema_version AND d.expires_at > ?)`
		args = append(args, formatTime(db.now()))
	}
	if count <= 0 {
		count = -1
	}
	query += ` ORDER BY td.release, td.schema_version LIMIT ? OFFSET ?`
	args = append(args, count, max(skip, 0))

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list test definitions: %w", err)
	}
	defer rows.Close()

	defs := []*model.TestDef{}
	for rows.Next() {
		var def model.TestDef
		var createdAt string
		if err := rows.Scan(&def.Release, &def.Schema, &def.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan test definition: %w", err)
		}
		def.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		defs = append(defs, &def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list test definitions: %w", err)
	}
	return defs, nil
}
