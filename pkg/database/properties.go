package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/property"
)

type propertyTable struct {
	name  string
	owner string
}

var (
	testPropertyTable = propertyTable{name: "test_properties", owner: "test_id"}
	runPropertyTable  = propertyTable{name: "run_properties", owner: "run_id"}
)

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertProperty(tx execer, table propertyTable, ownerID string, d *property.Descriptor, value property.Value, origin property.Origin) error {
	def, err := encodeDefinition(d)
	if err != nil {
		return err
	}
	val, err := encodeValue(value)
	if err != nil {
		return err
	}
	if origin == "" {
		origin = property.OriginDefaults
	}

	_, err = tx.Exec(`
		INSERT INTO `+table.name+` (`+table.owner+`, name, definition, value, version, origin)
		VALUES (?, ?, ?, ?, 0, ?)`,
		ownerID, d.Name, def, val, origin,
	)
	if err != nil {
		return fmt.Errorf("failed to create property '%s': %w", d.Name, err)
	}
	return nil
}

func (db *DB) listProperties(table propertyTable, ownerID string) ([]*property.Descriptor, error) {
	rows, err := db.conn.Query(`
		SELECT definition, value, version, origin
		FROM `+table.name+` WHERE `+table.owner+` = ? ORDER BY rowid`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	props := []*property.Descriptor{}
	for rows.Next() {
		d, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return props, nil
}

func (db *DB) getPropertyRow(table propertyTable, ownerID, name string) (*property.Descriptor, error) {
	d, err := scanProperty(db.conn.QueryRow(`
		SELECT definition, value, version, origin
		FROM `+table.name+` WHERE `+table.owner+` = ? AND name = ?`, ownerID, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: property '%s'", apierr.ErrNotFound, name)
	}
	return d, err
}

func scanProperty(row scanner) (*property.Descriptor, error) {
	var def string
	var value *string
	var d property.Descriptor

	if err := row.Scan(&def, &value, &d.Version, &d.Origin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan property: %w", err)
	}

	version, origin := d.Version, d.Origin
	if err := json.Unmarshal([]byte(def), &d); err != nil {
		return nil, fmt.Errorf("failed to decode property definition: %w", err)
	}
	d.Version, d.Origin = version, origin

	if value != nil {
		if err := json.Unmarshal([]byte(*value), &d.Value); err != nil {
			return nil, fmt.Errorf("failed to decode value of property '%s': %w", d.Name, err)
		}
	}
	return &d, nil
}

// definitionOnly strips the editing state from d, leaving its metadata
func definitionOnly(d *property.Descriptor) *property.Descriptor {
	c := d.Clone()
	c.Value = property.Undefined
	c.CancelValue = property.Undefined
	c.Version = 0
	c.Origin = ""
	c.ValidationFail = false
	c.ValidationMessage = ""
	return c
}

// encodeDefinition stores the metadata of d; value, version and origin live
// in their own columns
func encodeDefinition(d *property.Descriptor) (string, error) {
	data, err := json.Marshal(definitionOnly(d))
	if err != nil {
		return "", fmt.Errorf("failed to encode property '%s': %w", d.Name, err)
	}
	return string(data), nil
}

func encodeValue(v property.Value) (*string, error) {
	if !v.IsDefined() || v.IsNull() {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode property value: %w", err)
	}
	s := string(data)
	return &s, nil
}

// GetProperty returns a property of a test, or of one of its runs when
// runName is not empty
func (db *DB) GetProperty(testName, runName, name string) (*property.Descriptor, error) {
	table, ownerID, _, err := db.propertyOwner(testName, runName)
	if err != nil {
		return nil, err
	}
	return db.getPropertyRow(table, ownerID, name)
}

// SetProperty stores a new value for a property of a test or run. version
// must match the stored version; the stored version then moves to the next
// one, wrapping to 1 past 32767. A nil value resets the property: test
// properties fall back to their default, run properties to the test's
// value. The stored descriptor is returned so the caller can adopt its
// version.
func (db *DB) SetProperty(testName, runName, name string, version int, value *property.Value) (*property.Descriptor, error) {
	table, ownerID, run, err := db.propertyOwner(testName, runName)
	if err != nil {
		return nil, err
	}
	if run != nil && run.ReadOnly() {
		return nil, fmt.Errorf("%w: run '%s.%s' is %s", apierr.ErrReadOnly, testName, runName, run.State)
	}

	current, err := db.getPropertyRow(table, ownerID, name)
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, fmt.Errorf("%w: property '%s' is at version %d", apierr.ErrConflict, name, current.Version)
	}

	newValue, origin := property.Undefined, property.OriginDefaults
	switch {
	case value != nil:
		newValue = *value
		origin = property.OriginTest
		if run != nil {
			origin = property.OriginRun
		}
	case run != nil:
		inherited, err := db.GetProperty(testName, "", name)
		if err != nil && !errors.Is(err, apierr.ErrNotFound) {
			return nil, err
		}
		if inherited != nil && inherited.Value.IsDefined() {
			newValue, origin = inherited.Value, property.OriginTest
		}
	}
	val, err := encodeValue(newValue)
	if err != nil {
		return nil, err
	}

	result, err := db.conn.Exec(`
		UPDATE `+table.name+` SET value = ?, version = ?, origin = ?
		WHERE `+table.owner+` = ? AND name = ? AND version = ?`,
		val, nextVersion(version), origin, ownerID, name, version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set property: %w", err)
	}
	exists := func() error {
		_, err := db.getPropertyRow(table, ownerID, name)
		return err
	}
	if err := db.checkUpdated(result, exists); err != nil {
		return nil, err
	}
	return db.getPropertyRow(table, ownerID, name)
}

func (db *DB) propertyOwner(testName, runName string) (propertyTable, string, *model.Run, error) {
	if runName == "" {
		test, err := db.getTestRow(testName)
		if err != nil {
			return propertyTable{}, "", nil, err
		}
		return testPropertyTable, test.ID, nil, nil
	}
	run, err := db.getRun(testName, runName, false)
	if err != nil {
		return propertyTable{}, "", nil, err
	}
	return runPropertyTable, run.ID, run, nil
}
