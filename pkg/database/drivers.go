package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/model"
)

// DefaultDriverTTL is how long a registration stays active without refresh
const DefaultDriverTTL = time.Minute

const driverColumns = `id, release, schema_version, ip_address, hostname, registered_at, expires_at`

func scanDriver(row scanner) (*model.Driver, error) {
	var d model.Driver
	var registeredAt, expiresAt string
	if err := row.Scan(&d.ID, &d.Release, &d.Schema, &d.IPAddress, &d.Hostname, &registeredAt, &expiresAt); err != nil {
		return nil, err
	}
	d.Registered, _ = time.Parse(time.RFC3339, registeredAt)
	d.Expires, _ = time.Parse(time.RFC3339, expiresAt)
	return &d, nil
}

// RegisterDriver records a driver for d.Release and d.Schema, active for
// ttl. The ID, registration time and expiry are filled in.
func (db *DB) RegisterDriver(d *model.Driver, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultDriverTTL
	}
	now := db.now().UTC().Truncate(time.Second)
	d.ID = uuid.NewString()
	d.Registered = now
	d.Expires = now.Add(ttl)

	_, err := db.conn.Exec(`
		INSERT INTO drivers (`+driverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Release, d.Schema, d.IPAddress, d.Hostname, formatTime(d.Registered), formatTime(d.Expires),
	)
	if err != nil {
		return fmt.Errorf("failed to register driver: %w", err)
	}
	return nil
}

// RefreshDriver keeps a driver active for another ttl
func (db *DB) RefreshDriver(id string, ttl time.Duration) (*model.Driver, error) {
	if ttl <= 0 {
		ttl = DefaultDriverTTL
	}
	expires := db.now().UTC().Truncate(time.Second).Add(ttl)
	result, err := db.conn.Exec(`UPDATE drivers SET expires_at = ? WHERE id = ?`, formatTime(expires), id)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh driver: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: driver '%s'", apierr.ErrNotFound, id)
	}
	return db.GetDriver(id)
}

// GetDriver returns a registered driver
func (db *DB) GetDriver(id string) (*model.Driver, error) {
	d, err := scanDriver(db.conn.QueryRow(`SELECT `+driverColumns+` FROM drivers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: driver '%s'", apierr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return d, nil
}

// UnregisterDriver removes a driver registration
func (db *DB) UnregisterDriver(id string) error {
	result, err := db.conn.Exec(`DELETE FROM drivers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to unregister driver: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: driver '%s'", apierr.ErrNotFound, id)
	}
	return nil
}

// ListDrivers lists drivers ordered by release, schema and registration
func (db *DB) ListDrivers(f model.DriverFilter) ([]*model.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE 1 = 1`
	var args []interface{}
	if f.Release != "" {
		query += ` AND release = ?`
		args = append(args, f.Release)
	}
	if f.Schema != nil {
		query += ` AND schema_version = ?`
		args = append(args, *f.Schema)
	}
	if f.ActiveOnly {
		query += ` AND expires_at > ?`
		args = append(args, formatTime(db.now()))
	}
	query += ` ORDER BY release, schema_version, registered_at, id`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()

	drivers := []*model.Driver{}
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	return drivers, nil
}

// TestDrivers lists the drivers serving the release and schema of a test
func (db *DB) TestDrivers(testName string, activeOnly bool) ([]*model.Driver, error) {
	test, err := db.getTestRow(testName)
	if err != nil {
		return nil, err
	}
	return db.ListDrivers(model.DriverFilter{Release: test.Release, Schema: &test.Schema, ActiveOnly: activeOnly})
}

func (db *DB) checkDriverPresent(testName string) error {
	drivers, err := db.TestDrivers(testName, true)
	if err != nil {
		return err
	}
	if len(drivers) == 0 {
		return fmt.Errorf("%w: Unable to start test '%s': there is no driver present", apierr.ErrInvalid, testName)
	}
	return nil
}
