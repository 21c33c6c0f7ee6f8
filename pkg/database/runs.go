package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/mslinn/bm-console/pkg/apierr"
	"github.com/mslinn/bm-console/pkg/model"
	"github.com/mslinn/bm-console/pkg/property"
)

const runColumns = `r.id, t.name, r.name, r.description, r.version, r.state,
	r.scheduled_at, r.started_at, r.stopped_at, r.completed_at,
	r.progress, r.results_success, r.results_fail, r.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var scheduledAt, startedAt, stoppedAt, completedAt *string
	var createdAt string

	err := row.Scan(
		&run.ID, &run.Test, &run.Name, &run.Description, &run.Version, &run.State,
		&scheduledAt, &startedAt, &stoppedAt, &completedAt,
		&run.Progress, &run.ResultsSuccess, &run.ResultsFail, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	run.ScheduledAt = parseTimePtr(scheduledAt)
	run.StartedAt = parseTimePtr(startedAt)
	run.StoppedAt = parseTimePtr(stoppedAt)
	run.CompletedAt = parseTimePtr(completedAt)
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &run, nil
}

// CreateRun creates a run of test. The run starts with a copy of the test's
// current property values.
func (db *DB) CreateRun(testName string, run *model.Run) error {
	test, err := db.GetTest(testName)
	if err != nil {
		return err
	}

	props := make([]*property.Descriptor, len(test.Properties))
	for i, d := range test.Properties {
		c := d.Clone()
		c.Origin = property.OriginDefaults
		if c.Value.IsDefined() {
			c.Origin = property.OriginTest
		}
		props[i] = c
	}

	if _, err := db.insertRun(test.ID, run.Name, run.Description, props); err != nil {
		return err
	}

	created, err := db.getRun(testName, run.Name, true)
	if err != nil {
		return err
	}
	*run = *created
	return nil
}

// CopyRun creates a new run of test with the properties of src. srcVersion
// must match the current version of src.
func (db *DB) CopyRun(testName, src string, srcVersion int, name, description string) (*model.Run, error) {
	orig, err := db.getRun(testName, src, true)
	if err != nil {
		return nil, err
	}
	if orig.Version != srcVersion {
		return nil, fmt.Errorf("%w: run '%s.%s' is at version %d", apierr.ErrConflict, testName, src, orig.Version)
	}

	test, err := db.getTestRow(testName)
	if err != nil {
		return nil, err
	}
	if _, err := db.insertRun(test.ID, name, description, orig.Properties); err != nil {
		return nil, err
	}
	return db.getRun(testName, name, true)
}

func (db *DB) insertRun(testID, name, description string, props []*property.Descriptor) (string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.Exec(`
		INSERT INTO test_runs (id, test_id, name, description, version, state, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, testID, name, description, model.StateNotScheduled, formatTime(db.now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: run '%s'", apierr.ErrAlreadyExists, name)
		}
		return "", fmt.Errorf("failed to create test run: %w", err)
	}

	for _, d := range props {
		if err := insertProperty(tx, runPropertyTable, id, d, d.Value, d.Origin); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit test run: %w", err)
	}
	return id, nil
}

// GetRun retrieves a test run and its properties
func (db *DB) GetRun(testName, runName string) (*model.Run, error) {
	return db.getRun(testName, runName, true)
}

// GetRunSummary retrieves a test run without its properties
func (db *DB) GetRunSummary(testName, runName string) (*model.Run, error) {
	return db.getRun(testName, runName, false)
}

func (db *DB) getRun(testName, runName string, withProperties bool) (*model.Run, error) {
	run, err := scanRun(db.conn.QueryRow(`
		SELECT `+runColumns+`
		FROM test_runs r JOIN tests t ON t.id = r.test_id
		WHERE t.name = ? AND r.name = ?`, testName, runName,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run '%s.%s'", apierr.ErrNotFound, testName, runName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test run: %w", err)
	}

	if withProperties {
		run.Properties, err = db.listProperties(runPropertyTable, run.ID)
		if err != nil {
			return nil, err
		}
	}
	return run, nil
}

// ListRuns lists the runs of a test, optionally filtered by state ("" = all)
func (db *DB) ListRuns(testName string, state model.RunState) ([]*model.Run, error) {
	if _, err := db.getTestRow(testName); err != nil {
		return nil, err
	}

	query := `SELECT ` + runColumns + `
		FROM test_runs r JOIN tests t ON t.id = r.test_id
		WHERE t.name = ?`
	args := []interface{}{testName}
	if state != "" {
		query += ` AND r.state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY r.created_at DESC, r.name`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list test runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list test runs: %w", err)
	}
	return runs, nil
}

// UpdateRun renames and redescribes a run. version must match the current
// version, which is then incremented.
func (db *DB) UpdateRun(testName, oldName string, version int, name, description string) (*model.Run, error) {
	current, err := db.getRun(testName, oldName, false)
	if err != nil {
		return nil, err
	}

	result, err := db.conn.Exec(`
		UPDATE test_runs SET name = ?, description = ?, version = ?
		WHERE id = ? AND version = ?`,
		name, description, nextVersion(version), current.ID, version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: run '%s.%s'", apierr.ErrAlreadyExists, testName, name)
		}
		return nil, fmt.Errorf("failed to update test run: %w", err)
	}
	if err := db.checkUpdated(result, db.runExists(current)); err != nil {
		return nil, err
	}
	return db.getRun(testName, name, true)
}

// DeleteRun deletes a run together with its properties and logs
func (db *DB) DeleteRun(testName, runName string) error {
	run, err := db.getRun(testName, runName, false)
	if err != nil {
		return err
	}
	if _, err := db.conn.Exec(`DELETE FROM test_runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to delete test run: %w", err)
	}
	return nil
}

// ScheduleRun schedules a run to start at the given time. An active driver
// must serve the test's release and schema, every property must hold a
// legal value and none may still carry the "--" placeholder.
func (db *DB) ScheduleRun(testName, runName string, version int, at time.Time) (*model.Run, error) {
	run, err := db.getRun(testName, runName, true)
	if err != nil {
		return nil, err
	}
	if !run.State.CanTransition(model.StateScheduled) {
		return nil, stateError(run, model.StateScheduled)
	}
	if run.Version != version {
		return nil, fmt.Errorf("%w: run '%s.%s' is at version %d", apierr.ErrConflict, testName, runName, run.Version)
	}
	if err := db.checkDriverPresent(testName); err != nil {
		return nil, err
	}
	if err := checkRunnable(run.Properties); err != nil {
		return nil, fmt.Errorf("%w: run '%s.%s' cannot be scheduled: %v", apierr.ErrInvalid, testName, runName, err)
	}

	return db.updateRunState(run, model.StateScheduled, map[string]*time.Time{"scheduled_at": &at})
}

func checkRunnable(props []*property.Descriptor) error {
	var result *multierror.Error
	for _, d := range props {
		if need, msg := property.NeedsAttention(d); need {
			result = multierror.Append(result, errors.New(msg))
			continue
		}
		c := d.Clone()
		c.Value = d.EffectiveValue()
		if err := property.Validate(c).Err(d.Name); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", d.Name, err))
		}
	}
	return result.ErrorOrNil()
}

// TerminateRun stops a started run, or returns a scheduled run to the
// unscheduled state.
func (db *DB) TerminateRun(testName, runName string) (*model.Run, error) {
	run, err := db.getRun(testName, runName, false)
	if err != nil {
		return nil, err
	}

	now := db.now()
	switch run.State {
	case model.StateScheduled:
		return db.updateRunState(run, model.StateNotScheduled, map[string]*time.Time{"scheduled_at": nil})
	case model.StateStarted:
		return db.updateRunState(run, model.StateStopped, map[string]*time.Time{"stopped_at": &now})
	}
	return nil, stateError(run, model.StateStopped)
}

// ReportProgress records driver progress for a run. The first report starts
// a scheduled run; a progress of 1 or more completes it.
func (db *DB) ReportProgress(testName, runName string, progress float64, success, fail int64) (*model.Run, error) {
	run, err := db.getRun(testName, runName, false)
	if err != nil {
		return nil, err
	}

	now := db.now()
	next := model.StateStarted
	stamps := map[string]*time.Time{}
	if run.StartedAt == nil {
		stamps["started_at"] = &now
	}
	progress = max(0, min(progress, 1))
	if progress >= 1 {
		next = model.StateCompleted
		stamps["completed_at"] = &now
	}
	// a scheduled run passes through STARTED on its first report; a
	// completed one takes no more
	from := run.State
	if from == model.StateScheduled {
		from = model.StateStarted
	}
	if run.State == model.StateCompleted || !from.CanTransition(next) {
		return nil, stateError(run, next)
	}

	return db.updateRunState(run, next, stamps,
		assignment{"progress", progress},
		assignment{"results_success", success},
		assignment{"results_fail", fail},
	)
}

// assignment is one extra column written with a state change
type assignment struct {
	column string
	value  any
}

// updateRunState moves run to state, setting the given timestamp and other
// columns in one statement guarded by the run's current version.
func (db *DB) updateRunState(run *model.Run, state model.RunState, stamps map[string]*time.Time, set ...assignment) (*model.Run, error) {
	query := `UPDATE test_runs SET state = ?, version = ?`
	args := []interface{}{state, nextVersion(run.Version)}
	for _, column := range []string{"scheduled_at", "started_at", "stopped_at", "completed_at"} {
		if t, ok := stamps[column]; ok {
			query += `, ` + column + ` = ?`
			args = append(args, formatTimePtr(t))
		}
	}
	for _, a := range set {
		query += `, ` + a.column + ` = ?`
		args = append(args, a.value)
	}
	query += ` WHERE id = ? AND version = ?`
	args = append(args, run.ID, run.Version)

	result, err := db.conn.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update test run state: %w", err)
	}
	if err := db.checkUpdated(result, db.runExists(run)); err != nil {
		return nil, err
	}
	return db.getRun(run.Test, run.Name, false)
}

// runExists reports a deleted run as not found
func (db *DB) runExists(run *model.Run) func() error {
	return func() error {
		var n int
		if err := db.conn.QueryRow(`SELECT COUNT(*) FROM test_runs WHERE id = ?`, run.ID).Scan(&n); err != nil {
			return fmt.Errorf("failed to look up test run: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: run '%s.%s'", apierr.ErrNotFound, run.Test, run.Name)
		}
		return nil
	}
}

func stateError(run *model.Run, next model.RunState) error {
	return fmt.Errorf("%w: run '%s.%s' cannot move from %s to %s", apierr.ErrReadOnly, run.Test, run.Name, run.State, next)
}
