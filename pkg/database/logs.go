package database

import (
	"fmt"
	"time"

	"github.com/mslinn/bm-console/pkg/model"
)

// AddRunLog records a message against a run
func (db *DB) AddRunLog(testName, runName string, level model.LogLevel, msg string) (*model.RunLog, error) {
	run, err := db.getRun(testName, runName, false)
	if err != nil {
		return nil, err
	}

	entry := &model.RunLog{RunID: run.ID, LoggedAt: db.now().UTC().Truncate(time.Second), Level: level, Message: msg}
	result, err := db.conn.Exec(`
		INSERT INTO run_logs (run_id, logged_at, level, message)
		VALUES (?, ?, ?, ?)`,
		entry.RunID, formatTime(entry.LoggedAt), entry.Level, entry.Message,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}

	entry.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return entry, nil
}

// ListRunLogs lists the messages of a run, newest first. A zero since
// returns messages of any age; a limit of 0 or less returns all of them.
func (db *DB) ListRunLogs(testName, runName string, since time.Time, limit int) ([]*model.RunLog, error) {
	run, err := db.getRun(testName, runName, false)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.conn.Query(`
		SELECT id, run_id, logged_at, level, message
		FROM run_logs WHERE run_id = ? AND logged_at >= ?
		ORDER BY id DESC LIMIT ?`,
		run.ID, formatTime(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.RunLog
	for rows.Next() {
		var entry model.RunLog
		var loggedAt string

		if err := rows.Scan(&entry.ID, &entry.RunID, &loggedAt, &entry.Level, &entry.Message); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}

		entry.LoggedAt, _ = time.Parse(time.RFC3339, loggedAt)
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	return logs, nil
}
