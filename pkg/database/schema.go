package database

const schema = `
CREATE TABLE IF NOT EXISTS tests (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    release TEXT NOT NULL DEFAULT '',
    schema_version INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    modified_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS test_runs (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    scheduled_at TEXT,
    started_at TEXT,
    stopped_at TEXT,
    completed_at TEXT,
    created_at TEXT NOT NULL,
    UNIQUE (test_id, name),
    FOREIGN KEY (test_id) REFERENCES tests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS test_properties (
    test_id TEXT NOT NULL,
    name TEXT NOT NULL,
    definition TEXT NOT NULL,
    value TEXT,
    version INTEGER NOT NULL DEFAULT 0,
    origin TEXT NOT NULL,
    PRIMARY KEY (test_id, name),
    FOREIGN KEY (test_id) REFERENCES tests(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS run_properties (
    run_id TEXT NOT NULL,
    name TEXT NOT NULL,
    definition TEXT NOT NULL,
    value TEXT,
    version INTEGER NOT NULL DEFAULT 0,
    origin TEXT NOT NULL,
    PRIMARY KEY (run_id, name),
    FOREIGN KEY (run_id) REFERENCES test_runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS run_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    logged_at TEXT NOT NULL,
    level TEXT NOT NULL,
    message TEXT NOT NULL,
    FOREIGN KEY (run_id) REFERENCES test_runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS test_defs (
    release TEXT NOT NULL,
    schema_version INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    properties TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (release, schema_version)
);

CREATE TABLE IF NOT EXISTS drivers (
    id TEXT PRIMARY KEY,
    release TEXT NOT NULL,
    schema_version INTEGER NOT NULL,
    ip_address TEXT NOT NULL DEFAULT '',
    hostname TEXT NOT NULL DEFAULT '',
    registered_at TEXT NOT NULL,
    expires_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_test_runs_test ON test_runs(test_id);
CREATE INDEX IF NOT EXISTS idx_run_logs_run ON run_logs(run_id, logged_at);
CREATE INDEX IF NOT EXISTS idx_drivers_release ON drivers(release, schema_version, expires_at);
`
