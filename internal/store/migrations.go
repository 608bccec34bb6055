package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
//
// Timestamps are stored as INTEGER unix nanoseconds so that ordering and
// range predicates compare numerically.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	timestamp   INTEGER NOT NULL,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	type        TEXT NOT NULL,
	priority    INTEGER NOT NULL DEFAULT 1 CHECK(priority BETWEEN 0 AND 3),
	icon        TEXT,
	metadata    TEXT,
	user_choice TEXT
);

CREATE INDEX IF NOT EXISTS idx_notifications_timestamp ON notifications(timestamp);
CREATE INDEX IF NOT EXISTS idx_notifications_type ON notifications(type);

CREATE TABLE IF NOT EXISTS work_sessions (
	id           TEXT PRIMARY KEY,
	project_name TEXT NOT NULL,
	start_time   INTEGER NOT NULL,
	end_time     INTEGER,
	CHECK(end_time IS NULL OR end_time >= start_time)
);

CREATE INDEX IF NOT EXISTS idx_work_sessions_start ON work_sessions(start_time);
CREATE INDEX IF NOT EXISTS idx_work_sessions_project ON work_sessions(project_name);

CREATE TABLE IF NOT EXISTS activities (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES work_sessions(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	tool       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_activities_session_id ON activities(session_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_work_sessions_open
	ON work_sessions(start_time) WHERE end_time IS NULL;

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
