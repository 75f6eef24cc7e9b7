package sqlite

// migration is one schema step, applied once and recorded by name.
type migration struct {
	Name    string
	Version string
	Up      []string
}

// Migrations lists the schema in order. Timestamps are fixed-width UTC
// text so that string comparison orders them.
var Migrations = []migration{
	{
		Name:    "create_jobs_table",
		Version: "20240101120000",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS asyncexec_jobs (
				id                    TEXT PRIMARY KEY,
				state                 TEXT NOT NULL,
				suspended_from        TEXT NOT NULL DEFAULT '',
				process_instance_id   TEXT NOT NULL DEFAULT '',
				execution_id          TEXT NOT NULL DEFAULT '',
				process_definition_id TEXT NOT NULL DEFAULT '',
				tenant_id             TEXT NOT NULL DEFAULT '',
				due_date              TEXT,
				lock_owner            TEXT NOT NULL DEFAULT '',
				lock_expiration       TEXT,
				retries               INTEGER NOT NULL DEFAULT 0,
				exception_message     TEXT NOT NULL DEFAULT '',
				exception_stack       TEXT NOT NULL DEFAULT '',
				handler_type          TEXT NOT NULL,
				handler_config        BLOB,
				exclusive             INTEGER NOT NULL DEFAULT 0,
				interrupting          INTEGER NOT NULL DEFAULT 0,
				repeat                TEXT NOT NULL DEFAULT '',
				end_date              TEXT,
				max_iterations        INTEGER NOT NULL DEFAULT 0,
				version               INTEGER NOT NULL DEFAULT 1,
				created_at            TEXT NOT NULL,
				updated_at            TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_asyncexec_jobs_acquire
				ON asyncexec_jobs (state, due_date, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_asyncexec_jobs_lock_expiration
				ON asyncexec_jobs (lock_expiration)`,
			`CREATE INDEX IF NOT EXISTS idx_asyncexec_jobs_process_instance
				ON asyncexec_jobs (process_instance_id)`,
		},
	},
	{
		Name:    "create_scope_locks_table",
		Version: "20240101120001",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS asyncexec_scope_locks (
				process_instance_id TEXT PRIMARY KEY,
				owner               TEXT NOT NULL,
				expires_at          TEXT NOT NULL
			)`,
		},
	},
}
