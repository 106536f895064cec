package db

// SchemaVersion is the current database schema version
const SchemaVersion = 3

const schema = `
-- Contacts table
CREATE TABLE IF NOT EXISTS contacts (
    id TEXT PRIMARY KEY,
    first_name TEXT DEFAULT '',
    last_name TEXT DEFAULT '',
    email TEXT DEFAULT '',
    phone TEXT DEFAULT '',
    company TEXT DEFAULT '',
    labels TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

-- Notes table
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME,
    FOREIGN KEY (contact_id) REFERENCES contacts(id)
);

-- Change log: one row per local create/update/delete not yet acknowledged
-- by the server. Rows are never rewritten, only marked synced.
CREATE TABLE IF NOT EXISTS change_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    record_id TEXT NOT NULL,
    op TEXT NOT NULL,
    changed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    synced_at DATETIME
);

-- Sync state: single row holding the pull cursor and bookkeeping
CREATE TABLE IF NOT EXISTS sync_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_pulled_at INTEGER,
    last_sync_at DATETIME,
    last_sync_ok INTEGER NOT NULL DEFAULT 1
);

-- Offline jobs: durable deferred operations, survive process restart
CREATE TABLE IF NOT EXISTS offline_jobs (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 3,
    last_error TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_deleted ON contacts(deleted_at);
CREATE INDEX IF NOT EXISTS idx_notes_contact ON notes(contact_id);
CREATE INDEX IF NOT EXISTS idx_change_log_pending ON change_log(synced_at, collection);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON offline_jobs(status, created_at);
`

// Migration represents a schema change to apply on top of an older database
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations are applied in order on databases below SchemaVersion
var Migrations = []Migration{
	{
		Version:     2,
		Description: "Add max_attempts and last_error to offline_jobs",
		SQL: `ALTER TABLE offline_jobs ADD COLUMN max_attempts INTEGER NOT NULL DEFAULT 3;
ALTER TABLE offline_jobs ADD COLUMN last_error TEXT DEFAULT '';`,
	},
	{
		Version:     3,
		Description: "Add composite index for change collection scans",
		SQL: `CREATE INDEX IF NOT EXISTS idx_change_log_record
    ON change_log(collection, record_id, id);`,
	},
}
