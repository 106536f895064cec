package db

import (
	"database/sql"
	"time"
)

// SyncState is the persisted half of the sync bookkeeping: the pull cursor
// plus the outcome of the most recent round. In-memory state (in-flight
// flag, failure counter) lives in the scheduler.
type SyncState struct {
	LastPulledAt *int64 // unix milliseconds, nil before the first pull
	LastSyncAt   *time.Time
	LastSyncOK   bool
}

// GetSyncState returns the persisted sync state, or a zero state when no
// round has ever run.
func (db *DB) GetSyncState() (*SyncState, error) {
	var s SyncState
	var pulled sql.NullInt64
	var lastSync sql.NullTime
	var ok int

	err := db.conn.QueryRow(`
		SELECT last_pulled_at, last_sync_at, last_sync_ok FROM sync_state WHERE id = 1
	`).Scan(&pulled, &lastSync, &ok)

	if err == sql.ErrNoRows {
		return &SyncState{LastSyncOK: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if pulled.Valid {
		v := pulled.Int64
		s.LastPulledAt = &v
	}
	if lastSync.Valid {
		s.LastSyncAt = &lastSync.Time
	}
	s.LastSyncOK = ok != 0
	return &s, nil
}

// RecordSyncOutcome stores the result of a finished round.
func (db *DB) RecordSyncOutcome(ok bool) error {
	val := 0
	if ok {
		val = 1
	}
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO sync_state (id, last_sync_at, last_sync_ok) VALUES (1, CURRENT_TIMESTAMP, ?)
			ON CONFLICT(id) DO UPDATE SET last_sync_at = CURRENT_TIMESTAMP, last_sync_ok = excluded.last_sync_ok
		`, val)
		return err
	})
}

// CountPendingChanges returns the number of unsynced change log rows.
func (db *DB) CountPendingChanges() (int64, error) {
	var count int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM change_log WHERE synced_at IS NULL`).Scan(&count)
	return count, err
}
