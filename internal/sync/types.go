package sync

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors for error classes callers branch on.
var (
	// ErrUnauthorized means the credential was rejected. Never retried
	// here; fresh credentials have to come from the login flow.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRejected means the server refused the pushed changes
	// (validation, conflict). Terminal for the round.
	ErrRejected = errors.New("rejected by server")
)

// ChangeSet groups one collection's created, updated and deleted records
// for one sync round. A record ID appears in at most one bucket.
type ChangeSet struct {
	Created []json.RawMessage `json:"created"`
	Updated []json.RawMessage `json:"updated"`
	Deleted []string          `json:"deleted"`
}

// Empty reports whether the change set carries no records.
func (cs ChangeSet) Empty() bool {
	return len(cs.Created) == 0 && len(cs.Updated) == 0 && len(cs.Deleted) == 0
}

// Count returns the total number of records across all three buckets.
func (cs ChangeSet) Count() int {
	return len(cs.Created) + len(cs.Updated) + len(cs.Deleted)
}

// Changes maps collection name to its ChangeSet.
type Changes map[string]ChangeSet

// Empty reports whether no collection carries any records.
func (c Changes) Empty() bool {
	for _, cs := range c {
		if !cs.Empty() {
			return false
		}
	}
	return true
}

// Count returns the total record count across all collections.
func (c Changes) Count() int {
	n := 0
	for _, cs := range c {
		n += cs.Count()
	}
	return n
}

// PullResult is one page of the server's change history.
type PullResult struct {
	Changes   Changes
	Timestamp int64 // new cursor, unix milliseconds
	HasMore   bool
}

// Round captures one pull+push attempt. Not persisted beyond logging.
type Round struct {
	Cursor     *int64 // cursor the round started from
	NewCursor  int64  // cursor after pull (equals *Cursor when pull degraded)
	PullOK     bool
	Pulled     int
	Pushed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Transport performs the wire round trips against the remote service.
// Implemented by syncclient.Client; faked in tests.
type Transport interface {
	Pull(ctx context.Context, lastPulledAt *int64) (*PullResult, error)
	Push(ctx context.Context, changes Changes, lastPulledAt *int64) error
}

// ChangeLog is the local store's change tracking interface: collect
// unacknowledged local writes, apply remote ones transactionally, and hold
// the pull cursor.
type ChangeLog interface {
	// Cursor returns the persisted watermark, nil before the first pull.
	Cursor() (*int64, error)

	// CollectLocalChanges builds the outgoing Changes and returns the
	// highest change log row ID included, for MarkSynced.
	CollectLocalChanges() (Changes, int64, error)

	// ApplyRemoteChanges writes one pulled page and advances the cursor
	// in the same transaction.
	ApplyRemoteChanges(changes Changes, newCursor int64) error

	// MarkSynced acknowledges local changes up to and including maxID.
	MarkSynced(maxID int64) error
}
