// Package changelog implements the local store's change tracking: it turns
// unsynced write-path log rows into outgoing ChangeSets, applies pulled
// remote changes transactionally, and owns cursor persistence.
package changelog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/models"
	"github.com/quinn/rolo/internal/sync"
)

// Log adapts the database to the sync engine's ChangeLog interface.
type Log struct {
	db     *db.DB
	logger *slog.Logger
}

// New creates a change log over an open database.
func New(d *db.DB, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{db: d, logger: logger}
}

// Cursor returns the persisted pull watermark, nil before the first pull.
func (l *Log) Cursor() (*int64, error) {
	state, err := l.db.GetSyncState()
	if err != nil {
		return nil, err
	}
	return state.LastPulledAt, nil
}

// pendingOps groups the unsynced log rows of one record.
type pendingOps struct {
	created bool
	deleted bool
}

// CollectLocalChanges builds the outgoing change sets from unsynced log
// rows. A record collapses to one bucket: any delete wins, a create
// followed by updates stays a create, and a record created and deleted
// before ever syncing is dropped (the server never saw it).
func (l *Log) CollectLocalChanges() (sync.Changes, int64, error) {
	rows, err := l.db.Conn().Query(`
		SELECT id, collection, record_id, op FROM change_log
		WHERE synced_at IS NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("scan change log: %w", err)
	}
	defer rows.Close()

	type key struct{ collection, recordID string }
	pending := make(map[key]*pendingOps)
	var order []key
	var maxID int64

	for rows.Next() {
		var id int64
		var collection, recordID string
		var op models.ChangeOp
		if err := rows.Scan(&id, &collection, &recordID, &op); err != nil {
			return nil, 0, err
		}
		maxID = id
		k := key{collection, recordID}
		ops, ok := pending[k]
		if !ok {
			ops = &pendingOps{}
			pending[k] = ops
			order = append(order, k)
		}
		switch op {
		case models.OpCreate:
			ops.created = true
		case models.OpDelete:
			ops.deleted = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	changes := sync.Changes{}
	for _, k := range order {
		ops := pending[k]
		cs := changes[k.collection]

		switch {
		case ops.created && ops.deleted:
			// Born and died locally; nothing to tell the server
		case ops.deleted:
			cs.Deleted = append(cs.Deleted, k.recordID)
		default:
			record, err := l.recordJSON(k.collection, k.recordID)
			if err != nil {
				return nil, 0, err
			}
			if ops.created {
				cs.Created = append(cs.Created, record)
			} else {
				cs.Updated = append(cs.Updated, record)
			}
		}
		changes[k.collection] = cs
	}

	return changes, maxID, nil
}

// recordJSON marshals the current state of a record for the wire.
func (l *Log) recordJSON(collection, recordID string) (json.RawMessage, error) {
	switch collection {
	case models.CollectionContacts:
		c, err := l.db.GetContact(recordID)
		if err != nil {
			return nil, fmt.Errorf("load contact %s: %w", recordID, err)
		}
		return json.Marshal(c)
	case models.CollectionNotes:
		n, err := l.db.GetNote(recordID)
		if err != nil {
			return nil, fmt.Errorf("load note %s: %w", recordID, err)
		}
		return json.Marshal(n)
	default:
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}
}

// MarkSynced acknowledges local changes up to and including maxID.
func (l *Log) MarkSynced(maxID int64) error {
	return l.db.WithWriteLock(func() error {
		_, err := l.db.Conn().Exec(`
			UPDATE change_log SET synced_at = ? WHERE synced_at IS NULL AND id <= ?
		`, time.Now().UTC(), maxID)
		return err
	})
}

// ApplyRemoteChanges writes one pulled page and advances the cursor in the
// same transaction, so a crash mid-apply never leaves the watermark ahead
// of the data. Remote writes bypass change recording: applying a pull must
// not echo the server's own changes back to it.
func (l *Log) ApplyRemoteChanges(changes sync.Changes, newCursor int64) error {
	return l.db.WithWriteLock(func() error {
		tx, err := l.db.Conn().Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for collection, cs := range changes {
			switch collection {
			case models.CollectionContacts:
				if err := applyContacts(tx, cs); err != nil {
					return err
				}
			case models.CollectionNotes:
				if err := applyNotes(tx, cs); err != nil {
					return err
				}
			default:
				l.logger.Warn("skipping unknown collection in pull", "collection", collection)
			}
		}

		if _, err := tx.Exec(`
			INSERT INTO sync_state (id, last_pulled_at) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET last_pulled_at = excluded.last_pulled_at
		`, newCursor); err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}

		return tx.Commit()
	})
}

func applyContacts(tx *sql.Tx, cs sync.ChangeSet) error {
	for _, raw := range append(append([]json.RawMessage{}, cs.Created...), cs.Updated...) {
		var c models.Contact
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("decode remote contact: %w", err)
		}
		if c.ID == "" {
			return fmt.Errorf("remote contact missing id")
		}
		// Last writer wins: the server's version replaces ours wholesale
		if _, err := tx.Exec(`
			INSERT INTO contacts (id, first_name, last_name, email, phone, company, labels, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				email = excluded.email,
				phone = excluded.phone,
				company = excluded.company,
				labels = excluded.labels,
				updated_at = excluded.updated_at,
				deleted_at = excluded.deleted_at
		`, c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Labels,
			c.CreatedAt, c.UpdatedAt, nullableTime(c.DeletedAt)); err != nil {
			return fmt.Errorf("apply contact %s: %w", c.ID, err)
		}
	}
	now := time.Now().UTC()
	for _, id := range cs.Deleted {
		if _, err := tx.Exec(`
			UPDATE contacts SET deleted_at = COALESCE(deleted_at, ?), updated_at = ? WHERE id = ?
		`, now, now, id); err != nil {
			return fmt.Errorf("apply contact delete %s: %w", id, err)
		}
	}
	return nil
}

func applyNotes(tx *sql.Tx, cs sync.ChangeSet) error {
	for _, raw := range append(append([]json.RawMessage{}, cs.Created...), cs.Updated...) {
		var n models.Note
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("decode remote note: %w", err)
		}
		if n.ID == "" {
			return fmt.Errorf("remote note missing id")
		}
		if _, err := tx.Exec(`
			INSERT INTO notes (id, contact_id, body, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				contact_id = excluded.contact_id,
				body = excluded.body,
				updated_at = excluded.updated_at,
				deleted_at = excluded.deleted_at
		`, n.ID, n.ContactID, n.Body, n.CreatedAt, n.UpdatedAt, nullableTime(n.DeletedAt)); err != nil {
			return fmt.Errorf("apply note %s: %w", n.ID, err)
		}
	}
	now := time.Now().UTC()
	for _, id := range cs.Deleted {
		if _, err := tx.Exec(`
			UPDATE notes SET deleted_at = COALESCE(deleted_at, ?), updated_at = ? WHERE id = ?
		`, now, now, id); err != nil {
			return fmt.Errorf("apply note delete %s: %w", id, err)
		}
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
