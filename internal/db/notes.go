package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quinn/rolo/internal/models"
)

// CreateNote inserts a note for a contact and logs the create.
func (db *DB) CreateNote(n *models.Note) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	return db.withWriteLock(func() error {
		return db.inTx(func(tx *sql.Tx) error {
			var exists int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM contacts WHERE id = ? AND deleted_at IS NULL`, n.ContactID).Scan(&exists); err != nil {
				return err
			}
			if exists == 0 {
				return fmt.Errorf("contact not found: %s", n.ContactID)
			}
			_, err := tx.Exec(`
				INSERT INTO notes (id, contact_id, body, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
			`, n.ID, n.ContactID, n.Body, n.CreatedAt, n.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert note: %w", err)
			}
			return recordChange(tx, models.CollectionNotes, n.ID, models.OpCreate)
		})
	})
}

// UpdateNote rewrites a note body and logs the update.
func (db *DB) UpdateNote(id, body string) error {
	now := time.Now().UTC()

	return db.withWriteLock(func() error {
		return db.inTx(func(tx *sql.Tx) error {
			res, err := tx.Exec(`
				UPDATE notes SET body = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
			`, body, now, id)
			if err != nil {
				return fmt.Errorf("update note: %w", err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return fmt.Errorf("note not found: %s", id)
			}
			return recordChange(tx, models.CollectionNotes, id, models.OpUpdate)
		})
	})
}

// DeleteNote soft-deletes a note and logs the delete.
func (db *DB) DeleteNote(id string) error {
	now := time.Now().UTC()

	return db.withWriteLock(func() error {
		return db.inTx(func(tx *sql.Tx) error {
			res, err := tx.Exec(`
				UPDATE notes SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
			`, now, now, id)
			if err != nil {
				return fmt.Errorf("delete note: %w", err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return fmt.Errorf("note not found: %s", id)
			}
			return recordChange(tx, models.CollectionNotes, id, models.OpDelete)
		})
	})
}

// GetNote returns a note by ID, including soft-deleted ones.
func (db *DB) GetNote(id string) (*models.Note, error) {
	var n models.Note
	var deleted sql.NullTime
	err := db.conn.QueryRow(`
		SELECT id, contact_id, body, created_at, updated_at, deleted_at FROM notes WHERE id = ?
	`, id).Scan(&n.ID, &n.ContactID, &n.Body, &n.CreatedAt, &n.UpdatedAt, &deleted)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if deleted.Valid {
		t := deleted.Time
		n.DeletedAt = &t
	}
	return &n, nil
}

// ListNotes returns live notes for a contact, oldest first.
func (db *DB) ListNotes(contactID string) ([]models.Note, error) {
	rows, err := db.conn.Query(`
		SELECT id, contact_id, body, created_at, updated_at, deleted_at
		FROM notes
		WHERE contact_id = ? AND deleted_at IS NULL
		ORDER BY created_at
	`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var n models.Note
		var deleted sql.NullTime
		if err := rows.Scan(&n.ID, &n.ContactID, &n.Body, &n.CreatedAt, &n.UpdatedAt, &deleted); err != nil {
			return nil, err
		}
		if deleted.Valid {
			t := deleted.Time
			n.DeletedAt = &t
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
