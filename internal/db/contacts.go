package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quinn/rolo/internal/models"
)

// CreateContact inserts a contact and records the create in the change log
// within the same transaction. Assigns an ID when the caller left it empty.
func (db *DB) CreateContact(c *models.Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	return db.withWriteLock(func() error {
		return db.inTx(func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				INSERT INTO contacts (id, first_name, last_name, email, phone, company, labels, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Labels, c.CreatedAt, c.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert contact: %w", err)
			}
			return recordChange(tx, models.CollectionContacts, c.ID, models.OpCreate)
		})
	})
}

// UpdateContact writes the contact's mutable fields and logs the update.
func (db *DB) UpdateContact(c *models.Contact) error {
	c.UpdatedAt = time.Now().UTC()

	return db.withWriteLock(func() error {
		return db.inTx(func(tx *sql.Tx) error {
			res, err := tx.Exec(`
				UPDATE contacts
				SET first_name = ?, last_name = ?, email = ?, phone = ?, company = ?, labels = ?, updated_at = ?
				WHERE id = ? AND deleted_at IS NULL
			`, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Labels, c.UpdatedAt, c.ID)
			if err != nil {
				return fmt.Errorf("update contact: %w", err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return fmt.Errorf("contact not found: %s", c.ID)
			}
			return recordChange(tx, models.CollectionContacts, c.ID, models.OpUpdate)
		})
	})
}

// DeleteContact soft-deletes a contact and logs the delete. Soft delete
// keeps the row around so a later pull cannot resurrect it by accident.
func (db *DB) DeleteContact(id string) error {
	now := time.Now().UTC()

	return db.withWriteLock(func() error {
		return db.inTx(func(tx *sql.Tx) error {
			res, err := tx.Exec(`
				UPDATE contacts SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
			`, now, now, id)
			if err != nil {
				return fmt.Errorf("delete contact: %w", err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				return fmt.Errorf("contact not found: %s", id)
			}
			return recordChange(tx, models.CollectionContacts, id, models.OpDelete)
		})
	})
}

// GetContact returns a contact by ID, including soft-deleted ones.
func (db *DB) GetContact(id string) (*models.Contact, error) {
	row := db.conn.QueryRow(`
		SELECT id, first_name, last_name, email, phone, company, labels, created_at, updated_at, deleted_at
		FROM contacts WHERE id = ?
	`, id)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("contact not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListContacts returns all live contacts ordered by last name, first name.
func (db *DB) ListContacts() ([]models.Contact, error) {
	rows, err := db.conn.Query(`
		SELECT id, first_name, last_name, email, phone, company, labels, created_at, updated_at, deleted_at
		FROM contacts
		WHERE deleted_at IS NULL
		ORDER BY last_name COLLATE NOCASE, first_name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var c models.Contact
	var deleted sql.NullTime
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company, &c.Labels,
		&c.CreatedAt, &c.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	if deleted.Valid {
		t := deleted.Time
		c.DeletedAt = &t
	}
	return &c, nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// recordChange appends a change log row inside the caller's transaction so
// the data write and its log entry commit or roll back together.
func recordChange(tx *sql.Tx, collection, recordID string, op models.ChangeOp) error {
	_, err := tx.Exec(`
		INSERT INTO change_log (collection, record_id, op, changed_at) VALUES (?, ?, ?, ?)
	`, collection, recordID, op, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}
