package models

import (
	"time"
)

// Collection names are the sync protocol's grouping keys. They match the
// table names on both client and server.
const (
	CollectionContacts = "contacts"
	CollectionNotes    = "notes"
)

// ChangeOp represents a change log operation
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// JobStatus represents the lifecycle state of an offline job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Contact is the primary record type
type Contact struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Company   string     `json:"company,omitempty"`
	Labels    string     `json:"labels,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// DisplayName returns the contact's name for listings, falling back to
// email when both name fields are empty.
func (c Contact) DisplayName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	case c.LastName != "":
		return c.LastName
	default:
		return c.Email
	}
}

// Note is a free-form note attached to a contact
type Note struct {
	ID        string     `json:"id"`
	ContactID string     `json:"contact_id"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ChangeEntry is one row of the local change log: a single create, update
// or delete of a record, not yet acknowledged by the server.
type ChangeEntry struct {
	ID         int64
	Collection string
	RecordID   string
	Op         ChangeOp
	ChangedAt  time.Time
	SyncedAt   *time.Time
}
