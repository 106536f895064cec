package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quinn/rolo/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// changeOps reads the change log rows for a record, oldest first.
func changeOps(t *testing.T, db *DB, recordID string) []models.ChangeOp {
	t.Helper()
	rows, err := db.Conn().Query(`SELECT op FROM change_log WHERE record_id = ? ORDER BY id`, recordID)
	if err != nil {
		t.Fatalf("query change_log: %v", err)
	}
	defer rows.Close()

	var ops []models.ChangeOp
	for rows.Next() {
		var op models.ChangeOp
		if err := rows.Scan(&op); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ops = append(ops, op)
	}
	return ops
}

func TestInitialize(t *testing.T) {
	dir := t.TempDir()

	db, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, ".rolo", "contacts.db")); os.IsNotExist(err) {
		t.Error("database file not created")
	}

	version, err := db.GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version: got %d, want %d", version, SchemaVersion)
	}
}

func TestOpenWithoutInit(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("Open should fail before init")
	}
}

func TestContactCRUDRecordsChanges(t *testing.T) {
	db := testDB(t)

	c := &models.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	if err := db.CreateContact(c); err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}
	if c.ID == "" {
		t.Fatal("contact ID not assigned")
	}

	got, err := db.GetContact(c.ID)
	if err != nil {
		t.Fatalf("GetContact failed: %v", err)
	}
	if got.Email != "ada@example.com" {
		t.Errorf("email: got %q", got.Email)
	}

	c.Company = "Analytical Engines"
	if err := db.UpdateContact(c); err != nil {
		t.Fatalf("UpdateContact failed: %v", err)
	}

	if err := db.DeleteContact(c.ID); err != nil {
		t.Fatalf("DeleteContact failed: %v", err)
	}

	// Soft delete: the row survives, flagged
	got, err = db.GetContact(c.ID)
	if err != nil {
		t.Fatalf("GetContact after delete failed: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("DeletedAt not set")
	}

	live, err := db.ListContacts()
	if err != nil {
		t.Fatalf("ListContacts failed: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("deleted contact still listed: %d", len(live))
	}

	want := []models.ChangeOp{models.OpCreate, models.OpUpdate, models.OpDelete}
	ops := changeOps(t, db, c.ID)
	if len(ops) != len(want) {
		t.Fatalf("change rows: got %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op[%d]: got %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestUpdateDeletedContactFails(t *testing.T) {
	db := testDB(t)

	c := &models.Contact{FirstName: "Gone"}
	if err := db.CreateContact(c); err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}
	if err := db.DeleteContact(c.ID); err != nil {
		t.Fatalf("DeleteContact failed: %v", err)
	}
	if err := db.UpdateContact(c); err == nil {
		t.Fatal("UpdateContact should fail on a deleted contact")
	}
	if err := db.DeleteContact(c.ID); err == nil {
		t.Fatal("double delete should fail")
	}
}

func TestNotes(t *testing.T) {
	db := testDB(t)

	c := &models.Contact{FirstName: "Grace"}
	if err := db.CreateContact(c); err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}

	n := &models.Note{ContactID: c.ID, Body: "met at conference"}
	if err := db.CreateNote(n); err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}

	if err := db.UpdateNote(n.ID, "met at the conference"); err != nil {
		t.Fatalf("UpdateNote failed: %v", err)
	}

	notes, err := db.ListNotes(c.ID)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Body != "met at the conference" {
		t.Fatalf("notes: %+v", notes)
	}

	if err := db.DeleteNote(n.ID); err != nil {
		t.Fatalf("DeleteNote failed: %v", err)
	}
	notes, err = db.ListNotes(c.ID)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("deleted note still listed")
	}
}

func TestNoteRequiresLiveContact(t *testing.T) {
	db := testDB(t)

	n := &models.Note{ContactID: "nope", Body: "orphan"}
	if err := db.CreateNote(n); err == nil {
		t.Fatal("CreateNote should fail for an unknown contact")
	}
}

func TestSyncStateDefaults(t *testing.T) {
	db := testDB(t)

	state, err := db.GetSyncState()
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state.LastPulledAt != nil {
		t.Error("cursor should be nil before first pull")
	}
	if state.LastSyncAt != nil {
		t.Error("LastSyncAt should be nil before first round")
	}
	if !state.LastSyncOK {
		t.Error("zero state should read as OK")
	}
}

func TestRecordSyncOutcome(t *testing.T) {
	db := testDB(t)

	if err := db.RecordSyncOutcome(false); err != nil {
		t.Fatalf("RecordSyncOutcome failed: %v", err)
	}
	state, err := db.GetSyncState()
	if err != nil {
		t.Fatalf("GetSyncState failed: %v", err)
	}
	if state.LastSyncOK {
		t.Error("LastSyncOK should be false")
	}
	if state.LastSyncAt == nil {
		t.Error("LastSyncAt not set")
	}

	if err := db.RecordSyncOutcome(true); err != nil {
		t.Fatalf("RecordSyncOutcome failed: %v", err)
	}
	state, _ = db.GetSyncState()
	if !state.LastSyncOK {
		t.Error("LastSyncOK should be true")
	}
}

func TestCountPendingChanges(t *testing.T) {
	db := testDB(t)

	count, err := db.CountPendingChanges()
	if err != nil {
		t.Fatalf("CountPendingChanges failed: %v", err)
	}
	if count != 0 {
		t.Errorf("fresh db pending: got %d", count)
	}

	c := &models.Contact{FirstName: "Pend"}
	if err := db.CreateContact(c); err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}
	c.Company = "Acme"
	if err := db.UpdateContact(c); err != nil {
		t.Fatalf("UpdateContact failed: %v", err)
	}

	count, _ = db.CountPendingChanges()
	if count != 2 {
		t.Errorf("pending: got %d, want 2", count)
	}
}
