// Package importer pulls contacts from a third-party export URL into the
// local store. Imports run inline when the network is up and are deferred
// onto the offline queue otherwise.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/models"
	"github.com/quinn/rolo/internal/queue"
)

// JobType is the offline queue job type for deferred imports.
const JobType = "contacts.import"

// Payload is the import job payload.
type Payload struct {
	Source string `json:"source"` // label for logging, e.g. "csv-export"
	URL    string `json:"url"`    // endpoint returning a JSON array of contacts
}

// Importer fetches and stores third-party contacts.
type Importer struct {
	db     *db.DB
	http   *http.Client
	logger *slog.Logger
}

// New creates an importer over an open database.
func New(d *db.DB, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		db:     d,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Run fetches the export and creates contacts, skipping rows whose email
// already exists locally. Returns the number of contacts created.
func (im *Importer) Run(ctx context.Context, p Payload) (int, error) {
	if p.URL == "" {
		return 0, fmt.Errorf("import: missing url")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := im.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: HTTP %d", p.URL, resp.StatusCode)
	}

	var incoming []models.Contact
	if err := json.NewDecoder(resp.Body).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode export: %w", err)
	}

	existing, err := im.db.ListContacts()
	if err != nil {
		return 0, fmt.Errorf("list contacts: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		if c.Email != "" {
			seen[c.Email] = true
		}
	}

	created := 0
	for _, c := range incoming {
		if c.Email != "" && seen[c.Email] {
			continue
		}
		// Imported records get fresh local IDs; the export's IDs belong
		// to the third party, not to our sync namespace
		contact := models.Contact{
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Email:     c.Email,
			Phone:     c.Phone,
			Company:   c.Company,
			Labels:    c.Labels,
		}
		if err := im.db.CreateContact(&contact); err != nil {
			return created, fmt.Errorf("create contact %q: %w", contact.DisplayName(), err)
		}
		if contact.Email != "" {
			seen[contact.Email] = true
		}
		created++
	}

	im.logger.Info("import finished", "source", p.Source, "fetched", len(incoming), "created", created)
	return created, nil
}

// Handler adapts Run to the offline queue's handler signature.
func (im *Importer) Handler() queue.Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var p Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode import payload: %w", err)
		}
		_, err := im.Run(ctx, p)
		return err
	}
}
