// Package queue implements the durable offline action queue: deferred
// jobs persisted in the database, dispatched FIFO to handlers registered
// by type, with per-job retry accounting.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/models"
)

// DefaultMaxAttempts bounds retries for jobs enqueued without an explicit
// ceiling.
const DefaultMaxAttempts = 3

// ErrDrainInFlight is returned by Process when a drain is already running.
var ErrDrainInFlight = errors.New("queue drain already in flight")

// Handler executes one job's payload. Returning an error counts an attempt.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Job is one persisted deferred operation.
type Job struct {
	ID          string
	Type        string
	Payload     json.RawMessage
	Status      models.JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	CreatedAt   time.Time
}

// Status holds queue counts for display and trigger policy.
type Status struct {
	Pending    int64
	Processing int64
	Failed     int64
}

// Queue owns the offline_jobs table and the process-local handler table.
// Handlers are not persisted: after a restart, consumers re-register
// before the first drain or their jobs sit Pending.
type Queue struct {
	db       *db.DB
	logger   *slog.Logger
	draining atomic.Bool

	mu       sync.Mutex
	handlers map[string]Handler
}

// New creates a queue over an open database.
func New(d *db.DB, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		db:       d,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler installs the handler for a job type. Last registration
// wins.
func (q *Queue) RegisterHandler(jobType string, fn Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = fn
}

// UnregisterHandler removes the handler for a job type.
func (q *Queue) UnregisterHandler(jobType string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.handlers, jobType)
}

func (q *Queue) handler(jobType string) (Handler, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn, ok := q.handlers[jobType]
	return fn, ok
}

// Enqueue durably appends a Pending job and returns its ID. The payload
// is marshalled to JSON; pass json.RawMessage to store it verbatim.
func (q *Queue) Enqueue(jobType string, payload any) (string, error) {
	return q.EnqueueWithAttempts(jobType, payload, DefaultMaxAttempts)
}

// EnqueueWithAttempts is Enqueue with an explicit retry ceiling.
func (q *Queue) EnqueueWithAttempts(jobType string, payload any, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New().String()
	err = q.db.WithWriteLock(func() error {
		_, err := q.db.Conn().Exec(`
			INSERT INTO offline_jobs (id, type, payload, status, attempts, max_attempts, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?, ?)
		`, id, jobType, string(data), models.JobPending, maxAttempts, time.Now().UTC(), time.Now().UTC())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", jobType, err)
	}

	q.logger.Debug("job enqueued", "id", id, "type", jobType)
	return id, nil
}

// Cancel marks a Pending or Processing job Cancelled. Returns false when
// the job is already finished or unknown; that is a no-op, not an error.
func (q *Queue) Cancel(id string) (bool, error) {
	var cancelled bool
	err := q.db.WithWriteLock(func() error {
		res, err := q.db.Conn().Exec(`
			UPDATE offline_jobs SET status = ?, updated_at = ?
			WHERE id = ? AND status IN (?, ?)
		`, models.JobCancelled, time.Now().UTC(), id, models.JobPending, models.JobProcessing)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		cancelled = n > 0
		return nil
	})
	return cancelled, err
}

// Process drains the queue once: every job Pending at the start of the
// drain, in creation order. Jobs enqueued mid-drain wait for the next
// pass. At most one drain runs at a time; a concurrent call returns
// ErrDrainInFlight.
func (q *Queue) Process(ctx context.Context) error {
	if !q.draining.CompareAndSwap(false, true) {
		return ErrDrainInFlight
	}
	defer q.draining.Store(false)

	jobs, err := q.pendingSnapshot()
	if err != nil {
		return fmt.Errorf("snapshot pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	q.logger.Debug("draining queue", "jobs", len(jobs))
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.runJob(ctx, job)
	}
	return nil
}

// runJob executes one job through its handler and records the outcome.
// Handler errors stay per-job; they never abort the drain.
func (q *Queue) runJob(ctx context.Context, job Job) {
	fn, ok := q.handler(job.Type)
	if !ok {
		// A handler may register later in the session; leave it Pending
		q.logger.Debug("no handler registered, skipping", "id", job.ID, "type", job.Type)
		return
	}

	// Re-check status: the job may have been cancelled since the snapshot
	claimed, err := q.claim(job.ID)
	if err != nil {
		q.logger.Error("claim job", "id", job.ID, "error", err)
		return
	}
	if !claimed {
		return
	}

	if err := fn(ctx, job.Payload); err != nil {
		q.recordFailure(job, err)
		return
	}

	done, err := q.finish(job.ID, models.JobCompleted, "")
	if err != nil {
		q.logger.Error("mark job completed", "id", job.ID, "error", err)
		return
	}
	if !done {
		q.logger.Debug("job cancelled during processing", "id", job.ID, "type", job.Type)
		return
	}
	q.logger.Info("job completed", "id", job.ID, "type", job.Type)
}

// claim transitions a job Pending -> Processing, returning false when the
// job is no longer Pending.
func (q *Queue) claim(id string) (bool, error) {
	var claimed bool
	err := q.db.WithWriteLock(func() error {
		res, err := q.db.Conn().Exec(`
			UPDATE offline_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`, models.JobProcessing, time.Now().UTC(), id, models.JobPending)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		claimed = n > 0
		return nil
	})
	return claimed, err
}

func (q *Queue) recordFailure(job Job, jobErr error) {
	attempts := job.Attempts + 1
	status := models.JobPending
	if attempts >= job.MaxAttempts {
		status = models.JobFailed
	}

	var recorded bool
	err := q.db.WithWriteLock(func() error {
		// Guarded on Processing: a Cancel that landed while the handler
		// ran must win, so the outcome is dropped instead of reviving
		// the job
		res, err := q.db.Conn().Exec(`
			UPDATE offline_jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, status, attempts, jobErr.Error(), time.Now().UTC(), job.ID, models.JobProcessing)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		recorded = n > 0
		return nil
	})
	if err != nil {
		q.logger.Error("record job failure", "id", job.ID, "error", err)
		return
	}
	if !recorded {
		q.logger.Debug("job cancelled during processing", "id", job.ID, "type", job.Type)
		return
	}

	if status == models.JobFailed {
		q.logger.Warn("job failed permanently", "id", job.ID, "type", job.Type, "attempts", attempts, "error", jobErr)
	} else {
		q.logger.Debug("job attempt failed, will retry", "id", job.ID, "attempts", attempts, "error", jobErr)
	}
}

// finish moves a Processing job to a terminal status. Returns false when
// the job was cancelled out from under the handler; the row is left alone.
func (q *Queue) finish(id string, status models.JobStatus, lastError string) (bool, error) {
	var done bool
	err := q.db.WithWriteLock(func() error {
		res, err := q.db.Conn().Exec(`
			UPDATE offline_jobs SET status = ?, last_error = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, status, lastError, time.Now().UTC(), id, models.JobProcessing)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		done = n > 0
		return nil
	})
	return done, err
}

// pendingSnapshot reads the Pending jobs in FIFO order.
func (q *Queue) pendingSnapshot() ([]Job, error) {
	rows, err := q.db.Conn().Query(`
		SELECT id, type, payload, status, attempts, max_attempts, COALESCE(last_error, ''), created_at
		FROM offline_jobs WHERE status = ? ORDER BY created_at, id
	`, models.JobPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// GetStatus returns queue counts.
func (q *Queue) GetStatus() (*Status, error) {
	rows, err := q.db.Conn().Query(`
		SELECT status, COUNT(*) FROM offline_jobs GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var s Status
	for rows.Next() {
		var status models.JobStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case models.JobPending:
			s.Pending = count
		case models.JobProcessing:
			s.Processing = count
		case models.JobFailed:
			s.Failed = count
		}
	}
	return &s, rows.Err()
}

// GetJob returns a job by ID, or nil when unknown.
func (q *Queue) GetJob(id string) (*Job, error) {
	rows, err := q.db.Conn().Query(`
		SELECT id, type, payload, status, attempts, max_attempts, COALESCE(last_error, ''), created_at
		FROM offline_jobs WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// GetJobsByType returns all jobs of a type, oldest first.
func (q *Queue) GetJobsByType(jobType string) ([]Job, error) {
	rows, err := q.db.Conn().Query(`
		SELECT id, type, payload, status, attempts, max_attempts, COALESCE(last_error, ''), created_at
		FROM offline_jobs WHERE type = ? ORDER BY created_at, id
	`, jobType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListJobs returns every job, oldest first.
func (q *Queue) ListJobs() ([]Job, error) {
	rows, err := q.db.Conn().Query(`
		SELECT id, type, payload, status, attempts, max_attempts, COALESCE(last_error, ''), created_at
		FROM offline_jobs ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// RetryFailed resets all Failed jobs to Pending with a fresh attempt
// budget. Returns the number of jobs reset.
func (q *Queue) RetryFailed() (int64, error) {
	var reset int64
	err := q.db.WithWriteLock(func() error {
		res, err := q.db.Conn().Exec(`
			UPDATE offline_jobs SET status = ?, attempts = 0, last_error = '', updated_at = ?
			WHERE status = ?
		`, models.JobPending, time.Now().UTC(), models.JobFailed)
		if err != nil {
			return err
		}
		reset, _ = res.RowsAffected()
		return nil
	})
	return reset, err
}

// ClearFinished removes Completed and Cancelled jobs.
func (q *Queue) ClearFinished() (int64, error) {
	var removed int64
	err := q.db.WithWriteLock(func() error {
		res, err := q.db.Conn().Exec(`
			DELETE FROM offline_jobs WHERE status IN (?, ?)
		`, models.JobCompleted, models.JobCancelled)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

// ClearQueue removes every job regardless of status. Destructive.
func (q *Queue) ClearQueue() (int64, error) {
	var removed int64
	err := q.db.WithWriteLock(func() error {
		res, err := q.db.Conn().Exec(`DELETE FROM offline_jobs`)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		var j Job
		var payload string
		if err := rows.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.LastError, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.Payload = json.RawMessage(payload)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
