// Package scheduler decides when sync rounds run. It multiplexes the
// trigger sources (foreground, reachability, periodic timer, manual
// request, debounced local writes) into a single mutually-exclusive
// execution slot, retries failed rounds with backoff, and drains the
// offline queue once connectivity is confirmed.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/quinn/rolo/internal/sync"
)

// ErrSyncInFlight is returned when a trigger arrives while a round is
// active. The trigger is dropped, not queued; the in-flight round picks up
// whatever state exists by the time it completes.
var ErrSyncInFlight = errors.New("sync already in flight")

// Trigger identifies what admitted a sync round, for logging.
type Trigger string

const (
	TriggerForeground Trigger = "foreground"
	TriggerReachable  Trigger = "reachable"
	TriggerPeriodic   Trigger = "periodic"
	TriggerManual     Trigger = "manual"
	TriggerChange     Trigger = "change"
	TriggerRetry      Trigger = "retry"
)

// Runner runs one sync round. Implemented by sync.Engine.
type Runner interface {
	RunRound(ctx context.Context) (*sync.Round, error)
}

// Drainer drains the offline queue once. Implemented by queue.Queue.
type Drainer interface {
	Process(ctx context.Context) error
}

// Store is the persisted bookkeeping the scheduler reads and writes.
// Implemented by db.DB.
type Store interface {
	CountPendingChanges() (int64, error)
	RecordSyncOutcome(ok bool) error
}

// Config tunes the trigger policy.
type Config struct {
	Enabled       bool // master sync flag
	AutoSync      bool // background triggers (foreground, reachable, periodic, change)
	ForegroundMin time.Duration
	Interval      time.Duration
	Debounce      time.Duration
	MaxRetries    int
}

// DefaultConfig returns the stock policy thresholds.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		AutoSync:      true,
		ForegroundMin: 5 * time.Minute,
		Interval:      30 * time.Minute,
		Debounce:      5 * time.Second,
		MaxRetries:    3,
	}
}

// State is a snapshot of the scheduler's bookkeeping.
type State struct {
	Syncing             bool
	LastSyncAt          *time.Time
	LastSyncOK          bool
	PendingLocalChanges int64
	ConsecutiveFailures int
}

// Scheduler owns the sync execution slot. One instance per running app;
// constructed explicitly and passed to whatever composes the process.
type Scheduler struct {
	runner  Runner
	drainer Drainer
	store   Store
	cfg     Config
	logger  *slog.Logger
	backoff retryBackoff

	syncing atomic.Bool

	mu         stdsync.Mutex
	started    bool
	lastSyncAt *time.Time
	lastSyncOK bool
	failures   int
	retryTimer *time.Timer
	stopCh     chan struct{}
	wg         stdsync.WaitGroup

	debouncer *Debouncer
}

// New creates a scheduler. drainer may be nil when the queue is disabled.
func New(runner Runner, drainer Drainer, store Store, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		runner:     runner,
		drainer:    drainer,
		store:      store,
		cfg:        cfg,
		logger:     logger,
		backoff:    defaultBackoff(),
		lastSyncOK: true,
	}
	s.debouncer = NewDebouncer(cfg.Debounce, func() {
		s.runBackground(TriggerChange)
	})
	return s
}

// Start arms the periodic timer. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})

	if s.cfg.Enabled && s.cfg.AutoSync && s.cfg.Interval > 0 {
		s.wg.Add(1)
		go s.periodicLoop(s.stopCh)
	}
}

// Stop cancels the periodic timer, any pending debounce, and any scheduled
// retry. Idempotent. An in-flight round is not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()

	s.debouncer.Cancel()
	s.wg.Wait()
}

func (s *Scheduler) periodicLoop(stopCh chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runBackground(TriggerPeriodic)
		case <-stopCh:
			return
		}
	}
}

// State returns a snapshot of the sync bookkeeping.
func (s *Scheduler) State() State {
	s.mu.Lock()
	st := State{
		Syncing:             s.syncing.Load(),
		LastSyncAt:          s.lastSyncAt,
		LastSyncOK:          s.lastSyncOK,
		ConsecutiveFailures: s.failures,
	}
	s.mu.Unlock()

	if pending, err := s.store.CountPendingChanges(); err == nil {
		st.PendingLocalChanges = pending
	}
	return st
}

// TriggerManualSync runs a round immediately. Always admitted (subject to
// the exclusivity guard) and resets the failure counter first, re-arming
// automatic retries after a previous ceiling.
func (s *Scheduler) TriggerManualSync(ctx context.Context) (*sync.Round, error) {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
	return s.runOnce(ctx, TriggerManual)
}

// OnForeground handles the app-resumed signal: sync if enough time passed
// since the last round.
func (s *Scheduler) OnForeground() {
	if !s.cfg.Enabled || !s.cfg.AutoSync {
		return
	}
	s.mu.Lock()
	last := s.lastSyncAt
	s.mu.Unlock()
	if last != nil && time.Since(*last) < s.cfg.ForegroundMin {
		return
	}
	s.runBackground(TriggerForeground)
}

// OnReachable handles the network-reachability signal. On regained
// connectivity it runs a round (when local changes are waiting) and then
// drains the offline queue; the two are sequential, and a failed drain
// never fails the trigger.
func (s *Scheduler) OnReachable(reachable bool) {
	if !reachable || !s.cfg.Enabled || !s.cfg.AutoSync {
		return
	}

	pending, err := s.store.CountPendingChanges()
	if err != nil {
		s.logger.Error("count pending changes", "error", err)
		pending = 0
	}

	if pending > 0 {
		s.runBackground(TriggerReachable)
	}
	s.drainQueue()
}

// TriggerChangeSync arms the debounced local-change trigger: the round
// runs only after the configured quiet window with no further changes.
func (s *Scheduler) TriggerChangeSync() {
	if !s.cfg.Enabled || !s.cfg.AutoSync {
		return
	}
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.debouncer.Trigger()
}

// CancelPendingChangeSync drops a pending debounced trigger. No effect on
// an already-admitted round.
func (s *Scheduler) CancelPendingChangeSync() {
	s.debouncer.Cancel()
}

// DrainQueue runs one queue pass outside the reachability path (used by
// the manual queue command).
func (s *Scheduler) DrainQueue(ctx context.Context) error {
	if s.drainer == nil {
		return nil
	}
	return s.drainer.Process(ctx)
}

func (s *Scheduler) drainQueue() {
	if s.drainer == nil {
		return
	}
	if err := s.drainer.Process(context.Background()); err != nil {
		s.logger.Warn("queue drain failed", "error", err)
	}
}

// runBackground runs a round on the caller's goroutine, swallowing the
// error: background failures are visible only through State.
func (s *Scheduler) runBackground(trigger Trigger) {
	if _, err := s.runOnce(context.Background(), trigger); err != nil && !errors.Is(err, ErrSyncInFlight) {
		s.logger.Warn("background sync failed", "trigger", trigger, "error", err)
	}
}

// runOnce is the single execution slot: check-and-set the guard, run the
// round, record the outcome, maybe schedule a retry.
func (s *Scheduler) runOnce(ctx context.Context, trigger Trigger) (*sync.Round, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("trigger dropped, sync in flight", "trigger", trigger)
		return nil, ErrSyncInFlight
	}
	defer s.syncing.Store(false)

	s.logger.Debug("sync round starting", "trigger", trigger)
	round, err := s.runner.RunRound(ctx)
	s.recordOutcome(trigger, err)
	return round, err
}

func (s *Scheduler) recordOutcome(trigger Trigger, err error) {
	now := time.Now()

	s.mu.Lock()
	s.lastSyncAt = &now
	if err == nil {
		s.lastSyncOK = true
		s.failures = 0
	} else {
		s.lastSyncOK = false
		s.failures++
	}
	failures := s.failures
	started := s.started
	s.mu.Unlock()

	if serr := s.store.RecordSyncOutcome(err == nil); serr != nil {
		s.logger.Error("record sync outcome", "error", serr)
	}
	if err == nil {
		return
	}

	// Auth failures need fresh credentials, not retries. Manual rounds
	// surface their error directly; retrying behind the caller's back
	// would double-report.
	if errors.Is(err, sync.ErrUnauthorized) || trigger == TriggerManual {
		return
	}
	if !started || failures >= s.cfg.MaxRetries {
		return
	}

	delay := s.backoff.delay(failures)

	s.mu.Lock()
	// Stop may have landed since the snapshot above; a retry armed now
	// would outlive the scheduler
	if !s.started {
		s.mu.Unlock()
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(delay, func() {
		s.runBackground(TriggerRetry)
	})
	s.mu.Unlock()

	s.logger.Debug("scheduling sync retry", "attempt", failures, "delay", delay)
}
