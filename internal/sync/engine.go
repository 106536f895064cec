package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Engine runs sync rounds: pull remote changes, apply them, then push
// local ones. One Engine per open database; rounds are serialized by the
// scheduler, the Engine itself holds no locks.
type Engine struct {
	transport Transport
	log       ChangeLog
	logger    *slog.Logger
}

// NewEngine creates an engine over the given transport and change log.
func NewEngine(transport Transport, log ChangeLog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{transport: transport, log: log, logger: logger}
}

// RunRound performs one pull-then-push round.
//
// Pull failures degrade gracefully: the round continues with an empty
// remote change set and an unchanged cursor, deferring server changes to
// the next attempt. Push failures propagate; local changes stay
// unacknowledged and are retried next round. Auth failures propagate from
// either phase and must not be retried by the caller.
func (e *Engine) RunRound(ctx context.Context) (*Round, error) {
	cursor, err := e.log.Cursor()
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}

	round := &Round{Cursor: cursor, StartedAt: time.Now()}
	if cursor != nil {
		round.NewCursor = *cursor
	}

	pushCursor, err := e.pull(ctx, round)
	if err != nil {
		return nil, err
	}

	if err := e.push(ctx, round, pushCursor); err != nil {
		return nil, err
	}

	round.FinishedAt = time.Now()
	e.logger.Debug("sync round finished",
		"pulled", round.Pulled, "pushed", round.Pushed, "pull_ok", round.PullOK, "cursor", round.NewCursor)
	return round, nil
}

// pull fetches and applies the server's change history page by page,
// returning the cursor the push phase must use.
func (e *Engine) pull(ctx context.Context, round *Round) (*int64, error) {
	pullCursor := round.Cursor
	round.PullOK = true

	for {
		res, err := e.transport.Pull(ctx, pullCursor)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return nil, fmt.Errorf("pull: %w", err)
			}
			// Retryable no-op: cursor stays where it was
			e.logger.Warn("pull failed, deferring to next round", "error", err)
			round.PullOK = false
			return round.Cursor, nil
		}

		if err := e.log.ApplyRemoteChanges(res.Changes, res.Timestamp); err != nil {
			return nil, fmt.Errorf("apply remote changes: %w", err)
		}

		round.Pulled += res.Changes.Count()
		round.NewCursor = res.Timestamp
		pullCursor = &res.Timestamp

		if !res.HasMore {
			return pullCursor, nil
		}
	}
}

// push sends unacknowledged local changes against the cursor obtained by
// this round's pull. Skipped entirely when there is nothing to send.
func (e *Engine) push(ctx context.Context, round *Round, cursor *int64) error {
	changes, maxID, err := e.log.CollectLocalChanges()
	if err != nil {
		return fmt.Errorf("collect local changes: %w", err)
	}
	if changes.Empty() {
		return nil
	}

	if err := e.transport.Push(ctx, changes, cursor); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	// Acknowledge only after the server accepted the batch; a crash
	// before this line re-pushes the same window, which the server
	// treats as a no-op.
	if err := e.log.MarkSynced(maxID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	round.Pushed = changes.Count()
	return nil
}
