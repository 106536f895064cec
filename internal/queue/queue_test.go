package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/models"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	d, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return New(d, nil)
}

func mustStatus(t *testing.T, q *Queue, id string) models.JobStatus {
	t.Helper()
	job, err := q.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s not found", id)
	}
	return job.Status
}

func TestEnqueueAndProcess(t *testing.T) {
	q := testQueue(t)

	type payload struct {
		N int `json:"n"`
	}

	var got []int
	q.RegisterHandler("test.op", func(ctx context.Context, raw json.RawMessage) error {
		var p payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		got = append(got, p.N)
		return nil
	})

	var ids []string
	for i := 1; i <= 3; i++ {
		id, err := q.Enqueue("test.op", payload{N: i})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, id)
	}

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// FIFO by enqueue order
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("handler order: got %v, want [1 2 3]", got)
	}
	for _, id := range ids {
		if s := mustStatus(t, q, id); s != models.JobCompleted {
			t.Errorf("job %s: got %s, want completed", id, s)
		}
	}
}

func TestUnknownTypeStaysPending(t *testing.T) {
	q := testQueue(t)

	id, err := q.Enqueue("type.without.handler", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if s := mustStatus(t, q, id); s != models.JobPending {
		t.Fatalf("got %s, want pending", s)
	}

	// A later registration picks the job up
	done := false
	q.RegisterHandler("type.without.handler", func(ctx context.Context, raw json.RawMessage) error {
		done = true
		return nil
	})
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !done {
		t.Error("handler not called after registration")
	}
	if s := mustStatus(t, q, id); s != models.JobCompleted {
		t.Errorf("got %s, want completed", s)
	}
}

func TestRetryAccountingToFailure(t *testing.T) {
	q := testQueue(t)

	calls := 0
	q.RegisterHandler("always.fails", func(ctx context.Context, raw json.RawMessage) error {
		calls++
		return errors.New("boom")
	})

	id, err := q.EnqueueWithAttempts("always.fails", nil, 2)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// First attempt: back to Pending
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	job, _ := q.GetJob(id)
	if job.Status != models.JobPending || job.Attempts != 1 {
		t.Fatalf("after first attempt: status=%s attempts=%d", job.Status, job.Attempts)
	}

	// Second attempt hits the ceiling: Failed, error recorded
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	job, _ = q.GetJob(id)
	if job.Status != models.JobFailed || job.Attempts != 2 {
		t.Fatalf("after ceiling: status=%s attempts=%d", job.Status, job.Attempts)
	}
	if job.LastError != "boom" {
		t.Errorf("last error: got %q", job.LastError)
	}

	// Failed jobs are not picked up again
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("handler calls: got %d, want 2", calls)
	}
}

func TestHandlerErrorDoesNotAbortDrain(t *testing.T) {
	q := testQueue(t)

	q.RegisterHandler("bad", func(ctx context.Context, raw json.RawMessage) error {
		return errors.New("nope")
	})
	ran := false
	q.RegisterHandler("good", func(ctx context.Context, raw json.RawMessage) error {
		ran = true
		return nil
	})

	if _, err := q.Enqueue("bad", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	goodID, err := q.Enqueue("good", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !ran {
		t.Error("later job skipped after earlier failure")
	}
	if s := mustStatus(t, q, goodID); s != models.JobCompleted {
		t.Errorf("good job: got %s", s)
	}
}

func TestCancelSemantics(t *testing.T) {
	q := testQueue(t)

	id, err := q.Enqueue("noop", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	ok, err := q.Cancel(id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !ok {
		t.Fatal("pending job should be cancellable")
	}
	if s := mustStatus(t, q, id); s != models.JobCancelled {
		t.Fatalf("got %s, want cancelled", s)
	}

	// Cancelling again is a no-op, not an error
	ok, err = q.Cancel(id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if ok {
		t.Error("finished job reported as cancelled")
	}

	// Unknown job
	ok, err = q.Cancel("no-such-id")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if ok {
		t.Error("unknown job reported as cancelled")
	}

	// Cancelled jobs are never dispatched
	called := false
	q.RegisterHandler("noop", func(ctx context.Context, raw json.RawMessage) error {
		called = true
		return nil
	})
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if called {
		t.Error("cancelled job was dispatched")
	}
}

func TestCancelAfterSnapshotSkipsJob(t *testing.T) {
	q := testQueue(t)

	firstID, err := q.Enqueue("canceller", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	victimID, err := q.Enqueue("victim", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The first job cancels the second mid-drain: the claim re-check must
	// keep the cancelled job from running even though it was in the
	// snapshot.
	q.RegisterHandler("canceller", func(ctx context.Context, raw json.RawMessage) error {
		_, err := q.Cancel(victimID)
		return err
	})
	ran := false
	q.RegisterHandler("victim", func(ctx context.Context, raw json.RawMessage) error {
		ran = true
		return nil
	})

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if ran {
		t.Error("job cancelled mid-drain still ran")
	}
	if s := mustStatus(t, q, firstID); s != models.JobCompleted {
		t.Errorf("canceller: got %s", s)
	}
	if s := mustStatus(t, q, victimID); s != models.JobCancelled {
		t.Errorf("victim: got %s", s)
	}
}

func TestCancelDuringProcessingSticks(t *testing.T) {
	q := testQueue(t)

	// The handler cancels its own job mid-flight. Handlers run without
	// the write lock, so Cancel can land while the job is Processing.
	ids := map[string]string{}

	q.RegisterHandler("cancel.then.fail", func(ctx context.Context, raw json.RawMessage) error {
		if _, err := q.Cancel(ids["fail"]); err != nil {
			t.Errorf("Cancel failed: %v", err)
		}
		return errors.New("boom")
	})
	q.RegisterHandler("cancel.then.succeed", func(ctx context.Context, raw json.RawMessage) error {
		if _, err := q.Cancel(ids["ok"]); err != nil {
			t.Errorf("Cancel failed: %v", err)
		}
		return nil
	})

	var err error
	if ids["fail"], err = q.Enqueue("cancel.then.fail", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if ids["ok"], err = q.Enqueue("cancel.then.succeed", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// A handler failure must not revive the cancelled job to Pending
	if s := mustStatus(t, q, ids["fail"]); s != models.JobCancelled {
		t.Errorf("cancelled job after handler failure: got %s, want cancelled", s)
	}
	// A handler success must not finish the cancelled job to Completed
	if s := mustStatus(t, q, ids["ok"]); s != models.JobCancelled {
		t.Errorf("cancelled job after handler success: got %s, want cancelled", s)
	}

	// The dropped failure did not burn an attempt either
	job, err := q.GetJob(ids["fail"])
	if err != nil || job == nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Attempts != 0 {
		t.Errorf("attempts on cancelled job: got %d, want 0", job.Attempts)
	}

	// Cancelled jobs are not picked up by a later drain
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if s := mustStatus(t, q, ids["fail"]); s != models.JobCancelled {
		t.Errorf("cancelled job re-ran: got %s", s)
	}
}

func TestSingleDrain(t *testing.T) {
	q := testQueue(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	q.RegisterHandler("block", func(ctx context.Context, raw json.RawMessage) error {
		close(entered)
		<-release
		return nil
	})
	if _, err := q.Enqueue("block", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		firstErr = q.Process(context.Background())
	}()

	<-entered
	if err := q.Process(context.Background()); !errors.Is(err, ErrDrainInFlight) {
		t.Errorf("concurrent drain: got %v, want ErrDrainInFlight", err)
	}
	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first drain failed: %v", firstErr)
	}

	// The slot is free again afterwards
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("drain after release failed: %v", err)
	}
}

func TestRetryFailedResetsBudget(t *testing.T) {
	q := testQueue(t)

	fail := true
	q.RegisterHandler("flaky", func(ctx context.Context, raw json.RawMessage) error {
		if fail {
			return errors.New("transient")
		}
		return nil
	})

	id, err := q.EnqueueWithAttempts("flaky", nil, 1)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if s := mustStatus(t, q, id); s != models.JobFailed {
		t.Fatalf("got %s, want failed", s)
	}

	n, err := q.RetryFailed()
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("reset count: got %d, want 1", n)
	}
	job, _ := q.GetJob(id)
	if job.Status != models.JobPending || job.Attempts != 0 || job.LastError != "" {
		t.Fatalf("after reset: %+v", job)
	}

	fail = false
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if s := mustStatus(t, q, id); s != models.JobCompleted {
		t.Errorf("got %s, want completed", s)
	}
}

func TestStatusCountsAndClear(t *testing.T) {
	q := testQueue(t)

	q.RegisterHandler("ok", func(ctx context.Context, raw json.RawMessage) error { return nil })
	q.RegisterHandler("bad", func(ctx context.Context, raw json.RawMessage) error { return errors.New("x") })

	okID, _ := q.Enqueue("ok", nil)
	if _, err := q.EnqueueWithAttempts("bad", nil, 1); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := q.Enqueue("unhandled", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	st, err := q.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if st.Pending != 1 || st.Failed != 1 || st.Processing != 0 {
		t.Fatalf("status: %+v", st)
	}

	removed, err := q.ClearFinished()
	if err != nil {
		t.Fatalf("ClearFinished failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("ClearFinished removed %d, want 1 (the completed job)", removed)
	}
	if job, _ := q.GetJob(okID); job != nil {
		t.Error("completed job not cleared")
	}

	removed, err = q.ClearQueue()
	if err != nil {
		t.Fatalf("ClearQueue failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("ClearQueue removed %d, want 2", removed)
	}
}

func TestMidDrainEnqueueWaits(t *testing.T) {
	q := testQueue(t)

	var secondID string
	ran := map[string]bool{}
	q.RegisterHandler("op", func(ctx context.Context, raw json.RawMessage) error {
		var p struct {
			Name string `json:"name"`
		}
		json.Unmarshal(raw, &p)
		ran[p.Name] = true
		if p.Name == "first" {
			id, err := q.Enqueue("op", map[string]string{"name": "second"})
			if err != nil {
				return err
			}
			secondID = id
		}
		return nil
	})

	if _, err := q.Enqueue("op", map[string]string{"name": "first"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if ran["second"] {
		t.Error("job enqueued mid-drain ran in the same pass")
	}
	if s := mustStatus(t, q, secondID); s != models.JobPending {
		t.Fatalf("mid-drain job: got %s, want pending", s)
	}

	if err := q.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !ran["second"] {
		t.Error("mid-drain job not picked up by the next pass")
	}
}
