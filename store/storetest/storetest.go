// Package storetest is a behavioral test suite shared by every store backend.
//
//	func TestStore(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
//	}
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/workq"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
	"github.com/xraph/workq/store"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"EnqueueAndGet", testEnqueueAndGet},
		{"ClaimEmpty", testClaimEmpty},
		{"FIFOWithoutFailures", testFIFO},
		{"ClaimUniqueness", testClaimUniqueness},
		{"SingleJobTwoClaimers", testSingleJobTwoClaimers},
		{"IdempotentComplete", testIdempotentComplete},
		{"RetryBound", testRetryBound},
		{"ZeroRetriesDeadLetters", testZeroRetries},
		{"RetryPushesToHead", testRetryPushesToHead},
		{"TerminalStability", testTerminalStability},
		{"ScheduledRetry", testScheduledRetry},
		{"LeaseRecovery", testLeaseRecovery},
		{"ExtendLease", testExtendLease},
		{"StaleOwnerCannotReport", testStaleOwnerCannotReport},
		{"FreshJobIgnoresProducerClock", testFreshJobIgnoresProducerClock},
		{"ListAndCount", testListAndCount},
		{"Purge", testPurge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func newJob(jobType string, maxRetries int) *job.Job {
	return job.New(jobType, []byte(`{"n":1}`), job.Options{MaxRetries: maxRetries})
}

func enqueue(t *testing.T, s store.Store, jobType string, maxRetries int) *job.Job {
	t.Helper()
	j := newJob(jobType, maxRetries)
	if err := s.Enqueue(context.Background(), j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return j
}

func claim(t *testing.T, s store.Store, w id.WorkerID) *job.Job {
	t.Helper()
	j, err := s.Claim(context.Background(), w, time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if j == nil {
		t.Fatal("Claim: expected a job, got none")
	}
	return j
}

func count(t *testing.T, s store.Store, state job.State) int64 {
	t.Helper()
	n, err := s.Count(context.Background(), state)
	if err != nil {
		t.Fatalf("Count(%s): %v", state, err)
	}
	return n
}

func get(t *testing.T, s store.Store, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := s.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Get(%s): %v", jobID, err)
	}
	return j
}

// ──────────────────────────────────────────────────
// Cases
// ──────────────────────────────────────────────────

func testEnqueueAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := enqueue(t, s, "send-email", 3)

	got := get(t, s, j.ID)
	if got.ID != j.ID || got.Type != "send-email" || string(got.Payload) != `{"n":1}` {
		t.Errorf("Get returned %+v", got)
	}
	if got.State != job.StatePending || got.RetryCount != 0 || got.MaxRetries != 3 {
		t.Errorf("unexpected state %q retry %d/%d", got.State, got.RetryCount, got.MaxRetries)
	}
	if got.ErrorMessage != "" {
		t.Errorf("pending job has error message %q", got.ErrorMessage)
	}

	if err := s.Enqueue(ctx, j); !errors.Is(err, workq.ErrJobAlreadyExists) {
		t.Errorf("duplicate Enqueue: expected ErrJobAlreadyExists, got %v", err)
	}

	if _, err := s.Get(ctx, id.NewJobID()); !errors.Is(err, workq.ErrJobNotFound) {
		t.Errorf("Get missing: expected ErrJobNotFound, got %v", err)
	}
}

func testClaimEmpty(t *testing.T, s store.Store) {
	j, err := s.Claim(context.Background(), id.NewWorkerID(), time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if j != nil {
		t.Fatalf("expected no job, got %s", j.ID)
	}
}

func testFIFO(t *testing.T, s store.Store) {
	var want []id.JobID
	for i := range 5 {
		want = append(want, enqueue(t, s, fmt.Sprintf("t%d", i), 3).ID)
	}

	w := id.NewWorkerID()
	for i, expected := range want {
		got := claim(t, s, w)
		if got.ID != expected {
			t.Fatalf("claim %d: got %s, want %s", i, got.ID, expected)
		}
		if got.State != job.StateInFlight || got.WorkerID != w {
			t.Errorf("claimed job state %q worker %s", got.State, got.WorkerID)
		}
		if got.LeaseExpiresAt == nil || got.ClaimedAt == nil {
			t.Error("claimed job missing lease timestamps")
		}
	}
}

func testClaimUniqueness(t *testing.T, s store.Store) {
	const jobs, workers = 40, 8
	for range jobs {
		enqueue(t, s, "work", 3)
	}

	var (
		mu   sync.Mutex
		seen = make(map[id.JobID]int)
		wg   sync.WaitGroup
		errs = make(chan error, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := id.NewWorkerID()
			for {
				j, err := s.Claim(context.Background(), w, time.Minute)
				if err != nil {
					errs <- err
					return
				}
				if j == nil {
					return
				}
				mu.Lock()
				seen[j.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Claim: %v", err)
	}

	if len(seen) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(seen), jobs)
	}
	for jobID, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", jobID, n)
		}
	}
	if n := count(t, s, job.StateInFlight); n != jobs {
		t.Errorf("in-flight count = %d, want %d", n, jobs)
	}
}

func testSingleJobTwoClaimers(t *testing.T, s store.Store) {
	enqueue(t, s, "work", 3)

	results := make(chan *job.Job, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, err := s.Claim(context.Background(), id.NewWorkerID(), time.Minute)
			if err != nil {
				t.Errorf("Claim: %v", err)
			}
			results <- j
		}()
	}
	wg.Wait()
	close(results)

	got := 0
	for j := range results {
		if j != nil {
			got++
		}
	}
	if got != 1 {
		t.Fatalf("%d dispatchers received the job, want exactly 1", got)
	}
}

func testIdempotentComplete(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := enqueue(t, s, "work", 3)
	w := id.NewWorkerID()
	claim(t, s, w)

	ok, err := s.Complete(ctx, j.ID, w)
	if err != nil || !ok {
		t.Fatalf("first Complete = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.Complete(ctx, j.ID, w)
	if err != nil || ok {
		t.Fatalf("second Complete = %v, %v; want false, nil", ok, err)
	}
	if n := count(t, s, job.StateCompleted); n != 1 {
		t.Errorf("completed count = %d, want 1", n)
	}

	got := get(t, s, j.ID)
	if got.State != job.StateCompleted || got.FinishedAt == nil {
		t.Errorf("completed job: state %q finished %v", got.State, got.FinishedAt)
	}

	ok, err = s.Complete(ctx, id.NewJobID(), w)
	if err != nil || ok {
		t.Errorf("Complete unknown = %v, %v; want false, nil", ok, err)
	}
}

func testRetryBound(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := enqueue(t, s, "flaky", 2)
	w := id.NewWorkerID()

	claim(t, s, w)
	outcome, err := s.Fail(ctx, j.ID, w, "boom 1", 0)
	if err != nil || outcome != job.OutcomeRetried {
		t.Fatalf("first Fail = %v, %v; want retried", outcome, err)
	}
	got := get(t, s, j.ID)
	if got.State != job.StatePending || got.RetryCount != 1 || got.ErrorMessage != "boom 1" {
		t.Fatalf("after first failure: state %q retry %d error %q", got.State, got.RetryCount, got.ErrorMessage)
	}
	if !got.WorkerID.IsNil() {
		t.Errorf("re-pended job still owned by %s", got.WorkerID)
	}

	claim(t, s, w)
	outcome, err = s.Fail(ctx, j.ID, w, "boom 2", 0)
	if err != nil || outcome != job.OutcomeDeadLettered {
		t.Fatalf("second Fail = %v, %v; want dead_lettered", outcome, err)
	}
	got = get(t, s, j.ID)
	if got.State != job.StateDeadLetter || got.RetryCount != 2 || got.ErrorMessage != "boom 2" {
		t.Fatalf("after second failure: state %q retry %d error %q", got.State, got.RetryCount, got.ErrorMessage)
	}

	if n := count(t, s, job.StatePending); n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
	if n := count(t, s, job.StateDeadLetter); n != 1 {
		t.Errorf("dead-letter count = %d, want 1", n)
	}
}

func testZeroRetries(t *testing.T, s store.Store) {
	j := enqueue(t, s, "once", 0)
	w := id.NewWorkerID()
	claim(t, s, w)

	outcome, err := s.Fail(context.Background(), j.ID, w, "nope", 0)
	if err != nil || outcome != job.OutcomeDeadLettered {
		t.Fatalf("Fail = %v, %v; want dead_lettered", outcome, err)
	}
}

func testRetryPushesToHead(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := enqueue(t, s, "a", 3)
	b := enqueue(t, s, "b", 3)
	w := id.NewWorkerID()

	if got := claim(t, s, w); got.ID != a.ID {
		t.Fatalf("first claim = %s, want a", got.ID)
	}
	if _, err := s.Fail(ctx, a.ID, w, "retry me", 0); err != nil {
		t.Fatal(err)
	}

	if got := claim(t, s, w); got.ID != b.ID {
		t.Fatalf("second claim = %s, want b (retries go to the head)", got.ID)
	}
	if got := claim(t, s, w); got.ID != a.ID {
		t.Fatalf("third claim = %s, want a", got.ID)
	}
}

func testTerminalStability(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := id.NewWorkerID()

	done := enqueue(t, s, "ok", 3)
	claim(t, s, w)
	if _, err := s.Complete(ctx, done.ID, w); err != nil {
		t.Fatal(err)
	}

	dead := enqueue(t, s, "bad", 0)
	claim(t, s, w)
	if _, err := s.Fail(ctx, dead.ID, w, "fatal", 0); err != nil {
		t.Fatal(err)
	}

	for _, jobID := range []id.JobID{done.ID, dead.ID} {
		before := get(t, s, jobID)

		if outcome, err := s.Fail(ctx, jobID, w, "late", 0); err != nil || outcome != job.OutcomeNone {
			t.Errorf("Fail on terminal job = %v, %v", outcome, err)
		}
		if ok, err := s.Complete(ctx, jobID, w); err != nil || ok {
			t.Errorf("Complete on terminal job = %v, %v", ok, err)
		}
		if ok, err := s.ExtendLease(ctx, jobID, w, time.Hour); err != nil || ok {
			t.Errorf("ExtendLease on terminal job = %v, %v", ok, err)
		}
		if _, err := s.RecoverExpired(ctx, time.Now().Add(24*time.Hour)); err != nil {
			t.Fatal(err)
		}

		after := get(t, s, jobID)
		if after.State != before.State || after.RetryCount != before.RetryCount ||
			after.ErrorMessage != before.ErrorMessage || !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Errorf("terminal job mutated: before %+v after %+v", before, after)
		}
	}
}

func testScheduledRetry(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := id.NewWorkerID()

	parked := enqueue(t, s, "later", 3)
	claim(t, s, w)
	outcome, err := s.Fail(ctx, parked.ID, w, "wait", time.Hour)
	if err != nil || outcome != job.OutcomeScheduled {
		t.Fatalf("Fail with delay = %v, %v; want scheduled", outcome, err)
	}
	if n := count(t, s, job.StatePending); n != 1 {
		t.Errorf("pending count = %d, want 1", n)
	}
	if j, err := s.Claim(ctx, w, time.Minute); err != nil || j != nil {
		t.Fatalf("Claim before due = %v, %v; want nothing", j, err)
	}

	soon := enqueue(t, s, "soon", 3)
	claim(t, s, w)
	if _, err := s.Fail(ctx, soon.ID, w, "wait", 20*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)

	got := claim(t, s, w)
	if got.ID != soon.ID || got.RetryCount != 1 {
		t.Fatalf("claim after due = %s (retry %d), want %s", got.ID, got.RetryCount, soon.ID)
	}

	list, err := s.List(ctx, job.StatePending, job.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != parked.ID || !list[0].RunAt.After(time.Now()) {
		t.Errorf("pending list = %+v, want only the parked job", list)
	}
}

func testLeaseRecovery(t *testing.T, s store.Store) {
	ctx := context.Background()
	enqueue(t, s, "other", 3)
	j := enqueue(t, s, "crashy", 3)

	w := id.NewWorkerID()
	first := claim(t, s, w)
	held := claim(t, s, w)
	if _, err := s.Complete(ctx, first.ID, w); err != nil {
		t.Fatal(err)
	}
	if held.ID != j.ID {
		t.Fatalf("claimed %s, want %s", held.ID, j.ID)
	}

	recovered, err := s.RecoverExpired(ctx, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(recovered) != 0 {
		t.Fatalf("recovered %v before lease expiry", recovered)
	}

	recovered, err = s.RecoverExpired(ctx, time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(recovered) != 1 || recovered[0] != j.ID {
		t.Fatalf("recovered %v, want [%s]", recovered, j.ID)
	}

	got := get(t, s, j.ID)
	if got.State != job.StatePending || got.RetryCount != 0 || !got.WorkerID.IsNil() {
		t.Errorf("recovered job: state %q retry %d worker %s", got.State, got.RetryCount, got.WorkerID)
	}
	if n := count(t, s, job.StateInFlight); n != 0 {
		t.Errorf("in-flight count = %d, want 0", n)
	}

	again := claim(t, s, id.NewWorkerID())
	if again.ID != j.ID {
		t.Errorf("reclaimed %s, want %s", again.ID, j.ID)
	}
}

func testExtendLease(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := enqueue(t, s, "slow", 3)
	w := id.NewWorkerID()

	if _, err := s.Claim(ctx, w, time.Second); err != nil {
		t.Fatal(err)
	}

	ok, err := s.ExtendLease(ctx, j.ID, id.NewWorkerID(), time.Hour)
	if err != nil || ok {
		t.Errorf("ExtendLease by another worker = %v, %v; want false", ok, err)
	}
	ok, err = s.ExtendLease(ctx, j.ID, w, time.Hour)
	if err != nil || !ok {
		t.Fatalf("ExtendLease by owner = %v, %v; want true", ok, err)
	}

	recovered, err := s.RecoverExpired(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(recovered) != 0 {
		t.Errorf("extended job was recovered: %v", recovered)
	}

	got := get(t, s, j.ID)
	if got.LeaseExpiresAt == nil || got.LeaseExpiresAt.Before(time.Now().Add(50*time.Minute)) {
		t.Errorf("lease not extended: %v", got.LeaseExpiresAt)
	}
}

func testStaleOwnerCannotReport(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := enqueue(t, s, "slow", 3)

	stale := id.NewWorkerID()
	if _, err := s.Claim(ctx, stale, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	recovered, err := s.RecoverExpired(ctx, time.Now())
	if err != nil || len(recovered) != 1 {
		t.Fatalf("RecoverExpired = %v, %v; want the held job", recovered, err)
	}

	owner := id.NewWorkerID()
	if got := claim(t, s, owner); got.ID != j.ID {
		t.Fatalf("reclaimed %s, want %s", got.ID, j.ID)
	}

	if outcome, err := s.Fail(ctx, j.ID, stale, "late failure", 0); err != nil || outcome != job.OutcomeNone {
		t.Errorf("Fail by stale owner = %v, %v; want none", outcome, err)
	}
	if ok, err := s.Complete(ctx, j.ID, stale); err != nil || ok {
		t.Errorf("Complete by stale owner = %v, %v; want false", ok, err)
	}

	got := get(t, s, j.ID)
	if got.State != job.StateInFlight || got.WorkerID != owner || got.RetryCount != 0 || got.ErrorMessage != "" {
		t.Fatalf("stale report changed the job: state %q worker %s retry %d error %q",
			got.State, got.WorkerID, got.RetryCount, got.ErrorMessage)
	}
	if third, err := s.Claim(ctx, id.NewWorkerID(), time.Minute); err != nil || third != nil {
		t.Fatalf("Claim while owner runs = %v, %v; want nothing", third, err)
	}

	if ok, err := s.Complete(ctx, j.ID, owner); err != nil || !ok {
		t.Fatalf("Complete by owner = %v, %v; want true", ok, err)
	}
}

func testFreshJobIgnoresProducerClock(t *testing.T, s store.Store) {
	j := newJob("skewed", 3)
	j.RunAt = time.Now().Add(time.Hour)
	j.CreatedAt = j.RunAt
	j.UpdatedAt = j.RunAt
	if err := s.Enqueue(context.Background(), j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if got := claim(t, s, id.NewWorkerID()); got.ID != j.ID {
		t.Fatalf("claimed %s, want %s", got.ID, j.ID)
	}
}

func testListAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := id.NewWorkerID()

	var ids []id.JobID
	for i := range 4 {
		ids = append(ids, enqueue(t, s, fmt.Sprintf("t%d", i), 3).ID)
	}
	for range 3 {
		j := claim(t, s, w)
		if _, err := s.Complete(ctx, j.ID, w); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if n := count(t, s, job.StatePending); n != 1 {
		t.Errorf("pending = %d, want 1", n)
	}
	if n := count(t, s, job.StateCompleted); n != 3 {
		t.Errorf("completed = %d, want 3", n)
	}

	completed, err := s.List(ctx, job.StateCompleted, job.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 3 || completed[0].ID != ids[2] || completed[2].ID != ids[0] {
		t.Errorf("completed list not newest first: %v", jobIDs(completed))
	}

	paged, err := s.List(ctx, job.StateCompleted, job.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(paged) != 1 || paged[0].ID != ids[1] {
		t.Errorf("paged list = %v, want [%s]", jobIDs(paged), ids[1])
	}

	pending, err := s.List(ctx, job.StatePending, job.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != ids[3] {
		t.Errorf("pending list = %v", jobIDs(pending))
	}

	beyond, err := s.List(ctx, job.StateCompleted, job.ListOpts{Offset: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(beyond) != 0 {
		t.Errorf("offset past end returned %d jobs", len(beyond))
	}
}

func testPurge(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := id.NewWorkerID()

	for range 2 {
		enqueue(t, s, "ok", 3)
		j := claim(t, s, w)
		if _, err := s.Complete(ctx, j.ID, w); err != nil {
			t.Fatal(err)
		}
	}
	dead := enqueue(t, s, "bad", 0)
	claim(t, s, w)
	if _, err := s.Fail(ctx, dead.ID, w, "x", 0); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Purge(ctx, job.StatePending, time.Now()); !errors.Is(err, workq.ErrInvalidState) {
		t.Errorf("Purge pending: expected ErrInvalidState, got %v", err)
	}

	n, err := s.Purge(ctx, job.StateCompleted, time.Now().Add(-time.Hour))
	if err != nil || n != 0 {
		t.Errorf("Purge old = %d, %v; want 0", n, err)
	}

	n, err = s.Purge(ctx, job.StateCompleted, time.Now().Add(time.Second))
	if err != nil || n != 2 {
		t.Fatalf("Purge completed = %d, %v; want 2", n, err)
	}
	if c := count(t, s, job.StateCompleted); c != 0 {
		t.Errorf("completed after purge = %d", c)
	}
	if c := count(t, s, job.StateDeadLetter); c != 1 {
		t.Errorf("purging completed touched dead-letter: %d", c)
	}
}

func jobIDs(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID.String()
	}
	return out
}
