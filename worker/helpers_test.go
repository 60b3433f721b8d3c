package worker_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
	"github.com/xraph/workq/store/memory"
)

// recorder is an extension that records every lifecycle event it sees.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) has(ev string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == ev {
			return true
		}
	}
	return false
}

func (r *recorder) OnJobClaimed(context.Context, *job.Job) error { r.add("claimed"); return nil }

func (r *recorder) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	r.add("completed")
	return nil
}

func (r *recorder) OnJobRetrying(context.Context, *job.Job, int, time.Duration) error {
	r.add("retrying")
	return nil
}

func (r *recorder) OnJobDeadLettered(context.Context, *job.Job, error) error {
	r.add("dead_lettered")
	return nil
}

func (r *recorder) OnJobRecovered(context.Context, id.JobID) error { r.add("recovered"); return nil }

func (r *recorder) OnReportRace(_ context.Context, _ *job.Job, op string) error {
	r.add("race:" + op)
	return nil
}

func (r *recorder) OnShutdown(context.Context) error { r.add("shutdown"); return nil }

func newExtensions(rec *recorder) *ext.Registry {
	reg := ext.NewRegistry(slog.Default())
	reg.Register(rec)
	return reg
}

func enqueue(t *testing.T, s *memory.Store, jobType string, maxRetries int) *job.Job {
	t.Helper()
	j := job.New(jobType, []byte(`{}`), job.Options{MaxRetries: maxRetries})
	if err := s.Enqueue(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return j
}

func claim(t *testing.T, s *memory.Store) *job.Job {
	t.Helper()
	j, err := s.Claim(context.Background(), id.NewWorkerID(), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if j == nil {
		t.Fatal("claim: queue unexpectedly empty")
	}
	return j
}

func get(t *testing.T, s *memory.Store, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := s.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get %s: %v", jobID, err)
	}
	return j
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func countState(t *testing.T, s *memory.Store, state job.State) int64 {
	t.Helper()
	n, err := s.Count(context.Background(), state)
	if err != nil {
		t.Fatalf("count %s: %v", state, err)
	}
	return n
}
