package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
	"github.com/xraph/workq/store/memory"
	"github.com/xraph/workq/worker"
)

// flakyStore fails the first n claims.
type flakyStore struct {
	*memory.Store
	failures atomic.Int32
}

func (f *flakyStore) Claim(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection refused")
	}
	return f.Store.Claim(ctx, workerID, lease)
}

func TestDispatcher_PollEmpty(t *testing.T) {
	s := memory.New()
	ex := worker.NewExecutor(job.NewRegistry(), nil, s, nil, slog.Default())
	d := worker.NewDispatcher(s, ex, nil, slog.Default())

	dispatched, err := d.Poll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatched {
		t.Fatal("expected nothing dispatched on an empty queue")
	}
}

func TestDispatcher_FIFOWithSingleWorker(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	var order []id.JobID
	reg.MustRegister("step", job.HandlerFunc(func(_ context.Context, j *job.Job) error {
		order = append(order, j.ID)
		return nil
	}))
	ex := worker.NewExecutor(reg, nil, s, nil, slog.Default())
	d := worker.NewDispatcher(s, ex, nil, slog.Default())

	var want []id.JobID
	for range 5 {
		want = append(want, enqueue(t, s, "step", 3).ID)
	}

	for {
		dispatched, err := d.Poll(context.Background())
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if !dispatched {
			break
		}
	}

	if len(order) != len(want) {
		t.Fatalf("dispatched %d jobs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, order[i], want[i])
		}
	}
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	s := memory.New()
	ex := worker.NewExecutor(job.NewRegistry(), nil, s, nil, slog.Default())
	d := worker.NewDispatcher(s, ex, nil, slog.Default(),
		worker.WithDispatcherPollInterval(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDispatcher_SurvivesClaimErrors(t *testing.T) {
	fs := &flakyStore{Store: memory.New()}
	fs.failures.Store(3)

	reg := job.NewRegistry()
	reg.MustRegister("ok", job.HandlerFunc(func(context.Context, *job.Job) error { return nil }))
	ex := worker.NewExecutor(reg, nil, fs, nil, slog.Default())
	d := worker.NewDispatcher(fs, ex, nil, slog.Default(),
		worker.WithDispatcherPollInterval(5*time.Millisecond),
	)

	j := enqueue(t, fs.Store, "ok", 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	waitFor(t, 2*time.Second, "job completion after claim errors", func() bool {
		return get(t, fs.Store, j.ID).State == job.StateCompleted
	})
}

func TestDispatcher_HeartbeatKeepsLease(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})
	reg.MustRegister("slow", job.HandlerFunc(func(context.Context, *job.Job) error {
		close(started)
		<-release
		return nil
	}))
	ex := worker.NewExecutor(reg, nil, s, nil, slog.Default())
	d := worker.NewDispatcher(s, ex, nil, slog.Default(),
		worker.WithLease(80*time.Millisecond),
		worker.WithHeartbeat(15*time.Millisecond),
	)

	j := enqueue(t, s, "slow", 3)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := d.Poll(context.Background()); err != nil {
			t.Errorf("poll: %v", err)
		}
	}()

	<-started
	time.Sleep(200 * time.Millisecond)

	recovered, err := s.RecoverExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(recovered) != 0 {
		t.Fatalf("heartbeated job was recovered: %v", recovered)
	}

	close(release)
	wg.Wait()

	if got := get(t, s, j.ID); got.State != job.StateCompleted {
		t.Errorf("state = %s, want completed", got.State)
	}
}

func TestDispatcher_LimiterThrottlesClaims(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	var runs atomic.Int32
	reg.MustRegister("ok", job.HandlerFunc(func(context.Context, *job.Job) error {
		runs.Add(1)
		return nil
	}))
	ex := worker.NewExecutor(reg, nil, s, nil, slog.Default())
	d := worker.NewDispatcher(s, ex, nil, slog.Default(),
		worker.WithDispatcherPollInterval(time.Millisecond),
		worker.WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)),
	)

	for range 3 {
		enqueue(t, s, "ok", 3)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = d.Run(ctx)

	if got := runs.Load(); got != 1 {
		t.Errorf("ran %d jobs, want 1 with a one-token limiter", got)
	}
}

func TestDispatcher_StampsWorkerID(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	wid := id.NewWorkerID()
	var seen id.WorkerID
	reg.MustRegister("ok", job.HandlerFunc(func(_ context.Context, j *job.Job) error {
		seen = j.WorkerID
		return nil
	}))
	ex := worker.NewExecutor(reg, nil, s, nil, slog.Default())
	d := worker.NewDispatcher(s, ex, nil, slog.Default(), worker.WithWorkerID(wid))

	enqueue(t, s, "ok", 3)
	if _, err := d.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if seen != wid || d.WorkerID() != wid {
		t.Errorf("worker id = %s, want %s", seen, wid)
	}
}
