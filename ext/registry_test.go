package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	name  string
	calls *[]string
}

func newAllHooks(name string, calls *[]string) *allHooksExt {
	return &allHooksExt{name: name, calls: calls}
}

func (e *allHooksExt) record(hook string) {
	*e.calls = append(*e.calls, e.name+":"+hook)
}

func (e *allHooksExt) Name() string { return e.name }

func (e *allHooksExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	e.record("OnJobEnqueued")
	return nil
}

func (e *allHooksExt) OnJobClaimed(_ context.Context, _ *job.Job) error {
	e.record("OnJobClaimed")
	return nil
}

func (e *allHooksExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.record("OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Duration) error {
	e.record("OnJobRetrying")
	return nil
}

func (e *allHooksExt) OnJobDeadLettered(_ context.Context, _ *job.Job, _ error) error {
	e.record("OnJobDeadLettered")
	return nil
}

func (e *allHooksExt) OnJobRecovered(_ context.Context, _ id.JobID) error {
	e.record("OnJobRecovered")
	return nil
}

func (e *allHooksExt) OnReportRace(_ context.Context, _ *job.Job, _ string) error {
	e.record("OnReportRace")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.record("OnShutdown")
	return nil
}

// enqueueOnlyExt only implements JobEnqueued and JobCompleted.
type enqueueOnlyExt struct {
	calls []string
}

func (e *enqueueOnlyExt) Name() string { return "enqueue-only" }

func (e *enqueueOnlyExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *enqueueOnlyExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	var calls []string
	r := ext.NewRegistry(slog.Default())
	r.Register(newAllHooks("all-hooks", &calls))

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	var calls []string
	r := ext.NewRegistry(slog.Default())
	r.Register(newAllHooks("all", &calls))
	eo := &enqueueOnlyExt{}
	r.Register(eo)

	ctx := context.Background()
	j := &job.Job{Type: "test-job"}

	r.EmitJobEnqueued(ctx, j)
	if len(calls) != 1 || calls[0] != "all:OnJobEnqueued" {
		t.Fatalf("all: expected [all:OnJobEnqueued], got %v", calls)
	}
	if len(eo.calls) != 1 || eo.calls[0] != "OnJobEnqueued" {
		t.Fatalf("enqueue-only: expected [OnJobEnqueued], got %v", eo.calls)
	}

	r.EmitJobClaimed(ctx, j)
	if len(calls) != 2 || calls[1] != "all:OnJobClaimed" {
		t.Fatalf("all: expected OnJobClaimed as 2nd, got %v", calls)
	}
	if len(eo.calls) != 1 {
		t.Fatalf("enqueue-only: should still have 1 call, got %v", eo.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	var calls []string
	r := ext.NewRegistry(slog.Default())
	r.Register(newAllHooks("all", &calls))

	ctx := context.Background()
	j := &job.Job{Type: "test-job"}

	r.EmitJobEnqueued(ctx, j)
	r.EmitJobClaimed(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobRetrying(ctx, j, 1, 0)
	r.EmitJobDeadLettered(ctx, j, errors.New("dead"))
	r.EmitJobRecovered(ctx, id.NewJobID())
	r.EmitReportRace(ctx, j, "complete")
	r.EmitShutdown(ctx)

	expected := []string{
		"all:OnJobEnqueued", "all:OnJobClaimed", "all:OnJobCompleted",
		"all:OnJobRetrying", "all:OnJobDeadLettered", "all:OnJobRecovered",
		"all:OnReportRace", "all:OnShutdown",
	}
	if len(calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(calls), calls)
	}
	for i, want := range expected {
		if calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	var calls []string
	r := ext.NewRegistry(slog.Default())

	// Register failing first, then all-hooks. Both should be called.
	r.Register(&failingExt{})
	r.Register(newAllHooks("all", &calls))

	ctx := context.Background()
	r.EmitJobEnqueued(ctx, &job.Job{Type: "test-job"})
	r.EmitShutdown(ctx)

	if len(calls) != 2 || calls[0] != "all:OnJobEnqueued" || calls[1] != "all:OnShutdown" {
		t.Fatalf("expected hooks after failing ext to fire, got %v", calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()

	r.EmitJobEnqueued(ctx, &job.Job{})
	r.EmitJobClaimed(ctx, &job.Job{})
	r.EmitJobCompleted(ctx, &job.Job{}, time.Second)
	r.EmitJobRetrying(ctx, &job.Job{}, 1, time.Second)
	r.EmitJobDeadLettered(ctx, &job.Job{}, errors.New("x"))
	r.EmitJobRecovered(ctx, id.NewJobID())
	r.EmitReportRace(ctx, &job.Job{}, "fail")
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	var calls []string
	r := ext.NewRegistry(slog.Default())
	r.Register(newAllHooks("first", &calls))
	r.Register(newAllHooks("second", &calls))

	r.EmitJobEnqueued(context.Background(), &job.Job{})

	want := []string{"first:OnJobEnqueued", "second:OnJobEnqueued"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}
