package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/workq"
	"github.com/xraph/workq/backoff"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
	"github.com/xraph/workq/middleware"
	"github.com/xraph/workq/store/memory"
	"github.com/xraph/workq/worker"
)

func TestExecutor_Success(t *testing.T) {
	s := memory.New()
	rec := &recorder{}
	reg := job.NewRegistry()
	reg.MustRegister("ok", job.HandlerFunc(func(context.Context, *job.Job) error { return nil }))
	ex := worker.NewExecutor(reg, newExtensions(rec), s, nil, slog.Default())

	j := enqueue(t, s, "ok", 3)
	outcome, err := ex.Execute(context.Background(), claim(t, s))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != job.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if got := get(t, s, j.ID); got.State != job.StateCompleted {
		t.Errorf("state = %s, want completed", got.State)
	}
	if !rec.has("completed") {
		t.Error("JobCompleted not emitted")
	}
}

func TestExecutor_HandlerErrorRetries(t *testing.T) {
	s := memory.New()
	rec := &recorder{}
	reg := job.NewRegistry()
	reg.MustRegister("flaky", job.HandlerFunc(func(context.Context, *job.Job) error {
		return errors.New("smtp timeout")
	}))
	ex := worker.NewExecutor(reg, newExtensions(rec), s, nil, slog.Default())

	j := enqueue(t, s, "flaky", 3)
	outcome, err := ex.Execute(context.Background(), claim(t, s))
	if err != nil {
		t.Fatalf("handler errors must not escape: %v", err)
	}
	if outcome != job.OutcomeRetried {
		t.Fatalf("outcome = %v, want retried", outcome)
	}

	got := get(t, s, j.ID)
	if got.State != job.StatePending || got.RetryCount != 1 || got.ErrorMessage != "smtp timeout" {
		t.Errorf("got state=%s retry=%d err=%q", got.State, got.RetryCount, got.ErrorMessage)
	}
	if !rec.has("retrying") {
		t.Error("JobRetrying not emitted")
	}
}

func TestExecutor_MissingHandlerDeadLetters(t *testing.T) {
	s := memory.New()
	rec := &recorder{}
	ex := worker.NewExecutor(job.NewRegistry(), newExtensions(rec), s, nil, slog.Default())

	j := enqueue(t, s, "unknown", 2)

	want := []job.Outcome{job.OutcomeRetried, job.OutcomeDeadLettered}
	for i, w := range want {
		outcome, err := ex.Execute(context.Background(), claim(t, s))
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if outcome != w {
			t.Fatalf("attempt %d: outcome = %v, want %v", i+1, outcome, w)
		}
	}

	got := get(t, s, j.ID)
	if got.State != job.StateDeadLetter {
		t.Fatalf("state = %s, want dead_letter", got.State)
	}
	if got.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", got.RetryCount)
	}
	if got.ErrorMessage != workq.ErrHandlerMissing.Error() {
		t.Errorf("error = %q, want %q", got.ErrorMessage, workq.ErrHandlerMissing.Error())
	}
	if !rec.has("dead_lettered") {
		t.Error("JobDeadLettered not emitted")
	}
}

func TestExecutor_BackoffSchedulesRetry(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	reg.MustRegister("flaky", job.HandlerFunc(func(context.Context, *job.Job) error {
		return errors.New("try later")
	}))
	ex := worker.NewExecutor(reg, nil, s, backoff.NewConstant(time.Hour), slog.Default())

	enqueue(t, s, "flaky", 3)
	outcome, err := ex.Execute(context.Background(), claim(t, s))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != job.OutcomeScheduled {
		t.Fatalf("outcome = %v, want scheduled", outcome)
	}

	next, err := s.Claim(context.Background(), id.NewWorkerID(), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if next != nil {
		t.Fatal("scheduled retry claimed before its delay")
	}
}

func TestExecutor_ReportRaceIsNotFatal(t *testing.T) {
	s := memory.New()
	rec := &recorder{}
	reg := job.NewRegistry()
	reg.MustRegister("ok", job.HandlerFunc(func(context.Context, *job.Job) error { return nil }))
	ex := worker.NewExecutor(reg, newExtensions(rec), s, nil, slog.Default())

	enqueue(t, s, "ok", 3)
	j := claim(t, s)

	// Another reporter resolves the job first.
	if ok, err := s.Complete(context.Background(), j.ID, j.WorkerID); err != nil || !ok {
		t.Fatalf("first complete: ok=%v err=%v", ok, err)
	}

	outcome, err := ex.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("reporting race must not be an error: %v", err)
	}
	if outcome != job.OutcomeNone {
		t.Errorf("outcome = %v, want none", outcome)
	}
	if !rec.has("race:complete") {
		t.Error("ReportRace not emitted")
	}
	if n := countState(t, s, job.StateCompleted); n != 1 {
		t.Errorf("completed count = %d, want 1", n)
	}
}

func TestExecutor_StaleOwnerCannotFailReclaimedJob(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	rec := &recorder{}
	reg := job.NewRegistry()
	reg.MustRegister("slow", job.HandlerFunc(func(context.Context, *job.Job) error {
		return errors.New("gave up")
	}))
	ex := worker.NewExecutor(reg, newExtensions(rec), s, nil, slog.Default())

	enqueue(t, s, "slow", 3)
	stale, err := s.Claim(ctx, id.NewWorkerID(), time.Millisecond)
	if err != nil || stale == nil {
		t.Fatalf("claim: %v, %v", stale, err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := s.RecoverExpired(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	owner := claim(t, s)

	outcome, err := ex.Execute(ctx, stale)
	if err != nil {
		t.Fatalf("reporting race must not be an error: %v", err)
	}
	if outcome != job.OutcomeNone {
		t.Fatalf("outcome = %v, want none", outcome)
	}
	if !rec.has("race:fail") {
		t.Error("ReportRace not emitted")
	}

	got := get(t, s, owner.ID)
	if got.State != job.StateInFlight || got.WorkerID != owner.WorkerID || got.RetryCount != 0 {
		t.Errorf("current owner's job changed: state=%s worker=%s retry=%d", got.State, got.WorkerID, got.RetryCount)
	}
}

func TestExecutor_ReportRaceMarksProcessSpan(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	reg.MustRegister("ok", job.HandlerFunc(func(context.Context, *job.Job) error { return nil }))
	ex := worker.NewExecutor(reg, nil, s, nil, slog.Default())
	sr := tracetest.NewSpanRecorder()
	ex.SetTracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)).Tracer("test"))

	enqueue(t, s, "ok", 3)
	j := claim(t, s)
	if ok, err := s.Complete(context.Background(), j.ID, j.WorkerID); err != nil || !ok {
		t.Fatalf("first complete: ok=%v err=%v", ok, err)
	}
	if _, err := ex.Execute(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "workq.job.process" {
		t.Fatalf("spans = %v, want one workq.job.process", spans)
	}
	var race bool
	for _, ev := range spans[0].Events() {
		if ev.Name == middleware.EventReportRace {
			race = true
		}
	}
	if !race {
		t.Error("report race not recorded on the process span")
	}
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "workq.report.outcome" && kv.Value.AsString() != "none" {
			t.Errorf("workq.report.outcome = %s, want none", kv.Value.AsString())
		}
	}
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	reg.MustRegister("panicky", job.HandlerFunc(func(context.Context, *job.Job) error {
		panic("nil map")
	}))
	logger := slog.Default()
	ex := worker.NewExecutor(reg, nil, s, nil, logger, middleware.Recover(logger))

	j := enqueue(t, s, "panicky", 3)
	outcome, err := ex.Execute(context.Background(), claim(t, s))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != job.OutcomeRetried {
		t.Fatalf("outcome = %v, want retried", outcome)
	}
	if got := get(t, s, j.ID); !strings.Contains(got.ErrorMessage, "panic") {
		t.Errorf("error = %q, want panic message", got.ErrorMessage)
	}
}

func TestExecutor_StoreErrorReturned(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	reg.MustRegister("ok", job.HandlerFunc(func(context.Context, *job.Job) error { return nil }))
	ex := worker.NewExecutor(reg, nil, s, nil, slog.Default())

	enqueue(t, s, "ok", 3)
	j := claim(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := ex.Execute(context.Background(), j)
	if !errors.Is(err, workq.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

func TestExecutor_PassesJobToHandler(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	var seen *job.Job
	reg.MustRegister("echo", job.HandlerFunc(func(_ context.Context, j *job.Job) error {
		seen = j
		return nil
	}))
	ex := worker.NewExecutor(reg, nil, s, nil, slog.Default())

	want := enqueue(t, s, "echo", 3)
	if _, err := ex.Execute(context.Background(), claim(t, s)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == nil || seen.ID != want.ID || string(seen.Payload) != `{}` {
		t.Fatalf("handler saw %+v", seen)
	}
}
