package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/workq"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
	"github.com/xraph/workq/store"
	"github.com/xraph/workq/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	s := New()
	_ = s.Close()
	ctx := context.Background()

	if err := s.Ping(ctx); !errors.Is(err, workq.ErrStoreClosed) {
		t.Errorf("Ping: expected ErrStoreClosed, got %v", err)
	}
	if err := s.Enqueue(ctx, job.New("t", nil, job.Options{})); !errors.Is(err, workq.ErrStoreClosed) {
		t.Errorf("Enqueue: expected ErrStoreClosed, got %v", err)
	}
	if _, err := s.Claim(ctx, id.NewWorkerID(), 0); !errors.Is(err, workq.ErrStoreClosed) {
		t.Errorf("Claim: expected ErrStoreClosed, got %v", err)
	}
}

func TestReturnedJobsAreCopies(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := job.New("t", []byte("abc"), job.Options{MaxRetries: 1})
	if err := s.Enqueue(ctx, j); err != nil {
		t.Fatal(err)
	}
	j.Payload[0] = 'x'

	got, err := s.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Payload) != "abc" {
		t.Errorf("store shares payload with caller: %q", got.Payload)
	}
	got.State = job.StateCompleted

	again, _ := s.Get(ctx, j.ID)
	if again.State != job.StatePending {
		t.Error("mutating a returned job changed the store")
	}
}

func TestUnknownState(t *testing.T) {
	t.Parallel()
	s := New()
	if _, err := s.Count(context.Background(), "running"); !errors.Is(err, workq.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}
