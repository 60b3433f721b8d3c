package job_test

import (
	"testing"
	"time"

	"github.com/xraph/workq/job"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		retryCount, maxRetries int
		want                   bool
	}{
		{1, 3, true},
		{2, 3, true},
		{3, 3, false},
		{1, 0, false},
		{1, 1, false},
		{4, 3, false},
	}
	for _, tt := range tests {
		if got := job.ShouldRetry(tt.retryCount, tt.maxRetries); got != tt.want {
			t.Errorf("ShouldRetry(%d, %d) = %v, want %v", tt.retryCount, tt.maxRetries, got, tt.want)
		}
	}
}

func TestNewOptions(t *testing.T) {
	o := job.NewOptions(3)
	if o.MaxRetries != 3 || o.Timeout != 0 {
		t.Errorf("defaults: got %+v", o)
	}

	o = job.NewOptions(3, job.WithMaxRetries(7), job.WithTimeout(time.Second))
	if o.MaxRetries != 7 || o.Timeout != time.Second {
		t.Errorf("overrides: got %+v", o)
	}

	o = job.NewOptions(3, job.WithMaxRetries(-1), job.WithTimeout(-time.Second))
	if o.MaxRetries != 0 || o.Timeout != 0 {
		t.Errorf("negative values should clamp to zero, got %+v", o)
	}
}

func TestNew(t *testing.T) {
	j := job.New("send-email", []byte("p"), job.NewOptions(2))
	if j.ID.IsNil() {
		t.Fatal("expected id")
	}
	if j.State != job.StatePending || j.RetryCount != 0 || j.MaxRetries != 2 {
		t.Errorf("unexpected job %+v", j)
	}
	if j.CreatedAt.IsZero() || !j.RunAt.Equal(j.CreatedAt) {
		t.Errorf("timestamps not set: %+v", j)
	}
}

func TestClone(t *testing.T) {
	now := time.Now()
	j := job.New("t", []byte("abc"), job.NewOptions(1))
	j.FinishedAt = &now

	cp := j.Clone()
	cp.Payload[0] = 'x'
	*cp.FinishedAt = now.Add(time.Hour)

	if string(j.Payload) != "abc" {
		t.Error("payload shared with clone")
	}
	if !j.FinishedAt.Equal(now) {
		t.Error("timestamp shared with clone")
	}
}

func TestParseState(t *testing.T) {
	for _, s := range job.States {
		got, ok := job.ParseState(string(s))
		if !ok || got != s {
			t.Errorf("ParseState(%q) = %q, %v", s, got, ok)
		}
	}
	if _, ok := job.ParseState("running"); ok {
		t.Error("expected unknown state to be rejected")
	}
	if !job.StateCompleted.IsTerminal() || !job.StateDeadLetter.IsTerminal() {
		t.Error("completed and dead_letter are terminal")
	}
	if job.StatePending.IsTerminal() || job.StateInFlight.IsTerminal() {
		t.Error("pending and in_flight are not terminal")
	}
}

func TestOutcomeString(t *testing.T) {
	if job.OutcomeDeadLettered.String() != "dead_lettered" || job.OutcomeNone.String() != "none" {
		t.Error("unexpected outcome names")
	}
}
