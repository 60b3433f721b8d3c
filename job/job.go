package job

import (
	"time"

	"github.com/xraph/workq/id"
)

// State is the queue partition a job currently occupies.
type State string

const (
	// StatePending means the job is waiting to be claimed. A pending job
	// with RunAt in the future is parked until it is due.
	StatePending State = "pending"
	// StateInFlight means exactly one dispatcher holds the job.
	StateInFlight State = "in_flight"
	// StateCompleted means the handler succeeded. Terminal.
	StateCompleted State = "completed"
	// StateDeadLetter means the job exhausted its retries. Terminal.
	StateDeadLetter State = "dead_letter"
)

// States lists every queue state in lifecycle order.
var States = []State{StatePending, StateInFlight, StateCompleted, StateDeadLetter}

// ParseState validates s as a State.
func ParseState(s string) (State, bool) {
	for _, st := range States {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateDeadLetter
}

// DefaultMaxRetries is used when neither the enqueue call nor the
// configuration sets a retry ceiling.
const DefaultMaxRetries = 3

// Job represents a unit of work to be processed by a handler.
type Job struct {
	ID           id.JobID      `json:"id"`
	Type         string        `json:"type"`
	Payload      []byte        `json:"payload"`
	State        State         `json:"state"`
	RetryCount   int           `json:"retry_count"`
	MaxRetries   int           `json:"max_retries"`
	ErrorMessage string        `json:"error_message,omitempty"`
	WorkerID     id.WorkerID   `json:"worker_id,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	RunAt          time.Time  `json:"run_at"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// New builds a pending job with a fresh ID.
func New(jobType string, payload []byte, opts Options) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:         id.NewJobID(),
		Type:       jobType,
		Payload:    payload,
		State:      StatePending,
		MaxRetries: opts.MaxRetries,
		Timeout:    opts.Timeout,
		CreatedAt:  now,
		UpdatedAt:  now,
		RunAt:      now,
	}
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Payload != nil {
		cp.Payload = append([]byte(nil), j.Payload...)
	}
	cp.ClaimedAt = cloneTime(j.ClaimedAt)
	cp.LeaseExpiresAt = cloneTime(j.LeaseExpiresAt)
	cp.FinishedAt = cloneTime(j.FinishedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ShouldRetry reports whether a job whose retry count has just been
// incremented to retryCount goes back to pending. A job gets at most
// maxRetries attempts.
func ShouldRetry(retryCount, maxRetries int) bool {
	return retryCount < maxRetries
}

// Outcome is the result of reporting a failure.
type Outcome int

const (
	// OutcomeNone means no in-flight record matched; nothing changed.
	OutcomeNone Outcome = iota
	// OutcomeCompleted means the job moved to completed.
	OutcomeCompleted
	// OutcomeRetried means the job went back to the head of pending.
	OutcomeRetried
	// OutcomeScheduled means the job went back to pending with a delay.
	OutcomeScheduled
	// OutcomeDeadLettered means the job moved to the dead-letter partition.
	OutcomeDeadLettered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCompleted:
		return "completed"
	case OutcomeRetried:
		return "retried"
	case OutcomeScheduled:
		return "scheduled"
	case OutcomeDeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}
