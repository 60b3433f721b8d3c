package workq

import "time"

// Config holds the operational configuration of a worker process. It is read
// once at startup.
type Config struct {
	// WorkerCount is the number of independent dispatcher loops the process
	// runs. Each is a peer, unaware of the others.
	WorkerCount int

	// PollInterval is how long a dispatcher sleeps after finding the pending
	// list empty, or after a store error while claiming.
	PollInterval time.Duration

	// VisibilityTimeout is the lease granted on claim. An in-flight job whose
	// lease expires is returned to pending by the recovery sweep.
	VisibilityTimeout time.Duration

	// HeartbeatInterval is how often a dispatcher extends the lease of the job
	// it is running. Zero disables lease extension.
	HeartbeatInterval time.Duration

	// RecoveryInterval is how often the pool sweeps for expired leases. Zero
	// disables the sweep.
	RecoveryInterval time.Duration

	// ShutdownTimeout bounds how long Stop waits for running handlers.
	ShutdownTimeout time.Duration

	// DefaultMaxRetries applies to jobs enqueued without an explicit
	// MaxRetries option.
	DefaultMaxRetries int

	// ClaimRate caps claims per second across all dispatchers of the process.
	// Zero means unlimited.
	ClaimRate float64

	// ClaimBurst is the token-bucket burst for ClaimRate. Defaults to 1.
	ClaimBurst int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorkerCount:       2,
		PollInterval:      1 * time.Second,
		VisibilityTimeout: 5 * time.Minute,
		HeartbeatInterval: 100 * time.Second,
		RecoveryInterval:  30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		DefaultMaxRetries: 3,
	}
}
