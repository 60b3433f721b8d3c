package job

import "time"

// Options configures per-job behavior.
type Options struct {
	// MaxRetries is the number of failed attempts after which the job is
	// dead-lettered.
	MaxRetries int

	// Timeout is a context deadline handed to the handler. Zero means none.
	// Handlers are not preempted; they must observe ctx.Done.
	Timeout time.Duration
}

// Option is a functional option for configuring an enqueued job.
type Option func(*Options)

// NewOptions applies opts on top of the given retry default.
func NewOptions(defaultMaxRetries int, opts ...Option) Options {
	o := Options{MaxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	return o
}

// WithMaxRetries sets the maximum number of failed attempts.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithTimeout sets a cooperative execution deadline for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
