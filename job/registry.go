package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/workq"
	"github.com/xraph/workq/codec"
)

// Handler processes one job. A returned error routes the job through the
// failure path. Handlers must tolerate being run more than once for the
// same job.
type Handler interface {
	Handle(ctx context.Context, j *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, j *Job) error

// Handle calls f(ctx, j).
func (f HandlerFunc) Handle(ctx context.Context, j *Job) error { return f(ctx, j) }

// Registry maps job types to handlers. Types match exactly; there is no
// wildcard or prefix matching. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register binds h to jobType. Registering the same type twice returns
// workq.ErrDuplicateHandler.
func (r *Registry) Register(jobType string, h Handler) error {
	if jobType == "" {
		return errors.New("job: register: empty job type")
	}
	if h == nil {
		return fmt.Errorf("job: register %q: nil handler", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[jobType]; ok {
		return fmt.Errorf("job: register %q: %w", jobType, workq.ErrDuplicateHandler)
	}
	r.handlers[jobType] = h
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(jobType string, h Handler) {
	if err := r.Register(jobType, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for jobType.
func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns all registered job types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// RegisterTyped registers a handler that receives the payload decoded into
// T with c. A payload that fails to decode is a handler error.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterTyped[T any](r *Registry, jobType string, c codec.Codec, fn func(ctx context.Context, payload T) error) error {
	if c == nil {
		c = codec.Default
	}
	return r.Register(jobType, HandlerFunc(func(ctx context.Context, j *Job) error {
		var v T
		if len(j.Payload) > 0 {
			if err := c.Unmarshal(j.Payload, &v); err != nil {
				return fmt.Errorf("decode %s payload for job %q: %w", c.Name(), jobType, err)
			}
		}
		return fn(ctx, v)
	}))
}
