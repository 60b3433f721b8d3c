// Package client is the producer-facing side of workq: it turns a job type
// and payload into a pending job and returns its ID immediately.
//
// Usage:
//
//	c := client.New(store)
//
//	// Raw payload.
//	jobID, err := c.Enqueue(ctx, "send-email", raw)
//
//	// Typed payload, serialized with the client's codec.
//	jobID, err = client.EnqueueValue(ctx, c, "send-email", SendEmail{To: "a@b.c"},
//	    job.WithMaxRetries(5),
//	)
//
// Enqueue fails only when the store is unreachable; the error then wraps
// workq.ErrStoreUnavailable and the caller decides whether to retry.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/workq"
	"github.com/xraph/workq/codec"
	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

// Client submits jobs to a store.
type Client struct {
	store             job.Store
	codec             codec.Codec
	extensions        *ext.Registry
	defaultMaxRetries int
	logger            *slog.Logger
}

// New creates a client over store.
func New(store job.Store, opts ...Option) *Client {
	c := &Client{
		store:             store,
		codec:             codec.Default,
		defaultMaxRetries: job.DefaultMaxRetries,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.extensions == nil {
		c.extensions = ext.NewRegistry(c.logger)
	}
	return c
}

// Codec returns the codec EnqueueValue serializes with.
func (c *Client) Codec() codec.Codec { return c.codec }

// Enqueue pushes a new job with the given type and payload onto the head of
// pending and returns its ID. The type is not checked against any registry;
// unknown types fail at dispatch.
func (c *Client) Enqueue(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (id.JobID, error) {
	if c.store == nil {
		return id.Nil, workq.ErrNoStore
	}

	j := job.New(jobType, payload, job.NewOptions(c.defaultMaxRetries, opts...))
	if err := c.store.Enqueue(ctx, j); err != nil {
		return id.Nil, fmt.Errorf("workq/client: enqueue %s: %w", jobType, err)
	}

	c.logger.Debug("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.Int("max_retries", j.MaxRetries),
	)
	c.extensions.EmitJobEnqueued(ctx, j)

	return j.ID, nil
}

// EnqueueValue serializes v with the client's codec and enqueues it.
func EnqueueValue[T any](ctx context.Context, c *Client, jobType string, v T, opts ...job.Option) (id.JobID, error) {
	payload, err := c.codec.Marshal(v)
	if err != nil {
		return id.Nil, fmt.Errorf("workq/client: encode %s payload: %w", jobType, err)
	}
	return c.Enqueue(ctx, jobType, payload, opts...)
}
