package client

import (
	"log/slog"

	"github.com/xraph/workq/codec"
	"github.com/xraph/workq/ext"
)

// Option configures a Client.
type Option func(*Client)

// WithCodec sets the codec used by EnqueueValue. Handlers registered with
// job.RegisterTyped must use the same codec.
func WithCodec(c codec.Codec) Option {
	return func(cl *Client) {
		if c != nil {
			cl.codec = c
		}
	}
}

// WithExtensions sets the registry notified of JobEnqueued events.
func WithExtensions(r *ext.Registry) Option {
	return func(c *Client) { c.extensions = r }
}

// WithDefaultMaxRetries sets the retry ceiling for jobs enqueued without
// job.WithMaxRetries.
func WithDefaultMaxRetries(n int) Option {
	return func(c *Client) { c.defaultMaxRetries = n }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}
