package jobhook

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/jobhook/backoff"
	"github.com/xraph/jobhook/ext"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/middleware"
	"github.com/xraph/jobhook/provider/stream"
	"github.com/xraph/jobhook/store"
)

// Option configures a Client.
type Option func(*Client) error

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Client) error {
		c.config = cfg
		return nil
	}
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(c *Client) error {
		c.store = s
		return nil
	}
}

// WithLogger sets the structured logger for every component.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// WithRegistry uses an existing definition registry.
func WithRegistry(r *job.Registry) Option {
	return func(c *Client) error {
		c.registry = r
		return nil
	}
}

// WithProvider selects the delivery backend by name.
func WithProvider(name string) Option {
	return func(c *Client) error {
		c.config.Provider = name
		return nil
	}
}

// WithInternalURL sets the base URL of the execution endpoint.
func WithInternalURL(u string) Option {
	return func(c *Client) error {
		c.config.InternalURL = u
		return nil
	}
}

// WithSigningSecret sets the shared secret deliveries are signed with.
func WithSigningSecret(secret string) Option {
	return func(c *Client) error {
		c.config.SigningSecret = secret
		return nil
	}
}

// WithAdminAPIKey enables the admin routes behind the given key.
func WithAdminAPIKey(key string) Option {
	return func(c *Client) error {
		c.config.AdminAPIKey = key
		return nil
	}
}

// WithRedis sets the client the stream provider uses.
func WithRedis(client *redis.Client) Option {
	return func(c *Client) error {
		c.redis = client
		return nil
	}
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(c *Client) error {
		c.backoff = s
		return nil
	}
}

// WithMiddleware replaces the default handler middleware.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) error {
		c.middleware = mws
		return nil
	}
}

// WithConcurrency sets the number of stream workers.
func WithConcurrency(n int) Option {
	return func(c *Client) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithDispatchTimeout bounds one local dispatch round trip.
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.config.DispatchTimeout = d
		return nil
	}
}

// WithDispatchRateLimit caps local dispatches per second.
func WithDispatchRateLimit(perSecond float64) Option {
	return func(c *Client) error {
		c.config.DispatchRateLimit = perSecond
		return nil
	}
}

// WithHandlerTimeout bounds each handler execution.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.config.HandlerTimeout = d
		return nil
	}
}

// WithServiceName enables HTTP request tracing under the given name.
func WithServiceName(name string) Option {
	return func(c *Client) error {
		c.config.ServiceName = name
		return nil
	}
}

// WithStreamConfig configures the Redis stream used by the stream provider.
func WithStreamConfig(cfg stream.QueueConfig) Option {
	return func(c *Client) error {
		c.config.Stream = cfg
		return nil
	}
}

// WithExtension registers a lifecycle extension. Extensions are notified
// in registration order.
func WithExtension(e ext.Extension) Option {
	return func(c *Client) error {
		c.pendingExtensions = append(c.pendingExtensions, e)
		return nil
	}
}
