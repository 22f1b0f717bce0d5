package jobhook

import (
	"time"

	"github.com/xraph/jobhook/provider/local"
	"github.com/xraph/jobhook/provider/stream"
)

// Config holds configuration for the Client.
type Config struct {
	// Provider selects the delivery backend: "local" or "stream".
	Provider string

	// InternalURL is the base URL the local provider POSTs deliveries to.
	InternalURL string

	// SigningSecret keys the HMAC that authenticates deliveries.
	SigningSecret string

	// AdminAPIKey guards the admin routes. Empty disables them.
	AdminAPIKey string

	// ServiceName turns on request tracing of the HTTP handler.
	ServiceName string

	// DispatchTimeout bounds one local dispatch round trip.
	DispatchTimeout time.Duration

	// DispatchRateLimit caps local dispatches per second. Zero disables it.
	DispatchRateLimit float64

	// HandlerTimeout bounds one handler execution. Zero disables it.
	HandlerTimeout time.Duration

	// Concurrency is the number of stream workers.
	Concurrency int

	// Stream configures the stream provider's Redis stream.
	Stream stream.QueueConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:        local.Name,
		DispatchTimeout: local.DefaultTimeout,
		Concurrency:     4,
		Stream:          stream.DefaultQueueConfig(),
	}
}
