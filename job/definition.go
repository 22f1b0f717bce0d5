package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/jobhook/taskio"
)

// HandlerFunc is a type-erased job handler that accepts the raw JSON payload.
type HandlerFunc func(ctx context.Context, payload json.RawMessage, io *taskio.IO) error

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// ID is the unique identifier for this definition.
	ID string

	// Name is the trigger event this definition subscribes to. Several
	// definitions may share a name.
	Name string

	// Handler is the function that processes the job payload.
	Handler func(ctx context.Context, payload T, io *taskio.IO) error

	// Opts configures version, retries, enablement and payload schema.
	Opts Options
}

// NewDefinition creates a typed job definition subscribed to trigger.
func NewDefinition[T any](id, trigger string, handler func(ctx context.Context, payload T, io *taskio.IO) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		ID:      id,
		Name:    trigger,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// Entry is the type-erased form of a definition held by the Registry.
type Entry struct {
	ID         string
	Name       string
	Version    int
	Enabled    bool
	MaxRetries int
	// Schema is nil when the definition does not validate payloads.
	Schema  *Schema
	Handler HandlerFunc
}

// Validate checks payload against the entry's schema, if any.
func (e *Entry) Validate(payload json.RawMessage) error {
	if e.Schema == nil {
		return nil
	}
	return e.Schema.Validate(payload)
}

// entry compiles the definition into an Entry. The generic handler is
// wrapped in a closure that JSON-unmarshals the payload into T before
// calling the typed handler. Payloads that cannot be decoded are marked
// Permanent since no retry will make them decodable.
func (d *Definition[T]) entry() (*Entry, error) {
	if d.ID == "" || d.Name == "" {
		return nil, fmt.Errorf("%w: id and trigger name are required", ErrInvalidDefinition)
	}
	if d.Handler == nil {
		return nil, fmt.Errorf("%w: %q has no handler", ErrInvalidDefinition, d.ID)
	}

	var (
		schema *Schema
		err    error
	)
	switch {
	case len(d.Opts.SchemaJSON) > 0:
		schema, err = CompileSchema(d.Opts.SchemaJSON)
	case d.Opts.ReflectSchema:
		schema, err = ReflectSchema(new(T))
	}
	if err != nil {
		return nil, fmt.Errorf("definition %q: %w", d.ID, err)
	}

	handler := func(ctx context.Context, payload json.RawMessage, io *taskio.IO) error {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return Permanent(fmt.Errorf("unmarshal payload for job %q: %w", d.ID, err))
			}
		}
		return d.Handler(ctx, t, io)
	}

	maxRetries := d.Opts.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = DefaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	version := d.Opts.Version
	if version == 0 {
		version = 1
	}

	return &Entry{
		ID:         d.ID,
		Name:       d.Name,
		Version:    version,
		Enabled:    !d.Opts.Disabled,
		MaxRetries: maxRetries,
		Schema:     schema,
		Handler:    handler,
	}, nil
}
