package job

// Options configures a job definition.
type Options struct {
	// Version is informational and copied onto created jobs. Zero means 1.
	Version int

	// Disabled definitions are treated as not found at dispatch time. The
	// zero value leaves a definition enabled.
	Disabled bool

	// MaxRetries is the retry budget given to each created job. Zero means
	// DefaultMaxRetries; a negative value disables retries.
	MaxRetries int

	// SchemaJSON is an explicit JSON Schema for the payload.
	SchemaJSON []byte

	// ReflectSchema derives the payload schema from the payload type.
	ReflectSchema bool
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Version:    1,
		MaxRetries: DefaultMaxRetries,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithVersion sets the definition version.
func WithVersion(v int) Option {
	return func(o *Options) {
		o.Version = v
	}
}

// WithEnabled enables or disables the definition.
func WithEnabled(enabled bool) Option {
	return func(o *Options) {
		o.Disabled = !enabled
	}
}

// WithMaxRetries sets the retry budget of jobs created from the definition.
// n <= 0 means jobs are never retried.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			n = -1
		}
		o.MaxRetries = n
	}
}

// WithSchema validates payloads against the given JSON Schema document.
func WithSchema(schema []byte) Option {
	return func(o *Options) {
		o.SchemaJSON = schema
	}
}

// WithReflectedSchema validates payloads against a JSON Schema generated
// from the definition's payload type.
func WithReflectedSchema() Option {
	return func(o *Options) {
		o.ReflectSchema = true
	}
}
