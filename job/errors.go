package job

import "errors"

var (
	// ErrJobNotFound is returned when a job row does not exist.
	ErrJobNotFound = errors.New("job: job not found")
	// ErrJobAlreadyExists is returned when creating a job with a used ID.
	ErrJobAlreadyExists = errors.New("job: job already exists")
	// ErrJobCompleted is returned when a transition would leave COMPLETED.
	ErrJobCompleted = errors.New("job: job already completed")

	// ErrDefinitionNotFound is returned for unknown or disabled definitions.
	ErrDefinitionNotFound = errors.New("job: definition not found")
	// ErrInvalidDefinition is returned when a definition cannot be registered.
	ErrInvalidDefinition = errors.New("job: invalid definition")
	// ErrInvalidSchema is returned when a payload schema does not compile.
	ErrInvalidSchema = errors.New("job: invalid payload schema")
	// ErrInvalidPayload is returned when a payload fails schema validation.
	ErrInvalidPayload = errors.New("job: invalid payload")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as non-retryable: the job is failed
// immediately instead of being rescheduled. Permanent(nil) returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
