package worker

import "errors"

var (
	// ErrMissingSignature is returned for deliveries without a signature.
	ErrMissingSignature = errors.New("worker: missing signature")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("worker: invalid signature")
)
