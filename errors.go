package jobhook

import "errors"

var (
	// Configuration errors.
	ErrNoStore         = errors.New("jobhook: no store configured")
	ErrNoSigningSecret = errors.New("jobhook: no signing secret configured")
	ErrNoInternalURL   = errors.New("jobhook: local provider needs an internal URL")
	ErrNoRedis         = errors.New("jobhook: stream provider needs a redis client")
	ErrUnknownProvider = errors.New("jobhook: unknown provider")
)
