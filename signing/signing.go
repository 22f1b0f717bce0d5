// Package signing authenticates internal dispatch calls. Only holders of the
// shared secret can produce a signature the execution endpoint accepts.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrEmptySecret is returned by New when no secret is configured.
var ErrEmptySecret = errors.New("signing: empty secret")

// Signer produces and verifies HMAC-SHA256 tags over message bytes.
// It is stateless after construction and safe for concurrent use.
type Signer struct {
	secret []byte
}

// New creates a Signer keyed by secret.
func New(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// MustNew is like New but panics on error. Use in tests and static setup.
func MustNew(secret string) *Signer {
	s, err := New(secret)
	if err != nil {
		panic(fmt.Sprintf("signing: %v", err))
	}
	return s
}

// Sign returns the hex-encoded tag for payload. Identical bytes always
// produce the same signature.
func (s *Signer) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is a valid tag for payload. The
// comparison runs in constant time.
func (s *Signer) Verify(payload []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
