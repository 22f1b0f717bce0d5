package signing_test

import (
	"errors"
	"testing"

	"github.com/xraph/jobhook/signing"
)

func TestNew_EmptySecret(t *testing.T) {
	_, err := signing.New("")
	if !errors.Is(err, signing.ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestSign_Deterministic(t *testing.T) {
	s := signing.MustNew("secret")
	payload := []byte(`{"name":"document.rejected","payload":{"id":1}}`)

	a, b := s.Sign(payload), s.Sign(payload)
	if a != b {
		t.Fatalf("Sign not deterministic: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("len(signature) = %d, want 64 hex chars", len(a))
	}
}

func TestVerify(t *testing.T) {
	s := signing.MustNew("secret")
	payload := []byte(`{"name":"x","payload":null}`)
	sig := s.Sign(payload)

	tests := []struct {
		name    string
		payload []byte
		sig     string
		want    bool
	}{
		{"valid", payload, sig, true},
		{"tampered payload", []byte(`{"name":"y","payload":null}`), sig, false},
		{"tampered signature", payload, sig[:63] + "0", sig[63] == '0'},
		{"not hex", payload, "zz", false},
		{"empty", payload, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Verify(tt.payload, tt.sig); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerify_DifferentSecret(t *testing.T) {
	payload := []byte("hello")
	sig := signing.MustNew("a").Sign(payload)
	if signing.MustNew("b").Verify(payload, sig) {
		t.Fatal("signature from another secret must not verify")
	}
}
