package eve

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestCodeChallengeMatchesVerifier(t *testing.T) {
	s, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// The server validates the exchange by hashing the submitted
	// code_verifier string, so the challenge must equal
	// base64url(sha256(code_verifier)).
	sum := sha256.Sum256([]byte(s.CodeVerifier()))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if s.CodeChallenge != want {
		t.Errorf("CodeChallenge = %q, want %q", s.CodeChallenge, want)
	}
}

func TestVerifierShape(t *testing.T) {
	s, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(s.CodeVerifier())
	if err != nil {
		t.Fatalf("verifier is not base64url: %v", err)
	}
	// 32 hex characters of a dashless UUID.
	if len(raw) != 32 {
		t.Errorf("decoded verifier length = %d, want 32", len(raw))
	}
	for _, c := range raw {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Errorf("verifier byte %q is not lowercase hex", c)
		}
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	a, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	b, err := NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if a.State == b.State {
		t.Error("two sessions share an anti-forgery state")
	}
	if a.CodeVerifier() == b.CodeVerifier() {
		t.Error("two sessions share a code verifier")
	}
	if a.CodeChallenge == b.CodeChallenge {
		t.Error("two sessions share a code challenge")
	}
}

func TestNewSessionFromBlobRejectsGarbage(t *testing.T) {
	if _, err := NewSessionFromBlob("not base64 at all!"); err == nil {
		t.Error("expected an error for an unreadable cookie blob")
	}
}
