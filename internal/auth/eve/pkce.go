package eve

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Rhine227/ISBoxerEVELauncher/internal/account"
)

// Session carries the PKCE material, anti-forgery state, and cookie jar for
// a single login attempt. A session is created when the attempt starts and
// discarded when it terminates; if the server rejects the PKCE verification
// the whole session must be restarted, not repaired.
type Session struct {
	// State is the opaque anti-forgery nonce bound to one authorization flow.
	State string
	// CodeChallenge is the S256 challenge derived from the verifier. It is
	// immutable for the lifetime of the session.
	CodeChallenge string
	// Jar accumulates cookies across every request in the flow.
	Jar *account.Jar

	verifier []byte
}

// NewSession creates a session with fresh PKCE material and an empty cookie
// jar.
func NewSession() (*Session, error) {
	jar, err := account.NewJar()
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return newSessionWithJar(jar), nil
}

// NewSessionFromBlob restores a previously exported cookie jar into a fresh
// session, so cookies set by earlier logins (e.g. a remembered two-factor
// device) carry over.
func NewSessionFromBlob(blob string) (*Session, error) {
	jar, err := account.RestoreJar(blob)
	if err != nil {
		return nil, fmt.Errorf("restore cookie jar: %w", err)
	}
	return newSessionWithJar(jar), nil
}

func newSessionWithJar(jar *account.Jar) *Session {
	// A random UUID rendered as hex gives 128 bits of entropy for the
	// verifier, matching what the login server's PKCE validation expects
	// in length.
	verifier := []byte(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return &Session{
		State:         uuid.NewString(),
		CodeChallenge: deriveCodeChallenge(verifier),
		Jar:           jar,
		verifier:      verifier,
	}
}

// CodeVerifier returns the URL-safe encoding of the verifier bytes. This is
// the exact value submitted to the token endpoint; its hash must equal the
// CodeChallenge sent at session start.
func (s *Session) CodeVerifier() string {
	return base64.RawURLEncoding.EncodeToString(s.verifier)
}

// deriveCodeChallenge computes base64url(sha256(base64url(verifier))).
// The server hashes the URL-safe encoding of the verifier rather than the
// raw bytes, so the double encoding is load-bearing.
func deriveCodeChallenge(verifier []byte) string {
	encoded := base64.RawURLEncoding.EncodeToString(verifier)
	sum := sha256.Sum256([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
