package vault

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of the random salt mixed into key derivation.
const SaltSize = 16

// MasterKeyProvider gates vault operations behind the user's master
// passphrase. The key is held in process memory only, read-only once
// unlocked, and never written to persistent storage.
type MasterKeyProvider interface {
	// HasKey reports whether the master key is already unlocked.
	HasKey() bool
	// RequestKey prompts the user for the passphrase if the key is not yet
	// unlocked. It returns whether a key is now available; false always
	// means the user declined or entered a passphrase that failed
	// verification.
	RequestKey() bool
	// Key returns the unlocked master key. Valid only while HasKey is true.
	Key() []byte
}

// DeriveMasterKey stretches a passphrase into a 256-bit vault key with
// argon2id. The salt is generated once per settings file and stored beside
// the key verifier.
func DeriveMasterKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// MakeVerifier produces a storable fingerprint of the derived key so a
// mistyped passphrase can be rejected before any ciphertext is touched.
func MakeVerifier(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}

// CheckVerifier compares a derived key against a stored verifier in
// constant time.
func CheckVerifier(key, verifier []byte) bool {
	sum := MakeVerifier(key)
	return hmac.Equal(sum, verifier)
}

// NewSalt generates a fresh derivation salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}
