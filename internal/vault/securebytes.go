// Package vault protects the launcher's stored secrets: it wraps plaintext
// secrets in zeroing buffers and encrypts them at rest under a master key
// derived from a user-supplied passphrase. The vault never derives or holds
// the master key itself; callers obtain it from a MasterKeyProvider for the
// duration of a single operation.
package vault

// SecureBytes owns a secret byte buffer with an explicit lifetime. Close
// zeroes the backing array, so a secret does not linger in memory once the
// flow that needed it has finished. Instances are passed by exclusive
// ownership and must not be copied.
type SecureBytes struct {
	b []byte
}

// NewSecureBytes takes ownership of b. The caller must not retain or reuse
// the slice afterwards.
func NewSecureBytes(b []byte) *SecureBytes {
	return &SecureBytes{b: b}
}

// Bytes exposes the secret for immediate use. The returned slice shares the
// backing array and becomes invalid after Close.
func (s *SecureBytes) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Len reports the secret length. Safe on a nil receiver.
func (s *SecureBytes) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Empty reports whether there is no usable secret. Safe on a nil receiver.
func (s *SecureBytes) Empty() bool {
	return s.Len() == 0
}

// Close zeroes the backing array and releases it. Close is idempotent and
// safe on a nil receiver; it must be called on every exit path that drops
// the secret, including error paths.
func (s *SecureBytes) Close() {
	if s == nil {
		return
	}
	Zero(s.b)
	s.b = nil
}

// Zero overwrites b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
