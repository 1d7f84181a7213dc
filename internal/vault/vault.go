package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeySize is the required master key length: AES-256.
const KeySize = 32

// CryptoError is the single failure type for vault operations. Decryption
// failures deliberately do not distinguish a wrong key from corrupt data, so
// the error cannot be used as a padding oracle; the underlying cause is kept
// only for the operation name.
type CryptoError struct {
	Op string
}

// Error implements the error interface.
func (e *CryptoError) Error() string {
	return "vault: " + e.Op + " failed"
}

// EncryptedSecret is a ciphertext and the IV it was produced with, both
// base64-encoded for storage. A ciphertext without its IV is meaningless and
// must be treated as absent.
type EncryptedSecret struct {
	Ciphertext string `json:"ciphertext,omitempty"`
	IV         string `json:"iv,omitempty"`
}

// Valid reports whether both halves of the secret are present.
func (e EncryptedSecret) Valid() bool {
	return e.Ciphertext != "" && e.IV != ""
}

// RawIV decodes the stored IV, or returns nil when absent or malformed.
func (e EncryptedSecret) RawIV() []byte {
	if e.IV == "" {
		return nil
	}
	iv, err := base64.StdEncoding.DecodeString(e.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil
	}
	return iv
}

// Encrypt encrypts a secret under the master key with AES-256-CBC and PKCS#7
// padding. When existingIV is supplied it is reused, so re-encrypting an
// unchanged secret overwrites storage with identical output; otherwise a
// fresh random IV is generated. The IV belongs to the secret for its whole
// stored lifetime and is only replaced when the secret is cleared.
func Encrypt(secret *SecureBytes, key []byte, existingIV []byte) (EncryptedSecret, error) {
	if len(key) != KeySize {
		return EncryptedSecret{}, &CryptoError{Op: "encrypt"}
	}
	if secret.Empty() {
		return EncryptedSecret{}, &CryptoError{Op: "encrypt"}
	}

	iv := existingIV
	if len(iv) == 0 {
		iv = make([]byte, aes.BlockSize)
		if _, err := rand.Read(iv); err != nil {
			return EncryptedSecret{}, &CryptoError{Op: "encrypt"}
		}
	}
	if len(iv) != aes.BlockSize {
		return EncryptedSecret{}, &CryptoError{Op: "encrypt"}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedSecret{}, &CryptoError{Op: "encrypt"}
	}

	padded := pkcs7Pad(secret.Bytes(), aes.BlockSize)
	defer Zero(padded)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return EncryptedSecret{
		Ciphertext: base64.StdEncoding.EncodeToString(out),
		IV:         base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// Decrypt reverses Encrypt, returning the plaintext as an owned SecureBytes.
// Any failure (missing key, malformed storage, wrong key, bad padding)
// surfaces as the same generic CryptoError.
func Decrypt(secret EncryptedSecret, key []byte) (*SecureBytes, error) {
	if len(key) != KeySize || !secret.Valid() {
		return nil, &CryptoError{Op: "decrypt"}
	}

	ct, err := base64.StdEncoding.DecodeString(secret.Ciphertext)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt"}
	}
	iv := secret.RawIV()
	if iv == nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, &CryptoError{Op: "decrypt"}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt"}
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		Zero(plain)
		return nil, &CryptoError{Op: "decrypt"}
	}
	return NewSecureBytes(unpadded), nil
}

// pkcs7Pad returns a padded copy of b.
func pkcs7Pad(b []byte, blockSize int) []byte {
	pad := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+pad)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

// pkcs7Unpad trims the padding in place and returns the shortened slice.
func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(b))
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > blockSize || pad > len(b) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, c := range b[len(b)-pad:] {
		if int(c) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return b[:len(b)-pad], nil
}
