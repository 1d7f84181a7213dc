// Package account holds the launcher's per-account state: the username, the
// encrypted password and character name with their IVs, the persisted cookie
// jar blob, and the transient per-environment access tokens.
package account

import (
	"time"

	"github.com/Rhine227/ISBoxerEVELauncher/internal/vault"
)

// Token is a bearer access token for one login environment. Tokens are
// transient and never persisted.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token exists and has not expired.
func (t *Token) Valid() bool {
	return t != nil && t.Value != "" && time.Now().Before(t.ExpiresAt)
}

// Account is one EVE Online account. Only the exported fields are
// persisted; plaintext secrets and access tokens live in memory for at most
// the process lifetime.
type Account struct {
	Username               string                `json:"username"`
	EncryptedPassword      vault.EncryptedSecret `json:"encrypted_password"`
	EncryptedCharacterName vault.EncryptedSecret `json:"encrypted_character_name"`
	// CookieBlob is the exported cookie jar; opaque to everything but Jar.
	CookieBlob string `json:"cookies,omitempty"`

	password      *vault.SecureBytes
	characterName *vault.SecureBytes
	tokens        map[string]*Token
}

// New creates an account for the given username.
func New(username string) *Account {
	return &Account{Username: username}
}

// Token returns the cached access token for the named environment, or nil.
// Tokens for different environments never interchange.
func (a *Account) Token(env string) *Token {
	return a.tokens[env]
}

// SetToken caches an access token for the named environment.
func (a *Account) SetToken(env string, t *Token) {
	if a.tokens == nil {
		a.tokens = make(map[string]*Token)
	}
	a.tokens[env] = t
}

// Password returns the in-memory plaintext password, which may be nil.
func (a *Account) Password() *vault.SecureBytes {
	return a.password
}

// SetPassword replaces the in-memory password, taking ownership of p. The
// encrypted copy is dropped together with its IV: it no longer corresponds
// to the new plaintext and a ciphertext with a stale IV must never survive.
func (a *Account) SetPassword(p *vault.SecureBytes) {
	a.password.Close()
	a.password = p
	a.EncryptedPassword = vault.EncryptedSecret{}
}

// ClearPassword drops the plaintext, ciphertext and IV together. Partial
// states are invalid, so there is no way to clear just one of them.
func (a *Account) ClearPassword() {
	a.password.Close()
	a.password = nil
	a.EncryptedPassword = vault.EncryptedSecret{}
}

// CharacterName returns the in-memory plaintext character name, or nil.
func (a *Account) CharacterName() *vault.SecureBytes {
	return a.characterName
}

// SetCharacterName replaces the in-memory character name, taking ownership
// of n and dropping the now-stale encrypted copy.
func (a *Account) SetCharacterName(n *vault.SecureBytes) {
	a.characterName.Close()
	a.characterName = n
	a.EncryptedCharacterName = vault.EncryptedSecret{}
}

// ClearCharacterName drops the plaintext, ciphertext and IV together.
func (a *Account) ClearCharacterName() {
	a.characterName.Close()
	a.characterName = nil
	a.EncryptedCharacterName = vault.EncryptedSecret{}
}

// ForgetSecrets zeroes the in-memory plaintext secrets without touching the
// encrypted copies. Called when a flow is aborted so credentials from the
// attempt do not linger.
func (a *Account) ForgetSecrets() {
	a.password.Close()
	a.password = nil
	a.characterName.Close()
	a.characterName = nil
}

// RestorePassword installs a freshly decrypted password without disturbing
// the stored ciphertext, unlike SetPassword which invalidates it.
func (a *Account) RestorePassword(p *vault.SecureBytes) {
	a.password.Close()
	a.password = p
}

// RestoreCharacterName installs a freshly decrypted character name without
// disturbing the stored ciphertext.
func (a *Account) RestoreCharacterName(n *vault.SecureBytes) {
	a.characterName.Close()
	a.characterName = n
}

// PrepareStorage refreshes the encrypted copies of any in-memory secrets
// under the given master key before the account is persisted. Existing IVs
// are reused so an unchanged secret produces identical storage.
func (a *Account) PrepareStorage(key []byte) error {
	if !a.password.Empty() {
		enc, err := vault.Encrypt(a.password, key, a.EncryptedPassword.RawIV())
		if err != nil {
			return err
		}
		a.EncryptedPassword = enc
	}
	if !a.characterName.Empty() {
		enc, err := vault.Encrypt(a.characterName, key, a.EncryptedCharacterName.RawIV())
		if err != nil {
			return err
		}
		a.EncryptedCharacterName = enc
	}
	return nil
}

// Dispose wipes everything the account holds in memory and invalidates its
// stored secrets. Used when an account is removed.
func (a *Account) Dispose() {
	a.ClearPassword()
	a.ClearCharacterName()
	a.CookieBlob = ""
	a.tokens = nil
}
