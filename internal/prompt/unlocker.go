package prompt

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Rhine227/ISBoxerEVELauncher/internal/config"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/vault"
)

// Unlocker derives the vault master key from a passphrase entered on the
// terminal. The key is unlocked at most once per process and held in memory
// only; the settings file keeps just the derivation salt and a key
// fingerprint for rejecting mistyped passphrases. It implements
// vault.MasterKeyProvider.
type Unlocker struct {
	cfg  *config.Config
	term *Terminal
	key  []byte
}

// NewUnlocker creates an unlocker bound to the settings file.
func NewUnlocker(cfg *config.Config, term *Terminal) *Unlocker {
	return &Unlocker{cfg: cfg, term: term}
}

// HasKey reports whether the master key is already unlocked.
func (u *Unlocker) HasKey() bool {
	return len(u.key) == vault.KeySize
}

// Key returns the unlocked master key. Valid only while HasKey is true.
func (u *Unlocker) Key() []byte {
	return u.key
}

// RequestKey prompts for the master passphrase and derives the key. On the
// first use a fresh salt is generated and the salt/verifier pair is written
// back to the settings file; afterwards the derived key must match the
// stored verifier.
func (u *Unlocker) RequestKey() bool {
	if u.HasKey() {
		return true
	}
	if !u.cfg.SavePasswords {
		return false
	}

	salt := u.cfg.Salt()
	firstUse := len(salt) == 0

	label := "Master passphrase: "
	if firstUse {
		label = "Choose a master passphrase: "
	}
	passphrase, ok := u.term.PromptPassphrase(label)
	if !ok {
		return false
	}
	defer vault.Zero(passphrase)

	if firstUse {
		fresh, err := vault.NewSalt()
		if err != nil {
			log.Errorf("could not generate master key salt: %v", err)
			return false
		}
		salt = fresh
	}

	key := vault.DeriveMasterKey(passphrase, salt)

	if firstUse {
		u.cfg.SetMasterKeyParams(salt, vault.MakeVerifier(key))
		if err := u.cfg.Save(); err != nil {
			log.Errorf("could not save master key parameters: %v", err)
			vault.Zero(key)
			return false
		}
	} else if verifier := u.cfg.Verifier(); verifier != nil && !vault.CheckVerifier(key, verifier) {
		fmt.Println("Wrong master passphrase.")
		vault.Zero(key)
		return false
	}

	u.key = key
	return true
}
