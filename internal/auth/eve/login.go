package eve

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Rhine227/ISBoxerEVELauncher/internal/account"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/vault"
)

// maxTransitions caps how many challenges one attempt will answer. A
// well-behaved server needs at most a handful; a server that re-presents
// challenges indefinitely would otherwise hang the flow forever.
const maxTransitions = 16

// InputProvider supplies the interactive answers a login flow may need.
// Every ok=false / false return means the user declined or cancelled, which
// immediately terminates the attempt.
type InputProvider interface {
	// PromptPassword asks for the account password. The flow takes
	// ownership of the returned secret.
	PromptPassword(username string) (*vault.SecureBytes, bool)
	// PromptAuthenticatorCode asks for an authenticator app code.
	PromptAuthenticatorCode(username string) (string, bool)
	// PromptEmailCode asks for the emailed verification code.
	PromptEmailCode(username string) (string, bool)
	// PromptCharacterName asks which character disambiguates the account.
	PromptCharacterName(username string) (string, bool)
	// PromptAccept shows the raw challenge page for a yes/no decision
	// (EULA, security warning, email verification notice).
	PromptAccept(kind ChallengeKind, body string) bool
}

// Store persists an account after durable state changes: freshly encrypted
// secrets and cookies that must survive a restart.
type Store interface {
	Store(*account.Account) error
}

// Flow drives one login attempt for one account against one environment.
// A Flow is single-use and not safe for concurrent use; callers must
// serialize attempts per account.
type Flow struct {
	env     Environment
	acct    *account.Account
	session *Session
	client  *Client
	input   InputProvider
	store   Store
	keys    vault.MasterKeyProvider

	// persistOnSuccess marks that a two-factor or email challenge was
	// answered, so the cookies recording the remembered device must be
	// stored once the attempt succeeds.
	persistOnSuccess bool
}

// NewFlow creates a login flow. The session restores the account's
// persisted cookies so remembered-device cookies from earlier logins apply.
func NewFlow(env Environment, acct *account.Account, input InputProvider, store Store, keys vault.MasterKeyProvider, timeout time.Duration) (*Flow, error) {
	session, err := NewSessionFromBlob(acct.CookieBlob)
	if err != nil {
		// A corrupt blob is not worth failing a login over.
		log.Warnf("discarding unreadable cookie storage for %s: %v", acct.Username, err)
		if session, err = NewSession(); err != nil {
			return nil, err
		}
	}
	return &Flow{
		env:     env,
		acct:    acct,
		session: session,
		client:  NewClient(env, session.Jar, timeout),
		input:   input,
		store:   store,
		keys:    keys,
	}, nil
}

// Login runs the challenge resolution loop until the flow terminates. On
// success the returned token is also cached on the account for this
// environment. On failure the error is a *LoginError carrying the
// LoginResult and, for unrecognized responses, the raw page.
func (f *Flow) Login(ctx context.Context) (*account.Token, error) {
	if tok := f.acct.Token(f.env.Name); tok.Valid() {
		log.Debugf("reusing cached %s token for %s", f.env.Name, f.acct.Username)
		return tok, nil
	}

	resp, err := f.submitCredentials(ctx)
	if err != nil {
		return nil, err
	}

	for transition := 0; transition < maxTransitions; transition++ {
		f.syncCookies()

		challenge := Classify(resp.uri, resp.body)
		log.Debugf("login step %d for %s: %s", transition, f.acct.Username, challenge.Kind)

		switch challenge.Kind {
		case KindBadCharacterName:
			// The stored name is wrong; wipe it so the next attempt asks
			// again instead of resubmitting it.
			f.acct.ClearCharacterName()
			f.acct.ForgetSecrets()
			f.persist()
			return nil, failure(ResultInvalidCharacterChallenge)

		case KindBadCredentials:
			f.acct.ClearPassword()
			f.persist()
			return nil, failure(ResultInvalidUsernameOrPassword)

		case KindBadAuthenticatorCode:
			f.acct.ForgetSecrets()
			return nil, failure(ResultInvalidAuthenticatorChallenge)

		case KindNeedsCharacterName:
			resp, err = f.submitCharacterName(ctx)

		case KindNeedsAuthenticatorCode:
			resp, err = f.submitAuthenticatorCode(ctx)

		case KindNeedsEmailCode:
			resp, err = f.submitEmailCode(ctx)

		case KindNeedsEmailVerification:
			if !f.input.PromptAccept(challenge.Kind, challenge.Body) {
				f.acct.ForgetSecrets()
				return nil, failure(ResultEmailVerificationRequired)
			}
			// The verification happens out-of-band (the user clicks a link
			// in their mailbox); re-enter the authorization flow once they
			// confirm it is done.
			resp, err = f.reenterAuthorize(ctx)

		case KindSecurityWarning:
			if !f.input.PromptAccept(challenge.Kind, challenge.Body) {
				f.acct.ForgetSecrets()
				return nil, failure(ResultSecurityWarningClosed)
			}
			resp, err = f.reenterAuthorize(ctx)

		case KindNeedsEulaAcceptance:
			if !f.input.PromptAccept(challenge.Kind, challenge.Body) {
				f.acct.ForgetSecrets()
				return nil, failure(ResultEULADeclined)
			}
			resp, err = f.submitEulaAcceptance(ctx, challenge.Body)

		case KindRedirected:
			tok, errExchange := f.exchangeCode(ctx, challenge.AuthCode)
			if errExchange != nil {
				f.acct.ForgetSecrets()
				return nil, errExchange
			}
			f.syncCookies()
			f.acct.SetToken(f.env.Name, tok)
			if f.persistOnSuccess {
				f.persist()
			}
			log.Infof("obtained %s access token for %s, expires %s",
				f.env.Name, f.acct.Username, tok.ExpiresAt.Format(time.RFC3339))
			return tok, nil

		case KindUnrecognized:
			return nil, &LoginError{Result: ResultError, URI: challenge.URI, Body: challenge.Body,
				Err: fmt.Errorf("no challenge signature matched")}
		}

		if err != nil {
			return nil, err
		}
	}

	f.acct.ForgetSecrets()
	return nil, failure(ResultTooManyChallenges)
}

// submitCredentials obtains a password, fetches the logon page for its
// anti-forgery token, and posts the credentials form.
func (f *Flow) submitCredentials(ctx context.Context) (*response, error) {
	if err := f.ensurePassword(); err != nil {
		return nil, err
	}

	logonURL := f.env.LogonURL(f.session.State, f.session.CodeChallenge)

	// The logon form embeds a verification token that must be echoed back;
	// posting without it is rejected outright.
	page, err := f.client.get(ctx, logonURL)
	if err != nil {
		return nil, err
	}
	f.syncCookies()
	verificationToken := requestVerificationToken(page.body)

	form := formBody("__RequestVerificationToken", verificationToken, "UserName", f.acct.Username)
	body := appendSecretField(form, "Password", f.acct.Password())
	defer vault.Zero(body)

	return f.client.postForm(ctx, logonURL, body)
}

// submitCharacterName resolves the character disambiguation challenge. The
// name comes from memory, then the vault, then the user; a freshly entered
// name is encrypted and persisted immediately so a crash does not force
// re-entry.
func (f *Flow) submitCharacterName(ctx context.Context) (*response, error) {
	if f.acct.CharacterName().Empty() {
		if f.acct.EncryptedCharacterName.Valid() && f.unlockKey() {
			name, err := vault.Decrypt(f.acct.EncryptedCharacterName, f.keys.Key())
			if err != nil {
				return nil, &LoginError{Result: ResultCryptoError, Err: err}
			}
			f.acct.RestoreCharacterName(name)
		}
	}
	if f.acct.CharacterName().Empty() {
		entered, ok := f.input.PromptCharacterName(f.acct.Username)
		if !ok || entered == "" {
			f.acct.ForgetSecrets()
			return nil, failure(ResultInvalidCharacterChallenge)
		}
		f.acct.SetCharacterName(vault.NewSecureBytes([]byte(entered)))
		if f.unlockKey() {
			if err := f.acct.PrepareStorage(f.keys.Key()); err != nil {
				log.Warnf("could not encrypt character name for %s: %v", f.acct.Username, err)
			} else {
				f.persist()
			}
		}
	}

	form := formBody("RememberCharacterChallenge", "true")
	body := appendSecretField(form, "Challenge", f.acct.CharacterName())
	defer vault.Zero(body)

	return f.client.postForm(ctx, f.env.CharacterChallengeURL(f.session.State, f.session.CodeChallenge), body)
}

// submitAuthenticatorCode answers the authenticator-app challenge.
func (f *Flow) submitAuthenticatorCode(ctx context.Context) (*response, error) {
	code, ok := f.input.PromptAuthenticatorCode(f.acct.Username)
	if !ok || code == "" {
		f.acct.ForgetSecrets()
		return nil, failure(ResultInvalidAuthenticatorChallenge)
	}
	f.persistOnSuccess = true
	body := formBody("Challenge", code, "RememberTwoFactor", "true", "command", "Continue")
	return f.client.postForm(ctx, f.env.AuthenticatorURL(f.session.State, f.session.CodeChallenge), body)
}

// submitEmailCode answers the emailed verification code challenge.
func (f *Flow) submitEmailCode(ctx context.Context) (*response, error) {
	code, ok := f.input.PromptEmailCode(f.acct.Username)
	if !ok || code == "" {
		f.acct.ForgetSecrets()
		return nil, failure(ResultInvalidEmailVerificationChallenge)
	}
	f.persistOnSuccess = true
	body := formBody("Challenge", code, "command", "Continue")
	return f.client.postForm(ctx, f.env.TwoFactorURL(f.session.State, f.session.CodeChallenge), body)
}

// submitEulaAcceptance posts the acceptance form with the hash and return
// URL scraped from the EULA page.
func (f *Flow) submitEulaAcceptance(ctx context.Context, pageBody string) (*response, error) {
	body := formBody("eulaHash", eulaHash(pageBody), "returnUrl", eulaReturnURL(pageBody), "action", "Accept")
	return f.client.postForm(ctx, f.env.EulaURL(), body)
}

// reenterAuthorize resumes the authorization flow after an interstitial
// page (security warning, email verification notice).
func (f *Flow) reenterAuthorize(ctx context.Context) (*response, error) {
	return f.client.get(ctx, f.env.AuthorizeURL(f.session.State, f.session.CodeChallenge))
}

// ensurePassword guarantees a usable in-memory password: already present,
// decrypted from the vault, or freshly prompted. A freshly prompted
// password is encrypted and persisted right away when the vault is
// unlocked.
func (f *Flow) ensurePassword() error {
	if !f.acct.Password().Empty() {
		return nil
	}

	if f.acct.EncryptedPassword.Valid() && f.unlockKey() {
		secret, err := vault.Decrypt(f.acct.EncryptedPassword, f.keys.Key())
		if err != nil {
			return &LoginError{Result: ResultCryptoError, Err: err}
		}
		f.acct.RestorePassword(secret)
		return nil
	}

	entered, ok := f.input.PromptPassword(f.acct.Username)
	if !ok || entered.Empty() {
		entered.Close()
		return failure(ResultInvalidUsernameOrPassword)
	}
	f.acct.SetPassword(entered)

	if f.unlockKey() {
		if err := f.acct.PrepareStorage(f.keys.Key()); err != nil {
			log.Warnf("could not encrypt password for %s: %v", f.acct.Username, err)
		} else {
			f.persist()
		}
	}
	return nil
}

// unlockKey reports whether the master key is available, prompting for the
// passphrase once if needed.
func (f *Flow) unlockKey() bool {
	if f.keys == nil {
		return false
	}
	return f.keys.HasKey() || f.keys.RequestKey()
}

// syncCookies refreshes the account's persisted cookie blob from the
// session jar. The blob is written to disk only when persist runs.
func (f *Flow) syncCookies() {
	blob, err := f.session.Jar.Export()
	if err != nil {
		log.Warnf("could not export cookies for %s: %v", f.acct.Username, err)
		return
	}
	f.acct.CookieBlob = blob
}

// persist stores the account, logging rather than failing the flow when the
// write goes wrong; the login itself is still valid.
func (f *Flow) persist() {
	if f.store == nil {
		return
	}
	if err := f.store.Store(f.acct); err != nil {
		log.Warnf("could not persist account %s: %v", f.acct.Username, err)
	}
}

// formBody builds an application/x-www-form-urlencoded body from key/value
// pairs, preserving field order.
func formBody(pairs ...string) []byte {
	var out []byte
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			out = append(out, '&')
		}
		out = append(out, escapeForm([]byte(pairs[i]))...)
		out = append(out, '=')
		out = append(out, escapeForm([]byte(pairs[i+1]))...)
	}
	return out
}

// appendSecretField appends "&name=<escaped secret>" to form without the
// secret ever passing through a string. The caller zeroes the result.
func appendSecretField(form []byte, name string, secret *vault.SecureBytes) []byte {
	escaped := escapeForm(secret.Bytes())
	defer vault.Zero(escaped)
	out := form
	if len(out) > 0 {
		out = append(out, '&')
	}
	out = append(out, []byte(name)...)
	out = append(out, '=')
	out = append(out, escaped...)
	return out
}
