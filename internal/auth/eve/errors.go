package eve

import (
	"errors"
	"fmt"
)

// LoginResult enumerates the terminal outcomes of a login attempt.
type LoginResult int

const (
	// ResultSuccess means an access token was obtained.
	ResultSuccess LoginResult = iota
	// ResultInvalidUsernameOrPassword means the server rejected the
	// credentials, or no password could be obtained.
	ResultInvalidUsernameOrPassword
	// ResultInvalidCharacterChallenge means the server rejected the
	// character name, or none was supplied.
	ResultInvalidCharacterChallenge
	// ResultInvalidAuthenticatorChallenge means the authenticator code was
	// rejected or the prompt was cancelled.
	ResultInvalidAuthenticatorChallenge
	// ResultInvalidEmailVerificationChallenge means the emailed code prompt
	// was cancelled.
	ResultInvalidEmailVerificationChallenge
	// ResultEmailVerificationRequired means the account needs its email
	// address verified before it can log in.
	ResultEmailVerificationRequired
	// ResultEULADeclined means the user declined the EULA.
	ResultEULADeclined
	// ResultSecurityWarningClosed means the user dismissed the security
	// warning instead of continuing.
	ResultSecurityWarningClosed
	// ResultTimeout means a network step timed out. The caller may start a
	// fresh attempt; the core never retries on its own.
	ResultTimeout
	// ResultTokenFailure means the authorization code could not be
	// exchanged for an access token.
	ResultTokenFailure
	// ResultCryptoError means a stored secret could not be decrypted.
	ResultCryptoError
	// ResultTooManyChallenges means the server kept re-presenting
	// challenges past the transition cap.
	ResultTooManyChallenges
	// ResultError is the catch-all for responses the flow cannot classify;
	// the raw body and URI are preserved for diagnostics.
	ResultError
)

var loginResultNames = map[LoginResult]string{
	ResultSuccess:                           "success",
	ResultInvalidUsernameOrPassword:         "invalid username or password",
	ResultInvalidCharacterChallenge:         "invalid character name challenge",
	ResultInvalidAuthenticatorChallenge:     "invalid authenticator challenge",
	ResultInvalidEmailVerificationChallenge: "invalid email verification challenge",
	ResultEmailVerificationRequired:         "email verification required",
	ResultEULADeclined:                      "EULA declined",
	ResultSecurityWarningClosed:             "security warning closed",
	ResultTimeout:                           "timeout",
	ResultTokenFailure:                      "token exchange failure",
	ResultCryptoError:                       "stored secret decryption failure",
	ResultTooManyChallenges:                 "too many challenges",
	ResultError:                             "unrecognized server response",
}

// String returns a human-readable name for the result.
func (r LoginResult) String() string {
	if s, ok := loginResultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("login result %d", int(r))
}

// LoginError describes a failed login attempt. URI and Body carry the raw
// server response for results that need diagnostics (ResultError keeps the
// unclassifiable body verbatim).
type LoginError struct {
	Result LoginResult
	URI    string
	Body   string
	Err    error
}

// Error implements the error interface.
func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed: %s: %v", e.Result, e.Err)
	}
	return "login failed: " + e.Result.String()
}

// Unwrap returns the underlying cause, if any.
func (e *LoginError) Unwrap() error {
	return e.Err
}

// failure builds a LoginError for a bare result.
func failure(r LoginResult) *LoginError {
	return &LoginError{Result: r}
}

// ResultOf extracts the LoginResult carried by err. A nil error maps to
// ResultSuccess; errors that are not LoginErrors map to ResultError.
func ResultOf(err error) LoginResult {
	if err == nil {
		return ResultSuccess
	}
	var le *LoginError
	if errors.As(err, &le) {
		return le.Result
	}
	return ResultError
}
