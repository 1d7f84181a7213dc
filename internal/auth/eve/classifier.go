package eve

import "strings"

// ChallengeKind identifies what the login server is asking for next, or how
// it rejected the previous submission.
type ChallengeKind int

const (
	// KindBadCharacterName: the submitted character name was rejected.
	KindBadCharacterName ChallengeKind = iota
	// KindBadCredentials: the username/password pair was rejected.
	KindBadCredentials
	// KindBadAuthenticatorCode: the authenticator code was rejected.
	KindBadAuthenticatorCode
	// KindNeedsCharacterName: the account has multiple characters and the
	// server wants one named to disambiguate.
	KindNeedsCharacterName
	// KindNeedsEmailVerification: the account's email address must be
	// verified before login can proceed.
	KindNeedsEmailVerification
	// KindNeedsAuthenticatorCode: an authenticator app code is required.
	KindNeedsAuthenticatorCode
	// KindNeedsEmailCode: an emailed verification code is required.
	KindNeedsEmailCode
	// KindSecurityWarning: the server interposed a security warning page.
	KindSecurityWarning
	// KindNeedsEulaAcceptance: the EULA must be accepted.
	KindNeedsEulaAcceptance
	// KindRedirected: the flow completed and the final redirect carries the
	// authorization code.
	KindRedirected
	// KindUnrecognized: the response matched no known signature.
	KindUnrecognized
)

var challengeKindNames = map[ChallengeKind]string{
	KindBadCharacterName:       "bad character name",
	KindBadCredentials:         "bad credentials",
	KindBadAuthenticatorCode:   "bad authenticator code",
	KindNeedsCharacterName:     "needs character name",
	KindNeedsEmailVerification: "needs email verification",
	KindNeedsAuthenticatorCode: "needs authenticator code",
	KindNeedsEmailCode:         "needs email code",
	KindSecurityWarning:        "security warning",
	KindNeedsEulaAcceptance:    "needs EULA acceptance",
	KindRedirected:             "redirected with code",
	KindUnrecognized:           "unrecognized",
}

// String returns a human-readable name for the challenge kind.
func (k ChallengeKind) String() string {
	if s, ok := challengeKindNames[k]; ok {
		return s
	}
	return "unknown challenge"
}

// Challenge is the classification of one server response. URI and Body keep
// the raw response for follow-up submissions (the EULA post needs values
// scraped from the page) and for diagnostics on unrecognized pages.
type Challenge struct {
	Kind ChallengeKind
	// AuthCode is set only for KindRedirected.
	AuthCode string
	URI      string
	Body     string
}

// signatureRule is one entry of the ordered classification table. The page
// signatures are literal substrings of the login server's HTML.
type signatureRule struct {
	kind  ChallengeKind
	match func(body string) bool
}

func contains(sig string) func(string) bool {
	return func(body string) bool { return strings.Contains(body, sig) }
}

// classifierRules is applied in order; the first match wins. Order matters:
// the failure signatures sit above the prompt signatures because a rejection
// page repeats the prompt markup, and the character challenge rule must
// ignore pages that mention it only in visually hidden markup (the 2FA page
// does).
var classifierRules = []signatureRule{
	{KindBadCharacterName, contains("Incorrect character name entered")},
	{KindBadCredentials, contains("Invalid username / password")},
	// Partial signature: observed as both "authenticator" and "authentication".
	{KindBadAuthenticatorCode, contains("Invalid authenticat")},
	{KindNeedsCharacterName, func(body string) bool {
		return strings.Contains(body, "Character challenge") && !strings.Contains(body, "visuallyhidden")
	}},
	{KindNeedsEmailVerification, contains("Email verification required")},
	{KindNeedsAuthenticatorCode, contains("Authenticator is enabled")},
	{KindNeedsEmailCode, contains("Please enter the verification code ")},
	{KindSecurityWarning, contains("Security Warning")},
	{KindNeedsEulaAcceptance, func(body string) bool {
		return strings.Contains(strings.ToLower(body), `form action="/oauth/eula"`)
	}},
}

// Classify inspects a server response and decides which challenge it
// represents. It is a pure function of the response URI and body; when no
// signature matches and the URI carries no authorization code the response
// is surfaced as unrecognized with the body preserved verbatim.
func Classify(responseURI, body string) Challenge {
	for _, rule := range classifierRules {
		if rule.match(body) {
			return Challenge{Kind: rule.kind, URI: responseURI, Body: body}
		}
	}
	if code := authCodeFromURI(responseURI); code != "" {
		return Challenge{Kind: KindRedirected, AuthCode: code, URI: responseURI, Body: body}
	}
	return Challenge{Kind: KindUnrecognized, URI: responseURI, Body: body}
}
