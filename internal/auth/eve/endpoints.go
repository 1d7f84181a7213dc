// Package eve implements the EVE Online SSO login flow used by the launcher.
// The SSO speaks HTML pages and redirects rather than a JSON API: after a
// PKCE-protected authorization request the server walks the client through a
// sequence of challenges (credentials, two-factor codes, character
// disambiguation, EULA acceptance) before finally redirecting with an
// authorization code that can be exchanged for a bearer access token.
package eve

import (
	"fmt"
	"net/url"
)

// OAuth client metadata used by the official launcher.
const (
	// ClientID is the OAuth client identifier registered for the launcher.
	ClientID = "eveLauncherTQ"
	// Scope lists the permissions requested during authorization.
	Scope = "eveClientLogin cisservice.customerRead.v1 cisservice.customerWrite.v1"
)

// Environment describes one login cluster. Tranquility is the production
// cluster; Singularity ("sisi") is the public test cluster. The two differ
// only in their base URIs.
type Environment struct {
	// Name identifies the environment, e.g. "tranquility".
	Name string
	// BaseURL is the scheme and host of the login server, without a
	// trailing slash.
	BaseURL string
}

var (
	// Tranquility is the production login environment.
	Tranquility = Environment{Name: "tranquility", BaseURL: "https://login.eveonline.com"}
	// Singularity is the test ("sisi") login environment.
	Singularity = Environment{Name: "singularity", BaseURL: "https://sisilogin.testeveonline.com"}
)

// EnvironmentFor returns the login environment for the given server flag.
func EnvironmentFor(sisi bool) Environment {
	if sisi {
		return Singularity
	}
	return Tranquility
}

// RedirectURI is the registered OAuth redirect target for this environment.
// The server redirects here with the authorization code once every challenge
// has been satisfied.
func (e Environment) RedirectURI() string {
	return e.BaseURL + "/launcher?client_id=" + ClientID
}

// Origin is the value sent in the Origin header on form submissions.
func (e Environment) Origin() string {
	return e.BaseURL
}

// authorizePath builds the /v2/oauth/authorize path-and-query for the given
// session state and PKCE challenge. It is used both as a direct request
// target and as the ReturnUrl parameter on the challenge endpoints.
func (e Environment) authorizePath(state, codeChallenge string) string {
	q := url.Values{}
	q.Set("client_id", ClientID)
	q.Set("response_type", "code")
	q.Set("scope", Scope)
	q.Set("redirect_uri", e.RedirectURI())
	q.Set("state", state)
	q.Set("code_challenge_method", "S256")
	q.Set("code_challenge", codeChallenge)
	q.Set("ignoreClientStyle", "true")
	q.Set("showRemember", "true")
	return "/v2/oauth/authorize?" + q.Encode()
}

// AuthorizeURL is the full authorization endpoint URL for this session.
func (e Environment) AuthorizeURL(state, codeChallenge string) string {
	return e.BaseURL + e.authorizePath(state, codeChallenge)
}

// returnURL wraps a challenge endpoint path with the escaped authorize path
// as its ReturnUrl, so the server resumes the authorization flow after the
// challenge is answered.
func (e Environment) returnURL(endpoint, state, codeChallenge string) string {
	return fmt.Sprintf("%s%s?ReturnUrl=%s", e.BaseURL, endpoint, url.QueryEscape(e.authorizePath(state, codeChallenge)))
}

// LogonURL is the credentials submission endpoint.
func (e Environment) LogonURL(state, codeChallenge string) string {
	return e.returnURL("/account/logon", state, codeChallenge)
}

// AuthenticatorURL is the authenticator-app two-factor challenge endpoint.
func (e Environment) AuthenticatorURL(state, codeChallenge string) string {
	return e.returnURL("/account/authenticator", state, codeChallenge)
}

// TwoFactorURL is the emailed verification code challenge endpoint.
func (e Environment) TwoFactorURL(state, codeChallenge string) string {
	return e.returnURL("/account/verifytwofactor", state, codeChallenge)
}

// CharacterChallengeURL is the character name disambiguation endpoint.
func (e Environment) CharacterChallengeURL(state, codeChallenge string) string {
	return e.returnURL("/account/challenge", state, codeChallenge)
}

// EulaURL is the EULA acceptance endpoint.
func (e Environment) EulaURL() string {
	return e.BaseURL + "/oauth/eula"
}

// TokenURL is the OAuth token endpoint used to exchange an authorization
// code for an access token.
func (e Environment) TokenURL() string {
	return e.BaseURL + "/v2/oauth/token"
}
