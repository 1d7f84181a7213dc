package eve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Rhine227/ISBoxerEVELauncher/internal/account"
)

// tokenResponse mirrors the SSO token endpoint envelope. A refresh token is
// issued but deliberately unused; renewal is always a fresh login.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
}

// exchangeCode trades the authorization code from the final redirect for an
// access token. The code_verifier must be the exact verifier whose hash was
// submitted as the code_challenge at session start; anything else fails the
// server's PKCE validation.
func (f *Flow) exchangeCode(ctx context.Context, authCode string) (*account.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", ClientID)
	form.Set("redirect_uri", f.env.RedirectURI())
	form.Set("code", authCode)
	form.Set("code_verifier", f.session.CodeVerifier())

	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	submitted := time.Now()
	resp, err := f.client.postForm(ctx, f.env.TokenURL(), []byte(form.Encode()))
	if err != nil {
		le := &LoginError{Result: ResultTokenFailure, Err: err}
		if ResultOf(err) == ResultTimeout {
			le.Result = ResultTimeout
		}
		return nil, le
	}
	if resp.status != http.StatusOK {
		return nil, &LoginError{Result: ResultTokenFailure, URI: resp.uri, Body: resp.body,
			Err: fmt.Errorf("token endpoint returned status %d", resp.status)}
	}

	var envelope tokenResponse
	if err = json.Unmarshal([]byte(resp.body), &envelope); err != nil {
		return nil, &LoginError{Result: ResultTokenFailure, URI: resp.uri, Body: resp.body, Err: err}
	}
	if envelope.AccessToken == "" {
		return nil, &LoginError{Result: ResultTokenFailure, URI: resp.uri, Body: resp.body,
			Err: fmt.Errorf("token endpoint returned no access token")}
	}

	// The launcher endpoint reports expiry in minutes.
	return &account.Token{
		Value:     envelope.AccessToken,
		ExpiresAt: submitted.Add(time.Duration(envelope.ExpiresIn) * time.Minute),
	}, nil
}
