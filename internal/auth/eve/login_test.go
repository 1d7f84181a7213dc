package eve

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rhine227/ISBoxerEVELauncher/internal/account"
	"github.com/Rhine227/ISBoxerEVELauncher/internal/vault"
)

const logonPage = `<form action="/account/logon" method="post">
<input name="__RequestVerificationToken" type="hidden" value="vt-1" />
<input name="UserName" type="text" /><input name="Password" type="password" />
</form>`

// scriptedInput answers prompts from canned values. An empty value means the
// user cancelled that prompt.
type scriptedInput struct {
	password  string
	authCode  string
	emailCode string
	character string
	accept    bool

	passwordPrompts int
}

func (s *scriptedInput) PromptPassword(string) (*vault.SecureBytes, bool) {
	s.passwordPrompts++
	if s.password == "" {
		return nil, false
	}
	return vault.NewSecureBytes([]byte(s.password)), true
}

func (s *scriptedInput) PromptAuthenticatorCode(string) (string, bool) {
	return s.authCode, s.authCode != ""
}

func (s *scriptedInput) PromptEmailCode(string) (string, bool) {
	return s.emailCode, s.emailCode != ""
}

func (s *scriptedInput) PromptCharacterName(string) (string, bool) {
	return s.character, s.character != ""
}

func (s *scriptedInput) PromptAccept(ChallengeKind, string) bool {
	return s.accept
}

type memStore struct {
	writes int
	last   *account.Account
}

func (m *memStore) Store(a *account.Account) error {
	m.writes++
	m.last = a
	return nil
}

// fixedKeys is a MasterKeyProvider that is always unlocked.
type fixedKeys struct{ key []byte }

func (k fixedKeys) HasKey() bool     { return true }
func (k fixedKeys) RequestKey() bool { return true }
func (k fixedKeys) Key() []byte      { return k.key }

func testMasterKey() []byte {
	sum := sha256.Sum256([]byte("master"))
	return sum[:]
}

func newTestFlow(t *testing.T, srv *httptest.Server, acct *account.Account, input *scriptedInput, store Store, keys vault.MasterKeyProvider) *Flow {
	t.Helper()
	env := Environment{Name: "test", BaseURL: srv.URL}
	flow, err := NewFlow(env, acct, input, store, keys, 0)
	require.NoError(t, err)
	return flow
}

func TestLoginAuthenticatorFlow(t *testing.T) {
	var (
		challenge     string
		seenToken     string
		seenPassword  string
		seenTwoFactor url.Values
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			ret, err := url.Parse(r.URL.Query().Get("ReturnUrl"))
			require.NoError(t, err)
			challenge = ret.Query().Get("code_challenge")
			fmt.Fprint(w, logonPage)
			return
		}
		require.NoError(t, r.ParseForm())
		seenToken = r.PostForm.Get("__RequestVerificationToken")
		seenPassword = r.PostForm.Get("Password")
		fmt.Fprint(w, `<p>Authenticator is enabled</p>`)
	})
	mux.HandleFunc("/account/authenticator", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		seenTwoFactor = r.PostForm
		http.Redirect(w, r, "/launcher?client_id="+ClientID+"&code=code-1", http.StatusFound)
	})
	mux.HandleFunc("/launcher", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>please wait</html>")
	})
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, ClientID, r.PostForm.Get("client_id"))
		assert.Equal(t, "code-1", r.PostForm.Get("code"))
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		assert.Equal(t, challenge, base64.RawURLEncoding.EncodeToString(sum[:]))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":20,"token_type":"Bearer","refresh_token":"r-1"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	input := &scriptedInput{password: "p@ss word+1", authCode: "123456"}
	store := &memStore{}
	flow := newTestFlow(t, srv, acct, input, store, nil)

	start := time.Now()
	tok, err := flow.Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", tok.Value)
	// Expiry is reported in minutes, anchored at submission time.
	assert.WithinDuration(t, start.Add(20*time.Minute), tok.ExpiresAt, time.Minute)
	assert.Same(t, tok, acct.Token("test"))
	assert.Equal(t, "vt-1", seenToken)
	assert.Equal(t, "p@ss word+1", seenPassword)
	assert.Equal(t, "true", seenTwoFactor.Get("RememberTwoFactor"))
	assert.Equal(t, "Continue", seenTwoFactor.Get("command"))
	assert.Equal(t, 1, input.passwordPrompts)
	// Answering a two-factor challenge marks the remembered-device cookies
	// for persistence on success.
	assert.GreaterOrEqual(t, store.writes, 1)
	assert.NotEmpty(t, acct.CookieBlob)
}

func TestLoginCharacterChallengeFlow(t *testing.T) {
	var seenChallenge url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<h2>Character challenge</h2>`)
	})
	mux.HandleFunc("/account/challenge", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		seenChallenge = r.PostForm
		http.Redirect(w, r, "/launcher?code=code-2", http.StatusFound)
	})
	mux.HandleFunc("/launcher", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>please wait</html>")
	})
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-2","expires_in":20,"token_type":"Bearer"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key := testMasterKey()
	acct := account.New("pilot@example.com")
	input := &scriptedInput{password: "hunter2", character: "My Main"}
	store := &memStore{}
	flow := newTestFlow(t, srv, acct, input, store, fixedKeys{key: key})

	tok, err := flow.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.Value)

	assert.Equal(t, "My Main", seenChallenge.Get("Challenge"))
	assert.Equal(t, "true", seenChallenge.Get("RememberCharacterChallenge"))

	// A freshly entered character name is encrypted and persisted right away.
	require.True(t, acct.EncryptedCharacterName.Valid())
	name, err := vault.Decrypt(acct.EncryptedCharacterName, key)
	require.NoError(t, err)
	assert.Equal(t, "My Main", string(name.Bytes()))
	name.Close()
	assert.GreaterOrEqual(t, store.writes, 1)
}

func TestLoginReusesStoredPassword(t *testing.T) {
	var seenPassword string
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		require.NoError(t, r.ParseForm())
		seenPassword = r.PostForm.Get("Password")
		http.Redirect(w, r, "/launcher?code=code-3", http.StatusFound)
	})
	mux.HandleFunc("/launcher", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>please wait</html>")
	})
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-3","expires_in":20,"token_type":"Bearer"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key := testMasterKey()
	acct := account.New("pilot@example.com")
	enc, err := vault.Encrypt(vault.NewSecureBytes([]byte("stored-pass")), key, nil)
	require.NoError(t, err)
	acct.EncryptedPassword = enc

	input := &scriptedInput{}
	flow := newTestFlow(t, srv, acct, input, &memStore{}, fixedKeys{key: key})

	tok, err := flow.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-3", tok.Value)
	assert.Equal(t, "stored-pass", seenPassword)
	assert.Zero(t, input.passwordPrompts)
}

func TestLoginCorruptStoredPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	}))
	defer srv.Close()

	key := testMasterKey()
	acct := account.New("pilot@example.com")
	good, err := vault.Encrypt(vault.NewSecureBytes([]byte("stored-pass")), key, nil)
	require.NoError(t, err)
	acct.EncryptedPassword = vault.EncryptedSecret{Ciphertext: "%%% not base64", IV: good.IV}

	flow := newTestFlow(t, srv, acct, &scriptedInput{}, &memStore{}, fixedKeys{key: key})

	_, err = flow.Login(context.Background())
	assert.Equal(t, ResultCryptoError, ResultOf(err))
}

func TestLoginCachedTokenShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	}))
	defer srv.Close()

	acct := account.New("pilot@example.com")
	cached := &account.Token{Value: "cached", ExpiresAt: time.Now().Add(time.Hour)}
	acct.SetToken("test", cached)

	flow := newTestFlow(t, srv, acct, &scriptedInput{}, &memStore{}, nil)

	tok, err := flow.Login(context.Background())
	require.NoError(t, err)
	assert.Same(t, cached, tok)
}

func TestLoginExpiredCachedTokenIsIgnored(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<li>Invalid username / password</li>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	acct.SetToken("test", &account.Token{Value: "stale", ExpiresAt: time.Now().Add(-time.Minute)})

	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2"}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	assert.Equal(t, ResultInvalidUsernameOrPassword, ResultOf(err))
}

func TestLoginInvalidCredentialsClearsPassword(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<li>Invalid username / password</li>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key := testMasterKey()
	acct := account.New("pilot@example.com")
	enc, err := vault.Encrypt(vault.NewSecureBytes([]byte("wrong-pass")), key, nil)
	require.NoError(t, err)
	acct.EncryptedPassword = enc

	store := &memStore{}
	flow := newTestFlow(t, srv, acct, &scriptedInput{}, store, fixedKeys{key: key})

	_, err = flow.Login(context.Background())
	assert.Equal(t, ResultInvalidUsernameOrPassword, ResultOf(err))

	// Both the plaintext and the stored ciphertext are gone, and the cleared
	// state is persisted.
	assert.True(t, acct.Password().Empty())
	assert.False(t, acct.EncryptedPassword.Valid())
	assert.GreaterOrEqual(t, store.writes, 1)
}

func TestLoginCancelledPasswordPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	}))
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	assert.Equal(t, ResultInvalidUsernameOrPassword, ResultOf(err))
}

func TestLoginAuthenticatorPromptCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<p>Authenticator is enabled</p>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2"}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	assert.Equal(t, ResultInvalidAuthenticatorChallenge, ResultOf(err))
	assert.True(t, acct.Password().Empty())
}

func TestLoginEmailCodePromptCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<p>Please enter the verification code we sent</p>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2"}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	assert.Equal(t, ResultInvalidEmailVerificationChallenge, ResultOf(err))
}

func TestLoginEulaDeclined(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<form action="/oauth/eula" method="post">`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2", accept: false}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	assert.Equal(t, ResultEULADeclined, ResultOf(err))
	assert.True(t, acct.Password().Empty())
}

func TestLoginEulaAccepted(t *testing.T) {
	var seenEula url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<form action="/oauth/eula" method="post">
<input name="eulaHash" type="hidden" value="hash-1" />
<input name="returnUrl" type="hidden" value="/v2/oauth/authorize?client_id=eveLauncherTQ" />
</form>`)
	})
	mux.HandleFunc("/oauth/eula", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		seenEula = r.PostForm
		http.Redirect(w, r, "/launcher?code=code-4", http.StatusFound)
	})
	mux.HandleFunc("/launcher", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>please wait</html>")
	})
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-4","expires_in":20,"token_type":"Bearer"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2", accept: true}, &memStore{}, nil)

	tok, err := flow.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-4", tok.Value)
	assert.Equal(t, "hash-1", seenEula.Get("eulaHash"))
	assert.Equal(t, "/v2/oauth/authorize?client_id=eveLauncherTQ", seenEula.Get("returnUrl"))
	assert.Equal(t, "Accept", seenEula.Get("action"))
}

func TestLoginUnrecognizedResponsePreservesBody(t *testing.T) {
	const strange = `<html><body>Cluster shutting down for daily maintenance</body></html>`
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, strange)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2"}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ResultError, le.Result)
	assert.Equal(t, strange, le.Body)
	assert.Contains(t, le.URI, "/account/logon")
}

func TestLoginTooManyChallenges(t *testing.T) {
	// A server that never stops re-presenting the same interstitial.
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<h1>Security Warning</h1>`)
	})
	mux.HandleFunc("/v2/oauth/authorize", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<h1>Security Warning</h1>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2", accept: true}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	assert.Equal(t, ResultTooManyChallenges, ResultOf(err))
	assert.True(t, acct.Password().Empty())
}

func TestLoginTransportTimeout(t *testing.T) {
	// A server slower than the flow's timeout must terminate the attempt
	// with the timeout result; the flow never retries on its own.
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, logonPage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	env := Environment{Name: "test", BaseURL: srv.URL}
	acct := account.New("pilot@example.com")
	flow, err := NewFlow(env, acct, &scriptedInput{password: "hunter2"}, &memStore{}, nil, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = flow.Login(context.Background())
	assert.Equal(t, ResultTimeout, ResultOf(err))
}

func TestLoginEmailVerificationDeclined(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<h2>Email verification required</h2>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2", accept: false}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	assert.Equal(t, ResultEmailVerificationRequired, ResultOf(err))
	assert.True(t, acct.Password().Empty())
}

func TestLoginEmailVerificationAccepted(t *testing.T) {
	// Verification happens out-of-band; once the user confirms it is done
	// the flow re-enters the authorization URL and proceeds normally.
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		fmt.Fprint(w, `<h2>Email verification required</h2>`)
	})
	mux.HandleFunc("/v2/oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/launcher?code=code-6", http.StatusFound)
	})
	mux.HandleFunc("/launcher", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>please wait</html>")
	})
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-6","expires_in":20,"token_type":"Bearer"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2", accept: true}, &memStore{}, nil)

	tok, err := flow.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-6", tok.Value)
}

func TestLoginTokenEndpointFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/logon", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, logonPage)
			return
		}
		http.Redirect(w, r, "/launcher?code=code-5", http.StatusFound)
	})
	mux.HandleFunc("/launcher", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>please wait</html>")
	})
	mux.HandleFunc("/v2/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "server error", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	acct := account.New("pilot@example.com")
	flow := newTestFlow(t, srv, acct, &scriptedInput{password: "hunter2"}, &memStore{}, nil)

	_, err := flow.Login(context.Background())
	assert.Equal(t, ResultTokenFailure, ResultOf(err))
	assert.True(t, acct.Password().Empty())
	assert.Nil(t, acct.Token("test"))
}
