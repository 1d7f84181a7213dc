package eve

import (
	"bytes"
	"testing"
)

func TestRequestVerificationToken(t *testing.T) {
	body := `<form action="/account/logon" method="post">
<input name="__RequestVerificationToken" type="hidden" value="tok-12345" />
<input name="UserName" type="text" />
</form>`
	if got := requestVerificationToken(body); got != "tok-12345" {
		t.Errorf("requestVerificationToken() = %q, want %q", got, "tok-12345")
	}
	if got := requestVerificationToken("<html>no form here</html>"); got != "" {
		t.Errorf("requestVerificationToken() = %q, want empty", got)
	}
}

func TestEulaFields(t *testing.T) {
	body := `<form action="/oauth/eula" method="post">
<input name="eulaHash" type="hidden" value="deadbeef" />
<input name="returnUrl" type="hidden" value="/v2/oauth/authorize?client_id=eveLauncherTQ" />
<button name="action" value="Accept">Accept</button>
</form>`
	if got := eulaHash(body); got != "deadbeef" {
		t.Errorf("eulaHash() = %q, want %q", got, "deadbeef")
	}
	if got := eulaReturnURL(body); got != "/v2/oauth/authorize?client_id=eveLauncherTQ" {
		t.Errorf("eulaReturnURL() = %q", got)
	}
}

func TestAuthCodeFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://login.eveonline.com/launcher?client_id=eveLauncherTQ&code=abc", "abc"},
		{"https://login.eveonline.com/launcher?client_id=eveLauncherTQ", ""},
		{"://not-a-uri", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := authCodeFromURI(tt.uri); got != tt.want {
			t.Errorf("authCodeFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestEscapeForm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a b", "a%20b"},
		{"p@ss+word/1", "p%40ss%2Bword%2F1"},
		{"safe-._~chars", "safe-._~chars"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := escapeForm([]byte(tt.in)); string(got) != tt.want {
			t.Errorf("escapeForm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormBodyOrdering(t *testing.T) {
	got := formBody("a", "1", "b", "two words", "c", "3")
	want := "a=1&b=two%20words&c=3"
	if !bytes.Equal(got, []byte(want)) {
		t.Errorf("formBody() = %q, want %q", got, want)
	}
}
