package eve

import (
	"net/url"
	"strings"
)

// The login server renders plain ASP.NET forms; the handful of values the
// flow needs to echo back are scraped with positional string searches
// against known markup rather than a full HTML parse.

// valueBetween returns the text between the first occurrence of prefix and
// the next occurrence of suffix, or "" if either marker is missing.
func valueBetween(body, prefix, suffix string) string {
	start := strings.Index(body, prefix)
	if start < 0 {
		return ""
	}
	rest := body[start+len(prefix):]
	end := strings.Index(rest, suffix)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// requestVerificationToken extracts the anti-forgery token the logon form
// embeds as a hidden input. The token must be echoed back in the
// credentials POST or the server rejects the submission.
func requestVerificationToken(body string) string {
	field := valueBetween(body, `name="__RequestVerificationToken"`, "/>")
	return valueBetween(field, `value="`, `"`)
}

// eulaHash extracts the hash identifying the EULA revision being accepted.
func eulaHash(body string) string {
	field := valueBetween(body, `name="eulaHash"`, "/>")
	return valueBetween(field, `value="`, `"`)
}

// eulaReturnURL extracts the post-acceptance return URL from the EULA form.
func eulaReturnURL(body string) string {
	field := valueBetween(body, `name="returnUrl"`, "/>")
	return valueBetween(field, `value="`, `"`)
}

// authCodeFromURI pulls the authorization "code" query parameter out of the
// final redirect URI, or "" when absent.
func authCodeFromURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("code")
}

// escapeForm percent-encodes secret bytes for use in a form body without
// routing them through an immutable string. The returned slice is owned by
// the caller, who is expected to zero it along with the assembled body.
func escapeForm(b []byte) []byte {
	const hexdigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*3)
	for _, c := range b {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			out = append(out, c)
		default:
			out = append(out, '%', hexdigits[c>>4], hexdigits[c&0xf])
		}
	}
	return out
}
