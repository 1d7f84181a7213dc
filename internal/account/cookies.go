package account

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Jar is an exportable cookie jar. It delegates matching and expiry to a
// publicsuffix-aware cookiejar and additionally records every cookie handed
// to it, so the jar contents can be serialized to an opaque blob and
// restored after a process restart. The login server issues long-lived
// "remember this device" cookies that must survive restarts or the user
// re-answers the two-factor challenge on every launch.
type Jar struct {
	mu      sync.Mutex
	inner   *cookiejar.Jar
	entries map[string][]*http.Cookie
}

// NewJar creates an empty jar.
func NewJar() (*Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Jar{inner: inner, entries: make(map[string][]*http.Cookie)}, nil
}

// RestoreJar rebuilds a jar from a blob produced by Export. An empty blob
// yields an empty jar.
func RestoreJar(blob string) (*Jar, error) {
	j, err := NewJar()
	if err != nil {
		return nil, err
	}
	if blob == "" {
		return j, nil
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode cookie blob: %w", err)
	}
	var stored map[string][]*http.Cookie
	if err = json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("parse cookie blob: %w", err)
	}

	now := time.Now()
	for rawURL, cookies := range stored {
		u, errParse := url.Parse(rawURL)
		if errParse != nil {
			continue
		}
		live := cookies[:0]
		for _, c := range cookies {
			if !c.Expires.IsZero() && c.Expires.Before(now) {
				continue
			}
			live = append(live, c)
		}
		if len(live) == 0 {
			continue
		}
		j.SetCookies(u, live)
	}
	return j, nil
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// SetCookies implements http.CookieJar, recording the cookies for export.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()
	key := u.Scheme + "://" + u.Host
	kept := j.entries[key][:0]
	for _, existing := range j.entries[key] {
		replaced := false
		for _, c := range cookies {
			if c.Name == existing.Name && c.Path == existing.Path && c.Domain == existing.Domain {
				replaced = true
				break
			}
		}
		if !replaced {
			kept = append(kept, existing)
		}
	}
	j.entries[key] = append(kept, cookies...)
}

// Export serializes the jar to an opaque storable blob.
func (j *Jar) Export() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	raw, err := json.Marshal(j.entries)
	if err != nil {
		return "", fmt.Errorf("serialize cookies: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
