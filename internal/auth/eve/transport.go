package eve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every challenge request. There is no retry at this
// layer: a timed-out step fails the attempt and the caller decides whether
// to start a fresh session.
const DefaultTimeout = 30 * time.Second

// tokenTimeout bounds the token endpoint exchange, which is a plain JSON
// POST and should answer quickly.
const tokenTimeout = 10 * time.Second

// Client issues the login flow's HTTP requests: one cookie jar for the whole
// attempt, redirects followed, and the Origin/Referer headers the login
// server checks on form submissions.
type Client struct {
	env Environment
	hc  *http.Client
}

// NewClient builds a client bound to the session's cookie jar. A zero
// timeout selects DefaultTimeout.
func NewClient(env Environment, jar http.CookieJar, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		env: env,
		hc: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
	}
}

// response captures what the flow needs from a server answer: the final URI
// after redirects and the page body.
type response struct {
	status int
	uri    string
	body   string
}

// get fetches a page within the flow.
func (c *Client) get(ctx context.Context, rawURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &LoginError{Result: ResultError, Err: err}
	}
	req.Header.Set("Referer", c.env.RedirectURI())
	return c.do(req)
}

// postForm submits a form body. The caller owns body and is expected to
// zero it after the call when it carries a secret.
func (c *Client) postForm(ctx context.Context, rawURL string, body []byte) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, &LoginError{Result: ResultError, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", c.env.Origin())
	req.Header.Set("Referer", rawURL)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*response, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	finalURI := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURI = resp.Request.URL.String()
	}
	log.Debugf("%s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, finalURI)

	return &response{status: resp.StatusCode, uri: finalURI, body: string(raw)}, nil
}

// classifyTransportError maps a transport failure onto the login taxonomy.
// Timeouts get their own result so the caller can distinguish "the server is
// slow" from "the server said no".
func classifyTransportError(err error) *LoginError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &LoginError{Result: ResultTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LoginError{Result: ResultTimeout, Err: err}
	}
	return &LoginError{Result: ResultError, Err: err}
}
