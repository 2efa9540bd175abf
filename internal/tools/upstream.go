// ABOUTME: HTTP plumbing for provider adapters with status classification
// ABOUTME: Retries idempotent GETs with exponential backoff; never retries writes

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/2389/skybridge/internal/auth"
)

// maxUpstreamBody caps how much of a provider response is read.
const maxUpstreamBody = 4 << 20

// RequestIDHeader carries the gateway request ID on upstream calls.
const RequestIDHeader = "X-Request-Id"

// DefaultMaxTries is the attempt limit for idempotent requests.
const DefaultMaxTries = 3

// Upstream issues requests to one provider and turns failures into ToolErrors.
type Upstream struct {
	provider   string
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// UpstreamOption configures an Upstream.
type UpstreamOption func(*Upstream)

// WithMaxTries sets the attempt limit for GET requests.
func WithMaxTries(n uint) UpstreamOption {
	return func(u *Upstream) {
		if n > 0 {
			u.maxTries = n
		}
	}
}

// WithBackOff sets the retry schedule for GET requests.
func WithBackOff(newBackOff func() backoff.BackOff) UpstreamOption {
	return func(u *Upstream) {
		u.newBackOff = newBackOff
	}
}

// NewUpstream creates request plumbing for the named provider.
func NewUpstream(provider string, opts ...UpstreamOption) *Upstream {
	u := &Upstream{
		provider: provider,
		maxTries: DefaultMaxTries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Get fetches endpoint with query, retrying transport failures, 429, and 5xx.
func (u *Upstream) Get(ctx context.Context, client *http.Client, endpoint string, query url.Values) ([]byte, error) {
	target, err := withQuery(endpoint, query)
	if err != nil {
		return nil, err
	}

	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, backoff.Permanent(&ToolError{Kind: KindUnknown, Message: "building request", Err: err})
		}
		body, err := u.do(ctx, client, req)
		if err != nil {
			if te := AsToolError(err); te.Kind != KindUpstreamUnavailable || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(u.newBackOff()),
		backoff.WithMaxTries(u.maxTries),
	)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, Unavailable(fmt.Sprintf("%s request failed", u.provider), err)
	}
	return body, nil
}

// Post sends payload as JSON to endpoint exactly once.
func (u *Upstream) Post(ctx context.Context, client *http.Client, endpoint string, query url.Values, payload any) ([]byte, error) {
	target, err := withQuery(endpoint, query)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, &ToolError{Kind: KindUnknown, Message: "encoding request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return nil, &ToolError{Kind: KindUnknown, Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return u.do(ctx, client, req)
}

func (u *Upstream) do(ctx context.Context, client *http.Client, req *http.Request) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req.Header.Set("Accept", "application/json")
	if caller := auth.CallerFromContext(ctx); caller != nil && caller.RequestID != "" {
		req.Header.Set(RequestIDHeader, caller.RequestID)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Unavailable(fmt.Sprintf("%s request timed out or was cancelled", u.provider), ctx.Err())
		}
		return nil, Unavailable(fmt.Sprintf("%s unreachable", u.provider), redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, Unavailable(fmt.Sprintf("reading %s response", u.provider), err)
	}

	if te := u.classify(resp.StatusCode, body); te != nil {
		return nil, te
	}
	return body, nil
}

// classify maps an HTTP status onto the ToolError taxonomy. Returns nil for 2xx.
// The provider's own error text stays in Err and never reaches the client message.
func (u *Upstream) classify(status int, body []byte) *ToolError {
	if status >= 200 && status < 300 {
		return nil
	}
	cause := fmt.Errorf("HTTP %d", status)
	if detail := upstreamMessage(body); detail != "" {
		cause = fmt.Errorf("HTTP %d: %s", status, detail)
	}

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return Unavailable(fmt.Sprintf("%s provider unavailable (HTTP %d)", u.provider, status), cause)
	default:
		return Rejected(fmt.Sprintf("%s provider rejected the request (HTTP %d)", u.provider, status), cause)
	}
}

// redactURLError drops the query string from a transport error's URL.
// Query parameters may carry API keys.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: redactURL(ue.URL), Err: ue.Err}
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// upstreamMessage pulls a human readable error out of a provider error body.
func upstreamMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "message", "error_description", "error"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

func withQuery(endpoint string, query url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", &ToolError{Kind: KindUnknown, Message: "invalid provider URL", Err: err}
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
