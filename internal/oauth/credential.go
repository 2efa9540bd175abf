// ABOUTME: Upstream OAuth credential held by a session on the user's behalf
// ABOUTME: Refreshes expired access tokens and redacts itself from logs and JSON

package oauth

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

const redacted = "[redacted]"

// TokenCredential is the provider token set for one session. It satisfies
// tools.Credential and never exposes the token through String, JSON, or slog.
type TokenCredential struct {
	source oauth2.TokenSource
	base   *http.Client
}

// NewTokenCredential wraps tok so that expired access tokens are refreshed
// through cfg. base, when non-nil, is the client used for provider calls and
// refresh requests.
func NewTokenCredential(cfg *oauth2.Config, tok *oauth2.Token, base *http.Client) *TokenCredential {
	refreshCtx := context.Background()
	if base != nil {
		refreshCtx = context.WithValue(refreshCtx, oauth2.HTTPClient, base)
	}
	return &TokenCredential{
		source: oauth2.ReuseTokenSource(tok, cfg.TokenSource(refreshCtx, tok)),
		base:   base,
	}
}

// Client returns an HTTP client that authorizes requests with the current access token.
func (c *TokenCredential) Client(ctx context.Context) *http.Client {
	if c.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	}
	return oauth2.NewClient(ctx, c.source)
}

func (c *TokenCredential) String() string {
	return redacted
}

func (c *TokenCredential) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (c *TokenCredential) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
