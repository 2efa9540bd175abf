// ABOUTME: Fetches the signed-in user's identity from the provider's userinfo endpoint
// ABOUTME: Parses sub, email, and name with gjson

package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/2389/skybridge/internal/auth"
)

// DefaultUserInfoURL is Google's OpenID Connect userinfo endpoint.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

const maxUserInfoBody = 1 << 20

// ErrUserInfo indicates the provider identity could not be retrieved.
var ErrUserInfo = errors.New("fetching user info failed")

func fetchUserInfo(ctx context.Context, client *http.Client, endpoint string) (auth.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBody))
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: reading response: %v", ErrUserInfo, err)
	}
	if resp.StatusCode != http.StatusOK {
		return auth.Identity{}, fmt.Errorf("%w: HTTP %d", ErrUserInfo, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return auth.Identity{}, fmt.Errorf("%w: malformed response", ErrUserInfo)
	}

	res := gjson.ParseBytes(body)
	identity := auth.Identity{
		Subject: res.Get("sub").String(),
		Email:   res.Get("email").String(),
		Name:    res.Get("name").String(),
	}
	if identity.Subject == "" {
		return auth.Identity{}, fmt.Errorf("%w: response has no subject", ErrUserInfo)
	}
	return identity, nil
}
