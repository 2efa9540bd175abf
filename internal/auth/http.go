// ABOUTME: Bearer token extraction for HTTP requests
// ABOUTME: Shared by the MCP gateway and the OAuth bridge endpoints

package auth

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// ExtractBearerToken extracts a bearer token from an Authorization header value.
// Returns the token and a reason (empty if successful).
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if len(authHeader) < len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// BearerFromRequest returns the bearer token on r, or "" when there is none.
func BearerFromRequest(r *http.Request) string {
	token, reason := ExtractBearerToken(r.Header.Get("Authorization"))
	if reason != "" {
		return ""
	}
	return token
}
