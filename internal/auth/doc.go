// Package auth issues and verifies the session tokens handed to MCP clients.
//
// # Tokens
//
// A token is an HS256 JWT signed with the server-held auth.signing_key. It
// carries the user's identity and the ID of the in-memory session that holds
// the upstream provider credential:
//
//	sub   provider subject
//	email provider email
//	name  display name
//	sid   session ID
//	iat   issued at
//	exp   expiry
//	jti   unique token ID
//
// The provider credential itself is never placed in the token.
//
// # Verification
//
//	signer, err := auth.NewSigner(secret)
//	token, err := signer.Issue(identity, sessionID, 24*time.Hour)
//	claims, err := signer.Verify(token)
//
// Verify returns ErrExpiredToken once the local clock passes exp. Every other
// failure wraps ErrInvalidToken. There is no clock-skew leeway.
//
// # Callers
//
// While a tool runs, its context carries the verified Caller:
//
//	caller := auth.CallerFromContext(ctx)
package auth
