// Package oauth turns a browser login with the calendar provider into a
// bearer token an MCP client can paste into its configuration.
//
// # Flow
//
//  1. GET /auth/start records a pending login (random state plus a PKCE
//     verifier) and redirects to the provider consent screen.
//  2. GET /auth/callback consumes the state exactly once, exchanges the code,
//     fetches the user's identity, creates a session holding the provider
//     token, and returns a signed session token with a ready-made client
//     config snippet.
//  3. GET /setup?code= redeems the one-time exchange code from step 2 for a
//     token on the same session, for users finishing setup on another device.
//
// Pending logins expire after DefaultStateTTL and exchange codes after
// DefaultExchangeCodeTTL. Nothing is stored for a login that fails partway.
//
// The provider token is wrapped in a TokenCredential, which refreshes it
// transparently and redacts itself from logs and JSON.
package oauth
