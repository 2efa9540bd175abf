// Package session keeps the server side of a signed-in MCP client.
//
// A Session is created once per completed OAuth exchange. It holds the
// user's identity and the upstream credential used by tool adapters. The
// client only ever sees a signed token naming the session ID; the credential
// stays here.
//
// Sessions live for DefaultTTL and are never refreshed or revoked. Get treats
// expired sessions as absent; Run removes them in the background.
package session
