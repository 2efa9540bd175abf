// Package gateway orchestrates the skybridge server components.
//
// # Overview
//
// New builds every component from a config.Config and wires them onto one
// http.ServeMux:
//
//	GET  /healthz          liveness
//	GET  /auth/start       begin Google sign-in
//	GET  /auth/callback    finish sign-in, return token + client config
//	GET  /setup            redeem a one-time exchange code
//	POST /mcp              single-shot JSON-RPC
//	GET  /mcp, /mcp/sse    streaming JSON-RPC
//	POST /mcp/messages     submit to a stream
//
// The session store and OAuth bridge are created here and handed to both the
// login endpoints and the MCP server, so neither reaches for global state.
//
// # Lifecycle
//
// Run listens, then runs the HTTP server, the session sweeper, and the
// pending-login sweeper in one errgroup. Canceling the context (or any of
// them failing) triggers Shutdown: open MCP streams are closed first, then the
// HTTP server drains with a 5 second timeout, then the audit log is closed.
package gateway
