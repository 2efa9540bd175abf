// Package mcp implements the Model Context Protocol endpoints that expose
// provider tools to external agents over JSON-RPC 2.0.
//
// # Transports
//
// Single-shot: POST /mcp carries one request and the response comes back in
// the HTTP body. Notifications are answered with 202 and no body.
//
// Streaming: GET /mcp (or /mcp/sse) opens a text/event-stream. The first
// event is "endpoint", whose data is the URL to POST requests to:
//
//	event: endpoint
//	data: /mcp/messages?stream=<id>
//
// followed by an endpoint/info notification. Each request POSTed to that URL
// is answered with 202 and its response is emitted later as an "event:
// message" on the stream. A ": keepalive" comment is sent every 30 seconds.
// Closing the stream cancels any calls still in flight for it.
//
// # Methods
//
//	initialize  no auth
//	ping        no auth
//	tools/list  no auth
//	tools/call  bearer token required
//
// Authentication failures are JSON-RPC errors (code -32001) with the login
// URL in error.data; the HTTP status stays 200.
package mcp
