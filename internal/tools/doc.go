// Package tools defines the contract between the MCP gateway and the provider
// adapters that actually do work.
//
// An Adapter advertises a static list of Definitions and runs calls against
// one external provider. Adapters are collected into a Registry at startup;
// the set is closed after that and tool names must be unique across it.
//
// Adapters report failures as *ToolError so the gateway can map them onto
// protocol error codes:
//
//	KindInvalidParams       arguments failed validation
//	KindUpstreamUnavailable provider unreachable, 5xx, or 429
//	KindUpstreamRejected    provider refused the request (other 4xx)
//	KindUnknown             anything else
//
// Upstream wraps the HTTP side. GET requests are retried with exponential
// backoff; writes are sent exactly once.
package tools
