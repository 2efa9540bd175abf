// ABOUTME: JSON-RPC 2.0 envelope types and MCP payloads for the gateway
// ABOUTME: Parses request envelopes and builds result and error responses

package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ProtocolVersion is the MCP revision this server speaks (HTTP+SSE transport).
const ProtocolVersion = "2024-11-05"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// Server-defined error codes
const (
	CodeUpstreamError = -32000
	CodeAuthRequired  = -32001
	CodeRateLimited   = -32002
)

// JSON-RPC 2.0 types

// Request represents a JSON-RPC 2.0 request or notification.
// ID is nil when the member is absent (a notification) and "null" when it is an explicit null.
type Request struct {
	JSONRPC *string         `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is a server-initiated message with no id.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// MCP-specific types

// ServerInfo identifies this server in initialize results.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result for initialize and the endpoint/info notification.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ToolInfo represents an MCP tool definition.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content           []Content `json:"content"`
	StructuredContent any       `json:"structuredContent,omitempty"`
	IsError           bool      `json:"isError,omitempty"`
}

// Content represents content in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	errBatch       = errors.New("batch requests are not supported")
	errNotObject   = errors.New("request must be a JSON object")
	errBadVersion  = errors.New(`jsonrpc must be "2.0"`)
	errNoMethod    = errors.New("method is required")
	errBadIDType   = errors.New("id must be a string, number, or null")
	errBodyTooBig  = errors.New("request body too large")
	nullID         = json.RawMessage("null")
	jsonrpcVersion = "2.0"
)

// parseRequest decodes one envelope. On failure it returns the error response
// to send, carrying the request id when one could be recovered.
func parseRequest(body []byte) (*Request, *Response) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, errorResponse(nil, JSONRPCParseError, "parse error: invalid JSON", nil)
	}
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		return nil, errorResponse(nil, JSONRPCInvalidRequest, errBatch.Error(), nil)
	case len(trimmed) == 0 || trimmed[0] != '{':
		return nil, errorResponse(nil, JSONRPCInvalidRequest, errNotObject.Error(), nil)
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, errorResponse(nil, JSONRPCInvalidRequest, "invalid request: "+err.Error(), nil)
	}

	if req.ID != nil && !validID(req.ID) {
		return nil, errorResponse(nil, JSONRPCInvalidRequest, errBadIDType.Error(), nil)
	}
	if req.JSONRPC != nil && *req.JSONRPC != jsonrpcVersion {
		return nil, errorResponse(responseID(req.ID), JSONRPCInvalidRequest, errBadVersion.Error(), nil)
	}
	if req.Method == "" {
		return nil, errorResponse(responseID(req.ID), JSONRPCInvalidRequest, errNoMethod.Error(), nil)
	}
	return &req, nil
}

func validID(id json.RawMessage) bool {
	switch id[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	default:
		return false
	}
}

// responseID maps an absent id onto null for error replies.
func responseID(id json.RawMessage) json.RawMessage {
	if id == nil {
		return nullID
	}
	return id
}

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: responseID(id), Result: result}
}

func errorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: jsonrpcVersion,
		ID:      responseID(id),
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
