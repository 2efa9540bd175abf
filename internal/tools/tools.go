// ABOUTME: Tool adapter contract shared by the MCP gateway and provider adapters
// ABOUTME: Defines tool definitions, credentials, and the typed ToolError taxonomy

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownTool indicates no registered adapter exposes the requested tool.
var ErrUnknownTool = errors.New("unknown tool")

// ErrToolCollision indicates two adapters expose the same tool name.
var ErrToolCollision = errors.New("tool name collision")

// Definition describes one tool as advertised in tools/list.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Credential is the upstream material a session holds for the calling user.
// Adapters that act on the user's behalf obtain an authorized client from it.
type Credential interface {
	Client(ctx context.Context) *http.Client
}

// Adapter exposes a fixed set of tools backed by one external provider.
type Adapter interface {
	// Name identifies the provider in logs and audit records.
	Name() string
	// Definitions returns the adapter's static tool list.
	Definitions() []Definition
	// Invoke runs the named tool. Errors should be *ToolError.
	Invoke(ctx context.Context, name string, args json.RawMessage, cred Credential) (any, error)
}

// Kind classifies a tool failure for mapping onto protocol error codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidParams
	KindUpstreamUnavailable
	KindUpstreamRejected
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParams:
		return "invalid_params"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindUpstreamRejected:
		return "upstream_rejected"
	default:
		return "unknown"
	}
}

// ToolError is the error type adapters return from Invoke.
// Message is safe to show to the client; Err is kept for logs.
type ToolError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// InvalidParams reports arguments that failed validation.
func InvalidParams(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// Unavailable reports a provider that could not be reached or failed server-side.
func Unavailable(message string, err error) *ToolError {
	return &ToolError{Kind: KindUpstreamUnavailable, Message: message, Err: err}
}

// Rejected reports a provider that refused the request.
func Rejected(message string, err error) *ToolError {
	return &ToolError{Kind: KindUpstreamRejected, Message: message, Err: err}
}

// AsToolError returns err as a *ToolError, classifying anything else as KindUnknown.
func AsToolError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Kind: KindUnknown, Message: "internal error", Err: err}
}
