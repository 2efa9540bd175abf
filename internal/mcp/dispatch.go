// ABOUTME: Method dispatch shared by the single-shot and streaming transports
// ABOUTME: Authenticates tools/call, invokes adapters, and maps failures onto error codes

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/skybridge/internal/auth"
	"github.com/2389/skybridge/internal/session"
	"github.com/2389/skybridge/internal/store"
	"github.com/2389/skybridge/internal/tools"
)

// Transport names recorded in the audit log.
const (
	TransportHTTP = "http"
	TransportSSE  = "sse"
)

// call carries the per-request context a transport hands to dispatch.
type call struct {
	transport string
	token     string // bearer token, "" when none was presented
}

// dispatch handles one parsed request. It returns nil for notifications.
// Panics are recovered and reported as internal errors.
func (s *Server) dispatch(ctx context.Context, req *Request, c call) (resp *Response) {
	if req.IsNotification() {
		s.handleNotification(req)
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic during dispatch",
				"method", req.Method,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			resp = errorResponse(req.ID, JSONRPCInternalError, "internal error", nil)
		}
	}()

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, s.initializeResult())
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, s.listTools())
	case "tools/call":
		return s.handleToolsCall(ctx, req, c)
	default:
		return errorResponse(req.ID, JSONRPCMethodNotFound, "method not found: "+req.Method, nil)
	}
}

func (s *Server) handleNotification(req *Request) {
	if strings.HasPrefix(req.Method, "notifications/") {
		s.logger.Debug("accepted MCP notification", "method", req.Method)
		return
	}
	s.logger.Warn("received notification for non-notification method", "method", req.Method)
}

func (s *Server) initializeResult() InitializeResult {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
		ServerInfo: ServerInfo{
			Name:    s.serverName,
			Version: s.serverVersion,
		},
	}
}

func (s *Server) listTools() ListToolsResult {
	defs := s.registry.Definitions()
	result := ListToolsResult{Tools: make([]ToolInfo, len(defs))}
	for i, d := range defs {
		result.Tools[i] = ToolInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}
	}
	return result
}

// handleToolsCall handles tools/call requests.
func (s *Server) handleToolsCall(ctx context.Context, req *Request, c call) *Response {
	var params CallToolParams
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, JSONRPCInvalidParams, "invalid params", nil)
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, JSONRPCInvalidParams, "tool name is required", nil)
	}

	if _, ok := s.registry.Lookup(params.Name); !ok {
		return errorResponse(req.ID, JSONRPCMethodNotFound, "tool not found: "+params.Name, nil)
	}

	sess, authErr := s.authenticate(c.token)
	if authErr != nil {
		return errorResponse(req.ID, CodeAuthRequired, authErr.Message, authErr.Data)
	}

	if !s.limiter.Allow(sess.ID) {
		s.logger.Warn("rate limit exceeded", "session_id", sess.ID, "tool_name", params.Name)
		return errorResponse(req.ID, CodeRateLimited, "rate limit exceeded, retry later", nil)
	}

	requestID := uuid.New().String()
	s.logger.Debug("tools/call",
		"tool_name", params.Name,
		"request_id", requestID,
		"session_id", sess.ID,
		"transport", c.transport,
	)

	callCtx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()
	callCtx = auth.WithCaller(callCtx, &auth.Caller{
		Identity:  sess.Identity,
		SessionID: sess.ID,
		RequestID: requestID,
	})

	start := time.Now()
	result, err := s.registry.Invoke(callCtx, params.Name, params.Arguments, sess.Credential)
	elapsed := time.Since(start)

	if err != nil {
		resp := s.toolErrorResponse(req.ID, params.Name, requestID, err)
		s.audit(ctx, sess, params.Name, requestID, c.transport, elapsed, resp.Error)
		return resp
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode tool result", "tool_name", params.Name, "request_id", requestID, "error", err)
		resp := errorResponse(req.ID, JSONRPCInternalError, "internal error", nil)
		s.audit(ctx, sess, params.Name, requestID, c.transport, elapsed, resp.Error)
		return resp
	}

	s.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"request_id", requestID,
		"duration_ms", elapsed.Milliseconds(),
	)
	s.audit(ctx, sess, params.Name, requestID, c.transport, elapsed, nil)

	return resultResponse(req.ID, CallToolResult{
		Content:           []Content{{Type: "text", Text: string(text)}},
		StructuredContent: result,
	})
}

// authError is the protocol-level rejection of a tools/call.
type authError struct {
	Message string
	Data    map[string]string
}

// authenticate resolves the bearer token to a live session.
func (s *Server) authenticate(token string) (*session.Session, *authError) {
	data := map[string]string{"login_url": s.loginURL}
	if token == "" {
		data["reason"] = "missing_token"
		return nil, &authError{Message: "authentication required: sign in to obtain a token", Data: data}
	}

	sess, err := s.sessions.Authenticate(token)
	if err == nil {
		return sess, nil
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		data["reason"] = "token_expired"
		return nil, &authError{Message: "authentication failed: token expired, sign in again", Data: data}
	case errors.Is(err, session.ErrNotFound):
		data["reason"] = "session_not_found"
		return nil, &authError{Message: "authentication failed: session not found, sign in again", Data: data}
	default:
		data["reason"] = "invalid_token"
		return nil, &authError{Message: "authentication failed: invalid token", Data: data}
	}
}

// toolErrorResponse maps adapter failures onto error codes.
func (s *Server) toolErrorResponse(id json.RawMessage, toolName, requestID string, err error) *Response {
	s.logger.Warn("tool execution failed",
		"tool_name", toolName,
		"request_id", requestID,
		"error", err,
	)

	if errors.Is(err, tools.ErrUnknownTool) {
		return errorResponse(id, JSONRPCMethodNotFound, "tool not found: "+toolName, nil)
	}

	te := tools.AsToolError(err)
	switch te.Kind {
	case tools.KindInvalidParams:
		return errorResponse(id, JSONRPCInvalidParams, te.Message, nil)
	case tools.KindUpstreamUnavailable, tools.KindUpstreamRejected:
		return errorResponse(id, CodeUpstreamError, te.Message, map[string]string{"kind": te.Kind.String()})
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errorResponse(id, JSONRPCInternalError, "tool execution timed out", nil)
	case errors.Is(err, context.Canceled):
		return errorResponse(id, JSONRPCInternalError, "request cancelled", nil)
	}
	return errorResponse(id, JSONRPCInternalError, "internal error", nil)
}

// audit records a completed tools/call. Failures are logged and otherwise ignored.
func (s *Server) audit(ctx context.Context, sess *session.Session, toolName, requestID, transport string, elapsed time.Duration, rpcErr *Error) {
	if s.auditor == nil {
		return
	}
	rec := store.ToolCall{
		ID:        requestID,
		SessionID: sess.ID,
		Subject:   sess.Identity.Subject,
		ToolName:  toolName,
		Transport: transport,
		Duration:  elapsed,
		Outcome:   store.OutcomeSuccess,
		CreatedAt: time.Now(),
	}
	if rpcErr != nil {
		rec.Outcome = store.OutcomeError
		rec.ErrorCode = rpcErr.Code
		rec.ErrorMessage = rpcErr.Message
	}

	if err := s.auditor.RecordToolCall(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record tool call", "request_id", requestID, "error", err)
	}
}
