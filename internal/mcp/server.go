// ABOUTME: MCP-compatible HTTP server exposing provider tools to external agents
// ABOUTME: Serves single-shot JSON-RPC over POST and a streaming transport over SSE

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/skybridge/internal/auth"
	"github.com/2389/skybridge/internal/session"
	"github.com/2389/skybridge/internal/store"
	"github.com/2389/skybridge/internal/tools"
)

// DefaultToolTimeout bounds a single adapter invocation.
const DefaultToolTimeout = 30 * time.Second

// Auditor records completed tool calls.
type Auditor interface {
	RecordToolCall(ctx context.Context, call store.ToolCall) error
}

// Config holds configuration for the MCP server.
type Config struct {
	Registry           *tools.Registry
	Sessions           *session.Store
	Auditor            Auditor // optional
	Logger             *slog.Logger
	ServerName         string
	ServerVersion      string
	LoginURL           string // where humans obtain a token; returned with auth errors
	KeepaliveInterval  time.Duration
	ToolTimeout        time.Duration
	RateLimitPerMinute int // 0 disables
}

// Server implements MCP endpoints for external agents.
type Server struct {
	registry      *tools.Registry
	sessions      *session.Store
	auditor       Auditor
	logger        *slog.Logger
	serverName    string
	serverVersion string
	loginURL      string
	messagesPath  string
	keepalive     time.Duration
	toolTimeout   time.Duration
	limiter       *sessionLimiter
	streams       *streamHub
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServerName
	if name == "" {
		name = "skybridge"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "dev"
	}
	keepalive := cfg.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = DefaultKeepaliveInterval
	}
	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = DefaultToolTimeout
	}

	return &Server{
		registry:      cfg.Registry,
		sessions:      cfg.Sessions,
		auditor:       cfg.Auditor,
		logger:        logger,
		serverName:    name,
		serverVersion: version,
		loginURL:      cfg.LoginURL,
		messagesPath:  "/mcp/messages",
		keepalive:     keepalive,
		toolTimeout:   toolTimeout,
		limiter:       newSessionLimiter(cfg.RateLimitPerMinute),
		streams:       newStreamHub(),
	}, nil
}

// RegisterRoutes registers the MCP endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/mcp/sse", s.handleSSE)
	mux.HandleFunc("/mcp/messages", s.handleStreamMessage)
}

// Close ends all open streams.
func (s *Server) Close() {
	s.streams.close()
}

// handleMCP serves single-shot requests on POST and opens a stream on GET.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleStream(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleStream(w, r)
}

// handlePost processes one JSON-RPC message and replies in the HTTP response.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, errResp := readBody(r)
	if errResp != nil {
		s.sendResponse(w, errResp)
		return
	}

	req, errResp := parseRequest(body)
	if errResp != nil {
		s.sendResponse(w, errResp)
		return
	}

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", req.IsNotification(),
	)

	resp := s.dispatch(r.Context(), req, call{
		transport: TransportHTTP,
		token:     auth.BearerFromRequest(r),
	})
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.sendResponse(w, resp)
}

// readBody reads at most MaxRequestBodySize bytes.
func readBody(r *http.Request) ([]byte, *Response) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, errorResponse(nil, JSONRPCParseError, "failed to read request body", nil)
	}
	if int64(len(body)) > MaxRequestBodySize {
		return nil, errorResponse(nil, JSONRPCInvalidRequest, errBodyTooBig.Error(), nil)
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, errorResponse(nil, JSONRPCParseError, "parse error: empty body", nil)
	}
	return body, nil
}

// sendResponse writes a JSON-RPC response with HTTP 200.
func (s *Server) sendResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}
