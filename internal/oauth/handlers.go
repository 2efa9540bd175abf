// ABOUTME: HTTP endpoints for browser login and exchange-code redemption
// ABOUTME: Serves /auth/start, /auth/callback, and /setup as JSON

package oauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HandlerConfig holds configuration for the HTTP endpoints.
type HandlerConfig struct {
	Bridge     *Bridge
	BaseURL    string // public URL of this server, used in client config snippets
	ServerName string // key under mcpServers in the client config snippet
	Logger     *slog.Logger
}

// Handler serves the login endpoints.
type Handler struct {
	bridge     *Bridge
	baseURL    string
	serverName string
	logger     *slog.Logger
}

// NewHandler creates the login endpoints.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServerName
	if name == "" {
		name = "skybridge"
	}
	return &Handler{
		bridge:     cfg.Bridge,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serverName: name,
		logger:     logger,
	}
}

// RegisterRoutes registers the login endpoints on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/start", h.handleStart)
	mux.HandleFunc("/auth/callback", h.handleCallback)
	mux.HandleFunc("/setup", h.handleSetup)
}

// ServerConfig is one entry under mcpServers in a client config file.
type ServerConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// ClientConfig is the snippet a user pastes into their MCP client.
type ClientConfig struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoginResponse is the JSON body returned after a successful login or redemption.
type LoginResponse struct {
	Email                 string       `json:"email"`
	Name                  string       `json:"name,omitempty"`
	Token                 string       `json:"token"`
	ExpiresAt             time.Time    `json:"expires_at"`
	ExchangeCode          string       `json:"exchange_code,omitempty"`
	ExchangeCodeExpiresAt *time.Time   `json:"exchange_code_expires_at,omitempty"`
	MCPConfig             ClientConfig `json:"mcp_config"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	authURL, _, err := h.bridge.Start(r.URL.Query().Get("redirect"))
	if err != nil {
		if errors.Is(err, ErrInvalidRedirect) {
			h.sendError(w, http.StatusBadRequest, "invalid_request", "Redirect target must be a path on this server.", "")
			return
		}
		if errors.Is(err, ErrTooManyPending) {
			w.Header().Set("Retry-After", "60")
			h.sendError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "Too many sign-ins in progress. Try again shortly.", "")
			return
		}
		h.logger.Error("failed to start login", "error", err)
		h.sendError(w, http.StatusInternalServerError, "server_error", "Failed to start authentication.", "")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Info("login denied at provider", "provider_error", providerErr)
		h.sendError(w, http.StatusBadRequest, "authentication_failed",
			"You denied the authentication request or an error occurred.", providerErr)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Missing authorization code or state parameter.", "")
		return
	}

	result, err := h.bridge.Complete(r.Context(), code, state)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidState):
			h.sendError(w, http.StatusBadRequest, "invalid_state", "Login link is invalid, expired, or already used. Start again.", "")
		case errors.Is(err, ErrTooManyPending):
			w.Header().Set("Retry-After", "60")
			h.sendError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "Too many sign-ins in progress. Try again shortly.", "")
		case errors.Is(err, ErrExchangeFailed), errors.Is(err, ErrUserInfo):
			h.logger.Warn("login failed", "error", err)
			h.sendError(w, http.StatusBadGateway, "authentication_error", "Failed to complete authentication.", "")
		default:
			h.logger.Error("login failed", "error", err)
			h.sendError(w, http.StatusInternalServerError, "server_error", "Failed to complete authentication.", "")
		}
		return
	}

	if result.RedirectTarget != "" {
		http.Redirect(w, r, withCode(result.RedirectTarget, result.ExchangeCode), http.StatusSeeOther)
		return
	}

	h.sendJSON(w, http.StatusOK, h.loginResponse(result))
}

func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Missing exchange code.", "")
		return
	}

	result, err := h.bridge.Redeem(code)
	if err != nil {
		if errors.Is(err, ErrInvalidExchangeCode) {
			h.sendError(w, http.StatusBadRequest, "invalid_code", "The exchange code is invalid, expired, or already used.", "")
			return
		}
		h.logger.Error("exchange code redemption failed", "error", err)
		h.sendError(w, http.StatusInternalServerError, "server_error", "Failed to redeem exchange code.", "")
		return
	}

	h.sendJSON(w, http.StatusOK, h.loginResponse(result))
}

func (h *Handler) loginResponse(result *Result) LoginResponse {
	resp := LoginResponse{
		Email:        result.Session.Identity.Email,
		Name:         result.Session.Identity.Name,
		Token:        result.Token,
		ExpiresAt:    result.Session.ExpiresAt.UTC(),
		ExchangeCode: result.ExchangeCode,
		MCPConfig: ClientConfig{
			MCPServers: map[string]ServerConfig{
				h.serverName: {
					URL:     h.baseURL + "/mcp",
					Headers: map[string]string{"Authorization": "Bearer " + result.Token},
				},
			},
		},
	}
	if result.ExchangeCode != "" {
		exp := result.ExchangeCodeExpiresAt.UTC()
		resp.ExchangeCodeExpiresAt = &exp
	}
	return resp
}

func withCode(target, code string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, status int, code, message, details string) {
	h.sendJSON(w, status, errorResponse{Error: code, Message: message, Details: details})
}
