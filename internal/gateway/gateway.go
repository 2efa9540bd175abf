// ABOUTME: Gateway orchestrator that wires sessions, the OAuth bridge, tools, and the MCP server
// ABOUTME: Owns the HTTP server and the background sweepers, and shuts them down together

package gateway

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/2389/skybridge/internal/auth"
	"github.com/2389/skybridge/internal/config"
	"github.com/2389/skybridge/internal/mcp"
	"github.com/2389/skybridge/internal/oauth"
	"github.com/2389/skybridge/internal/session"
	"github.com/2389/skybridge/internal/store"
	"github.com/2389/skybridge/internal/tools"
	"github.com/2389/skybridge/internal/tools/calendar"
	"github.com/2389/skybridge/internal/tools/weather"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "skybridge"

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Option overrides provider endpoints, mainly for tests.
type Option func(*options)

type options struct {
	googleEndpoint  *oauth2.Endpoint
	userInfoURL     string
	calendarBaseURL string
	httpClient      *http.Client
	version         string
}

// WithGoogleEndpoint replaces Google's authorization and token URLs.
func WithGoogleEndpoint(ep oauth2.Endpoint) Option {
	return func(o *options) { o.googleEndpoint = &ep }
}

// WithUserInfoURL replaces Google's userinfo URL.
func WithUserInfoURL(u string) Option {
	return func(o *options) { o.userInfoURL = u }
}

// WithCalendarBaseURL replaces the Google Calendar API base URL.
func WithCalendarBaseURL(u string) Option {
	return func(o *options) { o.calendarBaseURL = u }
}

// WithHTTPClient sets the client used for every outbound provider call.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// Gateway orchestrates the skybridge server components.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	sessions   *session.Store
	bridge     *oauth.Bridge
	registry   *tools.Registry
	mcpServer  *mcp.Server
	audit      *store.SQLiteStore // nil when auditing is disabled
	handler    http.Handler
	httpServer *http.Server

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	signingKey, err := resolveSigningKey(cfg, logger)
	if err != nil {
		return nil, err
	}
	signer, err := auth.NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating token signer: %w", err)
	}
	sessions := session.NewStore(signer)

	audit, err := initAudit(cfg)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(cfg, &o, logger)
	if err != nil {
		closeAudit(audit)
		return nil, err
	}

	oauthCfg := oauth.GoogleConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL, cfg.Google.Scopes)
	if o.googleEndpoint != nil {
		oauthCfg.Endpoint = *o.googleEndpoint
	}
	bridge, err := oauth.NewBridge(oauth.Config{
		OAuth2:      oauthCfg,
		UserInfoURL: o.userInfoURL,
		Sessions:    sessions,
		HTTPClient:  o.httpClient,
		SessionTTL:  cfg.Auth.SessionTTL,
		Logger:      logger.With("component", "oauth"),
	})
	if err != nil {
		closeAudit(audit)
		return nil, fmt.Errorf("creating OAuth bridge: %w", err)
	}

	mcpCfg := mcp.Config{
		Registry:           registry,
		Sessions:           sessions,
		Logger:             logger.With("component", "mcp"),
		ServerName:         cfg.MCP.ServerName,
		ServerVersion:      o.version,
		LoginURL:           cfg.Server.BaseURL + "/auth/start",
		KeepaliveInterval:  cfg.MCP.KeepaliveInterval,
		ToolTimeout:        cfg.MCP.ToolTimeout,
		RateLimitPerMinute: cfg.MCP.RateLimitPerMinute,
	}
	if audit != nil {
		mcpCfg.Auditor = audit
	}
	mcpServer, err := mcp.NewServer(mcpCfg)
	if err != nil {
		closeAudit(audit)
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	gw := &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		sessions:  sessions,
		bridge:    bridge,
		registry:  registry,
		mcpServer: mcpServer,
		audit:     audit,
		ready:     make(chan struct{}),
	}

	mux := http.NewServeMux()

	// Health endpoint - no auth required
	mux.HandleFunc("/healthz", gw.handleHealth)

	oauth.NewHandler(oauth.HandlerConfig{
		Bridge:     bridge,
		BaseURL:    cfg.Server.BaseURL,
		ServerName: cfg.MCP.ServerName,
		Logger:     logger.With("component", "oauth-http"),
	}).RegisterRoutes(mux)

	mcpServer.RegisterRoutes(mux)

	gw.handler = mux
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// resolveSigningKey returns the configured key, or a random one when none is set.
func resolveSigningKey(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.Auth.SigningKey != "" {
		return []byte(cfg.Auth.SigningKey), nil
	}
	key := make([]byte, auth.MinSecretLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	logger.Warn("auth.signing_key not set; using a random key, tokens will not survive a restart")
	return key, nil
}

func initAudit(cfg *config.Config) (*store.SQLiteStore, error) {
	if cfg.Audit.Path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Audit.Path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return s, nil
}

func closeAudit(s *store.SQLiteStore) {
	if s != nil {
		_ = s.Close()
	}
}

func buildRegistry(cfg *config.Config, o *options, logger *slog.Logger) (*tools.Registry, error) {
	var calOpts []calendar.Option
	if o.calendarBaseURL != "" {
		calOpts = append(calOpts, calendar.WithBaseURL(o.calendarBaseURL))
	}

	var wxOpts []weather.Option
	if cfg.Weather.BaseURL != "" {
		wxOpts = append(wxOpts, weather.WithBaseURL(cfg.Weather.BaseURL))
	}
	if o.httpClient != nil {
		wxOpts = append(wxOpts, weather.WithHTTPClient(o.httpClient))
	}
	if cfg.Weather.APIKey == "" {
		logger.Warn("weather.api_key not set; weather tools will report the provider as unavailable")
	}

	registry, err := tools.NewRegistry(logger.With("component", "tools"),
		calendar.New(calOpts...),
		weather.New(cfg.Weather.APIKey, wxOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return registry, nil
}

// Handler returns the HTTP handler serving every endpoint.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Ready is closed once Run is listening.
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

// Addr returns the listening address, or nil before Run has started listening.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Run starts the HTTP server and background sweepers and blocks until the
// context is canceled or the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		closeAudit(g.audit)
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	g.mu.Lock()
	g.addr = ln.Addr()
	g.mu.Unlock()
	close(g.ready)

	g.logger.Info("HTTP server listening",
		"addr", ln.Addr().String(),
		"base_url", g.config.Server.BaseURL,
		"tools", g.registry.Len(),
		"audit", g.audit != nil,
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		return g.sessions.Run(egCtx, session.DefaultSweepInterval)
	})
	eg.Go(func() error {
		return g.bridge.Run(egCtx)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The Run context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown ends open streams, stops the HTTP server, and closes the audit log.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	// streams never end on their own, so close them before draining connections
	g.mcpServer.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.sessions.Close()
	if g.audit != nil {
		errs = appendCloseError(errs, "audit close", g.audit.Close())
	}

	return errors.Join(errs...)
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Service: ServiceName}); err != nil {
		g.logger.Warn("failed to encode health response", "error", err)
	}
}
