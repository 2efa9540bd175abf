// ABOUTME: Bridges a browser OAuth login into a signed session token for MCP clients
// ABOUTME: Runs the authorization-code flow with PKCE and issues one-time exchange codes

package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/2389/skybridge/internal/session"
)

// Default lifetimes
const (
	DefaultStateTTL        = 10 * time.Minute
	DefaultExchangeCodeTTL = 5 * time.Minute
	DefaultSweepInterval   = time.Minute
)

// DefaultMaxPending bounds the number of outstanding logins and exchange codes.
const DefaultMaxPending = 10_000

const stateBytes = 32

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"openid", "profile", "email"}

// Bridge errors
var (
	ErrInvalidState        = errors.New("invalid or expired state")
	ErrInvalidRedirect     = errors.New("redirect target must be a relative path")
	ErrExchangeFailed      = errors.New("authorization code exchange failed")
	ErrInvalidExchangeCode = errors.New("exchange code is invalid, expired, or already used")
	ErrTooManyPending      = errors.New("too many logins in progress")
)

// PendingAuthorization is a login that has been started but not completed.
type PendingAuthorization struct {
	State          string
	Verifier       string
	RedirectTarget string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Result is what a completed login or redeemed exchange code yields.
type Result struct {
	Token                 string
	Session               *session.Session
	RedirectTarget        string
	ExchangeCode          string
	ExchangeCodeExpiresAt time.Time
}

// Config holds configuration for the bridge.
type Config struct {
	OAuth2          *oauth2.Config
	UserInfoURL     string
	Sessions        *session.Store
	HTTPClient      *http.Client
	SessionTTL      time.Duration
	StateTTL        time.Duration
	ExchangeCodeTTL time.Duration
	MaxPending      int // per table; 0 uses DefaultMaxPending
	Logger          *slog.Logger
	Now             func() time.Time
}

// Bridge runs the authorization-code flow against the provider.
type Bridge struct {
	oauth2      *oauth2.Config
	userInfoURL string
	sessions    *session.Store
	httpClient  *http.Client
	sessionTTL  time.Duration
	now         func() time.Time
	logger      *slog.Logger

	pending   *onceTable[PendingAuthorization]
	exchanges *onceTable[string] // exchange code -> session ID
}

// GoogleConfig builds the provider config for Google sign-in.
func GoogleConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     endpoints.Google,
	}
}

// NewBridge creates a bridge with the given configuration.
func NewBridge(cfg Config) (*Bridge, error) {
	if cfg.OAuth2 == nil {
		return nil, errors.New("oauth2 config is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = DefaultStateTTL
	}
	codeTTL := cfg.ExchangeCodeTTL
	if codeTTL <= 0 {
		codeTTL = DefaultExchangeCodeTTL
	}
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = session.DefaultTTL
	}

	return &Bridge{
		oauth2:      cfg.OAuth2,
		userInfoURL: userInfoURL,
		sessions:    cfg.Sessions,
		httpClient:  cfg.HTTPClient,
		sessionTTL:  sessionTTL,
		now:         now,
		logger:      logger,
		pending:     newOnceTable[PendingAuthorization](stateTTL, maxPending, now),
		exchanges:   newOnceTable[string](codeTTL, maxPending, now),
	}, nil
}

// Start begins a login and returns the provider URL to send the browser to.
// redirectTarget, if set, must be a path on this server.
func (b *Bridge) Start(redirectTarget string) (authURL, state string, err error) {
	if err := validateRedirect(redirectTarget); err != nil {
		return "", "", err
	}

	state, err = randomToken()
	if err != nil {
		return "", "", fmt.Errorf("generating state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	now := b.now()
	expiresAt, err := b.pending.Put(state, PendingAuthorization{
		State:          state,
		Verifier:       verifier,
		RedirectTarget: redirectTarget,
		CreatedAt:      now,
	})
	if err != nil {
		b.logger.Warn("rejecting login, pending table full", "pending", b.pending.Len())
		return "", "", ErrTooManyPending
	}

	authURL = b.oauth2.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	b.logger.Debug("login started", "expires_at", expiresAt)
	return authURL, state, nil
}

// Complete finishes a login. The state is consumed whether or not the rest
// succeeds; no session exists unless the returned error is nil.
func (b *Bridge) Complete(ctx context.Context, code, state string) (*Result, error) {
	pending, ok := b.pending.Consume(state)
	if !ok {
		return nil, ErrInvalidState
	}

	if b.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}

	tok, err := b.oauth2.Exchange(ctx, code, oauth2.VerifierOption(pending.Verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	cred := NewTokenCredential(b.oauth2, tok, b.httpClient)
	identity, err := fetchUserInfo(ctx, cred.Client(ctx), b.userInfoURL)
	if err != nil {
		return nil, err
	}

	exchangeCode, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating exchange code: %w", err)
	}

	sess, err := b.sessions.Create(identity, cred, b.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	token, err := b.sessions.IssueToken(sess)
	if err != nil {
		b.sessions.Delete(sess.ID)
		return nil, fmt.Errorf("issuing token: %w", err)
	}
	codeExpiresAt, err := b.exchanges.Put(exchangeCode, sess.ID)
	if err != nil {
		b.sessions.Delete(sess.ID)
		return nil, ErrTooManyPending
	}

	b.logger.Info("login completed",
		"session_id", sess.ID,
		"email", identity.Email,
		"expires_at", sess.ExpiresAt,
	)

	return &Result{
		Token:                 token,
		Session:               sess,
		RedirectTarget:        pending.RedirectTarget,
		ExchangeCode:          exchangeCode,
		ExchangeCodeExpiresAt: codeExpiresAt,
	}, nil
}

// Redeem trades a one-time exchange code for a fresh token on its existing session.
func (b *Bridge) Redeem(code string) (*Result, error) {
	sessionID, ok := b.exchanges.Consume(code)
	if !ok {
		return nil, ErrInvalidExchangeCode
	}
	sess, ok := b.sessions.Get(sessionID)
	if !ok {
		return nil, ErrInvalidExchangeCode
	}
	token, err := b.sessions.IssueToken(sess)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	b.logger.Info("exchange code redeemed", "session_id", sess.ID)
	return &Result{Token: token, Session: sess}, nil
}

// Run sweeps expired states and exchange codes until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	go b.exchanges.run(ctx, DefaultSweepInterval)
	b.pending.run(ctx, DefaultSweepInterval)
	return nil
}

// PendingCount returns the number of outstanding logins.
func (b *Bridge) PendingCount() int {
	return b.pending.Len()
}

func validateRedirect(target string) error {
	if target == "" {
		return nil
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return ErrInvalidRedirect
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ErrInvalidRedirect
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
