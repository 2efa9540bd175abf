// ABOUTME: In-memory session store binding signed tokens to upstream credentials
// ABOUTME: Sessions expire lazily on read and are swept periodically

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2389/skybridge/internal/auth"
	"github.com/2389/skybridge/internal/tools"
)

// DefaultTTL is how long a session lives after the OAuth exchange completes.
const DefaultTTL = 24 * time.Hour

// DefaultSweepInterval is how often Run removes expired sessions.
const DefaultSweepInterval = time.Minute

// idBytes is the amount of randomness in a session ID.
const idBytes = 32

var (
	// ErrNotFound indicates the session is unknown or expired.
	ErrNotFound = errors.New("session not found")
	// ErrIdentityMismatch indicates a token names a different user than its session.
	ErrIdentityMismatch = errors.New("token subject does not match session")
	// ErrMissingSubject indicates an identity without a provider subject.
	ErrMissingSubject = errors.New("identity has no subject")
)

// Session binds one authenticated identity to its upstream credential.
// Sessions are never mutated after Create.
type Session struct {
	ID         string
	Identity   auth.Identity
	Credential tools.Credential
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store holds live sessions in process memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	signer   *auth.Signer
	now      func() time.Time
	done     chan struct{}
	closed   bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store whose tokens are issued and verified by signer.
func NewStore(signer *auth.Signer, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		signer:   signer,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new session for identity and cred.
// A non-positive ttl uses DefaultTTL.
func (s *Store) Create(identity auth.Identity, cred tools.Credential, ttl time.Duration) (*Session, error) {
	if identity.Subject == "" {
		return nil, ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := s.now()
	sess := &Session{
		ID:         id,
		Identity:   identity,
		Credential: cred,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	return sess, nil
}

// Get returns the session with id. Expired sessions behave as absent and are evicted.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if sess.Expired(s.now()) {
		s.mu.Lock()
		if cur, still := s.sessions[id]; still && cur == sess {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		return nil, false
	}
	return sess, true
}

// Delete removes the session with id. Unknown ids are ignored.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// IssueToken signs a bearer token for sess that expires with it.
func (s *Store) IssueToken(sess *Session) (string, error) {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return "", ErrNotFound
	}
	return s.signer.Issue(sess.Identity, sess.ID, ttl)
}

// Authenticate verifies token and returns the live session it names.
// Token errors from the signer are returned unchanged.
func (s *Store) Authenticate(token string) (*Session, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, err
	}

	sess, ok := s.Get(claims.SessionID)
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Identity.Subject != claims.Identity.Subject {
		return nil, ErrIdentityMismatch
	}
	return sess, nil
}

// Sweep removes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done or the store is closed.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// Len returns the number of stored sessions, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops Run. It is safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
