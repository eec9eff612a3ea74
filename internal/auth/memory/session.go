package memory

import (
	"context"
	"sync"
	"time"

	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

type entry struct {
	session   auth.Session
	expiresAt time.Time
}

// SessionBackend is an in-process backend for single-node deployments and
// tests. Expiry is evaluated against the injected clock on read.
type SessionBackend struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
}

func NewSessionBackend(clk clock.Clock) *SessionBackend {
	if clk == nil {
		clk = clock.Real()
	}
	return &SessionBackend{clock: clk, entries: make(map[string]entry)}
}

func (b *SessionBackend) Save(_ context.Context, token string, s *auth.Session, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[token] = entry{session: *s, expiresAt: b.clock.Now().Add(ttl)}
	return nil
}

func (b *SessionBackend) Get(_ context.Context, token string) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.lookup(token)
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	return &s, nil
}

func (b *SessionBackend) Refresh(_ context.Context, s *auth.Session, ttl time.Duration) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.live(s.Token)
	if err != nil || current.Token != s.Token {
		return current, err
	}
	b.entries[s.Token] = entry{session: *s, expiresAt: b.clock.Now().Add(ttl)}
	out := *s
	return &out, nil
}

func (b *SessionBackend) Rotate(_ context.Context, oldToken string, next *auth.Session, ttl time.Duration, forward *auth.Session, forwardTTL time.Duration) (*auth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.live(oldToken)
	if err != nil || current.Token != oldToken {
		return current, err
	}
	now := b.clock.Now()
	b.entries[next.Token] = entry{session: *next, expiresAt: now.Add(ttl)}
	b.entries[oldToken] = entry{session: *forward, expiresAt: now.Add(forwardTTL)}
	out := *next
	return &out, nil
}

// live resolves token to the session record that currently holds its state,
// following one forward hop. Callers hold mu.
func (b *SessionBackend) live(token string) (*auth.Session, error) {
	s, ok := b.lookup(token)
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	if !s.IsForward() {
		return &s, nil
	}
	successor, ok := b.lookup(s.ForwardTo)
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	return &successor, nil
}

func (b *SessionBackend) lookup(token string) (auth.Session, bool) {
	e, ok := b.entries[token]
	if !ok {
		return auth.Session{}, false
	}
	if !b.clock.Now().Before(e.expiresAt) {
		delete(b.entries, token)
		return auth.Session{}, false
	}
	return e.session, true
}

func (b *SessionBackend) Delete(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, token)
	return nil
}

func (b *SessionBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
