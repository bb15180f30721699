package oidc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AuthSession represents one in-flight OIDC authentication attempt.  It is
// created when an authentication URL is built and consumed exactly once
// when the IdP redirects back to the relying party.  State is the lookup
// key and Nonce is compared against the id_token's nonce claim before the
// token is trusted.
type AuthSession struct {
	State     string
	Nonce     string
	CreatedAt time.Time
}

// SessionStore persists AuthSessions between building an authentication
// URL and receiving the callback.  Implementations must be concurrently
// safe: independent login attempts Create and Consume from independent
// requests.
type SessionStore interface {
	// Create stores the session keyed by its State with the given ttl.
	Create(ctx context.Context, s AuthSession, ttl time.Duration) error

	// Consume atomically retrieves and deletes the session for state.  It
	// returns ErrInvalidState if the session is missing, expired, or was
	// already consumed.  Two callers racing on the same state must not
	// both succeed.
	Consume(ctx context.Context, state string) (*AuthSession, error)
}

type memoryEntry struct {
	session   AuthSession
	expiresAt time.Time
}

// MemorySessionStore is an in-process SessionStore backed by a mutex
// guarded map.  Expiry is enforced by the store itself: entries past
// their ttl are invisible to Consume even if never deleted.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFunc func() time.Time
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty MemorySessionStore.  Supports the
// WithNow option.
func NewMemorySessionStore(opt ...Option) *MemorySessionStore {
	opts := getMemoryStoreOpts(opt...)
	return &MemorySessionStore{
		entries: map[string]memoryEntry{},
		nowFunc: opts.withNowFunc,
	}
}

func (m *MemorySessionStore) now() time.Time {
	if m.nowFunc != nil {
		return m.nowFunc()
	}
	return time.Now()
}

// Create implements SessionStore.Create.  Expired entries are reaped
// opportunistically so an abandoned flow's session is reclaimed.
func (m *MemorySessionStore) Create(_ context.Context, s AuthSession, ttl time.Duration) error {
	const op = "oidc.MemorySessionStore.Create"
	if s.State == "" {
		return fmt.Errorf("%s: empty state: %w", op, ErrInvalidParameter)
	}
	if s.Nonce == "" {
		return fmt.Errorf("%s: empty nonce: %w", op, ErrInvalidParameter)
	}
	if ttl <= 0 {
		return fmt.Errorf("%s: ttl not greater than zero: %w", op, ErrInvalidParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[s.State] = memoryEntry{
		session:   s,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Consume implements SessionStore.Consume.  The lookup and delete happen
// under one critical section, so at most one caller can ever succeed for a
// given state.
func (m *MemorySessionStore) Consume(_ context.Context, state string) (*AuthSession, error) {
	const op = "oidc.MemorySessionStore.Consume"
	if state == "" {
		return nil, fmt.Errorf("%s: empty state: %w", op, ErrInvalidState)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[state]
	if !ok {
		return nil, fmt.Errorf("%s: session %q: %w", op, state, ErrInvalidState)
	}
	delete(m.entries, state)
	if m.now().After(e.expiresAt) {
		return nil, fmt.Errorf("%s: session %q is expired: %w", op, state, ErrInvalidState)
	}
	s := e.session
	return &s, nil
}

// Len reports the number of live entries, expired or not.  Test hook.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// memoryStoreOptions is the set of available options for the
// MemorySessionStore.
type memoryStoreOptions struct {
	withNowFunc func() time.Time
}

func memoryStoreDefaults() memoryStoreOptions {
	return memoryStoreOptions{}
}

func getMemoryStoreOpts(opt ...Option) memoryStoreOptions {
	opts := memoryStoreDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
