// Package token holds the credential sources the chat client can use.
// Every provider returns "" when it has no credential.
package token

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/config"
	"github.com/onrcanogul/mentor-app-mobile-sub000/internal/domain"
)

// Static always returns the same token.
type Static string

func (s Static) Token(ctx context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// Env reads the token from an environment variable on every call.
type Env struct {
	Key string
}

func (e Env) Token(ctx context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(e.Key)), nil
}

// Profile serves the token saved by `mentorchat login`. The file is read
// again on every call so a new login is picked up by the next reconnect.
type Profile struct {
	load func() (*config.Profile, error)
}

func NewProfile() *Profile {
	return &Profile{load: config.LoadProfile}
}

func (p *Profile) Token(ctx context.Context) (string, error) {
	prof, err := p.load()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(prof.AccessToken), nil
}

// Chain returns the first non-empty token. Errors from one source do not
// stop the others; the last one is returned if nothing had a token.
type Chain []domain.TokenProvider

func (c Chain) Token(ctx context.Context) (string, error) {
	var lastErr error
	for _, p := range c {
		tok, err := p.Token(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if tok != "" {
			return tok, nil
		}
	}
	return "", lastErr
}

// Revocable wraps a provider so the credential can be dropped at runtime,
// e.g. on logout. After Revoke it returns "" until Restore.
type Revocable struct {
	inner domain.TokenProvider

	mu      sync.RWMutex
	revoked bool
}

func NewRevocable(inner domain.TokenProvider) *Revocable {
	return &Revocable{inner: inner}
}

func (r *Revocable) Token(ctx context.Context) (string, error) {
	r.mu.RLock()
	revoked := r.revoked
	r.mu.RUnlock()
	if revoked {
		return "", nil
	}
	return r.inner.Token(ctx)
}

func (r *Revocable) Revoke() {
	r.mu.Lock()
	r.revoked = true
	r.mu.Unlock()
}

func (r *Revocable) Restore() {
	r.mu.Lock()
	r.revoked = false
	r.mu.Unlock()
}
