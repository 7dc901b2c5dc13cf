// Package auth adapts the external identity provider to the service. The
// provider's sign-in flow itself lives outside this repository; what the
// backend consumes is an opaque token that resolves to a user identity.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sergiecode/gemini-chat-backend/internal/model/user"
)

// ErrInvalidToken is returned for unknown or empty credentials.
var ErrInvalidToken = errors.New("invalid or expired token")

// Provider resolves an opaque bearer token to a user.
type Provider interface {
	Verify(ctx context.Context, token string) (user.User, error)
}

// MemoryProvider is a token-to-user table, seeded from configuration for
// development and constructed directly by tests.
type MemoryProvider struct {
	mu    sync.RWMutex
	users map[string]user.User
}

// NewMemoryProvider parses a comma separated list of token:uid:email:name
// entries. Malformed entries are skipped.
func NewMemoryProvider(seed string) *MemoryProvider {
	p := &MemoryProvider{users: make(map[string]user.User)}
	for _, entry := range strings.Split(seed, ",") {
		fields := strings.SplitN(strings.TrimSpace(entry), ":", 4)
		if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
			continue
		}
		u := user.User{UID: fields[1]}
		if len(fields) > 2 {
			u.Email = fields[2]
		}
		if len(fields) > 3 {
			u.Name = fields[3]
		}
		p.users[fields[0]] = u
	}
	return p
}

// Register adds or replaces a token binding.
func (p *MemoryProvider) Register(token string, u user.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[token] = u
}

// Verify implements Provider.
func (p *MemoryProvider) Verify(_ context.Context, token string) (user.User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.users[token]
	if !ok {
		return user.User{}, ErrInvalidToken
	}
	return u, nil
}
