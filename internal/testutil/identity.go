package testutil

import (
	"context"
	"errors"
	"sync"

	"annotatrix/internal/annotatrix"
)

// ErrUnknownCode is returned by FakeIdentityProvider for a code it was not given.
var ErrUnknownCode = errors.New("unknown authorization code")

// FakeIdentityProvider is an in-memory OAuth provider. Codes map to tokens
// and tokens map to usernames.
type FakeIdentityProvider struct {
	mu        sync.Mutex
	tokens    map[string]string
	usernames map[string]string

	// UsernameErr, when set, is returned by every Username call.
	UsernameErr error

	Exchanges      []string
	UsernameLookup []string
}

// NewFakeIdentityProvider creates a provider with no known codes.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		tokens:    make(map[string]string),
		usernames: make(map[string]string),
	}
}

// AddCode makes code exchange to token, and token resolve to username.
func (p *FakeIdentityProvider) AddCode(code, token, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[code] = token
	p.usernames[token] = username
}

func (p *FakeIdentityProvider) AuthorizeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (p *FakeIdentityProvider) Exchange(ctx context.Context, code string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Exchanges = append(p.Exchanges, code)
	token, ok := p.tokens[code]
	if !ok {
		return "", ErrUnknownCode
	}
	return token, nil
}

func (p *FakeIdentityProvider) Username(ctx context.Context, token string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UsernameLookup = append(p.UsernameLookup, token)
	if p.UsernameErr != nil {
		return "", p.UsernameErr
	}
	return p.usernames[token], nil
}

// ExchangeCount returns how many codes were exchanged.
func (p *FakeIdentityProvider) ExchangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Exchanges)
}

// Compile-time check
var _ annotatrix.IdentityProvider = (*FakeIdentityProvider)(nil)
